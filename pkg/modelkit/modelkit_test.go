package modelkit

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type order struct {
	BaseModel
	ID int `json:"id"`
}

func TestEmbeddedBaseModel(t *testing.T) {
	var m Model = order{ID: 1}
	assert.True(t, m.IsModel())

	data, err := json.Marshal(order{ID: 7})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":7}`, string(data), "marker must not leak into encoded output")
}
