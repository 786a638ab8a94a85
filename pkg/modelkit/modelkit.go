// Package modelkit provides the marker type that turns a Go struct into an
// exportable model.
//
// Embed BaseModel in a struct to make modelexport pick it up:
//
//	type Order struct {
//		modelkit.BaseModel
//		ID int `json:"id" validate:"required"`
//	}
//
// Package-level variables of a model type are exported as instances by
// `modelexport json`; the struct definitions themselves are exported as JSON
// Schema documents by `modelexport schema`.
package modelkit

// BaseModel marks a struct as a model. It carries no fields and is never
// exported on its own.
type BaseModel struct{}

// IsModel reports true for any struct embedding BaseModel.
func (BaseModel) IsModel() bool { return true }

// Model is satisfied by every struct that embeds BaseModel.
type Model interface {
	IsModel() bool
}
