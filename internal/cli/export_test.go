package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/modelexport/internal/runner"
)

const usersUnit = "package users\n\ntype BaseModel struct{}\n\n" +
	"type User struct {\n\tBaseModel\n\tName  string `json:\"name\" validate:\"required\"`\n\tAdmin bool   `json:\"admin,omitempty\"`\n}\n\n" +
	"var Root = User{Name: \"root\", Admin: true}\n"

func sourceRoot(t *testing.T) (string, string) {
	t.Helper()
	root := t.TempDir()
	unit := filepath.Join(root, "users.go")
	require.NoError(t, os.WriteFile(unit, []byte(usersUnit), 0644))
	return root, unit
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stderr bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetArgs(args)
	cmd.SetOut(&stderr)
	cmd.SetErr(&stderr)
	err := cmd.Execute()
	return stderr.String(), err
}

func TestJSONCommand(t *testing.T) {
	root, unit := sourceRoot(t)
	out := filepath.Join(t.TempDir(), "out")

	logs, err := execute(t, "json", "--input", root, "--output", out, unit)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(out, "Root.json"))
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"name\": \"root\",\n  \"admin\": true\n}\n", string(data))
	assert.Contains(t, logs, "modelexport")
	assert.Contains(t, logs, "Exported Root model as Root JSON file")
	assert.NotContains(t, logs, "Selected unit")
}

func TestSchemaCommand(t *testing.T) {
	root, _ := sourceRoot(t)
	out := t.TempDir()

	logs, err := execute(t, "schema", "--all", "--check", "--verbose", "--schema-version", "1", "--input", root, "--output", out)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(out, "User.json"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "http://json-schema.org/draft-04/schema#")
	assert.Contains(t, string(data), `"required": [`)
	assert.NoFileExists(t, filepath.Join(out, "BaseModel.json"))
	assert.Contains(t, logs, "Selected unit")
}

func TestCommandFailures(t *testing.T) {
	root, unit := sourceRoot(t)
	broken := filepath.Join(root, "broken.go")
	require.NoError(t, os.WriteFile(broken, []byte("package users\n\nvar = 1\n"), 0644))
	out := filepath.Join(t.TempDir(), "out")

	tests := []struct {
		name    string
		args    []string
		wantIs  error
		wantMsg string
	}{
		{
			name:    "missing output",
			args:    []string{"json", "--input", root, unit},
			wantMsg: "--output is required",
		},
		{
			name:    "bad schema version",
			args:    []string{"schema", "--schema-version", "next", "--input", root, "--output", out, unit},
			wantMsg: "--schema-version",
		},
		{
			name:   "missing root",
			args:   []string{"json", "--all", "--input", filepath.Join(root, "nope"), "--output", out},
			wantIs: runner.ErrRootNotFound,
		},
		{
			name:   "failing unit",
			args:   []string{"json", "--input", root, "--output", out, broken, unit},
			wantIs: ErrExportFailed,
		},
		{
			name:    "unknown flag",
			args:    []string{"json", "--nope"},
			wantMsg: "unknown flag",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, tt.args...)
			require.Error(t, err)
			if tt.wantIs != nil {
				assert.ErrorIs(t, err, tt.wantIs)
			}
			if tt.wantMsg != "" {
				assert.Contains(t, err.Error(), tt.wantMsg)
			}
		})
	}

	// The failing unit does not stop the valid one.
	assert.FileExists(t, filepath.Join(out, "Root.json"))
}

func TestConfigFileDrivesExport(t *testing.T) {
	root, _ := sourceRoot(t)
	out := filepath.Join(t.TempDir(), "schemas")
	config := writeConfig(t, "modelexport:\n  input: "+root+"\n  output: "+out+"\n  schema_version: \"2.1\"\n")

	_, err := execute(t, "schema", "--all", "--config", config)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(out, "User.json"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "https://json-schema.org/draft/2020-12/schema")
}

func TestExecuteWithoutArgs(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetArgs([]string{})
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "json")
	assert.Contains(t, buf.String(), "schema")
}
