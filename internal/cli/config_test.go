package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".modelexport.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func defaults() *ExportConfig {
	return &ExportConfig{Input: ".", SchemaVersion: defaultSchemaVersion}
}

func TestLoadConfigFile(t *testing.T) {
	full := `modelexport:
  input: ./models
  output: ./schemas
  schema_version: "1.10"
  exclude: ["**/generated/**"]
  lookup: ["./third_party"]
`

	tests := []struct {
		name    string
		content string
		path    string
		config  *ExportConfig
		want    *ExportConfig
		wantErr string
	}{
		{
			name:   "no config file",
			config: defaults(),
			want:   defaults(),
		},
		{
			name:    "nonexistent config file",
			path:    "/nonexistent/config.yml",
			config:  defaults(),
			wantErr: "read config",
		},
		{
			name:    "invalid yaml",
			content: "modelexport: [\n",
			config:  defaults(),
			wantErr: "parse config",
		},
		{
			name:    "file fills defaults",
			content: full,
			config:  defaults(),
			want: &ExportConfig{
				Input:         "./models",
				Output:        "./schemas",
				SchemaVersion: "1.10",
				Excludes:      []string{"**/generated/**"},
				Lookup:        []string{"./third_party"},
			},
		},
		{
			name:    "flags win",
			content: full,
			config: &ExportConfig{
				Input:         "src",
				Output:        "out",
				SchemaVersion: "3",
				Excludes:      []string{"x/**"},
				Lookup:        []string{},
			},
			want: &ExportConfig{
				Input:         "src",
				Output:        "out",
				SchemaVersion: "3",
				Excludes:      []string{"x/**"},
				Lookup:        []string{},
			},
		},
		{
			name:    "other sections ignored",
			content: "openapi:\n  output: spec.json\n",
			config:  defaults(),
			want:    defaults(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := tt.path
			if tt.content != "" {
				path = writeConfig(t, tt.content)
			}
			tt.config.ConfigPath = path

			err := loadConfigFile(tt.config)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)

			tt.want.ConfigPath = path
			assert.Equal(t, tt.want, tt.config)
		})
	}
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		config  ExportConfig
		wantErr string
	}{
		{
			name:   "valid",
			config: ExportConfig{Input: ".", Output: "out", SchemaVersion: "2"},
		},
		{
			name:    "missing output",
			config:  ExportConfig{Input: ".", SchemaVersion: "2"},
			wantErr: "--output is required",
		},
		{
			name:    "missing input",
			config:  ExportConfig{Output: "out", SchemaVersion: "2"},
			wantErr: "--input is required",
		},
		{
			name:    "bad schema version",
			config:  ExportConfig{Input: ".", Output: "out", SchemaVersion: "latest"},
			wantErr: `--schema-version "latest" is not a valid version`,
		},
		{
			name:    "empty exclude",
			config:  ExportConfig{Input: ".", Output: "out", SchemaVersion: "2", Excludes: []string{""}},
			wantErr: "--exclude[0] is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateConfig(&tt.config)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), "invalid configuration")
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
