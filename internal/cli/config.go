package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/example/modelexport/internal/model"
)

var validate *validator.Validate

func init() {
	validate = validator.New()

	// Report flag names so errors match what the user typed.
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		if name := fld.Tag.Get("flag"); name != "" {
			return "--" + name
		}
		return fld.Name
	})

	_ = validate.RegisterValidation("schemaversion", func(fl validator.FieldLevel) bool {
		_, err := model.NewDumper(fl.Field().String())
		return err == nil
	})
}

func loadConfigFile(config *ExportConfig) error {
	if config.ConfigPath == "" {
		return nil
	}

	data, err := os.ReadFile(filepath.Clean(config.ConfigPath))
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	var cfg struct {
		ModelExport struct {
			Input         string   `yaml:"input"`
			Output        string   `yaml:"output"`
			SchemaVersion string   `yaml:"schema_version"`
			Exclude       []string `yaml:"exclude"`
			Lookup        []string `yaml:"lookup"`
		} `yaml:"modelexport"`
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}

	// Apply config values if flags weren't set
	if config.Input == "." && cfg.ModelExport.Input != "" {
		config.Input = cfg.ModelExport.Input
	}
	if config.Output == "" {
		config.Output = cfg.ModelExport.Output
	}
	if config.SchemaVersion == defaultSchemaVersion && cfg.ModelExport.SchemaVersion != "" {
		config.SchemaVersion = cfg.ModelExport.SchemaVersion
	}
	if config.Excludes == nil {
		config.Excludes = cfg.ModelExport.Exclude
	}
	if config.Lookup == nil {
		config.Lookup = cfg.ModelExport.Lookup
	}

	return nil
}

func validateConfig(config *ExportConfig) error {
	err := validate.Struct(config)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fe.Field()+" is required")
		case "schemaversion":
			msgs = append(msgs, fmt.Sprintf("%s %q is not a valid version", fe.Field(), fe.Value()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag()))
		}
	}
	return fmt.Errorf("invalid configuration: %s: %w", strings.Join(msgs, "; "), err)
}
