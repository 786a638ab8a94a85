package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/example/modelexport/internal/discovery"
	"github.com/example/modelexport/internal/runner"
)

const defaultSchemaVersion = "2"

// ErrExportFailed is returned when at least one unit failed to export.
var ErrExportFailed = errors.New("one or more units failed to export")

// ExportConfig holds the options shared by the json and schema commands.
type ExportConfig struct {
	Files         []string
	Input         string   `flag:"input" validate:"required"`
	Output        string   `flag:"output" validate:"required"`
	All           bool     `flag:"all"`
	ConfigPath    string   `flag:"config"`
	SchemaVersion string   `flag:"schema-version" validate:"required,schemaversion"`
	Excludes      []string `flag:"exclude" validate:"dive,required"`
	Lookup        []string `flag:"lookup" validate:"dive,required"`
	Verbose       bool     `flag:"verbose"`
	Check         bool     `flag:"check"`
}

func newExportCommand(mode discovery.Mode) *cobra.Command {
	var config ExportConfig

	cmd := &cobra.Command{
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			config.Files = args
			return Export(&config, mode, cmd.ErrOrStderr())
		},
	}

	switch mode {
	case discovery.DefinitionMode:
		cmd.Use = "schema [filenames...]"
		cmd.Short = "Export model definitions as JSON Schema documents"
		cmd.Flags().BoolVar(&config.Check, "check", false, "Compile every schema before writing it")
	default:
		cmd.Use = "json [filenames...]"
		cmd.Short = "Export model instances as JSON files"
	}

	cmd.Flags().StringVar(&config.Input, "input", ".", "Source root; only files nested under it are processed")
	cmd.Flags().StringVar(&config.Output, "output", "", "Directory the JSON files are written to")
	cmd.Flags().BoolVar(&config.All, "all", false, "Process every source file under the input root")
	cmd.Flags().StringVar(&config.ConfigPath, "config", "", "Path to .modelexport.yml config file")
	cmd.Flags().StringVar(&config.SchemaVersion, "schema-version", defaultSchemaVersion, "Schema library version; below 2 emits draft-04 documents")
	cmd.Flags().StringArrayVar(&config.Excludes, "exclude", nil, "Glob of root-relative paths to skip (repeatable, replaces the default)")
	cmd.Flags().StringArrayVar(&config.Lookup, "lookup", nil, "Extra directory searched for imported packages (repeatable)")
	cmd.Flags().BoolVarP(&config.Verbose, "verbose", "v", false, "Enable debug logging")

	return cmd
}

// Export runs one export with config, logging to w.
func Export(config *ExportConfig, mode discovery.Mode, w io.Writer) error {
	if err := loadConfigFile(config); err != nil {
		return err
	}
	if err := validateConfig(config); err != nil {
		return err
	}

	logger := newLogger(w, config.Verbose)
	result, err := runner.Run(runner.Config{
		Root:          config.Input,
		Files:         config.Files,
		All:           config.All,
		Output:        config.Output,
		Mode:          mode,
		SchemaVersion: config.SchemaVersion,
		Excludes:      config.Excludes,
		LookupRoots:   config.Lookup,
		Check:         config.Check,
	}, logger)
	if err != nil {
		return err
	}
	if result.ExitCode() != 0 {
		return fmt.Errorf("%w: %d of %d", ErrExportFailed, len(result.Failed()), len(result.Units))
	}
	return nil
}

func newLogger(w io.Writer, verbose bool) *log.Logger {
	if w == nil {
		w = os.Stderr
	}
	logger := log.NewWithOptions(w, log.Options{Prefix: "modelexport"})
	if verbose {
		logger.SetLevel(log.DebugLevel)
	}
	return logger
}
