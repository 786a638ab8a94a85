// Package cli provides the command-line interface for modelexport.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/example/modelexport/internal/discovery"
)

// Execute creates and runs the root command.
func Execute() error {
	return NewRootCommand().Execute()
}

// NewRootCommand builds the modelexport command tree.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "modelexport",
		Short:         "Export model instances and model schemas as JSON",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(newExportCommand(discovery.InstanceMode))
	rootCmd.AddCommand(newExportCommand(discovery.DefinitionMode))

	return rootCmd
}
