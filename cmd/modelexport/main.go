// Package main provides the modelexport command.
package main

import (
	"os"

	"github.com/charmbracelet/log"

	"github.com/example/modelexport/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		log.NewWithOptions(os.Stderr, log.Options{Prefix: "modelexport"}).Error(err.Error())
		os.Exit(1)
	}
}
