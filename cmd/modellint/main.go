// Package main provides the modellint vet tool.
package main

import (
	"golang.org/x/tools/go/analysis/singlechecker"

	"github.com/example/modelexport/internal/modellint"
)

func main() {
	singlechecker.Main(modellint.Analyzer)
}
