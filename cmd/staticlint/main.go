// Package main implements a multichecker that runs a set of static analysis
// analyzers on Go code.
//
// Usage:
//
//	go run cmd/staticlint/main.go ./...
//	./staticlint ./...
//
// Use this tool to detect issues and errors in your project code.
package main

import (
	"golang.org/x/tools/go/analysis/multichecker"

	"github.com/pulsemon/pulsemon/cmd/staticlint/analyzers"
)

// main runs the multichecker tool that aggregates the custom analyzers.
func main() {
	multichecker.Main(
		analyzers.NoOsExitMainAnalyzer,
	)
}
