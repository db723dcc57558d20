// Package main provides the entry point for the diveroast CLI.
package main

import (
	"os"

	"github.com/raphaelgruber/diveroast/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
