// Package main provides the entry point for the medfuse CLI.
package main

import (
	"os"

	"github.com/medfuse/medfuse/cmd/medfuse/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
