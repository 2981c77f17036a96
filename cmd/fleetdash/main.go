// Package main is the entry point for the fleetdash CLI.
package main

import (
	"os"

	"github.com/runger/fleetdash/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
