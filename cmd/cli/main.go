// Package main is the entry point for hubctl, the agenthub command line
// client.
package main

import (
	"os"

	"agenthub/cmd/cli/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
