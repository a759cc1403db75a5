// Package main provides the entry point for the semindex CLI.
package main

import (
	"os"

	"github.com/Aman-CERP/semindex/cmd/semindex/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
