// Package main is the entry point for the warboard CLI.
package main

import (
	"os"

	"github.com/warboard/warboard/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
