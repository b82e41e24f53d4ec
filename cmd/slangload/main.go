// Package main provides the entry point for the slangload CLI.
package main

import (
	"os"

	"github.com/fatih/color"

	"github.com/jormeli/slangload/cmd/slangload/commands"
)

func main() {
	err := commands.NewRootCommand().Execute()
	if err != nil {
		color.New(color.FgRed).Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
