// Package main provides the entry point for the seriescache CLI tool.
package main

import (
	"fmt"
	"os"

	"github.com/Sumatoshi-tech/seriescache/cmd/seriescache/commands"
)

func main() {
	err := commands.NewRootCommand().Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
