package main

import (
	"os"

	"github.com/schemamirror/sfsync/internal/cli/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
