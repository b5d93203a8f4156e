package main

import (
	"os"

	"github.com/lattice-ir/lattice/internal/cli/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
