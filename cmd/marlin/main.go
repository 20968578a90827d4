package main

import (
	"os"

	"marlin/cmd/marlin/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
