package main

import (
	"os"

	"github.com/arenaverse/arenactl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
