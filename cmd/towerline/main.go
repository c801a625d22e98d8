package main

import (
	"os"

	"github.com/sebas/towerline/cmd/towerline/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
