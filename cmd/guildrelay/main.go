package main

import (
	"os"

	"github.com/guildrelay/guildrelay/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
