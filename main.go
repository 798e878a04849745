package main

import (
	"os"

	"github.com/wegman-software/vmap-go/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
