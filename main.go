package main

import (
	"os"

	"github.com/kvesta/verity/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
