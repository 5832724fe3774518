package main

import (
	"os"

	"github.com/soloforge/soloforge/pkg/cli"
)

func main() {
	if err := cli.New().Run(os.Args); err != nil {
		os.Exit(1)
	}
}
