package main

import (
	"os"

	"github.com/terra-clan/code-review-quest/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
