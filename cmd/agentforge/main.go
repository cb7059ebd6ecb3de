package main

import (
	"os"

	"github.com/ent0n29/agentforge/internal/cli"
)

func main() {
	if err := cli.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
