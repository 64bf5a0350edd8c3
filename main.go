package main

import (
	"os"

	"github.com/cardmart/cardmart/cli"
)

func main() {
	if err := cli.RootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
