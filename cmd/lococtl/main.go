package main

import (
	"os"

	"github.com/keskad/locosteam/pkgs/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
