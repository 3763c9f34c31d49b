package main

import (
	"os"

	"github.com/fwtree/fwtree/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		// Commands print their own error output; the error only carries
		// the exit code at this point.
		os.Exit(cli.GetExitCode(err))
	}
}
