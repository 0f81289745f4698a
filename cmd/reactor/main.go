// Command reactor is the CLI runner around the reactor scheduling core:
// run, replay, validate, and history subcommands.
package main

import (
	"fmt"
	"os"

	"github.com/latticeflow/reactor/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
