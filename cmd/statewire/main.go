// Command statewire compiles, tests and watches reactive state graphs.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/statewire/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
