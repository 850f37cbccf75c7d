// Command nsboot provisions a hierarchical naming service onto a ledger.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/nsboot/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
