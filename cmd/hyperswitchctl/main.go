// Command hyperswitchctl is a small operator tool for working with a
// HyperSwitch specification file offline: validating it, printing the
// route tree it produces, issuing one dry-run request against it, or
// watching it for changes during development.
package main

import (
	"os"

	"github.com/wikimedia/hyperswitch/cmd/hyperswitchctl/cli"
)

func main() {
	if err := cli.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
