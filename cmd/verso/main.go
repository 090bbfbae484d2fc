// Command verso keeps the history of entities declared in a CUE schema.
//
// Usage:
//
//	verso types
//	verso create Page --values '{"name": "Home", "content": "Hello"}'
//	verso open Page 1
//	verso edit Page 1 --fingerprint 1 --values '{"content": "Hello world"}'
//	verso log Page 1
//	verso diff 1 2
//	verso revert 1
//
// Configuration is read from ./verso.yaml or --config, with VERSO_*
// environment overrides.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/roach88/verso/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		var exitErr *cli.ExitError
		// Commands with SilenceErrors report through their formatter; only
		// usage and flag errors still need printing.
		if !errors.As(err, &exitErr) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(cli.GetExitCode(err))
	}
}
