// Command machreg-smoke runs the Elemental machine registration smoke
// scenario against a Rancher dashboard.
package main

import (
	"fmt"
	"os"

	"github.com/kuitang/machreg-e2e/internal/cli"
	"github.com/kuitang/machreg-e2e/internal/errs"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(errs.ExitCode(errs.CodeOf(err)))
	}
}
