// Command hexwin inspects, patches, searches and exports large files, raw
// devices and Databricks workspace objects through a small sliding window.
package main

import (
	"errors"
	"fmt"
	"os"
)

// Set by the release build.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	err := run(os.Args, defaultDeps())
	if err == nil {
		return
	}
	var cliErr *cliError
	if errors.As(err, &cliErr) {
		if !cliErr.printed && cliErr.msg != "" {
			fmt.Fprintln(os.Stderr, cliErr.msg)
		}
		os.Exit(cliErr.exitCode)
	}
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
