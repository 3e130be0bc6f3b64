// Package main is the entry point for the taskfold command. It loads
// configuration, resolves the current workspace, and dispatches to the
// workspace, list, task and sync commands.
package main

import (
	"fmt"
	"os"
)

// Version information - set at build time
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	a := newApp(os.Stdin, os.Stdout, os.Stderr)
	if err := a.execute(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
