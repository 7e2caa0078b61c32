// Package main is lockctl, a command-line client for the gating server:
// lock registry management, access checks and the challenge/verify flow.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
