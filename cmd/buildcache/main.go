// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Command buildcache computes rule keys for a declared rule graph and
// moves rule outputs in and out of the local artifact cache.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	if err := run(); err != nil {
		// Commands that print their own outcome (fetch on a miss)
		// return an ExitError; don't print a redundant "error:" line.
		if coder, ok := err.(interface{ ExitCode() int }); ok {
			os.Exit(coder.ExitCode())
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return newApp(ctx, os.Stdout, os.Stderr).root().Execute(os.Args[1:])
}
