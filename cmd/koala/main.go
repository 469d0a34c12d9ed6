// Package main provides the koala command: a browser automation runtime
// driven over stdin/stdout by a controlling process.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

const version = "0.1.0"

func main() {
	// Create context with signal handling
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	code := 0
	root := newRootCmd(&code)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "koala: %v\n", err)
		if code == 0 {
			code = 1
		}
	}

	stop()
	os.Exit(code)
}
