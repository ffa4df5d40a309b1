// Command termsub manages a domain-term dictionary and applies it to
// speech-to-text transcripts, either from the command line or as an HTTP
// service.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	root := newRootCmd(&cli{setDefaultLogger: true})
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "termsub: %v\n", err)
		return 1
	}
	return 0
}
