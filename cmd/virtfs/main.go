package main

import (
	"fmt"
	"os"
	"runtime/debug"

	"github.com/marmos91/virtfs/internal/cli"
)

func main() {
	// Recover from panics to ensure graceful exits with stack traces
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "panic: %v\n%s\n", r, debug.Stack())
			os.Exit(cli.ExitPanic)
		}
	}()

	os.Exit(cli.Execute())
}
