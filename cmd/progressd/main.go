// Command progressd runs the progression engine: an HTTP API with health
// and metrics endpoints, plus one-shot commands for recording actions and
// reading progress from the shell.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}
