package main

import (
	"context"
	"errors"
	"fmt"
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		// Interrupts surface as context.Canceled; exiting quietly
		// keeps ^C from printing a spurious error.
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, "docket:", err)
		}
		os.Exit(1)
	}
}
