// Package main provides the asmsim command line.
// asmsim links and runs x86-64 AT&T assembly programs on an emulator, with
// an optional timing model.
package main

import (
	"errors"
	"fmt"
	"os"
)

// Version is set at build time.
var Version = "dev"

func main() {
	root := newRootCmd()

	err := root.Execute()
	if err == nil {
		return
	}

	var exit *exitError
	if errors.As(err, &exit) {
		os.Exit(exit.code)
	}

	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
