// Package main provides the entry point for asmsim.
// asmsim is an interpreter for x86-64 assembly written in AT&T syntax,
// with an optional in-order timing model built on Akita components.
//
// For the full CLI, use: go run ./cmd/asmsim
package main

import (
	"fmt"
	"os"
)

func main() {
	fmt.Println("asmsim - x86-64 AT&T assembly interpreter")
	fmt.Println("")
	fmt.Println("Usage: asmsim <command> [options]")
	fmt.Println("")
	fmt.Println("Commands:")
	fmt.Println("  run <program.s>      Link and run a program")
	fmt.Println("  symbols <program.s>  Print the linked symbol table")
	fmt.Println("  bench                Run the timing microbenchmarks")
	fmt.Println("  version              Print the version")
	fmt.Println("")
	fmt.Println("Run 'go run ./cmd/asmsim' for the full CLI.")

	if len(os.Args) > 1 {
		fmt.Println("\nNote: You provided arguments. Use 'go run ./cmd/asmsim' instead.")
	}
}
