// Package main provides the entry point for rvsim.
// rvsim is a cycle-level multi-hart RISC-V core simulator built on Akita.
//
// For the full CLI, use: go run ./cmd/rvsim
package main

import (
	"fmt"
	"os"
)

func main() {
	fmt.Println("rvsim - Multi-hart RISC-V Core Simulator")
	fmt.Println("Built on Akita simulation framework")
	fmt.Println("")
	fmt.Println("Usage: rvsim [options] <program.elf>")
	fmt.Println("")
	fmt.Println("Options:")
	fmt.Println("  -machine     ISA string (default RV64GC)")
	fmt.Println("  -harts       Number of hardware threads")
	fmt.Println("  -config      Path to timing configuration JSON file")
	fmt.Println("  -max-cycles  Cycle limit")
	fmt.Println("  -trace       Retirement trace output file")
	fmt.Println("  -v           Verbose output")
	fmt.Println("")
	fmt.Println("Run 'go run ./cmd/rvsim' for the full CLI.")

	if len(os.Args) > 1 {
		fmt.Println("\nNote: You provided arguments. Use 'go run ./cmd/rvsim' instead.")
	}
}
