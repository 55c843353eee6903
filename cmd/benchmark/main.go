// Command benchmark runs the rvsim timing microbenchmark harness.
//
// Usage:
//
//	go run ./cmd/benchmark [flags]
//
// Flags:
//
//	-csv        Output results in CSV format (default: human-readable)
//	-json       Output results as JSON
//	-machine    ISA string of the simulated core
//	-config     Timing configuration JSON file
//	-no-icache  Disable instruction cache simulation
//	-no-dcache  Disable data cache simulation
//
// Example:
//
//	# Output CSV for spreadsheet comparison
//	go run ./cmd/benchmark -csv > results.csv
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/sarchlab/rvsim/benchmarks"
	"github.com/sarchlab/rvsim/timing/latency"
)

func main() {
	csvOutput := flag.Bool("csv", false, "Output results in CSV format")
	jsonOutput := flag.Bool("json", false, "Output results as JSON")
	machine := flag.String("machine", "RV64IMAC", "ISA string of the simulated core")
	configPath := flag.String("config", "", "Path to timing configuration JSON file")
	noICache := flag.Bool("no-icache", false, "Disable instruction cache simulation")
	noDCache := flag.Bool("no-dcache", false, "Disable data cache simulation")
	flag.Parse()

	config := benchmarks.DefaultConfig()
	config.Machine = *machine
	config.EnableICache = !*noICache
	config.EnableDCache = !*noDCache
	config.Output = os.Stdout

	if *configPath != "" {
		timing, err := latency.LoadConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading timing config: %v\n", err)
			os.Exit(1)
		}
		config.Timing = timing
	}

	harness := benchmarks.NewHarness(config)
	harness.AddBenchmarks(benchmarks.GetMicrobenchmarks())

	results := harness.RunAll()

	switch {
	case *jsonOutput:
		if err := harness.PrintJSON(results); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing results: %v\n", err)
			os.Exit(1)
		}
	case *csvOutput:
		harness.PrintCSV(results)
	default:
		fmt.Println("RVSim Timing Benchmark Harness")
		fmt.Println("==============================")
		fmt.Printf("Machine: %s\n", config.Machine)
		fmt.Printf("I-Cache: %v\n", config.EnableICache)
		fmt.Printf("D-Cache: %v\n", config.EnableDCache)
		fmt.Println("")
		harness.PrintResults(results)
	}

	failed := 0
	for i, bench := range harness.Benchmarks() {
		if !results[i].Passed(bench) {
			fmt.Fprintf(os.Stderr, "%s: exit code %d, want %d\n",
				bench.Name, results[i].ExitCode, bench.ExpectedExit)
			failed++
		}
	}
	if failed > 0 {
		os.Exit(1)
	}
}
