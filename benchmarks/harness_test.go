package benchmarks_test

import (
	"bytes"
	"encoding/json"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/rvsim/benchmarks"
)

var _ = Describe("Encoders", func() {
	It("should encode I-type instructions", func() {
		Expect(benchmarks.ADDI(10, 10, -1)).To(Equal(uint32(0xFFF50513)))
	})

	It("should encode R-type instructions", func() {
		Expect(benchmarks.ADD(10, 11, 10)).To(Equal(uint32(0x00A58533)))
		Expect(benchmarks.MUL(10, 11, 12)).To(Equal(uint32(0x02C58533)))
	})

	It("should encode stores and loads", func() {
		Expect(benchmarks.SD(11, 10, 8)).To(Equal(uint32(0x00B53423)))
		Expect(benchmarks.LD(10, 10, 0)).To(Equal(uint32(0x00053503)))
	})

	It("should encode control transfers", func() {
		Expect(benchmarks.JAL(1, 8)).To(Equal(uint32(0x008000EF)))
		Expect(benchmarks.EncodeB(0, 0, 0, -4)).To(Equal(uint32(0xFE000EE3)))
		Expect(benchmarks.RET()).To(Equal(uint32(0x00008067)))
		Expect(benchmarks.ECALL()).To(Equal(uint32(0x00000073)))
	})

	It("should lay out words little-endian", func() {
		Expect(benchmarks.BuildProgram(0x00000073, 0x00A58533)).To(Equal(
			[]byte{0x73, 0, 0, 0, 0x33, 0x85, 0xA5, 0x00}))
	})
})

var _ = Describe("Harness", func() {
	var (
		out     *bytes.Buffer
		harness *benchmarks.Harness
	)

	BeforeEach(func() {
		out = new(bytes.Buffer)
		config := benchmarks.DefaultConfig()
		config.Output = out
		harness = benchmarks.NewHarness(config)
	})

	It("should run every microbenchmark to its expected exit code", func() {
		harness.AddBenchmarks(benchmarks.GetMicrobenchmarks())
		results := harness.RunAll()

		Expect(results).To(HaveLen(len(harness.Benchmarks())))
		for i, bench := range harness.Benchmarks() {
			r := results[i]
			Expect(r.Error).To(BeEmpty(), bench.Name)
			Expect(r.Exited).To(BeTrue(), bench.Name)
			Expect(r.ExitCode).To(Equal(bench.ExpectedExit), bench.Name)
			Expect(r.Passed(bench)).To(BeTrue())
			Expect(r.InstructionsRetired).To(BeNumerically(">", 0))
			Expect(r.CPI).To(BeNumerically(">=", 1.0))
		}
	})

	It("should report a bad machine string as an error", func() {
		config := benchmarks.DefaultConfig()
		config.Machine = "XYZ"
		config.Output = out
		h := benchmarks.NewHarness(config)

		r := h.Run(benchmarks.GetMicrobenchmarks()[0])
		Expect(r.Error).NotTo(BeEmpty())
		Expect(r.Exited).To(BeFalse())
	})

	It("should stop at the cycle limit", func() {
		config := benchmarks.DefaultConfig()
		config.MaxCycles = 3
		config.Output = out
		h := benchmarks.NewHarness(config)

		bench := benchmarks.GetMicrobenchmarks()[1]
		r := h.Run(bench)
		Expect(r.Exited).To(BeFalse())
		Expect(r.Passed(bench)).To(BeFalse())
		Expect(r.SimulatedCycles).To(BeNumerically("<=", 3))
	})

	Describe("Output", func() {
		var results []benchmarks.BenchmarkResult

		BeforeEach(func() {
			results = []benchmarks.BenchmarkResult{{
				Name:                "sample",
				SimulatedCycles:     30,
				InstructionsRetired: 10,
				CPI:                 3,
				ExitCode:            7,
				Exited:              true,
			}}
		})

		It("should print CSV rows under a header", func() {
			harness.PrintCSV(results)
			lines := strings.Split(strings.TrimSpace(out.String()), "\n")
			Expect(lines).To(HaveLen(2))
			Expect(lines[0]).To(HavePrefix("name,cycles,instructions,cpi"))
			Expect(lines[1]).To(HavePrefix("sample,30,10,3.000,"))
			Expect(lines[1]).To(HaveSuffix(",7"))
		})

		It("should print JSON", func() {
			Expect(harness.PrintJSON(results)).To(Succeed())

			var decoded []map[string]interface{}
			Expect(json.Unmarshal(out.Bytes(), &decoded)).To(Succeed())
			Expect(decoded).To(HaveLen(1))
			Expect(decoded[0]["name"]).To(Equal("sample"))
			Expect(decoded[0]["simulated_cycles"]).To(BeNumerically("==", 30))
		})

		It("should print a readable report", func() {
			harness.PrintResults(results)
			Expect(out.String()).To(ContainSubstring("Benchmark: sample"))
			Expect(out.String()).To(ContainSubstring("CPI:                  3.000"))
		})
	})
})
