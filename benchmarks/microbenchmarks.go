package benchmarks

import (
	"github.com/sarchlab/rvsim/emu"
)

const (
	regT0 uint8 = 5
	regT1 uint8 = 6
	regT2 uint8 = 7
	regS1 uint8 = 9
	regT3 uint8 = 28
	regT4 uint8 = 29
)

// GetMicrobenchmarks returns the standard timing microbenchmarks. Each
// program exits through the exit system call with a0 as its exit code.
func GetMicrobenchmarks() []Benchmark {
	return []Benchmark{
		arithmeticIndependent(),
		dependencyChain(),
		memorySequential(),
		functionCalls(),
		countedLoop(),
		multiplyDivide(),
	}
}

// Independent ALU operations spread over five registers.
func arithmeticIndependent() Benchmark {
	regs := []uint8{regT0, regT1, regT2, regT3, regT4}
	words := make([]uint32, 0, 22)
	for i := 0; i < 4; i++ {
		for _, r := range regs {
			words = append(words, ADDI(r, r, 1))
		}
	}
	words = append(words, ADDI(emu.RegA0, regT0, 0), ECALL())

	return Benchmark{
		Name:         "arithmetic_independent",
		Description:  "20 independent ADDIs over 5 registers - measures issue throughput",
		Program:      BuildProgram(words...),
		ExpectedExit: 4,
	}
}

// Every instruction depends on the previous one.
func dependencyChain() Benchmark {
	words := make([]uint32, 0, 21)
	for i := 0; i < 20; i++ {
		words = append(words, ADDI(emu.RegA0, emu.RegA0, 1))
	}
	words = append(words, ECALL())

	return Benchmark{
		Name:         "dependency_chain",
		Description:  "20 dependent ADDIs - measures back-to-back hazard cost",
		Program:      BuildProgram(words...),
		ExpectedExit: 20,
	}
}

// Store/load pairs to consecutive doublewords.
func memorySequential() Benchmark {
	words := make([]uint32, 0, 21)
	for i := int32(0); i < 10; i++ {
		words = append(words, SD(emu.RegA0, regS1, 8*i), LD(emu.RegA0, regS1, 8*i))
	}
	words = append(words, ECALL())

	return Benchmark{
		Name:        "memory_sequential",
		Description: "10 store/load pairs to sequential addresses - measures memory latency",
		Setup: func(regs *emu.RegFile, _ *emu.Memory) {
			regs.WriteX(regS1, 0x8000)
			regs.WriteX(emu.RegA0, 42)
		},
		Program:      BuildProgram(words...),
		ExpectedExit: 42,
	}
}

// Five calls to a function that increments a0.
func functionCalls() Benchmark {
	return Benchmark{
		Name:        "function_calls",
		Description: "5 JAL/RET pairs - measures call overhead",
		Program: BuildProgram(
			JAL(emu.RegRA, 24),
			JAL(emu.RegRA, 20),
			JAL(emu.RegRA, 16),
			JAL(emu.RegRA, 12),
			JAL(emu.RegRA, 8),
			ECALL(),

			ADDI(emu.RegA0, emu.RegA0, 1),
			RET(),
		),
		ExpectedExit: 5,
	}
}

// A loop of ten iterations closed by a backward branch.
func countedLoop() Benchmark {
	return Benchmark{
		Name:        "counted_loop",
		Description: "10 iterations of a 3-instruction loop - measures branch overhead",
		Setup: func(regs *emu.RegFile, _ *emu.Memory) {
			regs.WriteX(regT0, 10)
		},
		Program: BuildProgram(
			ADDI(emu.RegA0, emu.RegA0, 2),
			ADDI(regT0, regT0, -1),
			BNE(regT0, 0, -8),
			ECALL(),
		),
		ExpectedExit: 20,
	}
}

// A multiply feeding a divide.
func multiplyDivide() Benchmark {
	return Benchmark{
		Name:        "multiply_divide",
		Description: "MUL followed by a dependent DIV - measures multi-cycle execution",
		Setup: func(regs *emu.RegFile, _ *emu.Memory) {
			regs.WriteX(regT0, 6)
			regs.WriteX(regT1, 7)
		},
		Program: BuildProgram(
			MUL(emu.RegA0, regT0, regT1),
			DIV(emu.RegA0, emu.RegA0, regT0),
			ADD(emu.RegA0, emu.RegA0, 0),
			ECALL(),
		),
		ExpectedExit: 7,
	}
}
