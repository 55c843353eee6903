package emu_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/rvsim/emu"
	"github.com/sarchlab/rvsim/feature"
)

type regWrite struct {
	hart  int
	class emu.RegClass
	idx   uint16
	value uint64
}

type recordingTracer struct {
	writes []regWrite
	pcs    []uint64
}

func (t *recordingTracer) TraceRegWrite(hart int, class emu.RegClass, idx uint16, value uint64) {
	t.writes = append(t.writes, regWrite{hart, class, idx, value})
}

func (t *recordingTracer) TracePC(_ int, pc uint64) {
	t.pcs = append(t.pcs, pc)
}

type fixedCounters struct{ cycles uint64 }

func (c fixedCounters) GetCycles() uint64          { return c.cycles }
func (c fixedCounters) GetCurrentSimCycle() uint64 { return c.cycles * 2 }
func (c fixedCounters) GetHartID() int             { return 0 }

var _ = Describe("RegFile", func() {
	var regs *emu.RegFile

	BeforeEach(func() {
		regs = emu.NewRegFile(feature.MustParse("RV64GC"), 3, nil)
	})

	Context("integer registers", func() {
		It("should hardwire x0 to zero", func() {
			regs.WriteX(0, 123)
			Expect(regs.ReadX(0)).To(BeZero())
		})

		It("should read back written values", func() {
			regs.WriteX(5, 0xDEADBEEFCAFE)
			Expect(regs.ReadX(5)).To(Equal(uint64(0xDEADBEEFCAFE)))
		})

		It("should truncate to 32 bits on RV32", func() {
			r := emu.NewRegFile(feature.MustParse("RV32I"), 0, nil)
			r.WriteX(1, 0x1_FFFF_FFFF)
			Expect(r.ReadX(1)).To(Equal(uint64(0xFFFF_FFFF)))
			Expect(r.ReadXSigned(1)).To(Equal(int64(-1)))
			Expect(emu.GetX[int32](r, 1)).To(Equal(int32(-1)))
		})

		It("should sign-extend through SetX", func() {
			emu.SetX[int64](regs, 7, -2)
			Expect(regs.ReadX(7)).To(Equal(uint64(0xFFFFFFFFFFFFFFFE)))
			Expect(emu.GetX[int64](regs, 7)).To(Equal(int64(-2)))
		})
	})

	Context("program counter", func() {
		It("should advance by the instruction size", func() {
			regs.SetPC(0x1000)
			regs.AdvancePC(2)
			regs.AdvancePC(4)
			Expect(regs.PC()).To(Equal(uint64(0x1006)))
		})
	})

	Context("floating-point registers", func() {
		It("should NaN-box single-precision values", func() {
			emu.SetFP[float32](regs, 1, 1.5)
			Expect(regs.ReadFBits(1) >> 32).To(Equal(uint64(0xFFFFFFFF)))
			Expect(emu.GetFP[float32](regs, 1)).To(Equal(float32(1.5)))
		})

		It("should read an unboxed value as the canonical NaN", func() {
			regs.WriteFBits(2, 0x3FF0000000000000)
			Expect(regs.ReadF32Bits(2)).To(Equal(emu.CanonicalNaN32))
		})

		It("should hold double-precision values", func() {
			emu.SetFP[float64](regs, 3, -0.25)
			Expect(emu.GetFP[float64](regs, 3)).To(Equal(-0.25))
		})
	})

	Context("CSRs", func() {
		It("should expose fflags and frm as views of fcsr", func() {
			regs.WriteCSR(emu.CSRFcsr, 0xFF)
			Expect(regs.ReadCSR(emu.CSRFflags)).To(Equal(uint64(0x1F)))
			Expect(regs.ReadCSR(emu.CSRFrm)).To(Equal(uint64(0x7)))

			regs.WriteCSR(emu.CSRFrm, uint64(emu.RoundTowardZero))
			Expect(regs.FRM()).To(Equal(emu.RoundTowardZero))
			Expect(regs.ReadCSR(emu.CSRFcsr)).To(Equal(uint64(0x3F)))
		})

		It("should accumulate floating-point flags", func() {
			regs.RaiseFFlags(emu.FFlagNX)
			regs.RaiseFFlags(emu.FFlagDZ)
			Expect(regs.ReadCSR(emu.CSRFflags)).To(Equal(uint64(emu.FFlagNX | emu.FFlagDZ)))
		})

		It("should ignore writes to read-only CSRs", func() {
			Expect(emu.IsReadOnlyCSR(emu.CSRCycle)).To(BeTrue())
			regs.WriteCSR(emu.CSRMhartid, 9)
			Expect(regs.ReadCSR(emu.CSRMhartid)).To(Equal(uint64(3)))
		})

		It("should keep misa fixed", func() {
			misa := regs.ReadCSR(emu.CSRMisa)
			regs.WriteCSR(emu.CSRMisa, 0)
			Expect(regs.ReadCSR(emu.CSRMisa)).To(Equal(misa))
		})

		It("should read counters from the injected source", func() {
			r := emu.NewRegFile(feature.MustParse("RV64I"), 0, fixedCounters{cycles: 10})
			r.Retire()
			Expect(r.ReadCSR(emu.CSRCycle)).To(Equal(uint64(10)))
			Expect(r.ReadCSR(emu.CSRTime)).To(Equal(uint64(20)))
			Expect(r.ReadCSR(emu.CSRInstret)).To(Equal(uint64(1)))
		})

		It("should split counters on RV32", func() {
			r := emu.NewRegFile(feature.MustParse("RV32I"), 0, fixedCounters{cycles: 0x1_0000_0002})
			Expect(r.ReadCSR(emu.CSRCycle)).To(Equal(uint64(2)))
			Expect(r.ReadCSR(emu.CSRCycleh)).To(Equal(uint64(1)))
		})
	})

	Context("traps", func() {
		It("should record the exception and jump to STVEC", func() {
			regs.WriteCSR(emu.CSRStvec, 0x8001)
			regs.SetPC(0x400)
			regs.Trap(emu.IllegalInstruction(0x0B))

			Expect(regs.SEPC()).To(Equal(uint64(0x400)))
			Expect(regs.SCAUSE()).To(Equal(emu.CauseIllegalInstruction))
			Expect(regs.STVAL()).To(Equal(uint64(0x0B)))
			Expect(regs.PC()).To(Equal(uint64(0x8000)))
		})

		It("should format exceptions", func() {
			err := emu.NewException(emu.CauseLoadAccessFault, 0x10)
			Expect(err.Error()).To(Equal("load access fault (tval=0x10)"))
			Expect(emu.Cause(42).String()).To(Equal("cause 42"))
		})
	})

	Context("tracing", func() {
		It("should report register and PC writes", func() {
			t := &recordingTracer{}
			regs.SetTracer(t)
			regs.WriteX(1, 5)
			regs.WriteX(0, 5)
			regs.SetPC(0x100)

			Expect(t.writes).To(ConsistOf(regWrite{3, emu.RegGPR, 1, 5}))
			Expect(t.pcs).To(Equal([]uint64{0x100}))
		})
	})

	Context("copying", func() {
		It("should move state between harts while keeping identity", func() {
			regs.WriteX(10, 77)
			regs.SetPC(0x2000)
			clone := regs.Clone()

			other := emu.NewRegFile(feature.MustParse("RV64GC"), 1, nil)
			other.CopyFrom(clone)
			Expect(other.ReadX(10)).To(Equal(uint64(77)))
			Expect(other.PC()).To(Equal(uint64(0x2000)))
			Expect(other.HartID()).To(Equal(1))
			Expect(other.ReadCSR(emu.CSRMhartid)).To(Equal(uint64(1)))
		})

		It("should give each copy its own scoreboard", func() {
			clone := regs.Clone()
			clone.Scoreboard(emu.RegGPR).Set(4)
			Expect(regs.Scoreboard(emu.RegGPR).Any()).To(BeFalse())
			Expect(regs.Scoreboard(emu.RegCSR)).To(BeNil())
		})
	})
})

var _ = Describe("Scoreboard", func() {
	It("should set, test and clear bits", func() {
		var s emu.Scoreboard
		Expect(s.Any()).To(BeFalse())
		s.Set(31)
		Expect(s.Test(31)).To(BeTrue())
		Expect(s.Test(30)).To(BeFalse())
		s.Clear(31)
		Expect(s.Any()).To(BeFalse())
	})
})
