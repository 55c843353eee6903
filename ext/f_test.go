package ext_test

import (
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/rvsim/emu"
)

var _ = Describe("F and D extensions", func() {
	var m *machine

	BeforeEach(func() {
		m = newMachine("RV64GC")
	})

	single := func(idx uint8, v float32) { emu.SetFP[float32](m.regs, idx, v) }
	double := func(idx uint8, v float64) { emu.SetFP[float64](m.regs, idx, v) }
	flags := func() uint64 { return m.regs.ReadCSR(emu.CSRFflags) }

	Describe("arithmetic", func() {
		It("should add and NaN-box single precision", func() {
			single(11, 1.5)
			single(12, 2.25)
			m.mustExec(0x00C5F553) // fadd.s fa0, fa1, fa2
			Expect(m.regs.ReadFBits(10)).To(Equal(emu.BoxF32(math.Float32bits(3.75))))
			Expect(flags()).To(BeZero())
		})

		It("should treat an improperly boxed operand as NaN", func() {
			m.regs.WriteFBits(11, math.Float64bits(1.0))
			single(12, 1)
			m.mustExec(0x00C5F553)
			Expect(m.regs.ReadFBits(10)).To(Equal(emu.BoxF32(emu.CanonicalNaN32)))
		})

		It("should raise inexact", func() {
			double(11, 0.1)
			double(12, 0.2)
			m.mustExec(0x02C5F553) // fadd.d fa0, fa1, fa2
			Expect(emu.GetFP[float64](m.regs, 10)).To(Equal(0.1 + 0.2))
			Expect(flags()).To(Equal(uint64(emu.FFlagNX)))
		})

		It("should divide by zero to infinity", func() {
			double(11, 1)
			double(12, 0)
			m.mustExec(0x1AC5F553) // fdiv.d fa0, fa1, fa2
			Expect(math.IsInf(emu.GetFP[float64](m.regs, 10), 1)).To(BeTrue())
			Expect(flags()).To(Equal(uint64(emu.FFlagDZ)))
		})

		It("should produce the canonical NaN for an invalid square root", func() {
			double(11, -1)
			m.mustExec(0x5A05F553) // fsqrt.d fa0, fa1
			Expect(m.regs.ReadFBits(10)).To(Equal(emu.CanonicalNaN64))
			Expect(flags()).To(Equal(uint64(emu.FFlagNV)))
		})

		It("should fuse multiply-add", func() {
			double(11, 2)
			double(12, 3)
			double(13, 1)
			m.mustExec(0x6AC5F543) // fmadd.d fa0, fa1, fa2, fa3
			Expect(emu.GetFP[float64](m.regs, 10)).To(Equal(7.0))
		})

		It("should reject reserved rounding modes", func() {
			expectTrap(m.exec(0x02C5D553), emu.CauseIllegalInstruction) // fadd.d, rm=5

			m.regs.WriteCSR(emu.CSRFrm, 6)
			expectTrap(m.exec(0x02C5F553), emu.CauseIllegalInstruction)
		})
	})

	Describe("min, max and sign injection", func() {
		It("should order signed zeros", func() {
			double(11, math.Copysign(0, -1))
			double(12, 0)
			m.mustExec(0x2AC58553) // fmin.d fa0, fa1, fa2
			Expect(math.Signbit(emu.GetFP[float64](m.regs, 10))).To(BeTrue())
		})

		It("should return the number when one operand is a quiet NaN", func() {
			double(11, math.NaN())
			double(12, 1)
			m.mustExec(0x2AC58553)
			Expect(emu.GetFP[float64](m.regs, 10)).To(Equal(1.0))
			Expect(flags()).To(BeZero())
		})

		It("should negate through fsgnjn", func() {
			double(11, 2)
			m.mustExec(0x22B59553) // fsgnjn.d fa0, fa1, fa1
			Expect(emu.GetFP[float64](m.regs, 10)).To(Equal(-2.0))
		})
	})

	Describe("comparisons", func() {
		It("should signal on ordered comparison with NaN", func() {
			single(11, float32(math.NaN()))
			single(12, 1)
			m.mustExec(0xA0C59553) // flt.s a0, fa1, fa2
			Expect(m.regs.ReadX(10)).To(BeZero())
			Expect(flags()).To(Equal(uint64(emu.FFlagNV)))
		})

		It("should stay quiet on equality with a quiet NaN", func() {
			single(11, float32(math.NaN()))
			single(12, 1)
			m.mustExec(0xA0C5A553) // feq.s a0, fa1, fa2
			Expect(m.regs.ReadX(10)).To(BeZero())
			Expect(flags()).To(BeZero())
		})

		It("should classify values", func() {
			double(11, math.Inf(-1))
			m.mustExec(0xE2059553) // fclass.d a0, fa1
			Expect(m.regs.ReadX(10)).To(Equal(uint64(1)))

			double(11, 0)
			m.mustExec(0xE2059553)
			Expect(m.regs.ReadX(10)).To(Equal(uint64(1 << 4)))
		})
	})

	Describe("conversions and moves", func() {
		It("should truncate toward zero", func() {
			single(11, -2.5)
			m.mustExec(0xC0059553) // fcvt.w.s a0, fa1, rtz
			Expect(m.regs.ReadX(10)).To(Equal(uint64(0xFFFFFFFFFFFFFFFE)))
			Expect(flags()).To(Equal(uint64(emu.FFlagNX)))
		})

		It("should saturate out-of-range conversions", func() {
			single(11, 3e9)
			m.mustExec(0xC0059553)
			Expect(m.regs.ReadX(10)).To(Equal(uint64(0x7FFFFFFF)))
			Expect(flags()).To(Equal(uint64(emu.FFlagNV)))
		})

		It("should convert signed longs", func() {
			m.regs.WriteX(11, uint64(0xFFFFFFFFFFFFFFFD))
			m.mustExec(0xD225F553) // fcvt.d.l fa0, a1
			Expect(emu.GetFP[float64](m.regs, 10)).To(Equal(-3.0))
		})

		It("should sign-extend fmv.x.w", func() {
			single(11, -1)
			m.mustExec(0xE0058553) // fmv.x.w a0, fa1
			Expect(m.regs.ReadX(10)).To(Equal(uint64(0xFFFFFFFFBF800000)))
		})
	})

	Describe("memory", func() {
		BeforeEach(func() {
			m.regs.WriteX(10, 0x1000)
		})

		It("should box loaded singles", func() {
			m.memory.Write32(0x1000, math.Float32bits(1.5))
			m.mustExec(0x00052507) // flw fa0, 0(a0)
			Expect(m.last.Deferred).To(BeTrue())
			Expect(m.regs.ReadFBits(10)).To(Equal(emu.BoxF32(math.Float32bits(1.5))))
		})

		It("should load doubles", func() {
			m.memory.Write64(0x1000, math.Float64bits(-4.5))
			m.mustExec(0x00053507) // fld fa0, 0(a0)
			Expect(emu.GetFP[float64](m.regs, 10)).To(Equal(-4.5))
		})

		It("should store the low word of a single", func() {
			single(11, 2)
			m.mustExec(0x00B52027) // fsw fa1, 0(a0)
			Expect(m.memory.Read64(0x1000)).To(Equal(uint64(math.Float32bits(2))))
		})
	})
})

var _ = Describe("C extension", func() {
	var m *machine

	BeforeEach(func() {
		m = newMachine("RV64GC")
	})

	It("should advance by two bytes", func() {
		m.regs.WriteX(10, 41)
		m.mustExec(0x0505) // c.addi a0, 1
		Expect(m.regs.ReadX(10)).To(Equal(uint64(42)))
		Expect(m.regs.PC()).To(Equal(uint64(0x102)))
	})

	It("should link c.jalr to the next halfword", func() {
		m.regs.WriteX(10, 0x300)
		m.mustExec(0x9502) // c.jalr a0
		Expect(m.regs.PC()).To(Equal(uint64(0x300)))
		Expect(m.regs.ReadX(emu.RegRA)).To(Equal(uint64(0x102)))
	})

	It("should load through compact registers", func() {
		m.memory.Write32(0x1004, 0x80000000)
		m.regs.WriteX(11, 0x1000)
		m.mustExec(0x41C8) // c.lw a0, 4(a1)
		Expect(m.regs.ReadX(10)).To(Equal(uint64(0xFFFFFFFF80000000)))
	})

	It("should branch on zero", func() {
		m.regs.WriteX(8, 0)
		m.mustExec(0xC011) // c.beqz s0, 4
		Expect(m.regs.PC()).To(Equal(uint64(0x104)))
	})

	It("should raise a breakpoint on c.ebreak", func() {
		expectTrap(m.exec(0x9002), emu.CauseBreakpoint)
	})
})
