package ext_test

import (
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/rvsim/emu"
)

var _ = Describe("M extension", func() {
	var m *machine

	BeforeEach(func() {
		m = newMachine("RV64GC")
	})

	operands := func(a, b uint64) {
		m.regs.WriteX(11, a)
		m.regs.WriteX(12, b)
	}

	DescribeTable("results",
		func(raw uint32, a, b, want uint64) {
			operands(a, b)
			m.mustExec(raw)
			Expect(m.regs.ReadX(10)).To(Equal(want))
		},
		Entry("mul", uint32(0x02C58533), uint64(6), uint64(7), uint64(42)),
		Entry("mulh of -1 * -1", uint32(0x02C59533), uint64(math.MaxUint64), uint64(math.MaxUint64), uint64(0)),
		Entry("mulhsu of -1 * 2", uint32(0x02C5A533), uint64(math.MaxUint64), uint64(2), uint64(math.MaxUint64)),
		Entry("mulhu of max * max", uint32(0x02C5B533), uint64(math.MaxUint64), uint64(math.MaxUint64), uint64(math.MaxUint64-1)),
		Entry("div", uint32(0x02C5C533), uint64(0xFFFFFFFFFFFFFFF9), uint64(2), uint64(0xFFFFFFFFFFFFFFFD)),
		Entry("div by zero", uint32(0x02C5C533), uint64(5), uint64(0), uint64(math.MaxUint64)),
		Entry("div overflow", uint32(0x02C5C533), uint64(1)<<63, uint64(math.MaxUint64), uint64(1)<<63),
		Entry("divu by zero", uint32(0x02C5D533), uint64(5), uint64(0), uint64(math.MaxUint64)),
		Entry("rem by zero", uint32(0x02C5E533), uint64(5), uint64(0), uint64(5)),
		Entry("rem overflow", uint32(0x02C5E533), uint64(1)<<63, uint64(math.MaxUint64), uint64(0)),
		Entry("remu", uint32(0x02C5F533), uint64(7), uint64(3), uint64(1)),
	)

	It("should compute the high word of a product on RV32", func() {
		m = newMachine("RV32IM")
		operands(0x80000000, 2)
		m.mustExec(0x02C59533) // mulh a0, a1, a2
		Expect(m.regs.ReadX(10)).To(Equal(uint64(0xFFFFFFFF)))
	})

	It("should return the dividend on RV32 overflow", func() {
		m = newMachine("RV32IM")
		operands(0x80000000, 0xFFFFFFFF)
		m.mustExec(0x02C5C533) // div a0, a1, a2
		Expect(m.regs.ReadX(10)).To(Equal(uint64(0x80000000)))
	})

	It("should sign-extend word division", func() {
		operands(0xFFFFFFFF_FFFFFFF8, 0x1_00000002)
		m.mustExec(0x02C5C53B) // divw a0, a1, a2
		Expect(m.regs.ReadX(10)).To(Equal(uint64(0xFFFFFFFFFFFFFFFC)))
	})
})

var _ = Describe("A extension", func() {
	var m *machine

	BeforeEach(func() {
		m = newMachine("RV64GC")
		m.regs.WriteX(11, 0x1000)
	})

	It("should return the old value of an AMO", func() {
		m.memory.Write32(0x1000, 5)
		m.regs.WriteX(12, 3)
		m.mustExec(0x00C5A52F) // amoadd.w a0, a2, (a1)
		Expect(m.regs.ReadX(10)).To(Equal(uint64(5)))
		Expect(m.memory.Read32(0x1000)).To(Equal(uint32(8)))
	})

	It("should compare AMO operands as signed words", func() {
		m.memory.Write32(0x1000, 0xFFFFFFFB)
		m.regs.WriteX(12, 3)
		m.mustExec(0xA0C5A52F) // amomax.w a0, a2, (a1)
		Expect(m.regs.ReadX(10)).To(Equal(uint64(0xFFFFFFFFFFFFFFFB)))
		Expect(m.memory.Read32(0x1000)).To(Equal(uint32(3)))
	})

	It("should pair lr and sc", func() {
		m.memory.Write32(0x1000, 1)
		m.regs.WriteX(12, 9)
		m.mustExec(0x1005A52F) // lr.w a0, (a1)
		Expect(m.regs.ReadX(10)).To(Equal(uint64(1)))

		m.mustExec(0x18C5A52F) // sc.w a0, a2, (a1)
		Expect(m.regs.ReadX(10)).To(BeZero())
		Expect(m.memory.Read32(0x1000)).To(Equal(uint32(9)))

		m.regs.WriteX(12, 4)
		m.mustExec(0x18C5A52F)
		Expect(m.regs.ReadX(10)).To(Equal(uint64(1)))
		Expect(m.memory.Read32(0x1000)).To(Equal(uint32(9)))
	})

	It("should trap on misaligned addresses", func() {
		m.regs.WriteX(11, 0x1002)
		expectTrap(m.exec(0x00C5A52F), emu.CauseMisalignedStore)
		expectTrap(m.exec(0x1005A52F), emu.CauseMisalignedLoad)
	})
})
