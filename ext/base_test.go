package ext_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/rvsim/emu"
)

var _ = Describe("Base integer instructions", func() {
	var m *machine

	BeforeEach(func() {
		m = newMachine("RV64GC")
	})

	It("should add and advance the PC", func() {
		m.regs.WriteX(10, 3)
		m.regs.WriteX(11, 7)
		m.mustExec(0x00A58533) // add a0, a1, a0
		Expect(m.regs.ReadX(10)).To(Equal(uint64(10)))
		Expect(m.regs.PC()).To(Equal(uint64(0x104)))
	})

	It("should wrap subtraction", func() {
		m.regs.WriteX(10, 0)
		m.regs.WriteX(11, 1)
		m.mustExec(0x40B50533) // sub a0, a0, a1
		Expect(m.regs.ReadX(10)).To(Equal(uint64(0xFFFFFFFFFFFFFFFF)))
	})

	It("should wrap to 32 bits on RV32", func() {
		m = newMachine("RV32I")
		m.mustExec(0xFFF50513) // addi a0, a0, -1
		Expect(m.regs.ReadX(10)).To(Equal(uint64(0xFFFFFFFF)))
		Expect(m.regs.ReadXSigned(10)).To(Equal(int64(-1)))
	})

	It("should compare signed and unsigned", func() {
		m.regs.WriteX(11, 0xFFFFFFFFFFFFFFFF)
		m.regs.WriteX(12, 1)
		m.mustExec(0x00C5A533) // slt a0, a1, a2
		Expect(m.regs.ReadX(10)).To(Equal(uint64(1)))
		m.mustExec(0x00C5B533) // sltu a0, a1, a2
		Expect(m.regs.ReadX(10)).To(BeZero())
	})

	It("should shift arithmetically", func() {
		m.regs.WriteX(11, 0x8000000000000000)
		m.regs.WriteX(12, 4)
		m.mustExec(0x40C5D533) // sra a0, a1, a2
		Expect(m.regs.ReadX(10)).To(Equal(uint64(0xF800000000000000)))
	})

	It("should sign-extend word results", func() {
		m.regs.WriteX(10, 0x7FFFFFFF)
		m.mustExec(0x0015051B) // addiw a0, a0, 1
		Expect(m.regs.ReadX(10)).To(Equal(uint64(0xFFFFFFFF80000000)))
	})

	It("should add the PC in auipc", func() {
		m.mustExec(0x00001517) // auipc a0, 1
		Expect(m.regs.ReadX(10)).To(Equal(uint64(0x1100)))
	})

	Describe("control transfer", func() {
		It("should take a branch", func() {
			m.mustExec(0xFE000EE3) // beq zero, zero, -4
			Expect(m.regs.PC()).To(Equal(uint64(0xFC)))
		})

		It("should fall through an untaken branch", func() {
			m.mustExec(0xFE001EE3) // bne zero, zero, -4
			Expect(m.regs.PC()).To(Equal(uint64(0x104)))
		})

		It("should link on jal", func() {
			m.mustExec(0x008000EF) // jal ra, 8
			Expect(m.regs.PC()).To(Equal(uint64(0x108)))
			Expect(m.regs.ReadX(emu.RegRA)).To(Equal(uint64(0x104)))
		})

		It("should clear bit 0 of a jalr target", func() {
			m.regs.WriteX(10, 0x201)
			m.mustExec(0x000500E7) // jalr ra, 0(a0)
			Expect(m.regs.PC()).To(Equal(uint64(0x200)))
			Expect(m.regs.ReadX(emu.RegRA)).To(Equal(uint64(0x104)))
		})

		It("should trap on a misaligned target without C", func() {
			m = newMachine("RV64G")
			m.regs.WriteX(10, 0x202)
			exc := expectTrap(m.exec(0x000500E7), emu.CauseMisalignedFetch)
			Expect(exc.Tval).To(Equal(uint64(0x202)))
			Expect(m.regs.PC()).To(Equal(uint64(0x100)))
			Expect(m.regs.ReadX(emu.RegRA)).To(BeZero())
		})
	})

	Describe("memory", func() {
		It("should sign-extend loads and defer the write", func() {
			m.memory.Write32(0x1000, 0xFFFFFFFF)
			m.regs.WriteX(10, 0x1000)
			m.mustExec(0x00052583) // lw a1, 0(a0)
			Expect(m.last.Deferred).To(BeTrue())
			Expect(m.regs.ReadX(11)).To(Equal(uint64(0xFFFFFFFFFFFFFFFF)))
		})

		It("should store doublewords", func() {
			m.regs.WriteX(10, 0x1000)
			m.regs.WriteX(11, 0x0123456789ABCDEF)
			m.mustExec(0x00B53423) // sd a1, 8(a0)
			Expect(m.memory.Read64(0x1008)).To(Equal(uint64(0x0123456789ABCDEF)))
		})

		It("should report access faults", func() {
			m.regs.WriteX(10, 1<<30)
			expectTrap(m.exec(0x00052583), emu.CauseLoadAccessFault)
		})
	})

	Describe("system", func() {
		It("should hand ecall to the environment", func() {
			m.mustExec(0x00000073)
			Expect(m.system.ecalls).To(Equal(1))
			Expect(m.regs.PC()).To(Equal(uint64(0x104)))
		})

		It("should raise a breakpoint on ebreak", func() {
			exc := expectTrap(m.exec(0x00100073), emu.CauseBreakpoint)
			Expect(exc.Tval).To(Equal(uint64(0x100)))
			Expect(m.regs.PC()).To(Equal(uint64(0x100)))
		})

		It("should return to SEPC on sret", func() {
			m.regs.WriteCSR(emu.CSRSepc, 0x400)
			m.mustExec(0x10200073)
			Expect(m.regs.PC()).To(Equal(uint64(0x400)))
		})

		It("should synchronize the instruction stream on fence.i", func() {
			m.mustExec(0x0000100F)
			Expect(m.system.fenceIs).To(Equal(1))
		})
	})
})

var _ = Describe("Zicsr", func() {
	var m *machine

	BeforeEach(func() {
		m = newMachine("RV64GC")
	})

	It("should swap a CSR", func() {
		m.regs.WriteCSR(emu.CSRSscratch, 5)
		m.regs.WriteX(11, 9)
		m.mustExec(0x14059573) // csrrw a0, sscratch, a1
		Expect(m.regs.ReadX(10)).To(Equal(uint64(5)))
		Expect(m.regs.ReadCSR(emu.CSRSscratch)).To(Equal(uint64(9)))
	})

	It("should write immediates", func() {
		m.mustExec(0x0021D573) // csrrwi a0, frm, 3
		Expect(m.regs.FRM()).To(Equal(emu.RoundUp))
	})

	It("should read counters", func() {
		m.regs.Retire()
		m.mustExec(0xC0002573) // csrrs a0, cycle, zero
		Expect(m.regs.ReadX(10)).To(Equal(uint64(1)))
	})

	It("should reject the high counter halves on RV64", func() {
		exc := expectTrap(m.exec(0xC8002573), emu.CauseIllegalInstruction) // csrrs a0, cycleh, zero
		Expect(exc.Tval).To(Equal(uint64(0xC8002573)))
		Expect(m.regs.CSRExists(emu.CSRCycleh)).To(BeFalse())
		Expect(m.regs.ReadCSR(emu.CSRInstreth)).To(BeZero())
	})

	It("should read the high counter halves on RV32", func() {
		rv32 := newMachine("RV32GC")
		for i := 0; i < 3; i++ {
			rv32.regs.Retire()
		}
		rv32.mustExec(0xC8202573) // csrrs a0, instreth, zero
		Expect(rv32.regs.ReadX(10)).To(BeZero())
		rv32.mustExec(0xC0202573) // csrrs a0, instret, zero
		Expect(rv32.regs.ReadX(10)).To(Equal(uint64(3)))
	})

	It("should reject writes to read-only CSRs", func() {
		exc := expectTrap(m.exec(0xC0059573), emu.CauseIllegalInstruction) // csrrw a0, cycle, a1
		Expect(exc.Tval).To(Equal(uint64(0xC0059573)))
	})
})
