package insts_test

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/rvsim/emu"
	"github.com/sarchlab/rvsim/ext"
	"github.com/sarchlab/rvsim/feature"
	"github.com/sarchlab/rvsim/insts"
)

type wordFetcher struct {
	words   map[uint64]uint32
	pending bool
}

func (f *wordFetcher) InstFetch(addr uint64) (uint32, bool, error) {
	if f.pending {
		return 0, false, nil
	}
	return f.words[addr], true, nil
}

func newDecoder(machine string) *insts.Decoder {
	f := feature.MustParse(machine)
	table, err := ext.LoadInstructionTable(f)
	Expect(err).NotTo(HaveOccurred())
	return insts.NewDecoder(table, f)
}

func mnemonic(d *insts.Decoder, inst *insts.Instruction) string {
	e, err := d.Table().Entry(inst.Entry)
	Expect(err).NotTo(HaveOccurred())
	return e.Mnemonic
}

func expectException(err error, cause emu.Cause, tval uint64) {
	var exc *emu.Exception
	Expect(errors.As(err, &exc)).To(BeTrue())
	Expect(exc.Cause).To(Equal(cause))
	Expect(exc.Tval).To(Equal(tval))
}

var _ = Describe("Decoder", func() {
	var decoder *insts.Decoder

	BeforeEach(func() {
		decoder = newDecoder("RV64GC")
	})

	Describe("standard formats", func() {
		// add a0, a1, a0
		It("should decode R-type", func() {
			inst, err := decoder.Decode(0x00A58533)
			Expect(err).NotTo(HaveOccurred())
			Expect(mnemonic(decoder, inst)).To(Equal("add"))
			Expect(inst.Format).To(Equal(insts.FormatR))
			Expect(inst.Rd).To(Equal(uint8(10)))
			Expect(inst.Rs1).To(Equal(uint8(11)))
			Expect(inst.Rs2).To(Equal(uint8(10)))
			Expect(inst.Size).To(Equal(uint8(4)))
			Expect(inst.Cost).To(BeNumerically(">=", 1))
		})

		// addi a0, a0, -1
		It("should sign-extend I-type immediates", func() {
			inst, err := decoder.Decode(0xFFF50513)
			Expect(err).NotTo(HaveOccurred())
			Expect(mnemonic(decoder, inst)).To(Equal("addi"))
			Expect(inst.Imm).To(Equal(int64(-1)))
			Expect(inst.Rd).To(Equal(uint8(10)))
			Expect(inst.Rs1).To(Equal(uint8(10)))
		})

		// sw a1, 8(a0)
		It("should decode S-type", func() {
			inst, err := decoder.Decode(0x00B52423)
			Expect(err).NotTo(HaveOccurred())
			Expect(mnemonic(decoder, inst)).To(Equal("sw"))
			Expect(inst.Imm).To(Equal(int64(8)))
			Expect(inst.Rs1).To(Equal(uint8(10)))
			Expect(inst.Rs2).To(Equal(uint8(11)))
			Expect(inst.Class).To(Equal(insts.ClassStore))
		})

		// beq zero, zero, -4
		It("should decode B-type", func() {
			inst, err := decoder.Decode(0xFE000EE3)
			Expect(err).NotTo(HaveOccurred())
			Expect(mnemonic(decoder, inst)).To(Equal("beq"))
			Expect(inst.Imm).To(Equal(int64(-4)))
		})

		// jal ra, 8
		It("should decode J-type", func() {
			inst, err := decoder.Decode(0x008000EF)
			Expect(err).NotTo(HaveOccurred())
			Expect(mnemonic(decoder, inst)).To(Equal("jal"))
			Expect(inst.Rd).To(Equal(uint8(1)))
			Expect(inst.Imm).To(Equal(int64(8)))
		})

		It("should decode U-type", func() {
			inst, err := decoder.Decode(0x12345537) // lui a0, 0x12345
			Expect(err).NotTo(HaveOccurred())
			Expect(inst.Imm).To(Equal(int64(0x12345000)))

			inst, err = decoder.Decode(0x80000537) // lui a0, 0x80000
			Expect(err).NotTo(HaveOccurred())
			Expect(inst.Imm).To(Equal(int64(-0x80000000)))
		})

		It("should select system instructions by immediate", func() {
			inst, err := decoder.Decode(0x00000073)
			Expect(err).NotTo(HaveOccurred())
			Expect(mnemonic(decoder, inst)).To(Equal("ecall"))

			inst, err = decoder.Decode(0x00100073)
			Expect(err).NotTo(HaveOccurred())
			Expect(mnemonic(decoder, inst)).To(Equal("ebreak"))
			Expect(inst.Class).To(Equal(insts.ClassSystem))
		})

		It("should decode extension instructions only when enabled", func() {
			// mul a0, a1, a2
			inst, err := decoder.Decode(0x02C58533)
			Expect(err).NotTo(HaveOccurred())
			Expect(mnemonic(decoder, inst)).To(Equal("mul"))

			_, err = newDecoder("RV64I").Decode(0x02C58533)
			expectException(err, emu.CauseIllegalInstruction, 0x02C58533)
		})

		It("should reject RV64-only encodings on RV32", func() {
			rv32 := newDecoder("RV32I")
			_, err := rv32.Decode(0x00053503) // ld a0, 0(a0)
			expectException(err, emu.CauseIllegalInstruction, 0x00053503)

			// slli a0, a0, 32 needs shamt[5]
			_, err = rv32.Decode(0x02051513)
			Expect(err).To(HaveOccurred())
			inst, err := decoder.Decode(0x02051513)
			Expect(err).NotTo(HaveOccurred())
			Expect(inst.Imm & 0x3F).To(Equal(int64(32)))
		})

		It("should report an unknown opcode as an illegal instruction", func() {
			_, err := decoder.Decode(0x0000000B)
			expectException(err, emu.CauseIllegalInstruction, 0x0B)
		})
	})

	Describe("compressed formats", func() {
		It("should decode c.addi", func() {
			inst, err := decoder.Decode(0x0505) // c.addi a0, 1
			Expect(err).NotTo(HaveOccurred())
			Expect(mnemonic(decoder, inst)).To(Equal("c.addi"))
			Expect(inst.Size).To(Equal(uint8(2)))
			Expect(inst.Rd).To(Equal(uint8(10)))
			Expect(inst.Rs1).To(Equal(uint8(10)))
			Expect(inst.Imm).To(Equal(int64(1)))
		})

		It("should sign-extend c.li", func() {
			inst, err := decoder.Decode(0x557D) // c.li a0, -1
			Expect(err).NotTo(HaveOccurred())
			Expect(mnemonic(decoder, inst)).To(Equal("c.li"))
			Expect(inst.Imm).To(Equal(int64(-1)))
		})

		It("should map compact registers", func() {
			inst, err := decoder.Decode(0x41C8) // c.lw a0, 4(a1)
			Expect(err).NotTo(HaveOccurred())
			Expect(mnemonic(decoder, inst)).To(Equal("c.lw"))
			Expect(inst.Rd).To(Equal(uint8(10)))
			Expect(inst.Rs1).To(Equal(uint8(11)))
			Expect(inst.Imm).To(Equal(int64(4)))
		})

		DescribeTable("quadrant 2 register forms",
			func(raw uint32, mn string) {
				inst, err := decoder.Decode(raw)
				Expect(err).NotTo(HaveOccurred())
				Expect(mnemonic(decoder, inst)).To(Equal(mn))
			},
			Entry("c.jr", uint32(0x8082), "c.jr"),
			Entry("c.mv", uint32(0x852E), "c.mv"),
			Entry("c.add", uint32(0x952E), "c.add"),
			Entry("c.jalr", uint32(0x9502), "c.jalr"),
			Entry("c.ebreak", uint32(0x9002), "c.ebreak"),
		)

		It("should link c.jalr through ra", func() {
			inst, err := decoder.Decode(0x9502)
			Expect(err).NotTo(HaveOccurred())
			Expect(inst.Rd).To(Equal(emu.RegRA))
			Expect(inst.Rs1).To(Equal(uint8(10)))
		})

		It("should decode c.j offsets", func() {
			inst, err := decoder.Decode(0xA011)
			Expect(err).NotTo(HaveOccurred())
			Expect(mnemonic(decoder, inst)).To(Equal("c.j"))
			Expect(inst.Imm).To(Equal(int64(4)))

			inst, err = decoder.Decode(0xBFFD)
			Expect(err).NotTo(HaveOccurred())
			Expect(inst.Imm).To(Equal(int64(-2)))
		})

		It("should reject the all-zero word", func() {
			_, err := decoder.Decode(0x0000)
			expectException(err, emu.CauseIllegalInstruction, 0)
		})

		It("should reject compressed encodings without C", func() {
			_, err := newDecoder("RV64G").Decode(0x0505)
			expectException(err, emu.CauseIllegalInstruction, 0x0505)
		})
	})

	Describe("fields", func() {
		words := []uint32{0x00A58533, 0x40B50533, 0x02C58533, 0x00C5F533}

		It("should re-encode R-type fields to the same word", func() {
			for _, raw := range words {
				inst, err := decoder.Decode(raw)
				Expect(err).NotTo(HaveOccurred())
				re := uint32(inst.Funct7)<<25 | uint32(inst.Rs2)<<20 | uint32(inst.Rs1)<<15 |
					uint32(inst.Funct3)<<12 | uint32(inst.Rd)<<7 | uint32(inst.Opcode)
				Expect(re).To(Equal(raw))
			}
		})

		It("should re-encode I-type fields to the same word", func() {
			for _, raw := range []uint32{0xFFF50513, 0x00053503, 0x7FF5C513} {
				inst, err := decoder.Decode(raw)
				Expect(err).NotTo(HaveOccurred())
				re := uint32(inst.Imm&0xFFF)<<20 | uint32(inst.Rs1)<<15 |
					uint32(inst.Funct3)<<12 | uint32(inst.Rd)<<7 | uint32(inst.Opcode)
				Expect(re).To(Equal(raw))
			}
		})

		It("should decode the same word identically every time", func() {
			for _, raw := range append(words, 0x0505, 0x8082, 0xFE000EE3) {
				a, err := decoder.Decode(raw)
				Expect(err).NotTo(HaveOccurred())
				b, err := decoder.Decode(raw)
				Expect(err).NotTo(HaveOccurred())
				Expect(a).To(Equal(b))
			}
		})

		It("should list register operands", func() {
			inst, err := decoder.Decode(0x00B52423) // sw a1, 8(a0)
			Expect(err).NotTo(HaveOccurred())
			Expect(inst.Operands()).To(Equal([]insts.Operand{
				{Index: 10, Class: emu.RegGPR},
				{Index: 11, Class: emu.RegGPR},
			}))

			inst, err = decoder.Decode(0x00A58533)
			Expect(err).NotTo(HaveOccurred())
			ops := inst.Operands()
			Expect(ops).To(HaveLen(3))
			Expect(ops[0]).To(Equal(insts.Operand{Index: 10, Class: emu.RegGPR, Dest: true}))
		})
	})

	Describe("DecodeInst", func() {
		It("should fetch and decode", func() {
			f := &wordFetcher{words: map[uint64]uint32{0x100: 0x00A58533}}
			inst, fetched, err := decoder.DecodeInst(0x100, f)
			Expect(err).NotTo(HaveOccurred())
			Expect(fetched).To(BeTrue())
			Expect(inst.Raw).To(Equal(uint32(0x00A58533)))
		})

		It("should report a pending fetch", func() {
			inst, fetched, err := decoder.DecodeInst(0x100, &wordFetcher{pending: true})
			Expect(err).NotTo(HaveOccurred())
			Expect(fetched).To(BeFalse())
			Expect(inst).To(BeNil())
		})

		It("should raise misaligned fetch exceptions", func() {
			_, _, err := decoder.DecodeInst(0x101, &wordFetcher{})
			expectException(err, emu.CauseMisalignedFetch, 0x101)

			_, _, err = newDecoder("RV64G").DecodeInst(0x102, &wordFetcher{})
			expectException(err, emu.CauseMisalignedFetch, 0x102)
		})
	})
})
