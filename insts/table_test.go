package insts_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/rvsim/emu"
	"github.com/sarchlab/rvsim/ext"
	"github.com/sarchlab/rvsim/feature"
	"github.com/sarchlab/rvsim/insts"
)

func nop(env *insts.Env, inst *insts.Instruction) error {
	env.Regs.AdvancePC(inst.Size)
	return nil
}

func rEntry(mn string, f3, f7 uint8) insts.Entry {
	return insts.Entry{
		Mnemonic: mn, Format: insts.FormatR, Opcode: insts.OpcodeOp,
		Funct3: f3, Funct7: f7,
		Rd: emu.RegGPR, Rs1: emu.RegGPR, Rs2: emu.RegGPR,
		Exec: nop,
	}
}

type testExtension struct {
	name    string
	enabled bool
	entries []insts.Entry
}

func (e testExtension) Name() string                   { return e.name }
func (e testExtension) Enabled(*feature.Features) bool { return e.enabled }
func (e testExtension) Table() []insts.Entry           { return e.entries }

var _ = Describe("Table", func() {
	var table *insts.Table

	BeforeEach(func() {
		table = insts.NewTable()
	})

	It("should look entries up by encoding key", func() {
		Expect(table.Add(rEntry("add", 0, 0), rEntry("sub", 0, 0x20))).To(Succeed())

		sub := rEntry("sub", 0, 0x20)
		e, idx, ok := table.Lookup(sub.Key())
		Expect(ok).To(BeTrue())
		Expect(idx).To(Equal(1))
		Expect(e.Mnemonic).To(Equal("sub"))

		_, _, ok = table.Lookup(rEntry("x", 7, 0x7F).Key())
		Expect(ok).To(BeFalse())
	})

	It("should reject colliding encodings atomically", func() {
		Expect(table.Add(rEntry("add", 0, 0))).To(Succeed())

		err := table.Add(rEntry("xor", 4, 0), rEntry("add2", 0, 0))
		Expect(err).To(MatchError(insts.ErrDuplicateEncoding))
		Expect(err.Error()).To(ContainSubstring("add2 collides with add"))
		Expect(table.Len()).To(Equal(1))
		_, _, ok := table.Find("xor")
		Expect(ok).To(BeFalse())
	})

	It("should reject collisions inside one batch", func() {
		err := table.Add(rEntry("a", 1, 0), rEntry("b", 1, 0))
		Expect(err).To(MatchError(insts.ErrDuplicateEncoding))
		Expect(table.Len()).To(BeZero())
	})

	It("should reject entries without semantics", func() {
		e := rEntry("add", 0, 0)
		e.Exec = nil
		Expect(table.Add(e)).To(MatchError(ContainSubstring("missing semantics")))
	})

	It("should bound Entry indexes", func() {
		Expect(table.Add(rEntry("add", 0, 0))).To(Succeed())
		_, err := table.Entry(1)
		Expect(err).To(HaveOccurred())
		_, err = table.Entry(-1)
		Expect(err).To(HaveOccurred())
		e, err := table.Entry(0)
		Expect(err).NotTo(HaveOccurred())
		Expect(e.Mnemonic).To(Equal("add"))
	})

	It("should only merge enabled extensions", func() {
		f := feature.MustParse("RV64I")
		merged, err := table.EnableExt(testExtension{"X", false, []insts.Entry{rEntry("a", 0, 0)}}, f)
		Expect(err).NotTo(HaveOccurred())
		Expect(merged).To(BeFalse())

		merged, err = table.EnableExt(testExtension{"Y", true, []insts.Entry{rEntry("b", 0, 0)}}, f)
		Expect(err).NotTo(HaveOccurred())
		Expect(merged).To(BeTrue())
		Expect(table.Extensions()).To(Equal([]string{"Y"}))

		_, err = table.EnableExt(testExtension{"Z", true, []insts.Entry{rEntry("c", 0, 0)}}, f)
		Expect(err).To(MatchError(ContainSubstring("enable Z")))
		Expect(table.Extensions()).To(Equal([]string{"Y"}))
	})

	DescribeTable("full configurations",
		func(machine string) {
			table, err := ext.LoadInstructionTable(feature.MustParse(machine))
			Expect(err).NotTo(HaveOccurred())

			for i := 0; i < table.Len(); i++ {
				e, err := table.Entry(i)
				Expect(err).NotTo(HaveOccurred())
				_, idx, ok := table.Lookup(e.Key())
				Expect(ok).To(BeTrue(), e.Mnemonic)
				Expect(idx).To(Equal(i), e.Mnemonic)
			}
		},
		Entry("RV32I", "RV32I"),
		Entry("RV64I", "RV64I"),
		Entry("RV32GC", "RV32GC"),
		Entry("RV64GC", "RV64GC"),
	)
})

var _ = Describe("Format", func() {
	It("should name formats", func() {
		Expect(insts.FormatR4.String()).To(Equal("R4"))
		Expect(insts.FormatCJ.String()).To(Equal("CJ"))
		Expect(insts.Format(99).String()).To(Equal("invalid"))
		Expect(insts.FormatCR.IsCompressed()).To(BeTrue())
		Expect(insts.FormatJ.IsCompressed()).To(BeFalse())
	})

	It("should classify memory instructions", func() {
		Expect(insts.ClassAtomic.IsMemory()).To(BeTrue())
		Expect(insts.ClassFence.IsMemory()).To(BeFalse())
	})
})
