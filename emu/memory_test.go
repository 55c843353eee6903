package emu_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/rvsim/emu"
)

var _ = Describe("Memory", func() {
	var memory *emu.Memory

	BeforeEach(func() {
		memory = emu.NewMemoryWithCapacity(64 * 1024)
	})

	It("should store little-endian values", func() {
		memory.Write32(0x100, 0x11223344)
		Expect(memory.Read16(0x100)).To(Equal(uint16(0x3344)))
		Expect(memory.ReadVal(0x103, 1)).To(Equal(uint64(0x11)))
	})

	It("should write the low bytes of a value", func() {
		Expect(memory.WriteVal(0x200, 2, 0xAABBCCDD)).To(Succeed())
		Expect(memory.Read32(0x200)).To(Equal(uint32(0xCCDD)))
	})

	It("should reject unsupported sizes", func() {
		_, err := memory.ReadVal(0, 3)
		Expect(err).To(HaveOccurred())
		Expect(memory.WriteVal(0, 5, 0)).NotTo(Succeed())
	})

	It("should reject out-of-range accesses", func() {
		Expect(memory.Contains(64*1024-4, 4)).To(BeTrue())
		Expect(memory.Contains(64*1024-2, 4)).To(BeFalse())

		_, err := memory.ReadBytes(64*1024-2, 4)
		Expect(err).To(MatchError(ContainSubstring("out of range")))
		Expect(func() { memory.Read64(1 << 20) }).To(Panic())
	})

	It("should load program images", func() {
		Expect(memory.LoadProgram(0x10, []byte{1, 2, 3, 4})).To(Succeed())
		Expect(memory.Read32(0x10)).To(Equal(uint32(0x04030201)))
	})
})

var _ = Describe("LoadStoreQueue", func() {
	var q *emu.LoadStoreQueue

	BeforeEach(func() {
		q = emu.NewLoadStoreQueue()
	})

	It("should key loads by destination register and hart", func() {
		a := &emu.MemReq{DestReg: 5, Class: emu.RegGPR, Hart: 0, Op: emu.MemOpLoad}
		b := &emu.MemReq{DestReg: 5, Class: emu.RegGPR, Hart: 1, Op: emu.MemOpLoad}
		q.Insert(a)
		q.Insert(b)

		Expect(q.Count(emu.LSQHash(5, emu.RegGPR, 0))).To(Equal(1))
		Expect(q.Count(emu.LSQHash(5, emu.RegFloat, 0))).To(BeZero())
		Expect(q.PendingForHart(1)).To(Equal(1))
		Expect(q.Len()).To(Equal(2))
	})

	It("should key fetches by instruction word", func() {
		q.Insert(&emu.MemReq{Addr: 0x1002, Size: 2, Op: emu.MemOpFetch})
		Expect(q.Count(emu.FetchHash(0x1000))).To(Equal(1))
		Expect(q.Count(emu.FetchHash(0x1004))).To(BeZero())
	})

	It("should hold several requests under one key", func() {
		a := &emu.MemReq{DestReg: 1, Class: emu.RegGPR}
		b := &emu.MemReq{DestReg: 1, Class: emu.RegGPR}
		q.Insert(a)
		q.Insert(b)
		Expect(q.Count(a.Key())).To(Equal(2))

		Expect(q.Remove(a)).To(BeTrue())
		Expect(q.Remove(a)).To(BeFalse())
		Expect(q.Count(a.Key())).To(Equal(1))
		Expect(q.Remove(b)).To(BeTrue())
		Expect(q.Len()).To(BeZero())
	})

	It("should name request kinds", func() {
		Expect(emu.MemOpAMO.String()).To(Equal("amo"))
		Expect(emu.MemOp(9).String()).To(Equal("unknown"))
	})
})
