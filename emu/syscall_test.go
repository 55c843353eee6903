package emu_test

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/rvsim/emu"
	"github.com/sarchlab/rvsim/feature"
)

func errno(e int64) uint64 {
	return uint64(-e)
}

var _ = Describe("Syscall Handler", func() {
	var (
		regFile *emu.RegFile
		memory  *emu.Memory
		stdout  *bytes.Buffer
		stderr  *bytes.Buffer
		handler *emu.DefaultSyscallHandler
	)

	BeforeEach(func() {
		regFile = emu.NewRegFile(feature.MustParse("RV64IMAC"), 0, nil)
		memory = emu.NewMemoryWithCapacity(1 << 20)
		stdout = new(bytes.Buffer)
		stderr = new(bytes.Buffer)
		handler = emu.NewDefaultSyscallHandler(memory, stdout, stderr)
	})

	call := func(num uint64, args ...uint64) emu.SyscallResult {
		regFile.WriteX(emu.RegA7, num)
		for i, a := range args {
			regFile.WriteX(emu.RegA0+uint8(i), a)
		}
		return handler.Handle(regFile)
	}

	writeString := func(s string, addr uint64) {
		Expect(memory.WriteBytes(addr, append([]byte(s), 0))).To(Succeed())
	}

	Describe("Unknown syscall", func() {
		It("should return ENOSYS for unknown syscall numbers", func() {
			result := call(999)
			Expect(result.Exited).To(BeFalse())
			Expect(regFile.ReadX(emu.RegA0)).To(Equal(errno(emu.ENOSYS)))
		})
	})

	Describe("Exit syscall", func() {
		It("should exit with specified code", func() {
			result := call(emu.SyscallExit, 42)
			Expect(result.Exited).To(BeTrue())
			Expect(result.ExitCode).To(Equal(int64(42)))
		})

		It("should sign-extend the exit code", func() {
			result := call(emu.SyscallExitGroup, uint64(0xFFFFFFFFFFFFFFFF))
			Expect(result.Exited).To(BeTrue())
			Expect(result.ExitCode).To(Equal(int64(-1)))
		})
	})

	Describe("Write syscall", func() {
		It("should write buffer to stdout", func() {
			writeString("Hello", 0x1000)
			result := call(emu.SyscallWrite, 1, 0x1000, 5)

			Expect(result.Exited).To(BeFalse())
			Expect(stdout.String()).To(Equal("Hello"))
			Expect(regFile.ReadX(emu.RegA0)).To(Equal(uint64(5)))
		})

		It("should write buffer to stderr", func() {
			writeString("Error", 0x1000)
			call(emu.SyscallWrite, 2, 0x1000, 5)

			Expect(stderr.String()).To(Equal("Error"))
			Expect(stdout.Len()).To(BeZero())
		})

		It("should return EBADF for invalid file descriptor", func() {
			call(emu.SyscallWrite, 42, 0x1000, 5)
			Expect(regFile.ReadX(emu.RegA0)).To(Equal(errno(emu.EBADF)))
		})

		It("should return EFAULT for a buffer outside memory", func() {
			call(emu.SyscallWrite, 1, 1<<30, 5)
			Expect(regFile.ReadX(emu.RegA0)).To(Equal(errno(emu.EFAULT)))
		})
	})

	Describe("Read syscall", func() {
		It("should copy stdin into memory", func() {
			handler.SetStdin(strings.NewReader("abc"))
			call(emu.SyscallRead, 0, 0x2000, 16)

			Expect(regFile.ReadX(emu.RegA0)).To(Equal(uint64(3)))
			data, err := memory.ReadBytes(0x2000, 3)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(data)).To(Equal("abc"))
		})

		It("should read nothing without stdin", func() {
			call(emu.SyscallRead, 0, 0x2000, 16)
			Expect(regFile.ReadX(emu.RegA0)).To(BeZero())
		})
	})

	Describe("Brk syscall", func() {
		It("should report and grow the program break", func() {
			handler.SetBrk(0x20000)
			call(emu.SyscallBrk, 0)
			Expect(regFile.ReadX(emu.RegA0)).To(Equal(uint64(0x20000)))

			call(emu.SyscallBrk, 0x30000)
			Expect(regFile.ReadX(emu.RegA0)).To(Equal(uint64(0x30000)))

			call(emu.SyscallBrk, 0x25000)
			Expect(regFile.ReadX(emu.RegA0)).To(Equal(uint64(0x30000)))
		})
	})

	Describe("Close syscall", func() {
		It("should close stdout and stop writing to it", func() {
			call(emu.SyscallClose, 1)
			Expect(regFile.ReadX(emu.RegA0)).To(BeZero())

			writeString("x", 0x1000)
			call(emu.SyscallWrite, 1, 0x1000, 1)
			Expect(regFile.ReadX(emu.RegA0)).To(Equal(errno(emu.EBADF)))
			Expect(stdout.Len()).To(BeZero())
		})

		It("should return EBADF when closing a closed fd", func() {
			call(emu.SyscallClose, 2)
			call(emu.SyscallClose, 2)
			Expect(regFile.ReadX(emu.RegA0)).To(Equal(errno(emu.EBADF)))
		})
	})

	Describe("Files", func() {
		var tempDir string

		BeforeEach(func() {
			var err error
			tempDir, err = os.MkdirTemp("", "syscall-test")
			Expect(err).NotTo(HaveOccurred())
		})

		AfterEach(func() {
			handler.FDs().CloseAll()
			_ = os.RemoveAll(tempDir)
		})

		It("should open, read and seek an existing file", func() {
			path := filepath.Join(tempDir, "in.txt")
			Expect(os.WriteFile(path, []byte("hello"), 0o644)).To(Succeed())
			writeString(path, 0x1000)

			call(emu.SyscallOpenat, emu.AtFDCWD, 0x1000, 0, 0)
			fd := regFile.ReadX(emu.RegA0)
			Expect(fd).To(Equal(uint64(3)))

			call(emu.SyscallRead, fd, 0x3000, 5)
			Expect(regFile.ReadX(emu.RegA0)).To(Equal(uint64(5)))
			Expect(memory.Read32(0x3000)).To(Equal(uint32(0x6C6C6568))) // "hell"

			call(emu.SyscallLseek, fd, 1, 0)
			Expect(regFile.ReadX(emu.RegA0)).To(Equal(uint64(1)))
			call(emu.SyscallRead, fd, 0x3000, 1)
			Expect(memory.Read16(0x3000) & 0xFF).To(Equal(uint16('e')))

			call(emu.SyscallClose, fd)
			Expect(regFile.ReadX(emu.RegA0)).To(BeZero())
			Expect(handler.FDs().IsOpen(fd)).To(BeFalse())
		})

		It("should create and write a new file", func() {
			path := filepath.Join(tempDir, "out.txt")
			writeString(path, 0x1000)
			writeString("data", 0x2000)

			call(emu.SyscallOpenat, emu.AtFDCWD, 0x1000, 0x1|0x40, 0o644)
			fd := regFile.ReadX(emu.RegA0)
			Expect(fd).To(BeNumerically(">=", 3))

			call(emu.SyscallWrite, fd, 0x2000, 4)
			Expect(regFile.ReadX(emu.RegA0)).To(Equal(uint64(4)))
			call(emu.SyscallClose, fd)

			Expect(os.ReadFile(path)).To(Equal([]byte("data")))
		})

		It("should return ENOENT for a missing file", func() {
			writeString(filepath.Join(tempDir, "missing"), 0x1000)
			call(emu.SyscallOpenat, emu.AtFDCWD, 0x1000, 0, 0)
			Expect(regFile.ReadX(emu.RegA0)).To(Equal(errno(emu.ENOENT)))
		})

		It("should return EBADF for a dirfd other than AT_FDCWD", func() {
			writeString(filepath.Join(tempDir, "x"), 0x1000)
			call(emu.SyscallOpenat, 42, 0x1000, 0, 0)
			Expect(regFile.ReadX(emu.RegA0)).To(Equal(errno(emu.EBADF)))
		})

		It("should allocate sequential file descriptors", func() {
			for _, name := range []string{"a", "b"} {
				Expect(os.WriteFile(filepath.Join(tempDir, name), nil, 0o644)).To(Succeed())
			}
			writeString(filepath.Join(tempDir, "a"), 0x1000)
			writeString(filepath.Join(tempDir, "b"), 0x2000)

			call(emu.SyscallOpenat, emu.AtFDCWD, 0x1000, 0, 0)
			fd1 := regFile.ReadX(emu.RegA0)
			call(emu.SyscallOpenat, emu.AtFDCWD, 0x2000, 0, 0)
			fd2 := regFile.ReadX(emu.RegA0)
			Expect(fd2).To(Equal(fd1 + 1))
		})

		It("should refuse to seek a standard stream", func() {
			call(emu.SyscallLseek, 1, 0, 0)
			Expect(regFile.ReadX(emu.RegA0)).To(Equal(errno(emu.ESPIPE)))
		})
	})
})
