package emu

import (
	"errors"
	"io"
	"io/fs"
	"os"
)

// RISC-V Linux syscall numbers.
const (
	SyscallOpenat    uint64 = 56  // openat(dirfd, pathname, flags, mode)
	SyscallClose     uint64 = 57  // close(fd)
	SyscallLseek     uint64 = 62  // lseek(fd, offset, whence)
	SyscallRead      uint64 = 63  // read(fd, buf, count)
	SyscallWrite     uint64 = 64  // write(fd, buf, count)
	SyscallExit      uint64 = 93  // exit(status)
	SyscallExitGroup uint64 = 94  // exit_group(status)
	SyscallBrk       uint64 = 214 // brk(addr)
)

// Linux error codes.
const (
	ENOENT = 2  // No such file or directory
	EIO    = 5  // I/O error
	EBADF  = 9  // Bad file descriptor
	EACCES = 13 // Permission denied
	EFAULT = 14 // Bad address
	EEXIST = 17 // File exists
	EINVAL = 22 // Invalid argument
	ESPIPE = 29 // Illegal seek
	ENOSYS = 38 // Function not implemented
)

// AtFDCWD is the dirfd value of openat that resolves paths against the
// current directory, as it appears in a 64-bit register.
const AtFDCWD uint64 = 0xFFFFFFFFFFFFFF9C // -100

// maxPathLen bounds the guest path strings the handler reads.
const maxPathLen = 4096

// SyscallResult represents the result of a syscall execution.
type SyscallResult struct {
	// Exited is true if the syscall caused the hart to terminate.
	Exited bool

	// ExitCode is the exit status if Exited is true.
	ExitCode int64
}

// SyscallHandler handles ECALL instructions on behalf of the simulated
// operating system.
type SyscallHandler interface {
	// Handle executes the syscall indicated by the register file state.
	// RISC-V Linux convention:
	//   - Syscall number in a7
	//   - Arguments in a0-a5
	//   - Return value in a0
	Handle(regs *RegFile) SyscallResult
}

// DefaultSyscallHandler provides a basic syscall handler implementation.
type DefaultSyscallHandler struct {
	memory *Memory
	fds    *FDTable
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	brk uint64
}

// NewDefaultSyscallHandler creates a default syscall handler.
func NewDefaultSyscallHandler(memory *Memory, stdout, stderr io.Writer) *DefaultSyscallHandler {
	return &DefaultSyscallHandler{
		memory: memory,
		fds:    NewFDTable(),
		stdout: stdout,
		stderr: stderr,
	}
}

// SetStdin sets the stdin reader for the syscall handler.
func (h *DefaultSyscallHandler) SetStdin(stdin io.Reader) {
	h.stdin = stdin
}

// SetBrk sets the initial program break.
func (h *DefaultSyscallHandler) SetBrk(brk uint64) {
	h.brk = brk
}

// FDs returns the file descriptor table.
func (h *DefaultSyscallHandler) FDs() *FDTable {
	return h.fds
}

// Handle executes the syscall indicated by the register file state.
func (h *DefaultSyscallHandler) Handle(regs *RegFile) SyscallResult {
	switch regs.ReadX(RegA7) {
	case SyscallOpenat:
		h.handleOpenat(regs)
	case SyscallClose:
		h.handleClose(regs)
	case SyscallLseek:
		h.handleLseek(regs)
	case SyscallRead:
		h.handleRead(regs)
	case SyscallWrite:
		h.handleWrite(regs)
	case SyscallExit, SyscallExitGroup:
		return SyscallResult{
			Exited:   true,
			ExitCode: regs.ReadXSigned(RegA0),
		}
	case SyscallBrk:
		h.handleBrk(regs)
	default:
		setErrno(regs, ENOSYS)
	}
	return SyscallResult{}
}

func (h *DefaultSyscallHandler) handleOpenat(regs *RegFile) {
	dirfd := regs.ReadX(RegA0)
	if regs.XLEN() == 32 {
		dirfd = uint64(int64(int32(dirfd)))
	}
	if dirfd != AtFDCWD {
		setErrno(regs, EBADF)
		return
	}

	path, err := h.readString(regs.ReadX(RegA1))
	if err != nil {
		setErrno(regs, EFAULT)
		return
	}

	fd, err := h.fds.Open(path, openFlags(regs.ReadX(RegA2)), os.FileMode(regs.ReadX(RegA3)&0o7777))
	if err != nil {
		setErrno(regs, errnoOf(err))
		return
	}
	regs.WriteX(RegA0, fd)
}

// openFlags translates Linux open flags to host flags.
func openFlags(guest uint64) int {
	var flags int
	switch guest & 0x3 {
	case 1:
		flags = os.O_WRONLY
	case 2:
		flags = os.O_RDWR
	default:
		flags = os.O_RDONLY
	}
	if guest&0x40 != 0 {
		flags |= os.O_CREATE
	}
	if guest&0x80 != 0 {
		flags |= os.O_EXCL
	}
	if guest&0x200 != 0 {
		flags |= os.O_TRUNC
	}
	if guest&0x400 != 0 {
		flags |= os.O_APPEND
	}
	return flags
}

func errnoOf(err error) int {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return ENOENT
	case errors.Is(err, fs.ErrExist):
		return EEXIST
	case errors.Is(err, fs.ErrPermission):
		return EACCES
	case errors.Is(err, ErrBadFD):
		return EBADF
	default:
		return EIO
	}
}

func (h *DefaultSyscallHandler) handleClose(regs *RegFile) {
	if err := h.fds.Close(regs.ReadX(RegA0)); err != nil {
		setErrno(regs, errnoOf(err))
		return
	}
	regs.WriteX(RegA0, 0)
}

func (h *DefaultSyscallHandler) handleLseek(regs *RegFile) {
	fd := regs.ReadX(RegA0)
	offset := regs.ReadXSigned(RegA1)
	whence := int(regs.ReadX(RegA2))
	if whence < io.SeekStart || whence > io.SeekEnd {
		setErrno(regs, EINVAL)
		return
	}

	if fd <= 2 && h.fds.IsOpen(fd) {
		setErrno(regs, ESPIPE)
		return
	}

	pos, err := h.fds.Seek(fd, offset, whence)
	if err != nil {
		setErrno(regs, errnoOf(err))
		return
	}
	regs.WriteX(RegA0, uint64(pos))
}

func (h *DefaultSyscallHandler) reader(fd uint64) (io.Reader, error) {
	if fd == 0 && h.fds.IsOpen(0) {
		return h.stdin, nil
	}
	return h.fds.Reader(fd)
}

func (h *DefaultSyscallHandler) writer(fd uint64) (io.Writer, error) {
	if fd == 1 && h.fds.IsOpen(1) {
		return h.stdout, nil
	}
	if fd == 2 && h.fds.IsOpen(2) {
		return h.stderr, nil
	}
	return h.fds.Writer(fd)
}

func (h *DefaultSyscallHandler) handleRead(regs *RegFile) {
	fd := regs.ReadX(RegA0)
	bufPtr := regs.ReadX(RegA1)
	count := regs.ReadX(RegA2)

	r, err := h.reader(fd)
	if err != nil {
		setErrno(regs, EBADF)
		return
	}
	if r == nil {
		regs.WriteX(RegA0, 0)
		return
	}

	buf := make([]byte, count)
	n, err := r.Read(buf)
	if err != nil && err != io.EOF {
		setErrno(regs, EIO)
		return
	}

	if err := h.memory.WriteBytes(bufPtr, buf[:n]); err != nil {
		setErrno(regs, EFAULT)
		return
	}

	regs.WriteX(RegA0, uint64(n))
}

func (h *DefaultSyscallHandler) handleWrite(regs *RegFile) {
	fd := regs.ReadX(RegA0)
	bufPtr := regs.ReadX(RegA1)
	count := regs.ReadX(RegA2)

	w, err := h.writer(fd)
	if err != nil || w == nil {
		setErrno(regs, EBADF)
		return
	}

	buf, err := h.memory.ReadBytes(bufPtr, count)
	if err != nil {
		setErrno(regs, EFAULT)
		return
	}

	n, err := w.Write(buf)
	if err != nil {
		setErrno(regs, EIO)
		return
	}

	regs.WriteX(RegA0, uint64(n))
}

// handleBrk grows the program break; brk(0) queries it.
func (h *DefaultSyscallHandler) handleBrk(regs *RegFile) {
	addr := regs.ReadX(RegA0)
	if addr > h.brk {
		h.brk = addr
	}
	regs.WriteX(RegA0, h.brk)
}

// readString reads a NUL-terminated string from guest memory.
func (h *DefaultSyscallHandler) readString(addr uint64) (string, error) {
	var s []byte
	for i := uint64(0); i < maxPathLen; i++ {
		b, err := h.memory.ReadBytes(addr+i, 1)
		if err != nil {
			return "", err
		}
		if b[0] == 0 {
			return string(s), nil
		}
		s = append(s, b[0])
	}
	return "", errors.New("path too long")
}

// setErrno sets a0 to -errno (as two's complement).
func setErrno(regs *RegFile, errno int) {
	regs.WriteX(RegA0, uint64(-int64(errno)))
}
