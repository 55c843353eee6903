package emu

import (
	"errors"
	"io"
	"os"
	"sync"
)

// ErrBadFD is returned for operations on a descriptor that is not open.
var ErrBadFD = errors.New("bad file descriptor")

// FileDescriptor is one entry of an FDTable. The standard streams have no
// host file; they are served by the writers and reader of the syscall
// handler.
type FileDescriptor struct {
	HostFile *os.File
	Path     string
	Flags    int
}

// FDTable maps guest file descriptors to host files. It is shared by every
// hart using the same syscall handler.
type FDTable struct {
	mu     sync.Mutex
	fds    map[uint64]*FileDescriptor
	nextFD uint64
}

// NewFDTable creates a table with descriptors 0, 1 and 2 open.
func NewFDTable() *FDTable {
	return &FDTable{
		fds: map[uint64]*FileDescriptor{
			0: {Path: "stdin"},
			1: {Path: "stdout"},
			2: {Path: "stderr"},
		},
		nextFD: 3,
	}
}

// Open opens a host file and returns its guest descriptor.
func (t *FDTable) Open(path string, flags int, mode os.FileMode) (uint64, error) {
	hostFile, err := os.OpenFile(path, flags, mode)
	if err != nil {
		return 0, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	fd := t.nextFD
	t.nextFD++
	t.fds[fd] = &FileDescriptor{HostFile: hostFile, Path: path, Flags: flags}
	return fd, nil
}

// Close closes a descriptor. Closing a standard stream only forgets it.
func (t *FDTable) Close(fd uint64) error {
	t.mu.Lock()
	entry, ok := t.fds[fd]
	delete(t.fds, fd)
	t.mu.Unlock()

	if !ok {
		return ErrBadFD
	}
	if entry.HostFile != nil {
		return entry.HostFile.Close()
	}
	return nil
}

// IsOpen reports whether fd is open.
func (t *FDTable) IsOpen(fd uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.fds[fd]
	return ok
}

// hostFile returns the host file behind fd, or nil for an open standard
// stream.
func (t *FDTable) hostFile(fd uint64) (*os.File, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.fds[fd]
	if !ok {
		return nil, ErrBadFD
	}
	return entry.HostFile, nil
}

// Reader returns a reader for fd. Standard streams return nil.
func (t *FDTable) Reader(fd uint64) (io.Reader, error) {
	f, err := t.hostFile(fd)
	if err != nil || f == nil {
		return nil, err
	}
	return f, nil
}

// Writer returns a writer for fd. Standard streams return nil.
func (t *FDTable) Writer(fd uint64) (io.Writer, error) {
	f, err := t.hostFile(fd)
	if err != nil || f == nil {
		return nil, err
	}
	return f, nil
}

// Seek sets the file position of fd. Standard streams cannot seek.
func (t *FDTable) Seek(fd uint64, offset int64, whence int) (int64, error) {
	f, err := t.hostFile(fd)
	if err != nil {
		return 0, err
	}
	if f == nil {
		return 0, ErrBadFD
	}
	return f.Seek(offset, whence)
}

// CloseAll closes every host file.
func (t *FDTable) CloseAll() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for fd, entry := range t.fds {
		if entry.HostFile != nil {
			_ = entry.HostFile.Close()
		}
		if fd > 2 {
			delete(t.fds, fd)
		}
	}
}
