package emu

import (
	"os"
	"sync"
)

// FileDescriptor represents an open guest file descriptor.
type FileDescriptor struct {
	HostFile *os.File // Host file handle (nil for the standard streams)
	Path     string   // Path as passed to open, or the stream name
	Flags    int      // Host open flags
	IsOpen   bool     // Whether the FD is currently open
}

// FDTable maps guest file descriptors to host files. Descriptors 0-2 are
// the standard streams, which the syscall handler serves itself.
type FDTable struct {
	fds    map[uint64]*FileDescriptor
	nextFD uint64
	mu     sync.Mutex
}

// NewFDTable creates a new file descriptor table with standard streams initialized.
func NewFDTable() *FDTable {
	t := &FDTable{
		fds:    make(map[uint64]*FileDescriptor),
		nextFD: 3,
	}

	t.fds[0] = &FileDescriptor{Path: "stdin", IsOpen: true}
	t.fds[1] = &FileDescriptor{Path: "stdout", IsOpen: true}
	t.fds[2] = &FileDescriptor{Path: "stderr", IsOpen: true}

	return t
}

// Open opens a host file and returns a new file descriptor.
func (t *FDTable) Open(path string, flags int, mode os.FileMode) (uint64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	hostFile, err := os.OpenFile(path, flags, mode)
	if err != nil {
		return 0, err
	}

	fd := t.nextFD
	t.nextFD++

	t.fds[fd] = &FileDescriptor{
		HostFile: hostFile,
		Path:     path,
		Flags:    flags,
		IsOpen:   true,
	}

	return fd, nil
}

// Close closes a file descriptor.
func (t *FDTable) Close(fd uint64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, exists := t.fds[fd]
	if !exists || !entry.IsOpen {
		return os.ErrInvalid
	}

	entry.IsOpen = false
	if entry.HostFile == nil {
		return nil
	}

	err := entry.HostFile.Close()
	entry.HostFile = nil
	return err
}

// CloseAll closes every host file still open.
func (t *FDTable) CloseAll() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for fd, entry := range t.fds {
		if entry.IsOpen && entry.HostFile != nil {
			if err := entry.HostFile.Close(); err != nil {
				log.Warningf("close fd %d: %v", fd, err)
			}
			entry.HostFile = nil
		}
		entry.IsOpen = false
	}
}

// Get returns the file descriptor entry if it exists and is open.
func (t *FDTable) Get(fd uint64) (*FileDescriptor, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, exists := t.fds[fd]
	if !exists || !entry.IsOpen {
		return nil, false
	}

	return entry, true
}

// IsOpen checks if a file descriptor is open.
func (t *FDTable) IsOpen(fd uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, exists := t.fds[fd]
	return exists && entry.IsOpen
}

func (t *FDTable) hostFile(fd uint64) (*os.File, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, exists := t.fds[fd]
	if !exists || !entry.IsOpen || entry.HostFile == nil {
		return nil, os.ErrInvalid
	}
	return entry.HostFile, nil
}

// Read reads from a host-backed file descriptor.
func (t *FDTable) Read(fd uint64, buf []byte) (int, error) {
	f, err := t.hostFile(fd)
	if err != nil {
		return 0, err
	}
	return f.Read(buf)
}

// Write writes to a host-backed file descriptor.
func (t *FDTable) Write(fd uint64, buf []byte) (int, error) {
	f, err := t.hostFile(fd)
	if err != nil {
		return 0, err
	}
	return f.Write(buf)
}
