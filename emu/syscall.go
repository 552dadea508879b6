package emu

import (
	"errors"
	"io"
	"io/fs"
	"os"
)

// x86-64 Linux syscall numbers.
const (
	SyscallRead  uint64 = 0  // read(fd, buf, count)
	SyscallWrite uint64 = 1  // write(fd, buf, count)
	SyscallOpen  uint64 = 2  // open(path, flags, mode)
	SyscallClose uint64 = 3  // close(fd)
	SyscallExit  uint64 = 60 // exit(status)
)

// Linux error codes.
const (
	ENOENT = 2  // No such file or directory
	EIO    = 5  // I/O error
	EBADF  = 9  // Bad file descriptor
	EACCES = 13 // Permission denied
	EFAULT = 14 // Bad address
	EEXIST = 17 // File exists
	EISDIR = 21 // Is a directory
	EINVAL = 22 // Invalid argument
)

// Linux open(2) flag bits.
const (
	linuxOWronly = 0x1
	linuxORdwr   = 0x2
	linuxOCreat  = 0x40
	linuxOExcl   = 0x80
	linuxOTrunc  = 0x200
	linuxOAppend = 0x400
)

const (
	maxPathLen = 4096
	maxReadLen = 1 << 20
)

// SyscallResult represents the result of a syscall execution.
type SyscallResult struct {
	// Exited is true if the syscall caused program termination.
	Exited bool

	// ExitCode is the exit status if Exited is true.
	ExitCode int64

	// Err is set when the syscall cannot be dispatched at all.
	Err error
}

// SyscallHandler is the interface for handling x86-64 syscalls.
type SyscallHandler interface {
	// Handle executes the syscall indicated by the register file state.
	// x86-64 Linux syscall convention:
	//   - Syscall number in rax
	//   - Arguments in rdi, rsi, rdx
	//   - Return value in rax
	Handle() SyscallResult
}

// DefaultSyscallHandler serves read, write, open, close and exit against
// host streams and files.
type DefaultSyscallHandler struct {
	regFile *RegFile
	memory  *Memory
	fdTable *FDTable
	stdin   io.Reader
	stdout  io.Writer
	stderr  io.Writer
}

// NewDefaultSyscallHandler creates a default syscall handler.
func NewDefaultSyscallHandler(regFile *RegFile, memory *Memory, stdout, stderr io.Writer) *DefaultSyscallHandler {
	return &DefaultSyscallHandler{
		regFile: regFile,
		memory:  memory,
		fdTable: NewFDTable(),
		stdout:  stdout,
		stderr:  stderr,
	}
}

// SetStdin sets the stdin reader for the syscall handler.
func (h *DefaultSyscallHandler) SetStdin(stdin io.Reader) {
	h.stdin = stdin
}

// FDTable returns the handler's file descriptor table.
func (h *DefaultSyscallHandler) FDTable() *FDTable {
	return h.fdTable
}

// Handle executes the syscall indicated by the register file state.
func (h *DefaultSyscallHandler) Handle() SyscallResult {
	num := h.regFile.ReadReg(RAX)

	switch num {
	case SyscallRead:
		return h.handleRead()
	case SyscallWrite:
		return h.handleWrite()
	case SyscallOpen:
		return h.handleOpen()
	case SyscallClose:
		return h.handleClose()
	case SyscallExit:
		return h.handleExit()
	default:
		return SyscallResult{Err: &UnknownSyscallError{Number: num}}
	}
}

func (h *DefaultSyscallHandler) args() (uint64, uint64, uint64) {
	return h.regFile.ReadReg(RDI), h.regFile.ReadReg(RSI), h.regFile.ReadReg(RDX)
}

// handleExit handles the exit syscall (60).
func (h *DefaultSyscallHandler) handleExit() SyscallResult {
	exitCode := int64(h.regFile.ReadReg(RDI))
	log.Infof("guest exited with code %d", exitCode)
	return SyscallResult{
		Exited:   true,
		ExitCode: exitCode,
	}
}

// handleRead handles the read syscall (0).
func (h *DefaultSyscallHandler) handleRead() SyscallResult {
	fd, bufPtr, count := h.args()

	buf := make([]byte, min(count, maxReadLen))
	if err := h.memory.CheckWrite(bufPtr, uint64(len(buf))); err != nil {
		h.setError(EFAULT)
		return SyscallResult{}
	}
	var (
		n   int
		err error
	)
	switch {
	case fd == 0:
		if h.stdin == nil {
			h.setReturn(0)
			return SyscallResult{}
		}
		n, err = h.stdin.Read(buf)
	case fd <= 2:
		h.setError(EBADF)
		return SyscallResult{}
	default:
		if !h.fdTable.IsOpen(fd) {
			h.setError(EBADF)
			return SyscallResult{}
		}
		n, err = h.fdTable.Read(fd, buf)
	}

	if err != nil && !errors.Is(err, io.EOF) && n == 0 {
		h.setError(EIO)
		return SyscallResult{}
	}

	if werr := h.memory.WriteBytes(bufPtr, buf[:n]); werr != nil {
		h.setError(EFAULT)
		return SyscallResult{}
	}

	h.setReturn(uint64(n))
	return SyscallResult{}
}

// handleWrite handles the write syscall (1).
func (h *DefaultSyscallHandler) handleWrite() SyscallResult {
	fd, bufPtr, count := h.args()

	buf, err := h.memory.ReadBytes(bufPtr, count)
	if err != nil {
		h.setError(EFAULT)
		return SyscallResult{}
	}

	var n int
	switch fd {
	case 0:
		h.setError(EBADF)
		return SyscallResult{}
	case 1:
		n, err = h.stdout.Write(buf)
	case 2:
		n, err = h.stderr.Write(buf)
	default:
		if !h.fdTable.IsOpen(fd) {
			h.setError(EBADF)
			return SyscallResult{}
		}
		n, err = h.fdTable.Write(fd, buf)
	}
	if err != nil {
		h.setError(EIO)
		return SyscallResult{}
	}

	h.setReturn(uint64(n))
	return SyscallResult{}
}

// handleOpen handles the open syscall (2).
func (h *DefaultSyscallHandler) handleOpen() SyscallResult {
	pathPtr, flags, mode := h.args()

	path, err := h.memory.ReadCString(pathPtr, maxPathLen)
	if err != nil {
		h.setError(EFAULT)
		return SyscallResult{}
	}

	fd, err := h.fdTable.Open(path, hostOpenFlags(flags), os.FileMode(mode&0o777))
	if err != nil {
		log.Debugf("open %q: %v", path, err)
		h.setError(errnoFor(err))
		return SyscallResult{}
	}

	h.setReturn(fd)
	return SyscallResult{}
}

// handleClose handles the close syscall (3).
func (h *DefaultSyscallHandler) handleClose() SyscallResult {
	fd := h.regFile.ReadReg(RDI)
	if err := h.fdTable.Close(fd); err != nil {
		h.setError(EBADF)
		return SyscallResult{}
	}
	h.setReturn(0)
	return SyscallResult{}
}

func (h *DefaultSyscallHandler) setReturn(v uint64) {
	h.regFile.WriteReg(RAX, v)
}

// setError sets rax to -errno (as two's complement).
func (h *DefaultSyscallHandler) setError(errno int) {
	h.regFile.WriteReg(RAX, uint64(-int64(errno)))
}

func hostOpenFlags(flags uint64) int {
	var out int
	switch {
	case flags&linuxORdwr != 0:
		out = os.O_RDWR
	case flags&linuxOWronly != 0:
		out = os.O_WRONLY
	default:
		out = os.O_RDONLY
	}
	if flags&linuxOCreat != 0 {
		out |= os.O_CREATE
	}
	if flags&linuxOExcl != 0 {
		out |= os.O_EXCL
	}
	if flags&linuxOTrunc != 0 {
		out |= os.O_TRUNC
	}
	if flags&linuxOAppend != 0 {
		out |= os.O_APPEND
	}
	return out
}

func errnoFor(err error) int {
	var pathErr *fs.PathError
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return ENOENT
	case errors.Is(err, fs.ErrPermission):
		return EACCES
	case errors.Is(err, fs.ErrExist):
		return EEXIST
	case errors.As(err, &pathErr) && isDir(pathErr.Path):
		return EISDIR
	case errors.Is(err, fs.ErrInvalid):
		return EINVAL
	default:
		return EIO
	}
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
