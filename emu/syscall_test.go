package emu_test

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/asmsim/emu"
)

func errno(code int) uint64 {
	return uint64(-int64(code))
}

var _ = Describe("DefaultSyscallHandler", func() {
	var (
		regFile *emu.RegFile
		memory  *emu.Memory
		stdout  *bytes.Buffer
		stderr  *bytes.Buffer
		handler *emu.DefaultSyscallHandler
	)

	call := func(num, a, b, c uint64) emu.SyscallResult {
		regFile.WriteReg(emu.RAX, num)
		regFile.WriteReg(emu.RDI, a)
		regFile.WriteReg(emu.RSI, b)
		regFile.WriteReg(emu.RDX, c)
		return handler.Handle()
	}

	BeforeEach(func() {
		regFile = &emu.RegFile{}
		memory = emu.NewMemory()
		stdout = &bytes.Buffer{}
		stderr = &bytes.Buffer{}
		handler = emu.NewDefaultSyscallHandler(regFile, memory, stdout, stderr)
		memory.SetPermission(0x2000, 0x100, emu.PermReadWrite)
	})

	AfterEach(func() {
		handler.FDTable().CloseAll()
	})

	Describe("write", func() {
		It("should write guest bytes to stdout and stderr", func() {
			Expect(memory.WriteBytes(0x2000, []byte("hi\n"))).To(Succeed())

			r := call(emu.SyscallWrite, 1, 0x2000, 3)
			Expect(r.Err).NotTo(HaveOccurred())
			Expect(stdout.String()).To(Equal("hi\n"))
			Expect(regFile.ReadReg(emu.RAX)).To(Equal(uint64(3)))

			call(emu.SyscallWrite, 2, 0x2000, 2)
			Expect(stderr.String()).To(Equal("hi"))
		})

		It("should return EFAULT for unreadable buffers", func() {
			call(emu.SyscallWrite, 1, 0x9000, 4)
			Expect(regFile.ReadReg(emu.RAX)).To(Equal(errno(emu.EFAULT)))
			Expect(stdout.Len()).To(BeZero())
		})

		It("should return EBADF for closed descriptors", func() {
			call(emu.SyscallWrite, 7, 0x2000, 1)
			Expect(regFile.ReadReg(emu.RAX)).To(Equal(errno(emu.EBADF)))
		})
	})

	Describe("read", func() {
		It("should read stdin into guest memory", func() {
			handler.SetStdin(strings.NewReader("abc"))

			call(emu.SyscallRead, 0, 0x2000, 16)
			Expect(regFile.ReadReg(emu.RAX)).To(Equal(uint64(3)))

			data, err := memory.ReadBytes(0x2000, 3)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(data)).To(Equal("abc"))
		})

		It("should return 0 at end of input", func() {
			handler.SetStdin(strings.NewReader(""))
			call(emu.SyscallRead, 0, 0x2000, 16)
			Expect(regFile.ReadReg(emu.RAX)).To(BeZero())

			handler.SetStdin(nil)
			call(emu.SyscallRead, 0, 0x2000, 16)
			Expect(regFile.ReadReg(emu.RAX)).To(BeZero())
		})

		It("should return EFAULT when the buffer is not writable", func() {
			memory.SetPermission(0x3000, 16, emu.PermRead)
			handler.SetStdin(strings.NewReader("abc"))

			call(emu.SyscallRead, 0, 0x3000, 16)
			Expect(regFile.ReadReg(emu.RAX)).To(Equal(errno(emu.EFAULT)))

			call(emu.SyscallRead, 0, 0x2000, 16)
			Expect(regFile.ReadReg(emu.RAX)).To(Equal(uint64(3)))
			Expect(memory.ReadBytes(0x2000, 3)).To(Equal([]byte("abc")))
		})
	})

	Describe("open and close", func() {
		var dir string

		BeforeEach(func() {
			dir = GinkgoT().TempDir()
		})

		putPath := func(path string) {
			Expect(memory.WriteBytes(0x2000, append([]byte(path), 0))).To(Succeed())
		}

		It("should open, read and close a host file", func() {
			path := filepath.Join(dir, "in.txt")
			Expect(os.WriteFile(path, []byte("file data"), 0o644)).To(Succeed())
			putPath(path)

			call(emu.SyscallOpen, 0x2000, 0, 0)
			fd := regFile.ReadReg(emu.RAX)
			Expect(fd).To(Equal(uint64(3)))

			call(emu.SyscallRead, fd, 0x2080, 4)
			Expect(regFile.ReadReg(emu.RAX)).To(Equal(uint64(4)))
			data, _ := memory.ReadBytes(0x2080, 4)
			Expect(string(data)).To(Equal("file"))

			call(emu.SyscallClose, fd, 0, 0)
			Expect(regFile.ReadReg(emu.RAX)).To(BeZero())

			call(emu.SyscallRead, fd, 0x2080, 4)
			Expect(regFile.ReadReg(emu.RAX)).To(Equal(errno(emu.EBADF)))
		})

		It("should create and write files", func() {
			path := filepath.Join(dir, "out.txt")
			putPath(path)

			call(emu.SyscallOpen, 0x2000, 0x1|0x40|0x200, 0o644)
			fd := regFile.ReadReg(emu.RAX)
			Expect(fd).To(BeNumerically(">=", 3))

			Expect(memory.WriteBytes(0x2080, []byte("out"))).To(Succeed())
			call(emu.SyscallWrite, fd, 0x2080, 3)
			Expect(regFile.ReadReg(emu.RAX)).To(Equal(uint64(3)))
			call(emu.SyscallClose, fd, 0, 0)

			data, err := os.ReadFile(path)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(data)).To(Equal("out"))
		})

		It("should map host errors to errno values", func() {
			putPath(filepath.Join(dir, "missing"))
			call(emu.SyscallOpen, 0x2000, 0, 0)
			Expect(regFile.ReadReg(emu.RAX)).To(Equal(errno(emu.ENOENT)))

			existing := filepath.Join(dir, "exists")
			Expect(os.WriteFile(existing, nil, 0o644)).To(Succeed())
			putPath(existing)
			call(emu.SyscallOpen, 0x2000, 0x1|0x40|0x80, 0o644)
			Expect(regFile.ReadReg(emu.RAX)).To(Equal(errno(emu.EEXIST)))
		})

		It("should return EFAULT for an unreadable path", func() {
			call(emu.SyscallOpen, 0x9000, 0, 0)
			Expect(regFile.ReadReg(emu.RAX)).To(Equal(errno(emu.EFAULT)))
		})

		It("should return EBADF when closing an unknown descriptor", func() {
			call(emu.SyscallClose, 42, 0, 0)
			Expect(regFile.ReadReg(emu.RAX)).To(Equal(errno(emu.EBADF)))
		})
	})

	Describe("exit", func() {
		It("should report the exit code", func() {
			r := call(emu.SyscallExit, 3, 0, 0)
			Expect(r.Exited).To(BeTrue())
			Expect(r.ExitCode).To(Equal(int64(3)))
		})
	})

	It("should fail on unknown syscall numbers", func() {
		r := call(999, 0, 0, 0)

		var unknown *emu.UnknownSyscallError
		Expect(errors.As(r.Err, &unknown)).To(BeTrue())
		Expect(unknown.Number).To(Equal(uint64(999)))
	})
})
