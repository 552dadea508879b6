package emu_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/asmsim/emu"
	"github.com/sarchlab/asmsim/insts"
)

var _ = Describe("OperandResolver", func() {
	var (
		regFile  *emu.RegFile
		memory   *emu.Memory
		symbols  *emu.SymbolTable
		resolver *emu.OperandResolver
	)

	reg := func(name string) *insts.Register { return &insts.Register{Name: name} }
	imm := func(v uint64) *insts.Immediate { return &insts.Immediate{Value: v} }

	BeforeEach(func() {
		regFile = &emu.RegFile{}
		memory = emu.NewMemory()
		symbols = emu.NewSymbolTable(0x1000)
		resolver = emu.NewOperandResolver(regFile, memory, symbols)
	})

	Describe("ResolveAddress", func() {
		It("should combine displacement, base and scaled index", func() {
			regFile.WriteReg(emu.RBX, 0x100)
			regFile.WriteReg(emu.RCX, 3)

			addr, err := resolver.ResolveAddress(&insts.Memory{Disp: -8, Base: "rbx", Index: "rcx", Scale: 4})
			Expect(err).NotTo(HaveOccurred())
			Expect(addr).To(Equal(uint64(0x100 - 8 + 12)))
		})

		It("should default the scale and treat missing parts as zero", func() {
			regFile.WriteReg(emu.RCX, 5)

			addr, err := resolver.ResolveAddress(&insts.Memory{Index: "rcx"})
			Expect(err).NotTo(HaveOccurred())
			Expect(addr).To(Equal(uint64(5)))
		})

		It("should resolve symbolic displacements", func() {
			_, _ = symbols.AddSymbol("buf", 16)

			addr, err := resolver.ResolveAddress(&insts.Memory{DispSymbol: "buf", Disp: 4})
			Expect(err).NotTo(HaveOccurred())
			Expect(addr).To(Equal(uint64(0x1004)))
		})

		It("should resolve rip-relative symbols to the symbol itself", func() {
			_, _ = symbols.AddSymbol("msg", 3)
			regFile.SetRIP(0x9000)

			addr, err := resolver.ResolveAddress(&insts.Memory{DispSymbol: "msg", Base: "rip"})
			Expect(err).NotTo(HaveOccurred())
			Expect(addr).To(Equal(uint64(0x1000)))
		})

		It("should resolve numeric rip-relative displacements from the next instruction", func() {
			regFile.SetRIP(0x9000)

			addr, err := resolver.ResolveAddress(&insts.Memory{Disp: 0x10, Base: "rip"})
			Expect(err).NotTo(HaveOccurred())
			Expect(addr).To(Equal(uint64(0x9000 + emu.InstructionWidth + 0x10)))
		})

		It("should fail on unknown symbols and registers", func() {
			_, err := resolver.ResolveAddress(&insts.Memory{DispSymbol: "nope"})
			Expect(err).To(MatchError(emu.ErrUndefinedSymbol))

			_, err = resolver.ResolveAddress(&insts.Memory{Base: "xyz"})
			Expect(err).To(MatchError(emu.ErrUnknownRegister))
		})
	})

	Describe("OperandSize", func() {
		mem := &insts.Memory{Base: "rbp"}

		DescribeTable("inference",
			func(src, dst insts.Operand, suffix insts.Size, want insts.Size, wantErr error) {
				size, err := resolver.OperandSize(src, dst, suffix)
				if wantErr != nil {
					Expect(err).To(MatchError(wantErr))
					return
				}
				Expect(err).NotTo(HaveOccurred())
				Expect(size).To(Equal(want))
			},
			Entry("immediate destination", reg("rax"), imm(1), insts.SizeNone, insts.SizeNone, emu.ErrImmediateDestination),
			Entry("register destination decides", imm(1), reg("ecx"), insts.SizeNone, insts.SizeLong, nil),
			Entry("matching registers", reg("ax"), reg("bx"), insts.SizeNone, insts.SizeWord, nil),
			Entry("register size mismatch", reg("eax"), reg("rbx"), insts.SizeNone, insts.SizeNone, emu.ErrSizeMismatch),
			Entry("size mismatch before suffix mismatch", reg("eax"), reg("rbx"), insts.SizeByte, insts.SizeNone, emu.ErrSizeMismatch),
			Entry("matching suffix", imm(1), reg("al"), insts.SizeByte, insts.SizeByte, nil),
			Entry("suffix mismatch", imm(1), reg("rax"), insts.SizeLong, insts.SizeNone, emu.ErrSuffixMismatch),
			Entry("memory source into register", mem, reg("r8d"), insts.SizeNone, insts.SizeLong, nil),
			Entry("register source into memory", reg("dx"), mem, insts.SizeNone, insts.SizeWord, nil),
			Entry("memory to memory", mem, mem, insts.SizeQuad, insts.SizeNone, emu.ErrMemoryToMemory),
			Entry("immediate to memory with suffix", imm(1), mem, insts.SizeByte, insts.SizeByte, nil),
			Entry("immediate to memory without suffix", imm(1), mem, insts.SizeNone, insts.SizeNone, emu.ErrSuffixRequired),
			Entry("unknown register", imm(1), reg("foo"), insts.SizeNone, insts.SizeNone, emu.ErrUnknownRegister),
		)
	})

	Describe("UnarySize", func() {
		It("should use the register width, the suffix or the fallback", func() {
			size, err := resolver.UnarySize(reg("cx"), insts.SizeNone, insts.SizeQuad)
			Expect(err).NotTo(HaveOccurred())
			Expect(size).To(Equal(insts.SizeWord))

			size, err = resolver.UnarySize(&insts.Memory{Base: "rax"}, insts.SizeLong, insts.SizeNone)
			Expect(err).NotTo(HaveOccurred())
			Expect(size).To(Equal(insts.SizeLong))

			size, err = resolver.UnarySize(imm(5), insts.SizeNone, insts.SizeQuad)
			Expect(err).NotTo(HaveOccurred())
			Expect(size).To(Equal(insts.SizeQuad))

			_, err = resolver.UnarySize(&insts.Memory{Base: "rax"}, insts.SizeNone, insts.SizeNone)
			Expect(err).To(MatchError(emu.ErrSuffixRequired))
		})
	})

	Describe("ReadOperand and WriteOperand", func() {
		It("should access registers at their declared width", func() {
			regFile.WriteReg(emu.RAX, 0xFFFFFFFFFFFFFFFF)

			Expect(resolver.WriteOperand(reg("ax"), insts.SizeWord, 0x1234)).To(Succeed())
			Expect(regFile.ReadReg(emu.RAX)).To(Equal(uint64(0xFFFFFFFFFFFF1234)))

			v, err := resolver.ReadOperand(reg("al"), insts.SizeByte)
			Expect(err).NotTo(HaveOccurred())
			Expect(v).To(Equal(uint64(0x34)))
		})

		It("should resolve symbolic immediates to constants before addresses", func() {
			_, _ = symbols.AddSymbol("msg", 3)
			Expect(symbols.AddImmediate("len", 3)).To(Succeed())

			v, err := resolver.ReadOperand(&insts.Immediate{Symbol: "len"}, insts.SizeQuad)
			Expect(err).NotTo(HaveOccurred())
			Expect(v).To(Equal(uint64(3)))

			v, err = resolver.ReadOperand(&insts.Immediate{Symbol: "msg"}, insts.SizeQuad)
			Expect(err).NotTo(HaveOccurred())
			Expect(v).To(Equal(uint64(0x1000)))

			_, err = resolver.ReadOperand(&insts.Immediate{Symbol: "other"}, insts.SizeQuad)
			Expect(err).To(MatchError(emu.ErrUndefinedSymbol))
		})

		It("should truncate immediates to the operand width", func() {
			v, err := resolver.ReadOperand(imm(^uint64(0)), insts.SizeWord)
			Expect(err).NotTo(HaveOccurred())
			Expect(v).To(Equal(uint64(0xFFFF)))
		})

		DescribeTable("memory widths",
			func(size insts.Size, want uint64) {
				memory.SetPermission(0x2000, 8, emu.PermReadWrite)
				regFile.WriteReg(emu.RDI, 0x2000)
				op := &insts.Memory{Base: "rdi"}

				Expect(resolver.WriteOperand(op, insts.SizeQuad, 0x8877665544332211)).To(Succeed())
				v, err := resolver.ReadOperand(op, size)
				Expect(err).NotTo(HaveOccurred())
				Expect(v).To(Equal(want))
			},
			Entry("b", insts.SizeByte, uint64(0x11)),
			Entry("w", insts.SizeWord, uint64(0x2211)),
			Entry("l", insts.SizeLong, uint64(0x44332211)),
			Entry("q", insts.SizeQuad, uint64(0x8877665544332211)),
		)

		It("should honor memory permissions", func() {
			memory.SetPermission(0x3000, 8, emu.PermRead)
			err := resolver.WriteOperand(&insts.Memory{Disp: 0x3000}, insts.SizeLong, 1)
			Expect(emu.IsAccessViolation(err)).To(BeTrue())
		})

		It("should report accesses to the observer", func() {
			var seen []uint64
			resolver.SetObserver(func(addr uint64, size int, isWrite bool) {
				seen = append(seen, addr)
			})
			memory.SetPermission(0x3000, 8, emu.PermReadWrite)

			Expect(resolver.WriteOperand(&insts.Memory{Disp: 0x3000}, insts.SizeQuad, 1)).To(Succeed())
			_, _ = resolver.ReadOperand(reg("rax"), insts.SizeQuad)
			Expect(seen).To(Equal([]uint64{0x3000}))
		})

		It("should refuse to write immediates", func() {
			Expect(resolver.WriteOperand(imm(1), insts.SizeQuad, 2)).To(MatchError(emu.ErrImmediateDestination))
		})
	})
})
