package insts_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/asmsim/insts"
)

var _ = Describe("Decoder", func() {
	var decoder *insts.Decoder

	BeforeEach(func() {
		decoder = insts.NewDecoder()
	})

	Describe("plain mnemonics", func() {
		It("should decode mov without a suffix", func() {
			m := decoder.Decode("mov")
			Expect(m.Op).To(Equal(insts.OpMOV))
			Expect(m.Format).To(Equal(insts.FormatBinary))
			Expect(m.Suffix).To(Equal(insts.SizeNone))
		})

		It("should decode syscall", func() {
			m := decoder.Decode("syscall")
			Expect(m.Op).To(Equal(insts.OpSYSCALL))
			Expect(m.Format.Operands()).To(Equal(0))
		})

		It("should be case insensitive", func() {
			Expect(decoder.Decode("MOVQ").Op).To(Equal(insts.OpMOV))
		})
	})

	Describe("size suffixes", func() {
		DescribeTable("suffix decoding",
			func(word string, op insts.Op, size insts.Size) {
				m := decoder.Decode(word)
				Expect(m.Op).To(Equal(op))
				Expect(m.Suffix).To(Equal(size))
			},
			Entry("movb", "movb", insts.OpMOV, insts.SizeByte),
			Entry("addw", "addw", insts.OpADD, insts.SizeWord),
			Entry("subl", "subl", insts.OpSUB, insts.SizeLong),
			Entry("pushq", "pushq", insts.OpPUSH, insts.SizeQuad),
			Entry("leaq", "leaq", insts.OpLEA, insts.SizeQuad),
			Entry("xorl", "xorl", insts.OpXOR, insts.SizeLong),
		)

		It("should not accept a suffix on syscall", func() {
			Expect(decoder.IsMnemonic("syscallq")).To(BeFalse())
		})
	})

	Describe("conditional jumps", func() {
		It("should prefer the condition over a size suffix", func() {
			m := decoder.Decode("jb")
			Expect(m.Op).To(Equal(insts.OpJCC))
			Expect(m.Cond).To(Equal(insts.CondBelow))

			m = decoder.Decode("jl")
			Expect(m.Op).To(Equal(insts.OpJCC))
			Expect(m.Cond).To(Equal(insts.CondLess))
		})

		It("should decode every condition suffix", func() {
			for _, c := range insts.AllConds() {
				m := decoder.Decode("j" + c.String())
				Expect(m.Op).To(Equal(insts.OpJCC), "j%s", c)
				Expect(m.Cond).To(Equal(c))
			}
		})

		It("should keep jmp unconditional", func() {
			Expect(decoder.Decode("jmp").Op).To(Equal(insts.OpJMP))
		})
	})

	It("should report unknown mnemonics", func() {
		Expect(decoder.Decode("vfmadd231ps").Op).To(Equal(insts.OpUnknown))
		Expect(decoder.IsMnemonic("frobq")).To(BeFalse())
	})
})

var _ = Describe("Size", func() {
	It("should convert between bytes and sizes", func() {
		for _, n := range []int{1, 2, 4, 8} {
			Expect(insts.SizeFromBytes(n).Bytes()).To(Equal(n))
		}
		Expect(insts.SizeFromBytes(3)).To(Equal(insts.SizeNone))
	})

	It("should produce masks", func() {
		Expect(insts.SizeByte.Mask()).To(Equal(uint64(0xFF)))
		Expect(insts.SizeLong.Mask()).To(Equal(uint64(0xFFFFFFFF)))
		Expect(insts.SizeQuad.Mask()).To(Equal(^uint64(0)))
	})
})
