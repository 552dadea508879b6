package latency_test

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/asmsim/asm"
	"github.com/sarchlab/asmsim/insts"
	"github.com/sarchlab/asmsim/timing/latency"
)

// parseOne parses a single instruction.
func parseOne(src string) *insts.Instruction {
	prog, err := asm.Parse(src)
	Expect(err).NotTo(HaveOccurred())
	Expect(prog).To(HaveLen(1))
	Expect(prog[0].Items).To(HaveLen(1))

	inst, ok := prog[0].Items[0].(*insts.Instruction)
	Expect(ok).To(BeTrue())
	return inst
}

var _ = Describe("Latency", func() {
	var table *latency.Table

	BeforeEach(func() {
		table = latency.NewTable()
	})

	Describe("Default Timing Values", func() {
		It("should have the documented defaults", func() {
			config := table.Config()
			Expect(config.ALULatency).To(Equal(uint64(1)))
			Expect(config.BranchLatency).To(Equal(uint64(1)))
			Expect(config.LoadLatency).To(Equal(uint64(4)))
			Expect(config.StoreLatency).To(Equal(uint64(1)))
			Expect(config.BranchMispredictPenalty).To(Equal(uint64(14)))
			Expect(config.SyscallLatency).To(Equal(uint64(1)))
		})
	})

	DescribeTable("GetLatency",
		func(src string, want uint64) {
			Expect(table.GetLatency(parseOne(src))).To(Equal(want))
		},
		Entry("register add", "add %rbx, %rax", uint64(1)),
		Entry("immediate xor", "xor $1, %eax", uint64(1)),
		Entry("register move", "mov %rbx, %rax", uint64(1)),
		Entry("lea", "lea 8(%rbx,%rcx,4), %rax", uint64(1)),
		Entry("load", "mov (%rbx), %rax", uint64(4)),
		Entry("store", "mov %rax, (%rbx)", uint64(1)),
		Entry("add from memory", "add (%rbx), %rax", uint64(5)),
		Entry("add to memory", "addq $1, (%rbx)", uint64(6)),
		Entry("compare with memory", "cmpq $1, (%rbx)", uint64(5)),
		Entry("increment memory", "incl (%rbx)", uint64(6)),
		Entry("push register", "push %rax", uint64(1)),
		Entry("push memory", "pushq (%rax)", uint64(5)),
		Entry("pop register", "pop %rax", uint64(4)),
		Entry("leave", "leave", uint64(4)),
		Entry("jmp", "jmp target", uint64(1)),
		Entry("jcc", "jne target", uint64(1)),
		Entry("call", "call target", uint64(1)),
		Entry("ret", "ret", uint64(1)),
		Entry("syscall", "syscall", uint64(1)),
		Entry("nop", "nop", uint64(1)),
	)

	Describe("Instruction Type Detection", func() {
		It("should detect loads", func() {
			Expect(table.IsLoadOp(parseOne("mov (%rbx), %rax"))).To(BeTrue())
			Expect(table.IsLoadOp(parseOne("pop %rax"))).To(BeTrue())
			Expect(table.IsLoadOp(parseOne("ret"))).To(BeTrue())
			Expect(table.IsLoadOp(parseOne("jmp *(%rax)"))).To(BeTrue())
			Expect(table.IsLoadOp(parseOne("lea (%rbx), %rax"))).To(BeFalse())
			Expect(table.IsLoadOp(parseOne("mov %rax, (%rbx)"))).To(BeFalse())
		})

		It("should detect stores", func() {
			Expect(table.IsStoreOp(parseOne("mov %rax, (%rbx)"))).To(BeTrue())
			Expect(table.IsStoreOp(parseOne("push %rax"))).To(BeTrue())
			Expect(table.IsStoreOp(parseOne("call f"))).To(BeTrue())
			Expect(table.IsStoreOp(parseOne("subl $1, (%rbx)"))).To(BeTrue())
			Expect(table.IsStoreOp(parseOne("cmpl $1, (%rbx)"))).To(BeFalse())
			Expect(table.IsStoreOp(parseOne("pop %rax"))).To(BeFalse())
		})

		It("should detect memory operations", func() {
			Expect(table.IsMemoryOp(parseOne("test %rax, (%rbx)"))).To(BeTrue())
			Expect(table.IsMemoryOp(parseOne("test %rax, %rbx"))).To(BeFalse())
		})

		It("should detect branches", func() {
			Expect(table.IsBranchOp(parseOne("jmp f"))).To(BeTrue())
			Expect(table.IsBranchOp(parseOne("ret"))).To(BeTrue())
			Expect(table.IsBranchOp(parseOne("syscall"))).To(BeFalse())
			Expect(table.IsConditionalBranch(parseOne("jle f"))).To(BeTrue())
			Expect(table.IsConditionalBranch(parseOne("jmp f"))).To(BeFalse())
		})
	})

	Describe("Nil Instruction Handling", func() {
		It("should return 1 for nil instruction", func() {
			Expect(table.GetLatency(nil)).To(Equal(uint64(1)))
		})

		It("should return false for nil instruction checks", func() {
			Expect(table.IsMemoryOp(nil)).To(BeFalse())
			Expect(table.IsLoadOp(nil)).To(BeFalse())
			Expect(table.IsStoreOp(nil)).To(BeFalse())
			Expect(table.IsBranchOp(nil)).To(BeFalse())
			Expect(table.IsConditionalBranch(nil)).To(BeFalse())
		})
	})

	Describe("Custom Configuration", func() {
		It("should use custom config values", func() {
			config := &latency.TimingConfig{
				ALULatency:     2,
				BranchLatency:  3,
				LoadLatency:    5,
				StoreLatency:   2,
				SyscallLatency: 50,
			}
			customTable := latency.NewTableWithConfig(config)

			Expect(customTable.GetLatency(parseOne("add %rbx, %rax"))).To(Equal(uint64(2)))
			Expect(customTable.GetLatency(parseOne("jmp f"))).To(Equal(uint64(3)))
			Expect(customTable.GetLatency(parseOne("mov (%rbx), %rax"))).To(Equal(uint64(5)))
			Expect(customTable.GetLatency(parseOne("mov %rax, (%rbx)"))).To(Equal(uint64(2)))
			Expect(customTable.GetLatency(parseOne("syscall"))).To(Equal(uint64(50)))
		})
	})
})

var _ = Describe("TimingConfig", func() {
	Describe("Validation", func() {
		It("should accept the default config", func() {
			Expect(latency.DefaultTimingConfig().Validate()).To(Succeed())
		})

		DescribeTable("zero latencies",
			func(mutate func(*latency.TimingConfig), field string) {
				config := latency.DefaultTimingConfig()
				mutate(config)
				Expect(config.Validate()).To(MatchError(ContainSubstring(field)))
			},
			Entry("alu", func(c *latency.TimingConfig) { c.ALULatency = 0 }, "alu_latency"),
			Entry("branch", func(c *latency.TimingConfig) { c.BranchLatency = 0 }, "branch_latency"),
			Entry("load", func(c *latency.TimingConfig) { c.LoadLatency = 0 }, "load_latency"),
			Entry("store", func(c *latency.TimingConfig) { c.StoreLatency = 0 }, "store_latency"),
			Entry("syscall", func(c *latency.TimingConfig) { c.SyscallLatency = 0 }, "syscall_latency"),
		)
	})

	Describe("Clone", func() {
		It("should create independent copy", func() {
			original := latency.DefaultTimingConfig()
			clone := original.Clone()

			clone.ALULatency = 99
			Expect(original.ALULatency).To(Equal(uint64(1)))
			Expect(clone.LoadLatency).To(Equal(original.LoadLatency))
		})
	})

	Describe("File Operations", func() {
		var dir string

		BeforeEach(func() {
			dir = GinkgoT().TempDir()
		})

		It("should save and load config", func() {
			path := filepath.Join(dir, "timing.json")
			config := latency.DefaultTimingConfig()
			config.LoadLatency = 7

			Expect(config.SaveConfig(path)).To(Succeed())
			loaded, err := latency.LoadConfig(path)
			Expect(err).NotTo(HaveOccurred())
			Expect(loaded).To(Equal(config))
		})

		It("should keep defaults for missing fields", func() {
			path := filepath.Join(dir, "partial.json")
			Expect(os.WriteFile(path, []byte(`{"alu_latency": 3}`), 0644)).To(Succeed())

			loaded, err := latency.LoadConfig(path)
			Expect(err).NotTo(HaveOccurred())
			Expect(loaded.ALULatency).To(Equal(uint64(3)))
			Expect(loaded.LoadLatency).To(Equal(uint64(4)))
		})

		It("should return error for non-existent file", func() {
			_, err := latency.LoadConfig(filepath.Join(dir, "missing.json"))
			Expect(err).To(HaveOccurred())
		})

		It("should return error for invalid JSON", func() {
			path := filepath.Join(dir, "bad.json")
			Expect(os.WriteFile(path, []byte("{not json"), 0644)).To(Succeed())

			_, err := latency.LoadConfig(path)
			Expect(err).To(HaveOccurred())
		})
	})
})
