package core_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/asmsim/timing/core"
)

var _ = Describe("BranchPredictor", func() {
	var bp *core.BranchPredictor

	BeforeEach(func() {
		bp = core.NewBranchPredictor(core.BranchPredictorConfig{
			BHTSize: 16,
			BTBSize: 8,
		})
	})

	Describe("Prediction", func() {
		It("should initially predict taken without a target", func() {
			pred := bp.Predict(0x1000)
			Expect(pred.Taken).To(BeTrue())
			Expect(pred.TargetKnown).To(BeFalse())
		})

		It("should learn taken branches and their targets", func() {
			for i := 0; i < 10; i++ {
				bp.Update(0x1000, true, 0x2000)
			}

			pred := bp.Predict(0x1000)
			Expect(pred.Taken).To(BeTrue())
			Expect(pred.TargetKnown).To(BeTrue())
			Expect(pred.Target).To(Equal(uint64(0x2000)))
		})

		It("should learn not-taken branches", func() {
			for i := 0; i < 10; i++ {
				bp.Update(0x1000, false, 0)
			}
			Expect(bp.Predict(0x1000).Taken).To(BeFalse())
		})
	})

	Describe("2-bit saturating counter", func() {
		It("should require 2 mispredictions to change direction", func() {
			pc := uint64(0x1000)
			bp.Update(pc, true, 0x2000) // strongly taken

			bp.Update(pc, false, 0)
			Expect(bp.Predict(pc).Taken).To(BeTrue())

			bp.Update(pc, false, 0)
			Expect(bp.Predict(pc).Taken).To(BeFalse())
		})
	})

	Describe("BTB", func() {
		It("should not cache not-taken branches", func() {
			bp.Update(0x1000, false, 0x2000)
			Expect(bp.Predict(0x1000).TargetKnown).To(BeFalse())
		})

		It("should replace conflicting entries", func() {
			// 8 entries of 8-byte slots: 0x1000 and 0x1040 share an entry
			bp.Update(0x1000, true, 0x2000)
			bp.Update(0x1040, true, 0x3000)

			Expect(bp.Predict(0x1000).TargetKnown).To(BeFalse())
			Expect(bp.Predict(0x1040).Target).To(Equal(uint64(0x3000)))
		})

		It("should keep adjacent slots apart", func() {
			bp.Update(0x1000, true, 0x2000)
			bp.Update(0x1008, true, 0x3000)

			Expect(bp.Predict(0x1000).Target).To(Equal(uint64(0x2000)))
			Expect(bp.Predict(0x1008).Target).To(Equal(uint64(0x3000)))
		})
	})

	Describe("Statistics", func() {
		It("should track predictions, outcomes and BTB lookups", func() {
			bp.Predict(0x1000)
			bp.Update(0x1000, true, 0x2000)
			bp.Predict(0x1000)
			bp.Update(0x1000, false, 0)

			stats := bp.Stats()
			Expect(stats.Predictions).To(Equal(uint64(2)))
			Expect(stats.Correct).To(Equal(uint64(1)))
			Expect(stats.Mispredictions).To(Equal(uint64(1)))
			Expect(stats.BTBMisses).To(Equal(uint64(1)))
			Expect(stats.BTBHits).To(Equal(uint64(1)))
			Expect(stats.Accuracy()).To(BeNumerically("~", 50.0))
		})

		It("should report zero accuracy before any prediction", func() {
			Expect(bp.Stats().Accuracy()).To(BeZero())
		})
	})

	Describe("Reset", func() {
		It("should clear all state", func() {
			for i := 0; i < 5; i++ {
				bp.Update(0x1000, false, 0)
			}
			bp.Update(0x1008, true, 0x2000)

			bp.Reset()

			Expect(bp.Stats()).To(Equal(core.BranchPredictorStats{}))
			Expect(bp.Predict(0x1000).Taken).To(BeTrue())
			Expect(bp.Predict(0x1008).TargetKnown).To(BeFalse())
		})
	})

	It("should use sensible defaults", func() {
		config := core.DefaultBranchPredictorConfig()
		Expect(config.BHTSize).To(Equal(uint32(1024)))
		Expect(config.BTBSize).To(Equal(uint32(256)))
	})
})
