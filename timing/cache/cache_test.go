package cache_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/asmsim/timing/cache"
)

var _ = Describe("Cache", func() {
	var c *cache.Cache

	BeforeEach(func() {
		// Small cache for testing: 4KB, 4-way, 64B lines, 16 sets
		c = cache.New(cache.Config{
			Size:          4 * 1024,
			Associativity: 4,
			BlockSize:     64,
			HitLatency:    1,
			MissLatency:   10,
		})
	})

	Describe("Read operations", func() {
		It("should miss on cold cache", func() {
			result := c.Read(0x1000, 8)
			Expect(result.Hit).To(BeFalse())
			Expect(result.Latency).To(Equal(uint64(10)))

			stats := c.Stats()
			Expect(stats.Reads).To(Equal(uint64(1)))
			Expect(stats.Misses).To(Equal(uint64(1)))
			Expect(stats.Hits).To(Equal(uint64(0)))
		})

		It("should hit on cached lines", func() {
			c.Read(0x1000, 8)

			result := c.Read(0x1000, 8)
			Expect(result.Hit).To(BeTrue())
			Expect(result.Latency).To(Equal(uint64(1)))
			Expect(c.Stats().HitRate()).To(BeNumerically("~", 0.5))
		})

		It("should hit on different addresses in same cache line", func() {
			c.Read(0x1000, 4)

			Expect(c.Read(0x1004, 4).Hit).To(BeTrue())
			Expect(c.Contains(0x103F)).To(BeTrue())
			Expect(c.Contains(0x1040)).To(BeFalse())
		})

		It("should touch both lines of a split access", func() {
			c.Read(0x1000, 8)

			result := c.Read(0x103C, 8)
			Expect(result.Lines).To(Equal(2))
			Expect(result.Hit).To(BeFalse())
			Expect(result.Latency).To(Equal(uint64(10)))
			Expect(c.Contains(0x1040)).To(BeTrue())
		})
	})

	Describe("Write operations", func() {
		It("should write-allocate on miss", func() {
			result := c.Write(0x1000, 8)
			Expect(result.Hit).To(BeFalse())
			Expect(result.Latency).To(Equal(uint64(10)))

			Expect(c.Read(0x1000, 8).Hit).To(BeTrue())
		})

		It("should dispatch through Access", func() {
			c.Access(0x1000, 8, true)
			c.Access(0x1000, 8, false)

			stats := c.Stats()
			Expect(stats.Writes).To(Equal(uint64(1)))
			Expect(stats.Reads).To(Equal(uint64(1)))
			Expect(stats.Hits).To(Equal(uint64(1)))
		})
	})

	Describe("Eviction", func() {
		fillSet := func() {
			// 0x0000, 0x0400, 0x0800 and 0x0C00 all map to set 0
			c.Write(0x0000, 8)
			c.Write(0x0400, 8)
			c.Write(0x0800, 8)
			c.Write(0x0C00, 8)
		}

		It("should evict when a set is full", func() {
			fillSet()
			Expect(c.Read(0x0000, 8).Hit).To(BeTrue())

			result := c.Read(0x1000, 8)
			Expect(result.Hit).To(BeFalse())
			Expect(result.Evicted).To(BeTrue())
			Expect(result.EvictedAddr).To(Equal(uint64(0x0400)))
			Expect(c.Stats().Evictions).To(Equal(uint64(1)))
		})

		It("should count writebacks of dirty victims", func() {
			fillSet()
			c.Read(0x0400, 8)
			c.Read(0x0800, 8)
			c.Read(0x0C00, 8)

			c.Read(0x1000, 8)
			Expect(c.Contains(0x0000)).To(BeFalse())
			Expect(c.Stats().Writebacks).To(Equal(uint64(1)))
		})
	})

	Describe("Flush and Reset", func() {
		It("should write back dirty blocks and invalidate everything", func() {
			c.Write(0x0000, 8)
			c.Write(0x1000, 8)
			c.Read(0x2000, 8)

			c.Flush()
			Expect(c.Stats().Writebacks).To(Equal(uint64(2)))
			Expect(c.Contains(0x0000)).To(BeFalse())
			Expect(c.Contains(0x2000)).To(BeFalse())
		})

		It("should clear lines and statistics on reset", func() {
			c.Read(0x0000, 8)
			c.Reset()

			Expect(c.Stats()).To(Equal(cache.Statistics{}))
			Expect(c.Read(0x0000, 8).Hit).To(BeFalse())
		})

		It("should invalidate single lines", func() {
			c.Read(0x0000, 8)
			c.Invalidate(0x0010)
			Expect(c.Contains(0x0000)).To(BeFalse())
		})
	})

	Describe("Config", func() {
		It("should provide a valid L1D default", func() {
			config := cache.DefaultL1DConfig()
			Expect(config.Size).To(Equal(32 * 1024))
			Expect(config.Associativity).To(Equal(8))
			Expect(config.BlockSize).To(Equal(64))
			Expect(config.Validate()).To(Succeed())
		})

		DescribeTable("invalid geometry",
			func(mutate func(*cache.Config)) {
				config := cache.DefaultL1DConfig()
				mutate(&config)
				Expect(config.Validate()).NotTo(Succeed())
			},
			Entry("block size not a power of two", func(c *cache.Config) { c.BlockSize = 48 }),
			Entry("zero ways", func(c *cache.Config) { c.Associativity = 0 }),
			Entry("size not a multiple of a set", func(c *cache.Config) { c.Size = 1000 }),
			Entry("zero hit latency", func(c *cache.Config) { c.HitLatency = 0 }),
			Entry("miss faster than hit", func(c *cache.Config) { c.MissLatency = 1 }),
		)
	})
})
