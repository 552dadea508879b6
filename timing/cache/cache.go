// Package cache models a set-associative data cache using Akita cache
// components. The model tracks tags only: guest data always lives in
// emulator memory, the cache decides hit or miss and the access latency.
package cache

import (
	"fmt"

	akitacache "github.com/sarchlab/akita/v4/mem/cache"
)

// Config holds cache configuration parameters.
type Config struct {
	// Size in bytes
	Size int `toml:"size"`
	// Associativity (number of ways)
	Associativity int `toml:"associativity"`
	// BlockSize in bytes (cache line size)
	BlockSize int `toml:"block_size"`
	// HitLatency in cycles
	HitLatency uint64 `toml:"hit_latency"`
	// MissLatency in cycles (includes memory access time)
	MissLatency uint64 `toml:"miss_latency"`
}

// DefaultL1DConfig returns a typical x86-64 L1 data cache: 32KB, 8-way,
// 64B lines.
func DefaultL1DConfig() Config {
	return Config{
		Size:          32 * 1024,
		Associativity: 8,
		BlockSize:     64,
		HitLatency:    4,
		MissLatency:   40,
	}
}

// Validate checks that the geometry describes at least one full set.
func (c Config) Validate() error {
	switch {
	case c.BlockSize <= 0 || c.BlockSize&(c.BlockSize-1) != 0:
		return errorf("block_size must be a power of two, got %d", c.BlockSize)
	case c.Associativity <= 0:
		return errorf("associativity must be > 0, got %d", c.Associativity)
	case c.Size < c.Associativity*c.BlockSize || c.Size%(c.Associativity*c.BlockSize) != 0:
		return errorf("size %d is not a multiple of associativity*block_size", c.Size)
	case c.HitLatency == 0:
		return errorf("hit_latency must be > 0")
	case c.MissLatency < c.HitLatency:
		return errorf("miss_latency must be >= hit_latency")
	}
	return nil
}

func errorf(format string, args ...any) error {
	return fmt.Errorf("cache: "+format, args...)
}

// AccessResult contains the result of a cache access.
type AccessResult struct {
	// Hit indicates whether every line touched was already cached.
	Hit bool
	// Latency is the number of cycles this access takes.
	Latency uint64
	// Lines is the number of cache lines the access touched.
	Lines int
	// Evicted is true if a valid block was replaced.
	Evicted bool
	// EvictedAddr is the address of the last evicted block.
	EvictedAddr uint64
}

// Statistics holds cache performance statistics.
type Statistics struct {
	Reads      uint64
	Writes     uint64
	Hits       uint64
	Misses     uint64
	Evictions  uint64
	Writebacks uint64
}

// HitRate returns hits over all line lookups, or 0 before any access.
func (s Statistics) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// Cache is a write-allocate, write-back tag store with LRU replacement.
type Cache struct {
	config    Config
	directory *akitacache.DirectoryImpl
	stats     Statistics
}

// New creates a new cache with the given configuration.
func New(config Config) *Cache {
	numSets := config.Size / (config.Associativity * config.BlockSize)

	return &Cache{
		config: config,
		directory: akitacache.NewDirectory(
			numSets,
			config.Associativity,
			config.BlockSize,
			akitacache.NewLRUVictimFinder(),
		),
	}
}

// Config returns the cache configuration.
func (c *Cache) Config() Config {
	return c.config
}

// Stats returns cache statistics.
func (c *Cache) Stats() Statistics {
	return c.stats
}

// ResetStats clears cache statistics.
func (c *Cache) ResetStats() {
	c.stats = Statistics{}
}

func (c *Cache) blockAddr(addr uint64) uint64 {
	return addr / uint64(c.config.BlockSize) * uint64(c.config.BlockSize)
}

// Read performs a cache read of size bytes at addr.
func (c *Cache) Read(addr uint64, size int) AccessResult {
	c.stats.Reads++
	return c.access(addr, size, false)
}

// Write performs a cache write of size bytes at addr.
func (c *Cache) Write(addr uint64, size int) AccessResult {
	c.stats.Writes++
	return c.access(addr, size, true)
}

// Access dispatches to Read or Write.
func (c *Cache) Access(addr uint64, size int, isWrite bool) AccessResult {
	if isWrite {
		return c.Write(addr, size)
	}
	return c.Read(addr, size)
}

// access looks up every line in [addr, addr+size). The latency is the
// slowest line's.
func (c *Cache) access(addr uint64, size int, isWrite bool) AccessResult {
	if size <= 0 {
		size = 1
	}

	result := AccessResult{Hit: true}
	first := c.blockAddr(addr)
	last := c.blockAddr(addr + uint64(size) - 1)

	for line := first; ; line += uint64(c.config.BlockSize) {
		r := c.accessLine(line, isWrite)
		result.Lines++
		result.Hit = result.Hit && r.Hit
		result.Latency = max(result.Latency, r.Latency)
		if r.Evicted {
			result.Evicted = true
			result.EvictedAddr = r.EvictedAddr
		}
		if line >= last {
			break
		}
	}

	return result
}

func (c *Cache) accessLine(blockAddr uint64, isWrite bool) AccessResult {
	block := c.directory.Lookup(0, blockAddr)
	if block != nil && block.IsValid {
		c.stats.Hits++
		c.directory.Visit(block)
		if isWrite {
			block.IsDirty = true
		}
		return AccessResult{Hit: true, Latency: c.config.HitLatency}
	}

	c.stats.Misses++
	result := AccessResult{Latency: c.config.MissLatency}

	victim := c.directory.FindVictim(blockAddr)
	if victim == nil {
		return result
	}

	if victim.IsValid {
		c.stats.Evictions++
		result.Evicted = true
		result.EvictedAddr = victim.Tag
		if victim.IsDirty {
			c.stats.Writebacks++
		}
	}

	victim.Tag = blockAddr
	victim.IsValid = true
	victim.IsDirty = isWrite
	c.directory.Visit(victim)

	return result
}

// Contains reports whether the line holding addr is cached.
func (c *Cache) Contains(addr uint64) bool {
	block := c.directory.Lookup(0, c.blockAddr(addr))
	return block != nil && block.IsValid
}

// Invalidate marks a cache line as invalid.
func (c *Cache) Invalidate(addr uint64) {
	block := c.directory.Lookup(0, c.blockAddr(addr))
	if block != nil && block.IsValid {
		block.IsValid = false
		block.IsDirty = false
	}
}

// Flush counts a writeback for every dirty block and invalidates all
// blocks.
func (c *Cache) Flush() {
	for _, set := range c.directory.GetSets() {
		for _, block := range set.Blocks {
			if block.IsValid && block.IsDirty {
				c.stats.Writebacks++
			}
			block.IsValid = false
			block.IsDirty = false
		}
	}
}

// Reset invalidates all cache lines and clears statistics.
func (c *Cache) Reset() {
	c.directory.Reset()
	c.stats = Statistics{}
}
