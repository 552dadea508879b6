package latency

import (
	"encoding/json"
	"fmt"
	"os"
)

// TimingConfig holds latency values for different instruction types.
// Memory latencies assume an L1 hit; the data cache model adds the miss
// penalty on top.
type TimingConfig struct {
	// ALULatency is the execution latency for arithmetic and logic
	// operations, register moves and lea. Default: 1 cycle.
	ALULatency uint64 `json:"alu_latency" toml:"alu_latency"`

	// BranchLatency is the base execution latency for jmp, jcc, call and ret.
	// Default: 1 cycle.
	BranchLatency uint64 `json:"branch_latency" toml:"branch_latency"`

	// BranchMispredictPenalty is the additional cycles lost on a
	// mispredicted conditional branch. Default: 14 cycles.
	BranchMispredictPenalty uint64 `json:"branch_mispredict_penalty" toml:"branch_mispredict_penalty"`

	// LoadLatency is the load-to-use latency on an L1 hit. Default: 4 cycles.
	LoadLatency uint64 `json:"load_latency" toml:"load_latency"`

	// StoreLatency is the latency for stores (retired to the store buffer).
	// Default: 1 cycle.
	StoreLatency uint64 `json:"store_latency" toml:"store_latency"`

	// SyscallLatency is the latency for the syscall instruction itself.
	// Default: 1 cycle (handling is external).
	SyscallLatency uint64 `json:"syscall_latency" toml:"syscall_latency"`
}

// DefaultTimingConfig returns a TimingConfig with typical x86-64 core
// values.
func DefaultTimingConfig() *TimingConfig {
	return &TimingConfig{
		ALULatency:              1,
		BranchLatency:           1,
		BranchMispredictPenalty: 14,
		LoadLatency:             4,
		StoreLatency:            1,
		SyscallLatency:          1,
	}
}

// LoadConfig loads a TimingConfig from a JSON file. Missing fields keep
// their default values.
func LoadConfig(path string) (*TimingConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read timing config file: %w", err)
	}

	config := DefaultTimingConfig()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse timing config: %w", err)
	}

	return config, nil
}

// SaveConfig writes a TimingConfig to a JSON file.
func (c *TimingConfig) SaveConfig(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize timing config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write timing config file: %w", err)
	}

	return nil
}

// Validate checks that all latency values are valid (> 0).
func (c *TimingConfig) Validate() error {
	if c.ALULatency == 0 {
		return fmt.Errorf("alu_latency must be > 0")
	}
	if c.BranchLatency == 0 {
		return fmt.Errorf("branch_latency must be > 0")
	}
	if c.LoadLatency == 0 {
		return fmt.Errorf("load_latency must be > 0")
	}
	if c.StoreLatency == 0 {
		return fmt.Errorf("store_latency must be > 0")
	}
	if c.SyscallLatency == 0 {
		return fmt.Errorf("syscall_latency must be > 0")
	}
	return nil
}

// Clone returns a copy of the TimingConfig.
func (c *TimingConfig) Clone() *TimingConfig {
	clone := *c
	return &clone
}
