// Package config holds the engine-wide tunables: node sizing, the level-0
// sealing threshold, the doubling-array level-table size, the B-tree depth
// ceiling, cache sizing, and merge concurrency limits.
package config

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"gopkg.in/yaml.v3"
)

// Config holds every tunable the engine reads at startup. The zero-value
// Config is not valid; use Default() or Load() and then Validate().
type Config struct {
	// NodeSizeBlocks is the size of a B-tree node, in blocks.
	NodeSizeBlocks uint32 `yaml:"node-size-blocks" mapstructure:"node-size-blocks" validate:"required,min=1"`

	// BlockSizeBytes is the size of a single block in bytes.
	BlockSizeBytes uint32 `yaml:"block-size-bytes" mapstructure:"block-size-bytes" validate:"required,min=512"`

	// SealThreshold is the number of entries level 0 accumulates before it
	// is sealed and promoted to a new level-1 immutable component tree.
	// Left as a real parameter rather than a compiled-in constant.
	SealThreshold uint32 `yaml:"seal-threshold" mapstructure:"seal-threshold" validate:"required,min=1"`

	// MaxDALevel sizes the doubling array's initial level table. It is not
	// an upper bound: merges keep promoting into new levels beyond it.
	MaxDALevel uint32 `yaml:"max-da-level" mapstructure:"max-da-level" validate:"required,min=1"`

	// MaxBTreeDepth bounds the depth of any single component tree's B-tree.
	MaxBTreeDepth uint32 `yaml:"max-btree-depth" mapstructure:"max-btree-depth" validate:"required,min=1"`

	// CacheTargetSize is the number of blocks the page cache retains
	// before evicting.
	CacheTargetSize int `yaml:"cache-target-size" mapstructure:"cache-target-size" validate:"required,min=1"`

	// MergeInputCap is validated to lie between 2 and 10. The merged
	// iterator does not read it; it applies its own fixed cap of 10 inputs.
	MergeInputCap int `yaml:"merge-input-cap" mapstructure:"merge-input-cap" validate:"required,min=2,max=10"`

	// MaxConcurrentMerges bounds the number of merge units running across
	// all levels simultaneously (one merge per level is always allowed;
	// this additionally bounds the cross-level total).
	MaxConcurrentMerges int `yaml:"max-concurrent-merges" mapstructure:"max-concurrent-merges" validate:"required,min=1"`
}

// Default returns the engine's baseline configuration.
func Default() *Config {
	return &Config{
		NodeSizeBlocks:      4,
		BlockSizeBytes:      4096,
		SealThreshold:       1000,
		MaxDALevel:          10,
		MaxBTreeDepth:       8,
		CacheTargetSize:     4096,
		MergeInputCap:       10,
		MaxConcurrentMerges: 4,
	}
}

// Load reads a YAML configuration file, overlaying it on Default(), and
// validates the result.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var generic map[string]any
	if err := yaml.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg := Default()
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, fmt.Errorf("creating decoder: %w", err)
	}
	if err := decoder.Decode(generic); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration's invariants using struct tags.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}
	return nil
}
