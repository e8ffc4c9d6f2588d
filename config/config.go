// Package config loads and validates a run's TOML configuration, covering
// every option in the §6 configuration-surface table: manifest location
// and mode, dispatcher chunk size, stage selection, resume/checkpoint
// behavior, progress cadence, conduit toggle, cache sizing, the optional
// L2 address, the ML model directory, and node count.
//
// Grounded on the teacher's config.go: BurntSushi/toml for decoding and a
// Validate method returning a plain error on a missing required field,
// the same shape as the teacher's ValidateLive.
package config

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/docvellum/vellum/errs"
	"github.com/docvellum/vellum/manifest"
	"github.com/docvellum/vellum/stage"
)

// Config is the full configuration surface for one run.
type Config struct {
	ManifestPath string `toml:"manifestPath"`
	ManifestMode string `toml:"manifestMode"` // "shared" | "broadcast"
	OutputDir    string `toml:"outputDir"`

	ChunkSize    int    `toml:"chunkSize"`
	StagesConfig string `toml:"stagesConfig"` // "none" | "fast" | "analysis" | "all" | an explicit numeric mask

	Resume                 bool   `toml:"resume"`
	CheckpointIntervalDocs int    `toml:"checkpointIntervalDocs"`
	CheckpointPath         string `toml:"checkpointPath"`

	ProgressIntervalSec int    `toml:"progressIntervalSec"`
	NATSAddress         string `toml:"natsAddress"`
	NodeID              string `toml:"nodeId"`

	ConduitEnabled bool `toml:"conduitEnabled"`

	CacheDir    string `toml:"cacheDir"`
	CacheSizeMB int    `toml:"cacheSizeMb"`
	L2Address   string `toml:"l2Address"`

	ModelDir       string `toml:"modelDir"`
	GPULibraryPath string `toml:"gpuLibraryPath"`

	NumLocales int `toml:"numLocales"`

	OutputFormat string `toml:"outputFormat"` // "scheme" | "json" | "csv"

	// BroadcastAddr is the driver's listen address in broadcast mode, or
	// the driver's dial address on a worker node.
	BroadcastAddr string `toml:"broadcastAddr"`
}

// Defaults returns a Config with every §6-documented default filled in.
func Defaults() Config {
	return Config{
		ManifestMode:           "shared",
		ChunkSize:              256,
		StagesConfig:           "fast",
		CheckpointIntervalDocs: 10000,
		ProgressIntervalSec:    60,
		ConduitEnabled:         true,
		CacheSizeMB:            10 * 1024,
		NumLocales:             1,
		OutputFormat:           "json",
	}
}

// Load reads path, decodes it over Defaults(), and validates the result.
func Load(path string) (*Config, error) {
	cfg := Defaults()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, errs.New(errs.Configuration, fmt.Sprintf("config: parse %s", path), err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks required fields and internal consistency, returning a
// Configuration-class error (exit code 1, per §6) on the first problem
// found.
func (c *Config) Validate() error {
	if c.ManifestPath == "" {
		return errs.New(errs.Configuration, "config: manifestPath is required", nil)
	}
	if c.OutputDir == "" {
		return errs.New(errs.Configuration, "config: outputDir is required", nil)
	}

	mode, err := manifest.ParseMode(c.ManifestMode)
	if err != nil {
		return errs.New(errs.Configuration, "config: manifestMode", err)
	}
	if mode == manifest.Broadcast && c.BroadcastAddr == "" {
		return errs.New(errs.Configuration, "config: broadcastAddr is required when manifestMode is broadcast", nil)
	}

	if c.ChunkSize <= 0 {
		return errs.New(errs.Configuration, "config: chunkSize must be positive", nil)
	}
	if c.CheckpointIntervalDocs <= 0 {
		return errs.New(errs.Configuration, "config: checkpointIntervalDocs must be positive", nil)
	}
	if c.ProgressIntervalSec <= 0 {
		return errs.New(errs.Configuration, "config: progressIntervalSec must be positive", nil)
	}
	if c.CacheSizeMB <= 0 {
		return errs.New(errs.Configuration, "config: cacheSizeMb must be positive", nil)
	}
	if c.NumLocales <= 0 {
		return errs.New(errs.Configuration, "config: numLocales must be positive", nil)
	}

	if _, ok := stage.Named(c.StagesConfig); !ok {
		if _, err := parseExplicitMask(c.StagesConfig); err != nil {
			return errs.New(errs.Configuration, "config: stagesConfig", err)
		}
	}

	switch c.OutputFormat {
	case "scheme", "json", "csv":
	default:
		return errs.New(errs.Configuration, fmt.Sprintf("config: unknown outputFormat %q", c.OutputFormat), nil)
	}

	return nil
}

func parseExplicitMask(s string) (stage.Mask, error) {
	var v uint64
	if _, err := fmt.Sscanf(s, "%d", &v); err != nil {
		return 0, fmt.Errorf("not a preset name or a numeric mask: %q", s)
	}
	return stage.Mask(v), nil
}

// StageMask resolves StagesConfig to a concrete bitmask.
func (c *Config) StageMask() (stage.Mask, error) {
	if m, ok := stage.Named(c.StagesConfig); ok {
		return m, nil
	}
	return parseExplicitMask(c.StagesConfig)
}

// Workers returns the local worker-pool size: the node's logical CPU
// count unless overridden would ever be added; §4.5 names no override
// option, so this always reflects the runtime.
func (c *Config) Workers() int {
	return runtime.NumCPU()
}

// ProgressInterval returns ProgressIntervalSec as a time.Duration.
func (c *Config) ProgressInterval() time.Duration {
	return time.Duration(c.ProgressIntervalSec) * time.Second
}

// ResolvedCheckpointPath returns CheckpointPath, defaulting to a
// node-scoped file under OutputDir when unset.
func (c *Config) ResolvedCheckpointPath() string {
	if c.CheckpointPath != "" {
		return c.CheckpointPath
	}
	nodeID := c.NodeID
	if nodeID == "" {
		nodeID = "node"
	}
	return c.OutputDir + string(os.PathSeparator) + nodeID + ".checkpoint"
}
