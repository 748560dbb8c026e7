// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide Load() to build a Config from defaults, file and environment.
// - External errors must be wrapped via this package's error helpers.
package config

import (
	"runtime"
	"time"
)

// Config contains process configuration. Extend as needed.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// DataDir is the directory watched for data drops that trigger an
	// analytics view refresh. Empty disables the file watch.
	DataDir string `koanf:"data_dir"`

	// CachePath is the directory backing the hot cache. Empty selects
	// the in-memory cache.
	CachePath string `koanf:"cache_path"`

	// CacheTTLHours bounds how long cached packets and win probability
	// answers live.
	CacheTTLHours int `koanf:"cache_ttl_hours"`

	// ViewPath is the SQLite file backing the analytics view. Empty
	// falls back to a throwaway file under the OS temp directory.
	ViewPath string `koanf:"view_path"`

	// FeatureRegistryPath is the JSON feature schema registry file.
	// Empty keeps the registry in memory only.
	FeatureRegistryPath string `koanf:"feature_registry_path"`

	// MaxQueueDepth caps how many plays one ingest may queue.
	MaxQueueDepth int `koanf:"max_queue_depth"`

	// PredictionDelayMS simulates per-play prediction cost during
	// replay, before the pace multiplier is applied.
	PredictionDelayMS int `koanf:"prediction_delay_ms"`

	// ReplaySleepMS is the fixed pause between consecutive replayed
	// plays.
	ReplaySleepMS int `koanf:"replay_sleep_ms"`

	// TimelineCapacity bounds each session's rolling timeline history.
	TimelineCapacity int `koanf:"timeline_capacity"`

	// SampleCapacity bounds each session's latency sample lists.
	SampleCapacity int `koanf:"sample_capacity"`

	// ExplainTopK is how many ranked contributions a snapshot keeps.
	ExplainTopK int `koanf:"explain_top_k"`

	// ExplainSeed seeds the explanation weight PRNG. Equal seeds give
	// reproducible snapshots.
	ExplainSeed int64 `koanf:"explain_seed"`

	// ExplainDelayMS simulates explanation computation cost.
	ExplainDelayMS int `koanf:"explain_delay_ms"`

	// SmoothingAlpha is the exponential smoothing factor in (0, 1].
	SmoothingAlpha float64 `koanf:"smoothing_alpha"`

	// PipelineWorkers sets how many packet workers run concurrently.
	PipelineWorkers int `koanf:"pipeline_workers"`

	// PipelineQueueSize bounds each packet worker's pending queue.
	PipelineQueueSize int `koanf:"pipeline_queue_size"`

	// ViewRefreshSeconds is the periodic view refresh interval.
	ViewRefreshSeconds int `koanf:"view_refresh_seconds"`

	// DriftCheckSeconds is the periodic drift check interval.
	DriftCheckSeconds int `koanf:"drift_check_seconds"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:           "info",
		Addr:               ":9080",
		CacheTTLHours:      48,
		MaxQueueDepth:      256,
		PredictionDelayMS:  20,
		ReplaySleepMS:      10,
		TimelineCapacity:   512,
		SampleCapacity:     1024,
		ExplainTopK:        5,
		ExplainSeed:        42,
		ExplainDelayMS:     50,
		SmoothingAlpha:     0.15,
		PipelineWorkers:    runtime.NumCPU(),
		PipelineQueueSize:  64,
		ViewRefreshSeconds: 60,
		DriftCheckSeconds:  300,
	}
}

// CacheTTL returns the cache TTL as a duration.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLHours) * time.Hour
}

// PredictionDelay returns the simulated prediction cost as a duration.
func (c *Config) PredictionDelay() time.Duration {
	return time.Duration(c.PredictionDelayMS) * time.Millisecond
}

// ReplaySleep returns the inter-play pause as a duration.
func (c *Config) ReplaySleep() time.Duration {
	return time.Duration(c.ReplaySleepMS) * time.Millisecond
}

// ExplainDelay returns the simulated explanation cost as a duration.
func (c *Config) ExplainDelay() time.Duration {
	return time.Duration(c.ExplainDelayMS) * time.Millisecond
}

// ViewRefreshInterval returns the periodic refresh interval as a duration.
func (c *Config) ViewRefreshInterval() time.Duration {
	return time.Duration(c.ViewRefreshSeconds) * time.Second
}

// DriftCheckInterval returns the periodic drift interval as a duration.
func (c *Config) DriftCheckInterval() time.Duration {
	return time.Duration(c.DriftCheckSeconds) * time.Second
}
