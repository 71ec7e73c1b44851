package config

import (
	"fmt"
	"time"
)

// Config represents an agentcore.yaml configuration file: Supervisor, Sync,
// and Storage retention options per spec.md 6. All values are optional;
// zero values fall back to each component's own defaults.
type Config struct {
	Supervisor SupervisorConfig `yaml:"supervisor"`
	Sync       SyncConfig       `yaml:"sync"`
	Storage    StorageConfig    `yaml:"storage"`
}

// QueueStrategy is the supervisor's pending-queue overflow policy.
type QueueStrategy string

// QueueStrategy values per spec.md 6.
const (
	QueueStrategySuspend  QueueStrategy = "suspend"
	QueueStrategyDropping QueueStrategy = "dropping"
	QueueStrategySliding  QueueStrategy = "sliding"
)

// EventBufferStrategy is the supervisor event bus's back-pressure policy.
type EventBufferStrategy string

// EventBufferStrategy values, mirroring QueueStrategy's overflow vocabulary.
const (
	EventBufferSuspend  EventBufferStrategy = "suspend"
	EventBufferDropping EventBufferStrategy = "dropping"
	EventBufferSliding  EventBufferStrategy = "sliding"
)

// SupervisorConfig holds Query Supervisor options per spec.md 6.
type SupervisorConfig struct {
	ConcurrencyLimit     int                 `yaml:"concurrency_limit"`
	PendingQueueCapacity int                 `yaml:"pending_queue_capacity"`
	PendingQueueStrategy QueueStrategy       `yaml:"pending_queue_strategy"`
	MaxPendingTime       Duration            `yaml:"max_pending_time"`
	MetricsEnabled       bool                `yaml:"metrics_enabled"`
	TracingEnabled       bool                `yaml:"tracing_enabled"`
	EmitEvents           bool                `yaml:"emit_events"`
	EventBufferCapacity  int                 `yaml:"event_buffer_capacity"`
	EventBufferStrategy  EventBufferStrategy `yaml:"event_buffer_strategy"`
}

// SyncConfig holds Sync Service options per spec.md 6.
type SyncConfig struct {
	URL          string   `yaml:"url"`
	SyncInterval Duration `yaml:"sync_interval"`
	DisablePing  bool     `yaml:"disable_ping"`
	Protocols    []string `yaml:"protocols"`
}

// ChatRetentionConfig bounds per-session chat history retention.
type ChatRetentionConfig struct {
	MaxEvents int      `yaml:"max_events"`
	MaxAge    Duration `yaml:"max_age"`
}

// ArtifactRetentionConfig bounds artifact retention.
type ArtifactRetentionConfig struct {
	MaxArtifacts     int      `yaml:"max_artifacts"`
	MaxArtifactBytes int64    `yaml:"max_artifact_bytes"`
	MaxAge           Duration `yaml:"max_age"`
}

// EnabledStoresConfig gates whether each store projection accepts writes.
type EnabledStoresConfig struct {
	ChatHistory bool `yaml:"chat_history"`
	Artifacts   bool `yaml:"artifacts"`
}

// StorageConfig holds storage retention options per spec.md 6.
type StorageConfig struct {
	Chat      ChatRetentionConfig     `yaml:"chat"`
	Artifacts ArtifactRetentionConfig `yaml:"artifacts"`
	Enabled   EnabledStoresConfig     `yaml:"enabled"`
}

// Duration wraps time.Duration for YAML string parsing (e.g. "10s", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "5m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// Default returns the configuration a caller gets when no config file is
// supplied: a bounded supervisor and periodic sync, matching spec.md 6's
// stated boundary behaviours (pendingQueueCapacity of 0 admits directly;
// syncInterval <= 0 disables the scheduler) only when explicitly set to
// those values, not as defaults.
func Default() Config {
	return Config{
		Supervisor: SupervisorConfig{
			ConcurrencyLimit:     4,
			PendingQueueCapacity: 64,
			PendingQueueStrategy: QueueStrategySuspend,
			MetricsEnabled:       true,
			EmitEvents:           true,
			EventBufferCapacity:  256,
			EventBufferStrategy:  EventBufferDropping,
		},
		Sync: SyncConfig{
			SyncInterval: Duration{Duration: 30 * time.Second},
		},
		Storage: StorageConfig{
			Chat: ChatRetentionConfig{
				MaxEvents: 10000,
			},
			Artifacts: ArtifactRetentionConfig{
				MaxArtifacts:     1000,
				MaxArtifactBytes: 1 << 30,
			},
			Enabled: EnabledStoresConfig{ChatHistory: true, Artifacts: true},
		},
	}
}
