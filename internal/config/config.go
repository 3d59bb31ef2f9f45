// Package config centralizes the engine's configuration surface (spec
// §6), read from environment variables with cobra-flag overrides,
// following the teacher's env(key, default) helper idiom from
// cmd/server/main.go.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

// Config holds every recognized configuration option from spec §6.
type Config struct {
	ProbeIntervalMs  int64
	SyncIntervalMs   int64
	MaxRetries       int
	InitialBackoffMs int64
	MaxBackoffMs     int64
	BackoffMultiplier float64

	PushBatchSize int
	PullMaxChanges int

	MutationTTLms int64
	QueueSizeLimit int

	ResolverStrategy string

	SnapshotDivergenceThreshold int64

	RateLimitPerWindow int
	RateWindowMs       int64

	// ServerBaseURL and TenantID are ambient wiring concerns not named
	// by spec §6's option list but required to actually dial a server;
	// they come from the same env-var idiom.
	ServerBaseURL string
	TenantID      string
	ClientID      string
	DataDir       string
}

// Defaults returns the engine's built-in defaults, used when neither an
// environment variable nor a flag overrides them.
func Defaults() Config {
	return Config{
		ProbeIntervalMs:             15_000,
		SyncIntervalMs:              30_000,
		MaxRetries:                  5,
		InitialBackoffMs:            500,
		MaxBackoffMs:                30_000,
		BackoffMultiplier:           2.0,
		PushBatchSize:               25,
		PullMaxChanges:              200,
		MutationTTLms:               86_400_000,
		QueueSizeLimit:              1000,
		ResolverStrategy:            "lastwritewins",
		SnapshotDivergenceThreshold: 500,
		RateLimitPerWindow:          50,
		RateWindowMs:                10_000,
		DataDir:                     "./data",
	}
}

// env reads key from the environment, falling back to def when unset —
// mirrors cmd/server/main.go's env() helper in the teacher repo.
func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt64(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseInt(v, 10, 64); err == nil {
			return parsed
		}
	}
	return def
}

func envInt(key string, def int) int {
	return int(envInt64(key, int64(def)))
}

func envFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			return parsed
		}
	}
	return def
}

// FromEnv loads a Config from environment variables layered over
// Defaults().
func FromEnv() Config {
	d := Defaults()
	return Config{
		ProbeIntervalMs:             envInt64("SYNC_PROBE_INTERVAL_MS", d.ProbeIntervalMs),
		SyncIntervalMs:              envInt64("SYNC_INTERVAL_MS", d.SyncIntervalMs),
		MaxRetries:                  envInt("SYNC_MAX_RETRIES", d.MaxRetries),
		InitialBackoffMs:            envInt64("SYNC_INITIAL_BACKOFF_MS", d.InitialBackoffMs),
		MaxBackoffMs:                envInt64("SYNC_MAX_BACKOFF_MS", d.MaxBackoffMs),
		BackoffMultiplier:           envFloat("SYNC_BACKOFF_MULTIPLIER", d.BackoffMultiplier),
		PushBatchSize:               envInt("SYNC_PUSH_BATCH_SIZE", d.PushBatchSize),
		PullMaxChanges:              envInt("SYNC_PULL_MAX_CHANGES", d.PullMaxChanges),
		MutationTTLms:               envInt64("SYNC_MUTATION_TTL_MS", d.MutationTTLms),
		QueueSizeLimit:              envInt("SYNC_QUEUE_SIZE_LIMIT", d.QueueSizeLimit),
		ResolverStrategy:            env("SYNC_RESOLVER_STRATEGY", d.ResolverStrategy),
		SnapshotDivergenceThreshold: envInt64("SYNC_SNAPSHOT_DIVERGENCE_THRESHOLD", d.SnapshotDivergenceThreshold),
		RateLimitPerWindow:          envInt("SYNC_RATE_LIMIT_PER_WINDOW", d.RateLimitPerWindow),
		RateWindowMs:                envInt64("SYNC_RATE_WINDOW_MS", d.RateWindowMs),
		ServerBaseURL:               env("SYNC_SERVER_URL", "http://localhost:8080"),
		TenantID:                    env("SYNC_TENANT_ID", ""),
		ClientID:                    env("SYNC_CLIENT_ID", ""),
		DataDir:                     env("SYNC_DATA_DIR", d.DataDir),
	}
}

// BindFlags registers cobra flags for every option, each defaulting to
// the value already present in cfg (itself produced by FromEnv()), so
// the precedence is flag > env > built-in default — the same layering
// the teacher's cmd/server/main.go applies to its own options.
func BindFlags(cmd *cobra.Command, cfg *Config) {
	f := cmd.PersistentFlags()
	f.Int64Var(&cfg.ProbeIntervalMs, "probe-interval-ms", cfg.ProbeIntervalMs, "connectivity probe cadence")
	f.Int64Var(&cfg.SyncIntervalMs, "sync-interval-ms", cfg.SyncIntervalMs, "background sync cadence while online")
	f.IntVar(&cfg.MaxRetries, "max-retries", cfg.MaxRetries, "push retry ceiling before quarantine")
	f.Int64Var(&cfg.InitialBackoffMs, "initial-backoff-ms", cfg.InitialBackoffMs, "initial retry backoff")
	f.Int64Var(&cfg.MaxBackoffMs, "max-backoff-ms", cfg.MaxBackoffMs, "retry backoff ceiling")
	f.Float64Var(&cfg.BackoffMultiplier, "backoff-multiplier", cfg.BackoffMultiplier, "retry backoff multiplier")
	f.IntVar(&cfg.PushBatchSize, "push-batch-size", cfg.PushBatchSize, "mutations drained per push batch")
	f.IntVar(&cfg.PullMaxChanges, "pull-max-changes", cfg.PullMaxChanges, "changes requested per pull")
	f.Int64Var(&cfg.MutationTTLms, "mutation-ttl-ms", cfg.MutationTTLms, "max age of a pending mutation (parsed but not read by the sync engine; nothing reports stuck mutations)")
	f.IntVar(&cfg.QueueSizeLimit, "queue-size-limit", cfg.QueueSizeLimit, "per-tenant durable queue cap for Class B fallback")
	f.StringVar(&cfg.ResolverStrategy, "resolver-strategy", cfg.ResolverStrategy, "default conflict resolution strategy")
	f.Int64Var(&cfg.SnapshotDivergenceThreshold, "snapshot-divergence-threshold", cfg.SnapshotDivergenceThreshold, "changes-behind threshold to prefer snapshot over delta")
	f.IntVar(&cfg.RateLimitPerWindow, "rate-limit-per-window", cfg.RateLimitPerWindow, "realtime messages allowed per sliding window")
	f.Int64Var(&cfg.RateWindowMs, "rate-window-ms", cfg.RateWindowMs, "realtime sliding window width")
	f.StringVar(&cfg.ServerBaseURL, "server-url", cfg.ServerBaseURL, "replication server base URL")
	f.StringVar(&cfg.TenantID, "tenant-id", cfg.TenantID, "tenant this agent instance serves")
	f.StringVar(&cfg.ClientID, "client-id", cfg.ClientID, "this device's vector-clock identity")
	f.StringVar(&cfg.DataDir, "data-dir", cfg.DataDir, "local store base directory")
}

// ProbeInterval, SyncInterval and friends expose the duration-typed
// views of the millisecond config fields, used throughout the engine.
func (c Config) ProbeInterval() time.Duration  { return time.Duration(c.ProbeIntervalMs) * time.Millisecond }
func (c Config) SyncInterval() time.Duration   { return time.Duration(c.SyncIntervalMs) * time.Millisecond }
func (c Config) InitialBackoff() time.Duration { return time.Duration(c.InitialBackoffMs) * time.Millisecond }
func (c Config) MaxBackoff() time.Duration     { return time.Duration(c.MaxBackoffMs) * time.Millisecond }
func (c Config) MutationTTL() time.Duration    { return time.Duration(c.MutationTTLms) * time.Millisecond }
func (c Config) RateWindow() time.Duration     { return time.Duration(c.RateWindowMs) * time.Millisecond }
