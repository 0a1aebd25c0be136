package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/alfredjeanlab/eventcollector/internal/model"
)

// Config holds the process-level settings. Per-origin and per-target
// parameters are stored in the database, not here.
type Config struct {
	CollectorGroup       string `toml:"collector_group"`        // EVC_COLLECTOR_GROUP (required)
	DatabaseURL          string `toml:"database_url"`           // EVC_DATABASE_URL (required)
	LogLevel             string `toml:"log_level"`              // EVC_LOG_LEVEL (default "info")
	MaxProcessableEvents int    `toml:"max_processable_events"` // EVC_MAX_PROCESSABLE_EVENTS (0 = unlimited)
	ProcessingLog        string `toml:"processing_log"`         // EVC_PROCESSING_LOG (empty = stderr)
	NATSURL              string `toml:"nats_url"`               // EVC_NATS_URL (empty = no notifications)

	Export Export `toml:"export"`
}

// Export configures the audit trail export.
type Export struct {
	S3Bucket   string   `toml:"s3_bucket"`   // EVC_EXPORT_S3_BUCKET (enables S3 when set)
	S3Endpoint string   `toml:"s3_endpoint"` // EVC_EXPORT_S3_ENDPOINT (custom endpoint for MinIO)
	S3Region   string   `toml:"s3_region"`   // EVC_EXPORT_S3_REGION (default "us-east-1")
	S3Key      string   `toml:"s3_key"`      // EVC_EXPORT_S3_KEY (default "eventcollector/events.jsonl")
	GitRepo    string   `toml:"git_repo"`    // EVC_EXPORT_GIT_REPO (enables git when set)
	GitFile    string   `toml:"git_file"`    // EVC_EXPORT_GIT_FILE (default "events.jsonl")
	GitBranch  string   `toml:"git_branch"`  // EVC_EXPORT_GIT_BRANCH (default "main")
	Window     Duration `toml:"window"`      // EVC_EXPORT_WINDOW (default 24h)
}

// Duration is a time.Duration read from a string such as "90m".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// Load reads the TOML file at path, if any, and applies EVC_* environment
// overrides on top of it. An empty path falls back to EVC_CONFIG.
func Load(path string) (*Config, error) {
	c := &Config{}
	if path == "" {
		path = os.Getenv("EVC_CONFIG")
	}
	if path != "" {
		md, err := toml.DecodeFile(path, c)
		if err != nil {
			return nil, &model.ConfigError{Owner: path, Msg: err.Error()}
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, k := range undecoded {
				keys[i] = k.String()
			}
			return nil, &model.ConfigError{Owner: path, Msg: "unknown keys " + strings.Join(keys, ", ")}
		}
	}

	c.CollectorGroup = envOrDefault("EVC_COLLECTOR_GROUP", c.CollectorGroup)
	c.DatabaseURL = envOrDefault("EVC_DATABASE_URL", c.DatabaseURL)
	c.LogLevel = envOrDefault("EVC_LOG_LEVEL", orDefault(c.LogLevel, "info"))
	c.ProcessingLog = envOrDefault("EVC_PROCESSING_LOG", c.ProcessingLog)
	c.NATSURL = envOrDefault("EVC_NATS_URL", c.NATSURL)

	if v := os.Getenv("EVC_MAX_PROCESSABLE_EVENTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, &model.ConfigError{Owner: "EVC_MAX_PROCESSABLE_EVENTS", Msg: err.Error()}
		}
		c.MaxProcessableEvents = n
	}
	if c.MaxProcessableEvents < 0 {
		return nil, &model.ConfigError{Owner: "max_processable_events", Msg: "must not be negative"}
	}
	if _, err := c.SlogLevel(); err != nil {
		return nil, &model.ConfigError{Owner: "log_level", Msg: err.Error()}
	}

	e := &c.Export
	e.S3Bucket = envOrDefault("EVC_EXPORT_S3_BUCKET", e.S3Bucket)
	e.S3Endpoint = envOrDefault("EVC_EXPORT_S3_ENDPOINT", e.S3Endpoint)
	e.S3Region = envOrDefault("EVC_EXPORT_S3_REGION", orDefault(e.S3Region, "us-east-1"))
	e.S3Key = envOrDefault("EVC_EXPORT_S3_KEY", orDefault(e.S3Key, "eventcollector/events.jsonl"))
	e.GitRepo = envOrDefault("EVC_EXPORT_GIT_REPO", e.GitRepo)
	e.GitFile = envOrDefault("EVC_EXPORT_GIT_FILE", orDefault(e.GitFile, "events.jsonl"))
	e.GitBranch = envOrDefault("EVC_EXPORT_GIT_BRANCH", orDefault(e.GitBranch, "main"))
	if v := os.Getenv("EVC_EXPORT_WINDOW"); v != "" {
		if err := e.Window.UnmarshalText([]byte(v)); err != nil {
			return nil, &model.ConfigError{Owner: "EVC_EXPORT_WINDOW", Msg: err.Error()}
		}
	}
	if e.Window.Duration == 0 {
		e.Window.Duration = 24 * time.Hour
	}

	return c, nil
}

// RequireCollector checks the keys every command touching the store needs.
func (c *Config) RequireCollector() error {
	if c.CollectorGroup == "" {
		return &model.ConfigError{Owner: "collector_group", Msg: "is required"}
	}
	if c.DatabaseURL == "" {
		return &model.ConfigError{Owner: "database_url", Msg: "is required"}
	}
	return nil
}

// SlogLevel returns the configured log level.
func (c *Config) SlogLevel() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("unknown log level %q", c.LogLevel)
	}
	return l, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
