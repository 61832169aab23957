// Package config assembles runtime settings from an optional YAML file and
// the process environment. Environment variables win over the file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"timelines/pkg/timeline"
)

// Environment variables read by ApplyEnv.
const (
	EnvStorageDriver  = "TIMELINES_STORAGE_DRIVER"
	EnvSQLitePath     = "TIMELINES_SQLITE_PATH"
	EnvPostgresDSN    = "TIMELINES_POSTGRES_DSN"
	EnvRedisAddr      = "TIMELINES_REDIS_ADDR"
	EnvArchiveDriver  = "TIMELINES_ARCHIVE_DRIVER"
	EnvArchiveDir     = "TIMELINES_ARCHIVE_DIR"
	EnvS3Bucket       = "TIMELINES_ARCHIVE_S3_BUCKET"
	EnvS3Region       = "TIMELINES_ARCHIVE_S3_REGION"
	EnvS3Endpoint     = "TIMELINES_ARCHIVE_S3_ENDPOINT"
	EnvS3PathStyle    = "TIMELINES_ARCHIVE_S3_PATH_STYLE"
	EnvPolicy         = "TIMELINES_POLICY"
	EnvLogFormat      = "TIMELINES_LOG_FORMAT"
	EnvLogLevel       = "TIMELINES_LOG_LEVEL"
	EnvMetricsBackend = "TIMELINES_METRICS"
	EnvTracing        = "TIMELINES_TRACING"
)

// Config is the full runtime configuration.
type Config struct {
	Policy  string  `yaml:"policy"`
	Storage Storage `yaml:"storage"`
	Archive Archive `yaml:"archive"`
	Log     Log     `yaml:"log"`
	Metrics string  `yaml:"metrics"`
	// Tracing selects the span exporter: otel, json (spans as JSON lines on
	// stderr) or none.
	Tracing string `yaml:"tracing"`
}

// Storage selects and configures the entry store.
type Storage struct {
	Driver      string `yaml:"driver"`
	SQLitePath  string `yaml:"sqlite_path"`
	PostgresDSN string `yaml:"postgres_dsn"`
	RedisAddr   string `yaml:"redis_addr"`
}

// Archive selects and configures the snapshot archive.
type Archive struct {
	Driver string `yaml:"driver"`
	Dir    string `yaml:"dir"`
	S3     S3     `yaml:"s3"`
}

// S3 holds bucket coordinates. Credentials come from the AWS default chain.
type S3 struct {
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	PathStyle bool   `yaml:"path_style"`
}

// Log configures the CLI's slog handler.
type Log struct {
	Format string `yaml:"format"`
	Level  string `yaml:"level"`
}

// Default returns the settings used when nothing is configured.
func Default() Config {
	return Config{
		Policy:  timeline.PeriodOfExistence.String(),
		Storage: Storage{Driver: "sqlite", SQLitePath: "timelines.db"},
		Archive: Archive{Driver: "fs", Dir: "./snapshots"},
		Log:     Log{Format: "text", Level: "info"},
		Metrics: "expvar",
		Tracing: "otel",
	}
}

// Load reads path over the defaults, applies the environment and validates
// the result. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path) // #nosec G304 -- operator supplied path
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("decode config %s: %w", path, err)
		}
	}
	cfg.ApplyEnv(os.LookupEnv)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ApplyEnv overlays every variable lookup reports as set.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	str(EnvPolicy, &c.Policy)
	str(EnvStorageDriver, &c.Storage.Driver)
	str(EnvSQLitePath, &c.Storage.SQLitePath)
	str(EnvPostgresDSN, &c.Storage.PostgresDSN)
	str(EnvRedisAddr, &c.Storage.RedisAddr)
	str(EnvArchiveDriver, &c.Archive.Driver)
	str(EnvArchiveDir, &c.Archive.Dir)
	str(EnvS3Bucket, &c.Archive.S3.Bucket)
	str(EnvS3Region, &c.Archive.S3.Region)
	str(EnvS3Endpoint, &c.Archive.S3.Endpoint)
	str(EnvLogFormat, &c.Log.Format)
	str(EnvLogLevel, &c.Log.Level)
	str(EnvMetricsBackend, &c.Metrics)
	str(EnvTracing, &c.Tracing)
	if v, ok := lookup(EnvS3PathStyle); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Archive.S3.PathStyle = b
		}
	}
}

// Validate checks enumerations and the settings each driver requires.
func (c Config) Validate() error {
	var errs []error
	if _, err := timeline.ParsePolicy(c.Policy); err != nil {
		errs = append(errs, err)
	}
	switch c.Storage.Driver {
	case "memory", "sqlite":
	case "postgres":
		if c.Storage.PostgresDSN == "" {
			errs = append(errs, fmt.Errorf("storage: postgres requires %s", EnvPostgresDSN))
		}
	case "redis":
		if c.Storage.RedisAddr == "" {
			errs = append(errs, fmt.Errorf("storage: redis requires %s", EnvRedisAddr))
		}
	default:
		errs = append(errs, fmt.Errorf("storage: unknown driver %q", c.Storage.Driver))
	}
	switch c.Archive.Driver {
	case "memory", "fs":
	case "s3":
		if c.Archive.S3.Bucket == "" {
			errs = append(errs, fmt.Errorf("archive: s3 requires %s", EnvS3Bucket))
		}
	default:
		errs = append(errs, fmt.Errorf("archive: unknown driver %q", c.Archive.Driver))
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log: unknown format %q", c.Log.Format))
	}
	switch c.Metrics {
	case "expvar", "prometheus", "none":
	default:
		errs = append(errs, fmt.Errorf("metrics: unknown backend %q", c.Metrics))
	}
	switch c.Tracing {
	case "otel", "json", "none":
	default:
		errs = append(errs, fmt.Errorf("tracing: unknown exporter %q", c.Tracing))
	}
	return errors.Join(errs...)
}

// TimelinePolicy returns the parsed policy. Call after Validate.
func (c Config) TimelinePolicy() timeline.Policy {
	p, _ := timeline.ParsePolicy(c.Policy)
	return p
}
