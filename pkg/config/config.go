// Package config provides configuration loading and validation for seriescache.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/Sumatoshi-tech/seriescache/pkg/persist"
	"github.com/Sumatoshi-tech/seriescache/pkg/segment"
)

// Sentinel validation errors.
var (
	ErrInvalidPort          = errors.New("invalid server port")
	ErrInvalidMergeDistance = errors.New("merge distance must be positive")
	ErrInvalidSourceKind    = errors.New("unknown source kind")
	ErrInvalidStep          = errors.New("source step must be positive")
	ErrInvalidLatency       = errors.New("source latency must not be negative")
	ErrInvalidSpan          = errors.New("max span must be positive")
	ErrInvalidBatch         = errors.New("max batch must be positive")
	ErrInvalidSampleRatio   = errors.New("sample ratio must be within [0, 1]")
	ErrInvalidLogFormat     = errors.New("log format must be text or json")
)

// Source kinds.
const (
	SourceSynthetic = "synthetic"
	SourceMemory    = "memory"
	SourceSQLite    = "sqlite"
)

// Log formats.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// Default configuration values.
const (
	defaultPort          = 8080
	defaultHost          = "127.0.0.1"
	defaultMergeDistance = 1
	defaultSeedPoints    = 10000
	defaultStep          = 1
	defaultMaxSpan       = 1_000_000
	defaultMaxBatch      = 64
	maxPort              = 65535
)

// Config holds all configuration for seriescache.
type Config struct {
	Cache         CacheConfig         `mapstructure:"cache"`
	Source        SourceConfig        `mapstructure:"source"`
	Snapshot      SnapshotConfig      `mapstructure:"snapshot"`
	Server        ServerConfig        `mapstructure:"server"`
	Logging       LoggingConfig       `mapstructure:"logging"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

// CacheConfig holds cache behavior.
type CacheConfig struct {
	Overwrite     string `mapstructure:"overwrite"`
	MergeDistance int64  `mapstructure:"merge_distance"`
}

// SourceConfig selects and tunes the backing source.
type SourceConfig struct {
	Kind       string        `mapstructure:"kind"`
	DSN        string        `mapstructure:"dsn"`
	Table      string        `mapstructure:"table"`
	Latency    time.Duration `mapstructure:"latency"`
	SeedPoints int           `mapstructure:"seed_points"`
	Step       int64         `mapstructure:"step"`
}

// SnapshotConfig locates cache snapshots.
type SnapshotConfig struct {
	Dir         string `mapstructure:"dir"`
	Name        string `mapstructure:"name"`
	Compression string `mapstructure:"compression"`
	// LoadOnStart restores the snapshot before serving, if present.
	LoadOnStart bool `mapstructure:"load_on_start"`
	// SaveOnExit writes a snapshot during graceful shutdown.
	SaveOnExit bool `mapstructure:"save_on_exit"`
}

// ServerConfig holds server-specific configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	Port            int           `mapstructure:"port"`
	MaxSpan         int64         `mapstructure:"max_span"`
	MaxBatch        int           `mapstructure:"max_batch"`
}

// LoggingConfig holds logging-specific configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ObservabilityConfig holds telemetry export settings.
type ObservabilityConfig struct {
	Environment  string  `mapstructure:"environment"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	OTLPHeaders  string  `mapstructure:"otlp_headers"`
	OTLPInsecure bool    `mapstructure:"otlp_insecure"`
	SampleRatio  float64 `mapstructure:"sample_ratio"`
	TraceFetches bool    `mapstructure:"trace_fetches"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// OverwriteMode returns the parsed overwrite mode. It is valid after Load.
func (c CacheConfig) OverwriteMode() segment.OverwriteMode {
	mode, err := segment.ParseOverwriteMode(c.Overwrite)
	if err != nil {
		return segment.OverwriteReplace
	}

	return mode
}

// LoadConfig loads configuration from file and SERIESCACHE_* environment
// variables. An empty path searches ./seriescache.yaml, ./config and
// /etc/seriescache; a missing file there is not an error.
func LoadConfig(configPath string) (*Config, error) {
	viperCfg := viper.New()

	setDefaults(viperCfg)

	if configPath != "" {
		viperCfg.SetConfigFile(configPath)
	} else {
		viperCfg.SetConfigName("seriescache")
		viperCfg.SetConfigType("yaml")
		viperCfg.AddConfigPath(".")
		viperCfg.AddConfigPath("./config")
		viperCfg.AddConfigPath("/etc/seriescache")
	}

	viperCfg.SetEnvPrefix("SERIESCACHE")
	viperCfg.AutomaticEnv()
	viperCfg.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	readErr := viperCfg.ReadInConfig()
	if readErr != nil {
		var notFoundErr viper.ConfigFileNotFoundError
		if !errors.As(readErr, &notFoundErr) {
			return nil, fmt.Errorf("failed to read config file: %w", readErr)
		}
	}

	var config Config

	unmarshalErr := viperCfg.Unmarshal(&config)
	if unmarshalErr != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", unmarshalErr)
	}

	validateErr := validateConfig(&config)
	if validateErr != nil {
		return nil, fmt.Errorf("invalid configuration: %w", validateErr)
	}

	return &config, nil
}

func setDefaults(viperCfg *viper.Viper) {
	viperCfg.SetDefault("cache.merge_distance", defaultMergeDistance)
	viperCfg.SetDefault("cache.overwrite", segment.OverwriteReplace.String())

	viperCfg.SetDefault("source.kind", SourceSynthetic)
	viperCfg.SetDefault("source.dsn", "seriescache.db")
	viperCfg.SetDefault("source.table", "points")
	viperCfg.SetDefault("source.latency", "0s")
	viperCfg.SetDefault("source.seed_points", defaultSeedPoints)
	viperCfg.SetDefault("source.step", defaultStep)

	viperCfg.SetDefault("snapshot.dir", ".seriescache")
	viperCfg.SetDefault("snapshot.name", "cache")
	viperCfg.SetDefault("snapshot.compression", string(persist.CompressionLZ4))
	viperCfg.SetDefault("snapshot.load_on_start", false)
	viperCfg.SetDefault("snapshot.save_on_exit", false)

	viperCfg.SetDefault("server.host", defaultHost)
	viperCfg.SetDefault("server.port", defaultPort)
	viperCfg.SetDefault("server.read_timeout", "30s")
	viperCfg.SetDefault("server.write_timeout", "30s")
	viperCfg.SetDefault("server.idle_timeout", "60s")
	viperCfg.SetDefault("server.shutdown_timeout", "10s")
	viperCfg.SetDefault("server.max_span", defaultMaxSpan)
	viperCfg.SetDefault("server.max_batch", defaultMaxBatch)

	viperCfg.SetDefault("logging.level", "info")
	viperCfg.SetDefault("logging.format", FormatText)

	viperCfg.SetDefault("observability.environment", "")
	viperCfg.SetDefault("observability.otlp_endpoint", "")
	viperCfg.SetDefault("observability.otlp_headers", "")
	viperCfg.SetDefault("observability.otlp_insecure", false)
	viperCfg.SetDefault("observability.sample_ratio", 0.0)
	viperCfg.SetDefault("observability.trace_fetches", false)
}

func validateConfig(config *Config) error {
	if config.Server.Port <= 0 || config.Server.Port > maxPort {
		return fmt.Errorf("%w: %d", ErrInvalidPort, config.Server.Port)
	}

	if config.Server.MaxSpan <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidSpan, config.Server.MaxSpan)
	}

	if config.Server.MaxBatch <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidBatch, config.Server.MaxBatch)
	}

	if config.Cache.MergeDistance <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidMergeDistance, config.Cache.MergeDistance)
	}

	_, err := segment.ParseOverwriteMode(config.Cache.Overwrite)
	if err != nil {
		return err
	}

	switch config.Source.Kind {
	case SourceSynthetic, SourceMemory, SourceSQLite:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidSourceKind, config.Source.Kind)
	}

	if config.Source.Step <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidStep, config.Source.Step)
	}

	if config.Source.Latency < 0 {
		return fmt.Errorf("%w: %s", ErrInvalidLatency, config.Source.Latency)
	}

	_, err = persist.ParseCompression(config.Snapshot.Compression)
	if err != nil {
		return err
	}

	if config.Logging.Format != FormatText && config.Logging.Format != FormatJSON {
		return fmt.Errorf("%w: %q", ErrInvalidLogFormat, config.Logging.Format)
	}

	if config.Observability.SampleRatio < 0 || config.Observability.SampleRatio > 1 {
		return fmt.Errorf("%w: %g", ErrInvalidSampleRatio, config.Observability.SampleRatio)
	}

	return nil
}
