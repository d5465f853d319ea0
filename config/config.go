package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Optionflow OptionflowConfig `yaml:"optionflow"`
	Channels   ChannelsConfig   `yaml:"channels"`
	Reader     ReaderConfig     `yaml:"reader"`
	Processor  ProcessorConfig  `yaml:"processor"`
	Source     SourceConfig     `yaml:"source"`
	Storage    StorageConfig    `yaml:"storage"`
	Dashboard  DashboardConfig  `yaml:"dashboard"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Logging    LoggingConfig    `yaml:"logging"`
}

type OptionflowConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type ChannelsConfig struct {
	RawBuffer       int `yaml:"raw_buffer"`
	ProcessedBuffer int `yaml:"processed_buffer"`
}

type ReaderConfig struct {
	// Interval between full refresh cycles (catalog + quotes).
	Interval time.Duration `yaml:"interval"`
	// Timeout applies per HTTP request.
	Timeout time.Duration `yaml:"timeout"`
	// MaxConcurrentQuotes bounds the parallel per-symbol quote fetches.
	MaxConcurrentQuotes int             `yaml:"max_concurrent_quotes"`
	RateLimit           RateLimitConfig `yaml:"rate_limit"`
}

type RateLimitConfig struct {
	RequestsPerSecond int `yaml:"requests_per_second"`
	BurstSize         int `yaml:"burst_size"`
}

type ProcessorConfig struct {
	MaxWorkers int `yaml:"max_workers"`
	// PricingMode is "mid" (order book mid) or "mark" (exchange mark price).
	PricingMode string `yaml:"pricing_mode"`
}

type SourceConfig struct {
	Delta DeltaSourceConfig `yaml:"delta"`
}

type DeltaSourceConfig struct {
	BaseURL        string               `yaml:"base_url"`
	Underlyings    []string             `yaml:"underlyings"`
	QuoteSource    string               `yaml:"quote_source"` // "ticker" or "orderbook"
	OrderbookDepth int                  `yaml:"orderbook_depth"`
	ConnectionPool ConnectionPoolConfig `yaml:"connection_pool"`
	Websocket      WebsocketConfig      `yaml:"websocket"`
}

type ConnectionPoolConfig struct {
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	MaxConnsPerHost int           `yaml:"max_conns_per_host"`
	IdleConnTimeout time.Duration `yaml:"idle_conn_timeout"`
}

type WebsocketConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
}

type StorageConfig struct {
	S3 S3Config `yaml:"s3"`
}

type S3Config struct {
	Enabled         bool          `yaml:"enabled"`
	Bucket          string        `yaml:"bucket"`
	Region          string        `yaml:"region"`
	Endpoint        string        `yaml:"endpoint"`
	PathStyle       bool          `yaml:"path_style"`
	Prefix          string        `yaml:"prefix"`
	AccessKeyID     string        `yaml:"access_key_id"`
	SecretAccessKey string        `yaml:"secret_access_key"`
	FlushInterval   time.Duration `yaml:"flush_interval"`
}

type DashboardConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Address         string        `yaml:"address"`
	RefreshInterval time.Duration `yaml:"refresh_interval"`
	LogHistory      int           `yaml:"log_history"`
	MetricsHistory  int           `yaml:"metrics_history"`
}

type MetricsConfig struct {
	Enabled    bool             `yaml:"enabled"`
	Address    string           `yaml:"address"`
	CloudWatch CloudWatchConfig `yaml:"cloudwatch"`
}

type CloudWatchConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Region    string `yaml:"region"`
	Namespace string `yaml:"namespace"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	MaxAge int    `yaml:"max_age"`
}

const (
	defaultBaseURL = "https://api.delta.exchange/v2"
	defaultWSURL   = "wss://socket.delta.exchange"
)

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(resolveEnvSpecificPath(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Config{
		Processor: ProcessorConfig{PricingMode: "mid"},
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&config)
	applyEnvOverrides(&config)

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Source.Delta.BaseURL == "" {
		cfg.Source.Delta.BaseURL = defaultBaseURL
	}
	if cfg.Source.Delta.Websocket.URL == "" {
		cfg.Source.Delta.Websocket.URL = defaultWSURL
	}
	if len(cfg.Source.Delta.Underlyings) == 0 {
		cfg.Source.Delta.Underlyings = []string{"BTC"}
	}
	if cfg.Source.Delta.QuoteSource == "" {
		cfg.Source.Delta.QuoteSource = "ticker"
	}
	if cfg.Source.Delta.OrderbookDepth <= 0 {
		cfg.Source.Delta.OrderbookDepth = 5
	}
	if cfg.Reader.Interval <= 0 {
		cfg.Reader.Interval = 30 * time.Second
	}
	if cfg.Reader.Timeout <= 0 {
		cfg.Reader.Timeout = 10 * time.Second
	}
	if cfg.Reader.MaxConcurrentQuotes <= 0 {
		cfg.Reader.MaxConcurrentQuotes = 8
	}
	if cfg.Storage.S3.FlushInterval <= 0 {
		cfg.Storage.S3.FlushInterval = time.Minute
	}
}

// applyEnvOverrides lets deployment environments override credentials and
// bucket selection without touching the config file.
func applyEnvOverrides(cfg *Config) {
	if cfg.Storage.S3.Enabled {
		if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
			cfg.Storage.S3.AccessKeyID = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
			cfg.Storage.S3.SecretAccessKey = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_REGION"); v != "" {
			cfg.Storage.S3.Region = strings.TrimSpace(v)
		}
		if v := os.Getenv("S3_BUCKET"); v != "" {
			cfg.Storage.S3.Bucket = strings.TrimSpace(v)
		}
		cfg.Storage.S3.Bucket = strings.TrimSpace(cfg.Storage.S3.Bucket)
	}
	if v := os.Getenv("DELTA_BASE_URL"); v != "" {
		cfg.Source.Delta.BaseURL = strings.TrimSpace(v)
	}
}

func validateConfig(cfg *Config) error {
	if cfg.Optionflow.Name == "" {
		return fmt.Errorf("optionflow.name is required")
	}
	if cfg.Optionflow.Version == "" {
		return fmt.Errorf("optionflow.version is required")
	}

	if cfg.Channels.RawBuffer <= 0 {
		return fmt.Errorf("channels.raw_buffer must be greater than 0")
	}
	if cfg.Channels.ProcessedBuffer <= 0 {
		return fmt.Errorf("channels.processed_buffer must be greater than 0")
	}

	if cfg.Processor.MaxWorkers <= 0 {
		return fmt.Errorf("processor.max_workers must be greater than 0")
	}
	switch cfg.Processor.PricingMode {
	case "mid", "mark":
	default:
		return fmt.Errorf("processor.pricing_mode must be 'mid' or 'mark', got '%s'", cfg.Processor.PricingMode)
	}

	switch cfg.Source.Delta.QuoteSource {
	case "ticker", "orderbook":
	default:
		return fmt.Errorf("source.delta.quote_source must be 'ticker' or 'orderbook', got '%s'", cfg.Source.Delta.QuoteSource)
	}

	if cfg.Storage.S3.Enabled {
		if cfg.Storage.S3.Bucket == "" {
			return fmt.Errorf("storage.s3.bucket is required when S3 is enabled")
		}
		if cfg.Storage.S3.Region == "" {
			return fmt.Errorf("storage.s3.region is required when S3 is enabled")
		}
		if !isValidS3Bucket(cfg.Storage.S3.Bucket) {
			return fmt.Errorf("storage.s3.bucket '%s' is invalid", cfg.Storage.S3.Bucket)
		}
	}

	return nil
}

var s3BucketRegexp = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]{1,61}[a-z0-9]$`)

func isValidS3Bucket(name string) bool {
	if len(name) < 3 || len(name) > 63 {
		return false
	}
	if strings.Contains(name, "..") || strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".") {
		return false
	}
	return s3BucketRegexp.MatchString(name)
}
