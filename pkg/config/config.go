package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ExchangeConfig holds one data source's settings. Weight is the per-exchange
// trust/liquidity weight used by the consensus average.
type ExchangeConfig struct {
	Enabled bool    `yaml:"enabled"`
	Weight  float64 `yaml:"weight"`
	BaseURL string  `yaml:"base_url"`
	APIKey  string  `yaml:"api_key"`
}

type Config struct {
	Environment string `yaml:"environment"`
	Server      struct {
		Port            int           `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
		Output string `yaml:"output"`
	} `yaml:"log"`
	Symbols   []string                  `yaml:"symbols"`
	Exchanges map[string]ExchangeConfig `yaml:"exchanges"`
	Poll      struct {
		SpotInterval    time.Duration `yaml:"spot_interval"`
		OptionInterval  time.Duration `yaml:"option_interval"`
		CleanupInterval time.Duration `yaml:"cleanup_interval"`
		MaxConcurrency  int           `yaml:"max_concurrency"`
		StopGrace       time.Duration `yaml:"stop_grace"`
	} `yaml:"poll"`
	RateLimit struct {
		MinInterval time.Duration `yaml:"min_interval"`
		Jitter      time.Duration `yaml:"jitter"`
	} `yaml:"rate_limit"`
	Retry struct {
		MaxRetries     int           `yaml:"max_retries"`
		BaseDelay      time.Duration `yaml:"base_delay"`
		RequestTimeout time.Duration `yaml:"request_timeout"`
	} `yaml:"retry"`
	Aggregator struct {
		CoolDown      time.Duration `yaml:"cool_down"`
		OutlierStddev float64       `yaml:"outlier_stddev"`
		MinForOutlier int           `yaml:"min_sources_for_outlier"`
	} `yaml:"aggregator"`
	Metrics struct {
		ShortWindow      time.Duration `yaml:"short_window"`
		LongWindow       time.Duration `yaml:"long_window"`
		BufferCap        int           `yaml:"buffer_cap"`
		Retention        time.Duration `yaml:"retention"`
		MaxChangePercent float64       `yaml:"max_change_percent"`
		MomentumMode     string        `yaml:"momentum_mode"` // diff_of_diffs or point_to_point
	} `yaml:"metrics"`
	Anomaly struct {
		Threshold     float64 `yaml:"threshold"`
		OptionSymbols []string `yaml:"option_symbols"`
	} `yaml:"anomaly"`
	ClickHouse struct {
		Host             string        `yaml:"host"`
		Port             int           `yaml:"port"`
		Database         string        `yaml:"database"`
		User             string        `yaml:"user"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout"`
		ReadTimeout      time.Duration `yaml:"read_timeout"`
		WriteTimeout     time.Duration `yaml:"write_timeout"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time"`
		Retention        time.Duration `yaml:"retention"`
	} `yaml:"clickhouse"`
	Kafka struct {
		Enabled      bool     `yaml:"enabled"`
		Brokers      []string `yaml:"brokers"`
		AlertsTopic  string   `yaml:"alerts_topic"`
		RequiredAcks int      `yaml:"required_acks"`
		Compression  string   `yaml:"compression"`
		Consumer     struct {
			Enabled     bool          `yaml:"enabled"`
			GroupID     string        `yaml:"group_id"`
			StartOffset string        `yaml:"start_offset"`
			Workers     int           `yaml:"workers"`
			BufferSize  int           `yaml:"buffer_size"`
			RetryMax    int           `yaml:"retry_max"`
			BackoffMin  time.Duration `yaml:"backoff_min"`
			BackoffMax  time.Duration `yaml:"backoff_max"`
			DLQTopic    string        `yaml:"dlq_topic"`
			MinBytes    int           `yaml:"min_bytes"`
			MaxBytes    int           `yaml:"max_bytes"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	Stream struct {
		Enabled        bool          `yaml:"enabled"`
		URL            string        `yaml:"url"`
		ReconnectDelay time.Duration `yaml:"reconnect_delay"`
		PingInterval   time.Duration `yaml:"ping_interval"`
	} `yaml:"stream"`
	Notify struct {
		Enabled    bool   `yaml:"enabled"`
		WebhookURL string `yaml:"webhook_url"`
		Workers    int    `yaml:"workers"`
	} `yaml:"notify"`
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}
	c.applyEnv()
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("SYMBOLS"); v != "" {
		c.Symbols = strings.Split(v, ",")
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("KAFKA_ALERTS_TOPIC"); v != "" {
		c.Kafka.AlertsTopic = v
	}
	if v := os.Getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := envFloat("ANOMALY_THRESHOLD"); v > 0 {
		c.Anomaly.Threshold = v
	}
	if v := envFloat("MIN_REQUEST_INTERVAL"); v > 0 {
		c.RateLimit.MinInterval = time.Duration(v * float64(time.Second))
	}
	if v, err := strconv.Atoi(os.Getenv("MAX_RETRIES")); err == nil && v >= 0 {
		c.Retry.MaxRetries = v
	}
	// both spellings are accepted, the _MS one wins when set
	if v, err := strconv.Atoi(os.Getenv("REQUEST_TIMEOUT")); err == nil && v > 0 {
		c.Retry.RequestTimeout = time.Duration(v) * time.Millisecond
	}
	if v, err := strconv.Atoi(os.Getenv("REQUEST_TIMEOUT_MS")); err == nil && v > 0 {
		c.Retry.RequestTimeout = time.Duration(v) * time.Millisecond
	}
	// Per-exchange weight overrides: OKX_WEIGHT, BINANCE_WEIGHT, ...
	for name, ex := range c.Exchanges {
		key := strings.ToUpper(name) + "_WEIGHT"
		if v := envFloat(key); v > 0 {
			ex.Weight = v
			c.Exchanges[name] = ex
		}
	}
}

func envFloat(key string) float64 {
	v, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil {
		return 0
	}
	return v
}

func (c *Config) applyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
	if c.Log.Output == "" {
		c.Log.Output = "stdout"
	}
	if c.Poll.SpotInterval <= 0 {
		c.Poll.SpotInterval = 60 * time.Second
	}
	if c.Poll.OptionInterval <= 0 {
		c.Poll.OptionInterval = 15 * time.Minute
	}
	if c.Poll.CleanupInterval <= 0 {
		c.Poll.CleanupInterval = time.Hour
	}
	if c.Poll.MaxConcurrency <= 0 {
		c.Poll.MaxConcurrency = 4
	}
	if c.Poll.StopGrace <= 0 {
		c.Poll.StopGrace = 5 * time.Second
	}
	if c.RateLimit.MinInterval <= 0 {
		c.RateLimit.MinInterval = 1 * time.Second
	}
	if c.RateLimit.Jitter < 0 {
		c.RateLimit.Jitter = 0
	}
	if c.Retry.MaxRetries <= 0 {
		c.Retry.MaxRetries = 3
	}
	if c.Retry.BaseDelay <= 0 {
		c.Retry.BaseDelay = 500 * time.Millisecond
	}
	if c.Retry.RequestTimeout <= 0 {
		c.Retry.RequestTimeout = 10 * time.Second
	}
	if c.Aggregator.CoolDown <= 0 {
		c.Aggregator.CoolDown = 5 * time.Minute
	}
	if c.Aggregator.OutlierStddev <= 0 {
		c.Aggregator.OutlierStddev = 2.0
	}
	if c.Aggregator.MinForOutlier <= 0 {
		c.Aggregator.MinForOutlier = 4
	}
	if c.Metrics.ShortWindow <= 0 {
		c.Metrics.ShortWindow = 15 * time.Minute
	}
	if c.Metrics.LongWindow <= 0 {
		c.Metrics.LongWindow = 30 * time.Minute
	}
	if c.Metrics.BufferCap <= 0 {
		c.Metrics.BufferCap = 100
	}
	if c.Metrics.Retention <= 0 {
		c.Metrics.Retention = 4 * time.Hour
	}
	if c.Metrics.MaxChangePercent <= 0 {
		c.Metrics.MaxChangePercent = 1000
	}
	if c.Metrics.MomentumMode == "" {
		c.Metrics.MomentumMode = "diff_of_diffs"
	}
	if c.Anomaly.Threshold <= 0 {
		c.Anomaly.Threshold = 2.0
	}
	if c.ClickHouse.Retention <= 0 {
		c.ClickHouse.Retention = 24 * time.Hour
	}
	if c.Notify.Workers <= 0 {
		c.Notify.Workers = 2
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if len(c.Symbols) == 0 {
		return fmt.Errorf("symbols cannot be empty")
	}
	enabled := 0
	for name, ex := range c.Exchanges {
		if !ex.Enabled {
			continue
		}
		enabled++
		if ex.Weight <= 0 {
			return fmt.Errorf("exchange %s: weight must be positive", name)
		}
	}
	if enabled == 0 {
		return fmt.Errorf("at least one exchange must be enabled")
	}
	if c.Metrics.ShortWindow >= c.Metrics.LongWindow {
		return fmt.Errorf("metrics.short_window must be below metrics.long_window")
	}
	switch c.Metrics.MomentumMode {
	case "diff_of_diffs", "point_to_point":
	default:
		return fmt.Errorf("metrics.momentum_mode must be 'diff_of_diffs' or 'point_to_point', got '%s'", c.Metrics.MomentumMode)
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers required when kafka is enabled")
	}
	if c.Kafka.Enabled && c.Kafka.AlertsTopic == "" {
		return fmt.Errorf("kafka.alerts_topic required when kafka is enabled")
	}
	if c.Notify.Enabled && c.Notify.WebhookURL == "" {
		return fmt.Errorf("notify.webhook_url required when notify is enabled")
	}
	return nil
}

// ExchangeWeight returns the configured weight for an exchange, defaulting
// to 1.0 for unknown sources.
func (c *Config) ExchangeWeight(name string) float64 {
	if ex, ok := c.Exchanges[name]; ok && ex.Weight > 0 {
		return ex.Weight
	}
	return 1.0
}
