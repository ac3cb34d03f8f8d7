package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment"`
	Server      struct {
		Port            int           `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"metrics"`
	Pipeline struct {
		Users         []string      `yaml:"users"`
		PollInterval  time.Duration `yaml:"poll_interval"`
		LockTimeout   time.Duration `yaml:"lock_timeout"`
		StallWarnAfter time.Duration `yaml:"stall_warn_after"`
		PersistBatch  int           `yaml:"persist_batch"`
		PersistFlush  time.Duration `yaml:"persist_flush"`
	} `yaml:"pipeline"`
	Upstox struct {
		BaseURL       string        `yaml:"base_url"`
		InstrumentKey string        `yaml:"instrument_key"`
		Timeout       time.Duration `yaml:"timeout"`
		RateLimit     struct {
			RequestsPerSecond float64 `yaml:"requests_per_second"`
			Burst             int     `yaml:"burst"`
		} `yaml:"rate_limit"`
	} `yaml:"upstox"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	Kafka struct {
		Enabled      bool     `yaml:"enabled"`
		Brokers      []string `yaml:"brokers"`
		Topic        string   `yaml:"topic"`
		OpsTopic     string   `yaml:"ops_topic"`
		RequiredAcks int      `yaml:"required_acks"`
		Compression  string   `yaml:"compression"`
		Producer     struct {
			MaxAttempts  int           `yaml:"max_attempts"`
			Linger       time.Duration `yaml:"linger"`
			BatchBytes   int           `yaml:"batch_bytes"`
			BatchSize    int           `yaml:"batch_size"`
			WriteTimeout time.Duration `yaml:"write_timeout"`
			ReadTimeout  time.Duration `yaml:"read_timeout"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
	} `yaml:"kafka"`
	ClickHouse struct {
		// SnapshotHistory enables the per-cycle market_snapshots log;
		// signal events are always persisted.
		SnapshotHistory  bool          `yaml:"snapshot_history"`
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
	} `yaml:"clickhouse"`
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

	if v := os.Getenv("UPSTOX_BASE_URL"); v != "" {
		c.Upstox.BaseURL = v
	}
	if v := os.Getenv("UPSTOX_INSTRUMENT_KEY"); v != "" {
		c.Upstox.InstrumentKey = v
	}
	if v := os.Getenv("PIPELINE_USERS"); v != "" {
		c.Pipeline.Users = strings.Split(v, ",")
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("KAFKA_TOPIC"); v != "" {
		c.Kafka.Topic = v
	}
	if v := os.Getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
	}

	return c, nil
}

func (c *Config) applyDefaults() {
	if c.Pipeline.PollInterval == 0 {
		c.Pipeline.PollInterval = 5 * time.Second
	}
	if c.Pipeline.LockTimeout == 0 {
		c.Pipeline.LockTimeout = 10 * time.Second
	}
	if c.Pipeline.StallWarnAfter == 0 {
		c.Pipeline.StallWarnAfter = 30 * time.Second
	}
	if c.Pipeline.PersistBatch == 0 {
		c.Pipeline.PersistBatch = 50
	}
	if c.Pipeline.PersistFlush == 0 {
		c.Pipeline.PersistFlush = 10 * time.Second
	}
	if c.Upstox.Timeout == 0 {
		c.Upstox.Timeout = 15 * time.Second
	}
	if c.Upstox.RateLimit.RequestsPerSecond == 0 {
		c.Upstox.RateLimit.RequestsPerSecond = 3
	}
	if c.Upstox.RateLimit.Burst == 0 {
		c.Upstox.RateLimit.Burst = 5
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if c.Upstox.BaseURL == "" {
		return fmt.Errorf("upstox.base_url is required")
	}
	if c.Upstox.InstrumentKey == "" {
		return fmt.Errorf("upstox.instrument_key is required")
	}
	if c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	if c.ClickHouse.Host == "" {
		return fmt.Errorf("clickhouse.host is required")
	}
	return nil
}
