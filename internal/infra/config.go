package infra

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds every setting of the service. LoadConfig reads the YAML file
// and then applies environment overrides on top.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	Server struct {
		ListenAddr string `yaml:"listen_addr"`
	} `yaml:"server"`

	Exchanges struct {
		Binance struct {
			WSURL         string `yaml:"ws_url"`
			Depth         int    `yaml:"depth"`
			UpdateSpeedMS int    `yaml:"update_speed_ms"`
		} `yaml:"binance"`
		Bitstamp struct {
			WSURL string `yaml:"ws_url"`
		} `yaml:"bitstamp"`

		// Reconnect controls what happens when a feed loses its connection
		// mid-stream: off means the source terminates on first disconnect,
		// on means it redials with exponential backoff, up to MaxRetries
		// retries after a failed dial; the source terminates when the dial
		// after the last retry also fails.
		Reconnect  bool `yaml:"reconnect"`
		MaxRetries int  `yaml:"max_retries"`
	} `yaml:"exchanges"`

	Aggregator struct {
		SubscriberBuffer int `yaml:"subscriber_buffer"`
	} `yaml:"aggregator"`

	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
}

// LoadConfig reads and parses the configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	overrideWithEnv(&cfg)
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = ":3030"
	}
	if c.Exchanges.Binance.Depth == 0 {
		c.Exchanges.Binance.Depth = 10
	}
	if c.Exchanges.Binance.UpdateSpeedMS == 0 {
		c.Exchanges.Binance.UpdateSpeedMS = 100
	}
	if c.Exchanges.MaxRetries == 0 {
		c.Exchanges.MaxRetries = 10
	}
	if c.Aggregator.SubscriberBuffer == 0 {
		c.Aggregator.SubscriberBuffer = 100
	}
}

// Validate checks configuration validity
func (c *Config) Validate() error {
	if c.Exchanges.Binance.WSURL == "" || !isWSURL(c.Exchanges.Binance.WSURL) {
		return fmt.Errorf("invalid Binance WS URL: %s", c.Exchanges.Binance.WSURL)
	}
	if c.Exchanges.Bitstamp.WSURL == "" || !isWSURL(c.Exchanges.Bitstamp.WSURL) {
		return fmt.Errorf("invalid Bitstamp WS URL: %s", c.Exchanges.Bitstamp.WSURL)
	}
	switch c.Exchanges.Binance.Depth {
	case 5, 10, 20:
	default:
		return fmt.Errorf("binance depth must be 5, 10 or 20, got %d", c.Exchanges.Binance.Depth)
	}
	switch c.Exchanges.Binance.UpdateSpeedMS {
	case 100, 1000:
	default:
		return fmt.Errorf("binance update speed must be 100 or 1000 ms, got %d", c.Exchanges.Binance.UpdateSpeedMS)
	}
	if c.Exchanges.MaxRetries < 0 {
		return fmt.Errorf("max retries must be non-negative")
	}
	if c.Aggregator.SubscriberBuffer <= 0 {
		return fmt.Errorf("subscriber buffer must be positive")
	}
	return nil
}

func isWSURL(s string) bool {
	return strings.HasPrefix(s, "ws://") || strings.HasPrefix(s, "wss://")
}

// overrideWithEnv applies environment variables over the file values.
func overrideWithEnv(cfg *Config) {
	if addr := os.Getenv("ORDERBOOK_LISTEN_ADDR"); addr != "" {
		cfg.Server.ListenAddr = addr
	}
	if level := os.Getenv("ORDERBOOK_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
}
