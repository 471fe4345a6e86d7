package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Default endpoints. The gateway URL depends on the environment flag; the
// stream URL can be overridden per deployment.
const (
	DefaultStreamURL        = "wss://stream.bybit.com/v5/public/linear"
	DefaultTradeURL         = "wss://stream.bybit.com/v5/trade"
	DefaultTestnetTradeURL  = "wss://stream-testnet.bybit.com/v5/trade"
	DefaultPingInterval     = 20 * time.Second
	DefaultHandshakeTimeout = 10 * time.Second
)

type Config struct {
	Tradegate TradegateConfig `yaml:"tradegate"`
	Stream    StreamConfig    `yaml:"stream"`
	Gateway   GatewayConfig   `yaml:"gateway"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type TradegateConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type StreamConfig struct {
	URL          string        `yaml:"url"`
	Parser       string        `yaml:"parser"`
	Symbols      []string      `yaml:"symbols"`
	PingInterval time.Duration `yaml:"ping_interval"`
}

type GatewayConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Testnet      bool          `yaml:"testnet"`
	URL          string        `yaml:"url"`
	APIKey       string        `yaml:"api_key"`
	APISecret    string        `yaml:"api_secret"`
	PingInterval time.Duration `yaml:"ping_interval"`
}

type MetricsConfig struct {
	CloudWatch bool   `yaml:"cloudwatch"`
	Region     string `yaml:"region"`
	Namespace  string `yaml:"namespace"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	MaxAge int    `yaml:"max_age"`
}

// TradeURL resolves the order gateway endpoint: an explicit override wins,
// otherwise the environment flag picks production or testnet.
func (g GatewayConfig) TradeURL() string {
	if g.URL != "" {
		return g.URL
	}
	if g.Testnet {
		return DefaultTestnetTradeURL
	}
	return DefaultTradeURL
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Config{
		Stream: StreamConfig{
			URL:          DefaultStreamURL,
			Parser:       "bybit",
			PingInterval: DefaultPingInterval,
		},
		Gateway: GatewayConfig{
			PingInterval: DefaultPingInterval,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Credentials come from the environment when present so that key
	// material stays out of config files.
	if v := os.Getenv("BYBIT_API_KEY"); v != "" {
		config.Gateway.APIKey = strings.TrimSpace(v)
	}
	if v := os.Getenv("BYBIT_API_SECRET"); v != "" {
		config.Gateway.APISecret = strings.TrimSpace(v)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

func validateConfig(cfg *Config) error {
	if cfg.Tradegate.Name == "" {
		return fmt.Errorf("tradegate.name is required")
	}
	if cfg.Tradegate.Version == "" {
		return fmt.Errorf("tradegate.version is required")
	}

	if cfg.Stream.URL == "" {
		return fmt.Errorf("stream.url is required")
	}
	switch cfg.Stream.Parser {
	case "bybit", "binance":
	default:
		return fmt.Errorf("stream.parser '%s' is invalid (want bybit or binance)", cfg.Stream.Parser)
	}
	if cfg.Stream.PingInterval < 0 {
		return fmt.Errorf("stream.ping_interval must not be negative")
	}

	if cfg.Gateway.Enabled {
		if cfg.Gateway.APIKey == "" || cfg.Gateway.APISecret == "" {
			return fmt.Errorf("gateway.api_key and gateway.api_secret are required when the gateway is enabled")
		}
	}

	return nil
}
