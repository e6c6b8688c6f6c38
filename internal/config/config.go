// Package config loads gateway configuration from a YAML file with
// environment overrides. Secrets (signing key, JWT secret, pinning
// credentials) are never read from the file, only from the environment.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root gateway configuration.
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Auth         AuthConfig         `yaml:"auth"`
	Chain        ChainConfig        `yaml:"chain"`
	ContentStore ContentStoreConfig `yaml:"content_store"`
	Pricing      PricingConfig      `yaml:"pricing"`
	Catalog      CatalogConfig      `yaml:"catalog"`
	Logging      LoggingConfig      `yaml:"logging"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Port              int           `yaml:"port"`
	ReadTimeout       time.Duration `yaml:"read_timeout"`
	WriteTimeout      time.Duration `yaml:"write_timeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
	AllowedOrigins    []string      `yaml:"allowed_origins"`
	RequestsPerSecond int           `yaml:"requests_per_second"`
	RateBurst         int           `yaml:"rate_burst"`
	MaxUploadBytes    int64         `yaml:"max_upload_bytes"`
}

// AuthConfig configures wallet login and token issuance.
// JWTSecret comes from the JWT_SECRET environment variable.
type AuthConfig struct {
	JWTSecret       string        `yaml:"-"`
	TokenTTL        time.Duration `yaml:"token_ttl"`
	MessageTemplate string        `yaml:"message_template"`
}

// ChainConfig configures the ledger RPC endpoint and the transaction
// orchestrator. RPCURL, ChainID, PrivateKey and ContractAddress come from
// the LEDGER_RPC_URL, LEDGER_CHAIN_ID, LEDGER_PRIVATE_KEY and
// COURSE_CONTRACT_ADDRESS environment variables when set.
type ChainConfig struct {
	RPCURL          string        `yaml:"rpc_url"`
	ChainID         int64         `yaml:"chain_id"`
	ContractAddress string        `yaml:"contract_address"`
	PrivateKey      string        `yaml:"-"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	GasLimit        uint64        `yaml:"gas_limit"`
	MaxRetries      int           `yaml:"max_retries"`
	InitialBackoff  time.Duration `yaml:"initial_backoff"`
	MaxBackoff      time.Duration `yaml:"max_backoff"`
	ReceiptPoll     time.Duration `yaml:"receipt_poll"`
	ReceiptTimeout  time.Duration `yaml:"receipt_timeout"`
	QueueSize       int           `yaml:"queue_size"`
}

// ContentStoreConfig configures the pinning service. APIKey and SecretKey
// come from PINATA_API_KEY and PINATA_SECRET_API_KEY.
type ContentStoreConfig struct {
	APIURL     string        `yaml:"api_url"`
	GatewayURL string        `yaml:"gateway_url"`
	APIKey     string        `yaml:"-"`
	SecretKey  string        `yaml:"-"`
	Timeout    time.Duration `yaml:"timeout"`
}

// PricingConfig configures fiat to native-unit conversion. FallbackRate is
// the native-coin price in fiat units (e.g. INR per ETH) used when the feed
// is unavailable.
type PricingConfig struct {
	FeedURL         string        `yaml:"feed_url"`
	RefreshInterval time.Duration `yaml:"refresh_interval"`
	FallbackRate    string        `yaml:"fallback_rate"`
}

// CatalogConfig bounds the metadata fetch fan-out for catalog reads.
type CatalogConfig struct {
	Fanout int `yaml:"fanout"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration defaults applied before file and
// environment values.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:              8080,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      5 * time.Minute,
			ShutdownTimeout:   15 * time.Second,
			AllowedOrigins:    []string{"*"},
			RequestsPerSecond: 10,
			RateBurst:         20,
			MaxUploadBytes:    256 << 20,
		},
		Auth: AuthConfig{
			TokenTTL:        24 * time.Hour,
			MessageTemplate: "Logging in to LearnLedger with wallet: %s",
		},
		Chain: ChainConfig{
			RequestTimeout: 30 * time.Second,
			GasLimit:       3_000_000,
			MaxRetries:     3,
			InitialBackoff: 500 * time.Millisecond,
			MaxBackoff:     10 * time.Second,
			ReceiptPoll:    2 * time.Second,
			ReceiptTimeout: 2 * time.Minute,
			QueueSize:      256,
		},
		ContentStore: ContentStoreConfig{
			APIURL:     "https://api.pinata.cloud",
			GatewayURL: "https://gateway.pinata.cloud",
			Timeout:    2 * time.Minute,
		},
		Pricing: PricingConfig{
			RefreshInterval: 5 * time.Minute,
		},
		Catalog: CatalogConfig{
			Fanout: 4,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads the config file at path (optional), applies environment
// overrides, and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("PORT"); v != "" {
		var port int
		if _, err := fmt.Sscanf(v, "%d", &port); err == nil && port > 0 {
			c.Server.Port = port
		}
	}
	if v := os.Getenv("LEDGER_RPC_URL"); v != "" {
		c.Chain.RPCURL = v
	}
	if v := os.Getenv("COURSE_CONTRACT_ADDRESS"); v != "" {
		c.Chain.ContractAddress = v
	}
	if v := os.Getenv("LEDGER_CHAIN_ID"); v != "" {
		var id int64
		if _, err := fmt.Sscanf(v, "%d", &id); err == nil && id > 0 {
			c.Chain.ChainID = id
		}
	}
	c.Chain.PrivateKey = os.Getenv("LEDGER_PRIVATE_KEY")
	c.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	c.ContentStore.APIKey = os.Getenv("PINATA_API_KEY")
	c.ContentStore.SecretKey = os.Getenv("PINATA_SECRET_API_KEY")
}

// Validate checks the fields the gateway cannot run without.
func (c *Config) Validate() error {
	if c.Chain.RPCURL == "" {
		return fmt.Errorf("chain: rpc_url is required (LEDGER_RPC_URL)")
	}
	if c.Chain.ContractAddress == "" {
		return fmt.Errorf("chain: contract_address is required (COURSE_CONTRACT_ADDRESS)")
	}
	if c.Chain.PrivateKey == "" {
		return fmt.Errorf("chain: signing key is required (LEDGER_PRIVATE_KEY)")
	}
	if c.Chain.ChainID <= 0 {
		return fmt.Errorf("chain: chain_id is required")
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth: JWT secret is required (JWT_SECRET)")
	}
	if c.Catalog.Fanout <= 0 {
		return fmt.Errorf("catalog: fanout must be positive")
	}
	return nil
}
