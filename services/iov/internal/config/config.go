// Package config loads service configuration from YAML with environment
// overrides for deployment-specific and sensitive values.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	ListenAddr string       `yaml:"listen_addr"`
	Ledger     LedgerConfig `yaml:"ledger"`
	Oracle     OracleConfig `yaml:"oracle"`
	Keystore   KeystoreCfg  `yaml:"keystore"`
	Pool       PoolConfig   `yaml:"pool"`
	Webhook    WebhookCfg   `yaml:"webhook"`
	Auth       AuthConfig   `yaml:"auth"`
}

// LedgerConfig selects the registry backing. DatabaseURL is used when the
// wallet and pool state live in Postgres; empty means file/memory backing.
type LedgerConfig struct {
	DatabaseURL string `yaml:"database_url"`
}

type OracleConfig struct {
	BaseURL        string        `yaml:"base_url"`
	Model          string        `yaml:"model"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

type KeystoreCfg struct {
	Dir string `yaml:"dir"`
}

// PoolConfig lists the candidate signing accounts and where bindings persist.
type PoolConfig struct {
	StatePath string        `yaml:"state_path"`
	Accounts  []PoolAccount `yaml:"accounts"`
}

type PoolAccount struct {
	Address    string `yaml:"address"`
	PrivateKey string `yaml:"private_key"`
}

// WebhookCfg signs outbound reply deliveries. An empty secret disables
// signing; an empty seal secret means envelopes travel unsealed.
type WebhookCfg struct {
	Secret          string        `yaml:"secret"`
	SealSecret      string        `yaml:"seal_secret"`
	DeliveryTimeout time.Duration `yaml:"delivery_timeout"`
}

// AuthConfig gates the wallet endpoints behind signed requests.
type AuthConfig struct {
	Required     bool          `yaml:"required"`
	MaxClockSkew time.Duration `yaml:"max_clock_skew"`
}

func defaults() Config {
	return Config{
		ListenAddr: ":8084",
		Oracle: OracleConfig{
			BaseURL:        "http://localhost:11434",
			Model:          "llama3.2",
			RequestTimeout: 30 * time.Second,
		},
		Keystore: KeystoreCfg{Dir: "did_wallet"},
		Pool:     PoolConfig{StatePath: "pool_state.json"},
		Webhook:  WebhookCfg{DeliveryTimeout: 10 * time.Second},
		Auth:     AuthConfig{MaxClockSkew: 5 * time.Minute},
	}
}

// Load reads path (optional) and applies env overrides. Recognized variables:
// IOV_LISTEN_ADDR, IOV_DATABASE_URL, IOV_ORACLE_URL, IOV_ORACLE_MODEL,
// IOV_KEYSTORE_DIR, IOV_POOL_STATE_PATH, IOV_WEBHOOK_SECRET,
// IOV_WEBHOOK_SEAL_SECRET, IOV_REQUIRE_AUTH.
func Load(path string) (Config, error) {
	cfg := defaults()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	override(&cfg.ListenAddr, "IOV_LISTEN_ADDR")
	override(&cfg.Ledger.DatabaseURL, "IOV_DATABASE_URL")
	override(&cfg.Oracle.BaseURL, "IOV_ORACLE_URL")
	override(&cfg.Oracle.Model, "IOV_ORACLE_MODEL")
	override(&cfg.Keystore.Dir, "IOV_KEYSTORE_DIR")
	override(&cfg.Pool.StatePath, "IOV_POOL_STATE_PATH")
	override(&cfg.Webhook.Secret, "IOV_WEBHOOK_SECRET")
	override(&cfg.Webhook.SealSecret, "IOV_WEBHOOK_SEAL_SECRET")
	if v := os.Getenv("IOV_REQUIRE_AUTH"); v != "" {
		cfg.Auth.Required = v == "1" || strings.EqualFold(v, "true")
	}
}

func override(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}
