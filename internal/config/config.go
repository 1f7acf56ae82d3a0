// Package config provides centralized configuration for the metering proxy:
// listen address, ledger/mirror tuning and upstream LLM/chain endpoints.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// ProxyConfig holds the proxy's listen address and upstream dispatch
// settings.
type ProxyConfig struct {
	ListenAddr string `yaml:"listen_addr"`

	OpenAIBaseURL    string `yaml:"openai_base_url"`
	AnthropicBaseURL string `yaml:"anthropic_base_url"`
	AnthropicVersion string `yaml:"anthropic_version"`

	// OpenAIAPIKey and AnthropicAPIKey are never persisted to the config
	// file; they are read from the environment at load time (see
	// applyEnvOverrides).
	OpenAIAPIKey    string `yaml:"-"`
	AnthropicAPIKey string `yaml:"-"`
}

// MirrorConfig holds the liquid mirror's chain RPC endpoints and the
// on-chain program/mint identifiers it watches.
type MirrorConfig struct {
	RPCHTTPURL       string `yaml:"rpc_http_url"`
	RPCWSURL         string `yaml:"rpc_ws_url"`
	RPCAPIKey        string `yaml:"-"`
	ProgramID        string `yaml:"program_id"`
	USDCMintAddress  string `yaml:"usdc_mint_address"`
	InitialSOLRate   float64 `yaml:"initial_sol_rate"`
}

// StorageConfig holds ledger storage settings.
type StorageConfig struct {
	DataDir string `yaml:"data_dir"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Config holds all configuration for the arena proxy daemon.
type Config struct {
	Proxy   ProxyConfig   `yaml:"proxy"`
	Mirror  MirrorConfig  `yaml:"mirror"`
	Storage StorageConfig `yaml:"storage"`
	Logging LoggingConfig `yaml:"logging"`
}

// DefaultListenAddr is the default proxy listen address, per spec §6.
const DefaultListenAddr = ":18515"

// DefaultProgramID is the sovereign contract's default program address,
// per spec §6.
const DefaultProgramID = "C4UAHoYgqZ7dmS4JypAwQcJ1YzYVM86S2eA1PTUthzve"

// DefaultConfig returns a Config with sensible defaults. Secrets
// (API keys, RPC credentials) are left empty; they must come from the
// environment.
func DefaultConfig() *Config {
	return &Config{
		Proxy: ProxyConfig{
			ListenAddr:       DefaultListenAddr,
			OpenAIBaseURL:    "https://api.openai.com",
			AnthropicBaseURL: "https://api.anthropic.com",
			AnthropicVersion: "2023-06-01",
		},
		Mirror: MirrorConfig{
			ProgramID:      DefaultProgramID,
			InitialSOLRate: 150.0,
		},
		Storage: StorageConfig{
			DataDir: "~/.arena",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// ConfigFileName is the default config file name.
const ConfigFileName = "config.yaml"

// LoadConfig loads configuration from a YAML file under dataDir. If the
// file doesn't exist, it creates one with default values. Environment
// variables are then applied on top and always take precedence, since they
// carry the deployment-time secrets and endpoints (spec §6).
func LoadConfig(dataDir string) (*Config, error) {
	expandedDir := expandPath(dataDir)
	configPath := filepath.Join(expandedDir, ConfigFileName)

	var cfg *Config

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg = DefaultConfig()
		cfg.Storage.DataDir = dataDir

		if err := cfg.Save(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
	} else {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		cfg = DefaultConfig()
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	return cfg, nil
}

// applyEnvOverrides reads the operational environment variables named in
// spec §6 and overlays them onto cfg. Unset variables leave the file's (or
// default's) value untouched.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.Proxy.OpenAIAPIKey = v
	}
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		cfg.Proxy.AnthropicAPIKey = v
	}
	if v := os.Getenv("HELIUS_RPC_URL"); v != "" {
		cfg.Mirror.RPCHTTPURL = v
	}
	if v := os.Getenv("HELIUS_WS_URL"); v != "" {
		cfg.Mirror.RPCWSURL = v
	}
	if v := os.Getenv("HELIUS_API_KEY"); v != "" {
		cfg.Mirror.RPCAPIKey = v
	}
	if v := os.Getenv("SOVEREIGN_CONTRACT_ADDRESS"); v != "" {
		cfg.Mirror.ProgramID = v
	}
	if v := os.Getenv("USDC_MINT"); v != "" {
		cfg.Mirror.USDCMintAddress = v
	}
	if v := os.Getenv("SOL_USDC_RATE"); v != "" {
		if rate, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Mirror.InitialSOLRate = rate
		}
	}
}

// Save writes the configuration to a YAML file. Secrets tagged `yaml:"-"`
// are never serialized.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte("# Sovereign Arena proxy configuration\n# Generated automatically on first run.\n# Secrets (API keys, RPC credentials) are never written here -\n# set them via environment variables instead.\n\n")
	data = append(header, data...)

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ConfigPath returns the full path to the config file for the given data
// directory.
func ConfigPath(dataDir string) string {
	return filepath.Join(expandPath(dataDir), ConfigFileName)
}

// PollInterval is exposed for operators who want to see the nominal mirror
// poll cadence without importing internal/mirror.
const PollInterval = 5 * time.Second

// ExpandDataDir expands a leading "~" in a configured data directory to the
// user's home directory, for callers (the app composition root) that open
// storage directly from cfg.Storage.DataDir.
func ExpandDataDir(path string) string {
	return expandPath(path)
}

func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[1:])
	}
	return path
}
