// Package config resolves the orchestrator's configuration surface: chain
// endpoints, contract handles, timelock parameters, session limits, monitor
// tuning, and secret sealing options.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration object, loaded from a YAML file:
// default-on-first-run, ~ expansion, atomic overwrite on Save.
type Config struct {
	ChainA    ChainAConfig   `yaml:"chainA"`
	ChainB    ChainBConfig   `yaml:"chainB"`
	Session   SessionConfig  `yaml:"session"`
	Timelocks TimelockConfig `yaml:"timelocks"`
	Monitor   MonitorConfig  `yaml:"monitor"`
	Secret    SecretConfig   `yaml:"secret"`
	Storage   StorageConfig  `yaml:"storage"`
	Logging   LoggingConfig  `yaml:"logging"`
}

// ChainAConfig resolves the EVM-side endpoint and factory handle.
type ChainAConfig struct {
	RPCURL         string `yaml:"rpcUrl"`
	ChainID        uint64 `yaml:"chainId"`
	FactoryAddress string `yaml:"factoryAddress"`
	SignerKey      string `yaml:"signerKey"` // hex-encoded ECDSA key, or empty for read-only
}

// ChainBConfig resolves the NEAR-like endpoint and HTLC contract handle.
type ChainBConfig struct {
	NetworkID       string `yaml:"networkId"`
	RPCURL          string `yaml:"rpcUrl"`
	BackupRPCURL    string `yaml:"backupRpcUrl"`
	HTLCContract    string `yaml:"htlcContract"`
	AccountID       string `yaml:"accountId"`
	PrivateKey      string `yaml:"privateKey"`      // "ed25519:<base64 seed>", or empty for read-only
	CredentialsPath string `yaml:"credentialsPath"` // on-disk credential store, tried before PrivateKey
}

// SessionConfig bounds the SessionStore.
type SessionConfig struct {
	MaxActive         int `yaml:"maxActive"`
	TimeoutSeconds    int `yaml:"timeoutSeconds"`
	CleanupIntervalMs int `yaml:"cleanupIntervalMs"`
}

// TimelockConfig seeds the timelock offsets, all relative seconds from deployment.
type TimelockConfig struct {
	SrcWithdrawalOffset       int64 `yaml:"srcWithdrawalOffset"`
	SrcPublicWithdrawalOffset int64 `yaml:"srcPublicWithdrawalOffset"`
	SrcCancellationOffset     int64 `yaml:"srcCancellationOffset"`
	DstWithdrawalOffset       int64 `yaml:"dstWithdrawalOffset"`
	DstCancellationOffset     int64 `yaml:"dstCancellationOffset"`
	DeployedBackdateSeconds   int64 `yaml:"deployedBackdateSeconds"`
}

// MonitorConfig tunes EventMonitor.
type MonitorConfig struct {
	PollIntervalMs    int `yaml:"pollIntervalMs"`
	ConfirmationDepth int `yaml:"confirmationDepth"`
	MaxRetries        int `yaml:"maxRetries"`
	BackoffBaseMs     int `yaml:"backoffBase"`
}

// SecretConfig configures SecretStore sealing.
type SecretConfig struct {
	TTLSeconds    int64  `yaml:"ttlSeconds"`
	EncryptionKey string `yaml:"encryptionKey"` // passphrase, run through HKDF
}

// StorageConfig holds the SQLite data directory.
type StorageConfig struct {
	DataDir string `yaml:"dataDir"`
}

// LoggingConfig mirrors pkg/logging.Config for file-driven setup.
type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// DefaultConfig returns a fully-populated set of sane defaults, safe to run
// against testnets out of the box.
func DefaultConfig() *Config {
	return &Config{
		ChainA: ChainAConfig{
			ChainID: 11155111, // Sepolia
		},
		ChainB: ChainBConfig{
			NetworkID: "testnet",
		},
		Session: SessionConfig{
			MaxActive:         1000,
			TimeoutSeconds:    3600,
			CleanupIntervalMs: 60_000,
		},
		Timelocks: TimelockConfig{
			SrcWithdrawalOffset:       1800,
			SrcPublicWithdrawalOffset: 3600,
			SrcCancellationOffset:     7200,
			DstWithdrawalOffset:       600,
			DstCancellationOffset:     1500,
			DeployedBackdateSeconds:   60,
		},
		Monitor: MonitorConfig{
			PollIntervalMs:    5000,
			ConfirmationDepth: 6,
			MaxRetries:        5,
			BackoffBaseMs:     500,
		},
		Secret: SecretConfig{
			TTLSeconds: 86400,
		},
		Storage: StorageConfig{
			DataDir: "~/.swaporch",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// ConfigFileName is the default config file name.
const ConfigFileName = "config.yaml"

// LoadConfig loads configuration from a YAML file under dataDir. If the file
// doesn't exist, it creates one populated with defaults.
func LoadConfig(dataDir string) (*Config, error) {
	expandedDir := expandPath(dataDir)
	configPath := filepath.Join(expandedDir, ConfigFileName)

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := DefaultConfig()
		cfg.Storage.DataDir = dataDir
		if err := cfg.Save(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return cfg, nil
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte("# swaporch orchestrator configuration\n# Generated automatically on first run\n\n")
	data = append(header, data...)

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// ConfigPath returns the full config path for a data directory.
func ConfigPath(dataDir string) string {
	return filepath.Join(expandPath(dataDir), ConfigFileName)
}

// PollInterval returns Monitor.PollIntervalMs as a time.Duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Monitor.PollIntervalMs) * time.Millisecond
}

// SessionTimeout returns Session.TimeoutSeconds as a time.Duration.
func (c *Config) SessionTimeout() time.Duration {
	return time.Duration(c.Session.TimeoutSeconds) * time.Second
}

// SecretTTL returns Secret.TTLSeconds as a time.Duration.
func (c *Config) SecretTTL() time.Duration {
	return time.Duration(c.Secret.TTLSeconds) * time.Second
}

func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[1:])
	}
	return path
}
