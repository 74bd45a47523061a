package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"cargohold/internal/constants"
	"cargohold/internal/logger"
)

// CredentialConfig holds settings for verifying bearer credentials presented
// on the admin channel. The service never issues credentials; it only
// verifies them.
type CredentialConfig struct {
	Algorithm     string `yaml:"algorithm"`       // "ed25519" or "hs256"
	PublicKeyPath string `yaml:"public_key_path"` // PEM file, ed25519 only
	SharedSecret  string `yaml:"shared_secret"`   // passphrase, hs256 only
	Issuer        string `yaml:"issuer"`
	Audience      string `yaml:"audience"`
}

// AdminChannelConfig holds the authorization settings for the privileged
// persistent connection. VerifyIntervalSecs bounds the staleness window
// between an authority change and its enforcement on an open session.
type AdminChannelConfig struct {
	VerifyIntervalSecs int      `yaml:"verify_interval_secs"`
	LookupTimeoutMs    int      `yaml:"lookup_timeout_ms"`
	LookupRetries      int      `yaml:"lookup_retries"`
	RetryBackoffMs     int      `yaml:"retry_backoff_ms"`
	PrivilegedRoles    []string `yaml:"privileged_roles"`
	MaxMessageBytes    int64    `yaml:"max_message_bytes"`
}

// VerifyInterval returns the re-verification interval as time.Duration.
func (c *AdminChannelConfig) VerifyInterval() time.Duration {
	return time.Duration(c.VerifyIntervalSecs) * time.Second
}

// LookupTimeout returns the per-attempt authority lookup timeout.
func (c *AdminChannelConfig) LookupTimeout() time.Duration {
	return time.Duration(c.LookupTimeoutMs) * time.Millisecond
}

// RetryBackoff returns the initial backoff between lookup retries.
func (c *AdminChannelConfig) RetryBackoff() time.Duration {
	return time.Duration(c.RetryBackoffMs) * time.Millisecond
}

// AuditConfig holds user-configurable security event log settings.
type AuditConfig struct {
	MaxLogSizeBytes int64 `yaml:"max_log_size_bytes"`
	PurgePercentage int   `yaml:"purge_percentage"`
}

// TransferConfig holds user-configurable file transfer settings.
type TransferConfig struct {
	MaxUploadBytes int64 `yaml:"max_upload_bytes"`
}

// Config holds all application configuration.
type Config struct {
	WorkingDirectory string             `yaml:"working_directory"`
	Port             int                `yaml:"port"`
	Credential       CredentialConfig   `yaml:"credential"`
	AdminChannel     AdminChannelConfig `yaml:"admin_channel"`
	Audit            AuditConfig        `yaml:"audit"`
	Transfer         TransferConfig     `yaml:"transfer"`
}

// ApplyDefaults fills zero-valued fields with constant defaults.
func (cfg *Config) ApplyDefaults() {
	if cfg.Port == 0 {
		cfg.Port = constants.DefaultPort
	}
	if cfg.Credential.Algorithm == "" {
		cfg.Credential.Algorithm = constants.CredentialAlgEd25519
	}

	// Admin channel defaults
	if cfg.AdminChannel.VerifyIntervalSecs == 0 {
		cfg.AdminChannel.VerifyIntervalSecs = int(constants.ChannelVerifyInterval.Seconds())
	}
	if cfg.AdminChannel.LookupTimeoutMs == 0 {
		cfg.AdminChannel.LookupTimeoutMs = int(constants.ChannelLookupTimeout.Milliseconds())
	}
	if cfg.AdminChannel.LookupRetries == 0 {
		cfg.AdminChannel.LookupRetries = constants.ChannelLookupRetries
	}
	if cfg.AdminChannel.RetryBackoffMs == 0 {
		cfg.AdminChannel.RetryBackoffMs = int(constants.ChannelRetryBackoff.Milliseconds())
	}
	if len(cfg.AdminChannel.PrivilegedRoles) == 0 {
		cfg.AdminChannel.PrivilegedRoles = []string{constants.RoleAdmin}
	}
	if cfg.AdminChannel.MaxMessageBytes == 0 {
		cfg.AdminChannel.MaxMessageBytes = constants.ChannelMaxMessageBytes
	}

	// Audit defaults
	if cfg.Audit.MaxLogSizeBytes == 0 {
		cfg.Audit.MaxLogSizeBytes = constants.AuditMaxLogSizeBytes
	}
	if cfg.Audit.PurgePercentage == 0 {
		cfg.Audit.PurgePercentage = constants.AuditPurgePercentage
	}

	// Transfer defaults
	if cfg.Transfer.MaxUploadBytes == 0 {
		cfg.Transfer.MaxUploadBytes = constants.MaxUploadBytes
	}
}

// CredentialConfigured reports whether verification key material is present.
// Without it the admin channel endpoint is disabled.
func (cfg *Config) CredentialConfigured() bool {
	return cfg.Credential.PublicKeyPath != "" || cfg.Credential.SharedSecret != ""
}

// validate checks that all configurable values are within acceptable ranges.
func (cfg *Config) validate() error {
	var errs []string

	// Credential material is optional at startup; the admin channel stays
	// disabled until a verification key is configured. When material is
	// present it must match the algorithm.
	if cfg.CredentialConfigured() {
		switch cfg.Credential.Algorithm {
		case constants.CredentialAlgEd25519:
			if cfg.Credential.PublicKeyPath == "" {
				errs = append(errs, "credential.public_key_path is required for ed25519")
			}
		case constants.CredentialAlgHS256:
			if cfg.Credential.SharedSecret == "" {
				errs = append(errs, "credential.shared_secret is required for hs256")
			}
		default:
			errs = append(errs, fmt.Sprintf("credential.algorithm must be %q or %q",
				constants.CredentialAlgEd25519, constants.CredentialAlgHS256))
		}
	}

	if cfg.AdminChannel.VerifyIntervalSecs < 1 {
		errs = append(errs, "admin_channel.verify_interval_secs must be >= 1")
	}
	if cfg.AdminChannel.LookupTimeoutMs < 100 {
		errs = append(errs, "admin_channel.lookup_timeout_ms must be >= 100")
	}
	if cfg.AdminChannel.LookupRetries < 1 {
		errs = append(errs, "admin_channel.lookup_retries must be >= 1")
	}
	if cfg.AdminChannel.RetryBackoffMs < 1 {
		errs = append(errs, "admin_channel.retry_backoff_ms must be >= 1")
	}
	if cfg.AdminChannel.MaxMessageBytes < 1024 {
		errs = append(errs, "admin_channel.max_message_bytes must be >= 1024")
	}

	if cfg.Audit.MaxLogSizeBytes < 1048576 {
		errs = append(errs, "audit.max_log_size_bytes must be >= 1048576 (1MB)")
	}
	if cfg.Audit.PurgePercentage < 1 || cfg.Audit.PurgePercentage > 100 {
		errs = append(errs, "audit.purge_percentage must be between 1 and 100")
	}

	if cfg.Transfer.MaxUploadBytes < 1 {
		errs = append(errs, "transfer.max_upload_bytes must be >= 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// LogEffectiveValues logs all effective configuration values at startup.
// The shared secret is never logged.
func (cfg *Config) LogEffectiveValues(log *logger.Logger) {
	log.Info("config: port=%d", cfg.Port)
	log.Info("config: credential.algorithm=%s", cfg.Credential.Algorithm)
	log.Info("config: admin_channel.verify_interval_secs=%d", cfg.AdminChannel.VerifyIntervalSecs)
	log.Info("config: admin_channel.lookup_timeout_ms=%d", cfg.AdminChannel.LookupTimeoutMs)
	log.Info("config: admin_channel.lookup_retries=%d", cfg.AdminChannel.LookupRetries)
	log.Info("config: admin_channel.retry_backoff_ms=%d", cfg.AdminChannel.RetryBackoffMs)
	log.Info("config: admin_channel.privileged_roles=%s", strings.Join(cfg.AdminChannel.PrivilegedRoles, ","))
	log.Info("config: admin_channel.max_message_bytes=%d", cfg.AdminChannel.MaxMessageBytes)
	log.Info("config: audit.max_log_size_bytes=%d", cfg.Audit.MaxLogSizeBytes)
	log.Info("config: audit.purge_percentage=%d", cfg.Audit.PurgePercentage)
	log.Info("config: transfer.max_upload_bytes=%d", cfg.Transfer.MaxUploadBytes)
}

func GetConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, constants.ConfigDir)
}

func GetConfigPath() string {
	return filepath.Join(GetConfigDir(), constants.ConfigFile)
}

func EnsureConfigDir() error {
	return os.MkdirAll(GetConfigDir(), constants.DirPermissions)
}

// LoadConfig reads the config from the default path, creating it with
// defaults on first run.
func LoadConfig() (*Config, error) {
	if err := EnsureConfigDir(); err != nil {
		return nil, err
	}
	return LoadConfigFrom(GetConfigPath())
}

// LoadConfigFrom reads the config from an explicit path. Missing files are
// created with defaults.
func LoadConfigFrom(path string) (*Config, error) {
	_, err := os.Stat(path)
	if os.IsNotExist(err) {
		cfg := &Config{}
		cfg.ApplyDefaults()
		if err := SaveConfigTo(cfg, path); err != nil {
			return nil, err
		}
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	cfg.ApplyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SaveConfig writes the config to the default path.
func SaveConfig(cfg *Config) error {
	if err := EnsureConfigDir(); err != nil {
		return err
	}
	return SaveConfigTo(cfg, GetConfigPath())
}

// SaveConfigTo writes the config to an explicit path.
func SaveConfigTo(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, constants.FilePermissions)
}

// InitializeWorkingDirectory creates the working directory and its internal
// subdirectory (service database, logs).
func InitializeWorkingDirectory(dir string) error {
	if err := os.MkdirAll(dir, constants.DirPermissions); err != nil {
		return fmt.Errorf("failed to create working directory: %w", err)
	}
	internal := filepath.Join(dir, constants.InternalDir)
	if err := os.MkdirAll(internal, constants.DirPermissions); err != nil {
		return fmt.Errorf("failed to create internal directory: %w", err)
	}
	return nil
}
