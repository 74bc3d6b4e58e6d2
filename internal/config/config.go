// Package config handles the application configuration for the coffer CLI:
// where the vault directory lives, how output is rendered and how recovery
// codes are delivered. Vault-format parameters (KDF cost, cipher) are not
// configuration; they are fixed per format version.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"gopkg.in/yaml.v3"
)

// Output formats.
const (
	OutputTable = "table"
	OutputJSON  = "json"
)

// SMTPPasswordEnv names the environment variable carrying the SMTP
// password. It is never read from or written to the config file.
const SMTPPasswordEnv = "COFFER_SMTP_PASSWORD"

// Config is the on-disk application configuration.
type Config struct {
	VaultPath          string        `yaml:"vault_path"`
	OutputFormat       string        `yaml:"output_format"`
	ConfirmDestructive bool          `yaml:"confirm_destructive"`
	ClipboardTTL       time.Duration `yaml:"clipboard_ttl"`
	Audit              AuditConfig   `yaml:"audit"`
	Notify             NotifyConfig  `yaml:"notify"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.VaultPath, validation.Required),
		validation.Field(&c.OutputFormat, validation.Required, validation.In(OutputTable, OutputJSON)),
	); err != nil {
		return err
	}
	if c.ClipboardTTL < 0 {
		return fmt.Errorf("clipboard_ttl must not be negative")
	}
	if err := c.Audit.Validate(); err != nil {
		return err
	}
	return c.Notify.Validate()
}

// AuditConfig controls the append-only security event log.
type AuditConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Validate validates the audit configuration.
func (c *AuditConfig) Validate() error {
	return nil
}

// ResolvePath returns the audit database path, defaulting to a file inside
// the vault directory.
func (c *AuditConfig) ResolvePath(vaultDir string) string {
	if c.Path != "" {
		return c.Path
	}
	return filepath.Join(vaultDir, "audit.db")
}

// NotifyConfig configures recovery code delivery.
type NotifyConfig struct {
	Email    EmailConfig   `yaml:"email"`
	Webhooks WebhookConfig `yaml:"webhooks"`
}

// Validate validates the notification configuration.
func (c *NotifyConfig) Validate() error {
	if err := c.Email.Validate(); err != nil {
		return err
	}
	return c.Webhooks.Validate()
}

// EmailConfig holds the SMTP relay settings. The password never lives in
// the file; it arrives through SMTPPasswordEnv.
type EmailConfig struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	Username string `yaml:"username"`
	From     string `yaml:"from"`
	Security string `yaml:"security"`

	Password string `yaml:"-"`
}

// Validate validates the SMTP settings. Empty optional fields pass; set
// fields must be well-formed.
func (c *EmailConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, is.Port),
		validation.Field(&c.From, is.EmailFormat),
		validation.Field(&c.Security, validation.In("", "starttls", "ssl", "smtps", "none")),
	)
}

// WebhookConfig holds per-channel gateway endpoints.
type WebhookConfig struct {
	Push     string `yaml:"push"`
	SMS      string `yaml:"sms"`
	Telegram string `yaml:"telegram"`
}

// Validate validates the webhook endpoints.
func (c *WebhookConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Push, is.URL),
		validation.Field(&c.SMS, is.URL),
		validation.Field(&c.Telegram, is.URL),
	)
}

// DefaultPath returns the standard config file location.
func DefaultPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "coffer", "config.yaml")
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		VaultPath:          filepath.Join(home, ".local", "share", "coffer"),
		OutputFormat:       OutputTable,
		ConfirmDestructive: true,
		ClipboardTTL:       30 * time.Second,
		Audit:              AuditConfig{Enabled: true},
	}
}

// Load reads the configuration from configPath, creating a default file on
// first use. An empty path means DefaultPath. The SMTP password is pulled
// from the environment after parsing.
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if configPath == "" {
		configPath = DefaultPath()
	}
	cleanPath := filepath.Clean(configPath)

	if _, err := os.Stat(cleanPath); os.IsNotExist(err) {
		if err := Save(cfg, cleanPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
	} else {
		data, err := os.ReadFile(cleanPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	cfg.Notify.Email.Password = os.Getenv(SMTPPasswordEnv)
	return cfg, nil
}

// Save writes the configuration to configPath, creating parent directories
// as needed.
func Save(cfg *Config, configPath string) error {
	cleanPath := filepath.Clean(configPath)

	if err := os.MkdirAll(filepath.Dir(cleanPath), 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(cleanPath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
