package model

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// MailboxConfig holds the connection settings for one mailbox entry in
// the config file. Passwords may be left empty, in which case they are
// resolved from the OS keyring at startup.
type MailboxConfig struct {
	Name         string `mapstructure:"name" yaml:"name"`
	IMAPHost     string `mapstructure:"imap_host" yaml:"imap_host"`
	IMAPPort     int    `mapstructure:"imap_port" yaml:"imap_port"`
	IMAPUsername string `mapstructure:"imap_username" yaml:"imap_username"`
	IMAPPassword string `mapstructure:"imap_password" yaml:"imap_password"`
	IMAPTLS      bool   `mapstructure:"imap_tls" yaml:"imap_tls"`

	SMTPHost     string `mapstructure:"smtp_host" yaml:"smtp_host"`
	SMTPPort     int    `mapstructure:"smtp_port" yaml:"smtp_port"`
	SMTPUsername string `mapstructure:"smtp_username" yaml:"smtp_username"`
	SMTPPassword string `mapstructure:"smtp_password" yaml:"smtp_password"`
	SMTPStartTLS bool   `mapstructure:"smtp_starttls" yaml:"smtp_starttls"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	// DBPath is the SQLite database location.
	DBPath string `mapstructure:"db_path" yaml:"db_path"`

	// MediaRoot is the directory attachment payloads are written under.
	MediaRoot string `mapstructure:"media_root" yaml:"media_root"`

	// Timezone is the IANA zone name used when localizing message
	// Date headers, e.g. "Asia/Beirut".
	Timezone string `mapstructure:"timezone" yaml:"timezone"`

	// PollIntervalSec is how often (in seconds) each mailbox is fetched.
	PollIntervalSec int `mapstructure:"poll_interval_sec" yaml:"poll_interval_sec"`

	// NotifyUsers are always notified about payment activity, on top
	// of users attached to the task itself.
	NotifyUsers []string `mapstructure:"notify_users" yaml:"notify_users"`

	Mailboxes []MailboxConfig `mapstructure:"mailboxes" yaml:"mailboxes"`
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/printdesk/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", "printdesk", "config.yaml")
}

// defaultAppConfig returns a sensible default configuration.
func defaultAppConfig() *AppConfig {
	return &AppConfig{
		DBPath:          "printdesk.db",
		MediaRoot:       "media",
		Timezone:        "Asia/Beirut",
		PollIntervalSec: 300,
	}
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// If the file does not exist, it returns a default configuration.
func LoadConfig(path string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	// Set defaults so missing keys resolve to sensible values.
	v.SetDefault("db_path", "printdesk.db")
	v.SetDefault("media_root", "media")
	v.SetDefault("timezone", "Asia/Beirut")
	v.SetDefault("poll_interval_sec", 300)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(*os.PathError); ok {
			return defaultAppConfig(), nil
		}
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return defaultAppConfig(), nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := defaultAppConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	for i := range cfg.Mailboxes {
		if cfg.Mailboxes[i].IMAPPort == 0 {
			cfg.Mailboxes[i].IMAPPort = 143
		}
		if cfg.Mailboxes[i].SMTPPort == 0 {
			cfg.Mailboxes[i].SMTPPort = 587
		}
	}

	return cfg, nil
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("db_path", cfg.DBPath)
	v.Set("media_root", cfg.MediaRoot)
	v.Set("timezone", cfg.Timezone)
	v.Set("poll_interval_sec", cfg.PollIntervalSec)
	v.Set("notify_users", cfg.NotifyUsers)
	v.Set("mailboxes", cfg.Mailboxes)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}

// Mailbox converts a config entry into the domain Mailbox shape.
func (mc MailboxConfig) Mailbox() Mailbox {
	return Mailbox{
		Name:         mc.Name,
		IMAPHost:     mc.IMAPHost,
		IMAPPort:     mc.IMAPPort,
		IMAPUsername: mc.IMAPUsername,
		IMAPPassword: mc.IMAPPassword,
		IMAPTLS:      mc.IMAPTLS,
		SMTPHost:     mc.SMTPHost,
		SMTPPort:     mc.SMTPPort,
		SMTPUsername: mc.SMTPUsername,
		SMTPPassword: mc.SMTPPassword,
		SMTPStartTLS: mc.SMTPStartTLS,
	}
}
