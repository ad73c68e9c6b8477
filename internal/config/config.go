package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"
)

const FileName = "config.yaml"

type Config struct {
	LocalPath       string        `mapstructure:"local_path" yaml:"local_path"`
	RemoteURL       string        `mapstructure:"remote_url" yaml:"remote_url"`
	Branch          string        `mapstructure:"branch" yaml:"branch"`
	CredentialRef   string        `mapstructure:"credential_ref" yaml:"credential_ref,omitempty"`
	Interval        time.Duration `mapstructure:"interval" yaml:"interval"`
	ConfirmTimeout  time.Duration `mapstructure:"confirm_timeout" yaml:"confirm_timeout"`
	MaxRetries      int           `mapstructure:"max_retries" yaml:"max_retries"`
	MaxAuthFailures int           `mapstructure:"max_auth_failures" yaml:"max_auth_failures"`
	SettleScans     int           `mapstructure:"settle_scans" yaml:"settle_scans"`
	SettleDelay     time.Duration `mapstructure:"settle_delay" yaml:"settle_delay"`
	IgnoreList      []string      `mapstructure:"ignore_list" yaml:"ignore_list"`
	WatchLocal      bool          `mapstructure:"watch_local" yaml:"watch_local"`
	ProposePush     bool          `mapstructure:"propose_push" yaml:"propose_push"`
	DaemonPort      int           `mapstructure:"daemon_port" yaml:"daemon_port"`
	DBPath          string        `mapstructure:"db_path" yaml:"db_path"`
	PersistBaseline bool          `mapstructure:"persist_baseline" yaml:"persist_baseline"`
	AuthorName      string        `mapstructure:"author_name" yaml:"author_name"`
	AuthorEmail     string        `mapstructure:"author_email" yaml:"author_email"`
}

var Default = Config{
	Branch:          "main",
	Interval:        5 * time.Minute,
	ConfirmTimeout:  2 * time.Minute,
	MaxRetries:      3,
	MaxAuthFailures: 3,
	SettleScans:     0,
	SettleDelay:     500 * time.Millisecond,
	IgnoreList:      []string{".git", ".DS_Store", "*.tmp", "*.swp"},
	WatchLocal:      true,
	ProposePush:     true,
	DaemonPort:      9301,
	DBPath:          filepath.Join(xdg.DataHome, "repolink", "repolink.db"),
	PersistBaseline: true,
	AuthorName:      "repolink",
	AuthorEmail:     "repolink@localhost",
}

func Dir() string {
	return filepath.Join(xdg.ConfigHome, "repolink")
}

func Load() (*Config, error) {
	return LoadFrom(Dir())
}

func LoadFrom(dir string) (*Config, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create config dir: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)

	v.SetDefault("local_path", Default.LocalPath)
	v.SetDefault("remote_url", Default.RemoteURL)
	v.SetDefault("branch", Default.Branch)
	v.SetDefault("credential_ref", Default.CredentialRef)
	v.SetDefault("interval", Default.Interval)
	v.SetDefault("confirm_timeout", Default.ConfirmTimeout)
	v.SetDefault("max_retries", Default.MaxRetries)
	v.SetDefault("max_auth_failures", Default.MaxAuthFailures)
	v.SetDefault("settle_scans", Default.SettleScans)
	v.SetDefault("settle_delay", Default.SettleDelay)
	v.SetDefault("ignore_list", Default.IgnoreList)
	v.SetDefault("watch_local", Default.WatchLocal)
	v.SetDefault("propose_push", Default.ProposePush)
	v.SetDefault("daemon_port", Default.DaemonPort)
	v.SetDefault("db_path", Default.DBPath)
	v.SetDefault("persist_baseline", Default.PersistBaseline)
	v.SetDefault("author_name", Default.AuthorName)
	v.SetDefault("author_email", Default.AuthorEmail)

	v.SetEnvPrefix("REPOLINK")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := errors.AsType[viper.ConfigFileNotFoundError](err); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	switch {
	case c.LocalPath == "":
		return errors.New("local_path must not be empty")
	case c.RemoteURL == "":
		return errors.New("remote_url must not be empty")
	case c.Branch == "":
		return errors.New("branch must not be empty")
	case c.Interval <= 0:
		return errors.New("interval must be positive")
	case c.ConfirmTimeout <= 0:
		return errors.New("confirm_timeout must be positive")
	case c.MaxRetries < 0 || c.MaxAuthFailures < 1:
		return errors.New("max_retries must be >= 0 and max_auth_failures >= 1")
	case c.SettleScans < 0:
		return errors.New("settle_scans must not be negative")
	}

	return nil
}
