// Package config provides YAML-based configuration loading for groupyard.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variables that override values from the config file.
const (
	EnvDSN          = "GY_DB_DSN"
	EnvSlackToken   = "GY_SLACK_TOKEN"
	EnvDiscordToken = "GY_DISCORD_TOKEN"
)

// Config is the top-level groupyard configuration, loaded from groupyard.yaml.
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Sessions  SessionsConfig  `yaml:"sessions"`
	Delivery  DeliveryConfig  `yaml:"delivery"`
	Verify    VerifyConfig    `yaml:"verify"`
	Join      JoinConfig      `yaml:"join"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	API       APIConfig       `yaml:"api"`
	Log       LogConfig       `yaml:"log"`
	Notify    NotifyConfig    `yaml:"notify"`
}

// DatabaseConfig selects the storage backend. Driver is "sqlite" (default)
// or "mysql".
type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"` // sqlite file
	DSN    string `yaml:"dsn"`  // explicit DSN, wins over host/port/name
	Host   string `yaml:"host"`
	Port   int    `yaml:"port"`
	Name   string `yaml:"name"`
	User   string `yaml:"user"`
}

// SessionsConfig controls where per-account credentials live.
type SessionsConfig struct {
	Dir        string `yaml:"dir"`
	InviteHost string `yaml:"invite_host"`
}

// DeliveryConfig holds campaign delivery defaults. Delays are in seconds,
// batch_delay and pause_duration in minutes.
type DeliveryConfig struct {
	DelayMin      int `yaml:"delay_min"`
	DelayMax      int `yaml:"delay_max"`
	BatchSize     int `yaml:"batch_size"`
	BatchDelay    int `yaml:"batch_delay"`
	PauseEvery    int `yaml:"pause_every"`
	PauseDuration int `yaml:"pause_duration"`
}

// VerifyConfig holds the approval heuristic and pacing for link checks.
type VerifyConfig struct {
	MemberThreshold          int           `yaml:"member_threshold"`
	RestrictRequiresApproval *bool         `yaml:"restrict_requires_approval"`
	Interval                 time.Duration `yaml:"interval"`
}

// JoinConfig holds the pause between successful joins.
type JoinConfig struct {
	Delay time.Duration `yaml:"delay"`
}

// SchedulerConfig controls how often scheduled campaigns are polled.
type SchedulerConfig struct {
	Poll time.Duration `yaml:"poll"`
}

// APIConfig configures the HTTP adapter.
type APIConfig struct {
	Port int `yaml:"port"`
}

// LogConfig configures logging. Format is "auto", "console" or "json".
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// NotifyConfig lists optional chat destinations for session events.
type NotifyConfig struct {
	Slack   ChannelConfig `yaml:"slack"`
	Discord ChannelConfig `yaml:"discord"`
}

// ChannelConfig is a bot token plus the channel to post to.
type ChannelConfig struct {
	Token   string `yaml:"token"`
	Channel string `yaml:"channel"`
}

// Load reads a YAML config file from path and returns a validated Config.
// A .env file next to the config (or in the working directory) is loaded
// first so its values can override the file.
func Load(path string) (*Config, error) {
	loadDotEnv(filepath.Join(filepath.Dir(path), ".env"))

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// loadDotEnv is best-effort: a missing file is not an error.
func loadDotEnv(path string) {
	if _, err := os.Stat(path); err == nil {
		_ = godotenv.Load(path)
		return
	}
	_ = godotenv.Load()
}

// Parse unmarshals YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnv overrides secrets and the DSN from the environment.
func (c *Config) applyEnv() {
	if v := os.Getenv(EnvDSN); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv(EnvSlackToken); v != "" {
		c.Notify.Slack.Token = v
	}
	if v := os.Getenv(EnvDiscordToken); v != "" {
		c.Notify.Discord.Token = v
	}
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.Driver == "sqlite" && c.Database.Path == "" {
		c.Database.Path = "groupyard.db"
	}
	if c.Database.Driver == "mysql" {
		if c.Database.Host == "" {
			c.Database.Host = "127.0.0.1"
		}
		if c.Database.Port == 0 {
			c.Database.Port = 3306
		}
		if c.Database.Name == "" {
			c.Database.Name = "groupyard"
		}
		if c.Database.User == "" {
			c.Database.User = "root"
		}
	}
	if c.Sessions.Dir == "" {
		c.Sessions.Dir = ".gy_sessions"
	}
	if c.Sessions.InviteHost == "" {
		c.Sessions.InviteHost = "chat.whatsapp.com"
	}

	d := &c.Delivery
	if d.DelayMin == 0 {
		d.DelayMin = 5
	}
	if d.DelayMax == 0 {
		d.DelayMax = 15
	}
	if d.BatchSize == 0 {
		d.BatchSize = 50
	}
	if d.BatchDelay == 0 {
		d.BatchDelay = 30
	}
	if d.PauseEvery == 0 {
		d.PauseEvery = 50
	}
	if d.PauseDuration == 0 {
		d.PauseDuration = 10
	}

	if c.Verify.MemberThreshold == 0 {
		c.Verify.MemberThreshold = 100
	}
	if c.Verify.RestrictRequiresApproval == nil {
		v := true
		c.Verify.RestrictRequiresApproval = &v
	}
	if c.Verify.Interval == 0 {
		c.Verify.Interval = 2 * time.Second
	}
	if c.Join.Delay == 0 {
		c.Join.Delay = 10 * time.Minute
	}
	if c.Scheduler.Poll == 0 {
		c.Scheduler.Poll = 30 * time.Second
	}
	if c.API.Port == 0 {
		c.API.Port = 3000
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "auto"
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	switch c.Database.Driver {
	case "sqlite", "mysql":
	default:
		errs = append(errs, fmt.Sprintf("database.driver %q is not supported (sqlite, mysql)", c.Database.Driver))
	}
	d := c.Delivery
	if d.DelayMin < 0 || d.DelayMax < 0 {
		errs = append(errs, "delivery delays must not be negative")
	}
	if d.DelayMin > d.DelayMax {
		errs = append(errs, fmt.Sprintf("delivery.delay_min (%d) exceeds delivery.delay_max (%d)", d.DelayMin, d.DelayMax))
	}
	if d.BatchSize < 0 || d.BatchDelay < 0 || d.PauseEvery < 0 || d.PauseDuration < 0 {
		errs = append(errs, "delivery batch and pause settings must not be negative")
	}
	if c.Verify.MemberThreshold < 0 {
		errs = append(errs, "verify.member_threshold must not be negative")
	}
	switch c.Log.Format {
	case "auto", "console", "json":
	default:
		errs = append(errs, fmt.Sprintf("log.format %q is not supported (auto, console, json)", c.Log.Format))
	}
	if (c.Notify.Slack.Token == "") != (c.Notify.Slack.Channel == "") {
		errs = append(errs, "notify.slack needs both token and channel")
	}
	if (c.Notify.Discord.Token == "") != (c.Notify.Discord.Channel == "") {
		errs = append(errs, "notify.discord needs both token and channel")
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
