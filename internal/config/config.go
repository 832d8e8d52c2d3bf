// Package config loads the application configuration from a YAML file and
// environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"notice_bot/internal/model"
	"notice_bot/internal/parser"
)

// DefaultPath is used when no config file is given.
const DefaultPath = "config.yaml"

// Config holds the application configuration.
type Config struct {
	Bot      Bot      `yaml:"bot"`
	Database Database `yaml:"database"`
	Sources  []Source `yaml:"sources"`

	TelegramBotToken string  `yaml:"-"`
	LogLevel         string  `yaml:"log_level"`
	MetricsAddr      string  `yaml:"metrics_addr"`
	AllowedUsers     []int64 `yaml:"allowed_users"`
}

// Bot holds delivery and crawl loop settings.
type Bot struct {
	Channel          string        `yaml:"channel"`
	LogChannel       string        `yaml:"log_channel"`
	CrawlInterval    time.Duration `yaml:"crawl_interval"`
	MaxNoticesPerRun int           `yaml:"max_notices_per_run"`
	MessageDelay     time.Duration `yaml:"message_delay"`
	DMWindow         time.Duration `yaml:"dm_window"`
	FetchTimeout     time.Duration `yaml:"fetch_timeout"`
	InsecureTLS      bool          `yaml:"insecure_tls"`
}

// Database holds storage settings.
type Database struct {
	Path string `yaml:"path"`
}

// Source is one notice board as written in the config file.
type Source struct {
	Key     string            `yaml:"key"`
	Name    string            `yaml:"name"`
	Dialect string            `yaml:"dialect"`
	URL     string            `yaml:"url"`
	Params  map[string]string `yaml:"params"`
	Enabled *bool             `yaml:"enabled"`
	Channel string            `yaml:"channel"`
}

// Load reads path, applies environment overrides and validates the result.
// A .env file in the working directory is loaded first when present.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	if path == "" {
		path = DefaultPath
	}

	data, err := os.ReadFile(path) //nolint:gosec // path comes from the command line
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := parse(data)
	if err != nil {
		return nil, err
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// parse parses YAML bytes into a Config, applying defaults.
func parse(data []byte) (*Config, error) {
	cfg := &Config{
		Bot: Bot{
			CrawlInterval:    10 * time.Minute,
			MaxNoticesPerRun: 20,
			MessageDelay:     150 * time.Millisecond,
			DMWindow:         24 * time.Hour,
			FetchTimeout:     15 * time.Second,
			InsecureTLS:      true,
		},
		Database: Database{Path: "./data/notices.db"},
		LogLevel: "info",
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.TelegramBotToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	if v := os.Getenv("DATABASE_PATH"); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := firstEnv("CHANNEL_ID", "TELEGRAM_CHANNEL_ID"); v != "" {
		c.Bot.Channel = v
	}
	if v := firstEnv("LOG_CHANNEL_ID", "TELEGRAM_LOG_CHANNEL"); v != "" {
		c.Bot.LogChannel = v
	}
	if v := os.Getenv("METRICS_ADDR"); v != "" {
		c.MetricsAddr = v
	}

	if raw := os.Getenv("ALLOWED_USERS"); raw != "" {
		var allowed []int64
		for _, s := range strings.Split(raw, ",") {
			s = strings.TrimSpace(s)
			if s == "" {
				continue
			}
			uid, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid user ID %q in ALLOWED_USERS: %w", s, err)
			}
			allowed = append(allowed, uid)
		}
		c.AllowedUsers = allowed
	}
	return nil
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

// Validate checks the sources and bot settings.
func (c *Config) Validate() error {
	if len(c.Sources) == 0 {
		return errors.New("no sources configured")
	}
	dialects := parser.Dialects()
	seen := make(map[string]bool, len(c.Sources))
	for i, s := range c.Sources {
		switch {
		case s.Key == "":
			return fmt.Errorf("source #%d: key is required", i+1)
		case seen[s.Key]:
			return fmt.Errorf("source %s: duplicate key", s.Key)
		case s.URL == "":
			return fmt.Errorf("source %s: url is required", s.Key)
		case !slices.Contains(dialects, s.Dialect):
			return fmt.Errorf("source %s: unknown dialect %q (want one of %s)",
				s.Key, s.Dialect, strings.Join(dialects, ", "))
		}
		seen[s.Key] = true
	}

	b := c.Bot
	if b.CrawlInterval <= 0 || b.MessageDelay < 0 || b.DMWindow <= 0 || b.FetchTimeout <= 0 {
		return errors.New("bot: durations must be positive")
	}
	if b.MaxNoticesPerRun <= 0 {
		return errors.New("bot: max_notices_per_run must be positive")
	}
	return nil
}

// AllSources converts the configured sources, applying per-source defaults.
func (c *Config) AllSources() []model.Source {
	out := make([]model.Source, 0, len(c.Sources))
	for _, s := range c.Sources {
		name := s.Name
		if name == "" {
			name = s.Key
		}
		out = append(out, model.Source{
			Key:     s.Key,
			Name:    name,
			Dialect: s.Dialect,
			URL:     s.URL,
			Params:  s.Params,
			Enabled: s.Enabled == nil || *s.Enabled,
			Channel: s.Channel,
		})
	}
	return out
}

// EnabledSources returns the sources that should be crawled.
func (c *Config) EnabledSources() []model.Source {
	var out []model.Source
	for _, s := range c.AllSources() {
		if s.Enabled {
			out = append(out, s)
		}
	}
	return out
}

// IsUserAllowed checks whether a user ID is in the allow list.
// Returns true if the allow list is empty (all users permitted).
func (c *Config) IsUserAllowed(userID int64) bool {
	if len(c.AllowedUsers) == 0 {
		return true
	}
	return slices.Contains(c.AllowedUsers, userID)
}
