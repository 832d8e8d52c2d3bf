package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"notice_bot/internal/model"
)

const sampleYAML = `
bot:
  channel: "@notices"
  log_channel: "@ops"
  crawl_interval: 5m
  message_delay: 50ms
database:
  path: /var/lib/noticebot/notices.db
sources:
  - key: cbnu_main
    name: 충북대 공지
    dialect: egov
    url: https://www.chungbuk.ac.kr/www/selectBbsNttList.do
    params: {bbsNo: "8", key: "813"}
  - key: biz
    name: 경영학부
    dialect: ciboard
    url: https://biz.chungbuk.ac.kr
    channel: "@biz"
  - key: sw
    dialect: xe_board
    url: https://software.cbnu.ac.kr
    enabled: false
`

var envKeys = []string{
	"TELEGRAM_BOT_TOKEN", "DATABASE_PATH", "LOG_LEVEL", "CHANNEL_ID", "TELEGRAM_CHANNEL_ID",
	"LOG_CHANNEL_ID", "TELEGRAM_LOG_CHANNEL", "ALLOWED_USERS", "METRICS_ADDR",
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		check   func(t *testing.T, c *Config)
		wantErr bool
	}{
		{
			name: "file values and defaults",
			check: func(t *testing.T, c *Config) {
				want := Bot{
					Channel:          "@notices",
					LogChannel:       "@ops",
					CrawlInterval:    5 * time.Minute,
					MaxNoticesPerRun: 20,
					MessageDelay:     50 * time.Millisecond,
					DMWindow:         24 * time.Hour,
					FetchTimeout:     15 * time.Second,
					InsecureTLS:      true,
				}
				if diff := cmp.Diff(want, c.Bot); diff != "" {
					t.Errorf("bot mismatch (-want +got):\n%s", diff)
				}
				if c.Database.Path != "/var/lib/noticebot/notices.db" {
					t.Errorf("database path = %q", c.Database.Path)
				}
				if c.LogLevel != "info" || c.TelegramBotToken != "" {
					t.Errorf("log level %q, token %q", c.LogLevel, c.TelegramBotToken)
				}
			},
		},
		{
			name: "environment overrides",
			env: map[string]string{
				"TELEGRAM_BOT_TOKEN":   "tok",
				"DATABASE_PATH":        "/tmp/n.db",
				"LOG_LEVEL":            "debug",
				"TELEGRAM_CHANNEL_ID":  "-100123",
				"TELEGRAM_LOG_CHANNEL": "-100456",
				"ALLOWED_USERS":        " 10 , 20 , ",
				"METRICS_ADDR":         ":9090",
			},
			check: func(t *testing.T, c *Config) {
				got := []any{c.TelegramBotToken, c.Database.Path, c.LogLevel, c.Bot.Channel, c.Bot.LogChannel, c.AllowedUsers, c.MetricsAddr}
				want := []any{"tok", "/tmp/n.db", "debug", "-100123", "-100456", []int64{10, 20}, ":9090"}
				if diff := cmp.Diff(want, got); diff != "" {
					t.Errorf("overrides mismatch (-want +got):\n%s", diff)
				}
			},
		},
		{
			name: "primary channel variable wins",
			env:  map[string]string{"CHANNEL_ID": "@a", "TELEGRAM_CHANNEL_ID": "@b"},
			check: func(t *testing.T, c *Config) {
				if c.Bot.Channel != "@a" {
					t.Errorf("channel = %q, want @a", c.Bot.Channel)
				}
			},
		},
		{
			name:    "invalid user id",
			env:     map[string]string{"ALLOWED_USERS": "123,abc"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, key := range envKeys {
				t.Setenv(key, "")
			}
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			got, err := Load(writeConfig(t, sampleYAML))
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			tt.check(t, got)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error, got nil")
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		c, err := parse([]byte(sampleYAML))
		if err != nil {
			t.Fatalf("parse: %v", err)
		}
		return c
	}

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"no sources", func(c *Config) { c.Sources = nil }},
		{"missing key", func(c *Config) { c.Sources[0].Key = "" }},
		{"duplicate key", func(c *Config) { c.Sources[1].Key = "cbnu_main" }},
		{"missing url", func(c *Config) { c.Sources[0].URL = "" }},
		{"unknown dialect", func(c *Config) { c.Sources[0].Dialect = "wordpress" }},
		{"zero interval", func(c *Config) { c.Bot.CrawlInterval = 0 }},
		{"zero max notices", func(c *Config) { c.Bot.MaxNoticesPerRun = 0 }},
	}

	if err := valid().Validate(); err != nil {
		t.Fatalf("sample config invalid: %v", err)
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			if err := c.Validate(); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestSources(t *testing.T) {
	c, err := parse([]byte(sampleYAML))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	want := []model.Source{
		{
			Key: "cbnu_main", Name: "충북대 공지", Dialect: "egov",
			URL:     "https://www.chungbuk.ac.kr/www/selectBbsNttList.do",
			Params:  map[string]string{"bbsNo": "8", "key": "813"},
			Enabled: true,
		},
		{
			Key: "biz", Name: "경영학부", Dialect: "ciboard",
			URL: "https://biz.chungbuk.ac.kr", Enabled: true, Channel: "@biz",
		},
		{
			Key: "sw", Name: "sw", Dialect: "xe_board",
			URL: "https://software.cbnu.ac.kr",
		},
	}
	if diff := cmp.Diff(want, c.AllSources()); diff != "" {
		t.Errorf("AllSources() mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(want[:2], c.EnabledSources()); diff != "" {
		t.Errorf("EnabledSources() mismatch (-want +got):\n%s", diff)
	}
}

func TestIsUserAllowed(t *testing.T) {
	tests := []struct {
		name         string
		allowedUsers []int64
		userID       int64
		want         bool
	}{
		{
			name:         "empty list allows everyone",
			allowedUsers: nil,
			userID:       42,
			want:         true,
		},
		{
			name:         "user in list",
			allowedUsers: []int64{10, 20, 30},
			userID:       20,
			want:         true,
		},
		{
			name:         "user not in list",
			allowedUsers: []int64{10, 20, 30},
			userID:       99,
			want:         false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{AllowedUsers: tt.allowedUsers}
			got := cfg.IsUserAllowed(tt.userID)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("IsUserAllowed() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
