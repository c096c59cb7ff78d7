package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// ErrMissingBotToken is returned when no Discord credential is configured.
var ErrMissingBotToken = errors.New("discord.bot_token is required")

// AppConfig holds all configuration for the application
type AppConfig struct {
	Discord struct {
		AppID          string        `koanf:"app_id" yaml:"app_id"`
		BotToken       string        `koanf:"bot_token" yaml:"bot_token"`
		ReadyTimeout   time.Duration `koanf:"ready_timeout" yaml:"ready_timeout"`
		AnnounceOnline bool          `koanf:"announce_online" yaml:"announce_online"`
		Activity       string        `koanf:"activity" yaml:"activity"`
	} `koanf:"discord" yaml:"discord"`

	Webhook struct {
		URL            string        `koanf:"url" yaml:"url"`
		Timeout        time.Duration `koanf:"timeout" yaml:"timeout"`
		MaxAttempts    int           `koanf:"max_attempts" yaml:"max_attempts"`
		InitialBackoff time.Duration `koanf:"initial_backoff" yaml:"initial_backoff"`
		MaxBackoff     time.Duration `koanf:"max_backoff" yaml:"max_backoff"`
	} `koanf:"webhook" yaml:"webhook"`

	Broadcast struct {
		ChannelID string `koanf:"channel_id" yaml:"channel_id"`
	} `koanf:"broadcast" yaml:"broadcast"`

	Server struct {
		Addr            string        `koanf:"addr" yaml:"addr"`
		BaseURL         string        `koanf:"base_url" yaml:"base_url"`
		SelfPingTimeout time.Duration `koanf:"self_ping_timeout" yaml:"self_ping_timeout"`
	} `koanf:"server" yaml:"server"`

	Attendance struct {
		Timezone string `koanf:"timezone" yaml:"timezone"`
	} `koanf:"attendance" yaml:"attendance"`

	Schedules struct {
		KeepAlive     string `koanf:"keepalive" yaml:"keepalive"`
		JournalExport string `koanf:"journal_export" yaml:"journal_export"`
	} `koanf:"schedules" yaml:"schedules"`

	Database struct {
		// Empty disables the local event journal.
		Directory string `koanf:"directory" yaml:"directory"`
	} `koanf:"database" yaml:"database"`

	Log struct {
		Level  string `koanf:"level" yaml:"level"`
		Format string `koanf:"format" yaml:"format"`
		Recent int    `koanf:"recent" yaml:"recent"`
	} `koanf:"log" yaml:"log"`
}

// Location resolves the attendance timezone, falling back to UTC.
func (c *AppConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Attendance.Timezone)
	if err != nil {
		slog.Warn("unknown attendance timezone, using UTC", "timezone", c.Attendance.Timezone, "error", err)
		return time.UTC
	}
	return loc
}

// DefaultLocations are searched in order; the first existing file wins.
var DefaultLocations = []string{
	"/etc/app/config.yaml",            // Standard system location
	"/config/config.yaml",             // Docker mounted volume location
	filepath.Join(".", "config.yaml"), // Local file in current directory
}

// legacyEnv maps the variable names of the original deployment onto config keys.
var legacyEnv = map[string]string{
	"DISCORD_TOKEN":             "discord.bot_token",
	"GOOGLE_SHEETS_WEBHOOK_URL": "webhook.url",
	"DISCORD_LOG_CHANNEL_ID":    "broadcast.channel_id",
	"URL":                       "server.base_url",
}

func defaults() map[string]interface{} {
	return map[string]interface{}{
		"discord.ready_timeout":      15 * time.Second,
		"discord.activity":           "Control de Asistencia 24/7",
		"webhook.timeout":            10 * time.Second,
		"webhook.max_attempts":       1,
		"webhook.initial_backoff":    500 * time.Millisecond,
		"webhook.max_backoff":        3 * time.Second,
		"server.addr":                ":8080",
		"server.self_ping_timeout":   8 * time.Second,
		"attendance.timezone":        "America/Lima",
		"schedules.keepalive":        "@every 5m",
		"schedules.journal_export":   "0 5 * * *",
		"log.level":                  "debug",
		"log.format":                 "pretty",
		"log.recent":                 50,
	}
}

// Global singleton config instance
var (
	cfg  *AppConfig
	once sync.Once
)

// Get returns the global AppConfig instance
func Get() *AppConfig {
	once.Do(func() {
		var err error
		cfg, err = Load(DefaultLocations...)
		if err != nil {
			slog.Error("Failed to load configuration", "error", err)
			os.Exit(1)
		}
	})
	return cfg
}

// Default returns the configuration built from defaults only.
func Default() AppConfig {
	k := koanf.New(".")
	var out AppConfig
	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return out
	}
	_ = unmarshal(k, &out)
	return out
}

// Load configuration from various sources with proper precedence
func Load(locations ...string) (*AppConfig, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load default config: %w", err)
	}

	configLoaded := false
	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			slog.Info("Loading configuration file", "path", loc)
			if err := k.Load(file.Provider(loc), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("error loading config file %s: %w", loc, err)
			}
			configLoaded = true
			break
		}
	}

	if !configLoaded {
		slog.Warn("No config file found in any of the expected locations",
			"searched_locations", locations)
	}

	// Names used by the original deployment, below APP_ in priority.
	if err := k.Load(env.Provider("", ".", func(s string) string {
		return legacyEnv[s]
	}), nil); err != nil {
		return nil, fmt.Errorf("error loading legacy environment variables: %w", err)
	}

	// Environment variables (highest priority)
	// Format: APP_WEBHOOK_MAX_ATTEMPTS -> webhook.max_attempts
	callback := func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "app_")
		return strings.Replace(s, "_", ".", 1)
	}

	if err := k.Load(env.Provider("APP_", ".", callback), nil); err != nil {
		return nil, fmt.Errorf("error loading environment variables: %w", err)
	}

	var out AppConfig
	if err := unmarshal(k, &out); err != nil {
		return nil, err
	}

	// Log configuration details (with sensitive information redacted)
	slog.Debug("Configuration loaded",
		"database_directory", out.Database.Directory,
		"discord_app_id", out.Discord.AppID,
		"bot_token_present", out.Discord.BotToken != "",
		"webhook_configured", out.Webhook.URL != "",
		"broadcast_configured", out.Broadcast.ChannelID != "",
		"base_url", out.Server.BaseURL)

	if err := out.Validate(); err != nil {
		return nil, err
	}

	return &out, nil
}

// Validate checks required values and bounds.
func (c *AppConfig) Validate() error {
	if strings.TrimSpace(c.Discord.BotToken) == "" {
		return ErrMissingBotToken
	}
	if c.Webhook.MaxAttempts < 1 {
		return fmt.Errorf("webhook.max_attempts must be at least 1, got %d", c.Webhook.MaxAttempts)
	}
	if c.Webhook.Timeout <= 0 {
		return fmt.Errorf("webhook.timeout must be positive, got %s", c.Webhook.Timeout)
	}
	if c.Webhook.URL == "" {
		slog.Warn("webhook.url not configured, attendance events will not be recorded")
	}
	return nil
}

func unmarshal(k *koanf.Koanf, out *AppConfig) error {
	decoderConfig := koanf.UnmarshalConf{
		DecoderConfig: &mapstructure.DecoderConfig{
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
			),
			WeaklyTypedInput: true,
			Result:           out,
		},
	}

	if err := k.UnmarshalWithConf("", out, decoderConfig); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return nil
}
