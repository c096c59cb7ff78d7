package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/brensch/attendance/config"
	"github.com/smartystreets/goconvey/convey"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefault(t *testing.T) {
	convey.Convey("Given the built-in defaults", t, func() {
		cfg := config.Default()

		convey.Convey("Then they match the original deployment", func() {
			convey.So(cfg.Webhook.Timeout, convey.ShouldEqual, 10*time.Second)
			convey.So(cfg.Webhook.MaxAttempts, convey.ShouldEqual, 1)
			convey.So(cfg.Discord.ReadyTimeout, convey.ShouldEqual, 15*time.Second)
			convey.So(cfg.Server.SelfPingTimeout, convey.ShouldEqual, 8*time.Second)
			convey.So(cfg.Attendance.Timezone, convey.ShouldEqual, "America/Lima")
			convey.So(cfg.Schedules.KeepAlive, convey.ShouldEqual, "@every 5m")
			convey.So(cfg.Database.Directory, convey.ShouldBeEmpty)
		})
	})
}

func TestLoad(t *testing.T) {
	convey.Convey("Given a config file", t, func() {
		path := writeFile(t, `
discord:
  bot_token: file-token
webhook:
  url: https://script.example/exec
  timeout: 5s
  max_attempts: 3
broadcast:
  channel_id: "42"
`)

		convey.Convey("When it is loaded", func() {
			cfg, err := config.Load(path)

			convey.Convey("Then file values override defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Discord.BotToken, convey.ShouldEqual, "file-token")
				convey.So(cfg.Webhook.URL, convey.ShouldEqual, "https://script.example/exec")
				convey.So(cfg.Webhook.Timeout, convey.ShouldEqual, 5*time.Second)
				convey.So(cfg.Webhook.MaxAttempts, convey.ShouldEqual, 3)
				convey.So(cfg.Broadcast.ChannelID, convey.ShouldEqual, "42")
				convey.So(cfg.Server.Addr, convey.ShouldEqual, ":8080")
			})
		})

		convey.Convey("When APP_ variables are set", func() {
			t.Setenv("APP_DISCORD_BOT_TOKEN", "env-token")
			t.Setenv("APP_WEBHOOK_MAX_ATTEMPTS", "2")
			cfg, err := config.Load(path)

			convey.Convey("Then they take precedence", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Discord.BotToken, convey.ShouldEqual, "env-token")
				convey.So(cfg.Webhook.MaxAttempts, convey.ShouldEqual, 2)
			})
		})
	})
}

func TestLoadLegacyEnvironment(t *testing.T) {
	convey.Convey("Given only the legacy environment names", t, func() {
		t.Setenv("DISCORD_TOKEN", "legacy-token")
		t.Setenv("GOOGLE_SHEETS_WEBHOOK_URL", "https://legacy.example/exec")
		t.Setenv("DISCORD_LOG_CHANNEL_ID", "99")
		t.Setenv("URL", "https://bot.example")

		cfg, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))

		convey.Convey("Then they are mapped onto config keys", func() {
			convey.So(err, convey.ShouldBeNil)
			convey.So(cfg.Discord.BotToken, convey.ShouldEqual, "legacy-token")
			convey.So(cfg.Webhook.URL, convey.ShouldEqual, "https://legacy.example/exec")
			convey.So(cfg.Broadcast.ChannelID, convey.ShouldEqual, "99")
			convey.So(cfg.Server.BaseURL, convey.ShouldEqual, "https://bot.example")
		})

		convey.Convey("Then APP_ still wins over them", func() {
			t.Setenv("APP_DISCORD_BOT_TOKEN", "app-token")
			cfg, err := config.Load()
			convey.So(err, convey.ShouldBeNil)
			convey.So(cfg.Discord.BotToken, convey.ShouldEqual, "app-token")
		})
	})
}

func TestLoadMissingToken(t *testing.T) {
	convey.Convey("Given no bot credential anywhere", t, func() {
		t.Setenv("DISCORD_TOKEN", "")
		t.Setenv("APP_DISCORD_BOT_TOKEN", "")
		_, err := config.Load()

		convey.Convey("Then loading fails with ErrMissingBotToken", func() {
			convey.So(err, convey.ShouldEqual, config.ErrMissingBotToken)
		})
	})
}

func TestLoadInvalidRetryBudget(t *testing.T) {
	convey.Convey("Given an invalid retry budget", t, func() {
		path := writeFile(t, "discord:\n  bot_token: x\nwebhook:\n  max_attempts: 0\n")
		_, err := config.Load(path)

		convey.Convey("Then validation rejects it", func() {
			convey.So(err, convey.ShouldNotBeNil)
		})
	})
}

func TestLocation(t *testing.T) {
	convey.Convey("Location falls back to UTC for unknown zones", t, func() {
		cfg := config.Default()
		cfg.Attendance.Timezone = "Nowhere/Atlantis"
		convey.So(cfg.Location(), convey.ShouldEqual, time.UTC)
	})
}
