package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	_ "time/tzdata" // America/Lima without a system zoneinfo

	"github.com/brensch/attendance/attendance"
	"github.com/brensch/attendance/config"
	"github.com/brensch/attendance/db"
	"github.com/brensch/attendance/discord"
	"github.com/brensch/attendance/health"
	"github.com/brensch/attendance/log"
	"github.com/brensch/attendance/metrics"
	"github.com/brensch/attendance/sheets"
	"github.com/joho/godotenv"
)

var version = "dev"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to load .env", "error", err)
	}

	// Load configuration
	cfg := config.Get()

	loc := cfg.Location()
	level, err := log.ParseLevel(cfg.Log.Level)
	if err != nil {
		slog.Warn("falling back to info level", "error", err)
	}
	recent := log.NewRecent(cfg.Log.Recent)
	slog.SetDefault(slog.New(log.NewRecentHandler(log.NewHandler(cfg.Log.Format, level, loc), recent)))

	slog.Info("Attendance bot starting", "version", version, "timezone", loc.String())

	m := metrics.NewManager()

	recorder := sheets.NewClient(cfg.Webhook.URL,
		sheets.WithTimeout(cfg.Webhook.Timeout),
		sheets.WithRetry(cfg.Webhook.MaxAttempts, cfg.Webhook.InitialBackoff, cfg.Webhook.MaxBackoff),
		sheets.WithMetrics(m),
	)
	probe := func(ctx context.Context) (bool, string) {
		d := recorder.Probe(ctx)
		return d.Delivered, d.Summary()
	}

	opts := []attendance.Option{attendance.WithMetrics(m)}
	var schedules []discord.BotScheduleI

	// The journal is optional; events are only kept locally when a directory is configured.
	var dbClient *db.Client
	if dir := cfg.Database.Directory; dir != "" {
		dbClient, err = db.NewClient(dir)
		if err != nil {
			slog.Error("failed to create database client", "error", err)
			os.Exit(1)
		}
		if err := dbClient.Start(ctx); err != nil {
			slog.Error("failed to start database client", "error", err)
			os.Exit(1)
		}
		journal, err := db.NewJournal(ctx, dbClient)
		if err != nil {
			slog.Error("failed to create journal", "error", err)
			os.Exit(1)
		}
		opts = append(opts, attendance.WithJournal(journal))
		schedules = append(schedules, attendance.ExportSchedule(cfg.Schedules.JournalExport, journal, loc))
		slog.Info("Event journal enabled", "directory", dir)
	}

	router := discord.NewRouter(nil, m)
	module := attendance.NewModule(attendance.Config{
		BroadcastChannelID: cfg.Broadcast.ChannelID,
		Location:           loc,
		WebhookConfigured:  recorder.Enabled(),
		Probe:              probe,
	}, recorder, opts...)
	module.Register(router)

	bot, err := discord.NewBot(discord.BotConfig{
		AppID:              cfg.Discord.AppID,
		BotToken:           cfg.Discord.BotToken,
		ReadyTimeout:       cfg.Discord.ReadyTimeout,
		Activity:           cfg.Discord.Activity,
		BroadcastChannelID: cfg.Broadcast.ChannelID,
		AnnounceOnline:     cfg.Discord.AnnounceOnline,
		Location:           loc,
	}, router, nil, m)
	if err != nil {
		slog.Error("Failed to create bot", "error", err)
		os.Exit(1)
	}
	module.SetStatusProvider(bot)

	keepAlive := attendance.NewKeepAlive(bot, cfg.Server.BaseURL, cfg.Server.SelfPingTimeout)
	bot.AddSchedules(append(schedules, keepAlive.Schedule(cfg.Schedules.KeepAlive))...)

	server := health.NewServer(version, bot,
		health.WithProbe(probe),
		health.WithRecentLogs(recent),
		health.WithMetrics(m),
		health.WithSettings(health.Settings{
			BotToken:           cfg.Discord.BotToken,
			WebhookURL:         cfg.Webhook.URL,
			BroadcastChannelID: cfg.Broadcast.ChannelID,
			BaseURL:            cfg.Server.BaseURL,
			JournalDirectory:   cfg.Database.Directory,
			Location:           loc,
		}),
	)
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.ListenAndServe(ctx, cfg.Server.Addr)
	}()

	// A failed first connection is not fatal: the keep-alive schedule and /start retry it.
	if err := bot.Start(ctx); err != nil {
		slog.Error("Bot start failed", "error", err)
	} else {
		slog.Info("Bot is now running")
	}

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		if err != nil {
			slog.Error("HTTP server stopped", "error", err)
		}
		cancel()
	}

	slog.Info("Shutting down bot...")
	if err := bot.Close(); err != nil {
		slog.Error("Error during shutdown", "error", err)
	}
	if dbClient != nil {
		if err := dbClient.Stop(); err != nil {
			slog.Error("failed to stop database client", "error", err)
		}
	}
}
