package attendance

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/brensch/attendance/discord"
	"github.com/bwmarrin/discordgo"
)

// keepAliveTimeout bounds one run: the reconnect wait plus the self ping.
const keepAliveTimeout = 45 * time.Second

// KeepAlive keeps the gateway connected and optionally pings the public health endpoint.
type KeepAlive struct {
	bot        StatusProvider
	pingURL    string
	httpClient *http.Client
}

// NewKeepAlive creates the keep-alive job. An empty baseURL disables the self ping.
func NewKeepAlive(bot StatusProvider, baseURL string, pingTimeout time.Duration) *KeepAlive {
	k := &KeepAlive{
		bot:        bot,
		httpClient: &http.Client{Timeout: pingTimeout},
	}
	if baseURL != "" {
		k.pingURL = strings.TrimRight(baseURL, "/") + "/health"
	}
	return k
}

// Schedule wraps the job in a bot schedule.
func (k *KeepAlive) Schedule(cronExpr string) discord.BotScheduleI {
	schedule := discord.NewBotSchedule("keepalive", cronExpr, k.Run)
	schedule.Timeout = keepAliveTimeout
	return schedule
}

// Run reconnects when needed and pings. It returns an embed only when something
// happened that operators should know about.
func (k *KeepAlive) Run(ctx context.Context) (*discordgo.MessageEmbed, error) {
	started, err := k.bot.EnsureConnected(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ensure gateway connection: %w", err)
	}

	var problems []*discordgo.MessageEmbedField
	if started {
		slog.Warn("keep-alive reconnected the gateway")
		problems = append(problems, &discordgo.MessageEmbedField{Name: "🔄 Gateway", Value: "Reconectado"})
	}

	if k.pingURL != "" {
		if err := k.ping(ctx); err != nil {
			slog.Warn("self ping failed", "url", k.pingURL, "error", err)
			problems = append(problems, &discordgo.MessageEmbedField{Name: "🌐 Health", Value: err.Error()})
		} else {
			slog.Debug("self ping ok", "url", k.pingURL)
		}
	}

	if len(problems) == 0 {
		return nil, nil
	}
	return &discordgo.MessageEmbed{
		Title:     "⚠️ Keep-alive",
		Color:     0xff9900,
		Fields:    problems,
		Timestamp: time.Now().Format(time.RFC3339),
	}, nil
}

func (k *KeepAlive) ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, k.pingURL, nil)
	if err != nil {
		return err
	}
	resp, err := k.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health returned HTTP %d", resp.StatusCode)
	}
	return nil
}

// ExportSchedule writes the previous day's journal rows every time it fires.
func ExportSchedule(cronExpr string, exporter Exporter, loc *time.Location) discord.BotScheduleI {
	if loc == nil {
		loc = time.UTC
	}
	return discord.NewBotSchedule("journal-export", cronExpr, func(ctx context.Context) (*discordgo.MessageEmbed, error) {
		day := time.Now().In(loc).AddDate(0, 0, -1)
		path, rows, err := exporter.ExportDay(ctx, day)
		if err != nil {
			return nil, fmt.Errorf("failed to export journal for %s: %w", day.Format(time.DateOnly), err)
		}
		slog.Info("journal exported", "day", day.Format(time.DateOnly), "rows", rows, "path", path)
		if rows == 0 {
			return nil, nil
		}
		return &discordgo.MessageEmbed{
			Title:       "📦 Exportación diaria",
			Description: fmt.Sprintf("%d registros del %s exportados a `%s`", rows, day.Format(time.DateOnly), path),
			Color:       0x0099ff,
		}, nil
	})
}
