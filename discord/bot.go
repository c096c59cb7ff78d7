package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/brensch/attendance/metrics"
	"github.com/bwmarrin/discordgo"
	"golang.org/x/sync/singleflight"
)

// ErrReadyTimeout is returned when the gateway does not report READY in time.
var ErrReadyTimeout = errors.New("timed out waiting for gateway ready")

// gateway is the websocket side of the session.
type gateway interface {
	Open() error
	Close() error
}

// Bot owns the discordgo session and its gateway connection, routes events to
// the Router and runs the schedules.
type Bot struct {
	session         *discordgo.Session
	gateway         gateway
	config          BotConfig
	router          *Router
	schedules       []BotScheduleI
	scheduleManager *scheduleManager
	metrics         *metrics.Manager

	connect singleflight.Group

	mu           sync.Mutex
	connected    bool
	ready        chan struct{}
	startedAt    time.Time
	lastActivity time.Time
	registered   map[string]bool
}

// BotConfig contains configuration for the bot.
type BotConfig struct {
	AppID    string
	BotToken string
	// ReadyTimeout bounds the wait for the READY event after opening the gateway.
	ReadyTimeout time.Duration
	// Activity is shown as the bot's "watching" status.
	Activity string
	// BroadcastChannelID receives schedule notifications and the online message.
	BroadcastChannelID string
	AnnounceOnline     bool
	// Location is the timezone cron expressions are evaluated in.
	Location *time.Location
}

// Status is a snapshot of the connection.
type Status struct {
	Connected    bool          `json:"connected"`
	User         string        `json:"user,omitempty"`
	UserID       string        `json:"user_id,omitempty"`
	Guilds       int           `json:"guilds"`
	StartedAt    time.Time     `json:"started_at"`
	Uptime       time.Duration `json:"uptime"`
	LastActivity time.Time     `json:"last_activity,omitempty"`
	Latency      time.Duration `json:"latency"`
}

// NewBot creates the session and wires its handlers. The gateway is not opened
// until Start or EnsureConnected is called.
func NewBot(cfg BotConfig, router *Router, schedules []BotScheduleI, m *metrics.Manager) (*Bot, error) {
	if cfg.BotToken == "" {
		return nil, errors.New("bot token is required")
	}
	if cfg.ReadyTimeout <= 0 {
		cfg.ReadyTimeout = 15 * time.Second
	}

	dg, err := discordgo.New("Bot " + cfg.BotToken)
	if err != nil {
		return nil, err
	}

	dg.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent

	bot := &Bot{
		session:    dg,
		gateway:    dg,
		config:     cfg,
		router:     router,
		schedules:  schedules,
		metrics:    m,
		startedAt:  time.Now(),
		registered: make(map[string]bool),
	}
	router.SetResolver(bot.resolveOrigin)

	dg.AddHandler(bot.onReady)
	dg.AddHandler(bot.onResumed)
	dg.AddHandler(bot.onDisconnect)
	dg.AddHandler(bot.onGuildCreate)
	dg.AddHandler(bot.onMessageCreate)
	dg.AddHandler(bot.onInteractionCreate)

	return bot, nil
}

// Session exposes the REST surface of the underlying session.
func (b *Bot) Session() Session {
	return b.session
}

// AddSchedules appends schedules. It must be called before Start.
func (b *Bot) AddSchedules(schedules ...BotScheduleI) {
	b.schedules = append(b.schedules, schedules...)
}

// Start starts the schedules and connects to the gateway. The schedules keep
// running when the first connection fails.
func (b *Bot) Start(ctx context.Context) error {
	if len(b.schedules) > 0 && b.scheduleManager == nil {
		b.scheduleManager = newScheduleManager(b.session, b.config.BroadcastChannelID, b.config.Location, b.schedules)
		if err := b.scheduleManager.start(); err != nil {
			slog.Error("failed to start schedule manager", "error", err)
			return err
		}
	}

	_, err := b.EnsureConnected(ctx)
	return err
}

// Connected reports whether the gateway is currently usable.
func (b *Bot) Connected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connected
}

// EnsureConnected opens the gateway unless it is already connected. Concurrent
// callers share a single attempt bounded by ReadyTimeout; a caller whose ctx ends
// stops waiting without aborting the attempt for the others. started is true
// when the shared attempt established the connection.
func (b *Bot) EnsureConnected(ctx context.Context) (started bool, err error) {
	if b.Connected() {
		return false, nil
	}

	result := b.connect.DoChan("gateway", func() (interface{}, error) {
		if b.Connected() {
			return false, nil
		}
		attemptCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), b.config.ReadyTimeout)
		defer cancel()
		if err := b.open(attemptCtx); err != nil {
			return false, err
		}
		return true, nil
	})

	select {
	case res := <-result:
		if res.Err != nil {
			return false, res.Err
		}
		return res.Val.(bool), nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// open dials the gateway and waits for READY or RESUMED until ctx ends.
func (b *Bot) open(ctx context.Context) error {
	ready := make(chan struct{})
	b.mu.Lock()
	b.ready = ready
	b.mu.Unlock()

	slog.Info("opening gateway connection", "ready_timeout", b.config.ReadyTimeout)
	if err := b.gateway.Open(); err != nil && !errors.Is(err, discordgo.ErrWSAlreadyOpen) {
		b.metrics.GatewayConnect("error")
		return fmt.Errorf("failed to open gateway: %w", err)
	}
	// The session may have reconnected on its own before ready was installed.
	if b.Connected() {
		b.metrics.GatewayConnect("ok")
		return nil
	}

	select {
	case <-ready:
		b.metrics.GatewayConnect("ok")
		return nil
	case <-ctx.Done():
		b.metrics.GatewayConnect("timeout")
		b.closeSession()
		return ErrReadyTimeout
	}
}

func (b *Bot) closeSession() {
	if err := b.gateway.Close(); err != nil {
		slog.Warn("failed to close session", "error", err)
	}
	b.setConnected(false)
}

func (b *Bot) setConnected(connected bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.connected = connected
	if connected && b.ready != nil {
		close(b.ready)
		b.ready = nil
	}
}

func (b *Bot) touch() {
	b.mu.Lock()
	b.lastActivity = time.Now()
	b.mu.Unlock()
}

// Status returns a snapshot of the connection.
func (b *Bot) Status() Status {
	b.mu.Lock()
	st := Status{
		Connected:    b.connected,
		StartedAt:    b.startedAt,
		Uptime:       time.Since(b.startedAt),
		LastActivity: b.lastActivity,
	}
	b.mu.Unlock()

	if state := b.session.State; state != nil {
		state.RLock()
		if state.User != nil {
			st.User = state.User.String()
			st.UserID = state.User.ID
		}
		st.Guilds = len(state.Guilds)
		state.RUnlock()
	}
	if st.Connected {
		st.Latency = b.session.HeartbeatLatency()
	}
	return st
}

func (b *Bot) onReady(s *discordgo.Session, r *discordgo.Ready) {
	b.setConnected(true)
	slog.Info("gateway ready", "user", r.User.String(), "guilds", len(r.Guilds), "session", r.SessionID)

	if b.config.Activity != "" {
		if err := s.UpdateWatchStatus(0, b.config.Activity); err != nil {
			slog.Warn("failed to set activity", "error", err)
		}
	}

	for _, guild := range r.Guilds {
		b.registerCommands(s, guild.ID)
	}

	if b.config.AnnounceOnline && b.config.BroadcastChannelID != "" {
		if _, err := s.ChannelMessageSend(b.config.BroadcastChannelID, b.onlineMessage()); err != nil {
			slog.Error("failed to send online message", "channel", b.config.BroadcastChannelID, "error", err)
		}
	}
}

func (b *Bot) onResumed(s *discordgo.Session, r *discordgo.Resumed) {
	b.setConnected(true)
	slog.Info("gateway resumed")
}

func (b *Bot) onDisconnect(s *discordgo.Session, d *discordgo.Disconnect) {
	b.setConnected(false)
	slog.Warn("gateway disconnected")
}

func (b *Bot) onGuildCreate(s *discordgo.Session, g *discordgo.GuildCreate) {
	b.registerCommands(s, g.ID)
}

// registerCommands replaces the slash commands of a guild with the router's
// functions, once per guild per process.
func (b *Bot) registerCommands(s *discordgo.Session, guildID string) {
	if b.config.AppID == "" {
		return
	}
	b.mu.Lock()
	done := b.registered[guildID]
	b.registered[guildID] = true
	b.mu.Unlock()
	if done {
		return
	}

	existingCommands, err := s.ApplicationCommands(b.config.AppID, guildID)
	if err != nil {
		slog.Error("failed to get commands for guild", "guild", guildID, "error", err)
		return
	}
	for _, cmd := range existingCommands {
		if err := s.ApplicationCommandDelete(b.config.AppID, guildID, cmd.ID); err != nil {
			slog.Error("failed to delete command", "guild", guildID, "command", cmd.Name, "error", err)
		} else {
			slog.Debug("deleted command", "guild", guildID, "command", cmd.Name)
		}
	}

	for _, fn := range b.router.Functions() {
		options, err := structToCommandOptions(fn.GetRequestPrototype())
		if err != nil {
			slog.Error("failed to generate command options", "command", fn.GetName(), "error", err)
			continue
		}
		newCmd := &discordgo.ApplicationCommand{
			Name:                     fn.GetName(),
			Description:              fn.GetDescription(),
			Options:                  options,
			DefaultMemberPermissions: fn.GetDefaultPermissions(),
		}
		if _, err := s.ApplicationCommandCreate(b.config.AppID, guildID, newCmd); err != nil {
			slog.Error("failed to create guild slash command", "guild", guildID, "command", fn.GetName(), "error", err)
			continue
		}
		slog.Debug("registered command", "guild", guildID, "command", fn.GetName(), "options", len(options))
	}
}

func (b *Bot) onlineMessage() string {
	var availableCommands []string
	for _, fn := range b.router.Functions() {
		availableCommands = append(availableCommands, "/"+fn.GetName())
	}
	for _, cmd := range b.router.MessageCommands() {
		availableCommands = append(availableCommands, cmd.Names...)
	}

	var activeSchedules []string
	for _, schedule := range b.schedules {
		if schedule.GetCronExpression() == "" {
			continue
		}
		activeSchedules = append(activeSchedules, fmt.Sprintf("%s (%s)", schedule.GetName(), schedule.GetCronExpression()))
	}

	msg := fmt.Sprintf("Bot de asistencia en línea. Comandos: %s", strings.Join(availableCommands, ", "))
	if len(activeSchedules) > 0 {
		msg += fmt.Sprintf("\nTareas programadas: %s", strings.Join(activeSchedules, ", "))
	}
	return msg
}

func (b *Bot) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || (s.State.User != nil && m.Author.ID == s.State.User.ID) {
		return
	}
	b.router.DispatchMessage(context.Background(), s, m)
}

func (b *Bot) onInteractionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	b.touch()
	b.router.Dispatch(context.Background(), s, i)
}

// resolveOrigin looks names up in the gateway cache first and falls back to REST.
func (b *Bot) resolveOrigin(guildID, channelID string) Origin {
	origin := Origin{GuildID: guildID, ChannelID: channelID}

	if guildID != "" {
		if g, err := b.session.State.Guild(guildID); err == nil {
			origin.GuildName = g.Name
		} else if g, err := b.session.Guild(guildID); err == nil {
			origin.GuildName = g.Name
		} else {
			slog.Debug("failed to resolve guild", "guild", guildID, "error", err)
		}
	}

	if channelID != "" {
		if c, err := b.session.State.Channel(channelID); err == nil {
			origin.ChannelName = c.Name
		} else if c, err := b.session.Channel(channelID); err == nil {
			origin.ChannelName = c.Name
		} else {
			slog.Debug("failed to resolve channel", "channel", channelID, "error", err)
		}
	}
	return origin
}

// Close gracefully closes the Discord session and stops the schedule manager.
func (b *Bot) Close() error {
	slog.Info("shutting down bot")

	if b.scheduleManager != nil {
		b.scheduleManager.stop()
	}

	b.setConnected(false)
	return b.gateway.Close()
}
