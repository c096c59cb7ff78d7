package discord

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/robfig/cron/v3"
)

const defaultScheduleTimeout = time.Minute

// BotScheduleI is a background job run by the bot on a cron expression. A non-nil
// embed returned by Execute is posted to the broadcast channel.
type BotScheduleI interface {
	GetName() string
	// GetCronExpression returns the run schedule; empty disables the job.
	GetCronExpression() string
	Execute(ctx context.Context) (*discordgo.MessageEmbed, error)
}

// GenericBotSchedule runs Handler with a deadline of Timeout (one minute when zero).
type GenericBotSchedule struct {
	Name           string
	CronExpression string
	Timeout        time.Duration
	Handler        func(ctx context.Context) (*discordgo.MessageEmbed, error)
}

func (bs *GenericBotSchedule) GetName() string {
	return bs.Name
}

func (bs *GenericBotSchedule) GetCronExpression() string {
	return bs.CronExpression
}

func (bs *GenericBotSchedule) Execute(ctx context.Context) (*discordgo.MessageEmbed, error) {
	return bs.Handler(ctx)
}

func (bs *GenericBotSchedule) timeout() time.Duration {
	if bs.Timeout <= 0 {
		return defaultScheduleTimeout
	}
	return bs.Timeout
}

// NewBotSchedule wraps handler as a schedule with the default timeout.
func NewBotSchedule(name string, cronExpr string, handler func(ctx context.Context) (*discordgo.MessageEmbed, error)) *GenericBotSchedule {
	return &GenericBotSchedule{
		Name:           name,
		CronExpression: cronExpr,
		Handler:        handler,
	}
}

// scheduleParser accepts standard five field expressions, an optional leading
// seconds field and descriptors such as "@every 5m".
var scheduleParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// ValidateCron reports whether expr is a schedule the manager accepts.
func ValidateCron(expr string) error {
	_, err := scheduleParser.Parse(expr)
	return err
}

// cronLogger sends the scheduler's own messages to slog.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	slog.Debug("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	slog.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}

// scheduleManager runs the schedules and posts their embeds to the broadcast channel.
// A run that is still going when its next tick fires skips that tick.
type scheduleManager struct {
	session    Session
	channelID  string
	cron       *cron.Cron
	schedules  []BotScheduleI
	ctx        context.Context
	cancelFunc context.CancelFunc
}

func newScheduleManager(session Session, channelID string, loc *time.Location, schedules []BotScheduleI) *scheduleManager {
	if loc == nil {
		loc = time.UTC
	}
	ctx, cancel := context.WithCancel(context.Background())
	logger := cronLogger{}
	return &scheduleManager{
		session:   session,
		channelID: channelID,
		cron: cron.New(
			cron.WithParser(scheduleParser),
			cron.WithLocation(loc),
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
		schedules:  schedules,
		ctx:        ctx,
		cancelFunc: cancel,
	}
}

func (sm *scheduleManager) start() error {
	active := 0
	for _, sched := range sm.schedules {
		if sched.GetCronExpression() == "" {
			slog.Info("schedule disabled", "name", sched.GetName())
			continue
		}
		_, err := sm.cron.AddFunc(sched.GetCronExpression(), func() {
			sm.executeSchedule(sched)
		})
		if err != nil {
			return fmt.Errorf("failed to add schedule %s: %w", sched.GetName(), err)
		}
		active++
		slog.Info("registered schedule", "name", sched.GetName(), "cron", sched.GetCronExpression())
	}

	sm.cron.Start()
	slog.Info("schedule manager started", "schedules", active)
	return nil
}

func (sm *scheduleManager) executeSchedule(schedule BotScheduleI) {
	timeout := defaultScheduleTimeout
	if g, ok := schedule.(*GenericBotSchedule); ok {
		timeout = g.timeout()
	}
	ctx, cancel := context.WithTimeout(sm.ctx, timeout)
	defer cancel()

	started := time.Now()
	embed, err := schedule.Execute(ctx)
	if err != nil {
		slog.Error("schedule failed",
			"name", schedule.GetName(),
			"duration", time.Since(started),
			"error", err)
		return
	}
	slog.Debug("schedule finished", "name", schedule.GetName(), "duration", time.Since(started))

	if embed == nil {
		return
	}

	if sm.channelID == "" {
		slog.Info("schedule produced a notification but no broadcast channel is configured",
			"name", schedule.GetName(),
			"title", embed.Title)
		return
	}

	if _, err := sm.session.ChannelMessageSendEmbed(sm.channelID, embed); err != nil {
		slog.Error("failed to send schedule notification",
			"channel", sm.channelID,
			"schedule", schedule.GetName(),
			"error", err)
	}
}

// stop cancels running jobs and waits for them to return.
func (sm *scheduleManager) stop() {
	sm.cancelFunc()
	<-sm.cron.Stop().Done()
	slog.Info("schedule manager stopped")
}
