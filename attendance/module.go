package attendance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/brensch/attendance/discord"
	"github.com/brensch/attendance/metrics"
	"github.com/bwmarrin/discordgo"
)

// Config holds the settings of the attendance module.
type Config struct {
	// BroadcastChannelID mirrors successful events. Empty disables the mirror.
	BroadcastChannelID string
	// Location renders timestamps in confirmations.
	Location *time.Location
	// WebhookConfigured is reported by the status command.
	WebhookConfigured bool
	// Probe is used by the status command when asked to test the webhook.
	Probe WebhookProbe
}

// Module wires the attendance handlers into a discord.Router.
type Module struct {
	cfg      Config
	recorder Recorder
	journal  Journal
	notifier *Notifier
	status   StatusProvider
	metrics  *metrics.Manager
	now      func() time.Time
}

// Option configures a Module.
type Option func(*Module)

// WithJournal appends every event to j after recording.
func WithJournal(j Journal) Option {
	return func(m *Module) { m.journal = j }
}

// WithMetrics counts validation rejections and DM refusals on mm.
func WithMetrics(mm *metrics.Manager) Option {
	return func(m *Module) { m.metrics = mm }
}

// WithClock overrides the event clock.
func WithClock(now func() time.Time) Option {
	return func(m *Module) {
		if now != nil {
			m.now = now
		}
	}
}

// NewModule creates the module around recorder.
func NewModule(cfg Config, recorder Recorder, opts ...Option) *Module {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	m := &Module{
		cfg:      cfg,
		recorder: recorder,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.notifier = NewNotifier(cfg.BroadcastChannelID, cfg.Location, m.metrics)
	return m
}

// SetStatusProvider attaches the gateway connection once the bot exists.
func (m *Module) SetStatusProvider(p StatusProvider) {
	m.status = p
}

// Register installs the buttons, the sales modal and the commands on r.
func (m *Module) Register(r *discord.Router) {
	for _, d := range Descriptors() {
		r.HandleComponent(d.ButtonID, m.handleButton)
	}
	r.HandleModal(SalesModalID, m.handleSalesModal)
	m.registerCommands(r)
}

func (m *Module) handleButton(ctx context.Context, ic *discord.Interaction) error {
	customID := ic.MessageComponentData().CustomID
	desc, ok := DescriptorForButton(customID)
	if !ok {
		return fmt.Errorf("%w: button %q", discord.ErrUnknownInteraction, customID)
	}

	if desc.Action == ActionLogout {
		return ic.Responder.Modal(SalesModal())
	}

	if err := ic.Responder.Ack(fmt.Sprintf("%s **%s** procesando...", desc.Emoji, desc.Name)); err != nil {
		return err
	}
	return m.record(ctx, ic, desc.Action, nil)
}

func (m *Module) handleSalesModal(ctx context.Context, ic *discord.Interaction) error {
	var form SalesForm
	if err := discord.DecodeModal(ic.ModalSubmitData(), &form); err != nil {
		return fmt.Errorf("failed to decode sales form: %w", err)
	}

	report, err := form.Parse()
	if err != nil {
		var verr *ValidationError
		if !errors.As(err, &verr) {
			return err
		}
		m.metrics.ValidationRejected(verr.Field)
		slog.Info("sales form rejected", "user", ic.User().ID, "field", verr.Field)
		return ic.Responder.Reply(&discordgo.InteractionResponseData{
			Content: "❌ **Error**: " + verr.Message,
			Flags:   discordgo.MessageFlagsEphemeral,
		})
	}

	if err := ic.Responder.Ack("🔴 **Procesando logout y reporte de ventas...** ⏳"); err != nil {
		return err
	}
	return m.record(ctx, ic, ActionLogout, &report)
}

// record builds the event, sends it to the recorder exactly once and confirms it.
func (m *Module) record(ctx context.Context, ic *discord.Interaction, action Action, sales *SalesReport) error {
	ev := NewEvent(m.now(), ActorFromUser(ic.User()), action, originOf(ic.Origin), sales)

	delivered := m.recorder.Record(ctx, ev)

	if m.journal != nil {
		if err := m.journal.Append(ctx, ev, delivered); err != nil {
			slog.Error("failed to append event to journal", "event", ev.ID, "error", err)
		}
	}

	return m.notifier.Confirm(ctx, ic, ev, delivered)
}

// originOf maps a Discord origin to the names sent to the webhook, using the
// direct-message sentinels for anything that could not be named.
func originOf(o discord.Origin) Origin {
	if o.IsDirect() {
		return DirectOrigin
	}
	origin := Origin{GuildName: o.GuildName, ChannelName: o.ChannelName}
	if origin.GuildName == "" {
		origin.GuildName = DirectGuildName
	}
	if origin.ChannelName == "" {
		origin.ChannelName = DirectChannelName
	}
	return origin
}
