package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"

	"github.com/brensch/attendance/metrics"
	"github.com/bwmarrin/discordgo"
)

var (
	// ErrAlreadyAcknowledged is returned when a second initial response is attempted.
	ErrAlreadyAcknowledged = errors.New("interaction already acknowledged")
	// ErrUnknownInteraction is returned for custom IDs and commands nobody registered.
	ErrUnknownInteraction = errors.New("unknown interaction")
)

// DefaultFailureMessage is shown when a handler fails without answering.
const DefaultFailureMessage = "❌ Error procesando la interacción. Inténtalo nuevamente."

// Origin is where an interaction or message came from. Names are empty when
// they could not be resolved.
type Origin struct {
	GuildID     string
	GuildName   string
	ChannelID   string
	ChannelName string
}

// IsDirect reports whether the origin is a direct message.
func (o Origin) IsDirect() bool {
	return o.GuildID == ""
}

// OriginResolver looks up the guild and channel names of an interaction.
type OriginResolver func(guildID, channelID string) Origin

// Interaction is the context handed to interaction handlers.
type Interaction struct {
	*discordgo.InteractionCreate
	Session   Session
	Responder *Responder
	Origin    Origin
}

// User returns the invoking user, whether the interaction came from a guild or a DM.
func (ic *Interaction) User() *discordgo.User {
	if ic.Member != nil && ic.Member.User != nil {
		return ic.Member.User
	}
	return ic.InteractionCreate.User
}

// IsAdmin reports whether the invoking member holds the Administrator permission.
func (ic *Interaction) IsAdmin() bool {
	return ic.Member != nil && ic.Member.Permissions&discordgo.PermissionAdministrator != 0
}

// ComponentHandler handles a button press or a modal submission.
type ComponentHandler func(ctx context.Context, ic *Interaction) error

// Router dispatches interactions and text commands to the registered handlers.
// Every interaction it dispatches ends with a response, even when the handler
// fails or panics.
type Router struct {
	components map[string]ComponentHandler
	modals     map[string]ComponentHandler
	functions  []BotFunctionI
	messages   map[string]*MessageCommand
	ordered    []*MessageCommand

	resolve        OriginResolver
	metrics        *metrics.Manager
	failureMessage string
}

// NewRouter creates an empty router. resolve may be nil, in which case only IDs are known.
func NewRouter(resolve OriginResolver, m *metrics.Manager) *Router {
	if resolve == nil {
		resolve = func(guildID, channelID string) Origin {
			return Origin{GuildID: guildID, ChannelID: channelID}
		}
	}
	return &Router{
		components:     make(map[string]ComponentHandler),
		modals:         make(map[string]ComponentHandler),
		messages:       make(map[string]*MessageCommand),
		resolve:        resolve,
		metrics:        m,
		failureMessage: DefaultFailureMessage,
	}
}

// SetResolver replaces the origin resolver. The bot installs its state-backed
// resolver once the session exists.
func (r *Router) SetResolver(resolve OriginResolver) {
	if resolve != nil {
		r.resolve = resolve
	}
}

// HandleComponent registers the handler of a button custom ID.
func (r *Router) HandleComponent(customID string, h ComponentHandler) {
	r.components[customID] = h
}

// HandleModal registers the handler of a modal custom ID.
func (r *Router) HandleModal(customID string, h ComponentHandler) {
	r.modals[customID] = h
}

// AddFunction registers a slash command.
func (r *Router) AddFunction(fn BotFunctionI) {
	r.functions = append(r.functions, fn)
}

// Functions lists the registered slash commands.
func (r *Router) Functions() []BotFunctionI {
	out := make([]BotFunctionI, len(r.functions))
	copy(out, r.functions)
	return out
}

// AddMessageCommand registers a text command under each of its names.
func (r *Router) AddMessageCommand(cmd *MessageCommand) {
	r.ordered = append(r.ordered, cmd)
	for _, name := range cmd.Names {
		r.messages[strings.ToLower(name)] = cmd
	}
}

// MessageCommands lists the registered text commands.
func (r *Router) MessageCommands() []*MessageCommand {
	out := make([]*MessageCommand, len(r.ordered))
	copy(out, r.ordered)
	return out
}

// Dispatch handles one interaction.
func (r *Router) Dispatch(ctx context.Context, s Session, i *discordgo.InteractionCreate) {
	kind, name := describe(i)
	if kind == "" {
		return
	}

	ic := &Interaction{
		InteractionCreate: i,
		Session:           s,
		Responder:         NewResponder(s, i.Interaction),
	}

	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("interaction handler panicked",
				"kind", kind,
				"name", name,
				"panic", rec,
				"stack", string(debug.Stack()))
			ic.Responder.Fail(r.failureMessage)
		}
	}()

	ic.Origin = r.resolve(i.GuildID, i.ChannelID)

	slog.Debug("received interaction", "kind", kind, "name", name, "guild", ic.Origin.GuildID, "channel", ic.Origin.ChannelID)
	r.metrics.InteractionHandled(kind, name)

	err := r.route(ctx, ic, kind, name)
	if err != nil {
		slog.Error("failed to handle interaction", "kind", kind, "name", name, "error", err)
		ic.Responder.Fail(r.failureMessage)
		return
	}
	if !ic.Responder.Acknowledged() {
		slog.Warn("handler returned without responding", "kind", kind, "name", name)
		ic.Responder.Fail(r.failureMessage)
	}
}

func (r *Router) route(ctx context.Context, ic *Interaction, kind, name string) error {
	switch kind {
	case "button":
		h, ok := r.components[name]
		if !ok {
			return fmt.Errorf("%w: button %q", ErrUnknownInteraction, name)
		}
		return h(ctx, ic)
	case "modal":
		h, ok := r.modals[name]
		if !ok {
			return fmt.Errorf("%w: modal %q", ErrUnknownInteraction, name)
		}
		return h(ctx, ic)
	case "command":
		for _, fn := range r.functions {
			if fn.GetName() == name {
				return fn.HandleInteraction(ctx, ic)
			}
		}
		return fmt.Errorf("%w: command %q", ErrUnknownInteraction, name)
	}
	return fmt.Errorf("%w: %s", ErrUnknownInteraction, kind)
}

func describe(i *discordgo.InteractionCreate) (kind, name string) {
	switch i.Type {
	case discordgo.InteractionMessageComponent:
		return "button", i.MessageComponentData().CustomID
	case discordgo.InteractionModalSubmit:
		return "modal", i.ModalSubmitData().CustomID
	case discordgo.InteractionApplicationCommand:
		return "command", i.ApplicationCommandData().Name
	}
	return "", ""
}
