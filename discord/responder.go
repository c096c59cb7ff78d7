package discord

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/bwmarrin/discordgo"
)

// Responder sends the responses of a single interaction. Discord accepts exactly
// one initial response per interaction; once it has been sent every further
// reply becomes an edit of that response.
type Responder struct {
	session     Session
	interaction *discordgo.Interaction

	mu           sync.Mutex
	acknowledged bool
}

// NewResponder creates a responder for interaction.
func NewResponder(session Session, interaction *discordgo.Interaction) *Responder {
	return &Responder{
		session:     session,
		interaction: interaction,
	}
}

// Acknowledged reports whether the initial response has been sent.
func (r *Responder) Acknowledged() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.acknowledged
}

// Ack sends an ephemeral placeholder message that later replies will edit.
func (r *Responder) Ack(content string) error {
	return r.respond(&discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	})
}

// Defer acknowledges without content. Discord shows a loading state until the
// next reply.
func (r *Responder) Defer(ephemeral bool) error {
	data := &discordgo.InteractionResponseData{}
	if ephemeral {
		data.Flags = discordgo.MessageFlagsEphemeral
	}
	return r.respond(&discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: data,
	})
}

// Modal answers the interaction with a form. A modal can only be the initial response.
func (r *Responder) Modal(data *discordgo.InteractionResponseData) error {
	return r.respond(&discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseModal,
		Data: data,
	})
}

// Reply sends data as the initial response, or edits the initial response when
// the interaction was already acknowledged.
func (r *Responder) Reply(data *discordgo.InteractionResponseData) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.acknowledged {
		err := r.session.InteractionRespond(r.interaction, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseChannelMessageWithSource,
			Data: data,
		})
		if err != nil {
			return fmt.Errorf("respond to interaction: %w", err)
		}
		r.acknowledged = true
		return nil
	}

	edit := &discordgo.WebhookEdit{
		Content: &data.Content,
	}
	if data.Embeds != nil {
		edit.Embeds = &data.Embeds
	}
	if data.Components != nil {
		edit.Components = &data.Components
	}
	if _, err := r.session.InteractionResponseEdit(r.interaction, edit); err != nil {
		return fmt.Errorf("edit interaction response: %w", err)
	}
	return nil
}

// Fail delivers a terminal ephemeral message. Errors are only logged.
func (r *Responder) Fail(content string) {
	err := r.Reply(&discordgo.InteractionResponseData{
		Content: content,
		Flags:   discordgo.MessageFlagsEphemeral,
	})
	if err != nil {
		slog.Error("failed to deliver failure response", "interaction", r.interaction.ID, "error", err)
	}
}

func (r *Responder) respond(resp *discordgo.InteractionResponse) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.acknowledged {
		return ErrAlreadyAcknowledged
	}
	if err := r.session.InteractionRespond(r.interaction, resp); err != nil {
		return fmt.Errorf("respond to interaction: %w", err)
	}
	r.acknowledged = true
	return nil
}
