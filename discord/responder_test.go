package discord

import (
	"errors"
	"testing"

	"github.com/bwmarrin/discordgo"
)

func TestResponderReplyBeforeAck(t *testing.T) {
	fake := NewFakeSession()
	var got *discordgo.InteractionResponse
	fake.InteractionRespondFunc = func(_ *discordgo.Interaction, resp *discordgo.InteractionResponse, _ ...discordgo.RequestOption) error {
		got = resp
		return nil
	}

	r := NewResponder(fake, &discordgo.Interaction{ID: "1"})
	if err := r.Reply(&discordgo.InteractionResponseData{Content: "hola"}); err != nil {
		t.Fatalf("Reply returned error: %v", err)
	}

	if !r.Acknowledged() {
		t.Fatal("expected responder to be acknowledged")
	}
	if got == nil || got.Type != discordgo.InteractionResponseChannelMessageWithSource || got.Data.Content != "hola" {
		t.Fatalf("unexpected response: %+v", got)
	}
	if fake.Calls("InteractionResponseEdit") != 0 {
		t.Fatal("reply before ack must not edit")
	}
}

func TestResponderReplyAfterAckEdits(t *testing.T) {
	fake := NewFakeSession()
	var edited *discordgo.WebhookEdit
	fake.InteractionResponseEditFunc = func(_ *discordgo.Interaction, e *discordgo.WebhookEdit, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
		edited = e
		return &discordgo.Message{}, nil
	}

	r := NewResponder(fake, &discordgo.Interaction{ID: "1"})
	if err := r.Ack("⏳"); err != nil {
		t.Fatalf("Ack returned error: %v", err)
	}
	embed := &discordgo.MessageEmbed{Title: "done"}
	if err := r.Reply(&discordgo.InteractionResponseData{Content: "listo", Embeds: []*discordgo.MessageEmbed{embed}}); err != nil {
		t.Fatalf("Reply returned error: %v", err)
	}

	if fake.Calls("InteractionRespond") != 1 {
		t.Fatalf("expected exactly one initial response, trace %v", fake.Trace())
	}
	if edited == nil || *edited.Content != "listo" || len(*edited.Embeds) != 1 {
		t.Fatalf("unexpected edit: %+v", edited)
	}
}

func TestResponderRefusesSecondAck(t *testing.T) {
	r := NewResponder(NewFakeSession(), &discordgo.Interaction{ID: "1"})
	if err := r.Ack("uno"); err != nil {
		t.Fatalf("Ack returned error: %v", err)
	}
	if err := r.Modal(&discordgo.InteractionResponseData{CustomID: "m"}); !errors.Is(err, ErrAlreadyAcknowledged) {
		t.Fatalf("expected ErrAlreadyAcknowledged, got %v", err)
	}
	if err := r.Defer(true); !errors.Is(err, ErrAlreadyAcknowledged) {
		t.Fatalf("expected ErrAlreadyAcknowledged, got %v", err)
	}
}

func TestResponderFailedRespondStaysUnacknowledged(t *testing.T) {
	fake := NewFakeSession()
	fake.InteractionRespondFunc = func(*discordgo.Interaction, *discordgo.InteractionResponse, ...discordgo.RequestOption) error {
		return errors.New("boom")
	}

	r := NewResponder(fake, &discordgo.Interaction{ID: "1"})
	if err := r.Ack("x"); err == nil {
		t.Fatal("expected error")
	}
	if r.Acknowledged() {
		t.Fatal("failed respond must not mark the interaction acknowledged")
	}
}
