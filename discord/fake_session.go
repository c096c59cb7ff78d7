package discord

import (
	"sync"

	"github.com/bwmarrin/discordgo"
)

// FakeSession provides a programmable stub for the Session interface.
// Each method has a Func field that can be set per test; unset methods succeed
// with a plausible value. Every call is recorded in the trace.
type FakeSession struct {
	mu    sync.Mutex
	trace []string

	InteractionRespondFunc        func(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error
	InteractionResponseEditFunc   func(interaction *discordgo.Interaction, newresp *discordgo.WebhookEdit, options ...discordgo.RequestOption) (*discordgo.Message, error)
	FollowupMessageCreateFunc     func(interaction *discordgo.Interaction, wait bool, data *discordgo.WebhookParams, options ...discordgo.RequestOption) (*discordgo.Message, error)
	UserChannelCreateFunc         func(recipientID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	ChannelMessageSendFunc        func(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageSendComplexFunc func(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageSendEmbedFunc   func(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageEditFunc        func(channelID, messageID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageDeleteFunc      func(channelID, messageID string, options ...discordgo.RequestOption) error
	GuildFunc                     func(guildID string, options ...discordgo.RequestOption) (*discordgo.Guild, error)
	ChannelFunc                   func(channelID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	UserChannelPermissionsFunc    func(userID, channelID string, fetchOptions ...discordgo.RequestOption) (int64, error)
}

// NewFakeSession initializes a new FakeSession with an empty trace.
func NewFakeSession() *FakeSession {
	return &FakeSession{
		trace: []string{},
	}
}

func (f *FakeSession) record(step string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.trace = append(f.trace, step)
}

// Trace returns the sequence of method calls made to the fake.
func (f *FakeSession) Trace() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.trace))
	copy(out, f.trace)
	return out
}

// Calls counts how many times the named method was called.
func (f *FakeSession) Calls(method string) int {
	n := 0
	for _, step := range f.Trace() {
		if step == method {
			n++
		}
	}
	return n
}

func (f *FakeSession) InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error {
	f.record("InteractionRespond")
	if f.InteractionRespondFunc != nil {
		return f.InteractionRespondFunc(interaction, resp, options...)
	}
	return nil
}

func (f *FakeSession) InteractionResponseEdit(interaction *discordgo.Interaction, newresp *discordgo.WebhookEdit, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.record("InteractionResponseEdit")
	if f.InteractionResponseEditFunc != nil {
		return f.InteractionResponseEditFunc(interaction, newresp, options...)
	}
	return &discordgo.Message{ID: "fake-msg-123"}, nil
}

func (f *FakeSession) FollowupMessageCreate(interaction *discordgo.Interaction, wait bool, data *discordgo.WebhookParams, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.record("FollowupMessageCreate")
	if f.FollowupMessageCreateFunc != nil {
		return f.FollowupMessageCreateFunc(interaction, wait, data, options...)
	}
	return &discordgo.Message{ID: "fake-followup-123"}, nil
}

func (f *FakeSession) UserChannelCreate(recipientID string, options ...discordgo.RequestOption) (*discordgo.Channel, error) {
	f.record("UserChannelCreate")
	if f.UserChannelCreateFunc != nil {
		return f.UserChannelCreateFunc(recipientID, options...)
	}
	return &discordgo.Channel{ID: "dm-" + recipientID, Type: discordgo.ChannelTypeDM}, nil
}

func (f *FakeSession) ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.record("ChannelMessageSend")
	if f.ChannelMessageSendFunc != nil {
		return f.ChannelMessageSendFunc(channelID, content, options...)
	}
	return &discordgo.Message{ID: "fake-msg-123", ChannelID: channelID, Content: content}, nil
}

func (f *FakeSession) ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.record("ChannelMessageSendComplex")
	if f.ChannelMessageSendComplexFunc != nil {
		return f.ChannelMessageSendComplexFunc(channelID, data, options...)
	}
	return &discordgo.Message{ID: "fake-msg-123", ChannelID: channelID}, nil
}

func (f *FakeSession) ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.record("ChannelMessageSendEmbed")
	if f.ChannelMessageSendEmbedFunc != nil {
		return f.ChannelMessageSendEmbedFunc(channelID, embed, options...)
	}
	return &discordgo.Message{ID: "fake-msg-123", ChannelID: channelID, Embeds: []*discordgo.MessageEmbed{embed}}, nil
}

func (f *FakeSession) ChannelMessageEdit(channelID, messageID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.record("ChannelMessageEdit")
	if f.ChannelMessageEditFunc != nil {
		return f.ChannelMessageEditFunc(channelID, messageID, content, options...)
	}
	return &discordgo.Message{ID: messageID, ChannelID: channelID, Content: content}, nil
}

func (f *FakeSession) ChannelMessageDelete(channelID, messageID string, options ...discordgo.RequestOption) error {
	f.record("ChannelMessageDelete")
	if f.ChannelMessageDeleteFunc != nil {
		return f.ChannelMessageDeleteFunc(channelID, messageID, options...)
	}
	return nil
}

func (f *FakeSession) Guild(guildID string, options ...discordgo.RequestOption) (*discordgo.Guild, error) {
	f.record("Guild")
	if f.GuildFunc != nil {
		return f.GuildFunc(guildID, options...)
	}
	return &discordgo.Guild{ID: guildID, Name: "fake-guild"}, nil
}

func (f *FakeSession) Channel(channelID string, options ...discordgo.RequestOption) (*discordgo.Channel, error) {
	f.record("Channel")
	if f.ChannelFunc != nil {
		return f.ChannelFunc(channelID, options...)
	}
	return &discordgo.Channel{ID: channelID, Name: "fake-channel", Type: discordgo.ChannelTypeGuildText}, nil
}

func (f *FakeSession) UserChannelPermissions(userID, channelID string, fetchOptions ...discordgo.RequestOption) (int64, error) {
	f.record("UserChannelPermissions")
	if f.UserChannelPermissionsFunc != nil {
		return f.UserChannelPermissionsFunc(userID, channelID, fetchOptions...)
	}
	return 0, nil
}

var _ Session = (*FakeSession)(nil)
