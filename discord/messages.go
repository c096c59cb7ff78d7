package discord

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"

	"github.com/bwmarrin/discordgo"
)

const notAdminMessage = "❌ Solo los administradores pueden usar este comando."

// Message is the context handed to text command handlers.
type Message struct {
	*discordgo.MessageCreate
	Session Session
	Origin  Origin
	// Args are the whitespace separated words after the command name.
	Args []string
}

// Reply sends plain text to the channel the command was typed in.
func (m *Message) Reply(content string) (*discordgo.Message, error) {
	return m.Session.ChannelMessageSend(m.ChannelID, content)
}

// ReplyEmbed sends an embed to the channel the command was typed in.
func (m *Message) ReplyEmbed(embed *discordgo.MessageEmbed) (*discordgo.Message, error) {
	return m.Session.ChannelMessageSendEmbed(m.ChannelID, embed)
}

// MessageCommand is a "!name" text command.
type MessageCommand struct {
	// Names are the accepted spellings including the prefix, e.g. "!setup".
	Names []string
	// AdminOnly restricts the command to members with the Administrator permission
	// in the channel.
	AdminOnly bool
	Handler   func(ctx context.Context, m *Message) error
}

// DispatchMessage runs the text command named by the first word of the message, if any.
// Messages from bots are ignored.
func (r *Router) DispatchMessage(ctx context.Context, s Session, mc *discordgo.MessageCreate) {
	if mc.Author == nil || mc.Author.Bot {
		return
	}
	fields := strings.Fields(mc.Content)
	if len(fields) == 0 {
		return
	}
	name := strings.ToLower(fields[0])
	cmd, ok := r.messages[name]
	if !ok {
		return
	}

	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("message command panicked", "command", name, "panic", rec, "stack", string(debug.Stack()))
		}
	}()

	slog.Debug("message command received",
		"command", name,
		"author", mc.Author.Username,
		"author_id", mc.Author.ID,
		"channel_id", mc.ChannelID)
	r.metrics.InteractionHandled("message", name)

	if cmd.AdminOnly {
		admin, err := isChannelAdmin(s, mc.Author.ID, mc.ChannelID)
		if err != nil {
			slog.Warn("failed to check permissions", "command", name, "user", mc.Author.ID, "error", err)
		}
		if !admin {
			if _, err := s.ChannelMessageSend(mc.ChannelID, notAdminMessage); err != nil {
				slog.Error("failed to send permission notice", "channel", mc.ChannelID, "error", err)
			}
			return
		}
	}

	m := &Message{
		MessageCreate: mc,
		Session:       s,
		Origin:        r.resolve(mc.GuildID, mc.ChannelID),
		Args:          fields[1:],
	}
	if err := cmd.Handler(ctx, m); err != nil {
		slog.Error("failed to execute message command", "command", name, "error", err)
		if _, err := s.ChannelMessageSend(mc.ChannelID, fmt.Sprintf("❌ Error ejecutando %s.", name)); err != nil {
			slog.Error("failed to send command error", "channel", mc.ChannelID, "error", err)
		}
	}
}

func isChannelAdmin(s Session, userID, channelID string) (bool, error) {
	perms, err := s.UserChannelPermissions(userID, channelID)
	if err != nil {
		return false, err
	}
	return perms&discordgo.PermissionAdministrator != 0, nil
}
