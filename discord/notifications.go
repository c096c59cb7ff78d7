package discord

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"
)

// ErrDirectMessageRefused is returned when the recipient does not accept direct messages.
var ErrDirectMessageRefused = errors.New("direct messages refused by user")

// SendDirectMessage opens a DM channel with the user and sends msg there.
// A refusal by the recipient is reported as ErrDirectMessageRefused.
func SendDirectMessage(s Session, userID string, msg *discordgo.MessageSend) error {
	channel, err := s.UserChannelCreate(userID)
	if err != nil {
		return classifyDirectError(fmt.Errorf("failed to open DM channel with %s: %w", userID, err))
	}
	if _, err := s.ChannelMessageSendComplex(channel.ID, msg); err != nil {
		return classifyDirectError(fmt.Errorf("failed to send DM to %s: %w", userID, err))
	}
	return nil
}

func classifyDirectError(err error) error {
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) && restErr.Message != nil &&
		restErr.Message.Code == discordgo.ErrCodeCannotSendMessagesToThisUser {
		return fmt.Errorf("%w: %w", ErrDirectMessageRefused, err)
	}
	return err
}

// SendEmbed posts an embed to a channel, logging the outcome.
func SendEmbed(s Session, channelID string, embed *discordgo.MessageEmbed) error {
	if _, err := s.ChannelMessageSendEmbed(channelID, embed); err != nil {
		slog.Error("Failed to send embed", "channel", channelID, "error", err)
		return fmt.Errorf("failed to send embed to %s: %w", channelID, err)
	}
	slog.Debug("Embed sent", "channel", channelID, "title", embed.Title)
	return nil
}
