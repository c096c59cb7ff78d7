package attendance

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/brensch/attendance/discord"
	"github.com/brensch/attendance/metrics"
	"github.com/bwmarrin/discordgo"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// DirectMessageHint is appended to the inline confirmation when the DM could not be delivered.
const DirectMessageHint = "💡 Activa los DMs para confirmaciones privadas."

const limaTimeLayout = "02/01/2006, 15:04:05"

var amounts = message.NewPrinter(language.AmericanEnglish)

// Notifier confirms a recorded event to the member and mirrors it to the
// broadcast channel.
type Notifier struct {
	broadcastChannelID string
	loc                *time.Location
	metrics            *metrics.Manager
}

// NewNotifier creates a notifier rendering times in loc.
func NewNotifier(broadcastChannelID string, loc *time.Location, m *metrics.Manager) *Notifier {
	if loc == nil {
		loc = time.UTC
	}
	return &Notifier{
		broadcastChannelID: broadcastChannelID,
		loc:                loc,
		metrics:            m,
	}
}

// Confirm finishes the interaction with the summary of ev. The DM and the
// broadcast are best effort; only the inline reply can fail.
func (n *Notifier) Confirm(ctx context.Context, ic *discord.Interaction, ev Event, delivered bool) error {
	embed := n.SummaryEmbed(ev, delivered)

	dmErr := discord.SendDirectMessage(ic.Session, ev.Actor.ID, &discordgo.MessageSend{
		Content: DirectContent(ev, delivered),
		Embeds:  []*discordgo.MessageEmbed{embed},
	})
	if dmErr != nil {
		n.metrics.DirectMessageRefused()
		slog.Warn("could not deliver confirmation DM", "user", ev.Actor.ID, "event", ev.ID, "error", dmErr)
	}

	err := ic.Responder.Reply(&discordgo.InteractionResponseData{
		Content: InlineContent(ev, delivered, dmErr == nil),
		Embeds:  []*discordgo.MessageEmbed{embed},
		Flags:   discordgo.MessageFlagsEphemeral,
	})

	if delivered && n.broadcastChannelID != "" && n.broadcastChannelID != ic.ChannelID {
		if berr := discord.SendEmbed(ic.Session, n.broadcastChannelID, embed); berr != nil {
			slog.Error("failed to mirror event to broadcast channel", "event", ev.ID, "error", berr)
		}
	}
	return err
}

// SummaryEmbed renders the confirmation of ev.
func (n *Notifier) SummaryEmbed(ev Event, delivered bool) *discordgo.MessageEmbed {
	desc, _ := DescriptorFor(ev.Action)
	local := ev.Timestamp.In(n.loc).Format(limaTimeLayout)
	timeField := &discordgo.MessageEmbedField{Name: "⏰ Hora (" + zoneLabel(n.loc) + ")", Value: "`" + local + "`", Inline: true}
	user := &discordgo.MessageEmbedField{Name: "👤 Usuario", Value: ev.Actor.Mention(), Inline: true}

	embed := &discordgo.MessageEmbed{
		Color:     desc.Color,
		Timestamp: ev.Timestamp.Format(time.RFC3339),
	}

	if ev.Action == ActionLogout && ev.Sales != nil {
		embed.Title = "🔴 Logout y Ventas Registrados"
		embed.Description = "**Jornada finalizada con reporte de ventas**"
		embed.Fields = []*discordgo.MessageEmbedField{
			user,
			{Name: "📝 Modelo", Value: "`" + ev.Sales.Model + "`", Inline: true},
			{Name: "💵 Monto Bruto", Value: "`" + FormatAmount(ev.Sales.Gross) + "`", Inline: true},
			{Name: "💰 Monto Neto (80%)", Value: "`" + FormatAmount(ev.Sales.Net) + "`", Inline: true},
			{Name: "👥 Fans Suscritos", Value: "`" + amounts.Sprintf("%d", ev.Sales.Subscribers) + "`", Inline: true},
			timeField,
		}
	} else {
		embed.Title = fmt.Sprintf("%s %s Registrado", desc.Emoji, desc.Name)
		embed.Description = fmt.Sprintf("**%s registrado exitosamente**", desc.Name)
		embed.Fields = []*discordgo.MessageEmbedField{user, timeField}
	}

	if !ev.Origin.IsDirect() {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:  "📍 Ubicación",
			Value: fmt.Sprintf("**%s** - #%s", ev.Origin.GuildName, ev.Origin.ChannelName),
		})
	}

	switch {
	case !delivered:
		embed.Footer = &discordgo.MessageEmbedFooter{Text: "⚠️ Error guardando en Google Sheets"}
	case ev.Action == ActionLogout:
		embed.Footer = &discordgo.MessageEmbedFooter{Text: "✅ Logout y ventas registrados en Google Sheets"}
	default:
		embed.Footer = &discordgo.MessageEmbedFooter{Text: "✅ Registro actualizado en Google Sheets"}
	}
	return embed
}

// InlineContent is the text of the ephemeral confirmation.
func InlineContent(ev Event, delivered, dmSent bool) string {
	desc, _ := DescriptorFor(ev.Action)

	var content string
	switch {
	case !delivered:
		content = fmt.Sprintf("⚠️ **%s registrado localmente** (error con Google Sheets)", desc.Name)
	case ev.Action == ActionLogout:
		content = "🔴 **Logout registrado exitosamente con reporte de ventas**"
	default:
		content = fmt.Sprintf("%s **%s** registrado.", desc.Emoji, desc.Name)
	}

	if dmSent {
		return content + " Confirmación enviada por DM."
	}
	return content + "\n" + DirectMessageHint
}

// DirectContent is the text of the confirmation DM.
func DirectContent(ev Event, delivered bool) string {
	desc, _ := DescriptorFor(ev.Action)
	if ev.Action == ActionLogout {
		return "🔴 **Logout y reporte de ventas registrado**"
	}
	outcome := "exitosamente"
	if !delivered {
		outcome = "localmente"
	}
	return fmt.Sprintf("%s **%s** registrado %s.", desc.Emoji, desc.Name, outcome)
}

// FormatAmount renders a dollar amount with thousands separators and two decimals.
func FormatAmount(v float64) string {
	return amounts.Sprintf("$%.2f", v)
}

func zoneLabel(loc *time.Location) string {
	if loc.String() == "America/Lima" {
		return "Lima"
	}
	return loc.String()
}
