package attendance

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/brensch/attendance/discord"
	"github.com/bwmarrin/discordgo"
)

const notAdminReply = "❌ Necesitas permisos de administrador para usar este comando."

var administrator int64 = discordgo.PermissionAdministrator

type setupRequest struct{}

type statusRequest struct {
	Probe bool `discord:"probe,optional,description:Envía un registro health_check al webhook"`
}

type pingRequest struct{}

func (m *Module) registerCommands(r *discord.Router) {
	setup := discord.NewBotFunction("setup", "Publica el panel de asistencia en este canal", m.setupCommand)
	setup.Permissions = &administrator
	r.AddFunction(setup)
	r.AddFunction(discord.NewBotFunction("status", "Estado del sistema de asistencia", m.statusCommand))
	r.AddFunction(discord.NewBotFunction("ping", "Latencia del bot", m.pingCommand))

	r.AddMessageCommand(&discord.MessageCommand{
		Names:     []string{"!setup", "!setup_attendance"},
		AdminOnly: true,
		Handler:   m.setupMessage,
	})
	r.AddMessageCommand(&discord.MessageCommand{
		Names:   []string{"!status"},
		Handler: m.statusMessage,
	})
	r.AddMessageCommand(&discord.MessageCommand{
		Names:   []string{"!ping"},
		Handler: m.pingMessage,
	})
}

func (m *Module) setupCommand(ctx context.Context, ic *discord.Interaction, _ setupRequest) (*discordgo.InteractionResponseData, error) {
	if !ic.IsAdmin() {
		return &discordgo.InteractionResponseData{Content: notAdminReply, Flags: discordgo.MessageFlagsEphemeral}, nil
	}
	if _, err := ic.Session.ChannelMessageSendComplex(ic.ChannelID, PanelMessage()); err != nil {
		return nil, fmt.Errorf("failed to post attendance panel: %w", err)
	}
	slog.Info("attendance panel posted", "channel", ic.ChannelID, "by", ic.User().ID)
	return &discordgo.InteractionResponseData{
		Content: "✅ Panel de asistencia publicado.",
		Flags:   discordgo.MessageFlagsEphemeral,
	}, nil
}

func (m *Module) setupMessage(ctx context.Context, msg *discord.Message) error {
	if _, err := msg.Session.ChannelMessageSendComplex(msg.ChannelID, PanelMessage()); err != nil {
		return fmt.Errorf("failed to post attendance panel: %w", err)
	}
	slog.Info("attendance panel posted", "channel", msg.ChannelID, "by", msg.Author.ID)

	if err := msg.Session.ChannelMessageDelete(msg.ChannelID, msg.ID); err != nil {
		slog.Warn("could not delete setup command message", "channel", msg.ChannelID, "message", msg.ID, "error", err)
	}
	return nil
}

func (m *Module) statusCommand(ctx context.Context, ic *discord.Interaction, req statusRequest) (*discordgo.InteractionResponseData, error) {
	var probe *probeResult
	if req.Probe {
		if err := ic.Responder.Defer(true); err != nil {
			return nil, err
		}
		probe = m.runProbe(ctx)
	}
	return &discordgo.InteractionResponseData{
		Embeds: []*discordgo.MessageEmbed{m.statusEmbed(probe)},
		Flags:  discordgo.MessageFlagsEphemeral,
	}, nil
}

func (m *Module) statusMessage(ctx context.Context, msg *discord.Message) error {
	var probe *probeResult
	if len(msg.Args) > 0 && msg.Args[0] == "probe" {
		probe = m.runProbe(ctx)
	}
	_, err := msg.ReplyEmbed(m.statusEmbed(probe))
	return err
}

type probeResult struct {
	delivered bool
	summary   string
}

func (m *Module) runProbe(ctx context.Context) *probeResult {
	if m.cfg.Probe == nil {
		return &probeResult{summary: "No disponible"}
	}
	delivered, summary := m.cfg.Probe(ctx)
	return &probeResult{delivered: delivered, summary: summary}
}

// statusEmbed reports connectivity and configuration. probe may be nil.
func (m *Module) statusEmbed(probe *probeResult) *discordgo.MessageEmbed {
	configured := func(ok bool) string {
		if ok {
			return "✅ Configurado"
		}
		return "❌ No configurado"
	}

	botValue := "❌ Desconectado"
	guilds := 0
	uptime := time.Duration(0)
	if m.status != nil {
		st := m.status.Status()
		if st.Connected {
			botValue = "✅ Conectado como " + st.User
		}
		guilds = st.Guilds
		uptime = st.Uptime
	}

	embed := &discordgo.MessageEmbed{
		Title: "📊 Estado del Sistema de Asistencia",
		Color: 0x00ff00,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "🤖 Bot", Value: botValue, Inline: true},
			{Name: "🏠 Servidores", Value: fmt.Sprintf("%d", guilds), Inline: true},
			{Name: "⏰ Uptime", Value: fmt.Sprintf("%d segundos", int64(uptime.Seconds())), Inline: true},
			{Name: "📊 Google Sheets", Value: configured(m.cfg.WebhookConfigured), Inline: true},
			{Name: "📝 Canal Logs", Value: configured(m.cfg.BroadcastChannelID != ""), Inline: true},
			{Name: "🎮 Botones", Value: "🟢 Login\n⏸️ Break\n▶️ Logout Break\n🔴 Logout + Ventas", Inline: true},
		},
		Timestamp: m.now().Format(time.RFC3339),
	}

	if probe != nil {
		value := "❌ " + probe.summary
		if probe.delivered {
			value = "✅ " + probe.summary
		}
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{Name: "🧪 Prueba de webhook", Value: value})
		if !probe.delivered {
			embed.Color = 0xff9900
		}
	}
	return embed
}

func (m *Module) pingCommand(ctx context.Context, ic *discord.Interaction, _ pingRequest) (*discordgo.InteractionResponseData, error) {
	return &discordgo.InteractionResponseData{
		Content: fmt.Sprintf("🏓 Pong! WS: %dms", m.gatewayLatency().Milliseconds()),
		Flags:   discordgo.MessageFlagsEphemeral,
	}, nil
}

func (m *Module) pingMessage(ctx context.Context, msg *discord.Message) error {
	start := time.Now()
	sent, err := msg.Reply("🏓 Calculando...")
	if err != nil {
		return err
	}
	latency := time.Since(start)
	_, err = msg.Session.ChannelMessageEdit(sent.ChannelID, sent.ID,
		fmt.Sprintf("🏓 Pong! Latencia: %dms | WS: %dms", latency.Milliseconds(), m.gatewayLatency().Milliseconds()))
	return err
}

func (m *Module) gatewayLatency() time.Duration {
	if m.status == nil {
		return 0
	}
	return m.status.Status().Latency
}
