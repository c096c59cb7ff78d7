package attendance

import (
	"github.com/brensch/attendance/discord"
	"github.com/bwmarrin/discordgo"
)

const panelColor = 0xffd700

// SalesModal is the form shown when a member presses Logout.
func SalesModal() *discordgo.InteractionResponseData {
	return discord.MustModal(SalesModalID, "LOGOUT - REPORTE DE VENTAS", SalesForm{})
}

// PanelMessage is the persistent message holding the four attendance buttons.
func PanelMessage() *discordgo.MessageSend {
	var buttons []discordgo.MessageComponent
	for _, d := range Descriptors() {
		buttons = append(buttons, discordgo.Button{
			CustomID: d.ButtonID,
			Label:    d.Emoji + " " + d.Name,
			Style:    d.Style,
		})
	}

	return &discordgo.MessageSend{
		Embeds: []*discordgo.MessageEmbed{PanelEmbed()},
		Components: []discordgo.MessageComponent{
			discordgo.ActionsRow{Components: buttons},
		},
	}
}

// PanelEmbed explains how and when to use each button.
func PanelEmbed() *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       "🕐 SISTEMA DE CONTROL DE ASISTENCIA",
		Description: "Registra tu jornada usando los botones de abajo.",
		Color:       panelColor,
		Fields: []*discordgo.MessageEmbedField{
			{
				Name:  "🟢 LOGIN - Entrada/Inicio de jornada",
				Value: "Presionarlo **apenas empieces tu turno** de trabajo.\nDebe ser lo **primero que hagas** al conectarte.\n⚠️ Si lo haces tarde, el sistema te registrará como **\"Tarde\"**.",
			},
			{
				Name:  "⏸️ BREAK - Inicio de pausa/descanso",
				Value: "Presionarlo **cada vez que te ausentes** del puesto (baño, comer, personal).\n❌ **No usarlo** si vas a estar solo 1-2 minutos.\n✅ **Solo para pausas de más de 5 minutos**.",
			},
			{
				Name:  "▶️ LOGOUT BREAK - Fin de pausa/vuelta al trabajo",
				Value: "Presionarlo **apenas vuelvas** de la pausa.\nEsto marca que estás **nuevamente disponible y activo**.",
			},
			{
				Name:  "🔴 LOGOUT - Salida/Fin de jornada + Reporte de Ventas",
				Value: "Presionarlo **al finalizar** tu turno.\n📋 **Se abrirá un formulario** para reportar ventas del día.\n⚠️ **OBLIGATORIO** completar el reporte de ventas.",
			},
			{
				Name:  "📋 REGLAS IMPORTANTES",
				Value: "• Los botones se deben usar en **orden lógico**: `Login → Break → Logout Break → Logout`\n• **No marcar** un Break sin luego marcar un Logout Break\n• **El Logout incluye** el reporte obligatorio de ventas\n• Usar siempre desde el **mismo dispositivo** y cuenta de Discord asignada\n• **Activa los mensajes directos** para recibir confirmaciones",
			},
		},
		Footer: &discordgo.MessageEmbedFooter{
			Text: "📧 Las confirmaciones llegan por DM | ⏰ Hora de Lima | 📊 Una fila por usuario",
		},
	}
}
