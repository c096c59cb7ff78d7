package attendance_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/brensch/attendance/attendance"
	"github.com/brensch/attendance/attendance/mocks"
	"github.com/brensch/attendance/discord"
	"github.com/bwmarrin/discordgo"
	"github.com/smartystreets/goconvey/convey"
	"go.uber.org/mock/gomock"
)

var fixedNow = time.Date(2024, 3, 1, 20, 30, 0, 0, time.UTC)

func resolveAgencia(guildID, channelID string) discord.Origin {
	if guildID == "" {
		return discord.Origin{ChannelID: channelID}
	}
	return discord.Origin{GuildID: guildID, GuildName: "Agencia", ChannelID: channelID, ChannelName: "asistencia"}
}

func member() *discordgo.Member {
	return &discordgo.Member{User: &discordgo.User{ID: "42", Username: "ana", Discriminator: "0"}}
}

func pressButton(customID string) *discordgo.InteractionCreate {
	return &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		ID:        "interaction-1",
		Type:      discordgo.InteractionMessageComponent,
		GuildID:   "guild-1",
		ChannelID: "channel-1",
		Member:    member(),
		Data:      discordgo.MessageComponentInteractionData{CustomID: customID},
	}}
}

func submitSales(model, gross, subscribers string) *discordgo.InteractionCreate {
	row := func(id, value string) discordgo.MessageComponent {
		return &discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			&discordgo.TextInput{CustomID: id, Value: value},
		}}
	}
	return &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		ID:        "interaction-2",
		Type:      discordgo.InteractionModalSubmit,
		GuildID:   "guild-1",
		ChannelID: "channel-1",
		Member:    member(),
		Data: discordgo.ModalSubmitInteractionData{
			CustomID: attendance.SalesModalID,
			Components: []discordgo.MessageComponent{
				row(attendance.FieldModel, model),
				row(attendance.FieldGross, gross),
				row(attendance.FieldSubscribers, subscribers),
			},
		},
	}}
}

// responses captures the initial response and the last edit of an interaction.
type responses struct {
	initial *discordgo.InteractionResponse
	edit    string
	embeds  []*discordgo.MessageEmbed
}

func capture(fake *discord.FakeSession) *responses {
	r := &responses{}
	fake.InteractionRespondFunc = func(_ *discordgo.Interaction, resp *discordgo.InteractionResponse, _ ...discordgo.RequestOption) error {
		r.initial = resp
		return nil
	}
	fake.InteractionResponseEditFunc = func(_ *discordgo.Interaction, e *discordgo.WebhookEdit, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
		if e.Content != nil {
			r.edit = *e.Content
		}
		if e.Embeds != nil {
			r.embeds = *e.Embeds
		}
		return &discordgo.Message{}, nil
	}
	return r
}

func TestAttendanceButtons(t *testing.T) {
	convey.Convey("Given the attendance module on a router", t, func() {
		ctrl := gomock.NewController(t)
		recorder := mocks.NewMockRecorder(ctrl)
		journal := mocks.NewMockJournal(ctrl)

		module := attendance.NewModule(attendance.Config{BroadcastChannelID: "logs"}, recorder,
			attendance.WithJournal(journal),
			attendance.WithClock(func() time.Time { return fixedNow }))
		router := discord.NewRouter(resolveAgencia, nil)
		module.Register(router)

		fake := discord.NewFakeSession()
		got := capture(fake)

		convey.Convey("Login is acknowledged, recorded once and confirmed", func() {
			var recorded attendance.Event
			recorder.EXPECT().Record(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, ev attendance.Event) bool {
				recorded = ev
				return true
			}).Times(1)
			journal.EXPECT().Append(gomock.Any(), gomock.Any(), true).Return(nil).Times(1)

			router.Dispatch(context.Background(), fake, pressButton(attendance.ButtonLogin))

			convey.So(recorded.Action, convey.ShouldEqual, attendance.ActionLogin)
			convey.So(recorded.Actor.Tag(), convey.ShouldEqual, "ana#42")
			convey.So(recorded.Origin, convey.ShouldResemble, attendance.Origin{GuildName: "Agencia", ChannelName: "asistencia"})
			convey.So(recorded.Timestamp, convey.ShouldEqual, fixedNow)
			convey.So(recorded.Sales, convey.ShouldBeNil)

			convey.So(got.initial.Type, convey.ShouldEqual, discordgo.InteractionResponseChannelMessageWithSource)
			convey.So(got.initial.Data.Content, convey.ShouldContainSubstring, "procesando")
			convey.So(fake.Calls("InteractionRespond"), convey.ShouldEqual, 1)
			convey.So(got.edit, convey.ShouldContainSubstring, "Confirmación enviada por DM")
			convey.So(got.embeds[0].Title, convey.ShouldEqual, "🟢 Login Registrado")
			convey.So(fake.Calls("ChannelMessageSendComplex"), convey.ShouldEqual, 1)
			convey.So(fake.Calls("ChannelMessageSendEmbed"), convey.ShouldEqual, 1)
		})

		convey.Convey("Logout opens the sales form without recording", func() {
			router.Dispatch(context.Background(), fake, pressButton(attendance.ButtonLogout))

			convey.So(got.initial.Type, convey.ShouldEqual, discordgo.InteractionResponseModal)
			convey.So(got.initial.Data.CustomID, convey.ShouldEqual, attendance.SalesModalID)
			convey.So(got.initial.Data.Components, convey.ShouldHaveLength, 3)
			convey.So(fake.Calls("InteractionResponseEdit"), convey.ShouldEqual, 0)
		})

		convey.Convey("A failed webhook delivery is reported as recorded locally", func() {
			recorder.EXPECT().Record(gomock.Any(), gomock.Any()).Return(false).Times(1)
			journal.EXPECT().Append(gomock.Any(), gomock.Any(), false).Return(nil).Times(1)

			router.Dispatch(context.Background(), fake, pressButton(attendance.ButtonBreak))

			convey.So(got.edit, convey.ShouldContainSubstring, "registrado localmente")
			convey.So(got.embeds[0].Footer.Text, convey.ShouldEqual, "⚠️ Error guardando en Google Sheets")
			convey.So(fake.Calls("ChannelMessageSendEmbed"), convey.ShouldEqual, 0)
		})

		convey.Convey("A refused DM still confirms inline with a hint", func() {
			recorder.EXPECT().Record(gomock.Any(), gomock.Any()).Return(true).Times(1)
			journal.EXPECT().Append(gomock.Any(), gomock.Any(), true).Return(nil).Times(1)
			fake.UserChannelCreateFunc = func(string, ...discordgo.RequestOption) (*discordgo.Channel, error) {
				return nil, errors.New("cannot send messages to this user")
			}

			router.Dispatch(context.Background(), fake, pressButton(attendance.ButtonLogoutBreak))

			convey.So(got.edit, convey.ShouldContainSubstring, attendance.DirectMessageHint)
			convey.So(got.edit, convey.ShouldNotContainSubstring, discord.DefaultFailureMessage)
			convey.So(fake.Calls("ChannelMessageSendEmbed"), convey.ShouldEqual, 1)
		})

		convey.Convey("A journal failure does not change the confirmation", func() {
			recorder.EXPECT().Record(gomock.Any(), gomock.Any()).Return(true).Times(1)
			journal.EXPECT().Append(gomock.Any(), gomock.Any(), true).Return(errors.New("disk full")).Times(1)

			router.Dispatch(context.Background(), fake, pressButton(attendance.ButtonLogin))

			convey.So(got.edit, convey.ShouldContainSubstring, "registrado.")
		})
	})
}

func TestSalesModal(t *testing.T) {
	convey.Convey("Given the attendance module on a router", t, func() {
		ctrl := gomock.NewController(t)
		recorder := mocks.NewMockRecorder(ctrl)

		module := attendance.NewModule(attendance.Config{}, recorder)
		router := discord.NewRouter(resolveAgencia, nil)
		module.Register(router)

		fake := discord.NewFakeSession()
		got := capture(fake)

		convey.Convey("A valid report records one logout with the computed net", func() {
			var recorded attendance.Event
			recorder.EXPECT().Record(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, ev attendance.Event) bool {
				recorded = ev
				return true
			}).Times(1)

			router.Dispatch(context.Background(), fake, submitSales("Luna", "150.50", "25"))

			convey.So(recorded.Action, convey.ShouldEqual, attendance.ActionLogout)
			convey.So(recorded.Sales, convey.ShouldNotBeNil)
			convey.So(recorded.Sales.Model, convey.ShouldEqual, "Luna")
			convey.So(recorded.Sales.Net, convey.ShouldAlmostEqual, 120.40, 1e-9)
			convey.So(recorded.Sales.Subscribers, convey.ShouldEqual, 25)

			convey.So(got.initial.Data.Content, convey.ShouldContainSubstring, "Procesando logout")
			convey.So(got.edit, convey.ShouldContainSubstring, "Logout registrado exitosamente con reporte de ventas")
			embed := got.embeds[0]
			convey.So(embed.Title, convey.ShouldEqual, "🔴 Logout y Ventas Registrados")
			values := map[string]string{}
			for _, f := range embed.Fields {
				values[f.Name] = f.Value
			}
			convey.So(values["💰 Monto Neto (80%)"], convey.ShouldEqual, "`$120.40`")
			convey.So(values["📍 Ubicación"], convey.ShouldEqual, "**Agencia** - #asistencia")
		})

		convey.Convey("Zero sales are recorded", func() {
			recorder.EXPECT().Record(gomock.Any(), gomock.Any()).Return(true).Times(1)

			router.Dispatch(context.Background(), fake, submitSales("Sol", "0", "0"))

			convey.So(got.edit, convey.ShouldContainSubstring, "Logout registrado")
		})

		convey.Convey("An invalid amount is rejected without recording", func() {
			recorder.EXPECT().Record(gomock.Any(), gomock.Any()).Times(0)

			router.Dispatch(context.Background(), fake, submitSales("Luna", "abc", "25"))

			convey.So(fake.Calls("InteractionRespond"), convey.ShouldEqual, 1)
			convey.So(got.initial.Data.Content, convey.ShouldStartWith, "❌ **Error**: ")
			convey.So(got.initial.Data.Content, convey.ShouldContainSubstring, "monto bruto")
			convey.So(got.initial.Data.Flags, convey.ShouldEqual, discordgo.MessageFlagsEphemeral)
			convey.So(fake.Calls("UserChannelCreate"), convey.ShouldEqual, 0)
		})

		convey.Convey("Negative or fractional subscribers are rejected", func() {
			recorder.EXPECT().Record(gomock.Any(), gomock.Any()).Times(0)

			router.Dispatch(context.Background(), fake, submitSales("Luna", "10", "-3"))
			convey.So(got.initial.Data.Content, convey.ShouldContainSubstring, "fans suscritos")

			router.Dispatch(context.Background(), fake, submitSales("Luna", "10", "2.5"))
			convey.So(got.initial.Data.Content, convey.ShouldContainSubstring, "fans suscritos")
		})
	})
}

func TestDirectMessageOrigin(t *testing.T) {
	convey.Convey("Actions taken outside a guild use the direct message origin", t, func() {
		ctrl := gomock.NewController(t)
		recorder := mocks.NewMockRecorder(ctrl)
		module := attendance.NewModule(attendance.Config{}, recorder)
		router := discord.NewRouter(resolveAgencia, nil)
		module.Register(router)

		var recorded attendance.Event
		recorder.EXPECT().Record(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, ev attendance.Event) bool {
			recorded = ev
			return true
		})

		ic := pressButton(attendance.ButtonBreak)
		ic.GuildID = ""
		ic.Member = nil
		ic.User = &discordgo.User{ID: "7", Username: "leo", Discriminator: "1234"}

		fake := discord.NewFakeSession()
		got := capture(fake)
		router.Dispatch(context.Background(), fake, ic)

		convey.So(recorded.Origin.IsDirect(), convey.ShouldBeTrue)
		convey.So(recorded.Actor.Tag(), convey.ShouldEqual, "leo#1234")
		for _, f := range got.embeds[0].Fields {
			convey.So(f.Name, convey.ShouldNotEqual, "📍 Ubicación")
		}
		convey.So(strings.Contains(got.edit, "⏸️"), convey.ShouldBeTrue)
	})
}
