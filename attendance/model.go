// Package attendance handles the attendance panel: the four action buttons, the
// logout sales form, recording every action through the webhook and confirming
// the outcome to the member.
package attendance

import (
	"math"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"
)

// Action is the kind of attendance event. The string values are the wire values.
type Action string

const (
	ActionLogin       Action = "login"
	ActionBreak       Action = "break"
	ActionLogoutBreak Action = "logout_break"
	ActionLogout      Action = "logout"
)

// Button and modal custom IDs of the panel.
const (
	ButtonLogin       = "attendance_login"
	ButtonBreak       = "attendance_break"
	ButtonLogoutBreak = "attendance_logout_break"
	ButtonLogout      = "attendance_logout"

	SalesModalID = "logout_ventas_modal"
)

// Sentinel origin used for events that did not happen inside a guild.
const (
	DirectGuildName   = "DM/Privado"
	DirectChannelName = "Mensaje Directo"
)

// NetShare is the fixed fraction of the gross amount paid out as net.
const NetShare = 0.80

// Descriptor holds the cosmetic data of an action.
type Descriptor struct {
	Action   Action
	ButtonID string
	Name     string
	Emoji    string
	Color    int
	Style    discordgo.ButtonStyle
}

var descriptors = []Descriptor{
	{Action: ActionLogin, ButtonID: ButtonLogin, Name: "Login", Emoji: "🟢", Color: 0x00ff00, Style: discordgo.SuccessButton},
	{Action: ActionBreak, ButtonID: ButtonBreak, Name: "Break", Emoji: "⏸️", Color: 0x0099ff, Style: discordgo.PrimaryButton},
	{Action: ActionLogoutBreak, ButtonID: ButtonLogoutBreak, Name: "Logout Break", Emoji: "▶️", Color: 0x9900ff, Style: discordgo.SecondaryButton},
	{Action: ActionLogout, ButtonID: ButtonLogout, Name: "Logout", Emoji: "🔴", Color: 0xff0000, Style: discordgo.DangerButton},
}

// Descriptors returns the four actions in panel order.
func Descriptors() []Descriptor {
	out := make([]Descriptor, len(descriptors))
	copy(out, descriptors)
	return out
}

// DescriptorFor looks up the descriptor of an action.
func DescriptorFor(a Action) (Descriptor, bool) {
	for _, d := range descriptors {
		if d.Action == a {
			return d, true
		}
	}
	return Descriptor{}, false
}

// DescriptorForButton looks up the descriptor bound to a button custom ID.
func DescriptorForButton(customID string) (Descriptor, bool) {
	for _, d := range descriptors {
		if d.ButtonID == customID {
			return d, true
		}
	}
	return Descriptor{}, false
}

// Actor identifies the member who pressed a button.
type Actor struct {
	ID            string
	Username      string
	Discriminator string
	DisplayName   string
}

// Tag renders the actor as username#discriminator, using the ID for accounts
// on the new username system (discriminator "0").
func (a Actor) Tag() string {
	suffix := a.Discriminator
	if suffix == "" || suffix == "0" {
		suffix = a.ID
	}
	return a.Username + "#" + suffix
}

// Mention is the Discord mention markup of the actor.
func (a Actor) Mention() string {
	return "<@" + a.ID + ">"
}

// ActorFromUser builds an Actor from a Discord user.
func ActorFromUser(u *discordgo.User) Actor {
	if u == nil {
		return Actor{}
	}
	name := u.GlobalName
	if name == "" {
		name = u.Username
	}
	return Actor{
		ID:            u.ID,
		Username:      u.Username,
		Discriminator: u.Discriminator,
		DisplayName:   name,
	}
}

// Origin is where the action was taken.
type Origin struct {
	GuildName   string
	ChannelName string
}

// DirectOrigin is the origin of actions taken outside a guild.
var DirectOrigin = Origin{GuildName: DirectGuildName, ChannelName: DirectChannelName}

// IsDirect reports whether the origin is the direct-message sentinel.
func (o Origin) IsDirect() bool {
	return o == DirectOrigin
}

// SalesReport is the sales data collected at logout.
type SalesReport struct {
	Model       string
	Gross       float64
	Net         float64
	Subscribers int
}

// NewSalesReport builds a report, always deriving Net from Gross.
func NewSalesReport(model string, gross float64, subscribers int) SalesReport {
	return SalesReport{
		Model:       model,
		Gross:       gross,
		Net:         NetFromGross(gross),
		Subscribers: subscribers,
	}
}

// NetFromGross applies the fixed net share, rounded to cents.
func NetFromGross(gross float64) float64 {
	return math.Round(gross*NetShare*100) / 100
}

// Event is a single attendance record. It is never mutated after NewEvent.
type Event struct {
	ID        uuid.UUID
	Timestamp time.Time
	Actor     Actor
	Action    Action
	Origin    Origin
	Sales     *SalesReport
}

// NewEvent stamps a new event. Sales is only kept for the logout action.
func NewEvent(now time.Time, actor Actor, action Action, origin Origin, sales *SalesReport) Event {
	ev := Event{
		ID:        uuid.New(),
		Timestamp: now.UTC(),
		Actor:     actor,
		Action:    action,
		Origin:    origin,
	}
	if action == ActionLogout && sales != nil {
		s := *sales
		ev.Sales = &s
	}
	return ev
}
