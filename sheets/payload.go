// Package sheets delivers attendance events to the spreadsheet webhook.
package sheets

import (
	"time"

	"github.com/brensch/attendance/attendance"
)

// timestampLayout matches the millisecond precision UTC form the spreadsheet script parses.
const timestampLayout = "2006-01-02T15:04:05.000Z"

// Payload is the JSON body posted to the webhook.
type Payload struct {
	Timestamp string `json:"timestamp"`
	Usuario   string `json:"usuario"`
	Action    string `json:"action"`
	Servidor  string `json:"servidor"`
	Canal     string `json:"canal"`
	// Present only for logout.
	*SalesFields
}

// SalesFields are the sales columns of a logout payload.
type SalesFields struct {
	Modelo        string  `json:"modelo"`
	MontoBruto    float64 `json:"monto_bruto"`
	MontoNeto     float64 `json:"monto_neto"`
	FansSuscritos int     `json:"fans_suscritos"`
}

// NewPayload converts an event to its wire form.
func NewPayload(ev attendance.Event) Payload {
	p := Payload{
		Timestamp: ev.Timestamp.UTC().Format(timestampLayout),
		Usuario:   ev.Actor.Tag(),
		Action:    string(ev.Action),
		Servidor:  ev.Origin.GuildName,
		Canal:     ev.Origin.ChannelName,
	}
	if p.Servidor == "" {
		p.Servidor = attendance.DirectGuildName
	}
	if p.Canal == "" {
		p.Canal = attendance.DirectChannelName
	}
	if ev.Action == attendance.ActionLogout && ev.Sales != nil {
		p.SalesFields = &SalesFields{
			Modelo:        ev.Sales.Model,
			MontoBruto:    ev.Sales.Gross,
			MontoNeto:     attendance.NetFromGross(ev.Sales.Gross),
			FansSuscritos: ev.Sales.Subscribers,
		}
	}
	return p
}

// HealthCheckPayload is the synthetic record used to probe the webhook.
func HealthCheckPayload(now time.Time) Payload {
	return Payload{
		Timestamp: now.UTC().Format(timestampLayout),
		Usuario:   "test#0000",
		Action:    "health_check",
		Servidor:  "Logs Endpoint",
		Canal:     "system-test",
	}
}
