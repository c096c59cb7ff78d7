package attendance

import (
	"context"
	"time"

	"github.com/brensch/attendance/discord"
)

//go:generate mockgen -destination=mocks/mock_ports.go -package=mocks github.com/brensch/attendance/attendance Recorder,Journal,StatusProvider,Exporter

// Recorder persists an event externally. It reports whether the event was
// confirmed and never returns an error.
type Recorder interface {
	Record(ctx context.Context, ev Event) bool
}

// Journal keeps a local copy of every event with its delivery outcome.
type Journal interface {
	Append(ctx context.Context, ev Event, delivered bool) error
}

// Exporter writes the journal rows of one day to a file.
type Exporter interface {
	ExportDay(ctx context.Context, day time.Time) (path string, rows int, err error)
}

// StatusProvider exposes the gateway connection.
type StatusProvider interface {
	Status() discord.Status
	EnsureConnected(ctx context.Context) (started bool, err error)
}

// WebhookProbe sends a synthetic record to the webhook and summarises the outcome.
type WebhookProbe func(ctx context.Context) (delivered bool, summary string)
