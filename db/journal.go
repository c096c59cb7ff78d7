package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/brensch/attendance/attendance"
)

const createEventsTable = `
CREATE TABLE IF NOT EXISTS attendance_events (
	event_id     VARCHAR PRIMARY KEY,
	recorded_at  TIMESTAMP NOT NULL,
	actor_id     VARCHAR NOT NULL,
	actor_tag    VARCHAR NOT NULL,
	action       VARCHAR NOT NULL,
	guild        VARCHAR NOT NULL,
	channel      VARCHAR NOT NULL,
	model        VARCHAR,
	gross_amount DOUBLE,
	net_amount   DOUBLE,
	subscribers  BIGINT,
	delivered    BOOLEAN NOT NULL
)`

const insertEvent = `
INSERT INTO attendance_events (
	event_id, recorded_at, actor_id, actor_tag, action, guild, channel,
	model, gross_amount, net_amount, subscribers, delivered
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// Journal keeps a local copy of every attendance event with its webhook outcome.
type Journal struct {
	client *Client
}

// NewJournal creates the events table if needed.
func NewJournal(ctx context.Context, client *Client) (*Journal, error) {
	if _, err := client.Conn().ExecContext(ctx, createEventsTable); err != nil {
		return nil, fmt.Errorf("failed to create events table: %w", err)
	}
	return &Journal{client: client}, nil
}

// Append stores ev. Sales columns are NULL for everything but logout.
func (j *Journal) Append(ctx context.Context, ev attendance.Event, delivered bool) error {
	var (
		model       sql.NullString
		gross, net  sql.NullFloat64
		subscribers sql.NullInt64
	)
	if ev.Sales != nil {
		model = sql.NullString{String: ev.Sales.Model, Valid: true}
		gross = sql.NullFloat64{Float64: ev.Sales.Gross, Valid: true}
		net = sql.NullFloat64{Float64: ev.Sales.Net, Valid: true}
		subscribers = sql.NullInt64{Int64: int64(ev.Sales.Subscribers), Valid: true}
	}

	_, err := j.client.Conn().ExecContext(ctx, insertEvent,
		ev.ID.String(),
		ev.Timestamp.UTC(),
		ev.Actor.ID,
		ev.Actor.Tag(),
		string(ev.Action),
		ev.Origin.GuildName,
		ev.Origin.ChannelName,
		model,
		gross,
		net,
		subscribers,
		delivered,
	)
	if err != nil {
		return fmt.Errorf("failed to insert event %s: %w", ev.ID, err)
	}
	return nil
}

// Count returns the number of stored events recorded in [from, to).
func (j *Journal) Count(ctx context.Context, from, to time.Time) (int, error) {
	var n int
	err := j.client.Conn().QueryRowContext(ctx,
		"SELECT count(*) FROM attendance_events WHERE recorded_at >= ? AND recorded_at < ?",
		from.UTC(), to.UTC(),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return n, nil
}

// ExportDay writes the events of the calendar day containing day, in day's
// location, to attendance_YYYY-MM-DD.parquet. Nothing is written for an empty day.
func (j *Journal) ExportDay(ctx context.Context, day time.Time) (string, int, error) {
	from := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	to := from.AddDate(0, 0, 1)

	rows, err := j.Count(ctx, from, to)
	if err != nil || rows == 0 {
		return "", 0, err
	}

	// COPY does not take bind parameters.
	const layout = "2006-01-02 15:04:05"
	query := fmt.Sprintf(
		"SELECT * FROM attendance_events WHERE recorded_at >= TIMESTAMP '%s' AND recorded_at < TIMESTAMP '%s' ORDER BY recorded_at",
		from.UTC().Format(layout), to.UTC().Format(layout),
	)
	path, err := j.client.WriteParquet(ctx, query, fmt.Sprintf("attendance_%s.parquet", from.Format(time.DateOnly)))
	if err != nil {
		return "", 0, err
	}
	return path, rows, nil
}
