package db

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/brensch/attendance/attendance"
	"github.com/smartystreets/goconvey/convey"
)

func newTestJournal(t *testing.T) (*Journal, *Client) {
	t.Helper()
	client, err := NewClient(filepath.Join(t.TempDir(), "journal"))
	if err != nil {
		t.Fatalf("failed to open duckdb: %v", err)
	}
	t.Cleanup(func() { _ = client.Stop() })
	if err := client.Start(context.Background()); err != nil {
		t.Fatalf("failed to start duckdb: %v", err)
	}
	journal, err := NewJournal(context.Background(), client)
	if err != nil {
		t.Fatalf("failed to create journal: %v", err)
	}
	return journal, client
}

func TestJournal(t *testing.T) {
	convey.Convey("Given an empty journal", t, func() {
		journal, client := newTestJournal(t)
		ctx := context.Background()
		lima := time.FixedZone("PET", -5*3600)
		actor := attendance.Actor{ID: "42", Username: "ana", Discriminator: "0"}
		origin := attendance.Origin{GuildName: "Agencia", ChannelName: "asistencia"}

		// 2024-03-01 in Lima spans 05:00Z on the 1st to 05:00Z on the 2nd.
		login := attendance.NewEvent(time.Date(2024, 3, 1, 14, 0, 0, 0, time.UTC), actor, attendance.ActionLogin, origin, nil)
		sales := attendance.NewSalesReport("Luna", 150.50, 25)
		logout := attendance.NewEvent(time.Date(2024, 3, 2, 3, 0, 0, 0, time.UTC), actor, attendance.ActionLogout, origin, &sales)
		nextDay := attendance.NewEvent(time.Date(2024, 3, 2, 14, 0, 0, 0, time.UTC), actor, attendance.ActionLogin, attendance.DirectOrigin, nil)

		convey.So(journal.Append(ctx, login, true), convey.ShouldBeNil)
		convey.So(journal.Append(ctx, logout, false), convey.ShouldBeNil)
		convey.So(journal.Append(ctx, nextDay, true), convey.ShouldBeNil)

		convey.Convey("Sales columns are only filled for logout", func() {
			var (
				model     sql.NullString
				net       sql.NullFloat64
				delivered bool
			)
			err := client.Conn().QueryRowContext(ctx,
				"SELECT model, net_amount, delivered FROM attendance_events WHERE event_id = ?", logout.ID.String(),
			).Scan(&model, &net, &delivered)
			convey.So(err, convey.ShouldBeNil)
			convey.So(model.String, convey.ShouldEqual, "Luna")
			convey.So(net.Float64, convey.ShouldAlmostEqual, 120.40, 1e-9)
			convey.So(delivered, convey.ShouldBeFalse)

			err = client.Conn().QueryRowContext(ctx,
				"SELECT model, net_amount, delivered FROM attendance_events WHERE event_id = ?", login.ID.String(),
			).Scan(&model, &net, &delivered)
			convey.So(err, convey.ShouldBeNil)
			convey.So(model.Valid, convey.ShouldBeFalse)
			convey.So(net.Valid, convey.ShouldBeFalse)
			convey.So(delivered, convey.ShouldBeTrue)
		})

		convey.Convey("Subscriber counts beyond 32 bits are kept intact", func() {
			big := attendance.NewSalesReport("Sol", 10, 3_000_000_000)
			ev := attendance.NewEvent(time.Date(2024, 3, 1, 15, 0, 0, 0, time.UTC), actor, attendance.ActionLogout, origin, &big)
			convey.So(journal.Append(ctx, ev, true), convey.ShouldBeNil)

			var subscribers int64
			err := client.Conn().QueryRowContext(ctx,
				"SELECT subscribers FROM attendance_events WHERE event_id = ?", ev.ID.String(),
			).Scan(&subscribers)
			convey.So(err, convey.ShouldBeNil)
			convey.So(subscribers, convey.ShouldEqual, int64(3_000_000_000))
		})

		convey.Convey("The same event cannot be stored twice", func() {
			convey.So(journal.Append(ctx, login, true), convey.ShouldNotBeNil)
		})

		convey.Convey("A day is exported using its local boundaries", func() {
			path, rows, err := journal.ExportDay(ctx, time.Date(2024, 3, 1, 12, 0, 0, 0, lima))

			convey.So(err, convey.ShouldBeNil)
			convey.So(rows, convey.ShouldEqual, 2)
			convey.So(filepath.Base(path), convey.ShouldEqual, "attendance_2024-03-01.parquet")

			var exported int
			err = client.Conn().QueryRowContext(ctx, "SELECT count(*) FROM read_parquet('"+path+"')").Scan(&exported)
			convey.So(err, convey.ShouldBeNil)
			convey.So(exported, convey.ShouldEqual, 2)
		})

		convey.Convey("An empty day writes nothing", func() {
			path, rows, err := journal.ExportDay(ctx, time.Date(2024, 2, 1, 12, 0, 0, 0, lima))

			convey.So(err, convey.ShouldBeNil)
			convey.So(rows, convey.ShouldEqual, 0)
			convey.So(path, convey.ShouldBeEmpty)
		})
	})
}
