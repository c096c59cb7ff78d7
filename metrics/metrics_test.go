package metrics_test

import (
	"testing"
	"time"

	"github.com/brensch/attendance/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/smartystreets/goconvey/convey"
)

func TestManager(t *testing.T) {
	convey.Convey("Given a metrics manager", t, func() {
		m := metrics.NewManager(metrics.WithNamespace("test"))

		convey.Convey("When events are recorded", func() {
			m.EventRecorded("login", true)
			m.EventRecorded("login", true)
			m.EventRecorded("logout", false)
			m.WebhookAttempt("ok", 120*time.Millisecond)
			m.ValidationRejected("monto_bruto")
			m.DirectMessageRefused()

			convey.Convey("Then the registry exposes them", func() {
				count, err := testutil.GatherAndCount(m.Registry(),
					"test_bot_events_recorded_total",
					"test_bot_webhook_attempts_total",
					"test_bot_validation_rejections_total",
					"test_bot_direct_messages_refused_total")
				convey.So(err, convey.ShouldBeNil)
				convey.So(count, convey.ShouldEqual, 5)
			})
		})
	})

	convey.Convey("A nil manager ignores every call", t, func() {
		var m *metrics.Manager
		convey.So(func() {
			m.InteractionHandled("button", "attendance_login")
			m.EventRecorded("login", true)
			m.WebhookAttempt("ok", time.Second)
			m.ValidationRejected("modelo")
			m.DirectMessageRefused()
			m.GatewayConnect("ok")
		}, convey.ShouldNotPanic)
	})
}
