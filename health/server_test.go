package health

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/brensch/attendance/attendance/mocks"
	"github.com/brensch/attendance/discord"
	"github.com/brensch/attendance/log"
	"github.com/brensch/attendance/metrics"
	"github.com/smartystreets/goconvey/convey"
	"go.uber.org/mock/gomock"
)

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON %q: %v", rec.Body.String(), err)
	}
	return body
}

func TestHealthEndpoints(t *testing.T) {
	convey.Convey("Given the health server", t, func() {
		ctrl := gomock.NewController(t)
		bot := mocks.NewMockStatusProvider(ctrl)
		connected := discord.Status{Connected: true, User: "asistencia#0001", Guilds: 3, Uptime: time.Minute}

		server := NewServer("1.2.3", bot, WithMetrics(metrics.NewManager()))
		routes := server.Routes()

		convey.Convey("Health always answers", func() {
			rec := get(t, routes, "/health")

			convey.So(rec.Code, convey.ShouldEqual, http.StatusOK)
			body := decode(t, rec)
			convey.So(body["status"], convey.ShouldEqual, "healthy")
			convey.So(body["version"], convey.ShouldEqual, "1.2.3")
		})

		convey.Convey("Ready follows the gateway connection", func() {
			bot.EXPECT().Status().Return(discord.Status{})
			convey.So(get(t, routes, "/ready").Code, convey.ShouldEqual, http.StatusServiceUnavailable)

			bot.EXPECT().Status().Return(connected)
			convey.So(get(t, routes, "/ready").Code, convey.ShouldEqual, http.StatusOK)
		})

		convey.Convey("Start reports whether it connected the bot", func() {
			bot.EXPECT().Status().Return(connected).AnyTimes()

			bot.EXPECT().EnsureConnected(gomock.Any()).Return(false, nil)
			body := decode(t, get(t, routes, "/start"))
			convey.So(body["status"], convey.ShouldEqual, "Bot already running")
			convey.So(body["user"], convey.ShouldEqual, "asistencia#0001")
			convey.So(body["guilds"], convey.ShouldEqual, float64(3))

			bot.EXPECT().EnsureConnected(gomock.Any()).Return(true, nil)
			body = decode(t, get(t, routes, "/start"))
			convey.So(body["status"], convey.ShouldEqual, "Bot started successfully")
		})

		convey.Convey("A failed start is a server error", func() {
			bot.EXPECT().EnsureConnected(gomock.Any()).Return(false, errors.New("ready timeout"))

			rec := get(t, routes, "/start")

			convey.So(rec.Code, convey.ShouldEqual, http.StatusInternalServerError)
			body := decode(t, rec)
			convey.So(body["status"], convey.ShouldEqual, "Error")
			convey.So(body["error"], convey.ShouldEqual, "ready timeout")
		})

		convey.Convey("Metrics are exposed", func() {
			rec := get(t, routes, "/metrics")

			convey.So(rec.Code, convey.ShouldEqual, http.StatusOK)
		})
	})
}

func TestDiagnostics(t *testing.T) {
	convey.Convey("Given a configured server", t, func() {
		ctrl := gomock.NewController(t)
		bot := mocks.NewMockStatusProvider(ctrl)
		bot.EXPECT().Status().Return(discord.Status{Connected: true}).AnyTimes()

		recent := log.NewRecent(5)
		logger := slog.New(log.NewRecentHandler(slog.NewTextHandler(io.Discard, nil), recent))
		logger.Info("webhook delivered", "attempts", 1)

		probes := 0
		lima := time.FixedZone("PET", -5*3600)
		server := NewServer("dev", bot,
			WithRecentLogs(recent),
			WithProbe(func(ctx context.Context) (bool, string) {
				probes++
				return true, "OK (HTTP 200, 1 intento(s))"
			}),
			WithSettings(Settings{
				BotToken:   "MTIzNDU2Nzg5MDEyMzQ1Njc4.secret",
				WebhookURL: "https://script.google.com/macros/s/AKfycbw/exec",
				Location:   lima,
			}))
		routes := server.Routes()

		convey.Convey("Secrets are redacted and logs are included", func() {
			rec := get(t, routes, "/diagnostics")

			convey.So(rec.Code, convey.ShouldEqual, http.StatusOK)
			convey.So(rec.Body.String(), convey.ShouldNotContainSubstring, "secret")

			var resp DiagnosticsResponse
			convey.So(json.Unmarshal(rec.Body.Bytes(), &resp), convey.ShouldBeNil)
			convey.So(resp.Config["discord_token"].Preview, convey.ShouldEqual, "MTIzNDU2Nz...")
			convey.So(resp.Config["webhook_url"].Preview, convey.ShouldEqual, "https://script.google.com/macr...")
			convey.So(resp.Config["broadcast_channel_id"].Configured, convey.ShouldBeFalse)
			convey.So(resp.System.AttendanceZone, convey.ShouldEqual, "PET")
			convey.So(resp.Bot.Connected, convey.ShouldBeTrue)
			convey.So(resp.Logs, convey.ShouldHaveLength, 1)
			convey.So(resp.Logs[0].Message, convey.ShouldEqual, "webhook delivered")
			convey.So(resp.Probe, convey.ShouldBeNil)
			convey.So(probes, convey.ShouldEqual, 0)
		})

		convey.Convey("The webhook is probed on request", func() {
			rec := get(t, routes, "/diagnostics?probe=1")

			var resp DiagnosticsResponse
			convey.So(json.Unmarshal(rec.Body.Bytes(), &resp), convey.ShouldBeNil)
			convey.So(probes, convey.ShouldEqual, 1)
			convey.So(resp.Probe.Delivered, convey.ShouldBeTrue)
			convey.So(strings.HasPrefix(resp.Probe.Summary, "OK"), convey.ShouldBeTrue)
		})
	})
}
