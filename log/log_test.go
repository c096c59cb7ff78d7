package log

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/smartystreets/goconvey/convey"
)

func TestPrettyHandler(t *testing.T) {
	convey.Convey("Given a pretty handler in Lima time", t, func() {
		noColor := color.NoColor
		color.NoColor = true
		defer func() { color.NoColor = noColor }()

		var out bytes.Buffer
		logger := slog.New(NewPrettyHandler(&out, PrettyHandlerOptions{
			TimeZone: time.FixedZone("PET", -5*3600),
		}))

		convey.Convey("Records carry the zone and all attributes", func() {
			logger.With("user", "ana").Info("attendance recorded", "action", "login")

			line := out.String()
			convey.So(line, convey.ShouldContainSubstring, "-0500 PET]")
			convey.So(line, convey.ShouldContainSubstring, "INFO attendance recorded")
			convey.So(line, convey.ShouldContainSubstring, `"user":"ana"`)
			convey.So(line, convey.ShouldContainSubstring, `"action":"login"`)
			convey.So(strings.Count(line, "\n"), convey.ShouldEqual, 1)
		})

		convey.Convey("Errors are printed as their message", func() {
			logger.Warn("webhook failed", "error", errTest("HTTP 500"))

			convey.So(out.String(), convey.ShouldContainSubstring, `"error":"HTTP 500"`)
		})
	})
}

type errTest string

func (e errTest) Error() string { return string(e) }

func TestParseLevel(t *testing.T) {
	convey.Convey("Level names are case insensitive", t, func() {
		level, err := ParseLevel(" debug ")
		convey.So(err, convey.ShouldBeNil)
		convey.So(level, convey.ShouldEqual, slog.LevelDebug)

		level, err = ParseLevel("WARN")
		convey.So(err, convey.ShouldBeNil)
		convey.So(level, convey.ShouldEqual, slog.LevelWarn)
	})

	convey.Convey("Unknown names fall back to info with an error", t, func() {
		level, err := ParseLevel("loud")
		convey.So(err, convey.ShouldNotBeNil)
		convey.So(level, convey.ShouldEqual, slog.LevelInfo)
	})
}
