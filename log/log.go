package log

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-colorable"
)

// Supported output formats for New.
const (
	FormatPretty = "pretty"
	FormatTint   = "tint"
	FormatJSON   = "json"
)

type PrettyHandlerOptions struct {
	SlogOpts slog.HandlerOptions
	// TimeZone of the printed timestamps; local time when nil.
	TimeZone *time.Location
}

// PrettyHandler prints one coloured line per record with its attributes as JSON.
type PrettyHandler struct {
	slog.Handler
	l        *log.Logger
	timeZone *time.Location
	attrs    []slog.Attr
}

func (h *PrettyHandler) Handle(ctx context.Context, r slog.Record) error {
	level := r.Level.String()

	switch r.Level {
	case slog.LevelDebug:
		level = color.MagentaString(level)
	case slog.LevelInfo:
		level = color.BlueString(level)
	case slog.LevelWarn:
		level = color.YellowString(level)
	case slog.LevelError:
		level = color.RedString(level)
	}

	fields := make(map[string]interface{}, r.NumAttrs()+len(h.attrs))
	collect := func(a slog.Attr) bool {
		if errVal, ok := a.Value.Any().(error); ok {
			fields[a.Key] = errVal.Error()
		} else {
			fields[a.Key] = a.Value.Any()
		}
		return true
	}
	for _, a := range h.attrs {
		collect(a)
	}
	r.Attrs(collect)

	var err error
	var b []byte
	if len(fields) > 0 {
		b, err = json.Marshal(fields)
		if err != nil {
			return err
		}
	}

	logTime := r.Time
	if h.timeZone != nil {
		logTime = logTime.In(h.timeZone)
	}

	timeStr := logTime.Format("[2006-01-02 15:04:05.000 -0700 MST]")
	msg := color.CyanString(r.Message)

	h.l.Println(timeStr, level, msg, color.HiBlackString(string(b)))

	return nil
}

// WithAttrs keeps the attributes so they are printed with every record.
func (h *PrettyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &PrettyHandler{
		Handler:  h.Handler.WithAttrs(attrs),
		l:        h.l,
		timeZone: h.timeZone,
		attrs:    merged,
	}
}

func NewPrettyHandler(
	out io.Writer,
	opts PrettyHandlerOptions,
) *PrettyHandler {
	h := &PrettyHandler{
		Handler:  slog.NewJSONHandler(out, &opts.SlogOpts),
		l:        log.New(out, "", 0),
		timeZone: opts.TimeZone,
	}

	return h
}

// ParseLevel maps a config level name onto a slog level.
func ParseLevel(name string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(name))); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q: %w", name, err)
	}
	return level, nil
}

// NewHandler builds the stdout handler for the requested format. Pretty and tint
// timestamps are shown in loc (local time when nil). Unknown formats fall back to pretty.
func NewHandler(format string, level slog.Level, loc *time.Location) slog.Handler {
	switch strings.ToLower(format) {
	case FormatJSON:
		return slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	case FormatTint:
		return tint.NewHandler(colorable.NewColorableStdout(), &tint.Options{
			Level:      level,
			TimeFormat: "15:04:05.000",
			AddSource:  true,
			ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
				if loc != nil && len(groups) == 0 && a.Key == slog.TimeKey && a.Value.Kind() == slog.KindTime {
					return slog.Time(a.Key, a.Value.Time().In(loc))
				}
				return a
			},
		})
	default:
		return NewPrettyHandler(os.Stdout, PrettyHandlerOptions{
			SlogOpts: slog.HandlerOptions{Level: level},
			TimeZone: loc,
		})
	}
}
