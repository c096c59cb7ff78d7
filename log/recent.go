package log

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultRecentSize is the number of records kept when no size is configured.
const DefaultRecentSize = 50

// Entry is a flattened copy of a log record.
type Entry struct {
	Time    time.Time      `json:"timestamp"`
	Level   string         `json:"level"`
	Message string         `json:"message"`
	Attrs   map[string]any `json:"data,omitempty"`
}

// Recent is a fixed-size ring of the latest log entries, newest first on read.
type Recent struct {
	mu      sync.Mutex
	entries []Entry
	next    int
	full    bool
}

// NewRecent creates a ring holding up to size entries.
func NewRecent(size int) *Recent {
	if size <= 0 {
		size = DefaultRecentSize
	}
	return &Recent{entries: make([]Entry, size)}
}

func (r *Recent) add(e Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[r.next] = e
	r.next = (r.next + 1) % len(r.entries)
	if r.next == 0 {
		r.full = true
	}
}

// Entries returns up to limit entries, newest first. A limit <= 0 returns all of them.
func (r *Recent) Entries(limit int) []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := r.next
	if r.full {
		count = len(r.entries)
	}
	if limit <= 0 || limit > count {
		limit = count
	}

	out := make([]Entry, 0, limit)
	for i := 0; i < limit; i++ {
		idx := (r.next - 1 - i + len(r.entries)) % len(r.entries)
		out = append(out, r.entries[idx])
	}
	return out
}

// RecentHandler forwards records to next and keeps a copy in the ring.
type RecentHandler struct {
	next   slog.Handler
	recent *Recent
	attrs  []slog.Attr
}

// NewRecentHandler wraps next so every handled record is also stored in recent.
func NewRecentHandler(next slog.Handler, recent *Recent) *RecentHandler {
	return &RecentHandler{next: next, recent: recent}
}

func (h *RecentHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *RecentHandler) Handle(ctx context.Context, r slog.Record) error {
	entry := Entry{
		Time:    r.Time,
		Level:   r.Level.String(),
		Message: r.Message,
	}
	if n := r.NumAttrs() + len(h.attrs); n > 0 {
		entry.Attrs = make(map[string]any, n)
		store := func(a slog.Attr) bool {
			if errVal, ok := a.Value.Any().(error); ok {
				entry.Attrs[a.Key] = errVal.Error()
			} else {
				entry.Attrs[a.Key] = a.Value.Any()
			}
			return true
		}
		for _, a := range h.attrs {
			store(a)
		}
		r.Attrs(store)
	}
	h.recent.add(entry)

	return h.next.Handle(ctx, r)
}

func (h *RecentHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &RecentHandler{next: h.next.WithAttrs(attrs), recent: h.recent, attrs: merged}
}

func (h *RecentHandler) WithGroup(name string) slog.Handler {
	return &RecentHandler{next: h.next.WithGroup(name), recent: h.recent, attrs: h.attrs}
}
