package health

import (
	"net/http"
	"runtime"
	"time"

	"github.com/brensch/attendance/discord"
	"github.com/brensch/attendance/log"
	"github.com/dustin/go-humanize"
)

const (
	tokenPreviewLength   = 10
	webhookPreviewLength = 30
	diagnosticsLogLimit  = 20
)

// Settings is the configuration reported by /diagnostics. Secrets are only
// shown as a short prefix.
type Settings struct {
	BotToken           string
	WebhookURL         string
	BroadcastChannelID string
	BaseURL            string
	JournalDirectory   string
	Location           *time.Location
}

type setting struct {
	Configured bool   `json:"configured"`
	Preview    string `json:"preview,omitempty"`
}

type memoryInfo struct {
	Alloc     string `json:"alloc"`
	HeapInUse string `json:"heap_in_use"`
	Sys       string `json:"sys"`
}

type systemInfo struct {
	GoVersion      string     `json:"go_version"`
	OS             string     `json:"os"`
	Arch           string     `json:"arch"`
	Goroutines     int        `json:"goroutines"`
	Uptime         string     `json:"uptime"`
	Memory         memoryInfo `json:"memory"`
	LocalTime      string     `json:"local_time"`
	AttendanceTime string     `json:"attendance_time"`
	AttendanceZone string     `json:"attendance_zone"`
}

type probeInfo struct {
	Delivered bool   `json:"delivered"`
	Summary   string `json:"summary"`
}

// DiagnosticsResponse is the body of GET /diagnostics.
type DiagnosticsResponse struct {
	Timestamp time.Time          `json:"timestamp"`
	Config    map[string]setting `json:"config"`
	System    systemInfo         `json:"system"`
	Bot       discord.Status     `json:"bot"`
	Probe     *probeInfo         `json:"probe,omitempty"`
	Logs      []log.Entry        `json:"logs"`
}

// Diagnostics reports configuration, runtime and bot state. The webhook is only
// probed when the probe query parameter is set.
func (s *Server) Diagnostics(w http.ResponseWriter, r *http.Request) {
	now := s.now()
	resp := DiagnosticsResponse{
		Timestamp: now,
		Config: map[string]setting{
			"discord_token":        preview(s.settings.BotToken, tokenPreviewLength),
			"webhook_url":          preview(s.settings.WebhookURL, webhookPreviewLength),
			"broadcast_channel_id": plain(s.settings.BroadcastChannelID),
			"base_url":             plain(s.settings.BaseURL),
			"journal_directory":    plain(s.settings.JournalDirectory),
		},
		System: s.systemInfo(now),
		Bot:    s.bot.Status(),
		Logs:   []log.Entry{},
	}

	if s.recent != nil {
		resp.Logs = s.recent.Entries(diagnosticsLogLimit)
	}

	if r.URL.Query().Get("probe") != "" && s.probe != nil {
		delivered, summary := s.probe(r.Context())
		resp.Probe = &probeInfo{Delivered: delivered, Summary: summary}
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) systemInfo(now time.Time) systemInfo {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	return systemInfo{
		GoVersion:  runtime.Version(),
		OS:         runtime.GOOS,
		Arch:       runtime.GOARCH,
		Goroutines: runtime.NumGoroutine(),
		Uptime:     now.Sub(s.startTime).Round(time.Second).String(),
		Memory: memoryInfo{
			Alloc:     humanize.Bytes(mem.Alloc),
			HeapInUse: humanize.Bytes(mem.HeapInuse),
			Sys:       humanize.Bytes(mem.Sys),
		},
		LocalTime:      now.Format(time.RFC3339),
		AttendanceTime: now.In(s.settings.Location).Format("02/01/2006, 15:04:05"),
		AttendanceZone: s.settings.Location.String(),
	}
}

func preview(value string, n int) setting {
	if value == "" {
		return setting{}
	}
	if len(value) > n {
		value = value[:n]
	}
	return setting{Configured: true, Preview: value + "..."}
}

func plain(value string) setting {
	return setting{Configured: value != "", Preview: value}
}
