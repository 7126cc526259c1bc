package scheduler

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestParseScheduleVariants(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		raw      string
		kind     SpecKind
		source   string
		duration time.Duration
	}{
		{name: "cron", raw: "*/5 * * * *", kind: SpecCron, source: "cron"},
		{name: "prefixed cron", raw: "cron:0 0 * * *", kind: SpecCron, source: "cron"},
		{name: "descriptor", raw: "@hourly", kind: SpecCron, source: "cron"},
		{name: "duration", raw: "1h", kind: SpecInterval, source: "duration", duration: time.Hour},
		{name: "prefixed interval", raw: "interval:45s", kind: SpecInterval, source: "duration", duration: 45 * time.Second},
		{name: "hhmm", raw: "01:30", kind: SpecInterval, source: "hhmm", duration: 90 * time.Minute},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSchedule(tt.raw)
			if err != nil {
				t.Fatalf("ParseSchedule(%q) error: %v", tt.raw, err)
			}
			if got.Kind != tt.kind {
				t.Fatalf("Kind = %v, want %v", got.Kind, tt.kind)
			}
			if got.Source != tt.source {
				t.Fatalf("Source = %s, want %s", got.Source, tt.source)
			}
			if tt.kind == SpecInterval && got.Every != tt.duration {
				t.Fatalf("Every = %v, want %v", got.Every, tt.duration)
			}
		})
	}
}

func TestParseScheduleInvalid(t *testing.T) {
	t.Parallel()
	for _, raw := range []string{"", "not-a-schedule", "0s", "12:99"} {
		if _, err := ParseSchedule(raw); err == nil {
			t.Fatalf("expected error for %q", raw)
		}
	}
}

func TestAddScheduleUpsertAndRemove(t *testing.T) {
	t.Parallel()
	s := New(Config{Enabled: true}, discardLogger())

	job := func(ctx context.Context) error { return nil }
	if _, err := s.AddSchedule("notify", "1h", 0, job); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := s.AddSchedule("notify", "30m", 0, job); err != nil {
		t.Fatalf("re-register: %v", err)
	}
	names := s.Names()
	if len(names) != 1 || names[0] != "notify" {
		t.Fatalf("expected single upserted schedule, got %v", names)
	}

	if !s.Remove("notify") {
		t.Fatal("expected Remove to report removal")
	}
	// cancelling an already-unregistered job must not fail the disable path
	if s.Remove("notify") {
		t.Fatal("expected second Remove to be a no-op")
	}
}
