package settings

import (
	"context"
	"errors"
	"testing"
	"time"
)

func testResolver(src Source) *Resolver {
	return NewResolver(src,
		Definition{ID: "notifyAtHours", PackageValue: "10,16"},
		Definition{ID: "notificationTimeZone", PackageValue: "America/New_York"},
		Definition{ID: "notifyInterval", PackageValue: "1h"},
	)
}

func TestResolvePrecedence(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	tests := []struct {
		name string
		src  StaticSource
		id   string
		want string
	}{
		{name: "no override uses default", src: StaticSource{}, id: "notifyAtHours", want: "10,16"},
		{name: "override wins", src: StaticSource{"notifyAtHours": "9,17"}, id: "notifyAtHours", want: "9,17"},
		{name: "override equal to default still wins", src: StaticSource{"notifyInterval": "1h"}, id: "notifyInterval", want: "1h"},
		{name: "empty override falls back", src: StaticSource{"notificationTimeZone": ""}, id: "notificationTimeZone", want: "America/New_York"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			r := testResolver(tt.src)
			got, err := r.Resolve(ctx, tt.id)
			if err != nil {
				t.Fatalf("Resolve(%q): %v", tt.id, err)
			}
			if got != tt.want {
				t.Fatalf("Resolve(%q) = %q, want %q", tt.id, got, tt.want)
			}
		})
	}
}

func TestResolveUnknown(t *testing.T) {
	t.Parallel()
	r := testResolver(StaticSource{})
	if _, err := r.Resolve(context.Background(), "nope"); !errors.Is(err, ErrUnknown) {
		t.Fatalf("expected ErrUnknown, got %v", err)
	}
}

type failingSource struct{ err error }

func (f failingSource) Lookup(context.Context, string) (string, bool, error) {
	return "", false, f.err
}

func TestResolveSourceFailurePropagates(t *testing.T) {
	t.Parallel()
	r := testResolver(failingSource{err: errors.New("backend down")})
	if _, err := r.Resolve(context.Background(), "notifyAtHours"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestResolveList(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	tests := []struct {
		name     string
		override string
		want     []string
	}{
		{name: "default", override: "", want: []string{"10", "16"}},
		{name: "override", override: "9,17", want: []string{"9", "17"}},
		{name: "no trimming", override: "9, 17", want: []string{"9", " 17"}},
		{name: "trailing comma keeps empty entry", override: "9,", want: []string{"9", ""}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			src := StaticSource{}
			if tt.override != "" {
				src["notifyAtHours"] = tt.override
			}
			r := testResolver(src)
			got, err := r.ResolveList(ctx, "notifyAtHours")
			if err != nil {
				t.Fatalf("ResolveList: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("entry %d = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestCurrentHourFormat(t *testing.T) {
	t.Parallel()

	tests := []struct {
		utcHour int
		want    string
	}{
		{utcHour: 0, want: "0"},
		{utcHour: 9, want: "9"},
		{utcHour: 10, want: "10"},
		{utcHour: 23, want: "23"},
	}
	for _, tt := range tests {
		now := time.Date(2025, 6, 15, tt.utcHour, 30, 0, 0, time.UTC)
		got, err := CurrentHour(now, "UTC")
		if err != nil {
			t.Fatalf("CurrentHour: %v", err)
		}
		if got != tt.want {
			t.Fatalf("CurrentHour(%02d:30 UTC) = %q, want %q", tt.utcHour, got, tt.want)
		}
	}
}

func TestCurrentHourZoneConversion(t *testing.T) {
	t.Parallel()
	// 14:00 UTC on a summer date is 10:00 in New York (EDT).
	now := time.Date(2025, 6, 15, 14, 0, 0, 0, time.UTC)
	got, err := CurrentHour(now, "America/New_York")
	if err != nil {
		t.Fatalf("CurrentHour: %v", err)
	}
	if got != "10" {
		t.Fatalf("CurrentHour = %q, want %q", got, "10")
	}

	if _, err := CurrentHour(now, "Not/AZone"); err == nil {
		t.Fatal("expected error for invalid zone")
	}
}
