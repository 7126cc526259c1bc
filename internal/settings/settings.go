// Package settings implements value-or-default resolution for string-typed
// runtime settings. A setting is registered once with its packaged default;
// the effective value is the override from the Source when present and
// non-empty, else the packaged default.
package settings

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
)

var (
	ErrUnknown = errors.New("unknown setting")
	// ErrUnavailable wraps Source failures. A failed lookup cannot be
	// safely defaulted past the packaged value, so it propagates.
	ErrUnavailable = errors.New("settings unavailable")
)

// Definition declares one setting and its packaged default.
type Definition struct {
	ID           string
	PackageValue string
	Description  string
}

// Source supplies runtime overrides. ok=false means "no override set";
// an empty string override counts the same as no override.
type Source interface {
	Lookup(ctx context.Context, id string) (value string, ok bool, err error)
}

// StaticSource is a map-backed Source for config-block overrides and tests.
type StaticSource map[string]string

func (s StaticSource) Lookup(_ context.Context, id string) (string, bool, error) {
	v, ok := s[id]
	return v, ok, nil
}

// Resolver resolves effective setting values against one Source.
type Resolver struct {
	mu   sync.RWMutex
	defs map[string]Definition
	src  Source
}

func NewResolver(src Source, defs ...Definition) *Resolver {
	r := &Resolver{defs: map[string]Definition{}, src: src}
	for _, d := range defs {
		r.defs[d.ID] = d
	}
	return r
}

// SetSource swaps the override source (used on config hot-reload).
func (r *Resolver) SetSource(src Source) {
	r.mu.Lock()
	r.src = src
	r.mu.Unlock()
}

// Resolve returns the effective value for id: the override when present and
// non-empty, else the packaged default.
func (r *Resolver) Resolve(ctx context.Context, id string) (string, error) {
	r.mu.RLock()
	def, known := r.defs[id]
	src := r.src
	r.mu.RUnlock()

	if !known {
		return "", fmt.Errorf("%w: %s", ErrUnknown, id)
	}
	if src != nil {
		v, ok, err := src.Lookup(ctx, id)
		if err != nil {
			return "", fmt.Errorf("%w: %s: %v", ErrUnavailable, id, err)
		}
		if ok && v != "" {
			return v, nil
		}
	}
	return def.PackageValue, nil
}

// ResolveList resolves id and splits it on commas. Entries are passed
// through verbatim: no trimming and no empty-entry filtering, so a trailing
// comma yields a final "" entry. Empty-string hours never match CurrentHour
// output, which keeps that shape harmless.
func (r *Resolver) ResolveList(ctx context.Context, id string) ([]string, error) {
	v, err := r.Resolve(ctx, id)
	if err != nil {
		return nil, err
	}
	return strings.Split(v, ","), nil
}

// CurrentHour returns the current wall-clock hour (0-23) in the given IANA
// zone as a decimal string with no leading zero: 0 -> "0", 9 -> "9",
// 14 -> "14". Hour matching is a literal string-set membership test, so the
// configured values and this output must be byte-identical.
func CurrentHour(now time.Time, tz string) (string, error) {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return "", fmt.Errorf("load location %q: %w", tz, err)
	}
	return strconv.Itoa(now.In(loc).Hour()), nil
}
