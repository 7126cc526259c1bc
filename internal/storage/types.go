package storage

import (
	"errors"
	"time"
)

var (
	ErrDisabled = errors.New("storage disabled")
	// ErrUnavailable wraps failures of the underlying durable medium.
	ErrUnavailable = errors.New("storage unavailable")
)

// Config configures storage.
//
// Driver values:
//   - "file": dependency-free file backend (single JSON snapshot)
//   - "sqlite": SQLite database file
//
// If Driver is empty, "sqlite" is assumed.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Task is a persisted reminder item scoped to one room.
//
// Text is the practical identity key within a room: delete-by-text removes
// the first (oldest) task whose text matches exactly. Two tasks with the
// same text in one room are not individually addressable; this mirrors the
// user-facing contract and is documented rather than papered over with
// invented uniqueness.
type Task struct {
	RoomID int64     `json:"room_id"`
	Text   string    `json:"text"`
	// RoomKey is an opaque association key, set to the decimal form of
	// RoomID at creation. Redundant with RoomID but stored as a distinct
	// attribute for compatibility with association-style queries.
	RoomKey   string    `json:"room_key"`
	CreatedAt time.Time `json:"created_at"`
}
