package storage

import (
	"context"
	"errors"
	"strings"

	logx "remindbot/pkg/logx"
)

// Store is the persistence surface consumed by the todo plugin.
//
// Ordering contract: FindByRoom returns tasks in creation order. Reminder
// bodies are built by joining task texts, so this order is user-visible.
type Store interface {
	// FindRooms returns every room with at least one task. A room leaves
	// the result exactly when its last task is removed.
	FindRooms(ctx context.Context) ([]int64, error)
	FindByRoom(ctx context.Context, roomID int64) ([]Task, error)
	// Persist appends a task. It never deduplicates.
	Persist(ctx context.Context, roomID int64, text string) error
	// RemoveByText removes the first task in the room whose text equals
	// text exactly (case-sensitive, no trimming). It reports whether a
	// task was removed.
	RemoveByText(ctx context.Context, roomID int64, text string) (bool, error)
	// RemoveByRoom removes every task for the room. No-op when empty.
	RemoveByRoom(ctx context.Context, roomID int64) error
	Close() error
}

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case "file":
		return openFile(cfg, log)
	case "", "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
