package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	logx "remindbot/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: migrate: %v", ErrUnavailable, err)
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) FindRooms(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT room_id FROM tasks GROUP BY room_id ORDER BY MIN(id)`)
	if err != nil {
		return nil, fmt.Errorf("%w: find rooms: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("%w: scan room: %v", ErrUnavailable, err)
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: find rooms: %v", ErrUnavailable, err)
	}
	return out, nil
}

func (s *sqliteStore) FindByRoom(ctx context.Context, roomID int64) ([]Task, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT room_id, text, room_key, created_at FROM tasks WHERE room_id = ? ORDER BY id`,
		roomID)
	if err != nil {
		return nil, fmt.Errorf("%w: find by room: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	var out []Task
	for rows.Next() {
		var t Task
		var created string
		if err := rows.Scan(&t.RoomID, &t.Text, &t.RoomKey, &created); err != nil {
			return nil, fmt.Errorf("%w: scan task: %v", ErrUnavailable, err)
		}
		if ts, err := time.Parse(time.RFC3339Nano, created); err == nil {
			t.CreatedAt = ts
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: find by room: %v", ErrUnavailable, err)
	}
	return out, nil
}

func (s *sqliteStore) Persist(ctx context.Context, roomID int64, text string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tasks(room_id, text, room_key, created_at) VALUES(?,?,?,?)`,
		roomID, text, strconv.FormatInt(roomID, 10), time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("%w: persist task: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *sqliteStore) RemoveByText(ctx context.Context, roomID int64, text string) (bool, error) {
	// First match wins: the oldest task with this exact text.
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM tasks WHERE id = (
		     SELECT id FROM tasks WHERE room_id = ? AND text = ? ORDER BY id LIMIT 1
		 )`,
		roomID, text)
	if err != nil {
		return false, fmt.Errorf("%w: remove by text: %v", ErrUnavailable, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%w: remove by text: %v", ErrUnavailable, err)
	}
	return n > 0, nil
}

func (s *sqliteStore) RemoveByRoom(ctx context.Context, roomID int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE room_id = ?`, roomID)
	if err != nil {
		return fmt.Errorf("%w: remove by room: %v", ErrUnavailable, err)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		s.log.Debug("room tasks removed", logx.Int64("room_id", roomID), logx.Int64("count", n))
	}
	return nil
}
