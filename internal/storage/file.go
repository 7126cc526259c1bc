package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	logx "remindbot/pkg/logx"
)

// fileStore is a dependency-free persistence backend: a single JSON snapshot
// rewritten on every mutation. Task counts per deployment are small (a few
// dozen rooms at most), so whole-file rewrites stay cheap.
type fileStore struct {
	log  logx.Logger
	path string

	mu    sync.Mutex
	tasks []Task
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}

	s := &fileStore{log: log, path: path}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *fileStore) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.tasks = nil
			return nil
		}
		return fmt.Errorf("%w: read tasks file: %v", ErrUnavailable, err)
	}
	if len(data) == 0 {
		s.tasks = nil
		return nil
	}
	var tasks []Task
	if err := json.Unmarshal(data, &tasks); err != nil {
		return fmt.Errorf("%w: unmarshal tasks: %v", ErrUnavailable, err)
	}
	s.tasks = tasks
	return nil
}

// flushLocked writes the snapshot atomically (tmp + rename).
func (s *fileStore) flushLocked() error {
	data, err := json.Marshal(s.tasks)
	if err != nil {
		return fmt.Errorf("%w: marshal tasks: %v", ErrUnavailable, err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("%w: write tasks file: %v", ErrUnavailable, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("%w: replace tasks file: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *fileStore) Close() error { return nil }

func (s *fileStore) FindRooms(ctx context.Context) ([]int64, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := map[int64]bool{}
	rooms := make([]int64, 0, 4)
	for _, t := range s.tasks {
		if !seen[t.RoomID] {
			seen[t.RoomID] = true
			rooms = append(rooms, t.RoomID)
		}
	}
	return rooms, nil
}

func (s *fileStore) FindByRoom(ctx context.Context, roomID int64) ([]Task, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Task
	for _, t := range s.tasks {
		if t.RoomID == roomID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *fileStore) Persist(ctx context.Context, roomID int64, text string) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tasks = append(s.tasks, Task{
		RoomID:    roomID,
		Text:      text,
		RoomKey:   strconv.FormatInt(roomID, 10),
		CreatedAt: time.Now().UTC(),
	})
	if err := s.flushLocked(); err != nil {
		// roll back the in-memory append so memory stays consistent with disk
		s.tasks = s.tasks[:len(s.tasks)-1]
		return err
	}
	return nil
}

func (s *fileStore) RemoveByText(ctx context.Context, roomID int64, text string) (bool, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, t := range s.tasks {
		if t.RoomID == roomID && t.Text == text {
			removed := t
			s.tasks = append(s.tasks[:i], s.tasks[i+1:]...)
			if err := s.flushLocked(); err != nil {
				s.tasks = append(s.tasks[:i], append([]Task{removed}, s.tasks[i:]...)...)
				return false, err
			}
			return true, nil
		}
	}
	return false, nil
}

func (s *fileStore) RemoveByRoom(ctx context.Context, roomID int64) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.tasks[:0:0]
	removed := 0
	for _, t := range s.tasks {
		if t.RoomID == roomID {
			removed++
			continue
		}
		kept = append(kept, t)
	}
	if removed == 0 {
		return nil
	}
	prev := s.tasks
	s.tasks = kept
	if err := s.flushLocked(); err != nil {
		s.tasks = prev
		return err
	}
	s.log.Debug("room tasks removed", logx.Int64("room_id", roomID), logx.Int("count", removed))
	return nil
}
