package todo

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"remindbot/internal/core"
	"remindbot/internal/kit"
	"remindbot/internal/storage"
	"remindbot/pkg/logx"
)

type sentMsg struct {
	chatID int64
	text   string
}

type fakeAdapter struct {
	mu      sync.Mutex
	sent    []sentMsg
	missing map[int64]bool
}

func (f *fakeAdapter) Start(context.Context, chan<- kit.Update) error { return nil }
func (f *fakeAdapter) Stop(context.Context) error                     { return nil }

func (f *fakeAdapter) SendText(_ context.Context, to kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMsg{chatID: to.ChatID, text: text})
	return kit.MessageRef{ChatID: to.ChatID}, nil
}

func (f *fakeAdapter) Room(_ context.Context, roomID int64) (kit.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.missing[roomID] {
		return kit.Room{}, fmt.Errorf("room %d no longer exists", roomID)
	}
	return kit.Room{ID: roomID}, nil
}

func (f *fakeAdapter) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.sent))
	for i, m := range f.sent {
		out[i] = m.text
	}
	return out
}

type scheduleCall struct {
	name     string
	schedule string
}

type fakeScheduler struct {
	mu      sync.Mutex
	added   []scheduleCall
	removed []string
}

func (f *fakeScheduler) Enabled() bool { return true }

func (f *fakeScheduler) AddSchedule(name, schedule string, _ time.Duration, _ func(ctx context.Context) error) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.added = append(f.added, scheduleCall{name: name, schedule: schedule})
	return name, nil
}

func (f *fakeScheduler) AddCron(name, spec string, timeout time.Duration, job func(ctx context.Context) error) (string, error) {
	return f.AddSchedule(name, spec, timeout, job)
}

func (f *fakeScheduler) AddInterval(name string, every time.Duration, timeout time.Duration, job func(ctx context.Context) error) (string, error) {
	return f.AddSchedule(name, every.String(), timeout, job)
}

func (f *fakeScheduler) Remove(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, name)
	return true
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []kit.Notification
}

func (f *fakeNotifier) Notify(_ context.Context, n kit.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, n)
	return nil
}

func (f *fakeNotifier) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.sent))
	for i, n := range f.sent {
		out[i] = n.Text
	}
	return out
}

type fixture struct {
	plugin *Plugin
	ad     *fakeAdapter
	sched  *fakeScheduler
	notif  *fakeNotifier
	store  storage.Store
	serv   *core.Services
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store, err := storage.Open(storage.Config{
		Driver: "file",
		Path:   filepath.Join(t.TempDir(), "tasks.json"),
	}, logx.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	ad := &fakeAdapter{missing: map[int64]bool{}}
	sched := &fakeScheduler{}
	notif := &fakeNotifier{}
	serv := &core.Services{Scheduler: sched, Notifier: notif, Store: store}

	p := New()
	deps := core.PluginDeps{
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Adapter:  ad,
		Services: serv,
		Store:    store,
	}
	if err := p.Init(context.Background(), deps); err != nil {
		t.Fatalf("init: %v", err)
	}
	return &fixture{plugin: p, ad: ad, sched: sched, notif: notif, store: store, serv: serv}
}

func (f *fixture) request(roomID int64, sender string, args ...string) *core.Request {
	return &core.Request{
		Chat:     kit.ChatTarget{ChatID: roomID},
		FromName: sender,
		Command:  "todo",
		Args:     args,
		Adapter:  f.ad,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Services: f.serv,
	}
}

func (f *fixture) taskTexts(t *testing.T, roomID int64) []string {
	t.Helper()
	tasks, err := f.store.FindByRoom(context.Background(), roomID)
	if err != nil {
		t.Fatalf("find by room: %v", err)
	}
	return taskTexts(tasks)
}

func TestCreateTask(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.plugin.handleTodo(ctx, f.request(1, "Alice", "buy", "milk")); err != nil {
		t.Fatalf("handle: %v", err)
	}

	got := f.taskTexts(t, 1)
	if len(got) != 1 || got[0] != "buy milk" {
		t.Fatalf("tasks = %v", got)
	}
	msgs := f.ad.texts()
	if len(msgs) != 1 || msgs[0] != "Alice created new to-do task: buy milk" {
		t.Fatalf("messages = %v", msgs)
	}
}

func TestUsageOnNoArgs(t *testing.T) {
	f := newFixture(t)

	if err := f.plugin.handleTodo(context.Background(), f.request(1, "Alice")); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(f.ad.texts()) != 0 {
		t.Fatal("usage must not produce a room message")
	}
	got := f.notif.texts()
	if len(got) != 1 || !strings.HasPrefix(got[0], "Usage: /todo") {
		t.Fatalf("notifications = %v", got)
	}
}

func TestDeleteTask(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, text := range []string{"a", "b"} {
		if err := f.store.Persist(ctx, 1, text); err != nil {
			t.Fatalf("persist: %v", err)
		}
	}

	if err := f.plugin.handleTodo(ctx, f.request(1, "Bob", "DELETE", "a")); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if got := f.taskTexts(t, 1); len(got) != 1 || got[0] != "b" {
		t.Fatalf("tasks = %v", got)
	}
	msgs := f.ad.texts()
	if len(msgs) != 1 || msgs[0] != "Bob deleted task: a" {
		t.Fatalf("messages = %v", msgs)
	}
}

func TestDeleteUnknownTask(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.store.Persist(ctx, 1, "a"); err != nil {
		t.Fatalf("persist: %v", err)
	}
	if err := f.plugin.handleTodo(ctx, f.request(1, "Bob", "DELETE", "zzz")); err != nil {
		t.Fatalf("handle: %v", err)
	}

	if got := f.taskTexts(t, 1); len(got) != 1 {
		t.Fatalf("store mutated: %v", got)
	}
	if len(f.ad.texts()) != 0 {
		t.Fatal("not-found must not produce a room message")
	}
	got := f.notif.texts()
	want := "There is no task \"zzz\", please make sure the exact task name is used"
	if len(got) != 1 || got[0] != want {
		t.Fatalf("notifications = %v", got)
	}
}

func TestDeleteAll(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, text := range []string{"a", "b"} {
		if err := f.store.Persist(ctx, 1, text); err != nil {
			t.Fatalf("persist: %v", err)
		}
	}

	if err := f.plugin.handleTodo(ctx, f.request(1, "Alice", "DELETEALL")); err != nil {
		t.Fatalf("handle: %v", err)
	}

	if got := f.taskTexts(t, 1); len(got) != 0 {
		t.Fatalf("tasks remain: %v", got)
	}
	rooms, err := f.store.FindRooms(ctx)
	if err != nil {
		t.Fatalf("find rooms: %v", err)
	}
	if len(rooms) != 0 {
		t.Fatalf("room still indexed: %v", rooms)
	}

	msgs := f.ad.texts()
	if len(msgs) != 1 {
		t.Fatalf("messages = %v", msgs)
	}
	if msgs[0] != "Alice deleted all tasks: \n\na\nb" {
		t.Fatalf("message = %q", msgs[0])
	}
}

func TestListAll(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, text := range []string{"a", "b"} {
		if err := f.store.Persist(ctx, 1, text); err != nil {
			t.Fatalf("persist: %v", err)
		}
	}
	if err := f.plugin.handleTodo(ctx, f.request(1, "Alice", "LISTALL")); err != nil {
		t.Fatalf("handle: %v", err)
	}

	got := f.notif.texts()
	if len(got) != 1 || got[0] != "Current tasks: \n\na\nb" {
		t.Fatalf("notifications = %v", got)
	}
	if len(f.ad.texts()) != 0 {
		t.Fatal("listing must not produce a room message")
	}
}

func currentHourUTC() string {
	return strconv.Itoa(time.Now().UTC().Hour())
}

func configureUTC(t *testing.T, f *fixture, hours string) {
	t.Helper()
	raw := fmt.Sprintf(`{"notify_at_hours": %q, "notification_time_zone": "UTC"}`, hours)
	if err := f.plugin.OnConfigChange(context.Background(), []byte(raw)); err != nil {
		t.Fatalf("config: %v", err)
	}
}

func TestNotifyTickMatchingHour(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, text := range []string{"x", "y"} {
		if err := f.store.Persist(ctx, 7, text); err != nil {
			t.Fatalf("persist: %v", err)
		}
	}
	configureUTC(t, f, currentHourUTC())

	if err := f.plugin.runNotify(ctx); err != nil {
		t.Fatalf("tick: %v", err)
	}
	msgs := f.ad.texts()
	if len(msgs) != 1 || msgs[0] != "Reminder:\n\nx\ny" {
		t.Fatalf("messages = %v", msgs)
	}
}

func TestNotifyTickNonMatchingHour(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.store.Persist(ctx, 7, "x"); err != nil {
		t.Fatalf("persist: %v", err)
	}
	configureUTC(t, f, "25") // never matches

	if err := f.plugin.runNotify(ctx); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if msgs := f.ad.texts(); len(msgs) != 0 {
		t.Fatalf("messages = %v", msgs)
	}
}

func TestNotifyTickSkipsMissingRoom(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.store.Persist(ctx, 7, "gone"); err != nil {
		t.Fatalf("persist: %v", err)
	}
	if err := f.store.Persist(ctx, 8, "still here"); err != nil {
		t.Fatalf("persist: %v", err)
	}
	f.ad.missing[7] = true
	configureUTC(t, f, currentHourUTC())

	if err := f.plugin.runNotify(ctx); err != nil {
		t.Fatalf("tick: %v", err)
	}
	msgs := f.ad.texts()
	if len(msgs) != 1 || msgs[0] != "Reminder:\n\nstill here" {
		t.Fatalf("messages = %v", msgs)
	}
}

func TestNotifyJobLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.plugin.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	f.sched.mu.Lock()
	added := append([]scheduleCall(nil), f.sched.added...)
	f.sched.mu.Unlock()
	if len(added) != 1 || added[0].name != "todo:notify" || added[0].schedule != defaultNotifyInterval {
		t.Fatalf("added = %v", added)
	}

	// interval change re-registers under the same name
	if err := f.plugin.OnConfigChange(ctx, []byte(`{"notify_interval": "30m"}`)); err != nil {
		t.Fatalf("config: %v", err)
	}
	f.sched.mu.Lock()
	added = append([]scheduleCall(nil), f.sched.added...)
	f.sched.mu.Unlock()
	if len(added) != 2 || added[1].schedule != "30m" {
		t.Fatalf("added = %v", added)
	}

	if err := f.plugin.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	f.sched.mu.Lock()
	removed := append([]string(nil), f.sched.removed...)
	f.sched.mu.Unlock()
	if len(removed) != 1 || removed[0] != "todo:notify" {
		t.Fatalf("removed = %v", removed)
	}

	// disable then re-enable must not fail
	if err := f.plugin.Start(ctx); err != nil {
		t.Fatalf("restart: %v", err)
	}
	if err := f.plugin.Stop(ctx); err != nil {
		t.Fatalf("second stop: %v", err)
	}
}
