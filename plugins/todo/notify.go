package todo

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"remindbot/internal/kit"
	"remindbot/internal/settings"
)

// runNotify is the scheduled tick. It fires on every interval; reminders only
// go out when the current hour (in the configured zone) is listed in
// notifyAtHours. A tick that matches more than once per hour sends duplicate
// reminders, which is accepted.
func (p *Plugin) runNotify(ctx context.Context) error {
	hours, err := p.resolver.ResolveList(ctx, settingNotifyAtHours)
	if err != nil {
		return err
	}
	tz, err := p.resolver.Resolve(ctx, settingTimeZone)
	if err != nil {
		return err
	}
	hour, err := settings.CurrentHour(time.Now(), tz)
	if err != nil {
		return err
	}
	if !contains(hours, hour) {
		return nil
	}

	rooms, err := p.Deps.Store.FindRooms(ctx)
	if err != nil {
		return err
	}

	// per-room fan-out is best effort: one room's failure never aborts the
	// remaining rooms
	for _, roomID := range rooms {
		p.notifyRoom(ctx, roomID)
	}
	return nil
}

func (p *Plugin) notifyRoom(ctx context.Context, roomID int64) {
	room, err := p.Deps.Adapter.Room(ctx, roomID)
	if err != nil {
		p.Log.Warn("room no longer exists", slog.Int64("room_id", roomID), slog.Any("err", err))
		return
	}

	tasks, err := p.Deps.Store.FindByRoom(ctx, roomID)
	if err != nil {
		p.Log.Warn("task fetch failed", slog.Int64("room_id", roomID), slog.Any("err", err))
		return
	}
	if len(tasks) == 0 {
		// room was indexed but holds no tasks: stale index entry or a race
		// with a concurrent delete
		p.Log.Warn("nothing to do, this should not happen", slog.Int64("room_id", roomID))
		return
	}

	text := "Reminder:\n\n" + strings.Join(taskTexts(tasks), "\n")
	if _, err := p.Deps.Adapter.SendText(ctx, kit.ChatTarget{ChatID: room.ID}, text, nil); err != nil {
		p.Log.Warn("reminder send failed", slog.Int64("room_id", roomID), slog.Any("err", err))
	}
}
