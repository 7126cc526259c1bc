package todo

import (
	"context"
	"strings"

	"remindbot/internal/core"
	"remindbot/internal/kit"
	"remindbot/internal/storage"
)

const usageText = "Usage: /todo some task, or /todo LISTALL, or /todo DELETE some task, or /todo DELETEALL"

func (p *Plugin) Commands() []core.Command {
	return []core.Command{{
		Route:       "todo",
		Description: "manage room to-do tasks",
		Usage:       usageText,
		Handle:      p.handleTodo,
	}}
}

// handleTodo dispatches on the first token. Confirmation messages are built
// from the task list fetched before any mutation, so DELETEALL echoes exactly
// what it removed.
func (p *Plugin) handleTodo(ctx context.Context, req *core.Request) error {
	store := req.Services.Store
	roomID := req.Chat.ChatID
	sender := req.FromName

	tasks, err := store.FindByRoom(ctx, roomID)
	if err != nil {
		return err
	}
	texts := taskTexts(tasks)

	switch {
	case len(req.Args) == 0:
		return p.notifySender(ctx, req, usageText)

	case req.Args[0] == "DELETEALL":
		msg := sender + " deleted all tasks: \n\n" + strings.Join(texts, "\n")
		if _, err := req.Adapter.SendText(ctx, req.Chat, msg, nil); err != nil {
			return err
		}
		return store.RemoveByRoom(ctx, roomID)

	case req.Args[0] == "DELETE":
		toDelete := strings.Join(req.Args[1:], " ")
		if !contains(texts, toDelete) {
			return p.notifySender(ctx, req, "There is no task \""+toDelete+"\", please make sure the exact task name is used")
		}
		msg := sender + " deleted task: " + toDelete
		if _, err := req.Adapter.SendText(ctx, req.Chat, msg, nil); err != nil {
			return err
		}
		_, err := store.RemoveByText(ctx, roomID, toDelete)
		return err

	case req.Args[0] == "LISTALL":
		return p.notifySender(ctx, req, "Current tasks: \n\n"+strings.Join(texts, "\n"))

	default:
		text := strings.Join(req.Args, " ")
		if err := store.Persist(ctx, roomID, text); err != nil {
			return err
		}
		msg := sender + " created new to-do task: " + text
		_, err := req.Adapter.SendText(ctx, req.Chat, msg, nil)
		return err
	}
}

func (p *Plugin) notifySender(ctx context.Context, req *core.Request, text string) error {
	return p.Notify(ctx, kit.Notification{
		Channel: "telegram",
		Target:  req.Chat,
		Text:    text,
	})
}

func taskTexts(tasks []storage.Task) []string {
	out := make([]string, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, t.Text)
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
