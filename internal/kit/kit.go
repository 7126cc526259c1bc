// Package kit holds the transport-neutral types shared between the core,
// services, and plugins. The Telegram adapter is the only implementation
// today, but nothing outside internal/adapters may import telebot.
package kit

import "context"

type UpdateKind int

const (
	UpdateMessage UpdateKind = iota
)

type Update struct {
	Kind    UpdateKind
	Message *Message
}

type Message struct {
	ID           int
	ChatID       int64
	ThreadID     int
	FromID       int64
	FromUsername string
	FromName     string
	Text         string
}

// ChatTarget addresses a room (Telegram chat, optionally a forum thread).
type ChatTarget struct {
	ChatID   int64
	ThreadID int
}

// Room is the resolved form of a room ID. Resolution may fail when the bot
// was removed from the chat or the chat was deleted.
type Room struct {
	ID    int64
	Title string
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
	// Silent suppresses the client-side notification sound. Used for the
	// transient/ephemeral message shape (usage, errors, listings).
	Silent bool
}

type MessageRef struct {
	ChatID    int64
	ThreadID  int
	MessageID int
}

// Notification is the transient message shape routed through the notify
// service (best-effort, rate limited).
type Notification struct {
	Channel  string
	Priority int
	Target   ChatTarget
	Text     string
	Options  *SendOptions
}

type Adapter interface {
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error
	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
	// Room resolves a room by ID. Implementations return an error when the
	// room no longer exists or the bot lost access to it.
	Room(ctx context.Context, roomID int64) (Room, error)
}
