// Package transport defines how reminder text leaves the process and how
// user commands come back in.
package transport

import (
	"context"
	"time"
)

type ChatTarget struct {
	ChatID   int64
	ThreadID int
}

type MessageRef struct {
	ChatID    int64
	ThreadID  int
	MessageID int
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
	Silent         bool
}

// Notification is one queued delivery.
type Notification struct {
	Channel  string
	Kind     string // reminder type
	Priority int    // 0 low .. 10 high
	Target   ChatTarget
	Text     string
	Options  *SendOptions
}

// Sender delivers text to a chat.
type Sender interface {
	Name() string
	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
}

// Command is an inbound slash command.
type Command struct {
	Name   string
	Args   string
	ChatID int64
	FromID int64
	At     time.Time
}

// CommandHandler returns the reply text (may be empty).
type CommandHandler func(ctx context.Context, cmd Command) (string, error)

// Receiver is a transport that also accepts commands.
type Receiver interface {
	Handle(name, description string, h CommandHandler)
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}
