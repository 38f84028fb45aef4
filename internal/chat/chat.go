// Package chat describes the chat transport the bot talks through, independent
// of any particular platform.
package chat

import "context"

// Button is an inline menu button; Data comes back in a Callback event.
type Button struct {
	Text string
	Data string
}

// Options decorates an outgoing message.
type Options struct {
	// Keyboard rows of inline buttons. An empty keyboard removes an existing one on edit.
	Keyboard [][]Button
}

// Messenger sends and edits messages.
type Messenger interface {
	SendMessage(ctx context.Context, chatID int64, text string, opts *Options) (messageID int, err error)
	EditMessage(ctx context.Context, chatID int64, messageID int, text string, opts *Options) error
}

// EventKind distinguishes inbound events.
type EventKind int

const (
	EventCommand EventKind = iota + 1
	EventText
	EventCallback
)

// Sender is the platform's view of who sent an event.
type Sender struct {
	ID        int64
	Username  string
	FirstName string
	LastName  string
}

// Event is one inbound command, free-text message or button press.
type Event struct {
	Kind      EventKind
	Sender    Sender
	ChatID    int64
	MessageID int
	// Command is the command name without the slash, for EventCommand.
	Command string
	// Args is the text after the command.
	Args string
	// Text is the message body, for EventText.
	Text string
	// Data is the pressed button's payload, for EventCallback.
	Data string
}

// Handler consumes inbound events.
type Handler interface {
	HandleEvent(ctx context.Context, ev Event)
}
