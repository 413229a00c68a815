package event

import (
	"chat-relay/domain"
	"time"

	"github.com/google/uuid"
)

// DomainEvent is what the relay and the client session hand to the outside
// world. Consumers drain them from a single channel on their own schedule.
type DomainEvent interface {
	Name() string
	OccurredAt() time.Time
}

type PeerConnected struct {
	Conn domain.ConnID
	At   time.Time
}

func (PeerConnected) Name() string            { return "PeerConnected" }
func (e PeerConnected) OccurredAt() time.Time { return e.At }

// PeerRegistered is emitted on first registration and on every rename.
// Previous is empty on first registration.
type PeerRegistered struct {
	Conn     domain.ConnID
	Peer     domain.DisplayName
	Previous domain.DisplayName
	At       time.Time
}

func (PeerRegistered) Name() string            { return "PeerRegistered" }
func (e PeerRegistered) OccurredAt() time.Time { return e.At }

func (e PeerRegistered) IsRename() bool { return e.Previous != "" }

// ChatReceived is a chat line accepted by the relay or delivered to a client.
type ChatReceived struct {
	ID     uuid.UUID
	Conn   domain.ConnID
	Sender domain.DisplayName
	Text   domain.ChatPayload
	At     time.Time
}

func (ChatReceived) Name() string            { return "ChatReceived" }
func (e ChatReceived) OccurredAt() time.Time { return e.At }

// PeerDisconnected carries the name captured before the registry entry was
// removed. Peer is empty when the connection never registered.
type PeerDisconnected struct {
	Conn domain.ConnID
	Peer domain.DisplayName
	At   time.Time
}

func (PeerDisconnected) Name() string            { return "PeerDisconnected" }
func (e PeerDisconnected) OccurredAt() time.Time { return e.At }

// MessageDropped reports a single message that was not relayed.
type MessageDropped struct {
	Conn domain.ConnID
	Err  error
	At   time.Time
}

func (MessageDropped) Name() string            { return "MessageDropped" }
func (e MessageDropped) OccurredAt() time.Time { return e.At }

type SessionStateChanged struct {
	From string
	To   string
	At   time.Time
}

func (SessionStateChanged) Name() string            { return "SessionStateChanged" }
func (e SessionStateChanged) OccurredAt() time.Time { return e.At }

// Notice is local output for the user, such as command results.
type Notice struct {
	Text string
	At   time.Time
}

func (Notice) Name() string            { return "Notice" }
func (e Notice) OccurredAt() time.Time { return e.At }
