// Package session is the client role: it connects to a relay, registers a
// display name, sends chat lines and turns relay broadcasts into events.
package session

import (
	"chat-relay/codec"
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

var _ contract.Pumpable = (*Session)(nil)

type State int

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "unknown"
	}
}

// Outcome tells the caller what SendChat did with its input.
type Outcome int

const (
	Ignored Outcome = iota
	Sent
	Command
	Rejected
)

// Session is driven by a single pump: Connect, Update, SendChat and
// Disconnect must not be called concurrently.
type Session struct {
	log        *slog.Logger
	transport  contract.ClientTransport
	events     chan event.DomainEvent
	upstream   codec.Codec
	downstream codec.Codec
	now        func() time.Time

	name  domain.DisplayName
	conn  domain.ConnID
	state State
}

func New(log *slog.Logger, transport contract.ClientTransport, name string, events chan event.DomainEvent) (*Session, error) {
	displayName, err := domain.NewDisplayName(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errors.ErrInvalidName, err)
	}
	return &Session{
		log:        log,
		transport:  transport,
		events:     events,
		upstream:   codec.New(codec.Upstream),
		downstream: codec.New(codec.Downstream),
		now:        time.Now,
		name:       displayName,
	}, nil
}

func (s *Session) WithClock(now func() time.Time) *Session {
	s.now = now
	return s
}

func (s *Session) State() State             { return s.state }
func (s *Session) Name() domain.DisplayName { return s.name }

// Connect dials address. Registration happens once the transport reports the
// connection as established, during a later Update.
func (s *Session) Connect(address string) error {
	if s.state != Disconnected {
		return fmt.Errorf("connect while %s: %w", s.state, errors.ErrInvalidState)
	}
	conn, err := s.transport.Connect(address)
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", address, err)
	}
	s.conn = conn
	s.setState(Connecting)
	s.log.Info("Connecting to relay", "address", address)
	return nil
}

// Update drains every pending transport event for the current connection.
func (s *Session) Update(ctx context.Context) error {
	if !s.conn.IsSet() {
		return nil
	}
	if s.state == Connected && !s.transport.IsLive(s.conn) {
		s.lost("Disconnected from server.")
		return nil
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		evt := s.transport.PopEvent(s.conn)
		switch evt.Type {
		case domain.NetworkEmpty:
			return nil
		case domain.NetworkConnect:
			s.setState(Connected)
			s.notice("Connected to server!")
			s.sendRegister()
		case domain.NetworkData:
			s.receive(evt.Payload)
		case domain.NetworkDisconnect:
			s.lost("Connection lost.")
			return nil
		}
	}
}

// SendChat sends text as a chat line, or runs it locally when it starts with
// a slash. Nothing happens unless the session is connected.
func (s *Session) SendChat(text string) (Outcome, error) {
	if s.state != Connected {
		return Ignored, errors.ErrNotConnected
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return Ignored, nil
	}
	if strings.HasPrefix(text, commandPrefix) {
		return Command, s.runCommand(text)
	}
	if len(text) > domain.MaxTextBytes {
		s.notice(fmt.Sprintf("Message exceeds %d bytes.", domain.MaxTextBytes))
		return Rejected, fmt.Errorf("message is %d bytes: %w", len(text), errors.ErrCapacityExceeded)
	}
	if !utf8.ValidString(text) {
		s.notice("Message is not valid text.")
		return Rejected, errors.ErrInvalidUTF8
	}
	if err := s.send(domain.Chat{Text: domain.ChatPayload(text)}); err != nil {
		return Rejected, err
	}
	return Sent, nil
}

// Disconnect hangs up. It is a no-op when there is no connection.
func (s *Session) Disconnect() error {
	if !s.conn.IsSet() {
		return nil
	}
	err := s.transport.Disconnect(s.conn)
	s.conn = domain.NoConn
	s.setState(Disconnected)
	return err
}

func (s *Session) sendRegister() {
	if err := s.send(domain.Register{Name: s.name}); err != nil {
		s.log.Warn("Registration not sent", "name", s.name, "error", err)
	}
}

func (s *Session) send(msg domain.Message) error {
	frame, err := s.upstream.Encode(msg)
	if err != nil {
		return err
	}
	if err := s.transport.Send(s.conn, frame); err != nil {
		s.log.Warn("Send failed", "kind", msg.Kind(), "error", err)
		return fmt.Errorf("%w: %w", errors.ErrSendFailure, err)
	}
	return nil
}

func (s *Session) receive(payload []byte) {
	msg, err := s.downstream.Decode(payload)
	if err != nil {
		s.log.Warn("Dropping undecodable frame", "error", err)
		return
	}
	chat, ok := msg.(domain.Chat)
	if !ok {
		s.log.Debug("Ignoring non chat frame", "kind", msg.Kind())
		return
	}
	s.emit(event.ChatReceived{ID: uuid.New(), Conn: s.conn, Sender: chat.Name, Text: chat.Text, At: s.now()})
}

// lost clears the handle before notifying, so nothing can use it afterwards.
func (s *Session) lost(reason string) {
	s.conn = domain.NoConn
	s.setState(Disconnected)
	s.notice(reason)
}

func (s *Session) setState(to State) {
	if s.state == to {
		return
	}
	from := s.state
	s.state = to
	s.log.Debug("Session state changed", "from", from, "to", to)
	s.emit(event.SessionStateChanged{From: from.String(), To: to.String(), At: s.now()})
}

func (s *Session) notice(text string) {
	s.emit(event.Notice{Text: text, At: s.now()})
}

func (s *Session) emit(evt event.DomainEvent) {
	if s.events == nil {
		return
	}
	select {
	case s.events <- evt:
	default:
		s.log.Warn("Event channel full, event lost", "event", evt.Name())
	}
}
