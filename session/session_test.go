package session

import (
	"chat-relay/codec"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"chat-relay/mocks"
	"chat-relay/transport/memory"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

const relayAddress = "127.0.0.1:9000"

// fixture is a session talking to a bare memory server standing in for the relay.
type fixture struct {
	t       *testing.T
	srv     *memory.Server
	conn    domain.ConnID // server side handle
	session *Session
	events  chan event.DomainEvent
}

func newFixture(t *testing.T, name string) *fixture {
	t.Helper()
	req := require.New(t)
	n := memory.NewNetwork()
	srv := n.NewServer()
	req.NoError(srv.Bind(relayAddress))
	req.NoError(srv.Listen())

	events := make(chan event.DomainEvent, 64)
	s, err := New(logs.GetLoggerFromLevel(slog.LevelDebug), n.NewClient(), name, events)
	req.NoError(err)
	s.WithClock(func() time.Time { return time.Date(2024, 5, 1, 13, 4, 5, 0, time.UTC) })
	return &fixture{t: t, srv: srv, session: s, events: events}
}

// connected runs the handshake up to the Connected state.
func (f *fixture) connected() *fixture {
	f.t.Helper()
	req := require.New(f.t)
	req.NoError(f.session.Connect(relayAddress))
	conn, ok := f.srv.Accept()
	req.True(ok)
	f.conn = conn
	req.NoError(f.session.Update(context.Background()))
	req.Equal(Connected, f.session.State())
	return f
}

// received decodes every frame the server got from the session.
func (f *fixture) received() []domain.Message {
	f.t.Helper()
	var out []domain.Message
	for {
		evt := f.srv.PopEvent(f.conn)
		if evt.Type != domain.NetworkData {
			return out
		}
		msg, err := codec.New(codec.Upstream).Decode(evt.Payload)
		require.NoError(f.t, err)
		out = append(out, msg)
	}
}

func (f *fixture) notices() []string {
	var out []string
	for {
		select {
		case evt := <-f.events:
			if n, ok := evt.(event.Notice); ok {
				out = append(out, n.Text)
			}
		default:
			return out
		}
	}
}

func (f *fixture) drainEvents() []event.DomainEvent {
	var out []event.DomainEvent
	for {
		select {
		case evt := <-f.events:
			out = append(out, evt)
		default:
			return out
		}
	}
}

func TestNew_Rejects_Invalid_Name(t *testing.T) {
	_, err := New(slog.Default(), memory.NewNetwork().NewClient(), "   ", nil)
	require.ErrorIs(t, err, errors.ErrInvalidName)
}

func TestSession_Registers_On_Connect(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, "Guest")

	// When the session dials, it waits for the relay
	req.NoError(f.session.Connect(relayAddress))
	req.Equal(Connecting, f.session.State())
	req.NoError(f.session.Update(context.Background()))
	req.Equal(Connecting, f.session.State())

	// And once accepted it is connected
	conn, ok := f.srv.Accept()
	req.True(ok)
	f.conn = conn
	req.NoError(f.session.Update(context.Background()))
	req.Equal(Connected, f.session.State())

	// Then the relay gets a Register with the current name
	req.Equal([]domain.Message{domain.Register{Name: "Guest"}}, f.received())
	req.Contains(f.notices(), "Connected to server!")
}

func TestSession_Connect_Twice_Is_Refused(t *testing.T) {
	f := newFixture(t, "Guest").connected()

	require.ErrorIs(t, f.session.Connect(relayAddress), errors.ErrInvalidState)
}

func TestSession_SendChat(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, "Alice").connected()
	f.received()

	outcome, err := f.session.SendChat("  hello there  ")

	req.NoError(err)
	req.Equal(Sent, outcome)
	req.Equal([]domain.Message{domain.Chat{Text: "hello there"}}, f.received())
}

func TestSession_SendChat_Ignores_Blank_Input(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, "Alice").connected()
	f.received()

	outcome, err := f.session.SendChat(" \t ")

	req.NoError(err)
	req.Equal(Ignored, outcome)
	req.Empty(f.received())
}

func TestSession_SendChat_Not_Connected_Does_Nothing(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	transport := mocks.NewMockClientTransport(ctrl)
	s, err := New(slog.Default(), transport, "Alice", nil)
	req.NoError(err)

	// Then the transport is never touched
	transport.EXPECT().Send(gomock.Any(), gomock.Any()).Times(0)

	outcome, err := s.SendChat("hi")
	req.ErrorIs(err, errors.ErrNotConnected)
	req.Equal(Ignored, outcome)

	outcome, err = s.SendChat("/name Bob")
	req.ErrorIs(err, errors.ErrNotConnected)
	req.Equal(Ignored, outcome)
	req.Equal(domain.DisplayName("Alice"), s.Name())
}

func TestSession_SendChat_Rejects_Oversize_Locally(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	transport := mocks.NewMockClientTransport(ctrl)
	events := make(chan event.DomainEvent, 8)
	s, err := New(slog.Default(), transport, "Alice", events)
	req.NoError(err)

	// Given a connected session
	register, _ := codec.New(codec.Upstream).Encode(domain.Register{Name: "Alice"})
	transport.EXPECT().Connect(relayAddress).Return(domain.ConnID(5), nil)
	gomock.InOrder(
		transport.EXPECT().PopEvent(domain.ConnID(5)).Return(domain.NetworkEvent{Type: domain.NetworkConnect}),
		transport.EXPECT().PopEvent(domain.ConnID(5)).Return(domain.NetworkEvent{Type: domain.NetworkEmpty}),
	)
	transport.EXPECT().Send(domain.ConnID(5), register).Return(nil).Times(1)
	req.NoError(s.Connect(relayAddress))
	req.NoError(s.Update(context.Background()))

	// When a 600 byte message is submitted
	outcome, err := s.SendChat(strings.Repeat("x", 600))

	// Then it is rejected without any further send
	req.ErrorIs(err, errors.ErrCapacityExceeded)
	req.Equal(Rejected, outcome)
}

func TestSession_Name_Command(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, "Alice").connected()
	f.received()
	f.notices()

	// When the user types /name Bob
	outcome, err := f.session.SendChat("/name Bob")

	// Then the name changes and only a Register goes out
	req.NoError(err)
	req.Equal(Command, outcome)
	req.Equal(domain.DisplayName("Bob"), f.session.Name())
	req.Equal([]domain.Message{domain.Register{Name: "Bob"}}, f.received())
	req.Equal([]string{"Name changed to Bob"}, f.notices())
}

func TestSession_Name_Command_Keeps_Inner_Spaces(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, "Alice").connected()
	f.received()

	_, err := f.session.SendChat("/NAME  Mary Jane ")

	req.NoError(err)
	req.Equal(domain.DisplayName("Mary Jane"), f.session.Name())
}

func TestSession_Name_Command_Invalid(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, "Alice").connected()
	f.received()
	f.notices()

	// Given a name longer than 64 bytes
	outcome, err := f.session.SendChat("/name " + strings.Repeat("b", 65))
	req.Equal(Command, outcome)
	req.ErrorIs(err, errors.ErrInvalidName)
	req.Equal([]string{"Invalid name."}, f.notices())

	// Given no name at all
	_, err = f.session.SendChat("/name")
	req.ErrorIs(err, errors.ErrInvalidName)
	req.Equal([]string{"Usage: /name <new name>"}, f.notices())

	// Then nothing was sent and the name is unchanged
	req.Empty(f.received())
	req.Equal(domain.DisplayName("Alice"), f.session.Name())
}

func TestSession_Name_Command_Accepts_Any_Whitespace(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, "Alice").connected()
	f.received()

	_, err := f.session.SendChat("/name\tBob")

	req.NoError(err)
	req.Equal(domain.DisplayName("Bob"), f.session.Name())
	req.Equal([]domain.Message{domain.Register{Name: "Bob"}}, f.received())
}

func TestSession_Long_Command_Reports_Command_Error(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, "Alice").connected()
	f.received()
	f.notices()

	// When /name carries a 600 byte argument
	outcome, err := f.session.SendChat("/name " + strings.Repeat("b", 600))

	// Then it is handled as a bad name, not as an oversize chat
	req.Equal(Command, outcome)
	req.ErrorIs(err, errors.ErrInvalidName)
	req.Equal([]string{"Invalid name."}, f.notices())
	req.Empty(f.received())
}

func TestSession_SendChat_Rejects_Invalid_UTF8(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, "Alice").connected()
	f.received()
	f.notices()

	outcome, err := f.session.SendChat("caf\xe9")

	req.Equal(Rejected, outcome)
	req.ErrorIs(err, errors.ErrInvalidUTF8)
	req.Equal([]string{"Message is not valid text."}, f.notices())
	req.Empty(f.received())
}

func TestSession_Name_Command_Keeps_Old_Name_When_Send_Fails(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	transport := mocks.NewMockClientTransport(ctrl)
	events := make(chan event.DomainEvent, 8)
	s, err := New(slog.Default(), transport, "Alice", events)
	req.NoError(err)

	// Given a connected session
	register, _ := codec.New(codec.Upstream).Encode(domain.Register{Name: "Alice"})
	rename, _ := codec.New(codec.Upstream).Encode(domain.Register{Name: "Bob"})
	transport.EXPECT().Connect(relayAddress).Return(domain.ConnID(5), nil)
	gomock.InOrder(
		transport.EXPECT().PopEvent(domain.ConnID(5)).Return(domain.NetworkEvent{Type: domain.NetworkConnect}),
		transport.EXPECT().PopEvent(domain.ConnID(5)).Return(domain.NetworkEvent{Type: domain.NetworkEmpty}),
	)
	gomock.InOrder(
		transport.EXPECT().Send(domain.ConnID(5), register).Return(nil),
		transport.EXPECT().Send(domain.ConnID(5), rename).Return(errors.ErrSendFailure),
	)
	req.NoError(s.Connect(relayAddress))
	req.NoError(s.Update(context.Background()))
	for len(events) > 0 {
		<-events
	}

	// When the rename cannot be sent
	outcome, err := s.SendChat("/name Bob")

	// Then the local name still matches the relay and the user is told
	req.Equal(Command, outcome)
	req.ErrorIs(err, errors.ErrSendFailure)
	req.Equal(domain.DisplayName("Alice"), s.Name())
	notice, ok := (<-events).(event.Notice)
	req.True(ok)
	req.Equal("Name not changed, the relay could not be reached.", notice.Text)
}

func TestSession_Local_Commands(t *testing.T) {
	tests := []struct {
		input  string
		notice string
	}{
		{"/help", helpText},
		{"/time", "Client time: 13:04:05"},
		{"/dance", "Unknown command. Type /help for the list."},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			req := require.New(t)
			f := newFixture(t, "Alice").connected()
			f.received()
			f.notices()

			outcome, err := f.session.SendChat(tt.input)

			req.NoError(err)
			req.Equal(Command, outcome)
			req.Equal([]string{tt.notice}, f.notices())
			req.Empty(f.received())
		})
	}
}

func TestSession_Receives_Broadcast(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, "Alice").connected()
	f.drainEvents()

	// Given the relay broadcasts a line from Bob
	frame, err := codec.New(codec.Downstream).Encode(domain.Chat{Name: "Bob", Text: "hey"})
	req.NoError(err)
	req.NoError(f.srv.Send(f.conn, frame))
	// And a frame the session cannot read
	req.NoError(f.srv.Send(f.conn, []byte{0x09}))

	// When the session updates
	req.NoError(f.session.Update(context.Background()))

	// Then a single chat event reaches the UI
	chats := lo.FilterMap(f.drainEvents(), func(e event.DomainEvent, _ int) (event.ChatReceived, bool) {
		c, ok := e.(event.ChatReceived)
		return c, ok
	})
	req.Len(chats, 1)
	req.Equal(domain.DisplayName("Bob"), chats[0].Sender)
	req.Equal(domain.ChatPayload("hey"), chats[0].Text)
}

func TestSession_Disconnect_Event(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, "Alice").connected()
	f.drainEvents()

	// Given the relay drops the connection
	f.srv.Drop(f.conn)

	// When the session updates
	req.NoError(f.session.Update(context.Background()))

	// Then it is disconnected and the UI is told
	req.Equal(Disconnected, f.session.State())
	events := f.drainEvents()
	req.Equal(event.SessionStateChanged{From: "connected", To: "disconnected", At: events[0].OccurredAt()}, events[0])
	req.Equal("Connection lost.", events[1].(event.Notice).Text)

	// And chatting is a no-op again
	outcome, err := f.session.SendChat("hello?")
	req.ErrorIs(err, errors.ErrNotConnected)
	req.Equal(Ignored, outcome)
}

func TestSession_Connect_Without_Relay(t *testing.T) {
	req := require.New(t)
	s, err := New(slog.Default(), memory.NewNetwork().NewClient(), "Alice", nil)
	req.NoError(err)

	req.NoError(s.Connect("10.0.0.1:9000"))
	req.NoError(s.Update(context.Background()))

	req.Equal(Disconnected, s.State())
	req.NoError(s.Connect("10.0.0.1:9000"))
}

func TestSession_Disconnect(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, "Alice").connected()

	req.NoError(f.session.Disconnect())
	req.NoError(f.session.Disconnect())

	req.Equal(Disconnected, f.session.State())
	req.Equal(domain.NetworkData, f.srv.PopEvent(f.conn).Type) // the register
	req.Equal(domain.NetworkDisconnect, f.srv.PopEvent(f.conn).Type)
}
