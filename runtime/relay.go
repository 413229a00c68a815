// Package runtime holds the relay side of the chat: the connection registry
// and the engine that accepts, drains and broadcasts once per update cycle.
package runtime

import (
	"chat-relay/codec"
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"chat-relay/moderation"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

var _ contract.Pumpable = (*Relay)(nil)

type State int

const (
	StateIdle State = iota
	StateBound
	StateListening
	StateRunning
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateBound:
		return "bound"
	case StateListening:
		return "listening"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Stats is safe to read from any goroutine.
type Stats struct {
	LiveConnections int
	RegisteredPeers int
	Relayed         uint64
	Dropped         uint64
	SendFailures    uint64
}

// Relay is the server role. Update must never run concurrently with itself;
// the pump worker guarantees that.
//
// Each chat line is sent to every live connection, so one cycle costs
// O(messages × connections) sends. There is no batching or backpressure.
type Relay struct {
	log        *slog.Logger
	transport  contract.Transport
	registry   contract.IRegistry
	events     chan event.DomainEvent
	upstream   codec.Codec
	downstream codec.Codec
	moderator  *moderation.Moderator
	maxEvents  int
	now        func() time.Time

	stateMu sync.RWMutex
	state   State

	live []domain.ConnID // accept order
	dead map[domain.ConnID]struct{}

	liveCount    atomic.Int64
	relayed      atomic.Uint64
	dropped      atomic.Uint64
	sendFailures atomic.Uint64
}

// NewRelay builds an idle relay. events may be nil; maxEventsPerConn bounds
// how many events a single connection may have drained per cycle, 0 drains
// until the transport reports nothing pending.
func NewRelay(log *slog.Logger, transport contract.Transport, registry contract.IRegistry,
	events chan event.DomainEvent, maxEventsPerConn int) *Relay {
	return &Relay{
		log:        log,
		transport:  transport,
		registry:   registry,
		events:     events,
		upstream:   codec.New(codec.Upstream),
		downstream: codec.New(codec.Downstream),
		maxEvents:  maxEventsPerConn,
		now:        func() time.Time { return time.Now().UTC() },
		dead:       make(map[domain.ConnID]struct{}),
	}
}

// WithModerator censors chat text before it is broadcast.
func (r *Relay) WithModerator(m *moderation.Moderator) *Relay {
	r.moderator = m
	return r
}

func (r *Relay) WithClock(now func() time.Time) *Relay {
	r.now = now
	return r
}

func (r *Relay) State() State {
	r.stateMu.RLock()
	defer r.stateMu.RUnlock()
	return r.state
}

func (r *Relay) setState(s State) {
	r.stateMu.Lock()
	from := r.state
	r.state = s
	r.stateMu.Unlock()
	if from != s {
		r.log.Debug("Relay state changed", "from", from, "to", s)
	}
}

// Start binds and listens on address. A bind or listen failure is fatal and
// leaves the relay stopped.
func (r *Relay) Start(address string) error {
	if st := r.State(); st != StateIdle {
		return fmt.Errorf("start from %s: %w", st, errors.ErrInvalidState)
	}
	if err := r.transport.Bind(address); err != nil {
		r.setState(StateStopped)
		r.log.Error("Could not bind", "address", address, "error", err)
		return fmt.Errorf("%w on %s: %w", errors.ErrBindFailure, address, err)
	}
	r.setState(StateBound)
	if err := r.transport.Listen(); err != nil {
		r.setState(StateStopped)
		_ = r.transport.Close()
		r.log.Error("Could not listen", "address", address, "error", err)
		return fmt.Errorf("%w: listen on %s: %w", errors.ErrBindFailure, address, err)
	}
	r.setState(StateListening)
	r.log.Info("Relay listening", "address", address)
	return nil
}

// Update runs one cycle: accept, sweep dead connections, drain every live
// connection, then purge whatever disconnected during the drain.
func (r *Relay) Update(ctx context.Context) error {
	switch st := r.State(); st {
	case StateListening:
		r.setState(StateRunning)
	case StateRunning:
	default:
		return fmt.Errorf("update in %s: %w", st, errors.ErrInvalidState)
	}

	r.acceptPending()
	r.sweep()
	for _, conn := range r.live {
		if err := ctx.Err(); err != nil {
			return err
		}
		if r.isTarget(conn) {
			r.drain(conn)
		}
	}
	r.sweep()
	r.liveCount.Store(int64(len(r.live)))
	return nil
}

// Stop closes the transport and forgets every connection. It is idempotent.
func (r *Relay) Stop() error {
	if r.State() == StateStopped {
		return nil
	}
	r.setState(StateStopped)
	for _, conn := range r.live {
		r.registry.Unregister(conn)
	}
	r.live = nil
	clear(r.dead)
	r.liveCount.Store(0)
	r.log.Info("Relay stopped")
	return r.transport.Close()
}

func (r *Relay) Stats() Stats {
	return Stats{
		LiveConnections: int(r.liveCount.Load()),
		RegisteredPeers: r.registry.Len(),
		Relayed:         r.relayed.Load(),
		Dropped:         r.dropped.Load(),
		SendFailures:    r.sendFailures.Load(),
	}
}

func (r *Relay) acceptPending() {
	for {
		conn, ok := r.transport.Accept()
		if !ok {
			return
		}
		r.live = append(r.live, conn)
		r.log.Info("New connection accepted", "conn", conn)
		r.emit(event.PeerConnected{Conn: conn, At: r.now()})
	}
}

func (r *Relay) isTarget(conn domain.ConnID) bool {
	if _, dead := r.dead[conn]; dead {
		return false
	}
	return r.transport.IsLive(conn)
}

// sweep removes connections that are no longer live. The identity used for
// cleanup is the ConnID captured at accept time, never a field of the
// connection that the transport may already have cleared.
func (r *Relay) sweep() {
	removed := false
	r.live = lo.Filter(r.live, func(conn domain.ConnID, _ int) bool {
		if r.isTarget(conn) {
			return true
		}
		delete(r.dead, conn)
		name, registered := r.registry.Unregister(conn)
		if registered {
			r.log.Info("User disconnected", "conn", conn, "name", name)
		} else {
			r.log.Info("Connection closed before registering", "conn", conn)
		}
		r.emit(event.PeerDisconnected{Conn: conn, Peer: name, At: r.now()})
		removed = true
		return false
	})
	if removed {
		r.logRoster()
	}
}

func (r *Relay) drain(conn domain.ConnID) {
	for n := 0; r.maxEvents <= 0 || n < r.maxEvents; n++ {
		evt := r.transport.PopEvent(conn)
		switch evt.Type {
		case domain.NetworkEmpty:
			return
		case domain.NetworkData:
			r.handleData(conn, evt.Payload)
		case domain.NetworkDisconnect:
			// No broadcast reaches conn from here on, even within this cycle.
			r.dead[conn] = struct{}{}
			return
		default:
			r.log.Debug("Ignoring network event", "conn", conn, "type", evt.Type)
		}
	}
	r.log.Debug("Drain bound reached, leaving the rest for next cycle", "conn", conn, "max", r.maxEvents)
}

func (r *Relay) handleData(conn domain.ConnID, payload []byte) {
	msg, err := r.upstream.Decode(payload)
	if err != nil {
		r.drop(conn, fmt.Errorf("decode: %w", err))
		return
	}
	switch m := msg.(type) {
	case domain.Register:
		previous, existed := r.registry.Register(conn, m.Name)
		if existed {
			r.log.Info("User renamed", "conn", conn, "from", previous, "to", m.Name)
		} else {
			r.log.Info("User registered", "conn", conn, "name", m.Name)
		}
		r.emit(event.PeerRegistered{Conn: conn, Peer: m.Name, Previous: previous, At: r.now()})
		r.logRoster()
	case domain.Chat:
		sender, ok := r.registry.Lookup(conn)
		if !ok {
			r.drop(conn, errors.ErrUnregisteredSender)
			return
		}
		text := m.Text
		if r.moderator != nil {
			text = r.moderator.Censor(text)
		}
		r.log.Debug("Chat message", "conn", conn, "from", sender, "text", text)
		if r.broadcast(conn, domain.Chat{Name: sender, Text: text}) {
			r.relayed.Add(1)
			r.emit(event.ChatReceived{ID: uuid.New(), Conn: conn, Sender: sender, Text: text, At: r.now()})
		}
	}
}

// broadcast sends chat to every live connection, the sender included.
// A failing peer is logged and skipped.
func (r *Relay) broadcast(from domain.ConnID, chat domain.Chat) bool {
	frame, err := r.downstream.Encode(chat)
	if err != nil {
		r.drop(from, fmt.Errorf("encode broadcast from %s: %w", chat.Name, err))
		return false
	}
	for _, peer := range r.live {
		if !r.isTarget(peer) {
			continue
		}
		if err := r.transport.Send(peer, frame); err != nil {
			r.sendFailures.Add(1)
			r.log.Warn("Broadcast send failed", "conn", peer, "error", fmt.Errorf("%w: %w", errors.ErrSendFailure, err))
		}
	}
	return true
}

func (r *Relay) drop(conn domain.ConnID, err error) {
	r.dropped.Add(1)
	r.log.Warn("Message dropped", "conn", conn, "error", err)
	r.emit(event.MessageDropped{Conn: conn, Err: err, At: r.now()})
}

func (r *Relay) emit(evt event.DomainEvent) {
	if r.events == nil {
		return
	}
	select {
	case r.events <- evt:
	default:
		r.log.Debug("Event channel full, event lost", "event", evt.Name())
	}
}

func (r *Relay) logRoster() {
	if !r.log.Enabled(context.Background(), slog.LevelDebug) {
		return
	}
	names := lo.Map(r.registry.AllLive(), func(p domain.Peer, _ int) string { return string(p.Name) })
	r.log.Debug("Connected users", "count", len(names), "names", names)
}
