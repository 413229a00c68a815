package sink

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"context"
	"io"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/olekukonko/tablewriter"
)

var _ contract.EventSink = (*RosterSink)(nil)

type rosterEntry struct {
	peer  domain.Peer
	since time.Time
}

// RosterSink keeps its own view of who is registered and prints the table
// of connected users each time it changes.
type RosterSink struct {
	mu      sync.Mutex
	out     io.Writer
	entries []rosterEntry
}

func NewRosterSink(out io.Writer) *RosterSink {
	return &RosterSink{out: out}
}

func (s *RosterSink) Consume(_ context.Context, e event.DomainEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch evt := e.(type) {
	case event.PeerRegistered:
		i := s.indexOf(evt.Conn)
		if i < 0 {
			s.entries = append(s.entries, rosterEntry{peer: domain.Peer{Conn: evt.Conn, Name: evt.Peer}, since: evt.At})
		} else {
			s.entries[i].peer.Name = evt.Peer
		}
	case event.PeerDisconnected:
		i := s.indexOf(evt.Conn)
		if i < 0 {
			return nil
		}
		s.entries = slices.Delete(s.entries, i, i+1)
	default:
		return nil
	}
	s.render()
	return nil
}

func (s *RosterSink) Peers() []domain.Peer {
	s.mu.Lock()
	defer s.mu.Unlock()
	peers := make([]domain.Peer, len(s.entries))
	for i, entry := range s.entries {
		peers[i] = entry.peer
	}
	return peers
}

func (s *RosterSink) indexOf(conn domain.ConnID) int {
	return slices.IndexFunc(s.entries, func(e rosterEntry) bool { return e.peer.Conn == conn })
}

func (s *RosterSink) render() {
	table := tablewriter.NewWriter(s.out)
	table.SetHeader([]string{"#", "Name", "Connection", "Since"})
	table.SetAutoFormatHeaders(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)
	table.SetCaption(true, strconv.Itoa(len(s.entries))+" connected")
	for i, e := range s.entries {
		table.Append([]string{
			strconv.Itoa(i + 1),
			string(e.peer.Name),
			e.peer.Conn.String(),
			e.since.Format(time.TimeOnly),
		})
	}
	table.Render()
}
