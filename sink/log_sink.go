package sink

import (
	"chat-relay/contract"
	"chat-relay/domain/event"
	"context"
	"log/slog"
)

var _ contract.EventSink = LogSink{}

// LogSink writes every event as one structured log line.
type LogSink struct {
	log *slog.Logger
}

func NewLogSink(log *slog.Logger) LogSink {
	return LogSink{log: log}
}

func (s LogSink) Consume(ctx context.Context, e event.DomainEvent) error {
	switch evt := e.(type) {
	case event.PeerConnected:
		s.log.InfoContext(ctx, "Peer connected", "conn", evt.Conn)
	case event.PeerRegistered:
		s.log.InfoContext(ctx, "Peer registered", "conn", evt.Conn, "name", evt.Peer, "previous", evt.Previous)
	case event.ChatReceived:
		s.log.InfoContext(ctx, "Chat", "id", evt.ID, "from", evt.Sender, "text", evt.Text)
	case event.PeerDisconnected:
		s.log.InfoContext(ctx, "Peer disconnected", "conn", evt.Conn, "name", evt.Peer)
	case event.MessageDropped:
		s.log.WarnContext(ctx, "Message dropped", "conn", evt.Conn, "error", evt.Err)
	default:
		s.log.DebugContext(ctx, e.Name(), "at", e.OccurredAt())
	}
	return nil
}
