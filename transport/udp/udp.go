// Package udp carries relay frames over UDP. Every datagram starts with a
// control byte; data datagrams carry one codec frame after it. A background
// reader files datagrams into per-connection queues so that the poll calls
// (Accept, PopEvent, Send) never block the update cycle.
package udp

import (
	"chat-relay/domain"
	"time"
)

const (
	ctrlConnect byte = iota + 1
	ctrlAccept
	ctrlData
	ctrlPing
	ctrlDisconnect
)

const (
	DefaultTimeout = 10 * time.Second
	maxDatagram    = 2048
)

func datagram(ctrl byte, payload []byte) []byte {
	b := make([]byte, 0, 1+len(payload))
	b = append(b, ctrl)
	return append(b, payload...)
}

// queue is the per-connection inbox, guarded by the owner's mutex.
type queue []domain.NetworkEvent

func (q *queue) push(t domain.NetworkEventType, payload []byte) {
	*q = append(*q, domain.NetworkEvent{Type: t, Payload: payload})
}

func (q *queue) pop() domain.NetworkEvent {
	if len(*q) == 0 {
		return domain.NetworkEvent{Type: domain.NetworkEmpty}
	}
	evt := (*q)[0]
	*q = (*q)[1:]
	return evt
}

func keepaliveEvery(timeout time.Duration) time.Duration {
	return max(timeout/3, time.Millisecond)
}
