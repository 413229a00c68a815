//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"chat-relay/domain"
	"chat-relay/domain/event"
	"context"
	"reflect"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

type WorkerName string

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// Transport is the listening side of a connection-oriented datagram
// transport. Every call is a poll: it returns immediately.
// Accept returns false when no connection is pending, PopEvent returns a
// NetworkEmpty event when the connection has nothing queued.
type Transport interface {
	Bind(address string) error
	Listen() error
	Accept() (domain.ConnID, bool)
	PopEvent(conn domain.ConnID) domain.NetworkEvent
	Send(conn domain.ConnID, payload []byte) error
	IsLive(conn domain.ConnID) bool
	Disconnect(conn domain.ConnID) error
	Close() error
}

// ClientTransport is the dialing side. Connect returns a handle right away;
// a NetworkConnect event is popped once the remote end accepted it.
type ClientTransport interface {
	Connect(address string) (domain.ConnID, error)
	PopEvent(conn domain.ConnID) domain.NetworkEvent
	Send(conn domain.ConnID, payload []byte) error
	IsLive(conn domain.ConnID) bool
	Disconnect(conn domain.ConnID) error
	Close() error
}

type EventSink interface {
	Consume(ctx context.Context, e event.DomainEvent) error
}

type IRegistry interface {
	Register(conn domain.ConnID, name domain.DisplayName) (domain.DisplayName, bool)
	Unregister(conn domain.ConnID) (domain.DisplayName, bool)
	Lookup(conn domain.ConnID) (domain.DisplayName, bool)
	AllLive() []domain.Peer
	Len() int
}

// Pumpable runs one cycle of work. Cycles never overlap.
type Pumpable interface {
	Update(ctx context.Context) error
}
