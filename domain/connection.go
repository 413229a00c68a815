package domain

import "fmt"

// ConnID identifies one transport connection. It is assigned at accept time
// and never reused by the same transport, so it stays valid as a map key
// after the connection itself is gone.
type ConnID uint32

// NoConn is the zero handle, never issued by a transport.
const NoConn ConnID = 0

func (c ConnID) String() string {
	return fmt.Sprintf("conn-%d", uint32(c))
}

func (c ConnID) IsSet() bool { return c != NoConn }

// NetworkEventType mirrors what a datagram transport reports per connection.
type NetworkEventType int

const (
	NetworkEmpty NetworkEventType = iota
	NetworkConnect
	NetworkData
	NetworkDisconnect
)

func (t NetworkEventType) String() string {
	switch t {
	case NetworkEmpty:
		return "empty"
	case NetworkConnect:
		return "connect"
	case NetworkData:
		return "data"
	case NetworkDisconnect:
		return "disconnect"
	default:
		return "unknown"
	}
}

// NetworkEvent is one event popped from a transport. Payload is only set for
// NetworkData and is owned by the caller.
type NetworkEvent struct {
	Type    NetworkEventType
	Payload []byte
}

// Peer is one registered connection as seen by the relay.
type Peer struct {
	Conn ConnID
	Name DisplayName
}
