// Package memory is an in-process datagram transport. Nothing moves until a
// poll call (Accept, PopEvent) is made, which makes update cycles fully
// deterministic in tests.
package memory

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/errors"
	"fmt"
	"slices"
	"sync"
)

var (
	_ contract.Transport       = (*Server)(nil)
	_ contract.ClientTransport = (*Client)(nil)
)

// Network links servers and clients by address.
type Network struct {
	mu        sync.Mutex
	nextID    domain.ConnID
	listeners map[string]*Server
}

func NewNetwork() *Network {
	return &Network{listeners: make(map[string]*Server)}
}

type endpoint struct {
	id       domain.ConnID
	live     bool
	failSend bool
	inbox    []domain.NetworkEvent
	peer     *endpoint
}

func (n *Network) newEndpoint() *endpoint {
	n.nextID++
	return &endpoint{id: n.nextID}
}

// hangUp queues a disconnect for the peer of e and cuts the link.
func hangUp(e *endpoint) {
	e.live = false
	e.inbox = nil
	if p := e.peer; p != nil {
		p.inbox = append(p.inbox, domain.NetworkEvent{Type: domain.NetworkDisconnect})
		p.peer = nil
	}
	e.peer = nil
}

func pop(e *endpoint) domain.NetworkEvent {
	if e == nil || len(e.inbox) == 0 {
		return domain.NetworkEvent{Type: domain.NetworkEmpty}
	}
	evt := e.inbox[0]
	e.inbox = e.inbox[1:]
	if evt.Type == domain.NetworkDisconnect {
		e.live = false
	}
	return evt
}

func send(e *endpoint, payload []byte) error {
	if e == nil {
		return errors.ErrUnknownConnection
	}
	if !e.live || e.peer == nil {
		return fmt.Errorf("%s is closed: %w", e.id, errors.ErrSendFailure)
	}
	if e.failSend {
		return fmt.Errorf("%s: injected failure: %w", e.id, errors.ErrSendFailure)
	}
	e.peer.inbox = append(e.peer.inbox, domain.NetworkEvent{
		Type:    domain.NetworkData,
		Payload: slices.Clone(payload),
	})
	return nil
}

// Server is the listening side.
type Server struct {
	net       *Network
	address   string
	bound     bool
	listening bool
	pending   []*endpoint
	conns     map[domain.ConnID]*endpoint
}

func (n *Network) NewServer() *Server {
	return &Server{net: n, conns: make(map[domain.ConnID]*endpoint)}
}

func (s *Server) Bind(address string) error {
	s.net.mu.Lock()
	defer s.net.mu.Unlock()

	if _, taken := s.net.listeners[address]; taken {
		return fmt.Errorf("address %s already in use: %w", address, errors.ErrBindFailure)
	}
	s.address = address
	s.bound = true
	s.net.listeners[address] = s
	return nil
}

func (s *Server) Listen() error {
	s.net.mu.Lock()
	defer s.net.mu.Unlock()

	if !s.bound {
		return fmt.Errorf("listen before bind: %w", errors.ErrInvalidState)
	}
	s.listening = true
	return nil
}

func (s *Server) Accept() (domain.ConnID, bool) {
	s.net.mu.Lock()
	defer s.net.mu.Unlock()

	for len(s.pending) > 0 {
		e := s.pending[0]
		s.pending = s.pending[1:]
		if e.peer == nil {
			// the client gave up before being accepted
			continue
		}
		e.live = true
		e.peer.live = true
		e.peer.inbox = append(e.peer.inbox, domain.NetworkEvent{Type: domain.NetworkConnect})
		s.conns[e.id] = e
		return e.id, true
	}
	return domain.NoConn, false
}

func (s *Server) PopEvent(conn domain.ConnID) domain.NetworkEvent {
	s.net.mu.Lock()
	defer s.net.mu.Unlock()
	return pop(s.conns[conn])
}

func (s *Server) Send(conn domain.ConnID, payload []byte) error {
	s.net.mu.Lock()
	defer s.net.mu.Unlock()
	return send(s.conns[conn], payload)
}

func (s *Server) IsLive(conn domain.ConnID) bool {
	s.net.mu.Lock()
	defer s.net.mu.Unlock()
	e, ok := s.conns[conn]
	return ok && e.live
}

func (s *Server) Disconnect(conn domain.ConnID) error {
	s.net.mu.Lock()
	defer s.net.mu.Unlock()

	e, ok := s.conns[conn]
	if !ok {
		return errors.ErrUnknownConnection
	}
	hangUp(e)
	delete(s.conns, conn)
	return nil
}

// Drop simulates losing a peer without any event on the server side: the
// connection simply stops being live.
func (s *Server) Drop(conn domain.ConnID) {
	s.net.mu.Lock()
	defer s.net.mu.Unlock()
	if e, ok := s.conns[conn]; ok {
		hangUp(e)
	}
}

// FailSend makes every Send to conn fail until reset.
func (s *Server) FailSend(conn domain.ConnID, fail bool) {
	s.net.mu.Lock()
	defer s.net.mu.Unlock()
	if e, ok := s.conns[conn]; ok {
		e.failSend = fail
	}
}

func (s *Server) Close() error {
	s.net.mu.Lock()
	defer s.net.mu.Unlock()

	for id, e := range s.conns {
		hangUp(e)
		delete(s.conns, id)
	}
	for _, e := range s.pending {
		hangUp(e)
	}
	s.pending = nil
	if s.bound && s.net.listeners[s.address] == s {
		delete(s.net.listeners, s.address)
	}
	s.bound, s.listening = false, false
	return nil
}

// Client is the dialing side.
type Client struct {
	net   *Network
	conns map[domain.ConnID]*endpoint
}

func (n *Network) NewClient() *Client {
	return &Client{net: n, conns: make(map[domain.ConnID]*endpoint)}
}

// Connect always hands back a handle. When nobody listens on address, the
// handle's first event is a disconnect, like a handshake timing out.
func (c *Client) Connect(address string) (domain.ConnID, error) {
	c.net.mu.Lock()
	defer c.net.mu.Unlock()

	local := c.net.newEndpoint()
	c.conns[local.id] = local

	srv, ok := c.net.listeners[address]
	if !ok || !srv.listening {
		local.inbox = append(local.inbox, domain.NetworkEvent{Type: domain.NetworkDisconnect})
		return local.id, nil
	}
	remote := c.net.newEndpoint()
	local.peer, remote.peer = remote, local
	srv.pending = append(srv.pending, remote)
	return local.id, nil
}

func (c *Client) PopEvent(conn domain.ConnID) domain.NetworkEvent {
	c.net.mu.Lock()
	defer c.net.mu.Unlock()
	return pop(c.conns[conn])
}

func (c *Client) Send(conn domain.ConnID, payload []byte) error {
	c.net.mu.Lock()
	defer c.net.mu.Unlock()
	return send(c.conns[conn], payload)
}

func (c *Client) IsLive(conn domain.ConnID) bool {
	c.net.mu.Lock()
	defer c.net.mu.Unlock()
	e, ok := c.conns[conn]
	return ok && e.live
}

func (c *Client) Disconnect(conn domain.ConnID) error {
	c.net.mu.Lock()
	defer c.net.mu.Unlock()

	e, ok := c.conns[conn]
	if !ok {
		return errors.ErrUnknownConnection
	}
	hangUp(e)
	delete(c.conns, conn)
	return nil
}

func (c *Client) FailSend(conn domain.ConnID, fail bool) {
	c.net.mu.Lock()
	defer c.net.mu.Unlock()
	if e, ok := c.conns[conn]; ok {
		e.failSend = fail
	}
}

func (c *Client) Close() error {
	c.net.mu.Lock()
	defer c.net.mu.Unlock()
	for id, e := range c.conns {
		hangUp(e)
		delete(c.conns, id)
	}
	return nil
}
