package udp

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/errors"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net"
	"slices"
	"sync"
	"time"

	"github.com/samber/lo"
)

var _ contract.Transport = (*Server)(nil)

type link struct {
	id       domain.ConnID
	addr     *net.UDPAddr
	live     bool
	closing  bool
	lastSeen time.Time
	inbox    queue
}

// Server is the relay side. A peer is pending from its first connect
// datagram until Accept hands it an id.
type Server struct {
	log     *slog.Logger
	timeout time.Duration

	mu        sync.Mutex
	sock      *net.UDPConn
	listening bool
	nextID    domain.ConnID
	byAddr    map[string]*link
	conns     map[domain.ConnID]*link
	pending   []*link
	done      chan struct{}
	wg        sync.WaitGroup
}

func NewServer(log *slog.Logger, timeout time.Duration) *Server {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Server{
		log:     log,
		timeout: timeout,
		byAddr:  make(map[string]*link),
		conns:   make(map[domain.ConnID]*link),
	}
}

func (s *Server) Bind(address string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sock != nil {
		return fmt.Errorf("already bound to %s: %w", s.sock.LocalAddr(), errors.ErrInvalidState)
	}
	addr, err := net.ResolveUDPAddr("udp", address)
	if err != nil {
		return fmt.Errorf("resolving %s: %w: %w", address, errors.ErrBindFailure, err)
	}
	sock, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("binding %s: %w: %w", address, errors.ErrBindFailure, err)
	}
	s.sock = sock
	return nil
}

// Addr is the bound local address, nil before Bind.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sock == nil {
		return nil
	}
	return s.sock.LocalAddr()
}

func (s *Server) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sock == nil {
		return fmt.Errorf("listen before bind: %w", errors.ErrInvalidState)
	}
	if s.listening {
		return nil
	}
	s.listening = true
	s.done = make(chan struct{})
	s.wg.Add(2)
	go s.read(s.sock)
	go s.keepalive(s.done)
	return nil
}

func (s *Server) read(sock *net.UDPConn) {
	defer s.wg.Done()
	buf := make([]byte, maxDatagram)
	for {
		n, addr, err := sock.ReadFromUDP(buf)
		if err != nil {
			if stderrors.Is(err, net.ErrClosed) {
				return
			}
			s.log.Debug("UDP read failed", "error", err)
			continue
		}
		if n == 0 {
			continue
		}
		s.handle(addr, buf[0], slices.Clone(buf[1:n]))
	}
}

func (s *Server) handle(addr *net.UDPAddr, ctrl byte, payload []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := addr.String()
	l := s.byAddr[key]
	now := time.Now()
	switch ctrl {
	case ctrlConnect:
		if l == nil {
			l = &link{addr: addr, lastSeen: now}
			s.byAddr[key] = l
			s.pending = append(s.pending, l)
			s.log.Debug("Connection request", "from", key)
			return
		}
		l.lastSeen = now
		if l.live {
			// our accept got lost
			s.write(l.addr, ctrlAccept, nil)
		}
	case ctrlData:
		if l == nil || !l.live || l.closing {
			return
		}
		l.lastSeen = now
		l.inbox.push(domain.NetworkData, payload)
	case ctrlPing:
		if l != nil {
			l.lastSeen = now
		}
	case ctrlDisconnect:
		if l == nil {
			return
		}
		if !l.live {
			delete(s.byAddr, key)
			return
		}
		s.hangUp(l)
	default:
		s.log.Debug("Unknown control byte", "from", key, "control", ctrl)
	}
}

// hangUp queues the disconnect the relay will drain. The address is freed
// at once so that the same peer may reconnect.
func (s *Server) hangUp(l *link) {
	if l.closing {
		return
	}
	l.closing = true
	l.inbox.push(domain.NetworkDisconnect, nil)
	if s.byAddr[l.addr.String()] == l {
		delete(s.byAddr, l.addr.String())
	}
}

func (s *Server) keepalive(done <-chan struct{}) {
	defer s.wg.Done()
	ticker := time.NewTicker(keepaliveEvery(s.timeout))
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case now := <-ticker.C:
			s.tick(now)
		}
	}
}

func (s *Server) tick(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, l := range s.conns {
		if !l.live || l.closing {
			continue
		}
		if now.Sub(l.lastSeen) > s.timeout {
			s.log.Info("Connection timed out", "conn", l.id, "peer", l.addr)
			s.hangUp(l)
			continue
		}
		s.write(l.addr, ctrlPing, nil)
	}
	s.pending = lo.Filter(s.pending, func(l *link, _ int) bool {
		if now.Sub(l.lastSeen) <= s.timeout {
			return true
		}
		if s.byAddr[l.addr.String()] == l {
			delete(s.byAddr, l.addr.String())
		}
		return false
	})
}

func (s *Server) write(addr *net.UDPAddr, ctrl byte, payload []byte) error {
	if s.sock == nil {
		return errors.ErrTransportClose
	}
	_, err := s.sock.WriteToUDP(datagram(ctrl, payload), addr)
	return err
}

func (s *Server) Accept() (domain.ConnID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for len(s.pending) > 0 {
		l := s.pending[0]
		s.pending = s.pending[1:]
		if s.byAddr[l.addr.String()] != l {
			// gave up before being accepted
			continue
		}
		s.nextID++
		l.id = s.nextID
		l.live = true
		s.conns[l.id] = l
		if err := s.write(l.addr, ctrlAccept, nil); err != nil {
			s.log.Debug("Accept not delivered, peer will retry", "conn", l.id, "error", err)
		}
		return l.id, true
	}
	return domain.NoConn, false
}

func (s *Server) PopEvent(conn domain.ConnID) domain.NetworkEvent {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.conns[conn]
	if !ok {
		return domain.NetworkEvent{Type: domain.NetworkEmpty}
	}
	evt := l.inbox.pop()
	if evt.Type == domain.NetworkDisconnect {
		l.live = false
		delete(s.conns, conn)
	}
	return evt
}

func (s *Server) Send(conn domain.ConnID, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.conns[conn]
	if !ok {
		return errors.ErrUnknownConnection
	}
	if !l.live || l.closing {
		return fmt.Errorf("%s is closing: %w", conn, errors.ErrSendFailure)
	}
	if err := s.write(l.addr, ctrlData, payload); err != nil {
		return fmt.Errorf("%s: %w: %w", conn, errors.ErrSendFailure, err)
	}
	return nil
}

func (s *Server) IsLive(conn domain.ConnID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.conns[conn]
	return ok && l.live
}

func (s *Server) Disconnect(conn domain.ConnID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.conns[conn]
	if !ok {
		return errors.ErrUnknownConnection
	}
	_ = s.write(l.addr, ctrlDisconnect, nil)
	l.live = false
	delete(s.conns, conn)
	if s.byAddr[l.addr.String()] == l {
		delete(s.byAddr, l.addr.String())
	}
	return nil
}

// Close tells every live peer goodbye and releases the socket.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.sock == nil {
		s.mu.Unlock()
		return nil
	}
	for _, l := range s.conns {
		if l.live {
			_ = s.write(l.addr, ctrlDisconnect, nil)
		}
	}
	if s.done != nil {
		close(s.done)
		s.done = nil
	}
	err := s.sock.Close()
	s.sock = nil
	s.listening = false
	s.byAddr = make(map[string]*link)
	s.conns = make(map[domain.ConnID]*link)
	s.pending = nil
	s.mu.Unlock()

	s.wg.Wait()
	if err != nil {
		return fmt.Errorf("%w: %w", errors.ErrTransportClose, err)
	}
	return nil
}
