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
)

var _ contract.ClientTransport = (*Client)(nil)

type dial struct {
	id       domain.ConnID
	sock     *net.UDPConn
	accepted bool
	live     bool
	closing  bool
	released bool
	lastSeen time.Time
	inbox    queue
	done     chan struct{}
}

// Client is the dialing side. Connect returns at once; the handshake is
// reported later as a Connect event, or as a Disconnect event when the relay
// refuses or never answers within the timeout.
type Client struct {
	log     *slog.Logger
	timeout time.Duration

	mu     sync.Mutex
	nextID domain.ConnID
	conns  map[domain.ConnID]*dial
	wg     sync.WaitGroup
}

func NewClient(log *slog.Logger, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{log: log, timeout: timeout, conns: make(map[domain.ConnID]*dial)}
}

func (c *Client) Connect(address string) (domain.ConnID, error) {
	raddr, err := net.ResolveUDPAddr("udp", address)
	if err != nil {
		return domain.NoConn, fmt.Errorf("resolving %s: %w", address, err)
	}
	sock, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return domain.NoConn, fmt.Errorf("dialing %s: %w", address, err)
	}

	c.mu.Lock()
	c.nextID++
	d := &dial{id: c.nextID, sock: sock, lastSeen: time.Now(), done: make(chan struct{})}
	c.conns[d.id] = d
	c.mu.Unlock()

	if _, err := sock.Write(datagram(ctrlConnect, nil)); err != nil {
		c.log.Debug("Connect request not sent, will retry", "address", address, "error", err)
	}
	c.wg.Add(2)
	go c.read(d)
	go c.keepalive(d)
	return d.id, nil
}

func (c *Client) read(d *dial) {
	defer c.wg.Done()
	buf := make([]byte, maxDatagram)
	for {
		n, err := d.sock.Read(buf)
		if err != nil {
			if stderrors.Is(err, net.ErrClosed) {
				return
			}
			// a connected UDP socket reports ICMP errors here, the relay is gone
			c.mu.Lock()
			c.log.Debug("UDP read failed", "conn", d.id, "error", err)
			c.hangUp(d)
			c.mu.Unlock()
			return
		}
		if n == 0 {
			continue
		}
		c.handle(d, buf[0], slices.Clone(buf[1:n]))
	}
}

func (c *Client) handle(d *dial, ctrl byte, payload []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if d.closing {
		return
	}
	d.lastSeen = time.Now()
	switch ctrl {
	case ctrlAccept:
		if !d.accepted {
			d.accepted = true
			d.live = true
			d.inbox.push(domain.NetworkConnect, nil)
		}
	case ctrlData:
		if d.live {
			d.inbox.push(domain.NetworkData, payload)
		}
	case ctrlPing:
	case ctrlDisconnect:
		c.hangUp(d)
	default:
		c.log.Debug("Unknown control byte", "conn", d.id, "control", ctrl)
	}
}

func (c *Client) hangUp(d *dial) {
	if d.closing {
		return
	}
	d.closing = true
	d.inbox.push(domain.NetworkDisconnect, nil)
}

func (c *Client) keepalive(d *dial) {
	defer c.wg.Done()
	ticker := time.NewTicker(keepaliveEvery(c.timeout))
	defer ticker.Stop()
	for {
		select {
		case <-d.done:
			return
		case now := <-ticker.C:
			c.tick(d, now)
		}
	}
}

func (c *Client) tick(d *dial, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if d.closing || d.released {
		return
	}
	if now.Sub(d.lastSeen) > c.timeout {
		c.log.Info("Relay not answering", "conn", d.id, "accepted", d.accepted)
		c.hangUp(d)
		return
	}
	ctrl := ctrlPing
	if !d.accepted {
		ctrl = ctrlConnect
	}
	_, _ = d.sock.Write(datagram(ctrl, nil))
}

// release stops the goroutines of d and forgets it. Caller holds c.mu.
func (c *Client) release(d *dial) {
	if d.released {
		return
	}
	d.released = true
	d.live = false
	delete(c.conns, d.id)
	close(d.done)
	_ = d.sock.Close()
}

func (c *Client) PopEvent(conn domain.ConnID) domain.NetworkEvent {
	c.mu.Lock()
	defer c.mu.Unlock()

	d, ok := c.conns[conn]
	if !ok {
		return domain.NetworkEvent{Type: domain.NetworkEmpty}
	}
	evt := d.inbox.pop()
	if evt.Type == domain.NetworkDisconnect {
		c.release(d)
	}
	return evt
}

func (c *Client) Send(conn domain.ConnID, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	d, ok := c.conns[conn]
	if !ok {
		return errors.ErrUnknownConnection
	}
	if !d.live || d.closing {
		return fmt.Errorf("%s is not established: %w", conn, errors.ErrSendFailure)
	}
	if _, err := d.sock.Write(datagram(ctrlData, payload)); err != nil {
		return fmt.Errorf("%s: %w: %w", conn, errors.ErrSendFailure, err)
	}
	return nil
}

func (c *Client) IsLive(conn domain.ConnID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.conns[conn]
	return ok && d.live
}

func (c *Client) Disconnect(conn domain.ConnID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	d, ok := c.conns[conn]
	if !ok {
		return errors.ErrUnknownConnection
	}
	_, _ = d.sock.Write(datagram(ctrlDisconnect, nil))
	c.release(d)
	return nil
}

func (c *Client) Close() error {
	c.mu.Lock()
	for _, d := range c.conns {
		if d.live {
			_, _ = d.sock.Write(datagram(ctrlDisconnect, nil))
		}
		c.release(d)
	}
	c.mu.Unlock()
	c.wg.Wait()
	return nil
}
