package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/errors"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var _ contract.Worker = (*Client)(nil)

// Client posts chat lines over HTTP and listens to the broadcast stream.
// Lines the client sent itself are filtered out of the stream.
type Client struct {
	log     *slog.Logger
	baseURL string
	http    *http.Client
	conn    *websocket.Conn
	dedup   *Dedup
	events  chan<- event.DomainEvent
}

// Dial opens the websocket side of the bridge at baseURL (http://host:port).
func Dial(ctx context.Context, log *slog.Logger, baseURL string, dedupSize int, events chan<- event.DomainEvent) (*Client, error) {
	baseURL = strings.TrimSuffix(baseURL, "/")
	wsURL := "ws" + strings.TrimPrefix(baseURL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", wsURL, err)
	}
	return &Client{
		log:     log,
		baseURL: baseURL,
		http:    &http.Client{Timeout: 5 * time.Second},
		conn:    conn,
		dedup:   NewDedup(dedupSize),
		events:  events,
	}, nil
}

func (c *Client) Send(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return errors.ErrEmptyMessage
	}
	body, err := json.Marshal(MessageRequest{Message: text})
	if err != nil {
		return err
	}
	// Remember before posting: the echo can arrive before the response.
	c.dedup.Remember([]byte(text))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/message", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", errors.ErrSendFailure, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		var failure struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&failure)
		return fmt.Errorf("%w: status %d %s", errors.ErrSendFailure, resp.StatusCode, failure.Error)
	}
	return nil
}

// Listen reads the broadcast stream until the connection or ctx ends.
func (c *Client) Listen(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		_ = c.conn.Close()
	}()
	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("%w: %w", errors.ErrTransportClose, err)
		}
		if c.dedup.Seen(msg) {
			c.log.Debug("Own message echoed, skipping", "size", len(msg))
			continue
		}
		c.emit(event.ChatReceived{ID: uuid.New(), Text: domain.ChatPayload(msg), At: time.Now()})
	}
}

// Run makes the client a supervised worker. A lost stream is reported once
// and not retried.
func (c *Client) Run(ctx context.Context) error {
	if err := c.Listen(ctx); err != nil {
		c.log.Warn("Bridge stream closed", "error", err)
		c.emit(event.Notice{Text: "Connection lost.", At: time.Now()})
	}
	return nil
}

func (c *Client) emit(e event.DomainEvent) {
	select {
	case c.events <- e:
	default:
		c.log.Debug("Event channel full, dropping event", "event", e.Name())
	}
}

func (c *Client) Close() error {
	_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return c.conn.Close()
}
