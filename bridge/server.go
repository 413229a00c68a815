// Package bridge is the HTTP/WebSocket variant of the relay: messages posted
// over HTTP are pushed to every connected WebSocket peer. It keeps no
// history and knows nothing about display names.
package bridge

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const maxBodyBytes = 64 << 10

type MessageRequest struct {
	Message string `json:"message" validate:"required"`
}

type peer struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

type Server struct {
	log        *slog.Logger
	upgrader   websocket.Upgrader
	validate   *validator.Validate
	sendBuffer int

	mu    sync.RWMutex
	peers map[string]*peer
}

func NewServer(log *slog.Logger, sendBuffer int) *Server {
	return &Server{
		log: log,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		validate:   validator.New(),
		sendBuffer: sendBuffer,
		peers:      make(map[string]*peer),
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/message", s.handleMessage)
	mux.HandleFunc("/ws", s.handleWebSocket)
	return mux
}

func (s *Server) PeerCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.peers)
}

// Broadcast queues payload for every peer and returns how many got it.
// A peer whose queue is full is disconnected.
func (s *Server) Broadcast(payload []byte) int {
	var slow []string
	delivered := 0

	s.mu.RLock()
	for id, p := range s.peers {
		select {
		case p.send <- payload:
			delivered++
		default:
			slow = append(slow, id)
		}
	}
	s.mu.RUnlock()

	for _, id := range slow {
		s.log.Warn("Dropping slow websocket peer", "peer", id)
		s.unregister(id)
	}
	return delivered
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
	switch r.Method {
	case http.MethodOptions:
		w.WriteHeader(http.StatusNoContent)
		return
	case http.MethodPost:
	default:
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "method not allowed"})
		return
	}

	var req MessageRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid json"})
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "empty message"})
		return
	}
	s.log.Debug("Message received", "message", req.Message)
	delivered := s.Broadcast([]byte(req.Message))
	s.log.Debug("Message broadcast", "peers", delivered)
	writeJSON(w, http.StatusOK, map[string]any{"sent": true})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("Websocket upgrade failed", "error", err)
		return
	}
	p := &peer{id: uuid.NewString(), conn: conn, send: make(chan []byte, s.sendBuffer)}

	s.mu.Lock()
	s.peers[p.id] = p
	total := len(s.peers)
	s.mu.Unlock()
	s.log.Info("Websocket peer connected", "peer", p.id, "total", total)

	go s.write(p)
	s.read(p)
}

// read only watches for the peer going away; inbound frames are ignored.
func (s *Server) read(p *peer) {
	defer s.unregister(p.id)
	for {
		if _, _, err := p.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) write(p *peer) {
	defer p.conn.Close()
	for msg := range p.send {
		if err := p.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			s.log.Debug("Websocket write failed", "peer", p.id, "error", err)
			s.unregister(p.id)
			return
		}
	}
	_ = p.conn.WriteMessage(websocket.CloseMessage, []byte{})
}

func (s *Server) unregister(id string) {
	s.mu.Lock()
	p, ok := s.peers[id]
	if ok {
		delete(s.peers, id)
		close(p.send)
	}
	total := len(s.peers)
	s.mu.Unlock()
	if ok {
		s.log.Info("Websocket peer disconnected", "peer", id, "total", total)
	}
}

// Close disconnects every peer.
func (s *Server) Close() {
	s.mu.RLock()
	ids := make([]string, 0, len(s.peers))
	for id := range s.peers {
		ids = append(ids, id)
	}
	s.mu.RUnlock()
	for _, id := range ids {
		s.unregister(id)
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
