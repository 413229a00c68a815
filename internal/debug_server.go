package internal

import (
	"chat-relay/domain"
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"time"
)

//go:embed inspect.html
var templatesFS embed.FS

type StatsProvider func() map[string]any
type PeersProvider func() []domain.Peer

type PageData struct {
	Stats map[string]any
	Peers []domain.Peer
}

// DebugHandler serves the inspection page on /inspect and the same data as
// JSON on /inspect.json.
func DebugHandler(stats StatsProvider, peers PeersProvider) http.Handler {
	tmpl := template.Must(template.ParseFS(templatesFS, "inspect.html"))
	page := func() PageData {
		data := PageData{Stats: make(map[string]any)}
		if stats != nil {
			data.Stats = stats()
		}
		if peers != nil {
			data.Peers = peers()
		}
		return data
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/inspect", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_ = tmpl.Execute(w, page())
	})
	mux.HandleFunc("/inspect.json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(page())
	})
	return mux
}

// StartDebugServer serves DebugHandler on port until ctx ends.
func StartDebugServer(ctx context.Context, log *slog.Logger, port int, stats StatsProvider, peers PeersProvider) {
	srv := &http.Server{
		Addr:              fmt.Sprintf("0.0.0.0:%d", port),
		Handler:           DebugHandler(stats, peers),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdown)
	}()
	go func() {
		log.Info("Debug server started", "url", fmt.Sprintf("http://localhost:%d/inspect", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("Debug server failed", "error", err)
		}
	}()
}
