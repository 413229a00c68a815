package main

import (
	"chat-relay/domain/event"
	"chat-relay/internal"
	"chat-relay/moderation"
	"chat-relay/runtime"
	"chat-relay/runtime/workers"
	"chat-relay/sink"
	"chat-relay/transport/udp"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
)

const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Relay terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run keeps every defer on the exit path; main only maps the result to an
// exit code.
func run() (int, error) {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	config, err := internal.LoadRelayConfig()
	if err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	// 2. Relay core
	events := make(chan event.DomainEvent, config.EventBufferSize)
	registry := runtime.NewRegistry()
	transport := udp.NewServer(log, config.ConnectionTimeout)
	relay := runtime.NewRelay(log, transport, registry, events, config.MaxEventsPerConnection)

	words := moderation.ParseWords(config.CensoredWords)
	if config.CensoredWordsDir != "" {
		dict, err := moderation.LoadDictionary(os.DirFS(config.CensoredWordsDir), ".")
		if err != nil {
			return exitConfig, fmt.Errorf("loading %s: %w", config.CensoredWordsDir, err)
		}
		log.Info("Censored dictionaries loaded", "languages", dict.Languages, "words", len(dict.Words))
		words = append(words, dict.Words...)
	}
	if len(words) > 0 {
		mask, _ := internal.CharacterRune(config.CharReplacement)
		moderator, err := moderation.NewModerator(words, mask)
		if err != nil {
			return exitConfig, fmt.Errorf("moderation: %w", err)
		}
		relay.WithModerator(moderator)
		log.Info("Moderation enabled", "words", len(words))
	}

	if err := relay.Start(config.Address()); err != nil {
		return exitRuntime, err
	}
	defer func() {
		if err := relay.Stop(); err != nil {
			log.Warn("Relay stop failed", "error", err)
		}
		log.Info("Relay stopped cleanly")
	}()

	// 3. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if config.DebugPort > 0 {
		internal.StartDebugServer(ctx, log, config.DebugPort, func() map[string]any {
			s := relay.Stats()
			return map[string]any{
				"State":           relay.State().String(),
				"LiveConnections": s.LiveConnections,
				"RegisteredPeers": s.RegisteredPeers,
				"Relayed":         s.Relayed,
				"Dropped":         s.Dropped,
				"SendFailures":    s.SendFailures,
			}
		}, registry.AllLive)
	}

	// 4. Workers
	sup := workers.NewSupervisor(log, config.RestartInterval)
	sup.Add(
		workers.NewPumpWorker(log, relay, config.TickInterval, nil),
		workers.NewEventFanout(log, events, config.SinkTimeout, sink.NewLogSink(log), sink.NewRosterSink(os.Stdout)),
		workers.NewHealthMonitoringWorker(log, relay, config.MetricInterval),
	)

	log.Info("Relay running", "address", config.Address(), "tick", config.TickInterval)
	sup.Run(ctx)
	log.Info("Shutting down gracefully...")
	return exitOK, nil
}
