package main

import (
	"bufio"
	"chat-relay/bridge"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"chat-relay/internal"
	"chat-relay/runtime/workers"
	"chat-relay/session"
	"chat-relay/sink"
	"chat-relay/transport/udp"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

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
		fmt.Fprintf(os.Stderr, "Client terminated with error: %v\n", err)
	}
	os.Exit(code)
}

func run() (int, error) {
	_ = godotenv.Load()
	config, err := internal.LoadClientConfig()
	if err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	// end of input ends the client too
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	events := make(chan event.DomainEvent, config.EventBufferSize)
	sup := workers.NewSupervisor(log, time.Second)
	sup.Add(workers.NewEventFanout(log, events, time.Second, sink.NewConsoleSink(os.Stdout, config.Plain), sink.NewLogSink(log)))

	if config.BridgeURL != "" {
		return runBridge(ctx, cancel, log, config, sup, events)
	}
	return runRelay(ctx, cancel, log, config, sup, events)
}

func runRelay(ctx context.Context, cancel context.CancelFunc, log *slog.Logger, config internal.ClientConfig,
	sup *workers.Supervisor, events chan event.DomainEvent) (int, error) {
	transport := udp.NewClient(log, config.ConnectionTimeout)
	defer transport.Close()

	sess, err := session.New(log, transport, config.DisplayName, events)
	if err != nil {
		return exitConfig, err
	}
	if err := sess.Connect(config.Address()); err != nil {
		return exitRuntime, err
	}
	defer func() { _ = sess.Disconnect() }()

	// SendChat must run on the pump goroutine, so input lines travel as jobs.
	jobs := make(chan workers.Job)
	sup.Add(workers.NewPumpWorker(log, sess, config.TickInterval, jobs))
	go readLines(ctx, cancel, os.Stdin, func(line string) {
		job := func(context.Context) {
			if _, err := sess.SendChat(line); err != nil {
				switch {
				case stderrors.Is(err, errors.ErrNotConnected):
					notify(events, "Not connected.")
				case stderrors.Is(err, errors.ErrCapacityExceeded), stderrors.Is(err, errors.ErrInvalidName):
					// already reported by the session
				default:
					log.Warn("Message not sent", "error", err)
				}
			}
		}
		select {
		case jobs <- job:
		case <-ctx.Done():
		}
	})

	sup.Run(ctx)
	return exitOK, nil
}

func runBridge(ctx context.Context, cancel context.CancelFunc, log *slog.Logger, config internal.ClientConfig,
	sup *workers.Supervisor, events chan event.DomainEvent) (int, error) {
	client, err := bridge.Dial(ctx, log, config.BridgeURL, config.DedupWindow, events)
	if err != nil {
		return exitRuntime, err
	}
	defer client.Close()
	notify(events, "Connected to "+config.BridgeURL)

	sup.Add(client)
	go readLines(ctx, cancel, os.Stdin, func(line string) {
		if err := client.Send(ctx, line); err != nil && !stderrors.Is(err, errors.ErrEmptyMessage) {
			notify(events, "Message not sent.")
			log.Warn("Bridge send failed", "error", err)
		}
	})

	sup.Run(ctx)
	return exitOK, nil
}

func readLines(ctx context.Context, cancel context.CancelFunc, in io.Reader, handle func(string)) {
	defer cancel()
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		handle(scanner.Text())
	}
}

func notify(events chan<- event.DomainEvent, text string) {
	select {
	case events <- event.Notice{Text: text, At: time.Now()}:
	default:
	}
}
