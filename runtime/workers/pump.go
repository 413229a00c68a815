package workers

import (
	"chat-relay/contract"
	"chat-relay/errors"
	"context"
	stderrors "errors"
	"log/slog"
	"time"
)

var _ contract.Worker = (*PumpWorker)(nil)

// Job is work that must run on the pump goroutine, between two cycles.
type Job func(ctx context.Context)

// PumpWorker is the only caller of Update on its target, so cycles never
// overlap. Jobs sent on its queue run between cycles, which lets other
// goroutines (stdin, signals) act on the target without locking it.
type PumpWorker struct {
	log      *slog.Logger
	target   contract.Pumpable
	interval time.Duration
	jobs     <-chan Job
}

func NewPumpWorker(log *slog.Logger, target contract.Pumpable, interval time.Duration, jobs <-chan Job) *PumpWorker {
	return &PumpWorker{log: log, target: target, interval: interval, jobs: jobs}
}

// Run returns nil when the target refuses further cycles, so the supervisor
// does not restart a stopped relay.
func (w *PumpWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping pump")
			return nil
		case job, ok := <-w.jobs:
			if !ok {
				w.jobs = nil
				continue
			}
			job(ctx)
		case <-ticker.C:
			err := w.target.Update(ctx)
			switch {
			case err == nil:
			case stderrors.Is(err, errors.ErrInvalidState):
				w.log.Info("Pump target no longer running", "error", err)
				return nil
			case ctx.Err() != nil:
				return nil
			default:
				w.log.Warn("Update cycle failed", "error", err)
			}
		}
	}
}
