package workers

import (
	"chat-relay/contract"
	"chat-relay/runtime"
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/shirou/gopsutil/process"
)

var _ contract.Worker = (*HealthMonitoringWorker)(nil)

type StatsSource interface {
	Stats() runtime.Stats
}

// HealthMonitoringWorker logs process usage and relay counters at a fixed
// interval.
type HealthMonitoringWorker struct {
	log      *slog.Logger
	source   StatsSource
	interval time.Duration
}

func NewHealthMonitoringWorker(log *slog.Logger, source StatsSource, interval time.Duration) *HealthMonitoringWorker {
	return &HealthMonitoringWorker{log: log, source: source, interval: interval}
}

func (w *HealthMonitoringWorker) Run(ctx context.Context) error {
	self, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		w.log.Warn("Process metrics unavailable", "error", err)
	}
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping health monitoring")
			return nil
		case <-ticker.C:
			w.report(self)
		}
	}
}

func (w *HealthMonitoringWorker) report(self *process.Process) {
	stats := w.source.Stats()
	attrs := []any{
		"live", stats.LiveConnections,
		"registered", stats.RegisteredPeers,
		"relayed", stats.Relayed,
		"dropped", stats.Dropped,
		"send_failures", stats.SendFailures,
	}
	if self != nil {
		if cpu, err := self.CPUPercent(); err == nil {
			attrs = append(attrs, "cpu_percent", cpu)
		}
		if ram, err := self.MemoryPercent(); err == nil {
			attrs = append(attrs, "ram_percent", ram)
		}
	}
	w.log.Info("Relay health", attrs...)
}
