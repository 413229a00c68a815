package workers

import (
	"chat-relay/runtime"
	"context"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type countingSource struct {
	calls atomic.Int32
}

func (s *countingSource) Stats() runtime.Stats {
	s.calls.Add(1)
	return runtime.Stats{LiveConnections: 2, RegisteredPeers: 1}
}

func TestHealthMonitoringWorker_Reports_Until_Cancelled(t *testing.T) {
	req := require.New(t)
	source := &countingSource{}
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err := NewHealthMonitoringWorker(slog.Default(), source, 10*time.Millisecond).Run(ctx)

	req.NoError(err)
	req.GreaterOrEqual(source.calls.Load(), int32(2))
}
