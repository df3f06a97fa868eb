package pipeline

import (
	"context"
	"time"

	"marketstream/internal/model"
)

const (
	statusHeartbeatInterval = 1_000 * time.Millisecond
	perfEmitEveryTicks      = 5
)

// Heartbeat re-publishes the current status once per second and, when
// enabled, emits a perf snapshot every five ticks. Repeated non-live
// reasons collapse under the status throttle.
type Heartbeat struct {
	status        *statusPublisher
	perf          *PerfRecorder
	flags         *SessionFlags
	sink          EventSink
	framesDropped func() uint64
}

// NewHeartbeat builds the heartbeat task. framesDropped reports the sink's
// cumulative dropped-frame count for the perf snapshot.
func NewHeartbeat(status *statusPublisher, perf *PerfRecorder, flags *SessionFlags, sink EventSink, framesDropped func() uint64) *Heartbeat {
	return &Heartbeat{
		status:        status,
		perf:          perf,
		flags:         flags,
		sink:          sink,
		framesDropped: framesDropped,
	}
}

// Run ticks until cancellation.
func (h *Heartbeat) Run(ctx context.Context) {
	ticker := time.NewTicker(statusHeartbeatInterval)
	defer ticker.Stop()

	tick := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			state, reason := h.status.currentState()
			h.status.publishThrottled(state, reason)

			tick++
			if tick%perfEmitEveryTicks == 0 && h.flags.PerfTelemetry() {
				dropped := uint64(0)
				if h.framesDropped != nil {
					dropped = h.framesDropped()
				}
				h.sink.Publish(model.EventMarketPerf, h.perf.Snapshot(time.Now().UnixMilli(), dropped))
			}
		}
	}
}
