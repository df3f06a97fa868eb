package pipeline

import (
	"context"
	"time"

	"marketstream/internal/model"
)

// Consumer reads the conflated state on a fixed emission interval and
// publishes at most one combined frame per tick. Missed ticks are skipped,
// never coalesced.
type Consumer struct {
	state     *ConflatedState
	telemetry *Telemetry
	perf      *PerfRecorder
	flags     *SessionFlags
	sink      EventSink
}

// NewConsumer builds the emit loop for one session.
func NewConsumer(state *ConflatedState, telemetry *Telemetry, perf *PerfRecorder, flags *SessionFlags, sink EventSink) *Consumer {
	return &Consumer{
		state:     state,
		telemetry: telemetry,
		perf:      perf,
		flags:     flags,
		sink:      sink,
	}
}

// Run ticks until cancellation. The interval follows the session flags, so
// an in-place refresh takes effect on the next tick.
func (c *Consumer) Run(ctx context.Context) {
	intervalMs := c.flags.EmitIntervalMs()
	ticker := time.NewTicker(time.Duration(intervalMs) * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if current := c.flags.EmitIntervalMs(); current != intervalMs {
				intervalMs = current
				ticker.Reset(time.Duration(intervalMs) * time.Millisecond)
			}
			c.emitTick()
		}
	}
}

// emitTick snapshots the state and publishes one frame when anything
// changed since the last tick.
func (c *Consumer) emitTick() {
	snapshot := c.state.SnapshotForEmit()
	if !snapshot.WasDirty {
		return
	}

	frame := model.FrameUpdate{
		Tick:        snapshot.Tick,
		Candle:      snapshot.Candle,
		DeltaCandle: snapshot.DeltaCandle,
	}
	if latencyMs, ok := c.telemetry.LocalPipelineLatency(); ok {
		frame.LocalPipelineLatencyMs = &latencyMs
	}

	c.perf.IncEmit()
	c.sink.Publish(model.EventMarketFrameUpdate, frame)

	if c.flags.EmitLegacyPriceEvent() && snapshot.Tick != nil {
		c.sink.Publish(model.EventPriceUpdate, *snapshot.Tick)
	}
	if c.flags.EmitLegacyFrameEvents() {
		if snapshot.Candle != nil {
			c.sink.Publish(model.EventCandleUpdate, *snapshot.Candle)
		}
		if snapshot.DeltaCandle != nil {
			c.sink.Publish(model.EventDeltaCandleUpdate, *snapshot.DeltaCandle)
		}
	}
}
