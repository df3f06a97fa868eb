package pipeline

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_EwmaFirstSampleTakenAsIs(t *testing.T) {
	smoother := &ewma{}
	assert.Equal(t, int64(500), smoother.update(500))
}

func Test_EwmaConvergesWithinFourSamples(t *testing.T) {
	// A step from 0 to 400 must close most of the distance within four
	// samples at alpha 0.25.
	smoother := &ewma{}
	smoother.update(0)

	var value int64
	for i := 0; i < 4; i++ {
		value = smoother.update(400)
	}

	// 400 * (1 - 0.75^4) ~= 273.
	assert.Greater(t, value, int64(250))
	assert.Less(t, value, int64(400))
}

func Test_EwmaStableInputStaysPut(t *testing.T) {
	smoother := &ewma{}
	smoother.update(120)
	for i := 0; i < 10; i++ {
		assert.Equal(t, int64(120), smoother.update(120))
	}
}

func Test_AdjustedNetworkLatency(t *testing.T) {
	tests := []struct {
		name        string
		rawMs       int64
		offsetMs    int64
		offsetKnown bool
		want        int64
	}{
		{name: "positive offset recovers latency", rawMs: -600, offsetMs: 650, offsetKnown: true, want: 50},
		{name: "clamps negative result to zero", rawMs: -80, offsetMs: 10, offsetKnown: true, want: 0},
		{name: "unknown offset passes raw through", rawMs: 140, offsetKnown: false, want: 140},
		{name: "unknown offset clamps negative raw", rawMs: -20, offsetKnown: false, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, adjustedNetworkLatency(tt.rawMs, tt.offsetMs, tt.offsetKnown))
		})
	}
}

// steppedTimeSource reports local time shifted by a fixed offset.
type steppedTimeSource struct {
	offsetMs atomic.Int64
	calls    atomic.Int32
}

func (s *steppedTimeSource) ServerTime(ctx context.Context) (int64, error) {
	s.calls.Add(1)
	return time.Now().UnixMilli() + s.offsetMs.Load(), nil
}

func Test_ClockSyncSampleMeasuresOffset(t *testing.T) {
	source := &steppedTimeSource{}
	source.offsetMs.Store(250)

	sync := NewClockSync(source, NewTelemetry(), 5_000)
	probe, err := sync.sample(context.Background())
	require.NoError(t, err)

	// Local round trips are near-zero here, so the midpoint offset lands on
	// the configured step.
	assert.InDelta(t, 250, float64(probe.offsetMs), 30)
	assert.GreaterOrEqual(t, source.calls.Load(), int32(clockSyncProbeCount))
}

func Test_ClockSyncRunWritesTelemetry(t *testing.T) {
	source := &steppedTimeSource{}
	source.offsetMs.Store(-300)
	telemetry := NewTelemetry()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		NewClockSync(source, telemetry, 5_000).Run(ctx)
	}()

	require.Eventually(t, func() bool {
		_, ok := telemetry.ClockOffset()
		return ok
	}, 3*time.Second, 10*time.Millisecond)

	offset, ok := telemetry.ClockOffset()
	require.True(t, ok)
	assert.InDelta(t, -300, float64(offset), 30)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("clock sync did not stop on cancellation")
	}
}

func Test_JitteredIntervalStaysWithinBounds(t *testing.T) {
	for i := 0; i < 100; i++ {
		interval := jitteredInterval(30_000)
		assert.GreaterOrEqual(t, interval, 27_000*time.Millisecond)
		assert.LessOrEqual(t, interval, 33_000*time.Millisecond)
	}
}
