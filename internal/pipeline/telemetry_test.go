package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketstream/internal/model"
)

func Test_RingPercentiles(t *testing.T) {
	r := &ring{}
	for i := 1; i <= 100; i++ {
		r.push(uint32(i))
	}

	p50, p95, p99 := r.percentiles()
	require.NotNil(t, p50)
	require.NotNil(t, p95)
	require.NotNil(t, p99)

	// index = (n-1)*p/100 over the sorted window.
	assert.Equal(t, uint32(50), *p50)
	assert.Equal(t, uint32(95), *p95)
	assert.Equal(t, uint32(99), *p99)
}

func Test_RingEmptyPercentilesAreNil(t *testing.T) {
	r := &ring{}
	p50, p95, p99 := r.percentiles()
	assert.Nil(t, p50)
	assert.Nil(t, p95)
	assert.Nil(t, p99)
}

func Test_RingWrapsAtCapacity(t *testing.T) {
	r := &ring{}
	for i := 0; i < perfWindowCapacity*2; i++ {
		r.push(7)
	}
	assert.Equal(t, perfWindowCapacity, r.length)

	p50, _, _ := r.percentiles()
	require.NotNil(t, p50)
	assert.Equal(t, uint32(7), *p50)
}

func Test_PerfSnapshotCounters(t *testing.T) {
	perf := NewPerfRecorder()

	for i := 0; i < 10; i++ {
		perf.RecordParseApply(10, 20)
		perf.IncIngest()
	}
	for i := 0; i < 4; i++ {
		perf.RecordPipelineLatency(3)
		perf.IncEmit()
	}

	snapshot := perf.Snapshot(1_000, 2)
	assert.Equal(t, uint64(10), snapshot.IngestCount)
	assert.Equal(t, uint64(4), snapshot.EmitCount)
	assert.Equal(t, uint64(2), snapshot.FramesDropped)
	assert.GreaterOrEqual(t, snapshot.IngestCount, snapshot.EmitCount)

	require.NotNil(t, snapshot.ParseP50Us)
	assert.Equal(t, uint32(10), *snapshot.ParseP50Us)
	require.NotNil(t, snapshot.ApplyP50Us)
	assert.Equal(t, uint32(20), *snapshot.ApplyP50Us)
	require.NotNil(t, snapshot.LocalPipelineP50Ms)
	assert.Equal(t, uint32(3), *snapshot.LocalPipelineP50Ms)
}

func Test_TelemetryFill(t *testing.T) {
	telemetry := NewTelemetry()

	empty := model.StatusSnapshot{}
	telemetry.Fill(&empty)
	assert.Nil(t, empty.LastAggID)
	assert.Nil(t, empty.LatencyMs)
	assert.Nil(t, empty.ClockOffsetMs)

	telemetry.SetLastAggID(42)
	telemetry.SetClockOffset(-120)
	telemetry.SetNetworkLatencies(180, 60)
	telemetry.SetLocalPipelineLatency(2)

	full := model.StatusSnapshot{}
	telemetry.Fill(&full)

	require.NotNil(t, full.LastAggID)
	assert.Equal(t, uint64(42), *full.LastAggID)
	require.NotNil(t, full.RawExchangeLatencyMs)
	assert.Equal(t, int64(180), *full.RawExchangeLatencyMs)
	require.NotNil(t, full.ClockOffsetMs)
	assert.Equal(t, int64(-120), *full.ClockOffsetMs)
	require.NotNil(t, full.AdjustedNetworkLatencyMs)
	assert.Equal(t, int64(60), *full.AdjustedNetworkLatencyMs)
	require.NotNil(t, full.LatencyMs)
	assert.Equal(t, int64(60), *full.LatencyMs, "legacy latency mirrors the adjusted value")
	require.NotNil(t, full.LocalPipelineLatencyMs)
	assert.Equal(t, int64(2), *full.LocalPipelineLatencyMs)
}

func Test_RecordPipelineLatencyClampsNegatives(t *testing.T) {
	perf := NewPerfRecorder()
	perf.RecordPipelineLatency(-5)

	snapshot := perf.Snapshot(0, 0)
	require.NotNil(t, snapshot.LocalPipelineP50Ms)
	assert.Equal(t, uint32(0), *snapshot.LocalPipelineP50Ms)
}
