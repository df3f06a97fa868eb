package pipeline

import (
	"sort"
	"sync"
	"sync/atomic"

	"marketstream/internal/model"
)

// perfWindowCapacity is the size of each percentile ring buffer.
const perfWindowCapacity = 1024

// Telemetry holds the gauges the heartbeat and status commands read without
// touching the conflated-state mutex. Values are last-write-wins; relaxed
// atomics are sufficient.
type Telemetry struct {
	lastAggID    atomic.Uint64
	hasLastAggID atomic.Bool

	latencyMs    atomic.Int64
	hasLatencyMs atomic.Bool

	rawExchangeLatencyMs    atomic.Int64
	hasRawExchangeLatencyMs atomic.Bool

	clockOffsetMs    atomic.Int64
	hasClockOffsetMs atomic.Bool

	adjustedNetworkLatencyMs    atomic.Int64
	hasAdjustedNetworkLatencyMs atomic.Bool

	localPipelineLatencyMs    atomic.Int64
	hasLocalPipelineLatencyMs atomic.Bool
}

// NewTelemetry returns empty gauges.
func NewTelemetry() *Telemetry {
	return &Telemetry{}
}

// SetLastAggID records the newest applied aggregate id.
func (t *Telemetry) SetLastAggID(aggregateID uint64) {
	t.lastAggID.Store(aggregateID)
	t.hasLastAggID.Store(true)
}

// SetNetworkLatencies records the raw and clock-adjusted exchange latency.
// The legacy latencyMs gauge mirrors the adjusted value, which older shells
// still read.
func (t *Telemetry) SetNetworkLatencies(rawMs, adjustedMs int64) {
	t.rawExchangeLatencyMs.Store(rawMs)
	t.hasRawExchangeLatencyMs.Store(true)
	t.adjustedNetworkLatencyMs.Store(adjustedMs)
	t.hasAdjustedNetworkLatencyMs.Store(true)
	t.latencyMs.Store(adjustedMs)
	t.hasLatencyMs.Store(true)
}

// SetClockOffset records the smoothed server-minus-local clock offset.
func (t *Telemetry) SetClockOffset(offsetMs int64) {
	t.clockOffsetMs.Store(offsetMs)
	t.hasClockOffsetMs.Store(true)
}

// ClockOffset returns the smoothed clock offset, if one has been sampled.
func (t *Telemetry) ClockOffset() (int64, bool) {
	if !t.hasClockOffsetMs.Load() {
		return 0, false
	}
	return t.clockOffsetMs.Load(), true
}

// SetLocalPipelineLatency records the receipt-to-apply wall time of the
// newest trade.
func (t *Telemetry) SetLocalPipelineLatency(latencyMs int64) {
	t.localPipelineLatencyMs.Store(latencyMs)
	t.hasLocalPipelineLatencyMs.Store(true)
}

// LocalPipelineLatency returns the newest receipt-to-apply latency, if any.
func (t *Telemetry) LocalPipelineLatency() (int64, bool) {
	if !t.hasLocalPipelineLatencyMs.Load() {
		return 0, false
	}
	return t.localPipelineLatencyMs.Load(), true
}

// Fill copies every known gauge into a status snapshot.
func (t *Telemetry) Fill(snapshot *model.StatusSnapshot) {
	if t.hasLastAggID.Load() {
		v := t.lastAggID.Load()
		snapshot.LastAggID = &v
	}
	if t.hasLatencyMs.Load() {
		v := t.latencyMs.Load()
		snapshot.LatencyMs = &v
	}
	if t.hasRawExchangeLatencyMs.Load() {
		v := t.rawExchangeLatencyMs.Load()
		snapshot.RawExchangeLatencyMs = &v
	}
	if t.hasClockOffsetMs.Load() {
		v := t.clockOffsetMs.Load()
		snapshot.ClockOffsetMs = &v
	}
	if t.hasAdjustedNetworkLatencyMs.Load() {
		v := t.adjustedNetworkLatencyMs.Load()
		snapshot.AdjustedNetworkLatencyMs = &v
	}
	if t.hasLocalPipelineLatencyMs.Load() {
		v := t.localPipelineLatencyMs.Load()
		snapshot.LocalPipelineLatencyMs = &v
	}
}

// ring is a fixed-capacity window of latency samples.
type ring struct {
	values [perfWindowCapacity]uint32
	length int
	cursor int
}

func (r *ring) push(value uint32) {
	r.values[r.cursor] = value
	r.cursor = (r.cursor + 1) % perfWindowCapacity
	if r.length < perfWindowCapacity {
		r.length++
	}
}

// percentiles computes p50/p95/p99 from a sorted copy of the window.
func (r *ring) percentiles() (p50, p95, p99 *uint32) {
	if r.length == 0 {
		return nil, nil, nil
	}

	snapshot := make([]uint32, r.length)
	copy(snapshot, r.values[:r.length])
	sort.Slice(snapshot, func(i, j int) bool { return snapshot[i] < snapshot[j] })

	return percentileFromSorted(snapshot, 50),
		percentileFromSorted(snapshot, 95),
		percentileFromSorted(snapshot, 99)
}

func percentileFromSorted(sorted []uint32, percentile int) *uint32 {
	if len(sorted) == 0 {
		return nil
	}
	index := (len(sorted) - 1) * percentile / 100
	value := sorted[index]
	return &value
}

// PerfRecorder accumulates parse/apply/pipeline latency windows and the
// monotonic ingest and emit counters. The producer is the only writer of the
// parse, apply and pipeline windows. Snapshots
// copy the windows, so the write-side critical sections stay tiny.
type PerfRecorder struct {
	mu              sync.Mutex
	parseUs         ring
	applyUs         ring
	localPipelineMs ring

	ingestCount atomic.Uint64
	emitCount   atomic.Uint64
}

// NewPerfRecorder returns empty windows and zero counters.
func NewPerfRecorder() *PerfRecorder {
	return &PerfRecorder{}
}

// RecordParseApply pushes one parse and one apply duration in microseconds.
func (p *PerfRecorder) RecordParseApply(parseUs, applyUs uint32) {
	p.mu.Lock()
	p.parseUs.push(parseUs)
	p.applyUs.push(applyUs)
	p.mu.Unlock()
}

// RecordPipelineLatency pushes one receipt-to-apply duration in
// milliseconds.
func (p *PerfRecorder) RecordPipelineLatency(latencyMs int64) {
	if latencyMs < 0 {
		latencyMs = 0
	}
	bounded := uint32(latencyMs)
	if latencyMs > int64(^uint32(0)) {
		bounded = ^uint32(0)
	}
	p.mu.Lock()
	p.localPipelineMs.push(bounded)
	p.mu.Unlock()
}

// IncIngest counts one applied trade.
func (p *PerfRecorder) IncIngest() {
	p.ingestCount.Add(1)
}

// IncEmit counts one emitted frame.
func (p *PerfRecorder) IncEmit() {
	p.emitCount.Add(1)
}

// Counters returns the current ingest and emit counts.
func (p *PerfRecorder) Counters() (ingest, emit uint64) {
	return p.ingestCount.Load(), p.emitCount.Load()
}

// Snapshot computes percentiles over local copies of the three windows.
func (p *PerfRecorder) Snapshot(nowMs int64, framesDropped uint64) model.PerfSnapshot {
	p.mu.Lock()
	parseP50, parseP95, parseP99 := p.parseUs.percentiles()
	applyP50, applyP95, applyP99 := p.applyUs.percentiles()
	pipelineP50, pipelineP95, pipelineP99 := p.localPipelineMs.percentiles()
	p.mu.Unlock()

	return model.PerfSnapshot{
		T:                  nowMs,
		ParseP50Us:         parseP50,
		ParseP95Us:         parseP95,
		ParseP99Us:         parseP99,
		ApplyP50Us:         applyP50,
		ApplyP95Us:         applyP95,
		ApplyP99Us:         applyP99,
		LocalPipelineP50Ms: pipelineP50,
		LocalPipelineP95Ms: pipelineP95,
		LocalPipelineP99Ms: pipelineP99,
		IngestCount:        p.ingestCount.Load(),
		EmitCount:          p.emitCount.Load(),
		FramesDropped:      framesDropped,
	}
}
