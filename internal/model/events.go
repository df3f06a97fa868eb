package model

// Event names published to the shell. Bootstrap and update events carry the
// payload types below; the names are part of the external contract and must
// not change.
const (
	EventMarketStatus        = "market_status"
	EventMarketFrameUpdate   = "market_frame_update"
	EventCandlesBootstrap    = "candles_bootstrap"
	EventDeltaCandlesBoot    = "delta_candles_bootstrap"
	EventCandleUpdate        = "candle_update"
	EventDeltaCandleUpdate   = "delta_candle_update"
	EventPriceUpdate         = "price_update"
	EventMarketPerf          = "market_perf"
	EventHistoryLoadProgress = "history_load_progress"
)

// FrameUpdate is the combined payload emitted once per consumer tick when
// fresh state exists: the latest conflated tick, candle and delta candle.
type FrameUpdate struct {
	Tick                   *Tick        `json:"tick,omitempty"`
	Candle                 *Candle      `json:"candle,omitempty"`
	DeltaCandle            *DeltaCandle `json:"deltaCandle,omitempty"`
	LocalPipelineLatencyMs *int64       `json:"localPipelineLatencyMs,omitempty"`
}

// StatusSnapshot is the pipeline status published on the heartbeat and on
// every state transition. LatencyMs mirrors AdjustedNetworkLatencyMs when the
// clock offset is known and RawExchangeLatencyMs otherwise.
type StatusSnapshot struct {
	State                    ConnectionState `json:"state"`
	MarketKind               MarketKind      `json:"marketKind"`
	Symbol                   string          `json:"symbol"`
	Timeframe                Timeframe       `json:"timeframe"`
	LastAggID                *uint64         `json:"lastAggId,omitempty"`
	LatencyMs                *int64          `json:"latencyMs,omitempty"`
	RawExchangeLatencyMs     *int64          `json:"rawExchangeLatencyMs,omitempty"`
	ClockOffsetMs            *int64          `json:"clockOffsetMs,omitempty"`
	AdjustedNetworkLatencyMs *int64          `json:"adjustedNetworkLatencyMs,omitempty"`
	LocalPipelineLatencyMs   *int64          `json:"localPipelineLatencyMs,omitempty"`
	Reason                   *string         `json:"reason,omitempty"`
}

// StoppedStatus builds the snapshot reported while no pipeline is running.
func StoppedStatus(kind MarketKind, symbol string, timeframe Timeframe, reason string) StatusSnapshot {
	return StatusSnapshot{
		State:      StateStopped,
		MarketKind: kind,
		Symbol:     symbol,
		Timeframe:  timeframe,
		Reason:     &reason,
	}
}

// CandlesBootstrap carries the historical candle page for a session.
type CandlesBootstrap struct {
	MarketKind MarketKind `json:"marketKind"`
	Symbol     string     `json:"symbol"`
	Timeframe  Timeframe  `json:"timeframe"`
	Candles    []Candle   `json:"candles"`
}

// DeltaCandlesBootstrap carries the historical delta-candle page. The slice
// is empty when no delta history is computable for the market.
type DeltaCandlesBootstrap struct {
	MarketKind MarketKind    `json:"marketKind"`
	Symbol     string        `json:"symbol"`
	Timeframe  Timeframe     `json:"timeframe"`
	Candles    []DeltaCandle `json:"candles"`
}

// PerfSnapshot is the opt-in performance telemetry payload: parse/apply
// percentiles in microseconds, local pipeline percentiles in milliseconds and
// the monotonic ingest/emit/drop counters.
type PerfSnapshot struct {
	T                  int64   `json:"t"`
	ParseP50Us         *uint32 `json:"parseP50Us,omitempty"`
	ParseP95Us         *uint32 `json:"parseP95Us,omitempty"`
	ParseP99Us         *uint32 `json:"parseP99Us,omitempty"`
	ApplyP50Us         *uint32 `json:"applyP50Us,omitempty"`
	ApplyP95Us         *uint32 `json:"applyP95Us,omitempty"`
	ApplyP99Us         *uint32 `json:"applyP99Us,omitempty"`
	LocalPipelineP50Ms *uint32 `json:"localPipelineP50Ms,omitempty"`
	LocalPipelineP95Ms *uint32 `json:"localPipelineP95Ms,omitempty"`
	LocalPipelineP99Ms *uint32 `json:"localPipelineP99Ms,omitempty"`
	IngestCount        uint64  `json:"ingestCount"`
	EmitCount          uint64  `json:"emitCount"`
	FramesDropped      uint64  `json:"framesDropped"`
}

// HistoryLoadProgress reports paginated history loading. PagesFetched and
// CandlesFetched are strictly monotonic within one session; the terminal
// event carries Done=true.
type HistoryLoadProgress struct {
	MarketKind            MarketKind `json:"marketKind"`
	Symbol                string     `json:"symbol"`
	Timeframe             Timeframe  `json:"timeframe"`
	PagesFetched          uint32     `json:"pagesFetched"`
	CandlesFetched        uint64     `json:"candlesFetched"`
	EstimatedTotalCandles *uint64    `json:"estimatedTotalCandles,omitempty"`
	ProgressPct           *float64   `json:"progressPct,omitempty"`
	Done                  bool       `json:"done"`
}
