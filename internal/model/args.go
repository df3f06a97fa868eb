package model

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Defaults and bounds applied when normalizing start_market_stream arguments.
// Out-of-range interval and history values are clamped into their bounds
// rather than rejected.
const (
	DefaultSymbol              = "BTCUSDT"
	DefaultMinNotionalUsdt     = 100.0
	DefaultEmitIntervalMs      = 8
	MinEmitIntervalMs          = 8
	MaxEmitIntervalMs          = 1_000
	DefaultClockSyncIntervalMs = 30_000
	MinClockSyncIntervalMs     = 5_000
	MaxClockSyncIntervalMs     = 300_000
	DefaultHistoryLimit        = 1_000
	MinHistoryLimit            = 1
	MaxHistoryLimit            = 2_000_000
)

// DefaultMarketKind, timeframe and startup mode used when the caller omits
// them.
const (
	DefaultMarketKind  = MarketSpot
	DefaultTimeframe   = Timeframe1m
	DefaultStartupMode = StartupLiveFirst
)

var validate = validator.New()

// StartStreamArgs are the optional arguments of the start_market_stream
// command. Every field falls back to its documented default when nil.
type StartStreamArgs struct {
	MarketKind            *string  `json:"marketKind,omitempty" validate:"omitempty,oneof=spot futures_usdm"`
	Symbol                *string  `json:"symbol,omitempty"`
	MinNotionalUsdt       *float64 `json:"minNotionalUsdt,omitempty"`
	EmitIntervalMs        *int64   `json:"emitIntervalMs,omitempty"`
	MockMode              *bool    `json:"mockMode,omitempty"`
	EmitLegacyPriceEvent  *bool    `json:"emitLegacyPriceEvent,omitempty"`
	EmitLegacyFrameEvents *bool    `json:"emitLegacyFrameEvents,omitempty"`
	PerfTelemetry         *bool    `json:"perfTelemetry,omitempty"`
	ClockSyncIntervalMs   *int64   `json:"clockSyncIntervalMs,omitempty"`
	Timeframe             *string  `json:"timeframe,omitempty" validate:"omitempty,oneof=1m 5m 1h 4h 1d 1w 1M"`
	StartupMode           *string  `json:"startupMode,omitempty" validate:"omitempty,oneof=live_first history_first"`
	HistoryLimit          *int64   `json:"historyLimit,omitempty"`
	HistoryAll            *bool    `json:"historyAll,omitempty"`
}

// StreamConfig is the realized session configuration after defaults and
// clamps have been applied.
type StreamConfig struct {
	MarketKind            MarketKind
	Symbol                string
	MinNotionalUsdt       float64
	EmitIntervalMs        int64
	MockMode              bool
	EmitLegacyPriceEvent  bool
	EmitLegacyFrameEvents bool
	PerfTelemetry         bool
	ClockSyncIntervalMs   int64
	Timeframe             Timeframe
	StartupMode           StartupMode
	HistoryLimit          int64
	HistoryAll            bool
}

// SameIdentity reports whether two configurations address the same pipeline:
// market kind, symbol and timeframe. Sessions with the same identity refresh
// flags in place instead of restarting.
func (c StreamConfig) SameIdentity(other StreamConfig) bool {
	return c.MarketKind == other.MarketKind &&
		c.Symbol == other.Symbol &&
		c.Timeframe == other.Timeframe
}

// NormalizeSymbol upper-cases and validates a trading pair symbol. Symbols
// must be non-empty ASCII alphanumerics.
func NormalizeSymbol(symbol string) (string, error) {
	normalized := strings.ToUpper(strings.TrimSpace(symbol))
	if normalized == "" {
		return "", fmt.Errorf("%w: symbol must be non-empty", ErrInvalidArgs)
	}
	for _, ch := range normalized {
		isDigit := ch >= '0' && ch <= '9'
		isUpper := ch >= 'A' && ch <= 'Z'
		if !isDigit && !isUpper {
			return "", fmt.Errorf("%w: symbol must be alphanumeric ASCII, got %q", ErrInvalidArgs, symbol)
		}
	}
	return normalized, nil
}

// Normalize applies defaults, clamps intervals into their documented bounds
// and validates the remaining constraints. The zero value of StartStreamArgs
// normalizes to the default session.
func (a StartStreamArgs) Normalize() (StreamConfig, error) {
	if err := validate.Struct(a); err != nil {
		return StreamConfig{}, fmt.Errorf("%w: %v", ErrInvalidArgs, err)
	}

	cfg := StreamConfig{
		MarketKind:          DefaultMarketKind,
		Symbol:              DefaultSymbol,
		MinNotionalUsdt:     DefaultMinNotionalUsdt,
		EmitIntervalMs:      DefaultEmitIntervalMs,
		ClockSyncIntervalMs: DefaultClockSyncIntervalMs,
		Timeframe:           DefaultTimeframe,
		StartupMode:         DefaultStartupMode,
		HistoryLimit:        DefaultHistoryLimit,
	}

	if a.MarketKind != nil {
		cfg.MarketKind = MarketKind(*a.MarketKind)
	}
	if a.Symbol != nil {
		symbol, err := NormalizeSymbol(*a.Symbol)
		if err != nil {
			return StreamConfig{}, err
		}
		cfg.Symbol = symbol
	}
	if a.MinNotionalUsdt != nil {
		if !isFinite(*a.MinNotionalUsdt) || *a.MinNotionalUsdt < 0 {
			return StreamConfig{}, fmt.Errorf("%w: minNotionalUsdt must be a finite non-negative number", ErrInvalidArgs)
		}
		cfg.MinNotionalUsdt = *a.MinNotionalUsdt
	}
	if a.EmitIntervalMs != nil {
		cfg.EmitIntervalMs = clampInt64(*a.EmitIntervalMs, MinEmitIntervalMs, MaxEmitIntervalMs)
	}
	if a.MockMode != nil {
		cfg.MockMode = *a.MockMode
	}
	if a.EmitLegacyPriceEvent != nil {
		cfg.EmitLegacyPriceEvent = *a.EmitLegacyPriceEvent
	}
	if a.EmitLegacyFrameEvents != nil {
		cfg.EmitLegacyFrameEvents = *a.EmitLegacyFrameEvents
	}
	if a.PerfTelemetry != nil {
		cfg.PerfTelemetry = *a.PerfTelemetry
	}
	if a.ClockSyncIntervalMs != nil {
		cfg.ClockSyncIntervalMs = clampInt64(*a.ClockSyncIntervalMs, MinClockSyncIntervalMs, MaxClockSyncIntervalMs)
	}
	if a.Timeframe != nil {
		cfg.Timeframe = Timeframe(*a.Timeframe)
	}
	if a.StartupMode != nil {
		cfg.StartupMode = StartupMode(*a.StartupMode)
	}
	if a.HistoryLimit != nil {
		cfg.HistoryLimit = clampInt64(*a.HistoryLimit, MinHistoryLimit, MaxHistoryLimit)
	}
	if a.HistoryAll != nil {
		cfg.HistoryAll = *a.HistoryAll
	}

	return cfg, nil
}

// Session is the realized session echoed back by start_market_stream.
type Session struct {
	Running               bool        `json:"running"`
	MarketKind            MarketKind  `json:"marketKind"`
	Symbol                string      `json:"symbol"`
	MinNotionalUsdt       float64     `json:"minNotionalUsdt"`
	EmitIntervalMs        int64       `json:"emitIntervalMs"`
	MockMode              bool        `json:"mockMode"`
	EmitLegacyPriceEvent  bool        `json:"emitLegacyPriceEvent"`
	EmitLegacyFrameEvents bool        `json:"emitLegacyFrameEvents"`
	PerfTelemetry         bool        `json:"perfTelemetry"`
	ClockSyncIntervalMs   int64       `json:"clockSyncIntervalMs"`
	Timeframe             Timeframe   `json:"timeframe"`
	StartupMode           StartupMode `json:"startupMode"`
	HistoryLimit          int64       `json:"historyLimit"`
	HistoryAll            bool        `json:"historyAll"`
}

// SessionFromConfig echoes a realized configuration back to the caller.
func SessionFromConfig(cfg StreamConfig) Session {
	return Session{
		Running:               true,
		MarketKind:            cfg.MarketKind,
		Symbol:                cfg.Symbol,
		MinNotionalUsdt:       cfg.MinNotionalUsdt,
		EmitIntervalMs:        cfg.EmitIntervalMs,
		MockMode:              cfg.MockMode,
		EmitLegacyPriceEvent:  cfg.EmitLegacyPriceEvent,
		EmitLegacyFrameEvents: cfg.EmitLegacyFrameEvents,
		PerfTelemetry:         cfg.PerfTelemetry,
		ClockSyncIntervalMs:   cfg.ClockSyncIntervalMs,
		Timeframe:             cfg.Timeframe,
		StartupMode:           cfg.StartupMode,
		HistoryLimit:          cfg.HistoryLimit,
		HistoryAll:            cfg.HistoryAll,
	}
}

// StopResult is the result of stop_market_stream. Stopped is true even when
// no pipeline was running.
type StopResult struct {
	Stopped bool `json:"stopped"`
}

// SymbolsArgs selects the endpoint family for the market_symbols command.
type SymbolsArgs struct {
	MarketKind string `json:"marketKind" validate:"omitempty,oneof=spot futures_usdm"`
}

func clampInt64(value, low, high int64) int64 {
	if value < low {
		return low
	}
	if value > high {
		return high
	}
	return value
}
