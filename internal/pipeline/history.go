package pipeline

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"marketstream/internal/model"
)

// HistoryGateway is the slice of the exchange client the history loader
// needs.
type HistoryGateway interface {
	Klines(ctx context.Context, symbol string, timeframe model.Timeframe, startMs, endMs *int64, limit int) ([]model.Candle, []model.DeltaCandle, error)
	OldestKlineOpenTime(ctx context.Context, symbol string, timeframe model.Timeframe) (*int64, error)
}

// HistoryLoader fetches the initial candle and delta-candle arrays, seeds
// the conflated state with the newest bucket and publishes the bootstrap
// events. With historyAll it pages backwards through the full listing
// history, reporting progress once per page plus a terminal event.
type HistoryLoader struct {
	gateway HistoryGateway
	cfg     model.StreamConfig
	state   *ConflatedState
	sink    EventSink
}

// NewHistoryLoader builds the loader for one session.
func NewHistoryLoader(gateway HistoryGateway, cfg model.StreamConfig, state *ConflatedState, sink EventSink) *HistoryLoader {
	return &HistoryLoader{gateway: gateway, cfg: cfg, state: state, sink: sink}
}

// Run loads history and emits candles_bootstrap and delta_candles_bootstrap.
// A failed load is logged and returned, and no bootstrap events are
// published; the live stream fills forward without a bootstrap.
func (l *HistoryLoader) Run(ctx context.Context) error {
	logger := log.With().
		Str("component", "history-loader").
		Str("symbol", l.cfg.Symbol).
		Str("timeframe", string(l.cfg.Timeframe)).
		Logger()

	var (
		candles      []model.Candle
		deltaCandles []model.DeltaCandle
		err          error
	)
	if l.cfg.MockMode {
		candles = BuildMockHistory(l.cfg.Timeframe, l.cfg.HistoryLimit, time.Now().UnixMilli())
		deltaCandles = BuildMockDeltaHistory(l.cfg.Timeframe, l.cfg.HistoryLimit, time.Now().UnixMilli())
	} else {
		candles, deltaCandles, err = l.load(ctx)
		if err != nil {
			logger.Warn().Err(err).Msg("historical candles unavailable")
			return err
		}
	}

	if ctx.Err() != nil {
		return ctx.Err()
	}

	l.state.ApplyHistory(candles, deltaCandles)

	l.sink.Publish(model.EventCandlesBootstrap, model.CandlesBootstrap{
		MarketKind: l.cfg.MarketKind,
		Symbol:     l.cfg.Symbol,
		Timeframe:  l.cfg.Timeframe,
		Candles:    candles,
	})
	if deltaCandles == nil {
		deltaCandles = []model.DeltaCandle{}
	}
	l.sink.Publish(model.EventDeltaCandlesBoot, model.DeltaCandlesBootstrap{
		MarketKind: l.cfg.MarketKind,
		Symbol:     l.cfg.Symbol,
		Timeframe:  l.cfg.Timeframe,
		Candles:    deltaCandles,
	})

	logger.Info().Int("candles", len(candles)).Int("deltaCandles", len(deltaCandles)).Msg("historical candles loaded")
	return nil
}

const historyPageSize = 1_000

// load pages backwards from the newest bucket. With a target limit it stops
// once enough candles are collected; with historyAll it continues until the
// exchange returns a short or empty page.
func (l *HistoryLoader) load(ctx context.Context) ([]model.Candle, []model.DeltaCandle, error) {
	target := int(l.cfg.HistoryLimit)
	all := l.cfg.HistoryAll

	var oldestKnown *int64
	if all {
		known, err := l.gateway.OldestKlineOpenTime(ctx, l.cfg.Symbol, l.cfg.Timeframe)
		if err != nil {
			return nil, nil, err
		}
		oldestKnown = known
	}

	// Pages arrive newest-last; collect them reversed and flip once at the
	// end.
	var candlesRev []model.Candle
	var deltaCandlesRev []model.DeltaCandle
	var endMs *int64
	var previousOldest *int64
	var newestSeen *int64
	var pagesFetched uint32
	timeframeMs := l.cfg.Timeframe.DurationMs()
	if timeframeMs <= 0 {
		timeframeMs = 1
	}

	for {
		if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}

		requestLimit := historyPageSize
		if !all {
			remaining := target - len(candlesRev)
			if remaining <= 0 {
				break
			}
			if remaining < requestLimit {
				requestLimit = remaining
			}
		}

		page, deltaPage, err := l.gateway.Klines(ctx, l.cfg.Symbol, l.cfg.Timeframe, nil, endMs, requestLimit)
		if err != nil {
			return nil, nil, err
		}
		if len(page) == 0 {
			break
		}

		oldestOpen := page[0].T
		if newestSeen == nil {
			newest := page[len(page)-1].T
			newestSeen = &newest
		}
		received := len(page)
		pagesFetched++

		for i := len(page) - 1; i >= 0; i-- {
			candlesRev = append(candlesRev, page[i])
		}
		for i := len(deltaPage) - 1; i >= 0; i-- {
			deltaCandlesRev = append(deltaCandlesRev, deltaPage[i])
		}

		if all {
			l.publishProgress(pagesFetched, uint64(len(candlesRev)), oldestKnown, newestSeen, oldestOpen, timeframeMs, false)
		}

		if !all && len(candlesRev) >= target {
			break
		}
		if received < requestLimit {
			break
		}
		if previousOldest != nil && oldestOpen >= *previousOldest {
			break
		}
		if oldestOpen <= 0 {
			break
		}

		previousOldest = &oldestOpen
		next := oldestOpen - 1
		endMs = &next
	}

	if !all {
		if len(candlesRev) > target {
			candlesRev = candlesRev[:target]
		}
		if len(deltaCandlesRev) > target {
			deltaCandlesRev = deltaCandlesRev[:target]
		}
	}

	if all {
		oldestForPct := int64(0)
		if oldestKnown != nil {
			oldestForPct = *oldestKnown
		}
		l.publishProgress(pagesFetched, uint64(len(candlesRev)), oldestKnown, newestSeen, oldestForPct, timeframeMs, true)
	}

	reverseCandles(candlesRev)
	reverseDeltaCandles(deltaCandlesRev)

	// A partial delta history cannot be aligned with the candle array, so it
	// degrades to empty and the live stream fills it forward.
	if len(deltaCandlesRev) != len(candlesRev) {
		deltaCandlesRev = nil
	}

	return candlesRev, deltaCandlesRev, nil
}

func (l *HistoryLoader) publishProgress(pages uint32, candles uint64, oldestKnown, newestSeen *int64, oldestFetched, timeframeMs int64, done bool) {
	progress := model.HistoryLoadProgress{
		MarketKind:     l.cfg.MarketKind,
		Symbol:         l.cfg.Symbol,
		Timeframe:      l.cfg.Timeframe,
		PagesFetched:   pages,
		CandlesFetched: candles,
		Done:           done,
	}

	if oldestKnown != nil && newestSeen != nil && *newestSeen >= *oldestKnown {
		total := uint64((*newestSeen-*oldestKnown)/timeframeMs) + 1
		progress.EstimatedTotalCandles = &total

		if done {
			pct := 100.0
			progress.ProgressPct = &pct
		} else {
			totalSpan := *newestSeen - *oldestKnown + timeframeMs
			if totalSpan < 1 {
				totalSpan = 1
			}
			coveredSpan := *newestSeen - oldestFetched + timeframeMs
			if coveredSpan < 0 {
				coveredSpan = 0
			}
			pct := float64(coveredSpan) / float64(totalSpan) * 100
			if pct > 99.9 {
				pct = 99.9
			}
			if pct < 0 {
				pct = 0
			}
			progress.ProgressPct = &pct
		}
	} else if done {
		pct := 100.0
		progress.ProgressPct = &pct
	}

	l.sink.Publish(model.EventHistoryLoadProgress, progress)
}

func reverseCandles(candles []model.Candle) {
	for i, j := 0, len(candles)-1; i < j; i, j = i+1, j-1 {
		candles[i], candles[j] = candles[j], candles[i]
	}
}

func reverseDeltaCandles(candles []model.DeltaCandle) {
	for i, j := 0, len(candles)-1; i < j; i, j = i+1, j-1 {
		candles[i], candles[j] = candles[j], candles[i]
	}
}
