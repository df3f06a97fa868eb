package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/rs/zerolog/log"

	"marketstream/internal/exchange"
	"marketstream/internal/model"
	"marketstream/internal/websocket"
)

const (
	reconnectBaseDelay     = 250 * time.Millisecond
	reconnectMaxDelay      = 8 * time.Second
	reconnectJitterRatio   = 0.2
	protocolViolationLimit = 10
)

// StreamGateway is the slice of the exchange client the producer needs.
type StreamGateway interface {
	LatestAggTradeSnapshot(ctx context.Context, symbol string) (model.AggTradeSnapshot, error)
	WebsocketAggTradeURL(symbol string) string
}

// Producer owns the websocket connection: it parses aggregated-trade frames
// in place, validates sequence continuity, resyncs on gaps and writes into
// the conflated state. Single writer on the hot path.
type Producer struct {
	cfg       model.StreamConfig
	flags     *SessionFlags
	gateway   StreamGateway
	state     *ConflatedState
	telemetry *Telemetry
	perf      *PerfRecorder
	status    *statusPublisher
	onFatal   func()

	dial func(ctx context.Context, cfg websocket.Config) (*websocket.Client, error)

	// Per-connection fields, written only on the read goroutine. The outer
	// loop reads them after the disconnect channel closes, which orders the
	// accesses.
	connLive           bool
	immediateReconnect bool
	fatalReason        string

	parseErrWindowStart time.Time
	parseErrCount       int
}

// NewProducer builds the producer for one session. onFatal is invoked after
// a terminal failure has been published and tears the session down.
func NewProducer(gateway StreamGateway, cfg model.StreamConfig, flags *SessionFlags, state *ConflatedState, telemetry *Telemetry, perf *PerfRecorder, status *statusPublisher, onFatal func()) *Producer {
	return &Producer{
		cfg:       cfg,
		flags:     flags,
		gateway:   gateway,
		state:     state,
		telemetry: telemetry,
		perf:      perf,
		status:    status,
		onFatal:   onFatal,
		dial:      websocket.Dial,
	}
}

// Run drives the connect/stream/reconnect loop until the context is
// cancelled or a fatal rejection terminates the pipeline.
func (p *Producer) Run(ctx context.Context) {
	logger := log.With().
		Str("component", "producer").
		Str("symbol", p.cfg.Symbol).
		Logger()

	endpoint := p.gateway.WebsocketAggTradeURL(p.cfg.Symbol)
	firstConnect := true
	attempt := 0

	for ctx.Err() == nil {
		if firstConnect {
			p.status.publish(model.StateConnecting, "opening websocket stream")
		} else {
			p.status.publishThrottled(model.StateReconnecting, fmt.Sprintf("reconnect attempt %d", attempt))
		}

		p.connLive = false
		p.immediateReconnect = false
		p.fatalReason = ""

		connCtx, cancelConn := context.WithCancel(ctx)
		client, err := p.dial(connCtx, websocket.Config{
			Endpoint: endpoint,
			Handler: func(payload []byte) error {
				return p.handleFrame(connCtx, cancelConn, payload)
			},
		})
		if err != nil {
			cancelConn()
			if errors.Is(err, websocket.ErrHandshakeRejected) {
				p.fail("websocket handshake rejected: " + err.Error())
				return
			}
			firstConnect = false
			attempt++
			logger.Warn().Err(err).Int("attempt", attempt).Msg("websocket connect failed")
			p.status.publishThrottled(model.StateReconnecting, "websocket connect error: "+err.Error())
			if !sleepContext(ctx, reconnectDelay(attempt)) {
				return
			}
			continue
		}
		firstConnect = false

		select {
		case <-ctx.Done():
			client.Close()
			return
		case <-client.DisconnectChan():
		}
		cancelConn()
		client.Close()

		if ctx.Err() != nil {
			return
		}
		if p.fatalReason != "" {
			p.fail(p.fatalReason)
			return
		}
		if p.immediateReconnect {
			attempt = 0
			continue
		}

		attempt++
		p.status.publishThrottled(model.StateReconnecting, "websocket disconnected")
		if !sleepContext(ctx, reconnectDelay(attempt)) {
			return
		}
	}
}

// handleFrame is the hot path: parse in place, validate sequence, apply
// under the fast mutex, record telemetry. Runs on the read goroutine.
func (p *Producer) handleFrame(connCtx context.Context, cancelConn context.CancelFunc, payload []byte) error {
	if connCtx.Err() != nil {
		return nil
	}
	ingestStart := time.Now()

	trade, err := model.ParseAggTrade(payload)
	if err != nil {
		if p.noteProtocolViolation() {
			p.fatalReason = "sustained protocol violations on stream: " + err.Error()
			cancelConn()
			return nil
		}
		return err
	}
	parseUs := boundedMicros(time.Since(ingestStart))

	// Live is published before the apply becomes visible so the live status
	// always precedes the first frame emission of a connection.
	if !p.connLive {
		p.connLive = true
		p.status.publish(model.StateLive, "websocket stream live")
	}

	applyStart := time.Now()
	outcome := p.state.ApplyTrade(trade, p.flags.MinNotionalUsdt(), p.cfg.Timeframe)
	applyUs := boundedMicros(time.Since(applyStart))
	p.perf.RecordParseApply(parseUs, applyUs)

	switch outcome.Kind {
	case ApplyAccepted, ApplyFiltered:
		p.perf.IncIngest()
		p.telemetry.SetLastAggID(trade.AggregateID)

		nowMs := time.Now().UnixMilli()
		rawMs := nowMs - trade.EventTimeMs
		offsetMs, offsetKnown := p.telemetry.ClockOffset()
		p.telemetry.SetNetworkLatencies(rawMs, adjustedNetworkLatency(rawMs, offsetMs, offsetKnown))

		pipelineMs := time.Since(ingestStart).Milliseconds()
		p.telemetry.SetLocalPipelineLatency(pipelineMs)
		p.perf.RecordPipelineLatency(pipelineMs)

	case ApplyStale:
		// Duplicate or out-of-order delivery; dropped silently.

	case ApplyGap:
		p.status.publish(model.StateDesynced, fmt.Sprintf(
			"sequence gap detected (expected %d, found %d, missed %d)",
			outcome.Expected, outcome.Found, outcome.Missed()))
		p.resync(connCtx, cancelConn)
	}

	return nil
}

// resync refetches the latest aggregate id over REST, resets the sequence
// cursor and forces an immediate reconnect. The REST client retries
// transient failures internally; a rejection terminates the pipeline.
func (p *Producer) resync(connCtx context.Context, cancelConn context.CancelFunc) {
	snapshot, err := p.gateway.LatestAggTradeSnapshot(connCtx, p.cfg.Symbol)
	if err != nil {
		if errors.Is(err, exchange.ErrRejected) {
			p.fatalReason = "resync rejected by exchange: " + err.Error()
		} else {
			p.status.publishThrottled(model.StateReconnecting, "resync snapshot fetch failed: "+err.Error())
		}
		cancelConn()
		return
	}

	p.state.ApplySnapshot(snapshot.AggregateID)
	p.telemetry.SetLastAggID(snapshot.AggregateID)
	p.status.publish(model.StateReconnecting, fmt.Sprintf(
		"resync snapshot applied at aggregate id %d, reopening stream", snapshot.AggregateID))

	p.immediateReconnect = true
	cancelConn()
}

// noteProtocolViolation counts malformed frames and reports whether the
// sustained rate limit has been exceeded within the current one-second
// window.
func (p *Producer) noteProtocolViolation() bool {
	now := time.Now()
	if now.Sub(p.parseErrWindowStart) > time.Second {
		p.parseErrWindowStart = now
		p.parseErrCount = 0
	}
	p.parseErrCount++
	return p.parseErrCount > protocolViolationLimit
}

func (p *Producer) fail(reason string) {
	log.Error().Str("component", "producer").Str("symbol", p.cfg.Symbol).Msg(reason)
	p.status.publish(model.StateError, reason)
	if p.onFatal != nil {
		p.onFatal()
	}
}

func reconnectDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	shift := attempt - 1
	if shift > 6 {
		shift = 6
	}
	delay := reconnectBaseDelay << shift
	if delay > reconnectMaxDelay {
		delay = reconnectMaxDelay
	}
	jitter := 1 - reconnectJitterRatio + 2*reconnectJitterRatio*rand.Float64()
	return time.Duration(float64(delay) * jitter)
}

func sleepContext(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

func boundedMicros(d time.Duration) uint32 {
	us := d.Microseconds()
	if us < 0 {
		return 0
	}
	if us > int64(^uint32(0)) {
		return ^uint32(0)
	}
	return uint32(us)
}
