package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"marketstream/internal/exchange"
	"marketstream/internal/model"
)

// ErrAlreadyStarting is returned when start is called while another start is
// still in flight.
var ErrAlreadyStarting = errors.New("another start is already in progress")

// taskJoinTimeout bounds how long stop waits for the session tasks to yield
// before abandoning them.
const taskJoinTimeout = 2 * time.Second

// Gateway combines the exchange surfaces the pipeline tasks consume.
type Gateway interface {
	StreamGateway
	HistoryGateway
	TimeSource
}

// GatewayFactory builds the exchange client for a session's market kind.
type GatewayFactory func(kind model.MarketKind) Gateway

// frameDropAccounting is implemented by sinks that count dropped frames.
type frameDropAccounting interface {
	FramesDropped() uint64
}

// Controller owns the pipeline lifecycle: exactly one live session per
// process. Starting a session with a different identity stops the previous
// one first; starting with the same identity refreshes the refreshable flags
// in place without dropping the websocket.
type Controller struct {
	mu       sync.Mutex
	starting atomic.Bool

	sink    EventSink
	factory GatewayFactory

	active     *activeSession
	lastStatus *StatusStore
}

type activeSession struct {
	cfg       model.StreamConfig
	flags     *SessionFlags
	cancel    context.CancelFunc
	done      chan struct{}
	status    *StatusStore
	publisher *statusPublisher
}

func (s *activeSession) alive() bool {
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

// NewController builds the process-wide controller. A nil factory uses the
// production exchange client.
func NewController(sink EventSink, factory GatewayFactory) *Controller {
	if factory == nil {
		factory = func(kind model.MarketKind) Gateway {
			return exchange.NewClient(kind, nil)
		}
	}
	return &Controller{sink: sink, factory: factory}
}

// Start validates the arguments and either refreshes the running session in
// place (same market kind, symbol and timeframe) or replaces it with a new
// pipeline. Transient streaming failures after a successful start never
// propagate out of this call.
func (c *Controller) Start(args model.StartStreamArgs) (model.Session, error) {
	cfg, err := args.Normalize()
	if err != nil {
		return model.Session{}, err
	}

	if !c.starting.CompareAndSwap(false, true) {
		return model.Session{}, ErrAlreadyStarting
	}
	defer c.starting.Store(false)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active != nil && c.active.alive() && c.active.cfg.SameIdentity(cfg) {
		c.active.flags.Refresh(cfg)
		merged := c.active.cfg
		merged.MinNotionalUsdt = cfg.MinNotionalUsdt
		merged.EmitIntervalMs = cfg.EmitIntervalMs
		merged.EmitLegacyPriceEvent = cfg.EmitLegacyPriceEvent
		merged.EmitLegacyFrameEvents = cfg.EmitLegacyFrameEvents
		merged.PerfTelemetry = cfg.PerfTelemetry
		c.active.cfg = merged

		log.Info().Str("symbol", cfg.Symbol).Msg("session flags refreshed in place")
		return model.SessionFromConfig(merged), nil
	}

	c.stopLocked("superseded by new session")

	session := c.launch(cfg)
	c.active = session
	c.lastStatus = session.status

	log.Info().
		Str("marketKind", string(cfg.MarketKind)).
		Str("symbol", cfg.Symbol).
		Str("timeframe", string(cfg.Timeframe)).
		Bool("mockMode", cfg.MockMode).
		Msg("market stream session started")

	return model.SessionFromConfig(cfg), nil
}

// Stop cancels the running session, joins its tasks with a bounded wait and
// reports stopped even when nothing was running. Idempotent.
func (c *Controller) Stop() model.StopResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stopLocked("stream stopped by command")
	return model.StopResult{Stopped: true}
}

// Status returns the latest status snapshot, or an idle placeholder when no
// session has ever run.
func (c *Controller) Status() model.StatusSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active != nil {
		snapshot := c.active.status.Current()
		c.active.publisher.telemetry.Fill(&snapshot)
		return snapshot
	}
	if c.lastStatus != nil {
		return c.lastStatus.Current()
	}
	return model.StoppedStatus(model.DefaultMarketKind, model.DefaultSymbol, model.DefaultTimeframe, "stream idle")
}

// launch wires the session tasks: producer (or mock generator), consumer,
// heartbeat, clock sync and the history loader.
func (c *Controller) launch(cfg model.StreamConfig) *activeSession {
	gateway := c.factory(cfg.MarketKind)
	state := NewConflatedState()
	telemetry := NewTelemetry()
	perf := NewPerfRecorder()
	flags := NewSessionFlags(cfg)

	statusStore := NewStatusStore(model.StatusSnapshot{
		State:      model.StateConnecting,
		MarketKind: cfg.MarketKind,
		Symbol:     cfg.Symbol,
		Timeframe:  cfg.Timeframe,
	})
	publisher := newStatusPublisher(statusStore, telemetry, c.sink, cfg)

	ctx, cancel := context.WithCancel(context.Background())

	framesDropped := func() uint64 { return 0 }
	if accounting, ok := c.sink.(frameDropAccounting); ok {
		framesDropped = accounting.FramesDropped
	}

	var wg sync.WaitGroup

	consumer := NewConsumer(state, telemetry, perf, flags, c.sink)
	wg.Add(1)
	go func() {
		defer wg.Done()
		consumer.Run(ctx)
	}()

	heartbeat := NewHeartbeat(publisher, perf, flags, c.sink, framesDropped)
	wg.Add(1)
	go func() {
		defer wg.Done()
		heartbeat.Run(ctx)
	}()

	if !cfg.MockMode {
		clockSync := NewClockSync(gateway, telemetry, cfg.ClockSyncIntervalMs)
		wg.Add(1)
		go func() {
			defer wg.Done()
			clockSync.Run(ctx)
		}()
	}

	history := NewHistoryLoader(gateway, cfg, state, c.sink)

	wg.Add(1)
	go func() {
		defer wg.Done()

		if cfg.MockMode {
			_ = history.Run(ctx)
			NewMockProducer(cfg, flags, state, telemetry, perf, publisher).Run(ctx)
			return
		}

		if cfg.StartupMode == model.StartupHistoryFirst {
			publisher.publish(model.StateConnecting, "loading historical candles")
			_ = history.Run(ctx)
		} else {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_ = history.Run(ctx)
			}()
		}
		if ctx.Err() != nil {
			return
		}

		producer := NewProducer(gateway, cfg, flags, state, telemetry, perf, publisher, cancel)
		producer.Run(ctx)
	}()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	return &activeSession{
		cfg:       cfg,
		flags:     flags,
		cancel:    cancel,
		done:      done,
		status:    statusStore,
		publisher: publisher,
	}
}

// stopLocked cancels and joins the active session. Callers hold c.mu.
func (c *Controller) stopLocked(reason string) {
	if c.active == nil {
		return
	}
	session := c.active
	c.active = nil
	c.lastStatus = session.status

	session.cancel()
	select {
	case <-session.done:
	case <-time.After(taskJoinTimeout):
		log.Warn().Str("symbol", session.cfg.Symbol).Msg("session tasks did not yield in time, abandoning")
	}

	session.publisher.publish(model.StateStopped, reason)
}
