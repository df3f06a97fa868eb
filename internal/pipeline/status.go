package pipeline

import (
	"sync"
	"time"

	"marketstream/internal/model"
)

// statusReasonThrottleWindow collapses identical non-live status reasons so
// a flapping connection cannot flood the shell.
const statusReasonThrottleWindow = 2 * time.Second

// EventSink receives every event the pipeline publishes. Implementations
// must never block; a full downstream buffer drops the event and accounts
// for it.
type EventSink interface {
	Publish(event string, payload any)
}

// StatusStore holds the latest status snapshot for the status command and
// the heartbeat. Separate from the conflated state so status reads never
// contend with the hot path.
type StatusStore struct {
	mu   sync.RWMutex
	snap model.StatusSnapshot
}

// NewStatusStore seeds the store.
func NewStatusStore(initial model.StatusSnapshot) *StatusStore {
	return &StatusStore{snap: initial}
}

// Current returns the latest snapshot.
func (s *StatusStore) Current() model.StatusSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

func (s *StatusStore) set(snap model.StatusSnapshot) {
	s.mu.Lock()
	s.snap = snap
	s.mu.Unlock()
}

// statusPublisher composes status snapshots from the session identity and
// telemetry gauges, stores them and forwards them to the sink.
type statusPublisher struct {
	store     *StatusStore
	telemetry *Telemetry
	sink      EventSink

	marketKind model.MarketKind
	symbol     string
	timeframe  model.Timeframe

	throttleMu sync.Mutex
	lastState  model.ConnectionState
	lastReason string
	lastEmit   time.Time
}

func newStatusPublisher(store *StatusStore, telemetry *Telemetry, sink EventSink, cfg model.StreamConfig) *statusPublisher {
	return &statusPublisher{
		store:      store,
		telemetry:  telemetry,
		sink:       sink,
		marketKind: cfg.MarketKind,
		symbol:     cfg.Symbol,
		timeframe:  cfg.Timeframe,
	}
}

// publish stores and emits a status snapshot unconditionally.
func (p *statusPublisher) publish(state model.ConnectionState, reason string) {
	snapshot := model.StatusSnapshot{
		State:      state,
		MarketKind: p.marketKind,
		Symbol:     p.symbol,
		Timeframe:  p.timeframe,
	}
	if reason != "" {
		snapshot.Reason = &reason
	}
	p.telemetry.Fill(&snapshot)

	p.store.set(snapshot)
	p.noteEmit(state, reason)
	p.sink.Publish(model.EventMarketStatus, snapshot)
}

// publishThrottled suppresses a repeat of the same non-live state and reason
// inside the throttle window.
func (p *statusPublisher) publishThrottled(state model.ConnectionState, reason string) {
	if !p.allowEmit(state, reason) {
		return
	}
	p.publish(state, reason)
}

func (p *statusPublisher) allowEmit(state model.ConnectionState, reason string) bool {
	if state == model.StateLive {
		return true
	}

	p.throttleMu.Lock()
	defer p.throttleMu.Unlock()

	if p.lastState == state && p.lastReason == reason && time.Since(p.lastEmit) < statusReasonThrottleWindow {
		return false
	}
	return true
}

func (p *statusPublisher) noteEmit(state model.ConnectionState, reason string) {
	p.throttleMu.Lock()
	p.lastState = state
	p.lastReason = reason
	p.lastEmit = time.Now()
	p.throttleMu.Unlock()
}

// currentState returns the state and reason the heartbeat re-publishes.
func (p *statusPublisher) currentState() (model.ConnectionState, string) {
	snap := p.store.Current()
	reason := ""
	if snap.Reason != nil {
		reason = *snap.Reason
	}
	return snap.State, reason
}
