package pipeline

import (
	"sync"

	"marketstream/internal/model"
)

// captureSink records every published event for assertions.
type captureSink struct {
	mu     sync.Mutex
	events []capturedEvent
}

type capturedEvent struct {
	name    string
	payload any
}

func (s *captureSink) Publish(name string, payload any) {
	s.mu.Lock()
	s.events = append(s.events, capturedEvent{name: name, payload: payload})
	s.mu.Unlock()
}

func (s *captureSink) names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, len(s.events))
	for i, event := range s.events {
		names[i] = event.name
	}
	return names
}

func (s *captureSink) payloads(name string) []any {
	s.mu.Lock()
	defer s.mu.Unlock()
	var payloads []any
	for _, event := range s.events {
		if event.name == name {
			payloads = append(payloads, event.payload)
		}
	}
	return payloads
}

func (s *captureSink) statuses() []model.StatusSnapshot {
	var snapshots []model.StatusSnapshot
	for _, payload := range s.payloads(model.EventMarketStatus) {
		if snapshot, ok := payload.(model.StatusSnapshot); ok {
			snapshots = append(snapshots, snapshot)
		}
	}
	return snapshots
}

func (s *captureSink) states() []model.ConnectionState {
	var states []model.ConnectionState
	for _, snapshot := range s.statuses() {
		states = append(states, snapshot.State)
	}
	return states
}

// sampleTrade builds a trade with event time equal to trade time.
func sampleTrade(id uint64, tradeTimeMs int64, price, quantity float64, isBuyerMaker bool) model.AggTrade {
	return model.AggTrade{
		EventTimeMs:  tradeTimeMs,
		AggregateID:  id,
		Price:        price,
		Quantity:     quantity,
		TradeTimeMs:  tradeTimeMs,
		IsBuyerMaker: isBuyerMaker,
	}
}

func defaultTestConfig() model.StreamConfig {
	cfg, err := model.StartStreamArgs{}.Normalize()
	if err != nil {
		panic(err)
	}
	return cfg
}
