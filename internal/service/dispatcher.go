// Package service provides the event distribution layer between the
// streaming pipeline and its subscribers.
//
// The dispatcher implements a fan-out system that delivers pipeline events
// to multiple subscribers while handling slow clients gracefully: a full
// subscriber buffer drops the oldest event in favor of the newest and the
// drop is accounted, but the pipeline is never blocked.
package service

import (
	"context"
	"errors"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

// Event is one published pipeline event with its payload.
type Event struct {
	Name    string `json:"event"`
	Payload any    `json:"payload"`
}

// Subscriber is one client connection's buffered event feed.
type Subscriber struct {
	id int64
	ch chan Event
}

// Events returns the subscriber's receive channel. It is closed on
// unsubscribe and on dispatcher shutdown.
func (s *Subscriber) Events() <-chan Event {
	return s.ch
}

// DispatcherConfig holds tuning parameters for the dispatcher.
type DispatcherConfig struct {
	// SubscriberBuffer is the per-subscriber channel capacity.
	SubscriberBuffer int

	// PublishBuffer is the capacity of the inbound event channel shared by
	// all publishers.
	PublishBuffer int
}

// Dispatcher fans events out to subscribers using the actor model: a single
// goroutine owns the subscriber map, so no mutex guards it. Publishers and
// subscription requests reach the goroutine through buffered channels.
type Dispatcher struct {
	cfg              DispatcherConfig
	subscribers      map[int64]*Subscriber
	subscriptionCh   chan *Subscriber
	unsubscriptionCh chan *Subscriber
	eventCh          chan Event
	started          atomic.Bool
	framesDropped    atomic.Uint64
	randIDGen        *rand.Rand
}

// NewDispatcher creates a dispatcher with the provided configuration. Zero
// values select sensible buffer sizes.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	if cfg.SubscriberBuffer <= 0 {
		cfg.SubscriberBuffer = 256
	}
	if cfg.PublishBuffer <= 0 {
		cfg.PublishBuffer = 1_024
	}
	return &Dispatcher{
		cfg:              cfg,
		subscribers:      make(map[int64]*Subscriber),
		subscriptionCh:   make(chan *Subscriber, 10),
		unsubscriptionCh: make(chan *Subscriber, 10),
		eventCh:          make(chan Event, cfg.PublishBuffer),
		randIDGen:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Publish enqueues one event without ever blocking the caller. When the
// inbound buffer is full the event is dropped and counted.
func (d *Dispatcher) Publish(name string, payload any) {
	select {
	case d.eventCh <- Event{Name: name, Payload: payload}:
	default:
		d.framesDropped.Add(1)
	}
}

// FramesDropped returns the cumulative number of events dropped anywhere in
// the fan-out.
func (d *Dispatcher) FramesDropped() uint64 {
	return d.framesDropped.Load()
}

// Subscribe registers a new subscriber.
func (d *Dispatcher) Subscribe() (*Subscriber, error) {
	if !d.started.Load() {
		return nil, errors.New("dispatcher not started")
	}

	sub := &Subscriber{
		id: d.randIDGen.Int63(),
		ch: make(chan Event, d.cfg.SubscriberBuffer),
	}

	select {
	case d.subscriptionCh <- sub:
	default:
		return nil, errors.New("subscription channel is full")
	}
	return sub, nil
}

// Unsubscribe removes a subscriber and closes its channel.
func (d *Dispatcher) Unsubscribe(sub *Subscriber) error {
	select {
	case d.unsubscriptionCh <- sub:
		return nil
	default:
		return errors.New("unsubscription channel is full")
	}
}

// Start launches the dispatch goroutine. The goroutine owns all shared
// state and exits on context cancellation, closing every subscriber
// channel.
func (d *Dispatcher) Start(ctx context.Context) error {
	if !d.started.CompareAndSwap(false, true) {
		return errors.New("dispatcher already started")
	}

	go func() {
		defer func() {
			for _, sub := range d.subscribers {
				close(sub.ch)
			}
			d.subscribers = make(map[int64]*Subscriber)
		}()

		for {
			select {
			case <-ctx.Done():
				log.Info().Msg("dispatcher stopped")
				return
			case sub := <-d.subscriptionCh:
				d.subscribers[sub.id] = sub
			case sub := <-d.unsubscriptionCh:
				if _, ok := d.subscribers[sub.id]; ok {
					delete(d.subscribers, sub.id)
					close(sub.ch)
				}
			case event := <-d.eventCh:
				d.dispatch(event)
			}
		}
	}()
	return nil
}

// dispatch delivers one event to every subscriber. Only called from the
// dispatch goroutine, so the map access needs no locking. A full subscriber
// buffer drops its oldest event so the newest is always delivered.
func (d *Dispatcher) dispatch(event Event) {
	for _, sub := range d.subscribers {
		select {
		case sub.ch <- event:
		default:
			d.framesDropped.Add(1)
			select {
			case <-sub.ch:
			default:
			}
			select {
			case sub.ch <- event:
			default:
				d.framesDropped.Add(1)
			}
		}
	}
}
