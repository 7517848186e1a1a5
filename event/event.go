// Package event implements a small in-process publish/subscribe bus: one
// publisher call fans out to synchronous handler callbacks and to
// buffered, drop-oldest channel subscribers, with an optional
// Synchronizer letting the publisher wait for channel subscribers to
// acknowledge an event before moving on.
package event

import (
	"context"
	"sync"
	"time"

	logging "github.com/ipfs/go-log"
)

var log = logging.Logger("event")

// Topic names a category of event.
type Topic string

// Event is one published occurrence: its topic, an optional correlation
// ID, when it was published, and an arbitrary payload.
type Event struct {
	Topic     Topic
	ID        string
	Timestamp int64
	Payload   interface{}
}

// Handler processes an event synchronously and may return an error,
// which is logged but does not stop delivery to other handlers.
type Handler func(ctx context.Context, e Event) error

// NowFunc returns the current time, used to timestamp events. Overridable
// in tests.
var NowFunc = time.Now

// chanBufferMin is the minimum buffer size for a channel subscription,
// per the address-stream subscriber queue sizing decision: drop-oldest
// with a minimum buffer of 16.
const chanBufferMin = 16

// Bus is a publish/subscribe hub. Handler-based subscriptions
// (SubscribeTopics, SubscribeID, SubscribeAll) run synchronously, in
// registration order, inside the Publish/PublishID call. Channel-based
// subscriptions (Subscribe) are delivered to a bounded, drop-oldest
// buffer and consumed independently by the caller.
type Bus interface {
	// Publish delivers payload under topic to every handler and channel
	// subscribed to topic, plus every SubscribeAll handler.
	Publish(ctx context.Context, topic Topic, payload interface{})
	// PublishID delivers payload under topic and id to every handler
	// subscribed to id via SubscribeID, plus every SubscribeAll handler.
	PublishID(ctx context.Context, topic Topic, id string, payload interface{})
	// Subscribe returns a channel receiving every event published under
	// any of topics.
	Subscribe(topics ...Topic) <-chan Event
	// SubscribeID registers handler to run for every PublishID call
	// carrying id.
	SubscribeID(handler Handler, id string)
	// SubscribeTopics registers handler to run for every Publish call
	// carrying any of topics.
	SubscribeTopics(handler Handler, topics ...Topic)
	// SubscribeAll registers handler to run for every Publish and
	// PublishID call, regardless of topic or id.
	SubscribeAll(handler Handler)
	// Acknowledge reports that a channel subscriber has finished
	// processing e, optionally with an error, to whichever Synchronizer
	// is currently tracking it.
	Acknowledge(e Event, err error)
	// Synchronizer returns a new Synchronizer that becomes the bus's
	// active synchronizer: subsequent Publish calls register their
	// channel-subscriber fan-out count with it, and subsequent
	// Acknowledge calls report to it.
	Synchronizer() Synchronizer
}

type chanSub struct {
	topics map[Topic]bool
	ch     chan Event
}

type bus struct {
	ctx context.Context

	mu            sync.Mutex
	topicHandlers map[Topic][]Handler
	idHandlers    map[string][]Handler
	allHandlers   []Handler
	chanSubs      []*chanSub
	activeSync    *synchronizer
}

// NewBus constructs an empty Bus. ctx bounds nothing on its own today,
// but is accepted so a future cancellation-driven teardown (closing
// outstanding channel subscriptions) has somewhere to hook in.
func NewBus(ctx context.Context) Bus {
	return &bus{
		ctx:           ctx,
		topicHandlers: make(map[Topic][]Handler),
		idHandlers:    make(map[string][]Handler),
	}
}

func (b *bus) SubscribeTopics(handler Handler, topics ...Topic) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, t := range topics {
		b.topicHandlers[t] = append(b.topicHandlers[t], handler)
	}
}

func (b *bus) SubscribeID(handler Handler, id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.idHandlers[id] = append(b.idHandlers[id], handler)
}

func (b *bus) SubscribeAll(handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.allHandlers = append(b.allHandlers, handler)
}

func (b *bus) Subscribe(topics ...Topic) <-chan Event {
	set := make(map[Topic]bool, len(topics))
	for _, t := range topics {
		set[t] = true
	}
	ch := make(chan Event, chanBufferMin)
	b.mu.Lock()
	b.chanSubs = append(b.chanSubs, &chanSub{topics: set, ch: ch})
	b.mu.Unlock()
	return ch
}

func (b *bus) Publish(ctx context.Context, topic Topic, payload interface{}) {
	e := Event{Topic: topic, Timestamp: NowFunc().UnixNano(), Payload: payload}

	b.mu.Lock()
	handlers := append([]Handler{}, b.topicHandlers[topic]...)
	handlers = append(handlers, b.allHandlers...)
	var subs []*chanSub
	for _, cs := range b.chanSubs {
		if cs.topics[topic] {
			subs = append(subs, cs)
		}
	}
	activeSync := b.activeSync
	b.mu.Unlock()

	for _, h := range handlers {
		if err := h(ctx, e); err != nil {
			log.Debugf("event: handler for topic %s returned error: %s", topic, err)
		}
	}

	if activeSync != nil && len(subs) > 0 {
		activeSync.Outstanding(topic, len(subs))
	}
	for _, cs := range subs {
		sendDropOldest(cs.ch, e)
	}
}

func (b *bus) PublishID(ctx context.Context, topic Topic, id string, payload interface{}) {
	e := Event{Topic: topic, ID: id, Timestamp: NowFunc().UnixNano(), Payload: payload}

	b.mu.Lock()
	handlers := append([]Handler{}, b.idHandlers[id]...)
	handlers = append(handlers, b.allHandlers...)
	b.mu.Unlock()

	for _, h := range handlers {
		if err := h(ctx, e); err != nil {
			log.Debugf("event: handler for id %s returned error: %s", id, err)
		}
	}
}

func (b *bus) Acknowledge(e Event, err error) {
	b.mu.Lock()
	s := b.activeSync
	b.mu.Unlock()
	if s != nil {
		s.ack(e.Topic, err)
	}
}

func (b *bus) Synchronizer() Synchronizer {
	s := newSynchronizer()
	b.mu.Lock()
	b.activeSync = s
	b.mu.Unlock()
	return s
}

// sendDropOldest sends e on ch, dropping the oldest queued event to make
// room if ch is full rather than ever blocking the publisher.
func sendDropOldest(ch chan Event, e Event) {
	for {
		select {
		case ch <- e:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}
