// Package eventbus is an in-memory publish/subscribe bus keyed by topic. Topics are
// dot separated ("session.<id>.<kind>") and subscribers may use "*" for any single
// segment.
//
// Two subscription styles are supported. Streaming subscribers receive events on a
// buffered channel until they unsubscribe. One-shot subscribers register a handler
// that runs for the first matching event only; the registration is removed under
// the bus lock before the handler runs, so concurrent publishers can never invoke
// the same one-shot handler twice. Events published while nobody is subscribed are
// dropped.
package eventbus

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Kind names the type of a session event.
type Kind string

const (
	KindQR     Kind = "qr"
	KindStatus Kind = "status"
)

type Event struct {
	Topic string
	Data  any
}

// Topic returns the topic for events of kind for one session.
func Topic(sessionID string, kind Kind) string {
	return fmt.Sprintf("session.%s.%s", sessionID, kind)
}

// SessionPattern matches every topic of one session.
func SessionPattern(sessionID string) string {
	return fmt.Sprintf("session.%s.*", sessionID)
}

// Subscriber is a streaming subscription backed by a buffered channel.
type Subscriber struct {
	ID      string
	Topic   string
	Channel chan Event
	Context context.Context
	Cancel  context.CancelFunc

	mu     sync.Mutex
	closed bool
}

// TimedSend delivers event or gives up after timeout. Returns false when the
// subscriber is closed or the send timed out.
func (s *Subscriber) TimedSend(event Event, timeout time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case s.Channel <- event:
		return true
	case <-timer.C:
		return false
	}
}

// Close cancels the subscriber context and closes its channel. Safe to call twice.
func (s *Subscriber) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.closed {
		s.closed = true
		s.Cancel()
		close(s.Channel)
	}
}

// Handler is invoked for a one-shot subscription.
type Handler func(Event)

// Subscription is a pending one-shot registration.
type Subscription struct {
	id      string
	topic   string
	handler Handler
	bus     *EventBus
}

// Cancel deregisters the subscription without firing it. It reports whether the
// subscription was still registered, i.e. false once the handler has been claimed
// by a publish.
func (s *Subscription) Cancel() bool {
	if s == nil || s.bus == nil {
		return false
	}
	bus := s.bus
	bus.Lock()
	defer bus.Unlock()

	subs, ok := bus.once[s.topic]
	if !ok {
		return false
	}
	if _, ok := subs[s.id]; !ok {
		return false
	}
	delete(subs, s.id)
	if len(subs) == 0 {
		delete(bus.once, s.topic)
	}
	return true
}

type EventBus struct {
	sync.RWMutex
	subscribers map[string]map[string]*Subscriber   // topic -> subscriberID -> Subscriber
	once        map[string]map[string]*Subscription // topic -> subscriptionID -> Subscription
	counter     uint64
}

func New() *EventBus {
	return &EventBus{
		subscribers: make(map[string]map[string]*Subscriber),
		once:        make(map[string]map[string]*Subscription),
	}
}

func (bus *EventBus) nextID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, atomic.AddUint64(&bus.counter, 1))
}

// Subscribe registers a streaming subscriber for topic. The returned function
// unsubscribes and closes the channel.
func (bus *EventBus) Subscribe(topic string, bufferSize int) (<-chan Event, func()) {
	id := bus.nextID("sub")

	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan Event, bufferSize)

	sub := &Subscriber{
		ID:      id,
		Topic:   topic,
		Channel: ch,
		Context: ctx,
		Cancel:  cancel,
	}

	bus.Lock()
	defer bus.Unlock()

	if _, ok := bus.subscribers[topic]; !ok {
		bus.subscribers[topic] = make(map[string]*Subscriber)
	}
	bus.subscribers[topic][id] = sub

	unsubscribe := func() {
		bus.Lock()
		defer bus.Unlock()

		if subMap, ok := bus.subscribers[topic]; ok {
			if s, ok := subMap[id]; ok {
				s.Close()
				delete(subMap, id)
				if len(subMap) == 0 {
					delete(bus.subscribers, topic)
				}
			}
		}
	}

	return ch, unsubscribe
}

// SubscribeOnce registers handler for the next event of kind for sessionID.
func (bus *EventBus) SubscribeOnce(sessionID string, kind Kind, handler Handler) *Subscription {
	topic := Topic(sessionID, kind)
	s := &Subscription{
		id:      bus.nextID("once"),
		topic:   topic,
		handler: handler,
		bus:     bus,
	}

	bus.Lock()
	defer bus.Unlock()

	if _, ok := bus.once[topic]; !ok {
		bus.once[topic] = make(map[string]*Subscription)
	}
	bus.once[topic][s.id] = s
	return s
}

// Publish delivers an event to every matching subscriber. One-shot handlers are
// claimed under the lock and then run on the caller's goroutine. Streaming
// subscribers that do not accept the event within timeout miss it.
func (bus *EventBus) Publish(topic string, data any, timeout time.Duration) {
	event := Event{Topic: topic, Data: data}

	var handlers []Handler
	var streams []*Subscriber

	bus.Lock()
	for pattern, subs := range bus.once {
		if !matchTopic(pattern, topic) {
			continue
		}
		for id, s := range subs {
			handlers = append(handlers, s.handler)
			delete(subs, id)
		}
		delete(bus.once, pattern)
	}
	for pattern, subMap := range bus.subscribers {
		if matchTopic(pattern, topic) {
			for _, sub := range subMap {
				streams = append(streams, sub)
			}
		}
	}
	bus.Unlock()

	for _, h := range handlers {
		h(event)
	}
	for _, sub := range streams {
		select {
		case <-sub.Context.Done():
			continue
		default:
			sub.TimedSend(event, timeout)
		}
	}
}

// CloseAllForPattern closes the streaming subscribers and drops the one-shot
// subscriptions of every topic matching pattern.
func (bus *EventBus) CloseAllForPattern(pattern string) {
	bus.Lock()
	defer bus.Unlock()

	for topic, subMap := range bus.subscribers {
		if matchTopic(pattern, topic) {
			for _, sub := range subMap {
				sub.Close()
			}
			delete(bus.subscribers, topic)
		}
	}
	for topic := range bus.once {
		if matchTopic(pattern, topic) {
			delete(bus.once, topic)
		}
	}
}

// Shutdown closes every subscriber and clears the bus.
func (bus *EventBus) Shutdown() {
	bus.Lock()
	defer bus.Unlock()

	for _, subs := range bus.subscribers {
		for _, sub := range subs {
			sub.Close()
		}
	}
	bus.subscribers = make(map[string]map[string]*Subscriber)
	bus.once = make(map[string]map[string]*Subscription)
}

// PendingOnce returns the number of registered one-shot subscriptions.
func (bus *EventBus) PendingOnce() int {
	bus.RLock()
	defer bus.RUnlock()
	n := 0
	for _, subs := range bus.once {
		n += len(subs)
	}
	return n
}

// matchTopic reports whether topic matches pattern. "*" alone matches anything,
// otherwise "*" matches exactly one segment.
func matchTopic(pattern, topic string) bool {
	if pattern == "" || topic == "" {
		return false
	}
	if pattern == "*" || pattern == topic {
		return true
	}
	patternParts := strings.Split(pattern, ".")
	topicParts := strings.Split(topic, ".")

	if len(patternParts) != len(topicParts) {
		return false
	}

	for i := 0; i < len(patternParts); i++ {
		if patternParts[i] == "*" {
			continue
		}
		if patternParts[i] != topicParts[i] {
			return false
		}
	}
	return true
}
