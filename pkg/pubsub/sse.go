package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/ritzau/module-graph/pkg/logging"
)

// subscriptionBuffer is the number of undelivered events a subscriber may lag behind
const subscriptionBuffer = 100

// topicState is everything the publisher tracks for one topic
type topicState struct {
	subs    map[*sseSubscription]struct{}
	version int
	retain  bool
	last    *Event // Most recent event, kept only for retained topics
}

// SSEPublisher implements Publisher for Server-Sent Events streams. Retained
// topics hand their most recent event to every new subscriber, so a client
// connecting mid-run still learns the current analysis state.
type SSEPublisher struct {
	mu     sync.RWMutex
	topics map[string]*topicState
	closed bool
}

// NewSSEPublisher creates a publisher without retained topics
func NewSSEPublisher() *SSEPublisher {
	return &SSEPublisher{topics: make(map[string]*topicState)}
}

// topic returns the state of name, creating it on first use. Callers hold mu.
func (p *SSEPublisher) topic(name string) *topicState {
	t, ok := p.topics[name]
	if !ok {
		t = &topicState{subs: make(map[*sseSubscription]struct{})}
		p.topics[name] = t
	}
	return t
}

// Retain keeps the last event published on topic for future subscribers
func (p *SSEPublisher) Retain(topic string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topic(topic).retain = true
}

// Subscribe creates a subscription that ends when ctx is done
func (p *SSEPublisher) Subscribe(ctx context.Context, topic string) (Subscription, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, fmt.Errorf("publisher is closed")
	}

	sub := &sseSubscription{
		topic:     topic,
		events:    make(chan Event, subscriptionBuffer),
		publisher: p,
	}
	t := p.topic(topic)
	t.subs[sub] = struct{}{}

	// The channel is fresh, so the retained event always fits. Sending under
	// the lock keeps Close from closing the channel first.
	if t.last != nil {
		sub.events <- *t.last
		logging.Trace("replayed retained event", "topic", topic, "version", t.last.Version)
	}
	p.mu.Unlock()

	go func() {
		<-ctx.Done()
		_ = sub.Close()
	}()

	return sub, nil
}

// Publish sends an event to every subscriber of topic. Slow subscribers
// miss events rather than block the publisher.
func (p *SSEPublisher) Publish(topic string, eventType string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return fmt.Errorf("publisher is closed")
	}

	t := p.topic(topic)
	t.version++
	event := Event{
		Topic:   topic,
		Type:    eventType,
		Data:    payload,
		Version: t.version,
	}
	if t.retain {
		t.last = &event
	}

	for sub := range t.subs {
		select {
		case sub.events <- event:
		default:
			logging.Warn("subscription channel full, dropping event", "topic", topic, "type", eventType)
		}
	}
	return nil
}

// Close ends every subscription. Further calls are no-ops.
func (p *SSEPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	for _, t := range p.topics {
		for sub := range t.subs {
			close(sub.events)
		}
		t.subs = make(map[*sseSubscription]struct{})
	}
	return nil
}

func (p *SSEPublisher) unsubscribe(sub *sseSubscription) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if t, ok := p.topics[sub.topic]; ok {
		delete(t.subs, sub)
	}
}

// subscribers returns the number of open subscriptions on topic
func (p *SSEPublisher) subscribers(topic string) int {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if t, ok := p.topics[topic]; ok {
		return len(t.subs)
	}
	return 0
}

// sseSubscription implements Subscription
type sseSubscription struct {
	topic     string
	events    chan Event
	publisher *SSEPublisher
	once      sync.Once
}

func (s *sseSubscription) Topic() string {
	return s.topic
}

func (s *sseSubscription) Events() <-chan Event {
	return s.events
}

// Close detaches the subscription from its publisher
func (s *sseSubscription) Close() error {
	s.once.Do(func() { s.publisher.unsubscribe(s) })
	return nil
}

// WriteSSE writes event as one SSE message: "data: {json}\n\n"
func WriteSSE(w io.Writer, event Event) error {
	jsonData, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	_, err = fmt.Fprintf(w, "data: %s\n\n", jsonData)
	return err
}
