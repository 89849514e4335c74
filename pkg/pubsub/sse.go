package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/ritzau/pipegraph/pkg/logging"
)

// ErrClosed is returned after the publisher has been closed
var ErrClosed = errors.New("pubsub: publisher is closed")

// subscriberBuffer bounds how far a slow client may fall behind before
// events are dropped for it
const subscriberBuffer = 64

// TopicConfig configures replay for late subscribers
type TopicConfig struct {
	BufferSize int  // events kept for replay, 0 keeps none
	ReplayAll  bool // replay every kept event instead of only the latest
}

// SSEPublisher implements Publisher for server-sent event streams
type SSEPublisher struct {
	mu      sync.RWMutex
	subs    map[string]map[*sseSubscription]struct{}
	version map[string]int
	replay  map[string][]Event
	config  map[string]TopicConfig
	closed  bool
}

func NewSSEPublisher() *SSEPublisher {
	return &SSEPublisher{
		subs:    make(map[string]map[*sseSubscription]struct{}),
		version: make(map[string]int),
		replay:  make(map[string][]Event),
		config:  make(map[string]TopicConfig),
	}
}

// ConfigureTopic sets the replay behaviour of a topic
func (p *SSEPublisher) ConfigureTopic(topic string, cfg TopicConfig) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.config[topic] = cfg
}

func (p *SSEPublisher) Subscribe(ctx context.Context, topic string) (Subscription, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrClosed
	}

	sub := &sseSubscription{
		topic:     topic,
		events:    make(chan Event, subscriberBuffer),
		publisher: p,
	}
	if p.subs[topic] == nil {
		p.subs[topic] = make(map[*sseSubscription]struct{})
	}
	p.subs[topic][sub] = struct{}{}

	pending := p.replay[topic]
	if !p.config[topic].ReplayAll && len(pending) > 1 {
		pending = pending[len(pending)-1:]
	}
	if len(pending) > subscriberBuffer {
		pending = pending[len(pending)-subscriberBuffer:]
	}
	// The channel is fresh and holds the whole replay, so this cannot block.
	for _, ev := range pending {
		sub.events <- ev
	}
	p.mu.Unlock()

	logging.Debug("subscribed", "topic", topic, "replayed", len(pending))

	go func() {
		<-ctx.Done()
		sub.Close()
	}()
	return sub, nil
}

// Publish marshals data and delivers it to every subscriber of topic without
// blocking. A subscriber whose buffer is full misses the event.
func (p *SSEPublisher) Publish(topic string, eventType string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}

	p.version[topic]++
	ev := Event{Topic: topic, Type: eventType, Data: payload, Version: p.version[topic]}

	if size := p.config[topic].BufferSize; size > 0 {
		buf := append(p.replay[topic], ev)
		if len(buf) > size {
			buf = buf[len(buf)-size:]
		}
		p.replay[topic] = buf
	}

	for sub := range p.subs[topic] {
		select {
		case sub.events <- ev:
		default:
			logging.Warn("dropping event for slow subscriber", "topic", topic, "version", ev.Version)
		}
	}
	return nil
}

// Close ends every subscription; their event channels are closed
func (p *SSEPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	for _, subs := range p.subs {
		for sub := range subs {
			close(sub.events)
		}
	}
	clear(p.subs)
	return nil
}

func (p *SSEPublisher) unsubscribe(sub *sseSubscription) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if subs := p.subs[sub.topic]; subs != nil {
		delete(subs, sub)
		if len(subs) == 0 {
			delete(p.subs, sub.topic)
		}
	}
}

type sseSubscription struct {
	topic     string
	events    chan Event
	publisher *SSEPublisher

	once sync.Once
}

func (s *sseSubscription) Topic() string        { return s.topic }
func (s *sseSubscription) Events() <-chan Event { return s.events }

func (s *sseSubscription) Close() error {
	s.once.Do(func() { s.publisher.unsubscribe(s) })
	return nil
}

// WriteSSE writes one event in text/event-stream framing
func WriteSSE(w io.Writer, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	_, err = fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", ev.Version, ev.Topic, data)
	return err
}
