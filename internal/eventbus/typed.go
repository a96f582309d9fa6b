package eventbus

import (
	"context"
	"sync"
	"time"
)

// TopicDef ties a topic to the payload type carried on it.
type TopicDef[T any] struct{ topic Topic }

// NewTopicDef declares a typed topic.
func NewTopicDef[T any](topic Topic) TopicDef[T] { return TopicDef[T]{topic: topic} }

// Topic returns the raw topic name.
func (d TopicDef[T]) Topic() Topic { return d.topic }

// PublishOption adjusts the envelope built by Publish.
type PublishOption func(*Envelope)

// WithTimestamp stamps the envelope with ts instead of the publish time.
func WithTimestamp(ts time.Time) PublishOption {
	return func(env *Envelope) { env.Timestamp = ts }
}

// WithCorrelationID tags the envelope; sessions pass their session ID.
func WithCorrelationID(id string) PublishOption {
	return func(env *Envelope) { env.CorrelationID = id }
}

// Publish sends payload on td. Publishing to a nil bus does nothing.
func Publish[T any](ctx context.Context, bus *Bus, td TopicDef[T], source Source, payload T, opts ...PublishOption) {
	if bus == nil {
		return
	}
	env := Envelope{Topic: td.topic, Source: source, Payload: payload}
	for _, opt := range opts {
		opt(&env)
	}
	bus.publish(ctx, env)
}

// TypedEnvelope is an Envelope whose payload has already been asserted.
type TypedEnvelope[T any] struct {
	Topic         Topic
	Timestamp     time.Time
	Source        Source
	CorrelationID string
	Payload       T
}

// TypedSubscription relays a raw subscription, dropping payloads of any
// other type.
type TypedSubscription[T any] struct {
	raw  *Subscription
	out  chan TypedEnvelope[T]
	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// SubscribeTo subscribes to td. On a nil bus the channel is already closed.
func SubscribeTo[T any](bus *Bus, td TopicDef[T], opts ...SubscriptionOption) *TypedSubscription[T] {
	ts := &TypedSubscription[T]{
		raw:  bus.Subscribe(td.topic, opts...),
		out:  make(chan TypedEnvelope[T]),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	go ts.relay()
	return ts
}

// C returns the typed channel. It closes after the subscription does.
func (ts *TypedSubscription[T]) C() <-chan TypedEnvelope[T] {
	return ts.out
}

// Close ends the subscription and waits for the relay to exit. Repeated
// calls are harmless.
func (ts *TypedSubscription[T]) Close() {
	ts.once.Do(func() {
		close(ts.stop)
		ts.raw.Close()
		<-ts.done
	})
}

func (ts *TypedSubscription[T]) relay() {
	defer close(ts.done)
	defer close(ts.out)
	for env := range ts.raw.C() {
		payload, ok := env.Payload.(T)
		if !ok {
			continue
		}
		select {
		case ts.out <- TypedEnvelope[T]{
			Topic:         env.Topic,
			Timestamp:     env.Timestamp,
			Source:        env.Source,
			CorrelationID: env.CorrelationID,
			Payload:       payload,
		}:
		case <-ts.stop:
			return
		}
	}
}
