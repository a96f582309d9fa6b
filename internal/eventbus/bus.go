package eventbus

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"
)

// Bus fans out session and control events to in-process consumers such as
// the journal recorder and the page hub.
type Bus struct {
	logger   *log.Logger
	buffers  map[Topic]int
	policies map[Topic]DeliveryPolicy

	mu     sync.RWMutex
	routes map[Topic]map[uint64]*Subscription
	nextID atomic.Uint64

	published atomic.Uint64
	dropped   atomic.Uint64
	spilled   atomic.Uint64
	fallbacks atomic.Uint64
}

// Metrics is a point-in-time snapshot of bus counters.
type Metrics struct {
	PublishTotal uint64 `json:"publish_total"`
	DroppedTotal uint64 `json:"dropped_total"`
	// SpilledTotal counts deliveries queued behind a slow overflow subscriber;
	// SpillFallbacks counts those that found the queue full.
	SpilledTotal   uint64 `json:"spilled_total"`
	SpillFallbacks uint64 `json:"spill_fallbacks"`
	SpillBacklog   int    `json:"spill_backlog"`
	Subscribers    int    `json:"subscribers"`
}

// Metrics returns the current counters. A nil bus reports zero values.
func (b *Bus) Metrics() Metrics {
	if b == nil {
		return Metrics{}
	}
	m := Metrics{
		PublishTotal:   b.published.Load(),
		DroppedTotal:   b.dropped.Load(),
		SpilledTotal:   b.spilled.Load(),
		SpillFallbacks: b.fallbacks.Load(),
	}
	b.mu.RLock()
	for _, subs := range b.routes {
		m.Subscribers += len(subs)
		for _, sub := range subs {
			if sub.spill != nil {
				m.SpillBacklog += sub.spill.backlog()
			}
		}
	}
	b.mu.RUnlock()
	return m
}

// BusOption customises bus behaviour.
type BusOption func(*Bus)

// WithLogger overrides the logger used for drop warnings.
func WithLogger(logger *log.Logger) BusOption {
	return func(b *Bus) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithTopicBuffer sets the channel size for new subscriptions on topic.
func WithTopicBuffer(topic Topic, size int) BusOption {
	return func(b *Bus) {
		b.buffers[topic] = max(size, 1)
	}
}

// WithTopicPolicy overrides the delivery policy for a specific topic.
func WithTopicPolicy(topic Topic, policy DeliveryPolicy) BusOption {
	return func(b *Bus) {
		b.policies[topic] = policy
	}
}

// New constructs a bus with default topic buffer sizes.
func New(opts ...BusOption) *Bus {
	b := &Bus{
		logger: log.Default(),
		buffers: map[Topic]int{
			TopicSessionsLifecycle:  64,
			TopicControlsVisibility: 128,
			TopicControlsIntensity:  256,
			TopicPagesPresence:      64,
		},
		policies: make(map[Topic]DeliveryPolicy),
		routes:   make(map[Topic]map[uint64]*Subscription),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Bus) publish(ctx context.Context, env Envelope) {
	if env.Topic == "" {
		return
	}
	if env.Timestamp.IsZero() {
		env.Timestamp = time.Now().UTC()
	}
	if env.Source == "" {
		env.Source = SourceUnknown
	}
	b.published.Add(1)

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.routes[env.Topic] {
		sub.deliver(ctx, env)
	}
}

// SubscriptionOption customises individual subscriptions.
type SubscriptionOption func(*subscriptionConfig)

type subscriptionConfig struct {
	bufferSize int
	name       string
	ctx        context.Context
}

// WithSubscriptionBuffer overrides the channel buffer for a subscription.
func WithSubscriptionBuffer(size int) SubscriptionOption {
	return func(cfg *subscriptionConfig) {
		if size > 0 {
			cfg.bufferSize = size
		}
	}
}

// WithSubscriptionName names the subscriber in drop warnings.
func WithSubscriptionName(name string) SubscriptionOption {
	return func(cfg *subscriptionConfig) {
		cfg.name = name
	}
}

// WithContext closes the subscription when ctx is cancelled. A nil context
// is ignored.
func WithContext(ctx context.Context) SubscriptionOption {
	return func(cfg *subscriptionConfig) {
		if ctx != nil {
			cfg.ctx = ctx
		}
	}
}

// Subscribe registers a subscriber for topic. On a nil bus the subscription
// is returned already closed.
func (b *Bus) Subscribe(topic Topic, opts ...SubscriptionOption) *Subscription {
	if b == nil {
		sub := &Subscription{ch: make(chan Envelope), done: make(chan struct{})}
		sub.closed.Store(true)
		close(sub.ch)
		close(sub.done)
		return sub
	}

	cfg := subscriptionConfig{bufferSize: max(b.buffers[topic], 1)}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.name == "" {
		cfg.name = "subscription"
	}

	sub := &Subscription{
		topic:  topic,
		id:     b.nextID.Add(1),
		name:   cfg.name,
		ch:     make(chan Envelope, cfg.bufferSize),
		done:   make(chan struct{}),
		bus:    b,
		policy: policyFor(topic, b.policies),
	}
	if sub.policy.Strategy == StrategyOverflow {
		sub.spill = newSpill(sub.policy.MaxOverflow)
		spillCtx, cancel := context.WithCancel(context.Background())
		sub.stopSpill = cancel
		go sub.spill.forward(spillCtx, sub.ch)
	}

	b.mu.Lock()
	if b.routes[topic] == nil {
		b.routes[topic] = make(map[uint64]*Subscription)
	}
	b.routes[topic][sub.id] = sub
	b.mu.Unlock()

	if cfg.ctx != nil {
		go func() {
			select {
			case <-cfg.ctx.Done():
				sub.Close()
			case <-sub.done:
			}
		}()
	}
	return sub
}

// Shutdown closes every subscription. A nil bus is a no-op.
func (b *Bus) Shutdown() {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for topic, subs := range b.routes {
		for _, sub := range subs {
			if sub.closed.CompareAndSwap(false, true) {
				sub.teardown()
			}
		}
		delete(b.routes, topic)
	}
}

// Subscription is one consumer of a topic.
type Subscription struct {
	topic  Topic
	id     uint64
	name   string
	ch     chan Envelope
	done   chan struct{}
	bus    *Bus
	policy DeliveryPolicy

	spill     *spill
	stopSpill context.CancelFunc

	closed  atomic.Bool
	dropped atomic.Uint64
}

// C exposes the event channel. It is closed when the subscription closes.
func (s *Subscription) C() <-chan Envelope {
	return s.ch
}

// Close detaches the subscription from the bus and closes its channel.
func (s *Subscription) Close() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	if s.bus == nil {
		s.teardown()
		return
	}
	// Holding the write lock keeps publishers away from the channel while it closes.
	s.bus.mu.Lock()
	delete(s.bus.routes[s.topic], s.id)
	s.teardown()
	s.bus.mu.Unlock()
}

func (s *Subscription) teardown() {
	if s.stopSpill != nil {
		s.stopSpill()
		<-s.spill.exited
	}
	close(s.done)
	close(s.ch)
}

// deliver never blocks; it runs under the bus read lock.
func (s *Subscription) deliver(ctx context.Context, env Envelope) {
	if s.closed.Load() || ctx.Err() != nil {
		return
	}

	if s.spill != nil {
		// Everything goes through the spill so the forwarder cannot reorder it.
		if s.spill.add(env) {
			s.bus.spilled.Add(1)
			return
		}
		s.bus.fallbacks.Add(1)
		s.replaceOldest(env)
		return
	}

	select {
	case s.ch <- env:
		return
	default:
	}
	if s.policy.Strategy == StrategyDropNewest {
		s.drop("drop-newest")
		return
	}
	s.replaceOldest(env)
}

func (s *Subscription) replaceOldest(env Envelope) {
	select {
	case <-s.ch:
		s.drop("drop-oldest")
	default:
	}
	select {
	case s.ch <- env:
	default:
		s.drop("drop-current")
	}
}

func (s *Subscription) drop(reason string) {
	n := s.dropped.Add(1)
	s.bus.dropped.Add(1)
	s.bus.logger.Printf("[EventBus] dropped event #%d for %s on %s (%s)", n, s.name, s.topic, reason)
}
