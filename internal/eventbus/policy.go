package eventbus

// DeliveryStrategy decides what a subscription does when its consumer falls
// behind and the channel is full.
type DeliveryStrategy string

const (
	// StrategyDropOldest evicts the oldest queued event to make room.
	StrategyDropOldest DeliveryStrategy = "drop-oldest"
	// StrategyDropNewest discards the incoming event.
	StrategyDropNewest DeliveryStrategy = "drop-newest"
	// StrategyOverflow queues behind the channel, up to MaxOverflow events,
	// and only evicts once that backlog is full.
	StrategyOverflow DeliveryStrategy = "overflow"
)

// DeliveryPolicy is a topic's backpressure behaviour.
type DeliveryPolicy struct {
	Strategy DeliveryStrategy
	// MaxOverflow caps the backlog for StrategyOverflow; 0 means defaultMaxOverflow.
	MaxOverflow int
}

const defaultMaxOverflow = 512

// policyFor resolves the policy for topic. Overrides win; the journal topics
// are lossless up to the overflow cap and everything else keeps the latest events.
func policyFor(topic Topic, overrides map[Topic]DeliveryPolicy) DeliveryPolicy {
	if p, ok := overrides[topic]; ok {
		return p
	}
	switch topic {
	case TopicSessionsLifecycle, TopicControlsVisibility:
		return DeliveryPolicy{Strategy: StrategyOverflow, MaxOverflow: defaultMaxOverflow}
	default:
		// Intensity and presence consumers only care about the current value.
		return DeliveryPolicy{Strategy: StrategyDropOldest}
	}
}
