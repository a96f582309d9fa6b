package eventbus

import "time"

// Topic identifies a logical channel on the bus.
type Topic string

const (
	TopicSessionsLifecycle  Topic = "sessions.lifecycle"
	TopicControlsVisibility Topic = "controls.visibility"
	TopicControlsIntensity  Topic = "controls.intensity"
	TopicPagesPresence      Topic = "pages.presence"
)

// Source describes which component produced an event.
type Source string

const (
	SourceSession Source = "session"
	SourceBridge  Source = "bridge"
	SourceAPI     Source = "api"
	SourceCLI     Source = "cli"
	SourceUnknown Source = "unknown"
)

// Envelope wraps every message published on the bus.
type Envelope struct {
	Topic         Topic
	Timestamp     time.Time
	Source        Source
	CorrelationID string
	Payload       any
}

// SessionState summarises comfort-mode lifecycle changes.
type SessionState string

const (
	SessionStateActive   SessionState = "active"
	SessionStateInactive SessionState = "inactive"
)

// SessionLifecycleEvent is published when a page enters or leaves comfort mode.
type SessionLifecycleEvent struct {
	SessionID string
	PageID    string
	Site      string
	State     SessionState
	// Reason is empty on activation and names the exit trigger otherwise.
	Reason string
	Videos int
	// Reveals is the activation's control-reveal count; set on deactivation.
	Reveals int
}

// ControlsVisibilityEvent reports a playback-controls reveal or hide.
type ControlsVisibilityEvent struct {
	SessionID string
	PageID    string
	Enabled   bool
}

// ExitIntensityEvent reports a change of the exit affordance weight.
type ExitIntensityEvent struct {
	SessionID string
	PageID    string
	Level     string
}

// PagePresenceEvent is published when a page connects to or leaves the bridge.
type PagePresenceEvent struct {
	PageID    string
	Origin    string
	Site      string
	Connected bool
}

// Sessions groups typed topic descriptors for comfort-mode sessions.
var Sessions = struct {
	Lifecycle TopicDef[SessionLifecycleEvent]
}{
	Lifecycle: NewTopicDef[SessionLifecycleEvent](TopicSessionsLifecycle),
}

// Controls groups typed topic descriptors for control visibility.
var Controls = struct {
	Visibility TopicDef[ControlsVisibilityEvent]
	Intensity  TopicDef[ExitIntensityEvent]
}{
	Visibility: NewTopicDef[ControlsVisibilityEvent](TopicControlsVisibility),
	Intensity:  NewTopicDef[ExitIntensityEvent](TopicControlsIntensity),
}

// Pages groups typed topic descriptors for bridge connections.
var Pages = struct {
	Presence TopicDef[PagePresenceEvent]
}{
	Presence: NewTopicDef[PagePresenceEvent](TopicPagesPresence),
}
