package domain

import (
	"context"
)

// EventBus defines the interface for event-driven communication.
// Supports Go channels (Community) or NATS (Pro). Claim lifecycle and
// fraud events are published fire-and-forget: delivery is best-effort and
// never a precondition of the originating operation succeeding.
type EventBus interface {
	// Publish sends a message to a topic.
	Publish(ctx context.Context, topic string, payload []byte) error

	// Subscribe registers a handler for a topic.
	// Returns a subscription that can be used to unsubscribe.
	Subscribe(ctx context.Context, topic string, handler MessageHandler) (Subscription, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// MessageHandler processes incoming messages.
type MessageHandler func(ctx context.Context, msg *Message) error

// Message represents an event message.
type Message struct {
	ID        string            `json:"id"`
	Topic     string            `json:"topic"`
	Payload   []byte            `json:"payload"`
	Metadata  map[string]string `json:"metadata"`
	Timestamp int64             `json:"timestamp"`
}

// Subscription represents an active subscription.
type Subscription interface {
	// Unsubscribe stops receiving messages.
	Unsubscribe() error

	// Topic returns the subscribed topic.
	Topic() string
}

// EventBusConfig holds configuration for event bus initialization.
type EventBusConfig struct {
	// Type is the bus type: "channel" or "nats"
	Type string

	// Channel settings (Community tier)
	ChannelBufferSize int

	// NATS settings (Pro tier)
	NATSUrl           string
	NATSToken         string
	NATSMaxReconnects int
	NATSReconnectWait int // seconds
}

// Standard topic names for the claim pipeline.
const (
	TopicClaimCreated      = "kestrel.claim.created"
	TopicClaimSubmitted    = "kestrel.claim.submitted"
	TopicClaimStatusChange = "kestrel.claim.status_changed"
	TopicClaimFraudFlagged = "kestrel.claim.fraud_flagged"
)

// ClaimEvent is the payload published on claim topics. The external
// notification service consumes these to reach the affected user.
type ClaimEvent struct {
	ClaimID         string      `json:"claimId"`
	ClaimNumber     string      `json:"claimNumber"`
	PolicyReference string      `json:"policyReference"`
	FromStatus      ClaimStatus `json:"fromStatus,omitempty"`
	Status          ClaimStatus `json:"status"`
	RuleCodes       []string    `json:"ruleCodes,omitempty"`
	OccurredAt      int64       `json:"occurredAt"`
}
