package pubsub

import (
	"context"
	"encoding/json"
)

// TopicAnalysisStatus carries the progress and outcome of analysis runs
const TopicAnalysisStatus = "analysis_status"

// Analysis states published on TopicAnalysisStatus
const (
	StateLoading   = "loading"
	StateAnalyzing = "analyzing"
	StateReady     = "ready"
	StateError     = "error"
)

// Event represents a pub/sub event
type Event struct {
	Topic   string          `json:"topic"`   // Subscription topic (e.g., "analysis_status")
	Type    string          `json:"type"`    // Event type (e.g., "loading", "ready")
	Data    json.RawMessage `json:"data"`    // Event payload
	Version int             `json:"version"` // Version number for ordering
}

// Subscription represents a client subscription to a topic
type Subscription interface {
	// Topic returns the subscription topic
	Topic() string

	// Events returns a channel for receiving events
	Events() <-chan Event

	// Close closes the subscription
	Close() error
}

// Publisher manages pub/sub subscriptions and event publishing
type Publisher interface {
	// Subscribe creates a new subscription to a topic
	// Context cancellation will close the subscription
	Subscribe(ctx context.Context, topic string) (Subscription, error)

	// Publish sends an event to all subscribers of a topic
	Publish(topic string, eventType string, data interface{}) error

	// Close shuts down the publisher and all subscriptions
	Close() error
}

// AnalysisStatus is the payload of TopicAnalysisStatus events
type AnalysisStatus struct {
	State    string `json:"state"`   // loading, analyzing, ready, error
	Message  string `json:"message"` // Human-readable status message
	Step     int    `json:"step"`    // Current step number (1-based)
	Total    int    `json:"total"`   // Total number of steps
	Reason   string `json:"reason,omitempty"`
	Warnings int    `json:"warnings"`
	Errors   int    `json:"errors"`
}
