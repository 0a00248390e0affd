// Package events defines the wire shape of external events and the publisher
// seam the execution core emits lifecycle notifications through.
package events

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Event is an external occurrence delivered by the event bus. Type is a
// dot-delimited hierarchy, e.g. "external.webhook.order.created".
type Event struct {
	ID         string         `json:"id"`
	Source     string         `json:"source"`
	Type       string         `json:"event_type"`
	Timestamp  time.Time      `json:"timestamp"`
	Data       map[string]any `json:"data,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	WorkflowID string         `json:"workflow_id,omitempty"`
	AgentID    string         `json:"agent_id,omitempty"`
}

// OrganizationID extracts the tenant scope from event metadata, if present.
func (e Event) OrganizationID() string {
	if e.Metadata == nil {
		return ""
	}
	org, _ := e.Metadata["organization_id"].(string)
	return org
}

// New builds an event with a fresh id and timestamp.
func New(source, eventType string, data map[string]any) Event {
	return Event{
		ID:        uuid.NewString(),
		Source:    source,
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}

// Lifecycle event types emitted by the execution core.
const (
	TypeTaskCompleted = "task.lifecycle.completed"
	TypeTaskFailed    = "task.lifecycle.failed"
	TypeStepRetried   = "task.step.retried"
)

// Publisher is the event-bus seam. Publish failures on best-effort paths are
// logged and swallowed by callers, never allowed to fail a durable write.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// LogPublisher writes events to the structured log. It stands in for a real
// bus in tests and single-process deployments.
type LogPublisher struct {
	Logger *slog.Logger
}

func (p *LogPublisher) Publish(_ context.Context, ev Event) error {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("event published",
		slog.String("event_id", ev.ID),
		slog.String("event_type", ev.Type),
		slog.String("source", ev.Source),
	)
	return nil
}
