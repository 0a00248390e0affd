// Package triggers maps tenant-scoped event patterns to tasks. The persistent
// store is authoritative; there is deliberately no process-local mirror, so
// multi-process deployments never serve divergent pattern sets.
package triggers

import "time"

// Config binds one task to an event pattern within an organization. A task
// holds at most one active binding; registering again replaces it. The task
// reference is weak: deleting the task does not remove the trigger, explicit
// unregistration does.
type Config struct {
	TaskID         string    `json:"task_id"`
	OrganizationID string    `json:"organization_id"`
	UserID         string    `json:"user_id,omitempty"`
	EventPattern   string    `json:"event_pattern"`
	SourceFilter   string    `json:"source_filter,omitempty"`
	Enabled        bool      `json:"enabled"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Updates is a partial change to an existing config. Nil fields keep the
// stored value.
type Updates struct {
	EventPattern *string
	SourceFilter *string
	Enabled      *bool
	UserID       *string
}

// Execution is one recorded trigger firing, kept in a trimmed
// newest-first history ring for debugging. Not used for correctness.
type Execution struct {
	TaskID    string    `json:"task_id"`
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Source    string    `json:"source"`
	FiredAt   time.Time `json:"fired_at"`
}
