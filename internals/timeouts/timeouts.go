// Package timeouts centralizes the daemon's operational deadlines.
package timeouts

import "time"

const (
	Probe          = 300 * time.Millisecond
	ShutdownGrace  = 2 * time.Second
	HTTPDefault    = 10 * time.Second
	AgentExecution = 5 * time.Minute
)
