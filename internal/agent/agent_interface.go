package agent

import (
	"context"
)

// Capability is a stateful text-in/text-out agent. One instance belongs to
// exactly one session binding and keeps its own conversation memory.
type Capability interface {
	// Invoke sends a user message and returns the loosely shaped result.
	// Timeouts are the capability's concern; ctx carries request cancellation.
	Invoke(ctx context.Context, message string) (Result, error)
}

// Factory builds capability instances.
type Factory interface {
	// New returns a fresh instance configured for contentType.
	New(contentType string) Capability

	// Fallback returns a fresh, default-configured single-turn instance.
	Fallback() Capability
}

// Ensure Registry implements Factory.
var _ Factory = (*Registry)(nil)

// Ensure OllamaAgent implements Capability.
var _ Capability = (*OllamaAgent)(nil)
