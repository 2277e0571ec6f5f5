package chain

import "time"

// StepState represents the lifecycle position of a single chain step
type StepState string

const (
	StepRendered         StepState = "RENDERED"          // Prompt rendered, awaiting response
	StepResponseCaptured StepState = "RESPONSE_CAPTURED" // Caller response stored
	StepCompleted        StepState = "COMPLETED"         // Step finished (gates cleared)
)

// String returns the string representation of the state
func (s StepState) String() string {
	return string(s)
}

// IsValid returns true if the state is one of the known states
func (s StepState) IsValid() bool {
	switch s {
	case StepRendered, StepResponseCaptured, StepCompleted:
		return true
	default:
		return false
	}
}

// Rank returns the ordinal of the state (1-3), 0 for unknown values
func (s StepState) Rank() int {
	switch s {
	case StepRendered:
		return 1
	case StepResponseCaptured:
		return 2
	case StepCompleted:
		return 3
	default:
		return 0
	}
}

// CanTransitionTo reports whether moving from s to next keeps the state monotonic.
// COMPLETED may be reached from any state, including directly from nothing.
func (s StepState) CanTransitionTo(next StepState) bool {
	if !next.IsValid() {
		return false
	}
	return next.Rank() >= s.Rank()
}

// StepMetadata tracks per-step progress. Timestamps are set once.
type StepMetadata struct {
	State         StepState  `json:"state"`
	IsPlaceholder bool       `json:"isPlaceholder"`
	RenderedAt    *time.Time `json:"renderedAt,omitempty"`
	RespondedAt   *time.Time `json:"respondedAt,omitempty"`
	CompletedAt   *time.Time `json:"completedAt,omitempty"`
}

// Apply returns a copy of m moved to state, stamping the timestamp that belongs to
// the new state only when it has not been set before.
func (m StepMetadata) Apply(state StepState, isPlaceholder bool, now time.Time) StepMetadata {
	next := StepMetadata{
		State:         state,
		IsPlaceholder: isPlaceholder,
		RenderedAt:    m.RenderedAt,
		RespondedAt:   m.RespondedAt,
		CompletedAt:   m.CompletedAt,
	}

	ts := now
	switch state {
	case StepRendered:
		if next.RenderedAt == nil {
			next.RenderedAt = &ts
		}
	case StepResponseCaptured:
		if next.RespondedAt == nil {
			next.RespondedAt = &ts
		}
	case StepCompleted:
		if next.CompletedAt == nil {
			next.CompletedAt = &ts
		}
	}
	return next
}
