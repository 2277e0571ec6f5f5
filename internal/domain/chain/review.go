package chain

import "time"

// DefaultGateMaxAttempts is the number of FAIL verdicts tolerated before the
// caller must choose retry, skip or abort.
const DefaultGateMaxAttempts = 2

// GateReviewStatus is the result of recording a verdict against a pending review
type GateReviewStatus string

const (
	GateReviewCleared GateReviewStatus = "cleared"
	GateReviewPending GateReviewStatus = "pending"
)

// GatePrompt is one criteria block re-presented to the reviewer
type GatePrompt struct {
	GateID   string   `json:"gateId"`
	Criteria []string `json:"criteria,omitempty"`
}

// GateReviewHistoryEntry records one verdict submission. History is append-only.
type GateReviewHistoryEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Status    string    `json:"status"`
	Reasoning string    `json:"reasoning,omitempty"`
	Reviewer  string    `json:"reviewer,omitempty"`
}

// GateReviewOutcome is what the enforcement layer hands to the store
type GateReviewOutcome struct {
	Verdict   string // PASS or FAIL
	Rationale string
	Raw       string
	Reviewer  string
}

// PendingGateReview is attached to a session while a gate blocks advancement
type PendingGateReview struct {
	GateIDs          []string                 `json:"gateIds"`
	Prompts          []GatePrompt             `json:"prompts,omitempty"`
	AttemptCount     int                      `json:"attemptCount"`
	MaxAttempts      int                      `json:"maxAttempts"`
	RetryHints       []string                 `json:"retryHints,omitempty"`
	History          []GateReviewHistoryEntry `json:"history,omitempty"`
	CombinedPrompt   string                   `json:"combinedPrompt,omitempty"`
	PreviousResponse string                   `json:"previousResponse,omitempty"`
	LastVerdict      string                   `json:"lastVerdict,omitempty"`
	CreatedAt        time.Time                `json:"createdAt"`
	Metadata         map[string]interface{}   `json:"metadata,omitempty"`
}

// EffectiveMaxAttempts returns MaxAttempts, falling back to the default
func (r *PendingGateReview) EffectiveMaxAttempts() int {
	if r.MaxAttempts <= 0 {
		return DefaultGateMaxAttempts
	}
	return r.MaxAttempts
}

// RetryLimitExceeded reports attemptCount >= maxAttempts
func (r *PendingGateReview) RetryLimitExceeded() bool {
	return r.AttemptCount >= r.EffectiveMaxAttempts()
}

// Clone returns a deep copy so callers never alias the store's slices
func (r *PendingGateReview) Clone() *PendingGateReview {
	if r == nil {
		return nil
	}
	c := *r
	c.GateIDs = append([]string(nil), r.GateIDs...)
	c.RetryHints = append([]string(nil), r.RetryHints...)
	c.History = append([]GateReviewHistoryEntry(nil), r.History...)
	if r.Prompts != nil {
		c.Prompts = make([]GatePrompt, len(r.Prompts))
		for i, p := range r.Prompts {
			c.Prompts[i] = GatePrompt{GateID: p.GateID, Criteria: append([]string(nil), p.Criteria...)}
		}
	}
	c.Metadata = cloneMap(r.Metadata)
	return &c
}

func cloneMap(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		switch tv := v.(type) {
		case map[string]interface{}:
			out[k] = cloneMap(tv)
		case []interface{}:
			out[k] = append([]interface{}(nil), tv...)
		case []string:
			out[k] = append([]string(nil), tv...)
		default:
			out[k] = v
		}
	}
	return out
}
