package output

import (
	"context"
	"time"
)

// ArgumentHistory tracks the arguments each step ran with so later steps and
// gate reviews can replay them.
type ArgumentHistory interface {
	TrackExecution(ctx context.Context, rec ExecutionRecord) error
	BuildReviewContext(ctx context.Context, sessionID string, currentStep int) (*ReviewContext, error)
	ClearSession(ctx context.Context, sessionID string) error
}

// ExecutionRecord is one tracked step execution
type ExecutionRecord struct {
	SessionID string                 `json:"sessionId"`
	ChainID   string                 `json:"chainId"`
	PromptID  string                 `json:"promptId"`
	Step      int                    `json:"step"`
	Args      map[string]interface{} `json:"args,omitempty"`
	Response  string                 `json:"response,omitempty"`
	Timestamp time.Time              `json:"ts"`
}

// ReviewContext is the replayed view of a session up to a step
type ReviewContext struct {
	SessionID       string                 `json:"sessionId"`
	OriginalArgs    map[string]interface{} `json:"originalArgs"`
	PreviousResults map[int]string         `json:"previousResults"`
	CurrentStep     int                    `json:"currentStep"`
}
