package output

import (
	"context"
	"time"
)

// StepResultStore persists the content produced at each chain step.
// Implementations: local files, SQLite, S3.
type StepResultStore interface {
	// StoreResult saves (or replaces) the content of one step
	StoreResult(ctx context.Context, chainID string, step int, content string, metadata map[string]interface{}) error

	// GetResults returns all stored results of a chain ordered by step
	GetResults(ctx context.Context, chainID string) ([]StepResult, error)

	// ClearResults removes every stored result of a chain
	ClearResults(ctx context.Context, chainID string) error

	// BuildVariables derives template variables from stored results
	BuildVariables(ctx context.Context, chainID string) (map[string]interface{}, error)
}

// StepResult is the stored content of one step
type StepResult struct {
	ChainID  string                 `json:"chainId"`
	Step     int                    `json:"step"`
	Content  string                 `json:"content"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
	StoredAt time.Time              `json:"storedAt"`
}
