package chain

import "time"

const (
	DefaultVerifyTimeout     = 5 * time.Minute
	DefaultVerifyMaxAttempts = 5
)

// VerifyConfig describes a shell verification gate (:: verify:"cmd")
type VerifyConfig struct {
	Command       string        `json:"command"`
	Timeout       time.Duration `json:"timeout"`
	Loop          bool          `json:"loop"`
	MaxIterations int           `json:"maxIterations"`
	Checkpoint    bool          `json:"checkpoint"`
	Rollback      bool          `json:"rollback"`
	WorkingDir    string        `json:"workingDir,omitempty"`
}

// EffectiveTimeout returns the configured timeout or the default
func (c VerifyConfig) EffectiveTimeout() time.Duration {
	if c.Timeout <= 0 {
		return DefaultVerifyTimeout
	}
	return c.Timeout
}

// EffectiveMaxIterations returns the configured attempt limit or the default
func (c VerifyConfig) EffectiveMaxIterations() int {
	if c.MaxIterations <= 0 {
		return DefaultVerifyMaxAttempts
	}
	return c.MaxIterations
}

// VerifyResult is one run of the verification command
type VerifyResult struct {
	ExitCode int           `json:"exitCode"`
	Stdout   string        `json:"stdout"`
	Stderr   string        `json:"stderr"`
	Duration time.Duration `json:"duration"`
	TimedOut bool          `json:"timedOut"`
	Passed   bool          `json:"passed"`
	RanAt    time.Time     `json:"ranAt"`
}

// ShellVerifyState is the pending verification attached to a session
type ShellVerifyState struct {
	GateID          string         `json:"gateId"`
	Config          VerifyConfig   `json:"config"`
	AttemptCount    int            `json:"attemptCount"`
	MaxAttempts     int            `json:"maxAttempts"`
	PreviousResults []VerifyResult `json:"previousResults,omitempty"`
	CheckpointRef   string         `json:"checkpointRef,omitempty"`
	StartedAt       time.Time      `json:"startedAt"`
}

// AttemptsExhausted reports whether no attempts remain
func (s *ShellVerifyState) AttemptsExhausted() bool {
	return s.AttemptCount >= s.MaxAttempts
}

// LastResult returns the most recent result, nil when none ran yet
func (s *ShellVerifyState) LastResult() *VerifyResult {
	if len(s.PreviousResults) == 0 {
		return nil
	}
	r := s.PreviousResults[len(s.PreviousResults)-1]
	return &r
}

// Clone returns a deep copy
func (s *ShellVerifyState) Clone() *ShellVerifyState {
	if s == nil {
		return nil
	}
	c := *s
	c.PreviousResults = append([]VerifyResult(nil), s.PreviousResults...)
	return &c
}
