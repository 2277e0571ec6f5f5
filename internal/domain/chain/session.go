package chain

import (
	"sort"
	"time"
)

// Lifecycle distinguishes sessions in active use from sessions reloaded from disk
type Lifecycle string

const (
	LifecycleCanonical Lifecycle = "canonical"
	LifecycleDormant   Lifecycle = "dormant"
)

// BlueprintStep is one planned step captured for resumption
type BlueprintStep struct {
	PromptID string                 `json:"promptId"`
	Args     string                 `json:"args,omitempty"`
	ArgMap   map[string]interface{} `json:"argMap,omitempty"`
	Gates    []string               `json:"gates,omitempty"`
}

// Blueprint is the parse/plan snapshot a session was created from
type Blueprint struct {
	Command         string              `json:"command"`
	Name            string              `json:"name,omitempty"`
	Description     string              `json:"description,omitempty"`
	Category        string              `json:"category,omitempty"`
	Strategy        string              `json:"strategy,omitempty"`
	Framework       string              `json:"framework,omitempty"`
	Style           string              `json:"style,omitempty"`
	Modifier        string              `json:"modifier,omitempty"`
	Gates           []string            `json:"gates,omitempty"`
	Criteria        []string            `json:"criteria,omitempty"`
	GateCriteria    map[string][]string `json:"gateCriteria,omitempty"`
	BlockingGates   []string            `json:"blockingGates,omitempty"`
	GateMode        string              `json:"gateMode,omitempty"`
	GateMaxAttempts int                 `json:"gateMaxAttempts,omitempty"`
	Steps           []BlueprintStep     `json:"steps"`
	Verify          *VerifyConfig       `json:"verify,omitempty"`
}

// Step returns the blueprint step for a 1-based step number
func (b *Blueprint) Step(n int) (BlueprintStep, bool) {
	if b == nil || n < 1 || n > len(b.Steps) {
		return BlueprintStep{}, false
	}
	return b.Steps[n-1], true
}

// State is the progress portion of a session
type State struct {
	CurrentStep int                  `json:"currentStep"`
	TotalSteps  int                  `json:"totalSteps"`
	StepStates  map[int]StepMetadata `json:"-"`
	LastUpdated time.Time            `json:"lastUpdated"`
}

// Session is one execution attempt of a chain
type Session struct {
	SessionID          string                 `json:"sessionId"`
	ChainID            string                 `json:"chainId"`
	State              State                  `json:"state"`
	ExecutionOrder     []int                  `json:"executionOrder"`
	StartTime          time.Time              `json:"startTime"`
	LastActivity       time.Time              `json:"lastActivity"`
	OriginalArgs       map[string]interface{} `json:"originalArgs,omitempty"`
	Blueprint          *Blueprint             `json:"blueprint,omitempty"`
	PendingGateReview  *PendingGateReview     `json:"pendingGateReview,omitempty"`
	PendingShellVerify *ShellVerifyState      `json:"pendingShellVerify,omitempty"`
	Lifecycle          Lifecycle              `json:"lifecycle"`
}

// NewSession creates a canonical session positioned at step 1 (or 0 for empty chains)
func NewSession(sessionID, chainID string, totalSteps int, originalArgs map[string]interface{}, blueprint *Blueprint, now time.Time) *Session {
	current := 0
	if totalSteps > 0 {
		current = 1
	}
	return &Session{
		SessionID: sessionID,
		ChainID:   chainID,
		State: State{
			CurrentStep: current,
			TotalSteps:  totalSteps,
			StepStates:  make(map[int]StepMetadata),
			LastUpdated: now,
		},
		ExecutionOrder: []int{},
		StartTime:      now,
		LastActivity:   now,
		OriginalArgs:   cloneMap(originalArgs),
		Blueprint:      blueprint,
		Lifecycle:      LifecycleCanonical,
	}
}

// HealCurrentStep restores the invariant currentStep >= 1 when totalSteps > 0.
// Returns true when the session was modified.
func (s *Session) HealCurrentStep() bool {
	if s.State.TotalSteps > 0 && s.State.CurrentStep < 1 {
		s.State.CurrentStep = 1
		return true
	}
	return false
}

// IsDormant reports whether the session was reloaded and not yet resumed
func (s *Session) IsDormant() bool {
	return s.Lifecycle == LifecycleDormant
}

// IsComplete reports whether every step has been advanced past
func (s *Session) IsComplete() bool {
	return s.State.TotalSteps > 0 && s.State.CurrentStep > s.State.TotalSteps
}

// SortedSteps returns the step numbers with recorded metadata in ascending order
func (s *Session) SortedSteps() []int {
	steps := make([]int, 0, len(s.State.StepStates))
	for n := range s.State.StepStates {
		steps = append(steps, n)
	}
	sort.Ints(steps)
	return steps
}

// Clone returns a deep copy of the session
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	c.State.StepStates = make(map[int]StepMetadata, len(s.State.StepStates))
	for k, v := range s.State.StepStates {
		c.State.StepStates[k] = v
	}
	c.ExecutionOrder = append([]int{}, s.ExecutionOrder...)
	c.OriginalArgs = cloneMap(s.OriginalArgs)
	c.PendingGateReview = s.PendingGateReview.Clone()
	c.PendingShellVerify = s.PendingShellVerify.Clone()
	if s.Blueprint != nil {
		bp := *s.Blueprint
		bp.Steps = append([]BlueprintStep(nil), s.Blueprint.Steps...)
		bp.Gates = append([]string(nil), s.Blueprint.Gates...)
		bp.Criteria = append([]string(nil), s.Blueprint.Criteria...)
		bp.BlockingGates = append([]string(nil), s.Blueprint.BlockingGates...)
		if s.Blueprint.GateCriteria != nil {
			bp.GateCriteria = make(map[string][]string, len(s.Blueprint.GateCriteria))
			for id, c := range s.Blueprint.GateCriteria {
				bp.GateCriteria[id] = append([]string(nil), c...)
			}
		}
		for i, st := range bp.Steps {
			bp.Steps[i].Gates = append([]string(nil), st.Gates...)
			bp.Steps[i].ArgMap = cloneMap(st.ArgMap)
		}
		if s.Blueprint.Verify != nil {
			v := *s.Blueprint.Verify
			bp.Verify = &v
		}
		c.Blueprint = &bp
	}
	return &c
}
