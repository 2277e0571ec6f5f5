package session

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/YoshitsuguKoike/gatechain/internal/domain/chain"
)

// registryVersion is written into every run registry file
const registryVersion = 1

// registryFile is the on-disk run registry
type registryFile struct {
	Version        int                         `json:"version"`
	Runs           map[string]persistedSession `json:"runs"`
	RunMapping     map[string][]string         `json:"runMapping"`
	BaseRunMapping map[string][]string         `json:"baseRunMapping"`
	RunToBase      map[string]string           `json:"runToBase"`
}

type persistedState struct {
	CurrentStep int             `json:"currentStep"`
	TotalSteps  int             `json:"totalSteps"`
	StepStates  []stepStatePair `json:"stepStates"`
	LastUpdated time.Time       `json:"lastUpdated"`
}

type persistedSession struct {
	SessionID          string                   `json:"sessionId"`
	ChainID            string                   `json:"chainId"`
	State              persistedState           `json:"state"`
	ExecutionOrder     []int                    `json:"executionOrder"`
	StartTime          time.Time                `json:"startTime"`
	LastActivity       time.Time                `json:"lastActivity"`
	OriginalArgs       map[string]interface{}   `json:"originalArgs,omitempty"`
	Blueprint          *chain.Blueprint         `json:"blueprint,omitempty"`
	PendingGateReview  *chain.PendingGateReview `json:"pendingGateReview,omitempty"`
	PendingShellVerify *chain.ShellVerifyState  `json:"pendingShellVerify,omitempty"`
	Lifecycle          chain.Lifecycle          `json:"lifecycle"`
}

// stepStatePair serializes as a two-element array [step, metadata]
type stepStatePair struct {
	Step     int
	Metadata chain.StepMetadata
}

func (p stepStatePair) MarshalJSON() ([]byte, error) {
	return json.Marshal([]interface{}{p.Step, p.Metadata})
}

func (p *stepStatePair) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw) != 2 {
		return fmt.Errorf("step state entry: want [step, metadata], got %d elements", len(raw))
	}
	if err := json.Unmarshal(raw[0], &p.Step); err != nil {
		return fmt.Errorf("step state entry: step: %w", err)
	}
	if err := json.Unmarshal(raw[1], &p.Metadata); err != nil {
		return fmt.Errorf("step state entry: metadata: %w", err)
	}
	return nil
}

// encodeSession converts a session to its persisted form. Lifecycle is always
// written as canonical.
func encodeSession(s *chain.Session) persistedSession {
	pairs := make([]stepStatePair, 0, len(s.State.StepStates))
	for _, step := range s.SortedSteps() {
		pairs = append(pairs, stepStatePair{Step: step, Metadata: s.State.StepStates[step]})
	}
	order := s.ExecutionOrder
	if order == nil {
		order = []int{}
	}
	return persistedSession{
		SessionID: s.SessionID,
		ChainID:   s.ChainID,
		State: persistedState{
			CurrentStep: s.State.CurrentStep,
			TotalSteps:  s.State.TotalSteps,
			StepStates:  pairs,
			LastUpdated: s.State.LastUpdated,
		},
		ExecutionOrder:     order,
		StartTime:          s.StartTime,
		LastActivity:       s.LastActivity,
		OriginalArgs:       s.OriginalArgs,
		Blueprint:          s.Blueprint,
		PendingGateReview:  s.PendingGateReview,
		PendingShellVerify: s.PendingShellVerify,
		Lifecycle:          chain.LifecycleCanonical,
	}
}

// decodeSession rebuilds a session from its persisted form. Every loaded
// session starts dormant.
func decodeSession(p persistedSession) *chain.Session {
	states := make(map[int]chain.StepMetadata, len(p.State.StepStates))
	for _, pair := range p.State.StepStates {
		states[pair.Step] = pair.Metadata
	}
	order := p.ExecutionOrder
	if order == nil {
		order = []int{}
	}
	return &chain.Session{
		SessionID: p.SessionID,
		ChainID:   p.ChainID,
		State: chain.State{
			CurrentStep: p.State.CurrentStep,
			TotalSteps:  p.State.TotalSteps,
			StepStates:  states,
			LastUpdated: p.State.LastUpdated,
		},
		ExecutionOrder:     order,
		StartTime:          p.StartTime,
		LastActivity:       p.LastActivity,
		OriginalArgs:       p.OriginalArgs,
		Blueprint:          p.Blueprint,
		PendingGateReview:  p.PendingGateReview,
		PendingShellVerify: p.PendingShellVerify,
		Lifecycle:          chain.LifecycleDormant,
	}
}

// indices is the in-memory form of the registry mappings
type indices struct {
	chainSessions map[string][]string
	baseRuns      map[string][]string
	runToBase     map[string]string
}

func newIndices() indices {
	return indices{
		chainSessions: make(map[string][]string),
		baseRuns:      make(map[string][]string),
		runToBase:     make(map[string]string),
	}
}

// rebuildIndices heals the persisted mappings against the loaded sessions:
// session mappings are regenerated from the sessions themselves, runs are
// grouped under the base their ID names, runs referenced only by runToBase are
// dropped, runs owned by a session but missing from history are recreated,
// and every history list is re-sorted by run number.
func rebuildIndices(sessions map[string]*chain.Session, file registryFile) (indices, int) {
	idx := newIndices()
	healed := 0

	ids := make([]string, 0, len(sessions))
	for id := range sessions {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, b := sessions[ids[i]], sessions[ids[j]]
		if !a.StartTime.Equal(b.StartTime) {
			return a.StartTime.Before(b.StartTime)
		}
		return ids[i] < ids[j]
	})
	for _, id := range ids {
		c := sessions[id].ChainID
		idx.chainSessions[c] = append(idx.chainSessions[c], id)
	}
	for chainID, list := range file.RunMapping {
		if len(list) != len(idx.chainSessions[chainID]) {
			healed++
		}
	}

	seen := make(map[string]bool)
	addRun := func(run string) {
		if seen[run] {
			return
		}
		seen[run] = true
		base := chain.BaseChainID(run)
		idx.baseRuns[base] = append(idx.baseRuns[base], run)
	}
	for base, runs := range file.BaseRunMapping {
		for _, run := range runs {
			if chain.BaseChainID(run) != base {
				healed++
			}
			addRun(run)
		}
	}
	for run := range file.RunToBase {
		if !seen[run] {
			healed++
		}
	}
	for chainID := range idx.chainSessions {
		if !seen[chainID] {
			healed++
			addRun(chainID)
		}
	}

	for base, runs := range idx.baseRuns {
		sort.SliceStable(runs, func(i, j int) bool {
			_, a, _ := chain.ParseRunID(runs[i])
			_, b, _ := chain.ParseRunID(runs[j])
			return a < b
		})
		for _, run := range runs {
			idx.runToBase[run] = base
		}
	}
	return idx, healed
}
