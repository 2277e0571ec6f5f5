package enforcement

import (
	"context"
	"sync"
	"time"

	"github.com/YoshitsuguKoike/gatechain/internal/application/port/output"
	"github.com/YoshitsuguKoike/gatechain/internal/domain/chain"
	"github.com/YoshitsuguKoike/gatechain/internal/domain/gate"
	"github.com/YoshitsuguKoike/gatechain/internal/logging"
)

// ReviewStore is the durable side of gate reviews. *session.Store implements it.
type ReviewStore interface {
	GetPendingGateReview(sessionID string) *chain.PendingGateReview
	RecordGateReviewOutcome(sessionID string, outcome chain.GateReviewOutcome) (chain.GateReviewStatus, error)
	IsRetryLimitExceeded(sessionID string) bool
	ResetRetryCount(sessionID string) error
	ClearPendingGateReview(sessionID string) error
}

// Status is the result of recording a verdict
type Status string

const (
	StatusCleared   Status = "cleared"
	StatusPending   Status = "pending"
	StatusExhausted Status = "exhausted"
)

// NextAction tells the pipeline what to do after an enforcement step
type NextAction string

const (
	NextContinue        NextAction = "continue"
	NextAwaitVerdict    NextAction = "await_verdict"
	NextAwaitUserChoice NextAction = "await_user_choice"
	NextStop            NextAction = "stop"
)

// Outcome is returned by RecordOutcome
type Outcome struct {
	Status       Status
	NextAction   NextAction
	Bypassed     bool
	AttemptCount int
	MaxAttempts  int
	RetryHints   []string
}

// ActionResult is returned by ResolveAction
type ActionResult struct {
	Handled    bool
	Action     gate.Action
	NextAction NextAction
}

// DecisionInput describes the gates in play for one request
type DecisionInput struct {
	GateIDs          []string
	BlockingGates    []string
	Mode             gate.EnforcementMode
	HasPendingReview bool
	GatesDisabled    bool
}

// Decision is the per-request enforcement decision
type Decision struct {
	Enforce       bool
	Mode          gate.EnforcementMode
	GateIDs       []string
	BlockResponse bool
	Reason        string
	DecidedAt     time.Time
}

// Authority parses verdicts and drives retry/escalation policy. One instance
// serves one request.
type Authority struct {
	store   ReviewStore
	logger  logging.Logger
	metrics output.Metrics
	now     func() time.Time

	mu       sync.Mutex
	decision *Decision
}

// NewAuthority creates a request-scoped authority
func NewAuthority(store ReviewStore, logger logging.Logger, metrics output.Metrics) *Authority {
	return &Authority{
		store:   store,
		logger:  logging.OrGlobal(logger),
		metrics: output.OrNop(metrics),
		now:     time.Now,
	}
}

// RecordOutcome stores the verdict against the session's pending review and
// applies mode policy to a FAIL that leaves the review pending.
func (a *Authority) RecordOutcome(ctx context.Context, sessionID string, verdict *ParsedVerdict, mode gate.EnforcementMode) (Outcome, error) {
	if !mode.IsValid() {
		mode = gate.ModeBlocking
	}
	outcome := chain.GateReviewOutcome{
		Verdict:   string(verdict.Verdict),
		Rationale: verdict.Rationale,
		Raw:       verdict.Raw,
		Reviewer:  string(verdict.Source),
	}
	status, err := a.store.RecordGateReviewOutcome(sessionID, outcome)
	if err != nil {
		return Outcome{}, err
	}

	if status == chain.GateReviewCleared {
		a.metrics.GateOutcome(string(StatusCleared), string(mode))
		return Outcome{Status: StatusCleared, NextAction: NextContinue}, nil
	}

	review := a.store.GetPendingGateReview(sessionID)
	result := Outcome{}
	if review != nil {
		result.AttemptCount = review.AttemptCount
		result.MaxAttempts = review.EffectiveMaxAttempts()
		result.RetryHints = review.RetryHints
	}

	switch mode {
	case gate.ModeAdvisory, gate.ModeInformational:
		kv := []interface{}{"sessionId", sessionID, "mode", mode, "rationale", verdict.Rationale}
		if mode == gate.ModeAdvisory {
			a.logger.Warnw("advisory gate failed; continuing", kv...)
		} else {
			a.logger.Debugw("informational gate failed; continuing", kv...)
		}
		if err := a.store.ClearPendingGateReview(sessionID); err != nil {
			return Outcome{}, err
		}
		result.Status = StatusCleared
		result.NextAction = NextContinue
		result.Bypassed = true
	default:
		if a.store.IsRetryLimitExceeded(sessionID) {
			result.Status = StatusExhausted
			result.NextAction = NextAwaitUserChoice
		} else {
			result.Status = StatusPending
			result.NextAction = NextAwaitVerdict
		}
	}

	a.metrics.GateOutcome(string(result.Status), string(mode))
	return result, nil
}

// ResolveAction applies the caller's retry/skip/abort choice. Abort only
// signals the caller to stop; persisted state is left to the caller.
func (a *Authority) ResolveAction(ctx context.Context, sessionID string, action gate.Action) (ActionResult, error) {
	switch action {
	case gate.ActionRetry:
		if err := a.store.ResetRetryCount(sessionID); err != nil {
			return ActionResult{}, err
		}
		return ActionResult{Handled: true, Action: action, NextAction: NextAwaitVerdict}, nil
	case gate.ActionSkip:
		if err := a.store.ClearPendingGateReview(sessionID); err != nil {
			return ActionResult{}, err
		}
		a.logger.Infow("gate skipped by caller", "sessionId", sessionID)
		return ActionResult{Handled: true, Action: action, NextAction: NextContinue}, nil
	case gate.ActionAbort:
		a.logger.Infow("chain aborted by caller", "sessionId", sessionID)
		return ActionResult{Handled: true, Action: action, NextAction: NextStop}, nil
	default:
		a.logger.Warnw("unknown gate action", "sessionId", sessionID, "action", action)
		return ActionResult{Handled: false, Action: action}, nil
	}
}

// Decide computes the enforcement decision once; later calls return the
// cached value until Reset.
func (a *Authority) Decide(in DecisionInput) Decision {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.decision != nil {
		return *a.decision
	}

	mode := in.Mode
	if !mode.IsValid() {
		mode = gate.ModeBlocking
	}
	d := Decision{
		Mode:      mode,
		GateIDs:   append([]string(nil), in.GateIDs...),
		DecidedAt: a.now(),
	}
	switch {
	case in.GatesDisabled:
		d.Reason = "gates disabled for this request"
	case len(in.GateIDs) == 0 && !in.HasPendingReview:
		d.Reason = "no gates apply"
	default:
		d.Enforce = true
		d.BlockResponse = mode == gate.ModeBlocking && len(in.BlockingGates) > 0
		d.Reason = "gates apply"
		if in.HasPendingReview {
			d.Reason = "pending gate review"
		}
	}
	a.decision = &d
	return d
}

// Reset drops the cached decision
func (a *Authority) Reset() {
	a.mu.Lock()
	a.decision = nil
	a.mu.Unlock()
}
