package verify

import (
	"context"
	"strings"
	"time"

	"github.com/YoshitsuguKoike/gatechain/internal/application/port/output"
	"github.com/YoshitsuguKoike/gatechain/internal/domain/chain"
	"github.com/YoshitsuguKoike/gatechain/internal/domain/gate"
	"github.com/YoshitsuguKoike/gatechain/internal/logging"
)

// Status is the result of one loop step
type Status string

const (
	StatusPassed           Status = "passed"
	StatusRetry            Status = "retry"
	StatusEscalated        Status = "escalated"
	StatusAwaitingResponse Status = "awaiting_response"
	StatusReset            Status = "reset"
	StatusSkipped          Status = "skipped"
	StatusAborted          Status = "aborted"
)

// ErrNotPending is returned when a session has no pending verification
var ErrNotPending = chain.NewError("VERIFY_NOT_PENDING", "No shell verification pending for session", nil)

// StateStore is the durable side of a pending verification. *session.Store implements it.
type StateStore interface {
	GetPendingShellVerify(sessionID string) *chain.ShellVerifyState
	SetPendingShellVerify(sessionID string, state *chain.ShellVerifyState) error
	ClearPendingShellVerify(sessionID string) error
}

// Input is one request's view of a pending verification. State overrides the
// stored state when set.
type Input struct {
	SessionID    string
	State        *chain.ShellVerifyState
	GateAction   gate.Action
	UserResponse string
}

// Outcome tells the pipeline what happened. ShortCircuit means Message must be
// returned to the caller instead of advancing.
type Outcome struct {
	Status       Status
	Message      string
	ShortCircuit bool
	State        *chain.ShellVerifyState
	Result       *chain.VerifyResult
}

// Loop drives a pending shell verification
type Loop struct {
	store        StateStore
	runner       CommandRunner
	checkpointer Checkpointer
	wait         *WaitStateFile
	logger       logging.Logger
	metrics      output.Metrics
	now          func() time.Time
}

// LoopOption configures a Loop
type LoopOption func(*Loop)

// WithCheckpointer replaces the git checkpointer
func WithCheckpointer(c Checkpointer) LoopOption { return func(l *Loop) { l.checkpointer = c } }

// WithWaitState enables the wait-state file for loop-mode verifications
func WithWaitState(w *WaitStateFile) LoopOption { return func(l *Loop) { l.wait = w } }

// WithMetrics records verification runs
func WithMetrics(m output.Metrics) LoopOption { return func(l *Loop) { l.metrics = output.OrNop(m) } }

// WithClock overrides time.Now
func WithClock(now func() time.Time) LoopOption { return func(l *Loop) { l.now = now } }

// NewLoop creates a loop over store using runner
func NewLoop(store StateStore, runner CommandRunner, logger logging.Logger, opts ...LoopOption) *Loop {
	l := &Loop{
		store:        store,
		runner:       runner,
		checkpointer: NewGitCheckpointer(),
		logger:       logging.OrGlobal(logger),
		metrics:      output.NopMetrics{},
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// NewState creates the pending verification for a gate
func NewState(gateID string, cfg chain.VerifyConfig, now time.Time) *chain.ShellVerifyState {
	return &chain.ShellVerifyState{
		GateID:      gateID,
		Config:      cfg,
		MaxAttempts: cfg.EffectiveMaxIterations(),
		StartedAt:   now,
	}
}

// Step advances the verification state machine by one request
func (l *Loop) Step(ctx context.Context, in Input) (Outcome, error) {
	st := in.State.Clone()
	if st == nil {
		st = l.store.GetPendingShellVerify(in.SessionID)
	}
	if st == nil {
		return Outcome{}, ErrNotPending.WithDetails(map[string]interface{}{"sessionId": in.SessionID})
	}
	if st.MaxAttempts <= 0 {
		st.MaxAttempts = st.Config.EffectiveMaxIterations()
	}

	if st.AttemptsExhausted() {
		if in.GateAction != "" {
			if out, handled, err := l.resolveAction(ctx, in, st); handled || err != nil {
				return out, err
			}
		}
		last := chain.VerifyResult{}
		if r := st.LastResult(); r != nil {
			last = *r
		}
		return Outcome{
			Status:       StatusEscalated,
			Message:      EscalationMessage(st.Config, last, st.AttemptCount),
			ShortCircuit: true,
			State:        st,
			Result:       st.LastResult(),
		}, nil
	}

	if st.AttemptCount > 0 && strings.TrimSpace(in.UserResponse) == "" {
		return Outcome{
			Status:       StatusAwaitingResponse,
			Message:      awaitingMessage(st.Config, st.AttemptCount, st.MaxAttempts),
			ShortCircuit: true,
			State:        st,
		}, nil
	}

	return l.run(ctx, in.SessionID, st)
}

func (l *Loop) run(ctx context.Context, sessionID string, st *chain.ShellVerifyState) (Outcome, error) {
	cfg := st.Config

	if cfg.Checkpoint && st.AttemptCount == 0 && st.CheckpointRef == "" && l.checkpointer != nil {
		ref, err := l.checkpointer.Create(ctx, cfg.WorkingDir)
		if err != nil {
			l.logger.Warnw("checkpoint failed; continuing without rollback point", "sessionId", sessionID, "error", err)
		} else {
			st.CheckpointRef = ref
		}
	}
	if cfg.Loop {
		l.writeWait(sessionID, st)
	}

	result := l.runner.Run(ctx, cfg)
	st.AttemptCount++
	st.PreviousResults = append(st.PreviousResults, result)
	l.metrics.VerifyRun(result.Passed, result.TimedOut, result.Duration)
	l.logger.Infow("verification command finished",
		"sessionId", sessionID,
		"attempt", st.AttemptCount,
		"exitCode", result.ExitCode,
		"timedOut", result.TimedOut,
		"duration", result.Duration)

	if result.Passed {
		if err := l.store.ClearPendingShellVerify(sessionID); err != nil {
			return Outcome{}, err
		}
		l.clearWait(sessionID)
		return Outcome{
			Status:  StatusPassed,
			Message: PassedMessage(cfg, st.AttemptCount),
			State:   st,
			Result:  &result,
		}, nil
	}

	if cfg.Rollback && st.CheckpointRef != "" && l.checkpointer != nil {
		if err := l.checkpointer.Restore(ctx, cfg.WorkingDir, st.CheckpointRef); err != nil {
			l.logger.Warnw("rollback failed", "sessionId", sessionID, "ref", st.CheckpointRef, "error", err)
		}
	}
	if err := l.store.SetPendingShellVerify(sessionID, st); err != nil {
		return Outcome{}, err
	}

	if !st.AttemptsExhausted() {
		if cfg.Loop {
			l.writeWait(sessionID, st)
		}
		return Outcome{
			Status:       StatusRetry,
			Message:      BounceBackMessage(cfg, result, st.AttemptCount, st.MaxAttempts),
			ShortCircuit: true,
			State:        st,
			Result:       &result,
		}, nil
	}

	l.clearWait(sessionID)
	return Outcome{
		Status:       StatusEscalated,
		Message:      EscalationMessage(cfg, result, st.AttemptCount),
		ShortCircuit: true,
		State:        st,
		Result:       &result,
	}, nil
}

// resolveAction handles retry/skip/abort after exhaustion. handled is false
// for unknown actions.
func (l *Loop) resolveAction(ctx context.Context, in Input, st *chain.ShellVerifyState) (Outcome, bool, error) {
	switch in.GateAction {
	case gate.ActionRetry:
		st.AttemptCount = 0
		if err := l.store.SetPendingShellVerify(in.SessionID, st); err != nil {
			return Outcome{}, true, err
		}
		if st.Config.Loop {
			l.writeWait(in.SessionID, st)
		}
		return Outcome{
			Status:       StatusReset,
			Message:      "Verification attempts reset. Fix the issues and respond to run `" + st.Config.Command + "` again.",
			ShortCircuit: true,
			State:        st,
		}, true, nil
	case gate.ActionSkip:
		if err := l.store.ClearPendingShellVerify(in.SessionID); err != nil {
			return Outcome{}, true, err
		}
		l.clearWait(in.SessionID)
		return Outcome{Status: StatusSkipped, Message: "Verification skipped.", State: st}, true, nil
	case gate.ActionAbort:
		if err := l.store.ClearPendingShellVerify(in.SessionID); err != nil {
			return Outcome{}, true, err
		}
		l.clearWait(in.SessionID)
		return Outcome{Status: StatusAborted, Message: "Verification aborted. The chain has been stopped.", ShortCircuit: true, State: st}, true, nil
	default:
		l.logger.Warnw("unknown verification action", "sessionId", in.SessionID, "action", in.GateAction)
		return Outcome{}, false, nil
	}
}

func (l *Loop) writeWait(sessionID string, st *chain.ShellVerifyState) {
	if l.wait == nil {
		return
	}
	if err := l.wait.Write(NewWaitState(sessionID, st)); err != nil {
		l.logger.Warnw("failed to write wait-state file", "path", l.wait.Path(), "error", err)
	}
}

func (l *Loop) clearWait(sessionID string) {
	if l.wait == nil {
		return
	}
	if err := l.wait.Clear(); err != nil {
		l.logger.Warnw("failed to clear wait-state file", "sessionId", sessionID, "path", l.wait.Path(), "error", err)
	}
}
