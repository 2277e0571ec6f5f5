package pipeline

import (
	"context"
	"crypto/rand"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/YoshitsuguKoike/gatechain/internal/application/accumulator"
	"github.com/YoshitsuguKoike/gatechain/internal/application/enforcement"
	"github.com/YoshitsuguKoike/gatechain/internal/application/parser"
	"github.com/YoshitsuguKoike/gatechain/internal/application/port/output"
	"github.com/YoshitsuguKoike/gatechain/internal/application/session"
	"github.com/YoshitsuguKoike/gatechain/internal/application/verify"
	"github.com/YoshitsuguKoike/gatechain/internal/domain/chain"
	"github.com/YoshitsuguKoike/gatechain/internal/domain/gate"
	"github.com/YoshitsuguKoike/gatechain/internal/logging"
)

// Config holds the engine defaults taken from settings
type Config struct {
	GateMode           gate.EnforcementMode
	GateMaxAttempts    int
	VerifyTimeout      time.Duration
	VerifyMaxAttempts  int
	ActiveSessionLimit int
}

// Deps are the collaborators the engine calls
type Deps struct {
	Store    *session.Store
	Catalog  output.PromptCatalog
	Renderer output.PromptRenderer
	Results  output.StepResultStore
	History  output.ArgumentHistory
	Loop     *verify.Loop
	Metrics  output.Metrics
	Logger   logging.Logger
}

// Engine walks execution plans one request at a time
type Engine struct {
	store    *session.Store
	catalog  output.PromptCatalog
	renderer output.PromptRenderer
	results  output.StepResultStore
	history  output.ArgumentHistory
	loop     *verify.Loop
	resolver *parser.Resolver
	metrics  output.Metrics
	logger   logging.Logger
	cfg      Config

	now          func() time.Time
	newSessionID func() string
	newRequestID func() string
}

// NewEngine creates an engine
func NewEngine(deps Deps, cfg Config) *Engine {
	if !cfg.GateMode.IsValid() {
		cfg.GateMode = gate.ModeBlocking
	}
	if cfg.GateMaxAttempts <= 0 {
		cfg.GateMaxAttempts = chain.DefaultGateMaxAttempts
	}
	if cfg.ActiveSessionLimit <= 0 {
		cfg.ActiveSessionLimit = 50
	}
	logger := logging.OrGlobal(deps.Logger)
	entropy := ulid.Monotonic(rand.Reader, 0)
	e := &Engine{
		store:    deps.Store,
		catalog:  deps.Catalog,
		renderer: deps.Renderer,
		results:  deps.Results,
		history:  deps.History,
		loop:     deps.Loop,
		resolver: parser.NewResolver(deps.Catalog, logger),
		metrics:  output.OrNop(deps.Metrics),
		logger:   logger,
		cfg:      cfg,
		now:      time.Now,
	}
	e.newSessionID = func() string { return ulid.MustNew(ulid.Timestamp(e.now()), entropy).String() }
	e.newRequestID = uuid.NewString
	return e
}

// request is the per-request working set
type request struct {
	Request
	id        string
	kind      string
	logger    logging.Logger
	diag      *accumulator.DiagnosticAccumulator
	authority *enforcement.Authority
}

// Handle processes one request to completion. Failures are reported in the
// response, never returned.
func (e *Engine) Handle(ctx context.Context, req Request) Response {
	start := e.now()
	id := e.newRequestID()
	logger := logging.With(e.logger, "requestId", id)
	r := &request{
		Request:   req,
		id:        id,
		kind:      "start",
		logger:    logger,
		diag:      accumulator.NewDiagnosticAccumulator(logger),
		authority: enforcement.NewAuthority(e.store, logger, e.metrics),
	}

	resp := e.handle(ctx, r)
	resp.RequestID = id
	resp.Diagnostics = r.diag.Entries()
	e.metrics.RequestHandled(r.kind, string(resp.Status), e.now().Sub(start))
	logger.Debugw("request handled", "kind", r.kind, "status", resp.Status, "chainId", resp.ChainID)
	return resp
}

func (e *Engine) handle(ctx context.Context, r *request) Response {
	if err := r.Validate(); err != nil {
		r.kind = "invalid"
		r.diag.Error("validate", err.Error(), accumulator.WithCode("INVALID_REQUEST"))
		return Response{Status: StatusError, Content: err.Error(), Error: &ErrorInfo{Kind: "invalid_request", Message: err.Error()}}
	}

	if r.ChainID != "" {
		sess, found := e.lookup(r.ChainID)
		if found && !r.ForceRestart {
			r.kind = "continue"
			return e.continueSession(ctx, r, sess)
		}
		if found && r.ForceRestart {
			if r.Command == "" && sess.Blueprint != nil {
				r.Command = sess.Blueprint.Command
			}
			if err := e.store.ClearSessionsForChain(ctx, chain.BaseChainID(sess.ChainID)); err != nil {
				r.logger.Warnw("failed to clear chain for restart", "chainId", sess.ChainID, "error", err)
			}
			r.diag.Info("session", "restarting chain", accumulator.WithContext(map[string]interface{}{"chainId": sess.ChainID}))
		}
		if !found && r.Command == "" {
			r.kind = "continue"
			return errorResponse(chain.ErrSessionNotFound.WithDetails(map[string]interface{}{"chainId": r.ChainID}))
		}
	}
	return e.start(ctx, r)
}

// lookup resolves a run or base chain ID to a live session, resuming it
func (e *Engine) lookup(chainID string) (*chain.Session, bool) {
	sess, ok := e.store.GetSessionByChainIdentifier(chainID, true)
	if !ok {
		return nil, false
	}
	return e.store.GetSession(sess.SessionID)
}

// start parses a command and renders its first step
func (e *Engine) start(ctx context.Context, r *request) Response {
	res, err := e.resolver.Resolve(r.Command)
	if err != nil {
		r.diag.Error("parse", err.Error(), accumulator.WithCode("PARSE_FAILED"))
		return errorResponse(err)
	}
	plan := res.Plan
	r.diag.Debug("parse", "command resolved", accumulator.WithContext(map[string]interface{}{
		"strategy": res.Strategy, "steps": len(plan.Steps), "complexity": plan.Complexity,
	}))
	if plan.Parallel != nil || plan.Conditional != nil {
		r.diag.Warn("plan", "parallel and conditional operators are parsed but not executed", accumulator.WithCode("OPERATOR_NOT_EXECUTED"))
	}

	if len(plan.Steps) == 1 && plan.Steps[0].Builtin {
		r.kind = "builtin"
		return e.builtin(r, plan.Steps[0].PromptID)
	}
	if len(plan.Steps) == 0 {
		r.kind = "plan"
		return Response{Status: StatusInfo, Content: describePlan(res)}
	}

	bp := e.blueprint(r, res)
	base := baseChainID(plan)

	if !r.ForceRestart {
		if latest, ok := e.store.GetLatestSessionForBaseChain(base); ok && !latest.IsComplete() &&
			latest.Blueprint != nil && latest.Blueprint.Command == r.Command {
			if sess, ok := e.store.GetSession(latest.SessionID); ok {
				r.kind = "resume"
				r.diag.Info("session", "resuming in-flight run", accumulator.WithContext(map[string]interface{}{"chainId": sess.ChainID}))
				return e.present(ctx, r, sess)
			}
		}
	}

	chainID := e.store.NextRunChainID(base)
	sess, err := e.store.CreateSession(ctx, e.newSessionID(), chainID, len(plan.Steps), plan.Steps[0].ArgMap, bp)
	if err != nil {
		return errorResponse(err)
	}
	r.logger.Infow("chain started", "chainId", chainID, "sessionId", sess.SessionID, "steps", len(plan.Steps))
	return e.renderStep(ctx, r, sess, 1)
}

// present re-shows whatever the session is waiting on
func (e *Engine) present(ctx context.Context, r *request, sess *chain.Session) Response {
	switch {
	case sess.PendingGateReview != nil:
		return e.reviewResponse(r, sess, sess.PendingGateReview, "")
	case sess.PendingShellVerify != nil:
		st := sess.PendingShellVerify
		if st.AttemptsExhausted() {
			last := chain.VerifyResult{}
			if lr := st.LastResult(); lr != nil {
				last = *lr
			}
			return sessionResponse(StatusVerifyEscalated, sess, verify.EscalationMessage(st.Config, last, st.AttemptCount))
		}
		return sessionResponse(StatusVerifyAwaiting, sess,
			fmt.Sprintf("Verification `%s` is pending (attempt %d/%d). Reply with your fix to re-run it.", st.Config.Command, st.AttemptCount, st.MaxAttempts))
	default:
		return e.renderStep(ctx, r, sess, sess.State.CurrentStep)
	}
}

// continueSession dispatches a follow-up request on an existing session
func (e *Engine) continueSession(ctx context.Context, r *request, sess *chain.Session) Response {
	if sess.IsComplete() {
		return sessionResponse(StatusComplete, sess, fmt.Sprintf("Chain %s is already complete.", sess.ChainID))
	}
	in := classify(r.Request, sess)
	switch in.Kind {
	case InputGateReview:
		r.kind = "gate_review"
		return e.handleGateReview(ctx, r, sess, in.GateReview)
	case InputStep:
		r.kind = "step"
		return e.handleStep(ctx, r, sess, in.Step)
	default:
		return errorResponse(fmt.Errorf("unhandled input kind %q", in.Kind))
	}
}

// abort clears the session and reports the chain stopped
func (e *Engine) abort(ctx context.Context, r *request, sess *chain.Session, reason string) Response {
	if err := e.store.ClearSession(ctx, sess.SessionID); err != nil {
		r.logger.Warnw("failed to clear aborted session", "sessionId", sess.SessionID, "error", err)
	}
	r.logger.Infow("chain aborted", "chainId", sess.ChainID, "reason", reason)
	return sessionResponse(StatusAborted, sess, fmt.Sprintf("Chain %s aborted: %s", sess.ChainID, reason))
}
