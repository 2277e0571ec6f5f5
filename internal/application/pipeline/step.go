package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/YoshitsuguKoike/gatechain/internal/application/accumulator"
	"github.com/YoshitsuguKoike/gatechain/internal/application/enforcement"
	"github.com/YoshitsuguKoike/gatechain/internal/application/port/output"
	"github.com/YoshitsuguKoike/gatechain/internal/application/verify"
	"github.com/YoshitsuguKoike/gatechain/internal/domain/chain"
)

// handleStep captures the caller's response to the current step
func (e *Engine) handleStep(ctx context.Context, r *request, sess *chain.Session, in *StepInput) Response {
	if sess.PendingShellVerify != nil {
		return e.continueVerify(ctx, r, sess, in)
	}
	if strings.TrimSpace(in.Response) == "" {
		r.diag.Info("step", "no response supplied; presenting the current step again",
			accumulator.WithCode("STEP_AWAITING_RESPONSE"))
		return e.renderStep(ctx, r, sess, in.Step)
	}

	if err := e.captureResponse(ctx, r, sess, in.Step, in.Response); err != nil {
		return errorResponse(err)
	}
	return e.afterResponse(ctx, r, sess, in.Step, in.Response)
}

// captureResponse stores the response and tracks it in the argument history
func (e *Engine) captureResponse(ctx context.Context, r *request, sess *chain.Session, step int, response string) error {
	bs, _ := sess.Blueprint.Step(step)
	if err := e.store.UpdateStepResult(ctx, sess.SessionID, step, response, map[string]interface{}{"promptId": bs.PromptID}); err != nil {
		return err
	}
	e.track(ctx, r, output.ExecutionRecord{
		SessionID: sess.SessionID,
		ChainID:   sess.ChainID,
		PromptID:  bs.PromptID,
		Step:      step,
		Args:      bs.ArgMap,
		Response:  response,
	})
	return nil
}

// afterResponse runs shell verification on the final step, then gate review
func (e *Engine) afterResponse(ctx context.Context, r *request, sess *chain.Session, step int, response string) Response {
	bp := sess.Blueprint
	if bp != nil && bp.Verify != nil && step >= sess.State.TotalSteps && e.loop != nil {
		st := verify.NewState(VerifyGateID, *bp.Verify, e.now())
		if err := e.store.SetPendingShellVerify(sess.SessionID, st); err != nil {
			return errorResponse(err)
		}
		out, err := e.loop.Step(ctx, verify.Input{SessionID: sess.SessionID, State: st, UserResponse: response})
		return e.verifyOutcome(ctx, r, sess, step, response, out, err)
	}
	return e.gateCheck(ctx, r, sess, step, response)
}

// continueVerify feeds a follow-up request into a pending verification
func (e *Engine) continueVerify(ctx context.Context, r *request, sess *chain.Session, in *StepInput) Response {
	if e.loop == nil {
		return errorResponse(fmt.Errorf("shell verification is not available"))
	}
	if in.Action == "" && strings.TrimSpace(in.Response) != "" {
		if err := e.captureResponse(ctx, r, sess, in.Step, in.Response); err != nil {
			return errorResponse(err)
		}
	}
	out, err := e.loop.Step(ctx, verify.Input{SessionID: sess.SessionID, GateAction: in.Action, UserResponse: in.Response})
	return e.verifyOutcome(ctx, r, sess, in.Step, e.stepContent(ctx, sess, in.Step), out, err)
}

func (e *Engine) verifyOutcome(ctx context.Context, r *request, sess *chain.Session, step int, response string, out verify.Outcome, err error) Response {
	if err != nil {
		return errorResponse(err)
	}
	r.diag.Debug("verify", "verification step", accumulator.WithContext(map[string]interface{}{"status": out.Status}))

	switch out.Status {
	case verify.StatusPassed, verify.StatusSkipped:
		if out.Status == verify.StatusSkipped {
			r.diag.Warn("verify", "verification skipped by caller", accumulator.WithCode("VERIFY_SKIPPED"))
		}
		next := e.gateCheck(ctx, r, sess, step, response)
		next.Content = joinContent(out.Message, next.Content)
		return next
	case verify.StatusAborted:
		return e.abort(ctx, r, sess, "verification aborted by caller")
	case verify.StatusEscalated:
		return sessionResponse(StatusVerifyEscalated, sess, out.Message)
	case verify.StatusAwaitingResponse:
		return sessionResponse(StatusVerifyAwaiting, sess, out.Message)
	default:
		return sessionResponse(StatusVerifyRetry, sess, out.Message)
	}
}

// gateCheck opens a gate review when the step is gated, otherwise advances
func (e *Engine) gateCheck(ctx context.Context, r *request, sess *chain.Session, step int, response string) Response {
	ids := gatesForStep(sess, step)
	mode := e.sessionMode(r, sess)
	decision := r.authority.Decide(enforcement.DecisionInput{
		GateIDs:       ids,
		BlockingGates: blockingAmong(sess.Blueprint, ids),
		Mode:          mode,
		GatesDisabled: r.GatesDisabled(),
	})
	if !decision.Enforce || len(ids) == 0 {
		return e.advance(ctx, r, sess, step, response)
	}

	review := &chain.PendingGateReview{
		GateIDs:          ids,
		MaxAttempts:      sess.Blueprint.GateMaxAttempts,
		PreviousResponse: response,
		Metadata:         map[string]interface{}{"mode": string(mode)},
	}
	for _, id := range ids {
		review.Prompts = append(review.Prompts, chain.GatePrompt{GateID: id, Criteria: sess.Blueprint.GateCriteria[id]})
	}
	review.CombinedPrompt = reviewPrompt(review)
	if err := e.store.SetPendingGateReview(sess.SessionID, review); err != nil {
		return errorResponse(err)
	}
	r.logger.Infow("gate review opened", "chainId", sess.ChainID, "step", step, "gates", ids, "mode", mode)

	resp := sessionResponse(StatusGateReview, sess, review.CombinedPrompt)
	resp.GateIDs = ids
	resp.Blocking = decision.BlockResponse
	return resp
}

// advance completes step and renders the next one, or finishes the chain
func (e *Engine) advance(ctx context.Context, r *request, sess *chain.Session, step int, response string) Response {
	if err := e.store.CompleteStep(sess.SessionID, step, false); err != nil {
		return errorResponse(err)
	}
	if err := e.store.AdvanceStep(sess.SessionID, step); err != nil {
		return errorResponse(err)
	}

	if step >= sess.State.TotalSteps {
		done := sessionResponse(StatusComplete, sess, completionMessage(sess, response))
		done.CurrentStep = sess.State.TotalSteps
		if err := e.store.ClearSession(ctx, sess.SessionID); err != nil {
			r.logger.Warnw("failed to clear completed session", "sessionId", sess.SessionID, "error", err)
		}
		r.logger.Infow("chain complete", "chainId", sess.ChainID, "steps", sess.State.TotalSteps)
		return done
	}

	next, ok := e.store.GetSession(sess.SessionID)
	if !ok {
		return errorResponse(chain.ErrSessionNotFound.WithDetails(map[string]interface{}{"sessionId": sess.SessionID}))
	}
	return e.renderStep(ctx, r, next, step+1)
}

// renderStep renders step n with the chain context and marks it RENDERED
func (e *Engine) renderStep(ctx context.Context, r *request, sess *chain.Session, n int) Response {
	bs, ok := sess.Blueprint.Step(n)
	if !ok {
		return errorResponse(chain.ErrInvalidStep.WithDetails(map[string]interface{}{"sessionId": sess.SessionID, "step": n}))
	}

	prompt, found := e.findPrompt(bs.PromptID)
	if !found {
		r.diag.Warn("render", fmt.Sprintf("prompt %q is no longer in the catalog", bs.PromptID), accumulator.WithCode("PROMPT_MISSING"))
		prompt = output.PromptInfo{ID: bs.PromptID, Name: bs.PromptID}
	}

	chainCtx, err := e.store.GetChainContext(ctx, sess.SessionID)
	if err != nil {
		r.diag.Warn("render", "chain context unavailable", accumulator.WithContext(map[string]interface{}{"error": err.Error()}))
		chainCtx = map[string]interface{}{}
	}
	args := map[string]interface{}{}
	for k, v := range bs.ArgMap {
		args[k] = v
	}
	if _, ok := args["input"]; !ok && bs.Args != "" {
		args["input"] = bs.Args
	}

	content, err := e.renderer.Render(ctx, prompt, args, chainCtx)
	if err != nil {
		r.diag.Error("render", err.Error(), accumulator.WithCode("RENDER_FAILED"))
		return errorResponse(err)
	}
	content = withGuidance(content, sess.Blueprint)

	if err := e.store.TransitionStepState(sess.SessionID, n, chain.StepRendered, true); err != nil && !chain.IsInvalidTransition(err) {
		return errorResponse(err)
	}
	e.track(ctx, r, output.ExecutionRecord{
		SessionID: sess.SessionID,
		ChainID:   sess.ChainID,
		PromptID:  bs.PromptID,
		Step:      n,
		Args:      bs.ArgMap,
	})

	resp := sessionResponse(StatusStep, sess, content)
	resp.CurrentStep = n
	resp.GateIDs = gatesForStep(sess, n)
	return resp
}

func (e *Engine) track(ctx context.Context, r *request, rec output.ExecutionRecord) {
	if e.history == nil {
		return
	}
	if err := e.history.TrackExecution(ctx, rec); err != nil {
		r.logger.Warnw("failed to track execution", "sessionId", rec.SessionID, "step", rec.Step, "error", err)
	}
}

// stepContent returns the stored response for step, empty when unavailable
func (e *Engine) stepContent(ctx context.Context, sess *chain.Session, step int) string {
	if e.results == nil {
		return ""
	}
	results, err := e.results.GetResults(ctx, sess.ChainID)
	if err != nil {
		e.logger.Warnw("failed to read step results", "chainId", sess.ChainID, "error", err)
		return ""
	}
	for _, res := range results {
		if res.Step == step {
			return res.Content
		}
	}
	return ""
}

func (e *Engine) findPrompt(id string) (output.PromptInfo, bool) {
	if e.catalog == nil {
		return output.PromptInfo{}, false
	}
	p, ok := e.catalog.FindByID(id)
	if !ok {
		return output.PromptInfo{}, false
	}
	return *p, true
}

// withGuidance appends framework and style directives to rendered content
func withGuidance(content string, bp *chain.Blueprint) string {
	if bp == nil {
		return content
	}
	var notes []string
	if bp.Framework != "" {
		notes = append(notes, fmt.Sprintf("Apply the %s methodology.", bp.Framework))
	}
	if bp.Style != "" {
		notes = append(notes, fmt.Sprintf("Format the response in the %s style.", bp.Style))
	}
	if len(notes) == 0 {
		return content
	}
	return joinContent(content, strings.Join(notes, "\n"))
}

func completionMessage(sess *chain.Session, response string) string {
	msg := fmt.Sprintf("Chain %s complete (%d steps).", sess.ChainID, sess.State.TotalSteps)
	return joinContent(msg, strings.TrimSpace(response))
}

func joinContent(parts ...string) string {
	var kept []string
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			kept = append(kept, strings.TrimRight(p, "\n"))
		}
	}
	return strings.Join(kept, "\n\n")
}
