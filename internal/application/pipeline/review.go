package pipeline

import (
	"context"
	"fmt"

	"github.com/YoshitsuguKoike/gatechain/internal/application/accumulator"
	"github.com/YoshitsuguKoike/gatechain/internal/application/enforcement"
	"github.com/YoshitsuguKoike/gatechain/internal/domain/chain"
	"github.com/YoshitsuguKoike/gatechain/internal/domain/gate"
)

// handleGateReview applies an action or a verdict to the pending review
func (e *Engine) handleGateReview(ctx context.Context, r *request, sess *chain.Session, in *GateReviewInput) Response {
	review := sess.PendingGateReview
	mode := e.sessionMode(r, sess)

	r.authority.Decide(enforcement.DecisionInput{
		GateIDs:          review.GateIDs,
		BlockingGates:    blockingAmong(sess.Blueprint, review.GateIDs),
		Mode:             mode,
		HasPendingReview: true,
	})

	if in.Action != "" {
		res, err := r.authority.ResolveAction(ctx, sess.SessionID, in.Action)
		if err != nil {
			return errorResponse(err)
		}
		if !res.Handled {
			r.diag.Warn("gate", fmt.Sprintf("unknown gate action %q", in.Action), accumulator.WithCode("GATE_ACTION_UNKNOWN"))
			return e.reviewResponse(r, sess, review, "")
		}
		switch res.NextAction {
		case enforcement.NextContinue:
			return e.advance(ctx, r, sess, in.Step, review.PreviousResponse)
		case enforcement.NextStop:
			return e.abort(ctx, r, sess, "gate review aborted by caller")
		default:
			return e.reviewResponse(r, sess, e.store.GetPendingGateReview(sess.SessionID), "Retry count reset.")
		}
	}

	raw, source := in.Verdict, enforcement.SourceGateVerdict
	if raw == "" {
		raw, source = in.Response, enforcement.SourceUserResponse
	}
	verdict := enforcement.ParseVerdict(raw, source)
	if verdict == nil {
		r.diag.Warn("gate", "no gate verdict found in request", accumulator.WithCode("GATE_VERDICT_MISSING"))
		if mode == gate.ModeBlocking && review.RetryLimitExceeded() {
			return e.escalationResponse(sess, review)
		}
		return e.reviewResponse(r, sess, review, "No verdict found.")
	}

	out, err := r.authority.RecordOutcome(ctx, sess.SessionID, verdict, mode)
	if err != nil {
		return errorResponse(err)
	}
	r.logger.Infow("gate verdict recorded", "chainId", sess.ChainID, "verdict", verdict.Verdict, "status", out.Status)

	switch out.NextAction {
	case enforcement.NextContinue:
		if out.Bypassed {
			r.diag.Warn("gate", fmt.Sprintf("gate failed in %s mode; continuing", mode), accumulator.WithCode("GATE_BYPASSED"))
		}
		return e.advance(ctx, r, sess, in.Step, review.PreviousResponse)
	case enforcement.NextAwaitUserChoice:
		return e.escalationResponse(sess, e.store.GetPendingGateReview(sess.SessionID))
	default:
		return e.reviewResponse(r, sess, e.store.GetPendingGateReview(sess.SessionID), "")
	}
}

// reviewResponse re-presents a pending review with an optional lead line
func (e *Engine) reviewResponse(r *request, sess *chain.Session, review *chain.PendingGateReview, lead string) Response {
	if review == nil {
		return sessionResponse(StatusStep, sess, lead)
	}
	resp := sessionResponse(StatusGateReview, sess, joinContent(lead, reviewPrompt(review)))
	resp.GateIDs = review.GateIDs
	resp.Blocking = len(blockingAmong(sess.Blueprint, review.GateIDs)) > 0 && e.sessionMode(r, sess) == gate.ModeBlocking
	return resp
}

func (e *Engine) escalationResponse(sess *chain.Session, review *chain.PendingGateReview) Response {
	if review == nil {
		review = sess.PendingGateReview
	}
	resp := sessionResponse(StatusAwaitingChoice, sess, escalationPrompt(review))
	resp.GateIDs = review.GateIDs
	resp.Suggestions = []string{string(gate.ActionRetry), string(gate.ActionSkip), string(gate.ActionAbort)}
	return resp
}
