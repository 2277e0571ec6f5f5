package pipeline

import (
	"github.com/YoshitsuguKoike/gatechain/internal/domain/chain"
	"github.com/YoshitsuguKoike/gatechain/internal/domain/gate"
)

// InputKind discriminates ExecutionInput
type InputKind string

const (
	InputStep       InputKind = "step"
	InputGateReview InputKind = "gate_review"
)

// ExecutionInput is what a continuation request means for its session.
// Exactly the field matching Kind is set.
type ExecutionInput struct {
	Kind       InputKind
	Step       *StepInput
	GateReview *GateReviewInput
}

// StepInput carries the caller's response to the current step
type StepInput struct {
	Step     int
	Response string
	Action   gate.Action
}

// GateReviewInput carries a verdict or an action for a pending gate review
type GateReviewInput struct {
	Step     int
	Verdict  string
	Action   gate.Action
	Response string
}

// classify maps a request onto the session's current position
func classify(req Request, sess *chain.Session) ExecutionInput {
	step := sess.State.CurrentStep
	if sess.PendingGateReview != nil {
		return ExecutionInput{Kind: InputGateReview, GateReview: &GateReviewInput{
			Step:     step,
			Verdict:  req.GateVerdict,
			Action:   gate.Action(req.GateAction),
			Response: req.UserResponse,
		}}
	}
	return ExecutionInput{Kind: InputStep, Step: &StepInput{
		Step:     step,
		Response: req.UserResponse,
		Action:   gate.Action(req.GateAction),
	}}
}
