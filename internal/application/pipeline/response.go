package pipeline

import (
	"errors"

	"github.com/YoshitsuguKoike/gatechain/internal/application/accumulator"
	"github.com/YoshitsuguKoike/gatechain/internal/application/parser"
	"github.com/YoshitsuguKoike/gatechain/internal/domain/chain"
)

// Status tells the caller what the response content is
type Status string

const (
	StatusStep            Status = "step"             // rendered step awaiting a response
	StatusGateReview      Status = "gate_review"      // awaiting a gate verdict
	StatusAwaitingChoice  Status = "awaiting_choice"  // retries exhausted; retry, skip or abort
	StatusVerifyRetry     Status = "verify_retry"     // verification failed, attempts remain
	StatusVerifyAwaiting  Status = "verify_awaiting"  // verification needs a fresh response
	StatusVerifyEscalated Status = "verify_escalated" // verification attempts exhausted
	StatusComplete        Status = "complete"
	StatusAborted         Status = "aborted"
	StatusInfo            Status = "info"
	StatusError           Status = "error"
)

// ErrorInfo describes a failed request
type ErrorInfo struct {
	Kind           string                 `json:"kind"`
	Message        string                 `json:"message"`
	ValidModifiers []string               `json:"validModifiers,omitempty"`
	Details        map[string]interface{} `json:"details,omitempty"`
}

// Response is returned for every request
type Response struct {
	RequestID   string                        `json:"requestId"`
	Status      Status                        `json:"status"`
	Content     string                        `json:"content,omitempty"`
	ChainID     string                        `json:"chainId,omitempty"`
	SessionID   string                        `json:"sessionId,omitempty"`
	CurrentStep int                           `json:"currentStep,omitempty"`
	TotalSteps  int                           `json:"totalSteps,omitempty"`
	GateIDs     []string                      `json:"gateIds,omitempty"`
	Blocking    bool                          `json:"blocking,omitempty"`
	Suggestions []string                      `json:"suggestions,omitempty"`
	Diagnostics []accumulator.DiagnosticEntry `json:"diagnostics,omitempty"`
	Error       *ErrorInfo                    `json:"error,omitempty"`
}

func sessionResponse(status Status, sess *chain.Session, content string) Response {
	return Response{
		Status:      status,
		Content:     content,
		ChainID:     sess.ChainID,
		SessionID:   sess.SessionID,
		CurrentStep: sess.State.CurrentStep,
		TotalSteps:  sess.State.TotalSteps,
	}
}

// errorResponse maps err onto a caller-facing response
func errorResponse(err error) Response {
	if ve, ok := parser.AsValidationError(err); ok {
		return Response{
			Status:      StatusError,
			Content:     ve.Error(),
			Suggestions: ve.Suggestions,
			Error: &ErrorInfo{
				Kind:           string(ve.Kind),
				Message:        ve.Message,
				ValidModifiers: ve.ValidModifiers,
			},
		}
	}
	var ce chain.Error
	if errors.As(err, &ce) {
		return Response{
			Status:  StatusError,
			Content: ce.Message,
			Error:   &ErrorInfo{Kind: ce.Code, Message: ce.Message, Details: ce.Details},
		}
	}
	return Response{
		Status:  StatusError,
		Content: err.Error(),
		Error:   &ErrorInfo{Kind: "internal", Message: err.Error()},
	}
}
