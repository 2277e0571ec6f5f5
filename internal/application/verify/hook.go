package verify

import (
	"context"
	"fmt"

	"github.com/YoshitsuguKoike/gatechain/internal/domain/chain"
	"github.com/YoshitsuguKoike/gatechain/internal/logging"
)

// HookInput is what the host passes to the stop hook on stdin
type HookInput struct {
	StopHookActive bool `json:"stop_hook_active"`
}

// HookDecision is printed by the stop hook. A nil Decision lets the host stop.
type HookDecision struct {
	Decision      *string `json:"decision"`
	Reason        string  `json:"reason,omitempty"`
	SystemMessage string  `json:"systemMessage,omitempty"`
}

// Blocked reports whether the host must keep going
func (d HookDecision) Blocked() bool {
	return d.Decision != nil && *d.Decision == "block"
}

func allow(msg string) HookDecision { return HookDecision{SystemMessage: msg} }

func block(reason string) HookDecision {
	b := "block"
	return HookDecision{Decision: &b, Reason: reason}
}

// Hook is the outside-process side of loop-mode verification: it runs the
// pending command each time the host tries to stop.
type Hook struct {
	Wait   *WaitStateFile
	Runner CommandRunner
	Logger logging.Logger
}

// Run reads the wait-state file and decides whether the host may stop
func (h *Hook) Run(ctx context.Context, in HookInput) (HookDecision, error) {
	logger := logging.OrGlobal(h.Logger)
	if in.StopHookActive {
		return HookDecision{}, nil
	}

	ws, found, err := h.Wait.Read()
	if err != nil {
		logger.Warnw("unreadable wait-state file; allowing stop", "path", h.Wait.Path(), "error", err)
		return HookDecision{}, nil
	}
	if !found {
		return HookDecision{}, nil
	}

	iteration := ws.State.Iteration + 1
	maxIterations := ws.Config.MaxIterations
	if maxIterations <= 0 {
		maxIterations = chain.DefaultVerifyMaxAttempts
	}
	if iteration > maxIterations {
		if err := h.Wait.Clear(); err != nil {
			return HookDecision{}, err
		}
		return allow(fmt.Sprintf("[Verify] Max iterations (%d) reached. Stopping.", maxIterations)), nil
	}

	cfg := ws.Config.VerifyConfig()
	result := h.Runner.Run(ctx, cfg)
	ws.State.Iteration = iteration
	ws.State.LastResult = hookResultFrom(result)
	if err := h.Wait.Write(ws); err != nil {
		return HookDecision{}, err
	}

	if result.Passed {
		if err := h.Wait.Clear(); err != nil {
			return HookDecision{}, err
		}
		return allow(fmt.Sprintf("[Verify] PASSED on iteration %d!", iteration)), nil
	}

	logger.Infow("verification failed; blocking stop", "sessionId", ws.SessionID, "iteration", iteration, "exitCode", result.ExitCode)
	return block(BounceBackMessage(cfg, result, iteration, maxIterations)), nil
}
