package session

import (
	"context"
	"fmt"

	"github.com/YoshitsuguKoike/gatechain/internal/domain/chain"
)

// GetChainContext builds the variable set used to render the current step.
// Later sources override earlier ones: identifiers, stored step results,
// original arguments, current-step arguments, chain metadata.
func (s *Store) GetChainContext(ctx context.Context, sessionID string) (map[string]interface{}, error) {
	sess, ok := s.GetSession(sessionID)
	if !ok {
		return nil, chain.ErrSessionNotFound.WithDetails(map[string]interface{}{"sessionId": sessionID})
	}

	out := map[string]interface{}{
		"chain_id":     sess.ChainID,
		"session_id":   sess.SessionID,
		"current_step": sess.State.CurrentStep,
		"total_steps":  sess.State.TotalSteps,
	}

	if s.results != nil {
		vars, err := s.results.BuildVariables(ctx, sess.ChainID)
		if err != nil {
			s.logger.Warnw("failed to build step variables", "chainId", sess.ChainID, "error", err)
		}
		for k, v := range vars {
			out[k] = v
		}
	}

	for k, v := range s.originalArgs(ctx, sess) {
		out[k] = v
	}

	if step, ok := sess.Blueprint.Step(sess.State.CurrentStep); ok {
		args := make(map[string]interface{}, len(step.ArgMap)+1)
		for k, v := range step.ArgMap {
			args[k] = v
		}
		if step.Args != "" {
			if _, exists := args["input"]; !exists {
				args["input"] = step.Args
			}
		}
		out[fmt.Sprintf("step_%d_args", sess.State.CurrentStep)] = args
		if in, ok := args["input"]; ok {
			out["input"] = in
		}
	}

	meta := map[string]interface{}{"chainId": sess.ChainID}
	if bp := sess.Blueprint; bp != nil {
		meta["name"] = bp.Name
		meta["description"] = bp.Description
		meta["category"] = bp.Category
		meta["gates"] = append([]string(nil), bp.Gates...)
		meta["strategy"] = bp.Strategy
	}
	out["chain_metadata"] = meta
	return out, nil
}

// originalArgs prefers the argument-history replay and falls back to the
// session snapshot when the tracker fails or has nothing.
func (s *Store) originalArgs(ctx context.Context, sess *chain.Session) map[string]interface{} {
	if s.history != nil {
		rc, err := s.history.BuildReviewContext(ctx, sess.SessionID, sess.State.CurrentStep)
		if err != nil {
			s.logger.Warnw("argument history unavailable; using session snapshot", "sessionId", sess.SessionID, "error", err)
		} else if rc != nil && len(rc.OriginalArgs) > 0 {
			return rc.OriginalArgs
		}
	}
	return sess.OriginalArgs
}
