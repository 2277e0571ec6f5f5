package session

import (
	"strings"

	"github.com/YoshitsuguKoike/gatechain/internal/domain/chain"
	"github.com/YoshitsuguKoike/gatechain/internal/domain/gate"
)

// SetPendingGateReview attaches a copy of review to the session
func (s *Store) SetPendingGateReview(sessionID string, review *chain.PendingGateReview) error {
	return s.mutate(sessionID, func(sess *chain.Session) error {
		c := review.Clone()
		if c != nil && c.CreatedAt.IsZero() {
			c.CreatedAt = s.now()
		}
		if c != nil && c.MaxAttempts <= 0 {
			c.MaxAttempts = chain.DefaultGateMaxAttempts
		}
		sess.PendingGateReview = c
		return nil
	})
}

// GetPendingGateReview returns a copy of the pending review, nil when none
func (s *Store) GetPendingGateReview(sessionID string) *chain.PendingGateReview {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil
	}
	return sess.PendingGateReview.Clone()
}

// ClearPendingGateReview drops the pending review
func (s *Store) ClearPendingGateReview(sessionID string) error {
	return s.mutate(sessionID, func(sess *chain.Session) error {
		sess.PendingGateReview = nil
		return nil
	})
}

// ResetRetryCount zeroes the attempt counter after an explicit retry
func (s *Store) ResetRetryCount(sessionID string) error {
	return s.mutate(sessionID, func(sess *chain.Session) error {
		if sess.PendingGateReview == nil {
			return chain.ErrNoPendingReview.WithDetails(map[string]interface{}{"sessionId": sessionID})
		}
		sess.PendingGateReview.AttemptCount = 0
		return nil
	})
}

// RecordGateReviewOutcome appends the verdict to the review history and counts
// the attempt. PASS clears the review.
func (s *Store) RecordGateReviewOutcome(sessionID string, outcome chain.GateReviewOutcome) (chain.GateReviewStatus, error) {
	status := chain.GateReviewPending
	err := s.mutate(sessionID, func(sess *chain.Session) error {
		review := sess.PendingGateReview
		if review == nil {
			return chain.ErrNoPendingReview.WithDetails(map[string]interface{}{"sessionId": sessionID})
		}
		verdict := strings.ToUpper(strings.TrimSpace(outcome.Verdict))
		review.History = append(review.History, chain.GateReviewHistoryEntry{
			Timestamp: s.now(),
			Status:    verdict,
			Reasoning: outcome.Rationale,
			Reviewer:  outcome.Reviewer,
		})
		review.LastVerdict = verdict
		review.AttemptCount++

		if gate.Verdict(verdict) == gate.VerdictPass {
			sess.PendingGateReview = nil
			status = chain.GateReviewCleared
			return nil
		}
		if outcome.Rationale != "" {
			review.RetryHints = append(review.RetryHints, outcome.Rationale)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return status, nil
}

// IsRetryLimitExceeded reports attemptCount >= maxAttempts for the pending review
func (s *Store) IsRetryLimitExceeded(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok || sess.PendingGateReview == nil {
		return false
	}
	return sess.PendingGateReview.RetryLimitExceeded()
}

// SetPendingShellVerify attaches a copy of the verification state
func (s *Store) SetPendingShellVerify(sessionID string, state *chain.ShellVerifyState) error {
	return s.mutate(sessionID, func(sess *chain.Session) error {
		sess.PendingShellVerify = state.Clone()
		return nil
	})
}

// GetPendingShellVerify returns a copy of the verification state, nil when none
func (s *Store) GetPendingShellVerify(sessionID string) *chain.ShellVerifyState {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil
	}
	return sess.PendingShellVerify.Clone()
}

// ClearPendingShellVerify drops the verification state
func (s *Store) ClearPendingShellVerify(sessionID string) error {
	return s.mutate(sessionID, func(sess *chain.Session) error {
		sess.PendingShellVerify = nil
		return nil
	})
}
