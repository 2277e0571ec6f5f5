package session

import (
	"github.com/YoshitsuguKoike/gatechain/internal/domain/chain"
)

// GetRunHistory returns the run chain IDs of a base chain, oldest first
func (s *Store) GetRunHistory(baseChainID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.idx.baseRuns[chain.BaseChainID(baseChainID)]...)
}

// GetLatestSessionForBaseChain returns the most recently active canonical
// session of any run under the base.
func (s *Store) GetLatestSessionForBaseChain(baseChainID string) (*chain.Session, bool) {
	s.mu.Lock()
	sess := s.latestUnderBase(chain.BaseChainID(baseChainID), false)
	s.mu.Unlock()
	if sess == nil {
		return nil, false
	}
	return s.GetSession(sess.SessionID)
}

// GetSessionByChainIdentifier finds a session by run or base chain ID. Order:
// exact run, dormant exact run, latest under the base, dormant under the base.
// Dormant matches are only considered with includeDormant and are promoted.
func (s *Store) GetSessionByChainIdentifier(chainID string, includeDormant bool) (*chain.Session, bool) {
	base := chain.BaseChainID(chainID)

	s.mu.Lock()
	sess := s.latestForChain(chainID, false)
	if sess == nil && includeDormant {
		sess = s.latestForChain(chainID, true)
	}
	if sess == nil {
		sess = s.latestUnderBase(base, false)
	}
	if sess == nil && includeDormant {
		sess = s.latestUnderBase(base, true)
	}
	s.mu.Unlock()

	if sess == nil {
		return nil, false
	}
	return s.GetSession(sess.SessionID)
}

// latestForChain picks the most recently active session of one run, either
// among canonical or among dormant sessions. Caller holds s.mu.
func (s *Store) latestForChain(chainID string, dormant bool) *chain.Session {
	var best *chain.Session
	for _, id := range s.idx.chainSessions[chainID] {
		sess, ok := s.sessions[id]
		if !ok || sess.IsDormant() != dormant {
			continue
		}
		if best == nil || sess.LastActivity.After(best.LastActivity) {
			best = sess
		}
	}
	return best
}

// latestUnderBase walks the base's runs newest first. Caller holds s.mu.
func (s *Store) latestUnderBase(base string, dormant bool) *chain.Session {
	runs := s.idx.baseRuns[base]
	for i := len(runs) - 1; i >= 0; i-- {
		if sess := s.latestForChain(runs[i], dormant); sess != nil {
			return sess
		}
	}
	return nil
}
