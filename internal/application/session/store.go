package session

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/YoshitsuguKoike/gatechain/internal/application/port/output"
	"github.com/YoshitsuguKoike/gatechain/internal/domain/chain"
	"github.com/YoshitsuguKoike/gatechain/internal/infra/fs"
	"github.com/YoshitsuguKoike/gatechain/internal/logging"
)

const (
	DefaultMaxRunHistory        = 10
	DefaultSessionTimeout       = 24 * time.Hour
	DefaultReviewSessionTimeout = time.Hour
	DefaultCleanupInterval      = 5 * time.Minute
)

// Options configures a Store. Zero values take the defaults above.
type Options struct {
	Fs                   afero.Fs
	Path                 string
	Results              output.StepResultStore
	History              output.ArgumentHistory
	Metrics              output.Metrics
	Logger               logging.Logger
	MaxRunHistory        int
	SessionTimeout       time.Duration
	ReviewSessionTimeout time.Duration
	CleanupInterval      time.Duration
	Now                  func() time.Time
}

// Store owns chain sessions and run history. Every mutation ends with a full
// atomic write of the run registry; write failures are logged and the
// in-memory state stays authoritative.
type Store struct {
	mu       sync.Mutex
	writeMu  sync.Mutex // held from snapshot through rename so writes land in order
	sessions map[string]*chain.Session
	idx      indices

	fs        afero.Fs
	path      string
	results   output.StepResultStore
	history   output.ArgumentHistory
	metrics   output.Metrics
	logger    logging.Logger
	now       func() time.Time
	maxRuns   int
	timeout   time.Duration
	reviewTTL time.Duration

	scheduler *Scheduler
}

// NewStore creates an empty store. Call Load to restore persisted state.
func NewStore(opts Options) *Store {
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	if opts.MaxRunHistory <= 0 {
		opts.MaxRunHistory = DefaultMaxRunHistory
	}
	if opts.SessionTimeout <= 0 {
		opts.SessionTimeout = DefaultSessionTimeout
	}
	if opts.ReviewSessionTimeout <= 0 {
		opts.ReviewSessionTimeout = DefaultReviewSessionTimeout
	}
	if opts.CleanupInterval <= 0 {
		opts.CleanupInterval = DefaultCleanupInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	s := &Store{
		sessions:  make(map[string]*chain.Session),
		idx:       newIndices(),
		fs:        opts.Fs,
		path:      opts.Path,
		results:   opts.Results,
		history:   opts.History,
		metrics:   output.OrNop(opts.Metrics),
		logger:    logging.OrGlobal(opts.Logger),
		now:       opts.Now,
		maxRuns:   opts.MaxRunHistory,
		timeout:   opts.SessionTimeout,
		reviewTTL: opts.ReviewSessionTimeout,
	}
	s.scheduler = NewScheduler(opts.CleanupInterval, func(now time.Time) {
		s.CleanupStaleSessions(context.Background(), now)
	})
	return s
}

// Load restores the run registry from disk. A missing file is a fresh start.
// Loaded sessions are dormant until resumed.
func (s *Store) Load() error {
	if s.path == "" {
		return nil
	}
	var file registryFile
	found, err := fs.ReadJSON(s.fs, s.path, &file)
	if err != nil {
		return err
	}
	if !found {
		return nil
	}

	sessions := make(map[string]*chain.Session, len(file.Runs))
	for id, ps := range file.Runs {
		sess := decodeSession(ps)
		if sess.SessionID == "" {
			sess.SessionID = id
		}
		sess.HealCurrentStep()
		sessions[sess.SessionID] = sess
	}
	idx, healed := rebuildIndices(sessions, file)

	s.mu.Lock()
	s.sessions = sessions
	s.idx = idx
	s.mu.Unlock()

	s.logger.Debugw("run registry loaded", "path", s.path, "sessions", len(sessions), "healed", healed)
	if healed > 0 {
		s.logger.Infow("run registry indices healed", "path", s.path, "fixes", healed)
		s.persist()
	}
	return nil
}

// snapshot builds the registry file. Caller holds s.mu.
func (s *Store) snapshot() registryFile {
	file := registryFile{
		Version:        registryVersion,
		Runs:           make(map[string]persistedSession, len(s.sessions)),
		RunMapping:     make(map[string][]string, len(s.idx.chainSessions)),
		BaseRunMapping: make(map[string][]string, len(s.idx.baseRuns)),
		RunToBase:      make(map[string]string, len(s.idx.runToBase)),
	}
	for id, sess := range s.sessions {
		file.Runs[id] = encodeSession(sess)
	}
	for k, v := range s.idx.chainSessions {
		file.RunMapping[k] = append([]string(nil), v...)
	}
	for k, v := range s.idx.baseRuns {
		file.BaseRunMapping[k] = append([]string(nil), v...)
	}
	for k, v := range s.idx.runToBase {
		file.RunToBase[k] = v
	}
	return file
}

// persist writes the full state atomically. Failures are logged only.
func (s *Store) persist() {
	if s.path == "" {
		return
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	file := s.snapshot()
	s.mu.Unlock()

	if err := fs.WriteJSONAtomic(s.fs, s.path, file); err != nil {
		s.logger.Errorw("failed to persist run registry", "path", s.path, "error", err)
	}
}

// CreateSession registers a new session and its run, pruning run history
// beyond the configured limit.
func (s *Store) CreateSession(ctx context.Context, sessionID, chainID string, totalSteps int, originalArgs map[string]interface{}, blueprint *chain.Blueprint) (*chain.Session, error) {
	if sessionID == "" || chainID == "" {
		return nil, chain.NewError("CHAIN_INVALID_SESSION", "session and chain IDs are required",
			map[string]interface{}{"sessionId": sessionID, "chainId": chainID})
	}

	s.mu.Lock()
	if old, ok := s.sessions[sessionID]; ok {
		s.unlinkSession(old)
	}
	sess := chain.NewSession(sessionID, chainID, totalSteps, originalArgs, blueprint, s.now())
	s.sessions[sessionID] = sess
	s.idx.chainSessions[chainID] = appendUnique(s.idx.chainSessions[chainID], sessionID)

	base := chain.BaseChainID(chainID)
	s.idx.baseRuns[base] = appendUnique(s.idx.baseRuns[base], chainID)
	s.idx.runToBase[chainID] = base
	prunedRuns, prunedSessions := s.pruneRuns(base)
	out := sess.Clone()
	s.mu.Unlock()

	s.metrics.SessionCreated(chainID)
	if len(prunedRuns) > 0 {
		s.metrics.RunsPruned(len(prunedRuns))
		s.logger.Infow("pruned run history", "baseChainId", base, "runs", prunedRuns)
		s.releaseCollaborators(ctx, prunedRuns, prunedSessions)
	}
	s.persist()
	return out, nil
}

// pruneRuns drops the oldest runs of base beyond maxRuns together with their
// sessions. Caller holds s.mu.
func (s *Store) pruneRuns(base string) (runs []string, sessions []string) {
	list := s.idx.baseRuns[base]
	for len(list) > s.maxRuns {
		oldest := list[0]
		list = list[1:]
		runs = append(runs, oldest)
		for _, id := range s.idx.chainSessions[oldest] {
			delete(s.sessions, id)
			sessions = append(sessions, id)
		}
		delete(s.idx.chainSessions, oldest)
		delete(s.idx.runToBase, oldest)
	}
	s.idx.baseRuns[base] = list
	return runs, sessions
}

// releaseCollaborators clears stored step results and argument history
func (s *Store) releaseCollaborators(ctx context.Context, chainIDs, sessionIDs []string) {
	if s.results != nil {
		for _, c := range chainIDs {
			if err := s.results.ClearResults(ctx, c); err != nil {
				s.logger.Warnw("failed to clear step results", "chainId", c, "error", err)
			}
		}
	}
	if s.history != nil {
		for _, id := range sessionIDs {
			if err := s.history.ClearSession(ctx, id); err != nil {
				s.logger.Warnw("failed to clear argument history", "sessionId", id, "error", err)
			}
		}
	}
}

// unlinkSession removes sess from the chain index. Caller holds s.mu.
func (s *Store) unlinkSession(sess *chain.Session) {
	list := removeString(s.idx.chainSessions[sess.ChainID], sess.SessionID)
	if len(list) == 0 {
		delete(s.idx.chainSessions, sess.ChainID)
	} else {
		s.idx.chainSessions[sess.ChainID] = list
	}
	delete(s.sessions, sess.SessionID)
}

// GetSession returns a copy of the session. It heals currentStep, touches
// lastActivity and promotes a dormant session to canonical.
func (s *Store) GetSession(sessionID string) (*chain.Session, bool) {
	s.mu.Lock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		s.mu.Unlock()
		return nil, false
	}
	dirty := s.resume(sess)
	out := sess.Clone()
	s.mu.Unlock()

	if dirty {
		s.persist()
	}
	return out, true
}

// resume heals, touches and promotes sess. Caller holds s.mu.
func (s *Store) resume(sess *chain.Session) bool {
	dirty := sess.HealCurrentStep()
	sess.LastActivity = s.now()
	if sess.IsDormant() {
		sess.Lifecycle = chain.LifecycleCanonical
		dirty = true
	}
	return dirty
}

// HasSession reports whether sessionID is known
func (s *Store) HasSession(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sessions[sessionID]
	return ok
}

// NextRunChainID returns base#(highest recorded run + 1)
func (s *Store) NextRunChainID(base string) string {
	base = chain.BaseChainID(base)
	s.mu.Lock()
	defer s.mu.Unlock()
	highest := 0
	for _, run := range s.idx.baseRuns[base] {
		if _, n, ok := chain.ParseRunID(run); ok && n > highest {
			highest = n
		}
	}
	return chain.FormatRunID(base, highest+1)
}

// mutate runs fn against the live session under the lock and persists afterwards
func (s *Store) mutate(sessionID string, fn func(sess *chain.Session) error) error {
	s.mu.Lock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		s.mu.Unlock()
		return chain.ErrSessionNotFound.WithDetails(map[string]interface{}{"sessionId": sessionID})
	}
	if err := fn(sess); err != nil {
		s.mu.Unlock()
		return err
	}
	now := s.now()
	sess.LastActivity = now
	sess.State.LastUpdated = now
	s.mu.Unlock()

	s.persist()
	return nil
}

func checkStep(sess *chain.Session, step int) error {
	if step < 1 || (sess.State.TotalSteps > 0 && step > sess.State.TotalSteps) {
		return chain.ErrInvalidStep.WithDetails(map[string]interface{}{
			"sessionId":  sess.SessionID,
			"step":       step,
			"totalSteps": sess.State.TotalSteps,
		})
	}
	return nil
}

// SetStepState writes step metadata, keeping timestamps that were already set
func (s *Store) SetStepState(sessionID string, step int, state chain.StepState, isPlaceholder bool) error {
	return s.mutate(sessionID, func(sess *chain.Session) error {
		if err := checkStep(sess, step); err != nil {
			return err
		}
		sess.State.StepStates[step] = sess.State.StepStates[step].Apply(state, isPlaceholder, s.now())
		return nil
	})
}

// TransitionStepState is SetStepState that rejects moving a step backwards
func (s *Store) TransitionStepState(sessionID string, step int, state chain.StepState, isPlaceholder bool) error {
	return s.mutate(sessionID, func(sess *chain.Session) error {
		if err := checkStep(sess, step); err != nil {
			return err
		}
		current, exists := sess.State.StepStates[step]
		if exists && !current.State.CanTransitionTo(state) {
			return chain.ErrInvalidTransition.WithDetails(map[string]interface{}{
				"sessionId": sessionID,
				"step":      step,
				"from":      current.State,
				"to":        state,
			})
		}
		sess.State.StepStates[step] = current.Apply(state, isPlaceholder, s.now())
		return nil
	})
}

// GetStepState returns the metadata recorded for step
func (s *Store) GetStepState(sessionID string, step int) (chain.StepMetadata, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return chain.StepMetadata{}, false
	}
	md, ok := sess.State.StepStates[step]
	return md, ok
}

// UpdateSessionState stores step content and marks the step RENDERED
// (placeholder) or RESPONSE_CAPTURED. It never advances currentStep.
func (s *Store) UpdateSessionState(ctx context.Context, sessionID string, step int, content string, isPlaceholder bool, metadata map[string]interface{}) error {
	s.mu.Lock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		s.mu.Unlock()
		return chain.ErrSessionNotFound.WithDetails(map[string]interface{}{"sessionId": sessionID})
	}
	chainID := sess.ChainID
	err := checkStep(sess, step)
	s.mu.Unlock()
	if err != nil {
		return err
	}

	if s.results != nil {
		md := copyMeta(metadata)
		md["isPlaceholder"] = isPlaceholder
		if err := s.results.StoreResult(ctx, chainID, step, content, md); err != nil {
			s.logger.Warnw("failed to store step result", "chainId", chainID, "step", step, "error", err)
		}
	}

	state := chain.StepResponseCaptured
	if isPlaceholder {
		state = chain.StepRendered
	}
	return s.mutate(sessionID, func(sess *chain.Session) error {
		if err := checkStep(sess, step); err != nil {
			return err
		}
		current := sess.State.StepStates[step]
		if current.State != "" && !current.State.CanTransitionTo(state) {
			s.logger.Debugw("step already past requested state", "sessionId", sessionID, "step", step, "state", current.State)
			return nil
		}
		sess.State.StepStates[step] = current.Apply(state, isPlaceholder, s.now())
		return nil
	})
}

// UpdateStepResult stores a real caller response for step
func (s *Store) UpdateStepResult(ctx context.Context, sessionID string, step int, content string, metadata map[string]interface{}) error {
	return s.UpdateSessionState(ctx, sessionID, step, content, false, metadata)
}

// CompleteStep marks step COMPLETED without advancing currentStep
func (s *Store) CompleteStep(sessionID string, step int, preservePlaceholder bool) error {
	return s.mutate(sessionID, func(sess *chain.Session) error {
		if err := checkStep(sess, step); err != nil {
			return err
		}
		current := sess.State.StepStates[step]
		placeholder := preservePlaceholder && current.IsPlaceholder
		sess.State.StepStates[step] = current.Apply(chain.StepCompleted, placeholder, s.now())
		return nil
	})
}

// AdvanceStep moves currentStep past step. It is the only place currentStep
// moves forward and is a no-op when currentStep already exceeds step.
func (s *Store) AdvanceStep(sessionID string, step int) error {
	return s.mutate(sessionID, func(sess *chain.Session) error {
		if sess.State.CurrentStep > step {
			return nil
		}
		sess.State.CurrentStep = step + 1
		for _, n := range sess.ExecutionOrder {
			if n == step {
				return nil
			}
		}
		sess.ExecutionOrder = append(sess.ExecutionOrder, step)
		return nil
	})
}

// ListActiveSessions returns non-dormant sessions, most recent first
func (s *Store) ListActiveSessions(limit int) []*chain.Session {
	s.mu.Lock()
	out := make([]*chain.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		if !sess.IsDormant() {
			out = append(out, sess.Clone())
		}
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastActivity.Equal(out[j].LastActivity) {
			return out[i].LastActivity.After(out[j].LastActivity)
		}
		return out[i].SessionID < out[j].SessionID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// ListSessions returns every session including dormant ones, ordered by session ID
func (s *Store) ListSessions() []*chain.Session {
	s.mu.Lock()
	out := make([]*chain.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess.Clone())
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].SessionID < out[j].SessionID })
	return out
}

// ClearSession removes one session, its argument history and, when it was the
// last session of its run, the run's stored step results.
func (s *Store) ClearSession(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		s.mu.Unlock()
		return nil
	}
	s.unlinkSession(sess)
	var chains []string
	if len(s.idx.chainSessions[sess.ChainID]) == 0 {
		chains = []string{sess.ChainID}
	}
	s.mu.Unlock()

	s.releaseCollaborators(ctx, chains, []string{sessionID})
	s.metrics.SessionsCleared("explicit", 1)
	s.persist()
	return nil
}

// ClearSessionsForChain removes every session of a run. A base chain ID clears
// all of its runs. Run history is kept so run numbers are never reused.
func (s *Store) ClearSessionsForChain(ctx context.Context, chainID string) error {
	s.mu.Lock()
	runs := []string{chainID}
	if _, _, isRun := chain.ParseRunID(chainID); !isRun {
		if list, ok := s.idx.baseRuns[chainID]; ok {
			runs = append(append([]string(nil), list...), chainID)
		}
	}
	var sessions []string
	for _, run := range runs {
		for _, id := range s.idx.chainSessions[run] {
			delete(s.sessions, id)
			sessions = append(sessions, id)
		}
		delete(s.idx.chainSessions, run)
	}
	s.mu.Unlock()

	s.releaseCollaborators(ctx, runs, sessions)
	s.metrics.SessionsCleared("chain", len(sessions))
	s.persist()
	return nil
}

// CleanupStaleSessions clears sessions idle longer than their timeout. Review
// chains use the shorter review timeout. Returns the number cleared.
func (s *Store) CleanupStaleSessions(ctx context.Context, now time.Time) int {
	s.mu.Lock()
	var stale []*chain.Session
	for _, sess := range s.sessions {
		ttl := s.timeout
		if chain.IsReviewChain(sess.ChainID) {
			ttl = s.reviewTTL
		}
		if now.Sub(sess.LastActivity) > ttl {
			stale = append(stale, sess)
		}
	}
	var chains, ids []string
	for _, sess := range stale {
		s.unlinkSession(sess)
		ids = append(ids, sess.SessionID)
		if len(s.idx.chainSessions[sess.ChainID]) == 0 {
			chains = appendUnique(chains, sess.ChainID)
		}
	}
	s.mu.Unlock()

	if len(ids) == 0 {
		return 0
	}
	s.logger.Infow("cleared stale sessions", "count", len(ids))
	s.releaseCollaborators(ctx, chains, ids)
	s.metrics.SessionsCleared("stale", len(ids))
	s.persist()
	return len(ids)
}

// StartCleanup starts the periodic staleness sweep
func (s *Store) StartCleanup() {
	s.scheduler.Start()
}

// Cleanup stops the sweep, flushes state to disk and clears memory
func (s *Store) Cleanup() {
	s.scheduler.Stop()
	s.persist()

	s.mu.Lock()
	s.sessions = make(map[string]*chain.Session)
	s.idx = newIndices()
	s.mu.Unlock()
}

func appendUnique(list []string, v string) []string {
	for _, x := range list {
		if x == v {
			return list
		}
	}
	return append(list, v)
}

func removeString(list []string, v string) []string {
	out := list[:0:0]
	for _, x := range list {
		if x != v {
			out = append(out, x)
		}
	}
	return out
}

func copyMeta(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	return out
}
