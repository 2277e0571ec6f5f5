package verify

import (
	"time"

	"github.com/spf13/afero"

	"github.com/YoshitsuguKoike/gatechain/internal/domain/chain"
	"github.com/YoshitsuguKoike/gatechain/internal/infra/fs"
)

// WaitState is the file an outside process reads to hold the caller while a
// loop-mode verification is pending. Timeout is in milliseconds.
type WaitState struct {
	SessionID string          `json:"sessionId"`
	Config    WaitStateConfig `json:"config"`
	State     WaitStateStatus `json:"state"`
}

type WaitStateConfig struct {
	Command       string `json:"command"`
	Timeout       int64  `json:"timeout"`
	MaxIterations int    `json:"maxIterations"`
	Checkpoint    bool   `json:"checkpoint"`
	Rollback      bool   `json:"rollback"`
	WorkingDir    string `json:"workingDir,omitempty"`
}

type WaitStateStatus struct {
	Iteration     int         `json:"iteration"`
	LastResult    *HookResult `json:"lastResult"`
	CheckpointRef string      `json:"checkpointRef,omitempty"`
	StartedAt     time.Time   `json:"startedAt"`
}

// HookResult is the run summary kept in the wait-state file
type HookResult struct {
	Passed   bool   `json:"passed"`
	ExitCode int    `json:"exitCode"`
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	TimedOut bool   `json:"timedOut"`
}

func hookResultFrom(r chain.VerifyResult) *HookResult {
	return &HookResult{
		Passed:   r.Passed,
		ExitCode: r.ExitCode,
		Stdout:   r.Stdout,
		Stderr:   r.Stderr,
		TimedOut: r.TimedOut,
	}
}

// VerifyConfig converts the file's config back to the domain form
func (c WaitStateConfig) VerifyConfig() chain.VerifyConfig {
	return chain.VerifyConfig{
		Command:       c.Command,
		Timeout:       time.Duration(c.Timeout) * time.Millisecond,
		Loop:          true,
		MaxIterations: c.MaxIterations,
		Checkpoint:    c.Checkpoint,
		Rollback:      c.Rollback,
		WorkingDir:    c.WorkingDir,
	}
}

// NewWaitState builds the file contents for a pending verification
func NewWaitState(sessionID string, st *chain.ShellVerifyState) WaitState {
	cfg := st.Config
	ws := WaitState{
		SessionID: sessionID,
		Config: WaitStateConfig{
			Command:       cfg.Command,
			Timeout:       cfg.EffectiveTimeout().Milliseconds(),
			MaxIterations: st.MaxAttempts,
			Checkpoint:    cfg.Checkpoint,
			Rollback:      cfg.Rollback,
			WorkingDir:    cfg.WorkingDir,
		},
		State: WaitStateStatus{
			Iteration:     st.AttemptCount,
			CheckpointRef: st.CheckpointRef,
			StartedAt:     st.StartedAt,
		},
	}
	if last := st.LastResult(); last != nil {
		ws.State.LastResult = hookResultFrom(*last)
	}
	return ws
}

// WaitStateFile reads and writes the wait-state file atomically
type WaitStateFile struct {
	fs   afero.Fs
	path string
}

// NewWaitStateFile returns a handle for path on fsys
func NewWaitStateFile(fsys afero.Fs, path string) *WaitStateFile {
	return &WaitStateFile{fs: fsys, path: path}
}

// Path returns the file location
func (w *WaitStateFile) Path() string { return w.path }

// Write replaces the file
func (w *WaitStateFile) Write(ws WaitState) error {
	return fs.WriteJSONAtomic(w.fs, w.path, ws)
}

// Read loads the file. found is false when it does not exist.
func (w *WaitStateFile) Read() (ws WaitState, found bool, err error) {
	found, err = fs.ReadJSON(w.fs, w.path, &ws)
	return ws, found, err
}

// Clear removes the file; a missing file is not an error
func (w *WaitStateFile) Clear() error {
	return fs.RemoveIfExists(w.fs, w.path)
}
