package pipeline

import (
	"context"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YoshitsuguKoike/gatechain/internal/application/port/output"
	"github.com/YoshitsuguKoike/gatechain/internal/application/session"
	"github.com/YoshitsuguKoike/gatechain/internal/application/verify"
	"github.com/YoshitsuguKoike/gatechain/internal/domain/chain"
	"github.com/YoshitsuguKoike/gatechain/internal/domain/gate"
	"github.com/YoshitsuguKoike/gatechain/internal/infra/catalog"
	"github.com/YoshitsuguKoike/gatechain/internal/infra/history"
	"github.com/YoshitsuguKoike/gatechain/internal/infra/results"
	"github.com/YoshitsuguKoike/gatechain/internal/logging"
)

var testPrompts = []output.PromptInfo{
	{ID: "research", Name: "Research", Description: "Research a topic", Template: "Research {{.topic}}"},
	{ID: "summarize", Name: "Summarize", Description: "Summarize findings", Template: "Summarize {{.previous_step_result}}"},
	{ID: "fix", Name: "Fix", Description: "Fix the build"},
}

type scriptedRunner struct {
	results []chain.VerifyResult
	calls   int
}

func (r *scriptedRunner) Run(context.Context, chain.VerifyConfig) chain.VerifyResult {
	res := r.results[len(r.results)-1]
	if r.calls < len(r.results) {
		res = r.results[r.calls]
	}
	r.calls++
	return res
}

type fixture struct {
	fs     afero.Fs
	store  *session.Store
	runner *scriptedRunner
	engine *Engine
	cfg    Config
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	f := &fixture{fs: afero.NewMemMapFs(), runner: &scriptedRunner{results: []chain.VerifyResult{{ExitCode: 0, Passed: true}}}, cfg: cfg}
	f.reopen(t)
	return f
}

// reopen builds a fresh store and engine over the same filesystem
func (f *fixture) reopen(t *testing.T) {
	t.Helper()
	res := results.NewFileStore(f.fs, "/home/var/results")
	hist := history.NewJournal(f.fs, "/home/var/history.ndjson", logging.NewNop())
	f.store = session.NewStore(session.Options{
		Fs:      f.fs,
		Path:    "/home/var/runs.json",
		Results: res,
		History: hist,
		Logger:  logging.NewNop(),
	})
	require.NoError(t, f.store.Load())
	loop := verify.NewLoop(f.store, f.runner, logging.NewNop())
	f.engine = NewEngine(Deps{
		Store:    f.store,
		Catalog:  catalog.FromPrompts(testPrompts),
		Renderer: catalog.Renderer{},
		Results:  res,
		History:  hist,
		Loop:     loop,
		Logger:   logging.NewNop(),
	}, f.cfg)
}

func (f *fixture) handle(req Request) Response {
	return f.engine.Handle(context.Background(), req)
}

func hasDiagnostic(resp Response, code string) bool {
	for _, d := range resp.Diagnostics {
		if d.Code == code {
			return true
		}
	}
	return false
}

const gatedChain = `>>research topic="AI" --> >>summarize :: "conciseness, accuracy"`

func TestEngine_ChainWithGateReviewToCompletion(t *testing.T) {
	f := newFixture(t, Config{GateMaxAttempts: 2})

	resp := f.handle(Request{Command: gatedChain})
	require.Equal(t, StatusStep, resp.Status, resp.Content)
	assert.NotEmpty(t, resp.RequestID)
	assert.Equal(t, "chain-research-summarize#1", resp.ChainID)
	assert.Equal(t, 1, resp.CurrentStep)
	assert.Equal(t, 2, resp.TotalSteps)
	assert.Equal(t, "Research AI", resp.Content)
	chainID, sessionID := resp.ChainID, resp.SessionID

	resp = f.handle(Request{ChainID: chainID, UserResponse: "findings"})
	require.Equal(t, StatusStep, resp.Status, resp.Content)
	assert.Equal(t, 2, resp.CurrentStep)
	assert.Equal(t, "Summarize findings", resp.Content)
	assert.Equal(t, []string{InlineCriteriaGateID}, resp.GateIDs)

	resp = f.handle(Request{ChainID: chainID, UserResponse: "short summary"})
	require.Equal(t, StatusGateReview, resp.Status, resp.Content)
	assert.True(t, resp.Blocking)
	assert.Contains(t, resp.Content, "conciseness")
	assert.Contains(t, resp.Content, "short summary")
	assert.Contains(t, resp.Content, "Attempt 1/2")

	resp = f.handle(Request{ChainID: chainID, GateVerdict: "GATE_REVIEW: PASS - concise and accurate"})
	require.Equal(t, StatusComplete, resp.Status, resp.Content)
	assert.Contains(t, resp.Content, "short summary")
	assert.False(t, f.store.HasSession(sessionID))
	assert.Equal(t, []string{chainID}, f.store.GetRunHistory("chain-research-summarize"))
}

func TestEngine_GateFailuresEscalateThenSkip(t *testing.T) {
	f := newFixture(t, Config{GateMaxAttempts: 2})

	resp := f.handle(Request{Command: `>>summarize :: "accuracy"`})
	require.Equal(t, StatusStep, resp.Status, resp.Content)
	chainID := resp.ChainID

	resp = f.handle(Request{ChainID: chainID, UserResponse: "my real draft"})
	require.Equal(t, StatusGateReview, resp.Status, resp.Content)

	resp = f.handle(Request{ChainID: chainID, GateVerdict: "GATE_REVIEW: FAIL - cites no sources"})
	require.Equal(t, StatusGateReview, resp.Status, resp.Content)
	assert.Contains(t, resp.Content, "cites no sources")
	assert.Contains(t, resp.Content, "Attempt 2/2")
	assert.Contains(t, resp.Content, "### Response under review\nmy real draft\n")
	assert.NotContains(t, resp.Content, "Response under review\nGATE_REVIEW")

	resp = f.handle(Request{ChainID: chainID, UserResponse: "no verdict here"})
	require.Equal(t, StatusGateReview, resp.Status, resp.Content)
	assert.True(t, hasDiagnostic(resp, "GATE_VERDICT_MISSING"))

	resp = f.handle(Request{ChainID: chainID, UserResponse: "GATE_REVIEW: FAIL - still no sources"})
	require.Equal(t, StatusAwaitingChoice, resp.Status, resp.Content)
	assert.Equal(t, []string{"retry", "skip", "abort"}, resp.Suggestions)

	resp = f.handle(Request{ChainID: chainID, GateAction: "retry"})
	require.Equal(t, StatusGateReview, resp.Status, resp.Content)
	assert.Contains(t, resp.Content, "Retry count reset.")

	f.handle(Request{ChainID: chainID, GateVerdict: "GATE_REVIEW: FAIL - again"})
	resp = f.handle(Request{ChainID: chainID, GateVerdict: "GATE_REVIEW: FAIL - and again"})
	require.Equal(t, StatusAwaitingChoice, resp.Status, resp.Content)

	resp = f.handle(Request{ChainID: chainID, GateAction: "skip"})
	require.Equal(t, StatusComplete, resp.Status, resp.Content)
	assert.Contains(t, resp.Content, "my real draft")
	assert.NotContains(t, resp.Content, "GATE_REVIEW")
}

func TestEngine_GateAbortClearsSession(t *testing.T) {
	f := newFixture(t, Config{})

	resp := f.handle(Request{Command: `>>summarize :: "accuracy"`})
	sessionID := resp.SessionID
	f.handle(Request{ChainID: resp.ChainID, UserResponse: "draft"})

	resp = f.handle(Request{ChainID: resp.ChainID, GateAction: "abort"})
	require.Equal(t, StatusAborted, resp.Status, resp.Content)
	assert.False(t, f.store.HasSession(sessionID))
}

func TestEngine_AdvisoryModeBypassesFailedGate(t *testing.T) {
	f := newFixture(t, Config{})

	resp := f.handle(Request{
		Command: `>>summarize :: "accuracy"`,
		Options: map[string]interface{}{OptionGateMode: "advisory"},
	})
	require.Equal(t, StatusStep, resp.Status, resp.Content)
	chainID := resp.ChainID

	resp = f.handle(Request{ChainID: chainID, UserResponse: "draft"})
	require.Equal(t, StatusGateReview, resp.Status, resp.Content)
	assert.False(t, resp.Blocking)

	resp = f.handle(Request{ChainID: chainID, GateVerdict: "GATE_REVIEW: FAIL - vague"})
	require.Equal(t, StatusComplete, resp.Status, resp.Content)
	assert.True(t, hasDiagnostic(resp, "GATE_BYPASSED"))
	assert.Contains(t, resp.Content, "draft")
	assert.NotContains(t, resp.Content, "GATE_REVIEW")
}

func TestEngine_GatesDisabledSkipsReview(t *testing.T) {
	f := newFixture(t, Config{})

	resp := f.handle(Request{
		Command: `>>summarize :: "accuracy"`,
		Options: map[string]interface{}{OptionGatesDisabled: true},
	})
	require.Equal(t, StatusStep, resp.Status, resp.Content)

	resp = f.handle(Request{ChainID: resp.ChainID, UserResponse: "draft"})
	assert.Equal(t, StatusComplete, resp.Status, resp.Content)
}

func TestEngine_RequestGatesAreReviewed(t *testing.T) {
	f := newFixture(t, Config{})

	req := Request{
		Command: `>>research topic="Go"`,
		Gates: []GateInput{
			{Definition: gate.Definition{ID: "clarity"}},
			{Definition: gate.Definition{Name: "Code Quality", Description: "no dead code"}, Temporary: true},
		},
	}
	resp := f.handle(req)
	require.Equal(t, StatusStep, resp.Status, resp.Content)

	resp = f.handle(Request{ChainID: resp.ChainID, UserResponse: "notes"})
	require.Equal(t, StatusGateReview, resp.Status, resp.Content)
	assert.ElementsMatch(t, []string{"clarity", "code-quality"}, resp.GateIDs)
	assert.False(t, resp.Blocking)
	assert.Contains(t, resp.Content, "no dead code")
}

func TestEngine_ShellVerifyBouncesBackThenPasses(t *testing.T) {
	f := newFixture(t, Config{VerifyMaxAttempts: 3})
	f.runner.results = []chain.VerifyResult{
		{ExitCode: 1, Stderr: "2 tests failed"},
		{ExitCode: 0, Passed: true, Stdout: "ok"},
	}

	resp := f.handle(Request{Command: `>>fix :: verify:"make test"`})
	require.Equal(t, StatusStep, resp.Status, resp.Content)
	chainID, sessionID := resp.ChainID, resp.SessionID

	resp = f.handle(Request{ChainID: chainID, UserResponse: "patched the parser"})
	require.Equal(t, StatusVerifyRetry, resp.Status, resp.Content)
	assert.Contains(t, resp.Content, "2 tests failed")
	st := f.store.GetPendingShellVerify(sessionID)
	require.NotNil(t, st)
	assert.Equal(t, 1, st.AttemptCount)
	assert.Equal(t, 3, st.MaxAttempts)

	resp = f.handle(Request{ChainID: chainID})
	assert.Equal(t, StatusVerifyAwaiting, resp.Status, resp.Content)

	resp = f.handle(Request{ChainID: chainID, UserResponse: "fixed the off-by-one"})
	require.Equal(t, StatusComplete, resp.Status, resp.Content)
	assert.Equal(t, 2, f.runner.calls)
	assert.False(t, f.store.HasSession(sessionID))
}

func TestEngine_UnknownPromptSuggestsAlternatives(t *testing.T) {
	f := newFixture(t, Config{})

	resp := f.handle(Request{Command: ">>reserch"})
	require.Equal(t, StatusError, resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "unknown_prompt", resp.Error.Kind)
	assert.Contains(t, resp.Suggestions, "research")
}

func TestEngine_InvalidRequests(t *testing.T) {
	f := newFixture(t, Config{})

	tests := []struct {
		name string
		req  Request
	}{
		{"Neither command nor chain", Request{}},
		{"Unknown gate action", Request{Command: ">>research", GateAction: "later"}},
		{"Unknown gate mode", Request{Command: ">>research", Options: map[string]interface{}{OptionGateMode: "strict"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := f.handle(tt.req)
			assert.Equal(t, StatusError, resp.Status)
			require.NotNil(t, resp.Error)
			assert.Equal(t, "invalid_request", resp.Error.Kind)
			assert.True(t, hasDiagnostic(resp, "INVALID_REQUEST"))
		})
	}

	resp := f.handle(Request{ChainID: "chain-missing#1"})
	require.Equal(t, StatusError, resp.Status)
	assert.Equal(t, chain.ErrSessionNotFound.Code, resp.Error.Kind)
}

func TestEngine_SameCommandResumesUnlessForced(t *testing.T) {
	f := newFixture(t, Config{})

	first := f.handle(Request{Command: gatedChain})
	require.Equal(t, StatusStep, first.Status, first.Content)

	again := f.handle(Request{Command: gatedChain})
	require.Equal(t, StatusStep, again.Status, again.Content)
	assert.Equal(t, first.ChainID, again.ChainID)
	assert.Equal(t, first.SessionID, again.SessionID)

	restarted := f.handle(Request{ChainID: first.ChainID, ForceRestart: true})
	require.Equal(t, StatusStep, restarted.Status, restarted.Content)
	assert.Equal(t, "chain-research-summarize#2", restarted.ChainID)
	assert.NotEqual(t, first.SessionID, restarted.SessionID)
	assert.False(t, f.store.HasSession(first.SessionID))
}

func TestEngine_ResumesPersistedRunAfterRestart(t *testing.T) {
	f := newFixture(t, Config{})

	resp := f.handle(Request{Command: gatedChain})
	require.Equal(t, StatusStep, resp.Status, resp.Content)

	f.reopen(t)

	resp = f.handle(Request{ChainID: "chain-research-summarize", UserResponse: "findings"})
	require.Equal(t, StatusStep, resp.Status, resp.Content)
	assert.Equal(t, 2, resp.CurrentStep)
	assert.Equal(t, "Summarize findings", resp.Content)
}

func TestEngine_Builtins(t *testing.T) {
	f := newFixture(t, Config{})

	resp := f.handle(Request{Command: ">>listprompts"})
	require.Equal(t, StatusInfo, resp.Status, resp.Content)
	assert.Contains(t, resp.Content, "research")
	assert.Contains(t, resp.Content, "summarize")

	resp = f.handle(Request{Command: ">>help"})
	require.Equal(t, StatusInfo, resp.Status, resp.Content)
	assert.Contains(t, resp.Content, "-->")

	f.handle(Request{Command: gatedChain})
	resp = f.handle(Request{Command: ">>status"})
	require.Equal(t, StatusInfo, resp.Status, resp.Content)
	assert.Contains(t, resp.Content, "chain-research-summarize#1")
}
