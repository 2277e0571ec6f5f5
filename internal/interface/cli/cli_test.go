package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/YoshitsuguKoike/gatechain/internal/app"
	"github.com/YoshitsuguKoike/gatechain/internal/application/pipeline"
	"github.com/YoshitsuguKoike/gatechain/internal/di"
	infraConfig "github.com/YoshitsuguKoike/gatechain/internal/infra/config"
	"github.com/YoshitsuguKoike/gatechain/internal/logging"
	"github.com/YoshitsuguKoike/gatechain/internal/testutil"
)

// run executes the root command with args against home and returns stdout
func run(t *testing.T, home, stdin string, args ...string) (string, error) {
	t.Helper()
	return runArgs(t, stdin, append([]string{"--home", home}, args...)...)
}

func runArgs(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRoot()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func decodeResponse(t *testing.T, out string) pipeline.Response {
	t.Helper()
	var resp pipeline.Response
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	return resp
}

func initHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	_, err := run(t, home, "", "init")
	require.NoError(t, err)
	return home
}

func TestInit_WritesDefaultsOnce(t *testing.T) {
	home := t.TempDir()

	out, err := run(t, home, "", "init")
	require.NoError(t, err)
	assert.Contains(t, out, "settings.yaml")
	assert.Contains(t, out, "prompts.yaml")

	out, err = run(t, home, "", "init")
	require.NoError(t, err)
	assert.NotContains(t, out, "settings.yaml")

	cfg, err := infraConfig.LoadSettings(afero.NewOsFs(), home)
	require.NoError(t, err)
	assert.Equal(t, "yaml", cfg.ConfigSource())
}

func TestInit_DefaultHomeInWorkingDirectory(t *testing.T) {
	ws := testutil.NewTestWorkspace(t)
	settings := filepath.Join(ws, ".gatechain", "settings.yaml")
	testutil.AssertFileNotExists(t, settings)

	_, err := runArgs(t, "", "init")
	require.NoError(t, err)
	testutil.AssertFileExists(t, settings)
	testutil.AssertFileExists(t, filepath.Join(ws, ".gatechain", "prompts.yaml"))
}

func TestExec_CustomCatalog(t *testing.T) {
	home := t.TempDir()
	testutil.WritePrompts(t, home, `prompts:
  - id: greet
    name: Greeting
    template: "Say hello to {{.name}}"
`)

	out, err := run(t, home, "", "exec", "--command", `>>greet name="Ada"`)
	require.NoError(t, err)
	resp := decodeResponse(t, out)
	assert.Equal(t, pipeline.StatusStep, resp.Status, resp.Content)
	assert.Equal(t, "Say hello to Ada", resp.Content)
}

func TestExec_ChainThroughPromptGate(t *testing.T) {
	home := initHome(t)

	out, err := run(t, home, "", "exec", "--command", `>>analyze input="main.go" --> >>summarize`)
	require.NoError(t, err)
	resp := decodeResponse(t, out)
	require.Equal(t, pipeline.StatusStep, resp.Status, resp.Content)
	assert.Contains(t, resp.Content, "main.go")
	assert.Equal(t, "chain-analyze-summarize#1", resp.ChainID)

	out, err = run(t, home, "", "exec", "--chain-id", "chain-analyze-summarize", "--response", "two findings")
	require.NoError(t, err)
	resp = decodeResponse(t, out)
	require.Equal(t, pipeline.StatusStep, resp.Status, resp.Content)
	assert.Contains(t, resp.Content, "two findings")
	assert.Equal(t, []string{"conciseness"}, resp.GateIDs)

	out, err = run(t, home, "", "exec", "--chain-id", "chain-analyze-summarize", "--response", "short")
	require.NoError(t, err)
	resp = decodeResponse(t, out)
	require.Equal(t, pipeline.StatusGateReview, resp.Status, resp.Content)

	stdin := `{"chain_id":"chain-analyze-summarize","gate_verdict":"GATE_REVIEW: PASS - concise"}`
	out, err = run(t, home, stdin, "exec", "--request", "-")
	require.NoError(t, err)
	resp = decodeResponse(t, out)
	assert.Equal(t, pipeline.StatusComplete, resp.Status, resp.Content)

	out, err = run(t, home, "", "session", "history", "chain-analyze-summarize")
	require.NoError(t, err)
	var h chainHistory
	require.NoError(t, json.Unmarshal([]byte(out), &h))
	assert.Equal(t, []string{"chain-analyze-summarize#1"}, h.Runs)
}

func TestExec_ErrorResponseFailsCommand(t *testing.T) {
	home := initHome(t)

	out, err := run(t, home, "", "exec", "--command", ">>analyse_this")
	assert.ErrorIs(t, err, errRequestFailed)
	resp := decodeResponse(t, out)
	assert.Equal(t, pipeline.StatusError, resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "unknown_prompt", resp.Error.Kind)
}

func TestParse_PrintsPlan(t *testing.T) {
	home := initHome(t)

	out, err := run(t, home, "", "parse", "--format", "yaml", `>>analyze input="x" --> >>fix :: "tests pass"`)
	require.NoError(t, err)
	assert.Contains(t, out, "strategy: symbolic")
	assert.Contains(t, out, "promptId: fix")

	_, err = run(t, home, "", "parse", "--format", "xml", ">>fix")
	assert.Error(t, err)
}

func TestSession_ListShowClear(t *testing.T) {
	home := initHome(t)

	out, err := run(t, home, "", "session", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No sessions.")

	_, err = run(t, home, "", "exec", "--command", `>>fix input="flaky test"`)
	require.NoError(t, err)

	out, err = run(t, home, "", "session", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "chain-fix#1")
	assert.Contains(t, out, "dormant")

	out, err = run(t, home, "", "session", "show", "chain-fix")
	require.NoError(t, err)
	assert.Contains(t, out, `"chainId": "chain-fix#1"`)

	out, err = run(t, home, "", "session", "clear", "chain-fix")
	require.NoError(t, err)
	assert.Contains(t, out, "Cleared chain-fix (1 sessions)")

	_, err = run(t, home, "", "session", "show", "chain-fix")
	assert.Error(t, err)

	_, err = run(t, home, "", "session", "clear")
	assert.Error(t, err)
}

func TestVerifyHook_NoPendingVerificationAllowsStop(t *testing.T) {
	home := initHome(t)

	out, err := run(t, home, "", "verify-hook")
	require.NoError(t, err)
	assert.JSONEq(t, `{"decision": null}`, out)

	out, err = run(t, home, `{"stop_hook_active": true}`, "verify-hook")
	require.NoError(t, err)
	assert.JSONEq(t, `{"decision": null}`, out)
}

func TestVersion(t *testing.T) {
	out, err := run(t, t.TempDir(), "", "version")
	require.NoError(t, err)
	assert.Contains(t, out, "gatechain version")
}

func TestServe_AnswersEachLine(t *testing.T) {
	defer goleak.VerifyNone(t)

	home := initHome(t)
	cfg, err := infraConfig.LoadSettings(afero.NewOsFs(), home)
	require.NoError(t, err)
	container, err := di.NewContainer(context.Background(), di.Config{App: cfg, Logger: logging.NewNop()})
	require.NoError(t, err)
	defer container.Close()

	in := strings.Join([]string{
		`{"command": ">>fix input=\"panic in parser\""}`,
		``,
		`{not json`,
		`{"command": ">>help"}`,
		`{"chain_id": "chain-fix", "user_response": "patched"}`,
	}, "\n")
	var out bytes.Buffer
	require.NoError(t, serve(context.Background(), container, strings.NewReader(in), &out, ""))

	var statuses []pipeline.Status
	dec := json.NewDecoder(&out)
	for dec.More() {
		var resp pipeline.Response
		require.NoError(t, dec.Decode(&resp))
		statuses = append(statuses, resp.Status)
	}
	assert.Equal(t, []pipeline.Status{
		pipeline.StatusStep,
		pipeline.StatusError,
		pipeline.StatusInfo,
		pipeline.StatusComplete,
	}, statuses)

	h, found, err := app.ReadHealth(container.Fs(), container.Paths().Health)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 4, h.Requests)
	assert.Equal(t, string(pipeline.StatusComplete), h.LastStatus)
	assert.True(t, h.OK)
}

func TestDoctor(t *testing.T) {
	out, err := run(t, t.TempDir()+"/missing", "", "doctor")
	require.NoError(t, err)
	assert.Contains(t, out, "WARN:")
	assert.Contains(t, out, "settings.yaml not found")

	home := initHome(t)
	out, err = run(t, home, "", "doctor", "--json")
	require.NoError(t, err)
	var report DoctorReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, "yaml", report.ConfigSource)
	assert.Equal(t, "file", report.ResultsBackend)
	assert.Equal(t, 3, report.Prompts)
	assert.Empty(t, report.Errors)
	assert.Nil(t, report.Health)
}

func TestWriteOutput_Formats(t *testing.T) {
	v := map[string]interface{}{"chainId": "chain-a#1"}

	var b bytes.Buffer
	require.NoError(t, writeOutput(&b, FormatJSON, v))
	assert.JSONEq(t, `{"chainId": "chain-a#1"}`, b.String())

	b.Reset()
	require.NoError(t, writeOutput(&b, FormatYAML, v))
	assert.Equal(t, "chainId: chain-a#1\n", b.String())

	assert.Error(t, writeOutput(&b, "toml", v))
}
