package catalog

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/YoshitsuguKoike/gatechain/internal/application/port/output"
	"github.com/YoshitsuguKoike/gatechain/internal/logging"
)

const sampleCatalog = `prompts:
  - id: analyze
    name: Analyze Data
    description: Analyze the input
    category: analysis
    template: "Analyze {{.topic}} {{.missing}}"
  - id: summarize
    name: Summarize
    gates: [clarity]
`

func TestCatalogFindByIDAndName(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/home/prompts.yaml", []byte(sampleCatalog), 0o644))

	c := New(fs, "/home/prompts.yaml", logging.NewNop())
	require.NoError(t, c.Reload())

	p, ok := c.FindByID("ANALYZE")
	require.True(t, ok)
	assert.Equal(t, "analyze", p.ID)

	p, ok = c.FindByID("analyze data")
	require.True(t, ok)
	assert.Equal(t, "analyze", p.ID)

	_, ok = c.FindByID("nope")
	assert.False(t, ok)

	list := c.List()
	require.Len(t, list, 2)
	assert.Equal(t, "analyze", list[0].ID)
	assert.Equal(t, []string{"clarity"}, list[1].Gates)
}

func TestCatalogMissingFileIsEmpty(t *testing.T) {
	c := New(afero.NewMemMapFs(), "/nowhere/prompts.yaml", logging.NewNop())
	require.NoError(t, c.Reload())
	assert.Empty(t, c.List())
}

func TestCatalogMalformedKeepsPrevious(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/p.yaml", []byte(sampleCatalog), 0o644))
	c := New(fs, "/p.yaml", logging.NewNop())
	require.NoError(t, c.Reload())

	require.NoError(t, afero.WriteFile(fs, "/p.yaml", []byte("prompts: [: bad"), 0o644))
	assert.Error(t, c.Reload())
	assert.Len(t, c.List(), 2)

	require.NoError(t, afero.WriteFile(fs, "/p.yaml", []byte("prompts:\n  - name: no id\n"), 0o644))
	assert.Error(t, c.Reload())
}

func TestRendererTemplate(t *testing.T) {
	p := output.PromptInfo{ID: "analyze", Template: "Analyze {{.topic}} after {{.step1_result}}{{.missing}}"}
	out, err := Renderer{}.Render(context.Background(), p,
		map[string]interface{}{"topic": "AI"},
		map[string]interface{}{"step1_result": "draft", "topic": "ignored"})
	require.NoError(t, err)
	assert.Equal(t, "Analyze AI after draft", out)
}

func TestRendererFallbackAndBadTemplate(t *testing.T) {
	out, err := Renderer{}.Render(context.Background(),
		output.PromptInfo{ID: "s", Name: "Summarize", Description: "Make it short"},
		map[string]interface{}{"b": 2, "a": 1}, nil)
	require.NoError(t, err)
	assert.Contains(t, out, "# Summarize")
	assert.Contains(t, out, "Make it short")
	assert.Less(t, strings.Index(out, "- a: 1"), strings.Index(out, "- b: 2"))

	_, err = Renderer{}.Render(context.Background(), output.PromptInfo{ID: "x", Template: "{{.oops"}, nil, nil)
	assert.Error(t, err)
}

func TestWatcherReloadsOnChange(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "prompts.yaml")
	require.NoError(t, os.WriteFile(path, []byte("prompts: []\n"), 0o644))

	c := New(afero.NewOsFs(), path, logging.NewNop())
	require.NoError(t, c.Reload())

	reloaded := make(chan error, 4)
	w, err := NewWatcher(c, 20*time.Millisecond, logging.NewNop(), func(err error) { reloaded <- err })
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))

	require.NoError(t, os.WriteFile(path, []byte(sampleCatalog), 0o644))

	select {
	case err := <-reloaded:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		w.Stop()
		t.Fatal("watcher did not reload")
	}
	w.Stop()

	_, ok := c.FindByID("summarize")
	assert.True(t, ok)
}

func TestWatcherRunStopsWithContext(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir := t.TempDir()
	c := New(afero.NewOsFs(), filepath.Join(dir, "prompts.yaml"), logging.NewNop())
	w, err := NewWatcher(c, 0, logging.NewNop(), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}
}
