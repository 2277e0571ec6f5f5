package di

import (
	"context"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YoshitsuguKoike/gatechain/internal/app/config"
	"github.com/YoshitsuguKoike/gatechain/internal/application/pipeline"
	"github.com/YoshitsuguKoike/gatechain/internal/domain/chain"
	"github.com/YoshitsuguKoike/gatechain/internal/logging"
)

const testCatalog = `prompts:
  - id: review
    name: Code Review
    template: "Review {{.target}}"
`

type passRunner struct{}

func (passRunner) Run(context.Context, chain.VerifyConfig) chain.VerifyResult {
	return chain.VerifyResult{Passed: true}
}

func testValues(home string) config.Values {
	return config.Values{
		Home:                 home,
		LogLevel:             "info",
		LogFormat:            "console",
		SessionTimeout:       time.Hour,
		ReviewSessionTimeout: time.Hour,
		CleanupInterval:      time.Minute,
		MaxRunHistory:        3,
		ActiveSessionLimit:   10,
		GateMode:             "blocking",
		GateMaxAttempts:      2,
		VerifyTimeout:        time.Minute,
		VerifyMaxAttempts:    2,
		ResultsBackend:       "file",
		Catalog:              home + "/prompts.yaml",
	}
}

func newTestContainer(t *testing.T, fs afero.Fs, v config.Values) *Container {
	t.Helper()
	c, err := NewContainer(context.Background(), Config{
		App:    config.NewAppConfig(v, "default", ""),
		Fs:     fs,
		Runner: passRunner{},
		Logger: logging.NewNop(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestContainer_WiresEngineEndToEnd(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/gc/prompts.yaml", []byte(testCatalog), 0o644))

	c := newTestContainer(t, fs, testValues("/gc"))
	require.NotNil(t, c.Engine())
	assert.Equal(t, "/gc/var/runs.json", c.Paths().RunRegistry)
	assert.Len(t, c.Catalog().List(), 1)

	resp := c.Engine().Handle(context.Background(), pipeline.Request{Command: `>>review target="main.go" :: verify:"true"`})
	require.Equal(t, pipeline.StatusStep, resp.Status, resp.Content)
	assert.Equal(t, "Review main.go", resp.Content)

	resp = c.Engine().Handle(context.Background(), pipeline.Request{ChainID: resp.ChainID, UserResponse: "looks fine"})
	require.Equal(t, pipeline.StatusComplete, resp.Status, resp.Content)

	exists, err := afero.Exists(fs, "/gc/var/runs.json")
	require.NoError(t, err)
	assert.True(t, exists)
	exists, err = afero.Exists(fs, "/gc/var/history.ndjson")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestContainer_MissingCatalogStartsEmpty(t *testing.T) {
	c := newTestContainer(t, afero.NewMemMapFs(), testValues("/gc"))
	assert.Empty(t, c.Catalog().List())

	resp := c.Engine().Handle(context.Background(), pipeline.Request{Command: ">>help"})
	assert.Equal(t, pipeline.StatusInfo, resp.Status)
}

func TestContainer_InitializationErrors(t *testing.T) {
	t.Run("Malformed catalog", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		require.NoError(t, afero.WriteFile(fs, "/gc/prompts.yaml", []byte("prompts: [::"), 0o644))
		_, err := NewContainer(context.Background(), Config{
			App: config.NewAppConfig(testValues("/gc"), "default", ""), Fs: fs, Logger: logging.NewNop(),
		})
		assert.Error(t, err)
	})

	t.Run("Unknown backend", func(t *testing.T) {
		v := testValues("/gc")
		v.ResultsBackend = "redis"
		_, err := NewContainer(context.Background(), Config{
			App: config.NewAppConfig(v, "default", ""), Fs: afero.NewMemMapFs(), Logger: logging.NewNop(),
		})
		assert.ErrorContains(t, err, "unknown results backend")
	})

	t.Run("No config", func(t *testing.T) {
		_, err := NewContainer(context.Background(), Config{})
		assert.Error(t, err)
	})
}

func TestContainer_SQLiteBackend(t *testing.T) {
	home := t.TempDir()
	v := testValues(home)
	v.ResultsBackend = "sqlite"
	c := newTestContainer(t, afero.NewOsFs(), v)

	ctx := context.Background()
	require.NoError(t, c.Results().StoreResult(ctx, "chain-a#1", 1, "hello", nil))
	got, err := c.Results().GetResults(ctx, "chain-a#1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "hello", got[0].Content)
}
