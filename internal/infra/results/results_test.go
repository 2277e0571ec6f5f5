package results

import (
	"context"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YoshitsuguKoike/gatechain/internal/application/port/output"
)

func backends(t *testing.T) map[string]output.StepResultStore {
	t.Helper()
	sqliteStore, err := OpenSQLite(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { sqliteStore.Close() })

	return map[string]output.StepResultStore{
		"file":   NewFileStore(afero.NewMemMapFs(), "/home/var/results"),
		"sqlite": sqliteStore,
		"s3":     NewS3StoreWithClient(NewMockS3Client(), "bucket", "gatechain/test"),
	}
}

func TestStepResultStoreContract(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			empty, err := store.GetResults(ctx, "chain-x#1")
			require.NoError(t, err)
			assert.Empty(t, empty)

			require.NoError(t, store.StoreResult(ctx, "chain-x#1", 2, "second", map[string]interface{}{"isPlaceholder": true}))
			require.NoError(t, store.StoreResult(ctx, "chain-x#1", 1, "first draft", nil))
			require.NoError(t, store.StoreResult(ctx, "chain-x#1", 1, "first", nil))
			require.NoError(t, store.StoreResult(ctx, "chain-x#2", 1, "other run", nil))

			results, err := store.GetResults(ctx, "chain-x#1")
			require.NoError(t, err)
			require.Len(t, results, 2)
			assert.Equal(t, 1, results[0].Step)
			assert.Equal(t, "first", results[0].Content)
			assert.Equal(t, "second", results[1].Content)
			assert.Equal(t, true, results[1].Metadata["isPlaceholder"])
			assert.False(t, results[1].StoredAt.IsZero())

			vars, err := store.BuildVariables(ctx, "chain-x#1")
			require.NoError(t, err)
			assert.Equal(t, "first", vars["step1_result"])
			assert.Equal(t, "second", vars["step2_result"])
			assert.Equal(t, "second", vars["previous_step_result"])
			assert.Equal(t, 2, vars["previous_step"])
			assert.Equal(t, 2, vars["step_count"])

			require.NoError(t, store.ClearResults(ctx, "chain-x#1"))
			results, err = store.GetResults(ctx, "chain-x#1")
			require.NoError(t, err)
			assert.Empty(t, results)

			other, err := store.GetResults(ctx, "chain-x#2")
			require.NoError(t, err)
			assert.Len(t, other, 1, "clearing one run leaves the others")

			require.NoError(t, store.ClearResults(ctx, "never-stored"))
		})
	}
}

func TestS3StoreKeyLayout(t *testing.T) {
	client := NewMockS3Client()
	store := NewS3StoreWithClient(client, "bucket", "/team/")
	require.NoError(t, store.StoreResult(context.Background(), "chain-x#3", 7, "x", nil))
	assert.Equal(t, []string{"team/results/chain-x%233/step-007.json"}, client.Keys())
	assert.Equal(t, 1, client.GetObjectCount())
}

func TestMigratorIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store, err := OpenSQLite(ctx, ":memory:")
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, NewMigrator(store.db).Migrate(ctx))

	var count int
	require.NoError(t, store.db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count))
	assert.Equal(t, 1, count)
}

func TestBuildVariablesEmpty(t *testing.T) {
	assert.Equal(t, map[string]interface{}{"step_count": 0}, BuildVariables(nil))
}
