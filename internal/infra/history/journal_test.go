package history

import (
	"context"
	"os"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YoshitsuguKoike/gatechain/internal/application/port/output"
	"github.com/YoshitsuguKoike/gatechain/internal/logging"
)

func newJournal(t *testing.T) (*Journal, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	return NewJournal(fs, "/home/history/arguments.ndjson", logging.NewNop()), fs
}

func TestJournalReviewContextReplaysUpToStep(t *testing.T) {
	j, _ := newJournal(t)
	ctx := context.Background()

	require.NoError(t, j.TrackExecution(ctx, output.ExecutionRecord{SessionID: "s1", Step: 1, Args: map[string]interface{}{"topic": "AI"}, Response: "r1"}))
	require.NoError(t, j.TrackExecution(ctx, output.ExecutionRecord{SessionID: "s2", Step: 1, Args: map[string]interface{}{"topic": "other"}}))
	require.NoError(t, j.TrackExecution(ctx, output.ExecutionRecord{SessionID: "s1", Step: 2, Response: "r2"}))
	require.NoError(t, j.TrackExecution(ctx, output.ExecutionRecord{SessionID: "s1", Step: 2, Response: "r2-revised"}))
	require.NoError(t, j.TrackExecution(ctx, output.ExecutionRecord{SessionID: "s1", Step: 3, Response: "r3"}))

	rc, err := j.BuildReviewContext(ctx, "s1", 3)
	require.NoError(t, err)
	require.NotNil(t, rc)
	assert.Equal(t, map[string]interface{}{"topic": "AI"}, rc.OriginalArgs)
	assert.Equal(t, map[int]string{1: "r1", 2: "r2-revised"}, rc.PreviousResults)

	rc, err = j.BuildReviewContext(ctx, "unknown", 1)
	require.NoError(t, err)
	assert.Nil(t, rc)
}

func TestJournalClearSessionKeepsOthers(t *testing.T) {
	j, _ := newJournal(t)
	ctx := context.Background()
	require.NoError(t, j.TrackExecution(ctx, output.ExecutionRecord{SessionID: "s1", Step: 1}))
	require.NoError(t, j.TrackExecution(ctx, output.ExecutionRecord{SessionID: "s2", Step: 1}))

	require.NoError(t, j.ClearSession(ctx, "s1"))
	recs, err := j.Records(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, recs)
	recs, err = j.Records(ctx, "s2")
	require.NoError(t, err)
	assert.Len(t, recs, 1)
	assert.False(t, recs[0].Timestamp.IsZero())

	require.NoError(t, j.ClearSession(ctx, "never"))
}

func TestJournalSkipsCorruptLines(t *testing.T) {
	j, fs := newJournal(t)
	ctx := context.Background()
	require.NoError(t, j.TrackExecution(ctx, output.ExecutionRecord{SessionID: "s1", Step: 1}))

	f, err := fs.OpenFile(j.path, os.O_WRONLY|os.O_APPEND, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("{not json\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	require.NoError(t, j.TrackExecution(ctx, output.ExecutionRecord{SessionID: "s1", Step: 2}))
	recs, err := j.Records(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, recs, 2)
}

func TestJournalRequiresSessionID(t *testing.T) {
	j, _ := newJournal(t)
	assert.Error(t, j.TrackExecution(context.Background(), output.ExecutionRecord{Step: 1}))
}
