package history

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/YoshitsuguKoike/gatechain/internal/application/port/output"
	"github.com/YoshitsuguKoike/gatechain/internal/infra/fs"
	"github.com/YoshitsuguKoike/gatechain/internal/logging"
)

// Journal is an append-only NDJSON log of step executions. One line per
// tracked execution; a later line for the same (session, step) wins.
type Journal struct {
	fs     afero.Fs
	path   string
	logger logging.Logger
	now    func() time.Time

	mu sync.Mutex
}

var _ output.ArgumentHistory = (*Journal)(nil)

// NewJournal creates a journal writing to path
func NewJournal(fsys afero.Fs, path string, logger logging.Logger) *Journal {
	return &Journal{fs: fsys, path: path, logger: logging.OrGlobal(logger), now: time.Now}
}

// TrackExecution appends one record
func (j *Journal) TrackExecution(_ context.Context, rec output.ExecutionRecord) error {
	if rec.SessionID == "" {
		return errors.New("track execution: session id is required")
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = j.now().UTC()
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	return fs.AppendNDJSONLine(j.fs, j.path, rec)
}

// Records returns every record of a session in journal order
func (j *Journal) Records(_ context.Context, sessionID string) ([]output.ExecutionRecord, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	all, err := j.readAll()
	if err != nil {
		return nil, err
	}
	var out []output.ExecutionRecord
	for _, r := range all {
		if r.SessionID == sessionID {
			out = append(out, r)
		}
	}
	return out, nil
}

// BuildReviewContext replays a session up to currentStep. Original arguments
// are those of the earliest tracked step; previous results cover the steps
// before currentStep. Returns nil when nothing was tracked.
func (j *Journal) BuildReviewContext(ctx context.Context, sessionID string, currentStep int) (*output.ReviewContext, error) {
	records, err := j.Records(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}

	latest := make(map[int]output.ExecutionRecord)
	for _, r := range records {
		latest[r.Step] = r
	}
	steps := make([]int, 0, len(latest))
	for s := range latest {
		steps = append(steps, s)
	}
	sort.Ints(steps)

	rc := &output.ReviewContext{
		SessionID:       sessionID,
		OriginalArgs:    map[string]interface{}{},
		PreviousResults: map[int]string{},
		CurrentStep:     currentStep,
	}
	for k, v := range latest[steps[0]].Args {
		rc.OriginalArgs[k] = v
	}
	for _, s := range steps {
		if currentStep > 0 && s >= currentStep {
			break
		}
		if resp := latest[s].Response; resp != "" {
			rc.PreviousResults[s] = resp
		}
	}
	return rc, nil
}

// ClearSession drops a session's records by rewriting the journal atomically
func (j *Journal) ClearSession(_ context.Context, sessionID string) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	all, err := j.readAll()
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	removed := 0
	for _, r := range all {
		if r.SessionID == sessionID {
			removed++
			continue
		}
		b, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("marshal history record: %w", err)
		}
		buf.Write(b)
		buf.WriteByte('\n')
	}
	if removed == 0 {
		return nil
	}
	if err := fs.WriteFileAtomic(j.fs, j.path, buf.Bytes()); err != nil {
		return err
	}
	j.logger.Debugw("cleared argument history", "sessionId", sessionID, "records", removed)
	return nil
}

// readAll parses the journal. Corrupt lines are skipped with a warning.
func (j *Journal) readAll() ([]output.ExecutionRecord, error) {
	f, err := j.fs.Open(j.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open history %s: %w", j.path, err)
	}
	defer f.Close()

	var out []output.ExecutionRecord
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		b := bytes.TrimSpace(sc.Bytes())
		if len(b) == 0 {
			continue
		}
		var r output.ExecutionRecord
		if err := json.Unmarshal(b, &r); err != nil {
			j.logger.Warnw("skipping corrupt history line", "path", j.path, "line", line, "error", err)
			continue
		}
		out = append(out, r)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read history %s: %w", j.path, err)
	}
	return out, nil
}
