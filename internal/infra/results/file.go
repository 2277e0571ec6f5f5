package results

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/YoshitsuguKoike/gatechain/internal/application/port/output"
	"github.com/YoshitsuguKoike/gatechain/internal/infra/fs"
)

// FileStore keeps one JSON document per chain under dir
type FileStore struct {
	fs  afero.Fs
	dir string
	now func() time.Time
	mu  sync.Mutex
}

var _ output.StepResultStore = (*FileStore)(nil)

// NewFileStore creates a file-backed result store
func NewFileStore(fsys afero.Fs, dir string) *FileStore {
	return &FileStore{fs: fsys, dir: dir, now: time.Now}
}

func (s *FileStore) path(chainID string) string {
	return filepath.Join(s.dir, escapeChainID(chainID)+".json")
}

func (s *FileStore) load(chainID string) ([]output.StepResult, error) {
	var results []output.StepResult
	if _, err := fs.ReadJSON(s.fs, s.path(chainID), &results); err != nil {
		return nil, fmt.Errorf("load results for %s: %w", chainID, err)
	}
	return results, nil
}

// StoreResult saves or replaces the content of one step
func (s *FileStore) StoreResult(_ context.Context, chainID string, step int, content string, metadata map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	results, err := s.load(chainID)
	if err != nil {
		return err
	}
	entry := output.StepResult{ChainID: chainID, Step: step, Content: content, Metadata: metadata, StoredAt: s.now()}
	replaced := false
	for i := range results {
		if results[i].Step == step {
			results[i] = entry
			replaced = true
		}
	}
	if !replaced {
		results = append(results, entry)
	}
	sortByStep(results)
	return fs.WriteJSONAtomic(s.fs, s.path(chainID), results)
}

// GetResults returns the chain's results ordered by step
func (s *FileStore) GetResults(_ context.Context, chainID string) ([]output.StepResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(chainID)
}

// ClearResults removes the chain's document
func (s *FileStore) ClearResults(_ context.Context, chainID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fs.RemoveIfExists(s.fs, s.path(chainID))
}

// BuildVariables derives template variables from the chain's results
func (s *FileStore) BuildVariables(ctx context.Context, chainID string) (map[string]interface{}, error) {
	results, err := s.GetResults(ctx, chainID)
	if err != nil {
		return nil, err
	}
	return BuildVariables(results), nil
}
