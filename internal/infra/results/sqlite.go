package results

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/YoshitsuguKoike/gatechain/internal/application/port/output"
)

// SQLiteStore keeps step results in a step_results table
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

var _ output.StepResultStore = (*SQLiteStore)(nil)

// OpenSQLite opens (creating if needed) the database at path and migrates it.
// ":memory:" gives a private in-memory database.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// a single connection keeps :memory: databases shared and serializes writers
	db.SetMaxOpenConns(1)

	if err := NewMigrator(db).Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db, now: time.Now}, nil
}

// Close releases the database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// StoreResult upserts the content of one step
func (s *SQLiteStore) StoreResult(ctx context.Context, chainID string, step int, content string, metadata map[string]interface{}) error {
	var meta sql.NullString
	if len(metadata) > 0 {
		b, err := json.Marshal(metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata: %w", err)
		}
		meta = sql.NullString{String: string(b), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO step_results (chain_id, step, content, metadata, stored_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(chain_id, step) DO UPDATE SET
			content = excluded.content,
			metadata = excluded.metadata,
			stored_at = excluded.stored_at`,
		chainID, step, content, meta, s.now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("store result %s step %d: %w", chainID, step, err)
	}
	return nil
}

// GetResults returns the chain's results ordered by step
func (s *SQLiteStore) GetResults(ctx context.Context, chainID string) ([]output.StepResult, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT step, content, metadata, stored_at FROM step_results WHERE chain_id = ? ORDER BY step", chainID)
	if err != nil {
		return nil, fmt.Errorf("query results %s: %w", chainID, err)
	}
	defer rows.Close()

	var results []output.StepResult
	for rows.Next() {
		var (
			r        = output.StepResult{ChainID: chainID}
			meta     sql.NullString
			storedAt string
		)
		if err := rows.Scan(&r.Step, &r.Content, &meta, &storedAt); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		if meta.Valid {
			if err := json.Unmarshal([]byte(meta.String), &r.Metadata); err != nil {
				return nil, fmt.Errorf("decode metadata %s step %d: %w", chainID, r.Step, err)
			}
		}
		if t, err := time.Parse(time.RFC3339Nano, storedAt); err == nil {
			r.StoredAt = t
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// ClearResults deletes every row of the chain
func (s *SQLiteStore) ClearResults(ctx context.Context, chainID string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM step_results WHERE chain_id = ?", chainID); err != nil {
		return fmt.Errorf("clear results %s: %w", chainID, err)
	}
	return nil
}

// BuildVariables derives template variables from the chain's results
func (s *SQLiteStore) BuildVariables(ctx context.Context, chainID string) (map[string]interface{}, error) {
	results, err := s.GetResults(ctx, chainID)
	if err != nil {
		return nil, err
	}
	return BuildVariables(results), nil
}
