package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ShayCichocki/taskweave/pkg/models"
)

// SQLitePersister stores results and workflow states in an SQLite file.
type SQLitePersister struct {
	conn *sql.DB
	path string
	mu   sync.RWMutex
}

var _ Persister = (*SQLitePersister)(nil)

// ProjectDBPath returns the default result database under a project root.
func ProjectDBPath(projectRoot string) string {
	return filepath.Join(projectRoot, ".weave", "results.db")
}

// Open opens (creating if needed) the database at path and applies migrations.
// WAL mode is enabled for concurrent reads.
func Open(path string) (*SQLitePersister, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	p := &SQLitePersister{conn: conn, path: path}
	if err := p.Migrate(); err != nil {
		conn.Close()
		return nil, err
	}
	return p, nil
}

// Close closes the database connection.
func (p *SQLitePersister) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conn.Close()
}

// Path returns the database file path.
func (p *SQLitePersister) Path() string {
	return p.path
}

// Migrate applies all pending schema migrations.
func (p *SQLitePersister) Migrate() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	_, err := p.conn.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}

	var current int
	if err := p.conn.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&current); err != nil {
		return fmt.Errorf("get schema version: %w", err)
	}

	migrations := []struct {
		version int
		sql     string
	}{
		{1, migrationV1Results},
		{2, migrationV2WorkflowStates},
	}
	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		tx, err := p.conn.Begin()
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}
		if _, err := tx.Exec(m.sql); err != nil {
			tx.Rollback()
			return fmt.Errorf("apply migration v%d: %w", m.version, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", m.version); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration v%d: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration v%d: %w", m.version, err)
		}
	}
	return nil
}

const migrationV1Results = `
CREATE TABLE IF NOT EXISTS subtask_results (
	workflow_id TEXT NOT NULL,
	subtask_id TEXT NOT NULL,
	execution_order INTEGER NOT NULL,
	batch_id TEXT NOT NULL,
	batch_index INTEGER NOT NULL,
	agent_id TEXT,
	success INTEGER NOT NULL,
	checksum TEXT NOT NULL,
	stored_at DATETIME NOT NULL,
	payload TEXT NOT NULL,
	PRIMARY KEY (workflow_id, subtask_id)
);

CREATE INDEX IF NOT EXISTS idx_results_order ON subtask_results(workflow_id, execution_order);
`

const migrationV2WorkflowStates = `
CREATE TABLE IF NOT EXISTS workflow_states (
	workflow_id TEXT PRIMARY KEY,
	status TEXT NOT NULL,
	started_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL,
	payload TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_workflow_states_updated ON workflow_states(updated_at);
`

// SaveResult upserts one result. The full record is kept as JSON so the
// checksum can be re-verified on read.
func (p *SQLitePersister) SaveResult(r *models.StoredSubtaskResult) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	_, err = p.conn.Exec(`
		INSERT INTO subtask_results
			(workflow_id, subtask_id, execution_order, batch_id, batch_index, agent_id, success, checksum, stored_at, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(workflow_id, subtask_id) DO UPDATE SET
			execution_order = excluded.execution_order,
			batch_id = excluded.batch_id,
			batch_index = excluded.batch_index,
			agent_id = excluded.agent_id,
			success = excluded.success,
			checksum = excluded.checksum,
			stored_at = excluded.stored_at,
			payload = excluded.payload
	`, r.WorkflowID, r.SubtaskID, r.ExecutionOrder, r.BatchID, r.BatchIndex, r.AgentID,
		boolToInt(r.Success), r.Checksum, formatTime(r.StorageTimestamp), string(payload))
	if err != nil {
		return fmt.Errorf("save result %s/%s: %w", r.WorkflowID, r.SubtaskID, err)
	}
	return nil
}

// SaveWorkflowState upserts the execution state of a workflow.
func (p *SQLitePersister) SaveWorkflowState(s *models.ExecutionState) error {
	payload, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode workflow state: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	_, err = p.conn.Exec(`
		INSERT INTO workflow_states (workflow_id, status, started_at, updated_at, payload)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(workflow_id) DO UPDATE SET
			status = excluded.status,
			updated_at = excluded.updated_at,
			payload = excluded.payload
	`, s.WorkflowID, string(s.Status), formatTime(s.StartedAt), formatTime(s.UpdatedAt), string(payload))
	if err != nil {
		return fmt.Errorf("save workflow state %s: %w", s.WorkflowID, err)
	}
	return nil
}

// LoadWorkflow returns a workflow's stored results in execution order.
// Records are returned as stored; use VerifyRecords to check them.
func (p *SQLitePersister) LoadWorkflow(workflowID string) ([]*models.StoredSubtaskResult, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	rows, err := p.conn.Query(`
		SELECT payload FROM subtask_results
		WHERE workflow_id = ?
		ORDER BY execution_order
	`, workflowID)
	if err != nil {
		return nil, fmt.Errorf("load workflow %s: %w", workflowID, err)
	}
	defer rows.Close()

	var out []*models.StoredSubtaskResult
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		rec := &models.StoredSubtaskResult{}
		if err := json.Unmarshal([]byte(payload), rec); err != nil {
			return nil, fmt.Errorf("decode result: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate results: %w", err)
	}
	return out, nil
}

// LoadWorkflowState returns the last saved execution state of a workflow.
func (p *SQLitePersister) LoadWorkflowState(workflowID string) (*models.ExecutionState, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var payload string
	err := p.conn.QueryRow(`SELECT payload FROM workflow_states WHERE workflow_id = ?`, workflowID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("workflow state %s: %w", workflowID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load workflow state %s: %w", workflowID, err)
	}
	s := &models.ExecutionState{}
	if err := json.Unmarshal([]byte(payload), s); err != nil {
		return nil, fmt.Errorf("decode workflow state: %w", err)
	}
	return s, nil
}

// WorkflowSummary is one row of ListWorkflows.
type WorkflowSummary struct {
	WorkflowID string                `json:"workflowId"`
	Status     models.WorkflowStatus `json:"status"`
	UpdatedAt  time.Time             `json:"updatedAt"`
	Results    int                   `json:"results"`
}

// ListWorkflows returns every workflow with a saved state, most recent first.
func (p *SQLitePersister) ListWorkflows() ([]WorkflowSummary, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	rows, err := p.conn.Query(`
		SELECT w.workflow_id, w.status, w.updated_at,
			(SELECT COUNT(*) FROM subtask_results r WHERE r.workflow_id = w.workflow_id)
		FROM workflow_states w
		ORDER BY w.updated_at DESC, w.workflow_id
	`)
	if err != nil {
		return nil, fmt.Errorf("list workflows: %w", err)
	}
	defer rows.Close()

	var out []WorkflowSummary
	for rows.Next() {
		var (
			ws      WorkflowSummary
			status  string
			updated string
		)
		if err := rows.Scan(&ws.WorkflowID, &status, &updated, &ws.Results); err != nil {
			return nil, fmt.Errorf("scan workflow: %w", err)
		}
		ws.Status = models.WorkflowStatus(status)
		if t, err := parseTime(updated); err == nil {
			ws.UpdatedAt = t
		}
		out = append(out, ws)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// formatTime formats a time.Time for SQLite storage.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTime parses a time string from SQLite.
func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}
