package validation

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// PostgresExecutionStore implements ExecutionStore backed by PostgreSQL.
// The full result document is stored as JSONB alongside the columns the
// listing queries need.
type PostgresExecutionStore struct {
	db *sql.DB
}

// NewPostgresExecutionStore creates a new PostgreSQL-backed execution store.
func NewPostgresExecutionStore(db *sql.DB) *PostgresExecutionStore {
	return &PostgresExecutionStore{db: db}
}

type storedResult struct {
	Result  *ExecutionResult `json:"result"`
	Trigger Trigger          `json:"trigger"`
}

// Save records a completed or aborted run.
func (s *PostgresExecutionStore) Save(ctx context.Context, result *ExecutionResult, trigger Trigger) error {
	doc, err := json.Marshal(storedResult{Result: result, Trigger: trigger})
	if err != nil {
		return fmt.Errorf("failed to marshal result document: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO executions (execution_id, tenant_id, check_id, rule_version, status, score, result, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, result.ExecutionID, result.TenantID, result.CheckID, result.RuleVersion,
		result.Status, result.Score, doc, time.Now())
	if err != nil {
		return fmt.Errorf("failed to insert execution: %w", err)
	}
	return nil
}

// Get returns the full result document for an execution id.
func (s *PostgresExecutionStore) Get(ctx context.Context, executionID string) (*ExecutionResult, error) {
	var doc []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT result FROM executions WHERE execution_id = $1
	`, executionID).Scan(&doc)

	if err == sql.ErrNoRows {
		return nil, &ErrExecutionNotFound{ExecutionID: executionID}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get execution: %w", err)
	}

	var stored storedResult
	if err := json.Unmarshal(doc, &stored); err != nil {
		return nil, fmt.Errorf("failed to decode result document: %w", err)
	}
	return stored.Result, nil
}

// List returns records matching the query, most recent first.
func (s *PostgresExecutionStore) List(ctx context.Context, q ExecutionQuery) ([]*ExecutionRecord, error) {
	query := `
		SELECT execution_id, tenant_id, check_id, rule_version, status, score, result, recorded_at
		FROM executions
		WHERE ($1 = '' OR tenant_id = $1)
		  AND ($2 = '' OR check_id = $2)
		  AND ($3 = '' OR status = $3)
		ORDER BY recorded_at DESC
	`
	args := []any{q.TenantID, q.CheckID, q.Status}
	if q.Limit > 0 {
		query += ` LIMIT $4`
		args = append(args, q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list executions: %w", err)
	}
	defer rows.Close()

	var out []*ExecutionRecord
	for rows.Next() {
		var rec ExecutionRecord
		var doc []byte
		if err := rows.Scan(&rec.ExecutionID, &rec.TenantID, &rec.CheckID,
			&rec.RuleVersion, &rec.Status, &rec.Score, &doc, &rec.RecordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}
		var stored storedResult
		if err := json.Unmarshal(doc, &stored); err != nil {
			return nil, fmt.Errorf("failed to decode result document: %w", err)
		}
		rec.Trigger = stored.Trigger
		out = append(out, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating executions: %w", err)
	}
	return out, nil
}
