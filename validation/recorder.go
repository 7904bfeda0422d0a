package validation

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// ExecutionRecord is the listing view of a recorded run. The full result
// document is retrieved separately by execution id.
type ExecutionRecord struct {
	ExecutionID string    `json:"execution_id"`
	TenantID    string    `json:"tenant_id"`
	CheckID     string    `json:"check_id"`
	RuleVersion string    `json:"rule_version"`
	Status      string    `json:"status"`
	Score       *float64  `json:"score,omitempty"`
	Trigger     Trigger   `json:"trigger"`
	RecordedAt  time.Time `json:"recorded_at"`
}

// ExecutionQuery filters listing calls. Zero values mean no filter.
type ExecutionQuery struct {
	TenantID string
	CheckID  string
	Status   string
	Limit    int
}

// ExecutionStore extends Recorder with retrieval of recorded runs.
type ExecutionStore interface {
	Recorder

	// Get returns the full result document for an execution id.
	Get(ctx context.Context, executionID string) (*ExecutionResult, error)

	// List returns records matching the query, most recent first.
	List(ctx context.Context, q ExecutionQuery) ([]*ExecutionRecord, error)
}

// ErrExecutionNotFound is returned when an execution id is unknown.
type ErrExecutionNotFound struct {
	ExecutionID string
}

func (e *ErrExecutionNotFound) Error() string {
	return fmt.Sprintf("execution %s not found", e.ExecutionID)
}

type recordedRun struct {
	record ExecutionRecord
	result *ExecutionResult
}

// InMemoryExecutionStore implements ExecutionStore using in-memory slices.
// Thread-safe with RWMutex; suitable for tests and single-node deployments.
type InMemoryExecutionStore struct {
	runs []recordedRun
	byID map[string]int
	mu   sync.RWMutex
}

// NewInMemoryExecutionStore creates a new in-memory execution store.
func NewInMemoryExecutionStore() *InMemoryExecutionStore {
	return &InMemoryExecutionStore{
		byID: make(map[string]int),
	}
}

// Save records a completed or aborted run.
func (s *InMemoryExecutionStore) Save(_ context.Context, result *ExecutionResult, trigger Trigger) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byID[result.ExecutionID]; exists {
		return fmt.Errorf("execution %s already recorded", result.ExecutionID)
	}

	s.byID[result.ExecutionID] = len(s.runs)
	s.runs = append(s.runs, recordedRun{
		record: ExecutionRecord{
			ExecutionID: result.ExecutionID,
			TenantID:    result.TenantID,
			CheckID:     result.CheckID,
			RuleVersion: result.RuleVersion,
			Status:      result.Status,
			Score:       result.Score,
			Trigger:     trigger,
			RecordedAt:  time.Now(),
		},
		result: result,
	})
	return nil
}

// Get returns the full result document for an execution id.
func (s *InMemoryExecutionStore) Get(_ context.Context, executionID string) (*ExecutionResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx, ok := s.byID[executionID]
	if !ok {
		return nil, &ErrExecutionNotFound{ExecutionID: executionID}
	}
	return s.runs[idx].result, nil
}

// List returns records matching the query, most recent first.
func (s *InMemoryExecutionStore) List(_ context.Context, q ExecutionQuery) ([]*ExecutionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*ExecutionRecord
	for i := len(s.runs) - 1; i >= 0; i-- {
		rec := s.runs[i].record
		if q.TenantID != "" && rec.TenantID != q.TenantID {
			continue
		}
		if q.CheckID != "" && rec.CheckID != q.CheckID {
			continue
		}
		if q.Status != "" && rec.Status != q.Status {
			continue
		}
		out = append(out, &rec)
		if q.Limit > 0 && len(out) >= q.Limit {
			break
		}
	}
	return out, nil
}
