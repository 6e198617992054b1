// Package catalog provides the read-only view of the external exam
// catalog that the orchestrator consumes: task counts for the start
// guard and scheduled start times for the wait_room derivation. The
// static implementation is loaded from a fixture file for development
// and tests; production deployments substitute a real client.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"examhub/pkg/interfaces"
)

// ExamInfo is the slice of catalog data the orchestrator needs.
type ExamInfo struct {
	TaskCount      int       `json:"task_count"`
	ScheduledStart time.Time `json:"scheduled_start"`
}

// Static is an in-memory CatalogReader keyed by exam identifier.
type Static struct {
	mu    sync.RWMutex
	exams map[string]ExamInfo
}

// NewStatic creates an empty catalog.
func NewStatic() *Static {
	return &Static{exams: make(map[string]ExamInfo)}
}

// LoadFile reads a JSON object of examID -> ExamInfo.
func LoadFile(path string) (*Static, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog fixture %s: %w", path, err)
	}

	exams := make(map[string]ExamInfo)
	if err := json.Unmarshal(data, &exams); err != nil {
		return nil, fmt.Errorf("failed to parse catalog fixture %s: %w", path, err)
	}
	return &Static{exams: exams}, nil
}

// SetExam registers or replaces an exam's catalog data.
func (c *Static) SetExam(examID string, info ExamInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.exams[examID] = info
}

// TaskCount returns 0 for unknown exams, which blocks start with the
// no-tasks rejection rather than an error.
func (c *Static) TaskCount(_ context.Context, examID string) (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.exams[examID].TaskCount, nil
}

// ScheduledStart returns the zero time for unknown exams; the machine
// treats that as already open for starting.
func (c *Static) ScheduledStart(_ context.Context, examID string) (time.Time, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.exams[examID].ScheduledStart, nil
}

var _ interfaces.CatalogReader = (*Static)(nil)
