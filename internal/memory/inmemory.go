package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryLog is a simple in-process exchange log for local/dev use.
type InMemoryLog struct {
	mu      sync.RWMutex
	records map[string][]Exchange
}

func NewInMemoryLog() *InMemoryLog {
	return &InMemoryLog{records: make(map[string][]Exchange)}
}

func (s *InMemoryLog) Append(_ context.Context, ex Exchange) (Exchange, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ex.ID == "" {
		ex.ID = uuid.NewString()
	}
	if ex.CreatedAt.IsZero() {
		ex.CreatedAt = time.Now().UTC()
	}
	arr := s.records[ex.UserID]
	ex.Seq = int64(len(arr)) + 1
	s.records[ex.UserID] = append(arr, ex)
	return ex, nil
}

func (s *InMemoryLog) Recent(_ context.Context, userID string, limit int) ([]Exchange, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	arr := s.records[userID]
	if len(arr) == 0 || limit <= 0 {
		return nil, nil
	}
	if limit > len(arr) {
		limit = len(arr)
	}
	out := make([]Exchange, 0, limit)
	for i := len(arr) - limit; i < len(arr); i++ {
		out = append(out, arr[i])
	}
	return out, nil
}

func (s *InMemoryLog) Close() error { return nil }
