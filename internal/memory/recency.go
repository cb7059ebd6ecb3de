package memory

import (
	"context"
	"errors"
)

var errNoRecencyLog = errors.New("recency index has no exchange log")

// RecencyIndex is the degraded SimilarityIndex: it keeps the call shape but ranks
// purely by recency, newest first. It reads straight from the exchange log, so it
// survives restarts and always agrees with the log's Seq order.
type RecencyIndex struct {
	log Log
}

func NewRecencyIndex(log Log) *RecencyIndex {
	return &RecencyIndex{log: log}
}

// Add is a no-op; the log already holds every record.
func (r *RecencyIndex) Add(context.Context, Record) error { return nil }

func (r *RecencyIndex) Query(ctx context.Context, userID, _ string, k int) ([]Record, error) {
	if k <= 0 {
		return nil, nil
	}
	if r.log == nil {
		return nil, errNoRecencyLog
	}
	items, err := r.log.Recent(ctx, userID, k)
	if err != nil {
		return nil, err
	}
	out := make([]Record, 0, len(items))
	for i := len(items) - 1; i >= 0; i-- {
		out = append(out, recordFor(items[i], items[i].ID))
	}
	return out, nil
}

func (r *RecencyIndex) Mode() IndexMode { return IndexModeRecency }

// Close leaves the log open; the Service owns it.
func (r *RecencyIndex) Close() error { return nil }
