package memory

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/ent0n29/agentforge/internal/embedding"
)

// IndexMode names the similarity implementation behind a SimilarityIndex.
type IndexMode string

const (
	IndexModeVector  IndexMode = "vector"
	IndexModeBleve   IndexMode = "bleve"
	IndexModeRecency IndexMode = "recency"
)

// SimilarityIndex stores records and answers nearest-neighbour queries scoped to one user.
type SimilarityIndex interface {
	Add(ctx context.Context, rec Record) error
	// Query returns up to k records of userID, most similar first.
	Query(ctx context.Context, userID, query string, k int) ([]Record, error)
	Mode() IndexMode
	Close() error
}

// IndexConfig controls similarity backend selection.
type IndexConfig struct {
	// Mode: "auto" | "vector" | "bleve" | "recency"
	Mode     string
	Embedder embedding.Embedder
	// Log backs the recency substitute.
	Log    Log
	Logger *zap.Logger
}

// NewIndex probes the requested similarity backend and falls back to the recency
// substitute when it is unavailable. It never fails.
func NewIndex(ctx context.Context, cfg IndexConfig) SimilarityIndex {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	if mode == "" {
		mode = "auto"
	}

	switch mode {
	case "auto", string(IndexModeVector):
		if err := embedding.Probe(ctx, cfg.Embedder); err != nil {
			logger.Warn("similarity backend unavailable, using recency substitute",
				zap.String("requested", mode), zap.Error(err))
			return NewRecencyIndex(cfg.Log)
		}
		logger.Info("similarity backend ready", zap.String("mode", string(IndexModeVector)),
			zap.String("embedder", cfg.Embedder.Name()))
		return NewVectorIndex(cfg.Embedder)
	case string(IndexModeBleve):
		idx, err := NewBleveIndex()
		if err != nil {
			logger.Warn("bleve index unavailable, using recency substitute", zap.Error(err))
			return NewRecencyIndex(cfg.Log)
		}
		logger.Info("similarity backend ready", zap.String("mode", string(IndexModeBleve)))
		return idx
	case string(IndexModeRecency):
		return NewRecencyIndex(cfg.Log)
	default:
		logger.Warn("unknown similarity mode, using recency substitute", zap.String("requested", mode))
		return NewRecencyIndex(cfg.Log)
	}
}
