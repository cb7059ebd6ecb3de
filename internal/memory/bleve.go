package memory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
)

type bleveDoc struct {
	Content   string `json:"content"`
	UserID    string `json:"user_id"`
	Role      string `json:"role"`
	Seq       int64  `json:"seq"`
	Timestamp string `json:"timestamp"`
}

// BleveIndex ranks records by lexical relevance using an in-memory bleve index.
type BleveIndex struct {
	index bleve.Index
}

func NewBleveIndex() (*BleveIndex, error) {
	idx, err := bleve.NewMemOnly(recordMapping())
	if err != nil {
		return nil, fmt.Errorf("create bleve index: %w", err)
	}
	return &BleveIndex{index: idx}, nil
}

func recordMapping() mapping.IndexMapping {
	doc := bleve.NewDocumentMapping()

	content := bleve.NewTextFieldMapping()
	content.Store = true
	doc.AddFieldMappingsAt("content", content)

	for _, name := range []string{"user_id", "role", "timestamp"} {
		kw := bleve.NewKeywordFieldMapping()
		kw.Store = true
		doc.AddFieldMappingsAt(name, kw)
	}
	seq := bleve.NewNumericFieldMapping()
	seq.Store = true
	doc.AddFieldMappingsAt("seq", seq)

	m := bleve.NewIndexMapping()
	m.DefaultMapping = doc
	return m
}

func (b *BleveIndex) Add(_ context.Context, rec Record) error {
	return b.index.Index(rec.ID, bleveDoc{
		Content:   rec.Content,
		UserID:    rec.UserID,
		Role:      string(rec.Role),
		Seq:       rec.Seq,
		Timestamp: rec.CreatedAt.Format(time.RFC3339Nano),
	})
}

func (b *BleveIndex) Query(ctx context.Context, userID, query string, k int) ([]Record, error) {
	if k <= 0 || strings.TrimSpace(query) == "" {
		return nil, nil
	}
	match := bleve.NewMatchQuery(query)
	match.SetField("content")
	owner := bleve.NewTermQuery(userID)
	owner.SetField("user_id")

	req := bleve.NewSearchRequestOptions(bleve.NewConjunctionQuery(match, owner), k, 0, false)
	req.Fields = []string{"content", "user_id", "role", "seq", "timestamp"}
	res, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("bleve search: %w", err)
	}

	out := make([]Record, 0, len(res.Hits))
	for _, hit := range res.Hits {
		rec := Record{ID: hit.ID}
		rec.Content, _ = hit.Fields["content"].(string)
		rec.UserID, _ = hit.Fields["user_id"].(string)
		if role, ok := hit.Fields["role"].(string); ok {
			rec.Role = Role(role)
		}
		if seq, ok := hit.Fields["seq"].(float64); ok {
			rec.Seq = int64(seq)
		}
		if ts, ok := hit.Fields["timestamp"].(string); ok {
			rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, ts)
		}
		out = append(out, rec)
	}
	return out, nil
}

func (b *BleveIndex) Mode() IndexMode { return IndexModeBleve }
func (b *BleveIndex) Close() error    { return b.index.Close() }
