package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

const (
	DefaultRecentLimit  = 8
	DefaultRAGK         = 3
	DefaultHydrateLimit = 200

	noRelevantContext = "(no relevant context found)"
)

// Redactor masks sensitive content before it is persisted.
type Redactor func(string) (string, bool)

// ServiceConfig wires the exchange log and similarity index into a Service.
type ServiceConfig struct {
	Log    Log
	Index  SimilarityIndex
	Logger *zap.Logger

	// RecentLimit and RAGK apply when callers pass a non-positive limit/k.
	RecentLimit int
	RAGK        int

	// IndexQueue > 0 applies index writes asynchronously through a bounded queue.
	// Zero writes to the index inline after the log append.
	IndexQueue int

	// HydrateLimit bounds how many logged exchanges per user are replayed into a
	// similarity index that does not persist (vector, bleve) on first use after
	// start. Zero uses DefaultHydrateLimit; negative disables replay.
	HydrateLimit int

	Redact Redactor

	// OnIndexFailure observes every swallowed index write failure.
	OnIndexFailure func(error)
}

// Status reports the memory subsystem's operating mode.
type Status struct {
	IndexMode          IndexMode `json:"index_mode"`
	Degraded           bool      `json:"degraded"`
	PendingIndexWrites int       `json:"pending_index_writes"`
	IndexWriteFailures int64     `json:"index_write_failures"`
	DroppedIndexWrites int64     `json:"dropped_index_writes"`
	SearchFallbacks    int64     `json:"search_fallbacks"`
}

// RAGBundle is retrieved context prepared for prompt assembly.
type RAGBundle struct {
	RetrievedDocs    []string `json:"retrieved_docs"`
	FormattedContext string   `json:"formatted_context"`
	OriginalQuery    string   `json:"original_query"`
}

// Service owns the shared exchange log and similarity index. It is safe for
// concurrent use; per-user Managers are cheap views over it.
type Service struct {
	log    Log
	index  SimilarityIndex
	logger *zap.Logger
	redact Redactor
	writer *indexWriter

	recentLimit  int
	ragK         int
	hydrateLimit int

	onIndexFailure func(error)

	locksMu sync.Mutex
	locks   map[string]*userLock

	hydratedMu sync.Mutex
	hydrated   map[string]struct{}

	indexFailures   atomic.Int64
	searchFallbacks atomic.Int64
}

type userLock struct {
	mu   sync.Mutex
	refs int
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Log == nil {
		return nil, errors.New("memory service requires an exchange log")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	index := cfg.Index
	if index == nil {
		index = NewRecencyIndex(cfg.Log)
	}
	s := &Service{
		log:            cfg.Log,
		index:          index,
		logger:         logger,
		redact:         cfg.Redact,
		recentLimit:    cfg.RecentLimit,
		ragK:           cfg.RAGK,
		hydrateLimit:   cfg.HydrateLimit,
		onIndexFailure: cfg.OnIndexFailure,
		locks:          make(map[string]*userLock),
		hydrated:       make(map[string]struct{}),
	}
	if s.recentLimit <= 0 {
		s.recentLimit = DefaultRecentLimit
	}
	if s.ragK <= 0 {
		s.ragK = DefaultRAGK
	}
	if s.hydrateLimit == 0 {
		s.hydrateLimit = DefaultHydrateLimit
	}
	if cfg.IndexQueue > 0 {
		s.writer = newIndexWriter(index, cfg.IndexQueue, s.indexFailed)
	}
	if index.Mode() == IndexModeRecency {
		logger.Warn("semantic search degraded to recency ranking")
	}
	return s, nil
}

// For returns a Manager scoped to userID.
func (s *Service) For(userID string) *Manager {
	return &Manager{svc: s, userID: userID}
}

func (s *Service) Degraded() bool { return s.index.Mode() == IndexModeRecency }

func (s *Service) Status() Status {
	st := Status{
		IndexMode:          s.index.Mode(),
		Degraded:           s.Degraded(),
		IndexWriteFailures: s.indexFailures.Load(),
		SearchFallbacks:    s.searchFallbacks.Load(),
	}
	if s.writer != nil {
		st.PendingIndexWrites = s.writer.pending()
		st.DroppedIndexWrites = s.writer.dropped.Load()
	}
	return st
}

// Flush waits for queued index writes to be applied.
func (s *Service) Flush(ctx context.Context) error {
	if s.writer == nil {
		return nil
	}
	return s.writer.flush(ctx)
}

// Close drains pending index writes, then closes the index and the log.
func (s *Service) Close() error {
	if s.writer != nil {
		s.writer.close()
	}
	return errors.Join(s.index.Close(), s.log.Close())
}

func (s *Service) lockUser(userID string) func() {
	s.locksMu.Lock()
	l, ok := s.locks[userID]
	if !ok {
		l = &userLock{}
		s.locks[userID] = l
	}
	l.refs++
	s.locksMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.locksMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, userID)
		}
		s.locksMu.Unlock()
	}
}

// hydrate replays the user's most recent logged exchanges into the index the
// first time the user is touched in this process. It runs under the user's write
// lock, before any of the user's new records reach the index, so nothing is
// indexed twice. A failed log read leaves the user unhydrated for a later retry.
func (s *Service) hydrate(ctx context.Context, userID string) {
	if s.hydrateLimit < 0 || s.index.Mode() == IndexModeRecency {
		return
	}
	if s.isHydrated(userID) {
		return
	}
	unlock := s.lockUser(userID)
	defer unlock()
	if s.isHydrated(userID) {
		return
	}

	items, err := s.log.Recent(ctx, userID, s.hydrateLimit)
	if err != nil {
		s.logger.Warn("index hydration skipped", zap.String("user_id", userID), zap.Error(err))
		return
	}
	for _, ex := range items {
		rec := recordFor(ex, ulid.Make().String())
		if err := s.index.Add(ctx, rec); err != nil {
			s.indexFailed(rec, err)
		}
	}
	s.hydratedMu.Lock()
	s.hydrated[userID] = struct{}{}
	s.hydratedMu.Unlock()
	if len(items) > 0 {
		s.logger.Debug("index hydrated from log", zap.String("user_id", userID), zap.Int("records", len(items)))
	}
}

func (s *Service) isHydrated(userID string) bool {
	s.hydratedMu.Lock()
	defer s.hydratedMu.Unlock()
	_, ok := s.hydrated[userID]
	return ok
}

func (s *Service) indexFailed(rec Record, err error) {
	s.indexFailures.Add(1)
	s.logger.Warn("similarity index write failed",
		zap.String("user_id", rec.UserID),
		zap.String("record_id", rec.ID),
		zap.Error(err),
	)
	if s.onIndexFailure != nil {
		s.onIndexFailure(err)
	}
}

// Manager is the memory facade for a single user identity.
type Manager struct {
	svc    *Service
	userID string
}

func (m *Manager) UserID() string { return m.userID }

// Degraded reports whether semantic search is running on the recency substitute.
func (m *Manager) Degraded() bool { return m.svc.Degraded() }

// AddExchange durably appends one turn to the log, then hands a copy to the
// similarity index. Only log failures are returned; they wrap ErrLogWrite.
func (m *Manager) AddExchange(ctx context.Context, role Role, content string) (Exchange, error) {
	role, err := ParseRole(string(role))
	if err != nil {
		return Exchange{}, err
	}
	ex := Exchange{
		UserID:    m.userID,
		Role:      role,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	if m.svc.redact != nil {
		ex.Content, ex.PIIRedacted = m.svc.redact(content)
	}

	m.svc.hydrate(ctx, m.userID)

	// The index write stays under the lock so records reach the index in Seq order.
	unlock := m.svc.lockUser(m.userID)
	defer unlock()
	ex, err = m.svc.log.Append(ctx, ex)
	if err != nil {
		return Exchange{}, fmt.Errorf("%w: %w", ErrLogWrite, err)
	}

	rec := recordFor(ex, ulid.Make().String())
	if m.svc.writer != nil {
		m.svc.writer.enqueue(rec)
	} else if err := m.svc.index.Add(ctx, rec); err != nil {
		m.svc.indexFailed(rec, err)
	}
	return ex, nil
}

// RecentExchanges returns the last limit exchanges in chronological order.
func (m *Manager) RecentExchanges(ctx context.Context, limit int) ([]Exchange, error) {
	if limit <= 0 {
		limit = m.svc.recentLimit
	}
	return m.svc.log.Recent(ctx, m.userID, limit)
}

// RecentContext renders the last limit exchanges as "Role: content" lines.
func (m *Manager) RecentContext(ctx context.Context, limit int) (string, error) {
	items, err := m.RecentExchanges(ctx, limit)
	if err != nil {
		return "", err
	}
	return FormatExchanges(items), nil
}

// SemanticSearch returns up to k stored contents most similar to query. It never
// fails: a query error falls back to the most recent exchanges, newest first.
func (m *Manager) SemanticSearch(ctx context.Context, query string, k int) []string {
	if k <= 0 {
		k = m.svc.ragK
	}
	m.svc.hydrate(ctx, m.userID)
	recs, err := m.svc.index.Query(ctx, m.userID, query, k)
	if err == nil {
		return recordContents(recs, k)
	}

	m.svc.searchFallbacks.Add(1)
	m.svc.logger.Warn("semantic search failed, using recent exchanges",
		zap.String("user_id", m.userID), zap.Error(err))
	items, err := m.svc.log.Recent(ctx, m.userID, k)
	if err != nil {
		m.svc.logger.Warn("recent exchange fallback failed", zap.String("user_id", m.userID), zap.Error(err))
		return nil
	}
	out := make([]string, 0, len(items))
	for i := len(items) - 1; i >= 0; i-- {
		out = append(out, items[i].Content)
	}
	return out
}

// RAGQuery bundles SemanticSearch output for prompt assembly.
func (m *Manager) RAGQuery(ctx context.Context, query string, k int) RAGBundle {
	docs := m.SemanticSearch(ctx, query, k)
	return RAGBundle{
		RetrievedDocs:    docs,
		FormattedContext: FormatDocs(docs),
		OriginalQuery:    query,
	}
}

// FormatDocs renders retrieved documents as a bullet list.
func FormatDocs(docs []string) string {
	if len(docs) == 0 {
		return noRelevantContext
	}
	lines := make([]string, 0, len(docs))
	for _, d := range docs {
		lines = append(lines, "- "+d)
	}
	return strings.Join(lines, "\n")
}

func recordFor(ex Exchange, id string) Record {
	return Record{
		ID:        id,
		Content:   ex.Content,
		Role:      ex.Role,
		UserID:    ex.UserID,
		Seq:       ex.Seq,
		CreatedAt: ex.CreatedAt,
	}
}

func recordContents(recs []Record, k int) []string {
	if len(recs) > k {
		recs = recs[:k]
	}
	out := make([]string, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.Content)
	}
	return out
}
