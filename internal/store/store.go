// Package store provides storage backends for NamePlay.
//
// It records feedback left on generated names and share receipts, in memory
// by default or in SQLite/PostgreSQL when a DSN is configured.
package store

import (
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/BTreeMap/NamePlay/internal/models"
)

// Store is implemented by every storage backend.
type Store interface {
	AddFeedback(f models.Feedback) error
	ListFeedback() ([]models.Feedback, error)
	RatingCounts() (map[models.Rating]int, error)
	AddShareReceipt(r models.ShareReceipt) error
	ListShareReceipts() ([]models.ShareReceipt, error)
	Close() error
}

// Opts holds configuration options for store backends.
type Opts struct {
	DSN    string
	Driver string
}

// Option defines a configuration option for store backends.
type Option func(*Opts)

// WithSQLiteDSN selects the SQLite backend with the given database file.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
		o.Driver = "sqlite3"
	}
}

// WithPostgresDSN selects the PostgreSQL backend with the given connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
		o.Driver = "postgres"
	}
}

// DetectDSNType returns "postgres" for PostgreSQL URLs or keyword DSNs and "sqlite3" otherwise.
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") ||
		strings.Contains(dsn, "host=") || strings.Contains(dsn, "dbname=") {
		return "postgres"
	}
	return "sqlite3"
}

// New opens the backend selected by opts, falling back to an in-memory store.
func New(opts ...Option) (Store, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	switch {
	case cfg.DSN == "":
		slog.Debug("store.New: no DSN configured, using in-memory store")
		return NewInMemoryStore(), nil
	case cfg.Driver == "postgres":
		return NewPostgresStore(opts...)
	default:
		return NewSQLiteStore(opts...)
	}
}

// InMemoryStore is a simple in-memory store.
type InMemoryStore struct {
	mu       sync.RWMutex
	feedback []models.Feedback
	receipts []models.ShareReceipt
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) AddFeedback(f models.Feedback) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.feedback = append(s.feedback, f)
	slog.Debug("InMemoryStore AddFeedback succeeded", "session_id", f.SessionID, "rating", f.Rating)
	return nil
}

func (s *InMemoryStore) ListFeedback() ([]models.Feedback, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Feedback, len(s.feedback))
	copy(out, s.feedback)
	return out, nil
}

func (s *InMemoryStore) RatingCounts() (map[models.Rating]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[models.Rating]int)
	for _, f := range s.feedback {
		counts[f.Rating]++
	}
	return counts, nil
}

func (s *InMemoryStore) AddShareReceipt(r models.ShareReceipt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.receipts = append(s.receipts, r)
	return nil
}

// ListShareReceipts returns receipts oldest first.
func (s *InMemoryStore) ListShareReceipts() ([]models.ShareReceipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.ShareReceipt, len(s.receipts))
	copy(out, s.receipts)
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *InMemoryStore) Close() error {
	return nil
}
