// This file implements a PostgreSQL-backed store for feedback and share receipts.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/BTreeMap/NamePlay/internal/models"
	_ "github.com/lib/pq"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("PostgresStore.NewPostgresStore: creating Postgres store", "DSN_set", cfg.DSN != "")
	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) AddFeedback(f models.Feedback) error {
	_, err := s.db.Exec(`INSERT INTO feedback (session_id, name, rating, created_at) VALUES ($1, $2, $3, $4)`,
		f.SessionID, f.Name, string(f.Rating), f.CreatedAt.UTC())
	if err != nil {
		slog.Error("PostgresStore AddFeedback failed", "error", err, "session_id", f.SessionID)
		return fmt.Errorf("failed to insert feedback for session %s: %w", f.SessionID, err)
	}
	slog.Debug("PostgresStore AddFeedback succeeded", "session_id", f.SessionID, "rating", f.Rating)
	return nil
}

func (s *PostgresStore) ListFeedback() ([]models.Feedback, error) {
	rows, err := s.db.Query(`SELECT session_id, name, rating, created_at FROM feedback ORDER BY id`)
	if err != nil {
		slog.Error("PostgresStore ListFeedback query failed", "error", err)
		return nil, fmt.Errorf("failed to query feedback: %w", err)
	}
	defer rows.Close()
	return scanFeedback(rows)
}

func (s *PostgresStore) RatingCounts() (map[models.Rating]int, error) {
	rows, err := s.db.Query(`SELECT rating, COUNT(*) FROM feedback GROUP BY rating`)
	if err != nil {
		slog.Error("PostgresStore RatingCounts query failed", "error", err)
		return nil, fmt.Errorf("failed to count ratings: %w", err)
	}
	defer rows.Close()
	return scanRatingCounts(rows)
}

func (s *PostgresStore) AddShareReceipt(r models.ShareReceipt) error {
	_, err := s.db.Exec(`INSERT INTO share_receipts (session_id, recipient, name, status, message_id, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		r.SessionID, r.To, r.Name, string(r.Status), nilIfEmpty(r.MessageID), r.CreatedAt.UTC())
	if err != nil {
		slog.Error("PostgresStore AddShareReceipt failed", "error", err, "session_id", r.SessionID)
		return fmt.Errorf("failed to insert share receipt for session %s: %w", r.SessionID, err)
	}
	return nil
}

func (s *PostgresStore) ListShareReceipts() ([]models.ShareReceipt, error) {
	rows, err := s.db.Query(`SELECT session_id, recipient, name, status, message_id, created_at FROM share_receipts ORDER BY created_at, id`)
	if err != nil {
		slog.Error("PostgresStore ListShareReceipts query failed", "error", err)
		return nil, fmt.Errorf("failed to query share receipts: %w", err)
	}
	defer rows.Close()
	return scanShareReceipts(rows)
}

// Close closes the PostgreSQL database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
