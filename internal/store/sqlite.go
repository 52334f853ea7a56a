// This file implements an SQLite-backed store for feedback and share receipts.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "embed"

	"github.com/BTreeMap/NamePlay/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// Constants for SQLite store configuration
const (
	// DefaultDirPermissions defines the default permissions for database directories
	DefaultDirPermissions = 0755
)

//go:embed migrations_sqlite.sql
var sqliteMigrations string

type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	if dsn != ":memory:" {
		dir := filepath.Dir(dsn)
		if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
			slog.Error("Failed to create database directory", "error", err, "dir", dir)
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	// A single connection keeps ":memory:" databases consistent across queries.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		db.Close()
		return nil, err
	}

	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) AddFeedback(f models.Feedback) error {
	_, err := s.db.Exec(`INSERT INTO feedback (session_id, name, rating, created_at) VALUES (?, ?, ?, ?)`,
		f.SessionID, f.Name, string(f.Rating), f.CreatedAt.UTC())
	if err != nil {
		slog.Error("SQLiteStore AddFeedback failed", "error", err, "session_id", f.SessionID)
		return fmt.Errorf("failed to insert feedback for session %s: %w", f.SessionID, err)
	}
	slog.Debug("SQLiteStore AddFeedback succeeded", "session_id", f.SessionID, "rating", f.Rating)
	return nil
}

func (s *SQLiteStore) ListFeedback() ([]models.Feedback, error) {
	rows, err := s.db.Query(`SELECT session_id, name, rating, created_at FROM feedback ORDER BY id`)
	if err != nil {
		slog.Error("SQLiteStore ListFeedback query failed", "error", err)
		return nil, fmt.Errorf("failed to query feedback: %w", err)
	}
	defer rows.Close()
	return scanFeedback(rows)
}

func (s *SQLiteStore) RatingCounts() (map[models.Rating]int, error) {
	rows, err := s.db.Query(`SELECT rating, COUNT(*) FROM feedback GROUP BY rating`)
	if err != nil {
		slog.Error("SQLiteStore RatingCounts query failed", "error", err)
		return nil, fmt.Errorf("failed to count ratings: %w", err)
	}
	defer rows.Close()
	return scanRatingCounts(rows)
}

func (s *SQLiteStore) AddShareReceipt(r models.ShareReceipt) error {
	_, err := s.db.Exec(`INSERT INTO share_receipts (session_id, recipient, name, status, message_id, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		r.SessionID, r.To, r.Name, string(r.Status), r.MessageID, r.CreatedAt.UTC())
	if err != nil {
		slog.Error("SQLiteStore AddShareReceipt failed", "error", err, "session_id", r.SessionID)
		return fmt.Errorf("failed to insert share receipt for session %s: %w", r.SessionID, err)
	}
	return nil
}

func (s *SQLiteStore) ListShareReceipts() ([]models.ShareReceipt, error) {
	rows, err := s.db.Query(`SELECT session_id, recipient, name, status, message_id, created_at FROM share_receipts ORDER BY created_at, id`)
	if err != nil {
		slog.Error("SQLiteStore ListShareReceipts query failed", "error", err)
		return nil, fmt.Errorf("failed to query share receipts: %w", err)
	}
	defer rows.Close()
	return scanShareReceipts(rows)
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func scanFeedback(rows *sql.Rows) ([]models.Feedback, error) {
	var out []models.Feedback
	for rows.Next() {
		var f models.Feedback
		var rating string
		if err := rows.Scan(&f.SessionID, &f.Name, &rating, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan feedback row: %w", err)
		}
		f.Rating = models.Rating(rating)
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate feedback rows: %w", err)
	}
	return out, nil
}

func scanRatingCounts(rows *sql.Rows) (map[models.Rating]int, error) {
	counts := make(map[models.Rating]int)
	for rows.Next() {
		var rating string
		var n int
		if err := rows.Scan(&rating, &n); err != nil {
			return nil, fmt.Errorf("failed to scan rating count: %w", err)
		}
		counts[models.Rating(rating)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rating counts: %w", err)
	}
	return counts, nil
}

func scanShareReceipts(rows *sql.Rows) ([]models.ShareReceipt, error) {
	var out []models.ShareReceipt
	for rows.Next() {
		var r models.ShareReceipt
		var status string
		var messageID sql.NullString
		if err := rows.Scan(&r.SessionID, &r.To, &r.Name, &status, &messageID, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan share receipt row: %w", err)
		}
		r.Status = models.ShareStatus(status)
		r.MessageID = messageID.String
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate share receipt rows: %w", err)
	}
	return out, nil
}
