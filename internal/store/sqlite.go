package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/ashureev/acbuy/internal/domain"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS submissions (
		id TEXT PRIMARY KEY,
		brand TEXT NOT NULL,
		model TEXT NOT NULL,
		age INTEGER NOT NULL,
		condition_level TEXT,
		condition_description TEXT,
		customer_name TEXT NOT NULL,
		phone TEXT NOT NULL,
		email TEXT NOT NULL,
		created_at_ns INTEGER NOT NULL,
		seq INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_submissions_seq ON submissions(seq);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// InsertSubmission stores a submission.
// Retries with exponential backoff on SQLITE_BUSY and locked errors.
func (s *SQLiteStore) InsertSubmission(ctx context.Context, sub *domain.Submission) error {
	maxRetries := 3
	baseDelay := 50 * time.Millisecond

	var err error
	for i := 0; i < maxRetries; i++ {
		err = s.insertOnce(ctx, sub)
		if err == nil {
			return nil
		}
		if !isConflict(err) || i == maxRetries-1 {
			break
		}
		delay := baseDelay * time.Duration(1<<i) // 50ms, 100ms
		slog.Debug("InsertSubmission hit a locked database, retrying",
			"submission_id", sub.ID,
			"attempt", i+1,
			"delay", delay)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("insert submission %s: %w", sub.ID, err)
}

func (s *SQLiteStore) insertOnce(ctx context.Context, sub *domain.Submission) error {
	query := `
	INSERT INTO submissions (
		id, brand, model, age, condition_level, condition_description,
		customer_name, phone, email, created_at_ns, seq
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?,
		(SELECT COALESCE(MAX(seq), 0) + 1 FROM submissions))`

	_, err := s.db.ExecContext(ctx, query,
		sub.ID, sub.Brand, sub.Model, sub.Age,
		nullable(string(sub.Condition.Level)), nullable(sub.Condition.Description),
		sub.CustomerName, sub.Phone, sub.Email, sub.Timestamp,
	)
	return err
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

const submissionColumns = `id, brand, model, age, condition_level, condition_description,
	customer_name, phone, email, created_at_ns`

type scanner interface {
	Scan(dest ...any) error
}

func scanSubmission(row scanner) (domain.Submission, error) {
	var sub domain.Submission
	var level, description sql.NullString
	err := row.Scan(
		&sub.ID, &sub.Brand, &sub.Model, &sub.Age, &level, &description,
		&sub.CustomerName, &sub.Phone, &sub.Email, &sub.Timestamp,
	)
	if err != nil {
		return domain.Submission{}, err
	}
	sub.Condition = domain.Condition{
		Level:       domain.ConditionLevel(level.String),
		Description: description.String,
	}
	return sub, nil
}

// ListSubmissions returns all submissions in insertion order.
func (s *SQLiteStore) ListSubmissions(ctx context.Context) ([]domain.Submission, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+submissionColumns+` FROM submissions ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("query submissions: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close submission rows", "error", closeErr)
		}
	}()

	subs := []domain.Submission{}
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, fmt.Errorf("scan submission row: %w", err)
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate submissions: %w", err)
	}
	return subs, nil
}

// GetSubmission retrieves a submission by ID.
func (s *SQLiteStore) GetSubmission(ctx context.Context, id string) (*domain.Submission, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+submissionColumns+` FROM submissions WHERE id = ?`, id)
	sub, err := scanSubmission(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan submission: %w", err)
	}
	return &sub, nil
}

// ListContacts returns contact details for every submission.
func (s *SQLiteStore) ListContacts(ctx context.Context) ([]domain.Contact, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, customer_name, phone, email FROM submissions ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("query contacts: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close contact rows", "error", closeErr)
		}
	}()

	contacts := []domain.Contact{}
	for rows.Next() {
		var c domain.Contact
		if err := rows.Scan(&c.SubmissionID, &c.CustomerName, &c.Phone, &c.Email); err != nil {
			return nil, fmt.Errorf("scan contact row: %w", err)
		}
		contacts = append(contacts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate contacts: %w", err)
	}
	return contacts, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}
