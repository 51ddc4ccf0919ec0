// Package store persists summary records in PostgreSQL. Migrations are
// embedded into the binary and applied on startup.
package store

import (
	"context"
	stdsql "database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver for database/sql

	"github.com/condenserhq/condenser/pkg/models"
)

//go:embed migrations
var migrationsFS embed.FS

// ErrNotFound is returned when a record id does not exist.
var ErrNotFound = errors.New("store: record not found")

// Config holds database connection settings.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// Store is the summary record repository.
type Store struct {
	db *stdsql.DB
}

// New opens the database, applies pending migrations, and returns the store.
func New(ctx context.Context, cfg Config) (*Store, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	db, err := stdsql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := runMigrations(db, cfg.Database); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// NewFromDB wraps an already-open connection and applies migrations.
// Useful for tests.
func NewFromDB(db *stdsql.DB, database string) (*Store, error) {
	if err := runMigrations(db, database); err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

func runMigrations(db *stdsql.DB, database string) error {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create postgres driver: %w", err)
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, database, driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	// Close only the source driver; m.Close() would also close the shared
	// *sql.DB via the database driver.
	if err := sourceDriver.Close(); err != nil {
		return fmt.Errorf("failed to close migration source: %w", err)
	}
	return nil
}

// SaveRecord inserts a summary record. Saving an existing id updates it.
func (s *Store) SaveRecord(ctx context.Context, r *models.SummaryRecord) error {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO summary_records
			(id, original_text, summary_text, created_at, user_id,
			 original_length, summary_length, processing_time_ms, error_message)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			summary_text = EXCLUDED.summary_text,
			summary_length = EXCLUDED.summary_length,
			processing_time_ms = EXCLUDED.processing_time_ms,
			error_message = EXCLUDED.error_message`,
		r.ID, r.OriginalText, r.SummaryText, r.CreatedAt, r.UserID,
		r.OriginalLength, r.SummaryLength, r.ProcessingTimeMs, r.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("failed to save summary record: %w", err)
	}
	return nil
}

// GetRecord fetches one record by id.
func (s *Store) GetRecord(ctx context.Context, id string) (*models.SummaryRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, original_text, summary_text, created_at, user_id,
		       original_length, summary_length, processing_time_ms, error_message
		FROM summary_records WHERE id = $1`, id)

	var r models.SummaryRecord
	err := row.Scan(&r.ID, &r.OriginalText, &r.SummaryText, &r.CreatedAt, &r.UserID,
		&r.OriginalLength, &r.SummaryLength, &r.ProcessingTimeMs, &r.ErrorMessage)
	if errors.Is(err, stdsql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get summary record: %w", err)
	}
	return &r, nil
}

// ListRecords returns a user's records, newest first. An empty userID
// lists across all users.
func (s *Store) ListRecords(ctx context.Context, userID string, limit int) ([]*models.SummaryRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, original_text, summary_text, created_at, user_id,
		       original_length, summary_length, processing_time_ms, error_message
		FROM summary_records`
	args := []interface{}{}
	if userID != "" {
		query += ` WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`
		args = append(args, userID, limit)
	} else {
		query += ` ORDER BY created_at DESC LIMIT $1`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list summary records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []*models.SummaryRecord
	for rows.Next() {
		var r models.SummaryRecord
		if err := rows.Scan(&r.ID, &r.OriginalText, &r.SummaryText, &r.CreatedAt, &r.UserID,
			&r.OriginalLength, &r.SummaryLength, &r.ProcessingTimeMs, &r.ErrorMessage); err != nil {
			return nil, fmt.Errorf("failed to scan summary record: %w", err)
		}
		records = append(records, &r)
	}
	return records, rows.Err()
}

// DeleteOlderThan removes records created before the cutoff and reports
// how many were deleted.
func (s *Store) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM summary_records WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old summary records: %w", err)
	}
	return res.RowsAffected()
}

// Health pings the database.
func (s *Store) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}
