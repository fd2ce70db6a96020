package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/noah-isme/assignment-tracker-api/pkg/config"
)

// NewPostgres returns a configured PostgreSQL client.
func NewPostgres(cfg config.DatabaseConfig) (*sqlx.DB, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host,
		cfg.Port,
		cfg.User,
		cfg.Password,
		cfg.Name,
		cfg.SSLMode,
	)

	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}

	db.SetConnMaxLifetime(1 * time.Hour)
	db.SetConnMaxIdleTime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS applicants (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT NOT NULL DEFAULT '',
		group_tags TEXT[] NOT NULL DEFAULT '{}',
		subjects TEXT[] NOT NULL DEFAULT '{}',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_applicants_group_tags ON applicants USING GIN (group_tags)`,
	`CREATE TABLE IF NOT EXISTS assignments (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		subject TEXT NOT NULL,
		note TEXT NOT NULL DEFAULT '',
		link TEXT NOT NULL DEFAULT '',
		attachments TEXT[] NOT NULL DEFAULT '{}',
		start_date TIMESTAMPTZ NOT NULL,
		end_date TIMESTAMPTZ NOT NULL,
		is_group BOOLEAN NOT NULL DEFAULT FALSE,
		group_tag TEXT,
		assigned_to TEXT[] NOT NULL DEFAULT '{}',
		created_by TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS assignment_tracks (
		applicant_id TEXT NOT NULL,
		assignment_id TEXT NOT NULL REFERENCES assignments(id),
		stage TEXT NOT NULL,
		submitted_files TEXT[] NOT NULL DEFAULT '{}',
		submitted_link TEXT NOT NULL DEFAULT '',
		submitted_note TEXT NOT NULL DEFAULT '',
		submitted_at TIMESTAMPTZ,
		score DOUBLE PRECISION,
		remarks TEXT NOT NULL DEFAULT '',
		evaluated_by TEXT,
		version BIGINT NOT NULL DEFAULT 1,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (applicant_id, assignment_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_assignment_tracks_assignment ON assignment_tracks (assignment_id)`,
}

// EnsurePostgresSchema creates the tables used by the Postgres stores when missing.
func EnsurePostgresSchema(ctx context.Context, db *sqlx.DB) error {
	for _, stmt := range postgresSchema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
