package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"HNPulse/internal/config"
)

type migration struct {
	version    int
	statements []string
}

// {ts} expands to the dialect's timestamp type.
var migrations = []migration{
	{
		version: 1,
		statements: []string{
			`CREATE TABLE IF NOT EXISTS stories (
				id BIGINT PRIMARY KEY,
				title VARCHAR(500) NOT NULL,
				url VARCHAR(2000) NOT NULL DEFAULT '',
				domain VARCHAR(255),
				score INTEGER NOT NULL DEFAULT 0,
				comments_count INTEGER NOT NULL DEFAULT 0,
				author VARCHAR(255) NOT NULL DEFAULT '',
				published_at {ts} NOT NULL,
				fetched_at {ts} NOT NULL,
				updated_at {ts} NOT NULL,
				is_ai_related BOOLEAN NOT NULL DEFAULT FALSE
			)`,
			`CREATE INDEX IF NOT EXISTS idx_stories_published_at ON stories (published_at DESC)`,
			`CREATE TABLE IF NOT EXISTS domain_stats (
				domain VARCHAR(255) PRIMARY KEY,
				story_count INTEGER NOT NULL DEFAULT 0,
				last_updated {ts} NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS keyword_mentions (
				keyword VARCHAR(100) NOT NULL,
				story_id BIGINT NOT NULL REFERENCES stories (id) ON DELETE CASCADE,
				PRIMARY KEY (keyword, story_id)
			)`,
			`CREATE INDEX IF NOT EXISTS idx_keyword_mentions_story_id ON keyword_mentions (story_id)`,
		},
	},
	{
		version: 2,
		statements: []string{
			`CREATE INDEX IF NOT EXISTS idx_stories_ai ON stories (is_ai_related, published_at DESC)`,
			`CREATE INDEX IF NOT EXISTS idx_domain_stats_count ON domain_stats (story_count DESC)`,
		},
	},
}

// Migrate brings the schema up to the latest version. Each version is applied
// in its own transaction.
func (r *SQLRepository) Migrate(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_meta (version INTEGER PRIMARY KEY)`); err != nil {
		return fmt.Errorf("create schema_meta: %w", err)
	}

	current, err := r.SchemaVersion(ctx)
	if err != nil {
		return err
	}

	tsType := "TIMESTAMPTZ"
	if r.driver == config.DriverSQLite {
		tsType = "TIMESTAMP"
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}

		err := r.WithTransaction(ctx, func(tx *sql.Tx) error {
			for _, stmt := range m.statements {
				if _, err := tx.ExecContext(ctx, strings.ReplaceAll(stmt, "{ts}", tsType)); err != nil {
					return err
				}
			}
			query, args, err := r.builder.Insert("schema_meta").Columns("version").Values(m.version).ToSql()
			if err != nil {
				return err
			}
			_, err = tx.ExecContext(ctx, query, args...)
			return err
		})
		if err != nil {
			return fmt.Errorf("migration v%d failed: %w", m.version, err)
		}
		r.logger.Info("applied migration", "version", m.version)
	}
	return nil
}

// SchemaVersion reports the highest applied migration, 0 for a fresh database.
func (r *SQLRepository) SchemaVersion(ctx context.Context) (int, error) {
	var version sql.NullInt64
	err := r.db.QueryRowContext(ctx, `SELECT MAX(version) FROM schema_meta`).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return int(version.Int64), nil
}
