package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"HNPulse/internal/config"
	"HNPulse/internal/domain"
	"HNPulse/internal/ports"
)

// ErrNotFound is returned by readers when no row matches.
var ErrNotFound = errors.New("not found")

const progressEvery = 10

// SQLRepository persists stories, domain stats and keyword mentions.
type SQLRepository struct {
	db      *sql.DB
	driver  string
	builder sq.StatementBuilderType
	logger  *slog.Logger
	now     func() time.Time
}

var _ ports.StoryRepository = (*SQLRepository)(nil)

// Open connects to the configured database and applies migrations.
func Open(ctx context.Context, cfg config.DatabaseConfig, logger *slog.Logger) (*SQLRepository, error) {
	driverName := "pgx"
	if cfg.Driver == config.DriverSQLite {
		driverName = "sqlite"
	}

	db, err := sql.Open(driverName, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if cfg.Driver == config.DriverSQLite {
		// SQLite serializes writers; a single connection avoids SQLITE_BUSY.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
	} else if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	repo := NewSQLRepository(db, cfg.Driver, logger)
	if err := repo.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

// NewSQLRepository wires an already opened *sql.DB.
func NewSQLRepository(db *sql.DB, driver string, logger *slog.Logger) *SQLRepository {
	var format sq.PlaceholderFormat = sq.Dollar
	if driver == config.DriverSQLite {
		format = sq.Question
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SQLRepository{
		db:      db,
		driver:  driver,
		builder: sq.StatementBuilder.PlaceholderFormat(format),
		logger:  logger,
		now:     time.Now,
	}
}

// SQLiteDSN builds a modernc.org/sqlite DSN with the pragmas the repository expects.
func SQLiteDSN(path string) string {
	return fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", path)
}

// Close releases the connection pool.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// WithTransaction runs fn inside a transaction, committing on success and
// rolling back on error or panic.
func (r *SQLRepository) WithTransaction(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		} else if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				r.logger.Error("transaction rollback", "original_error", err, "rollback_error", rbErr)
			}
		} else if cErr := tx.Commit(); cErr != nil {
			err = fmt.Errorf("commit transaction: %w", cErr)
		}
	}()

	return fn(tx)
}

// SaveBatch upserts every story, maintains domain counts for newly created
// stories and records keyword mentions, all in one transaction.
func (r *SQLRepository) SaveBatch(ctx context.Context, stories []domain.ClassifiedStory) (domain.BatchStats, error) {
	var stats domain.BatchStats
	if len(stories) == 0 {
		return stats, nil
	}

	err := r.WithTransaction(ctx, func(tx *sql.Tx) error {
		stats = domain.BatchStats{}
		now := r.now().UTC()

		for _, story := range stories {
			created, err := r.upsertStory(ctx, tx, story, now)
			if err != nil {
				return err
			}

			if created {
				stats.New++
				if story.HasDomain() {
					if err := r.incrementDomain(ctx, tx, *story.Domain, now); err != nil {
						return err
					}
				}
			} else {
				stats.Updated++
			}
			stats.Processed++

			if stats.Processed%progressEvery == 0 {
				r.logger.Info("database update progress", "done", stats.Processed, "total", len(stories))
			}
		}

		for _, story := range stories {
			for _, keyword := range story.Keywords {
				created, err := r.recordMention(ctx, tx, domain.KeywordMention{Keyword: keyword, StoryID: story.ID})
				if err != nil {
					return err
				}
				if created {
					stats.MentionsCreated++
				}
			}
		}
		return nil
	})
	if err != nil {
		return domain.BatchStats{}, err
	}

	r.logger.Info("batch committed",
		"processed", stats.Processed, "new", stats.New, "updated", stats.Updated,
		"keyword_mentions_created", stats.MentionsCreated)
	return stats, nil
}

func (r *SQLRepository) upsertStory(ctx context.Context, tx *sql.Tx, story domain.ClassifiedStory, now time.Time) (bool, error) {
	query, args, err := r.builder.Select("COUNT(1)").From("stories").Where(sq.Eq{"id": story.ID}).ToSql()
	if err != nil {
		return false, fmt.Errorf("build exists query: %w", err)
	}
	var existing int
	if err := tx.QueryRowContext(ctx, query, args...).Scan(&existing); err != nil {
		return false, fmt.Errorf("check story %d: %w", story.ID, err)
	}

	query, args, err = r.builder.Insert("stories").
		Columns("id", "title", "url", "domain", "score", "comments_count", "author",
			"published_at", "fetched_at", "updated_at", "is_ai_related").
		Values(story.ID, story.Title, story.URL, nullString(story.Domain), story.Score, story.CommentsCount,
			story.Author, story.PublishedAt.UTC(), now, now, story.IsAIRelated).
		Suffix(`ON CONFLICT (id) DO UPDATE SET
			title = excluded.title,
			url = excluded.url,
			domain = excluded.domain,
			score = excluded.score,
			comments_count = excluded.comments_count,
			author = excluded.author,
			published_at = excluded.published_at,
			updated_at = excluded.updated_at,
			is_ai_related = excluded.is_ai_related`).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build upsert: %w", err)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return false, fmt.Errorf("upsert story %d: %w", story.ID, err)
	}

	return existing == 0, nil
}

// incrementDomain creates the row on first sight and bumps the counter in SQL
// so concurrent runs cannot lose an increment.
func (r *SQLRepository) incrementDomain(ctx context.Context, tx *sql.Tx, host string, now time.Time) error {
	query, args, err := r.builder.Insert("domain_stats").
		Columns("domain", "story_count", "last_updated").
		Values(host, 0, now).
		Suffix("ON CONFLICT (domain) DO NOTHING").
		ToSql()
	if err != nil {
		return fmt.Errorf("build domain insert: %w", err)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("create domain %s: %w", host, err)
	}

	query, args, err = r.builder.Update("domain_stats").
		Set("story_count", sq.Expr("story_count + 1")).
		Set("last_updated", now).
		Where(sq.Eq{"domain": host}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build domain increment: %w", err)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("increment domain %s: %w", host, err)
	}
	return nil
}

func (r *SQLRepository) recordMention(ctx context.Context, tx *sql.Tx, m domain.KeywordMention) (bool, error) {
	query, args, err := r.builder.Insert("keyword_mentions").
		Columns("keyword", "story_id").
		Values(m.Keyword, m.StoryID).
		Suffix("ON CONFLICT (keyword, story_id) DO NOTHING").
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build mention insert: %w", err)
	}
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("record mention %s/%d: %w", m.Keyword, m.StoryID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mention rows affected: %w", err)
	}
	return n > 0, nil
}

// Story loads one persisted story.
func (r *SQLRepository) Story(ctx context.Context, id int64) (domain.Story, error) {
	query, args, err := r.builder.
		Select("id", "title", "url", "domain", "score", "comments_count", "author",
			"published_at", "fetched_at", "updated_at", "is_ai_related").
		From("stories").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return domain.Story{}, fmt.Errorf("build story query: %w", err)
	}

	var (
		story domain.Story
		host  sql.NullString
	)
	err = r.db.QueryRowContext(ctx, query, args...).Scan(
		&story.ID, &story.Title, &story.URL, &host, &story.Score, &story.CommentsCount,
		&story.Author, &story.PublishedAt, &story.FetchedAt, &story.UpdatedAt, &story.IsAIRelated,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return story, fmt.Errorf("story %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return story, fmt.Errorf("load story %d: %w", id, err)
	}
	if host.Valid {
		story.Domain = &host.String
	}
	return story, nil
}

// CountStories returns the number of persisted stories.
func (r *SQLRepository) CountStories(ctx context.Context) (int, error) {
	query, args, err := r.builder.Select("COUNT(1)").From("stories").ToSql()
	if err != nil {
		return 0, fmt.Errorf("build count query: %w", err)
	}
	var n int
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count stories: %w", err)
	}
	return n, nil
}

// DomainStat loads the counter row for host.
func (r *SQLRepository) DomainStat(ctx context.Context, host string) (domain.DomainStat, error) {
	query, args, err := r.builder.Select("domain", "story_count", "last_updated").
		From("domain_stats").
		Where(sq.Eq{"domain": host}).
		ToSql()
	if err != nil {
		return domain.DomainStat{}, fmt.Errorf("build domain query: %w", err)
	}

	var stat domain.DomainStat
	err = r.db.QueryRowContext(ctx, query, args...).Scan(&stat.Domain, &stat.Count, &stat.LastUpdated)
	if errors.Is(err, sql.ErrNoRows) {
		return stat, fmt.Errorf("domain %s: %w", host, ErrNotFound)
	}
	if err != nil {
		return stat, fmt.Errorf("load domain %s: %w", host, err)
	}
	return stat, nil
}

// StoryKeywords lists the recorded keywords for a story in label order.
func (r *SQLRepository) StoryKeywords(ctx context.Context, storyID int64) ([]string, error) {
	query, args, err := r.builder.Select("keyword").
		From("keyword_mentions").
		Where(sq.Eq{"story_id": storyID}).
		OrderBy("keyword").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build keywords query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query keywords: %w", err)
	}
	defer rows.Close()

	keywords := []string{}
	for rows.Next() {
		var keyword string
		if err := rows.Scan(&keyword); err != nil {
			return nil, fmt.Errorf("scan keyword: %w", err)
		}
		keywords = append(keywords, keyword)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return keywords, nil
}

func nullString(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}
