package base

import (
	"context"
	"database/sql"
	"fmt"
	"time"
	"unicode/utf8"

	"blog_migrate/internal/models"
	"blog_migrate/internal/remap"
	"blog_migrate/internal/seed"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgconn"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	mysqlDuplicateEntry = 1062
	pgUniqueViolation   = "23505"

	labelLength = 50
)

// RecordUpsertError is a single category or post that could not be written.
// It never stops the batch.
type RecordUpsertError struct {
	Entity string
	Label  string
	Err    error
}

func (e *RecordUpsertError) Error() string {
	return fmt.Sprintf("upsert %s %q: %v", e.Entity, e.Label, e.Err)
}

func (e *RecordUpsertError) Unwrap() error {
	return e.Err
}

// Duplicate reports whether the record clashed with a unique key other than
// the slug the upsert is keyed on.
func (e *RecordUpsertError) Duplicate() bool {
	var myErr *mysql.MySQLError
	if errors.As(e.Err, &myErr) {
		return myErr.Number == mysqlDuplicateEntry
	}
	var pgErr *pgconn.PgError
	if errors.As(e.Err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	return false
}

type Loader struct {
	db      *sql.DB
	dialect *Dialect
	remap   *remap.Remapper
	log     logrus.FieldLogger
	now     func() time.Time
}

func NewLoader(db *sql.DB, dialect *Dialect, r *remap.Remapper, log logrus.FieldLogger) *Loader {
	return &Loader{
		db:      db,
		dialect: dialect,
		remap:   r,
		log:     log,
		now:     time.Now,
	}
}

// Run upserts the categories, reads back their ids, upserts the posts and
// counts both tables. Record failures are reported in the outcomes; only
// transaction and query failures are returned as errors.
func (l *Loader) Run(ctx context.Context, data *seed.Data) (*models.Report, error) {
	report := &models.Report{}
	var err error

	l.log.Info("upserting categories")
	report.Categories, err = l.UpsertCategories(ctx, data.Categories)
	if err != nil {
		return report, err
	}

	ids, err := l.CategoryIDs(ctx)
	if err != nil {
		return report, err
	}

	l.log.Info("upserting posts")
	report.Posts, err = l.UpsertPosts(ctx, data.Posts, ids)
	if err != nil {
		return report, err
	}

	report.CategoryCount, report.PostCount, err = l.Counts(ctx)
	return report, err
}

func (l *Loader) UpsertCategories(ctx context.Context, categories []models.Category) ([]models.Outcome, error) {
	now := l.now()
	return l.phase(ctx, "categories", len(categories), func(tx *sql.Tx, i int) models.Outcome {
		c := categories[i]
		out := models.Outcome{Entity: models.EntityCategory, Slug: c.Slug, Label: c.Name}

		if err := l.exec(ctx, tx, l.dialect.UpsertCategory, c.Name, c.Slug, c.Description, now); err != nil {
			out.Err = &RecordUpsertError{Entity: out.Entity, Label: out.Label, Err: err}
		}
		return out
	})
}

// CategoryIDs maps every persisted category slug to its id.
func (l *Loader) CategoryIDs(ctx context.Context) (map[string]int64, error) {
	rows, err := l.db.QueryContext(ctx, l.dialect.SelectCategories)
	if err != nil {
		return nil, errors.Wrap(err, "select categories")
	}
	defer rows.Close()

	ids := map[string]int64{}
	for rows.Next() {
		var (
			id   int64
			slug string
		)
		if err := rows.Scan(&id, &slug); err != nil {
			return nil, errors.Wrap(err, "scan category")
		}
		ids[slug] = id
	}
	return ids, errors.Wrap(rows.Err(), "read categories")
}

func (l *Loader) UpsertPosts(ctx context.Context, posts []models.Post, categoryIDs map[string]int64) ([]models.Outcome, error) {
	now := l.now()
	return l.phase(ctx, "posts", len(posts), func(tx *sql.Tx, i int) models.Outcome {
		p := posts[i]
		out := models.Outcome{Entity: models.EntityPost, Slug: p.Slug, Label: truncate(p.Title, labelLength)}

		slug, mapped := l.remap.Resolve(p.LegacyCategoryID)
		if !mapped {
			l.log.WithFields(logrus.Fields{
				"post":               p.Slug,
				"legacy_category_id": p.LegacyCategoryID,
				"fallback":           slug,
			}).Warn("legacy category not mapped, using fallback")
		}
		categoryID, ok := categoryIDs[slug]
		if !ok {
			out.Err = &RecordUpsertError{Entity: out.Entity, Label: out.Label, Err: errors.Errorf("category %q not found", slug)}
			return out
		}

		err := l.exec(ctx, tx, l.dialect.UpsertPost,
			p.Title, p.Slug, p.Excerpt, p.Content, categoryID, p.Published, now, now, now)
		if err != nil {
			out.Err = &RecordUpsertError{Entity: out.Entity, Label: out.Label, Err: err}
		}
		return out
	})
}

// Counts returns the total rows in categories and posts.
func (l *Loader) Counts(ctx context.Context) (categories, posts int64, err error) {
	if err = l.db.QueryRowContext(ctx, l.dialect.CountCategories).Scan(&categories); err != nil {
		return 0, 0, errors.Wrap(err, "count categories")
	}
	if err = l.db.QueryRowContext(ctx, l.dialect.CountPosts).Scan(&posts); err != nil {
		return 0, 0, errors.Wrap(err, "count posts")
	}
	return
}

// phase runs n record upserts inside one transaction and commits it.
func (l *Loader) phase(ctx context.Context, name string, n int, upsert func(tx *sql.Tx, i int) models.Outcome) ([]models.Outcome, error) {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "begin %s", name)
	}

	outcomes := make([]models.Outcome, 0, n)
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			tx.Rollback()
			return outcomes, errors.Wrapf(err, "%s interrupted", name)
		}

		out := upsert(tx, i)
		outcomes = append(outcomes, out)

		entry := l.log.WithField("slug", out.Slug)
		if out.OK() {
			entry.Infof("ok %s", out.Label)
		} else {
			entry.WithError(out.Err).WithField("duplicate", duplicate(out.Err)).Warnf("failed %s", truncate(out.Label, 30))
		}
	}

	if err := tx.Commit(); err != nil {
		return outcomes, errors.Wrapf(err, "commit %s", name)
	}
	return outcomes, nil
}

func (l *Loader) exec(ctx context.Context, tx *sql.Tx, query string, args ...interface{}) error {
	if !l.dialect.Savepoints {
		_, err := tx.ExecContext(ctx, query, args...)
		return err
	}

	if _, err := tx.ExecContext(ctx, "SAVEPOINT record"); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		if _, rbErr := tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT record"); rbErr != nil {
			l.log.WithError(rbErr).Error("rollback to savepoint")
		}
		return err
	}
	_, err := tx.ExecContext(ctx, "RELEASE SAVEPOINT record")
	return err
}

func duplicate(err error) bool {
	var upsertErr *RecordUpsertError
	return errors.As(err, &upsertErr) && upsertErr.Duplicate()
}

// Summarize logs the completion summary of a run.
func Summarize(log logrus.FieldLogger, report *models.Report) {
	failedCategories := models.Failed(report.Categories)
	failedPosts := models.Failed(report.Posts)

	log.WithFields(logrus.Fields{
		"categories_upserted": len(report.Categories) - len(failedCategories),
		"categories_failed":   len(failedCategories),
		"posts_upserted":      len(report.Posts) - len(failedPosts),
		"posts_failed":        len(failedPosts),
	}).Info("migration finished")
	log.Infof("categories: %d", report.CategoryCount)
	log.Infof("posts: %d", report.PostCount)

	for _, o := range append(failedCategories, failedPosts...) {
		log.WithField("slug", o.Slug).Warn(o.Err.Error())
	}
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}
