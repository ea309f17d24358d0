package database

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"

	"github.com/gratefulvortex/reviews-scraper/internal/models"
)

const reviewsSchema = `
CREATE TABLE IF NOT EXISTS reviews (
	seq         BIGSERIAL,
	run_id      TEXT        NOT NULL,
	review_id   TEXT        NOT NULL,
	site        TEXT        NOT NULL,
	source_url  TEXT        NOT NULL,
	title       TEXT,
	rating      SMALLINT,
	review_date TEXT,
	body        TEXT,
	verified    BOOLEAN,
	helpful     TEXT,
	username    TEXT,
	pros        TEXT,
	cons        TEXT,
	filter      TEXT,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (run_id, review_id)
);
CREATE INDEX IF NOT EXISTS idx_reviews_source_url ON reviews (source_url);
`

const insertReview = `
INSERT INTO reviews
	(run_id, review_id, site, source_url, title, rating, review_date, body,
	 verified, helpful, username, pros, cons, filter)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
ON CONFLICT (run_id, review_id) DO NOTHING`

// ReviewRepository stores the reviews of one run. It satisfies sink.Writer.
type ReviewRepository struct {
	db        *DB
	runID     string
	sourceURL string
	logger    *slog.Logger
}

func NewReviewRepository(db *DB, runID, sourceURL string, logger *slog.Logger) *ReviewRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReviewRepository{
		db:        db,
		runID:     runID,
		sourceURL: sourceURL,
		logger:    logger.With("component", "review_repository", "run_id", runID),
	}
}

func (r *ReviewRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, reviewsSchema); err != nil {
		return fmt.Errorf("failed to create reviews schema: %w", err)
	}
	return nil
}

func (r *ReviewRepository) Init(ctx context.Context) error {
	if err := r.EnsureSchema(ctx); err != nil {
		return err
	}
	if _, err := r.db.Exec(ctx, `DELETE FROM reviews WHERE run_id = $1`, r.runID); err != nil {
		return fmt.Errorf("failed to reset run rows: %w", err)
	}
	return nil
}

func (r *ReviewRepository) Append(ctx context.Context, reviews []*models.Review) error {
	if len(reviews) == 0 {
		return nil
	}
	return r.db.Transaction(ctx, func(tx pgx.Tx) error {
		return r.insert(ctx, tx, reviews)
	})
}

// Replace swaps the run's rows for reviews inside one transaction.
func (r *ReviewRepository) Replace(ctx context.Context, reviews []*models.Review) error {
	return r.db.Transaction(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM reviews WHERE run_id = $1`, r.runID); err != nil {
			return fmt.Errorf("failed to clear run rows: %w", err)
		}
		if err := r.insert(ctx, tx, reviews); err != nil {
			return err
		}
		r.logger.Info("reviews replaced", "count", len(reviews))
		return nil
	})
}

func (r *ReviewRepository) insert(ctx context.Context, tx pgx.Tx, reviews []*models.Review) error {
	if len(reviews) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, rv := range reviews {
		batch.Queue(insertReview, r.reviewArgs(rv)...)
	}

	br := tx.SendBatch(ctx, batch)
	for i := range reviews {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("failed to insert review %d: %w", i, err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("failed to close batch: %w", err)
	}
	return nil
}

func (r *ReviewRepository) reviewArgs(rv *models.Review) []any {
	var rating *int
	if rv.Rating != models.UnknownRating {
		v := rv.Rating
		rating = &v
	}
	return []any{
		r.runID, rv.ID, string(rv.Site), r.sourceURL, rv.Title, rating, rv.Date, rv.Text,
		rv.Verified, rv.Helpful, rv.Username, rv.Pros, rv.Cons, rv.Filter,
	}
}

// Count returns the number of stored reviews for the run.
func (r *ReviewRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM reviews WHERE run_id = $1`, r.runID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count reviews: %w", err)
	}
	return n, nil
}
