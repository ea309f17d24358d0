package jobs

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/jackc/pgx/v5"

	"github.com/gratefulvortex/reviews-scraper/internal/database"
	"github.com/gratefulvortex/reviews-scraper/internal/models"
)

// Store persists jobs. Implementations return copies so callers never share
// state with the store.
type Store interface {
	Save(ctx context.Context, job *Job) error
	Get(ctx context.Context, id string) (*Job, error)
	// List returns jobs newest first. limit <= 0 returns all.
	List(ctx context.Context, limit int) ([]*Job, error)
}

type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[string]*Job
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]*Job)}
}

func (s *MemoryStore) Save(_ context.Context, job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = cloneJob(job)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	return cloneJob(job), nil
}

func (s *MemoryStore) List(_ context.Context, limit int) ([]*Job, error) {
	s.mu.RLock()
	out := make([]*Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, cloneJob(j))
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func cloneJob(j *Job) *Job {
	c := *j
	c.Filters = append([]string(nil), j.Filters...)
	return &c
}

const jobsSchema = `
CREATE TABLE IF NOT EXISTS scraper_jobs (
	id           TEXT PRIMARY KEY,
	url          TEXT        NOT NULL,
	site         TEXT        NOT NULL,
	filters      TEXT[]      NOT NULL DEFAULT '{}',
	max_pages    INTEGER     NOT NULL DEFAULT 0,
	status       TEXT        NOT NULL,
	run_id       TEXT        NOT NULL DEFAULT '',
	records      INTEGER     NOT NULL DEFAULT 0,
	pages        INTEGER     NOT NULL DEFAULT 0,
	output_path  TEXT        NOT NULL DEFAULT '',
	image_url    TEXT        NOT NULL DEFAULT '',
	created_at   TIMESTAMPTZ NOT NULL,
	started_at   TIMESTAMPTZ,
	completed_at TIMESTAMPTZ,
	error        TEXT        NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_scraper_jobs_created_at ON scraper_jobs (created_at DESC);
`

const jobColumns = `id, url, site, filters, max_pages, status, run_id, records, pages,
	output_path, image_url, created_at, started_at, completed_at, error`

// PostgresStore keeps jobs in the scraper_jobs table.
type PostgresStore struct {
	db *database.DB
}

func NewPostgresStore(db *database.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, jobsSchema); err != nil {
		return fmt.Errorf("failed to create jobs schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Save(ctx context.Context, job *Job) error {
	query := `
		INSERT INTO scraper_jobs (` + jobColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			run_id = EXCLUDED.run_id,
			records = EXCLUDED.records,
			pages = EXCLUDED.pages,
			output_path = EXCLUDED.output_path,
			image_url = EXCLUDED.image_url,
			started_at = EXCLUDED.started_at,
			completed_at = EXCLUDED.completed_at,
			error = EXCLUDED.error
	`
	filters := job.Filters
	if filters == nil {
		filters = []string{}
	}
	_, err := s.db.Exec(ctx, query,
		job.ID, job.URL, string(job.Site), filters, job.MaxPages, string(job.Status),
		job.RunID, job.Records, job.Pages, job.OutputPath, job.ImageURL,
		job.CreatedAt, job.StartedAt, job.CompletedAt, job.Error)
	if err != nil {
		return fmt.Errorf("failed to save job: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRow(ctx, `SELECT `+jobColumns+` FROM scraper_jobs WHERE id = $1`, id)
	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

func (s *PostgresStore) List(ctx context.Context, limit int) ([]*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM scraper_jobs ORDER BY created_at DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func scanJob(row pgx.Row) (*Job, error) {
	var (
		job          Job
		site, status string
	)
	err := row.Scan(&job.ID, &job.URL, &site, &job.Filters, &job.MaxPages, &status,
		&job.RunID, &job.Records, &job.Pages, &job.OutputPath, &job.ImageURL,
		&job.CreatedAt, &job.StartedAt, &job.CompletedAt, &job.Error)
	if err != nil {
		return nil, err
	}
	job.Site = models.Site(site)
	job.Status = Status(status)
	return &job, nil
}
