package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/gratefulvortex/reviews-scraper/internal/models"
	"github.com/gratefulvortex/reviews-scraper/internal/queue"
	"github.com/gratefulvortex/reviews-scraper/internal/scraper"
)

var (
	ErrJobNotFound = errors.New("job not found")
	ErrInvalidJob  = errors.New("invalid job")
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Job is one requested scrape and its outcome.
type Job struct {
	ID          string      `json:"id"`
	URL         string      `json:"url"`
	Site        models.Site `json:"site"`
	Filters     []string    `json:"filters,omitempty"`
	MaxPages    int         `json:"max_pages,omitempty"`
	Status      Status      `json:"status"`
	RunID       string      `json:"run_id,omitempty"`
	Records     int         `json:"records"`
	Pages       int         `json:"pages"`
	OutputPath  string      `json:"output_path,omitempty"`
	ImageURL    string      `json:"image_url,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	StartedAt   *time.Time  `json:"started_at,omitempty"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
	Error       string      `json:"error,omitempty"`
}

// Stats counts jobs by status.
type Stats struct {
	TotalJobs     int `json:"total_jobs"`
	PendingJobs   int `json:"pending_jobs"`
	RunningJobs   int `json:"running_jobs"`
	CompletedJobs int `json:"completed_jobs"`
	FailedJobs    int `json:"failed_jobs"`
	QueuedTasks   int `json:"queued_tasks"`
	TotalReviews  int `json:"total_reviews"`
}

// Runner executes a scrape; *scraper.Runner satisfies it.
type Runner interface {
	Run(ctx context.Context, url string, opts scraper.RunOptions) (*scraper.Result, error)
}

type Manager struct {
	store  Store
	queue  queue.Queue
	runner Runner
	logger *slog.Logger
	now    func() time.Time
}

func NewManager(store Store, q queue.Queue, runner Runner, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:  store,
		queue:  q,
		runner: runner,
		logger: logger.With("component", "job_manager"),
		now:    time.Now,
	}
}

// CreateJob validates the request, records a pending job and queues it.
func (m *Manager) CreateJob(ctx context.Context, url string, filters []string, maxPages int) (*Job, error) {
	site, err := scraper.SiteForURL(url)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJob, err)
	}
	if _, err := scraper.ParseFilters(filters); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJob, err)
	}
	if maxPages < 0 {
		return nil, fmt.Errorf("%w: max_pages must not be negative", ErrInvalidJob)
	}

	job := &Job{
		ID:        uuid.New().String(),
		URL:       url,
		Site:      site,
		Filters:   filters,
		MaxPages:  maxPages,
		Status:    StatusPending,
		CreatedAt: m.now(),
	}
	if err := m.store.Save(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	err = m.queue.Push(&queue.Task{
		ID:        job.ID,
		URL:       job.URL,
		Filters:   job.Filters,
		MaxPages:  job.MaxPages,
		CreatedAt: job.CreatedAt,
	})
	if err != nil {
		m.finish(ctx, job, nil, err)
		return nil, fmt.Errorf("failed to queue job: %w", err)
	}

	m.logger.Info("job created", "id", job.ID, "url", url, "site", site)
	return job, nil
}

func (m *Manager) GetJob(ctx context.Context, id string) (*Job, error) {
	return m.store.Get(ctx, id)
}

func (m *Manager) ListJobs(ctx context.Context) ([]*Job, error) {
	return m.store.List(ctx, 100)
}

func (m *Manager) Stats(ctx context.Context) (*Stats, error) {
	jobs, err := m.store.List(ctx, 0)
	if err != nil {
		return nil, err
	}
	s := &Stats{TotalJobs: len(jobs), QueuedTasks: m.queue.Size()}
	for _, j := range jobs {
		switch j.Status {
		case StatusPending:
			s.PendingJobs++
		case StatusRunning:
			s.RunningJobs++
		case StatusCompleted:
			s.CompletedJobs++
		case StatusFailed:
			s.FailedJobs++
		}
		s.TotalReviews += j.Records
	}
	return s, nil
}

func (m *Manager) finish(ctx context.Context, job *Job, result *scraper.Result, runErr error) {
	completed := m.now()
	job.CompletedAt = &completed
	if result != nil {
		job.RunID = result.RunID
		job.Records = result.Records
		job.Pages = result.Pages
		job.OutputPath = result.OutputPath
		job.ImageURL = result.ImageURL
	}
	if runErr != nil {
		job.Status = StatusFailed
		job.Error = runErr.Error()
	} else {
		job.Status = StatusCompleted
	}
	if err := m.store.Save(context.WithoutCancel(ctx), job); err != nil {
		m.logger.Error("failed to update job", "id", job.ID, "error", err)
	}
}
