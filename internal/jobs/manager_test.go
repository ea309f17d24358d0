package jobs

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/gratefulvortex/reviews-scraper/internal/models"
	"github.com/gratefulvortex/reviews-scraper/internal/queue"
	"github.com/gratefulvortex/reviews-scraper/internal/scraper"
)

const productURL = "https://www.amazon.com/product-reviews/B0TESTKTL"

type MockRunner struct {
	mock.Mock
}

func (m *MockRunner) Run(ctx context.Context, url string, opts scraper.RunOptions) (*scraper.Result, error) {
	args := m.Called(ctx, url, opts)
	var result *scraper.Result
	if r := args.Get(0); r != nil {
		result = r.(*scraper.Result)
	}
	return result, args.Error(1)
}

func newTestManager(runner Runner, maxQueue int) (*Manager, *queue.InMemoryQueue) {
	q := queue.NewInMemoryQueue(maxQueue)
	return NewManager(NewMemoryStore(), q, runner, slog.Default()), q
}

func TestManager_CreateJobValidation(t *testing.T) {
	ctx := context.Background()
	m, q := newTestManager(new(MockRunner), 10)

	tests := []struct {
		name     string
		url      string
		filters  []string
		maxPages int
	}{
		{"unsupported site", "https://example.com/item", nil, 0},
		{"unknown filter", productURL, []string{"6"}, 0},
		{"negative pages", productURL, nil, -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.CreateJob(ctx, tt.url, tt.filters, tt.maxPages)
			assert.ErrorIs(t, err, ErrInvalidJob)
		})
	}
	assert.Equal(t, 0, q.Size())
}

func TestManager_CreateJobQueues(t *testing.T) {
	ctx := context.Background()
	m, q := newTestManager(new(MockRunner), 10)

	job, err := m.CreateJob(ctx, productURL, []string{"5"}, 3)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, job.Status)
	assert.Equal(t, models.SiteAmazon, job.Site)
	assert.Equal(t, 1, q.Size())

	stored, err := m.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.URL, stored.URL)

	_, err = m.GetJob(ctx, "missing")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestManager_CreateJobQueueFull(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(new(MockRunner), 1)

	_, err := m.CreateJob(ctx, productURL, nil, 0)
	require.NoError(t, err)

	_, err = m.CreateJob(ctx, productURL, nil, 0)
	assert.ErrorIs(t, err, queue.ErrQueueFull)

	stats, err := m.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalJobs)
	assert.Equal(t, 1, stats.PendingJobs)
	assert.Equal(t, 1, stats.FailedJobs)
}

func TestManager_WorkerRunsJobs(t *testing.T) {
	runner := new(MockRunner)
	m, q := newTestManager(runner, 10)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runner.On("Run", mock.Anything, productURL, mock.MatchedBy(func(opts scraper.RunOptions) bool {
		return len(opts.Filters) == 1 && opts.Filters[0].Stars == 5 && opts.MaxPagesPerFilter == 2
	})).Return(&scraper.Result{RunID: "run-1", Records: 17, Pages: 2, OutputPath: "out.csv"}, nil).Once()

	failURL := "https://www.influenster.com/reviews/x/reviews"
	runner.On("Run", mock.Anything, failURL, mock.Anything).
		Return(&scraper.Result{RunID: "run-2"}, errors.New("captcha not solved")).Once()

	ok, err := m.CreateJob(ctx, productURL, []string{"5"}, 2)
	require.NoError(t, err)
	failed, err := m.CreateJob(ctx, failURL, nil, 0)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		m.StartWorker(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		j1, _ := m.GetJob(context.Background(), ok.ID)
		j2, _ := m.GetJob(context.Background(), failed.ID)
		return j1.Status == StatusCompleted && j2.Status == StatusFailed
	}, 2*time.Second, 10*time.Millisecond)

	j1, err := m.GetJob(context.Background(), ok.ID)
	require.NoError(t, err)
	assert.Equal(t, 17, j1.Records)
	assert.Equal(t, "run-1", j1.RunID)
	assert.NotNil(t, j1.StartedAt)
	assert.NotNil(t, j1.CompletedAt)

	j2, err := m.GetJob(context.Background(), failed.ID)
	require.NoError(t, err)
	assert.Equal(t, "captcha not solved", j2.Error)

	require.NoError(t, q.Close())
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop after queue close")
	}

	stats, err := m.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 17, stats.TotalReviews)
	runner.AssertExpectations(t)
}

func TestMemoryStore_ListNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"old", "mid", "new"} {
		require.NoError(t, s.Save(ctx, &Job{ID: id, CreatedAt: base.Add(time.Duration(i) * time.Hour)}))
	}

	jobs, err := s.List(ctx, 2)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "new", jobs[0].ID)
	assert.Equal(t, "mid", jobs[1].ID)

	jobs[0].Status = StatusFailed
	again, err := s.Get(ctx, "new")
	require.NoError(t, err)
	assert.Empty(t, again.Status)
}
