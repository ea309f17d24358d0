package jobs

import (
	"context"
	"errors"

	"github.com/gratefulvortex/reviews-scraper/internal/queue"
	"github.com/gratefulvortex/reviews-scraper/internal/scraper"
)

// StartWorker runs queued jobs one at a time until ctx ends or the queue is
// closed. A single browser session is driven at a time.
func (m *Manager) StartWorker(ctx context.Context) {
	m.logger.Info("job worker started")

	for {
		task, err := m.queue.Pop(ctx)
		if err != nil {
			if errors.Is(err, queue.ErrQueueClosed) || ctx.Err() != nil {
				m.logger.Info("job worker stopping")
				return
			}
			m.logger.Error("failed to take next job", "error", err)
			continue
		}
		m.processTask(ctx, task)
	}
}

func (m *Manager) processTask(ctx context.Context, task *queue.Task) {
	job, err := m.store.Get(ctx, task.ID)
	if err != nil {
		m.logger.Error("queued job missing from store", "id", task.ID, "error", err)
		return
	}

	started := m.now()
	job.Status = StatusRunning
	job.StartedAt = &started
	if err := m.store.Save(ctx, job); err != nil {
		m.logger.Error("failed to update job status", "id", job.ID, "error", err)
	}
	m.logger.Info("processing job", "id", job.ID, "url", job.URL)

	filters, err := scraper.ParseFilters(task.Filters)
	if err != nil {
		m.finish(ctx, job, nil, err)
		return
	}

	result, err := m.runner.Run(ctx, task.URL, scraper.RunOptions{
		Filters:           filters,
		MaxPagesPerFilter: task.MaxPages,
	})
	m.finish(ctx, job, result, err)

	if err != nil {
		m.logger.Error("job failed", "id", job.ID, "error", err)
		return
	}
	m.logger.Info("job completed", "id", job.ID, "records", job.Records)
}
