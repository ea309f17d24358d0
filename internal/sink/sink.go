// Package sink is the single dedup gate between extraction and durable
// storage. Records are admitted once per identity, flushed incrementally as
// append-only batches and rewritten in full exactly once at the end of a run.
package sink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gratefulvortex/reviews-scraper/internal/models"
)

type Admission int

const (
	Admitted Admission = iota
	Duplicate
)

func (a Admission) String() string {
	if a == Duplicate {
		return "duplicate"
	}
	return "new"
}

// Writer is a durable destination for reviews.
type Writer interface {
	// Init prepares an empty destination.
	Init(ctx context.Context) error
	// Append adds rows without touching rows written earlier.
	Append(ctx context.Context, reviews []*models.Review) error
	// Replace atomically swaps the destination for exactly reviews.
	Replace(ctx context.Context, reviews []*models.Review) error
}

// PersistenceError reports a failed write. Records stay pending in memory
// so a later flush or finalize can retry them.
type PersistenceError struct {
	Op      string
	Pending int
	Err     error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist %s (%d records pending): %v", e.Op, e.Pending, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

type Sink struct {
	mu      sync.Mutex
	targets []*target
	seen    map[string]struct{}
	records []*models.Review
	logger  *slog.Logger
}

// target is one destination and how far into records it has been written.
type target struct {
	writer  Writer
	flushed int
}

// New builds a sink over w. A MultiWriter is split so that each of its
// writers keeps its own flush position.
func New(w Writer, logger *slog.Logger) *Sink {
	if logger == nil {
		logger = slog.Default()
	}
	var writers []Writer
	if m, ok := w.(MultiWriter); ok {
		writers = m
	} else {
		writers = []Writer{w}
	}
	targets := make([]*target, 0, len(writers))
	for _, wr := range writers {
		targets = append(targets, &target{writer: wr})
	}
	return &Sink{
		targets: targets,
		seen:    make(map[string]struct{}),
		logger:  logger.With("component", "sink"),
	}
}

func (s *Sink) Init(ctx context.Context) error {
	var errs []error
	for _, t := range s.targets {
		errs = append(errs, t.writer.Init(ctx))
	}
	if err := errors.Join(errs...); err != nil {
		return &PersistenceError{Op: "init", Err: err}
	}
	return nil
}

// Admit records r unless a record with the same ID was admitted earlier.
func (s *Sink) Admit(r *models.Review) Admission {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.seen[r.ID]; ok {
		return Duplicate
	}
	s.seen[r.ID] = struct{}{}
	s.records = append(s.records, r)
	return Admitted
}

// FlushNew appends to each writer the records it has not received yet and
// returns how many records became persisted everywhere.
func (s *Sink) FlushNew(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	before := s.flushedLocked()
	if before == len(s.records) {
		return 0, nil
	}

	var errs []error
	for _, t := range s.targets {
		pending := s.records[t.flushed:]
		if len(pending) == 0 {
			continue
		}
		batch := make([]*models.Review, len(pending))
		copy(batch, pending)
		if err := t.writer.Append(ctx, batch); err != nil {
			errs = append(errs, err)
			continue
		}
		t.flushed += len(batch)
	}

	after := s.flushedLocked()
	if err := errors.Join(errs...); err != nil {
		return after - before, &PersistenceError{Op: "append", Pending: len(s.records) - after, Err: err}
	}

	s.logger.Info("incremental save", "new", after-before, "total", len(s.records))
	return after - before, nil
}

// Finalize replaces every destination with the complete deduplicated set.
func (s *Sink) Finalize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	all := make([]*models.Review, len(s.records))
	copy(all, s.records)

	var errs []error
	for _, t := range s.targets {
		if err := t.writer.Replace(ctx, all); err != nil {
			errs = append(errs, err)
			continue
		}
		t.flushed = len(all)
	}
	if err := errors.Join(errs...); err != nil {
		return &PersistenceError{Op: "replace", Pending: len(all) - s.flushedLocked(), Err: err}
	}

	s.logger.Info("final save", "total", len(all))
	return nil
}

// flushedLocked is the number of records every writer has received.
func (s *Sink) flushedLocked() int {
	n := len(s.records)
	for _, t := range s.targets {
		n = min(n, t.flushed)
	}
	return n
}

// Records returns the admitted records in admission order.
func (s *Sink) Records() []*models.Review {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.Review, len(s.records))
	copy(out, s.records)
	return out
}

func (s *Sink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Flushed is the number of records written to every destination.
func (s *Sink) Flushed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushedLocked()
}

// MultiWriter fans writes out to every writer and joins their errors. Given
// to New, its writers are tracked one by one.
type MultiWriter []Writer

func (m MultiWriter) Init(ctx context.Context) error {
	var errs []error
	for _, w := range m {
		errs = append(errs, w.Init(ctx))
	}
	return errors.Join(errs...)
}

func (m MultiWriter) Append(ctx context.Context, reviews []*models.Review) error {
	var errs []error
	for _, w := range m {
		errs = append(errs, w.Append(ctx, reviews))
	}
	return errors.Join(errs...)
}

func (m MultiWriter) Replace(ctx context.Context, reviews []*models.Review) error {
	var errs []error
	for _, w := range m {
		errs = append(errs, w.Replace(ctx, reviews))
	}
	return errors.Join(errs...)
}
