package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/gratefulvortex/reviews-scraper/internal/browser"
	"github.com/gratefulvortex/reviews-scraper/internal/config"
	"github.com/gratefulvortex/reviews-scraper/internal/dom"
	"github.com/gratefulvortex/reviews-scraper/internal/models"
	"github.com/gratefulvortex/reviews-scraper/internal/selector"
	"github.com/gratefulvortex/reviews-scraper/internal/sink"
)

var (
	ErrUnsupportedSite = errors.New("unsupported site")
	ErrNoReviewSection = errors.New("review section not found")
	errEmptyBlock      = errors.New("block has no review fields")
)

// ExtractionError is a failure to read one review element. The element is
// skipped; the page carries on.
type ExtractionError struct {
	Index int
	Err   error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract element %d: %v", e.Index, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// Policy holds the tuning knobs of a run.
type Policy struct {
	Workers           int
	NavigationTimeout time.Duration
	SelectorTimeout   time.Duration
	LoginTimeout      time.Duration
	CaptchaTimeout    time.Duration
	PollInterval      time.Duration
	ScrollPasses      int
	ScrollDelay       time.Duration
	MismatchThreshold int
	MaxPagesPerFilter int
	PaginationRetries int
	PaginationBackoff time.Duration
	MaxLoadMore       int
	MaxEmptyBatches   int
	LoadMoreTimeout   time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		Workers:           4,
		NavigationTimeout: 60 * time.Second,
		SelectorTimeout:   10 * time.Second,
		LoginTimeout:      120 * time.Second,
		CaptchaTimeout:    120 * time.Second,
		PollInterval:      time.Second,
		ScrollPasses:      5,
		ScrollDelay:       2 * time.Second,
		MismatchThreshold: 5,
		MaxPagesPerFilter: 100,
		PaginationRetries: 3,
		PaginationBackoff: 5 * time.Second,
		MaxLoadMore:       200,
		MaxEmptyBatches:   5,
		LoadMoreTimeout:   10 * time.Second,
	}
}

func PolicyFromConfig(c config.ScraperConfig) Policy {
	return Policy{
		Workers:           c.Workers,
		NavigationTimeout: c.NavigationTimeout,
		SelectorTimeout:   c.SelectorTimeout,
		LoginTimeout:      c.LoginTimeout,
		CaptchaTimeout:    c.CaptchaTimeout,
		PollInterval:      c.PollInterval,
		ScrollPasses:      c.ScrollPasses,
		ScrollDelay:       c.ScrollDelay,
		MismatchThreshold: c.MismatchThreshold,
		MaxPagesPerFilter: c.MaxPagesPerFilter,
		PaginationRetries: c.PaginationRetries,
		PaginationBackoff: c.PaginationBackoff,
		MaxLoadMore:       c.MaxLoadMore,
		MaxEmptyBatches:   c.MaxEmptyBatches,
		LoadMoreTimeout:   c.LoadMoreTimeout,
	}
}

// Pacer inserts randomized pauses between page actions.
type Pacer interface {
	Pause(ctx context.Context) error
}

// Run is the mutable state of one scrape invocation. Only the strategy's
// control goroutine touches it.
type Run struct {
	ID        string
	URL       string
	Site      models.Site
	Filters   []Filter
	Reference time.Time
	Sink      *sink.Sink
	ImageURL  string

	Pages            int
	Duplicates       int
	Mismatches       int
	ExtractionErrors int
}

// Strategy is one site's navigate-and-paginate state machine.
type Strategy interface {
	Site() models.Site
	Guards(onLogin func() error) []browser.Guard
	Scrape(ctx context.Context, nav *browser.Navigator, run *Run) error
}

// SiteForURL picks the site by substring match on the URL.
func SiteForURL(rawURL string) (models.Site, error) {
	lower := strings.ToLower(rawURL)
	switch {
	case strings.Contains(lower, "amazon"):
		return models.SiteAmazon, nil
	case strings.Contains(lower, "influenster"):
		return models.SiteInfluenster, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupportedSite, rawURL)
}

func NewStrategy(site models.Site, policy Policy, pacer Pacer, logger *slog.Logger) (Strategy, error) {
	switch site {
	case models.SiteAmazon:
		return NewAmazonStrategy(policy, pacer, logger), nil
	case models.SiteInfluenster:
		return NewInfluensterStrategy(policy, pacer, logger), nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedSite, site)
}

type extraction[T any] struct {
	Value T
	Err   error
}

// extractAll runs fn over elements on at most workers goroutines. Results
// keep the elements' order; a failing or panicking element only affects its
// own slot.
func extractAll[T any](ctx context.Context, workers int, elements []dom.Element, fn func(dom.Element) (T, error)) []extraction[T] {
	out := make([]extraction[T], len(elements))
	if workers < 1 {
		workers = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, el := range elements {
		i, el := i, el
		g.Go(func() error {
			defer func() {
				if p := recover(); p != nil {
					out[i].Err = &ExtractionError{Index: i, Err: fmt.Errorf("panic: %v", p)}
				}
			}()
			if err := gctx.Err(); err != nil {
				out[i].Err = &ExtractionError{Index: i, Err: err}
				return nil
			}
			v, err := fn(el)
			if err != nil {
				out[i].Err = &ExtractionError{Index: i, Err: err}
				return nil
			}
			out[i].Value = v
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// waitAny waits for each rule of chain in turn and returns the first that
// appears.
func waitAny(ctx context.Context, page dom.Page, chain selector.Chain, timeout time.Duration) (dom.Element, string, bool) {
	for _, rule := range chain.Rules {
		if ctx.Err() != nil {
			return nil, "", false
		}
		el, err := page.WaitForSelector(ctx, rule.String(), timeout)
		if err == nil && el != nil {
			return el, rule.String(), true
		}
	}
	return nil, "", false
}

func logMissing(logger *slog.Logger, r *models.Review) {
	if missing := r.MissingFields(); len(missing) > 0 {
		logger.Warn("review has missing fields", "id", r.ID, "missing", missing)
	}
}

func flush(ctx context.Context, run *Run, logger *slog.Logger) {
	if _, err := run.Sink.FlushNew(ctx); err != nil {
		logger.Error("incremental save failed", "error", err)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
