package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"github.com/gratefulvortex/reviews-scraper/internal/browser"
	"github.com/gratefulvortex/reviews-scraper/internal/models"
	"github.com/gratefulvortex/reviews-scraper/internal/ratelimit"
	"github.com/gratefulvortex/reviews-scraper/internal/sink"
)

// SessionFactory opens a browser session for a site.
type SessionFactory func(ctx context.Context, site models.Site) (browser.Session, error)

// WriterFactory returns extra destinations for a run, next to the CSV file.
type WriterFactory func(runID, url string, site models.Site) []sink.Writer

// Publisher announces finished runs.
type Publisher interface {
	PublishRunCompleted(ctx context.Context, result *Result) error
}

type RunnerOptions struct {
	Policy         Policy
	Pacer          func() Pacer
	OutputDir      string
	DiagnosticsDir string
	// Reference anchors relative dates. Zero means the run start.
	Reference    time.Time
	ExtraWriters WriterFactory
	Publisher    Publisher
	Logger       *slog.Logger
}

type RunOptions struct {
	// Filters restricts the Amazon star filters. Empty means all.
	Filters []Filter
	// MaxPagesPerFilter overrides the policy when positive.
	MaxPagesPerFilter int
	// OutputPath overrides the generated CSV file name.
	OutputPath string
}

type Result struct {
	RunID            string       `json:"run_id"`
	Site             models.Site  `json:"site"`
	URL              string       `json:"url"`
	OutputPath       string       `json:"output_path"`
	Records          int          `json:"records"`
	Flushed          int          `json:"flushed"`
	Pages            int          `json:"pages"`
	Duplicates       int          `json:"duplicates"`
	Mismatches       int          `json:"mismatches"`
	ExtractionErrors int          `json:"extraction_errors"`
	ImageURL         string       `json:"image_url,omitempty"`
	Stats            models.Stats `json:"stats"`
	StartedAt        time.Time    `json:"started_at"`
	FinishedAt       time.Time    `json:"finished_at"`
	Error            string       `json:"error,omitempty"`
}

// Runner executes one scrape run end to end.
type Runner struct {
	sessions SessionFactory
	opts     RunnerOptions
	logger   *slog.Logger
	now      func() time.Time
}

func NewRunner(sessions SessionFactory, opts RunnerOptions) *Runner {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Pacer == nil {
		opts.Pacer = func() Pacer { return ratelimit.Nop{} }
	}
	if opts.OutputDir == "" {
		opts.OutputDir = "."
	}
	return &Runner{
		sessions: sessions,
		opts:     opts,
		logger:   opts.Logger.With("component", "runner"),
		now:      time.Now,
	}
}

// Run scrapes url. Whatever was collected is finalized to the output even
// when the run fails part way; the returned Result is never nil.
func (r *Runner) Run(ctx context.Context, url string, opts RunOptions) (result *Result, err error) {
	started := r.now()
	result = &Result{RunID: uuid.New().String(), URL: url, StartedAt: started}
	logger := r.logger.With("run_id", result.RunID)

	site, err := SiteForURL(url)
	if err != nil {
		result.Error = err.Error()
		result.FinishedAt = r.now()
		return result, err
	}
	result.Site = site

	policy := r.opts.Policy
	if opts.MaxPagesPerFilter > 0 {
		policy.MaxPagesPerFilter = opts.MaxPagesPerFilter
	}
	strategy, err := NewStrategy(site, policy, r.opts.Pacer(), r.opts.Logger)
	if err != nil {
		result.Error = err.Error()
		result.FinishedAt = r.now()
		return result, err
	}

	outputPath := opts.OutputPath
	if outputPath == "" {
		outputPath = filepath.Join(r.opts.OutputDir,
			fmt.Sprintf("%s_reviews_%s.csv", site, started.Format("20060102_150405")))
	}
	result.OutputPath = outputPath

	writers := sink.MultiWriter{sink.NewCSVWriter(outputPath, site)}
	if r.opts.ExtraWriters != nil {
		writers = append(writers, r.opts.ExtraWriters(result.RunID, url, site)...)
	}
	out := sink.New(writers, r.opts.Logger)
	if err := out.Init(ctx); err != nil {
		logger.Error("failed to initialize output", "error", err)
	}

	reference := r.opts.Reference
	if reference.IsZero() {
		reference = started
	}
	run := &Run{
		ID:        result.RunID,
		URL:       url,
		Site:      site,
		Filters:   opts.Filters,
		Reference: reference,
		Sink:      out,
	}

	logger.Info("starting run", "site", site, "url", url, "output", outputPath)

	defer func() {
		finalizeCtx := context.WithoutCancel(ctx)
		if ferr := out.Finalize(finalizeCtx); ferr != nil {
			logger.Error("final save failed", "error", ferr)
			err = errors.Join(err, ferr)
		}

		records := out.Records()
		result.Records = len(records)
		result.Flushed = out.Flushed()
		result.Pages = run.Pages
		result.Duplicates = run.Duplicates
		result.Mismatches = run.Mismatches
		result.ExtractionErrors = run.ExtractionErrors
		result.ImageURL = run.ImageURL
		result.Stats = models.Summarize(records)
		result.FinishedAt = r.now()
		if err != nil {
			result.Error = err.Error()
		}

		logStats(logger, result)

		if r.opts.Publisher != nil {
			if perr := r.opts.Publisher.PublishRunCompleted(finalizeCtx, result); perr != nil {
				logger.Warn("failed to publish run completion", "error", perr)
			}
		}
	}()

	err = r.scrape(ctx, strategy, run, logger)
	return result, err
}

func (r *Runner) scrape(ctx context.Context, strategy Strategy, run *Run, logger *slog.Logger) (err error) {
	defer func() {
		if p := recover(); p != nil {
			logger.Error("scrape panicked", "panic", p, "stack", string(debug.Stack()))
			err = fmt.Errorf("scrape panicked: %v", p)
		}
	}()

	session, err := r.sessions(ctx, run.Site)
	if err != nil {
		return fmt.Errorf("failed to open browser session: %w", err)
	}
	defer func() {
		if cerr := session.Close(); cerr != nil {
			logger.Warn("failed to close browser session", "error", cerr)
		}
	}()

	nav := browser.NewNavigator(session.Page(), strategy.Guards(session.SaveState), browser.NavigatorOptions{
		Timeout:        r.opts.Policy.NavigationTimeout,
		DiagnosticsDir: r.opts.DiagnosticsDir,
		Logger:         r.opts.Logger,
	})

	if err := strategy.Scrape(ctx, nav, run); err != nil {
		return fmt.Errorf("%s scrape failed: %w", run.Site, err)
	}
	return nil
}

func logStats(logger *slog.Logger, result *Result) {
	logger.Info("run finished",
		"records", result.Records,
		"pages", result.Pages,
		"duplicates", result.Duplicates,
		"mismatches", result.Mismatches,
		"extraction_errors", result.ExtractionErrors,
		"duration", result.FinishedAt.Sub(result.StartedAt).Round(time.Millisecond))

	for rating := 5; rating >= 1; rating-- {
		logger.Info("rating distribution", "stars", rating, "count", result.Stats.ByRating[rating])
	}
	if n := result.Stats.ByRating[models.UnknownRating]; n > 0 {
		logger.Info("rating distribution", "stars", "unknown", "count", n)
	}
	for field, n := range result.Stats.MissingField {
		logger.Info("missing field", "field", field, "count", n)
	}
}
