package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gratefulvortex/reviews-scraper/internal/browser"
	"github.com/gratefulvortex/reviews-scraper/internal/dom"
	"github.com/gratefulvortex/reviews-scraper/internal/models"
	"github.com/gratefulvortex/reviews-scraper/internal/parser"
	"github.com/gratefulvortex/reviews-scraper/internal/ratelimit"
	"github.com/gratefulvortex/reviews-scraper/internal/selector"
	"github.com/gratefulvortex/reviews-scraper/internal/sink"
)

const (
	amazonReviewList   = "#cm_cr-review_list"
	amazonSortDropdown = "select#sort-order-dropdown"
	showAllRef         = "ref=cm_cr_dp_d_show_all_btm"
	starFilterRef      = "ref=cm_cr_arp_d_viewopt_sr"
)

var (
	amazonReviewSection = selector.NewChain("review_section",
		selector.CSS(amazonReviewList),
		selector.CSS("div[data-hook='reviews-medley-footer']"),
		selector.XPath("//div[contains(@class, 'review')]"),
		selector.XPath("//div[contains(@id, 'customer_review-')]"),
	)
	amazonReviewBlocks = selector.NewChain("review",
		selector.CSS("div[data-hook='review'][id^='customer_review-']"),
		selector.CSS("div.a-section.review.aok-relative[id^='customer_review-']"),
		selector.XPath("//div[contains(@id, 'customer_review-')]"),
	)
	amazonReadMore = selector.NewChain("read_more",
		selector.CSS("a[data-hook='review-see-more-link']"),
	)
	amazonTitle = selector.NewChain("title",
		selector.CSS("span[data-hook='review-title'] > span"),
		selector.CSS("a[data-hook='review-title'] > span:not(.a-letter-space)"),
		selector.CSS("span.review-title"),
		selector.CSS("div[data-hook='review-title']"),
	)
	amazonRating = selector.NewChain("rating",
		selector.CSS("i[data-hook='review-star-rating'] > span.a-icon-alt"),
		selector.CSS("i[data-hook='cmps-review-star-rating'] > span.a-icon-alt"),
		selector.CSS("i.a-icon-star > span.a-icon-alt"),
	)
	amazonDate = selector.NewChain("date",
		selector.CSS("span[data-hook='review-date']"),
		selector.CSS("span.review-date"),
	)
	amazonText = selector.NewChain("text",
		selector.CSS("span[data-hook='review-body'] > span"),
		selector.CSS("span.review-text-content"),
		selector.CSS("div.review-text"),
	)
	amazonVerified = selector.NewChain("verified",
		selector.CSS("span[data-hook='avp-badge']"),
		selector.CSS("span.a-size-mini.a-color-state"),
	)
	amazonHelpful = selector.NewChain("helpful",
		selector.CSS("span[data-hook='helpful-vote-statement']"),
		selector.CSS("span.a-size-base.a-color-tertiary"),
	)
	amazonNextPage = selector.NewChain("next_page",
		selector.CSS("li.a-last:not(.a-disabled) a"),
		selector.CSS("a.a-last"),
		selector.CSS("a.a-pagination__next"),
		selector.XPath("//a[contains(normalize-space(.), 'Next page')]"),
	)
	amazonPaginationBar = selector.NewChain("pagination_bar",
		selector.CSS("div[data-hook='pagination-bar']"),
		selector.CSS("ul.a-pagination"),
	)
	amazonTotalReviews = selector.NewChain("total_reviews",
		selector.CSS("div[data-hook='cr-filter-info-section'] span"),
		selector.CSS("div[data-hook='cr-filter-info-review-rating-count']"),
	)
)

// Filter is one star-rating view of the review listing. Stars is zero for
// the unfiltered view.
type Filter struct {
	Name  string
	Param string
	Stars int
}

func AmazonFilters() []Filter {
	return []Filter{
		{Name: "All"},
		{Name: "5-star", Param: "five_star", Stars: 5},
		{Name: "4-star", Param: "four_star", Stars: 4},
		{Name: "3-star", Param: "three_star", Stars: 3},
		{Name: "2-star", Param: "two_star", Stars: 2},
		{Name: "1-star", Param: "one_star", Stars: 1},
	}
}

// ParseFilters maps names like "all", "5" or "5-star" to filters, keeping
// the given order.
func ParseFilters(names []string) ([]Filter, error) {
	all := AmazonFilters()
	var out []Filter
	for _, name := range names {
		n := strings.ToLower(strings.TrimSpace(name))
		if n == "" {
			continue
		}
		n = strings.TrimSuffix(strings.TrimSuffix(n, "-star"), "star")
		found := false
		for _, f := range all {
			if (n == "all" && f.Stars == 0) || (f.Stars > 0 && n == strconv.Itoa(f.Stars)) {
				out = append(out, f)
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("unknown filter %q", name)
		}
	}
	if len(out) == 0 {
		return AmazonFilters(), nil
	}
	return out, nil
}

// FilterURL builds the listing URL for a filter and page number.
func FilterURL(base string, f Filter, page int) (string, error) {
	u, err := url.Parse(strings.TrimSpace(base))
	if err != nil {
		return "", fmt.Errorf("invalid url %q: %w", base, err)
	}
	q := u.Query()
	if f.Param != "" {
		q.Set("filterByStar", f.Param)
		u.Path = strings.Replace(u.Path, showAllRef, starFilterRef, 1)
	} else {
		q.Del("filterByStar")
	}
	q.Set("sortBy", "recent")
	q.Set("pageNumber", strconv.Itoa(page))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// AmazonStrategy walks every star filter of a product's review listing page
// by page.
type AmazonStrategy struct {
	policy Policy
	pacer  Pacer
	rng    *rand.Rand
	logger *slog.Logger
}

func NewAmazonStrategy(policy Policy, pacer Pacer, logger *slog.Logger) *AmazonStrategy {
	if pacer == nil {
		pacer = ratelimit.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AmazonStrategy{
		policy: policy,
		pacer:  pacer,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
		logger: logger.With("component", "amazon"),
	}
}

func (a *AmazonStrategy) Site() models.Site { return models.SiteAmazon }

func (a *AmazonStrategy) Guards(onLogin func() error) []browser.Guard {
	return []browser.Guard{
		&browser.LoginWall{
			Patterns:   browser.DefaultLoginPatterns(),
			Timeout:    a.policy.LoginTimeout,
			Interval:   a.policy.PollInterval,
			OnResolved: onLogin,
			Logger:     a.logger,
		},
		&browser.Captcha{
			URLPatterns: []string{"captcha"},
			Selectors:   []string{"form[action*='captcha']", "form[action*='Captcha']"},
			Timeout:     a.policy.CaptchaTimeout,
			Interval:    a.policy.PollInterval,
			Logger:      a.logger,
		},
	}
}

func (a *AmazonStrategy) Scrape(ctx context.Context, nav *browser.Navigator, run *Run) error {
	page := nav.Page()
	a.logger.Info("loading product reviews", "url", run.URL)
	if err := nav.Goto(ctx, run.URL); err != nil {
		return err
	}
	if err := a.pacer.Pause(ctx); err != nil {
		return err
	}

	a.selectRecentSort(ctx, page)

	if _, sel, ok := waitAny(ctx, page, amazonReviewSection, a.policy.SelectorTimeout); ok {
		a.logger.Info("review section found", "selector", sel)
	} else {
		if err := ctx.Err(); err != nil {
			return err
		}
		a.logger.Error("failed to locate review section", "tried", amazonReviewSection.Selectors())
		nav.Dump(ctx, "review_load_error")
		return ErrNoReviewSection
	}

	a.logger.Info("total reviews reported", "text", amazonTotalReviews.Text(page, models.NotAvailable))

	filters := run.Filters
	if len(filters) == 0 {
		filters = AmazonFilters()
	}
	for _, f := range filters {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := a.scrapeFilter(ctx, nav, run, f)
		if err == nil {
			continue
		}
		var ie *browser.InterruptionError
		if errors.As(err, &ie) || ctx.Err() != nil {
			return err
		}
		a.logger.Warn("filter ended early", "filter", f.Name, "error", err)
	}
	return nil
}

func (a *AmazonStrategy) selectRecentSort(ctx context.Context, page dom.Page) {
	if el, err := page.QuerySelector(amazonSortDropdown); err != nil || el == nil {
		a.logger.Info("no sort dropdown found")
		return
	}
	if err := page.SelectOption(amazonSortDropdown, "recent"); err != nil {
		a.logger.Warn("failed to select most recent sort", "error", err)
		return
	}
	a.logger.Info("selected most recent sort")
	if err := page.WaitForLoad(ctx, a.policy.SelectorTimeout); err != nil {
		a.logger.Debug("load state after sort not reached", "error", err)
	}
}

func (a *AmazonStrategy) scrapeFilter(ctx context.Context, nav *browser.Navigator, run *Run, f Filter) error {
	logger := a.logger.With("filter", f.Name)
	page := nav.Page()

	target, err := FilterURL(run.URL, f, 1)
	if err != nil {
		return err
	}
	logger.Info("loading reviews for filter", "url", target)
	if err := nav.Goto(ctx, target); err != nil {
		return err
	}

	mismatches := 0
	for pageNum := 1; ; pageNum++ {
		if a.policy.MaxPagesPerFilter > 0 && pageNum > a.policy.MaxPagesPerFilter {
			logger.Info("page limit reached", "limit", a.policy.MaxPagesPerFilter)
			return nil
		}
		if err := a.pacer.Pause(ctx); err != nil {
			return err
		}
		logger.Info("processing page", "page", pageNum)

		if err := a.scroll(ctx, page); err != nil {
			return err
		}

		blocks := amazonReviewBlocks.ResolveAll(page)
		if len(blocks) == 0 {
			logger.Info("no reviews found on page", "page", pageNum)
			nav.Dump(ctx, fmt.Sprintf("no_reviews_page_%d_%s", pageNum, f.Name))
			return nil
		}
		logger.Info("found reviews", "count", len(blocks))

		a.expand(blocks)

		results := extractAll(ctx, a.policy.Workers, blocks, func(el dom.Element) (*models.Review, error) {
			return a.extractReview(el, f)
		})

		abandoned := false
		for i, res := range results {
			if res.Err != nil {
				run.ExtractionErrors++
				logger.Warn("skipping review", "index", i, "error", res.Err)
				continue
			}
			r := res.Value
			if f.Stars > 0 && r.Rating != models.UnknownRating && r.Rating != f.Stars {
				mismatches++
				run.Mismatches++
				logger.Warn("mismatched rating", "expected", f.Stars, "got", r.Rating, "count", mismatches)
				if mismatches >= a.policy.MismatchThreshold {
					abandoned = true
					break
				}
				continue
			}
			if run.Sink.Admit(r) == sink.Duplicate {
				run.Duplicates++
				continue
			}
			logMissing(logger, r)
		}
		run.Pages++
		flush(ctx, run, logger)

		if abandoned {
			logger.Info("too many mismatched ratings, abandoning filter", "mismatches", mismatches)
			return nil
		}

		advanced, err := a.paginate(ctx, nav, run, f, pageNum, logger)
		if err != nil || !advanced {
			return err
		}
		mismatches = 0
	}
}

func (a *AmazonStrategy) scroll(ctx context.Context, page dom.Page) error {
	for i := 0; i < a.policy.ScrollPasses; i++ {
		if err := page.ScrollToBottom(); err != nil {
			a.logger.Debug("scroll failed", "error", err)
			return nil
		}
		if err := dom.Sleep(ctx, a.policy.ScrollDelay); err != nil {
			return err
		}
	}
	return nil
}

// expand clicks "Read more" links one at a time; clicks go through the page.
func (a *AmazonStrategy) expand(blocks []dom.Element) {
	for _, b := range blocks {
		more, ok := amazonReadMore.Resolve(b)
		if !ok {
			continue
		}
		if err := more.Click(); err != nil {
			a.logger.Debug("read more click failed", "error", err)
		}
	}
}

func (a *AmazonStrategy) extractReview(el dom.Element, f Filter) (*models.Review, error) {
	title := amazonTitle.Text(el, models.NotAvailable)

	rating := models.UnknownRating
	if n, ok := parser.ParseStarRating(amazonRating.Text(el, "")); ok {
		rating = n
	}

	date := amazonDate.Text(el, models.NotAvailable)
	if date != models.NotAvailable {
		date = parser.ParseReviewDate(date)
	}

	text := amazonText.Text(el, models.NotAvailable)
	_, verified := amazonVerified.Resolve(el)
	helpful := amazonHelpful.Text(el, models.DefaultHelpful)

	if title == models.NotAvailable && text == models.NotAvailable && rating == models.UnknownRating {
		return nil, errEmptyBlock
	}

	r := &models.Review{
		Site:     models.SiteAmazon,
		Title:    title,
		Rating:   rating,
		Date:     date,
		Text:     text,
		Verified: verified,
		Helpful:  helpful,
		Filter:   f.Name,
	}
	r.ID = parser.ReviewID(r.Title, r.RatingString(), r.Date, r.Text)
	return r, nil
}

// paginate clicks the next-page control. It reports false when the filter
// has no further pages or every attempt failed.
func (a *AmazonStrategy) paginate(ctx context.Context, nav *browser.Navigator, run *Run, f Filter, pageNum int, logger *slog.Logger) (bool, error) {
	page := nav.Page()

	next, ok := amazonNextPage.ResolveWhere(page, selector.Usable)
	if !ok {
		logger.Info("no more pages available")
		if bar, ok := amazonPaginationBar.Resolve(page); ok {
			markup, _ := bar.InnerHTML()
			logger.Debug("pagination markup", "html", truncate(markup, 2000))
		}
		return false, nil
	}

	var lastErr error
	for attempt := 1; attempt <= a.policy.PaginationRetries; attempt++ {
		_ = next.ScrollIntoView()
		lastErr = next.Click()
		if lastErr == nil {
			_, lastErr = page.WaitForSelector(ctx, amazonReviewList, nav.Timeout())
		}
		if lastErr == nil {
			nextURL, err := FilterURL(run.URL, f, pageNum+1)
			if err != nil {
				return false, err
			}
			if err := nav.Clear(ctx, nextURL); err != nil {
				return false, err
			}
			return true, nil
		}
		if err := ctx.Err(); err != nil {
			return false, err
		}

		logger.Warn("pagination attempt failed", "attempt", attempt, "error", lastErr)
		if attempt == a.policy.PaginationRetries {
			break
		}
		if err := dom.Sleep(ctx, ratelimit.Backoff(a.policy.PaginationBackoff, attempt, a.rng)); err != nil {
			return false, err
		}
		if el, ok := amazonNextPage.ResolveWhere(page, selector.Usable); ok {
			next = el
		}
	}

	logger.Error("max pagination retries reached", "page", pageNum, "error", lastErr)
	nav.Dump(ctx, fmt.Sprintf("pagination_error_page_%d_%s", pageNum, f.Name))
	return false, nil
}
