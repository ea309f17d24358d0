package scraper

import (
	"context"
	"log/slog"
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

var (
	influensterBlocks = selector.NewChain("review",
		selector.CSS("div[class*='UgcContainer_ugc-container__']"),
		selector.XPath("//div[contains(@class, 'UgcContainer_ugc-container__')]"),
	)
	influensterUsername = selector.NewChain("username",
		selector.CSS("h5[class*='MiniProfileTimestamp_mini-profile-timestamp__profile-name__']"),
		selector.CSS("[class*='MiniProfileTimestamp_mini-profile-timestamp__profile-name__']"),
	)
	influensterTime = selector.NewChain("date",
		selector.CSS("time"),
	)
	influensterText = selector.NewChain("text",
		selector.CSS("div[class*='Review_review__body-text__']"),
		selector.CSS("[class*='Review_review__body']"),
	)
	influensterRating = selector.NewChain("rating",
		selector.CSS("div[class*='StarRating_star-rating__'] > div[class*='StarRating_star-rating__rating-text__']"),
		selector.CSS("div[class*='StarRating_star-rating__rating-text__']"),
	)
	influensterPros = selector.NewChain("pros",
		selector.CSS("div[class*='Review_review__pros__']"),
	)
	influensterCons = selector.NewChain("cons",
		selector.CSS("div[class*='Review_review__cons__']"),
	)
	influensterLoadMore = selector.NewChain("load_more",
		selector.CSS("button[class*='InfiniteScroll_infinite-scroll__load-more-button__']"),
		selector.XPath("//button[contains(normalize-space(.), 'Load More')]"),
	)
	influensterCookies = selector.NewChain("cookie_banner",
		selector.CSS("button[class*='cookie']"),
		selector.CSS("button[id*='accept']"),
		selector.XPath("//button[contains(., 'Accept')]"),
	)
	influensterImageMeta = selector.NewChain("image_meta",
		selector.CSS("meta[property='og:image']"),
	)
	influensterImage = selector.NewChain("image",
		selector.CSS("img[class*='ProductImage']"),
		selector.CSS("img[class*='product-image']"),
	)
)

// InfluensterStrategy drains a review feed that grows in place behind a
// "load more" control.
type InfluensterStrategy struct {
	policy Policy
	pacer  Pacer
	logger *slog.Logger
}

func NewInfluensterStrategy(policy Policy, pacer Pacer, logger *slog.Logger) *InfluensterStrategy {
	if pacer == nil {
		pacer = ratelimit.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &InfluensterStrategy{
		policy: policy,
		pacer:  pacer,
		logger: logger.With("component", "influenster"),
	}
}

func (s *InfluensterStrategy) Site() models.Site { return models.SiteInfluenster }

func (s *InfluensterStrategy) Guards(func() error) []browser.Guard {
	return []browser.Guard{
		&browser.Captcha{
			URLPatterns: []string{"/cdn-cgi/challenge-platform"},
			Selectors: []string{
				"iframe[src*='captcha']",
				"div[id*='captcha']",
				"div[class*='recaptcha']",
				"iframe[src*='/cdn-cgi/challenge-platform']",
			},
			Timeout:  s.policy.CaptchaTimeout,
			Interval: s.policy.PollInterval,
			Logger:   s.logger,
		},
	}
}

func (s *InfluensterStrategy) Scrape(ctx context.Context, nav *browser.Navigator, run *Run) error {
	page := nav.Page()
	s.logger.Info("navigating to reviews page", "url", run.URL)
	if err := nav.Goto(ctx, run.URL); err != nil {
		return err
	}

	if strings.Contains(page.URL(), "profile") {
		s.logger.Error("landed on a profile page instead of reviews", "url", page.URL())
		return nil
	}

	s.acceptCookies(ctx, nav)

	if _, _, ok := waitAny(ctx, page, influensterBlocks, s.policy.SelectorTimeout); !ok {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.logger.Warn("no review elements found after waiting")
		nav.Dump(ctx, "influenster_no_reviews")
		return nil
	}

	run.ImageURL = s.productImage(page)
	if run.ImageURL != "" {
		s.logger.Info("product image found", "url", run.ImageURL)
	}

	return s.drain(ctx, page, run)
}

func (s *InfluensterStrategy) acceptCookies(ctx context.Context, nav *browser.Navigator) {
	btn, ok := influensterCookies.ResolveWhere(nav.Page(), selector.Usable)
	if !ok {
		s.logger.Info("no cookie button found")
		return
	}
	if err := btn.Click(); err != nil {
		s.logger.Debug("cookie button click failed", "error", err)
		return
	}
	s.logger.Info("accepted cookies")
	if err := nav.Clear(ctx, ""); err != nil {
		s.logger.Debug("interruption after cookie banner", "error", err)
	}
}

func (s *InfluensterStrategy) productImage(page dom.Page) string {
	if v, ok := influensterImageMeta.Attr(page, "content"); ok {
		return v
	}
	if v, ok := influensterImage.Attr(page, "src"); ok {
		return v
	}
	return ""
}

// drain extracts the rendered blocks, clicks "load more" and repeats until
// the control disappears, the click budget is spent or too many batches in
// a row bring nothing new.
func (s *InfluensterStrategy) drain(ctx context.Context, page dom.Page, run *Run) error {
	seenBlocks := make(map[string]struct{})
	clicks, empty := 0, 0

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := page.ScrollToBottom(); err != nil {
			s.logger.Debug("scroll failed", "error", err)
		}
		if err := dom.Sleep(ctx, s.policy.ScrollDelay); err != nil {
			return err
		}

		blocks := influensterBlocks.ResolveAll(page)
		var fresh []dom.Element
		for _, b := range blocks {
			text, err := b.InnerText()
			if err != nil {
				continue
			}
			key := parser.BlockKey(text)
			if _, ok := seenBlocks[key]; ok {
				continue
			}
			seenBlocks[key] = struct{}{}
			fresh = append(fresh, b)
		}

		added := 0
		results := extractAll(ctx, s.policy.Workers, fresh, func(el dom.Element) (*models.Review, error) {
			return s.extractReview(el, run.Reference)
		})
		for i, res := range results {
			if res.Err != nil {
				run.ExtractionErrors++
				s.logger.Warn("skipping review", "index", i, "error", res.Err)
				continue
			}
			if run.Sink.Admit(res.Value) == sink.Duplicate {
				run.Duplicates++
				continue
			}
			added++
			logMissing(s.logger, res.Value)
		}
		run.Pages++

		if added > 0 {
			empty = 0
			s.logger.Info("added reviews", "count", added, "total", run.Sink.Len())
			flush(ctx, run, s.logger)
		} else {
			empty++
			s.logger.Info("no new reviews in batch", "consecutive", empty)
			if empty >= s.policy.MaxEmptyBatches {
				s.logger.Info("stopping after consecutive empty batches", "batches", empty)
				return nil
			}
		}

		if s.policy.MaxLoadMore > 0 && clicks >= s.policy.MaxLoadMore {
			s.logger.Info("load more limit reached", "clicks", clicks)
			return nil
		}

		btn, ok := influensterLoadMore.ResolveWhere(page, selector.Usable)
		if !ok {
			s.logger.Info("no more load more button found")
			return nil
		}
		_ = btn.ScrollIntoView()
		if err := btn.Click(); err != nil {
			s.logger.Warn("error loading more", "error", err)
			return nil
		}
		clicks++
		s.logger.Info("clicked load more", "clicks", clicks)

		if err := s.pacer.Pause(ctx); err != nil {
			return err
		}
		before := len(blocks)
		err := dom.Poll(ctx, s.policy.LoadMoreTimeout, s.policy.PollInterval, func() bool {
			return len(influensterBlocks.ResolveAll(page)) > before
		})
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			s.logger.Info("no new review blocks rendered after load more", "error", err)
		}
	}
}

func (s *InfluensterStrategy) extractReview(el dom.Element, ref time.Time) (*models.Review, error) {
	username := influensterUsername.Text(el, models.UnknownUser)

	rating := models.UnknownRating
	if n, ok := parser.ParseStarRating(influensterRating.Text(el, "")); ok {
		rating = n
	}

	date := models.NotAvailable
	if t, ok := influensterTime.Resolve(el); ok {
		attr, _ := t.GetAttribute("datetime")
		if d, ok := parser.ParseTimestamp(attr); ok {
			date = d
		} else if text, err := t.InnerText(); err == nil && strings.TrimSpace(text) != "" {
			date = parser.ParseRelativeDate(strings.TrimSpace(text), ref)
		}
	}

	text := influensterText.Text(el, models.NotAvailable)

	if username == models.UnknownUser && text == models.NotAvailable && rating == models.UnknownRating {
		return nil, errEmptyBlock
	}

	r := &models.Review{
		Site:     models.SiteInfluenster,
		Username: username,
		Rating:   rating,
		Date:     date,
		Text:     text,
		Pros:     influensterPros.Text(el, ""),
		Cons:     influensterCons.Text(el, ""),
	}
	r.ID = parser.ReviewID(r.Username, r.RatingString(), r.Date, r.Text)
	return r, nil
}
