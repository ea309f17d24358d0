package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gratefulvortex/reviews-scraper/internal/dom"
)

var ErrInterruptionTimeout = errors.New("interruption was not resolved in time")

// InterruptionError reports a login wall or challenge that stayed up past
// its budget.
type InterruptionError struct {
	Guard  string
	URL    string
	Waited time.Duration
	Err    error
}

func (e *InterruptionError) Error() string {
	return fmt.Sprintf("%s at %s not resolved after %s: %v", e.Guard, e.URL, e.Waited, e.Err)
}

func (e *InterruptionError) Unwrap() error { return e.Err }

// Guard detects one kind of page interruption and waits for it to clear.
// Resolve returns nil immediately when nothing is detected.
type Guard interface {
	Name() string
	Detect(page dom.Page) bool
	Resolve(ctx context.Context, page dom.Page) error
}

// LoginWall waits for a manual sign-in when the page lands on a login URL.
type LoginWall struct {
	Patterns   []string
	Timeout    time.Duration
	Interval   time.Duration
	OnResolved func() error
	Logger     *slog.Logger
}

func DefaultLoginPatterns() []string {
	return []string{"signin", "ap/signin", "login"}
}

func (g *LoginWall) Name() string { return "login_wall" }

func (g *LoginWall) Detect(page dom.Page) bool {
	return urlMatches(page.URL(), g.Patterns)
}

func (g *LoginWall) Resolve(ctx context.Context, page dom.Page) error {
	if !g.Detect(page) {
		return nil
	}
	logger := guardLogger(g.Logger, g.Name())
	logger.Warn("login required, waiting for manual sign-in", "url", page.URL(), "timeout", g.Timeout)

	start := time.Now()
	err := dom.Poll(ctx, g.Timeout, g.Interval, func() bool { return !g.Detect(page) })
	if err != nil {
		return interruption(g.Name(), page.URL(), time.Since(start), err)
	}

	logger.Info("login completed", "waited", time.Since(start).Round(time.Second))
	if g.OnResolved != nil {
		if err := g.OnResolved(); err != nil {
			logger.Warn("failed to persist session after login", "error", err)
		}
	}
	return nil
}

// Captcha waits for a challenge page to be solved by a human.
type Captcha struct {
	URLPatterns []string
	Selectors   []string
	Timeout     time.Duration
	Interval    time.Duration
	Logger      *slog.Logger
}

func (g *Captcha) Name() string { return "captcha" }

func (g *Captcha) Detect(page dom.Page) bool {
	if urlMatches(page.URL(), g.URLPatterns) {
		return true
	}
	for _, sel := range g.Selectors {
		if el, err := page.QuerySelector(sel); err == nil && el != nil {
			return true
		}
	}
	return false
}

func (g *Captcha) Resolve(ctx context.Context, page dom.Page) error {
	if !g.Detect(page) {
		return nil
	}
	logger := guardLogger(g.Logger, g.Name())
	logger.Warn("captcha detected, waiting for it to be solved", "url", page.URL(), "timeout", g.Timeout)

	start := time.Now()
	err := dom.Poll(ctx, g.Timeout, g.Interval, func() bool { return !g.Detect(page) })
	if err != nil {
		return interruption(g.Name(), page.URL(), time.Since(start), err)
	}
	logger.Info("captcha cleared", "waited", time.Since(start).Round(time.Second))
	return nil
}

func interruption(guard, url string, waited time.Duration, err error) error {
	if errors.Is(err, dom.ErrWaitTimeout) {
		err = ErrInterruptionTimeout
	}
	return &InterruptionError{Guard: guard, URL: url, Waited: waited, Err: err}
}

func urlMatches(u string, patterns []string) bool {
	lower := strings.ToLower(u)
	for _, p := range patterns {
		if p != "" && strings.Contains(lower, strings.ToLower(p)) {
			return true
		}
	}
	return false
}

func guardLogger(l *slog.Logger, name string) *slog.Logger {
	if l == nil {
		l = slog.Default()
	}
	return l.With("component", "guard", "guard", name)
}
