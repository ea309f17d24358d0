package browser

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/gratefulvortex/reviews-scraper/internal/dom"
)

// Navigator loads URLs and clears interruptions before handing the page
// back. A resolved interruption re-issues the original navigation once.
type Navigator struct {
	page           dom.Page
	guards         []Guard
	waitUntil      dom.WaitUntil
	timeout        time.Duration
	diagnosticsDir string
	logger         *slog.Logger
}

type NavigatorOptions struct {
	WaitUntil      dom.WaitUntil
	Timeout        time.Duration
	DiagnosticsDir string
	Logger         *slog.Logger
}

func NewNavigator(page dom.Page, guards []Guard, opts NavigatorOptions) *Navigator {
	if opts.WaitUntil == "" {
		opts.WaitUntil = dom.WaitDOMContentLoaded
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Navigator{
		page:           page,
		guards:         guards,
		waitUntil:      opts.WaitUntil,
		timeout:        opts.Timeout,
		diagnosticsDir: opts.DiagnosticsDir,
		logger:         opts.Logger.With("component", "navigator"),
	}
}

func (n *Navigator) Page() dom.Page { return n.page }

func (n *Navigator) Timeout() time.Duration { return n.timeout }

// Goto navigates and then runs every guard. Guard timeouts are returned as
// *InterruptionError.
func (n *Navigator) Goto(ctx context.Context, url string) error {
	n.logger.Debug("navigating", "url", url)
	if err := n.page.Goto(ctx, url, n.waitUntil, n.timeout); err != nil {
		return err
	}
	return n.Clear(ctx, url)
}

// Clear runs the guards against the current page. If any interruption had
// to be resolved, url is loaded again so the caller sees the real target.
func (n *Navigator) Clear(ctx context.Context, url string) error {
	interrupted := false
	for _, g := range n.guards {
		if !g.Detect(n.page) {
			continue
		}
		interrupted = true
		if err := g.Resolve(ctx, n.page); err != nil {
			n.Dump(ctx, g.Name())
			return err
		}
	}
	if !interrupted || url == "" {
		return nil
	}

	n.logger.Info("interruption cleared, reloading target", "url", url)
	if err := n.page.Goto(ctx, url, n.waitUntil, n.timeout); err != nil {
		return err
	}
	return nil
}

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9_.-]+`)

// Dump writes a screenshot and the current markup for post-mortem
// inspection. Failures are logged and otherwise ignored.
func (n *Navigator) Dump(ctx context.Context, name string) {
	if n.diagnosticsDir == "" || ctx.Err() != nil {
		return
	}
	if err := os.MkdirAll(n.diagnosticsDir, 0o755); err != nil {
		n.logger.Warn("failed to create diagnostics directory", "error", err)
		return
	}

	base := filepath.Join(n.diagnosticsDir,
		fmt.Sprintf("%s_%s", unsafeName.ReplaceAllString(name, "_"), time.Now().Format("20060102_150405")))

	if err := n.page.Screenshot(base + ".png"); err != nil {
		n.logger.Debug("screenshot not captured", "error", err)
	}

	content, err := n.page.Content()
	if err != nil {
		n.logger.Warn("failed to read page content for diagnostics", "error", err)
		return
	}
	if err := os.WriteFile(base+".html", []byte(content), 0o644); err != nil {
		n.logger.Warn("failed to write diagnostics markup", "error", err)
		return
	}
	n.logger.Info("diagnostics saved", "name", name, "path", base+".html", "url", n.page.URL())
}
