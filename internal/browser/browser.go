package browser

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/gratefulvortex/reviews-scraper/internal/dom"
)

// Session owns one page for the duration of a scrape run.
type Session interface {
	Page() dom.Page
	SaveState() error
	Close() error
}

type Viewport struct {
	Width  int
	Height int
}

type Options struct {
	Headless bool
	Timeout  time.Duration
	SlowMo   time.Duration
	// UserAgents and Viewports are sampled once per session.
	UserAgents       []string
	Viewports        []Viewport
	AcceptLanguage   string
	TimezoneID       string
	Locale           string
	ProxyServer      string
	StorageStatePath string
	ExtraHeaders     map[string]string
}

func DefaultOptions() *Options {
	return &Options{
		Headless:       true,
		Timeout:        30 * time.Second,
		UserAgents:     DefaultUserAgents(),
		Viewports:      DefaultViewports(),
		AcceptLanguage: "en-US,en;q=0.9",
		TimezoneID:     "America/New_York",
		Locale:         "en-US",
		ExtraHeaders: map[string]string{
			"Accept": "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
			"DNT":    "1",
		},
	}
}

func DefaultUserAgents() []string {
	return []string{
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Safari/605.1.15",
		"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:121.0) Gecko/20100101 Firefox/121.0",
	}
}

func DefaultViewports() []Viewport {
	return []Viewport{
		{Width: 1920, Height: 1080},
		{Width: 1366, Height: 768},
		{Width: 1536, Height: 864},
		{Width: 1440, Height: 900},
	}
}

// Fingerprint is the user agent and viewport picked for one session.
type Fingerprint struct {
	UserAgent string
	Viewport  Viewport
}

func (o *Options) Fingerprint(rng *rand.Rand) Fingerprint {
	agents := o.UserAgents
	if len(agents) == 0 {
		agents = DefaultUserAgents()
	}
	viewports := o.Viewports
	if len(viewports) == 0 {
		viewports = DefaultViewports()
	}
	return Fingerprint{
		UserAgent: agents[rng.Intn(len(agents))],
		Viewport:  viewports[rng.Intn(len(viewports))],
	}
}

// Browser is a live playwright session with a single page.
type Browser struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	context playwright.BrowserContext
	page    *pwPage
	opts    *Options
	logger  *slog.Logger
}

func New(opts *Options) (*Browser, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	logger := slog.Default().With("component", "browser")
	fp := opts.Fingerprint(rand.New(rand.NewSource(time.Now().UnixNano())))

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	launchOpts := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
		Args: []string{
			"--disable-blink-features=AutomationControlled",
			"--disable-dev-shm-usage",
			"--no-sandbox",
			fmt.Sprintf("--window-size=%d,%d", fp.Viewport.Width, fp.Viewport.Height),
		},
	}
	if opts.SlowMo > 0 {
		launchOpts.SlowMo = playwright.Float(float64(opts.SlowMo.Milliseconds()))
	}
	if opts.ProxyServer != "" {
		launchOpts.Proxy = &playwright.Proxy{Server: opts.ProxyServer}
	}

	browser, err := pw.Chromium.Launch(launchOpts)
	if err != nil {
		pw.Stop()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	headers := map[string]string{}
	for k, v := range opts.ExtraHeaders {
		headers[k] = v
	}
	if opts.AcceptLanguage != "" {
		headers["Accept-Language"] = opts.AcceptLanguage
	}

	contextOpts := playwright.BrowserNewContextOptions{
		UserAgent:         playwright.String(fp.UserAgent),
		AcceptDownloads:   playwright.Bool(false),
		JavaScriptEnabled: playwright.Bool(true),
		Viewport: &playwright.Size{
			Width:  fp.Viewport.Width,
			Height: fp.Viewport.Height,
		},
		ExtraHttpHeaders: headers,
	}
	if opts.Locale != "" {
		contextOpts.Locale = playwright.String(opts.Locale)
	}
	if opts.TimezoneID != "" {
		contextOpts.TimezoneId = playwright.String(opts.TimezoneID)
	}
	if opts.StorageStatePath != "" {
		if _, err := os.Stat(opts.StorageStatePath); err == nil {
			contextOpts.StorageStatePath = playwright.String(opts.StorageStatePath)
			logger.Info("loading saved session state", "path", opts.StorageStatePath)
		}
	}

	context, err := browser.NewContext(contextOpts)
	if err != nil {
		browser.Close()
		pw.Stop()
		return nil, fmt.Errorf("failed to create browser context: %w", err)
	}

	page, err := context.NewPage()
	if err != nil {
		context.Close()
		browser.Close()
		pw.Stop()
		return nil, fmt.Errorf("failed to create new page: %w", err)
	}
	page.SetDefaultTimeout(float64(opts.Timeout.Milliseconds()))

	logger.Info("browser session opened",
		"user_agent", fp.UserAgent,
		"viewport", fmt.Sprintf("%dx%d", fp.Viewport.Width, fp.Viewport.Height),
		"headless", opts.Headless)

	return &Browser{
		pw:      pw,
		browser: browser,
		context: context,
		page:    &pwPage{page: page},
		opts:    opts,
		logger:  logger,
	}, nil
}

func (b *Browser) Page() dom.Page { return b.page }

// SaveState persists cookies and local storage so later sessions skip the
// login wall.
func (b *Browser) SaveState() error {
	if b.opts.StorageStatePath == "" {
		return nil
	}
	if dir := filepath.Dir(b.opts.StorageStatePath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create state directory: %w", err)
		}
	}
	if _, err := b.context.StorageState(b.opts.StorageStatePath); err != nil {
		return fmt.Errorf("failed to save session state: %w", err)
	}
	b.logger.Info("session state saved", "path", b.opts.StorageStatePath)
	return nil
}

func (b *Browser) Close() error {
	var errs []error

	if b.context != nil {
		if err := b.context.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close context: %w", err))
		}
	}

	if b.browser != nil {
		if err := b.browser.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close browser: %w", err))
		}
	}

	if b.pw != nil {
		if err := b.pw.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop playwright: %w", err))
		}
	}

	return errors.Join(errs...)
}
