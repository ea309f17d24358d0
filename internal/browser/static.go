package browser

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"

	"github.com/gratefulvortex/reviews-scraper/internal/dom"
	"github.com/gratefulvortex/reviews-scraper/internal/selector"
)

// Resolver returns the markup served for a URL.
type Resolver func(url string) (string, bool)

// MapResolver serves fixed documents keyed by absolute URL.
func MapResolver(docs map[string]string) Resolver {
	return func(u string) (string, bool) {
		doc, ok := docs[u]
		return doc, ok
	}
}

// SingleDocResolver serves the same markup for every URL.
func SingleDocResolver(markup string) Resolver {
	return func(string) (string, bool) { return markup, true }
}

// StaticPage is a dom.Page over saved markup. Clicking an element that
// carries an href or data-href loads that document through the resolver.
type StaticPage struct {
	mu      sync.RWMutex
	url     string
	doc     *goquery.Document
	resolve Resolver
}

func NewStaticPage(resolve Resolver) *StaticPage {
	return &StaticPage{resolve: resolve}
}

func NewStaticPageFromHTML(pageURL, markup string) (*StaticPage, error) {
	p := NewStaticPage(MapResolver(map[string]string{pageURL: markup}))
	if err := p.load(pageURL, markup); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *StaticPage) load(pageURL, markup string) error {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return fmt.Errorf("failed to parse document: %w", err)
	}
	p.mu.Lock()
	p.url = pageURL
	p.doc = doc
	p.mu.Unlock()
	return nil
}

func (p *StaticPage) root() *goquery.Selection {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.doc == nil {
		return nil
	}
	return p.doc.Selection
}

func (p *StaticPage) URL() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.url
}

func (p *StaticPage) Goto(ctx context.Context, target string, _ dom.WaitUntil, _ time.Duration) error {
	if err := ctx.Err(); err != nil {
		return &dom.NavigationError{URL: target, Err: err}
	}
	markup, ok := p.resolve(target)
	if !ok {
		return &dom.NavigationError{URL: target, Err: errors.New("no document for url")}
	}
	if err := p.load(target, markup); err != nil {
		return &dom.NavigationError{URL: target, Err: err}
	}
	return nil
}

func (p *StaticPage) QuerySelector(sel string) (dom.Element, error) {
	return querySelector(p, p.root(), sel)
}

func (p *StaticPage) QuerySelectorAll(sel string) ([]dom.Element, error) {
	return querySelectorAll(p, p.root(), sel)
}

// WaitForSelector does not wait: static markup never changes on its own.
func (p *StaticPage) WaitForSelector(ctx context.Context, sel string, _ time.Duration) (dom.Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	el, err := p.QuerySelector(sel)
	if err != nil {
		return nil, err
	}
	if el == nil {
		return nil, fmt.Errorf("%s: %w", sel, dom.ErrWaitTimeout)
	}
	return el, nil
}

func (p *StaticPage) WaitForLoad(ctx context.Context, _ time.Duration) error { return ctx.Err() }

func (p *StaticPage) ScrollToBottom() error { return nil }

func (p *StaticPage) SelectOption(sel, value string) error {
	el, err := p.QuerySelector(sel)
	if err != nil {
		return err
	}
	if el == nil {
		return fmt.Errorf("select %s not found", sel)
	}
	opt, err := el.QuerySelector(fmt.Sprintf("option[value=%q]", value))
	if err != nil {
		return err
	}
	if opt == nil {
		return fmt.Errorf("option %q not found in %s", value, sel)
	}
	return nil
}

func (p *StaticPage) Content() (string, error) {
	root := p.root()
	if root == nil {
		return "", nil
	}
	return root.Html()
}

func (p *StaticPage) Screenshot(string) error { return errors.ErrUnsupported }

func (p *StaticPage) Close() error { return nil }

func (p *StaticPage) follow(href string) error {
	base, err := url.Parse(p.URL())
	if err != nil {
		return err
	}
	ref, err := url.Parse(href)
	if err != nil {
		return err
	}
	return p.Goto(context.Background(), base.ResolveReference(ref).String(), dom.WaitDOMContentLoaded, 0)
}

type staticElement struct {
	page *StaticPage
	sel  *goquery.Selection
}

func querySelector(p *StaticPage, scope *goquery.Selection, sel string) (dom.Element, error) {
	els, err := querySelectorAll(p, scope, sel)
	if err != nil || len(els) == 0 {
		return nil, err
	}
	return els[0], nil
}

func querySelectorAll(p *StaticPage, scope *goquery.Selection, sel string) ([]dom.Element, error) {
	if scope == nil {
		return nil, nil
	}

	var found *goquery.Selection
	if expr, ok := selector.IsXPath(sel); ok {
		var nodes []*html.Node
		for _, n := range scope.Nodes {
			matched, err := htmlquery.QueryAll(n, expr)
			if err != nil {
				return nil, fmt.Errorf("invalid xpath %q: %w", expr, err)
			}
			nodes = append(nodes, matched...)
		}
		found = scope.FindNodes(nodes...)
	} else {
		m, err := cascadia.Compile(sel)
		if err != nil {
			return nil, fmt.Errorf("invalid selector %q: %w", sel, err)
		}
		found = scope.FindMatcher(m)
	}

	out := make([]dom.Element, 0, found.Length())
	found.Each(func(_ int, s *goquery.Selection) {
		out = append(out, &staticElement{page: p, sel: s})
	})
	return out, nil
}

func (e *staticElement) QuerySelector(sel string) (dom.Element, error) {
	return querySelector(e.page, e.sel, sel)
}

func (e *staticElement) QuerySelectorAll(sel string) ([]dom.Element, error) {
	return querySelectorAll(e.page, e.sel, sel)
}

func (e *staticElement) InnerText() (string, error) {
	clone := e.sel.Clone()
	clone.Find("script, style").Remove()
	return strings.Join(strings.Fields(clone.Text()), " "), nil
}

func (e *staticElement) InnerHTML() (string, error) { return e.sel.Html() }

func (e *staticElement) GetAttribute(name string) (string, error) {
	v, _ := e.sel.Attr(name)
	return v, nil
}

func (e *staticElement) IsVisible() (bool, error) {
	for s := e.sel; s.Length() > 0; s = s.Parent() {
		if _, hidden := s.Attr("hidden"); hidden {
			return false, nil
		}
		style := strings.ReplaceAll(strings.ToLower(s.AttrOr("style", "")), " ", "")
		if strings.Contains(style, "display:none") || strings.Contains(style, "visibility:hidden") {
			return false, nil
		}
	}
	return true, nil
}

func (e *staticElement) IsEnabled() (bool, error) {
	if _, disabled := e.sel.Attr("disabled"); disabled {
		return false, nil
	}
	if e.sel.AttrOr("aria-disabled", "") == "true" {
		return false, nil
	}
	return true, nil
}

func (e *staticElement) ScrollIntoView() error { return nil }

func (e *staticElement) Click() error {
	target := e.sel
	if _, ok := target.Attr("href"); !ok {
		if _, ok := target.Attr("data-href"); !ok {
			target = e.sel.Closest("a[href]")
		}
	}
	href := target.AttrOr("href", target.AttrOr("data-href", ""))
	if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(href, "javascript:") {
		return nil
	}
	return e.page.follow(href)
}

// StaticSession serves a StaticPage as a Session.
type StaticSession struct {
	page *StaticPage
}

func NewStaticSession(page *StaticPage) *StaticSession {
	return &StaticSession{page: page}
}

func (s *StaticSession) Page() dom.Page   { return s.page }
func (s *StaticSession) SaveState() error { return nil }
func (s *StaticSession) Close() error     { return nil }
