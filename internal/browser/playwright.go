package browser

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/gratefulvortex/reviews-scraper/internal/dom"
)

// pwPage adapts a playwright page to dom.Page.
type pwPage struct {
	page playwright.Page
}

func (p *pwPage) URL() string { return p.page.URL() }

func (p *pwPage) Goto(ctx context.Context, url string, waitUntil dom.WaitUntil, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return &dom.NavigationError{URL: url, Err: err}
	}

	_, err := p.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: waitUntilState(waitUntil),
		Timeout:   playwright.Float(float64(timeout.Milliseconds())),
	})
	if err != nil {
		return &dom.NavigationError{URL: url, Timeout: errors.Is(err, playwright.ErrTimeout), Err: err}
	}
	return nil
}

func (p *pwPage) QuerySelector(sel string) (dom.Element, error) {
	h, err := p.page.QuerySelector(sel)
	if err != nil || h == nil {
		return nil, err
	}
	return &pwElement{h: h}, nil
}

func (p *pwPage) QuerySelectorAll(sel string) ([]dom.Element, error) {
	hs, err := p.page.QuerySelectorAll(sel)
	if err != nil {
		return nil, err
	}
	return wrapHandles(hs), nil
}

func (p *pwPage) WaitForSelector(ctx context.Context, sel string, timeout time.Duration) (dom.Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h, err := p.page.WaitForSelector(sel, playwright.PageWaitForSelectorOptions{
		State:   playwright.WaitForSelectorStateAttached,
		Timeout: playwright.Float(float64(timeout.Milliseconds())),
	})
	if err != nil {
		if errors.Is(err, playwright.ErrTimeout) {
			return nil, fmt.Errorf("%s: %w", sel, dom.ErrWaitTimeout)
		}
		return nil, err
	}
	if h == nil {
		return nil, fmt.Errorf("%s: %w", sel, dom.ErrWaitTimeout)
	}
	return &pwElement{h: h}, nil
}

func (p *pwPage) WaitForLoad(ctx context.Context, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := p.page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State:   playwright.LoadStateDomcontentloaded,
		Timeout: playwright.Float(float64(timeout.Milliseconds())),
	})
	if errors.Is(err, playwright.ErrTimeout) {
		return dom.ErrWaitTimeout
	}
	return err
}

func (p *pwPage) ScrollToBottom() error {
	_, err := p.page.Evaluate(`window.scrollTo(0, document.body.scrollHeight)`)
	return err
}

func (p *pwPage) SelectOption(sel, value string) error {
	_, err := p.page.SelectOption(sel, playwright.SelectOptionValues{Values: &[]string{value}})
	return err
}

func (p *pwPage) Content() (string, error) { return p.page.Content() }

func (p *pwPage) Screenshot(path string) error {
	_, err := p.page.Screenshot(playwright.PageScreenshotOptions{
		Path:     playwright.String(path),
		FullPage: playwright.Bool(true),
	})
	return err
}

func (p *pwPage) Close() error { return p.page.Close() }

func waitUntilState(w dom.WaitUntil) *playwright.WaitUntilState {
	switch w {
	case dom.WaitLoad:
		return playwright.WaitUntilStateLoad
	case dom.WaitNetworkIdle:
		return playwright.WaitUntilStateNetworkidle
	default:
		return playwright.WaitUntilStateDomcontentloaded
	}
}

type pwElement struct {
	h playwright.ElementHandle
}

func wrapHandles(hs []playwright.ElementHandle) []dom.Element {
	out := make([]dom.Element, 0, len(hs))
	for _, h := range hs {
		if h != nil {
			out = append(out, &pwElement{h: h})
		}
	}
	return out
}

func (e *pwElement) QuerySelector(sel string) (dom.Element, error) {
	h, err := e.h.QuerySelector(sel)
	if err != nil || h == nil {
		return nil, err
	}
	return &pwElement{h: h}, nil
}

func (e *pwElement) QuerySelectorAll(sel string) ([]dom.Element, error) {
	hs, err := e.h.QuerySelectorAll(sel)
	if err != nil {
		return nil, err
	}
	return wrapHandles(hs), nil
}

func (e *pwElement) InnerText() (string, error)               { return e.h.InnerText() }
func (e *pwElement) InnerHTML() (string, error)               { return e.h.InnerHTML() }
func (e *pwElement) GetAttribute(name string) (string, error) { return e.h.GetAttribute(name) }
func (e *pwElement) IsVisible() (bool, error)                 { return e.h.IsVisible() }
func (e *pwElement) IsEnabled() (bool, error)                 { return e.h.IsEnabled() }
func (e *pwElement) ScrollIntoView() error                    { return e.h.ScrollIntoViewIfNeeded() }
func (e *pwElement) Click() error                             { return e.h.Click() }
