// Package dom defines the small surface of a rendered page that extraction
// code depends on. A live browser page and a static markup document both
// satisfy it.
package dom

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	ErrNavigationTimeout = errors.New("navigation timed out")
	ErrWaitTimeout       = errors.New("wait timed out")
)

// WaitUntil is the load condition a navigation waits for.
type WaitUntil string

const (
	WaitDOMContentLoaded WaitUntil = "domcontentloaded"
	WaitLoad             WaitUntil = "load"
	WaitNetworkIdle      WaitUntil = "networkidle"
)

// Querier looks up elements below a scope. Pages and elements are both scopes.
type Querier interface {
	QuerySelector(selector string) (Element, error)
	QuerySelectorAll(selector string) ([]Element, error)
}

type Element interface {
	Querier
	InnerText() (string, error)
	InnerHTML() (string, error)
	GetAttribute(name string) (string, error)
	IsVisible() (bool, error)
	IsEnabled() (bool, error)
	ScrollIntoView() error
	Click() error
}

type Page interface {
	Querier
	URL() string
	Goto(ctx context.Context, url string, waitUntil WaitUntil, timeout time.Duration) error
	WaitForSelector(ctx context.Context, selector string, timeout time.Duration) (Element, error)
	WaitForLoad(ctx context.Context, timeout time.Duration) error
	ScrollToBottom() error
	SelectOption(selector, value string) error
	Content() (string, error)
	Screenshot(path string) error
	Close() error
}

// NavigationError reports a failed page load.
type NavigationError struct {
	URL     string
	Timeout bool
	Err     error
}

func (e *NavigationError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("navigate %s: timed out: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("navigate %s: %v", e.URL, e.Err)
}

func (e *NavigationError) Unwrap() error { return e.Err }

func (e *NavigationError) Is(target error) bool {
	return target == ErrNavigationTimeout && e.Timeout
}

// Poll evaluates cond every interval until it reports true, ctx ends or
// timeout elapses. It returns ErrWaitTimeout on expiry.
func Poll(ctx context.Context, timeout, interval time.Duration, cond func() bool) error {
	if cond() {
		return nil
	}
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			if cond() {
				return nil
			}
			return ErrWaitTimeout
		case <-ticker.C:
			if cond() {
				return nil
			}
		}
	}
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
