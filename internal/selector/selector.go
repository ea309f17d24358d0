// Package selector resolves a logical field against a page through an
// ordered list of lookup rules. The first rule that matches wins.
package selector

import (
	"strings"

	"github.com/gratefulvortex/reviews-scraper/internal/dom"
)

type Kind int

const (
	KindCSS Kind = iota
	KindXPath
)

const xpathPrefix = "xpath="

type Rule struct {
	Kind Kind
	Expr string
}

func CSS(expr string) Rule   { return Rule{Kind: KindCSS, Expr: expr} }
func XPath(expr string) Rule { return Rule{Kind: KindXPath, Expr: expr} }

// String renders the rule in the driver's selector syntax.
func (r Rule) String() string {
	if r.Kind == KindXPath {
		return xpathPrefix + r.Expr
	}
	return r.Expr
}

// IsXPath reports whether a rendered selector carries the XPath prefix and
// returns the bare expression.
func IsXPath(selector string) (string, bool) {
	if strings.HasPrefix(selector, xpathPrefix) {
		return strings.TrimPrefix(selector, xpathPrefix), true
	}
	return selector, false
}

// Chain is the ordered rule list for one logical field.
type Chain struct {
	Field string
	Rules []Rule
}

func NewChain(field string, rules ...Rule) Chain {
	return Chain{Field: field, Rules: rules}
}

// Resolve returns the first element matched by the earliest rule that
// matches anything. Query failures count as no match.
func (c Chain) Resolve(scope dom.Querier) (dom.Element, bool) {
	for _, rule := range c.Rules {
		el, err := scope.QuerySelector(rule.String())
		if err != nil || el == nil {
			continue
		}
		return el, true
	}
	return nil, false
}

// ResolveAll returns every element matched by the earliest rule that
// matches anything, in document order.
func (c Chain) ResolveAll(scope dom.Querier) []dom.Element {
	for _, rule := range c.Rules {
		els, err := scope.QuerySelectorAll(rule.String())
		if err != nil || len(els) == 0 {
			continue
		}
		return els
	}
	return nil
}

// ResolveWhere returns the first element, across rules in order, that
// satisfies pred.
func (c Chain) ResolveWhere(scope dom.Querier, pred func(dom.Element) bool) (dom.Element, bool) {
	for _, rule := range c.Rules {
		els, err := scope.QuerySelectorAll(rule.String())
		if err != nil {
			continue
		}
		for _, el := range els {
			if pred(el) {
				return el, true
			}
		}
	}
	return nil, false
}

// Text resolves the chain and returns the trimmed visible text, or fallback
// when nothing matched or the text is empty.
func (c Chain) Text(scope dom.Querier, fallback string) string {
	el, ok := c.Resolve(scope)
	if !ok {
		return fallback
	}
	text, err := el.InnerText()
	if err != nil {
		return fallback
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return fallback
	}
	return text
}

// Attr returns the named attribute of the first resolved element that has a
// non-empty value for it.
func (c Chain) Attr(scope dom.Querier, name string) (string, bool) {
	el, ok := c.ResolveWhere(scope, func(el dom.Element) bool {
		v, err := el.GetAttribute(name)
		return err == nil && strings.TrimSpace(v) != ""
	})
	if !ok {
		return "", false
	}
	v, _ := el.GetAttribute(name)
	return strings.TrimSpace(v), true
}

// Selectors renders all rules, useful for logging.
func (c Chain) Selectors() []string {
	out := make([]string, len(c.Rules))
	for i, r := range c.Rules {
		out[i] = r.String()
	}
	return out
}

// Usable is the predicate for interactive controls.
func Usable(el dom.Element) bool {
	visible, err := el.IsVisible()
	if err != nil || !visible {
		return false
	}
	enabled, err := el.IsEnabled()
	return err == nil && enabled
}
