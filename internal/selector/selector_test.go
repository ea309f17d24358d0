package selector_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gratefulvortex/reviews-scraper/internal/browser"
	"github.com/gratefulvortex/reviews-scraper/internal/dom"
	"github.com/gratefulvortex/reviews-scraper/internal/selector"
)

const markup = `<html><body>
<div id="list">
  <div class="review" data-id="a"><span class="title">First</span></div>
  <div class="review" data-id="b"><span class="title">Second</span></div>
  <div class="review alt" data-id="c"><span class="heading">Third</span></div>
</div>
<ul class="pager">
  <li class="next disabled" hidden><a href="/p1">Next</a></li>
  <li class="next"><a href="/p2">Next</a></li>
</ul>
</body></html>`

func page(t *testing.T) dom.Page {
	t.Helper()
	p, err := browser.NewStaticPageFromHTML("https://example.com/", markup)
	require.NoError(t, err)
	return p
}

func TestRule_String(t *testing.T) {
	assert.Equal(t, "div.review", selector.CSS("div.review").String())
	assert.Equal(t, "xpath=//div", selector.XPath("//div").String())

	expr, ok := selector.IsXPath("xpath=//span")
	assert.True(t, ok)
	assert.Equal(t, "//span", expr)

	expr, ok = selector.IsXPath("span")
	assert.False(t, ok)
	assert.Equal(t, "span", expr)
}

func TestChain_Resolve(t *testing.T) {
	p := page(t)

	tests := []struct {
		name   string
		chain  selector.Chain
		found  bool
		dataID string
	}{
		{
			name:   "first rule wins",
			chain:  selector.NewChain("review", selector.CSS("div.review"), selector.CSS("div.alt")),
			found:  true,
			dataID: "a",
		},
		{
			name:   "falls through to later rule",
			chain:  selector.NewChain("review", selector.CSS("div.missing"), selector.CSS("div.alt")),
			found:  true,
			dataID: "c",
		},
		{
			name:   "xpath rule",
			chain:  selector.NewChain("review", selector.XPath("//div[@data-id='b']")),
			found:  true,
			dataID: "b",
		},
		{
			name:  "invalid selector is a miss",
			chain: selector.NewChain("review", selector.CSS("div[[")),
			found: false,
		},
		{
			name:  "no rules",
			chain: selector.NewChain("review"),
			found: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			el, ok := tt.chain.Resolve(p)
			assert.Equal(t, tt.found, ok)
			if !tt.found {
				assert.Nil(t, el)
				return
			}
			id, err := el.GetAttribute("data-id")
			require.NoError(t, err)
			assert.Equal(t, tt.dataID, id)
		})
	}
}

func TestChain_ResolveAll_PreservesOrder(t *testing.T) {
	p := page(t)

	els := selector.NewChain("review", selector.CSS("div.none"), selector.CSS("#list > div")).ResolveAll(p)
	require.Len(t, els, 3)

	var ids []string
	for _, el := range els {
		id, _ := el.GetAttribute("data-id")
		ids = append(ids, id)
	}
	assert.Equal(t, []string{"a", "b", "c"}, ids)

	assert.Empty(t, selector.NewChain("none", selector.CSS("table")).ResolveAll(p))
}

func TestChain_ResolveWhere(t *testing.T) {
	p := page(t)

	el, ok := selector.NewChain("next", selector.CSS("li.next a")).ResolveWhere(p, selector.Usable)
	require.True(t, ok)
	href, _ := el.GetAttribute("href")
	assert.Equal(t, "/p2", href)
}

func TestChain_TextAndAttr(t *testing.T) {
	p := page(t)
	reviews := selector.NewChain("review", selector.CSS("div.review")).ResolveAll(p)
	require.Len(t, reviews, 3)

	title := selector.NewChain("title", selector.CSS("span.title"), selector.CSS("span.heading"))
	assert.Equal(t, "First", title.Text(reviews[0], "N/A"))
	assert.Equal(t, "Third", title.Text(reviews[2], "N/A"))

	missing := selector.NewChain("body", selector.CSS("p.body"))
	assert.Equal(t, "N/A", missing.Text(reviews[0], "N/A"))

	v, ok := selector.NewChain("id", selector.CSS("div.review")).Attr(p, "data-id")
	assert.True(t, ok)
	assert.Equal(t, "a", v)

	_, ok = selector.NewChain("id", selector.CSS("div.review")).Attr(p, "data-missing")
	assert.False(t, ok)
}
