package scraper

import (
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/gratefulvortex/reviews-scraper/internal/browser"
	"github.com/gratefulvortex/reviews-scraper/internal/dom"
	"github.com/gratefulvortex/reviews-scraper/internal/models"
	"github.com/gratefulvortex/reviews-scraper/internal/parser"
	"github.com/gratefulvortex/reviews-scraper/internal/sink"
)

const (
	amazonURL      = "https://www.amazon.com/product-reviews/B0TESTKTL/ref=cm_cr_dp_d_show_all_btm?ie=UTF8&reviewerType=all_reviews"
	amazonPage2URL = "https://www.amazon.com/product-reviews/B0TESTKTL/page2"
	influensterURL = "https://www.influenster.com/reviews/dove-body-lotion/reviews"
)

var reference = time.Date(2025, 4, 27, 0, 0, 0, 0, time.UTC)

func fixture(t *testing.T, name string) string {
	t.Helper()
	b, err := os.ReadFile(filepath.Join("testdata", name))
	require.NoError(t, err)
	return string(b)
}

func testPolicy() Policy {
	p := DefaultPolicy()
	p.ScrollPasses = 1
	p.ScrollDelay = 0
	p.SelectorTimeout = 0
	p.PaginationBackoff = 0
	p.PollInterval = time.Millisecond
	p.LoadMoreTimeout = 20 * time.Millisecond
	p.LoginTimeout = 20 * time.Millisecond
	p.CaptchaTimeout = 20 * time.Millisecond
	p.MaxEmptyBatches = 2
	return p
}

func staticRunner(t *testing.T, docs map[string]string, opts RunnerOptions) *Runner {
	t.Helper()
	opts.Policy = testPolicy()
	if opts.OutputDir == "" {
		opts.OutputDir = t.TempDir()
	}
	opts.Reference = reference
	return NewRunner(func(ctx context.Context, site models.Site) (browser.Session, error) {
		return browser.NewStaticSession(browser.NewStaticPage(browser.MapResolver(docs))), nil
	}, opts)
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func filterURL(t *testing.T, f Filter, page int) string {
	t.Helper()
	u, err := FilterURL(amazonURL, f, page)
	require.NoError(t, err)
	return u
}

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) PublishRunCompleted(ctx context.Context, result *Result) error {
	args := m.Called(ctx, result)
	return args.Error(0)
}

func TestSiteForURL(t *testing.T) {
	site, err := SiteForURL("https://www.AMAZON.in/product-reviews/B01")
	require.NoError(t, err)
	assert.Equal(t, models.SiteAmazon, site)

	site, err = SiteForURL(influensterURL)
	require.NoError(t, err)
	assert.Equal(t, models.SiteInfluenster, site)

	_, err = SiteForURL("https://example.com/reviews")
	assert.ErrorIs(t, err, ErrUnsupportedSite)
}

func TestFilterURL(t *testing.T) {
	fiveStar := AmazonFilters()[1]

	got, err := FilterURL("  "+amazonURL+" ", fiveStar, 2)
	require.NoError(t, err)
	assert.Equal(t,
		"https://www.amazon.com/product-reviews/B0TESTKTL/ref=cm_cr_arp_d_viewopt_sr?filterByStar=five_star&ie=UTF8&pageNumber=2&reviewerType=all_reviews&sortBy=recent",
		got)

	got, err = FilterURL(got, AmazonFilters()[0], 1)
	require.NoError(t, err)
	assert.NotContains(t, got, "filterByStar")
	assert.Contains(t, got, "pageNumber=1")

	_, err = FilterURL("http://[::1", fiveStar, 1)
	assert.Error(t, err)
}

func TestParseFilters(t *testing.T) {
	filters, err := ParseFilters([]string{"5", "All", "1-star"})
	require.NoError(t, err)
	require.Len(t, filters, 3)
	assert.Equal(t, 5, filters[0].Stars)
	assert.Equal(t, "All", filters[1].Name)
	assert.Equal(t, "one_star", filters[2].Param)

	filters, err = ParseFilters(nil)
	require.NoError(t, err)
	assert.Len(t, filters, 6)

	_, err = ParseFilters([]string{"seven"})
	assert.Error(t, err)
}

func TestExtractAll_PreservesOrderAndIsolatesFailures(t *testing.T) {
	page, err := browser.NewStaticPageFromHTML("https://example.com",
		"<ul><li>a</li><li>b</li><li>fail</li><li>panic</li><li>e</li></ul>")
	require.NoError(t, err)
	items, err := page.QuerySelectorAll("li")
	require.NoError(t, err)

	results := extractAll(context.Background(), 3, items, func(el dom.Element) (string, error) {
		text, _ := el.InnerText()
		switch text {
		case "fail":
			return "", errors.New("boom")
		case "panic":
			panic("bad element")
		}
		return strings.ToUpper(text), nil
	})

	require.Len(t, results, 5)
	assert.Equal(t, "A", results[0].Value)
	assert.Equal(t, "B", results[1].Value)
	assert.Equal(t, "E", results[4].Value)

	var ee *ExtractionError
	require.ErrorAs(t, results[2].Err, &ee)
	assert.Equal(t, 2, ee.Index)
	require.Error(t, results[3].Err)
	assert.Contains(t, results[3].Err.Error(), "panic")
}

func TestRunner_AmazonPaginatesAndDeduplicates(t *testing.T) {
	all := AmazonFilters()[0]
	docs := map[string]string{
		amazonURL:            fixture(t, "amazon_page1.html"),
		filterURL(t, all, 1): fixture(t, "amazon_page1.html"),
		amazonPage2URL:       fixture(t, "amazon_page2.html"),
	}

	pub := &mockPublisher{}
	pub.On("PublishRunCompleted", mock.Anything, mock.MatchedBy(func(r *Result) bool {
		return r.Records == 4 && r.Site == models.SiteAmazon
	})).Return(nil).Once()

	runner := staticRunner(t, docs, RunnerOptions{Publisher: pub})
	result, err := runner.Run(context.Background(), amazonURL, RunOptions{Filters: []Filter{all}})
	require.NoError(t, err)

	assert.Equal(t, 4, result.Records)
	assert.Equal(t, 4, result.Flushed)
	assert.Equal(t, 1, result.Duplicates)
	assert.Equal(t, 2, result.Pages)
	assert.Empty(t, result.Error)
	assert.True(t, strings.HasPrefix(filepath.Base(result.OutputPath), "amazon_reviews_"))
	assert.Equal(t, 1, result.Stats.ByRating[5])
	assert.Equal(t, 1, result.Stats.MissingField["title"])

	rows := readCSV(t, result.OutputPath)
	require.Len(t, rows, 5)
	assert.Equal(t, models.Columns(models.SiteAmazon), rows[0])

	first := rows[1]
	assert.Equal(t, parser.ReviewID("Boils fast", "5", "2024-03-12", "Water is ready in two minutes."), first[0])
	assert.Equal(t, []string{"Boils fast", "5", "2024-03-12", "Water is ready in two minutes.", "true", "12 people found this helpful"}, first[1:])

	assert.Equal(t, "Lid broke", rows[2][1])
	assert.Equal(t, "2024-01-03", rows[2][3])
	assert.Equal(t, "false", rows[2][5])
	assert.Equal(t, models.DefaultHelpful, rows[2][6])

	assert.Equal(t, models.NotAvailable, rows[4][1])
	assert.Equal(t, "3", rows[4][2])

	pub.AssertExpectations(t)
}

type recordingWriter struct {
	appended [][]string
}

func (w *recordingWriter) Init(context.Context) error { return nil }

func (w *recordingWriter) Append(_ context.Context, reviews []*models.Review) error {
	ids := make([]string, 0, len(reviews))
	for _, r := range reviews {
		ids = append(ids, r.ID)
	}
	w.appended = append(w.appended, ids)
	return nil
}

func (w *recordingWriter) Replace(context.Context, []*models.Review) error { return nil }

func TestRunner_AmazonPaginationRetriesThenDumps(t *testing.T) {
	all := AmazonFilters()[0]
	docs := map[string]string{
		amazonURL:            fixture(t, "amazon_page1.html"),
		filterURL(t, all, 1): fixture(t, "amazon_page1.html"),
	}
	var nextAttempts int
	resolve := func(u string) (string, bool) {
		if u == amazonPage2URL {
			nextAttempts++
		}
		doc, ok := docs[u]
		return doc, ok
	}

	diag := t.TempDir()
	rec := &recordingWriter{}
	runner := NewRunner(func(ctx context.Context, site models.Site) (browser.Session, error) {
		return browser.NewStaticSession(browser.NewStaticPage(resolve)), nil
	}, RunnerOptions{
		Policy:         testPolicy(),
		OutputDir:      t.TempDir(),
		DiagnosticsDir: diag,
		Reference:      reference,
		ExtraWriters: func(string, string, models.Site) []sink.Writer {
			return []sink.Writer{rec}
		},
	})

	result, err := runner.Run(context.Background(), amazonURL, RunOptions{Filters: []Filter{all}})
	require.NoError(t, err)

	assert.Equal(t, testPolicy().PaginationRetries, nextAttempts)
	assert.Equal(t, 1, result.Pages)
	assert.Equal(t, 3, result.Records)

	dumps, err := filepath.Glob(filepath.Join(diag, "pagination_error_page_1_All_*.html"))
	require.NoError(t, err)
	assert.Len(t, dumps, 1)

	require.Len(t, rec.appended, 1)
	assert.Len(t, rec.appended[0], 3)
}

func TestRunner_AmazonAbandonsFilterAfterMismatches(t *testing.T) {
	fiveStar := AmazonFilters()[1]
	docs := map[string]string{
		amazonURL:                 fixture(t, "amazon_page1.html"),
		filterURL(t, fiveStar, 1): fixture(t, "amazon_mismatch.html"),
		amazonPage2URL:            fixture(t, "amazon_page2.html"),
	}

	runner := staticRunner(t, docs, RunnerOptions{})
	result, err := runner.Run(context.Background(), amazonURL, RunOptions{Filters: []Filter{fiveStar}})
	require.NoError(t, err)

	assert.Equal(t, 0, result.Records)
	assert.Equal(t, DefaultPolicy().MismatchThreshold, result.Mismatches)
	assert.Equal(t, 1, result.Pages)

	rows := readCSV(t, result.OutputPath)
	assert.Len(t, rows, 1)
}

func TestRunner_AmazonCaptchaTimeoutEndsRun(t *testing.T) {
	docs := map[string]string{
		amazonURL: `<html><body><form action="/errors/validateCaptcha"><input name="field-keywords"></form></body></html>`,
	}
	diag := t.TempDir()

	runner := staticRunner(t, docs, RunnerOptions{DiagnosticsDir: diag})
	result, err := runner.Run(context.Background(), amazonURL, RunOptions{})
	require.Error(t, err)

	var ie *browser.InterruptionError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, "captcha", ie.Guard)
	assert.ErrorIs(t, err, browser.ErrInterruptionTimeout)
	assert.NotEmpty(t, result.Error)

	dumps, err := filepath.Glob(filepath.Join(diag, "captcha_*.html"))
	require.NoError(t, err)
	assert.Len(t, dumps, 1)

	rows := readCSV(t, result.OutputPath)
	assert.Len(t, rows, 1)
}

func TestRunner_AmazonMissingReviewSection(t *testing.T) {
	docs := map[string]string{amazonURL: "<html><body><p>Nothing to see</p></body></html>"}

	runner := staticRunner(t, docs, RunnerOptions{})
	result, err := runner.Run(context.Background(), amazonURL, RunOptions{})
	assert.ErrorIs(t, err, ErrNoReviewSection)
	assert.Equal(t, 0, result.Records)
}

func TestRunner_InfluensterLoadMore(t *testing.T) {
	docs := map[string]string{
		influensterURL:             fixture(t, "influenster_page1.html"),
		influensterURL + "?page=2": fixture(t, "influenster_page2.html"),
	}

	runner := staticRunner(t, docs, RunnerOptions{})
	result, err := runner.Run(context.Background(), influensterURL, RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, 3, result.Records)
	assert.Equal(t, 2, result.Pages)
	assert.Equal(t, "https://cdn.influenster.com/images/dove-lotion.jpg", result.ImageURL)

	rows := readCSV(t, result.OutputPath)
	require.Len(t, rows, 4)
	assert.Equal(t, models.Columns(models.SiteInfluenster), rows[0])
	assert.Equal(t, []string{"alice", "5", "2025-04-20", "Keeps my skin soft all day.", "", ""}, rows[1])
	assert.Equal(t, []string{"bob", "3", "2025-04-25", "A bit greasy.", "", ""}, rows[2])
	assert.Equal(t, []string{"carol", "4", models.NotAvailable, "Nice scent, absorbs quickly.", "Scent", ""}, rows[3])
}

func TestRunner_InfluensterWithoutLoadMoreStopsAfterOneBatch(t *testing.T) {
	markup := `<html><body>
<div class="UgcContainer_ugc-container__a"><h5 class="MiniProfileTimestamp_mini-profile-timestamp__profile-name__b">dana</h5>
<div class="StarRating_star-rating__c"><div class="StarRating_star-rating__rating-text__d">2/5</div></div>
<div class="Review_review__body-text__e">Smells odd.</div></div>
</body></html>`
	docs := map[string]string{influensterURL: markup}

	runner := staticRunner(t, docs, RunnerOptions{})
	result, err := runner.Run(context.Background(), influensterURL, RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Records)
	assert.Equal(t, 1, result.Pages)
	assert.Empty(t, result.ImageURL)
}

func TestRunner_InfluensterProfileRedirectIsEmpty(t *testing.T) {
	profileURL := "https://www.influenster.com/profile/dove-fan"
	docs := map[string]string{profileURL: fixture(t, "influenster_page1.html")}

	runner := staticRunner(t, docs, RunnerOptions{})
	result, err := runner.Run(context.Background(), profileURL, RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0, result.Records)
	assert.Equal(t, 0, result.Pages)
}

func TestRunner_UnsupportedSite(t *testing.T) {
	runner := staticRunner(t, nil, RunnerOptions{})
	result, err := runner.Run(context.Background(), "https://example.com/p/1", RunOptions{})
	assert.ErrorIs(t, err, ErrUnsupportedSite)
	require.NotNil(t, result)
	assert.NotEmpty(t, result.Error)
}

func TestRunner_RecoversPanicAndStillFinalizes(t *testing.T) {
	dir := t.TempDir()
	runner := NewRunner(func(ctx context.Context, site models.Site) (browser.Session, error) {
		panic("driver crashed")
	}, RunnerOptions{Policy: testPolicy(), OutputDir: dir})

	result, err := runner.Run(context.Background(), influensterURL, RunOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panicked")

	rows := readCSV(t, result.OutputPath)
	assert.Equal(t, [][]string{models.Columns(models.SiteInfluenster)}, rows)
}

func TestRunner_SessionError(t *testing.T) {
	openErr := errors.New("no browser")
	runner := NewRunner(func(ctx context.Context, site models.Site) (browser.Session, error) {
		return nil, openErr
	}, RunnerOptions{Policy: testPolicy(), OutputDir: t.TempDir()})

	_, err := runner.Run(context.Background(), amazonURL, RunOptions{})
	assert.ErrorIs(t, err, openErr)
}
