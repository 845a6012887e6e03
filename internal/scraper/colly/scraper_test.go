package collyscraper

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const chapterListHTML = `<!DOCTYPE html>
<html><body>
<h1 class="series-title">Witch Hat Atelier</h1>
<img class="cover" src="/covers/wha.jpg">
<ul>
  <li class="chapter">
    <span class="label">Chapter 10</span>
    <span class="name">The Day of the Test</span>
    <span class="date">2026-08-20</span>
    <a href="/series/wha/chapter-10">read</a>
  </li>
  <li class="chapter">
    <span class="label">Chapter 9.5</span>
    <span class="name">Extra: Sketches</span>
    <span class="date">2026-08-10</span>
    <a href="/series/wha/chapter-9-5">read</a>
  </li>
  <li class="chapter">
    <span class="label"></span>
    <a href="/series/wha/broken">read</a>
  </li>
</ul>
</body></html>`

func testConfig(baseURL string) Config {
	return Config{
		UserAgent: "serialhub-test/1.0",
		Timeout:   5 * time.Second,
		Sources: map[string]SourceConfig{
			"alpha": {
				SeriesURL:       baseURL + "/series/%s",
				TitleSelector:   "h1.series-title",
				CoverSelector:   "img.cover",
				ChapterSelector: "li.chapter",
				LabelSelector:   "span.label",
				ChapterTitleSel: "span.name",
				DateSelector:    "span.date",
				DateLayout:      "2006-01-02",
			},
		},
	}
}

func TestScrapeSeriesParsesChapterList(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/series/wha", r.URL.Path)
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(chapterListHTML))
	}))
	defer srv.Close()

	s := New(testConfig(srv.URL))
	result, err := s.ScrapeSeries(context.Background(), "alpha/wha")
	require.NoError(t, err)

	require.Equal(t, "Witch Hat Atelier", result.Title)
	require.Equal(t, srv.URL+"/covers/wha.jpg", result.CoverURL)
	require.Len(t, result.Chapters, 2, "labelless rows are dropped")

	first := result.Chapters[0]
	require.Equal(t, "Chapter 10", first.ChapterLabel)
	require.Equal(t, "The Day of the Test", first.ChapterTitle)
	require.Equal(t, srv.URL+"/series/wha/chapter-10", first.ChapterURL)
	require.NotNil(t, first.PublishedAt)
	require.Equal(t, time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC), *first.PublishedAt)
}

func TestScrapeSeriesRejectsUnknownSource(t *testing.T) {
	t.Parallel()

	s := New(testConfig("http://unused.invalid"))
	_, err := s.ScrapeSeries(context.Background(), "omega/wha")
	require.Error(t, err)
}

func TestScrapeSeriesRejectsMalformedSourceID(t *testing.T) {
	t.Parallel()

	s := New(testConfig("http://unused.invalid"))
	_, err := s.ScrapeSeries(context.Background(), "no-separator")
	require.Error(t, err)
}

func TestScrapeSeriesSurfacesHTTPErrors(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	s := New(testConfig(srv.URL))
	_, err := s.ScrapeSeries(context.Background(), "alpha/wha")
	require.Error(t, err)
}
