// Package collyscraper implements ScraperAdapter using gocolly.
package collyscraper

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/calyptra/serialhub/internal/catalog"
)

// SourceConfig describes one scrape target: where a series' chapter list
// lives and the selectors that pull labels, titles, URLs, and dates out of
// it.
type SourceConfig struct {
	// SeriesURL renders the chapter-list page URL for a source-local series
	// id, e.g. "https://example.com/series/%s".
	SeriesURL string

	TitleSelector   string
	CoverSelector   string
	ChapterSelector string
	LabelSelector   string
	ChapterTitleSel string
	DateSelector    string
	DateLayout      string
}

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
	// Sources maps source id to its scrape config.
	Sources map[string]SourceConfig
}

// Scraper implements catalog.ScraperAdapter with one collector per call.
type Scraper struct {
	cfg           Config
	baseCollector *colly.Collector
}

// New builds a Scraper.
func New(cfg Config) *Scraper {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	c := colly.NewCollector(colly.Async(false))
	return &Scraper{
		cfg:           cfg,
		baseCollector: c,
	}
}

// ScrapeSeries fetches and parses one source's chapter list. sourceID has
// the form "<source>/<series-key>", where <source> picks the SourceConfig
// and <series-key> fills its URL template.
func (s *Scraper) ScrapeSeries(ctx context.Context, sourceID string) (catalog.ScrapeResult, error) {
	source, seriesKey, ok := strings.Cut(sourceID, "/")
	if !ok {
		return catalog.ScrapeResult{}, fmt.Errorf("malformed source id %q", sourceID)
	}
	cfg, ok := s.cfg.Sources[source]
	if !ok {
		return catalog.ScrapeResult{}, fmt.Errorf("unknown source %q", source)
	}

	collector := s.baseCollector.Clone()
	if s.cfg.UserAgent != "" {
		collector.UserAgent = s.cfg.UserAgent
	}
	collector.SetRequestTimeout(s.cfg.Timeout)

	var (
		mu        sync.Mutex
		result    catalog.ScrapeResult
		scrapeErr error
	)

	if cfg.TitleSelector != "" {
		collector.OnHTML(cfg.TitleSelector, func(e *colly.HTMLElement) {
			mu.Lock()
			if result.Title == "" {
				result.Title = strings.TrimSpace(e.Text)
			}
			mu.Unlock()
		})
	}
	if cfg.CoverSelector != "" {
		collector.OnHTML(cfg.CoverSelector, func(e *colly.HTMLElement) {
			mu.Lock()
			if result.CoverURL == "" {
				result.CoverURL = e.Request.AbsoluteURL(e.Attr("src"))
			}
			mu.Unlock()
		})
	}
	collector.OnHTML(cfg.ChapterSelector, func(e *colly.HTMLElement) {
		raw := catalog.RawChapter{
			ChapterLabel: strings.TrimSpace(e.ChildText(cfg.LabelSelector)),
			ChapterTitle: strings.TrimSpace(e.ChildText(cfg.ChapterTitleSel)),
			ChapterURL:   e.Request.AbsoluteURL(e.ChildAttr("a", "href")),
		}
		if cfg.DateSelector != "" && cfg.DateLayout != "" {
			if at, err := time.Parse(cfg.DateLayout, strings.TrimSpace(e.ChildText(cfg.DateSelector))); err == nil {
				raw.PublishedAt = &at
			}
		}
		if raw.ChapterLabel == "" {
			return
		}
		mu.Lock()
		result.Chapters = append(result.Chapters, raw)
		mu.Unlock()
	})
	collector.OnError(func(_ *colly.Response, err error) {
		mu.Lock()
		if scrapeErr == nil {
			scrapeErr = err
		}
		mu.Unlock()
	})

	url := fmt.Sprintf(cfg.SeriesURL, seriesKey)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := collector.Visit(url); err != nil {
			mu.Lock()
			if scrapeErr == nil {
				scrapeErr = err
			}
			mu.Unlock()
			return
		}
		collector.Wait()
	}()

	select {
	case <-ctx.Done():
		return catalog.ScrapeResult{}, ctx.Err()
	case <-done:
	}

	if scrapeErr != nil {
		return catalog.ScrapeResult{}, fmt.Errorf("scrape %s: %w", sourceID, scrapeErr)
	}
	return result, nil
}
