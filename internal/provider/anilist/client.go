// Package anilist implements the authoritative metadata provider against the
// AniList GraphQL API.
package anilist

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/calyptra/serialhub/internal/catalog"
)

// DefaultBaseURL is the public AniList GraphQL endpoint.
const DefaultBaseURL = "https://graphql.anilist.co"

const searchQuery = `
query ($search: String, $perPage: Int) {
  Page(page: 1, perPage: $perPage) {
    media(search: $search, type: MANGA) {
      id
      title { romaji english native }
      synonyms
      description(asHtml: false)
      coverImage { large }
      popularity
    }
  }
}`

const fetchQuery = `
query ($id: Int) {
  Media(id: $id, type: MANGA) {
    id
    title { romaji english native }
    synonyms
    description(asHtml: false)
    coverImage { large }
    popularity
  }
}`

// Config controls the client.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Client implements catalog.MetadataProvider.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger
}

// NewClient constructs a Client.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL: cfg.BaseURL,
		http:    &http.Client{Timeout: cfg.Timeout},
		logger:  logger,
	}
}

// statusError marks provider HTTP failures; rate limits and server errors
// are transient.
type statusError struct {
	status int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("anilist: unexpected status %d", e.status)
}

func (e *statusError) Transient() bool {
	return e.status == http.StatusTooManyRequests || e.status >= 500
}

type mediaPayload struct {
	ID    int `json:"id"`
	Title struct {
		Romaji  string `json:"romaji"`
		English string `json:"english"`
		Native  string `json:"native"`
	} `json:"title"`
	Synonyms    []string `json:"synonyms"`
	Description string   `json:"description"`
	CoverImage  struct {
		Large string `json:"large"`
	} `json:"coverImage"`
	Popularity int `json:"popularity"`
}

type graphqlResponse struct {
	Data struct {
		Page struct {
			Media []mediaPayload `json:"media"`
		} `json:"Page"`
		Media *mediaPayload `json:"Media"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
		Status  int    `json:"status"`
	} `json:"errors"`
}

// Search returns candidate records for a title.
func (c *Client) Search(ctx context.Context, title string, opts catalog.SearchOptions) ([]catalog.MetadataRecord, error) {
	perPage := opts.Limit
	if perPage <= 0 {
		perPage = 10
	}
	resp, err := c.post(ctx, searchQuery, map[string]any{"search": title, "perPage": perPage})
	if err != nil {
		return nil, err
	}

	records := make([]catalog.MetadataRecord, 0, len(resp.Data.Page.Media))
	for _, m := range resp.Data.Page.Media {
		records = append(records, toRecord(m))
	}
	return records, nil
}

// FetchByID loads one record by its AniList media id.
func (c *Client) FetchByID(ctx context.Context, id string) (catalog.MetadataRecord, error) {
	numeric, err := strconv.Atoi(id)
	if err != nil {
		return catalog.MetadataRecord{}, fmt.Errorf("anilist: non-numeric id %q: %w", id, catalog.ErrNotFound)
	}
	resp, err := c.post(ctx, fetchQuery, map[string]any{"id": numeric})
	if err != nil {
		return catalog.MetadataRecord{}, err
	}
	if resp.Data.Media == nil {
		return catalog.MetadataRecord{}, catalog.ErrNotFound
	}
	return toRecord(*resp.Data.Media), nil
}

func (c *Client) post(ctx context.Context, query string, variables map[string]any) (*graphqlResponse, error) {
	body, err := json.Marshal(map[string]any{"query": query, "variables": variables})
	if err != nil {
		return nil, fmt.Errorf("anilist: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("anilist: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	httpResp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("anilist: request failed: %w", err)
	}
	defer func() { _ = httpResp.Body.Close() }()

	if httpResp.StatusCode == http.StatusNotFound {
		return nil, catalog.ErrNotFound
	}
	if httpResp.StatusCode != http.StatusOK {
		return nil, &statusError{status: httpResp.StatusCode}
	}

	raw, err := io.ReadAll(io.LimitReader(httpResp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("anilist: read response: %w", err)
	}
	var parsed graphqlResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("anilist: decode response: %w", err)
	}
	for _, gqlErr := range parsed.Errors {
		if gqlErr.Status == http.StatusNotFound {
			return nil, catalog.ErrNotFound
		}
		return nil, fmt.Errorf("anilist: %s", gqlErr.Message)
	}
	return &parsed, nil
}

func toRecord(m mediaPayload) catalog.MetadataRecord {
	title := m.Title.English
	if title == "" {
		title = m.Title.Romaji
	}
	if title == "" {
		title = m.Title.Native
	}

	alts := make([]string, 0, len(m.Synonyms)+2)
	for _, t := range []string{m.Title.Romaji, m.Title.Native} {
		if t != "" && t != title {
			alts = append(alts, t)
		}
	}
	alts = append(alts, m.Synonyms...)

	return catalog.MetadataRecord{
		ExternalID:  strconv.Itoa(m.ID),
		Source:      catalog.SourceAniList,
		Title:       title,
		AltTitles:   alts,
		CoverURL:    m.CoverImage.Large,
		Description: m.Description,
		Popularity:  m.Popularity,
	}
}
