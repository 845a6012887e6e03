package anilist

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/calyptra/serialhub/internal/catalog"
	"github.com/calyptra/serialhub/internal/resolver"
)

func gqlServer(t *testing.T, handler func(query string, variables map[string]any) (int, string)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Query     string         `json:"query"`
			Variables map[string]any `json:"variables"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		status, body := handler(req.Query, req.Variables)
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
}

func TestSearchMapsRecords(t *testing.T) {
	t.Parallel()

	srv := gqlServer(t, func(_ string, vars map[string]any) (int, string) {
		require.Equal(t, "berserk", vars["search"])
		return http.StatusOK, `{"data":{"Page":{"media":[{
			"id":30002,
			"title":{"romaji":"Berserk","english":"Berserk","native":"ベルセルク"},
			"synonyms":["Berserk: The Prototype"],
			"description":"Dark fantasy.",
			"coverImage":{"large":"https://img.anili.st/30002.jpg"},
			"popularity":250000
		}]}}}`
	})
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL}, nil)
	records, err := c.Search(context.Background(), "berserk", catalog.SearchOptions{Limit: 5})
	require.NoError(t, err)
	require.Len(t, records, 1)

	rec := records[0]
	require.Equal(t, "30002", rec.ExternalID)
	require.Equal(t, catalog.SourceAniList, rec.Source)
	require.Equal(t, "Berserk", rec.Title)
	require.Contains(t, rec.AltTitles, "ベルセルク")
	require.Contains(t, rec.AltTitles, "Berserk: The Prototype")
	require.Equal(t, 250000, rec.Popularity)
}

func TestFetchByIDNotFound(t *testing.T) {
	t.Parallel()

	srv := gqlServer(t, func(string, map[string]any) (int, string) {
		return http.StatusOK, `{"data":{"Media":null},"errors":[{"message":"Not Found.","status":404}]}`
	})
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL}, nil)
	_, err := c.FetchByID(context.Background(), "999999999")
	require.ErrorIs(t, err, catalog.ErrNotFound)
}

func TestFetchByIDRejectsNonNumericIDs(t *testing.T) {
	t.Parallel()

	c := NewClient(Config{BaseURL: "http://unused.invalid"}, nil)
	_, err := c.FetchByID(context.Background(), "not-a-number")
	require.ErrorIs(t, err, catalog.ErrNotFound)
}

func TestRateLimitIsTransient(t *testing.T) {
	t.Parallel()

	srv := gqlServer(t, func(string, map[string]any) (int, string) {
		return http.StatusTooManyRequests, `{"errors":[{"message":"Too Many Requests.","status":429}]}`
	})
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL}, nil)
	_, err := c.Search(context.Background(), "berserk", catalog.SearchOptions{})
	require.Error(t, err)
	require.True(t, resolver.IsTransient(err), "429 must be retryable")
}

func TestServerErrorIsTransient(t *testing.T) {
	t.Parallel()

	srv := gqlServer(t, func(string, map[string]any) (int, string) {
		return http.StatusBadGateway, `upstream exploded`
	})
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL}, nil)
	_, err := c.FetchByID(context.Background(), "30002")
	require.Error(t, err)
	require.True(t, resolver.IsTransient(err))
}

func TestTitleFallbackOrder(t *testing.T) {
	t.Parallel()

	srv := gqlServer(t, func(string, map[string]any) (int, string) {
		return http.StatusOK, `{"data":{"Page":{"media":[{
			"id":1,
			"title":{"romaji":"Romaji Only","english":"","native":"ネイティブ"},
			"coverImage":{"large":""},
			"popularity":10
		}]}}}`
	})
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL}, nil)
	records, err := c.Search(context.Background(), "x", catalog.SearchOptions{})
	require.NoError(t, err)
	require.Equal(t, "Romaji Only", records[0].Title)
	require.Contains(t, records[0].AltTitles, "ネイティブ")
}
