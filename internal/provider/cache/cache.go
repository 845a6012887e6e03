// Package cache wraps a metadata provider with a small per-process TTL cache
// keyed by external id. Searches always hit the provider; only FetchByID is
// cached, since the resolver re-fetches the same winning candidate across
// retries and merges.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/calyptra/serialhub/internal/catalog"
)

const (
	defaultTTL        = 15 * time.Minute
	defaultMaxEntries = 1024
)

type entry struct {
	record    catalog.MetadataRecord
	expiresAt time.Time
}

// Provider is a caching decorator around a catalog.MetadataProvider.
type Provider struct {
	next  catalog.MetadataProvider
	clock catalog.Clock

	mu      sync.Mutex
	entries map[string]entry
	ttl     time.Duration
	max     int
}

// New constructs the decorator. ttl and max fall back to defaults when
// non-positive.
func New(next catalog.MetadataProvider, clock catalog.Clock, ttl time.Duration, max int) *Provider {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if max <= 0 {
		max = defaultMaxEntries
	}
	return &Provider{
		next:    next,
		clock:   clock,
		entries: make(map[string]entry),
		ttl:     ttl,
		max:     max,
	}
}

// Search passes through to the wrapped provider and warms the cache with the
// returned records.
func (p *Provider) Search(ctx context.Context, title string, opts catalog.SearchOptions) ([]catalog.MetadataRecord, error) {
	records, err := p.next.Search(ctx, title, opts)
	if err != nil {
		return nil, err
	}
	now := p.clock.Now()
	p.mu.Lock()
	for _, rec := range records {
		p.store(rec, now)
	}
	p.mu.Unlock()
	return records, nil
}

// FetchByID serves from cache when fresh, otherwise fetches and caches.
func (p *Provider) FetchByID(ctx context.Context, id string) (catalog.MetadataRecord, error) {
	now := p.clock.Now()

	p.mu.Lock()
	if e, ok := p.entries[id]; ok && now.Before(e.expiresAt) {
		p.mu.Unlock()
		return e.record, nil
	}
	p.mu.Unlock()

	record, err := p.next.FetchByID(ctx, id)
	if err != nil {
		return catalog.MetadataRecord{}, err
	}

	p.mu.Lock()
	p.store(record, now)
	p.mu.Unlock()
	return record, nil
}

// store must run under mu. When full, expired entries are dropped first and
// an arbitrary entry is evicted as a last resort.
func (p *Provider) store(record catalog.MetadataRecord, now time.Time) {
	if record.ExternalID == "" {
		return
	}
	if _, ok := p.entries[record.ExternalID]; !ok && len(p.entries) >= p.max {
		for id, e := range p.entries {
			if !now.Before(e.expiresAt) {
				delete(p.entries, id)
			}
		}
		for id := range p.entries {
			if len(p.entries) < p.max {
				break
			}
			delete(p.entries, id)
		}
	}
	p.entries[record.ExternalID] = entry{record: record, expiresAt: now.Add(p.ttl)}
}
