// Package listing serves paged request listings from a cached position index.
//
// Only the ordering (position to request id) is cached. Rows are always re-read by id, so a page
// never shows stale counts or status. When a cached position is missing or points at a row that no
// longer exists, the whole page is re-fetched from the source. Any write reported by the source's
// revision drops every index.
package listing

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/MarkoPoloResearchLab/giftgrove/pkg/gifting"
	lru "github.com/hashicorp/golang-lru"
)

const (
	defaultCacheSize = 256
	defaultPageSize  = 50
	maxPageSize      = 200
)

// Source is the authoritative request reader, usually *gifting.Service.
type Source interface {
	List(ctx context.Context, query gifting.RequestQuery) ([]gifting.RequestView, error)
	GetMany(ctx context.Context, requestIDs []gifting.RequestID) ([]gifting.RequestView, error)
	Revision() uint64
}

// positionIndex is immutable once stored in the cache.
type positionIndex struct {
	ids map[int]gifting.RequestID
	// end is the number of rows in the listing when a short page revealed it, otherwise -1.
	end int
}

// Cache is a read-through listing cache keyed by filter and sort.
type Cache struct {
	source  Source
	indexes *lru.Cache
	// revision is the source revision the cached indexes were built at.
	revision atomic.Uint64
}

// New returns a Cache holding position indexes for up to size distinct filter/sort combinations.
func New(source Source, size int) (*Cache, error) {
	if source == nil {
		return nil, fmt.Errorf("listing source is required")
	}
	if size <= 0 {
		size = defaultCacheSize
	}
	indexes, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("listing cache: %w", err)
	}
	cache := &Cache{source: source, indexes: indexes}
	cache.revision.Store(source.Revision())
	return cache, nil
}

// Page returns rows [query.Offset, query.Offset+query.Limit) of the listing described by query.
func (cache *Cache) Page(ctx context.Context, query gifting.RequestQuery) ([]gifting.RequestView, error) {
	query = normalizePage(query)
	if current := cache.source.Revision(); cache.revision.Swap(current) != current {
		cache.indexes.Purge()
	}
	key := fingerprint(query)
	if cached, ok := cache.indexes.Get(key); ok {
		index := cached.(positionIndex)
		if ids, complete := index.window(query.Offset, query.Limit); complete {
			views, err := cache.source.GetMany(ctx, ids)
			if err != nil {
				return nil, err
			}
			if len(views) == len(ids) {
				return views, nil
			}
		}
	}
	return cache.refetch(ctx, key, query)
}

// Invalidate drops every cached index.
func (cache *Cache) Invalidate() {
	cache.indexes.Purge()
}

func (cache *Cache) refetch(ctx context.Context, key string, query gifting.RequestQuery) ([]gifting.RequestView, error) {
	views, err := cache.source.List(ctx, query)
	if err != nil {
		return nil, err
	}
	next := positionIndex{ids: make(map[int]gifting.RequestID), end: -1}
	if cached, ok := cache.indexes.Get(key); ok {
		previous := cached.(positionIndex)
		for position, requestID := range previous.ids {
			next.ids[position] = requestID
		}
		next.end = previous.end
	}
	for position := query.Offset; position < query.Offset+query.Limit; position++ {
		delete(next.ids, position)
	}
	for offset, view := range views {
		next.ids[query.Offset+offset] = view.Request.ID
	}
	if len(views) < query.Limit {
		next.end = query.Offset + len(views)
	} else if next.end >= 0 && next.end < query.Offset+len(views) {
		next.end = -1
	}
	cache.indexes.Add(key, next)
	return views, nil
}

// window returns the cached ids for a page and whether every position inside the listing is known.
func (index positionIndex) window(offset, limit int) ([]gifting.RequestID, bool) {
	last := offset + limit
	if index.end >= 0 {
		last = min(last, index.end)
	}
	ids := make([]gifting.RequestID, 0, max(last-offset, 0))
	for position := offset; position < last; position++ {
		requestID, ok := index.ids[position]
		if !ok {
			return nil, false
		}
		ids = append(ids, requestID)
	}
	return ids, true
}

func normalizePage(query gifting.RequestQuery) gifting.RequestQuery {
	if query.Offset < 0 {
		query.Offset = 0
	}
	if query.Limit <= 0 {
		query.Limit = defaultPageSize
	}
	if query.Limit > maxPageSize {
		query.Limit = maxPageSize
	}
	return query
}

func fingerprint(query gifting.RequestQuery) string {
	return fmt.Sprintf("%s|%s|%s|%s|%s|%t", query.RequestType, query.ProcessedBy, query.Tag, query.Search, query.SortBy, query.Descending)
}
