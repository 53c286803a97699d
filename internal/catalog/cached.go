package catalog

import (
	"context"

	"github.com/forest-guardian/flood-mapper/internal/cache"
	"github.com/forest-guardian/flood-mapper/internal/sentinel"
	"go.uber.org/zap"
)

// CachedSearcher keeps search results on disk, keyed by collections, bbox and
// datetime.
type CachedSearcher struct {
	next   Searcher
	cache  cache.CacheService[[]sentinel.Item]
	logger *zap.Logger
}

func NewCachedSearcher(next Searcher, c cache.CacheService[[]sentinel.Item], logger *zap.Logger) *CachedSearcher {
	return &CachedSearcher{next: next, cache: c, logger: logger}
}

func (s *CachedSearcher) Search(ctx context.Context, q Query) ([]sentinel.Item, error) {
	datetime := ""
	if q.Datetime != nil {
		datetime = q.Datetime.String()
	}
	key := s.cache.GenerateKey(q.Collections, BBoxValues(q.BBox), datetime)
	if items, ok := s.cache.Get(key); ok {
		s.logger.Debug("catalog cache hit", zap.Strings("collections", q.Collections), zap.Int("items", len(items)))
		return items, nil
	}

	items, err := s.next.Search(ctx, q)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(key, items); err != nil {
		s.logger.Warn("failed to cache catalog search", zap.Error(err))
	}
	return items, nil
}
