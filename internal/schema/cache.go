// internal/schema/cache.go
package schema

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"insights-engine/internal/common/database"
	"insights-engine/internal/common/logger"
	"insights-engine/internal/common/metrics"
)

const cacheKeyPrefix = "schema:map:"

// Cache stores the serialized schema map in redis so restarts and sibling
// instances skip catalog introspection until the TTL lapses.
type Cache struct {
	redis  *database.RedisClient
	ttl    time.Duration
	logger logger.Logger
}

func NewCache(redis *database.RedisClient, ttl time.Duration, log logger.Logger) *Cache {
	return &Cache{
		redis:  redis,
		ttl:    ttl,
		logger: log.WithFields(map[string]interface{}{"component": "schema-cache"}),
	}
}

func cacheKey(tenantID string) string {
	return cacheKeyPrefix + tenantID
}

// Load returns the cached map for a tenant, or ok=false on miss or decode
// failure. Decode failures clear the stale entry.
func (c *Cache) Load(ctx context.Context, tenantID string) (*Map, bool) {
	raw, err := c.redis.Get(ctx, cacheKey(tenantID))
	if err != nil {
		return nil, false
	}

	var m Map
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		c.logger.Warn("discarding undecodable cached schema map", map[string]interface{}{
			"tenantId": tenantID,
			"error":    err.Error(),
		})
		_ = c.redis.Del(ctx, cacheKey(tenantID))
		return nil, false
	}

	metrics.SchemaRefreshes.WithLabelValues("cache").Inc()
	return &m, true
}

// Store writes the map under the tenant's key with the configured TTL.
func (c *Cache) Store(ctx context.Context, tenantID string, m *Map) error {
	raw, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode schema map: %w", err)
	}
	return c.redis.Set(ctx, cacheKey(tenantID), string(raw), c.ttl)
}

// Provider couples the indexer and cache behind one load call.
type Provider struct {
	indexer *Indexer
	cache   *Cache
}

func NewProvider(indexer *Indexer, cache *Cache) *Provider {
	return &Provider{indexer: indexer, cache: cache}
}

// Load returns the tenant's schema map, preferring cache, reindexing on miss.
func (p *Provider) Load(ctx context.Context, tenantID string) (*Map, error) {
	if p.cache != nil {
		if m, ok := p.cache.Load(ctx, tenantID); ok {
			return m, nil
		}
	}

	m, err := p.indexer.Index(ctx)
	if err != nil {
		return nil, err
	}

	if p.cache != nil {
		if err := p.cache.Store(ctx, tenantID, m); err != nil {
			// Cache write failures must not fail the turn.
			p.indexer.logger.Warn("schema cache store failed", map[string]interface{}{
				"tenantId": tenantID,
				"error":    err.Error(),
			})
		}
	}
	return m, nil
}
