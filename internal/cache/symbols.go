// Package cache provides an optional Redis-backed cache for the exchange
// symbol listings, which change rarely but are expensive to fetch.
package cache

import (
	"context"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"marketstream/internal/model"
)

const defaultSymbolsTTL = 10 * time.Minute

// SymbolsCache stores symbol listings keyed by market kind. A nil cache is
// valid and always misses, so callers need no enablement checks.
type SymbolsCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewSymbolsCache connects to Redis. An empty address returns nil, which
// disables caching.
func NewSymbolsCache(addr, password string, db int, ttl time.Duration) *SymbolsCache {
	if addr == "" {
		return nil
	}
	if ttl <= 0 {
		ttl = defaultSymbolsTTL
	}
	return &SymbolsCache{
		client: redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db}),
		ttl:    ttl,
	}
}

func symbolsKey(kind model.MarketKind) string {
	return fmt.Sprintf("marketstream:symbols:%s", kind)
}

// Get returns the cached listing for a market kind, or ok=false on a miss.
// Cache failures degrade to misses.
func (c *SymbolsCache) Get(ctx context.Context, kind model.MarketKind) ([]string, bool) {
	if c == nil {
		return nil, false
	}

	data, err := c.client.Get(ctx, symbolsKey(kind)).Bytes()
	if err != nil {
		if err != redis.Nil {
			log.Debug().Err(err).Msg("symbols cache read failed")
		}
		return nil, false
	}

	var symbols []string
	if err := json.Unmarshal(data, &symbols); err != nil {
		log.Debug().Err(err).Msg("symbols cache payload corrupt")
		return nil, false
	}
	return symbols, true
}

// Set stores a listing with the configured TTL. Failures are logged and
// swallowed; the cache is advisory.
func (c *SymbolsCache) Set(ctx context.Context, kind model.MarketKind, symbols []string) {
	if c == nil {
		return
	}

	data, err := json.Marshal(symbols)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, symbolsKey(kind), data, c.ttl).Err(); err != nil {
		log.Debug().Err(err).Msg("symbols cache write failed")
	}
}

// Close releases the Redis connection.
func (c *SymbolsCache) Close() error {
	if c == nil {
		return nil
	}
	return c.client.Close()
}
