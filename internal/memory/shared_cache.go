package memory

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// DefaultSharedSearchCacheTTL bounds how long a cached cross-bot search
// result stays fresh before a cache hit falls through to Qdrant again.
const DefaultSharedSearchCacheTTL = 30 * time.Second

// cachedSharedPool wraps a SharedPool with a Redis-backed cache over Search,
// the pool's hottest and most expensive path once many bots query the same
// shared facts concurrently. Add/Share/Revoke invalidate nothing explicitly;
// the short TTL bounds staleness instead, matching the trade-off the
// original skills-prompt cache makes for its own Redis-backed reads.
type cachedSharedPool struct {
	SharedPool
	client redis.UniversalClient
	ttl    time.Duration
}

// NewCachedSharedPool wraps base with a Redis cache for Search results.
// Returns base unchanged if client is nil.
func NewCachedSharedPool(base SharedPool, client redis.UniversalClient, ttl time.Duration) SharedPool {
	if client == nil {
		return base
	}
	if ttl <= 0 {
		ttl = DefaultSharedSearchCacheTTL
	}
	return &cachedSharedPool{SharedPool: base, client: client, ttl: ttl}
}

func (c *cachedSharedPool) searchKey(reader uuid.UUID, trustedAuthors []uuid.UUID, query []float32, limit int) string {
	h := sha256.New()
	_, _ = h.Write([]byte(reader.String()))
	for _, a := range trustedAuthors {
		_, _ = h.Write([]byte(a.String()))
	}
	for _, f := range query {
		var buf [4]byte
		binary.LittleEndian.PutUint32(buf[:], math.Float32bits(f))
		_, _ = h.Write(buf[:])
	}
	return fmt.Sprintf("shared_pool:search:%d:%x", limit, h.Sum(nil))
}

func (c *cachedSharedPool) Search(ctx context.Context, reader uuid.UUID, trustedAuthors []uuid.UUID, query []float32, limit int) ([]RankedShared, error) {
	key := c.searchKey(reader, trustedAuthors, query, limit)
	if val, err := c.client.Get(ctx, key).Result(); err == nil {
		var cached []RankedShared
		if jsonErr := json.Unmarshal([]byte(val), &cached); jsonErr == nil {
			return cached, nil
		}
	} else if err != redis.Nil {
		log.Debug().Err(err).Str("key", key).Msg("shared_pool_cache_get_error")
	}

	results, err := c.SharedPool.Search(ctx, reader, trustedAuthors, query, limit)
	if err != nil {
		return nil, err
	}

	if encoded, err := json.Marshal(results); err == nil {
		if err := c.client.Set(ctx, key, encoded, c.ttl).Err(); err != nil {
			log.Debug().Err(err).Str("key", key).Msg("shared_pool_cache_set_error")
		}
	}
	return results, nil
}
