package utils

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Cache key namespaces. All post-related responses live under these
// prefixes so invalidation can target a post, the listings, or the
// moderation stats independently.
const (
	cacheKeyListPrefix   = "cache:posts:list:"
	cacheKeyDetailPrefix = "cache:post:detail:"
	cacheKeyStatsPrefix  = "cache:stats"

	defaultCacheTTL = time.Hour
	cacheOpTimeout  = 2 * time.Second
)

// PostListCacheKey builds the cache key for one page of a category listing.
func PostListCacheKey(categoryID uint64, page, size int) string {
	return fmt.Sprintf("%scat=%d:page=%d:size=%d", cacheKeyListPrefix, categoryID, page, size)
}

// PostDetailCacheKey builds the cache key for a single post detail response.
func PostDetailCacheKey(postID string) string {
	return cacheKeyDetailPrefix + postID
}

// StatsCacheKey is the key for the cached moderation stats response.
func StatsCacheKey() string {
	return cacheKeyStatsPrefix + ":moderation"
}

// CacheGetBytes returns the cached response bytes for a key, or false on a
// miss. Absent Redis the cache is simply disabled.
func CacheGetBytes(key string) ([]byte, bool) {
	rc := GetRedis()
	if rc == nil {
		return nil, false
	}
	ctx, cancel := context.WithTimeout(context.Background(), cacheOpTimeout)
	defer cancel()
	b, err := rc.Get(ctx, key).Bytes()
	if err != nil {
		if Sugar != nil {
			Sugar.Debugf("cache miss key=%s err=%v", key, err)
		}
		return nil, false
	}
	return b, true
}

// CacheSetJSON marshals v and stores it under key. A non-positive ttl falls
// back to the default. Marshal or store failures only lose the cache entry.
func CacheSetJSON(key string, v interface{}, ttl time.Duration) {
	rc := GetRedis()
	if rc == nil {
		return
	}
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	ctx, cancel := context.WithTimeout(context.Background(), cacheOpTimeout)
	defer cancel()
	if err := rc.Set(ctx, key, b, ttl).Err(); err != nil && Sugar != nil {
		Sugar.Warnf("cache set failed key=%s err=%v", key, err)
	}
}

// InvalidatePostCaches drops every cached response a change to the given
// post can make stale: its detail view, all listings, and the stats.
func InvalidatePostCaches(postID string) {
	invalidateByPrefix(cacheKeyDetailPrefix + postID)
	InvalidateListingCaches()
}

// InvalidateListingCaches drops the category listings and the moderation
// stats, used when a post is created or quoted.
func InvalidateListingCaches() {
	invalidateByPrefix(cacheKeyListPrefix)
	invalidateByPrefix(cacheKeyStatsPrefix)
}

// InvalidatePostDetail drops only the detail view of one post, used when a
// comment changes without touching the listings.
func InvalidatePostDetail(postID string) {
	invalidateByPrefix(cacheKeyDetailPrefix + postID)
}

// invalidateByPrefix deletes matching keys via SCAN with a bounded number
// of rounds so a huge keyspace cannot stall the request.
func invalidateByPrefix(prefix string) {
	rc := GetRedis()
	if rc == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	var cursor uint64
	for i := 0; i < 10; i++ {
		keys, cur, err := rc.Scan(ctx, cursor, prefix+"*", 1000).Result()
		if err != nil {
			break
		}
		cursor = cur
		if len(keys) > 0 {
			pipe := rc.Pipeline()
			for _, k := range keys {
				pipe.Del(ctx, k)
			}
			_, _ = pipe.Exec(ctx)
		}
		if cursor == 0 {
			break
		}
	}
}
