// Package cache stores GitHub responses so repeated GETs can be revalidated
// with If-None-Match / If-Modified-Since instead of refetched. A 304 from
// GitHub does not count against the core rate limit, so a warm cache
// stretches the quota of long pagination walks.
//
// Two stores are provided:
//
//   - Manager keeps entries in Redis and can be shared between processes.
//   - MemoryStore keeps entries in a process-local map.
//
// # Basic Usage
//
//	redisClient := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	store := cache.NewManager(redisClient)
//
//	key, err := cache.KeyForURL("https://api.github.com/repos/octo/hello/issues?state=open", "octocat")
//	if err != nil {
//		return err
//	}
//
//	entry, err := store.Get(ctx, key)
//	if errors.Is(err, cache.ErrCacheMiss) {
//		// fetch from GitHub
//	}
//
// Entries are retained for a fixed window after they are stored
// (DefaultRetention unless configured); freshness is always decided by
// GitHub through conditional requests, never by the local copy.
//
// A request carrying "Cache-Control: no-cache" bypasses the cache in both
// directions for the lookup. See IsNoCache.
package cache
