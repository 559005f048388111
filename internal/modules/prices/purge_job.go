package prices

import "github.com/rs/zerolog"

// CachePurgeJob drops expired entries from the in-process price cache.
// Historical closes are keyed per hour and rarely read twice, so lazy eviction alone never frees them.
type CachePurgeJob struct {
	cache *MemoryCache
	log   zerolog.Logger
}

// NewCachePurgeJob creates the purge job for cache
func NewCachePurgeJob(cache *MemoryCache, log zerolog.Logger) *CachePurgeJob {
	return &CachePurgeJob{
		cache: cache,
		log:   log.With().Str("job", "price_cache_purge").Logger(),
	}
}

// Name returns the job name for scheduling and logging
func (j *CachePurgeJob) Name() string {
	return "price_cache_purge"
}

// Run purges expired entries
func (j *CachePurgeJob) Run() error {
	removed := j.cache.Purge()
	if removed > 0 {
		j.log.Debug().
			Int("removed", removed).
			Int("remaining", j.cache.Len()).
			Msg("Purged expired price cache entries")
	}
	return nil
}
