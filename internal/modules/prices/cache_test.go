package prices

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestMemoryCache_Expiry(t *testing.T) {
	now := time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)
	cache := NewMemoryCache()
	cache.now = func() time.Time { return now }

	cache.Put("a", 1.5, 10*time.Second)

	v, ok := cache.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1.5, v)

	now = now.Add(10 * time.Second)
	_, ok = cache.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 0, cache.Len())
}

func TestMemoryCache_Purge(t *testing.T) {
	now := time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)
	cache := NewMemoryCache()
	cache.now = func() time.Time { return now }

	cache.Put("short", 1, time.Second)
	cache.Put("long", 2, time.Hour)

	now = now.Add(time.Minute)
	assert.Equal(t, 1, cache.Purge())
	assert.Equal(t, 1, cache.Len())

	_, ok := cache.Get("long")
	assert.True(t, ok)
}

func TestCachePurgeJob_Run(t *testing.T) {
	now := time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)
	cache := NewMemoryCache()
	cache.now = func() time.Time { return now }

	// Backfilled hours are written once and never read again
	for h := 0; h < 48; h++ {
		cache.Put(historicalKey("AAPL", now.Add(-time.Duration(h)*time.Hour)), 100.0, HistoricalTTL)
	}
	cache.Put(latestKey("AAPL"), 101.0, time.Hour*48)

	job := NewCachePurgeJob(cache, zerolog.Nop())
	assert.Equal(t, "price_cache_purge", job.Name())

	now = now.Add(HistoricalTTL)
	assert.NoError(t, job.Run())
	assert.Equal(t, 1, cache.Len())
}
