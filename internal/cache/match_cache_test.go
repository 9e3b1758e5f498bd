package cache

import (
	"testing"
	"time"

	"github.com/bbernstein/velobot/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMatchCache(t *testing.T, size int, ttl time.Duration) (*MatchCache, *mockClock) {
	t.Helper()
	c, err := NewMatchCache(config.New(config.WithMatchCache(size, ttl)))
	require.NoError(t, err)
	clock := &mockClock{now: time.Now()}
	c.clock = clock
	return c, clock
}

func TestMatchCacheHitAndMiss(t *testing.T) {
	c, _ := newTestMatchCache(t, 10, time.Minute)

	_, ok := c.Get(1, 55.75, 37.61)
	assert.False(t, ok)

	c.Add(1, 55.75, 37.61, "0101", 120.5)
	entry, ok := c.Get(1, 55.75, 37.61)
	require.True(t, ok)
	assert.Equal(t, "0101", entry.StationID)
	assert.Equal(t, 120.5, entry.Distance)

	assert.Equal(t, map[string]uint64{
		"match_hits":   1,
		"match_misses": 1,
		"match_size":   1,
	}, c.Stats())
}

func TestMatchCacheKeyedByGeneration(t *testing.T) {
	c, _ := newTestMatchCache(t, 10, time.Minute)

	c.Add(1, 55.75, 37.61, "0101", 10)
	_, ok := c.Get(2, 55.75, 37.61)
	assert.False(t, ok, "entry from an older station generation must not be reused")

	_, ok = c.Get(1, 55.75, 37.6100001)
	assert.False(t, ok, "different coordinates must not share an entry")
}

func TestMatchCacheExpiry(t *testing.T) {
	c, clock := newTestMatchCache(t, 10, time.Minute)

	c.Add(1, 1, 2, "A", 0)
	clock.Advance(30 * time.Second)
	_, ok := c.Get(1, 1, 2)
	assert.True(t, ok)

	clock.Advance(time.Minute)
	_, ok = c.Get(1, 1, 2)
	assert.False(t, ok)
	assert.Equal(t, uint64(0), c.Stats()["match_size"])
}

func TestMatchCacheEviction(t *testing.T) {
	c, _ := newTestMatchCache(t, 2, time.Minute)

	c.Add(1, 1, 1, "A", 0)
	c.Add(1, 2, 2, "B", 0)
	c.Add(1, 3, 3, "C", 0)

	_, ok := c.Get(1, 1, 1)
	assert.False(t, ok)
	assert.Equal(t, uint64(2), c.Stats()["match_size"])
}

func TestNewMatchCacheDefaultSize(t *testing.T) {
	c, err := NewMatchCache(&config.Config{MatchCacheTTL: time.Minute})
	require.NoError(t, err)

	for i := 0; i < config.DefaultMatchCacheSize+5; i++ {
		c.Add(1, float64(i), 0, "A", 0)
	}
	assert.Equal(t, uint64(config.DefaultMatchCacheSize), c.Stats()["match_size"])
}
