package cache

import (
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/bbernstein/velobot/internal/config"
	lru "github.com/hashicorp/golang-lru/v2"
)

// MatchEntry is a memoized nearest-station answer
type MatchEntry struct {
	StationID string
	Distance  float64
	ExpiresAt time.Time
}

// MatchCache memoizes nearest-station lookups. Keys include the station
// generation, so a refresh makes every older entry unreachable.
type MatchCache struct {
	lru    *lru.Cache[string, *MatchEntry]
	ttl    time.Duration
	clock  clock
	hits   atomic.Uint64
	misses atomic.Uint64
}

func NewMatchCache(cfg *config.Config) (*MatchCache, error) {
	size := cfg.MatchCacheSize
	if size <= 0 {
		size = config.DefaultMatchCacheSize
	}

	l, err := lru.New[string, *MatchEntry](size)
	if err != nil {
		return nil, fmt.Errorf("creating LRU cache: %w", err)
	}

	return &MatchCache{
		lru:   l,
		ttl:   cfg.MatchCacheTTL,
		clock: realClock{},
	}, nil
}

func matchKey(generation uint64, lat, lon float64) string {
	return strconv.FormatUint(generation, 10) + ":" +
		strconv.FormatFloat(lat, 'g', -1, 64) + ":" +
		strconv.FormatFloat(lon, 'g', -1, 64)
}

func (c *MatchCache) Get(generation uint64, lat, lon float64) (*MatchEntry, bool) {
	key := matchKey(generation, lat, lon)
	if entry, ok := c.lru.Get(key); ok {
		if c.clock.Now().Before(entry.ExpiresAt) {
			c.hits.Add(1)
			return entry, true
		}
		c.lru.Remove(key)
	}
	c.misses.Add(1)
	return nil, false
}

func (c *MatchCache) Add(generation uint64, lat, lon float64, stationID string, distance float64) {
	c.lru.Add(matchKey(generation, lat, lon), &MatchEntry{
		StationID: stationID,
		Distance:  distance,
		ExpiresAt: c.clock.Now().Add(c.ttl),
	})
}

// Stats returns hit and miss counters
func (c *MatchCache) Stats() map[string]uint64 {
	return map[string]uint64{
		"match_hits":   c.hits.Load(),
		"match_misses": c.misses.Load(),
		"match_size":   uint64(c.lru.Len()),
	}
}
