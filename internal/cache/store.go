package cache

import (
	"sync"
	"time"

	"github.com/bbernstein/velobot/internal/models"
)

// Snapshot is a point-in-time copy of both caches. Callers own the maps and
// may read them freely without holding any lock.
type Snapshot struct {
	Stations      models.StationCache
	Subscriptions models.SubscriptionCache
	// Generation increases by one on every ReplaceStations call
	Generation  uint64
	LastUpdated time.Time
}

// Store is the sole owner of the station cache and the subscription cache.
// One mutex guards both maps and is only held for map copies and swaps,
// never across network or database calls.
type Store struct {
	mu            sync.Mutex
	stations      models.StationCache
	subscriptions models.SubscriptionCache
	generation    uint64
	lastUpdated   time.Time
}

func NewStore() *Store {
	return &Store{
		stations:      make(models.StationCache),
		subscriptions: make(models.SubscriptionCache),
	}
}

func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Snapshot{
		Stations:      s.stations.Clone(),
		Subscriptions: s.subscriptions.Clone(),
		Generation:    s.generation,
		LastUpdated:   s.lastUpdated,
	}
}

// ReplaceStations swaps in a complete new station map. The caller hands over
// ownership of stations and must not modify it afterwards.
func (s *Store) ReplaceStations(stations models.StationCache) {
	if stations == nil {
		stations = make(models.StationCache)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.stations = stations
	s.generation++
	s.lastUpdated = time.Now()
}

// PutSubscription sets or overwrites the entry for userID. An empty list is
// stored as an empty subscription so the user stays known.
func (s *Store) PutSubscription(userID string, stationIDs []string) {
	ids := make([]string, len(stationIDs))
	copy(ids, stationIDs)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.subscriptions[userID] = models.Subscription{
		UserID:     userID,
		StationIDs: ids,
	}
}

// Seed installs the subscriptions loaded from durable storage at startup
func (s *Store) Seed(subscriptions models.SubscriptionCache) {
	seeded := subscriptions.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.subscriptions = seeded
}
