package refresher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bbernstein/velobot/internal/cache"
	"github.com/bbernstein/velobot/internal/config"
	"github.com/bbernstein/velobot/internal/feed"
	"github.com/bbernstein/velobot/internal/models"
	"github.com/rs/zerolog/log"
)

const snapshotSaveTimeout = 30 * time.Second

// Status describes the refresh loop for health reporting
type Status struct {
	LastAttempt  time.Time `json:"lastAttempt"`
	LastSuccess  time.Time `json:"lastSuccess"`
	LastError    string    `json:"lastError,omitempty"`
	Cycles       uint64    `json:"cycles"`
	Failures     uint64    `json:"failures"`
	StationCount int       `json:"stationCount"`
	WarmStarted  bool      `json:"warmStarted"`
}

// Refresher keeps the station cache in step with the external feed. Each
// cycle either installs a complete new station map or leaves the previous
// one untouched.
type Refresher struct {
	feed      models.StationFeed
	store     *cache.Store
	snapshots models.StationSnapshotStore
	interval  time.Duration

	mu     sync.Mutex
	status Status
	saves  sync.WaitGroup
}

// NewRefresher creates a refresher. snapshots may be nil to disable the
// S3 warm start copy.
func NewRefresher(feed models.StationFeed, store *cache.Store, snapshots models.StationSnapshotStore, interval time.Duration) *Refresher {
	if interval <= 0 {
		interval = config.DefaultRefreshInterval
	}
	return &Refresher{
		feed:      feed,
		store:     store,
		snapshots: snapshots,
		interval:  interval,
	}
}

// Run refreshes immediately and then once per interval until ctx is done.
// A failed cycle is logged and the loop carries on.
func (r *Refresher) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	defer r.saves.Wait()

	log.Info().Dur("interval", r.interval).Msg("Starting station refresher")

	for ctx.Err() == nil {
		if err := r.RefreshOnce(ctx); err != nil && ctx.Err() == nil {
			logCycleError(err)
		}

		select {
		case <-ctx.Done():
		case <-ticker.C:
		}
	}

	log.Info().Msg("Station refresher stopped")
	return nil
}

// RefreshOnce runs a single fetch, parse and replace cycle
func (r *Refresher) RefreshOnce(ctx context.Context) error {
	start := time.Now()

	stations, err := r.feed.FetchStations(ctx)
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	if err != nil {
		r.recordFailure(start, err)
		return err
	}

	next := models.NewStationCache(stations)
	r.store.ReplaceStations(next)
	r.recordSuccess(start, len(next))

	log.Debug().
		Int("station_count", len(next)).
		Dur("duration", time.Since(start)).
		Msg("Refreshed station cache")

	if r.snapshots != nil {
		r.saveSnapshot(ctx, stations)
	}
	return nil
}

// WarmStart primes the store from the last saved snapshot. It must run
// before Run so it can never overwrite fresher feed data.
func (r *Refresher) WarmStart(ctx context.Context) error {
	if r.snapshots == nil {
		return nil
	}

	stations, err := r.snapshots.GetStations(ctx)
	if err != nil {
		return fmt.Errorf("loading station snapshot: %w", err)
	}
	if len(stations) == 0 {
		log.Debug().Msg("No station snapshot available for warm start")
		return nil
	}

	next := models.NewStationCache(stations)
	r.store.ReplaceStations(next)

	r.mu.Lock()
	r.status.WarmStarted = true
	r.status.StationCount = len(next)
	r.mu.Unlock()

	log.Info().Int("station_count", len(next)).Msg("Warm started station cache from snapshot")
	return nil
}

// Status returns a copy of the current loop status
func (r *Refresher) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

func (r *Refresher) saveSnapshot(ctx context.Context, stations []models.Station) {
	r.saves.Add(1)
	go func() {
		defer r.saves.Done()

		saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), snapshotSaveTimeout)
		defer cancel()

		if err := r.snapshots.SaveStations(saveCtx, stations); err != nil {
			log.Warn().Err(err).Msg("Failed to save station snapshot")
		}
	}()
}

func (r *Refresher) recordSuccess(start time.Time, count int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.status.Cycles++
	r.status.LastAttempt = start
	r.status.LastSuccess = start
	r.status.LastError = ""
	r.status.StationCount = count
}

func (r *Refresher) recordFailure(start time.Time, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.status.Cycles++
	r.status.Failures++
	r.status.LastAttempt = start
	r.status.LastError = err.Error()
}

func logCycleError(err error) {
	var malformed *feed.MalformedItemError
	var fetchErr *feed.FetchError

	event := log.Error().Err(err)
	switch {
	case errors.As(err, &malformed):
		event = event.Str("kind", "malformed_item").Int("item_index", malformed.Index)
	case errors.As(err, &fetchErr):
		event = event.Str("kind", "fetch_failure").Int("status_code", fetchErr.StatusCode)
	}
	event.Msg("Station refresh failed, keeping previous cache")
}
