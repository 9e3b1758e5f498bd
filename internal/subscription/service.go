package subscription

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bbernstein/velobot/internal/cache"
	"github.com/bbernstein/velobot/internal/models"
	"github.com/bbernstein/velobot/internal/station"
	"github.com/rs/zerolog/log"
)

// StationSummary is the descriptive view of a station handed to the
// messaging layer. Available is false when a subscribed station is no
// longer reported by the feed; only ID is set in that case.
type StationSummary struct {
	ID                string          `json:"id"`
	Available         bool            `json:"available"`
	Address           string          `json:"address,omitempty"`
	Location          models.Location `json:"location"`
	OrdinaryAvailable int             `json:"ordinaryAvailable"`
	OrdinaryCapacity  int             `json:"ordinaryCapacity"`
	ElectricAvailable int             `json:"electricAvailable"`
	ElectricCapacity  int             `json:"electricCapacity"`
	Distance          float64         `json:"distance,omitempty"`
}

func summarize(s models.Station) StationSummary {
	return StationSummary{
		ID:                s.ID,
		Available:         true,
		Address:           s.Address,
		Location:          s.Location,
		OrdinaryAvailable: s.OrdinaryAvailable,
		OrdinaryCapacity:  s.OrdinaryCapacity,
		ElectricAvailable: s.ElectricAvailable,
		ElectricCapacity:  s.ElectricCapacity,
	}
}

// Service adds and removes subscriptions. Every mutation writes through to
// the repository first and only then commits to the in-memory cache.
type Service struct {
	coordinator    *cache.Coordinator
	repo           models.SubscriptionRepository
	matches        *cache.MatchCache
	persistTimeout time.Duration
}

// NewService wires the service. matches may be nil to disable memoization;
// a zero persistTimeout leaves repository calls unbounded.
func NewService(coordinator *cache.Coordinator, repo models.SubscriptionRepository, matches *cache.MatchCache, persistTimeout time.Duration) *Service {
	return &Service{
		coordinator:    coordinator,
		repo:           repo,
		matches:        matches,
		persistTimeout: persistTimeout,
	}
}

// Load seeds the subscription cache from the repository
func (s *Service) Load(ctx context.Context) error {
	ctx, cancel := s.persistContext(ctx)
	defer cancel()

	records, err := s.repo.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("loading subscriptions: %w", err)
	}

	subs := models.GroupSubscriptions(records)
	s.coordinator.Seed(subs)

	log.Info().
		Int("user_count", len(subs)).
		Int("record_count", len(records)).
		Msg("Loaded subscriptions")
	return nil
}

// SubscribeNearest subscribes the user to the station closest to at and
// returns it. When the user already has that station the summary is
// returned together with ErrAlreadySubscribed.
func (s *Service) SubscribeNearest(ctx context.Context, userID string, at models.Location) (StationSummary, error) {
	if err := at.Validate(); err != nil {
		return StationSummary{}, fmt.Errorf("%w: %v", ErrInvalidLocation, err)
	}

	tx := s.coordinator.Begin(userID)
	defer tx.End()

	snap := tx.Open()
	match, ok := s.nearest(snap, at)
	if !ok {
		return StationSummary{}, ErrNoStationsAvailable
	}

	summary := summarize(match.Station)
	summary.Distance = match.Distance

	current := snap.Subscriptions[userID]
	if current.Contains(match.Station.ID) {
		log.Debug().Str("user_id", userID).Str("station_id", match.Station.ID).Msg("Already subscribed")
		return summary, ErrAlreadySubscribed
	}
	updated := current.With(match.Station.ID)

	if err := s.insert(ctx, userID, match.Station.ID); err != nil {
		if errors.Is(err, models.ErrDuplicateSubscription) {
			// Durable store already has the pair; bring the cache in line.
			log.Warn().Str("user_id", userID).Str("station_id", match.Station.ID).Msg("Subscription existed in storage but not in cache")
			tx.Commit(updated)
			return summary, ErrAlreadySubscribed
		}
		log.Error().Err(err).Str("user_id", userID).Str("station_id", match.Station.ID).Msg("Failed to persist subscription")
		return StationSummary{}, &PersistenceError{Op: "insert", UserID: userID, StationID: match.Station.ID, Err: err}
	}

	tx.Commit(updated)
	log.Info().
		Str("user_id", userID).
		Str("station_id", match.Station.ID).
		Float64("distance_m", match.Distance).
		Msg("Subscribed to nearest station")
	return summary, nil
}

// Unsubscribe removes stationID from the user's list. The station does not
// have to be in the current feed.
func (s *Service) Unsubscribe(ctx context.Context, userID, stationID string) error {
	tx := s.coordinator.Begin(userID)
	defer tx.End()

	current, ok := tx.Open().Subscriptions[userID]
	if !ok || !current.Contains(stationID) {
		return ErrUnknownSubscription
	}

	if err := s.delete(ctx, userID, stationID); err != nil {
		log.Error().Err(err).Str("user_id", userID).Str("station_id", stationID).Msg("Failed to delete subscription")
		return &PersistenceError{Op: "delete", UserID: userID, StationID: stationID, Err: err}
	}

	tx.Commit(current.Without(stationID))
	log.Info().Str("user_id", userID).Str("station_id", stationID).Msg("Unsubscribed")
	return nil
}

// ListSubscriptions returns the user's stations in subscribe order, read
// from one snapshot. A user with no subscriptions gets an empty list.
func (s *Service) ListSubscriptions(_ context.Context, userID string) []StationSummary {
	snap := s.coordinator.Open()

	sub := snap.Subscriptions[userID]
	out := make([]StationSummary, 0, len(sub.StationIDs))
	for _, id := range sub.StationIDs {
		st, ok := snap.Stations[id]
		if !ok {
			out = append(out, StationSummary{ID: id})
			continue
		}
		out = append(out, summarize(st))
	}
	return out
}

func (s *Service) nearest(snap cache.Snapshot, at models.Location) (station.Match, bool) {
	if s.matches != nil {
		if entry, ok := s.matches.Get(snap.Generation, at.Latitude, at.Longitude); ok {
			if st, ok := snap.Stations[entry.StationID]; ok {
				return station.Match{Station: st, Distance: entry.Distance}, true
			}
		}
	}

	match, ok := station.FindNearest(snap.Stations, at)
	if ok && s.matches != nil {
		s.matches.Add(snap.Generation, at.Latitude, at.Longitude, match.Station.ID, match.Distance)
	}
	return match, ok
}

func (s *Service) insert(ctx context.Context, userID, stationID string) error {
	ctx, cancel := s.persistContext(ctx)
	defer cancel()
	return s.repo.Insert(ctx, userID, stationID)
}

func (s *Service) delete(ctx context.Context, userID, stationID string) error {
	ctx, cancel := s.persistContext(ctx)
	defer cancel()
	return s.repo.Delete(ctx, userID, stationID)
}

func (s *Service) persistContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.persistTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.persistTimeout)
}
