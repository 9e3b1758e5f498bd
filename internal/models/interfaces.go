package models

import (
	"context"
	"errors"
)

// ErrDuplicateSubscription is returned by SubscriptionRepository.Insert when
// the (user, station) pair is already stored
var ErrDuplicateSubscription = errors.New("subscription already exists")

// StationFeed fetches the full station list from the external feed
type StationFeed interface {
	FetchStations(ctx context.Context) ([]Station, error)
}

// SubscriptionRepository is the durable store for (user, station) pairs
type SubscriptionRepository interface {
	LoadAll(ctx context.Context) ([]SubscriptionRecord, error)
	Insert(ctx context.Context, userID, stationID string) error
	Delete(ctx context.Context, userID, stationID string) error
}

// StationSnapshotStore keeps the last good station list outside the process
// so a restart can serve requests before the first refresh completes.
type StationSnapshotStore interface {
	GetStations(ctx context.Context) ([]Station, error)
	SaveStations(ctx context.Context, stations []Station) error
}
