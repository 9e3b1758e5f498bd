package subscription

import (
	"errors"
	"fmt"
)

var (
	// ErrNoStationsAvailable means the station cache was empty at query time
	ErrNoStationsAvailable = errors.New("no stations available")

	// ErrAlreadySubscribed means the user already has the nearest station.
	// Nothing was written.
	ErrAlreadySubscribed = errors.New("already subscribed to this station")

	// ErrUnknownSubscription means the user has no subscription to the station
	ErrUnknownSubscription = errors.New("unknown subscription")

	ErrInvalidLocation = errors.New("invalid location")
)

// PersistenceError reports a failed durable write. The in-memory cache was
// not modified.
type PersistenceError struct {
	Op        string
	UserID    string
	StationID string
	Err       error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s subscription (user %s, station %s): %v", e.Op, e.UserID, e.StationID, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
