package models

import "slices"

// Subscription is the ordered set of stations a user wants updates about.
// StationIDs keeps subscribe order and never holds duplicates.
type Subscription struct {
	UserID     string   `json:"userId" dynamodbav:"userId"`
	StationIDs []string `json:"stationIds"`
}

// Contains reports whether the user is already subscribed to stationID
func (s Subscription) Contains(stationID string) bool {
	return slices.Contains(s.StationIDs, stationID)
}

// With returns a copy of the station list with stationID appended.
// The receiver is left untouched.
func (s Subscription) With(stationID string) []string {
	out := make([]string, 0, len(s.StationIDs)+1)
	out = append(out, s.StationIDs...)
	return append(out, stationID)
}

// Without returns a copy of the station list with stationID removed
func (s Subscription) Without(stationID string) []string {
	out := make([]string, 0, len(s.StationIDs))
	for _, id := range s.StationIDs {
		if id != stationID {
			out = append(out, id)
		}
	}
	return out
}

// SubscriptionCache maps user id to that user's subscription
type SubscriptionCache map[string]Subscription

// Clone copies the map structure. Station id slices are shared with the
// source; writers always install fresh slices instead of mutating.
func (c SubscriptionCache) Clone() SubscriptionCache {
	out := make(SubscriptionCache, len(c))
	for id, s := range c {
		out[id] = s
	}
	return out
}

// SubscriptionRecord is one durable (user, station) pair
type SubscriptionRecord struct {
	UserID    string `json:"userId" dynamodbav:"userId"`
	StationID string `json:"stationId" dynamodbav:"stationId"`
	CreatedAt int64  `json:"createdAt,omitempty" dynamodbav:"createdAt,omitempty"`
}

// GroupSubscriptions folds durable rows into a cache, keeping row order per
// user and dropping repeated pairs.
func GroupSubscriptions(records []SubscriptionRecord) SubscriptionCache {
	out := make(SubscriptionCache)
	for _, r := range records {
		sub := out[r.UserID]
		sub.UserID = r.UserID
		if sub.Contains(r.StationID) {
			continue
		}
		sub.StationIDs = append(sub.StationIDs, r.StationID)
		out[r.UserID] = sub
	}
	return out
}
