package storage

import (
	"context"
	"sync"

	"github.com/bbernstein/velobot/internal/models"
)

// MemoryRepository keeps subscriptions in process memory. Used when no
// DynamoDB table is configured and in tests.
type MemoryRepository struct {
	mu      sync.Mutex
	records []models.SubscriptionRecord
}

var _ models.SubscriptionRepository = (*MemoryRepository)(nil)

func NewMemoryRepository(records ...models.SubscriptionRecord) *MemoryRepository {
	r := &MemoryRepository{}
	r.records = append(r.records, records...)
	return r
}

func (r *MemoryRepository) LoadAll(_ context.Context) ([]models.SubscriptionRecord, error) {
	return r.Records(), nil
}

func (r *MemoryRepository) Insert(_ context.Context, userID, stationID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.indexOf(userID, stationID) >= 0 {
		return models.ErrDuplicateSubscription
	}
	r.records = append(r.records, models.SubscriptionRecord{UserID: userID, StationID: stationID})
	return nil
}

func (r *MemoryRepository) Delete(_ context.Context, userID, stationID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if i := r.indexOf(userID, stationID); i >= 0 {
		r.records = append(r.records[:i], r.records[i+1:]...)
	}
	return nil
}

// Records returns a copy of every stored pair in insertion order
func (r *MemoryRepository) Records() []models.SubscriptionRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]models.SubscriptionRecord, len(r.records))
	copy(out, r.records)
	return out
}

func (r *MemoryRepository) indexOf(userID, stationID string) int {
	for i, rec := range r.records {
		if rec.UserID == userID && rec.StationID == stationID {
			return i
		}
	}
	return -1
}
