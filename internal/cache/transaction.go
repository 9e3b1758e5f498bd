package cache

import (
	"sync"

	"github.com/bbernstein/velobot/internal/models"
)

// Coordinator implements the snapshot, compute, commit pattern used by every
// subscription mutation. Commit overwrites unconditionally; lost updates for
// one user are prevented by running that user's transactions one at a time
// through Begin.
type Coordinator struct {
	store *Store

	mu    sync.Mutex
	users map[string]*userLock
}

type userLock struct {
	mu   sync.Mutex
	refs int
}

func NewCoordinator(store *Store) *Coordinator {
	return &Coordinator{
		store: store,
		users: make(map[string]*userLock),
	}
}

// Open returns a consistent copy of both caches
func (c *Coordinator) Open() Snapshot {
	return c.store.Snapshot()
}

// Commit installs the new station list for userID
func (c *Coordinator) Commit(userID string, stationIDs []string) {
	c.store.PutSubscription(userID, stationIDs)
}

// Seed installs subscriptions loaded from durable storage. Call it before
// any transaction starts.
func (c *Coordinator) Seed(subscriptions models.SubscriptionCache) {
	c.store.Seed(subscriptions)
}

// Tx is a per-user transaction. Only one Tx per user is live at a time; Tx
// for different users run concurrently. The store lock is not held between
// Open and Commit.
type Tx struct {
	c      *Coordinator
	userID string
	lock   *userLock
	done   bool
}

// Begin blocks until no other transaction for userID is in flight.
// The returned Tx must be finished with End.
func (c *Coordinator) Begin(userID string) *Tx {
	c.mu.Lock()
	l, ok := c.users[userID]
	if !ok {
		l = &userLock{}
		c.users[userID] = l
	}
	l.refs++
	c.mu.Unlock()

	l.mu.Lock()
	return &Tx{c: c, userID: userID, lock: l}
}

func (t *Tx) Open() Snapshot {
	return t.c.Open()
}

func (t *Tx) Commit(stationIDs []string) {
	t.c.Commit(t.userID, stationIDs)
}

// End releases the user's slot. Calling End twice is a no-op.
func (t *Tx) End() {
	if t.done {
		return
	}
	t.done = true
	t.lock.mu.Unlock()

	t.c.mu.Lock()
	defer t.c.mu.Unlock()
	t.lock.refs--
	if t.lock.refs == 0 {
		delete(t.c.users, t.userID)
	}
}

// inFlight reports how many users currently hold or wait for a transaction
func (c *Coordinator) inFlight() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.users)
}
