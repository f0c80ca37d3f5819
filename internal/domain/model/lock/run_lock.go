package lock

import (
	"time"

	"github.com/stewardhq/steward/internal/domain/model"
)

// DefaultTTL is the lock lifetime; an expired lock is inert and
// immediately reclaimable by any new request.
const DefaultTTL = 5 * time.Minute

// RunLock guarantees at-most-one concurrent coordinator execution per key
type RunLock struct {
	key        Key
	holder     string
	acquiredAt model.Timestamp
	expiresAt  model.Timestamp
}

// NewRunLock creates a lock held by holder for the given TTL
func NewRunLock(key Key, holder string, ttl time.Duration) *RunLock {
	now := time.Now().UTC()
	return &RunLock{
		key:        key,
		holder:     holder,
		acquiredAt: model.NewTimestampFromTime(now),
		expiresAt:  model.NewTimestampFromTime(now.Add(ttl)),
	}
}

// ReconstructRunLock rebuilds a lock from persisted data
func ReconstructRunLock(key Key, holder string, acquiredAt, expiresAt time.Time) *RunLock {
	return &RunLock{
		key:        key,
		holder:     holder,
		acquiredAt: model.NewTimestampFromTime(acquiredAt),
		expiresAt:  model.NewTimestampFromTime(expiresAt),
	}
}

// Key returns the coordination key
func (l *RunLock) Key() Key { return l.key }

// Holder returns the holder identity
func (l *RunLock) Holder() string { return l.holder }

// AcquiredAt returns the acquisition timestamp
func (l *RunLock) AcquiredAt() model.Timestamp { return l.acquiredAt }

// ExpiresAt returns the expiry timestamp
func (l *RunLock) ExpiresAt() model.Timestamp { return l.expiresAt }

// IsExpired checks if the lock has expired
func (l *RunLock) IsExpired() bool {
	return time.Now().UTC().After(l.expiresAt.Value())
}

// RemainingTime returns the time until expiry
func (l *RunLock) RemainingTime() time.Duration {
	return time.Until(l.expiresAt.Value())
}
