package lock

import (
	"time"

	"github.com/stewardhq/steward/internal/domain/model"
)

// IdempotencyTTL is the replay window for cached responses
const IdempotencyTTL = time.Hour

// IdempotencyRecord caches a completed invocation's response so a repeated
// request replays it verbatim instead of re-executing side effects.
type IdempotencyRecord struct {
	key            Key
	cachedResponse string
	createdAt      model.Timestamp
	expiresAt      model.Timestamp
}

// NewIdempotencyRecord creates a record caching response for the TTL window
func NewIdempotencyRecord(key Key, cachedResponse string, ttl time.Duration) *IdempotencyRecord {
	now := time.Now().UTC()
	return &IdempotencyRecord{
		key:            key,
		cachedResponse: cachedResponse,
		createdAt:      model.NewTimestampFromTime(now),
		expiresAt:      model.NewTimestampFromTime(now.Add(ttl)),
	}
}

// ReconstructIdempotencyRecord rebuilds a record from persisted data
func ReconstructIdempotencyRecord(key Key, cachedResponse string, createdAt, expiresAt time.Time) *IdempotencyRecord {
	return &IdempotencyRecord{
		key:            key,
		cachedResponse: cachedResponse,
		createdAt:      model.NewTimestampFromTime(createdAt),
		expiresAt:      model.NewTimestampFromTime(expiresAt),
	}
}

// Key returns the coordination key
func (r *IdempotencyRecord) Key() Key { return r.key }

// CachedResponse returns the serialized response to replay
func (r *IdempotencyRecord) CachedResponse() string { return r.cachedResponse }

// CreatedAt returns the creation timestamp
func (r *IdempotencyRecord) CreatedAt() model.Timestamp { return r.createdAt }

// ExpiresAt returns the expiry timestamp
func (r *IdempotencyRecord) ExpiresAt() model.Timestamp { return r.expiresAt }

// IsExpired checks if the replay window has passed
func (r *IdempotencyRecord) IsExpired() bool {
	return time.Now().UTC().After(r.expiresAt.Value())
}
