// Package lock models the coordinator's mutual-exclusion lock and the
// idempotency cache entry that shares its composite key.
package lock

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"

	"github.com/stewardhq/steward/internal/domain/model"
)

// Common lock errors
var (
	ErrLockNotFound   = errors.New("lock not found")
	ErrRecordNotFound = errors.New("idempotency record not found")
)

// Key is the composite coordination key. The same key scopes both the
// run lock and the idempotency cache entry for an invocation.
type Key struct {
	value string
}

// NewKey derives the coordination key for (entity, step, mode, actor)
func NewKey(entityID model.EntityID, step model.Step, mode model.RunMode, actor string) (Key, error) {
	if entityID.String() == "" {
		return Key{}, errors.New("entity ID cannot be empty")
	}
	if actor == "" {
		return Key{}, errors.New("actor cannot be empty")
	}
	h := sha256.New()
	h.Write([]byte(entityID.String()))
	h.Write([]byte{0})
	h.Write([]byte(step.String()))
	h.Write([]byte{0})
	h.Write([]byte(mode.String()))
	h.Write([]byte{0})
	h.Write([]byte(actor))
	return Key{value: hex.EncodeToString(h.Sum(nil))}, nil
}

// NewKeyFromString reconstructs a key from its persisted form
func NewKeyFromString(value string) (Key, error) {
	if value == "" {
		return Key{}, errors.New("lock key cannot be empty")
	}
	return Key{value: value}, nil
}

// String returns the hex representation of the key
func (k Key) String() string {
	return k.value
}

// Equals checks if two keys are equal
func (k Key) Equals(other Key) bool {
	return k.value == other.value
}
