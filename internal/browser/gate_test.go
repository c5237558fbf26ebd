package browser

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"dropscout/services/cache"
)

// fakeCache is an in-memory CacheService ignoring expiration.
type fakeCache struct {
	entries map[string][]byte
}

var _ cache.CacheService = (*fakeCache)(nil)

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[string][]byte)}
}

func (f *fakeCache) Get(key string) ([]byte, error) {
	if v, ok := f.entries[key]; ok {
		return v, nil
	}
	return nil, errors.New("cache miss")
}

func (f *fakeCache) Set(key string, value []byte, _ time.Duration) error {
	f.entries[key] = value
	return nil
}

func (f *fakeCache) Delete(key string) error {
	delete(f.entries, key)
	return nil
}

func TestGateAllowsWhenNotBlocked(t *testing.T) {
	gate := NewGate(newFakeCache(), "rate_limited:test", time.Minute)
	assert.NoError(t, gate.Allow())
}

func TestGateBlocksAfterBlock(t *testing.T) {
	gate := NewGate(newFakeCache(), "rate_limited:test", time.Minute)

	gate.Block()
	err := gate.Allow()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "rate_limited:test")
}

func TestGateAllowsAgainAfterKeyExpires(t *testing.T) {
	cacheSvc := newFakeCache()
	gate := NewGate(cacheSvc, "rate_limited:test", time.Minute)

	gate.Block()
	assert.Error(t, gate.Allow())

	// the cool-off key expiring clears the block
	cacheSvc.Delete("rate_limited:test")
	assert.NoError(t, gate.Allow())
}

func TestNilGateIsOpen(t *testing.T) {
	var gate *Gate
	assert.NoError(t, gate.Allow())
	gate.Block()

	disabled := NewGate(nil, "rate_limited:test", time.Minute)
	assert.NoError(t, disabled.Allow())
}
