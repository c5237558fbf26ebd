package browser

import (
	"fmt"
	"time"

	"dropscout/services/cache"
)

// Gate is a cache-backed cool-off guard for one marketplace. After the
// remote site rate-limits us the marketplace key is blocked for BlockTime
// and every attempt during that window is refused locally.
type Gate struct {
	cacheSvc  cache.CacheService
	key       string
	blockTime time.Duration
}

// NewGate creates a gate keyed by marketplace name. A nil cache service
// disables the guard.
func NewGate(cacheSvc cache.CacheService, key string, blockTime time.Duration) *Gate {
	return &Gate{
		cacheSvc:  cacheSvc,
		key:       key,
		blockTime: blockTime,
	}
}

// Allow returns an error while the marketplace is in its cool-off window.
func (g *Gate) Allow() error {
	if g == nil || g.cacheSvc == nil || g.key == "" {
		return nil
	}
	if _, err := g.cacheSvc.Get(g.key); err == nil {
		return fmt.Errorf("%s: blocked for %d more seconds at most", g.key, int(g.blockTime/time.Second))
	}
	return nil
}

// Block starts the cool-off window after a rate-limit response.
func (g *Gate) Block() {
	if g == nil || g.cacheSvc == nil || g.key == "" {
		return
	}
	value := []byte(fmt.Sprintf("%d", int(g.blockTime/time.Second)))
	g.cacheSvc.Set(g.key, value, g.blockTime)
}
