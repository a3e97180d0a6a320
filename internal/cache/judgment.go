package cache

import (
	"encoding/json"
	"time"

	"datahound/internal/model"
)

// JudgmentCache stores relevance judgments keyed by normalized candidate
// identifier. A nil *JudgmentCache is a disabled cache: lookups miss and
// stores are dropped.
type JudgmentCache struct {
	store Cache
	ttl   time.Duration
}

// NewJudgmentCache wraps a byte cache with judgment serialization.
func NewJudgmentCache(store Cache, ttl time.Duration) *JudgmentCache {
	return &JudgmentCache{store: store, ttl: ttl}
}

// Lookup returns a live cached judgment. Expired entries are absent by
// contract; unparsable entries are dropped and reported as misses so
// they never short-circuit scoring.
func (c *JudgmentCache) Lookup(identifier string) (*model.Judgment, bool) {
	if c == nil || c.store == nil {
		return nil, false
	}
	key := Key("judgment", identifier)
	data, found := c.store.Get(key)
	if !found {
		return nil, false
	}
	var j model.Judgment
	if err := json.Unmarshal(data, &j); err != nil {
		_ = c.store.Delete(key)
		return nil, false
	}
	return &j, true
}

// Store caches a judgment for the configured TTL.
func (c *JudgmentCache) Store(identifier string, j *model.Judgment) error {
	if c == nil || c.store == nil || j == nil {
		return nil
	}
	data, err := json.Marshal(j)
	if err != nil {
		return err
	}
	return c.store.Set(Key("judgment", identifier), data, c.ttl)
}
