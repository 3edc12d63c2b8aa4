package token

import (
	"context"
	"time"

	"github.com/osa030/moodplay/internal/errs"
	"github.com/osa030/moodplay/internal/infra/cache"
)

const cacheCategory = "token_record"

// recordTTL is generous relative to a Catalog access token's own
// lifetime: the Token Manager re-validates against Record.ExpiresAt on
// every read, so the cache entry only needs to outlive the refresh
// token it also carries.
const recordTTL = 30 * 24 * time.Hour

// CacheStore persists token Records in the namespaced cache. Database
// schema for user tokens is explicitly out of scope (spec §1); this is
// the lightweight persistence the Token Manager needs to actually run.
type CacheStore struct {
	cache *cache.Manager
}

// NewCacheStore builds a CacheStore over cm.
func NewCacheStore(cm *cache.Manager) *CacheStore {
	return &CacheStore{cache: cm}
}

// Load implements Store.
func (s *CacheStore) Load(ctx context.Context, userID string) (Record, error) {
	var rec Record
	if !s.cache.GetJSON(ctx, cacheCategory, &rec, userID) {
		return Record{}, errs.NotFound("no token record for user " + userID)
	}
	return rec, nil
}

// Save implements Store.
func (s *CacheStore) Save(ctx context.Context, userID string, rec Record) error {
	s.cache.SetJSON(ctx, cacheCategory, rec, recordTTL, userID)
	return nil
}
