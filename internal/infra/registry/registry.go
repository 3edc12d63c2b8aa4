// Package registry implements the ID Registry of spec §4.2: a
// bidirectional Catalog-ID <-> Features-ID mapping cache with a
// long-lived negative cache for IDs known to be missing upstream, so
// repeat lookups skip a futile Features call entirely.
package registry

import (
	"context"
	"time"

	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/moodplay/internal/infra/cache"
)

const (
	directionForward = "forward" // catalog ID -> features ID
	directionReverse = "reverse" // features ID -> catalog ID
)

type missingEntry struct {
	CatalogID string    `json:"catalog_id"`
	Reason    string    `json:"reason"`
	MarkedAt  time.Time `json:"marked_at"`
}

type validatedEntry struct {
	CatalogID  string    `json:"catalog_id"`
	FeaturesID string    `json:"features_id"`
	ValidAt    time.Time `json:"validated_at"`
}

// Registry tracks which Catalog track IDs have a known Features-service
// mapping and which are known to be absent, so callers can short-circuit
// before spending an upstream request.
type Registry struct {
	cache *cache.Manager
}

// New wraps cache for use as an ID Registry.
func New(cm *cache.Manager) *Registry {
	return &Registry{cache: cm}
}

// MarkMissing records catalogID as absent from the Features service for
// 90 days (spec §4.2.1), so future lookups skip it without an API call.
func (r *Registry) MarkMissing(ctx context.Context, catalogID, reason string) {
	if reason == "" {
		reason = "ID not found in features service"
	}
	r.cache.SetMissingID(ctx, catalogID, missingEntry{
		CatalogID: catalogID,
		Reason:    reason,
		MarkedAt:  time.Now().UTC(),
	})
	zlog.Debug().Msgf("id registry: marked missing catalog_id=%s reason=%s", catalogID, reason)
}

// MarkValidated records a successful catalogID<->featuresID mapping in
// both directions for 180 days (spec §4.2.2).
func (r *Registry) MarkValidated(ctx context.Context, catalogID, featuresID string) {
	now := time.Now().UTC()
	r.cache.SetValidatedID(ctx, directionForward, catalogID, validatedEntry{
		CatalogID: catalogID, FeaturesID: featuresID, ValidAt: now,
	})
	r.cache.SetValidatedID(ctx, directionReverse, featuresID, validatedEntry{
		CatalogID: catalogID, FeaturesID: featuresID, ValidAt: now,
	})
	zlog.Debug().Msgf("id registry: validated catalog_id=%s features_id=%s", catalogID, featuresID)
}

// IsKnownMissing reports whether catalogID has an unexpired negative
// entry.
func (r *Registry) IsKnownMissing(ctx context.Context, catalogID string) bool {
	var entry missingEntry
	return r.cache.MissingID(ctx, catalogID, &entry)
}

// GetValidated returns the Features ID for catalogID if a forward
// mapping is cached.
func (r *Registry) GetValidated(ctx context.Context, catalogID string) (string, bool) {
	var entry validatedEntry
	if !r.cache.ValidatedID(ctx, directionForward, catalogID, &entry) {
		return "", false
	}
	return entry.FeaturesID, true
}

// GetCatalogID returns the Catalog ID for featuresID if a reverse
// mapping is cached.
func (r *Registry) GetCatalogID(ctx context.Context, featuresID string) (string, bool) {
	var entry validatedEntry
	if !r.cache.ValidatedID(ctx, directionReverse, featuresID, &entry) {
		return "", false
	}
	return entry.CatalogID, true
}

// BulkCheckMissing partitions ids into those still worth checking
// upstream and those already known missing (spec §4.2.3).
func (r *Registry) BulkCheckMissing(ctx context.Context, ids []string) (toCheck, knownMissing []string) {
	for _, id := range ids {
		if r.IsKnownMissing(ctx, id) {
			knownMissing = append(knownMissing, id)
		} else {
			toCheck = append(toCheck, id)
		}
	}
	if len(knownMissing) > 0 {
		zlog.Info().Msgf("id registry: skipped %d known-missing of %d ids", len(knownMissing), len(ids))
	}
	return toCheck, knownMissing
}

// BulkGetValidated returns cached catalog-ID -> features-ID mappings
// for as many of ids as are validated, without any upstream call
// (spec §4.2.3).
func (r *Registry) BulkGetValidated(ctx context.Context, ids []string) map[string]string {
	result := make(map[string]string)
	for _, id := range ids {
		if featuresID, ok := r.GetValidated(ctx, id); ok {
			result[id] = featuresID
		}
	}
	if len(result) > 0 {
		zlog.Info().Msgf("id registry: %d/%d ids resolved from cache", len(result), len(ids))
	}
	return result
}
