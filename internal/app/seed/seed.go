// Package seed implements the Seed Gatherer of spec §4.8: it produces
// the seed and negative-seed track lists the candidate generators
// consume, merging user mentions with top tracks/artists and
// resolving Catalog IDs to Features IDs through the ID Registry.
package seed

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/osa030/moodplay/internal/domain/track"
	"github.com/osa030/moodplay/internal/infra/cache"
	"github.com/osa030/moodplay/internal/infra/catalog"
	"github.com/osa030/moodplay/internal/infra/features"
	"github.com/osa030/moodplay/internal/infra/registry"
)

const (
	remixModeCap       = 30
	maxNegativeSeeds   = 5
	featuresBatchSize  = 40
	defaultTopTracksN  = 20
	defaultTopArtistsN = 20
)

// ProgressReporter receives the sub-step labels spec §4.8 requires
// ("Emit progress labels ... at each sub-step so callers can drive a
// progress UI"). Implementations must not block.
type ProgressReporter interface {
	Report(label string)
}

// NoopProgress discards every label; the zero value is ready to use.
type NoopProgress struct{}

// Report implements ProgressReporter.
func (NoopProgress) Report(string) {}

// CatalogClient is the subset of the Catalog client the gatherer needs.
type CatalogClient interface {
	GetTopTracks(ctx context.Context, timeRange catalog.TimeRange, limit int) ([]track.Candidate, error)
	GetTopArtists(ctx context.Context, timeRange catalog.TimeRange, limit int) ([]catalog.Artist, error)
}

// FeaturesClient is the subset of the Features client the gatherer
// needs to resolve Catalog IDs to Features IDs.
type FeaturesClient interface {
	GetMultipleTracks(ctx context.Context, ids []string) ([]features.Track, error)
}

// Request bundles the inputs Gather needs.
type Request struct {
	UserID               string
	TimeRange            catalog.TimeRange
	Limit                int
	RemixTrackIDs        []string // non-empty triggers remix mode
	UserMentionedTracks  []track.Candidate
	PreviousIterationLow []track.Candidate // outliers scored below the per-iteration floor
}

// Result is what the gatherer hands to the candidate generators.
type Result struct {
	SeedTracks      []track.Candidate
	SeedFeaturesIDs []string // Features-side IDs of the SeedTracks that resolved, in SeedTracks order; unresolved tracks are omitted
	TopArtists      []catalog.Artist
	NegativeSeeds   []string
}

// Gatherer is the Seed Gatherer of spec §4.8.
type Gatherer struct {
	catalog  CatalogClient
	features FeaturesClient
	registry *registry.Registry
	cache    *cache.Manager
	progress ProgressReporter
}

// New builds a Gatherer. progress may be nil, in which case progress
// labels are discarded.
func New(catalogClient CatalogClient, featuresClient FeaturesClient, reg *registry.Registry, cm *cache.Manager, progress ProgressReporter) *Gatherer {
	if progress == nil {
		progress = NoopProgress{}
	}
	return &Gatherer{catalog: catalogClient, features: featuresClient, registry: reg, cache: cm, progress: progress}
}

// Gather runs the four steps of spec §4.8.
func (g *Gatherer) Gather(ctx context.Context, req Request) (*Result, error) {
	topTracks, topArtists, err := g.fetchTopTracksAndArtists(ctx, req)
	if err != nil {
		return nil, err
	}
	g.progress.Report("gathering_seeds_tracks_fetched")

	merged := mergeUserMentioned(req.UserMentionedTracks, topTracks)
	g.progress.Report("gathering_seeds_merged")

	featuresIDs := g.resolveFeaturesIDs(ctx, merged)
	g.progress.Report("gathering_seeds_resolved")

	negatives := deriveNegativeSeeds(req.PreviousIterationLow)

	return &Result{
		SeedTracks:      merged,
		SeedFeaturesIDs: featuresIDs,
		TopArtists:      topArtists,
		NegativeSeeds:   negatives,
	}, nil
}

// fetchTopTracksAndArtists implements step 1: Catalog top tracks/top
// artists, cached 30 minutes per (user_id, time_range, limit), or the
// supplied remix list (capped at 30) in remix mode.
func (g *Gatherer) fetchTopTracksAndArtists(ctx context.Context, req Request) ([]track.Candidate, []catalog.Artist, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = defaultTopTracksN
	}

	if len(req.RemixTrackIDs) > 0 {
		ids := req.RemixTrackIDs
		if len(ids) > remixModeCap {
			ids = ids[:remixModeCap]
		}
		tracks := make([]track.Candidate, len(ids))
		for i, id := range ids {
			tracks[i] = track.Candidate{ID: id}
		}
		return tracks, nil, nil
	}

	var topTracks []track.Candidate
	if g.cache != nil && g.cache.TopTracks(ctx, req.UserID, string(req.TimeRange), limit, &topTracks) {
		log.Debug().Str("user_id", req.UserID).Msg("seed gatherer: top tracks cache hit")
	} else {
		t, err := g.catalog.GetTopTracks(ctx, req.TimeRange, limit)
		if err != nil {
			return nil, nil, err
		}
		topTracks = t
		if g.cache != nil {
			g.cache.SetTopTracks(ctx, req.UserID, string(req.TimeRange), limit, topTracks)
		}
	}

	artistLimit := defaultTopArtistsN
	var topArtists []catalog.Artist
	if g.cache != nil && g.cache.TopArtists(ctx, req.UserID, string(req.TimeRange), artistLimit, &topArtists) {
		log.Debug().Str("user_id", req.UserID).Msg("seed gatherer: top artists cache hit")
	} else {
		a, err := g.catalog.GetTopArtists(ctx, req.TimeRange, artistLimit)
		if err != nil {
			return nil, nil, err
		}
		topArtists = a
		if g.cache != nil {
			g.cache.SetTopArtists(ctx, req.UserID, string(req.TimeRange), artistLimit, topArtists)
		}
	}

	return topTracks, topArtists, nil
}

// mergeUserMentioned implements step 2: user-mentioned tracks go to
// the front, deduplicated by track id.
func mergeUserMentioned(mentioned, topTracks []track.Candidate) []track.Candidate {
	seen := make(map[string]bool, len(mentioned)+len(topTracks))
	merged := make([]track.Candidate, 0, len(mentioned)+len(topTracks))
	for _, t := range mentioned {
		if seen[t.ID] {
			continue
		}
		seen[t.ID] = true
		merged = append(merged, t)
	}
	for _, t := range topTracks {
		if seen[t.ID] {
			continue
		}
		seen[t.ID] = true
		merged = append(merged, t)
	}
	return merged
}

// resolveFeaturesIDs implements step 3: bulk_get_validated first,
// then get-multiple-tracks in batches of 40 for the remainder,
// marking each resolution in the registry.
func (g *Gatherer) resolveFeaturesIDs(ctx context.Context, tracks []track.Candidate) []string {
	if g.registry == nil || g.features == nil || len(tracks) == 0 {
		return nil
	}

	catalogIDs := make([]string, 0, len(tracks))
	for _, t := range tracks {
		catalogIDs = append(catalogIDs, t.ID)
	}

	toCheck, knownMissing := g.registry.BulkCheckMissing(ctx, catalogIDs)
	resolved := g.registry.BulkGetValidated(ctx, toCheck)

	var remaining []string
	for _, id := range toCheck {
		if _, ok := resolved[id]; !ok {
			remaining = append(remaining, id)
		}
	}

	var mu sync.Mutex
	group, groupCtx := errgroup.WithContext(ctx)
	for start := 0; start < len(remaining); start += featuresBatchSize {
		end := start + featuresBatchSize
		if end > len(remaining) {
			end = len(remaining)
		}
		batch := remaining[start:end]

		group.Go(func() error {
			found, err := g.features.GetMultipleTracks(groupCtx, batch)
			if err != nil {
				log.Warn().Err(err).Int("batch_size", len(batch)).Msg("seed gatherer: get-multiple-tracks failed")
				return nil
			}

			foundByIndex := make(map[string]bool, len(found))
			for i, f := range found {
				if i >= len(batch) {
					break
				}
				catalogID := batch[i]
				g.registry.MarkValidated(groupCtx, catalogID, f.ID)
				foundByIndex[catalogID] = true

				mu.Lock()
				resolved[catalogID] = f.ID
				mu.Unlock()
			}
			for _, catalogID := range batch {
				if !foundByIndex[catalogID] {
					g.registry.MarkMissing(groupCtx, catalogID, "not present in get-multiple-tracks response")
				}
			}
			return nil
		})
	}
	_ = group.Wait() // per-batch errors are logged and skipped, never fatal

	_ = knownMissing // known-missing IDs are simply excluded from resolution

	out := make([]string, 0, len(tracks))
	for _, t := range tracks {
		if fid, ok := resolved[t.ID]; ok {
			out = append(out, fid)
		}
	}
	return out
}

// deriveNegativeSeeds implements step 4: previous-iteration outliers,
// capped at 5 (the upstream's own cap on negative_seeds).
func deriveNegativeSeeds(outliers []track.Candidate) []string {
	if len(outliers) > maxNegativeSeeds {
		outliers = outliers[:maxNegativeSeeds]
	}
	ids := make([]string, len(outliers))
	for i, t := range outliers {
		ids[i] = t.ID
	}
	return ids
}
