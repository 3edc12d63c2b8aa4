package strategy

import (
	"context"

	"github.com/cockroachdb/errors"

	domainmood "github.com/osa030/moodplay/internal/domain/mood"
	"github.com/osa030/moodplay/internal/domain/track"
	"github.com/osa030/moodplay/internal/infra/catalog"
	"github.com/osa030/moodplay/internal/infra/registry"
)

const (
	fallbackArtistCount = 3
	fallbackBatchSize   = 20
)

// FallbackGenerator is the Fallback Strategy of spec §4.9.4: used only
// when no seeds are available at all, it searches for artists matching
// the mood keywords and requests a single recommendation batch from
// their resolved Features IDs.
type FallbackGenerator struct {
	catalog  CatalogClient
	features FeaturesClient
	registry *registry.Registry
}

// NewFallbackGenerator builds a FallbackGenerator.
func NewFallbackGenerator(cc CatalogClient, fc FeaturesClient, reg *registry.Registry) *FallbackGenerator {
	return &FallbackGenerator{catalog: cc, features: fc, registry: reg}
}

// Name implements Generator.
func (g *FallbackGenerator) Name() string { return "fallback" }

// Generate implements Generator.
func (g *FallbackGenerator) Generate(ctx context.Context, req Request) ([]track.Recommendation, error) {
	if len(req.SeedCatalogIDs) > 0 || len(req.SeedFeaturesIDs) > 0 {
		return nil, nil // this strategy only runs when no seeds are available at all
	}
	if req.Analysis == nil {
		return nil, errors.New("fallback strategy requires a mood analysis")
	}

	keywords := moodKeywords(req.Analysis)
	if len(keywords) == 0 {
		return nil, errors.New("fallback strategy has no mood keywords to search artists with")
	}
	if len(keywords) > fallbackArtistCount {
		keywords = keywords[:fallbackArtistCount]
	}

	var topTracks []track.Candidate
	for _, kw := range keywords {
		_, artists, err := g.catalog.Search(ctx, kw, catalog.SearchTypeArtist, 1)
		if err != nil || len(artists) == 0 {
			continue
		}
		artist := artists[0]
		tracks, err := g.catalog.GetArtistTopTracks(ctx, artist.ID, artist.Name)
		if err != nil || len(tracks) == 0 {
			continue
		}
		topTracks = append(topTracks, tracks[0])
	}
	if len(topTracks) == 0 {
		return nil, errors.New("fallback strategy found no artists for the mood keywords")
	}

	featuresIDs := g.resolveFeaturesIDs(ctx, topTracks)
	if len(featuresIDs) == 0 {
		return nil, errors.New("fallback strategy could not resolve any Features IDs for its artist seeds")
	}

	recs, err := g.features.GetRecommendation(ctx, featuresIDs, nil, fallbackBatchSize)
	if err != nil {
		return nil, err
	}

	return joinAndScoreRecommendations(ctx, g.features, recs, req.Analysis), nil
}

// moodKeywords prefers genre keywords (closer to "artists matching the
// mood") and falls back to search keywords.
func moodKeywords(analysis *domainmood.Analysis) []string {
	if len(analysis.GenreKeywords) > 0 {
		return analysis.GenreKeywords
	}
	return analysis.SearchKeywords
}

func (g *FallbackGenerator) resolveFeaturesIDs(ctx context.Context, tracks []track.Candidate) []string {
	if g.registry == nil || g.features == nil {
		return nil
	}

	catalogIDs := make([]string, 0, len(tracks))
	for _, t := range tracks {
		catalogIDs = append(catalogIDs, t.ID)
	}

	toCheck, _ := g.registry.BulkCheckMissing(ctx, catalogIDs)
	resolved := g.registry.BulkGetValidated(ctx, toCheck)

	var remaining []string
	for _, id := range toCheck {
		if _, ok := resolved[id]; !ok {
			remaining = append(remaining, id)
		}
	}
	if len(remaining) > 0 {
		found, err := g.features.GetMultipleTracks(ctx, remaining)
		if err == nil {
			for i, f := range found {
				if i >= len(remaining) {
					break
				}
				g.registry.MarkValidated(ctx, remaining[i], f.ID)
				resolved[remaining[i]] = f.ID
			}
		}
	}

	out := make([]string, 0, len(tracks))
	for _, t := range tracks {
		if fid, ok := resolved[t.ID]; ok {
			out = append(out, fid)
		}
	}
	return out
}
