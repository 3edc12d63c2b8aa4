// Package strategy implements the four Candidate Generators of spec
// §4.9: User-Anchor, Artist-Discovery, Seed-Based, and Fallback, plus
// a bounded-concurrency chain that runs them together.
package strategy

import (
	"context"

	domainmood "github.com/osa030/moodplay/internal/domain/mood"
	"github.com/osa030/moodplay/internal/domain/track"
	"github.com/osa030/moodplay/internal/infra/catalog"
	"github.com/osa030/moodplay/internal/infra/features"
)

// CatalogClient is the subset of the Catalog client the generators need.
type CatalogClient interface {
	Search(ctx context.Context, query string, searchType catalog.SearchType, limit int) ([]track.Candidate, []catalog.Artist, error)
	GetArtistTopTracks(ctx context.Context, artistID, artistName string) ([]track.Candidate, error)
	GetArtistAlbums(ctx context.Context, artistID string, limit int) ([]string, error)
	GetAlbumTracks(ctx context.Context, albumID string, limit int) ([]track.Candidate, error)
}

// FeaturesClient is the subset of the Features client the generators need.
type FeaturesClient interface {
	GetRecommendation(ctx context.Context, seeds, negativeSeeds []string, size int) ([]features.Recommendation, error)
	GetMultipleTracks(ctx context.Context, ids []string) ([]features.Track, error)
	GetTrack(ctx context.Context, id string) (*features.Track, error)
	GetTrackAudioFeatures(ctx context.Context, id string) (map[domainmood.Feature]float64, error)
}

// Request bundles the inputs any generator may need. Not every field
// is meaningful to every strategy; a strategy ignores what it doesn't use.
type Request struct {
	Analysis            *domainmood.Analysis
	TargetCount          int
	UserMentionedTracks  []track.Candidate // resolved via catalog search, one per user-mentioned (track,artist) pair
	UserMentionedArtists []string
	SeedCatalogIDs       []string // catalog-side seed IDs from the Seed Gatherer, deduplicated, order-preserving
	SeedFeaturesIDs      []string // Features-side IDs of the SeedCatalogIDs that resolved, in order; unresolved IDs are omitted
	NegativeSeeds        []string
	ExcludeIDs           map[string]bool
}

// Generator is a candidate generator: one of the four strategies of
// spec §4.9.
type Generator interface {
	Name() string
	Generate(ctx context.Context, req Request) ([]track.Recommendation, error)
}

// audioFeaturesFromDomain converts the map[domainmood.Feature]float64
// the scoring package reasons about into the map[string]float64 a
// Recommendation stores.
func audioFeaturesFromDomain(m map[domainmood.Feature]float64) map[string]float64 {
	if m == nil {
		return nil
	}
	out := make(map[string]float64, len(m))
	for f, v := range m {
		out[string(f)] = v
	}
	return out
}

func recommendationFrom(c track.Candidate, source track.Source, anchorType track.AnchorType, protected, userMentioned bool, confidence float64, reasoning string, audioFeatures map[domainmood.Feature]float64) track.Recommendation {
	return track.Recommendation{
		TrackID:         c.ID,
		TrackName:       c.Name,
		Artists:         c.Artists,
		SpotifyURI:      c.SpotifyURI,
		ReleaseDate:     c.ReleaseDate,
		ConfidenceScore: confidence,
		AudioFeatures:   audioFeaturesFromDomain(audioFeatures),
		Reasoning:       reasoning,
		Source:          source,
		UserMentioned:   userMentioned,
		Protected:       protected,
		AnchorType:      anchorType,
	}
}
