package strategy

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/osa030/moodplay/internal/app/scoring"
	domainmood "github.com/osa030/moodplay/internal/domain/mood"
	"github.com/osa030/moodplay/internal/domain/track"
	"github.com/osa030/moodplay/internal/infra/cache"
	"github.com/osa030/moodplay/internal/infra/catalog"
)

const (
	artistDiscoveryMaxArtists      = 20
	artistDiscoveryHybridRatio     = 0.3
	artistDiscoveryPopMin          = 20
	artistDiscoveryPopMax          = 80
	artistDiscoveryMaxConcurrency  = 5
	artistDiscoveryCohesionFloor   = 0.2
	artistDiscoveryTracksPerArtist = 10
	artistFailureCacheCategory     = "strategy:artist_discovery_failure"
	artistFailureCacheTTL          = 10 * time.Minute
	artistFailureRateCritical      = 0.5
)

// ArtistDiscoveryGenerator is the Artist-Discovery Strategy of spec
// §4.9.2: it mines each mood-matched artist's discography for
// lesser-known tracks that still match the mood.
type ArtistDiscoveryGenerator struct {
	catalog  CatalogClient
	features FeaturesClient
	cache    *cache.Manager // optional; nil disables failed-artist caching
}

// NewArtistDiscoveryGenerator builds an ArtistDiscoveryGenerator.
func NewArtistDiscoveryGenerator(cc CatalogClient, fc FeaturesClient, cm *cache.Manager) *ArtistDiscoveryGenerator {
	return &ArtistDiscoveryGenerator{catalog: cc, features: fc, cache: cm}
}

// Name implements Generator.
func (g *ArtistDiscoveryGenerator) Name() string { return "artist_discovery" }

// Generate implements Generator.
func (g *ArtistDiscoveryGenerator) Generate(ctx context.Context, req Request) ([]track.Recommendation, error) {
	artists := req.Analysis.ArtistRecommendations
	if len(artists) > artistDiscoveryMaxArtists {
		artists = artists[:artistDiscoveryMaxArtists]
	}
	if len(artists) == 0 {
		return nil, nil
	}

	var attempted, failed int64
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(artistDiscoveryMaxConcurrency)
	var mu sync.Mutex
	var out []track.Recommendation

	for _, name := range artists {
		name := name
		if g.recentlyFailed(ctx, name) {
			continue
		}
		atomic.AddInt64(&attempted, 1)
		group.Go(func() error {
			recs, err := g.discoverArtist(groupCtx, name, req.Analysis)
			if err != nil {
				atomic.AddInt64(&failed, 1)
				g.markFailed(groupCtx, name)
				log.Warn().Err(err).Str("artist", name).Msg("artist-discovery strategy: artist failed")
				return nil
			}
			mu.Lock()
			out = append(out, recs...)
			mu.Unlock()
			return nil
		})
	}
	_ = group.Wait()

	a, f := atomic.LoadInt64(&attempted), atomic.LoadInt64(&failed)
	if a > 0 && f == a {
		return nil, errors.Newf("artist-discovery strategy: all %d attempted artists failed", a)
	}
	if a > 0 && float64(f)/float64(a) > artistFailureRateCritical {
		log.Error().Int64("attempted", a).Int64("failed", f).Msg("artist-discovery strategy: majority of artists failed")
	}

	return out, nil
}

func (g *ArtistDiscoveryGenerator) discoverArtist(ctx context.Context, name string, analysis *domainmood.Analysis) ([]track.Recommendation, error) {
	_, artists, err := g.catalog.Search(ctx, name, catalog.SearchTypeArtist, 5)
	if err != nil {
		return nil, err
	}
	if len(artists) == 0 {
		return nil, errors.Newf("no catalog match for artist %q", name)
	}
	artist := bestFuzzyMatch(name, artists)

	hybrid, err := hybridArtistTracks(ctx, g.catalog, artist.ID, artist.Name, artistDiscoveryHybridRatio, artistDiscoveryPopMin, artistDiscoveryPopMax, artistDiscoveryTracksPerArtist, nil)
	if err != nil {
		return nil, err
	}
	if len(hybrid) == 0 {
		return nil, errors.Newf("artist %q yielded no discovery candidates", name)
	}

	var recs []track.Recommendation
	for _, c := range hybrid {
		audioFeatures, _ := g.trackAudioFeatures(ctx, c)
		cohesion := scoring.Cohesion(audioFeatures, analysis.TargetFeatures)
		if cohesion < artistDiscoveryCohesionFloor {
			continue
		}
		confidence := scoring.ConfidenceScore(scoring.Candidate{
			Popularity:    c.Popularity,
			Source:        track.SourceArtistDiscovery,
			AudioFeatures: audioFeatures,
		}, scoring.UpstreamScore{}, analysis)
		recs = append(recs, recommendationFrom(c, track.SourceArtistDiscovery, track.AnchorNone, false, false, confidence, "deep cut from a mood-matched artist", audioFeatures))
	}
	return recs, nil
}

func (g *ArtistDiscoveryGenerator) trackAudioFeatures(ctx context.Context, c track.Candidate) (map[domainmood.Feature]float64, bool) {
	if g.features == nil {
		return nil, false
	}
	features, err := g.features.GetTrackAudioFeatures(ctx, c.ID)
	if err != nil || len(features) == 0 {
		return nil, false
	}
	return features, true
}

func (g *ArtistDiscoveryGenerator) recentlyFailed(ctx context.Context, artistName string) bool {
	if g.cache == nil {
		return false
	}
	var dummy bool
	return g.cache.GetJSON(ctx, artistFailureCacheCategory, &dummy, artistName)
}

func (g *ArtistDiscoveryGenerator) markFailed(ctx context.Context, artistName string) {
	if g.cache == nil {
		return
	}
	g.cache.SetJSON(ctx, artistFailureCacheCategory, true, artistFailureCacheTTL, artistName)
}
