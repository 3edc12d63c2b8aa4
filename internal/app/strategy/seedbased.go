package strategy

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/osa030/moodplay/internal/app/scoring"
	domainmood "github.com/osa030/moodplay/internal/domain/mood"
	"github.com/osa030/moodplay/internal/domain/track"
	"github.com/osa030/moodplay/internal/infra/features"
	"github.com/osa030/moodplay/internal/infra/guardrails"
)

const (
	seedChunkSize           = 3
	seedBasedMaxConcurrency = 10
	seedBasedRecommendSize  = 20
	seedBasedMaxNegatives   = 5
)

// SeedBasedGenerator is the Seed-Based Strategy of spec §4.9.3: it
// requests the Features recommendation endpoint for chunks of the
// gathered seeds, guarded by Seed Guardrails, and joins the results
// against detailed track data and audio features.
type SeedBasedGenerator struct {
	features   FeaturesClient
	guardrails *guardrails.Guardrails
}

// NewSeedBasedGenerator builds a SeedBasedGenerator.
func NewSeedBasedGenerator(fc FeaturesClient, gr *guardrails.Guardrails) *SeedBasedGenerator {
	return &SeedBasedGenerator{features: fc, guardrails: gr}
}

// Name implements Generator.
func (g *SeedBasedGenerator) Name() string { return "seed_based" }

// Generate implements Generator.
func (g *SeedBasedGenerator) Generate(ctx context.Context, req Request) ([]track.Recommendation, error) {
	chunks := chunkSeeds(dedupOrderPreserving(req.SeedFeaturesIDs), seedChunkSize)
	if len(chunks) == 0 || req.Analysis == nil {
		return nil, nil
	}

	negatives := req.NegativeSeeds
	if len(negatives) > seedBasedMaxNegatives {
		negatives = negatives[:seedBasedMaxNegatives]
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(seedBasedMaxConcurrency)
	var mu sync.Mutex
	var out []track.Recommendation

	for _, chunk := range chunks {
		chunk := chunk
		group.Go(func() error {
			recs := g.recommendChunk(groupCtx, chunk, negatives, req.Analysis)
			if len(recs) == 0 {
				return nil
			}
			mu.Lock()
			out = append(out, recs...)
			mu.Unlock()
			return nil
		})
	}
	_ = group.Wait()

	return out, nil
}

// recommendChunk calls the recommendation endpoint for one chunk,
// validating params through Seed Guardrails first and retrying once
// with the suggested repair on denial (spec §4.9.3). Permanent
// upstream failures are recorded to the deny-list; everything else is
// logged and the chunk is skipped.
func (g *SeedBasedGenerator) recommendChunk(ctx context.Context, seeds, negatives []string, analysis *domainmood.Analysis) []track.Recommendation {
	seeds, negatives, ok := g.validate(ctx, seeds, negatives)
	if !ok {
		return nil
	}

	recs, err := g.features.GetRecommendation(ctx, seeds, negatives, seedBasedRecommendSize)
	if err != nil {
		if guardrails.ShouldSkipRetry(err.Error()) && g.guardrails != nil {
			g.guardrails.AddToDenyList(ctx, seeds, negatives, nil, err.Error())
		}
		log.Warn().Err(err).Strs("seeds", seeds).Msg("seed-based strategy: recommendation chunk failed")
		return nil
	}

	return joinAndScoreRecommendations(ctx, g.features, recs, analysis)
}

func (g *SeedBasedGenerator) validate(ctx context.Context, seeds, negatives []string) ([]string, []string, bool) {
	if g.guardrails == nil {
		return seeds, negatives, true
	}

	denied, reason := g.guardrails.IsCombinationDenied(ctx, seeds, negatives, nil)
	if denied {
		fallback := guardrails.SuggestFallbackStrategy(seeds, negatives, reason)
		if fallback == nil {
			return nil, nil, false
		}
		return fallback.Seeds, fallback.NegativeSeeds, true
	}

	ok, valErr, suggested := g.guardrails.ValidateAndAutoBalance(ctx, seeds, negatives, seedBasedRecommendSize)
	if ok {
		return seeds, negatives, true
	}
	if suggested == nil {
		log.Warn().Err(valErr).Msg("seed-based strategy: chunk failed guardrails validation with no fallback")
		return nil, nil, false
	}
	return suggested.Seeds, suggested.NegativeSeeds, true
}

// joinAndScoreRecommendations joins each raw Features recommendation
// against detailed track data and audio features, filters through the
// violation-based filter (spec §4.10), and scores survivors. Shared by
// the seed-based and fallback strategies, both of which call the same
// Features recommendation endpoint.
func joinAndScoreRecommendations(ctx context.Context, fc FeaturesClient, recs []features.Recommendation, analysis *domainmood.Analysis) []track.Recommendation {
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(seedBasedMaxConcurrency)
	var mu sync.Mutex
	var out []track.Recommendation

	for _, r := range recs {
		r := r
		group.Go(func() error {
			detail, err := fc.GetTrack(groupCtx, r.ID)
			if err != nil || detail == nil {
				return nil //nolint:nilerr
			}
			audioFeatures, _ := fc.GetTrackAudioFeatures(groupCtx, r.ID)

			candidate := track.Candidate{ID: detail.ID, Name: detail.Name, Artists: detail.Artists}
			if !scoring.PassesViolationFilter(false, track.SourceReccobeat, audioFeatures, analysis.TargetFeatures) {
				return nil
			}

			confidence := scoring.ConfidenceScore(scoring.Candidate{
				Source:        track.SourceReccobeat,
				AudioFeatures: audioFeatures,
			}, scoring.UpstreamScore{}, analysis)

			rec := recommendationFrom(candidate, track.SourceReccobeat, track.AnchorNone, false, false, confidence, "seed-based recommendation", audioFeatures)
			mu.Lock()
			out = append(out, rec)
			mu.Unlock()
			return nil
		})
	}
	_ = group.Wait()

	return out
}

func dedupOrderPreserving(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func chunkSeeds(ids []string, size int) [][]string {
	var chunks [][]string
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		chunks = append(chunks, ids[start:end])
	}
	return chunks
}
