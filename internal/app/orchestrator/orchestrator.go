// Package orchestrator drives the state machine of spec §4.13: the
// multi-iteration pipeline that turns a mood prompt into a scored,
// filtered, ratio-capped, deduplicated playlist.
package orchestrator

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog/log"

	"github.com/osa030/moodplay/internal/app/anchor"
	"github.com/osa030/moodplay/internal/app/diversity"
	moodengine "github.com/osa030/moodplay/internal/app/mood"
	"github.com/osa030/moodplay/internal/app/ratio"
	"github.com/osa030/moodplay/internal/app/scoring"
	"github.com/osa030/moodplay/internal/app/seed"
	"github.com/osa030/moodplay/internal/app/strategy"
	domainmood "github.com/osa030/moodplay/internal/domain/mood"
	"github.com/osa030/moodplay/internal/domain/track"
	"github.com/osa030/moodplay/internal/domain/workflow"
	"github.com/osa030/moodplay/internal/infra/catalog"
	"github.com/osa030/moodplay/internal/infra/config"
	"github.com/osa030/moodplay/internal/infra/token"
)

const (
	// DefaultTargetCount is the playlist size used when a request
	// doesn't specify one; spec.md leaves the exact number open.
	DefaultTargetCount = 20
	anchorTargetCount  = 8
	negativeSeedCap    = 5
	fallbackCohesion   = 0.60
	fallbackMaxIter    = 2
)

// CatalogClient is what the orchestrator's own enrichment pass needs;
// every other stage (seed gathering, candidate generation, anchor
// selection) takes its own narrower view of the same concrete client.
type CatalogClient interface {
	Search(ctx context.Context, query string, searchType catalog.SearchType, limit int) ([]track.Candidate, []catalog.Artist, error)
}

// ProgressNotifier receives a fire-and-forget copy of the workflow
// state on every transition (spec §4.13 "notify_progress(state)
// ... never blocks a stage").
type ProgressNotifier interface {
	Notify(state *workflow.State)
}

// NoopProgress discards every notification; the zero value is ready
// to use.
type NoopProgress struct{}

// Notify implements ProgressNotifier.
func (NoopProgress) Notify(*workflow.State) {}

// Orchestrator drives one recommendation request end to end. It owns
// no upstream client directly except the Catalog (for enrichment);
// every other stage is a pre-wired collaborator.
type Orchestrator struct {
	moodEngine *moodengine.Engine
	anchors    *anchor.Selector
	seeds      *seed.Gatherer
	chain      *strategy.Chain
	catalog    CatalogClient
	tokens     *token.Manager
	progress   ProgressNotifier
	cfg        config.OrchestratorConfig
}

// New builds an Orchestrator from its pre-wired collaborators.
func New(moodEngine *moodengine.Engine, anchors *anchor.Selector, seeds *seed.Gatherer, chain *strategy.Chain, cc CatalogClient, tokens *token.Manager, progress ProgressNotifier, cfg config.OrchestratorConfig) *Orchestrator {
	if progress == nil {
		progress = NoopProgress{}
	}
	return &Orchestrator{
		moodEngine: moodEngine,
		anchors:    anchors,
		seeds:      seeds,
		chain:      chain,
		catalog:    cc,
		tokens:     tokens,
		progress:   progress,
		cfg:        cfg,
	}
}

// Request bundles the inputs Run needs from a caller.
type Request struct {
	UserID        string
	MoodPrompt    string
	RemixTrackIDs []string
	TargetCount   int // 0 uses DefaultTargetCount
}

// Run executes the full state machine of spec §4.13 and returns the
// terminal WorkflowState: Completed, or Failed on a fatal condition
// (Run never sets StatusError). A non-nil
// error is only returned for fatal conditions; per-stage failures are
// recorded in state.Metadata.StageErrors and the workflow continues.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*workflow.State, error) {
	state := workflow.New(req.UserID, req.MoodPrompt)

	targetCount := req.TargetCount
	if targetCount <= 0 {
		targetCount = DefaultTargetCount
	}

	o.refreshToken(ctx, state)

	state.Transition(workflow.StatusAnalyzingMood, "analyzing_mood_initial")
	o.progress.Notify(state)
	analysis, err := o.moodEngine.Analyze(ctx, req.MoodPrompt)
	if err != nil {
		return o.fail(state, "mood_analysis", err)
	}
	state.MoodAnalysis = analysis

	anchorsEarly, err := o.anchors.SelectAnchors(ctx, anchor.Request{
		UserID:                req.UserID,
		MoodPrompt:            req.MoodPrompt,
		Analysis:              analysis,
		TargetCount:           anchorTargetCount,
		UserMentionedTrackIDs: state.Metadata.UserMentionedTrackIDs,
	})
	if err != nil {
		state.Metadata.RecordStageError("anchor_selection_early", err)
		anchorsEarly = nil
	}
	recordAnchors(state, anchorsEarly)
	o.discoverArtists(state, analysis)

	augmented := augmentPromptWithAnchors(req.MoodPrompt, anchorsEarly)
	state.Transition(workflow.StatusAnalyzingMood, "analyzing_mood_with_anchor_context")
	o.progress.Notify(state)
	if reanalyzed, rerr := o.moodEngine.Analyze(ctx, augmented); rerr == nil && reanalyzed != nil {
		analysis = reanalyzed
		state.MoodAnalysis = analysis
	} else {
		state.Metadata.RecordStageError("mood_reanalysis", rerr)
	}
	state.Metadata.TargetFeatures = analysis.TargetFeatures
	state.Metadata.FeatureWeights = analysis.FeatureWeights
	state.Metadata.PlaylistTarget = &workflow.PlaylistTarget{
		TargetCount: targetCount,
		RemixMode:   len(req.RemixTrackIDs) > 0,
	}

	o.refreshToken(ctx, state)
	state.Transition(workflow.StatusGatheringSeeds, "gathering_seeds")
	o.progress.Notify(state)
	seedResult, err := o.seeds.Gather(ctx, seed.Request{
		UserID:              req.UserID,
		TimeRange:           catalog.TimeRangeMedium,
		RemixTrackIDs:       req.RemixTrackIDs,
		UserMentionedTracks: state.Metadata.UserMentionedTracksFull,
	})
	if err != nil {
		state.Metadata.RecordStageError("seed_gathering", err)
		seedResult = &seed.Result{}
	} else {
		state.SeedTracks = candidateIDs(seedResult.SeedTracks)
		state.NegativeSeeds = seedResult.NegativeSeeds
	}

	if noSeeds, noArtists, noAnchors := len(seedResult.SeedTracks) == 0, len(seedResult.TopArtists) == 0 && len(state.Metadata.DiscoveredArtists) == 0, len(anchorsEarly) == 0; noSeeds && noArtists && noAnchors {
		return o.fail(state, "generating_recommendations", errors.New("no seeds, artists, or anchors available for this request"))
	}

	excludeIDs := buildExcludeIDs(req.RemixTrackIDs)
	maxIterations := o.cfg.MaxIterations
	if maxIterations <= 0 {
		maxIterations = fallbackMaxIter
	}
	cohesionThreshold := o.cfg.CohesionThreshold
	if cohesionThreshold <= 0 {
		cohesionThreshold = fallbackCohesion
	}

	state.Transition(workflow.StatusGeneratingRecommendations, "generating_recommendations")
	o.progress.Notify(state)

	var final []track.Recommendation
	for iteration := 1; iteration <= maxIterations; iteration++ {
		o.refreshToken(ctx, state)

		negatives := state.NegativeSeeds
		if len(negatives) > negativeSeedCap {
			negatives = negatives[:negativeSeedCap]
		}

		candidates, genErr := o.chain.Run(ctx, strategy.Request{
			Analysis:             analysis,
			TargetCount:          targetCount,
			UserMentionedTracks:  state.Metadata.UserMentionedTracksFull,
			UserMentionedArtists: mentionedArtistsInPrompt(req.MoodPrompt, analysis.ArtistRecommendations),
			SeedCatalogIDs:       state.SeedTracks,
			SeedFeaturesIDs:      seedResult.SeedFeaturesIDs,
			NegativeSeeds:        negatives,
			ExcludeIDs:           excludeIDs,
		})
		if genErr != nil {
			state.Metadata.RecordStageError("candidate_generation", genErr)
			candidates = nil
		}

		candidates = filterExcluded(candidates, excludeIDs)
		scored := scoreAndFilter(candidates, analysis)
		ratioCapped := ratio.Enforce(scored, targetCount)
		diversity.ApplyArtistDiversityPenalty(ratioCapped)
		final = diversity.SortStable(diversity.Dedup(ratioCapped))

		for _, r := range final {
			excludeIDs[r.TrackID] = true
		}

		cohesion := meanNonProtectedConfidence(final)
		if cohesion >= cohesionThreshold || iteration == maxIterations {
			break
		}
		state.NegativeSeeds = append(state.NegativeSeeds, deriveNegativeSeeds(final, cohesion)...)
	}

	state.Transition(workflow.StatusFinalizing, "finalizing")
	o.progress.Notify(state)
	o.refreshToken(ctx, state)
	state.Recommendations = o.enrich(ctx, final)

	state.Transition(workflow.StatusCompleted, "completed")
	o.progress.Notify(state)
	return state, nil
}

func (o *Orchestrator) fail(state *workflow.State, stage string, err error) (*workflow.State, error) {
	state.Metadata.RecordStageError(stage, err)
	state.Transition(workflow.StatusFailed, stage+"_failed")
	o.progress.Notify(state)
	return state, err
}

// refreshToken re-reads the user's token from storage and overwrites
// it into the workflow state just before a Catalog-hitting stage
// (spec §4.5 "A stale token propagated into an already-running
// workflow is refreshed in-place"). Absent a configured Token Manager,
// this is a no-op — the Catalog client manages its own credentials.
func (o *Orchestrator) refreshToken(ctx context.Context, state *workflow.State) {
	if o.tokens == nil {
		return
	}
	tok, err := o.tokens.EnsureValidToken(ctx, state.UserID)
	if err != nil {
		log.Warn().Err(err).Str("user_id", state.UserID).Msg("orchestrator: token refresh failed, continuing with the token already on hand")
		return
	}
	state.Metadata.SpotifyAccessToken = tok
}

func (o *Orchestrator) discoverArtists(state *workflow.State, analysis *domainmood.Analysis) {
	if analysis == nil {
		return
	}
	state.Metadata.DiscoveredArtists = analysis.ArtistRecommendations
	state.Metadata.MoodMatchedArtists = analysis.ArtistRecommendations
}

func recordAnchors(state *workflow.State, anchors []track.AnchorCandidate) {
	state.Metadata.AnchorTracks = anchors
	ids := make(map[string]bool, len(anchors))
	userIDs := make(map[string]bool)
	var userTracks []track.Candidate
	for _, a := range anchors {
		ids[a.Track.ID] = true
		if a.AnchorType == track.AnchorUser {
			userIDs[a.Track.ID] = true
			userTracks = append(userTracks, a.Track)
		}
	}
	state.Metadata.AnchorTrackIDs = ids
	state.Metadata.UserMentionedTrackIDs = userIDs
	state.Metadata.UserMentionedTracksFull = userTracks
}

// augmentPromptWithAnchors folds the early anchors' track names into
// the prompt so the anchor-context re-analysis pass (spec §4.13
// "analyze_mood_with_anchor_context") has something concrete to react
// to beyond the raw text.
func augmentPromptWithAnchors(prompt string, anchors []track.AnchorCandidate) string {
	var names []string
	for _, a := range anchors {
		if a.Track.Name != "" {
			names = append(names, a.Track.Name)
		}
	}
	if len(names) == 0 {
		return prompt
	}
	return prompt + " (reference tracks: " + strings.Join(names, ", ") + ")"
}

// mentionedArtistsInPrompt narrows mood_matched_artists down to the
// ones actually named in the prompt text, the signal the User-Anchor
// Strategy's artist tier needs (spec §4.9.1) — the domain model has no
// dedicated "user-mentioned artist" extraction distinct from the
// mood-matched-artist list, so a substring match against the prompt
// stands in for it.
func mentionedArtistsInPrompt(prompt string, artistRecommendations []string) []string {
	lower := strings.ToLower(prompt)
	var out []string
	for _, a := range artistRecommendations {
		if a != "" && strings.Contains(lower, strings.ToLower(a)) {
			out = append(out, a)
		}
	}
	return out
}

func candidateIDs(candidates []track.Candidate) []string {
	ids := make([]string, 0, len(candidates))
	for _, c := range candidates {
		ids = append(ids, c.ID)
	}
	return ids
}

func buildExcludeIDs(ids []string) map[string]bool {
	out := make(map[string]bool, len(ids))
	for _, id := range ids {
		out[id] = true
	}
	return out
}

func filterExcluded(recs []track.Recommendation, exclude map[string]bool) []track.Recommendation {
	if len(exclude) == 0 {
		return recs
	}
	out := make([]track.Recommendation, 0, len(recs))
	for _, r := range recs {
		if !exclude[r.TrackID] {
			out = append(out, r)
		}
	}
	return out
}

// scoreAndFilter applies the violation-based filter and the temporal
// filter (spec §4.10) across every merged candidate, a safety net for
// strategies — like User-Anchor's artist tier — that don't already run
// them inline. Protected tracks always pass the violation filter; only
// user-mentioned tracks bypass the temporal filter.
func scoreAndFilter(recs []track.Recommendation, analysis *domainmood.Analysis) []track.Recommendation {
	if analysis == nil {
		return recs
	}
	out := make([]track.Recommendation, 0, len(recs))
	for _, r := range recs {
		if !scoring.PassesViolationFilter(r.Protected, r.Source, domainAudioFeatures(r.AudioFeatures), analysis.TargetFeatures) {
			continue
		}
		if !scoring.PassesTemporalFilter(r.UserMentioned, analysis.TemporalContext, r.ReleaseDate) {
			continue
		}
		out = append(out, r)
	}
	return out
}

func domainAudioFeatures(m map[string]float64) map[domainmood.Feature]float64 {
	if m == nil {
		return nil
	}
	out := make(map[domainmood.Feature]float64, len(m))
	for k, v := range m {
		out[domainmood.Feature(k)] = v
	}
	return out
}

func meanNonProtectedConfidence(recs []track.Recommendation) float64 {
	var sum float64
	var n int
	for _, r := range recs {
		if r.Protected {
			continue
		}
		sum += r.ConfidenceScore
		n++
	}
	if n == 0 {
		return 1.0
	}
	return sum / float64(n)
}

// deriveNegativeSeeds implements spec §4.13's
// "derive_negative_seeds(state, final_outliers)": non-protected tracks
// scoring below this iteration's cohesion, capped at negativeSeedCap.
func deriveNegativeSeeds(final []track.Recommendation, cohesion float64) []string {
	var ids []string
	for _, r := range final {
		if r.Protected || r.ConfidenceScore >= cohesion {
			continue
		}
		ids = append(ids, r.TrackID)
		if len(ids) >= negativeSeedCap {
			break
		}
	}
	return ids
}
