package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/moodplay/internal/app/anchor"
	moodengine "github.com/osa030/moodplay/internal/app/mood"
	"github.com/osa030/moodplay/internal/app/seed"
	"github.com/osa030/moodplay/internal/app/strategy"
	domainmood "github.com/osa030/moodplay/internal/domain/mood"
	"github.com/osa030/moodplay/internal/domain/track"
	"github.com/osa030/moodplay/internal/domain/workflow"
	"github.com/osa030/moodplay/internal/infra/catalog"
	"github.com/osa030/moodplay/internal/infra/config"
	"github.com/osa030/moodplay/internal/infra/token"
)

type fakeSeedCatalog struct {
	topTracks  []track.Candidate
	topArtists []catalog.Artist
}

func (f *fakeSeedCatalog) GetTopTracks(_ context.Context, _ catalog.TimeRange, _ int) ([]track.Candidate, error) {
	return f.topTracks, nil
}

func (f *fakeSeedCatalog) GetTopArtists(_ context.Context, _ catalog.TimeRange, _ int) ([]catalog.Artist, error) {
	return f.topArtists, nil
}

type fakeAnchorCatalog struct {
	searchTracks map[string][]track.Candidate
}

func (f *fakeAnchorCatalog) Search(_ context.Context, query string, _ catalog.SearchType, _ int) ([]track.Candidate, []catalog.Artist, error) {
	return f.searchTracks[query], nil, nil
}

func (f *fakeAnchorCatalog) GetArtistTopTracks(_ context.Context, _, _ string) ([]track.Candidate, error) {
	return nil, nil
}

type fakeOrchCatalog struct {
	searchResults []track.Candidate
}

func (f *fakeOrchCatalog) Search(_ context.Context, _ string, _ catalog.SearchType, _ int) ([]track.Candidate, []catalog.Artist, error) {
	return f.searchResults, nil, nil
}

type sequencedGenerator struct {
	sequences [][]track.Recommendation
	errs      []error
	calls     int
}

func (g *sequencedGenerator) Name() string { return "sequenced" }

func (g *sequencedGenerator) Generate(_ context.Context, _ strategy.Request) ([]track.Recommendation, error) {
	idx := g.calls
	if idx >= len(g.sequences) {
		idx = len(g.sequences) - 1
	}
	g.calls++

	var err error
	if idx < len(g.errs) {
		err = g.errs[idx]
	}
	return g.sequences[idx], err
}

type fakeTokenStore struct {
	accessToken string
	loads       int
}

func (f *fakeTokenStore) Load(_ context.Context, _ string) (token.Record, error) {
	f.loads++
	return token.Record{AccessToken: f.accessToken, ExpiresAt: time.Now().Add(time.Hour)}, nil
}

func (f *fakeTokenStore) Save(_ context.Context, _ string, _ token.Record) error { return nil }

func newTestOrchestrator(seedCatalog seed.CatalogClient, chain *strategy.Chain, orchCatalog CatalogClient, tokens *token.Manager, cfg config.OrchestratorConfig) *Orchestrator {
	moodEngine := moodengine.New(nil)
	anchors := anchor.New(&fakeAnchorCatalog{}, nil, nil, nil)
	seeds := seed.New(seedCatalog, nil, nil, nil, nil)
	return New(moodEngine, anchors, seeds, chain, orchCatalog, tokens, nil, cfg)
}

func TestRun_HappyPathReachesCompleted(t *testing.T) {
	seedCatalog := &fakeSeedCatalog{topTracks: []track.Candidate{{ID: "seed1"}}}
	chain := strategy.NewChain(&sequencedGenerator{
		sequences: [][]track.Recommendation{
			{
				{TrackID: "t1", TrackName: "One", Artists: []string{"Artist One"}, SpotifyURI: "spotify:track:t1", ConfidenceScore: 0.9, Source: track.SourceArtistDiscovery},
				{TrackID: "t2", TrackName: "Two", Artists: []string{"Artist Two"}, SpotifyURI: "spotify:track:t2", ConfidenceScore: 0.8, Source: track.SourceArtistDiscovery},
			},
		},
	})
	o := newTestOrchestrator(seedCatalog, chain, &fakeOrchCatalog{}, nil, config.OrchestratorConfig{})

	state, err := o.Run(t.Context(), Request{UserID: "u1", MoodPrompt: "upbeat summer road trip anthems"})
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusCompleted, state.Status)
	assert.Len(t, state.Recommendations, 2)
	assert.Empty(t, state.Metadata.StageErrors)
}

func TestRun_FatalWhenNoSeedsArtistsOrAnchors(t *testing.T) {
	seedCatalog := &fakeSeedCatalog{}
	chain := strategy.NewChain(&sequencedGenerator{sequences: [][]track.Recommendation{nil}})
	o := newTestOrchestrator(seedCatalog, chain, &fakeOrchCatalog{}, nil, config.OrchestratorConfig{})

	state, err := o.Run(t.Context(), Request{UserID: "u1", MoodPrompt: "something obscure"})
	require.Error(t, err)
	assert.Equal(t, workflow.StatusFailed, state.Status)
	assert.Contains(t, state.Metadata.StageErrors, "generating_recommendations")
}

func TestRun_RecordsStageErrorWithoutFailingWhenGeneratorsAllFail(t *testing.T) {
	seedCatalog := &fakeSeedCatalog{topTracks: []track.Candidate{{ID: "seed1"}}}
	chain := strategy.NewChain(&sequencedGenerator{
		sequences: [][]track.Recommendation{nil},
		errs:      []error{errors.New("generator exploded")},
	})
	o := newTestOrchestrator(seedCatalog, chain, &fakeOrchCatalog{}, nil, config.OrchestratorConfig{})

	state, err := o.Run(t.Context(), Request{UserID: "u1", MoodPrompt: "low energy rainy afternoon"})
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusCompleted, state.Status)
	assert.Contains(t, state.Metadata.StageErrors, "candidate_generation")
	assert.Empty(t, state.Recommendations)
}

func TestRun_IteratesUntilCohesionThresholdMet(t *testing.T) {
	seedCatalog := &fakeSeedCatalog{topTracks: []track.Candidate{{ID: "seed1"}}}
	gen := &sequencedGenerator{
		sequences: [][]track.Recommendation{
			{{TrackID: "low1", TrackName: "Low", Artists: []string{"A"}, SpotifyURI: "spotify:track:low1", ConfidenceScore: 0.1, Source: track.SourceArtistDiscovery}},
			{{TrackID: "high1", TrackName: "High", Artists: []string{"B"}, SpotifyURI: "spotify:track:high1", ConfidenceScore: 0.95, Source: track.SourceArtistDiscovery}},
		},
	}
	chain := strategy.NewChain(gen)
	o := newTestOrchestrator(seedCatalog, chain, &fakeOrchCatalog{}, nil, config.OrchestratorConfig{
		MaxIterations:     2,
		CohesionThreshold: 0.6,
	})

	state, err := o.Run(t.Context(), Request{UserID: "u1", MoodPrompt: "melancholic late night drive"})
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusCompleted, state.Status)
	assert.Equal(t, 2, gen.calls, "should have run a second iteration after the first fell short of cohesion")
	require.Len(t, state.Recommendations, 1)
	assert.Equal(t, "high1", state.Recommendations[0].TrackID)
}

func TestRun_RefreshesTokenInPlaceBeforeEachCatalogStage(t *testing.T) {
	store := &fakeTokenStore{accessToken: "fresh-token"}
	tokens := token.New(store, nil)

	seedCatalog := &fakeSeedCatalog{topTracks: []track.Candidate{{ID: "seed1"}}}
	chain := strategy.NewChain(&sequencedGenerator{
		sequences: [][]track.Recommendation{
			{{TrackID: "t1", TrackName: "One", Artists: []string{"Artist"}, SpotifyURI: "spotify:track:t1", ConfidenceScore: 0.9, Source: track.SourceArtistDiscovery}},
		},
	})
	o := newTestOrchestrator(seedCatalog, chain, &fakeOrchCatalog{}, tokens, config.OrchestratorConfig{})

	state, err := o.Run(t.Context(), Request{UserID: "u1", MoodPrompt: "chill focus session"})
	require.NoError(t, err)
	assert.Equal(t, "fresh-token", state.Metadata.SpotifyAccessToken)
	assert.GreaterOrEqual(t, store.loads, 4, "expected a refresh before mood analysis, seed gathering, each generation iteration, and enrichment")
}

func TestRun_DefaultsTargetCountWhenNotSpecified(t *testing.T) {
	seedCatalog := &fakeSeedCatalog{topTracks: []track.Candidate{{ID: "seed1"}}}
	chain := strategy.NewChain(&sequencedGenerator{sequences: [][]track.Recommendation{nil}})
	o := newTestOrchestrator(seedCatalog, chain, &fakeOrchCatalog{}, nil, config.OrchestratorConfig{})

	state, err := o.Run(t.Context(), Request{UserID: "u1", MoodPrompt: "anything really"})
	require.NoError(t, err)
	require.NotNil(t, state.Metadata.PlaylistTarget)
	assert.Equal(t, DefaultTargetCount, state.Metadata.PlaylistTarget.TargetCount)
}

func TestScoreAndFilter_DropsTrackOutsideExplicitTemporalWindow(t *testing.T) {
	analysis := &domainmood.Analysis{
		TemporalContext: &domainmood.TemporalContext{IsTemporal: true, YearRange: &[2]int{1990, 1999}, Decade: "90s"},
	}
	recs := []track.Recommendation{
		{TrackID: "out-of-window", ReleaseDate: "2015-01-01"},
		{TrackID: "in-window", ReleaseDate: "1995-06-01"},
		{TrackID: "protected", Protected: true, UserMentioned: true, AnchorType: track.AnchorUser, ReleaseDate: "2015-01-01"},
	}

	out := scoreAndFilter(recs, analysis)

	ids := make([]string, len(out))
	for i, r := range out {
		ids[i] = r.TrackID
	}
	assert.ElementsMatch(t, []string{"in-window", "protected"}, ids)
}
