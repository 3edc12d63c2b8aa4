package anchor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainmood "github.com/osa030/moodplay/internal/domain/mood"
	"github.com/osa030/moodplay/internal/domain/track"
	"github.com/osa030/moodplay/internal/infra/cache"
	"github.com/osa030/moodplay/internal/infra/catalog"
	"github.com/osa030/moodplay/internal/infra/llm"
)

type fakeCatalog struct {
	searchTracks  map[string][]track.Candidate
	artistResults map[string][]catalog.Artist
	artistTracks  map[string][]track.Candidate
}

func (f *fakeCatalog) Search(_ context.Context, query string, searchType catalog.SearchType, _ int) ([]track.Candidate, []catalog.Artist, error) {
	if searchType == catalog.SearchTypeArtist {
		return nil, f.artistResults[query], nil
	}
	return f.searchTracks[query], nil, nil
}

func (f *fakeCatalog) GetArtistTopTracks(_ context.Context, artistID, _ string) ([]track.Candidate, error) {
	return f.artistTracks[artistID], nil
}

type fakeScorer struct {
	features map[string]map[domainmood.Feature]float64
}

func (f *fakeScorer) AudioFeaturesFor(_ context.Context, trackID string) (map[domainmood.Feature]float64, bool) {
	features, ok := f.features[trackID]
	return features, ok
}

func TestSelectAnchors_UserMentionedTrackIsProtectedAndUnconditional(t *testing.T) {
	c := &fakeCatalog{
		searchTracks: map[string][]track.Candidate{
			"Midnight City M83": {{ID: "t1", Name: "Midnight City", Artists: []string{"M83"}}},
		},
	}
	sel := New(c, nil, nil, nil)

	anchors, err := sel.SelectAnchors(t.Context(), Request{
		UserID:      "u1",
		MoodPrompt:  "I want something like Midnight City by M83",
		Analysis:    &domainmood.Analysis{},
		TargetCount: 3,
	})
	require.NoError(t, err)
	require.Len(t, anchors, 1)
	assert.Equal(t, track.AnchorUser, anchors[0].AnchorType)
	assert.True(t, anchors[0].Protected)
	assert.Equal(t, 1.0, anchors[0].Score)
}

func TestSelectAnchors_ArtistAnchorsFromRecommendations(t *testing.T) {
	c := &fakeCatalog{
		artistResults: map[string][]catalog.Artist{
			"Tame Impala": {{ID: "a1", Name: "Tame Impala"}},
		},
		artistTracks: map[string][]track.Candidate{
			"a1": {{ID: "t1", Name: "The Less I Know The Better"}, {ID: "t2", Name: "Borderline"}},
		},
	}
	sel := New(c, nil, nil, nil)

	anchors, err := sel.SelectAnchors(t.Context(), Request{
		UserID:     "u1",
		MoodPrompt: "psychedelic vibes",
		Analysis: &domainmood.Analysis{
			ArtistRecommendations: []string{"Tame Impala"},
		},
		TargetCount: 3,
	})
	require.NoError(t, err)
	require.Len(t, anchors, 2)
	for _, a := range anchors {
		assert.Equal(t, track.AnchorArtistRecommended, a.AnchorType)
		assert.False(t, a.Protected)
	}
}

func TestSelectAnchors_GenreAnchorsDroppedBelowScoreFloor(t *testing.T) {
	c := &fakeCatalog{
		searchTracks: map[string][]track.Candidate{
			"chill": {{ID: "t1", Name: "Low Energy Track"}},
		},
	}
	scorer := &fakeScorer{
		features: map[string]map[domainmood.Feature]float64{
			"t1": {domainmood.FeatureEnergy: 0.95},
		},
	}
	sel := New(c, scorer, nil, nil)

	anchors, err := sel.SelectAnchors(t.Context(), Request{
		UserID:     "u1",
		MoodPrompt: "chill",
		Analysis: &domainmood.Analysis{
			GenreKeywords: []string{"chill"},
			TargetFeatures: map[domainmood.Feature]domainmood.FeatureTarget{
				domainmood.FeatureEnergy: domainmood.Range(0.0, 0.2),
			},
		},
		TargetCount: 3,
	})
	require.NoError(t, err)
	assert.Empty(t, anchors)
}

func TestSelectAnchors_GenreAnchorKeptAboveScoreFloor(t *testing.T) {
	c := &fakeCatalog{
		searchTracks: map[string][]track.Candidate{
			"chill": {{ID: "t1", Name: "Mellow Track"}},
		},
	}
	scorer := &fakeScorer{
		features: map[string]map[domainmood.Feature]float64{
			"t1": {domainmood.FeatureEnergy: 0.1},
		},
	}
	sel := New(c, scorer, nil, nil)

	anchors, err := sel.SelectAnchors(t.Context(), Request{
		UserID:     "u1",
		MoodPrompt: "chill",
		Analysis: &domainmood.Analysis{
			GenreKeywords: []string{"chill"},
			TargetFeatures: map[domainmood.Feature]domainmood.FeatureTarget{
				domainmood.FeatureEnergy: domainmood.Range(0.0, 0.2),
			},
		},
		TargetCount: 3,
	})
	require.NoError(t, err)
	require.Len(t, anchors, 1)
	assert.Equal(t, track.AnchorGenre, anchors[0].AnchorType)
}

func TestCompose_FillsRemainingSlotsByScoreDescending(t *testing.T) {
	sel := New(nil, nil, nil, nil)
	candidates := []track.AnchorCandidate{
		{Track: track.Candidate{ID: "low"}, Score: 0.6, AnchorType: track.AnchorGenre},
		{Track: track.Candidate{ID: "high"}, Score: 0.9, AnchorType: track.AnchorGenre},
		{Track: track.Candidate{ID: "mid"}, Score: 0.75, AnchorType: track.AnchorGenre},
	}

	out := sel.compose(candidates, 2)
	require.Len(t, out, 2)
	assert.Equal(t, "high", out[0].Track.ID)
	assert.Equal(t, "mid", out[1].Track.ID)
}

func TestCompose_UserAnchorsAlwaysIncludedBeyondTargetCount(t *testing.T) {
	sel := New(nil, nil, nil, nil)
	candidates := []track.AnchorCandidate{
		{Track: track.Candidate{ID: "u1"}, Score: 1.0, AnchorType: track.AnchorUser, Protected: true},
		{Track: track.Candidate{ID: "u2"}, Score: 1.0, AnchorType: track.AnchorUser, Protected: true},
		{Track: track.Candidate{ID: "g1"}, Score: 0.9, AnchorType: track.AnchorGenre},
	}

	out := sel.compose(candidates, 2)
	require.Len(t, out, 3)
}

func TestRenormalizeProtection_DropsStaleUserFlagAndPicksUpNewMention(t *testing.T) {
	cached := []track.AnchorCandidate{
		{Track: track.Candidate{ID: "was-mentioned"}, AnchorType: track.AnchorUser, Protected: true},
		{Track: track.Candidate{ID: "now-mentioned"}, AnchorType: track.AnchorGenre, Protected: false},
	}

	out := renormalizeProtection(cached, map[string]bool{"now-mentioned": true})

	byID := map[string]track.AnchorCandidate{}
	for _, c := range out {
		byID[c.Track.ID] = c
	}
	assert.Equal(t, track.AnchorNone, byID["was-mentioned"].AnchorType)
	assert.False(t, byID["was-mentioned"].Protected)
	assert.Equal(t, track.AnchorUser, byID["now-mentioned"].AnchorType)
	assert.True(t, byID["now-mentioned"].Protected)
}

func TestSelectAnchors_CacheHitSkipsCollection(t *testing.T) {
	backend := cache.NewMemory(100)
	manager := cache.NewManager(backend, "moodplay:")

	c := &fakeCatalog{}
	sel := New(c, nil, nil, manager)

	seeded := []track.AnchorCandidate{
		{Track: track.Candidate{ID: "cached-track"}, Score: 0.8, AnchorType: track.AnchorGenre},
	}
	manager.SetAnchorTracks(t.Context(), "u1", "chill vibes", seeded)

	anchors, err := sel.SelectAnchors(t.Context(), Request{
		UserID:      "u1",
		MoodPrompt:  "chill vibes",
		Analysis:    &domainmood.Analysis{GenreKeywords: []string{"should-not-be-searched"}},
		TargetCount: 3,
	})
	require.NoError(t, err)
	require.Len(t, anchors, 1)
	assert.Equal(t, "cached-track", anchors[0].Track.ID)
}

func TestScriptPenaltyApplies_NonLatinPromptWithoutRegionIndicator(t *testing.T) {
	analysis := &domainmood.Analysis{PreferredRegions: []string{"Western"}}
	assert.True(t, scriptPenaltyApplies("给我一些安静的音乐", analysis))
}

func TestScriptPenaltyApplies_SkippedWhenRegionAlreadyPreferred(t *testing.T) {
	analysis := &domainmood.Analysis{PreferredRegions: []string{"Chinese"}}
	assert.False(t, scriptPenaltyApplies("给我一些安静的音乐", analysis))
}

func TestSimpleExtractMentionedTracks_EspeciallyWithMultipleTracks(t *testing.T) {
	pairs := simpleExtractMentionedTracks("play upbeat stuff, especially Blinding Lights and Levitating", nil)
	require.Len(t, pairs, 2)
	assert.Equal(t, "Blinding Lights", pairs[0].track)
	assert.Equal(t, "Levitating", pairs[1].track)
}

func TestSimpleExtractMentionedTracks_LikeXByY(t *testing.T) {
	pairs := simpleExtractMentionedTracks("something like Flashing Lights by Kanye West", nil)
	require.Len(t, pairs, 1)
	assert.Equal(t, "Flashing Lights", pairs[0].track)
	assert.Equal(t, "Kanye West", pairs[0].artist)
}

func TestLLMExtractMentionedTracks_ParsesJSONArray(t *testing.T) {
	stub := llm.NewStub(`Sure: [{"track": "Hotel California", "artist": "Eagles"}]`)
	sel := New(nil, nil, stub, nil)

	pairs, ok := sel.llmExtractMentionedTracks(t.Context(), "prompt")
	require.True(t, ok)
	require.Len(t, pairs, 1)
	assert.Equal(t, "Hotel California", pairs[0].track)
	assert.Equal(t, "Eagles", pairs[0].artist)
}

func TestCulturalFilter_NoLLMPassesEverythingThrough(t *testing.T) {
	sel := New(nil, nil, nil, nil)
	candidates := []track.AnchorCandidate{{Track: track.Candidate{ID: "t1"}, AnchorType: track.AnchorGenre}}
	assert.Equal(t, candidates, sel.culturalFilter(t.Context(), candidates, "prompt"))
}

func TestCulturalFilter_DropsCandidateOnNoVerdict(t *testing.T) {
	sel := New(nil, nil, llm.NewStub("no, this does not fit"), nil)
	candidates := []track.AnchorCandidate{{Track: track.Candidate{ID: "t1"}, AnchorType: track.AnchorGenre}}
	assert.Empty(t, sel.culturalFilter(t.Context(), candidates, "prompt"))
}

func TestCulturalFilter_NeverFiltersUserAnchors(t *testing.T) {
	sel := New(nil, nil, llm.NewStub("no"), nil)
	candidates := []track.AnchorCandidate{{Track: track.Candidate{ID: "t1"}, AnchorType: track.AnchorUser, Protected: true}}
	assert.Equal(t, candidates, sel.culturalFilter(t.Context(), candidates, "prompt"))
}

func TestDetermineStrategy_ClampsAndParsesLLMReply(t *testing.T) {
	sel := New(nil, nil, llm.NewStub("I'd suggest 12 anchors"), nil)
	n, ok := sel.determineStrategy(t.Context(), Request{MoodPrompt: "p"}, nil)
	require.True(t, ok)
	assert.Equal(t, maxAnchorCount, n)
}

func TestDetermineStrategy_FalseOnUnparseableReply(t *testing.T) {
	sel := New(nil, nil, llm.NewStub("no numbers here"), nil)
	_, ok := sel.determineStrategy(t.Context(), Request{MoodPrompt: "p"}, nil)
	assert.False(t, ok)
}
