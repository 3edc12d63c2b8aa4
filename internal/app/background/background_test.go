package background

import (
	"context"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/moodplay/internal/app/orchestrator"
	domainmood "github.com/osa030/moodplay/internal/domain/mood"
	"github.com/osa030/moodplay/internal/domain/track"
	"github.com/osa030/moodplay/internal/domain/workflow"
	"github.com/osa030/moodplay/internal/infra/cache"
	"github.com/osa030/moodplay/internal/infra/catalog"
)

type fakeRunner struct {
	state *workflow.State
	err   error
	calls int
}

func (f *fakeRunner) Run(_ context.Context, _ orchestrator.Request) (*workflow.State, error) {
	f.calls++
	return f.state, f.err
}

type fakeCatalogClient struct {
	tracks  []track.Candidate
	artists []catalog.Artist
	err     error
}

func (f *fakeCatalogClient) GetTopTracks(_ context.Context, _ catalog.TimeRange, _ int) ([]track.Candidate, error) {
	return f.tracks, f.err
}

func (f *fakeCatalogClient) GetTopArtists(_ context.Context, _ catalog.TimeRange, _ int) ([]catalog.Artist, error) {
	return f.artists, f.err
}

type fakeFeaturesClient struct {
	feats map[string]map[domainmood.Feature]float64
}

func (f *fakeFeaturesClient) GetTrackAudioFeatures(_ context.Context, id string) (map[domainmood.Feature]float64, error) {
	feats, ok := f.feats[id]
	if !ok {
		return nil, errors.New("no features")
	}
	return feats, nil
}

func newTestCache() *cache.Manager {
	return cache.NewManager(cache.NewMemory(1000), "moodplay:")
}

func TestPrecomputeOne_SkipsWhenAlreadyCached(t *testing.T) {
	cm := newTestCache()
	cm.SetPopularMood(t.Context(), "happy_energetic", []track.Recommendation{{TrackID: "cached"}})
	runner := &fakeRunner{}
	m := New(runner, cm, nil, nil)

	m.precomputeOne(t.Context(), popularMoods[0])

	assert.Equal(t, 0, runner.calls, "should not run the workflow when the mood is already cached")
}

func TestPrecomputeOne_CachesCompletedResult(t *testing.T) {
	cm := newTestCache()
	state := &workflow.State{
		Status:          workflow.StatusCompleted,
		Recommendations: []track.Recommendation{{TrackID: "t1"}, {TrackID: "t2"}},
	}
	runner := &fakeRunner{state: state}
	m := New(runner, cm, nil, nil)

	mood := popularMood{key: "chill_relaxed", prompt: "chill relaxed calm laid back music"}
	m.precomputeOne(t.Context(), mood)

	require.Equal(t, 1, runner.calls)
	var cached []track.Recommendation
	require.True(t, cm.PopularMood(t.Context(), mood.key, &cached))
	assert.Len(t, cached, 2)
}

func TestPrecomputeOne_DoesNotCacheOnFailure(t *testing.T) {
	cm := newTestCache()
	runner := &fakeRunner{state: &workflow.State{Status: workflow.StatusFailed}}
	m := New(runner, cm, nil, nil)

	mood := popularMood{key: "party_dance", prompt: "party dance club high energy music"}
	m.precomputeOne(t.Context(), mood)

	var cached []track.Recommendation
	assert.False(t, cm.PopularMood(t.Context(), mood.key, &cached))
}

func TestPrecomputeOne_DoesNotCacheOnError(t *testing.T) {
	cm := newTestCache()
	runner := &fakeRunner{err: errors.New("workflow blew up")}
	m := New(runner, cm, nil, nil)

	mood := popularMood{key: "focus_study", prompt: "focus study concentration instrumental music"}
	m.precomputeOne(t.Context(), mood)

	var cached []track.Recommendation
	assert.False(t, cm.PopularMood(t.Context(), mood.key, &cached))
}

func TestRunPopularMoods_StopsImmediatelyOnCancelledContext(t *testing.T) {
	runner := &fakeRunner{state: &workflow.State{Status: workflow.StatusCompleted}}
	m := New(runner, newTestCache(), nil, nil)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	m.runPopularMoods(ctx)
	assert.Equal(t, 0, runner.calls, "a cancelled context should abort before the first mood runs")
}

func TestWarmUserCache_PopulatesTopTracksArtistsAndFeatures(t *testing.T) {
	cm := newTestCache()
	catalogClient := &fakeCatalogClient{
		tracks:  []track.Candidate{{ID: "tr1"}, {ID: "tr2"}},
		artists: []catalog.Artist{{ID: "ar1", Name: "Artist One"}},
	}
	featuresClient := &fakeFeaturesClient{feats: map[string]map[domainmood.Feature]float64{
		"tr1": {domainmood.FeatureEnergy: 0.7},
		"tr2": {domainmood.FeatureEnergy: 0.3},
	}}
	m := New(nil, cm, catalogClient, featuresClient)

	m.warmUserCache(t.Context(), "user-1")

	var tracks []track.Candidate
	require.True(t, cm.TopTracks(t.Context(), "user-1", string(userCacheTimeRange), userCacheWarmTrackLimit, &tracks))
	assert.Len(t, tracks, 2)

	var artists []catalog.Artist
	require.True(t, cm.TopArtists(t.Context(), "user-1", string(userCacheTimeRange), userCacheWarmArtistLimit, &artists))
	assert.Len(t, artists, 1)

	var feats map[domainmood.Feature]float64
	require.True(t, cm.GetJSON(t.Context(), categoryAudioFeaturesWarm, &feats, "tr1"))
	assert.Equal(t, 0.7, feats[domainmood.FeatureEnergy])
}

func TestWarmUserCache_NoopWhenCatalogNil(t *testing.T) {
	m := New(nil, newTestCache(), nil, nil)
	m.warmUserCache(t.Context(), "user-1")
}

func TestStop_WaitsForTrackedGoroutines(t *testing.T) {
	runner := &fakeRunner{state: &workflow.State{Status: workflow.StatusCompleted}}
	m := New(runner, newTestCache(), &fakeCatalogClient{}, nil)

	m.WarmUserCache("user-1")
	err := m.Stop(t.Context())
	require.NoError(t, err)
}

func TestCacheProgressNotifier_WritesWorkflowState(t *testing.T) {
	cm := newTestCache()
	notifier := NewCacheProgressNotifier(cm)

	state := &workflow.State{SessionID: "sess-1", Status: workflow.StatusAnalyzingMood}
	notifier.Notify(state)

	var got workflow.State
	require.True(t, cm.WorkflowState(t.Context(), "sess-1", &got))
	assert.Equal(t, workflow.StatusAnalyzingMood, got.Status)
}

func TestCacheProgressNotifier_NilSafe(t *testing.T) {
	var notifier *CacheProgressNotifier
	notifier.Notify(&workflow.State{SessionID: "sess-1"})

	notifier2 := NewCacheProgressNotifier(nil)
	notifier2.Notify(&workflow.State{SessionID: "sess-1"})
}
