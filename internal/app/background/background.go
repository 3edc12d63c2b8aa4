// Package background runs the detached, fire-and-forget work of spec
// §4.14: a precompute pass over a fixed set of popular moods, and
// per-login cache warming for a user's top tracks, top artists, and
// their audio features. Both run on goroutines tracked by a
// sync.WaitGroup and obey an explicit Stop(ctx), grounded on the
// teacher's session.Manager ctx/cancel lifecycle and the
// WaitGroup+mutex fan-out idiom of its bgm.LastFmProvider.
package background

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/osa030/moodplay/internal/app/orchestrator"
	domainmood "github.com/osa030/moodplay/internal/domain/mood"
	"github.com/osa030/moodplay/internal/domain/track"
	"github.com/osa030/moodplay/internal/domain/workflow"
	"github.com/osa030/moodplay/internal/infra/cache"
	"github.com/osa030/moodplay/internal/infra/catalog"
)

const (
	placeholderUserID = "popular-mood-precompute"

	pollInterval   = 2 * time.Second
	pollCap        = 180 * time.Second
	interMoodSleep = 5 * time.Second

	userCacheWarmTrackLimit  = 50
	userCacheWarmArtistLimit = 50
	userCacheTimeRange       = catalog.TimeRangeMedium

	categoryAudioFeaturesWarm = "audio_features_warm"
	ttlAudioFeaturesWarm      = 3600 * time.Second
)

// popularMood pairs a normalized mood key (the cache key under
// popular_mood_cache:<mood_key>) with the prompt text fed to the
// Orchestrator to produce it.
type popularMood struct {
	key    string
	prompt string
}

// popularMoods is the fixed set of 8 moods spec §4.14 precomputes.
var popularMoods = []popularMood{
	{"happy_energetic", "happy energetic upbeat feel good music"},
	{"sad_melancholic", "sad melancholic introspective music"},
	{"chill_relaxed", "chill relaxed calm laid back music"},
	{"party_dance", "party dance club high energy music"},
	{"focus_study", "focus study concentration instrumental music"},
	{"romantic_intimate", "romantic intimate slow love songs"},
	{"angry_intense", "angry intense aggressive heavy music"},
	{"nostalgic_dreamy", "nostalgic dreamy wistful throwback music"},
}

// WorkflowRunner is the subset of the Orchestrator the background
// tasks need.
type WorkflowRunner interface {
	Run(ctx context.Context, req orchestrator.Request) (*workflow.State, error)
}

// CatalogClient is the subset of the Catalog client user cache
// warming needs.
type CatalogClient interface {
	GetTopTracks(ctx context.Context, timeRange catalog.TimeRange, limit int) ([]track.Candidate, error)
	GetTopArtists(ctx context.Context, timeRange catalog.TimeRange, limit int) ([]catalog.Artist, error)
}

// FeaturesClient is the subset of the Features client user cache
// warming needs.
type FeaturesClient interface {
	GetTrackAudioFeatures(ctx context.Context, id string) (map[domainmood.Feature]float64, error)
}

// Manager runs and tracks the background tasks of spec §4.14.
type Manager struct {
	runner   WorkflowRunner
	cache    *cache.Manager
	catalog  CatalogClient
	features FeaturesClient

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// New builds a Manager. cache, catalog, and features may be nil in
// tests that only exercise a subset of the tasks; the corresponding
// task becomes a no-op.
func New(runner WorkflowRunner, cm *cache.Manager, catalogClient CatalogClient, featuresClient FeaturesClient) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		runner:   runner,
		cache:    cm,
		catalog:  catalogClient,
		features: featuresClient,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Stop cancels every tracked task and waits for them to exit, or
// until ctx expires first.
func (m *Manager) Stop(ctx context.Context) error {
	m.cancel()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// WarmPopularMoods launches the popular-mood precompute pass as a
// tracked, fire-and-forget goroutine and returns immediately.
func (m *Manager) WarmPopularMoods() {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.runPopularMoods(m.ctx)
	}()
}

func (m *Manager) runPopularMoods(ctx context.Context) {
	for i, mood := range popularMoods {
		if ctx.Err() != nil {
			return
		}

		m.precomputeOne(ctx, mood)

		if i == len(popularMoods)-1 {
			break
		}
		select {
		case <-time.After(interMoodSleep):
		case <-ctx.Done():
			return
		}
	}
}

// precomputeOne checks the popular-mood cache first (check-then-set;
// a race with another precompute pass is accepted per spec §4.14 —
// worst case is duplicate work, never inconsistency), then runs the
// workflow for a placeholder user, polling every pollInterval up to
// pollCap before giving up.
func (m *Manager) precomputeOne(ctx context.Context, mood popularMood) {
	if m.cache != nil {
		var cached []track.Recommendation
		if m.cache.PopularMood(ctx, mood.key, &cached) {
			log.Debug().Str("mood_key", mood.key).Msg("background: popular mood already cached, skipping")
			return
		}
	}

	runCtx, cancel := context.WithTimeout(ctx, pollCap)
	defer cancel()

	type outcome struct {
		state *workflow.State
		err   error
	}
	resultCh := make(chan outcome, 1)
	go func() {
		state, err := m.runner.Run(runCtx, orchestrator.Request{
			UserID:     placeholderUserID,
			MoodPrompt: mood.prompt,
		})
		resultCh <- outcome{state: state, err: err}
	}()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case res := <-resultCh:
			m.finishPrecompute(ctx, mood.key, res.state, res.err)
			return
		case <-ticker.C:
			log.Debug().Str("mood_key", mood.key).Msg("background: popular mood precompute still running")
		case <-runCtx.Done():
			log.Warn().Str("mood_key", mood.key).Msg("background: popular mood precompute timed out after 180s")
			return
		}
	}
}

func (m *Manager) finishPrecompute(ctx context.Context, moodKey string, state *workflow.State, err error) {
	if err != nil {
		log.Warn().Err(err).Str("mood_key", moodKey).Msg("background: popular mood precompute failed")
		return
	}
	if state == nil || state.Status != workflow.StatusCompleted {
		log.Warn().Str("mood_key", moodKey).Msg("background: popular mood precompute ended without completing")
		return
	}
	if m.cache != nil {
		m.cache.SetPopularMood(ctx, moodKey, state.Recommendations)
	}
}

// WarmUserCache pre-fetches and caches a user's top tracks, top
// artists, and the audio features for those top tracks, fire-and-forget
// after login.
func (m *Manager) WarmUserCache(userID string) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.warmUserCache(m.ctx, userID)
	}()
}

func (m *Manager) warmUserCache(ctx context.Context, userID string) {
	if m.catalog == nil {
		return
	}

	tracks, err := m.catalog.GetTopTracks(ctx, userCacheTimeRange, userCacheWarmTrackLimit)
	if err != nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("background: user cache warming failed to fetch top tracks")
	} else if m.cache != nil {
		m.cache.SetTopTracks(ctx, userID, string(userCacheTimeRange), userCacheWarmTrackLimit, tracks)
	}

	artists, err := m.catalog.GetTopArtists(ctx, userCacheTimeRange, userCacheWarmArtistLimit)
	if err != nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("background: user cache warming failed to fetch top artists")
	} else if m.cache != nil {
		m.cache.SetTopArtists(ctx, userID, string(userCacheTimeRange), userCacheWarmArtistLimit, artists)
	}

	m.warmAudioFeatures(ctx, tracks)
}

// warmAudioFeatures fans out one goroutine per track to fetch audio
// features concurrently, mirroring the teacher's WaitGroup+mutex fan-out
// idiom; each track writes to its own cache key so no shared state
// needs the mutex.
func (m *Manager) warmAudioFeatures(ctx context.Context, tracks []track.Candidate) {
	if m.features == nil || m.cache == nil {
		return
	}

	var wg sync.WaitGroup
	for _, t := range tracks {
		wg.Add(1)
		go func(trackID string) {
			defer wg.Done()
			feats, err := m.features.GetTrackAudioFeatures(ctx, trackID)
			if err != nil {
				log.Debug().Err(err).Str("track_id", trackID).Msg("background: audio feature warm failed")
				return
			}
			m.cache.SetJSON(ctx, categoryAudioFeaturesWarm, feats, ttlAudioFeaturesWarm, trackID)
		}(t.ID)
	}
	wg.Wait()
}
