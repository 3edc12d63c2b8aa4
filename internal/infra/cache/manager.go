package cache

import (
	"context"
	"encoding/json"
	"strconv"
	"sync/atomic"
	"time"

	zlog "github.com/rs/zerolog/log"
)

// backendProxy lets Manager's backend be swapped at runtime (e.g. to
// fail over from a broken distributed backend to memory-only) without
// invalidating references long-lived callers hold to the Manager
// itself (spec §4.1: "A proxy object lets the manager be swapped at
// runtime without reference invalidation in long-lived callers").
type backendProxy struct {
	current atomic.Pointer[Backend]
}

func newBackendProxy(b Backend) *backendProxy {
	p := &backendProxy{}
	p.Swap(b)
	return p
}

func (p *backendProxy) Swap(b Backend) { p.current.Store(&b) }

func (p *backendProxy) get() Backend { return *p.current.Load() }

// Manager is the CacheManager of spec §4.1: it composes category
// helpers over a swappable Backend and never lets a backend error
// reach callers — a read failure is a miss, a write failure is
// silently dropped.
type Manager struct {
	backend *backendProxy
	prefix  string
}

// NewManager wraps backend behind the prefix namespace.
func NewManager(backend Backend, prefix string) *Manager {
	return &Manager{backend: newBackendProxy(backend), prefix: prefix}
}

// SwapBackend atomically replaces the backend in use, e.g. during a
// failover from distributed to memory-only caching.
func (m *Manager) SwapBackend(b Backend) { m.backend.Swap(b) }

// GetJSON reads key and decodes it into out, returning ok=false on
// miss, decode failure, or backend failure (all degrade identically
// per the manager's contract).
func (m *Manager) GetJSON(ctx context.Context, category string, out any, args ...string) bool {
	key := BuildKey(m.prefix, category, args...)
	raw, found, err := m.backend.get().Get(ctx, key)
	if err != nil || !found {
		return false
	}
	if err := json.Unmarshal(raw, out); err != nil {
		zlog.Warn().Msgf("cache decode failed, treating as miss: key=%s error=%v", key, err)
		return false
	}
	return true
}

// SetJSON encodes value and writes it under key with ttl. Encode or
// backend failures are logged and dropped, never returned, per the
// manager's "never raises to callers" contract.
func (m *Manager) SetJSON(ctx context.Context, category string, value any, ttl time.Duration, args ...string) {
	key := BuildKey(m.prefix, category, args...)
	raw, err := json.Marshal(value)
	if err != nil {
		zlog.Warn().Msgf("cache encode failed, dropping write: key=%s error=%v", key, err)
		return
	}
	if err := m.backend.get().Set(ctx, key, raw, ttl); err != nil {
		zlog.Warn().Msgf("cache write failed: key=%s error=%v", key, err)
	}
}

// Delete removes the namespaced entry for category/args.
func (m *Manager) Delete(ctx context.Context, category string, args ...string) {
	key := BuildKey(m.prefix, category, args...)
	if err := m.backend.get().Delete(ctx, key); err != nil {
		zlog.Warn().Msgf("cache delete failed: key=%s error=%v", key, err)
	}
}

// Exists reports whether a namespaced entry for category/args is
// present and unexpired.
func (m *Manager) Exists(ctx context.Context, category string, args ...string) bool {
	key := BuildKey(m.prefix, category, args...)
	ok, err := m.backend.get().Exists(ctx, key)
	if err != nil {
		return false
	}
	return ok
}

// Clear wipes every entry the current backend holds.
func (m *Manager) Clear(ctx context.Context) {
	if err := m.backend.get().Clear(ctx); err != nil {
		zlog.Warn().Msgf("cache clear failed: error=%v", err)
	}
}

// Stats returns the active backend's hit/miss counters.
func (m *Manager) Stats() Stats {
	return m.backend.get().Stats()
}

// UserProfile caches a user's Catalog profile.
func (m *Manager) UserProfile(ctx context.Context, userID string, out any) bool {
	return m.GetJSON(ctx, CategoryUserProfile, out, userID)
}

// SetUserProfile writes a user's Catalog profile with the category's
// default TTL.
func (m *Manager) SetUserProfile(ctx context.Context, userID string, value any) {
	m.SetJSON(ctx, CategoryUserProfile, value, TTLUserProfile, userID)
}

// TopTracks caches a user's top tracks for (timeRange, limit).
func (m *Manager) TopTracks(ctx context.Context, userID, timeRange string, limit int, out any) bool {
	return m.GetJSON(ctx, CategoryTopTracks, out, userID, timeRange, strconv.Itoa(limit))
}

// SetTopTracks writes a user's top tracks.
func (m *Manager) SetTopTracks(ctx context.Context, userID, timeRange string, limit int, value any) {
	m.SetJSON(ctx, CategoryTopTracks, value, TTLTopTracks, userID, timeRange, strconv.Itoa(limit))
}

// TopArtists caches a user's top artists for (timeRange, limit).
func (m *Manager) TopArtists(ctx context.Context, userID, timeRange string, limit int, out any) bool {
	return m.GetJSON(ctx, CategoryTopArtists, out, userID, timeRange, strconv.Itoa(limit))
}

// SetTopArtists writes a user's top artists.
func (m *Manager) SetTopArtists(ctx context.Context, userID, timeRange string, limit int, value any) {
	m.SetJSON(ctx, CategoryTopArtists, value, TTLTopArtists, userID, timeRange, strconv.Itoa(limit))
}

// MoodAnalysis caches a mood analysis keyed by prompt.
func (m *Manager) MoodAnalysis(ctx context.Context, prompt string, out any) bool {
	return m.GetJSON(ctx, CategoryMoodAnalysis, out, prompt)
}

// SetMoodAnalysis writes a mood analysis.
func (m *Manager) SetMoodAnalysis(ctx context.Context, prompt string, value any) {
	m.SetJSON(ctx, CategoryMoodAnalysis, value, TTLMoodAnalysis, prompt)
}

// AnchorTracks caches anchor-selection results keyed by (userID, moodPrompt).
func (m *Manager) AnchorTracks(ctx context.Context, userID, moodPrompt string, out any) bool {
	return m.GetJSON(ctx, CategoryAnchorTracks, out, userID, moodPrompt)
}

// SetAnchorTracks writes anchor-selection results.
func (m *Manager) SetAnchorTracks(ctx context.Context, userID, moodPrompt string, value any) {
	m.SetJSON(ctx, CategoryAnchorTracks, value, TTLAnchorTracks, userID, moodPrompt)
}

// PopularMood caches the precomputed playlist for a fixed mood key.
func (m *Manager) PopularMood(ctx context.Context, moodKey string, out any) bool {
	return m.GetJSON(ctx, CategoryPopularMoodCache, out, moodKey)
}

// SetPopularMood writes a precomputed popular-mood playlist.
func (m *Manager) SetPopularMood(ctx context.Context, moodKey string, value any) {
	m.SetJSON(ctx, CategoryPopularMoodCache, value, TTLPopularMoodCache, moodKey)
}

// WorkflowState caches a snapshot of workflow progress for polling.
func (m *Manager) WorkflowState(ctx context.Context, sessionID string, out any) bool {
	return m.GetJSON(ctx, CategoryWorkflowState, out, sessionID)
}

// SetWorkflowState writes a workflow-state snapshot.
func (m *Manager) SetWorkflowState(ctx context.Context, sessionID string, value any) {
	m.SetJSON(ctx, CategoryWorkflowState, value, TTLWorkflowState, sessionID)
}

// ArtistTopTracks caches an artist's top tracks for a market.
func (m *Manager) ArtistTopTracks(ctx context.Context, artistID, market string, out any) bool {
	return m.GetJSON(ctx, CategoryArtistTopTracks, out, artistID, market)
}

// SetArtistTopTracks writes an artist's top tracks for a market.
func (m *Manager) SetArtistTopTracks(ctx context.Context, artistID, market string, value any) {
	m.SetJSON(ctx, CategoryArtistTopTracks, value, TTLArtistTopTracks, artistID, market)
}

// MissingID caches an ID Registry negative entry keyed by catalog ID.
func (m *Manager) MissingID(ctx context.Context, catalogID string, out any) bool {
	return m.GetJSON(ctx, CategoryMissingID, out, catalogID)
}

// SetMissingID writes an ID Registry negative entry.
func (m *Manager) SetMissingID(ctx context.Context, catalogID string, value any) {
	m.SetJSON(ctx, CategoryMissingID, value, TTLMissingID, catalogID)
}

// ValidatedID caches a forward (catalog -> features) or reverse
// (features -> catalog) ID Registry mapping, distinguished by args.
func (m *Manager) ValidatedID(ctx context.Context, direction, id string, out any) bool {
	return m.GetJSON(ctx, CategoryValidatedID, out, direction, id)
}

// SetValidatedID writes a forward or reverse ID Registry mapping.
func (m *Manager) SetValidatedID(ctx context.Context, direction, id string, value any) {
	m.SetJSON(ctx, CategoryValidatedID, value, TTLValidatedID, direction, id)
}

// DenyList caches a guardrails deny-list entry keyed by fingerprint.
func (m *Manager) DenyList(ctx context.Context, fingerprint string, out any) bool {
	return m.GetJSON(ctx, CategoryDenyList, out, fingerprint)
}

// SetDenyList writes a guardrails deny-list entry.
func (m *Manager) SetDenyList(ctx context.Context, fingerprint string, value any) {
	m.SetJSON(ctx, CategoryDenyList, value, TTLDenyList, fingerprint)
}
