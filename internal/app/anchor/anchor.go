// Package anchor implements the Anchor Selector of spec §4.7: the
// three-tier (user/artist/genre) candidate collector, LLM-guided
// cultural filter, strategy, scoring, and composition pipeline that
// produces the reference tracks shaping a playlist.
package anchor

import (
	"context"
	"strings"
	"unicode"

	"github.com/rs/zerolog/log"

	domainmood "github.com/osa030/moodplay/internal/domain/mood"
	"github.com/osa030/moodplay/internal/domain/track"
	"github.com/osa030/moodplay/internal/infra/cache"
	"github.com/osa030/moodplay/internal/infra/catalog"
	"github.com/osa030/moodplay/internal/infra/llm"
)

const (
	minAnchorCount      = 3
	maxAnchorCount      = 8
	genreScoreFloor     = 0.6
	scriptPenaltyFactor = 0.5
)

// CatalogSearcher is the subset of the Catalog client the anchor
// selector needs: artist/track search and an artist's top tracks.
type CatalogSearcher interface {
	Search(ctx context.Context, query string, searchType catalog.SearchType, limit int) ([]track.Candidate, []catalog.Artist, error)
	GetArtistTopTracks(ctx context.Context, artistID, artistName string) ([]track.Candidate, error)
}

// FeatureScorer resolves the audio-feature profile of a candidate
// track, used to score genre anchors against target_features.
type FeatureScorer interface {
	AudioFeaturesFor(ctx context.Context, catalogTrackID string) (map[domainmood.Feature]float64, bool)
}

// Selector is the Anchor Selector of spec §4.7.
type Selector struct {
	catalog CatalogSearcher
	scorer  FeatureScorer
	llm     llm.Client
	cache   *cache.Manager
}

// New builds a Selector. llmClient may be nil, in which case
// SelectAnchors always uses the pattern-matching/score-based fallback.
func New(catalogSearcher CatalogSearcher, scorer FeatureScorer, llmClient llm.Client, cm *cache.Manager) *Selector {
	return &Selector{catalog: catalogSearcher, scorer: scorer, llm: llmClient, cache: cm}
}

// Request bundles the inputs SelectAnchors needs from the workflow.
type Request struct {
	UserID                string
	MoodPrompt            string
	Analysis              *domainmood.Analysis
	TargetCount           int
	UserMentionedTrackIDs map[string]bool
}

// SelectAnchors runs the five-step selection algorithm of spec §4.7 —
// collect candidates across the three tiers, apply the cultural
// filter, determine a strategy, score each candidate, and compose the
// final set — and returns it with user anchors first. Results are
// cached for 15 minutes under (user_id, mood_prompt); on a cache hit
// the protection flags are re-normalized against the request's current
// user-mentioned track IDs rather than trusted verbatim.
func (s *Selector) SelectAnchors(ctx context.Context, req Request) ([]track.AnchorCandidate, error) {
	if cached, ok := s.cacheGet(ctx, req.UserID, req.MoodPrompt); ok {
		return renormalizeProtection(cached, req.UserMentionedTrackIDs), nil
	}

	userAnchors := s.collectUserAnchors(ctx, req.MoodPrompt, req.Analysis)
	artistAnchors := s.collectArtistAnchors(ctx, req.Analysis)
	genreAnchors := s.collectGenreAnchors(ctx, req.Analysis, req.MoodPrompt)

	candidates := make([]track.AnchorCandidate, 0, len(userAnchors)+len(artistAnchors)+len(genreAnchors))
	candidates = append(candidates, userAnchors...)
	candidates = append(candidates, artistAnchors...)
	candidates = append(candidates, genreAnchors...)

	candidates = s.culturalFilter(ctx, candidates, req.MoodPrompt)

	targetCount := req.TargetCount
	if targetCount < minAnchorCount {
		targetCount = minAnchorCount
	}
	if targetCount > maxAnchorCount {
		targetCount = maxAnchorCount
	}
	if s.llm != nil {
		if strategized, ok := s.determineStrategy(ctx, req, candidates); ok {
			targetCount = strategized
		}
	}

	composed := s.compose(candidates, targetCount)
	s.cacheSet(ctx, req.UserID, req.MoodPrompt, composed)
	return composed, nil
}

// compose implements step 5: every user anchor unconditionally, then
// fill the remaining slots from the rest by score descending.
func (s *Selector) compose(candidates []track.AnchorCandidate, targetCount int) []track.AnchorCandidate {
	var userAnchors, rest []track.AnchorCandidate
	for _, c := range candidates {
		if c.AnchorType == track.AnchorUser {
			userAnchors = append(userAnchors, c)
		} else {
			rest = append(rest, c)
		}
	}

	sortByScoreDescending(rest)

	remaining := targetCount - len(userAnchors)
	if remaining < 0 {
		remaining = 0
	}
	if remaining > len(rest) {
		remaining = len(rest)
	}

	return append(userAnchors, rest[:remaining]...)
}

func sortByScoreDescending(candidates []track.AnchorCandidate) {
	for i := 1; i < len(candidates); i++ {
		for j := i; j > 0 && candidates[j].Score > candidates[j-1].Score; j-- {
			candidates[j], candidates[j-1] = candidates[j-1], candidates[j]
		}
	}
}

// collectArtistAnchors fetches top tracks for every artist the mood
// analysis names (tier 2; top tracks only, no album deep cuts). Not protected;
// subject to the cultural filter and the quality-based compose step.
func (s *Selector) collectArtistAnchors(ctx context.Context, analysis *domainmood.Analysis) []track.AnchorCandidate {
	if analysis == nil || s.catalog == nil {
		return nil
	}

	var out []track.AnchorCandidate
	for _, name := range analysis.ArtistRecommendations {
		_, matches, err := s.catalog.Search(ctx, name, catalog.SearchTypeArtist, 1)
		if err != nil || len(matches) == 0 {
			log.Warn().Err(err).Str("artist", name).Msg("anchor selection: artist lookup failed")
			continue
		}
		tracks, err := s.catalog.GetArtistTopTracks(ctx, matches[0].ID, matches[0].Name)
		if err != nil {
			continue
		}
		for _, t := range tracks {
			out = append(out, track.AnchorCandidate{
				Track:      t,
				Score:      0.75,
				Confidence: 0.75,
				Source:     track.SourceArtistDiscovery,
				AnchorType: track.AnchorArtistRecommended,
			})
		}
	}
	return out
}

// collectGenreAnchors searches Catalog by genre keyword (tier 3),
// scores each candidate against target_features, applies the
// non-Latin-script penalty, and drops anything scoring below 0.6.
func (s *Selector) collectGenreAnchors(ctx context.Context, analysis *domainmood.Analysis, prompt string) []track.AnchorCandidate {
	if analysis == nil || s.catalog == nil {
		return nil
	}

	penalize := scriptPenaltyApplies(prompt, analysis)

	var out []track.AnchorCandidate
	for _, genre := range analysis.GenreKeywords {
		results, _, err := s.catalog.Search(ctx, genre, catalog.SearchTypeTrack, 10)
		if err != nil {
			continue
		}
		for _, t := range results {
			score := s.scoreAgainstTargets(ctx, t, analysis)
			if penalize {
				score *= scriptPenaltyFactor
			}
			if score < genreScoreFloor {
				continue
			}
			out = append(out, track.AnchorCandidate{
				Track:      t,
				Score:      score,
				Confidence: score,
				Source:     track.SourceReccobeat,
				AnchorType: track.AnchorGenre,
			})
		}
	}
	return out
}

// scoreAgainstTargets averages each target feature's Match() against
// the candidate's resolved audio features. A candidate with no
// resolvable Features mapping yet scores at a neutral 0.5 rather than
// being dropped — that resolution is the Seed Gatherer's job (§4.8),
// which runs after anchor selection in the pipeline.
func (s *Selector) scoreAgainstTargets(ctx context.Context, t track.Candidate, analysis *domainmood.Analysis) float64 {
	if s.scorer == nil || len(analysis.TargetFeatures) == 0 {
		return 0.5
	}
	features, ok := s.scorer.AudioFeaturesFor(ctx, t.ID)
	if !ok {
		return 0.5
	}

	var sum float64
	var n int
	for f, target := range analysis.TargetFeatures {
		actual, ok := features[f]
		if !ok {
			continue
		}
		sum += target.Match(actual)
		n++
	}
	if n == 0 {
		return 0.5
	}
	return sum / float64(n)
}

// scriptPenaltyApplies reports whether the prompt's detected script is
// non-Latin (CJK, Arabic, Hebrew, Thai, Cyrillic) and the mood
// analysis carries no preferred-region indicator for that script.
func scriptPenaltyApplies(prompt string, analysis *domainmood.Analysis) bool {
	script, isNonLatin := detectScript(prompt)
	if !isNonLatin {
		return false
	}
	for _, r := range analysis.PreferredRegions {
		if strings.EqualFold(r, script) {
			return false
		}
	}
	return true
}

// detectScript reports the non-Latin script family present in s, if
// any.
func detectScript(s string) (script string, isNonLatin bool) {
	for _, r := range s {
		switch {
		case unicode.Is(unicode.Han, r):
			return "Chinese", true
		case unicode.Is(unicode.Hiragana, r), unicode.Is(unicode.Katakana, r):
			return "Japanese", true
		case unicode.Is(unicode.Hangul, r):
			return "Korean", true
		case unicode.Is(unicode.Arabic, r):
			return "Arabic", true
		case unicode.Is(unicode.Hebrew, r):
			return "Hebrew", true
		case unicode.Is(unicode.Thai, r):
			return "Thai", true
		case unicode.Is(unicode.Cyrillic, r):
			return "Cyrillic", true
		}
	}
	return "", false
}

// culturalFilter applies the LLM-based cultural/regional filter. User
// anchors are exempt (protected anchors are never filtered); without
// an LLM client every candidate passes through unfiltered.
func (s *Selector) culturalFilter(ctx context.Context, candidates []track.AnchorCandidate, prompt string) []track.AnchorCandidate {
	if s.llm == nil || len(candidates) == 0 {
		return candidates
	}

	var kept []track.AnchorCandidate
	for _, c := range candidates {
		if c.AnchorType == track.AnchorUser {
			kept = append(kept, c)
			continue
		}
		if s.passesCulturalFilter(ctx, c, prompt) {
			kept = append(kept, c)
		}
	}
	return kept
}

// passesCulturalFilter asks the LLM whether a non-protected candidate
// culturally/regionally fits the mood prompt. Any LLM failure defaults
// to keeping the candidate — the filter is a refinement, not a gate
// that can strand the pipeline with zero anchors.
func (s *Selector) passesCulturalFilter(ctx context.Context, c track.AnchorCandidate, prompt string) bool {
	reply, err := s.llm.Complete(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: "Answer with exactly one word, yes or no: does this track fit the cultural/regional context of the listener's request?"},
		{Role: llm.RoleUser, Content: "Request: \"" + prompt + "\"\nTrack: \"" + c.Track.Name + "\" by " + strings.Join(c.Track.Artists, ", ")},
	})
	if err != nil {
		return true
	}
	return !strings.HasPrefix(strings.ToLower(strings.TrimSpace(reply)), "no")
}

// determineStrategy asks the LLM for an anchor count within
// [minAnchorCount, maxAnchorCount]. An out-of-range integer reply is
// clamped into that range; an LLM failure or a non-integer reply
// leaves the caller's clamped targetCount untouched.
func (s *Selector) determineStrategy(ctx context.Context, req Request, candidates []track.AnchorCandidate) (int, bool) {
	reply, err := s.llm.Complete(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: "Respond with a single integer between 3 and 8: how many anchor tracks should this playlist use?"},
		{Role: llm.RoleUser, Content: "Request: \"" + req.MoodPrompt + "\"\nCandidate count: " + itoa(len(candidates))},
	})
	if err != nil {
		return 0, false
	}
	n, ok := parseIntInRange(reply, minAnchorCount, maxAnchorCount)
	if !ok {
		return 0, false
	}
	return n, true
}

// renormalizeProtection re-derives the protected/user flags of a
// cached anchor set against the current user_mentioned_track_ids
// (spec §4.7 "Caching": "on cache hit, protection flags are
// re-normalized").
func renormalizeProtection(cached []track.AnchorCandidate, userMentionedIDs map[string]bool) []track.AnchorCandidate {
	out := make([]track.AnchorCandidate, len(cached))
	for i, c := range cached {
		mentioned := userMentionedIDs[c.Track.ID]
		switch {
		case mentioned:
			c.AnchorType = track.AnchorUser
			c.Protected = true
		case c.AnchorType == track.AnchorUser:
			c.AnchorType = track.AnchorNone
			c.Protected = false
		}
		out[i] = c
	}
	return out
}

func (s *Selector) cacheGet(ctx context.Context, userID, prompt string) ([]track.AnchorCandidate, bool) {
	if s.cache == nil {
		return nil, false
	}
	var cached []track.AnchorCandidate
	if s.cache.AnchorTracks(ctx, userID, prompt, &cached) {
		return cached, true
	}
	return nil, false
}

func (s *Selector) cacheSet(ctx context.Context, userID, prompt string, anchors []track.AnchorCandidate) {
	if s.cache == nil {
		return
	}
	s.cache.SetAnchorTracks(ctx, userID, prompt, anchors)
}
