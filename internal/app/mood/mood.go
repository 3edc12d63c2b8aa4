// Package mood implements the Mood Analysis Engine of spec §4.6: an
// LLM-primary, rule-based-fallback pipeline that turns a free-text
// mood prompt into the structured MoodAnalysis of spec §6.
package mood

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog/log"

	domainmood "github.com/osa030/moodplay/internal/domain/mood"
	"github.com/osa030/moodplay/internal/infra/llm"
)

// systemPrompt describes the 12 audio features and their ranges, the
// regional/theme vocabulary, and the required JSON shape to the LLM
// (spec §4.6 "primary path").
const systemPrompt = `You are a music mood analysis engine. Given a free-text mood prompt, respond with a single JSON object, and nothing else, matching this shape:
{
  "mood_interpretation": string,
  "primary_emotion": "positive"|"negative"|"neutral",
  "energy_level": "low"|"medium"|"high",
  "target_features": { <feature_name>: number | [number, number], ... },
  "feature_weights": { <feature_name>: number in [0,1], ... },
  "search_keywords": [string, ...],
  "artist_recommendations": [string, ...],
  "genre_keywords": [string, ...],
  "preferred_regions": [string, ...],
  "excluded_regions": [string, ...],
  "excluded_themes": [string, ...],
  "color_scheme": { "primary": "#RRGGBB", "secondary": "#RRGGBB", "tertiary": "#RRGGBB" },
  "reasoning": string
}
Feature names: acousticness, danceability, energy, instrumentalness, key, liveness, loudness, mode, speechiness, tempo, valence, popularity.
Ranges: all in [0,1] except key in [-1,11] (integer), loudness in [-60,2], tempo in [0,250], popularity in [0,100] (integer).`

// Engine is the Mood Analysis Engine of spec §4.6.
type Engine struct {
	llm llm.Client
}

// New builds an Engine. client may be nil, in which case Analyze
// always uses the rule-based fallback.
func New(client llm.Client) *Engine {
	return &Engine{llm: client}
}

// Analyze produces a MoodAnalysis for prompt. It tries the LLM first;
// on failure or unparseable output it falls back to rule-based
// analysis entirely. In both cases the keyword overlay, region
// inference, and theme-exclusion passes run afterward and only ever
// fill in features the earlier stage left unset (spec: "the fallback
// never overwrites an LLM-set feature").
func (e *Engine) Analyze(ctx context.Context, prompt string) (*domainmood.Analysis, error) {
	var analysis *domainmood.Analysis

	if e.llm != nil {
		a, err := e.analyzeWithLLM(ctx, prompt)
		if err != nil {
			log.Warn().Err(err).Msg("mood analysis: LLM path failed, using rule-based fallback")
		} else {
			analysis = a
		}
	}

	if analysis == nil {
		analysis = e.analyzeFallback(prompt)
	} else {
		e.enhance(analysis, prompt)
	}

	if err := analysis.Validate(); err != nil {
		return nil, err
	}
	return analysis, nil
}

func (e *Engine) analyzeWithLLM(ctx context.Context, prompt string) (*domainmood.Analysis, error) {
	reply, err := e.llm.Complete(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: systemPrompt},
		{Role: llm.RoleUser, Content: "Analyze this mood: '" + prompt + "'"},
	})
	if err != nil {
		return nil, err
	}

	jsonBody, ok := extractBalancedObject(reply)
	if !ok {
		return nil, errors.New("no balanced JSON object found in LLM response")
	}

	var analysis domainmood.Analysis
	if err := json.Unmarshal([]byte(jsonBody), &analysis); err != nil {
		return nil, errors.Wrap(err, "LLM response failed strict JSON decode")
	}
	if analysis.TargetFeatures == nil {
		return nil, errors.New("target_features missing from LLM response")
	}

	return &analysis, nil
}

// analyzeFallback builds a MoodAnalysis purely from the rule-based
// pipeline of spec §4.6 part (a)-(d): profile matcher, keyword
// overlay, region inference, theme exclusions.
func (e *Engine) analyzeFallback(prompt string) *domainmood.Analysis {
	analysis := &domainmood.Analysis{
		MoodInterpretation: "Rule-based analysis of: " + prompt,
		PrimaryEmotion:     domainmood.EmotionNeutral,
		EnergyLevel:        domainmood.EnergyMedium,
		TargetFeatures:     make(map[domainmood.Feature]domainmood.FeatureTarget),
		FeatureWeights:     make(map[domainmood.Feature]float64),
		Reasoning:          "Rule-based analysis using keyword matching for: " + prompt,
	}

	matched := matchProfiles(strings.ToLower(prompt))
	applyProfiles(matched, prompt, analysis)
	e.enhance(analysis, prompt)

	return analysis
}

// enhance runs the keyword overlay, search-keyword extraction,
// genre/artist extraction, region inference, and theme exclusion
// passes against analysis, never overwriting a feature already set.
func (e *Engine) enhance(analysis *domainmood.Analysis, prompt string) {
	promptLower := strings.ToLower(prompt)

	enhanceWithKeywords(analysis, promptLower)

	if len(analysis.SearchKeywords) == 0 {
		analysis.SearchKeywords = extractSearchKeywords(prompt)
	}

	if len(analysis.GenreKeywords) == 0 && len(analysis.ArtistRecommendations) == 0 {
		genres, artists := extractGenresAndArtists(prompt)
		analysis.GenreKeywords = genres
		analysis.ArtistRecommendations = artists
	}

	if len(analysis.PreferredRegions) == 0 && len(analysis.ExcludedRegions) == 0 {
		preferred, excluded := inferRegions(promptLower)
		analysis.PreferredRegions = preferred
		analysis.ExcludedRegions = excluded
	}

	if analysis.ExcludedThemes == nil {
		analysis.ExcludedThemes = inferExcludedThemes(promptLower)
	}
}

// extractBalancedObject returns the first top-level balanced
// {...} substring of s (spec §4.6: "extracting the first balanced
// {…} substring").
func extractBalancedObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}
