// Package mood defines the structured output of mood/intent analysis:
// the target audio-feature profile every downstream scoring stage
// measures candidates against.
package mood

import (
	"encoding/json"

	"github.com/cockroachdb/errors"
)

// Feature is one of the twelve audio features the mood engine and the
// feature matcher reason about.
type Feature string

const (
	FeatureAcousticness    Feature = "acousticness"
	FeatureDanceability    Feature = "danceability"
	FeatureEnergy          Feature = "energy"
	FeatureInstrumentalness Feature = "instrumentalness"
	FeatureKey             Feature = "key"
	FeatureLiveness        Feature = "liveness"
	FeatureLoudness        Feature = "loudness"
	FeatureMode            Feature = "mode"
	FeatureSpeechiness     Feature = "speechiness"
	FeatureTempo           Feature = "tempo"
	FeatureValence         Feature = "valence"
	FeaturePopularity      Feature = "popularity"
)

// AllFeatures is the closed set of feature names understood by the
// mood analysis engine and feature matcher (spec §6).
var AllFeatures = []Feature{
	FeatureAcousticness, FeatureDanceability, FeatureEnergy,
	FeatureInstrumentalness, FeatureKey, FeatureLiveness,
	FeatureLoudness, FeatureMode, FeatureSpeechiness,
	FeatureTempo, FeatureValence, FeaturePopularity,
}

// FeatureRange returns the valid [min,max] bound for a feature, per
// spec §6. ok is false for an unrecognized feature.
func FeatureRange(f Feature) (min, max float64, ok bool) {
	switch f {
	case FeatureKey:
		return -1, 11, true
	case FeatureLoudness:
		return -60, 2, true
	case FeatureTempo:
		return 0, 250, true
	case FeaturePopularity:
		return 0, 100, true
	case FeatureAcousticness, FeatureDanceability, FeatureEnergy,
		FeatureInstrumentalness, FeatureLiveness, FeatureMode,
		FeatureSpeechiness, FeatureValence:
		return 0, 1, true
	default:
		return 0, 0, false
	}
}

// FeatureTarget is a closed sum type: a target is either a single
// numeric value or an inclusive [min,max] range, never both (spec §3:
// "target_features maps feature names to either a single numeric
// target or a [min,max] range").
type FeatureTarget struct {
	isRange bool
	single  float64
	min     float64
	max     float64
}

// Single builds a point target.
func Single(v float64) FeatureTarget { return FeatureTarget{single: v} }

// Range builds a range target. Panics is avoided; callers validate
// min<=max via NewRange.
func Range(min, max float64) FeatureTarget {
	return FeatureTarget{isRange: true, min: min, max: max}
}

// NewRange validates min<=max before constructing a range target,
// per the invariant in spec §3 ("all range pairs satisfy min <= max").
func NewRange(min, max float64) (FeatureTarget, error) {
	if min > max {
		return FeatureTarget{}, errors.Newf("invalid feature range: min %.3f > max %.3f", min, max)
	}
	return Range(min, max), nil
}

// IsRange reports whether the target is a range (vs a single point).
func (t FeatureTarget) IsRange() bool { return t.isRange }

// Midpoint returns the representative value used by cohesion/violation
// scoring to collapse a range target to a point (spec §4.10: "For a
// range target, collapse to midpoint").
func (t FeatureTarget) Midpoint() float64 {
	if t.isRange {
		return (t.min + t.max) / 2
	}
	return t.single
}

// Bounds returns (min, max) for a range target, or (v, v) for a point
// target.
func (t FeatureTarget) Bounds() (float64, float64) {
	if t.isRange {
		return t.min, t.max
	}
	return t.single, t.single
}

// Match computes the mood-match similarity of an actual value against
// this target, per spec §4.10: range target uses
// max(0, 1-|actual-midpoint|); point target uses the same formula
// against the single value (which equals its own midpoint).
func (t FeatureTarget) Match(actual float64) float64 {
	diff := actual - t.Midpoint()
	if diff < 0 {
		diff = -diff
	}
	sim := 1 - diff
	if sim < 0 {
		return 0
	}
	return sim
}

// MarshalJSON renders a point target as a bare number and a range
// target as a two-element array, matching the wire shape in spec §6.
func (t FeatureTarget) MarshalJSON() ([]byte, error) {
	if t.isRange {
		return json.Marshal([2]float64{t.min, t.max})
	}
	return json.Marshal(t.single)
}

// UnmarshalJSON accepts either a bare number or a two-element array.
func (t *FeatureTarget) UnmarshalJSON(data []byte) error {
	var single float64
	if err := json.Unmarshal(data, &single); err == nil {
		*t = Single(single)
		return nil
	}

	var pair [2]float64
	if err := json.Unmarshal(data, &pair); err != nil {
		return errors.Wrap(err, "target_features value is neither a number nor a [min,max] pair")
	}
	r, err := NewRange(pair[0], pair[1])
	if err != nil {
		return err
	}
	*t = r
	return nil
}

// PrimaryEmotion is the coarse sentiment bucket of a mood analysis.
type PrimaryEmotion string

const (
	EmotionPositive PrimaryEmotion = "positive"
	EmotionNegative PrimaryEmotion = "negative"
	EmotionNeutral  PrimaryEmotion = "neutral"
)

// EnergyLevel is the coarse energy bucket of a mood analysis.
type EnergyLevel string

const (
	EnergyLow    EnergyLevel = "low"
	EnergyMedium EnergyLevel = "medium"
	EnergyHigh   EnergyLevel = "high"
)

// TemporalContext describes whether the prompt pins a release-date
// window, and whether that pin was explicit (a named decade/era) or
// merely inferred.
type TemporalContext struct {
	IsTemporal bool    `json:"is_temporal"`
	YearRange  *[2]int `json:"year_range,omitempty"`
	Decade     string  `json:"decade,omitempty"`
	Era        string  `json:"era,omitempty"`
}

// Explicit reports whether the temporal context was named outright
// (a decade or era string present), which per spec §4.10 means zero
// tolerance on the release-year window; otherwise a 5-year tolerance
// applies.
func (tc *TemporalContext) Explicit() bool {
	return tc != nil && (tc.Decade != "" || tc.Era != "")
}

// ColorScheme is a decorative triple of hex colors the mood engine
// derives for UI theming; it carries no weight in scoring.
type ColorScheme struct {
	Primary   string `json:"primary"`
	Secondary string `json:"secondary"`
	Tertiary  string `json:"tertiary"`
}

// Analysis is the structured mood/intent profile produced by §4.6 and
// consumed by every downstream strategy (spec §6 "MoodAnalysis JSON").
type Analysis struct {
	MoodInterpretation    string                   `json:"mood_interpretation"`
	PrimaryEmotion        PrimaryEmotion           `json:"primary_emotion"`
	EnergyLevel           EnergyLevel              `json:"energy_level"`
	TargetFeatures        map[Feature]FeatureTarget `json:"target_features"`
	FeatureWeights        map[Feature]float64      `json:"feature_weights"`
	SearchKeywords        []string                 `json:"search_keywords"`
	ArtistRecommendations []string                 `json:"artist_recommendations"`
	GenreKeywords         []string                 `json:"genre_keywords"`
	PreferredRegions      []string                 `json:"preferred_regions"`
	ExcludedRegions       []string                 `json:"excluded_regions"`
	ExcludedThemes        []string                 `json:"excluded_themes"`
	TemporalContext       *TemporalContext         `json:"temporal_context,omitempty"`
	ColorScheme           ColorScheme              `json:"color_scheme"`
	Reasoning             string                   `json:"reasoning"`
}

// Validate checks the cross-field invariants documented in spec §3:
// every range satisfies min<=max (enforced at construction time by
// FeatureTarget, re-checked here defensively), every feature weight is
// in [0,1], and preferred/excluded regions are disjoint.
func (a *Analysis) Validate() error {
	for f, w := range a.FeatureWeights {
		if w < 0 || w > 1 {
			return errors.Newf("feature_weights[%s] = %.3f out of [0,1]", f, w)
		}
	}
	for f, t := range a.TargetFeatures {
		if t.IsRange() {
			min, max := t.Bounds()
			if min > max {
				return errors.Newf("target_features[%s] range [%.3f,%.3f] has min>max", f, min, max)
			}
		}
	}
	excluded := make(map[string]bool, len(a.ExcludedRegions))
	for _, r := range a.ExcludedRegions {
		excluded[r] = true
	}
	for _, r := range a.PreferredRegions {
		if excluded[r] {
			return errors.Newf("region %q is both preferred and excluded", r)
		}
	}
	return nil
}

// Feature looks up a target feature, returning ok=false if the mood
// analysis did not set one.
func (a *Analysis) Feature(f Feature) (FeatureTarget, bool) {
	t, ok := a.TargetFeatures[f]
	return t, ok
}
