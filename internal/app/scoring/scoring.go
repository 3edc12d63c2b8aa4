// Package scoring implements the Scoring & Feature Matcher of spec
// §4.10: confidence scoring, mood match, track cohesion, the
// violation-based filter, and the temporal filter.
package scoring

import (
	"math"
	"strconv"

	domainmood "github.com/osa030/moodplay/internal/domain/mood"
	"github.com/osa030/moodplay/internal/domain/track"
)

// moodMatchFeatures are the features averaged for confidence scoring's
// mood-match term (spec §4.10 "Features compared").
var moodMatchFeatures = []domainmood.Feature{
	domainmood.FeatureEnergy,
	domainmood.FeatureValence,
	domainmood.FeatureDanceability,
	domainmood.FeatureAcousticness,
}

// cohesionTolerances is the per-feature tolerance table for track
// cohesion (spec §4.10).
var cohesionTolerances = map[domainmood.Feature]float64{
	domainmood.FeatureEnergy:          0.3,
	domainmood.FeatureValence:         0.3,
	domainmood.FeatureDanceability:    0.3,
	domainmood.FeatureAcousticness:    0.4,
	domainmood.FeatureInstrumentalness: 0.25,
	domainmood.FeatureSpeechiness:     0.25,
	domainmood.FeatureTempo:           40,
	domainmood.FeatureLoudness:        6,
	domainmood.FeatureLiveness:        0.4,
	domainmood.FeaturePopularity:      30,
}

// violationTolerances extends cohesionTolerances (wider) for the
// violation-based filter (spec §4.10).
var violationTolerances = map[domainmood.Feature]float64{
	domainmood.FeatureSpeechiness:     0.15,
	domainmood.FeatureInstrumentalness: 0.15,
	domainmood.FeatureEnergy:          0.20,
	domainmood.FeatureValence:         0.25,
	domainmood.FeatureDanceability:    0.20,
	domainmood.FeatureTempo:           30,
	domainmood.FeatureLoudness:        5,
	domainmood.FeatureAcousticness:    0.25,
	domainmood.FeatureLiveness:        0.30,
	domainmood.FeaturePopularity:      20,
}

// criticalFeatures are the only features whose violation can count as
// "critical" toward the drop threshold (spec §4.10).
var criticalFeatures = map[domainmood.Feature]bool{
	domainmood.FeatureEnergy:       true,
	domainmood.FeatureAcousticness: true,
	domainmood.FeatureInstrumentalness: true,
	domainmood.FeatureDanceability: true,
}

// binaryFeatures are never used to filter (spec §4.10: "Binary
// features (mode, key) have no tolerance and are never used to
// filter").
var binaryFeatures = map[domainmood.Feature]bool{
	domainmood.FeatureMode: true,
	domainmood.FeatureKey:  true,
}

// UpstreamScore is the raw score/rating/confidence the upstream may
// have already supplied, normalized to [0,1].
type UpstreamScore struct {
	Value   float64
	Present bool
}

// Candidate is the minimal shape ConfidenceScore needs from a
// not-yet-finalized recommendation.
type Candidate struct {
	Popularity    int
	Source        track.Source
	AudioFeatures map[domainmood.Feature]float64
}

// ConfidenceScore computes the confidence score of spec §4.10. If the
// upstream supplied its own score it is used as-is (already
// normalized by the caller); otherwise the formula below composes a
// score from popularity, mood match, and penalty terms.
func ConfidenceScore(c Candidate, upstream UpstreamScore, analysis *domainmood.Analysis) float64 {
	if upstream.Present {
		return clamp01(upstream.Value)
	}

	score := 0.6
	score += 0.15 * float64(c.Popularity) / 100

	hasFeatures := len(c.AudioFeatures) > 0
	hasTargets := analysis != nil && len(analysis.TargetFeatures) > 0
	switch {
	case hasFeatures && hasTargets:
		score += 0.40 * MoodMatch(c.AudioFeatures, analysis.TargetFeatures)
	case hasTargets:
		score += 0.10
	}

	if hasTargets && hasFeatures {
		if target, ok := analysis.TargetFeatures[domainmood.FeatureSpeechiness]; ok && target.Midpoint() < 0.2 {
			if speechiness, ok := c.AudioFeatures[domainmood.FeatureSpeechiness]; ok {
				score -= 0.15 * math.Max(0, speechiness-0.3)
			}
		}
		if target, ok := analysis.TargetFeatures[domainmood.FeatureLiveness]; ok && target.Midpoint() < 0.3 {
			if liveness, ok := c.AudioFeatures[domainmood.FeatureLiveness]; ok {
				score -= 0.10 * math.Max(0, liveness-0.5)
			}
		}
	}

	if c.Source == track.SourceReccobeat {
		score *= 0.85
	}

	return clamp01(score)
}

// MoodMatch averages per-feature similarity over the features present
// in both actual and target (spec §4.10 "Mood match").
func MoodMatch(actual map[domainmood.Feature]float64, targets map[domainmood.Feature]domainmood.FeatureTarget) float64 {
	var sum float64
	var n int
	for _, f := range moodMatchFeatures {
		target, ok := targets[f]
		if !ok {
			continue
		}
		value, ok := actual[f]
		if !ok {
			continue
		}
		sum += target.Match(value)
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// Cohesion computes track cohesion against target (spec §4.10 "Track
// cohesion"), used for artist-discovery tracks. Returns 0.5 when no
// comparable feature is present in both maps.
func Cohesion(actual map[domainmood.Feature]float64, targets map[domainmood.Feature]domainmood.FeatureTarget) float64 {
	var sum float64
	var n int
	for f, tolerance := range cohesionTolerances {
		target, ok := targets[f]
		if !ok {
			continue
		}
		value, ok := actual[f]
		if !ok {
			continue
		}
		dist := math.Abs(value - target.Midpoint())
		score := 1 - dist/tolerance
		if score < 0 {
			score = 0
		}
		sum += score
		n++
	}
	if n == 0 {
		return 0.5
	}
	return sum / float64(n)
}

// CriticalViolationThreshold returns the drop threshold for source
// (spec §4.10: "threshold 3 for source = artist_discovery").
func CriticalViolationThreshold(source track.Source) int {
	if source == track.SourceArtistDiscovery {
		return 3
	}
	return 2
}

// CountCriticalViolations counts the violation-filter's critical
// violations (spec §4.10 "Violation-based filter").
func CountCriticalViolations(actual map[domainmood.Feature]float64, targets map[domainmood.Feature]domainmood.FeatureTarget) int {
	var critical int
	for f, tolerance := range violationTolerances {
		if binaryFeatures[f] {
			continue
		}
		target, ok := targets[f]
		if !ok {
			continue
		}
		value, ok := actual[f]
		if !ok {
			continue
		}
		dist := math.Abs(value - target.Midpoint())
		if criticalFeatures[f] && dist > 2*tolerance {
			critical++
		}
	}
	return critical
}

// PassesViolationFilter reports whether a candidate survives the
// violation-based filter. Protected tracks always pass.
func PassesViolationFilter(protected bool, source track.Source, actual map[domainmood.Feature]float64, targets map[domainmood.Feature]domainmood.FeatureTarget) bool {
	if protected {
		return true
	}
	return CountCriticalViolations(actual, targets) < CriticalViolationThreshold(source)
}

// PassesTemporalFilter implements spec §4.10 "Temporal filter".
// Explicit user track mentions bypass this filter entirely; a missing
// or unparseable release date is accepted leniently.
func PassesTemporalFilter(userMentioned bool, temporal *domainmood.TemporalContext, releaseDate string) bool {
	if userMentioned || temporal == nil || !temporal.IsTemporal || temporal.YearRange == nil {
		return true
	}

	year, ok := parseReleaseYear(releaseDate)
	if !ok {
		return true
	}

	tol := 5
	if temporal.Explicit() {
		tol = 0
	}
	min, max := temporal.YearRange[0]-tol, temporal.YearRange[1]+tol
	return year >= min && year <= max
}

func parseReleaseYear(releaseDate string) (int, bool) {
	if len(releaseDate) < 4 {
		return 0, false
	}
	year, err := strconv.Atoi(releaseDate[:4])
	if err != nil {
		return 0, false
	}
	return year, true
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
