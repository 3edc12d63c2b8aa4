package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"

	domainmood "github.com/osa030/moodplay/internal/domain/mood"
	"github.com/osa030/moodplay/internal/domain/track"
)

func TestConfidenceScore_UsesUpstreamScoreWhenPresent(t *testing.T) {
	score := ConfidenceScore(Candidate{}, UpstreamScore{Value: 0.42, Present: true}, nil)
	assert.Equal(t, 0.42, score)
}

func TestConfidenceScore_ComposesFromPopularityAndMoodMatch(t *testing.T) {
	analysis := &domainmood.Analysis{
		TargetFeatures: map[domainmood.Feature]domainmood.FeatureTarget{
			domainmood.FeatureEnergy: domainmood.Single(0.8),
		},
	}
	c := Candidate{
		Popularity:    80,
		AudioFeatures: map[domainmood.Feature]float64{domainmood.FeatureEnergy: 0.8},
	}
	score := ConfidenceScore(c, UpstreamScore{}, analysis)
	// 0.6 + 0.15*0.8 + 0.40*1.0 (features present, exact match) = 1.12, clamped to 1.
	assert.InDelta(t, 1.0, score, 0.01)
}

func TestConfidenceScore_AppliesReccobeatBiasCorrection(t *testing.T) {
	c := Candidate{Source: track.SourceReccobeat}
	score := ConfidenceScore(c, UpstreamScore{}, nil)
	assert.InDelta(t, 0.6*0.85, score, 0.001)
}

func TestConfidenceScore_PenalizesHighSpeechinessWhenTargetLow(t *testing.T) {
	analysis := &domainmood.Analysis{
		TargetFeatures: map[domainmood.Feature]domainmood.FeatureTarget{
			domainmood.FeatureSpeechiness: domainmood.Single(0.1),
		},
	}
	c := Candidate{
		AudioFeatures: map[domainmood.Feature]float64{domainmood.FeatureSpeechiness: 0.6},
	}
	penalized := ConfidenceScore(c, UpstreamScore{}, analysis)

	analysisNoSpeechiness := &domainmood.Analysis{
		TargetFeatures: map[domainmood.Feature]domainmood.FeatureTarget{
			domainmood.FeatureSpeechiness: domainmood.Single(0.1),
		},
	}
	unpenalized := ConfidenceScore(Candidate{AudioFeatures: map[domainmood.Feature]float64{domainmood.FeatureSpeechiness: 0.1}}, UpstreamScore{}, analysisNoSpeechiness)
	assert.Less(t, penalized, unpenalized)
}

func TestMoodMatch_AveragesOverPresentComparableFeatures(t *testing.T) {
	actual := map[domainmood.Feature]float64{
		domainmood.FeatureEnergy:  0.8,
		domainmood.FeatureValence: 0.5,
	}
	targets := map[domainmood.Feature]domainmood.FeatureTarget{
		domainmood.FeatureEnergy:  domainmood.Single(0.8),
		domainmood.FeatureValence: domainmood.Single(0.5),
		domainmood.FeatureTempo:   domainmood.Single(120), // not in moodMatchFeatures, ignored
	}
	assert.Equal(t, 1.0, MoodMatch(actual, targets))
}

func TestMoodMatch_ZeroWhenNoOverlap(t *testing.T) {
	assert.Equal(t, 0.0, MoodMatch(nil, nil))
}

func TestCohesion_PerfectMatchScoresOne(t *testing.T) {
	actual := map[domainmood.Feature]float64{domainmood.FeatureEnergy: 0.8}
	targets := map[domainmood.Feature]domainmood.FeatureTarget{domainmood.FeatureEnergy: domainmood.Single(0.8)}
	assert.Equal(t, 1.0, Cohesion(actual, targets))
}

func TestCohesion_DefaultsToPointFiveWhenNoFeaturesOverlap(t *testing.T) {
	assert.Equal(t, 0.5, Cohesion(nil, nil))
}

func TestCohesion_FloorsAtZeroBeyondTolerance(t *testing.T) {
	actual := map[domainmood.Feature]float64{domainmood.FeatureEnergy: 2.0}
	targets := map[domainmood.Feature]domainmood.FeatureTarget{domainmood.FeatureEnergy: domainmood.Single(0.0)}
	assert.Equal(t, 0.0, Cohesion(actual, targets))
}

func TestCountCriticalViolations_CountsOnlyCriticalFeaturesBeyondDoubleTolerance(t *testing.T) {
	actual := map[domainmood.Feature]float64{
		domainmood.FeatureEnergy:  1.0, // distance 1.0 > 2*0.20
		domainmood.FeatureTempo:   300, // distance 290 > 2*30 but tempo is not critical
	}
	targets := map[domainmood.Feature]domainmood.FeatureTarget{
		domainmood.FeatureEnergy: domainmood.Single(0.0),
		domainmood.FeatureTempo:  domainmood.Single(100),
	}
	assert.Equal(t, 1, CountCriticalViolations(actual, targets))
}

func TestCountCriticalViolations_NeverCountsBinaryFeatures(t *testing.T) {
	actual := map[domainmood.Feature]float64{domainmood.FeatureMode: 1}
	targets := map[domainmood.Feature]domainmood.FeatureTarget{domainmood.FeatureMode: domainmood.Single(0)}
	assert.Equal(t, 0, CountCriticalViolations(actual, targets))
}

func TestPassesViolationFilter_ProtectedAlwaysPasses(t *testing.T) {
	actual := map[domainmood.Feature]float64{
		domainmood.FeatureEnergy:          1.0,
		domainmood.FeatureAcousticness:    1.0,
		domainmood.FeatureInstrumentalness: 1.0,
	}
	targets := map[domainmood.Feature]domainmood.FeatureTarget{
		domainmood.FeatureEnergy:          domainmood.Single(0),
		domainmood.FeatureAcousticness:    domainmood.Single(0),
		domainmood.FeatureInstrumentalness: domainmood.Single(0),
	}
	assert.True(t, PassesViolationFilter(true, track.SourceReccobeat, actual, targets))
}

func TestPassesViolationFilter_DropsAtThresholdForSource(t *testing.T) {
	actual := map[domainmood.Feature]float64{
		domainmood.FeatureEnergy:          1.0,
		domainmood.FeatureAcousticness:    1.0,
	}
	targets := map[domainmood.Feature]domainmood.FeatureTarget{
		domainmood.FeatureEnergy:       domainmood.Single(0),
		domainmood.FeatureAcousticness: domainmood.Single(0),
	}
	assert.False(t, PassesViolationFilter(false, track.SourceReccobeat, actual, targets))
}

func TestCriticalViolationThreshold_HigherForArtistDiscovery(t *testing.T) {
	assert.Equal(t, 3, CriticalViolationThreshold(track.SourceArtistDiscovery))
	assert.Equal(t, 2, CriticalViolationThreshold(track.SourceReccobeat))
}

func TestPassesTemporalFilter_UserMentionedBypassesEntirely(t *testing.T) {
	temporal := &domainmood.TemporalContext{IsTemporal: true, YearRange: &[2]int{1990, 1999}}
	assert.True(t, PassesTemporalFilter(true, temporal, "2020-01-01"))
}

func TestPassesTemporalFilter_ExplicitContextUsesZeroTolerance(t *testing.T) {
	temporal := &domainmood.TemporalContext{IsTemporal: true, YearRange: &[2]int{1990, 1999}, Decade: "90s"}
	assert.False(t, PassesTemporalFilter(false, temporal, "2001-01-01"))
	assert.True(t, PassesTemporalFilter(false, temporal, "1995-01-01"))
}

func TestPassesTemporalFilter_InferredContextUsesFiveYearTolerance(t *testing.T) {
	temporal := &domainmood.TemporalContext{IsTemporal: true, YearRange: &[2]int{1990, 1999}}
	assert.True(t, PassesTemporalFilter(false, temporal, "2001-01-01"))
	assert.False(t, PassesTemporalFilter(false, temporal, "2010-01-01"))
}

func TestPassesTemporalFilter_LenientOnUnparseableDate(t *testing.T) {
	temporal := &domainmood.TemporalContext{IsTemporal: true, YearRange: &[2]int{1990, 1999}}
	assert.True(t, PassesTemporalFilter(false, temporal, ""))
	assert.True(t, PassesTemporalFilter(false, temporal, "unknown"))
}
