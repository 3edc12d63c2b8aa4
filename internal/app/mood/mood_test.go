package mood

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainmood "github.com/osa030/moodplay/internal/domain/mood"
	"github.com/osa030/moodplay/internal/infra/llm"
)

func TestAnalyze_FallbackWhenNoLLMConfigured(t *testing.T) {
	e := New(nil)
	analysis, err := e.Analyze(t.Context(), "I want something energetic for a workout")
	require.NoError(t, err)

	assert.Equal(t, domainmood.EnergyHigh, analysis.EnergyLevel)
	target, ok := analysis.Feature(domainmood.FeatureEnergy)
	require.True(t, ok)
	assert.InDelta(t, 0.85, target.Midpoint(), 0.001)
}

func TestAnalyze_ProfileMatchSetsFeaturesAndEmotion(t *testing.T) {
	e := New(nil)
	analysis, err := e.Analyze(t.Context(), "something chill and relaxed for studying")
	require.NoError(t, err)

	_, ok := analysis.Feature(domainmood.FeatureAcousticness)
	assert.True(t, ok)
	assert.Equal(t, domainmood.EmotionNeutral, analysis.PrimaryEmotion)
}

func TestAnalyze_LLMPathParsesBalancedJSON(t *testing.T) {
	reply := `Sure, here is the analysis: {"mood_interpretation":"upbeat","primary_emotion":"positive","energy_level":"high","target_features":{"energy":[0.8,1.0]},"feature_weights":{"energy":0.9},"color_scheme":{"primary":"#fff","secondary":"#000","tertiary":"#111"}} -- hope that helps`
	e := New(llm.NewStub(reply))

	analysis, err := e.Analyze(t.Context(), "upbeat party music")
	require.NoError(t, err)
	assert.Equal(t, domainmood.EmotionPositive, analysis.PrimaryEmotion)

	target, ok := analysis.Feature(domainmood.FeatureEnergy)
	require.True(t, ok)
	min, max := target.Bounds()
	assert.Equal(t, 0.8, min)
	assert.Equal(t, 1.0, max)
}

func TestAnalyze_LLMPathDoesNotOverwriteLLMSetFeatures(t *testing.T) {
	reply := `{"mood_interpretation":"custom","primary_emotion":"neutral","energy_level":"medium","target_features":{"valence":[0.9,1.0]},"feature_weights":{}}`
	e := New(llm.NewStub(reply))

	analysis, err := e.Analyze(t.Context(), "happy and joyful")
	require.NoError(t, err)

	target, ok := analysis.Feature(domainmood.FeatureValence)
	require.True(t, ok)
	min, max := target.Bounds()
	assert.Equal(t, 0.9, min, "keyword overlay must not overwrite the LLM-set valence target")
	assert.Equal(t, 1.0, max)
}

func TestAnalyze_FallsBackWhenLLMErrors(t *testing.T) {
	e := New(&llm.StubClient{Err: assert.AnError})
	analysis, err := e.Analyze(t.Context(), "sad and dark")
	require.NoError(t, err)
	assert.Equal(t, domainmood.EmotionNegative, analysis.PrimaryEmotion)
}

func TestAnalyze_FallsBackWhenLLMReturnsUnparseableOutput(t *testing.T) {
	e := New(llm.NewStub("not json at all"))
	analysis, err := e.Analyze(t.Context(), "happy music")
	require.NoError(t, err)
	assert.Equal(t, domainmood.EmotionPositive, analysis.PrimaryEmotion)
}

func TestInferExcludedThemes_ExplicitChristmasMentionSkipsExclusion(t *testing.T) {
	themes := inferExcludedThemes("christmas songs please")
	assert.Empty(t, themes)
}

func TestInferExcludedThemes_RomanticExcludesReligiousAndKids(t *testing.T) {
	themes := inferExcludedThemes("romantic dinner music")
	assert.Contains(t, themes, "religious")
	assert.Contains(t, themes, "kids")
	assert.Contains(t, themes, "holiday")
}

func TestInferRegions_KPopIndicatorsSetAsianPreference(t *testing.T) {
	preferred, excluded := inferRegions("some k-pop bangers")
	assert.Equal(t, []string{"Asian"}, preferred)
	assert.Contains(t, excluded, "Western")
}

func TestExtractSearchKeywords_DropsStopWordsAndShortTokens(t *testing.T) {
	keywords := extractSearchKeywords("some happy music for a playlist")
	assert.Contains(t, keywords, "happy")
	assert.NotContains(t, keywords, "music")
	assert.NotContains(t, keywords, "for")
}

func TestExtractBalancedObject_HandlesNestedBraces(t *testing.T) {
	s := `prefix {"a": {"b": 1}, "c": "}"} suffix`
	body, ok := extractBalancedObject(s)
	require.True(t, ok)
	assert.Equal(t, `{"a": {"b": 1}, "c": "}"}`, body)
}

func TestExtractBalancedObject_NoObjectFound(t *testing.T) {
	_, ok := extractBalancedObject("no json here")
	assert.False(t, ok)
}
