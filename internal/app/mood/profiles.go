package mood

import domainmood "github.com/osa030/moodplay/internal/domain/mood"

// profile is one named entry in the fixed mood-profile table of spec
// §4.6's rule-based fallback.
type profile struct {
	name     string
	keywords []string
	features map[domainmood.Feature]domainmood.FeatureTarget
	weights  map[domainmood.Feature]float64
	emotion  domainmood.PrimaryEmotion
}

// profiles is the fixed table of named mood profiles the profile
// matcher iterates, in order, against the lowercased prompt.
var profiles = []profile{
	{
		name:     "indie",
		keywords: []string{"indie", "alternative", "underground", "independent"},
		features: map[domainmood.Feature]domainmood.FeatureTarget{
			domainmood.FeatureAcousticness:    domainmood.Range(0.6, 1.0),
			domainmood.FeatureEnergy:          domainmood.Range(0.2, 0.6),
			domainmood.FeaturePopularity:      domainmood.Range(0, 40),
			domainmood.FeatureLoudness:        domainmood.Range(-20, -5),
			domainmood.FeatureInstrumentalness: domainmood.Range(0.2, 0.8),
		},
		weights: map[domainmood.Feature]float64{
			domainmood.FeatureAcousticness: 0.9,
			domainmood.FeaturePopularity:   0.8,
			domainmood.FeatureEnergy:       0.7,
		},
		emotion: domainmood.EmotionNeutral,
	},
	{
		name:     "party",
		keywords: []string{"party", "celebration", "dance", "club", "energetic"},
		features: map[domainmood.Feature]domainmood.FeatureTarget{
			domainmood.FeatureEnergy:       domainmood.Range(0.7, 1.0),
			domainmood.FeatureDanceability: domainmood.Range(0.7, 1.0),
			domainmood.FeatureValence:      domainmood.Range(0.6, 1.0),
			domainmood.FeatureTempo:        domainmood.Range(110, 140),
			domainmood.FeatureLoudness:     domainmood.Range(-10, -2),
		},
		weights: map[domainmood.Feature]float64{
			domainmood.FeatureEnergy:       0.9,
			domainmood.FeatureDanceability: 0.9,
			domainmood.FeatureValence:      0.8,
		},
		emotion: domainmood.EmotionPositive,
	},
	{
		name:     "chill",
		keywords: []string{"chill", "relaxed", "calm", "peaceful", "mellow"},
		features: map[domainmood.Feature]domainmood.FeatureTarget{
			domainmood.FeatureEnergy:       domainmood.Range(0.0, 0.4),
			domainmood.FeatureAcousticness: domainmood.Range(0.5, 1.0),
			domainmood.FeatureValence:      domainmood.Range(0.4, 0.8),
			domainmood.FeatureTempo:        domainmood.Range(60, 100),
			domainmood.FeatureLoudness:     domainmood.Range(-25, -10),
		},
		weights: map[domainmood.Feature]float64{
			domainmood.FeatureEnergy:       0.9,
			domainmood.FeatureAcousticness: 0.8,
			domainmood.FeatureTempo:        0.7,
		},
		emotion: domainmood.EmotionNeutral,
	},
	{
		name:     "focus",
		keywords: []string{"focus", "concentration", "study", "instrumental", "ambient"},
		features: map[domainmood.Feature]domainmood.FeatureTarget{
			domainmood.FeatureInstrumentalness: domainmood.Range(0.7, 1.0),
			domainmood.FeatureEnergy:           domainmood.Range(0.1, 0.4),
			domainmood.FeatureAcousticness:     domainmood.Range(0.4, 1.0),
			domainmood.FeatureSpeechiness:      domainmood.Range(0.0, 0.2),
			domainmood.FeatureTempo:            domainmood.Range(50, 90),
		},
		weights: map[domainmood.Feature]float64{
			domainmood.FeatureInstrumentalness: 0.9,
			domainmood.FeatureSpeechiness:      0.8,
			domainmood.FeatureEnergy:           0.7,
		},
		emotion: domainmood.EmotionNeutral,
	},
	{
		name:     "emotional",
		keywords: []string{"emotional", "sad", "melancholy", "deep", "sentimental"},
		features: map[domainmood.Feature]domainmood.FeatureTarget{
			domainmood.FeatureValence:      domainmood.Range(0.0, 0.4),
			domainmood.FeatureEnergy:       domainmood.Range(0.1, 0.5),
			domainmood.FeatureMode:         domainmood.Range(0, 0.3),
			domainmood.FeatureAcousticness: domainmood.Range(0.4, 1.0),
			domainmood.FeatureTempo:        domainmood.Range(60, 110),
		},
		weights: map[domainmood.Feature]float64{
			domainmood.FeatureValence:      0.9,
			domainmood.FeatureMode:         0.8,
			domainmood.FeatureAcousticness: 0.7,
		},
		emotion: domainmood.EmotionNegative,
	},
}

// matchProfiles returns every profile with at least one keyword
// appearing in promptLower.
func matchProfiles(promptLower string) []profile {
	var matched []profile
	for _, p := range profiles {
		if containsAny(promptLower, p.keywords) {
			matched = append(matched, p)
		}
	}
	return matched
}

// applyProfiles merges each matched profile's features and weights
// into analysis, in table order, and sets mood_interpretation and
// primary_emotion from the last match (mirrors the reference's
// dict.update-in-a-loop semantics).
func applyProfiles(matched []profile, prompt string, analysis *domainmood.Analysis) {
	for _, p := range matched {
		analysis.MoodInterpretation = capitalize(p.name) + " mood based on: " + prompt
		analysis.PrimaryEmotion = p.emotion

		if analysis.TargetFeatures == nil {
			analysis.TargetFeatures = make(map[domainmood.Feature]domainmood.FeatureTarget)
		}
		for f, t := range p.features {
			analysis.TargetFeatures[f] = t
		}

		if analysis.FeatureWeights == nil {
			analysis.FeatureWeights = make(map[domainmood.Feature]float64)
		}
		for f, w := range p.weights {
			analysis.FeatureWeights[f] = w
		}
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return string(s[0]-('a'-'A')) + s[1:]
}
