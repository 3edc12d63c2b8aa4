package mood

import (
	"sort"
	"strings"

	domainmood "github.com/osa030/moodplay/internal/domain/mood"
)

// stopWords are stripped out when deriving search keywords from a raw
// prompt.
var stopWords = map[string]bool{
	"for": true, "with": true, "that": true, "this": true, "very": true,
	"some": true, "music": true, "songs": true, "playlist": true,
}

// knownGenres is searched as a substring set when extracting genre
// keywords from a prompt.
var knownGenres = []string{
	"indie", "rock", "pop", "jazz", "electronic", "edm", "hip-hop", "hip hop",
	"rap", "r&b", "rnb", "soul", "funk", "disco", "house", "techno", "trance",
	"dubstep", "drum and bass", "dnb", "ambient", "classical", "country",
	"folk", "metal", "punk", "alternative", "grunge", "ska", "reggae",
	"blues", "gospel", "latin", "salsa", "bossa nova", "samba", "k-pop",
	"kpop", "j-pop", "jpop", "city pop", "citypop", "synthwave", "vaporwave",
	"lo-fi", "lofi", "chillwave", "shoegaze", "post-rock", "post-punk",
	"new wave", "psychedelic", "progressive",
}

// enhanceWithKeywords applies the keyword-to-feature overlay of spec
// §4.6 part (b): each rule sets a target feature (and sometimes
// energy_level/primary_emotion) only if that feature is not already
// present, so it never overwrites an LLM-set or profile-set value
// (spec: "the fallback never overwrites an LLM-set feature").
func enhanceWithKeywords(analysis *domainmood.Analysis, promptLower string) {
	if analysis.TargetFeatures == nil {
		analysis.TargetFeatures = make(map[domainmood.Feature]domainmood.FeatureTarget)
	}
	setIfAbsent := func(f domainmood.Feature, t domainmood.FeatureTarget) {
		if _, ok := analysis.TargetFeatures[f]; !ok {
			analysis.TargetFeatures[f] = t
		}
	}

	switch {
	case containsAny(promptLower, []string{"energetic", "upbeat", "exciting", "workout", "intense", "powerful", "hype"}):
		analysis.EnergyLevel = domainmood.EnergyHigh
		setIfAbsent(domainmood.FeatureEnergy, domainmood.Range(0.7, 1.0))
		setIfAbsent(domainmood.FeatureValence, domainmood.Range(0.5, 1.0))
	case containsAny(promptLower, []string{"calm", "peaceful", "sleepy", "soft", "gentle", "laid-back"}):
		analysis.EnergyLevel = domainmood.EnergyLow
		setIfAbsent(domainmood.FeatureEnergy, domainmood.Range(0.0, 0.4))
	}

	switch {
	case containsAny(promptLower, []string{"happy", "joyful", "cheerful", "uplifting", "fun", "bright"}):
		analysis.PrimaryEmotion = domainmood.EmotionPositive
		setIfAbsent(domainmood.FeatureValence, domainmood.Range(0.7, 1.0))
	case containsAny(promptLower, []string{"sad", "depressed", "dark", "moody", "bittersweet"}):
		analysis.PrimaryEmotion = domainmood.EmotionNegative
		setIfAbsent(domainmood.FeatureValence, domainmood.Range(0.0, 0.4))
	}

	if containsAny(promptLower, []string{"dance", "dancing", "groove", "rhythm", "club"}) {
		setIfAbsent(domainmood.FeatureDanceability, domainmood.Range(0.6, 1.0))
	}
	if containsAny(promptLower, []string{"acoustic", "unplugged", "organic", "folk", "singer-songwriter"}) {
		setIfAbsent(domainmood.FeatureAcousticness, domainmood.Range(0.7, 1.0))
	}
	if containsAny(promptLower, []string{"instrumental", "no vocals", "background", "ambient"}) {
		setIfAbsent(domainmood.FeatureInstrumentalness, domainmood.Range(0.7, 1.0))
	}
	if containsAny(promptLower, []string{"live", "concert", "performance", "audience"}) {
		setIfAbsent(domainmood.FeatureLiveness, domainmood.Range(0.6, 1.0))
	}
	if containsAny(promptLower, []string{"podcast", "talk", "spoken", "narrative", "story"}) {
		setIfAbsent(domainmood.FeatureSpeechiness, domainmood.Range(0.5, 1.0))
	}
}

// inferRegions infers preferred/excluded regions from language cues in
// the prompt (spec §4.6 part (c)). Rules are checked in order and are
// mutually exclusive, mirroring the reference's if/elif chain.
func inferRegions(promptLower string) (preferred, excluded []string) {
	switch {
	case containsAny(promptLower, []string{"french", "france", "parisian"}):
		return []string{"French", "European", "Western"}, []string{"Southeast Asian", "Indonesian", "Eastern European"}
	case containsAny(promptLower, []string{"european", "euro", "nu-disco", "house", "disco"}):
		return []string{"European", "Western"}, []string{"Southeast Asian", "Indonesian"}
	case containsAny(promptLower, []string{"k-pop", "kpop", "korean", "j-pop", "jpop", "japanese", "anime"}):
		return []string{"Asian"}, []string{"Southeast Asian", "Western"}
	case containsAny(promptLower, []string{"latin", "reggaeton", "spanish", "salsa", "bachata"}):
		return []string{"Latin American"}, []string{"Southeast Asian", "Asian"}
	default:
		return []string{"Western"}, []string{"Southeast Asian", "Indonesian"}
	}
}

// inferExcludedThemes infers themes to exclude from the prompt (spec
// §4.6 part (d)): a prompt that mentions any holiday, religious or
// kids theme gets no exclusions at all; otherwise holiday music is
// excluded by default, with further context-specific exclusions
// layered on top.
func inferExcludedThemes(promptLower string) []string {
	if containsAny(promptLower, []string{"christmas", "holiday", "xmas", "festive"}) {
		return nil
	}
	if containsAny(promptLower, []string{"gospel", "worship", "praise", "church"}) {
		return nil
	}
	if containsAny(promptLower, []string{"kids", "children", "nursery"}) {
		return nil
	}

	excluded := map[string]bool{"holiday": true, "christmas": true}

	if containsAny(promptLower, []string{"romantic", "date", "dinner", "intimate", "sensual"}) {
		excluded["religious"] = true
		excluded["kids"] = true
	}
	if containsAny(promptLower, []string{"workout", "gym", "exercise", "running"}) {
		excluded["religious"] = true
		excluded["kids"] = true
	}
	if containsAny(promptLower, []string{"party", "dance", "club", "hype"}) {
		excluded["religious"] = true
		excluded["kids"] = true
	}
	if containsAny(promptLower, []string{"chill", "relax", "study", "focus", "ambient"}) {
		excluded["comedy"] = true
		excluded["kids"] = true
	}

	out := make([]string, 0, len(excluded))
	for theme := range excluded {
		out = append(out, theme)
	}
	sort.Strings(out)
	return out
}

// extractSearchKeywords tokenizes prompt, dropping stop words and
// short tokens, for use as Catalog/Features search terms.
func extractSearchKeywords(prompt string) []string {
	fields := strings.Fields(strings.ToLower(prompt))
	keywords := make([]string, 0, len(fields))
	seen := make(map[string]bool, len(fields))
	for _, word := range fields {
		word = strings.Trim(word, ".,!?\"'")
		if len(word) < 3 || stopWords[word] || seen[word] {
			continue
		}
		seen[word] = true
		keywords = append(keywords, word)
	}
	return keywords
}

// extractGenresAndArtists scans prompt for known genre substrings.
// Artist extraction proper requires the LLM (spec §4.7 "extracted by a
// second LLM call"); the rule-based fallback here only ever returns
// genres, matching the reference's equivalent degraded path.
func extractGenresAndArtists(prompt string) (genres []string, artists []string) {
	promptLower := strings.ToLower(prompt)
	for _, g := range knownGenres {
		if strings.Contains(promptLower, g) {
			genres = append(genres, g)
		}
	}
	return genres, nil
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}
