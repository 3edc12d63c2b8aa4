// Package diversity implements the Diversity & Dedup stage of spec
// §4.11: the artist-diversity confidence penalty, the protected/
// non-protected sort-stability invariant, and track deduplication.
package diversity

import (
	"regexp"
	"sort"
	"strings"

	"github.com/osa030/moodplay/internal/domain/track"
)

const diversityFloor = 0.1

// featParenthetical matches "(feat. X)", "(featuring X)", and their
// hyphenated equivalents for normalized track-name deduplication.
var featParenthetical = regexp.MustCompile(`(?i)\s*[(\-]\s*(feat\.?|featuring)\s+[^)]*\)?`)

// radioEditParenthetical matches "(radio edit)" and similar bracketed
// edit markers.
var radioEditParenthetical = regexp.MustCompile(`(?i)\s*\(\s*radio edit\s*\)`)

// ApplyArtistDiversityPenalty subtracts 0.1*(count-1) from each
// non-protected track's confidence for every artist it shares with
// other tracks in the set, floored at 0.1 (spec §4.11 "Artist
// diversity"). Protected tracks are exempt and left untouched.
func ApplyArtistDiversityPenalty(recs []track.Recommendation) {
	artistCounts := make(map[string]int)
	for _, r := range recs {
		for _, a := range r.Artists {
			artistCounts[a]++
		}
	}

	for i := range recs {
		if recs[i].Protected {
			continue
		}
		var penalty float64
		for _, a := range recs[i].Artists {
			if count := artistCounts[a]; count > 1 {
				penalty += diversityFloor * float64(count-1)
			}
		}
		score := recs[i].ConfidenceScore - penalty
		if score < diversityFloor {
			score = diversityFloor
		}
		recs[i].ConfidenceScore = score
	}
}

// SortStable partitions recs into protected and non-protected, sorts
// each independently by confidence descending, and concatenates
// protected first (spec §4.11 "Sort stability invariant": "Never
// re-sort the combined list" afterward).
func SortStable(recs []track.Recommendation) []track.Recommendation {
	var protected, rest []track.Recommendation
	for _, r := range recs {
		if r.Protected {
			protected = append(protected, r)
		} else {
			rest = append(rest, r)
		}
	}

	sort.SliceStable(protected, func(i, j int) bool { return protected[i].ConfidenceScore > protected[j].ConfidenceScore })
	sort.SliceStable(rest, func(i, j int) bool { return rest[i].ConfidenceScore > rest[j].ConfidenceScore })

	return append(protected, rest...)
}

// Dedup removes tracks matching any of spec §4.11's three keys: exact
// track_id, normalized track_name, or exact spotify_uri. The first
// occurrence of a colliding track wins; order is otherwise preserved.
func Dedup(recs []track.Recommendation) []track.Recommendation {
	seenIDs := make(map[string]bool, len(recs))
	seenNames := make(map[string]bool, len(recs))
	seenURIs := make(map[string]bool, len(recs))

	out := make([]track.Recommendation, 0, len(recs))
	for _, r := range recs {
		name := normalizeTrackName(r.TrackName)
		if seenIDs[r.TrackID] || seenNames[name] || (r.SpotifyURI != "" && seenURIs[r.SpotifyURI]) {
			continue
		}
		seenIDs[r.TrackID] = true
		seenNames[name] = true
		if r.SpotifyURI != "" {
			seenURIs[r.SpotifyURI] = true
		}
		out = append(out, r)
	}
	return out
}

// normalizeTrackName lowercases and strips "(radio edit)" and
// "(feat. ...)"/"(featuring ...)" (and hyphenated equivalents) for
// dedup comparison.
func normalizeTrackName(name string) string {
	lower := strings.ToLower(name)
	lower = radioEditParenthetical.ReplaceAllString(lower, "")
	lower = featParenthetical.ReplaceAllString(lower, "")
	return strings.TrimSpace(lower)
}
