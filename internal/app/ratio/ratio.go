// Package ratio implements the Ratio Enforcer of spec §4.12: it
// partitions scored recommendations into anchors, artist-discovery, and
// seed-based groups, caps each against the target count, and
// concatenates them in a fixed, final order.
package ratio

import (
	"sort"

	"github.com/osa030/moodplay/internal/domain/track"
)

const (
	maxNonUserAnchors  = 5
	seedShare          = 0.02
	minSeedBasedTracks = 1
)

// Enforce applies the 98:2 split and anchor cap and returns the final,
// ordered recommendation list: user-mentioned and non-user anchors
// first, then artist-discovery, then seed-based (spec §4.12 "anchors |
// artist | seed. This order is final").
func Enforce(recs []track.Recommendation, targetCount int) []track.Recommendation {
	userMentioned, nonUserAnchors, artist, seed := partition(recs)

	sortByConfidenceDescending(userMentioned)
	sortByConfidenceDescending(nonUserAnchors)
	sortByConfidenceDescending(artist)
	sortByConfidenceDescending(seed)

	if len(nonUserAnchors) > maxNonUserAnchors {
		nonUserAnchors = nonUserAnchors[:maxNonUserAnchors]
	}

	remaining := targetCount - len(userMentioned) - len(nonUserAnchors)
	if remaining < 0 {
		remaining = 0
	}
	seedCount := maxInt(minSeedBasedTracks, round(seedShare*float64(remaining)))
	if seedCount > remaining {
		seedCount = remaining
	}
	artistCount := remaining - seedCount

	if len(artist) > artistCount {
		artist = artist[:artistCount]
	}
	if len(seed) > seedCount {
		seed = seed[:seedCount]
	}

	out := make([]track.Recommendation, 0, len(userMentioned)+len(nonUserAnchors)+len(artist)+len(seed))
	out = append(out, userMentioned...)
	out = append(out, nonUserAnchors...)
	out = append(out, artist...)
	out = append(out, seed...)
	return out
}

// partition splits recs into the four provenance groups the ratio
// enforcer reasons about. User-mentioned tracks (UserMentioned set,
// or Source == SourceUserMentioned) count toward neither the anchor
// cap nor the 98:2 split (spec §4.12); "anchor" means any other track
// with Source == SourceAnchorTrack.
func partition(recs []track.Recommendation) (userMentioned, nonUserAnchors, artist, seed []track.Recommendation) {
	for _, r := range recs {
		switch {
		case r.UserMentioned || r.Source == track.SourceUserMentioned:
			userMentioned = append(userMentioned, r)
		case r.Source == track.SourceAnchorTrack:
			nonUserAnchors = append(nonUserAnchors, r)
		case r.Source == track.SourceArtistDiscovery:
			artist = append(artist, r)
		default:
			seed = append(seed, r)
		}
	}
	return
}

func sortByConfidenceDescending(recs []track.Recommendation) {
	sort.SliceStable(recs, func(i, j int) bool { return recs[i].ConfidenceScore > recs[j].ConfidenceScore })
}

func round(v float64) int {
	if v < 0 {
		return int(v - 0.5)
	}
	return int(v + 0.5)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
