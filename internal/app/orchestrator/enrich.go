package orchestrator

import (
	"context"
	"strings"

	"github.com/osa030/moodplay/internal/domain/track"
	"github.com/osa030/moodplay/internal/infra/catalog"
)

const fuzzyArtistOverlapFloor = 0.5

// enrich implements the post-loop enrichment pass of spec §4.13: any
// recommendation missing a spotify_uri or carrying "Unknown Artist" is
// re-searched by "track:<name> artist:<first_artist>", matched by
// fuzzy artist-name token overlap, and filled in. A protected track
// that can't be enriched is kept as-is; a non-protected one is dropped.
func (o *Orchestrator) enrich(ctx context.Context, recs []track.Recommendation) []track.Recommendation {
	out := make([]track.Recommendation, 0, len(recs))
	for _, r := range recs {
		if !needsEnrichment(r) {
			out = append(out, r)
			continue
		}

		enriched, ok := o.enrichOne(ctx, r)
		switch {
		case ok:
			out = append(out, enriched)
		case r.Protected:
			out = append(out, r)
		default:
			// non-protected and unenrichable: dropped.
		}
	}
	return out
}

func needsEnrichment(r track.Recommendation) bool {
	if r.SpotifyURI == "" {
		return true
	}
	for _, a := range r.Artists {
		if a == "Unknown Artist" {
			return true
		}
	}
	return len(r.Artists) == 0
}

func (o *Orchestrator) enrichOne(ctx context.Context, r track.Recommendation) (track.Recommendation, bool) {
	if o.catalog == nil {
		return track.Recommendation{}, false
	}

	firstArtist := ""
	for _, a := range r.Artists {
		if a != "" && a != "Unknown Artist" {
			firstArtist = a
			break
		}
	}

	query := "track:" + r.TrackName + " artist:" + firstArtist
	results, _, err := o.catalog.Search(ctx, query, catalog.SearchTypeTrack, 5)
	if err != nil || len(results) == 0 {
		return track.Recommendation{}, false
	}

	best, ok := bestArtistOverlapMatch(results, r.Artists)
	if !ok {
		return track.Recommendation{}, false
	}

	r.SpotifyURI = best.SpotifyURI
	r.Artists = best.Artists
	return r, true
}

// bestArtistOverlapMatch picks the first candidate whose artist tokens
// overlap the recommendation's own artist names by at least
// fuzzyArtistOverlapFloor (50% of non-stopword tokens, spec §4.13).
func bestArtistOverlapMatch(candidates []track.Candidate, wantArtists []string) (track.Candidate, bool) {
	wantTokens := artistTokens(wantArtists)
	if len(wantTokens) == 0 {
		if len(candidates) > 0 {
			return candidates[0], true
		}
		return track.Candidate{}, false
	}

	for _, c := range candidates {
		haveTokens := artistTokens(c.Artists)
		if tokenOverlapRatio(wantTokens, haveTokens) >= fuzzyArtistOverlapFloor {
			return c, true
		}
	}
	return track.Candidate{}, false
}

var artistStopWords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "&": true,
}

func artistTokens(artists []string) map[string]bool {
	tokens := make(map[string]bool)
	for _, a := range artists {
		for _, tok := range strings.Fields(strings.ToLower(a)) {
			if artistStopWords[tok] {
				continue
			}
			tokens[tok] = true
		}
	}
	return tokens
}

func tokenOverlapRatio(want, have map[string]bool) float64 {
	if len(want) == 0 {
		return 0
	}
	var matched int
	for tok := range want {
		if have[tok] {
			matched++
		}
	}
	return float64(matched) / float64(len(want))
}
