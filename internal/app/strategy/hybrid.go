package strategy

import (
	"context"

	"github.com/osa030/moodplay/internal/domain/track"
)

const deepCutAlbumsToScan = 3

// hybridArtistTracks implements the "popular-focused"/"discovery-focused
// hybrid" pattern of spec §4.9.1/§4.9.2: a mix of an artist's popular
// top tracks and deeper album cuts, proportioned by topTracksRatio, and
// optionally constrained to a popularity band (min==max==0 disables the
// band). prefetchedTop, when non-nil, is reused instead of a second
// GetArtistTopTracks call (spec §4.9.1 "avoid the sequential second
// call").
func hybridArtistTracks(ctx context.Context, cc CatalogClient, artistID, artistName string, topTracksRatio float64, popMin, popMax, n int, prefetchedTop []track.Candidate) ([]track.Candidate, error) {
	popular := prefetchedTop
	if popular == nil {
		top, err := cc.GetArtistTopTracks(ctx, artistID, artistName)
		if err != nil {
			return nil, err
		}
		popular = top
	}

	popularCount := roundInt(topTracksRatio * float64(n))
	if popularCount > n {
		popularCount = n
	}
	deepCount := n - popularCount

	seen := make(map[string]bool, len(popular))
	var popularFiltered []track.Candidate
	for _, c := range popular {
		if seen[c.ID] {
			continue
		}
		seen[c.ID] = true
		if inPopularityBand(c.Popularity, popMin, popMax) {
			popularFiltered = append(popularFiltered, c)
		}
	}
	if len(popularFiltered) > popularCount {
		popularFiltered = popularFiltered[:popularCount]
	}

	var deepCuts []track.Candidate
	if deepCount > 0 {
		albums, err := cc.GetArtistAlbums(ctx, artistID, deepCutAlbumsToScan)
		if err == nil {
			for _, albumID := range albums {
				if len(deepCuts) >= deepCount {
					break
				}
				tracks, err := cc.GetAlbumTracks(ctx, albumID, 20)
				if err != nil {
					continue
				}
				for _, c := range tracks {
					if seen[c.ID] {
						continue
					}
					seen[c.ID] = true
					if inPopularityBand(c.Popularity, popMin, popMax) {
						deepCuts = append(deepCuts, c)
					}
					if len(deepCuts) >= deepCount {
						break
					}
				}
			}
		}
	}
	if len(deepCuts) > deepCount {
		deepCuts = deepCuts[:deepCount]
	}

	out := make([]track.Candidate, 0, len(popularFiltered)+len(deepCuts))
	out = append(out, popularFiltered...)
	out = append(out, deepCuts...)
	return out, nil
}

func inPopularityBand(popularity, min, max int) bool {
	if min == 0 && max == 0 {
		return true
	}
	return popularity >= min && popularity <= max
}

func roundInt(v float64) int {
	if v < 0 {
		return int(v - 0.5)
	}
	return int(v + 0.5)
}
