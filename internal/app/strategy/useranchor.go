package strategy

import (
	"context"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/osa030/moodplay/internal/domain/track"
	"github.com/osa030/moodplay/internal/infra/catalog"
)

const (
	userAnchorArtistHybridRatio   = 0.9
	userAnchorMaxConcurrency      = 5
	userMentionedTrackConfidence  = 1.0
	userMentionedArtistConfidence = 0.85
)

// UserAnchorGenerator is the User-Anchor Strategy of spec §4.9.1: it
// guarantees explicit user requests appear in the playlist.
type UserAnchorGenerator struct {
	catalog CatalogClient
}

// NewUserAnchorGenerator builds a UserAnchorGenerator.
func NewUserAnchorGenerator(cc CatalogClient) *UserAnchorGenerator {
	return &UserAnchorGenerator{catalog: cc}
}

// Name implements Generator.
func (g *UserAnchorGenerator) Name() string { return "user_anchor" }

// Generate implements Generator.
func (g *UserAnchorGenerator) Generate(ctx context.Context, req Request) ([]track.Recommendation, error) {
	var out []track.Recommendation

	for _, c := range req.UserMentionedTracks {
		out = append(out, recommendationFrom(c, track.SourceAnchorTrack, track.AnchorUser, true, true, userMentionedTrackConfidence, "explicitly mentioned by the user", nil))
	}

	if len(req.UserMentionedArtists) == 0 {
		return out, nil
	}

	artistHits := g.resolveArtists(ctx, req.UserMentionedArtists)

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(userAnchorMaxConcurrency)
	var mu sync.Mutex
	var artistRecs []track.Recommendation

	for _, artist := range artistHits {
		artist := artist
		group.Go(func() error {
			top, err := g.catalog.GetArtistTopTracks(groupCtx, artist.ID, artist.Name)
			if err != nil {
				return nil //nolint:nilerr // a failed artist lookup just yields fewer anchors, per the chain's all-providers-tried philosophy
			}
			hybrid, err := hybridArtistTracks(groupCtx, g.catalog, artist.ID, artist.Name, userAnchorArtistHybridRatio, 0, 0, len(top), top)
			if err != nil {
				return nil //nolint:nilerr
			}
			recs := make([]track.Recommendation, 0, len(hybrid))
			for _, c := range hybrid {
				recs = append(recs, recommendationFrom(c, track.SourceAnchorTrack, track.AnchorUser, true, false, userMentionedArtistConfidence, "top track by a user-mentioned artist", nil))
			}
			mu.Lock()
			artistRecs = append(artistRecs, recs...)
			mu.Unlock()
			return nil
		})
	}
	_ = group.Wait()

	return append(out, artistRecs...), nil
}

// resolveArtists searches Catalog for each name in parallel and picks
// the best fuzzy match per spec §4.9.1 ("Batch the artist-search
// calls: all artist name searches run in parallel").
func (g *UserAnchorGenerator) resolveArtists(ctx context.Context, names []string) []catalog.Artist {
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(userAnchorMaxConcurrency)

	results := make([]catalog.Artist, len(names))
	found := make([]bool, len(names))

	for i, name := range names {
		i, name := i, name
		group.Go(func() error {
			_, artists, err := g.catalog.Search(groupCtx, name, catalog.SearchTypeArtist, 5)
			if err != nil || len(artists) == 0 {
				return nil //nolint:nilerr
			}
			results[i] = bestFuzzyMatch(name, artists)
			found[i] = true
			return nil
		})
	}
	_ = group.Wait()

	out := make([]catalog.Artist, 0, len(names))
	for i, ok := range found {
		if ok {
			out = append(out, results[i])
		}
	}
	return out
}

// bestFuzzyMatch prefers an exact case-insensitive name match, then an
// artist name that contains query or vice versa, else the first (most
// relevant per Catalog's own ranking) result.
func bestFuzzyMatch(query string, artists []catalog.Artist) catalog.Artist {
	lowerQuery := strings.ToLower(query)
	for _, a := range artists {
		if strings.EqualFold(a.Name, query) {
			return a
		}
	}
	for _, a := range artists {
		lowerName := strings.ToLower(a.Name)
		if strings.Contains(lowerName, lowerQuery) || strings.Contains(lowerQuery, lowerName) {
			return a
		}
	}
	return artists[0]
}
