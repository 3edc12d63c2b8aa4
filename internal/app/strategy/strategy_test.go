package strategy

import (
	"context"

	domainmood "github.com/osa030/moodplay/internal/domain/mood"
	"github.com/osa030/moodplay/internal/domain/track"
	"github.com/osa030/moodplay/internal/infra/catalog"
	"github.com/osa030/moodplay/internal/infra/features"
)

// fakeCatalog is a shared test double for CatalogClient.
type fakeCatalog struct {
	searchArtists map[string][]catalog.Artist
	searchTracks  map[string][]track.Candidate
	topTracks     map[string][]track.Candidate
	albums        map[string][]string
	albumTracks   map[string][]track.Candidate
	topTracksErr  error
}

func (f *fakeCatalog) Search(_ context.Context, query string, searchType catalog.SearchType, _ int) ([]track.Candidate, []catalog.Artist, error) {
	if searchType == catalog.SearchTypeArtist {
		return nil, f.searchArtists[query], nil
	}
	return f.searchTracks[query], nil, nil
}

func (f *fakeCatalog) GetArtistTopTracks(_ context.Context, artistID, _ string) ([]track.Candidate, error) {
	if f.topTracksErr != nil {
		return nil, f.topTracksErr
	}
	return f.topTracks[artistID], nil
}

func (f *fakeCatalog) GetArtistAlbums(_ context.Context, artistID string, _ int) ([]string, error) {
	return f.albums[artistID], nil
}

func (f *fakeCatalog) GetAlbumTracks(_ context.Context, albumID string, _ int) ([]track.Candidate, error) {
	return f.albumTracks[albumID], nil
}

// fakeFeatures is a shared test double for FeaturesClient.
type fakeFeatures struct {
	recommendations   []features.Recommendation
	recommendationErr error
	tracksByID        map[string]features.Track
	audioFeatures     map[string]map[domainmood.Feature]float64
	multipleByID      map[string]features.Track
}

func (f *fakeFeatures) GetRecommendation(_ context.Context, _, _ []string, _ int) ([]features.Recommendation, error) {
	return f.recommendations, f.recommendationErr
}

func (f *fakeFeatures) GetMultipleTracks(_ context.Context, ids []string) ([]features.Track, error) {
	var out []features.Track
	for _, id := range ids {
		if t, ok := f.multipleByID[id]; ok {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeFeatures) GetTrack(_ context.Context, id string) (*features.Track, error) {
	t, ok := f.tracksByID[id]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (f *fakeFeatures) GetTrackAudioFeatures(_ context.Context, id string) (map[domainmood.Feature]float64, error) {
	return f.audioFeatures[id], nil
}
