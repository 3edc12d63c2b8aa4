// Package features implements the Features client: the RecoBeat-shaped
// audio-feature and recommendation service (spec §4 "Features"). It is
// adapted from the teacher's internal/infra/lastfm client — a
// similarly-shaped external music-metadata API client built on raw
// query-param GET requests and manual JSON decoding — rewired onto the
// shared internal/infra/httpx base instead of a bare *http.Client, so
// Features (the upstream the spec singles out as slow and prone to
// misbehaving under concurrency) gets rate limiting, retry/backoff,
// the global semaphore, and the circuit breaker for free.
package features

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/osa030/moodplay/internal/domain/mood"
	"github.com/osa030/moodplay/internal/errs"
	"github.com/osa030/moodplay/internal/infra/httpx"
)

const (
	maxRecommendationSeeds = 5
	maxNegativeSeeds       = 5
	maxRecommendationSize  = 100
	maxMultipleTrackIDs    = 40
	maxMultipleArtistIDs   = 50
)

// Config configures a Client.
type Config struct {
	BaseURL            string
	APIKey             string
	Timeout            httpx.Config
	UseGlobalSemaphore bool
	UseCircuitBreaker  bool
}

// Client is a Features API client.
type Client struct {
	http   *httpx.Client
	apiKey string
}

// New builds a Client over httpx.Client per cfg (spec §4.4: Features
// tools default to a 180s timeout and the global semaphore/circuit
// breaker).
func New(cfg Config, rl httpx.Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errs.Validation("features API key is required")
	}
	if cfg.BaseURL == "" {
		return nil, errs.Validation("features base URL is required")
	}

	rl.BaseURL = cfg.BaseURL
	rl.UseGlobalSemaphore = cfg.UseGlobalSemaphore
	rl.UseCircuitBreaker = cfg.UseCircuitBreaker
	if rl.CircuitBreakerName == "" {
		rl.CircuitBreakerName = "features"
	}

	return &Client{http: httpx.New(rl), apiKey: cfg.APIKey}, nil
}

// Recommendation is one candidate surfaced by the recommendation
// endpoint.
type Recommendation struct {
	ID string `json:"id"`
}

type recommendationRequest struct {
	Seeds         []string `json:"seeds"`
	NegativeSeeds []string `json:"negative_seeds,omitempty"`
	Size          int      `json:"size"`
}

type recommendationResponse struct {
	Recommendations []Recommendation `json:"recommendations"`
}

// GetRecommendation calls track-recommendation with 1-5 seeds, 0-5
// negative seeds, and a size in [1,100]. Per spec §4.9, no
// audio-feature parameters are ever sent here — empirically they
// degrade results.
func (c *Client) GetRecommendation(ctx context.Context, seeds, negativeSeeds []string, size int) ([]Recommendation, error) {
	if len(seeds) == 0 || len(seeds) > maxRecommendationSeeds {
		return nil, errs.Validation(fmt.Sprintf("recommendation requires 1-%d seeds, got %d", maxRecommendationSeeds, len(seeds)))
	}
	if len(negativeSeeds) > maxNegativeSeeds {
		return nil, errs.Validation(fmt.Sprintf("recommendation allows at most %d negative seeds, got %d", maxNegativeSeeds, len(negativeSeeds)))
	}
	if size < 1 || size > maxRecommendationSize {
		return nil, errs.Validation(fmt.Sprintf("recommendation size must be in [1,%d], got %d", maxRecommendationSize, size))
	}

	req := c.http.NewRequest(ctx).
		SetHeader("Authorization", "Bearer "+c.apiKey).
		SetBody(recommendationRequest{Seeds: seeds, NegativeSeeds: negativeSeeds, Size: size})

	resp, err := c.http.Do(ctx, http.MethodPost, "/recommendation", req)
	if err != nil {
		return nil, errs.Wrap(err, "features.recommendation")
	}

	var out recommendationResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return nil, errs.Validation("recommendation response is not valid JSON: " + err.Error())
	}
	return out.Recommendations, nil
}

// Track is the Features-side track shape: detailed metadata plus
// audio features when the endpoint returns them inline.
type Track struct {
	ID            string                   `json:"id"`
	Name          string                   `json:"name"`
	Artists       []string                 `json:"artists"`
	AudioFeatures map[mood.Feature]float64 `json:"-"`
}

type trackWire struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Artists []string `json:"artists"`
}

type multipleTracksResponse struct {
	Tracks []trackWire `json:"tracks"`
}

// GetMultipleTracks resolves up to 40 Features IDs in one call (spec
// "get-multiple-tracks (ids ≤ 40)").
func (c *Client) GetMultipleTracks(ctx context.Context, ids []string) ([]Track, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	if len(ids) > maxMultipleTrackIDs {
		return nil, errs.Validation(fmt.Sprintf("get-multiple-tracks allows at most %d ids, got %d", maxMultipleTrackIDs, len(ids)))
	}

	req := c.http.NewRequest(ctx).
		SetHeader("Authorization", "Bearer "+c.apiKey).
		SetQueryParam("ids", httpx.JoinParams(ids))

	resp, err := c.http.Do(ctx, http.MethodGet, "/track", req)
	if err != nil {
		return nil, errs.Wrap(err, "features.get-multiple-tracks")
	}

	var out multipleTracksResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return nil, errs.Validation("get-multiple-tracks response is not valid JSON: " + err.Error())
	}

	tracks := make([]Track, 0, len(out.Tracks))
	for _, t := range out.Tracks {
		tracks = append(tracks, Track{ID: t.ID, Name: t.Name, Artists: t.Artists})
	}
	return tracks, nil
}

// GetTrack resolves a single Features ID (spec "get-track (single)").
func (c *Client) GetTrack(ctx context.Context, id string) (*Track, error) {
	if id == "" {
		return nil, errs.Validation("track id is required")
	}

	req := c.http.NewRequest(ctx).SetHeader("Authorization", "Bearer "+c.apiKey)
	resp, err := c.http.Do(ctx, http.MethodGet, "/track/"+id, req, "id")
	if err != nil {
		return nil, errs.Wrap(err, "features.get-track")
	}

	var wire trackWire
	if err := json.Unmarshal(resp.Body(), &wire); err != nil {
		return nil, errs.Validation("get-track response is not valid JSON: " + err.Error())
	}
	return &Track{ID: wire.ID, Name: wire.Name, Artists: wire.Artists}, nil
}

// GetTrackAudioFeatures resolves the twelve audio features of spec §6
// for a single track (spec "get-track-audio-features").
func (c *Client) GetTrackAudioFeatures(ctx context.Context, id string) (map[mood.Feature]float64, error) {
	if id == "" {
		return nil, errs.Validation("track id is required")
	}

	req := c.http.NewRequest(ctx).SetHeader("Authorization", "Bearer "+c.apiKey)
	resp, err := c.http.Do(ctx, http.MethodGet, "/track/"+id+"/audio-features", req)
	if err != nil {
		return nil, errs.Wrap(err, "features.get-track-audio-features")
	}

	var raw map[string]float64
	if err := json.Unmarshal(resp.Body(), &raw); err != nil {
		return nil, errs.Validation("get-track-audio-features response is not valid JSON: " + err.Error())
	}

	out := make(map[mood.Feature]float64, len(raw))
	for _, f := range mood.AllFeatures {
		if v, ok := raw[string(f)]; ok {
			out[f] = v
		}
	}
	return out, nil
}

// Artist is the Features-side artist shape.
type Artist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type searchArtistsResponse struct {
	Artists []Artist `json:"artists"`
}

// SearchArtists searches Features for an artist by name.
func (c *Client) SearchArtists(ctx context.Context, query string, limit int) ([]Artist, error) {
	if query == "" {
		return nil, errs.Validation("search query is required")
	}
	if limit <= 0 {
		limit = 10
	}

	req := c.http.NewRequest(ctx).
		SetHeader("Authorization", "Bearer "+c.apiKey).
		SetQueryParam("name", query).
		SetQueryParam("size", fmt.Sprintf("%d", limit))

	resp, err := c.http.Do(ctx, http.MethodGet, "/artist/search", req)
	if err != nil {
		return nil, errs.Wrap(err, "features.search-artists")
	}

	var out searchArtistsResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return nil, errs.Validation("search-artists response is not valid JSON: " + err.Error())
	}
	return out.Artists, nil
}

type multipleArtistsResponse struct {
	Artists []Artist `json:"artists"`
}

// GetMultipleArtists resolves up to 50 Features artist IDs in one call
// (spec "get-multiple-artists (ids ≤ 50)").
func (c *Client) GetMultipleArtists(ctx context.Context, ids []string) ([]Artist, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	if len(ids) > maxMultipleArtistIDs {
		return nil, errs.Validation(fmt.Sprintf("get-multiple-artists allows at most %d ids, got %d", maxMultipleArtistIDs, len(ids)))
	}

	req := c.http.NewRequest(ctx).
		SetHeader("Authorization", "Bearer "+c.apiKey).
		SetQueryParam("ids", httpx.JoinParams(ids))

	resp, err := c.http.Do(ctx, http.MethodGet, "/artist", req)
	if err != nil {
		return nil, errs.Wrap(err, "features.get-multiple-artists")
	}

	var out multipleArtistsResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return nil, errs.Validation("get-multiple-artists response is not valid JSON: " + err.Error())
	}
	return out.Artists, nil
}

type artistTracksResponse struct {
	Tracks []trackWire `json:"tracks"`
}

// GetArtistTracks retrieves an artist's tracks as known to Features.
func (c *Client) GetArtistTracks(ctx context.Context, artistID string, limit int) ([]Track, error) {
	if artistID == "" {
		return nil, errs.Validation("artist id is required")
	}
	if limit <= 0 {
		limit = 20
	}

	req := c.http.NewRequest(ctx).
		SetHeader("Authorization", "Bearer "+c.apiKey).
		SetQueryParam("size", fmt.Sprintf("%d", limit))

	resp, err := c.http.Do(ctx, http.MethodGet, "/artist/"+artistID+"/track", req)
	if err != nil {
		return nil, errs.Wrap(err, "features.get-artist-tracks")
	}

	var out artistTracksResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return nil, errs.Validation("get-artist-tracks response is not valid JSON: " + err.Error())
	}

	tracks := make([]Track, 0, len(out.Tracks))
	for _, t := range out.Tracks {
		tracks = append(tracks, Track{ID: t.ID, Name: t.Name, Artists: t.Artists})
	}
	return tracks, nil
}
