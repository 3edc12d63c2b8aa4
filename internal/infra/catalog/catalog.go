// Package catalog implements the Catalog client: the Spotify-shaped
// upstream used for user profile, listening history, search, artist
// discovery, and playlist publishing (spec §4 "Catalog"). It is
// adapted from the teacher's internal/infra/spotify client, swapping
// the teacher's playlist-sampling/BGM operations for the operation
// set the spec's upstream-endpoint list actually needs.
package catalog

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"

	"github.com/osa030/moodplay/internal/domain/track"
)

// fallbackMarkets is the ordered list GetArtistTopTracks walks through
// when the configured market returns no results, before giving up and
// falling back to a name-based search (spec §4 "Upstream endpoints
// consumed (Catalog)": "on failure fall back through a market list and
// finally to a name-based search").
var fallbackMarkets = []string{"US", "GB", "JP", "DE"}

// TimeRange is one of Spotify's top-items windows.
type TimeRange string

const (
	TimeRangeShort  TimeRange = "short_term"
	TimeRangeMedium TimeRange = "medium_term"
	TimeRangeLong   TimeRange = "long_term"
)

// Client is a Catalog API client.
type Client struct {
	client     *spotify.Client
	market     string
	maxRetries int
	retryDelay time.Duration
}

// Config represents Catalog client configuration.
type Config struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
	Market       string
}

// New creates a new Catalog client, refreshing via the client's stored
// OAuth refresh token (spec §4.5 token manager handles user-level
// tokens separately; this is the service-account client used for
// catalog reads and playlist writes).
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" || cfg.RefreshToken == "" {
		return nil, errors.New("catalog credentials are required")
	}

	auth := spotifyauth.New(
		spotifyauth.WithClientID(cfg.ClientID),
		spotifyauth.WithClientSecret(cfg.ClientSecret),
		spotifyauth.WithScopes(
			spotifyauth.ScopePlaylistModifyPublic,
			spotifyauth.ScopePlaylistModifyPrivate,
			spotifyauth.ScopeUserTopRead,
			spotifyauth.ScopeUgcImageUpload,
		),
	)

	token := &oauth2.Token{RefreshToken: cfg.RefreshToken}
	httpClient := auth.Client(ctx, token)
	client := spotify.New(httpClient)

	market := cfg.Market
	if market == "" {
		market = "US"
	}

	return &Client{
		client:     client,
		market:     market,
		maxRetries: 3,
		retryDelay: time.Second,
	}, nil
}

// UserProfile is the subset of the current user's profile the
// orchestrator needs for anchor selection and playlist ownership.
type UserProfile struct {
	ID          string
	DisplayName string
	Country     string
}

// GetUserProfile retrieves the authenticated user's profile.
func (c *Client) GetUserProfile(ctx context.Context) (*UserProfile, error) {
	var user *spotify.PrivateUser
	err := c.retry(func() error {
		u, err := c.client.CurrentUser(ctx)
		if err != nil {
			return err
		}
		user = u
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to get user profile")
	}
	return &UserProfile{ID: user.ID, DisplayName: user.DisplayName, Country: user.Country}, nil
}

// GetTopTracks retrieves the user's top tracks for timeRange, capped
// at 50 per the spec's upstream-endpoint list.
func (c *Client) GetTopTracks(ctx context.Context, timeRange TimeRange, limit int) ([]track.Candidate, error) {
	limit = clampLimit(limit, 50)

	var page *spotify.FullTrackPage
	err := c.retry(func() error {
		p, err := c.client.CurrentUsersTopTracks(ctx,
			spotify.Timerange(string(timeRange)),
			spotify.Limit(limit),
		)
		if err != nil {
			return err
		}
		page = p
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to get top tracks")
	}

	candidates := make([]track.Candidate, 0, len(page.Tracks))
	for _, t := range page.Tracks {
		candidates = append(candidates, c.convertTrack(&t))
	}
	return candidates, nil
}

// Artist is the minimal artist shape the anchor selector and strategy
// generators operate on.
type Artist struct {
	ID         string
	Name       string
	Genres     []string
	Popularity int
}

// GetTopArtists retrieves the user's top artists for timeRange, capped
// at 50.
func (c *Client) GetTopArtists(ctx context.Context, timeRange TimeRange, limit int) ([]Artist, error) {
	limit = clampLimit(limit, 50)

	var page *spotify.FullArtistPage
	err := c.retry(func() error {
		p, err := c.client.CurrentUsersTopArtists(ctx,
			spotify.Timerange(string(timeRange)),
			spotify.Limit(limit),
		)
		if err != nil {
			return err
		}
		page = p
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to get top artists")
	}

	artists := make([]Artist, 0, len(page.Artists))
	for _, a := range page.Artists {
		artists = append(artists, convertArtist(&a))
	}
	return artists, nil
}

// SearchType selects what Search looks for.
type SearchType string

const (
	SearchTypeArtist SearchType = "artist"
	SearchTypeTrack  SearchType = "track"
)

// Search searches the catalog for query, restricted to searchType
// (spec: "search (types: artist, track)").
func (c *Client) Search(ctx context.Context, query string, searchType SearchType, limit int) ([]track.Candidate, []Artist, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil, errors.New("search query is required")
	}
	limit = clampLimit(limit, 50)

	var st spotify.SearchType
	switch searchType {
	case SearchTypeArtist:
		st = spotify.SearchTypeArtist
	default:
		st = spotify.SearchTypeTrack
	}

	var result *spotify.SearchResult
	err := c.retry(func() error {
		r, err := c.client.Search(ctx, query, st, spotify.Limit(limit), spotify.Market(c.market))
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to search")
	}

	var tracks []track.Candidate
	if result.Tracks != nil {
		for _, t := range result.Tracks.Tracks {
			tracks = append(tracks, c.convertTrack(&t))
		}
	}

	var artists []Artist
	if result.Artists != nil {
		for _, a := range result.Artists.Artists {
			artists = append(artists, convertArtist(&a))
		}
	}

	return tracks, artists, nil
}

// GetArtistTopTracks retrieves an artist's top tracks in the
// configured market, falling back through fallbackMarkets and finally
// to a name-based search if every market returns empty (spec: "on
// failure fall back through a market list and finally to a name-based
// search").
func (c *Client) GetArtistTopTracks(ctx context.Context, artistID, artistName string) ([]track.Candidate, error) {
	markets := append([]string{c.market}, fallbackMarkets...)

	var lastErr error
	for _, m := range markets {
		var tracks []spotify.FullTrack
		err := c.retry(func() error {
			ts, err := c.client.GetArtistsTopTracks(ctx, spotify.ID(artistID), m)
			if err != nil {
				return err
			}
			tracks = ts
			return nil
		})
		if err != nil {
			lastErr = err
			continue
		}
		if len(tracks) == 0 {
			continue
		}
		candidates := make([]track.Candidate, 0, len(tracks))
		for _, t := range tracks {
			candidates = append(candidates, c.convertTrack(&t))
		}
		return candidates, nil
	}

	if artistName == "" {
		if lastErr != nil {
			return nil, errors.Wrap(lastErr, "failed to get artist top tracks in any market")
		}
		return nil, errors.New("artist has no top tracks in any configured market")
	}

	tracks, _, err := c.Search(ctx, artistName, SearchTypeTrack, 10)
	if err != nil {
		return nil, errors.Wrap(err, "failed to fall back to name search for artist top tracks")
	}
	return tracks, nil
}

// GetArtistAlbums retrieves an artist's albums.
func (c *Client) GetArtistAlbums(ctx context.Context, artistID string, limit int) ([]string, error) {
	limit = clampLimit(limit, 50)

	var page *spotify.SimpleAlbumPage
	err := c.retry(func() error {
		p, err := c.client.GetArtistAlbums(ctx, spotify.ID(artistID), nil, spotify.Limit(limit), spotify.Market(c.market))
		if err != nil {
			return err
		}
		page = p
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to get artist albums")
	}

	ids := make([]string, 0, len(page.Albums))
	for _, a := range page.Albums {
		ids = append(ids, string(a.ID))
	}
	return ids, nil
}

// GetAlbumTracks retrieves an album's tracks.
func (c *Client) GetAlbumTracks(ctx context.Context, albumID string, limit int) ([]track.Candidate, error) {
	limit = clampLimit(limit, 50)

	var page *spotify.SimpleTrackPage
	err := c.retry(func() error {
		p, err := c.client.GetAlbumTracks(ctx, spotify.ID(albumID), spotify.Limit(limit), spotify.Market(c.market))
		if err != nil {
			return err
		}
		page = p
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to get album tracks")
	}

	candidates := make([]track.Candidate, 0, len(page.Tracks))
	for _, t := range page.Tracks {
		artists := make([]string, len(t.Artists))
		for i, a := range t.Artists {
			artists[i] = a.Name
		}
		candidates = append(candidates, track.Candidate{
			ID:      string(t.ID),
			Name:    t.Name,
			Artists: artists,
			Market:  c.market,
		})
	}
	return candidates, nil
}

// GetTrack retrieves a single track by ID, primarily for its
// popularity score (spec: "get-track (for popularity)").
func (c *Client) GetTrack(ctx context.Context, trackID string) (*track.Candidate, error) {
	var result *spotify.FullTrack
	err := c.retry(func() error {
		t, err := c.client.GetTrack(ctx, spotify.ID(trackID), spotify.Market(c.market))
		if err != nil {
			return err
		}
		result = t
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to get track")
	}
	c2 := c.convertTrack(result)
	return &c2, nil
}

// CreatePlaylist creates a new playlist owned by userID.
func (c *Client) CreatePlaylist(ctx context.Context, userID, name, description string) (string, error) {
	var playlist *spotify.FullPlaylist
	err := c.retry(func() error {
		p, err := c.client.CreatePlaylistForUser(ctx, userID, name, description, true, false)
		if err != nil {
			return err
		}
		playlist = p
		return nil
	})
	if err != nil {
		return "", errors.Wrap(err, "failed to create playlist")
	}
	return string(playlist.ID), nil
}

// AddTracksToPlaylist adds trackIDs to playlistID, batching at 100
// tracks per request (spec: "add-tracks-to-playlist (batch 100)").
func (c *Client) AddTracksToPlaylist(ctx context.Context, playlistID string, trackIDs []string) error {
	ids := make([]spotify.ID, len(trackIDs))
	for i, id := range trackIDs {
		ids[i] = spotify.ID(id)
	}

	for i := 0; i < len(ids); i += 100 {
		end := i + 100
		if end > len(ids) {
			end = len(ids)
		}
		batch := ids[i:end]

		err := c.retry(func() error {
			_, err := c.client.AddTracksToPlaylist(ctx, spotify.ID(playlistID), batch...)
			return err
		})
		if err != nil {
			return errors.Wrap(err, "failed to add tracks to playlist")
		}
	}
	return nil
}

// UploadCover uploads a base64-encoded JPEG as playlistID's cover
// image (spec: "upload-cover (base64 JPEG, 202 expected)").
func (c *Client) UploadCover(ctx context.Context, playlistID string, jpeg []byte) error {
	encoded := base64.StdEncoding.EncodeToString(jpeg)
	return c.retry(func() error {
		return c.client.SetPlaylistImage(ctx, spotify.ID(playlistID), strings.NewReader(encoded))
	})
}

// GetPlaylistURL returns the catalog URL for a playlist.
func (c *Client) GetPlaylistURL(playlistID string) string {
	return fmt.Sprintf("https://open.spotify.com/playlist/%s", playlistID)
}

func (c *Client) convertTrack(t *spotify.FullTrack) track.Candidate {
	artists := make([]string, len(t.Artists))
	for i, a := range t.Artists {
		artists[i] = a.Name
	}

	releaseDate := t.Album.ReleaseDate

	return track.Candidate{
		ID:          string(t.ID),
		Name:        t.Name,
		Artists:     artists,
		SpotifyURI:  string(t.URI),
		Popularity:  int(t.Popularity),
		ReleaseDate: releaseDate,
		Market:      c.market,
	}
}

func convertArtist(a *spotify.FullArtist) Artist {
	return Artist{
		ID:         string(a.ID),
		Name:       a.Name,
		Genres:     a.Genres,
		Popularity: int(a.Popularity),
	}
}

func clampLimit(limit, max int) int {
	if limit <= 0 {
		return 20
	}
	if limit > max {
		return max
	}
	return limit
}

// retry retries an operation with linear backoff (retryDelay times the
// attempt number), mirroring the
// teacher's client-level retry (the httpx package's sliding-window and
// circuit-breaker behavior is reserved for Features, since the
// zmb3/spotify client does not expose a pluggable transport at the
// request level).
func (c *Client) retry(fn func() error) error {
	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !isRetryable(err) {
			return err
		}

		if i < c.maxRetries-1 {
			time.Sleep(c.retryDelay * time.Duration(i+1))
		}
	}
	return errors.Wrap(lastErr, "max retries exceeded")
}

func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "500") ||
		strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503") ||
		strings.Contains(errStr, "504")
}
