package features

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/moodplay/internal/errs"
	"github.com/osa030/moodplay/internal/infra/httpx"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	c, err := New(Config{BaseURL: srv.URL, APIKey: "test-key"}, httpx.Config{})
	require.NoError(t, err)
	return c, srv
}

func TestNew_RequiresAPIKeyAndBaseURL(t *testing.T) {
	_, err := New(Config{BaseURL: "https://features.example.com"}, httpx.Config{})
	assert.Error(t, err)

	_, err = New(Config{APIKey: "k"}, httpx.Config{})
	assert.Error(t, err)
}

func TestGetRecommendation_ValidatesSeedCounts(t *testing.T) {
	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("upstream should not be called for invalid input")
	})
	defer srv.Close()

	_, err := c.GetRecommendation(t.Context(), nil, nil, 10)
	require.Error(t, err)
	assert.Equal(t, errs.KindValidation, errs.KindOf(err))

	_, err = c.GetRecommendation(t.Context(), []string{"a", "b", "c", "d", "e", "f"}, nil, 10)
	assert.Error(t, err)

	_, err = c.GetRecommendation(t.Context(), []string{"a"}, []string{"1", "2", "3", "4", "5", "6"}, 10)
	assert.Error(t, err)

	_, err = c.GetRecommendation(t.Context(), []string{"a"}, nil, 0)
	assert.Error(t, err)
}

func TestGetRecommendation_Success(t *testing.T) {
	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/recommendation", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		w.Write([]byte(`{"recommendations":[{"id":"t1"},{"id":"t2"}]}`))
	})
	defer srv.Close()

	recs, err := c.GetRecommendation(t.Context(), []string{"seed1"}, nil, 20)
	require.NoError(t, err)
	assert.Len(t, recs, 2)
	assert.Equal(t, "t1", recs[0].ID)
}

func TestGetMultipleTracks_ValidatesBatchSize(t *testing.T) {
	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("upstream should not be called for oversized batch")
	})
	defer srv.Close()

	ids := make([]string, 41)
	for i := range ids {
		ids[i] = "id"
	}
	_, err := c.GetMultipleTracks(t.Context(), ids)
	assert.Error(t, err)
}

func TestGetMultipleTracks_EmptyIsNoOp(t *testing.T) {
	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("upstream should not be called for empty ids")
	})
	defer srv.Close()

	tracks, err := c.GetMultipleTracks(t.Context(), nil)
	require.NoError(t, err)
	assert.Empty(t, tracks)
}

func TestGetTrackAudioFeatures_FiltersToKnownFeatures(t *testing.T) {
	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"energy":0.8,"valence":0.6,"unknown_field":1.0}`))
	})
	defer srv.Close()

	feats, err := c.GetTrackAudioFeatures(t.Context(), "t1")
	require.NoError(t, err)
	assert.Len(t, feats, 2)
	assert.InDelta(t, 0.8, feats["energy"], 0.0001)
}

func TestSearchArtists_RequiresQuery(t *testing.T) {
	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("upstream should not be called for empty query")
	})
	defer srv.Close()

	_, err := c.SearchArtists(t.Context(), "", 10)
	assert.Error(t, err)
}

func TestGetMultipleArtists_ValidatesBatchSize(t *testing.T) {
	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("upstream should not be called for oversized batch")
	})
	defer srv.Close()

	ids := make([]string, 51)
	_, err := c.GetMultipleArtists(t.Context(), ids)
	assert.Error(t, err)
}
