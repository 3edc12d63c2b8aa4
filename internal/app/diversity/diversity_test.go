package diversity

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/osa030/moodplay/internal/domain/track"
)

func TestApplyArtistDiversityPenalty_PenalizesRepeatedArtists(t *testing.T) {
	recs := []track.Recommendation{
		{TrackID: "1", Artists: []string{"A"}, ConfidenceScore: 0.9},
		{TrackID: "2", Artists: []string{"A"}, ConfidenceScore: 0.8},
		{TrackID: "3", Artists: []string{"A"}, ConfidenceScore: 0.7},
	}
	ApplyArtistDiversityPenalty(recs)

	assert.InDelta(t, 0.7, recs[0].ConfidenceScore, 0.001)
	assert.InDelta(t, 0.6, recs[1].ConfidenceScore, 0.001)
	assert.InDelta(t, 0.5, recs[2].ConfidenceScore, 0.001)
}

func TestApplyArtistDiversityPenalty_FloorsAtPointOne(t *testing.T) {
	recs := make([]track.Recommendation, 10)
	for i := range recs {
		recs[i] = track.Recommendation{TrackID: string(rune('a' + i)), Artists: []string{"Same"}, ConfidenceScore: 0.2}
	}
	ApplyArtistDiversityPenalty(recs)
	for _, r := range recs {
		assert.GreaterOrEqual(t, r.ConfidenceScore, diversityFloor)
	}
}

func TestApplyArtistDiversityPenalty_ExemptsProtectedTracks(t *testing.T) {
	recs := []track.Recommendation{
		{TrackID: "1", Artists: []string{"A"}, ConfidenceScore: 0.9, Protected: true},
		{TrackID: "2", Artists: []string{"A"}, ConfidenceScore: 0.8},
	}
	ApplyArtistDiversityPenalty(recs)
	assert.Equal(t, 0.9, recs[0].ConfidenceScore)
}

func TestSortStable_ProtectedAlwaysFirst(t *testing.T) {
	recs := []track.Recommendation{
		{TrackID: "low-protected", ConfidenceScore: 0.1, Protected: true},
		{TrackID: "high-unprotected", ConfidenceScore: 0.99},
	}
	out := SortStable(recs)
	assert.Equal(t, "low-protected", out[0].TrackID)
	assert.Equal(t, "high-unprotected", out[1].TrackID)
}

func TestSortStable_SortsEachPartitionByConfidenceDescending(t *testing.T) {
	recs := []track.Recommendation{
		{TrackID: "a", ConfidenceScore: 0.3},
		{TrackID: "b", ConfidenceScore: 0.9},
		{TrackID: "c", ConfidenceScore: 0.6},
	}
	out := SortStable(recs)
	assert.Equal(t, []string{"b", "c", "a"}, []string{out[0].TrackID, out[1].TrackID, out[2].TrackID})
}

func TestDedup_RemovesExactTrackID(t *testing.T) {
	recs := []track.Recommendation{
		{TrackID: "1", TrackName: "Song A"},
		{TrackID: "1", TrackName: "Song A Duplicate"},
	}
	out := Dedup(recs)
	assert.Len(t, out, 1)
}

func TestDedup_RemovesNormalizedDuplicateNames(t *testing.T) {
	recs := []track.Recommendation{
		{TrackID: "1", TrackName: "Blinding Lights"},
		{TrackID: "2", TrackName: "Blinding Lights (feat. Someone)"},
		{TrackID: "3", TrackName: "BLINDING LIGHTS (Radio Edit)"},
	}
	out := Dedup(recs)
	assert.Len(t, out, 1)
	assert.Equal(t, "1", out[0].TrackID)
}

func TestDedup_RemovesExactSpotifyURIDuplicate(t *testing.T) {
	recs := []track.Recommendation{
		{TrackID: "1", TrackName: "A", SpotifyURI: "spotify:track:xyz"},
		{TrackID: "2", TrackName: "B", SpotifyURI: "spotify:track:xyz"},
	}
	out := Dedup(recs)
	assert.Len(t, out, 1)
}

func TestDedup_KeepsDistinctTracks(t *testing.T) {
	recs := []track.Recommendation{
		{TrackID: "1", TrackName: "A"},
		{TrackID: "2", TrackName: "B"},
	}
	out := Dedup(recs)
	assert.Len(t, out, 2)
}
