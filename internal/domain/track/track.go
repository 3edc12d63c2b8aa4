// Package track provides the recommendation-output domain entities:
// the scored, annotated tracks the orchestrator produces and the
// intermediate anchor candidates that shape them.
package track

import "github.com/cockroachdb/errors"

// errInvalidUserMention is returned by Validate when a user-mentioned
// track was built without its required protection flags.
var errInvalidUserMention = errors.New("user-mentioned recommendation must be protected with anchor_type=user")

// Source identifies which stage of the pipeline produced a recommendation.
type Source string

const (
	SourceAnchorTrack     Source = "anchor_track"
	SourceArtistDiscovery Source = "artist_discovery"
	SourceReccobeat       Source = "reccobeat"
	SourceUserMentioned   Source = "user_mentioned"
)

// AnchorType classifies why a track was selected as an anchor.
type AnchorType string

const (
	AnchorNone              AnchorType = "none"
	AnchorUser              AnchorType = "user"
	AnchorGenre             AnchorType = "genre"
	AnchorArtistMentioned   AnchorType = "artist_mentioned"
	AnchorArtistRecommended AnchorType = "artist_recommended"
)

// Recommendation is a single scored, provenance-tagged track in the
// final or in-progress playlist.
//
// Invariants (enforced by the stages that construct it, not by this
// type): if UserMentioned is true then Protected must be true and
// AnchorType must be AnchorUser; a Protected track is never subject to
// the diversity penalty, the violation filter, or the quality
// threshold. Only user-mentioned tracks bypass the temporal filter and
// stay outside the ratio enforcer's anchor cap and 98:2 split.
type Recommendation struct {
	TrackID         string
	TrackName       string
	Artists         []string
	SpotifyURI      string
	ReleaseDate     string
	ConfidenceScore float64
	AudioFeatures   map[string]float64
	Reasoning       string
	Source          Source
	UserMentioned   bool
	Protected       bool
	AnchorType      AnchorType
}

// HasArtist reports whether name (case-sensitive, exact) appears among
// the recommendation's artists.
func (r *Recommendation) HasArtist(name string) bool {
	for _, a := range r.Artists {
		if a == name {
			return true
		}
	}
	return false
}

// Validate checks the protected/user-mentioned invariant described on
// Recommendation. Callers that build a Recommendation by hand (tests,
// strategies) should call this before handing it to the orchestrator.
func (r *Recommendation) Validate() error {
	if r.UserMentioned && (!r.Protected || r.AnchorType != AnchorUser) {
		return errInvalidUserMention
	}
	return nil
}

// AnchorCandidate is the intermediate representation used only inside
// anchor selection (§4.7). It is intentionally a narrower type than
// Recommendation: it carries a raw Score (pre-LLM-weighting) alongside
// Confidence, a duplication the spec documents as an unresolved
// ambiguity in the reference implementation (see DESIGN.md Open
// Question 1) — here it is deliberate, not an oversight, because the
// two numbers mean different things for a candidate that has not yet
// been finalized into a Recommendation.
type AnchorCandidate struct {
	Track      Candidate
	Score      float64
	Confidence float64
	Source     Source
	AnchorType AnchorType
	Protected  bool
}

// Candidate is the minimal track shape anchor selection and the
// candidate generators operate on, before scoring attaches audio
// features and confidence.
type Candidate struct {
	ID          string
	Name        string
	Artists     []string
	SpotifyURI  string
	Popularity  int
	ReleaseDate string
	Market      string
}

// ToRecommendation finalizes an AnchorCandidate into a Recommendation.
func (c AnchorCandidate) ToRecommendation(reasoning string) Recommendation {
	userMentioned := c.AnchorType == AnchorUser
	return Recommendation{
		TrackID:         c.Track.ID,
		TrackName:       c.Track.Name,
		Artists:         c.Track.Artists,
		SpotifyURI:      c.Track.SpotifyURI,
		ReleaseDate:     c.Track.ReleaseDate,
		ConfidenceScore: c.Confidence,
		Source:          c.Source,
		UserMentioned:   userMentioned,
		Protected:       c.Protected,
		AnchorType:      c.AnchorType,
	}
}
