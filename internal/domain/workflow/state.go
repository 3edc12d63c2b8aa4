// Package workflow defines WorkflowState, the per-session record the
// orchestrator owns and mutates for the lifetime of one recommendation
// request (spec §3, §4.13).
package workflow

import (
	"github.com/google/uuid"

	"github.com/osa030/moodplay/internal/domain/mood"
	"github.com/osa030/moodplay/internal/domain/track"
)

// Status is one state in the orchestrator's state machine (spec §4.13).
type Status string

const (
	StatusPending                     Status = "pending"
	StatusAnalyzingMood                Status = "analyzing_mood"
	StatusGatheringSeeds                Status = "gathering_seeds"
	StatusGeneratingRecommendations      Status = "generating_recommendations"
	StatusFinalizing                    Status = "finalizing"
	StatusCompleted                     Status = "completed"
	StatusFailed                        Status = "failed"
	StatusError                         Status = "error"
)

// Terminal reports whether status ends the state machine (spec §3:
// "terminal when status ∈ {Completed, Failed, Error}").
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusError
}

// PlaylistTarget is the computed sizing/shape target for the playlist,
// derived from the mood analysis once target features are known
// (§4.13 "determine_playlist_target").
type PlaylistTarget struct {
	TargetCount int
	RemixMode   bool
	RemixSeeds  []track.Candidate
}

// Metadata is the closed, named-field replacement for the reference's
// open-ended metadata bag (spec §9 "Dynamic types → tagged records").
// Every field here corresponds to one key the Python reference stuffs
// into an untyped dict.
type Metadata struct {
	SpotifyAccessToken      string
	TargetFeatures          map[mood.Feature]mood.FeatureTarget
	FeatureWeights          map[mood.Feature]float64
	AnchorTracks            []track.AnchorCandidate
	AnchorTrackIDs          map[string]bool
	DiscoveredArtists       []string
	MoodMatchedArtists      []string
	UserMentionedTrackIDs   map[string]bool
	UserMentionedTracksFull []track.Candidate
	IntentAnalysis          *mood.Analysis
	PlaylistTarget          *PlaylistTarget

	// StageErrors records non-fatal per-stage failures, per spec §7:
	// "stored in state.metadata[<stage>_error]". Keyed by stage name.
	StageErrors map[string]string
}

// RecordStageError stores a non-fatal stage failure without raising it
// to the caller, per the §7 failure taxonomy.
func (m *Metadata) RecordStageError(stage string, err error) {
	if err == nil {
		return
	}
	if m.StageErrors == nil {
		m.StageErrors = make(map[string]string)
	}
	m.StageErrors[stage] = err.Error()
}

// State is the per-session record owned exclusively by the
// orchestrator and passed by reference to every stage (spec §3).
type State struct {
	SessionID      string
	UserID         string
	MoodPrompt     string
	Status         Status
	CurrentStep    string
	MoodAnalysis   *mood.Analysis
	SeedTracks     []string
	NegativeSeeds  []string
	Recommendations []track.Recommendation
	Metadata       Metadata
}

// New creates a fresh, Pending WorkflowState for one recommendation
// request.
func New(userID, moodPrompt string) *State {
	return &State{
		SessionID:  uuid.NewString(),
		UserID:     userID,
		MoodPrompt: moodPrompt,
		Status:     StatusPending,
		Metadata: Metadata{
			AnchorTrackIDs:        make(map[string]bool),
			UserMentionedTrackIDs: make(map[string]bool),
		},
	}
}

// Transition moves the state machine to status, updating the progress
// label (spec §4.13: "On each transition, set status and current_step").
func (s *State) Transition(status Status, currentStep string) {
	s.Status = status
	s.CurrentStep = currentStep
}
