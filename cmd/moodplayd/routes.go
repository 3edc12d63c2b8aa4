package main

import (
	"encoding/json"
	"net/http"

	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/moodplay/internal/app/orchestrator"
)

// registerRoutes wires the thin HTTP surface over the Orchestrator.
// Request routing itself is out of this project's scope (spec §1);
// these handlers exist only so moodplayd is a runnable service rather
// than a library with no entry point.
func registerRoutes(mux *http.ServeMux, deps *dependencies) {
	mux.HandleFunc("POST /recommendations", handleRecommend(deps))
	mux.HandleFunc("GET /healthz", handleHealthz)
}

type recommendRequest struct {
	UserID        string   `json:"user_id"`
	MoodPrompt    string   `json:"mood_prompt"`
	RemixTrackIDs []string `json:"remix_track_ids,omitempty"`
	TargetCount   int      `json:"target_count,omitempty"`
}

func handleRecommend(deps *dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req recommendRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if req.UserID == "" || req.MoodPrompt == "" {
			http.Error(w, "user_id and mood_prompt are required", http.StatusBadRequest)
			return
		}

		state, err := deps.orchestrator.Run(r.Context(), orchestrator.Request{
			UserID:        req.UserID,
			MoodPrompt:    req.MoodPrompt,
			RemixTrackIDs: req.RemixTrackIDs,
			TargetCount:   req.TargetCount,
		})
		if err != nil {
			zlog.Error().Err(err).Str("user_id", req.UserID).Msg("recommendation workflow failed")
			http.Error(w, "recommendation workflow failed", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(state); err != nil {
			zlog.Error().Err(err).Msg("failed to encode workflow state response")
		}
	}
}

func handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
