package background

import (
	"context"
	"time"

	"github.com/osa030/moodplay/internal/domain/workflow"
	"github.com/osa030/moodplay/internal/infra/cache"
)

// CacheProgressNotifier implements orchestrator.ProgressNotifier by
// writing every workflow state transition into the cache under
// WorkflowState, so a caller elsewhere in the process (or, with a
// distributed cache backend, a different process) can poll a run's
// status without holding a reference to the Orchestrator goroutine
// that's driving it.
type CacheProgressNotifier struct {
	cache *cache.Manager
}

// NewCacheProgressNotifier builds a CacheProgressNotifier.
func NewCacheProgressNotifier(cm *cache.Manager) *CacheProgressNotifier {
	return &CacheProgressNotifier{cache: cm}
}

// Notify implements orchestrator.ProgressNotifier.
func (n *CacheProgressNotifier) Notify(state *workflow.State) {
	if n == nil || n.cache == nil || state == nil {
		return
	}
	n.cache.SetWorkflowState(context.Background(), state.SessionID, state)
}

// PollWorkflowState reads the cached snapshot for sessionID every
// pollInterval until it reaches a terminal status or the deadline on
// ctx is hit, whichever comes first. Returns the last snapshot seen
// and whether it reached a terminal status.
func PollWorkflowState(ctx context.Context, cm *cache.Manager, sessionID string) (workflow.State, bool) {
	var state workflow.State
	for {
		if cm.WorkflowState(ctx, sessionID, &state) && state.Status.Terminal() {
			return state, true
		}
		select {
		case <-ctx.Done():
			return state, false
		case <-time.After(pollInterval):
		}
	}
}
