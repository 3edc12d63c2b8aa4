// Package token implements the Token Manager of spec §4.5: validity
// checks against a 5-minute expiry buffer and atomic refresh-token
// exchange and persistence. Copying a refreshed access token into an
// already-running workflow is done by the orchestrator, not here.
package token

import (
	"context"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/osa030/moodplay/internal/errs"
)

const validityBuffer = 5 * time.Minute

// Record is the persisted token state for one user.
type Record struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// Store persists and retrieves Records. Implementations must make
// Save atomic with respect to concurrent Load calls for the same
// userID (spec §4.5: "persist ... atomically").
type Store interface {
	Load(ctx context.Context, userID string) (Record, error)
	Save(ctx context.Context, userID string, rec Record) error
}

// Exchanger trades a refresh token for a fresh access token at the
// OAuth endpoint.
type Exchanger interface {
	Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error)
}

// Manager is the Token Manager of spec §4.5.
type Manager struct {
	store     Store
	exchanger Exchanger

	mu      sync.Mutex
	perUser map[string]*sync.Mutex
}

// New builds a Manager over store and exchanger.
func New(store Store, exchanger Exchanger) *Manager {
	return &Manager{store: store, exchanger: exchanger, perUser: make(map[string]*sync.Mutex)}
}

// EnsureValidToken returns userID's access token, refreshing it first
// if it is within 5 minutes of expiry or already expired.
func (m *Manager) EnsureValidToken(ctx context.Context, userID string) (string, error) {
	rec, err := m.store.Load(ctx, userID)
	if err != nil {
		return "", errs.Wrap(err, "failed to load token record")
	}

	if time.Now().Before(rec.ExpiresAt.Add(-validityBuffer)) {
		return rec.AccessToken, nil
	}

	return m.RefreshUserToken(ctx, userID)
}

// RefreshUserToken exchanges userID's refresh token at the OAuth
// endpoint and persists the new access token, refresh token (if one
// was returned), and expiry atomically, then returns the new access
// token. Concurrent callers for the same user are serialized so only
// one exchange happens at a time.
func (m *Manager) RefreshUserToken(ctx context.Context, userID string) (string, error) {
	lock := m.lockFor(userID)
	lock.Lock()
	defer lock.Unlock()

	rec, err := m.store.Load(ctx, userID)
	if err != nil {
		return "", errs.Wrap(err, "failed to load token record")
	}

	// Another goroutine may have already refreshed while we waited on
	// the lock; re-check before spending an exchange call.
	if time.Now().Before(rec.ExpiresAt.Add(-validityBuffer)) {
		return rec.AccessToken, nil
	}

	newToken, err := m.exchanger.Refresh(ctx, rec.RefreshToken)
	if err != nil {
		return "", errs.Wrap(err, "failed to refresh token")
	}

	updated := Record{
		AccessToken:  newToken.AccessToken,
		RefreshToken: rec.RefreshToken,
		ExpiresAt:    newToken.Expiry,
	}
	if newToken.RefreshToken != "" {
		updated.RefreshToken = newToken.RefreshToken
	}

	if err := m.store.Save(ctx, userID, updated); err != nil {
		return "", errs.Wrap(err, "failed to persist refreshed token")
	}

	return updated.AccessToken, nil
}

func (m *Manager) lockFor(userID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	lock, ok := m.perUser[userID]
	if !ok {
		lock = &sync.Mutex{}
		m.perUser[userID] = lock
	}
	return lock
}
