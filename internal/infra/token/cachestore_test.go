package token

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/moodplay/internal/errs"
	"github.com/osa030/moodplay/internal/infra/cache"
)

func newTestCacheStore() *CacheStore {
	return NewCacheStore(cache.NewManager(cache.NewMemory(100), "moodplay:"))
}

func TestCacheStore_SaveThenLoad(t *testing.T) {
	store := newTestCacheStore()
	rec := Record{AccessToken: "a1", RefreshToken: "r1", ExpiresAt: time.Now().Add(time.Hour)}

	require.NoError(t, store.Save(t.Context(), "user-1", rec))

	got, err := store.Load(t.Context(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, rec.AccessToken, got.AccessToken)
	assert.Equal(t, rec.RefreshToken, got.RefreshToken)
}

func TestCacheStore_LoadMissReturnsNotFound(t *testing.T) {
	store := newTestCacheStore()

	_, err := store.Load(t.Context(), "no-such-user")
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.KindNotFound))
}
