package ledger

import (
	"context"
	"io"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLedger(t *testing.T) (*Ledger, *MemoryStore, *User) {
	t.Helper()
	store := NewMemoryStore()
	u, err := store.CreateGuest(context.Background(), "guest", "cred-1", 10_000)
	require.NoError(t, err)
	return New(store, log.New(io.Discard)), store, u
}

func TestBalanceLoadsFromStore(t *testing.T) {
	l, _, u := newTestLedger(t)
	bal, err := l.Balance(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(10_000), bal)
}

func TestBalanceUnknownUser(t *testing.T) {
	l, _, _ := newTestLedger(t)
	_, err := l.Balance(context.Background(), 999)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestAddGoldIsNotDurableUntilCommit(t *testing.T) {
	l, store, u := newTestLedger(t)
	ctx := context.Background()

	bal, err := l.AddGold(ctx, u.ID, -3000)
	require.NoError(t, err)
	assert.Equal(t, int64(7000), bal)

	stored, err := store.UserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(10_000), stored.Gold)

	require.NoError(t, l.CommitGold(ctx, u.ID))
	stored, err = store.UserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(7000), stored.Gold)
}

func TestCommitCleanAccountIsNoop(t *testing.T) {
	l, _, u := newTestLedger(t)
	assert.NoError(t, l.CommitGold(context.Background(), u.ID))
}

func TestEvictFlushes(t *testing.T) {
	l, store, u := newTestLedger(t)
	ctx := context.Background()

	_, err := l.AddGold(ctx, u.ID, 500)
	require.NoError(t, err)
	l.Evict(ctx, u.ID)

	stored, err := store.UserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(10_500), stored.Gold)

	// Next read goes back to the store.
	bal, err := l.Balance(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(10_500), bal)
}

func TestAddStats(t *testing.T) {
	l, store, u := newTestLedger(t)
	ctx := context.Background()

	require.NoError(t, l.AddStats(ctx, u.ID, 23, 1, 1))
	require.NoError(t, l.AddStats(ctx, u.ID, 0, 1, 0))

	stored, err := store.UserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(23), stored.Exp)
	assert.Equal(t, 2, stored.Games)
	assert.Equal(t, 1, stored.Wins)
}

func TestMemoryStoreCredentialLookup(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	created, err := store.CreateGuest(ctx, "guest", "cred-x", 5000)
	require.NoError(t, err)

	found, err := store.UserByCredential(ctx, "cred-x")
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)
	assert.True(t, found.Guest)

	_, err = store.UserByCredential(ctx, "missing")
	assert.ErrorIs(t, err, ErrUserNotFound)
}
