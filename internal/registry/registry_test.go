package registry

import (
	"context"
	"io"
	"math/rand"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mazzetti/tressette/internal/game"
	"github.com/mazzetti/tressette/internal/protocol"
)

type nopCaster struct{}

func (nopCaster) SendToUser(int64, *protocol.Frame) {}

type fakeLedger struct {
	gold map[int64]int64
}

func (l *fakeLedger) Balance(_ context.Context, uid int64) (int64, error) {
	return l.gold[uid], nil
}

func (l *fakeLedger) AddGold(_ context.Context, uid int64, delta int64) (int64, error) {
	l.gold[uid] += delta
	return l.gold[uid], nil
}

func (l *fakeLedger) CommitGold(context.Context, int64) error { return nil }

func (l *fakeLedger) AddStats(context.Context, int64, int64, int, int) error { return nil }

type fixedLoad int

func (f fixedLoad) Online() int { return int(f) }

var testBets = []int64{100, 500, 1000, 2500, 5000, 10_000, 25_000}

func newTestRegistry(t *testing.T, load int) (*Registry, *fakeLedger, *quartz.Mock) {
	clock := quartz.NewMock(t)
	ledger := &fakeLedger{gold: make(map[int64]int64)}
	r := New(game.DefaultRules(), testBets, nopCaster{}, ledger, fixedLoad(load),
		clock, rand.New(rand.NewSource(42)), log.New(io.Discard))
	return r, ledger, clock
}

func soloSettings(bet int64) game.Settings {
	return game.Settings{Bet: bet, PlayerMode: game.ModeSolo, PointMode: 11}
}

func TestCreateValidatesSettings(t *testing.T) {
	r, ledger, _ := newTestRegistry(t, 10)
	ledger.gold[1] = 100_000
	ctx := context.Background()

	_, err := r.Create(ctx, 1, "u", game.Settings{Bet: 0, PlayerMode: 2, PointMode: 11})
	assert.ErrorIs(t, err, ErrBadSettings)
	_, err = r.Create(ctx, 1, "u", game.Settings{Bet: 100, PlayerMode: 3, PointMode: 11})
	assert.ErrorIs(t, err, ErrBadSettings)
	_, err = r.Create(ctx, 1, "u", game.Settings{Bet: 100, PlayerMode: 2, PointMode: 15})
	assert.ErrorIs(t, err, ErrBadSettings)

	m, err := r.Create(ctx, 1, "u", soloSettings(1000))
	require.NoError(t, err)
	assert.Equal(t, 1, m.NumPlayers())
}

func TestCreateRejectsBusyUser(t *testing.T) {
	r, ledger, _ := newTestRegistry(t, 10)
	ledger.gold[1] = 100_000
	ctx := context.Background()

	_, err := r.Create(ctx, 1, "u", soloSettings(1000))
	require.NoError(t, err)
	_, err = r.Create(ctx, 1, "u", soloSettings(1000))
	assert.ErrorIs(t, err, ErrUserBusy)
}

func TestJoinByID(t *testing.T) {
	r, ledger, _ := newTestRegistry(t, 10)
	ledger.gold[1] = 100_000
	ledger.gold[2] = 100_000
	ledger.gold[3] = 50
	ctx := context.Background()

	m, err := r.Create(ctx, 1, "host", soloSettings(1000))
	require.NoError(t, err)

	_, err = r.JoinByID(ctx, 2, "guest", m.ID+1)
	assert.ErrorIs(t, err, ErrMatchNotFound)

	_, err = r.JoinByID(ctx, 3, "poor", m.ID)
	assert.ErrorIs(t, err, game.ErrInsufficientGold)

	joined, err := r.JoinByID(ctx, 2, "guest", m.ID)
	require.NoError(t, err)
	assert.Same(t, m, joined)

	got, ok := r.MatchOf(2)
	require.True(t, ok)
	assert.Same(t, m, got)
}

func TestQuickPlayCreatesFallbackTable(t *testing.T) {
	r, ledger, _ := newTestRegistry(t, 10)
	ledger.gold[1] = 100_000
	ctx := context.Background()

	m, err := r.QuickPlay(ctx, 1, "u")
	require.NoError(t, err)

	// Quiet server: a tenth of the bankroll, snapped down to a tier.
	assert.Equal(t, int64(10_000), m.Settings().Bet)
	assert.Equal(t, game.ModeSolo, m.Settings().PlayerMode)
	assert.Equal(t, 1, r.NumMatches())
}

func TestQuickPlayFallbackUnderLoad(t *testing.T) {
	r, ledger, _ := newTestRegistry(t, 5000)
	ledger.gold[1] = 100_000
	ctx := context.Background()

	m, err := r.QuickPlay(ctx, 1, "u")
	require.NoError(t, err)

	// Populated server: a sixth of the bankroll. 16666 snaps to 10000.
	assert.Equal(t, int64(10_000), m.Settings().Bet)
}

func TestQuickPlayBrokeUser(t *testing.T) {
	r, ledger, _ := newTestRegistry(t, 10)
	ledger.gold[1] = 50
	_, err := r.QuickPlay(context.Background(), 1, "u")
	assert.ErrorIs(t, err, game.ErrInsufficientGold)
}

func TestQuickPlayJoinsClosestStake(t *testing.T) {
	r, ledger, _ := newTestRegistry(t, 10)
	ledger.gold[1] = 1_000_000
	ledger.gold[2] = 1_000_000
	ledger.gold[3] = 90_000
	ctx := context.Background()

	far, err := r.Create(ctx, 1, "a", soloSettings(100))
	require.NoError(t, err)
	near, err := r.Create(ctx, 2, "b", soloSettings(10_000))
	require.NoError(t, err)

	// Ideal stake is gold/3 = 30000; minGold 30000 beats minGold 300.
	m, err := r.QuickPlay(ctx, 3, "c")
	require.NoError(t, err)
	assert.Same(t, near, m)
	assert.NotEqual(t, far.ID, m.ID)
}

func TestQuickPlaySkipsPrivateTables(t *testing.T) {
	r, ledger, _ := newTestRegistry(t, 10)
	ledger.gold[1] = 100_000
	ledger.gold[2] = 100_000
	ctx := context.Background()

	private := soloSettings(10_000)
	private.IsPrivate = true
	_, err := r.Create(ctx, 1, "a", private)
	require.NoError(t, err)

	m, err := r.QuickPlay(ctx, 2, "b")
	require.NoError(t, err)
	assert.Equal(t, 1, m.NumPlayers())
	assert.Equal(t, 2, r.NumMatches())
}

func TestLeaveClearsMapping(t *testing.T) {
	r, ledger, _ := newTestRegistry(t, 10)
	ledger.gold[1] = 100_000
	ctx := context.Background()

	_, err := r.Create(ctx, 1, "u", soloSettings(1000))
	require.NoError(t, err)
	require.NoError(t, r.Leave(1))

	_, ok := r.MatchOf(1)
	assert.False(t, ok)

	// Free to sit down again.
	_, err = r.Create(ctx, 1, "u", soloSettings(1000))
	assert.NoError(t, err)
}

func TestStaleMappingSelfHeals(t *testing.T) {
	r, _, _ := newTestRegistry(t, 10)
	r.mu.Lock()
	r.byUser[7] = 9999
	r.mu.Unlock()

	_, ok := r.MatchOf(7)
	assert.False(t, ok)

	r.mu.Lock()
	_, still := r.byUser[7]
	r.mu.Unlock()
	assert.False(t, still)
}

func TestTickDestroysAbandonedTable(t *testing.T) {
	r, ledger, clock := newTestRegistry(t, 10)
	ledger.gold[1] = 100_000
	ctx := context.Background()

	_, err := r.Create(ctx, 1, "u", soloSettings(1000))
	require.NoError(t, err)
	require.NoError(t, r.Leave(1))
	require.Equal(t, 1, r.NumMatches())

	clock.Advance(game.DefaultRules().EndResetDelay)
	r.tickAll(ctx)
	assert.Zero(t, r.NumMatches())
}

func TestTableListOrdering(t *testing.T) {
	r, ledger, _ := newTestRegistry(t, 10)
	ledger.gold[1] = 1_000_000
	ledger.gold[2] = 1_000_000
	ctx := context.Background()

	_, err := r.Create(ctx, 1, "a", soloSettings(100))
	require.NoError(t, err)
	near, err := r.Create(ctx, 2, "b", soloSettings(30_000))
	require.NoError(t, err)

	list := r.TableList(90_000)
	require.Len(t, list.Tables, 2)
	assert.Equal(t, near.ID, list.Tables[0].MatchID)
}

func TestDisconnectBeforeStartVacatesSeat(t *testing.T) {
	r, ledger, _ := newTestRegistry(t, 10)
	ledger.gold[1] = 100_000
	ctx := context.Background()

	m, err := r.Create(ctx, 1, "u", soloSettings(1000))
	require.NoError(t, err)

	r.Disconnect(1)
	assert.Zero(t, m.NumPlayers())
	_, ok := r.MatchOf(1)
	assert.False(t, ok)
}
