// Package ledger owns user records and gold accounting. Balances are
// served from an in-process cache during play and flushed to the
// backing store at commit points, mirroring how settlement works: the
// store never sees a mid-game balance.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// ErrUserNotFound indicates the user id or credential matches no record.
var ErrUserNotFound = errors.New("ledger: user not found")

// User is one account record.
type User struct {
	ID         int64
	Name       string
	Credential string // login secret handed out at guest creation
	Guest      bool
	Gold       int64
	Exp        int64
	Games      int
	Wins       int
	CreatedAt  time.Time
}

// Store is the durable side of the ledger.
type Store interface {
	CreateGuest(ctx context.Context, name string, credential string, gold int64) (*User, error)
	UserByCredential(ctx context.Context, credential string) (*User, error)
	UserByID(ctx context.Context, id int64) (*User, error)
	SaveGold(ctx context.Context, uid int64, gold int64) error
	SaveStats(ctx context.Context, uid int64, expGain int64, games, wins int) error
}

type account struct {
	gold  int64
	dirty bool
}

// Ledger caches balances over a Store. It satisfies the match engine's
// ledger interface.
type Ledger struct {
	store  Store
	logger *log.Logger

	mu       sync.Mutex
	accounts map[int64]*account
}

// New wraps a store with the balance cache.
func New(store Store, logger *log.Logger) *Ledger {
	return &Ledger{
		store:    store,
		logger:   logger.WithPrefix("ledger"),
		accounts: make(map[int64]*account),
	}
}

// Store exposes the backing store for user lookup paths.
func (l *Ledger) Store() Store { return l.store }

func (l *Ledger) loadLocked(ctx context.Context, uid int64) (*account, error) {
	if acct, ok := l.accounts[uid]; ok {
		return acct, nil
	}
	u, err := l.store.UserByID(ctx, uid)
	if err != nil {
		return nil, fmt.Errorf("load account %d: %w", uid, err)
	}
	acct := &account{gold: u.Gold}
	l.accounts[uid] = acct
	return acct, nil
}

// Balance returns the current (possibly uncommitted) balance.
func (l *Ledger) Balance(ctx context.Context, uid int64) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	acct, err := l.loadLocked(ctx, uid)
	if err != nil {
		return 0, err
	}
	return acct.gold, nil
}

// AddGold applies a delta to the cached balance and returns the result.
// The change is not durable until CommitGold.
func (l *Ledger) AddGold(ctx context.Context, uid int64, delta int64) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	acct, err := l.loadLocked(ctx, uid)
	if err != nil {
		return 0, err
	}
	acct.gold += delta
	acct.dirty = true
	return acct.gold, nil
}

// CommitGold flushes the cached balance to the store.
func (l *Ledger) CommitGold(ctx context.Context, uid int64) error {
	l.mu.Lock()
	acct, ok := l.accounts[uid]
	if !ok || !acct.dirty {
		l.mu.Unlock()
		return nil
	}
	gold := acct.gold
	acct.dirty = false
	l.mu.Unlock()

	if err := l.store.SaveGold(ctx, uid, gold); err != nil {
		l.mu.Lock()
		acct.dirty = true
		l.mu.Unlock()
		return fmt.Errorf("commit gold for %d: %w", uid, err)
	}
	return nil
}

// AddStats records a finished game directly against the store.
func (l *Ledger) AddStats(ctx context.Context, uid int64, expGain int64, games, wins int) error {
	return l.store.SaveStats(ctx, uid, expGain, games, wins)
}

// Evict drops a user's cache entry, flushing first if needed. Called on
// logout so abandoned sessions do not pin balances forever.
func (l *Ledger) Evict(ctx context.Context, uid int64) {
	if err := l.CommitGold(ctx, uid); err != nil {
		l.logger.Error("flush on evict failed", "uid", uid, "error", err)
		return
	}
	l.mu.Lock()
	delete(l.accounts, uid)
	l.mu.Unlock()
}
