// Package registry tracks every live table and routes users to them:
// explicit joins, quick-play pairing, and the scheduler that drives all
// match timers from a single ticker.
package registry

import (
	"context"
	"errors"
	"math/rand"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"

	"github.com/mazzetti/tressette/internal/deck"
	"github.com/mazzetti/tressette/internal/game"
	"github.com/mazzetti/tressette/internal/protocol"
)

// TickInterval is the scheduler cadence. Every match deadline has at
// worst this much jitter.
const TickInterval = 500 * time.Millisecond

var (
	ErrMatchNotFound = errors.New("match not found")
	ErrUserBusy      = errors.New("user already in a match")
	ErrBadSettings   = errors.New("invalid table settings")
)

// quickPlayCCUThreshold switches the fallback bet sizing between the
// generous low-population divisor and the regular one.
const quickPlayCCUThreshold = 100

// Registry owns the match map and the user-to-match index. Match ids
// are monotonic and never reused within a process.
type Registry struct {
	rules game.Rules
	bets  []int64 // configured quick-play bet tiers, ascending

	mu      sync.Mutex
	matches map[int64]*game.Match
	byUser  map[int64]int64
	nextID  int64

	caster game.Broadcaster
	ledger game.Ledger
	load   game.LoadMeter
	clock  quartz.Clock
	rng    *rand.Rand
	logger *log.Logger
}

// New constructs an empty registry. bets must be sorted ascending.
func New(rules game.Rules, bets []int64, caster game.Broadcaster, ledger game.Ledger, load game.LoadMeter, clock quartz.Clock, rng *rand.Rand, logger *log.Logger) *Registry {
	return &Registry{
		rules:   rules,
		bets:    bets,
		matches: make(map[int64]*game.Match),
		byUser:  make(map[int64]int64),
		nextID:  1000,
		caster:  caster,
		ledger:  ledger,
		load:    load,
		clock:   clock,
		rng:     rng,
		logger:  logger.WithPrefix("registry"),
	}
}

// Run drives every match's timers until the context ends.
func (r *Registry) Run(ctx context.Context) error {
	ticker := r.clock.NewTicker(TickInterval, "registry")
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.tickAll(ctx)
		}
	}
}

// tickAll advances every match. A panicking match is destroyed rather
// than allowed to take the scheduler down with it.
func (r *Registry) tickAll(ctx context.Context) {
	r.mu.Lock()
	snapshot := make(map[int64]*game.Match, len(r.matches))
	for id, m := range r.matches {
		snapshot[id] = m
	}
	r.mu.Unlock()

	for id, m := range snapshot {
		res, panicked := r.safeTick(ctx, m)
		if len(res.Removed) == 0 && !res.Destroy && !panicked {
			continue
		}
		r.mu.Lock()
		for _, uid := range res.Removed {
			if r.byUser[uid] == id {
				delete(r.byUser, uid)
			}
		}
		if res.Destroy || panicked {
			delete(r.matches, id)
			for uid, mid := range r.byUser {
				if mid == id {
					delete(r.byUser, uid)
				}
			}
			r.logger.Info("match destroyed", "match", id, "panicked", panicked)
		}
		r.mu.Unlock()
	}
}

func (r *Registry) safeTick(ctx context.Context, m *game.Match) (res game.TickResult, panicked bool) {
	defer func() {
		if rec := recover(); rec != nil {
			panicked = true
			r.logger.Error("match tick panicked", "match", m.ID,
				"panic", rec, "stack", string(debug.Stack()))
		}
	}()
	res = m.Tick(ctx)
	return res, false
}

func validSettings(s game.Settings) bool {
	if s.Bet <= 0 {
		return false
	}
	if s.PlayerMode != game.ModeSolo && s.PlayerMode != game.ModeDuo {
		return false
	}
	return s.PointMode == 11 || s.PointMode == 21
}

// Create makes a new table and seats the creator.
func (r *Registry) Create(ctx context.Context, uid int64, name string, settings game.Settings) (*game.Match, error) {
	if !validSettings(settings) {
		return nil, ErrBadSettings
	}
	if _, ok := r.MatchOf(uid); ok {
		return nil, ErrUserBusy
	}
	gold, err := r.ledger.Balance(ctx, uid)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	id := r.nextID
	r.nextID++
	seed := r.rng.Int63()
	r.mu.Unlock()

	m := game.NewMatch(id, settings, r.rules, r.caster, r.ledger, r.load,
		r.clock, rand.New(rand.NewSource(seed)), r.logger)
	if err := m.Join(ctx, uid, name, gold); err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.matches[id] = m
	r.byUser[uid] = id
	r.mu.Unlock()
	r.logger.Info("match created", "match", id, "uid", uid,
		"bet", settings.Bet, "mode", settings.PlayerMode)
	return m, nil
}

// JoinByID seats a user at an existing table.
func (r *Registry) JoinByID(ctx context.Context, uid int64, name string, matchID int64) (*game.Match, error) {
	if _, ok := r.MatchOf(uid); ok {
		return nil, ErrUserBusy
	}
	r.mu.Lock()
	m, ok := r.matches[matchID]
	r.mu.Unlock()
	if !ok {
		return nil, ErrMatchNotFound
	}
	gold, err := r.ledger.Balance(ctx, uid)
	if err != nil {
		return nil, err
	}
	if err := m.Join(ctx, uid, name, gold); err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.byUser[uid] = matchID
	r.mu.Unlock()
	return m, nil
}

// MatchOf returns the user's current match. Stale index entries, left
// behind if a match was destroyed out from under a mapping, are
// repaired on access.
func (r *Registry) MatchOf(uid int64) (*game.Match, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byUser[uid]
	if !ok {
		return nil, false
	}
	m, ok := r.matches[id]
	if !ok {
		delete(r.byUser, uid)
		return nil, false
	}
	return m, true
}

// QuickPlay finds the best open table for the user's bankroll, or
// creates one when nothing suitable exists.
func (r *Registry) QuickPlay(ctx context.Context, uid int64, name string) (*game.Match, error) {
	if _, ok := r.MatchOf(uid); ok {
		return nil, ErrUserBusy
	}
	gold, err := r.ledger.Balance(ctx, uid)
	if err != nil {
		return nil, err
	}

	if m := r.pickTable(gold); m != nil {
		if err := m.Join(ctx, uid, name, gold); err == nil {
			r.mu.Lock()
			r.byUser[uid] = m.ID
			r.mu.Unlock()
			return m, nil
		}
		// Raced to a full or started table; fall through and create.
	}

	settings := game.Settings{
		Bet:        r.fallbackBet(gold),
		PlayerMode: game.ModeSolo,
		PointMode:  11,
	}
	if settings.Bet <= 0 {
		return nil, game.ErrInsufficientGold
	}
	return r.Create(ctx, uid, name, settings)
}

// pickTable chooses among joinable public tables: mode preference is
// randomized so neither solo nor duo starves, then the stake closest to
// a third of the bankroll wins.
func (r *Registry) pickTable(gold int64) *game.Match {
	r.mu.Lock()
	candidates := make([]*game.Match, 0, len(r.matches))
	for _, m := range r.matches {
		s := m.Settings()
		if !m.IsPublic() || s.Bet <= 0 {
			continue
		}
		if m.State() != game.Waiting || m.IsFull() {
			continue
		}
		if gold < s.MinGold(r.rules) {
			continue
		}
		candidates = append(candidates, m)
	}
	preferSolo := r.rng.Intn(2) == 0
	r.mu.Unlock()

	if len(candidates) == 0 {
		return nil
	}

	idealStake := gold / 3
	distance := func(m *game.Match) int64 {
		d := m.Settings().MinGold(r.rules) - idealStake
		if d < 0 {
			d = -d
		}
		return d
	}
	sort.Slice(candidates, func(i, j int) bool {
		si, sj := candidates[i].Settings(), candidates[j].Settings()
		soloI := si.PlayerMode == game.ModeSolo
		soloJ := sj.PlayerMode == game.ModeSolo
		if soloI != soloJ {
			return soloI == preferSolo
		}
		return distance(candidates[i]) < distance(candidates[j])
	})
	return candidates[0]
}

// fallbackBet sizes a fresh quick-play table from the bankroll: a tenth
// of it while the server is quiet, a sixth once populated, snapped down
// to the nearest configured tier.
func (r *Registry) fallbackBet(gold int64) int64 {
	expect := gold / 6
	if r.load.Online() < quickPlayCCUThreshold {
		expect = gold / 10
	}
	var bet int64
	for _, tier := range r.bets {
		if tier <= expect && tier > bet {
			bet = tier
		}
	}
	return bet
}

// TableList returns up to 20 joinable public tables, waiting tables
// first and stakes nearest a third of the caller's bankroll ahead.
func (r *Registry) TableList(gold int64) protocol.TableList {
	r.mu.Lock()
	snapshot := make([]*game.Match, 0, len(r.matches))
	for _, m := range r.matches {
		if m.IsPublic() {
			snapshot = append(snapshot, m)
		}
	}
	r.mu.Unlock()

	idealStake := gold / 3
	distance := func(m *game.Match) int64 {
		d := m.Settings().Bet - idealStake
		if d < 0 {
			d = -d
		}
		return d
	}
	sort.Slice(snapshot, func(i, j int) bool {
		wi := snapshot[i].State() == game.Waiting
		wj := snapshot[j].State() == game.Waiting
		if wi != wj {
			return wi
		}
		return distance(snapshot[i]) < distance(snapshot[j])
	})

	list := protocol.TableList{}
	for _, m := range snapshot {
		if len(list.Tables) == 20 {
			break
		}
		s := m.Settings()
		list.Tables = append(list.Tables, protocol.TableEntry{
			MatchID:    m.ID,
			Bet:        s.Bet,
			PlayerMode: s.PlayerMode,
			NumPlayers: m.NumPlayers(),
		})
	}
	return list
}

// Leave removes the user from their table immediately. Fails once the
// game has started; started games use RegisterLeave.
func (r *Registry) Leave(uid int64) error {
	m, ok := r.MatchOf(uid)
	if !ok {
		return ErrMatchNotFound
	}
	if err := m.Leave(uid); err != nil {
		return err
	}
	r.mu.Lock()
	delete(r.byUser, uid)
	r.mu.Unlock()
	return nil
}

// RegisterLeave flags or unflags a boundary leave on the user's match.
func (r *Registry) RegisterLeave(uid int64, status int) error {
	m, ok := r.MatchOf(uid)
	if !ok {
		return ErrMatchNotFound
	}
	return m.RegisterLeave(uid, status)
}

// Chat relays table chat for the user's match.
func (r *Registry) Chat(uid int64, message string, emoticon int) {
	if m, ok := r.MatchOf(uid); ok {
		m.Chat(uid, message, emoticon)
	}
}

// PlayCard forwards a play to the user's match.
func (r *Registry) PlayCard(uid int64, card deck.Card) error {
	m, ok := r.MatchOf(uid)
	if !ok {
		return ErrMatchNotFound
	}
	return m.PlayCard(uid, card)
}

// Reconnect restores a user's session into their running match, if any.
// Returns whether the user was seated somewhere.
func (r *Registry) Reconnect(uid int64) bool {
	m, ok := r.MatchOf(uid)
	if !ok {
		return false
	}
	return m.Reconnect(uid) == nil
}

// Disconnect handles a dropped socket: an unstarted seat is vacated,
// a mid-game seat plays on under its turn timer.
func (r *Registry) Disconnect(uid int64) {
	m, ok := r.MatchOf(uid)
	if !ok {
		return
	}
	if m.CanQuit() {
		if err := m.Leave(uid); err == nil {
			r.mu.Lock()
			delete(r.byUser, uid)
			r.mu.Unlock()
			return
		}
	}
	m.Disconnect(uid)
}

// NumMatches returns the live table count.
func (r *Registry) NumMatches() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.matches)
}
