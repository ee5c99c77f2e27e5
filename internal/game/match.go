// Package game implements the per-table Tressette state machine:
// seating, dealing, trick resolution, scoring, the betting pot and
// settlement, turn timers with auto-play, and bot turns. A match never
// talks to a socket directly; outbound events go through the injected
// Broadcaster and balance changes through the injected Ledger.
package game

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"

	"github.com/mazzetti/tressette/internal/bot"
	"github.com/mazzetti/tressette/internal/deck"
	"github.com/mazzetti/tressette/internal/protocol"
)

// State is the match lifecycle phase.
type State int

const (
	Waiting State = iota
	PreparingStart
	Playing
	Ended
)

func (s State) String() string {
	switch s {
	case Waiting:
		return "waiting"
	case PreparingStart:
		return "preparing"
	case Playing:
		return "playing"
	case Ended:
		return "ended"
	default:
		return "unknown"
	}
}

// Player modes.
const (
	ModeSolo = 2
	ModeDuo  = 4
)

// Game-rule violations and join failures. Handlers map these to wire
// rejection codes; none of them leaves the match mutated.
var (
	ErrNotPlaying       = errors.New("game is not in progress")
	ErrTrickResolving   = errors.New("trick already complete")
	ErrNotYourTurn      = errors.New("not your turn")
	ErrCardNotHeld      = errors.New("card not in hand")
	ErrMustFollowSuit   = errors.New("must follow the lead suit")
	ErrAlreadySeated    = errors.New("user already seated")
	ErrMatchFull        = errors.New("match is full")
	ErrMatchStarted     = errors.New("match already started")
	ErrInsufficientGold = errors.New("not enough gold")
	ErrNotInMatch       = errors.New("user not in this match")
)

// Broadcaster delivers frames to connected users. Implemented by the
// session layer; tests use a recorder. Sends to bots or disconnected
// users are silently dropped by the implementation.
type Broadcaster interface {
	SendToUser(uid int64, frame *protocol.Frame)
}

// Ledger is the narrow slice of the balance store a match needs.
// Economic mutations must be durably committed before the matching
// UpdateMoney frame is sent.
type Ledger interface {
	Balance(ctx context.Context, uid int64) (int64, error)
	AddGold(ctx context.Context, uid int64, delta int64) (int64, error)
	CommitGold(ctx context.Context, uid int64) error
	AddStats(ctx context.Context, uid int64, expGain int64, games, wins int) error
}

// LoadMeter reports the concurrent-user count, used to throttle bot
// auto-seating under load.
type LoadMeter interface {
	Online() int
}

// Rules is the per-server engine configuration shared by all matches.
type Rules struct {
	TurnTime         time.Duration // regular turn deadline
	ShortTurnTime    time.Duration // deadline for flagged slow players
	PrepareCountdown time.Duration
	TrickDelay       time.Duration // pause between a full trick and its resolution
	EndResetDelay    time.Duration // pause in Ended before returning to Waiting
	BotFillDelay     time.Duration // empty-seat grace before a bot is seated
	BotThinkMin      time.Duration
	BotThinkMax      time.Duration
	MaxMatchTime     time.Duration
	ChatCooldown     time.Duration
	BetMultiplierMin int64 // minimum buy-in = bet * this
	TaxPercent       int64 // withheld from each winner payout
	BotCCULimit      int   // no bot fill above this concurrent-user count
	BotEvictPercent  int   // chance a solvent bot leaves after a game
	SearchDepth      int   // minimax lookahead in tricks
}

// DefaultRules returns the production rule set.
func DefaultRules() Rules {
	return Rules{
		TurnTime:         15 * time.Second,
		ShortTurnTime:    5 * time.Second,
		PrepareCountdown: 3 * time.Second,
		TrickDelay:       500 * time.Millisecond,
		EndResetDelay:    5 * time.Second,
		BotFillDelay:     4 * time.Second,
		BotThinkMin:      800 * time.Millisecond,
		BotThinkMax:      2500 * time.Millisecond,
		MaxMatchTime:     30 * time.Minute,
		ChatCooldown:     2 * time.Second,
		BetMultiplierMin: 3,
		TaxPercent:       5,
		BotCCULimit:      500,
		BotEvictPercent:  30,
		SearchDepth:      bot.DefaultSearchDepth,
	}
}

// Settings are the per-table parameters chosen at creation.
type Settings struct {
	Bet        int64
	PlayerMode int // ModeSolo or ModeDuo
	PointMode  int // 11 or 21 human points
	IsPrivate  bool
}

// Target returns the winning score in server points.
func (s Settings) Target() int {
	return s.PointMode * 3
}

// MinGold returns the buy-in floor for the table.
func (s Settings) MinGold(rules Rules) int64 {
	return s.Bet * rules.BetMultiplierMin
}

// Player is one occupied seat.
type Player struct {
	UserID   int64
	Name     string
	Gold     int64 // in-match mirror of the balance; authoritative for bots
	Bot      bool
	Strategy bot.Strategy

	Hand      []deck.Card
	Team      int
	Connected bool

	AutoPlays   int  // consecutive timeouts
	FlaggedSlow bool // shortened deadline + priority removal
	WantsLeave  bool // honored at the next game boundary

	goldDelta int64 // net result of the current game
	anteDebt  int64 // in-flight antes, reconciled at settlement
	lastChat  time.Time
}

// Seat is Empty or holds exactly one occupant.
type Seat struct {
	player *Player
}

// Empty reports whether the seat is unoccupied.
func (s Seat) Empty() bool { return s.player == nil }

// Occupant returns the seated player, if any.
func (s Seat) Occupant() (*Player, bool) { return s.player, s.player != nil }

// Match is one table. All exported methods lock the match; the engine
// holds no locks while calling the Ledger or Broadcaster would be ideal
// but sends are non-blocking buffered writes, so holding the match lock
// across them is safe.
type Match struct {
	ID       int64
	settings Settings
	rules    Rules

	mu    sync.Mutex
	state State
	seats []Seat

	deck        *deck.Deck
	trick       []deck.Card // per-seat card, NoCard when unplayed
	leadSeat    int         // seat that opened the current trick
	currentTurn int         // -1 between trick resolution and next start
	round       int
	trickNo     int

	pot           int64
	teamTotal     [2]int // server points including bonuses and carry
	teamRoundCard [2]int // card points earned this round, pre-strip

	// Named deadlines, zero when unarmed. All state transitions that
	// obsolete a deadline clear it.
	prepareAt      time.Time
	botFillAt      time.Time
	turnDeadlineAt time.Time
	botActAt       time.Time
	trickResolveAt time.Time
	endResetAt     time.Time
	matchExpiresAt time.Time

	emptySince time.Time // set while no seat is occupied

	clock     quartz.Clock
	rng       *rand.Rand
	logger    *log.Logger
	caster    Broadcaster
	ledger    Ledger
	load      LoadMeter
	nextBotID int64
}

// NewMatch creates an empty table.
func NewMatch(id int64, settings Settings, rules Rules, caster Broadcaster, ledger Ledger, load LoadMeter, clock quartz.Clock, rng *rand.Rand, logger *log.Logger) *Match {
	numSeats := settings.PlayerMode
	m := &Match{
		ID:          id,
		settings:    settings,
		rules:       rules,
		state:       Waiting,
		seats:       make([]Seat, numSeats),
		trick:       make([]deck.Card, numSeats),
		currentTurn: -1,
		clock:       clock,
		rng:         rng,
		logger:      logger.WithPrefix("match").With("match", id),
		caster:      caster,
		ledger:      ledger,
		load:        load,
		nextBotID:   -1,
	}
	for i := range m.trick {
		m.trick[i] = deck.NoCard
	}
	m.deck = deck.NewDeck(rng)
	m.emptySince = clock.Now()
	return m
}

// Settings returns the table parameters.
func (m *Match) Settings() Settings { return m.settings }

// State returns the current lifecycle phase.
func (m *Match) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// teamOf maps a seat to its team: solo plays every seat for itself,
// duo pairs opposite seats.
func (m *Match) teamOf(seat int) int {
	if m.settings.PlayerMode == ModeSolo {
		return seat
	}
	return seat % 2
}

// NumPlayers returns the number of occupied seats.
func (m *Match) NumPlayers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.numPlayersLocked()
}

func (m *Match) numPlayersLocked() int {
	n := 0
	for _, s := range m.seats {
		if !s.Empty() {
			n++
		}
	}
	return n
}

// IsFull reports whether every seat is occupied.
func (m *Match) IsFull() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.isFullLocked()
}

func (m *Match) isFullLocked() bool {
	for _, s := range m.seats {
		if s.Empty() {
			return false
		}
	}
	return true
}

// HasHumans reports whether any connected-or-not human occupies a seat.
func (m *Match) HasHumans() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hasHumansLocked()
}

func (m *Match) hasHumansLocked() bool {
	for _, s := range m.seats {
		if p, ok := s.Occupant(); ok && !p.Bot {
			return true
		}
	}
	return false
}

// IsPublic reports whether the table shows up in listings and pairing.
func (m *Match) IsPublic() bool { return !m.settings.IsPrivate }

// CanQuit reports whether a leave is honored immediately.
func (m *Match) CanQuit() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == Waiting || m.state == PreparingStart
}

func (m *Match) seatOf(uid int64) int {
	for i, s := range m.seats {
		if p, ok := s.Occupant(); ok && p.UserID == uid {
			return i
		}
	}
	return -1
}

// Join seats a user. Checks run in order: duplicate seat, started,
// full, buy-in. The joiner gets a snapshot, everyone else an event.
func (m *Match) Join(ctx context.Context, uid int64, name string, gold int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.seatOf(uid) >= 0 {
		return ErrAlreadySeated
	}
	if m.state != Waiting {
		return ErrMatchStarted
	}
	seat := -1
	for i, s := range m.seats {
		if s.Empty() {
			seat = i
			break
		}
	}
	if seat < 0 {
		return ErrMatchFull
	}
	if gold < m.settings.MinGold(m.rules) {
		return ErrInsufficientGold
	}

	p := &Player{
		UserID:    uid,
		Name:      name,
		Gold:      gold,
		Team:      m.teamOf(seat),
		Connected: true,
	}
	m.seats[seat] = Seat{player: p}
	m.logger.Info("user joined", "uid", uid, "seat", seat)

	m.broadcastExcept(uid, protocol.MustFrame(protocol.CmdNewUserJoinMatch, protocol.NewUserJoinMatch{
		UserID: uid, Name: name, Gold: gold, Seat: seat,
	}))
	m.sendSnapshotLocked(uid)

	m.afterSeatChangeLocked()
	return nil
}

// afterSeatChangeLocked re-evaluates fill timers and the prepare
// transition after any seat mutation in Waiting.
func (m *Match) afterSeatChangeLocked() {
	if m.numPlayersLocked() == 0 {
		if m.emptySince.IsZero() {
			m.emptySince = m.clock.Now()
		}
	} else {
		m.emptySince = time.Time{}
	}
	if m.state != Waiting {
		return
	}
	if m.isFullLocked() {
		m.botFillAt = time.Time{}
		m.beginPrepareLocked()
		return
	}
	if m.hasHumansLocked() && m.botFillAt.IsZero() {
		m.botFillAt = m.clock.Now().Add(m.rules.BotFillDelay)
	}
}

// beginPrepareLocked kicks non-ready (disconnected) humans, then starts
// the countdown if the room survived the check full.
func (m *Match) beginPrepareLocked() {
	for i, s := range m.seats {
		if p, ok := s.Occupant(); ok && !p.Bot && !p.Connected {
			m.logger.Info("kicking non-ready occupant", "uid", p.UserID, "seat", i)
			m.removeSeatLocked(i)
		}
	}
	if !m.isFullLocked() {
		m.afterSeatChangeLocked()
		return
	}
	m.state = PreparingStart
	m.prepareAt = m.clock.Now().Add(m.rules.PrepareCountdown)
	m.broadcast(protocol.MustFrame(protocol.CmdPrepareStart, protocol.PrepareStart{
		CountdownMS: m.rules.PrepareCountdown.Milliseconds(),
	}))
}

// removeSeatLocked empties a seat and tells the remaining occupants.
func (m *Match) removeSeatLocked(seat int) *Player {
	p, ok := m.seats[seat].Occupant()
	if !ok {
		return nil
	}
	m.seats[seat] = Seat{}
	m.broadcast(protocol.MustFrame(protocol.CmdUserLeaveMatch, protocol.UserLeaveMatch{
		UserID: p.UserID, Seat: seat,
	}))
	return p
}

// Leave removes a user while the table has not started. Started games
// defer to RegisterLeave.
func (m *Match) Leave(uid int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	seat := m.seatOf(uid)
	if seat < 0 {
		return ErrNotInMatch
	}
	if m.state != Waiting && m.state != PreparingStart {
		return ErrMatchStarted
	}
	m.removeSeatLocked(seat)
	if m.state == PreparingStart {
		// Fill failed before the countdown expired.
		m.state = Waiting
		m.prepareAt = time.Time{}
	}
	m.afterSeatChangeLocked()
	return nil
}

// RegisterLeave flags (status 0) or unflags (status 1) a leave to be
// honored at the next game boundary.
func (m *Match) RegisterLeave(uid int64, status int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	seat := m.seatOf(uid)
	if seat < 0 {
		return ErrNotInMatch
	}
	p, _ := m.seats[seat].Occupant()
	p.WantsLeave = status == 0
	return nil
}

// Reconnect marks the user connected again and resends the complete
// snapshot. No message history is kept, so the snapshot must suffice.
func (m *Match) Reconnect(uid int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	seat := m.seatOf(uid)
	if seat < 0 {
		return ErrNotInMatch
	}
	p, _ := m.seats[seat].Occupant()
	p.Connected = true
	m.sendSnapshotLocked(uid)
	return nil
}

// Disconnect marks the user gone. While Waiting the caller (registry)
// should follow up with Leave; mid-game the seat plays on under the
// turn timer and is removed at the next boundary.
func (m *Match) Disconnect(uid int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	seat := m.seatOf(uid)
	if seat < 0 {
		return
	}
	p, _ := m.seats[seat].Occupant()
	p.Connected = false
}

// Chat relays a chat message to the table, subject to a per-user
// cooldown.
func (m *Match) Chat(uid int64, message string, emoticon int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	seat := m.seatOf(uid)
	if seat < 0 {
		return
	}
	p, _ := m.seats[seat].Occupant()
	now := m.clock.Now()
	if now.Sub(p.lastChat) < m.rules.ChatCooldown {
		return
	}
	p.lastChat = now
	m.broadcast(protocol.MustFrame(protocol.CmdChatMessage, protocol.ChatBroadcast{
		UserID: uid, Message: message, Emoticon: emoticon,
	}))
}

// broadcast sends a frame to every seated human. Bots and empty seats
// are skipped; the Broadcaster drops frames for disconnected users.
func (m *Match) broadcast(frame *protocol.Frame) {
	m.broadcastExcept(0, frame)
}

func (m *Match) broadcastExcept(excludeUID int64, frame *protocol.Frame) {
	for _, s := range m.seats {
		p, ok := s.Occupant()
		if !ok || p.Bot || p.UserID == excludeUID {
			continue
		}
		m.caster.SendToUser(p.UserID, frame)
	}
}

// sendSnapshotLocked sends the complete GameInfo to one user.
func (m *Match) sendSnapshotLocked(uid int64) {
	m.caster.SendToUser(uid, protocol.MustFrame(protocol.CmdGameInfo, m.snapshotLocked(uid)))
}

func (m *Match) snapshotLocked(uid int64) protocol.GameInfo {
	info := protocol.GameInfo{
		MatchID:     m.ID,
		State:       m.state.String(),
		PlayerMode:  m.settings.PlayerMode,
		PointMode:   m.settings.PointMode,
		Bet:         m.settings.Bet,
		Pot:         m.pot,
		CurrentTurn: m.currentTurn,
		TeamScores:  []int{m.teamTotal[0], m.teamTotal[1]},
		Round:       m.round,
		RemainCards: m.deck.Remaining(),
	}
	if !m.turnDeadlineAt.IsZero() {
		info.TurnDeadline = m.turnDeadlineAt.UnixMilli()
	}
	for _, c := range m.trick {
		info.Trick = append(info.Trick, int(c))
	}
	for _, s := range m.seats {
		p, ok := s.Occupant()
		if !ok {
			info.Seats = append(info.Seats, protocol.SeatInfo{})
			continue
		}
		info.Seats = append(info.Seats, protocol.SeatInfo{
			Occupied:  true,
			UserID:    p.UserID,
			Name:      p.Name,
			Gold:      p.Gold,
			Bot:       p.Bot,
			Team:      p.Team,
			HandSize:  len(p.Hand),
			Connected: p.Connected,
		})
		if p.UserID == uid {
			for _, c := range p.Hand {
				info.MyCards = append(info.MyCards, int(c))
			}
		}
	}
	return info
}
