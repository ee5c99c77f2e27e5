package game

import (
	"context"
	"fmt"
	"time"

	"github.com/mazzetti/tressette/internal/bot"
	"github.com/mazzetti/tressette/internal/deck"
	"github.com/mazzetti/tressette/internal/protocol"
)

// TickResult tells the registry what housekeeping a tick produced.
type TickResult struct {
	// Removed lists users unseated during the tick, so the registry can
	// drop its user-to-match mappings.
	Removed []int64
	// Destroy is set once the table should be unregistered.
	Destroy bool
}

func due(t, now time.Time) bool {
	return !t.IsZero() && !now.Before(t)
}

// Tick advances every armed deadline that has expired. The registry
// scheduler calls it on a fixed cadence; all timing therefore has tick
// granularity, which the deadlines' durations dwarf.
func (m *Match) Tick(ctx context.Context) TickResult {
	m.mu.Lock()
	defer m.mu.Unlock()

	var res TickResult
	now := m.clock.Now()

	if due(m.matchExpiresAt, now) && m.state == Playing {
		m.logger.Warn("match exceeded maximum duration, forcing settlement")
		m.endGameLocked(ctx)
	}
	if due(m.prepareAt, now) && m.state == PreparingStart {
		m.prepareAt = time.Time{}
		m.startGameLocked(ctx)
	}
	if due(m.botFillAt, now) {
		m.fillBotSeatLocked()
	}
	if due(m.trickResolveAt, now) && m.state == Playing {
		m.resolveTrickLocked(ctx)
	}
	if due(m.turnDeadlineAt, now) && m.state == Playing {
		m.autoPlayLocked()
	}
	if due(m.botActAt, now) && m.state == Playing {
		m.botPlayLocked()
	}
	if due(m.endResetAt, now) && m.state == Ended {
		res.Removed = append(res.Removed, m.resetAfterGameLocked()...)
	}

	// A table with bots but no humans has nobody left to wait for.
	if m.state == Waiting && m.numPlayersLocked() > 0 && !m.hasHumansLocked() {
		for i := range m.seats {
			if p, ok := m.seats[i].Occupant(); ok {
				m.removeSeatLocked(i)
				res.Removed = append(res.Removed, p.UserID)
			}
		}
		m.emptySince = now
	}
	if m.state == Waiting && !m.emptySince.IsZero() &&
		now.Sub(m.emptySince) >= m.rules.EndResetDelay {
		res.Destroy = true
	}
	return res
}

var botNames = []string{
	"Aldo", "Bruna", "Carlo", "Dario", "Elena", "Franca",
	"Giulia", "Luca", "Marco", "Matteo", "Paolo", "Sara",
}

// fillBotSeatLocked seats one bot in the first empty seat. Fill is
// skipped above the concurrent-user ceiling so bots never compete with
// humans for capacity, and retried later instead of abandoned.
func (m *Match) fillBotSeatLocked() {
	m.botFillAt = time.Time{}
	if m.state != Waiting || !m.hasHumansLocked() {
		return
	}
	if m.load.Online() > m.rules.BotCCULimit {
		m.botFillAt = m.clock.Now().Add(m.rules.BotFillDelay)
		return
	}
	seat := -1
	for i, s := range m.seats {
		if s.Empty() {
			seat = i
			break
		}
	}
	if seat < 0 {
		return
	}

	uid := m.nextBotID
	m.nextBotID--

	var strat bot.Strategy
	if m.settings.PlayerMode == ModeSolo {
		strat = bot.NewMinimax(m.rules.SearchDepth)
	} else if m.rng.Intn(2) == 0 {
		strat = bot.NewGreedy()
	} else {
		strat = bot.NewLookahead()
	}

	p := &Player{
		UserID: uid,
		Name:   fmt.Sprintf("%s_%d", botNames[m.rng.Intn(len(botNames))], -uid),
		// Bots carry a plausible bankroll so the table UI and the
		// settlement caps behave as they do for humans.
		Gold:      m.settings.Bet*5 + m.rng.Int63n(m.settings.Bet*5),
		Bot:       true,
		Strategy:  strat,
		Team:      m.teamOf(seat),
		Connected: true,
	}
	m.seats[seat] = Seat{player: p}
	m.logger.Info("bot seated", "uid", uid, "seat", seat, "strategy", strat.Name())

	m.broadcast(protocol.MustFrame(protocol.CmdNewUserJoinMatch, protocol.NewUserJoinMatch{
		UserID: uid, Name: p.Name, Gold: p.Gold, Seat: seat, Bot: true,
	}))
	m.afterSeatChangeLocked()
}

// tableCardsLocked returns the current trick in play order.
func (m *Match) tableCardsLocked() []deck.Card {
	var out []deck.Card
	for i := 0; i < len(m.seats); i++ {
		c := m.trick[(m.leadSeat+i)%len(m.seats)]
		if c == deck.NoCard {
			break
		}
		out = append(out, c)
	}
	return out
}

// autoPlayLocked plays the weakest legal card for a human whose turn
// timer expired. Three consecutive timeouts flag the seat: shorter
// deadlines now, removal at the next game boundary.
func (m *Match) autoPlayLocked() {
	m.turnDeadlineAt = time.Time{}
	if m.currentTurn < 0 {
		return
	}
	p, ok := m.seats[m.currentTurn].Occupant()
	if !ok || p.Bot {
		return
	}

	p.AutoPlays++
	if p.AutoPlays >= 3 && !p.FlaggedSlow {
		p.FlaggedSlow = true
		m.logger.Info("flagging slow player", "uid", p.UserID, "timeouts", p.AutoPlays)
	}

	view := m.viewForLocked(m.currentTurn)
	card := bot.NewWeakest(m.rng).ChooseCard(view)
	if err := m.playCardLocked(p.UserID, card, true); err != nil {
		m.logger.Error("auto-play rejected", "uid", p.UserID, "card", card, "error", err)
	}
}

// botPlayLocked asks the seated strategy for a card once its thinking
// delay expires.
func (m *Match) botPlayLocked() {
	m.botActAt = time.Time{}
	if m.currentTurn < 0 {
		return
	}
	p, ok := m.seats[m.currentTurn].Occupant()
	if !ok || !p.Bot || p.Strategy == nil {
		return
	}

	view := m.viewForLocked(m.currentTurn)
	card := p.Strategy.ChooseCard(view)
	if err := m.playCardLocked(p.UserID, card, false); err != nil {
		m.logger.Error("bot play rejected", "uid", p.UserID,
			"strategy", p.Strategy.Name(), "card", card, "error", err)
		// Never let a buggy strategy stall the table.
		fallback := bot.NewWeakest(m.rng).ChooseCard(view)
		if err := m.playCardLocked(p.UserID, fallback, true); err != nil {
			m.logger.Error("bot fallback rejected", "uid", p.UserID, "error", err)
		}
	}
}

// viewForLocked builds the decision view for a seat. Solo tables expose
// the opponent's hand and the split of the draw pile, which the
// searching strategies consume; duo strategies ignore those fields.
func (m *Match) viewForLocked(seat int) bot.View {
	p, _ := m.seats[seat].Occupant()
	view := bot.View{
		Hand:     p.Hand,
		Table:    m.tableCardsLocked(),
		OwnScore: m.teamTotal[p.Team],
		OppScore: m.teamTotal[(p.Team+1)%2],
		Target:   m.settings.Target(),
	}
	if lead, ok := m.leadSuitLocked(); ok {
		view.LeadSuit = lead
	}
	if m.settings.PlayerMode == ModeSolo {
		if opp, ok := m.seats[1-seat].Occupant(); ok {
			view.OppHand = opp.Hand
		}
		// The search models draws as strictly alternating, so split the
		// pile the same way.
		for i, c := range m.deck.Upcoming() {
			if i%2 == 0 {
				view.OwnDraws = append(view.OwnDraws, c)
			} else {
				view.OppDraws = append(view.OppDraws, c)
			}
		}
	}
	return view
}
