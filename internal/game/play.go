package game

import (
	"context"
	"time"

	"github.com/mazzetti/tressette/internal/deck"
	"github.com/mazzetti/tressette/internal/protocol"
)

// startGameLocked runs on countdown expiry with a full room: counters
// reset, antes move into the pot, ten cards per seat, remainder to the
// draw pile.
func (m *Match) startGameLocked(ctx context.Context) {
	m.state = Playing
	m.prepareAt = time.Time{}
	m.round = 0
	m.trickNo = 0
	m.teamTotal = [2]int{}
	m.teamRoundCard = [2]int{}
	m.pot = 0
	m.matchExpiresAt = m.clock.Now().Add(m.rules.MaxMatchTime)

	for _, s := range m.seats {
		if p, ok := s.Occupant(); ok {
			p.goldDelta = 0
			p.anteDebt = 0
			p.AutoPlays = 0
		}
	}

	m.collectAntesLocked(ctx)
	m.broadcast(protocol.MustFrame(protocol.CmdStartGame, protocol.StartGame{
		MatchID: m.ID, Pot: m.pot,
	}))
	m.logger.Info("game started", "pot", m.pot, "bet", m.settings.Bet)

	m.dealRoundLocked(0)
}

// collectAntesLocked withdraws one ante per occupant into the pot. The
// withdrawal is committed to the ledger immediately and also recorded
// as in-flight debt so settlement can reconcile it.
func (m *Match) collectAntesLocked(ctx context.Context) {
	ante := m.settings.Bet
	for _, s := range m.seats {
		p, ok := s.Occupant()
		if !ok {
			continue
		}
		amount := ante
		if p.Gold < amount {
			amount = p.Gold
		}
		p.Gold -= amount
		p.goldDelta -= amount
		p.anteDebt += amount
		m.pot += amount

		if !p.Bot {
			if _, err := m.ledger.AddGold(ctx, p.UserID, -amount); err != nil {
				m.logger.Error("ante withdrawal failed", "uid", p.UserID, "error", err)
				continue
			}
			if err := m.ledger.CommitGold(ctx, p.UserID); err != nil {
				m.logger.Error("ante commit failed", "uid", p.UserID, "error", err)
			}
			m.caster.SendToUser(p.UserID, protocol.MustFrame(protocol.CmdUpdateMoney, protocol.UpdateMoney{Gold: p.Gold}))
		}
	}
}

// dealRoundLocked shuffles a fresh deck, deals ten cards per seat and
// credits napoli bonuses. leader opens the first trick.
func (m *Match) dealRoundLocked(leader int) {
	m.deck.Reset()
	m.teamRoundCard = [2]int{}
	m.trickNo = 0
	m.clearTrickLocked()

	for i := range m.seats {
		p, ok := m.seats[i].Occupant()
		if !ok {
			continue
		}
		p.Hand = m.deck.DealN(10)
	}

	for i := range m.seats {
		p, ok := m.seats[i].Occupant()
		if !ok {
			continue
		}
		if !p.Bot {
			cards := make([]int, len(p.Hand))
			for j, c := range p.Hand {
				cards[j] = int(c)
			}
			m.caster.SendToUser(p.UserID, protocol.MustFrame(protocol.CmdDealCard, protocol.DealCard{
				Cards:       cards,
				RemainCards: m.deck.Remaining(),
				FirstTurn:   leader,
			}))
		}
	}

	// Napoli is claimed once per round, at the deal.
	for i := range m.seats {
		p, ok := m.seats[i].Occupant()
		if !ok {
			continue
		}
		suits := deck.DetectNapoli(p.Hand)
		if len(suits) == 0 {
			continue
		}
		bonus := len(suits) * deck.NapoliBonus
		m.teamTotal[p.Team] += bonus
		suitIDs := make([]int, len(suits))
		for j, su := range suits {
			suitIDs[j] = int(su)
		}
		m.logger.Info("napoli", "uid", p.UserID, "suits", len(suits))
		m.broadcast(protocol.MustFrame(protocol.CmdNapoli, protocol.NapoliEvent{
			Seat: i, Team: p.Team, Suits: suitIDs, Bonus: bonus,
		}))
	}

	m.setTurnLocked(leader)
	m.leadSeat = leader
}

// clearTrickLocked resets the trick slots.
func (m *Match) clearTrickLocked() {
	for i := range m.trick {
		m.trick[i] = deck.NoCard
	}
}

// trickComplete reports whether every seat has played to the trick.
func (m *Match) trickCompleteLocked() bool {
	for _, c := range m.trick {
		if c == deck.NoCard {
			return false
		}
	}
	return true
}

// leadSuitLocked returns the mandated suit, valid only once the lead
// seat has played.
func (m *Match) leadSuitLocked() (deck.Suit, bool) {
	lead := m.trick[m.leadSeat]
	if lead == deck.NoCard {
		return 0, false
	}
	return lead.Suit(), true
}

// setTurnLocked points the turn at a seat and arms its deadline; bots
// get a simulated thinking delay instead of the full timer.
func (m *Match) setTurnLocked(seat int) {
	m.currentTurn = seat
	m.botActAt = time.Time{}
	m.turnDeadlineAt = time.Time{}

	p, ok := m.seats[seat].Occupant()
	if !ok {
		return
	}
	now := m.clock.Now()
	if p.Bot {
		think := m.rules.BotThinkMin
		if spread := m.rules.BotThinkMax - m.rules.BotThinkMin; spread > 0 {
			think += time.Duration(m.rng.Int63n(int64(spread)))
		}
		m.botActAt = now.Add(think)
		return
	}
	deadline := m.rules.TurnTime
	if p.FlaggedSlow {
		deadline = m.rules.ShortTurnTime
	}
	m.turnDeadlineAt = now.Add(deadline)
	m.broadcast(protocol.MustFrame(protocol.CmdNewTurn, protocol.NewTurn{
		Seat: seat, TurnDeadline: m.turnDeadlineAt.UnixMilli(),
	}))
}

// PlayCard validates and applies one card play for a user. Every check
// runs before any mutation; a failed check returns the specific error
// with the match untouched.
func (m *Match) PlayCard(uid int64, card deck.Card) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.playCardLocked(uid, card, false)
}

func (m *Match) playCardLocked(uid int64, card deck.Card, auto bool) error {
	if m.state != Playing {
		return ErrNotPlaying
	}
	if m.trickCompleteLocked() {
		return ErrTrickResolving
	}
	if m.currentTurn < 0 {
		return ErrNotYourTurn
	}
	p, ok := m.seats[m.currentTurn].Occupant()
	if !ok || p.UserID != uid {
		return ErrNotYourTurn
	}
	held := false
	for _, c := range p.Hand {
		if c == card {
			held = true
			break
		}
	}
	if !held {
		return ErrCardNotHeld
	}
	if lead, hasLead := m.leadSuitLocked(); hasLead {
		if card.Suit() != lead && deck.HasSuit(p.Hand, lead) {
			return ErrMustFollowSuit
		}
	}

	seat := m.currentTurn
	p.Hand = removeCard(p.Hand, card)
	m.trick[seat] = card
	if !auto {
		p.AutoPlays = 0
	}
	m.turnDeadlineAt = time.Time{}
	m.botActAt = time.Time{}

	m.broadcast(protocol.MustFrame(protocol.CmdPlayCard, protocol.PlayCardEvent{
		UserID: uid, Seat: seat, CardID: int(card), Auto: auto,
	}))

	if m.trickCompleteLocked() {
		// Brief no-active-turn window between completion and
		// resolution; clients animate the trick.
		m.currentTurn = -1
		m.trickResolveAt = m.clock.Now().Add(m.rules.TrickDelay)
		return nil
	}

	m.setTurnLocked(m.nextSeatLocked(seat))
	return nil
}

func (m *Match) nextSeatLocked(seat int) int {
	return (seat + 1) % len(m.seats)
}

// resolveTrickLocked scores a complete trick, draws replacements, and
// either starts the next trick, rolls the round over, or ends the game.
func (m *Match) resolveTrickLocked(ctx context.Context) {
	m.trickResolveAt = time.Time{}

	lead, _ := m.leadSuitLocked()
	winCard := deck.Winner(m.trick, lead)
	winnerSeat := 0
	for i, c := range m.trick {
		if c == winCard {
			winnerSeat = i
			break
		}
	}
	winner, _ := m.seats[winnerSeat].Occupant()
	points := deck.TrickPoints(m.trick)

	handsEmpty := true
	for _, s := range m.seats {
		if p, ok := s.Occupant(); ok && len(p.Hand) > 0 {
			handsEmpty = false
			break
		}
	}
	lastTrick := handsEmpty && m.deck.Remaining() == 0

	m.teamTotal[winner.Team] += points
	m.teamRoundCard[winner.Team] += points
	if lastTrick {
		m.teamTotal[winner.Team] += deck.LastTrickBonus
	}
	m.trickNo++

	m.broadcast(protocol.MustFrame(protocol.CmdEndTrick, protocol.EndTrick{
		WinnerSeat: winnerSeat,
		WinCard:    int(winCard),
		Points:     points,
		TeamScores: []int{m.teamTotal[0], m.teamTotal[1]},
		LastTrick:  lastTrick,
	}))

	m.clearTrickLocked()

	if m.teamTotal[0] >= m.settings.Target() || m.teamTotal[1] >= m.settings.Target() {
		m.endGameLocked(ctx)
		return
	}

	if lastTrick {
		m.rolloverRoundLocked(ctx, winnerSeat)
		return
	}

	// Draw one replacement per seat while the pile lasts, winner first.
	if m.deck.Remaining() > 0 {
		for i := 0; i < len(m.seats); i++ {
			seat := (winnerSeat + i) % len(m.seats)
			p, ok := m.seats[seat].Occupant()
			if !ok {
				continue
			}
			card, ok := m.deck.Draw()
			if !ok {
				break
			}
			p.Hand = append(p.Hand, card)
			for _, other := range m.seats {
				op, occupied := other.Occupant()
				if !occupied || op.Bot {
					continue
				}
				ev := protocol.DrawCard{Seat: seat, RemainCards: m.deck.Remaining()}
				if op.UserID == p.UserID {
					ev.Card = int(card)
				}
				m.caster.SendToUser(op.UserID, protocol.MustFrame(protocol.CmdDrawCard, ev))
			}
		}
	}

	m.leadSeat = winnerSeat
	m.setTurnLocked(winnerSeat)
}

// rolloverRoundLocked starts the next round of the same game: carry
// scores are stripped of sub-point remainders, everyone re-antes, and
// fresh hands are dealt.
func (m *Match) rolloverRoundLocked(ctx context.Context, leader int) {
	for team := range m.teamTotal {
		m.teamTotal[team] -= m.teamTotal[team] % 3
	}
	m.round++
	m.collectAntesLocked(ctx)
	m.broadcast(protocol.MustFrame(protocol.CmdEndRound, protocol.EndRound{
		Round:      m.round,
		TeamScores: []int{m.teamTotal[0], m.teamTotal[1]},
		Pot:        m.pot,
	}))
	m.logger.Info("round rollover", "round", m.round, "pot", m.pot,
		"score0", m.teamTotal[0], "score1", m.teamTotal[1])
	m.dealRoundLocked(leader)
}

func removeCard(hand []deck.Card, card deck.Card) []deck.Card {
	out := hand[:0]
	for _, c := range hand {
		if c != card {
			out = append(out, c)
		}
	}
	return out
}

// Accounting returns the per-round conservation pieces: team card
// points this round, points sitting in the open trick, points left in
// the pile, and points still in hands. Their sum is deck.TotalPoints
// for any match in Playing before carry-stripping.
func (m *Match) Accounting() (teamCard [2]int, trick, pile, hands int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	teamCard = m.teamRoundCard
	trick = deck.TrickPoints(m.trick)
	pile = m.deck.PointsRemaining()
	for _, s := range m.seats {
		if p, ok := s.Occupant(); ok {
			hands += deck.TrickPoints(p.Hand)
		}
	}
	return teamCard, trick, pile, hands
}
