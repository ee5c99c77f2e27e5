package game

import (
	"context"
	"math"
	"time"

	"github.com/mazzetti/tressette/internal/protocol"
)

// expGain converts a bet size into experience. Bigger tables grow a
// profile much faster than proportionally.
func expGain(bet int64) int64 {
	if bet <= 1 {
		return 0
	}
	l := math.Log2(float64(bet))
	return int64(0.01 * l * l * l)
}

// endGameLocked settles a finished game: losers transfer gold scaled by
// their score deficit, the pot plus transfers is pooled, taxed, and
// split among the winners, and stats are persisted. The table then sits
// in Ended until the reset delay expires.
func (m *Match) endGameLocked(ctx context.Context) {
	m.state = Ended
	m.currentTurn = -1
	m.turnDeadlineAt = time.Time{}
	m.botActAt = time.Time{}
	m.trickResolveAt = time.Time{}
	m.matchExpiresAt = time.Time{}

	winnerTeam := -1
	switch {
	case m.teamTotal[0] > m.teamTotal[1]:
		winnerTeam = 0
	case m.teamTotal[1] > m.teamTotal[0]:
		winnerTeam = 1
	}

	if winnerTeam < 0 {
		m.settleDrawLocked(ctx)
	} else {
		m.settleWinLocked(ctx, winnerTeam)
	}

	end := protocol.EndGame{
		WinnerTeam: winnerTeam,
		TeamScores: []int{m.teamTotal[0], m.teamTotal[1]},
		Pot:        m.pot,
	}
	for _, s := range m.seats {
		p, ok := s.Occupant()
		if !ok {
			continue
		}
		seat := protocol.EndGameSeat{
			UserID:    p.UserID,
			Team:      p.Team,
			GoldDelta: p.goldDelta,
			Gold:      p.Gold,
		}
		if !p.Bot && p.Team == winnerTeam {
			seat.ExpGain = expGain(m.settings.Bet)
		}
		end.Seats = append(end.Seats, seat)
	}
	m.broadcast(protocol.MustFrame(protocol.CmdEndGame, end))
	m.logger.Info("game over", "winner", winnerTeam,
		"score0", m.teamTotal[0], "score1", m.teamTotal[1], "pot", m.pot)

	m.pot = 0
	for _, s := range m.seats {
		if p, ok := s.Occupant(); ok {
			p.anteDebt = 0
		}
	}
	m.endResetAt = m.clock.Now().Add(m.rules.EndResetDelay)
}

// settleWinLocked moves gold for a decided game. Each loser pays a
// transfer proportional to how far short of the target their team
// finished, capped at what they still hold.
func (m *Match) settleWinLocked(ctx context.Context, winnerTeam int) {
	target := int64(m.settings.Target())
	winnerScore := int64(m.teamTotal[winnerTeam])

	var transfers int64
	var winners []*Player
	for _, s := range m.seats {
		p, ok := s.Occupant()
		if !ok {
			continue
		}
		if p.Team == winnerTeam {
			winners = append(winners, p)
			continue
		}
		diff := winnerScore - int64(m.teamTotal[p.Team])
		transfer := m.settings.Bet * diff / target
		if transfer > p.Gold {
			transfer = p.Gold
		}
		m.applyGoldLocked(ctx, p, -transfer)
		transfers += transfer
	}

	if len(winners) == 0 {
		return
	}
	pool := m.pot + transfers
	share := pool / int64(len(winners))
	payout := share - share*m.rules.TaxPercent/100
	gain := expGain(m.settings.Bet)
	for _, p := range winners {
		m.applyGoldLocked(ctx, p, payout)
		if !p.Bot {
			if err := m.ledger.AddStats(ctx, p.UserID, gain, 1, 1); err != nil {
				m.logger.Error("stats update failed", "uid", p.UserID, "error", err)
			}
		}
	}
	for _, s := range m.seats {
		p, ok := s.Occupant()
		if !ok || p.Bot || p.Team == winnerTeam {
			continue
		}
		if err := m.ledger.AddStats(ctx, p.UserID, 0, 1, 0); err != nil {
			m.logger.Error("stats update failed", "uid", p.UserID, "error", err)
		}
	}
}

// settleDrawLocked refunds the pot evenly. Draws only happen on forced
// expiry with level scores, so nobody pays and nobody gains.
func (m *Match) settleDrawLocked(ctx context.Context) {
	n := m.numPlayersLocked()
	if n == 0 {
		return
	}
	refund := m.pot / int64(n)
	for _, s := range m.seats {
		if p, ok := s.Occupant(); ok {
			m.applyGoldLocked(ctx, p, refund)
		}
	}
}

// applyGoldLocked mutates a balance both in-match and, for humans, in
// the ledger. The commit lands before the UpdateMoney frame so a crash
// never shows a balance the store does not hold.
func (m *Match) applyGoldLocked(ctx context.Context, p *Player, delta int64) {
	if delta == 0 {
		return
	}
	p.Gold += delta
	p.goldDelta += delta
	if p.Bot {
		return
	}
	if _, err := m.ledger.AddGold(ctx, p.UserID, delta); err != nil {
		m.logger.Error("settlement transfer failed", "uid", p.UserID, "delta", delta, "error", err)
		return
	}
	if err := m.ledger.CommitGold(ctx, p.UserID); err != nil {
		m.logger.Error("settlement commit failed", "uid", p.UserID, "error", err)
		return
	}
	m.caster.SendToUser(p.UserID, protocol.MustFrame(protocol.CmdUpdateMoney, protocol.UpdateMoney{Gold: p.Gold}))
}

// resetAfterGameLocked returns the table to Waiting once the Ended
// pause expires. Registered leavers, chronic auto-players, disconnected
// humans, and anyone below the buy-in are removed; solvent bots leave
// with a coin flip so tables do not fossilize into bot farms. Returns
// the removed user ids so the registry can drop its mappings.
func (m *Match) resetAfterGameLocked() []int64 {
	m.endResetAt = time.Time{}

	var removed []int64
	minGold := m.settings.MinGold(m.rules)
	for i := range m.seats {
		p, ok := m.seats[i].Occupant()
		if !ok {
			continue
		}
		evict := false
		switch {
		case p.Gold < minGold:
			evict = true
		case p.Bot:
			evict = m.rng.Intn(100) < m.rules.BotEvictPercent
		default:
			evict = p.WantsLeave || p.FlaggedSlow || !p.Connected
		}
		if evict {
			m.removeSeatLocked(i)
			removed = append(removed, p.UserID)
		}
	}

	m.state = Waiting
	m.round = 0
	m.trickNo = 0
	m.teamTotal = [2]int{}
	m.teamRoundCard = [2]int{}
	m.clearTrickLocked()
	m.currentTurn = -1
	for _, s := range m.seats {
		if p, ok := s.Occupant(); ok {
			p.Hand = nil
			p.goldDelta = 0
			p.anteDebt = 0
			p.AutoPlays = 0
		}
	}

	for _, s := range m.seats {
		if p, ok := s.Occupant(); ok && !p.Bot {
			m.sendSnapshotLocked(p.UserID)
		}
	}
	m.afterSeatChangeLocked()
	return removed
}
