package bot

import (
	"fmt"

	"github.com/mazzetti/tressette/internal/deck"
)

// Minimax runs a bounded-depth adversarial search over the remaining
// solo-mode game: the bot maximizes its eventual score, the opponent is
// assumed to minimize it. Since the server knows both hands and the
// order of future draws the search is exact up to the depth cutoff,
// where a score-differential heuristic takes over. Results are
// memoized per decision and branches are pruned alpha-beta style.
type Minimax struct {
	depth    int
	fallback *Greedy
}

// DefaultSearchDepth bounds the per-decision lookahead in tricks.
const DefaultSearchDepth = 2

// NewMinimax creates a Minimax strategy searching the given number of
// tricks ahead.
func NewMinimax(depth int) *Minimax {
	if depth <= 0 {
		depth = DefaultSearchDepth
	}
	return &Minimax{depth: depth, fallback: NewGreedy()}
}

func (m *Minimax) Name() string { return "minimax" }

func (m *Minimax) ChooseCard(view View) deck.Card {
	if len(view.Hand) == 0 {
		return deck.NoCard
	}
	if len(view.OppHand) == 0 {
		// Duo mode exposes no single-opponent model; play greedily.
		return m.fallback.ChooseCard(view)
	}

	s := &searcher{target: view.Target, memo: make(map[string]outcome)}
	st := state{
		botLeads: view.Leading(),
		botScore: view.OwnScore,
		oppScore: view.OppScore,
		botHand:  view.Hand,
		oppHand:  view.OppHand,
		botDraws: view.OwnDraws,
		oppDraws: view.OppDraws,
		lead:     view.LeadCard(),
	}
	out := s.play(st, m.depth, negInf, posInf)
	if out.move != deck.NoCard {
		return out.move
	}
	return m.fallback.ChooseCard(view)
}

const (
	negInf = -1 << 30
	posInf = 1 << 30
)

type state struct {
	botLeads bool
	botScore int
	oppScore int
	botHand  []deck.Card
	oppHand  []deck.Card
	botDraws []deck.Card
	oppDraws []deck.Card
	// lead is the opponent's card already on the table when the bot
	// responds, or NoCard.
	lead deck.Card
}

type outcome struct {
	botScore int
	oppScore int
	move     deck.Card
}

type searcher struct {
	target int
	memo   map[string]outcome
}

func (s *searcher) key(st state, depth int) string {
	return fmt.Sprintf("%t|%d|%d|%v|%v|%v|%v|%d|%d",
		st.botLeads, st.botScore, st.oppScore,
		st.botHand, st.oppHand, st.botDraws, st.oppDraws,
		st.lead, depth)
}

// play returns the best reachable outcome for the bot from st. alpha
// and beta bound the bot's achievable final score for pruning.
func (s *searcher) play(st state, depth, alpha, beta int) outcome {
	// A side with no cards has no legal continuation; the position is
	// terminal and scores stand as they are.
	if len(st.botHand) == 0 || len(st.oppHand) == 0 {
		return outcome{st.botScore, st.oppScore, deck.NoCard}
	}
	if depth <= 0 {
		// Heuristic stand-in for deeper search: the current score
		// differential, expressed on the bot-score axis.
		return outcome{st.botScore - st.oppScore, st.oppScore, deck.NoCard}
	}

	k := s.key(st, depth)
	if cached, ok := s.memo[k]; ok {
		return cached
	}

	var result outcome
	switch {
	case st.botLeads:
		result = s.botLeadNode(st, depth, alpha, beta)
	case st.lead == deck.NoCard:
		result = s.oppLeadNode(st, depth, alpha, beta)
	default:
		result = s.botRespondNode(st, depth, alpha, beta)
	}
	s.memo[k] = result
	return result
}

// botLeadNode: the bot picks a lead, the opponent answers with the
// reply worst for the bot.
func (s *searcher) botLeadNode(st state, depth, alpha, beta int) outcome {
	best := outcome{negInf, negInf, deck.NoCard}

	for _, botCard := range st.botHand {
		responses := followOrAll(st.oppHand, botCard.Suit())

		worst := outcome{posInf, negInf, deck.NoCard}
		for _, oppCard := range responses {
			final := s.resolveTrick(st, botCard, oppCard, true, depth)
			if final.botScore < worst.botScore {
				worst = final
			}
			if worst.botScore <= alpha {
				break // bot already has a better lead available
			}
		}

		if worst.botScore > best.botScore {
			best = outcome{worst.botScore, worst.oppScore, botCard}
		}
		if best.botScore > alpha {
			alpha = best.botScore
		}
		if alpha >= beta {
			break
		}
	}
	return best
}

// oppLeadNode: the opponent picks the lead that is worst for the bot;
// each candidate lead becomes a bot-respond node at the same depth.
func (s *searcher) oppLeadNode(st state, depth, alpha, beta int) outcome {
	worst := outcome{posInf, negInf, deck.NoCard}

	for _, oppCard := range st.oppHand {
		next := st
		next.lead = oppCard
		sub := s.play(next, depth, alpha, beta)
		if sub.botScore < worst.botScore {
			worst = outcome{sub.botScore, sub.oppScore, deck.NoCard}
		}
		if worst.botScore < beta {
			beta = worst.botScore
		}
		if alpha >= beta {
			break
		}
	}
	return worst
}

// botRespondNode: the lead card is on the table, the bot picks the
// response maximizing its outcome.
func (s *searcher) botRespondNode(st state, depth, alpha, beta int) outcome {
	best := outcome{negInf, negInf, deck.NoCard}

	for _, botCard := range followOrAll(st.botHand, st.lead.Suit()) {
		final := s.resolveTrick(st, botCard, st.lead, false, depth)
		if final.botScore > best.botScore {
			best = outcome{final.botScore, final.oppScore, botCard}
		}
		if best.botScore > alpha {
			alpha = best.botScore
		}
		if alpha >= beta {
			break
		}
	}
	return best
}

// resolveTrick scores one exchange and recurses into the rest of the
// game, mirroring the live engine: trick points to the winner, draws
// from the known piles, last-trick bonus when hands run out with a
// decided game.
func (s *searcher) resolveTrick(st state, botCard, oppCard deck.Card, botLed bool, depth int) outcome {
	points := botCard.Points() + oppCard.Points()

	var botWins bool
	if botCard.Suit() == oppCard.Suit() {
		botWins = deck.Stronger(botCard, oppCard) == botCard
	} else {
		// Off-suit response loses to the led card.
		botWins = botLed
	}

	botScore, oppScore := st.botScore, st.oppScore
	if botWins {
		botScore += points
	} else {
		oppScore += points
	}

	newBotHand := remove(st.botHand, botCard)
	newOppHand := remove(st.oppHand, oppCard)
	isLast := len(newBotHand) == 0 && len(newOppHand) == 0 && len(st.botDraws) == 0

	if botScore >= s.target || oppScore >= s.target {
		if isLast {
			if botWins {
				botScore += deck.LastTrickBonus
			} else {
				oppScore += deck.LastTrickBonus
			}
		}
		return outcome{botScore, oppScore, deck.NoCard}
	}

	next := state{
		botLeads: botWins,
		botScore: botScore,
		oppScore: oppScore,
		botHand:  newBotHand,
		oppHand:  newOppHand,
		botDraws: st.botDraws,
		oppDraws: st.oppDraws,
		lead:     deck.NoCard,
	}
	if len(next.botDraws) > 0 && len(next.oppDraws) > 0 {
		next.botHand = append(next.botHand, next.botDraws[0])
		next.oppHand = append(next.oppHand, next.oppDraws[0])
		next.botDraws = next.botDraws[1:]
		next.oppDraws = next.oppDraws[1:]
	}

	sub := s.play(next, depth-1, negInf, posInf)
	return outcome{sub.botScore, sub.oppScore, deck.NoCard}
}

func followOrAll(hand []deck.Card, suit deck.Suit) []deck.Card {
	if suited := deck.SuitCards(hand, suit); len(suited) > 0 {
		return suited
	}
	return hand
}

func remove(hand []deck.Card, card deck.Card) []deck.Card {
	out := make([]deck.Card, 0, len(hand)-1)
	for _, c := range hand {
		if c != card {
			out = append(out, c)
		}
	}
	return out
}
