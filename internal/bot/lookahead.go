package bot

import (
	"github.com/mazzetti/tressette/internal/deck"
)

// Lookahead evaluates each legal immediate play against the opponent's
// known hand and picks the one with the best expected point swing for
// this trick. The opponent model is Greedy: win cheap or shed cheap.
type Lookahead struct {
	opponent *Greedy
}

// NewLookahead creates a Lookahead strategy.
func NewLookahead() *Lookahead {
	return &Lookahead{opponent: NewGreedy()}
}

func (l *Lookahead) Name() string { return "lookahead" }

func (l *Lookahead) ChooseCard(view View) deck.Card {
	valid := view.ValidCards()
	if len(valid) == 0 {
		return deck.NoCard
	}
	if len(view.OppHand) == 0 {
		// No model of the opponent, fall back to greedy play.
		return l.opponent.ChooseCard(view)
	}

	best := deck.NoCard
	bestSwing := 0
	for _, c := range valid {
		swing := l.evaluate(view, c)
		if best == deck.NoCard || swing > bestSwing ||
			(swing == bestSwing && c.Points() < best.Points()) {
			best = c
			bestSwing = swing
		}
	}
	return best
}

// evaluate returns the point swing (own take minus opponent take) of
// playing c, assuming the opponent responds greedily.
func (l *Lookahead) evaluate(view View, c deck.Card) int {
	if view.Leading() {
		resp := l.opponent.ChooseCard(View{
			Hand:     view.OppHand,
			Table:    []deck.Card{c},
			LeadSuit: c.Suit(),
		})
		points := c.Points() + resp.Points()
		if deck.Winner([]deck.Card{c, resp}, c.Suit()) == c {
			return points
		}
		return -points
	}

	trick := append(append([]deck.Card{}, view.Table...), c)
	points := deck.TrickPoints(trick)
	if deck.Winner(trick, view.LeadSuit) == c {
		return points
	}
	return -points
}
