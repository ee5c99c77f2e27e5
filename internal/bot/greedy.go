package bot

import (
	"github.com/mazzetti/tressette/internal/deck"
)

// Greedy wins the trick as cheaply as possible, and dumps its cheapest
// card when it cannot win. When leading it opens with its cheapest card.
type Greedy struct{}

// NewGreedy creates a Greedy strategy.
func NewGreedy() *Greedy {
	return &Greedy{}
}

func (g *Greedy) Name() string { return "greedy" }

func (g *Greedy) ChooseCard(view View) deck.Card {
	if len(view.Hand) == 0 {
		return deck.NoCard
	}
	if view.Leading() {
		return cheapest(view.Hand)
	}

	best := bestOnTable(view.Table, view.LeadSuit)
	suited := deck.SuitCards(view.Hand, view.LeadSuit)
	if len(suited) == 0 {
		// Cannot win off-suit, shed the cheapest card.
		return cheapest(view.Hand)
	}

	// Cheapest suited card that still takes the trick.
	winner := deck.NoCard
	for _, c := range suited {
		if c.Strength() <= best.Strength() {
			continue
		}
		if winner == deck.NoCard ||
			c.Points() < winner.Points() ||
			(c.Points() == winner.Points() && c.Strength() < winner.Strength()) {
			winner = c
		}
	}
	if winner != deck.NoCard {
		return winner
	}

	// Forced to follow with no winning option.
	return cheapest(suited)
}
