package bot

import (
	"math/rand"

	"github.com/mazzetti/tressette/internal/deck"
)

// Weakest plays the first card that follows suit, or a random card when
// free to discard. It doubles as the engine's auto-play on turn timeout.
type Weakest struct {
	rng *rand.Rand
}

// NewWeakest creates a Weakest strategy with the given RNG.
func NewWeakest(rng *rand.Rand) *Weakest {
	return &Weakest{rng: rng}
}

func (w *Weakest) Name() string { return "weakest" }

func (w *Weakest) ChooseCard(view View) deck.Card {
	if len(view.Hand) == 0 {
		return deck.NoCard
	}
	if !view.Leading() {
		if suited := deck.SuitCards(view.Hand, view.LeadSuit); len(suited) > 0 {
			return suited[0]
		}
	}
	return view.Hand[w.rng.Intn(len(view.Hand))]
}
