package deck

import "math/rand"

// Deck represents the shuffled draw pile of a match. The RNG is
// injected so matches can be replayed deterministically in tests.
type Deck struct {
	cards []Card
	rng   *rand.Rand
}

// NewDeck creates a full 40-card deck.
func NewDeck(rng *rand.Rand) *Deck {
	d := &Deck{
		cards: make([]Card, 0, NumCards),
		rng:   rng,
	}
	for i := 0; i < NumCards; i++ {
		d.cards = append(d.cards, Card(i))
	}
	return d
}

// Shuffle randomizes the order of the remaining cards.
func (d *Deck) Shuffle() {
	d.rng.Shuffle(len(d.cards), func(i, j int) {
		d.cards[i], d.cards[j] = d.cards[j], d.cards[i]
	})
}

// Draw removes and returns the top card.
func (d *Deck) Draw() (Card, bool) {
	if len(d.cards) == 0 {
		return NoCard, false
	}
	card := d.cards[0]
	d.cards = d.cards[1:]
	return card, true
}

// DealN deals up to n cards from the top.
func (d *Deck) DealN(n int) []Card {
	if n > len(d.cards) {
		n = len(d.cards)
	}
	out := make([]Card, n)
	for i := 0; i < n; i++ {
		out[i], _ = d.Draw()
	}
	return out
}

// Remaining returns the number of undealt cards.
func (d *Deck) Remaining() int {
	return len(d.cards)
}

// Reset restores and reshuffles the full deck.
func (d *Deck) Reset() {
	d.cards = d.cards[:0]
	for i := 0; i < NumCards; i++ {
		d.cards = append(d.cards, Card(i))
	}
	d.Shuffle()
}

// Upcoming returns a copy of the undealt cards in draw order. The
// full-information bots peek at it to model future draws.
func (d *Deck) Upcoming() []Card {
	out := make([]Card, len(d.cards))
	copy(out, d.cards)
	return out
}

// PointsRemaining sums the server points still in the pile. Used by the
// engine's accounting invariant.
func (d *Deck) PointsRemaining() int {
	return TrickPoints(d.cards)
}
