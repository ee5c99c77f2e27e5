// Package bot implements the card-choosing strategies seated at a table
// when no human fills a slot. The engine is authoritative and knows
// every hand, so strategies receive a full-information view and differ
// only in how much of it they use.
package bot

import (
	"github.com/mazzetti/tressette/internal/deck"
)

// View is everything a strategy may look at when choosing a card. The
// engine populates it per decision; strategies never mutate it.
type View struct {
	// Hand is the deciding seat's current hand.
	Hand []deck.Card

	// Table holds the cards already played to the current trick, in
	// play order. Empty when the seat leads.
	Table []deck.Card

	// LeadSuit is valid only when len(Table) > 0.
	LeadSuit deck.Suit

	// Full-information fields for the searching strategies. OppHand and
	// the draw piles describe the single opponent in solo mode; in duo
	// mode they are nil and only the simpler strategies are used.
	OppHand  []deck.Card
	OwnDraws []deck.Card
	OppDraws []deck.Card

	// Scores in server points, and the target that ends the game.
	OwnScore int
	OppScore int
	Target   int
}

// Leading reports whether the deciding seat opens the trick.
func (v View) Leading() bool {
	return len(v.Table) == 0
}

// LeadCard returns the card that opened the trick, or NoCard.
func (v View) LeadCard() deck.Card {
	if len(v.Table) == 0 {
		return deck.NoCard
	}
	return v.Table[0]
}

// ValidCards returns the subset of the hand that follows suit, or the
// whole hand when the seat leads or cannot follow.
func (v View) ValidCards() []deck.Card {
	if v.Leading() {
		return v.Hand
	}
	if suited := deck.SuitCards(v.Hand, v.LeadSuit); len(suited) > 0 {
		return suited
	}
	return v.Hand
}

// Strategy chooses a card given the table state. Implementations must
// return a card present in view.Hand and legal under suit-following.
type Strategy interface {
	Name() string
	ChooseCard(view View) deck.Card
}

// bestOnTable returns the card currently taking the trick, or NoCard
// when the trick is empty.
func bestOnTable(table []deck.Card, lead deck.Suit) deck.Card {
	return deck.Winner(table, lead)
}

// cheapest picks the card with the lowest point value, breaking ties by
// lower strength so signal cards are kept.
func cheapest(cards []deck.Card) deck.Card {
	best := deck.NoCard
	for _, c := range cards {
		if best == deck.NoCard {
			best = c
			continue
		}
		if c.Points() < best.Points() ||
			(c.Points() == best.Points() && c.Strength() < best.Strength()) {
			best = c
		}
	}
	return best
}
