package deck

import "fmt"

// Suit represents one of the four Italian suits.
type Suit int

const (
	Denari Suit = iota
	Coppe
	Spade
	Bastoni
)

// String returns the string representation of a suit
func (s Suit) String() string {
	switch s {
	case Denari:
		return "d"
	case Coppe:
		return "c"
	case Spade:
		return "s"
	case Bastoni:
		return "b"
	default:
		return "?"
	}
}

// Rank represents a card rank in deal order (not strength order).
type Rank int

const (
	Asso Rank = iota
	Due
	Tre
	Quattro
	Cinque
	Sei
	Sette
	Fante
	Cavallo
	Re
)

// String returns the string representation of a rank
func (r Rank) String() string {
	switch r {
	case Asso:
		return "A"
	case Due:
		return "2"
	case Tre:
		return "3"
	case Quattro:
		return "4"
	case Cinque:
		return "5"
	case Sei:
		return "6"
	case Sette:
		return "7"
	case Fante:
		return "F"
	case Cavallo:
		return "C"
	case Re:
		return "R"
	default:
		return "?"
	}
}

// NumCards is the size of the full Tressette deck.
const NumCards = 40

// Card is an immutable card id in the range 0..39. Suit is id%4 and rank
// is id/4, matching the wire encoding used by clients.
type Card int

// NoCard marks an unplayed trick slot.
const NoCard Card = -1

// NewCard builds a card from its suit and rank.
func NewCard(suit Suit, rank Rank) Card {
	return Card(int(rank)*4 + int(suit))
}

// Suit returns the card's suit.
func (c Card) Suit() Suit {
	return Suit(int(c) % 4)
}

// Rank returns the card's rank.
func (c Card) Rank() Rank {
	return Rank(int(c) / 4)
}

// Valid reports whether the id falls inside the deck.
func (c Card) Valid() bool {
	return c >= 0 && c < NumCards
}

// String returns the string representation of a card (e.g. "3d")
func (c Card) String() string {
	if !c.Valid() {
		return "--"
	}
	return fmt.Sprintf("%s%s", c.Rank(), c.Suit())
}

// strengthByRank orders ranks for trick-taking: 3 > 2 > A > R > C > F >
// 7 > 6 > 5 > 4. The values only matter relative to each other.
var strengthByRank = [10]int{
	Asso:    98,
	Due:     99,
	Tre:     100,
	Quattro: 91,
	Cinque:  92,
	Sei:     93,
	Sette:   94,
	Fante:   95,
	Cavallo: 96,
	Re:      97,
}

// pointsByRank holds card values in server points, human thirds scaled
// by 3 to keep arithmetic integral: an ace is a full point, twos,
// threes and figures a third each, the rest nothing.
var pointsByRank = [10]int{
	Asso:    3,
	Due:     1,
	Tre:     1,
	Quattro: 0,
	Cinque:  0,
	Sei:     0,
	Sette:   0,
	Fante:   1,
	Cavallo: 1,
	Re:      1,
}

// TotalPoints is the sum of all card points in the deck, in server
// points. The last-trick bonus comes on top of this.
const TotalPoints = 32

// LastTrickBonus is awarded to the team taking the final trick of a
// round, in server points.
const LastTrickBonus = 3

// NapoliBonus is awarded per suit for holding ace, two and three of
// that suit after the deal, in server points.
const NapoliBonus = 3

// Strength returns the card's trick-taking strength within its suit.
func (c Card) Strength() int {
	return strengthByRank[c.Rank()]
}

// Points returns the card's value in server points.
func (c Card) Points() int {
	return pointsByRank[c.Rank()]
}

// Stronger returns the stronger of two cards of the same suit.
func Stronger(a, b Card) Card {
	if a.Strength() >= b.Strength() {
		return a
	}
	return b
}
