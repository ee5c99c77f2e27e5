package deck

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCardEncoding(t *testing.T) {
	tests := []struct {
		id   Card
		suit Suit
		rank Rank
	}{
		{0, Denari, Asso},
		{3, Bastoni, Asso},
		{4, Denari, Due},
		{11, Bastoni, Tre},
		{39, Bastoni, Re},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.suit, tt.id.Suit(), "suit of %d", tt.id)
		assert.Equal(t, tt.rank, tt.id.Rank(), "rank of %d", tt.id)
		assert.Equal(t, tt.id, NewCard(tt.suit, tt.rank))
	}
}

func TestStrengthOrder(t *testing.T) {
	// 3 > 2 > A > R > C > F > 7 > 6 > 5 > 4
	order := []Rank{Tre, Due, Asso, Re, Cavallo, Fante, Sette, Sei, Cinque, Quattro}
	for i := 0; i < len(order)-1; i++ {
		hi := NewCard(Denari, order[i])
		lo := NewCard(Denari, order[i+1])
		assert.Equal(t, hi, Stronger(hi, lo), "%s should beat %s", hi, lo)
	}
}

func TestDeckTotalsThirtyTwoPoints(t *testing.T) {
	total := 0
	for i := 0; i < NumCards; i++ {
		total += Card(i).Points()
	}
	assert.Equal(t, TotalPoints, total)
}

func TestWinnerFollowsLeadSuit(t *testing.T) {
	tests := []struct {
		name  string
		trick []Card
		lead  Suit
		want  Card
	}{
		{
			name:  "highest of lead suit wins",
			trick: []Card{NewCard(Denari, Asso), NewCard(Denari, Tre)},
			lead:  Denari,
			want:  NewCard(Denari, Tre),
		},
		{
			name:  "off-suit cannot win regardless of strength",
			trick: []Card{NewCard(Coppe, Quattro), NewCard(Denari, Tre)},
			lead:  Coppe,
			want:  NewCard(Coppe, Quattro),
		},
		{
			name:  "four seats",
			trick: []Card{NewCard(Spade, Re), NewCard(Spade, Due), NewCard(Coppe, Tre), NewCard(Spade, Sette)},
			lead:  Spade,
			want:  NewCard(Spade, Due),
		},
		{
			name:  "unfilled slots are skipped",
			trick: []Card{NewCard(Spade, Cinque), NoCard},
			lead:  Spade,
			want:  NewCard(Spade, Cinque),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Winner(tt.trick, tt.lead))
		})
	}
}

func TestWinnerIsDeterministic(t *testing.T) {
	trick := []Card{NewCard(Spade, Re), NewCard(Spade, Due), NewCard(Coppe, Tre), NewCard(Spade, Sette)}
	first := Winner(trick, Spade)
	for i := 0; i < 100; i++ {
		assert.Equal(t, first, Winner(trick, Spade))
	}
}

func TestDetectNapoli(t *testing.T) {
	hand := []Card{
		NewCard(Denari, Asso), NewCard(Denari, Due), NewCard(Denari, Tre),
		NewCard(Coppe, Asso), NewCard(Coppe, Due),
		NewCard(Spade, Re),
	}
	assert.Equal(t, []Suit{Denari}, DetectNapoli(hand))

	hand = append(hand, NewCard(Coppe, Tre))
	assert.Equal(t, []Suit{Denari, Coppe}, DetectNapoli(hand))

	assert.Empty(t, DetectNapoli([]Card{NewCard(Spade, Asso), NewCard(Spade, Due)}))
}

func TestDealConservesDeck(t *testing.T) {
	rng := rand.New(rand.NewSource(1))

	// Solo mode: 2x10 dealt, 20 in the pile.
	d := NewDeck(rng)
	d.Shuffle()
	seen := map[Card]bool{}
	for seat := 0; seat < 2; seat++ {
		hand := d.DealN(10)
		require.Len(t, hand, 10)
		for _, c := range hand {
			require.False(t, seen[c], "card %s dealt twice", c)
			seen[c] = true
		}
	}
	assert.Equal(t, 20, d.Remaining())

	// Duo mode: 4x10 dealt, nothing left.
	d = NewDeck(rng)
	d.Shuffle()
	for seat := 0; seat < 4; seat++ {
		require.Len(t, d.DealN(10), 10)
	}
	assert.Equal(t, 0, d.Remaining())
}

func TestShuffleIsSeedDeterministic(t *testing.T) {
	a := NewDeck(rand.New(rand.NewSource(42)))
	b := NewDeck(rand.New(rand.NewSource(42)))
	a.Shuffle()
	b.Shuffle()
	assert.Equal(t, a.DealN(40), b.DealN(40))
}
