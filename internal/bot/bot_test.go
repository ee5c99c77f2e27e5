package bot

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mazzetti/tressette/internal/deck"
)

func card(s deck.Suit, r deck.Rank) deck.Card {
	return deck.NewCard(s, r)
}

func TestWeakestFollowsSuit(t *testing.T) {
	w := NewWeakest(rand.New(rand.NewSource(1)))

	view := View{
		Hand:     []deck.Card{card(deck.Coppe, deck.Re), card(deck.Denari, deck.Quattro)},
		Table:    []deck.Card{card(deck.Denari, deck.Asso)},
		LeadSuit: deck.Denari,
	}
	// Must pick the denari card, not the coppe one.
	assert.Equal(t, card(deck.Denari, deck.Quattro), w.ChooseCard(view))
}

func TestWeakestDiscardsFromHandWhenVoid(t *testing.T) {
	w := NewWeakest(rand.New(rand.NewSource(1)))
	hand := []deck.Card{card(deck.Coppe, deck.Re), card(deck.Spade, deck.Sette)}
	view := View{
		Hand:     hand,
		Table:    []deck.Card{card(deck.Denari, deck.Asso)},
		LeadSuit: deck.Denari,
	}
	got := w.ChooseCard(view)
	assert.Contains(t, hand, got)
}

func TestGreedyWinsCheap(t *testing.T) {
	g := NewGreedy()

	view := View{
		Hand: []deck.Card{
			card(deck.Denari, deck.Tre),     // strongest, 1 point
			card(deck.Denari, deck.Cavallo), // beats the Re, 1 point, weaker
			card(deck.Denari, deck.Cinque),  // cannot win
		},
		Table:    []deck.Card{card(deck.Denari, deck.Fante)},
		LeadSuit: deck.Denari,
	}
	// Both Tre and Cavallo beat the Fante at equal point cost; greedy
	// keeps the stronger card and wins with the Cavallo.
	assert.Equal(t, card(deck.Denari, deck.Cavallo), g.ChooseCard(view))
}

func TestGreedyShedsCheapWhenVoid(t *testing.T) {
	g := NewGreedy()
	view := View{
		Hand: []deck.Card{
			card(deck.Coppe, deck.Asso),   // 3 points, keep
			card(deck.Spade, deck.Sei),    // 0 points, shed
			card(deck.Coppe, deck.Fante),  // 1 point
		},
		Table:    []deck.Card{card(deck.Denari, deck.Due)},
		LeadSuit: deck.Denari,
	}
	assert.Equal(t, card(deck.Spade, deck.Sei), g.ChooseCard(view))
}

func TestGreedyForcedFollowPlaysCheapest(t *testing.T) {
	g := NewGreedy()
	view := View{
		Hand: []deck.Card{
			card(deck.Denari, deck.Quattro),
			card(deck.Denari, deck.Fante),
			card(deck.Spade, deck.Asso),
		},
		Table:    []deck.Card{card(deck.Denari, deck.Tre)},
		LeadSuit: deck.Denari,
	}
	// Nothing beats the Tre; follow with the worthless Quattro.
	assert.Equal(t, card(deck.Denari, deck.Quattro), g.ChooseCard(view))
}

func TestLookaheadTakesPointTrick(t *testing.T) {
	l := NewLookahead()
	view := View{
		Hand: []deck.Card{
			card(deck.Denari, deck.Tre),
			card(deck.Spade, deck.Cinque),
		},
		Table:    []deck.Card{card(deck.Denari, deck.Asso)},
		LeadSuit: deck.Denari,
		OppHand:  []deck.Card{card(deck.Coppe, deck.Sei)},
	}
	// Taking the ace is worth 4 server points; ducking gives them away.
	assert.Equal(t, card(deck.Denari, deck.Tre), l.ChooseCard(view))
}

func TestMinimaxPicksGuaranteedWinnerOnFinalTrick(t *testing.T) {
	m := NewMinimax(DefaultSearchDepth)

	// Final trick, opponent led the Due of denari. The Tre wins the
	// trick and the last-trick bonus; the Quattro loses everything.
	view := View{
		Hand:     []deck.Card{card(deck.Denari, deck.Quattro), card(deck.Denari, deck.Tre)},
		Table:    []deck.Card{card(deck.Denari, deck.Due)},
		LeadSuit: deck.Denari,
		OppHand:  []deck.Card{card(deck.Denari, deck.Due)},
		OwnScore: 0,
		OppScore: 0,
		Target:   63,
	}
	got := m.ChooseCard(view)
	require.Equal(t, card(deck.Denari, deck.Tre), got)
}

func TestMinimaxFollowsSuitWhenLeading(t *testing.T) {
	m := NewMinimax(DefaultSearchDepth)
	view := View{
		Hand:     []deck.Card{card(deck.Spade, deck.Sette), card(deck.Coppe, deck.Asso)},
		OppHand:  []deck.Card{card(deck.Spade, deck.Quattro), card(deck.Coppe, deck.Due)},
		OwnScore: 0,
		OppScore: 0,
		Target:   63,
	}
	got := m.ChooseCard(view)
	assert.Contains(t, view.Hand, got)
}

func TestMinimaxMatchesGreedyWithoutOpponentModel(t *testing.T) {
	m := NewMinimax(DefaultSearchDepth)
	g := NewGreedy()
	view := View{
		Hand:     []deck.Card{card(deck.Denari, deck.Cinque), card(deck.Denari, deck.Cavallo)},
		Table:    []deck.Card{card(deck.Denari, deck.Fante)},
		LeadSuit: deck.Denari,
	}
	assert.Equal(t, g.ChooseCard(view), m.ChooseCard(view))
}

func TestStrategiesAlwaysReturnLegalCards(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	strategies := []Strategy{
		NewWeakest(rand.New(rand.NewSource(2))),
		NewGreedy(),
		NewLookahead(),
		NewMinimax(DefaultSearchDepth),
	}

	for trial := 0; trial < 50; trial++ {
		d := deck.NewDeck(rng)
		d.Shuffle()
		hand := d.DealN(5)
		oppHand := d.DealN(5)
		leadCard := oppHand[0]

		view := View{
			Hand:     hand,
			Table:    []deck.Card{leadCard},
			LeadSuit: leadCard.Suit(),
			OppHand:  oppHand,
			OwnScore: 0,
			OppScore: 0,
			Target:   63,
		}

		for _, s := range strategies {
			got := s.ChooseCard(view)
			require.Contains(t, hand, got, "%s returned a card not in hand", s.Name())
			if deck.HasSuit(hand, view.LeadSuit) {
				require.Equal(t, view.LeadSuit, got.Suit(),
					"%s broke suit-following on trial %d", s.Name(), trial)
			}
		}
	}
}
