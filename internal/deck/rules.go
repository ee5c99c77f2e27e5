package deck

// Winner returns the winning card of a completed trick. Only cards of
// the lead suit can take the trick; among those the strongest wins.
// Slots holding NoCard are skipped so the function can also score a
// partially filled trick.
func Winner(trick []Card, lead Suit) Card {
	best := NoCard
	for _, c := range trick {
		if c == NoCard || c.Suit() != lead {
			continue
		}
		if best == NoCard || c.Strength() > best.Strength() {
			best = c
		}
	}
	return best
}

// TrickPoints sums the server-point value of the cards in a trick.
func TrickPoints(trick []Card) int {
	total := 0
	for _, c := range trick {
		if c == NoCard {
			continue
		}
		total += c.Points()
	}
	return total
}

// DetectNapoli returns the suits for which the hand holds ace, two and
// three together. Each suit found is worth NapoliBonus once per round.
func DetectNapoli(hand []Card) []Suit {
	var found []Suit
	for suit := Denari; suit <= Bastoni; suit++ {
		hasAce, hasTwo, hasThree := false, false, false
		for _, c := range hand {
			if c.Suit() != suit {
				continue
			}
			switch c.Rank() {
			case Asso:
				hasAce = true
			case Due:
				hasTwo = true
			case Tre:
				hasThree = true
			}
		}
		if hasAce && hasTwo && hasThree {
			found = append(found, suit)
		}
	}
	return found
}

// HasSuit reports whether the hand contains at least one card of the
// given suit.
func HasSuit(hand []Card, suit Suit) bool {
	for _, c := range hand {
		if c.Suit() == suit {
			return true
		}
	}
	return false
}

// SuitCards returns the cards of the hand matching the given suit.
func SuitCards(hand []Card, suit Suit) []Card {
	var out []Card
	for _, c := range hand {
		if c.Suit() == suit {
			out = append(out, c)
		}
	}
	return out
}
