package domain

// DrawSpread draws one unique card per spread position from the full deck of
// the given style. Orientation is 50/50 upright/reversed.
func DrawSpread(def SpreadDef, style DeckStyle, rng RNG) ([]DrawnCard, error) {
	n := def.Count()
	if n < 1 || n > 10 {
		return nil, ErrInvalidN
	}
	names := DeckNames(style)
	if n > len(names) {
		return nil, ErrNExceedsDeck
	}

	// Fisher-Yates partial shuffle: only need first n elements.
	indices := make([]int, len(names))
	for i := range indices {
		indices[i] = i
	}
	for i := len(indices) - 1; i > 0; i-- {
		j := rng.Intn(i + 1)
		indices[i], indices[j] = indices[j], indices[i]
	}

	cards := make([]DrawnCard, n)
	for i := range n {
		orientation := Upright
		if rng.Intn(2) == 1 {
			orientation = Reversed
		}
		cards[i] = DrawnCard{
			Position:    def.Positions[i].Name,
			Name:        names[indices[i]],
			Orientation: orientation,
		}
	}
	return cards, nil
}
