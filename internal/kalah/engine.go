package kalah

// IsLegalMove reports whether p may sow from pit. It never panics.
func IsLegalMove(b *Board, p Player, pit int) bool {
	if b == nil || !p.Valid() {
		return false
	}
	if pit < 0 || pit >= Slots {
		return false
	}
	// stores are not sowable pits
	if IsStore(pit) {
		return false
	}
	if !Owns(p, pit) {
		return false
	}
	return b[pit] > 0
}

// ApplyMove sows pit for p and reports whether p moves again.
func ApplyMove(b *Board, p Player, pit int) bool {
	return Sow(b, p, pit).ExtraTurn
}

// Sow performs the move in place. Illegal moves leave the board untouched and
// return a zero MoveResult with Last == -1.
func Sow(b *Board, p Player, pit int) MoveResult {
	res := MoveResult{Pit: pit, Last: -1}
	if !IsLegalMove(b, p, pit) {
		return res
	}

	seeds := b[pit]
	b[pit] = 0
	res.Seeds = seeds

	skip := StoreIndex(p.Opponent())
	idx := pit
	for n := 0; n < seeds; n++ {
		idx = (idx + 1) % Slots
		if idx == skip {
			idx = (idx + 1) % Slots
		}
		b[idx]++
	}
	res.Last = idx

	own := StoreIndex(p)
	if idx == own {
		res.ExtraTurn = true
		return res
	}

	if Owns(p, idx) && b[idx] == 1 {
		opp := Opposite(idx)
		if b[opp] > 0 {
			res.Captured = b[idx] + b[opp]
			b[own] += res.Captured
			b[idx] = 0
			b[opp] = 0
		}
	}
	return res
}

// IsGameOver is true once either side has no seeds left in its pits.
func IsGameOver(b *Board) bool {
	return b.SideSeeds(Player1) == 0 || b.SideSeeds(Player2) == 0
}

// SideWithSeeds returns the player whose pits still hold seeds. The second
// value is false when both sides are empty.
func SideWithSeeds(b *Board) (Player, bool) {
	if b.SideSeeds(Player1) > 0 {
		return Player1, true
	}
	if b.SideSeeds(Player2) > 0 {
		return Player2, true
	}
	return 0, false
}

// HarvestRemaining sweeps side's pits into side's store.
func HarvestRemaining(b *Board, side Player) {
	if !side.Valid() {
		return
	}
	lo, hi := PitRange(side)
	store := StoreIndex(side)
	for i := lo; i <= hi; i++ {
		b[store] += b[i]
		b[i] = 0
	}
}

// DetermineWinner compares the two stores.
func DetermineWinner(b *Board) MatchOutcome {
	out := MatchOutcome{Store1: b[Store1], Store2: b[Store2]}
	switch {
	case out.Store1 > out.Store2:
		out.Result = Player1Wins
	case out.Store2 > out.Store1:
		out.Result = Player2Wins
	default:
		out.Result = Tie
	}
	return out
}

// LegalMoves lists p's playable pits in p's local frame (0-5).
func LegalMoves(b *Board, p Player) []int {
	lo, hi := PitRange(p)
	out := make([]int, 0, PitsPerSide)
	for i := lo; i <= hi; i++ {
		if b[i] > 0 {
			out = append(out, ToLocal(p, i))
		}
	}
	return out
}
