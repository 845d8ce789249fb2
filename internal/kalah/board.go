package kalah

const (
	// PitsPerSide is the number of sowable pits per player.
	PitsPerSide = 6
	// Slots is the total number of board slots (12 pits + 2 stores).
	Slots = 14
	// DefaultSeedsPerPit is the standard opening count.
	DefaultSeedsPerPit = 4

	Store1 = 6
	Store2 = 13
)

// Board holds seed counts: 0-5 Player 1 pits, 6 Player 1 store,
// 7-12 Player 2 pits, 13 Player 2 store.
type Board [Slots]int

// NewBoard returns the opening configuration.
func NewBoard(seedsPerPit int) Board {
	if seedsPerPit <= 0 {
		seedsPerPit = DefaultSeedsPerPit
	}
	var b Board
	for i := 0; i < PitsPerSide; i++ {
		b[i] = seedsPerPit
		b[Store1+1+i] = seedsPerPit
	}
	return b
}

// Total is the sum of all slots. Constant over a match.
func (b *Board) Total() int {
	n := 0
	for _, v := range b {
		n += v
	}
	return n
}

// Store returns the store value of p.
func (b *Board) Store(p Player) int { return b[StoreIndex(p)] }

// SideSeeds returns the number of seeds left in p's six pits.
func (b *Board) SideSeeds(p Player) int {
	lo, hi := PitRange(p)
	n := 0
	for i := lo; i <= hi; i++ {
		n += b[i]
	}
	return n
}

// StoreIndex returns the absolute store index of p.
func StoreIndex(p Player) int {
	if p == Player2 {
		return Store2
	}
	return Store1
}

// PitRange returns the inclusive absolute pit range owned by p.
func PitRange(p Player) (lo, hi int) {
	if p == Player2 {
		return Store1 + 1, Store2 - 1
	}
	return 0, Store1 - 1
}

// IsStore reports whether idx is either store.
func IsStore(idx int) bool { return idx == Store1 || idx == Store2 }

// Owns reports whether idx is one of p's sowable pits.
func Owns(p Player, idx int) bool {
	lo, hi := PitRange(p)
	return idx >= lo && idx <= hi
}

// Opposite maps a pit to the pit facing it across the board.
func Opposite(idx int) int { return 2*PitsPerSide - idx }

// ToAbsolute converts a player-local pit number (0-5) into a board index.
func ToAbsolute(p Player, local int) int {
	if p == Player2 {
		return local + Store1 + 1
	}
	return local
}

// ToLocal converts a board index into p's local pit number.
func ToLocal(p Player, idx int) int {
	if p == Player2 {
		return idx - (Store1 + 1)
	}
	return idx
}
