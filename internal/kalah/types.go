package kalah

import "fmt"

// Player identifies one side of the board.
type Player int

const (
	Player1 Player = 1
	Player2 Player = 2
)

// Opponent returns the other player.
func (p Player) Opponent() Player {
	if p == Player1 {
		return Player2
	}
	return Player1
}

func (p Player) String() string {
	switch p {
	case Player1:
		return "Player 1"
	case Player2:
		return "Player 2"
	default:
		return fmt.Sprintf("Player(%d)", int(p))
	}
}

// Valid reports whether p is one of the two seats.
func (p Player) Valid() bool { return p == Player1 || p == Player2 }

// Outcome is the final result of a match.
type Outcome string

const (
	Player1Wins Outcome = "player1"
	Player2Wins Outcome = "player2"
	Tie         Outcome = "tie"
)

// MatchOutcome carries the result together with the final store values.
type MatchOutcome struct {
	Result Outcome
	Store1 int
	Store2 int
}

// Winner returns the winning player, or false on a tie.
func (o MatchOutcome) Winner() (Player, bool) {
	switch o.Result {
	case Player1Wins:
		return Player1, true
	case Player2Wins:
		return Player2, true
	default:
		return 0, false
	}
}

// MoveResult describes what a single sowing did to the board.
type MoveResult struct {
	Pit       int  // absolute source pit
	Seeds     int  // seeds picked up
	Last      int  // absolute index of the final seed
	Captured  int  // seeds banked by capture (landing seed included), 0 if none
	ExtraTurn bool // final seed landed in the mover's store
}
