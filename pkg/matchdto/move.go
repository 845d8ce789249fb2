package matchdto

import "time"

// MoveRecord is one accepted move. Pit is the absolute board index, Local the
// number the player typed.
type MoveRecord struct {
	Player    int       `json:"player"`
	Pit       int       `json:"pit"`
	Local     int       `json:"local"`
	Captured  int       `json:"captured,omitempty"`
	ExtraTurn bool      `json:"extra_turn,omitempty"`
	At        time.Time `json:"at"`
}
