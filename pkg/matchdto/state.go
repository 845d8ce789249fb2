package matchdto

import "time"

// MatchState is a live match as published to Redis and the admin API.
type MatchState struct {
	ID        string      `json:"id"`
	Phase     string      `json:"phase"`
	Board     [14]int     `json:"board"`
	Active    int         `json:"active"`
	MoveCount int         `json:"move_count"`
	Player1   string      `json:"player1"`
	Player2   string      `json:"player2"`
	StartedAt time.Time   `json:"started_at"`
	UpdatedAt time.Time   `json:"updated_at"`
	LastMove  *MoveRecord `json:"last_move,omitempty"`
	Error     string      `json:"error,omitempty"`
}
