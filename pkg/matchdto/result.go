package matchdto

import "time"

// MatchResult is a finished match: persisted by the repository and posted
// to the result webhook.
type MatchResult struct {
	ID         string       `json:"id"`
	Outcome    string       `json:"outcome"`
	Winner     int          `json:"winner"`
	Store1     int          `json:"store1"`
	Store2     int          `json:"store2"`
	Board      [14]int      `json:"board"`
	Player1    string       `json:"player1"`
	Player2    string       `json:"player2"`
	MoveCount  int          `json:"move_count"`
	Moves      []MoveRecord `json:"moves,omitempty"`
	StartedAt  time.Time    `json:"started_at"`
	EndedAt    time.Time    `json:"ended_at"`
	DurationMS int64        `json:"duration_ms"`
}

// Duration is EndedAt minus StartedAt.
func (r MatchResult) Duration() time.Duration { return time.Duration(r.DurationMS) * time.Millisecond }
