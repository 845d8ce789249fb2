package recorder

import (
	"github.com/park285/kalah-relay/internal/match"
	"github.com/park285/kalah-relay/pkg/matchdto"
)

func moveRecord(mv match.Move) matchdto.MoveRecord {
	return matchdto.MoveRecord{
		Player:    int(mv.Player),
		Pit:       mv.Pit,
		Local:     mv.Local,
		Captured:  mv.Captured,
		ExtraTurn: mv.ExtraTurn,
		At:        mv.At,
	}
}

// StateOf converts a session snapshot for publishing.
func StateOf(s match.Snapshot, last *match.Move) *matchdto.MatchState {
	st := &matchdto.MatchState{
		ID:        s.ID,
		Phase:     string(s.Phase),
		Board:     s.Board,
		Active:    int(s.Active),
		MoveCount: s.MoveCount,
		Player1:   s.Remotes[0],
		Player2:   s.Remotes[1],
		StartedAt: s.StartedAt,
		UpdatedAt: s.UpdatedAt,
	}
	if last != nil {
		mv := moveRecord(*last)
		st.LastMove = &mv
	}
	return st
}

// ResultOf converts a finished match for persistence and the webhook.
func ResultOf(r *match.Result) *matchdto.MatchResult {
	out := &matchdto.MatchResult{
		ID:         r.ID,
		Outcome:    string(r.Outcome.Result),
		Store1:     r.Outcome.Store1,
		Store2:     r.Outcome.Store2,
		Board:      r.Board,
		Player1:    r.Remotes[0],
		Player2:    r.Remotes[1],
		MoveCount:  len(r.Moves),
		Moves:      make([]matchdto.MoveRecord, 0, len(r.Moves)),
		StartedAt:  r.StartedAt,
		EndedAt:    r.EndedAt,
		DurationMS: r.EndedAt.Sub(r.StartedAt).Milliseconds(),
	}
	if w, ok := r.Outcome.Winner(); ok {
		out.Winner = int(w)
	}
	for _, mv := range r.Moves {
		out.Moves = append(out.Moves, moveRecord(mv))
	}
	return out
}
