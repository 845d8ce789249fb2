package match

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/park285/kalah-relay/internal/kalah"
)

// Channel is one player's bidirectional line stream.
// ReadLine blocks until a full line arrives, ctx is done, or the stream breaks.
// A read error with an InvalidInput() bool method returning true means one line
// was dropped and the stream is still usable; it counts as an invalid move.
type Channel interface {
	ReadLine(ctx context.Context) (string, error)
	WriteLine(ctx context.Context, line string) error
	Close() error
}

// Phase of a match session.
type Phase string

const (
	PhaseAwaitingMove Phase = "AWAITING_MOVE"
	PhaseTerminal     Phase = "TERMINAL"
	PhaseAborted      Phase = "ABORTED"
)

// Move is one applied move.
type Move struct {
	Player    kalah.Player `json:"player"`
	Pit       int          `json:"pit"`
	Local     int          `json:"local"`
	Captured  int          `json:"captured,omitempty"`
	ExtraTurn bool         `json:"extra_turn,omitempty"`
	At        time.Time    `json:"at"`
}

// Snapshot is a copy of the session state handed to observers.
type Snapshot struct {
	ID        string
	Board     kalah.Board
	Active    kalah.Player
	Phase     Phase
	MoveCount int
	Remotes   [2]string
	StartedAt time.Time
	UpdatedAt time.Time
}

// Result is returned by a session that reached Terminal.
type Result struct {
	ID        string
	Outcome   kalah.MatchOutcome
	Board     kalah.Board
	Moves     []Move
	Remotes   [2]string
	StartedAt time.Time
	EndedAt   time.Time
}

// Observer receives session events. Calls happen on the session goroutine;
// returned errors are logged and never stop the match.
type Observer interface {
	OnStart(ctx context.Context, s Snapshot) error
	OnMove(ctx context.Context, s Snapshot, mv Move) error
	OnFinish(ctx context.Context, r *Result) error
	OnAbort(ctx context.Context, s Snapshot, cause error) error
}

// NopObserver ignores every event.
type NopObserver struct{}

func (NopObserver) OnStart(context.Context, Snapshot) error        { return nil }
func (NopObserver) OnMove(context.Context, Snapshot, Move) error   { return nil }
func (NopObserver) OnFinish(context.Context, *Result) error        { return nil }
func (NopObserver) OnAbort(context.Context, Snapshot, error) error { return nil }

// ErrAborted marks a match that ended without an outcome.
var ErrAborted = errors.New("match aborted")

var errDiscardedInput = errors.New("input line discarded")

func isInvalidInput(err error) bool {
	var ii interface{ InvalidInput() bool }
	return errors.As(err, &ii) && ii.InvalidInput()
}

// AbortError reports which player's channel failed.
type AbortError struct {
	Player kalah.Player
	Err    error
}

func (e *AbortError) Error() string {
	return fmt.Sprintf("match aborted: %s channel: %v", e.Player, e.Err)
}

func (e *AbortError) Unwrap() []error { return []error{ErrAborted, e.Err} }
