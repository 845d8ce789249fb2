package match

import (
	"context"
	"errors"
	"io"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/park285/kalah-relay/internal/kalah"
)

// discardedLine in a script makes ReadLine report an over-long line.
const discardedLine = "\x00discarded"

type lineDropped struct{}

func (lineDropped) Error() string      { return "line too long" }
func (lineDropped) InvalidInput() bool { return true }

// fakeChannel replays scripted input, then either plays the first legal move
// (bot), blocks until ctx is done (block) or reports EOF.
type fakeChannel struct {
	mu     sync.Mutex
	script []string
	bot    bool
	block  bool
	lines  []string
	closed bool
}

func (f *fakeChannel) ReadLine(ctx context.Context) (string, error) {
	f.mu.Lock()
	if len(f.script) > 0 {
		l := f.script[0]
		f.script = f.script[1:]
		f.mu.Unlock()
		if l == discardedLine {
			return "", lineDropped{}
		}
		return l, nil
	}
	if f.bot {
		l := f.firstLegal()
		f.mu.Unlock()
		return l, nil
	}
	block := f.block
	f.mu.Unlock()
	if block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return "", io.EOF
}

func (f *fakeChannel) WriteLine(_ context.Context, line string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return io.ErrClosedPipe
	}
	f.lines = append(f.lines, line)
	return nil
}

func (f *fakeChannel) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func (f *fakeChannel) firstLegal() string {
	for i := len(f.lines) - 1; i >= 0; i-- {
		if rest, ok := strings.CutPrefix(f.lines[i], "Possible Moves: "); ok {
			rest = strings.TrimSuffix(rest, ".")
			return strings.Split(rest, ", ")[0]
		}
	}
	return "0"
}

func (f *fakeChannel) output() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.lines...)
}

type recordingObserver struct {
	mu       sync.Mutex
	started  int
	moves    []Move
	snaps    []Snapshot
	finished *Result
	aborted  error
}

func (o *recordingObserver) OnStart(context.Context, Snapshot) error {
	o.mu.Lock()
	o.started++
	o.mu.Unlock()
	return nil
}

func (o *recordingObserver) OnMove(_ context.Context, s Snapshot, mv Move) error {
	o.mu.Lock()
	o.moves = append(o.moves, mv)
	o.snaps = append(o.snaps, s)
	o.mu.Unlock()
	return nil
}

func (o *recordingObserver) OnFinish(_ context.Context, r *Result) error {
	o.mu.Lock()
	o.finished = r
	o.mu.Unlock()
	return nil
}

func (o *recordingObserver) OnAbort(_ context.Context, _ Snapshot, cause error) error {
	o.mu.Lock()
	o.aborted = cause
	o.mu.Unlock()
	return errors.New("observer failures are only logged")
}

func newTestSession(p1, p2 Channel, obs Observer, opts ...Option) *Session {
	base := []Option{WithObserver(obs), WithShutdownDelay(0), WithRemotes("p1", "p2")}
	return NewSession("m-test", p1, p2, append(base, opts...)...)
}

func TestRenderBoardOpening(t *testing.T) {
	b := kalah.NewBoard(4)
	want := []string{
		"╔══╦══╦══╦══╦══╦══╦══╦══╗",
		"║ 0║ 4║ 4║ 4║ 4║ 4║ 4║←┐║",
		"║  ╠══╬══╬══╬══╬══╬══╣  ║",
		"║└→║ 4║ 4║ 4║ 4║ 4║ 4║ 0║",
		"╚══╩══╩══╩══╩══╩══╩══╩══╝",
	}
	assert.Equal(t, want, RenderBoard(b, kalah.Player1))
	assert.Equal(t, want, RenderBoard(b, kalah.Player2))
}

func TestRenderBoardOrientation(t *testing.T) {
	b := kalah.Board{1, 2, 3, 4, 5, 6, 10, 7, 8, 9, 11, 12, 13, 20}

	p1 := RenderBoard(b, kalah.Player1)
	assert.Equal(t, "║20║13║12║11║ 9║ 8║ 7║←┐║", p1[1])
	assert.Equal(t, "║└→║ 1║ 2║ 3║ 4║ 5║ 6║10║", p1[3])

	p2 := RenderBoard(b, kalah.Player2)
	assert.Equal(t, "║10║ 6║ 5║ 4║ 3║ 2║ 1║←┐║", p2[1])
	assert.Equal(t, "║└→║ 7║ 8║ 9║11║12║13║20║", p2[3])
}

func TestFirstTurnProtocolAndAbort(t *testing.T) {
	p1 := &fakeChannel{script: []string{"abc", "7", "0"}}
	p2 := &fakeChannel{}
	obs := &recordingObserver{}

	res, err := newTestSession(p1, p2, obs).Run(context.Background())
	require.Error(t, err)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, ErrAborted)
	assert.ErrorIs(t, err, io.EOF)
	var ae *AbortError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, kalah.Player2, ae.Player)

	opening := RenderBoard(kalah.NewBoard(4), kalah.Player1)
	prompt := append([]string{""}, opening...)
	prompt = append(prompt, "   [ 0| 1| 2| 3| 4| 5]", "Your turn! Type a number.", "Possible Moves: 0, 1, 2, 3, 4, 5.")
	invalid := []string{"", "Error: Invalid move!  Please try again."}

	want := []string{"Game Started."}
	want = append(want, prompt...)
	want = append(want, invalid...)
	want = append(want, prompt...)
	want = append(want, invalid...)
	want = append(want, prompt...)
	after := kalah.NewBoard(4)
	kalah.ApplyMove(&after, kalah.Player1, 0)
	want = append(want, "")
	want = append(want, RenderBoard(after, kalah.Player1)...)
	want = append(want, "Opponents turn!  Waiting for Player 2.")
	assert.Equal(t, want, p1.output())

	out2 := p2.output()
	require.GreaterOrEqual(t, len(out2), 8)
	assert.Equal(t, "Game Started.", out2[0])
	assert.Equal(t, "Opponents turn!  Waiting for Player 1.", out2[7])
	assert.Equal(t, "Possible Moves: 0, 1, 2, 3, 4, 5.", out2[len(out2)-1])
	for _, l := range out2 {
		assert.NotContains(t, l, "Wins!")
		assert.NotContains(t, l, "Tie!")
	}

	assert.True(t, p1.closed)
	assert.True(t, p2.closed)
	assert.Equal(t, 1, obs.started)
	require.Len(t, obs.moves, 1)
	assert.ErrorIs(t, obs.aborted, ErrAborted)
	assert.Nil(t, obs.finished)
}

func TestPlayerTwoInputIsTranslated(t *testing.T) {
	p1 := &fakeChannel{script: []string{"0"}}
	p2 := &fakeChannel{script: []string{"3"}}
	obs := &recordingObserver{}

	_, err := newTestSession(p1, p2, obs).Run(context.Background())
	require.ErrorIs(t, err, ErrAborted)

	require.Len(t, obs.moves, 2)
	mv := obs.moves[1]
	assert.Equal(t, kalah.Player2, mv.Player)
	assert.Equal(t, 10, mv.Pit)
	assert.Equal(t, 3, mv.Local)
	// 10 -> 11, 12, 13, 0
	assert.Equal(t, kalah.Board{1, 5, 5, 5, 5, 4, 0, 4, 4, 4, 0, 5, 5, 1}, obs.snaps[1].Board)
	assert.Equal(t, kalah.Player1, obs.snaps[1].Active)
}

func TestPlayerTwoCannotUseAbsoluteIndex(t *testing.T) {
	// "7" from player 2 means board index 14, which is out of range
	p1 := &fakeChannel{script: []string{"0"}}
	p2 := &fakeChannel{script: []string{"7"}}
	obs := &recordingObserver{}

	_, err := newTestSession(p1, p2, obs).Run(context.Background())
	require.ErrorIs(t, err, ErrAborted)
	assert.Len(t, obs.moves, 1)
	assert.Contains(t, p2.output(), "Error: Invalid move!  Please try again.")
}

func TestOverlongLineIsRejectedNotAborted(t *testing.T) {
	p1 := &fakeChannel{script: []string{discardedLine, "0"}}
	p2 := &fakeChannel{}
	obs := &recordingObserver{}

	_, err := newTestSession(p1, p2, obs).Run(context.Background())
	var ae *AbortError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, kalah.Player2, ae.Player, "player 1 keeps the turn and then moves")

	require.Len(t, obs.moves, 1)
	assert.Equal(t, 0, obs.moves[0].Pit)
	out := p1.output()
	assert.Contains(t, out, "Error: Invalid move!  Please try again.")
	assert.Equal(t, 2, countLine(out, "Your turn! Type a number."))
}

func countLine(lines []string, want string) int {
	n := 0
	for _, l := range lines {
		if l == want {
			n++
		}
	}
	return n
}

func TestExtraTurnKeepsActivePlayer(t *testing.T) {
	p1 := &fakeChannel{script: []string{"2"}}
	p2 := &fakeChannel{}
	obs := &recordingObserver{}

	_, err := newTestSession(p1, p2, obs).Run(context.Background())
	var ae *AbortError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, kalah.Player1, ae.Player, "player 1 is prompted again after landing in the store")

	require.Len(t, obs.moves, 1)
	assert.True(t, obs.moves[0].ExtraTurn)
	assert.Equal(t, kalah.Player1, obs.snaps[0].Active)
	assert.Equal(t, 1, obs.snaps[0].Board[kalah.Store1])
}

func TestFullGameReachesOutcome(t *testing.T) {
	p1 := &fakeChannel{script: []string{"", "  ", "-1", "6"}, bot: true}
	p2 := &fakeChannel{script: []string{"five"}, bot: true}
	obs := &recordingObserver{}

	res, err := newTestSession(p1, p2, obs).Run(context.Background())
	require.NoError(t, err)
	require.NotNil(t, res)

	assert.Equal(t, 48, res.Board.Total())
	assert.Equal(t, 48, res.Outcome.Store1+res.Outcome.Store2)
	assert.True(t, kalah.IsGameOver(&res.Board))
	assert.Equal(t, res, obs.finished)
	assert.Len(t, res.Moves, len(obs.moves))
	assert.Nil(t, obs.aborted)
	assert.Equal(t, PhaseTerminal, obs.snaps[len(obs.snaps)-1].Phase)

	for i, s := range obs.snaps {
		require.Equal(t, 48, s.Board.Total(), "move %d", i)
	}

	var head string
	switch res.Outcome.Result {
	case kalah.Player1Wins:
		head = "Player 1 Wins!"
	case kalah.Player2Wins:
		head = "Player 2 Wins!"
	default:
		head = "Tie!"
	}
	for _, ch := range []*fakeChannel{p1, p2} {
		out := ch.output()
		n := len(out)
		require.GreaterOrEqual(t, n, 6)
		assert.Equal(t, head, out[n-5])
		assert.Equal(t, "Player 1: "+strconv.Itoa(res.Outcome.Store1), out[n-4])
		assert.Equal(t, "Player 2: "+strconv.Itoa(res.Outcome.Store2), out[n-3])
		assert.Equal(t, "Stopping match in 0 seconds.", out[n-2])
		assert.Equal(t, "Stopping match now.", out[n-1])
		assert.True(t, ch.closed)
	}
}

func TestMoveTimeoutAborts(t *testing.T) {
	p1 := &fakeChannel{block: true}
	p2 := &fakeChannel{}

	start := time.Now()
	_, err := newTestSession(p1, p2, nil, WithMoveTimeout(20*time.Millisecond)).Run(context.Background())
	require.ErrorIs(t, err, ErrAborted)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestContextCancelAborts(t *testing.T) {
	p1 := &fakeChannel{block: true}
	p2 := &fakeChannel{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := newTestSession(p1, p2, nil).Run(ctx)
		done <- err
	}()
	cancel()
	select {
	case err := <-done:
		require.ErrorIs(t, err, ErrAborted)
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("session did not stop after cancel")
	}
}
