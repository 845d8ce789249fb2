package match

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/park285/kalah-relay/internal/kalah"
	"github.com/park285/kalah-relay/internal/msgcat"
	"github.com/park285/kalah-relay/internal/obslog"
)

// Session drives one match between two channels. It owns its board; nothing
// else reads or writes it while Run is executing.
type Session struct {
	id       string
	channels [2]Channel
	remotes  [2]string

	board  kalah.Board
	active kalah.Player
	phase  Phase
	moves  []Move

	seedsPerPit   int
	moveTimeout   time.Duration
	shutdownDelay time.Duration

	cat      *msgcat.Catalog
	observer Observer
	logger   *zap.Logger

	startedAt time.Time
	updatedAt time.Time
}

type Option func(*Session)

func WithCatalog(c *msgcat.Catalog) Option {
	return func(s *Session) {
		if c != nil {
			s.cat = c
		}
	}
}

func WithObserver(o Observer) Option {
	return func(s *Session) {
		if o != nil {
			s.observer = o
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithSeedsPerPit(n int) Option { return func(s *Session) { s.seedsPerPit = n } }

// WithMoveTimeout bounds each blocking read; zero waits forever.
func WithMoveTimeout(d time.Duration) Option { return func(s *Session) { s.moveTimeout = d } }

// WithShutdownDelay sets the pause between the shutdown notice and close.
func WithShutdownDelay(d time.Duration) Option { return func(s *Session) { s.shutdownDelay = d } }

// WithRemotes labels the two channels (usually remote addresses) for logs and snapshots.
func WithRemotes(p1, p2 string) Option { return func(s *Session) { s.remotes = [2]string{p1, p2} } }

func NewSession(id string, p1, p2 Channel, opts ...Option) *Session {
	s := &Session{
		id:            id,
		channels:      [2]Channel{p1, p2},
		seedsPerPit:   kalah.DefaultSeedsPerPit,
		shutdownDelay: 10 * time.Second,
		observer:      NopObserver{},
		logger:        obslog.L(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.board = kalah.NewBoard(s.seedsPerPit)
	s.active = kalah.Player1
	s.phase = PhaseAwaitingMove
	return s
}

func (s *Session) ID() string { return s.id }

// Run plays the match to completion. A channel failure aborts the match and
// returns an error wrapping ErrAborted; no outcome is announced in that case.
func (s *Session) Run(ctx context.Context) (res *Result, err error) {
	defer s.closeChannels()

	if s.cat == nil {
		if s.cat, err = msgcat.Default(); err != nil {
			return nil, fmt.Errorf("load messages: %w", err)
		}
	}

	s.startedAt = time.Now()
	s.updatedAt = s.startedAt
	log := s.logger.With(zap.String("match_id", s.id))
	log.Info("match_start",
		zap.String("player1", s.remotes[0]),
		zap.String("player2", s.remotes[1]),
		zap.Int("seeds_per_pit", s.seedsPerPit),
	)
	s.notify("start", s.observer.OnStart(ctx, s.snapshot()))

	defer func() {
		if err == nil {
			return
		}
		s.phase = PhaseAborted
		log.Warn("match_abort", zap.Int("moves", len(s.moves)), zap.Error(err))
		s.notify("abort", s.observer.OnAbort(context.WithoutCancel(ctx), s.snapshot(), err))
	}()

	if err := s.broadcast(ctx, msgcat.KeyGameStarted, nil); err != nil {
		return nil, err
	}

	for s.phase == PhaseAwaitingMove {
		mv, err := s.playTurn(ctx)
		if err != nil {
			return nil, err
		}
		s.moves = append(s.moves, mv)
		s.updatedAt = mv.At
		if !mv.ExtraTurn {
			s.active = s.active.Opponent()
		}

		log.Debug("match_move",
			zap.Stringer("player", mv.Player),
			zap.Int("pit", mv.Pit),
			zap.Int("captured", mv.Captured),
			zap.Bool("extra_turn", mv.ExtraTurn),
		)

		if kalah.IsGameOver(&s.board) {
			if side, ok := kalah.SideWithSeeds(&s.board); ok {
				kalah.HarvestRemaining(&s.board, side)
			}
			s.phase = PhaseTerminal
		}
		s.notify("move", s.observer.OnMove(ctx, s.snapshot(), mv))
	}

	outcome := kalah.DetermineWinner(&s.board)
	res = &Result{
		ID:        s.id,
		Outcome:   outcome,
		Board:     s.board,
		Moves:     append([]Move(nil), s.moves...),
		Remotes:   s.remotes,
		StartedAt: s.startedAt,
		EndedAt:   time.Now(),
	}
	log.Info("match_finish",
		zap.String("outcome", string(outcome.Result)),
		zap.Int("store1", outcome.Store1),
		zap.Int("store2", outcome.Store2),
		zap.Int("moves", len(s.moves)),
	)
	s.notify("finish", s.observer.OnFinish(ctx, res))

	// the match is decided; a failed delivery only skips the close notice
	if derr := s.announceOutcome(ctx, outcome); derr != nil {
		log.Warn("match_outcome_delivery", zap.Error(derr))
		return res, nil
	}
	s.shutdown(ctx)
	return res, nil
}

// playTurn shows the board to both sides and reads from the active player
// until a legal move arrives.
func (s *Session) playTurn(ctx context.Context) (Move, error) {
	p := s.active
	waiting := p.Opponent()

	lines := append([]string{""}, RenderBoard(s.board, waiting)...)
	opp, err := s.cat.Render(msgcat.KeyOpponentTurn, map[string]any{"Player": int(p)})
	if err != nil {
		return Move{}, err
	}
	if err := s.send(ctx, waiting, append(lines, opp)...); err != nil {
		return Move{}, err
	}

	for {
		if err := s.prompt(ctx, p); err != nil {
			return Move{}, err
		}
		raw, err := s.read(ctx, p)
		if errors.Is(err, errDiscardedInput) {
			if err := s.reject(ctx, p); err != nil {
				return Move{}, err
			}
			continue
		}
		if err != nil {
			return Move{}, err
		}

		n, perr := strconv.Atoi(strings.TrimSpace(raw))
		if perr != nil {
			if err := s.reject(ctx, p); err != nil {
				return Move{}, err
			}
			continue
		}
		pit := kalah.ToAbsolute(p, n)
		if !kalah.IsLegalMove(&s.board, p, pit) {
			if err := s.reject(ctx, p); err != nil {
				return Move{}, err
			}
			continue
		}

		r := kalah.Sow(&s.board, p, pit)
		return Move{
			Player:    p,
			Pit:       pit,
			Local:     n,
			Captured:  r.Captured,
			ExtraTurn: r.ExtraTurn,
			At:        time.Now(),
		}, nil
	}
}

func (s *Session) prompt(ctx context.Context, p kalah.Player) error {
	hint, err := s.cat.Render(msgcat.KeyInputHint, nil)
	if err != nil {
		return err
	}
	turn, err := s.cat.Render(msgcat.KeyYourTurn, nil)
	if err != nil {
		return err
	}
	moves, err := s.cat.Render(msgcat.KeyPossibleMoves, map[string]any{
		"Moves": joinMoves(kalah.LegalMoves(&s.board, p)),
	})
	if err != nil {
		return err
	}
	lines := append([]string{""}, RenderBoard(s.board, p)...)
	lines = append(lines, hint, turn, moves)
	return s.send(ctx, p, lines...)
}

func (s *Session) reject(ctx context.Context, p kalah.Player) error {
	msg, err := s.cat.Render(msgcat.KeyInvalidMove, nil)
	if err != nil {
		return err
	}
	s.logger.Debug("match_invalid_move", zap.String("match_id", s.id), zap.Stringer("player", p))
	return s.send(ctx, p, "", msg)
}

func (s *Session) announceOutcome(ctx context.Context, out kalah.MatchOutcome) error {
	var head string
	var err error
	if w, ok := out.Winner(); ok {
		head, err = s.cat.Render(msgcat.KeyOutcomeWin, map[string]any{"Winner": int(w)})
	} else {
		head, err = s.cat.Render(msgcat.KeyOutcomeTie, nil)
	}
	if err != nil {
		return err
	}
	score1, err := s.cat.Render(msgcat.KeyOutcomeScore, map[string]any{"Player": 1, "Score": out.Store1})
	if err != nil {
		return err
	}
	score2, err := s.cat.Render(msgcat.KeyOutcomeScore, map[string]any{"Player": 2, "Score": out.Store2})
	if err != nil {
		return err
	}

	for _, p := range []kalah.Player{kalah.Player1, kalah.Player2} {
		lines := append([]string{""}, RenderBoard(s.board, p)...)
		lines = append(lines, "", head, score1, score2)
		if err := s.send(ctx, p, lines...); err != nil {
			return err
		}
	}
	return nil
}

// shutdown sends the delayed close notice. Failures here are ignored: the
// outcome has already been delivered.
func (s *Session) shutdown(ctx context.Context) {
	secs := int(s.shutdownDelay.Round(time.Second) / time.Second)
	if pending, err := s.cat.Render(msgcat.KeyShutdownPending, map[string]any{"Seconds": secs}); err == nil {
		_ = s.broadcastLine(ctx, pending)
	}
	if s.shutdownDelay > 0 {
		t := time.NewTimer(s.shutdownDelay)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}
	if now, err := s.cat.Render(msgcat.KeyShutdownNow, nil); err == nil {
		_ = s.broadcastLine(ctx, now)
	}
}

func (s *Session) broadcast(ctx context.Context, key string, data any) error {
	line, err := s.cat.Render(key, data)
	if err != nil {
		return err
	}
	return s.broadcastLine(ctx, line)
}

func (s *Session) broadcastLine(ctx context.Context, line string) error {
	if err := s.send(ctx, kalah.Player1, line); err != nil {
		return err
	}
	return s.send(ctx, kalah.Player2, line)
}

func (s *Session) send(ctx context.Context, p kalah.Player, lines ...string) error {
	ch := s.channels[int(p)-1]
	for _, l := range lines {
		if err := ch.WriteLine(ctx, l); err != nil {
			return &AbortError{Player: p, Err: err}
		}
	}
	return nil
}

func (s *Session) read(ctx context.Context, p kalah.Player) (string, error) {
	rctx := ctx
	if s.moveTimeout > 0 {
		var cancel context.CancelFunc
		rctx, cancel = context.WithTimeout(ctx, s.moveTimeout)
		defer cancel()
	}
	line, err := s.channels[int(p)-1].ReadLine(rctx)
	if isInvalidInput(err) {
		s.logger.Debug("match_input_discarded", zap.String("match_id", s.id), zap.Stringer("player", p), zap.Error(err))
		return "", errDiscardedInput
	}
	if err != nil {
		return "", &AbortError{Player: p, Err: err}
	}
	return line, nil
}

func (s *Session) closeChannels() {
	for i, ch := range s.channels {
		if ch == nil {
			continue
		}
		if err := ch.Close(); err != nil {
			s.logger.Debug("match_channel_close", zap.String("match_id", s.id), zap.Int("player", i+1), zap.Error(err))
		}
	}
}

func (s *Session) snapshot() Snapshot {
	return Snapshot{
		ID:        s.id,
		Board:     s.board,
		Active:    s.active,
		Phase:     s.phase,
		MoveCount: len(s.moves),
		Remotes:   s.remotes,
		StartedAt: s.startedAt,
		UpdatedAt: s.updatedAt,
	}
}

func (s *Session) notify(event string, err error) {
	if err != nil {
		s.logger.Warn("match_observer_error", zap.String("match_id", s.id), zap.String("event", event), zap.Error(err))
	}
}
