package lobby

import (
    "context"
    "errors"
    "fmt"
    "sync"
    "sync/atomic"

    "github.com/google/uuid"
    "go.uber.org/zap"

    "github.com/park285/kalah-relay/internal/match"
    "github.com/park285/kalah-relay/internal/msgcat"
    "github.com/park285/kalah-relay/internal/obslog"
)

var (
    ErrClosed      = errors.New("relay closed")
    ErrInvalidArgs = errors.New("invalid arguments")
)

const DefaultMaxGames = 200

// ResultFunc receives the outcome of every match the relay started.
type ResultFunc func(gameNo uint64, res *match.Result, err error)

type seat struct {
    ch     match.Channel
    remote string
}

// Relay pairs incoming connections two at a time and runs a session for
// each pair. The first connection waits until a second one arrives.
type Relay struct {
    mu      sync.Mutex
    waiting *seat
    closed  bool

    seq    uint64
    active atomic.Int64
    slots  chan struct{}
    wg     sync.WaitGroup

    cat      *msgcat.Catalog
    opts     []match.Option
    onResult ResultFunc
    logger   *zap.Logger
}

type Option func(*Relay)

// WithMaxGames caps concurrently running matches; further pairs wait for a slot.
func WithMaxGames(n int) Option {
    return func(r *Relay) {
        if n > 0 {
            r.slots = make(chan struct{}, n)
        }
    }
}

func WithCatalog(c *msgcat.Catalog) Option { return func(r *Relay) { r.cat = c } }

// WithSessionOptions are applied to every session the relay creates.
func WithSessionOptions(opts ...match.Option) Option {
    return func(r *Relay) { r.opts = append(r.opts, opts...) }
}

func WithResultFunc(f ResultFunc) Option { return func(r *Relay) { r.onResult = f } }

func WithLogger(l *zap.Logger) Option {
    return func(r *Relay) {
        if l != nil {
            r.logger = l
        }
    }
}

func NewRelay(opts ...Option) (*Relay, error) {
    r := &Relay{
        slots:  make(chan struct{}, DefaultMaxGames),
        logger: obslog.L(),
    }
    for _, opt := range opts {
        opt(r)
    }
    if r.cat == nil {
        c, err := msgcat.Default()
        if err != nil {
            return nil, fmt.Errorf("load messages: %w", err)
        }
        r.cat = c
    }
    return r, nil
}

// Enqueue seats a new connection. ctx is the server lifetime context; the
// match started for the pair runs under it.
func (r *Relay) Enqueue(ctx context.Context, ch match.Channel, remote string) error {
    if ch == nil {
        return ErrInvalidArgs
    }
    s := &seat{ch: ch, remote: remote}

    r.mu.Lock()
    if r.closed {
        r.mu.Unlock()
        _ = ch.Close()
        return ErrClosed
    }
    if r.waiting == nil {
        // greeting is sent under the lock so "Welcome Player 1." always
        // precedes "Player 2 joined." on this connection
        err := r.greetFirst(ctx, s)
        if err == nil {
            r.waiting = s
        }
        r.mu.Unlock()
        if err != nil {
            _ = ch.Close()
            r.logger.Info("lobby_drop", zap.String("remote", remote), zap.Error(err))
            return err
        }
        r.logger.Info("lobby_wait", zap.String("remote", remote))
        return nil
    }
    first := r.waiting
    r.waiting = nil
    // counted before unlocking so Close+Wait cannot miss a pair being seated
    r.wg.Add(1)
    r.mu.Unlock()
    started := false
    defer func() {
        if !started {
            r.wg.Done()
        }
    }()

    joined, err := r.cat.Render(msgcat.KeyOpponentJoined, nil)
    if err != nil {
        return err
    }
    if err := first.ch.WriteLine(ctx, joined); err != nil {
        // player 1 left while waiting; the newcomer takes the first seat
        _ = first.ch.Close()
        r.logger.Info("lobby_drop", zap.String("remote", first.remote), zap.Error(err))
        return r.Enqueue(ctx, ch, remote)
    }
    if err := r.greet(ctx, s.ch, 2); err != nil {
        _ = ch.Close()
        _ = first.ch.Close()
        r.logger.Info("lobby_drop", zap.String("remote", remote), zap.Error(err))
        return err
    }

    started = true
    r.start(ctx, first, s)
    return nil
}

func (r *Relay) greetFirst(ctx context.Context, s *seat) error {
    if err := r.greet(ctx, s.ch, 1); err != nil {
        return err
    }
    wait, err := r.cat.Render(msgcat.KeyWaitingOpponent, nil)
    if err != nil {
        return err
    }
    return s.ch.WriteLine(ctx, wait)
}

func (r *Relay) greet(ctx context.Context, ch match.Channel, player int) error {
    line, err := r.cat.Render(msgcat.KeyWelcome, map[string]any{"Player": player})
    if err != nil {
        return err
    }
    return ch.WriteLine(ctx, line)
}

// start runs the match on its own goroutine. The caller has already added it
// to r.wg.
func (r *Relay) start(ctx context.Context, p1, p2 *seat) {
    gameNo := atomic.AddUint64(&r.seq, 1)
    id := uuid.NewString()
    r.logger.Info("lobby_pair",
        zap.Uint64("game_no", gameNo),
        zap.String("match_id", id),
        zap.String("player1", p1.remote),
        zap.String("player2", p2.remote),
    )

    go func() {
        defer r.wg.Done()

        select {
        case r.slots <- struct{}{}:
        case <-ctx.Done():
            _ = p1.ch.Close()
            _ = p2.ch.Close()
            r.report(gameNo, nil, fmt.Errorf("%w: %w", match.ErrAborted, ctx.Err()))
            return
        }
        defer func() { <-r.slots }()

        r.active.Add(1)
        defer r.active.Add(-1)

        opts := append(append([]match.Option(nil), r.opts...),
            match.WithCatalog(r.cat),
            match.WithRemotes(p1.remote, p2.remote),
        )
        res, err := match.NewSession(id, p1.ch, p2.ch, opts...).Run(ctx)
        r.report(gameNo, res, err)
    }()
}

func (r *Relay) report(gameNo uint64, res *match.Result, err error) {
    if r.onResult != nil {
        r.onResult(gameNo, res, err)
    }
}

// Active reports the number of matches currently being played.
func (r *Relay) Active() int { return int(r.active.Load()) }

// Waiting reports whether a player is seated without an opponent.
func (r *Relay) Waiting() bool {
    r.mu.Lock()
    defer r.mu.Unlock()
    return r.waiting != nil
}

// Close stops accepting players and disconnects a waiting one. Running
// matches are not interrupted; cancel their context for that.
func (r *Relay) Close() error {
    r.mu.Lock()
    defer r.mu.Unlock()
    if r.closed {
        return nil
    }
    r.closed = true
    if r.waiting != nil {
        err := r.waiting.ch.Close()
        r.waiting = nil
        return err
    }
    return nil
}

// Wait blocks until every started match has returned.
func (r *Relay) Wait() { r.wg.Wait() }
