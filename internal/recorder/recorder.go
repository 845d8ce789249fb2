package recorder

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/park285/kalah-relay/internal/match"
	"github.com/park285/kalah-relay/internal/obslog"
	"github.com/park285/kalah-relay/pkg/matchdto"
)

type SnapshotStore interface {
	Save(ctx context.Context, st *matchdto.MatchState) error
}

type ResultRepository interface {
	SaveResult(ctx context.Context, res *matchdto.MatchResult) error
}

type ResultNotifier interface {
	PostResult(ctx context.Context, res *matchdto.MatchResult) error
}

const defaultOpTimeout = 3 * time.Second

// Recorder publishes match progress. Every sink is optional; a Recorder with
// none is a no-op observer.
type Recorder struct {
	store    SnapshotStore
	repo     ResultRepository
	notifier ResultNotifier

	opTimeout time.Duration
	logger    *zap.Logger
	wg        sync.WaitGroup
}

var _ match.Observer = (*Recorder)(nil)

type Option func(*Recorder)

func WithStore(s SnapshotStore) Option { return func(r *Recorder) { r.store = s } }
func WithRepository(x ResultRepository) Option { return func(r *Recorder) { r.repo = x } }
func WithNotifier(n ResultNotifier) Option { return func(r *Recorder) { r.notifier = n } }

// WithOpTimeout bounds each store and repository call so a slow backend
// cannot stall a match for long.
func WithOpTimeout(d time.Duration) Option {
	return func(r *Recorder) {
		if d > 0 {
			r.opTimeout = d
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(r *Recorder) {
		if l != nil {
			r.logger = l
		}
	}
}

func New(opts ...Option) *Recorder {
	r := &Recorder{opTimeout: defaultOpTimeout, logger: obslog.L()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Recorder) OnStart(ctx context.Context, s match.Snapshot) error {
	return r.save(ctx, StateOf(s, nil))
}

func (r *Recorder) OnMove(ctx context.Context, s match.Snapshot, mv match.Move) error {
	return r.save(ctx, StateOf(s, &mv))
}

func (r *Recorder) OnAbort(ctx context.Context, s match.Snapshot, cause error) error {
	st := StateOf(s, nil)
	if cause != nil {
		st.Error = cause.Error()
	}
	return r.save(ctx, st)
}

// OnFinish persists the result synchronously and posts the webhook in the
// background; Wait drains pending posts.
func (r *Recorder) OnFinish(ctx context.Context, res *match.Result) error {
	if res == nil {
		return nil
	}
	dto := ResultOf(res)
	var errs []error
	if r.repo != nil {
		cctx, cancel := context.WithTimeout(ctx, r.opTimeout)
		if err := r.repo.SaveResult(cctx, dto); err != nil {
			errs = append(errs, err)
		}
		cancel()
	}
	if r.notifier != nil {
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			if err := r.notifier.PostResult(context.WithoutCancel(ctx), dto); err != nil {
				r.logger.Warn("result_webhook_error", zap.String("match_id", dto.ID), zap.Error(err))
				return
			}
			r.logger.Debug("result_webhook_sent", zap.String("match_id", dto.ID))
		}()
	}
	return errors.Join(errs...)
}

// Wait blocks until background webhook posts finish.
func (r *Recorder) Wait() { r.wg.Wait() }

func (r *Recorder) save(ctx context.Context, st *matchdto.MatchState) error {
	if r.store == nil {
		return nil
	}
	cctx, cancel := context.WithTimeout(ctx, r.opTimeout)
	defer cancel()
	return r.store.Save(cctx, st)
}
