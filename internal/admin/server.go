package admin

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/park285/kalah-relay/internal/boardimg"
	"github.com/park285/kalah-relay/internal/kalah"
	"github.com/park285/kalah-relay/internal/matchrepo"
	"github.com/park285/kalah-relay/internal/matchstore"
	"github.com/park285/kalah-relay/internal/obslog"
	"github.com/park285/kalah-relay/pkg/matchdto"
)

type MatchSource interface {
	ListActive(ctx context.Context) ([]*matchdto.MatchState, error)
	Load(ctx context.Context, id string) (*matchdto.MatchState, error)
	Ping(ctx context.Context) error
}

type ResultSource interface {
	RecentResults(ctx context.Context, limit int) ([]*matchdto.MatchResult, error)
	Result(ctx context.Context, id string) (*matchdto.MatchResult, error)
	Ping(ctx context.Context) error
}

// Stats is the relay's in-process view, reported by /healthz.
type Stats struct {
	ActiveGames int  `json:"active_games"`
	Waiting     bool `json:"waiting"`
}

type Server struct {
	matches MatchSource
	results ResultSource
	stats   func() Stats

	reqTimeout time.Duration
	logger     *zap.Logger
}

type Option func(*Server)

func WithMatches(m MatchSource) Option { return func(s *Server) { s.matches = m } }
func WithResults(r ResultSource) Option { return func(s *Server) { s.results = r } }
func WithStats(f func() Stats) Option { return func(s *Server) { s.stats = f } }

func New(opts ...Option) *Server {
	s := &Server{reqTimeout: 5 * time.Second, logger: obslog.L()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler routes:
//
//	GET /healthz
//	GET /matches
//	GET /matches/{id}
//	GET /matches/{id}/board.png[?viewer=2]
//	GET /results[?limit=N]
//	GET /results/{id}
func (s *Server) Handler() fasthttp.RequestHandler {
	return func(rc *fasthttp.RequestCtx) {
		if !rc.IsGet() && !rc.IsHead() {
			writeError(rc, fasthttp.StatusMethodNotAllowed, "method_not_allowed", "")
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), s.reqTimeout)
		defer cancel()

		path := strings.Trim(string(rc.Path()), "/")
		parts := strings.Split(path, "/")
		switch {
		case path == "healthz":
			s.health(ctx, rc)
		case path == "matches":
			s.listMatches(ctx, rc)
		case len(parts) == 2 && parts[0] == "matches":
			s.getMatch(ctx, rc, parts[1])
		case len(parts) == 3 && parts[0] == "matches" && parts[2] == "board.png":
			s.boardPNG(ctx, rc, parts[1])
		case path == "results":
			s.listResults(ctx, rc)
		case len(parts) == 2 && parts[0] == "results":
			s.getResult(ctx, rc, parts[1])
		default:
			writeError(rc, fasthttp.StatusNotFound, "not_found", "")
		}
	}
}

type healthBody struct {
	Status   string `json:"status"`
	Redis    string `json:"redis"`
	Database string `json:"database"`
	Stats
}

func (s *Server) health(ctx context.Context, rc *fasthttp.RequestCtx) {
	body := healthBody{Status: "ok", Redis: "disabled", Database: "disabled"}
	if s.stats != nil {
		body.Stats = s.stats()
	}
	if s.matches != nil {
		body.Redis = "ok"
		if err := s.matches.Ping(ctx); err != nil {
			body.Redis, body.Status = "down", "degraded"
		}
	}
	if s.results != nil {
		body.Database = "ok"
		if err := s.results.Ping(ctx); err != nil {
			body.Database, body.Status = "down", "degraded"
		}
	}
	code := fasthttp.StatusOK
	if body.Status != "ok" {
		code = fasthttp.StatusServiceUnavailable
	}
	writeJSON(rc, code, body)
}

func (s *Server) listMatches(ctx context.Context, rc *fasthttp.RequestCtx) {
	if s.matches == nil {
		writeError(rc, fasthttp.StatusNotFound, "store_disabled", "REDIS_URL is not configured")
		return
	}
	list, err := s.matches.ListActive(ctx)
	if err != nil {
		s.internal(rc, "admin_list_matches", err)
		return
	}
	if list == nil {
		list = []*matchdto.MatchState{}
	}
	writeJSON(rc, fasthttp.StatusOK, list)
}

func (s *Server) loadMatch(ctx context.Context, rc *fasthttp.RequestCtx, id string) *matchdto.MatchState {
	if s.matches == nil {
		writeError(rc, fasthttp.StatusNotFound, "store_disabled", "REDIS_URL is not configured")
		return nil
	}
	st, err := s.matches.Load(ctx, id)
	if errors.Is(err, matchstore.ErrNotFound) || errors.Is(err, matchstore.ErrInvalidArgs) {
		writeError(rc, fasthttp.StatusNotFound, "match_not_found", id)
		return nil
	}
	if err != nil {
		s.internal(rc, "admin_load_match", err)
		return nil
	}
	return st
}

func (s *Server) getMatch(ctx context.Context, rc *fasthttp.RequestCtx, id string) {
	if st := s.loadMatch(ctx, rc, id); st != nil {
		writeJSON(rc, fasthttp.StatusOK, st)
	}
}

func (s *Server) boardPNG(ctx context.Context, rc *fasthttp.RequestCtx, id string) {
	st := s.loadMatch(ctx, rc, id)
	if st == nil {
		return
	}
	viewer := kalah.Player1
	if string(rc.QueryArgs().Peek("viewer")) == "2" {
		viewer = kalah.Player2
	}
	opts := boardimg.Options{Viewer: viewer, Title: "Match " + shortID(st.ID)}
	if st.Phase == "AWAITING_MOVE" {
		opts.Active = kalah.Player(st.Active)
	}
	raw, err := boardimg.RenderPNG(ctx, kalah.Board(st.Board), opts)
	if err != nil {
		s.internal(rc, "admin_board_png", err)
		return
	}
	rc.SetStatusCode(fasthttp.StatusOK)
	rc.SetContentType("image/png")
	rc.Response.Header.Set("Cache-Control", "no-store")
	rc.SetBody(raw)
}

func (s *Server) listResults(ctx context.Context, rc *fasthttp.RequestCtx) {
	if s.results == nil {
		writeError(rc, fasthttp.StatusNotFound, "results_disabled", "DATABASE_URL is not configured")
		return
	}
	limit := matchrepo.DefaultLimit
	if v := strings.TrimSpace(string(rc.QueryArgs().Peek("limit"))); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(rc, fasthttp.StatusBadRequest, "invalid_limit", v)
			return
		}
		limit = n
	}
	list, err := s.results.RecentResults(ctx, limit)
	if err != nil {
		s.internal(rc, "admin_list_results", err)
		return
	}
	if list == nil {
		list = []*matchdto.MatchResult{}
	}
	writeJSON(rc, fasthttp.StatusOK, list)
}

func (s *Server) getResult(ctx context.Context, rc *fasthttp.RequestCtx, id string) {
	if s.results == nil {
		writeError(rc, fasthttp.StatusNotFound, "results_disabled", "DATABASE_URL is not configured")
		return
	}
	res, err := s.results.Result(ctx, id)
	if errors.Is(err, matchrepo.ErrNotFound) {
		writeError(rc, fasthttp.StatusNotFound, "result_not_found", id)
		return
	}
	if err != nil {
		s.internal(rc, "admin_load_result", err)
		return
	}
	writeJSON(rc, fasthttp.StatusOK, res)
}

func (s *Server) internal(rc *fasthttp.RequestCtx, event string, err error) {
	s.logger.Warn(event, zap.Error(err))
	writeError(rc, fasthttp.StatusInternalServerError, "internal", "")
}

func writeJSON(rc *fasthttp.RequestCtx, code int, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		rc.SetStatusCode(fasthttp.StatusInternalServerError)
		return
	}
	rc.SetStatusCode(code)
	rc.SetContentType("application/json")
	rc.SetBody(raw)
}

func writeError(rc *fasthttp.RequestCtx, code int, errCode, msg string) {
	writeJSON(rc, code, matchdto.ErrorBody{Code: errCode, Message: msg})
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// Serve runs the admin API on ln until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &fasthttp.Server{
		Handler:      s.Handler(),
		Name:         "kalah-admin",
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	s.logger.Info("admin_listen", zap.String("addr", ln.Addr().String()))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.ShutdownWithContext(sctx)
	}
}

// ListenAndServe binds addr and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}
