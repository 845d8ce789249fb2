package main

import (
    "context"
    "errors"
    "log"
    "os/signal"
    "sync"
    "syscall"
    "time"

    "go.uber.org/zap"

    "github.com/park285/kalah-relay/internal/admin"
    appcfg "github.com/park285/kalah-relay/internal/config"
    "github.com/park285/kalah-relay/internal/lobby"
    "github.com/park285/kalah-relay/internal/match"
    "github.com/park285/kalah-relay/internal/matchrepo"
    "github.com/park285/kalah-relay/internal/matchstore"
    "github.com/park285/kalah-relay/internal/msgcat"
    "github.com/park285/kalah-relay/internal/notify"
    "github.com/park285/kalah-relay/internal/obslog"
    "github.com/park285/kalah-relay/internal/recorder"
    "github.com/park285/kalah-relay/internal/transport"
)

func main() {
    cfg, err := appcfg.Load()
    if err != nil {
        log.Fatalf("config error: %v", err)
    }
    if err := obslog.Init(cfg.LogOptions()); err != nil {
        log.Fatalf("logger init error: %v", err)
    }
    defer obslog.Sync()
    logger := obslog.L()

    ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
    defer stop()

    cat, err := msgcat.New(cfg.MessagesDir)
    if err != nil {
        logger.Fatal("messages_load_error", zap.Error(err))
    }

    // optional sinks: each is skipped when its URL is unset
    var recOpts []recorder.Option
    var store *matchstore.Store
    if cfg.RedisURL != "" {
        store, err = matchstore.Open(ctx, cfg.RedisURL)
        if err != nil {
            logger.Fatal("redis_init_error", zap.Error(err))
        }
        defer store.Close()
        recOpts = append(recOpts, recorder.WithStore(store))
    }
    var repo *matchrepo.Repository
    if cfg.DatabaseURL != "" {
        repo, err = matchrepo.NewRepository(cfg.DatabaseURL)
        if err != nil {
            logger.Fatal("db_init_error", zap.Error(err))
        }
        defer repo.Close()
        if err := repo.Migrate(ctx); err != nil {
            logger.Fatal("db_migrate_error", zap.Error(err))
        }
        recOpts = append(recOpts, recorder.WithRepository(repo))
    }
    if cfg.ResultWebhookURL != "" {
        recOpts = append(recOpts, recorder.WithNotifier(
            notify.NewClient(cfg.ResultWebhookURL, notify.WithBearerToken(cfg.ResultWebhookToken)),
        ))
    }
    rec := recorder.New(recOpts...)

    relay, err := lobby.NewRelay(
        lobby.WithCatalog(cat),
        lobby.WithMaxGames(cfg.MaxConcurrentGames),
        lobby.WithSessionOptions(
            match.WithObserver(rec),
            match.WithSeedsPerPit(cfg.SeedsPerPit),
            match.WithMoveTimeout(cfg.MoveTimeout),
            match.WithShutdownDelay(cfg.ShutdownDelay),
        ),
        lobby.WithResultFunc(func(gameNo uint64, res *match.Result, err error) {
            if err != nil {
                logger.Info("lobby_game_aborted", zap.Uint64("game_no", gameNo), zap.Error(err))
                return
            }
            logger.Info("lobby_game_done", zap.Uint64("game_no", gameNo), zap.String("match_id", res.ID),
                zap.String("outcome", string(res.Outcome.Result)))
        }),
    )
    if err != nil {
        logger.Fatal("relay_init_error", zap.Error(err))
    }

    seat := func(ctx context.Context, c transport.Conn) {
        if err := relay.Enqueue(ctx, c, c.Remote()); err != nil && !errors.Is(err, lobby.ErrClosed) {
            logger.Info("lobby_enqueue_error", zap.String("remote", c.Remote()), zap.Error(err))
        }
    }

    var wg sync.WaitGroup
    run := func(name string, fn func() error) {
        wg.Add(1)
        go func() {
            defer wg.Done()
            if err := fn(); err != nil {
                logger.Error("listener_error", zap.String("listener", name), zap.Error(err))
                stop()
            }
        }()
    }
    if cfg.ListenAddr != "" {
        run("tcp", func() error { return transport.ListenTCP(ctx, cfg.ListenAddr, seat) })
    }
    if cfg.WSAddr != "" {
        run("ws", func() error { return transport.ListenWS(ctx, cfg.WSAddr, cfg.WSPath, seat, cfg.WSOrigins...) })
    }
    if cfg.AdminAddr != "" {
        var adminOpts []admin.Option
        if store != nil {
            adminOpts = append(adminOpts, admin.WithMatches(store))
        }
        if repo != nil {
            adminOpts = append(adminOpts, admin.WithResults(repo))
        }
        adminOpts = append(adminOpts, admin.WithStats(func() admin.Stats {
            return admin.Stats{ActiveGames: relay.Active(), Waiting: relay.Waiting()}
        }))
        srv := admin.New(adminOpts...)
        run("admin", func() error { return srv.ListenAndServe(ctx, cfg.AdminAddr) })
    }

    logger.Info("server_start",
        zap.String("tcp", cfg.ListenAddr),
        zap.String("ws", cfg.WSAddr),
        zap.String("admin", cfg.AdminAddr),
        zap.Int("max_games", cfg.MaxConcurrentGames),
        zap.Int("seeds_per_pit", cfg.SeedsPerPit),
    )

    <-ctx.Done()
    logger.Info("server_stopping")
    _ = relay.Close()
    wg.Wait()

    // running matches see the cancelled context and abort
    done := make(chan struct{})
    go func() {
        relay.Wait()
        rec.Wait()
        close(done)
    }()
    select {
    case <-done:
    case <-time.After(15 * time.Second):
        logger.Warn("server_stop_timeout")
    }
    logger.Info("server_stopped")
}
