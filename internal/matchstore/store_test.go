package matchstore

import (
    "context"
    "fmt"
    "testing"
    "time"

    miniredis "github.com/alicebob/miniredis/v2"
    "github.com/redis/go-redis/v9"

    "github.com/park285/kalah-relay/pkg/matchdto"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
    t.Helper()
    mr, err := miniredis.Run()
    if err != nil { t.Fatalf("miniredis: %v", err) }
    t.Cleanup(mr.Close)
    rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
    t.Cleanup(func() { _ = rdb.Close() })
    return NewStore(rdb), mr
}

func state(id, phase string, moves int, started time.Time) *matchdto.MatchState {
    return &matchdto.MatchState{
        ID:        id,
        Phase:     phase,
        Board:     [14]int{4, 4, 4, 4, 4, 4, 0, 4, 4, 4, 4, 4, 4, 0},
        Active:    1,
        MoveCount: moves,
        StartedAt: started,
        UpdatedAt: started,
    }
}

func TestSaveLoadAndActiveIndex(t *testing.T) {
    s, mr := newTestStore(t)
    ctx := context.Background()
    t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

    if err := s.Save(ctx, state("b", "AWAITING_MOVE", 0, t0.Add(time.Minute))); err != nil { t.Fatalf("Save b: %v", err) }
    if err := s.Save(ctx, state("a", "AWAITING_MOVE", 0, t0)); err != nil { t.Fatalf("Save a: %v", err) }

    got, err := s.Load(ctx, "a")
    if err != nil { t.Fatalf("Load: %v", err) }
    if got.Board[0] != 4 || got.Phase != "AWAITING_MOVE" { t.Fatalf("unexpected state: %+v", got) }
    if ttl := mr.TTL(keyMatch("a")); ttl != ttlMatch { t.Fatalf("ttl = %v", ttl) }

    list, err := s.ListActive(ctx)
    if err != nil { t.Fatalf("ListActive: %v", err) }
    if len(list) != 2 || list[0].ID != "a" || list[1].ID != "b" {
        t.Fatalf("active order wrong: %v", ids(list))
    }

    if err := s.Save(ctx, state("a", "TERMINAL", 40, t0)); err != nil { t.Fatalf("Save terminal: %v", err) }
    list, _ = s.ListActive(ctx)
    if len(list) != 1 || list[0].ID != "b" { t.Fatalf("terminal match still active: %v", ids(list)) }
    if got, _ := s.Load(ctx, "a"); got == nil || got.Phase != "TERMINAL" { t.Fatalf("terminal snapshot not kept") }
}

func TestSaveRejectsRegression(t *testing.T) {
    s, _ := newTestStore(t)
    ctx := context.Background()
    now := time.Now()
    if err := s.Save(ctx, state("m", "AWAITING_MOVE", 5, now)); err != nil { t.Fatalf("Save: %v", err) }
    if err := s.Save(ctx, state("m", "AWAITING_MOVE", 3, now)); err != ErrStaleVersion {
        t.Fatalf("expected ErrStaleVersion, got %v", err)
    }
    got, _ := s.Load(ctx, "m")
    if got.MoveCount != 5 { t.Fatalf("snapshot regressed to %d", got.MoveCount) }
}

func TestLoadMissingAndExpiredPruned(t *testing.T) {
    s, mr := newTestStore(t)
    ctx := context.Background()

    if _, err := s.Load(ctx, "nope"); err != ErrNotFound { t.Fatalf("expected ErrNotFound, got %v", err) }
    if _, err := s.Load(ctx, " "); err != ErrInvalidArgs { t.Fatalf("expected ErrInvalidArgs, got %v", err) }

    if err := s.Save(ctx, state("gone", "AWAITING_MOVE", 0, time.Now())); err != nil { t.Fatalf("Save: %v", err) }
    mr.Del(keyMatch("gone"))
    list, err := s.ListActive(ctx)
    if err != nil || len(list) != 0 { t.Fatalf("expected empty list, got %v %v", ids(list), err) }
    if ok, _ := mr.SIsMember(keyActive(), "gone"); ok { t.Fatalf("expired member not pruned") }
}

func TestRemove(t *testing.T) {
    s, _ := newTestStore(t)
    ctx := context.Background()
    _ = s.Save(ctx, state("r", "AWAITING_MOVE", 0, time.Now()))
    if err := s.Remove(ctx, "r"); err != nil { t.Fatalf("Remove: %v", err) }
    if _, err := s.Load(ctx, "r"); err != ErrNotFound { t.Fatalf("expected ErrNotFound after remove, got %v", err) }
}

func TestOpenAndParseURL(t *testing.T) {
    mr, err := miniredis.Run()
    if err != nil { t.Fatalf("miniredis: %v", err) }
    defer mr.Close()

    s, err := Open(context.Background(), fmt.Sprintf("redis://%s/2", mr.Addr()))
    if err != nil { t.Fatalf("Open: %v", err) }
    defer s.Close()
    if err := s.Ping(context.Background()); err != nil { t.Fatalf("Ping: %v", err) }

    if _, err := parseRedisURL("http://x"); err == nil { t.Fatalf("expected scheme error") }
    if _, err := parseRedisURL("redis://h:1/zz"); err == nil { t.Fatalf("expected db error") }
    opts, err := parseRedisURL("redis://user:pw@h:6379/3")
    if err != nil || opts.Addr != "h:6379" || opts.Password != "pw" || opts.DB != 3 || opts.Username != "user" {
        t.Fatalf("parse: %+v %v", opts, err)
    }
    tlsOpts, err := parseRedisURL("rediss://:pw@cache.internal:6380/1")
    if err != nil { t.Fatalf("parse rediss: %v", err) }
    if tlsOpts.TLSConfig == nil || tlsOpts.TLSConfig.ServerName != "cache.internal" {
        t.Fatalf("rediss must enable TLS: %+v", tlsOpts.TLSConfig)
    }
    plain, _ := parseRedisURL("redis://h:6379")
    if plain.TLSConfig != nil { t.Fatalf("redis:// must stay plaintext") }
    if _, err := Open(context.Background(), ""); err == nil { t.Fatalf("expected error for empty url") }
}

func ids(list []*matchdto.MatchState) []string {
    out := make([]string, 0, len(list))
    for _, m := range list { out = append(out, m.ID) }
    return out
}
