package matchstore

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "sort"
    "strings"
    "time"

    "github.com/redis/go-redis/v9"

    "github.com/park285/kalah-relay/pkg/matchdto"
)

const (
    ttlMatch    = 24 * time.Hour
    maxTxRetry  = 3
    phaseActive = "AWAITING_MOVE"
)

var (
    ErrNotFound     = errf("match not found or expired")
    ErrInvalidArgs  = errf("invalid arguments")
    ErrStaleVersion = errf("stale match snapshot")
)

type staticErr string

func (e staticErr) Error() string { return string(e) }
func errf(s string) error         { return staticErr(s) }

// Store keeps live match snapshots in Redis: one JSON value per match plus a
// set indexing the matches still awaiting moves.
type Store struct{ rdb *redis.Client }

func NewStore(rdb *redis.Client) *Store { return &Store{rdb: rdb} }

// Open dials REDIS_URL and pings it.
func Open(ctx context.Context, redisURL string) (*Store, error) {
    if strings.TrimSpace(redisURL) == "" { return nil, fmt.Errorf("REDIS_URL required for match store") }
    opts, err := parseRedisURL(redisURL)
    if err != nil { return nil, err }
    rdb := redis.NewClient(opts)
    if err := rdb.Ping(ctx).Err(); err != nil {
        _ = rdb.Close()
        return nil, fmt.Errorf("redis ping: %w", err)
    }
    return &Store{rdb: rdb}, nil
}

func (s *Store) Close() error {
    if s == nil || s.rdb == nil { return nil }
    return s.rdb.Close()
}

func (s *Store) Ping(ctx context.Context) error { return s.rdb.Ping(ctx).Err() }

func keyMatch(id string) string { return "kalah:match:" + strings.TrimSpace(id) }
func keyActive() string         { return "kalah:match:active" }

// Save writes st and maintains the active index. A snapshot with fewer
// moves than the stored one is rejected so late writers cannot regress a match.
func (s *Store) Save(ctx context.Context, st *matchdto.MatchState) error {
    if st == nil || strings.TrimSpace(st.ID) == "" { return ErrInvalidArgs }
    raw, err := json.Marshal(st)
    if err != nil { return err }
    k := keyMatch(st.ID)

    txf := func(tx *redis.Tx) error {
        prev, err := tx.Get(ctx, k).Bytes()
        if err != nil && !errors.Is(err, redis.Nil) { return err }
        if err == nil {
            var cur matchdto.MatchState
            if jerr := json.Unmarshal(prev, &cur); jerr == nil && cur.MoveCount > st.MoveCount {
                return ErrStaleVersion
            }
        }
        _, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
            p.Set(ctx, k, raw, ttlMatch)
            if st.Phase == phaseActive {
                p.SAdd(ctx, keyActive(), st.ID)
                p.Expire(ctx, keyActive(), ttlMatch)
            } else {
                p.SRem(ctx, keyActive(), st.ID)
            }
            return nil
        })
        return err
    }
    for i := 0; i < maxTxRetry; i++ {
        err = s.rdb.Watch(ctx, txf, k)
        if !errors.Is(err, redis.TxFailedErr) { return err }
    }
    return err
}

func (s *Store) Load(ctx context.Context, id string) (*matchdto.MatchState, error) {
    if strings.TrimSpace(id) == "" { return nil, ErrInvalidArgs }
    raw, err := s.rdb.Get(ctx, keyMatch(id)).Bytes()
    if errors.Is(err, redis.Nil) { return nil, ErrNotFound }
    if err != nil { return nil, err }
    var st matchdto.MatchState
    if err := json.Unmarshal(raw, &st); err != nil { return nil, fmt.Errorf("decode match %s: %w", id, err) }
    return &st, nil
}

// ListActive returns matches awaiting a move, oldest first. Index members
// whose snapshot expired are pruned.
func (s *Store) ListActive(ctx context.Context) ([]*matchdto.MatchState, error) {
    ids, err := s.rdb.SMembers(ctx, keyActive()).Result()
    if err != nil { return nil, err }
    out := make([]*matchdto.MatchState, 0, len(ids))
    for _, id := range ids {
        st, err := s.Load(ctx, id)
        if errors.Is(err, ErrNotFound) {
            _ = s.rdb.SRem(ctx, keyActive(), id).Err()
            continue
        }
        if err != nil { return nil, err }
        if st.Phase != phaseActive { continue }
        out = append(out, st)
    }
    sort.Slice(out, func(i, j int) bool {
        if out[i].StartedAt.Equal(out[j].StartedAt) { return out[i].ID < out[j].ID }
        return out[i].StartedAt.Before(out[j].StartedAt)
    })
    return out, nil
}

func (s *Store) Remove(ctx context.Context, id string) error {
    if strings.TrimSpace(id) == "" { return ErrInvalidArgs }
    _, err := s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
        p.Del(ctx, keyMatch(id))
        p.SRem(ctx, keyActive(), id)
        return nil
    })
    return err
}

// parseRedisURL accepts redis://, rediss:// (TLS) and unix:// URLs.
func parseRedisURL(raw string) (*redis.Options, error) {
    opts, err := redis.ParseURL(strings.TrimSpace(raw))
    if err != nil { return nil, fmt.Errorf("parse REDIS_URL: %w", err) }
    return opts, nil
}
