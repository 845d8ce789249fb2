package matchrepo

import (
    "context"
    "database/sql"
    "encoding/json"
    "errors"
    "fmt"
    "strconv"
    "strings"
    "time"

    _ "github.com/lib/pq"
    _ "modernc.org/sqlite"

    "github.com/park285/kalah-relay/pkg/matchdto"
)

var ErrNotFound = errors.New("result not found")

const (
    dialectPostgres = "postgres"
    dialectSQLite   = "sqlite"

    DefaultLimit = 20
    MaxLimit     = 200
)

// Repository persists finished matches. Postgres is used for postgres://
// URLs; sqlite:// (or sqlite::memory:) selects the embedded driver.
type Repository struct {
    db      *sql.DB
    dialect string
}

func NewRepository(databaseURL string) (*Repository, error) {
    raw := strings.TrimSpace(databaseURL)
    if raw == "" {
        return nil, fmt.Errorf("DATABASE_URL is required")
    }
    driver, dsn, err := splitURL(raw)
    if err != nil {
        return nil, err
    }
    db, err := sql.Open(driver, dsn)
    if err != nil {
        return nil, err
    }
    if driver == dialectSQLite {
        // one writer; also keeps :memory: databases on a single connection
        db.SetMaxOpenConns(1)
    } else {
        db.SetMaxOpenConns(16)
        db.SetMaxIdleConns(8)
        db.SetConnMaxLifetime(30 * time.Minute)
    }
    ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
    defer cancel()
    if err := db.PingContext(ctx); err != nil {
        _ = db.Close()
        return nil, fmt.Errorf("ping %s: %w", driver, err)
    }
    return &Repository{db: db, dialect: driver}, nil
}

func splitURL(raw string) (driver, dsn string, err error) {
    lower := strings.ToLower(raw)
    switch {
    case strings.HasPrefix(lower, "postgres://"), strings.HasPrefix(lower, "postgresql://"):
        return dialectPostgres, raw, nil
    case strings.HasPrefix(lower, "sqlite://"):
        return dialectSQLite, raw[len("sqlite://"):], nil
    case strings.HasPrefix(lower, "sqlite:"):
        return dialectSQLite, raw[len("sqlite:"):], nil
    }
    return "", "", fmt.Errorf("unsupported DATABASE_URL scheme: %q", raw)
}

func (r *Repository) Close() error {
    if r == nil || r.db == nil { return nil }
    return r.db.Close()
}

func (r *Repository) Ping(ctx context.Context) error { return r.db.PingContext(ctx) }

func (r *Repository) Dialect() string { return r.dialect }

// Migrate creates the results table when missing.
func (r *Repository) Migrate(ctx context.Context) error {
    stmts := []string{
        `CREATE TABLE IF NOT EXISTS kalah_results (
            match_id    TEXT PRIMARY KEY,
            player1     TEXT NOT NULL DEFAULT '',
            player2     TEXT NOT NULL DEFAULT '',
            outcome     TEXT NOT NULL,
            winner      INTEGER NOT NULL DEFAULT 0,
            store1      INTEGER NOT NULL,
            store2      INTEGER NOT NULL,
            board       TEXT NOT NULL,
            moves       TEXT NOT NULL,
            move_count  INTEGER NOT NULL,
            started_ms  BIGINT NOT NULL,
            ended_ms    BIGINT NOT NULL,
            duration_ms BIGINT NOT NULL
        )`,
        `CREATE INDEX IF NOT EXISTS kalah_results_ended_idx ON kalah_results (ended_ms DESC)`,
    }
    for _, q := range stmts {
        if _, err := r.db.ExecContext(ctx, q); err != nil {
            return fmt.Errorf("migrate: %w", err)
        }
    }
    return nil
}

// SaveResult upserts a finished match.
func (r *Repository) SaveResult(ctx context.Context, res *matchdto.MatchResult) error {
    if r == nil || r.db == nil || res == nil {
        return nil
    }
    boardRaw, err := json.Marshal(res.Board)
    if err != nil { return err }
    moves := res.Moves
    if moves == nil { moves = []matchdto.MoveRecord{} }
    movesRaw, err := json.Marshal(moves)
    if err != nil { return err }
    duration := res.EndedAt.Sub(res.StartedAt).Milliseconds()
    if duration < 0 { duration = 0 }

    q := `INSERT INTO kalah_results (
        match_id, player1, player2, outcome, winner, store1, store2,
        board, moves, move_count, started_ms, ended_ms, duration_ms
      ) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)
      ON CONFLICT (match_id) DO UPDATE SET
        player1=EXCLUDED.player1,
        player2=EXCLUDED.player2,
        outcome=EXCLUDED.outcome,
        winner=EXCLUDED.winner,
        store1=EXCLUDED.store1,
        store2=EXCLUDED.store2,
        board=EXCLUDED.board,
        moves=EXCLUDED.moves,
        move_count=EXCLUDED.move_count,
        started_ms=EXCLUDED.started_ms,
        ended_ms=EXCLUDED.ended_ms,
        duration_ms=EXCLUDED.duration_ms`

    _, err = r.db.ExecContext(ctx, r.rebind(q),
        res.ID, res.Player1, res.Player2,
        res.Outcome, res.Winner, res.Store1, res.Store2,
        string(boardRaw), string(movesRaw), res.MoveCount,
        res.StartedAt.UnixMilli(), res.EndedAt.UnixMilli(), duration,
    )
    return err
}

const selectCols = `match_id, player1, player2, outcome, winner, store1, store2,
    board, moves, move_count, started_ms, ended_ms, duration_ms`

// Result loads one match by id.
func (r *Repository) Result(ctx context.Context, id string) (*matchdto.MatchResult, error) {
    row := r.db.QueryRowContext(ctx, r.rebind(`SELECT `+selectCols+` FROM kalah_results WHERE match_id = ?`), id)
    res, err := scanResult(row)
    if errors.Is(err, sql.ErrNoRows) { return nil, ErrNotFound }
    return res, err
}

// RecentResults returns the latest finished matches, newest first. The move
// list is omitted; use Result for a full record.
func (r *Repository) RecentResults(ctx context.Context, limit int) ([]*matchdto.MatchResult, error) {
    if limit <= 0 { limit = DefaultLimit }
    if limit > MaxLimit { limit = MaxLimit }
    rows, err := r.db.QueryContext(ctx,
        r.rebind(`SELECT `+selectCols+` FROM kalah_results ORDER BY ended_ms DESC, match_id LIMIT ?`), limit)
    if err != nil { return nil, err }
    defer rows.Close()

    var out []*matchdto.MatchResult
    for rows.Next() {
        res, err := scanResult(rows)
        if err != nil { return nil, err }
        res.Moves = nil
        out = append(out, res)
    }
    return out, rows.Err()
}

type scanner interface{ Scan(dest ...any) error }

func scanResult(s scanner) (*matchdto.MatchResult, error) {
    var (
        res                       matchdto.MatchResult
        boardRaw, movesRaw        string
        startedMS, endedMS, durMS int64
    )
    err := s.Scan(&res.ID, &res.Player1, &res.Player2, &res.Outcome, &res.Winner,
        &res.Store1, &res.Store2, &boardRaw, &movesRaw, &res.MoveCount,
        &startedMS, &endedMS, &durMS)
    if err != nil { return nil, err }
    if err := json.Unmarshal([]byte(boardRaw), &res.Board); err != nil {
        return nil, fmt.Errorf("decode board %s: %w", res.ID, err)
    }
    if err := json.Unmarshal([]byte(movesRaw), &res.Moves); err != nil {
        return nil, fmt.Errorf("decode moves %s: %w", res.ID, err)
    }
    res.StartedAt = time.UnixMilli(startedMS).UTC()
    res.EndedAt = time.UnixMilli(endedMS).UTC()
    res.DurationMS = durMS
    return &res, nil
}

// rebind turns ? placeholders into $n for Postgres.
func (r *Repository) rebind(q string) string {
    if r.dialect != dialectPostgres { return q }
    var b strings.Builder
    n := 0
    for i := 0; i < len(q); i++ {
        if q[i] == '?' {
            n++
            b.WriteByte('$')
            b.WriteString(strconv.Itoa(n))
            continue
        }
        b.WriteByte(q[i])
    }
    return b.String()
}
