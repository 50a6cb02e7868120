package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	_ "github.com/lib/pq"

	"github.com/park285/cheese-rooms/internal/room"
)

// Repository stores finished games.
type Repository interface {
	SaveResult(ctx context.Context, rec Record) error
	Recent(ctx context.Context, limit int) ([]Record, error)
	Close() error
}

// Saver adapts a Repository to the result queue handler shape.
func Saver(repo Repository) func(context.Context, room.Result) error {
	return func(ctx context.Context, res room.Result) error {
		return repo.SaveResult(ctx, NewRecord(res))
	}
}

type Postgres struct {
	db *sql.DB
}

func NewPostgres(ctx context.Context, databaseURL string) (*Postgres, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(30 * time.Minute)
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Postgres{db: db}, nil
}

func (p *Postgres) Close() error {
	if p == nil || p.db == nil {
		return nil
	}
	return p.db.Close()
}

const upsertGame = `INSERT INTO room_games (
    game_id, room_code, white_id, white_name, black_id, black_name,
    winner, result, reason, result_text, engine,
    moves_uci, moves_san, pgn, started_at, ended_at, duration_ms,
    eco_code, eco_title
  ) VALUES (
    $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19
  ) ON CONFLICT (game_id) DO UPDATE SET
    winner=EXCLUDED.winner,
    result=EXCLUDED.result,
    reason=EXCLUDED.reason,
    result_text=EXCLUDED.result_text,
    moves_uci=EXCLUDED.moves_uci,
    moves_san=EXCLUDED.moves_san,
    pgn=EXCLUDED.pgn,
    ended_at=EXCLUDED.ended_at,
    duration_ms=EXCLUDED.duration_ms,
    eco_code=EXCLUDED.eco_code,
    eco_title=EXCLUDED.eco_title`

// SaveResult upserts one finished game.
func (p *Postgres) SaveResult(ctx context.Context, rec Record) error {
	uciRaw, err := json.Marshal(nonNil(rec.MovesUCI))
	if err != nil {
		return err
	}
	sanRaw, err := json.Marshal(nonNil(rec.MovesSAN))
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx, upsertGame,
		rec.ID, rec.Code,
		rec.WhiteID, rec.WhiteName,
		rec.BlackID, rec.BlackName,
		string(rec.Winner), rec.PGNResult, string(rec.Reason), rec.Text, rec.Engine,
		string(uciRaw), string(sanRaw), rec.PGN,
		rec.StartedAt, rec.EndedAt, durationMS(rec.Result),
		rec.Opening.ECO, rec.Opening.Title,
	)
	return err
}

func (p *Postgres) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := p.db.QueryContext(ctx, `SELECT game_id, room_code, white_id, white_name, black_id, black_name,
        winner, result, reason, result_text, engine, moves_uci, moves_san, pgn, started_at, ended_at,
        eco_code, eco_title
      FROM room_games ORDER BY ended_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			rec            Record
			winner, reason string
			uciRaw, sanRaw []byte
		)
		if err := rows.Scan(&rec.ID, &rec.Code, &rec.WhiteID, &rec.WhiteName, &rec.BlackID, &rec.BlackName,
			&winner, &rec.PGNResult, &reason, &rec.Text, &rec.Engine, &uciRaw, &sanRaw, &rec.PGN,
			&rec.StartedAt, &rec.EndedAt, &rec.Opening.ECO, &rec.Opening.Title); err != nil {
			return nil, err
		}
		rec.Winner = gameColor(winner)
		rec.Reason = room.Reason(reason)
		_ = json.Unmarshal(uciRaw, &rec.MovesUCI)
		_ = json.Unmarshal(sanRaw, &rec.MovesSAN)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Memory is used when no database is configured and in tests. It keeps the
// newest limit games.
type Memory struct {
	mu    sync.RWMutex
	limit int
	games map[string]Record
}

func NewMemory(limit int) *Memory {
	if limit < 1 {
		limit = 500
	}
	return &Memory{limit: limit, games: make(map[string]Record)}
}

func (m *Memory) SaveResult(_ context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec.MovesUCI = append([]string(nil), rec.MovesUCI...)
	rec.MovesSAN = append([]string(nil), rec.MovesSAN...)
	m.games[rec.ID] = rec
	if len(m.games) > m.limit {
		oldest := ""
		for id, g := range m.games {
			if oldest == "" || g.EndedAt.Before(m.games[oldest].EndedAt) {
				oldest = id
			}
		}
		delete(m.games, oldest)
	}
	return nil
}

func (m *Memory) Recent(_ context.Context, limit int) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	items := make([]Record, 0, len(m.games))
	for _, r := range m.games {
		items = append(items, r)
	}
	sort.Slice(items, func(i, j int) bool {
		if !items[i].EndedAt.Equal(items[j].EndedAt) {
			return items[i].EndedAt.After(items[j].EndedAt)
		}
		return items[i].ID > items[j].ID
	})
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (m *Memory) Close() error { return nil }

func durationMS(r room.Result) int64 {
	if r.StartedAt.IsZero() {
		return 0
	}
	d := r.EndedAt.Sub(r.StartedAt).Milliseconds()
	if d < 0 {
		return 0
	}
	return d
}

func nonNil(xs []string) []string {
	if xs == nil {
		return []string{}
	}
	return xs
}
