package storage

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"balloon-game-server/balloon"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// End reasons stored in balloon_game.end_reason.
const (
	EndCompleted = "completed"
	EndAbandoned = "abandoned"
)

const createTableSQL = `
CREATE TABLE IF NOT EXISTS player_high_score (
	player        TEXT PRIMARY KEY,
	high_score    BIGINT NOT NULL DEFAULT 0,
	registered_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_player_high_score_registered ON player_high_score(registered_at);
CREATE TABLE IF NOT EXISTS balloon_game (
	id            UUID PRIMARY KEY,
	player        TEXT NOT NULL,
	total_score   BIGINT NOT NULL,
	final_round   INT NOT NULL,
	end_reason    TEXT NOT NULL,
	new_high      BOOLEAN NOT NULL DEFAULT false,
	finished_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_balloon_game_player ON balloon_game(player);
CREATE TABLE IF NOT EXISTS balloon_event (
	id             UUID PRIMARY KEY,
	seq            BIGSERIAL,
	game_id        UUID NOT NULL,
	player         TEXT NOT NULL,
	kind           TEXT NOT NULL,
	round          INT NOT NULL,
	pump_count     INT NOT NULL,
	points         BIGINT NOT NULL,
	pending_points BIGINT NOT NULL,
	total_score    BIGINT NOT NULL,
	occurred_at    TIMESTAMPTZ NOT NULL
);
ALTER TABLE balloon_event ADD COLUMN IF NOT EXISTS seq BIGSERIAL;
CREATE INDEX IF NOT EXISTS idx_balloon_event_game ON balloon_event(game_id);
CREATE INDEX IF NOT EXISTS idx_balloon_event_player ON balloon_event(player);
`

// Store persists events, finished games and high scores.
// A nil *Store is valid and turns every call into a no-op.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore connects to Postgres and ensures the tables exist.
// If databaseURL is empty, NewStore returns (nil, nil) and no persistence occurs.
func NewStore(ctx context.Context, databaseURL string) (*Store, error) {
	if databaseURL == "" {
		return nil, nil
	}
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	if _, err := pool.Exec(ctx, createTableSQL); err != nil {
		pool.Close()
		return nil, err
	}
	slog.Info("connected to Postgres", "tag", "storage")
	return &Store{pool: pool}, nil
}

// Close closes the connection pool.
func (s *Store) Close() {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
}

// toBigint converts an unsigned score for a BIGINT column, clamping at the column's max.
func toBigint(v uint64) int64 {
	const maxBigint = 1<<63 - 1
	if v > maxBigint {
		return maxBigint
	}
	return int64(v)
}

func fromBigint(v int64) uint64 {
	if v < 0 {
		return 0
	}
	return uint64(v)
}

// InsertEvent appends one event to the audit log. Duplicate event IDs are ignored.
func (s *Store) InsertEvent(ctx context.Context, ev balloon.Event) error {
	if s == nil || s.pool == nil {
		return nil
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO balloon_event (id, game_id, player, kind, round, pump_count, points, pending_points, total_score, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING`,
		ev.ID, ev.GameID, ev.Player, string(ev.Kind), ev.Round, ev.PumpCount,
		toBigint(ev.Points), toBigint(ev.PendingPoints), toBigint(ev.TotalScore), ev.At)
	return err
}

// RegisterPlayer records a player's first appearance so restore keeps registration order.
func (s *Store) RegisterPlayer(ctx context.Context, player string, at time.Time) error {
	if s == nil || s.pool == nil {
		return nil
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO player_high_score (player, high_score, registered_at, updated_at)
		VALUES ($1, 0, $2, $2)
		ON CONFLICT (player) DO NOTHING`,
		player, at)
	return err
}

// RecordGameEnd stores a finished game and, for completed games, raises the player's high score.
// ev must be a completed or abandoned event.
func (s *Store) RecordGameEnd(ctx context.Context, ev balloon.Event) error {
	if s == nil || s.pool == nil {
		return nil
	}
	reason := endReason(ev.Kind)
	if reason == "" {
		return nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO balloon_game (id, player, total_score, final_round, end_reason, new_high, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING`,
		ev.GameID, ev.Player, toBigint(ev.TotalScore), ev.Round, reason, ev.NewHighScore, ev.At)
	if err != nil {
		return err
	}
	if reason == EndCompleted {
		_, err = tx.Exec(ctx, `
			INSERT INTO player_high_score (player, high_score, registered_at, updated_at)
			VALUES ($1, $2, $3, $3)
			ON CONFLICT (player) DO UPDATE
			SET high_score = GREATEST(player_high_score.high_score, EXCLUDED.high_score),
			    updated_at = EXCLUDED.updated_at`,
			ev.Player, toBigint(ev.TotalScore), ev.At)
		if err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func endReason(kind balloon.EventKind) string {
	switch kind {
	case balloon.EventCompleted:
		return EndCompleted
	case balloon.EventAbandoned:
		return EndAbandoned
	default:
		return ""
	}
}

// HighScoreRecord is a persisted high score in registration order.
type HighScoreRecord struct {
	Player    string
	HighScore uint64
}

// ListHighScores returns every known player in registration order, for seeding the engine.
func (s *Store) ListHighScores(ctx context.Context) ([]HighScoreRecord, error) {
	if s == nil || s.pool == nil {
		return []HighScoreRecord{}, nil
	}
	rows, err := s.pool.Query(ctx, `
		SELECT player, high_score
		FROM player_high_score
		ORDER BY registered_at ASC, player ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []HighScoreRecord
	for rows.Next() {
		var r HighScoreRecord
		var hs int64
		if err := rows.Scan(&r.Player, &hs); err != nil {
			return nil, err
		}
		if hs > 0 {
			r.HighScore = uint64(hs)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// OpenGame is the last persisted event of a game that has no end row yet.
type OpenGame struct {
	Last      balloon.Event
	StartedAt time.Time
}

// ListOpenGames returns, per player, the last event of their most recent game if that game
// never reached balloon_game. Events are ordered by insertion, which is emission order.
func (s *Store) ListOpenGames(ctx context.Context) ([]OpenGame, error) {
	if s == nil || s.pool == nil {
		return []OpenGame{}, nil
	}
	rows, err := s.pool.Query(ctx, `
		WITH latest AS (
			SELECT DISTINCT ON (player) player, game_id, occurred_at AS started_at
			FROM balloon_event
			WHERE kind = 'started'
			ORDER BY player, seq DESC
		)
		SELECT DISTINCT ON (e.player)
			e.id::text, e.game_id::text, e.player, e.kind, e.round, e.pump_count,
			e.points, e.pending_points, e.total_score, e.occurred_at, l.started_at
		FROM balloon_event e
		JOIN latest l ON l.game_id = e.game_id
		WHERE NOT EXISTS (SELECT 1 FROM balloon_game g WHERE g.id = e.game_id)
		ORDER BY e.player, e.seq DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []OpenGame{}
	for rows.Next() {
		var g OpenGame
		var kind string
		var points, pending, total int64
		ev := &g.Last
		if err := rows.Scan(&ev.ID, &ev.GameID, &ev.Player, &kind, &ev.Round, &ev.PumpCount,
			&points, &pending, &total, &ev.At, &g.StartedAt); err != nil {
			return nil, err
		}
		ev.Kind = balloon.EventKind(kind)
		ev.Points = fromBigint(points)
		ev.PendingPoints = fromBigint(pending)
		ev.TotalScore = fromBigint(total)
		out = append(out, g)
	}
	return out, rows.Err()
}

// GameRecord is a single finished game returned by the history API.
type GameRecord struct {
	GameID       string `json:"game_id"`
	Player       string `json:"player"`
	TotalScore   uint64 `json:"total_score"`
	FinalRound   int    `json:"final_round"`
	EndReason    string `json:"end_reason"`
	NewHighScore bool   `json:"new_high_score"`
	FinishedAt   string `json:"finished_at"` // ISO8601
}

// ListByPlayer returns the player's finished games, newest first.
func (s *Store) ListByPlayer(ctx context.Context, player string, limit int) ([]GameRecord, error) {
	if s == nil || s.pool == nil || player == "" {
		return []GameRecord{}, nil
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id::text, player, total_score, final_round, end_reason, new_high, finished_at
		FROM balloon_game
		WHERE player = $1
		ORDER BY finished_at DESC
		LIMIT $2`,
		player, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []GameRecord{}
	for rows.Next() {
		var r GameRecord
		var total int64
		var finishedAt time.Time
		if err := rows.Scan(&r.GameID, &r.Player, &total, &r.FinalRound, &r.EndReason, &r.NewHighScore, &finishedAt); err != nil {
			return nil, err
		}
		if total > 0 {
			r.TotalScore = uint64(total)
		}
		r.FinishedAt = finishedAt.UTC().Format(time.RFC3339)
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetHighScore returns the persisted high score, or (0, nil) if the player is unknown.
func (s *Store) GetHighScore(ctx context.Context, player string) (uint64, error) {
	if s == nil || s.pool == nil || player == "" {
		return 0, nil
	}
	var hs int64
	err := s.pool.QueryRow(ctx, `SELECT high_score FROM player_high_score WHERE player = $1`, strings.TrimSpace(player)).Scan(&hs)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, err
	}
	if hs < 0 {
		return 0, nil
	}
	return uint64(hs), nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		return maxHistoryLimit
	}
	return limit
}
