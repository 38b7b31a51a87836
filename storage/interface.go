package storage

import (
	"context"
	"time"

	"balloon-game-server/balloon"
)

// HistoryStore abstracts persistence for events, finished games and high scores.
// Implementations can be swapped for testing (mocks) or different backends.
type HistoryStore interface {
	// Read
	ListHighScores(ctx context.Context) ([]HighScoreRecord, error)
	ListByPlayer(ctx context.Context, player string, limit int) ([]GameRecord, error)
	GetHighScore(ctx context.Context, player string) (uint64, error)
	ListOpenGames(ctx context.Context) ([]OpenGame, error)

	// Write
	InsertEvent(ctx context.Context, ev balloon.Event) error
	RegisterPlayer(ctx context.Context, player string, at time.Time) error
	RecordGameEnd(ctx context.Context, ev balloon.Event) error

	// Lifecycle
	Close()
}

// Ensure *Store implements HistoryStore at compile time.
var _ HistoryStore = (*Store)(nil)
