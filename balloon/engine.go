package balloon

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"balloon-game-server/config"
	"balloon-game-server/gameerrors"
)

// PlayerGame is one player's current (or most recent) game.
type PlayerGame struct {
	GameID        string    `json:"gameId"`
	CurrentRound  int       `json:"currentRound"`
	PumpCount     int       `json:"pumpCount"`
	PendingPoints uint64    `json:"pendingPoints"`
	TotalScore    uint64    `json:"totalScore"`
	IsActive      bool      `json:"isActive"`
	Completed     bool      `json:"completed"` // last round closed by bank or pop
	StartedAt     time.Time `json:"startedAt"`
}

// PumpResult describes the outcome of a pump.
type PumpResult struct {
	Earned uint64     `json:"earned"`
	Popped bool       `json:"popped"`
	Lost   uint64     `json:"lost,omitempty"`
	Game   PlayerGame `json:"game"`
}

// session holds a player's game and high score. mu serialises that player's actions.
type session struct {
	mu        sync.Mutex
	player    string
	game      PlayerGame
	highScore uint64
}

// Engine is the authoritative state for all players' balloon games.
// Each player's actions are applied one at a time; different players never wait on each other.
type Engine struct {
	rules config.GameRules
	rng   Rand
	sink  EventSink
	now   func() time.Time

	mu       sync.RWMutex
	sessions map[string]*session
	order    []string // registration order, appended once per player
}

// Option configures an Engine.
type Option func(*Engine)

// WithRand sets the random source used by the pop policy.
func WithRand(r Rand) Option {
	return func(e *Engine) { e.rng = r }
}

// WithSink sets where events are published.
func WithSink(s EventSink) Option {
	return func(e *Engine) { e.sink = s }
}

// WithClock overrides time.Now for event and game timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates an Engine applying the given rules.
func NewEngine(rules config.GameRules, opts ...Option) *Engine {
	e := &Engine{
		rules:    withDefaults(rules),
		rng:      globalRand{},
		now:      time.Now,
		sessions: make(map[string]*session),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Rules returns the rules the engine was created with.
func (e *Engine) Rules() config.GameRules {
	return e.rules
}

func (e *Engine) lookup(player string) *session {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.sessions[player]
}

// register returns the player's session, creating and appending it to the registry if new.
func (e *Engine) register(player string) *session {
	e.mu.Lock()
	defer e.mu.Unlock()
	if s, ok := e.sessions[player]; ok {
		return s
	}
	s := &session{player: player}
	e.sessions[player] = s
	e.order = append(e.order, player)
	return s
}

// StartGame begins a new game for player. paidFee must equal the entry fee exactly.
func (e *Engine) StartGame(player string, paidFee uint64) (PlayerGame, error) {
	if player == "" {
		return PlayerGame{}, gameerrors.ErrInvalidPlayer
	}
	s := e.lookup(player)
	if s == nil {
		if paidFee != e.rules.EntryFee {
			return PlayerGame{}, e.wrongFee(paidFee)
		}
		s = e.register(player)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.game.IsActive {
		return PlayerGame{}, gameerrors.ErrAlreadyActive
	}
	if paidFee != e.rules.EntryFee {
		return PlayerGame{}, e.wrongFee(paidFee)
	}

	s.game = PlayerGame{
		GameID:       uuid.NewString(),
		CurrentRound: 1,
		IsActive:     true,
		StartedAt:    e.now(),
	}
	e.emit(s, EventStarted, 0)
	slog.Debug("game started", "tag", "engine", "player", player, "game", s.game.GameID)
	return s.game, nil
}

func (e *Engine) wrongFee(paid uint64) error {
	return fmt.Errorf("%w: paid %d, want %d", gameerrors.ErrWrongFee, paid, e.rules.EntryFee)
}

// playable reports why pump/bank cannot run on s, or nil. Callers hold s.mu.
func (e *Engine) playable(s *session) error {
	g := s.game
	if !g.IsActive {
		if g.Completed {
			return gameerrors.ErrRoundExhausted
		}
		return gameerrors.ErrNoActiveGame
	}
	if g.CurrentRound > e.rules.MaxRounds {
		return gameerrors.ErrRoundExhausted
	}
	return nil
}

// Pump inflates the balloon once. Under the pop policy the balloon may pop, forfeiting
// the round's pending points.
func (e *Engine) Pump(player string) (PumpResult, error) {
	s := e.lookup(player)
	if s == nil {
		return PumpResult{}, gameerrors.ErrNoActiveGame
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := e.playable(s); err != nil {
		return PumpResult{}, err
	}
	if e.rules.PumpPolicy == config.PolicyCapped && s.game.PumpCount >= e.rules.MaxPumpsPerRound {
		return PumpResult{}, gameerrors.ErrPumpCapReached
	}

	s.game.PumpCount++
	earned := PumpPoints(e.rules.BasePoints, s.game.PumpCount)
	s.game.PendingPoints = satAdd(s.game.PendingPoints, earned)
	res := PumpResult{Earned: earned}

	if e.rules.PumpPolicy == config.PolicyPop && e.pops(s.game.PumpCount) {
		res.Popped = true
		res.Lost = s.game.PendingPoints
		s.game.PendingPoints = 0
		e.emit(s, EventPopped, res.Lost)
		s.game.PumpCount = 0
		e.closeRound(s)
	} else {
		e.emit(s, EventPumped, earned)
	}
	res.Game = s.game
	return res, nil
}

func (e *Engine) pops(pumpCount int) bool {
	p := PopProbability(pumpCount, e.rules.PopThreshold)
	if p <= 0 {
		return false
	}
	if p >= 1 {
		return true
	}
	return e.rng.Float64() < p
}

// Bank moves the round's pending points into the total and closes the round.
func (e *Engine) Bank(player string) (PlayerGame, error) {
	s := e.lookup(player)
	if s == nil {
		return PlayerGame{}, gameerrors.ErrNoActiveGame
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := e.playable(s); err != nil {
		return PlayerGame{}, err
	}
	if s.game.PumpCount == 0 {
		return PlayerGame{}, gameerrors.ErrNothingToBank
	}

	banked := s.game.PendingPoints
	s.game.TotalScore = satAdd(s.game.TotalScore, banked)
	s.game.PendingPoints = 0
	e.emit(s, EventBanked, banked)
	e.closeRound(s)
	return s.game, nil
}

// closeRound advances to the next round, or completes the game after the last one.
func (e *Engine) closeRound(s *session) {
	s.game.PumpCount = 0
	s.game.PendingPoints = 0
	if s.game.CurrentRound < e.rules.MaxRounds {
		s.game.CurrentRound++
		return
	}

	s.game.IsActive = false
	s.game.Completed = true
	newHigh := s.game.TotalScore > s.highScore
	if newHigh {
		s.highScore = s.game.TotalScore
	}
	ev := e.event(s, EventCompleted, s.game.TotalScore)
	ev.HighScore = s.highScore
	ev.NewHighScore = newHigh
	e.publish(ev)
	slog.Info("game completed", "tag", "engine", "player", s.player, "score", s.game.TotalScore, "highScore", s.highScore)
}

// Abandon ends the active game early. Pending points are discarded and the high score is untouched.
func (e *Engine) Abandon(player string) (PlayerGame, error) {
	s := e.lookup(player)
	if s == nil {
		return PlayerGame{}, gameerrors.ErrNoActiveGame
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.game.IsActive {
		return PlayerGame{}, gameerrors.ErrNoActiveGame
	}
	lost := s.game.PendingPoints
	s.game.IsActive = false
	s.game.PendingPoints = 0
	s.game.PumpCount = 0
	e.emit(s, EventAbandoned, lost)
	return s.game, nil
}

// GameState returns the player's game; the zero value if the player never played.
func (e *Engine) GameState(player string) PlayerGame {
	s := e.lookup(player)
	if s == nil {
		return PlayerGame{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.game
}

// HighScore returns the player's best completed-game score; 0 if none.
func (e *Engine) HighScore(player string) uint64 {
	s := e.lookup(player)
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.highScore
}

// Restore registers player with a previously persisted high score. Used at startup;
// calls must be made in the original registration order. The stored high score never decreases.
func (e *Engine) Restore(player string, highScore uint64) {
	if player == "" {
		return
	}
	s := e.register(player)
	s.mu.Lock()
	defer s.mu.Unlock()
	if highScore > s.highScore {
		s.highScore = highScore
	}
}

// Resume rebuilds a player's game from the last persisted event of a game that was still open
// when the server stopped. It emits nothing and reports whether an active game was restored.
// A last event that closed the final round finishes the game instead, raising the high score
// for completions whose end was never recorded.
func (e *Engine) Resume(last Event, startedAt time.Time) bool {
	if last.Player == "" || last.GameID == "" {
		return false
	}
	s := e.register(last.Player)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.game.IsActive {
		return false
	}

	g := PlayerGame{
		GameID:        last.GameID,
		CurrentRound:  last.Round,
		PumpCount:     last.PumpCount,
		PendingPoints: last.PendingPoints,
		TotalScore:    last.TotalScore,
		IsActive:      true,
		StartedAt:     startedAt,
	}
	switch last.Kind {
	case EventStarted, EventPumped:
	case EventBanked, EventPopped:
		g.PumpCount = 0
		g.PendingPoints = 0
		if g.CurrentRound < e.rules.MaxRounds {
			g.CurrentRound++
			break
		}
		e.finishResumed(s, g)
		return false
	case EventCompleted:
		e.finishResumed(s, g)
		return false
	default:
		return false
	}
	s.game = g
	slog.Info("resumed game", "tag", "engine", "player", last.Player, "game", g.GameID, "round", g.CurrentRound)
	return true
}

func (e *Engine) finishResumed(s *session, g PlayerGame) {
	g.IsActive = false
	g.Completed = true
	s.game = g
	if g.TotalScore > s.highScore {
		s.highScore = g.TotalScore
	}
}

// PlayerCount returns the number of registered players.
func (e *Engine) PlayerCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.order)
}

func (e *Engine) event(s *session, kind EventKind, points uint64) Event {
	return Event{
		ID:            uuid.NewString(),
		Kind:          kind,
		Player:        s.player,
		GameID:        s.game.GameID,
		Round:         s.game.CurrentRound,
		PumpCount:     s.game.PumpCount,
		Points:        points,
		PendingPoints: s.game.PendingPoints,
		TotalScore:    s.game.TotalScore,
		At:            e.now(),
	}
}

func (e *Engine) emit(s *session, kind EventKind, points uint64) {
	e.publish(e.event(s, kind, points))
}

func (e *Engine) publish(ev Event) {
	if e.sink != nil {
		e.sink.Publish(ev)
	}
}
