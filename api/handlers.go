package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"balloon-game-server/balloon"
	"balloon-game-server/config"
	"balloon-game-server/storage"
	"balloon-game-server/ws"
)

const bearerPrefix = "Bearer "

// GameReader is the read side of the balloon engine.
type GameReader interface {
	GameState(player string) balloon.PlayerGame
	HighScore(player string) uint64
	Leaderboard(topK int) []balloon.LeaderboardEntry
}

// HistoryLister lists a player's finished games.
type HistoryLister interface {
	ListByPlayer(ctx context.Context, player string, limit int) ([]storage.GameRecord, error)
}

// Handler holds dependencies for API handlers.
type Handler struct {
	Config  *config.Config
	Games   GameReader
	History HistoryLister // nil when persistence is off
	Auth    ws.Authenticator
}

// NewHandler creates a new API handler with the given dependencies.
func NewHandler(cfg *config.Config, games GameReader, history HistoryLister, auth ws.Authenticator) *Handler {
	return &Handler{
		Config:  cfg,
		Games:   games,
		History: history,
		Auth:    auth,
	}
}

// Routes registers the API endpoints on mux.
func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("/api/state", h.State)
	mux.HandleFunc("/api/highscore", h.HighScore)
	mux.HandleFunc("/api/leaderboard", h.Leaderboard)
	mux.HandleFunc("/api/history", h.PlayerHistory)
}

// CORS sets CORS headers on the response. Call before writing body.
func CORS(w http.ResponseWriter, r *http.Request) bool {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return true
	}
	return false
}

// preflight handles CORS and rejects anything but GET. It returns true when the request is done.
func preflight(w http.ResponseWriter, r *http.Request) bool {
	if CORS(w, r) {
		return true
	}
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return true
	}
	return false
}

// playerParam returns the normalized ?player= value, or writes 400 and returns "".
func (h *Handler) playerParam(w http.ResponseWriter, r *http.Request) string {
	player, err := ws.NormalizePlayerID(r.URL.Query().Get("player"), h.Config.MaxPlayerIDLength)
	if err != nil {
		http.Error(w, "player query parameter required", http.StatusBadRequest)
		return ""
	}
	return player
}

// extractPlayerID validates the Authorization header and returns the player ID, or empty string on failure.
func (h *Handler) extractPlayerID(r *http.Request) string {
	if h.Auth == nil {
		return ""
	}
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, bearerPrefix) {
		return ""
	}
	token := strings.TrimSpace(authHeader[len(bearerPrefix):])
	player, err := h.Auth.PlayerID(token)
	if err != nil {
		slog.Debug("bearer token rejected", "tag", "api", "err", err)
		return ""
	}
	return player
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding response", "tag", "api", "err", err)
	}
}

// StateResponse is the JSON structure for /api/state.
type StateResponse struct {
	Player    string             `json:"player"`
	Game      balloon.PlayerGame `json:"game"`
	HighScore uint64             `json:"highScore"`
}

// State returns a player's current game. Unknown players get a zeroed game.
func (h *Handler) State(w http.ResponseWriter, r *http.Request) {
	if preflight(w, r) {
		return
	}
	player := h.playerParam(w, r)
	if player == "" {
		return
	}
	writeJSON(w, StateResponse{
		Player:    player,
		Game:      h.Games.GameState(player),
		HighScore: h.Games.HighScore(player),
	})
}

// HighScoreResponse is the JSON structure for /api/highscore.
type HighScoreResponse struct {
	Player    string `json:"player"`
	HighScore uint64 `json:"highScore"`
}

// HighScore returns a player's best completed-game score.
func (h *Handler) HighScore(w http.ResponseWriter, r *http.Request) {
	if preflight(w, r) {
		return
	}
	player := h.playerParam(w, r)
	if player == "" {
		return
	}
	writeJSON(w, HighScoreResponse{Player: player, HighScore: h.Games.HighScore(player)})
}

// LeaderboardResponse is the JSON structure for /api/leaderboard.
type LeaderboardResponse struct {
	Entries []balloon.LeaderboardEntry `json:"entries"`
}

// Leaderboard returns the top players by high score.
func (h *Handler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	if preflight(w, r) {
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = h.Config.LeaderboardSize
	}
	writeJSON(w, LeaderboardResponse{Entries: h.Games.Leaderboard(limit)})
}

// PlayerHistory returns the finished games of the authenticated player.
// Without auth configured the player comes from ?player=.
func (h *Handler) PlayerHistory(w http.ResponseWriter, r *http.Request) {
	if preflight(w, r) {
		return
	}

	var player string
	if h.Auth != nil {
		player = h.extractPlayerID(r)
		if player == "" {
			http.Error(w, "authorization required", http.StatusUnauthorized)
			return
		}
	} else if player = h.playerParam(w, r); player == "" {
		return
	}

	list := []storage.GameRecord{}
	if h.History != nil {
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		var err error
		list, err = h.History.ListByPlayer(r.Context(), player, limit)
		if err != nil {
			slog.Error("ListByPlayer", "tag", "api", "player", player, "err", err)
			http.Error(w, "failed to load history", http.StatusInternalServerError)
			return
		}
	}
	writeJSON(w, list)
}
