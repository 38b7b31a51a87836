package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/go-cmp/cmp"

	"balloon-game-server/balloon"
	"balloon-game-server/config"
	"balloon-game-server/storage"
)

type fakeHistory struct {
	gotPlayer string
	records   []storage.GameRecord
	err       error
}

func (f *fakeHistory) ListByPlayer(_ context.Context, player string, _ int) ([]storage.GameRecord, error) {
	f.gotPlayer = player
	return f.records, f.err
}

type fakeAuth struct{}

func (fakeAuth) PlayerID(token string) (string, error) {
	if token == "t0k" {
		return "0xauthed", nil
	}
	return "", errors.New("invalid")
}

// testEngine returns an engine where 0xa scored 150, 0xb 50 and 0xc 150 (registered in that order).
func testEngine(t *testing.T) (*balloon.Engine, *config.Config) {
	t.Helper()
	cfg := config.Defaults()
	e := balloon.NewEngine(cfg.Game)
	play := func(player string, pumps int) {
		if _, err := e.StartGame(player, cfg.Game.EntryFee); err != nil {
			t.Fatalf("StartGame: %v", err)
		}
		for r := 0; r < cfg.Game.MaxRounds; r++ {
			for p := 0; p < pumps; p++ {
				e.Pump(player)
			}
			if _, err := e.Bank(player); err != nil {
				t.Fatalf("Bank: %v", err)
			}
		}
	}
	play("0xa", 2)
	play("0xb", 1)
	play("0xc", 2)
	return e, cfg
}

func get(t *testing.T, handler http.HandlerFunc, target string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func TestLeaderboard_SortedWithStableTies(t *testing.T) {
	e, cfg := testEngine(t)
	h := NewHandler(cfg, e, nil, nil)

	rec := get(t, h.Leaderboard, "/api/leaderboard", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp LeaderboardResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := []balloon.LeaderboardEntry{
		{Rank: 1, Player: "0xa", HighScore: 150},
		{Rank: 2, Player: "0xc", HighScore: 150},
		{Rank: 3, Player: "0xb", HighScore: 50},
	}
	if diff := cmp.Diff(want, resp.Entries); diff != "" {
		t.Errorf("leaderboard mismatch (-want +got):\n%s", diff)
	}
}

func TestLeaderboard_Limit(t *testing.T) {
	e, cfg := testEngine(t)
	h := NewHandler(cfg, e, nil, nil)

	rec := get(t, h.Leaderboard, "/api/leaderboard?limit=1", nil)
	var resp LeaderboardResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Entries) != 1 || resp.Entries[0].Player != "0xa" {
		t.Errorf("expected only 0xa, got %+v", resp.Entries)
	}
}

func TestState(t *testing.T) {
	e, cfg := testEngine(t)
	h := NewHandler(cfg, e, nil, nil)

	rec := get(t, h.State, "/api/state?player=0xA", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp StateResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Player != "0xa" || resp.HighScore != 150 || resp.Game.TotalScore != 150 || resp.Game.IsActive {
		t.Errorf("unexpected state response: %+v", resp)
	}

	rec = get(t, h.State, "/api/state?player=0xunknown", nil)
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Game.CurrentRound != 0 || resp.HighScore != 0 {
		t.Errorf("unknown player should read as zero, got %+v", resp)
	}
}

func TestState_MissingPlayer(t *testing.T) {
	e, cfg := testEngine(t)
	h := NewHandler(cfg, e, nil, nil)

	if rec := get(t, h.State, "/api/state", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
	if rec := get(t, h.HighScore, "/api/highscore?player=", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestHighScore(t *testing.T) {
	e, cfg := testEngine(t)
	h := NewHandler(cfg, e, nil, nil)

	rec := get(t, h.HighScore, "/api/highscore?player=0xb", nil)
	var resp HighScoreResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.HighScore != 50 {
		t.Errorf("expected 50, got %d", resp.HighScore)
	}
}

func TestMethodNotAllowedAndCORS(t *testing.T) {
	e, cfg := testEngine(t)
	h := NewHandler(cfg, e, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/leaderboard", nil)
	rec := httptest.NewRecorder()
	h.Leaderboard(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodOptions, "/api/leaderboard", nil)
	rec = httptest.NewRecorder()
	h.Leaderboard(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Errorf("expected 204 for preflight, got %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("expected CORS header")
	}
}

func TestPlayerHistory_NoAuthUsesQuery(t *testing.T) {
	e, cfg := testEngine(t)
	hist := &fakeHistory{records: []storage.GameRecord{{GameID: "g1", Player: "0xa", TotalScore: 150, EndReason: storage.EndCompleted}}}
	h := NewHandler(cfg, e, hist, nil)

	rec := get(t, h.PlayerHistory, "/api/history?player=0xa", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if hist.gotPlayer != "0xa" {
		t.Errorf("expected lookup for 0xa, got %q", hist.gotPlayer)
	}
	var got []storage.GameRecord
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if diff := cmp.Diff(hist.records, got); diff != "" {
		t.Errorf("history mismatch (-want +got):\n%s", diff)
	}
}

func TestPlayerHistory_AuthRequired(t *testing.T) {
	e, cfg := testEngine(t)
	hist := &fakeHistory{}
	h := NewHandler(cfg, e, hist, fakeAuth{})

	if rec := get(t, h.PlayerHistory, "/api/history?player=0xa", nil); rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without token, got %d", rec.Code)
	}

	rec := get(t, h.PlayerHistory, "/api/history", http.Header{"Authorization": {"Bearer t0k"}})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", rec.Code)
	}
	if hist.gotPlayer != "0xauthed" {
		t.Errorf("history must be looked up for the token's player, got %q", hist.gotPlayer)
	}
}

func TestPlayerHistory_StoreError(t *testing.T) {
	e, cfg := testEngine(t)
	h := NewHandler(cfg, e, &fakeHistory{err: errors.New("db down")}, nil)

	if rec := get(t, h.PlayerHistory, "/api/history?player=0xa", nil); rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", rec.Code)
	}
}

func TestPlayerHistory_NoStore(t *testing.T) {
	e, cfg := testEngine(t)
	h := NewHandler(cfg, e, nil, nil)

	rec := get(t, h.PlayerHistory, "/api/history?player=0xa", nil)
	if body := rec.Body.String(); body != "[]\n" {
		t.Errorf("expected empty list, got %q", body)
	}
}
