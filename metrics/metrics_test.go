package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"balloon-game-server/balloon"
	"balloon-game-server/config"
)

func TestCollector_CountsEngineEvents(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	rules := config.Defaults().Game
	e := balloon.NewEngine(rules, balloon.WithSink(c))

	if _, err := e.StartGame("0xa", rules.EntryFee); err != nil {
		t.Fatalf("StartGame: %v", err)
	}
	if _, err := e.StartGame("0xb", rules.EntryFee); err != nil {
		t.Fatalf("StartGame: %v", err)
	}
	if got := testutil.ToFloat64(c.activeGames); got != 2 {
		t.Errorf("expected 2 active games, got %v", got)
	}

	for r := 0; r < rules.MaxRounds; r++ {
		e.Pump("0xa")
		e.Pump("0xa")
		if _, err := e.Bank("0xa"); err != nil {
			t.Fatalf("Bank: %v", err)
		}
	}
	if _, err := e.Abandon("0xb"); err != nil {
		t.Fatalf("Abandon: %v", err)
	}

	if got := testutil.ToFloat64(c.activeGames); got != 0 {
		t.Errorf("expected 0 active games, got %v", got)
	}
	if got := testutil.ToFloat64(c.events.WithLabelValues("pumped")); got != 10 {
		t.Errorf("expected 10 pumped events, got %v", got)
	}
	if got := testutil.ToFloat64(c.events.WithLabelValues("banked")); got != 5 {
		t.Errorf("expected 5 banked events, got %v", got)
	}
	if got := testutil.ToFloat64(c.events.WithLabelValues("completed")); got != 1 {
		t.Errorf("expected 1 completed event, got %v", got)
	}
	if n := testutil.CollectAndCount(c.finalScore); n != 1 {
		t.Errorf("expected final score histogram to be collected, got %d", n)
	}
}

func TestCollector_ResumedGamesEndAtZero(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	rules := config.Defaults().Game
	e := balloon.NewEngine(rules, balloon.WithSink(c))

	resumed := e.Resume(balloon.Event{Kind: balloon.EventPumped, Player: "0xa", GameID: "g1", Round: 1, PumpCount: 1, PendingPoints: 10}, time.Now())
	if !resumed {
		t.Fatal("expected the game to resume")
	}
	c.AddActiveGames(1)

	if _, err := e.Abandon("0xa"); err != nil {
		t.Fatalf("Abandon: %v", err)
	}
	if got := testutil.ToFloat64(c.activeGames); got != 0 {
		t.Errorf("expected 0 active games, got %v", got)
	}
}
