package balloon

import "time"

// EventKind names a state transition of a player's game.
type EventKind string

const (
	EventStarted   EventKind = "started"
	EventPumped    EventKind = "pumped"
	EventBanked    EventKind = "banked"
	EventPopped    EventKind = "popped"
	EventCompleted EventKind = "completed"
	EventAbandoned EventKind = "abandoned"
)

// Event is emitted after every successful mutation.
//
// Points depends on Kind: points earned by the pump (pumped), points moved into
// the total (banked), or pending points lost (popped, abandoned).
type Event struct {
	ID            string    `json:"id"`
	Kind          EventKind `json:"kind"`
	Player        string    `json:"player"`
	GameID        string    `json:"gameId"`
	Round         int       `json:"round"`
	PumpCount     int       `json:"pumpCount"`
	Points        uint64    `json:"points"`
	PendingPoints uint64    `json:"pendingPoints"`
	TotalScore    uint64    `json:"totalScore"`
	HighScore     uint64    `json:"highScore,omitempty"`
	NewHighScore  bool      `json:"newHighScore,omitempty"`
	At            time.Time `json:"at"`
}

// EventSink receives events. Publish is called while the player's game is locked,
// so implementations must not block and must not call back into the Engine.
type EventSink interface {
	Publish(ev Event)
}

// SinkFunc adapts a function to EventSink.
type SinkFunc func(ev Event)

// Publish calls f(ev).
func (f SinkFunc) Publish(ev Event) { f(ev) }

// Sinks fans an event out to every non-nil sink in order.
type Sinks []EventSink

// Publish forwards ev to each sink.
func (s Sinks) Publish(ev Event) {
	for _, sink := range s {
		if sink != nil {
			sink.Publish(ev)
		}
	}
}
