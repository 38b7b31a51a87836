package storage

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"balloon-game-server/balloon"
)

const drainTimeout = 5 * time.Second

// EventWriter is the write side of HistoryStore used by Recorder.
type EventWriter interface {
	InsertEvent(ctx context.Context, ev balloon.Event) error
	RegisterPlayer(ctx context.Context, player string, at time.Time) error
	RecordGameEnd(ctx context.Context, ev balloon.Event) error
}

// Recorder is a balloon.EventSink that persists events off the game's hot path.
// Publish never blocks; events are dropped (and counted) when the queue is full.
type Recorder struct {
	w       EventWriter
	queue   chan balloon.Event
	dropped atomic.Int64
}

// NewRecorder creates a Recorder with a queue of the given size.
func NewRecorder(w EventWriter, size int) *Recorder {
	if size <= 0 {
		size = 1024
	}
	return &Recorder{w: w, queue: make(chan balloon.Event, size)}
}

// Publish queues ev for persistence.
func (r *Recorder) Publish(ev balloon.Event) {
	select {
	case r.queue <- ev:
	default:
		n := r.dropped.Add(1)
		slog.Warn("event queue full, dropping event", "tag", "storage", "kind", ev.Kind, "player", ev.Player, "dropped", n)
	}
}

// Dropped returns how many events were discarded because the queue was full.
func (r *Recorder) Dropped() int64 {
	return r.dropped.Load()
}

// Run writes queued events until ctx is cancelled, then drains what is left.
// It should be run as a goroutine.
func (r *Recorder) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			r.drain()
			return
		case ev := <-r.queue:
			r.write(ctx, ev)
		}
	}
}

func (r *Recorder) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	for {
		select {
		case ev := <-r.queue:
			r.write(ctx, ev)
		default:
			return
		}
	}
}

func (r *Recorder) write(ctx context.Context, ev balloon.Event) {
	if ev.Kind == balloon.EventStarted {
		if err := r.w.RegisterPlayer(ctx, ev.Player, ev.At); err != nil {
			slog.Error("registering player", "tag", "storage", "player", ev.Player, "err", err)
		}
	}
	if err := r.w.InsertEvent(ctx, ev); err != nil {
		slog.Error("inserting event", "tag", "storage", "kind", ev.Kind, "player", ev.Player, "err", err)
	}
	if endReason(ev.Kind) != "" {
		if err := r.w.RecordGameEnd(ctx, ev); err != nil {
			slog.Error("recording game end", "tag", "storage", "game", ev.GameID, "player", ev.Player, "err", err)
		}
	}
}
