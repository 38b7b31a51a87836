package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"balloon-game-server/api"
	"balloon-game-server/auth"
	"balloon-game-server/balloon"
	"balloon-game-server/config"
	"balloon-game-server/loghandler"
	"balloon-game-server/metrics"
	"balloon-game-server/storage"
	"balloon-game-server/ws"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Print("No .env file found; using environment variables.")
	}

	cfg := config.Load()
	slog.SetDefault(slog.New(loghandler.NewCompactHandler(os.Stderr, loghandler.ParseLevel(cfg.LogLevel))))
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "tag", "config", "err", err)
		os.Exit(1)
	}

	slog.Info("configuration", "tag", "config",
		"entryFee", cfg.Game.EntryFee, "basePoints", cfg.Game.BasePoints, "maxRounds", cfg.Game.MaxRounds,
		"pumpPolicy", cfg.Game.PumpPolicy, "maxPumpsPerRound", cfg.Game.MaxPumpsPerRound,
		"popThreshold", cfg.Game.PopThreshold, "wsPort", cfg.WSPort)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("server stopped", "tag", "main", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	store, err := storage.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connecting to Postgres: %w", err)
	}
	defer store.Close()
	if store == nil {
		slog.Info("DATABASE_URL is not set; games will not be persisted", "tag", "storage")
	}

	var authn ws.Authenticator
	if cfg.NeonAuthBaseURL == "" {
		slog.Info("NEON_AUTH_BASE_URL is not set; clients identify themselves with hello", "tag", "auth")
	} else {
		v, err := auth.NewValidator(cfg.NeonAuthBaseURL)
		if err != nil {
			return err
		}
		authn = v
		slog.Info("configured", "tag", "auth", "baseURL", cfg.NeonAuthBaseURL)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	hub := ws.NewHub(cfg, nil, authn)
	collector := metrics.NewCollector(reg)
	sinks := balloon.Sinks{hub, collector}

	// The recorder outlives the hub: it is stopped only once no client can act, then
	// drained before store.Close.
	recCtx, stopRecorder := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	defer func() {
		stopRecorder()
		wg.Wait()
	}()

	var history api.HistoryLister
	if store != nil {
		recorder := storage.NewRecorder(store, 4096)
		wg.Add(1)
		go func() {
			defer wg.Done()
			recorder.Run(recCtx)
		}()
		sinks = append(sinks, recorder)
		history = store
	}

	engine := balloon.NewEngine(cfg.Game, balloon.WithSink(sinks))
	hub.Engine = engine
	if err := restore(ctx, store, engine, collector); err != nil {
		return err
	}

	ctx, stop := context.WithCancel(ctx)
	defer stop()
	go hub.Run(ctx)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.WSPort),
		Handler:           newMux(hub, api.NewHandler(cfg, engine, history, authn), reg),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	slog.Info("Balloon game server listening", "tag", "main", "addr", srv.Addr)
	err = srv.ListenAndServe()

	// Shutdown leaves hijacked WebSocket connections open; the hub closes them.
	stop()
	hub.Wait()
	slog.Info("all clients closed", "tag", "main")

	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func newMux(hub *ws.Hub, handler *api.Handler, gatherer prometheus.Gatherer) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", hub.ServeWS)
	handler.Routes(mux)
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

// restore seeds the engine's registry and high scores from storage, in registration order,
// then resumes games that were still open when the server last stopped.
func restore(ctx context.Context, store *storage.Store, engine *balloon.Engine, collector *metrics.Collector) error {
	records, err := store.ListHighScores(ctx)
	if err != nil {
		return fmt.Errorf("loading high scores: %w", err)
	}
	for _, r := range records {
		engine.Restore(r.Player, r.HighScore)
	}

	open, err := store.ListOpenGames(ctx)
	if err != nil {
		return fmt.Errorf("loading open games: %w", err)
	}
	resumed := 0
	for _, g := range open {
		if engine.Resume(g.Last, g.StartedAt) {
			resumed++
		}
	}
	collector.AddActiveGames(resumed)

	if len(records) > 0 || resumed > 0 {
		slog.Info("restored players", "tag", "storage", "players", len(records), "resumedGames", resumed)
	}
	return nil
}
