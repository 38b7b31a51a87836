package ws

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"balloon-game-server/balloon"
	"balloon-game-server/config"
	"balloon-game-server/wsutil"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Allow all origins for development; restrict in production.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// GameEngine defines what clients need from the balloon engine.
type GameEngine interface {
	Rules() config.GameRules
	StartGame(player string, paidFee uint64) (balloon.PlayerGame, error)
	Pump(player string) (balloon.PumpResult, error)
	Bank(player string) (balloon.PlayerGame, error)
	Abandon(player string) (balloon.PlayerGame, error)
	GameState(player string) balloon.PlayerGame
	HighScore(player string) uint64
}

// Authenticator resolves a bearer token to a player identity.
type Authenticator interface {
	PlayerID(token string) (string, error)
}

type identifyReq struct {
	client *Client
	player string
}

// Hub maintains the set of active clients and fans game events out to them.
// It implements balloon.EventSink.
type Hub struct {
	clients    map[*Client]string // client -> player ("" until identified)
	Register   chan *Client
	Unregister chan *Client
	identify   chan identifyReq
	events     chan balloon.Event
	done       chan struct{}

	// readers counts registered clients whose ReadPump has not returned.
	readers sync.WaitGroup

	Engine GameEngine
	Auth   Authenticator // nil: clients identify themselves with hello
	Config *config.Config
}

// NewHub creates a new Hub.
func NewHub(cfg *config.Config, engine GameEngine, auth Authenticator) *Hub {
	return &Hub{
		clients:    make(map[*Client]string),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		identify:   make(chan identifyReq),
		events:     make(chan balloon.Event, 256),
		done:       make(chan struct{}),
		Engine:     engine,
		Auth:       auth,
		Config:     cfg,
	}
}

// Run starts the hub's main loop. Should be run as a goroutine.
// When ctx is cancelled (e.g. on server shutdown), Run closes every client's Send channel,
// which closes their connections, and no longer accepts new registrations.
// Every registered client must run ReadPump, which Wait waits for.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			slog.Info("shutdown signal received, closing clients", "tag", "ws", "clients", len(h.clients))
			for c := range h.clients {
				delete(h.clients, c)
				close(c.Send)
			}
			return
		case client := <-h.Register:
			h.readers.Add(1)
			h.clients[client] = ""
			slog.Debug("client connected", "tag", "ws", "clients", len(h.clients))

		case client := <-h.Unregister:
			if player, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.Send)
				slog.Debug("client disconnected", "tag", "ws", "player", player, "clients", len(h.clients))
			}

		case req := <-h.identify:
			if _, ok := h.clients[req.client]; ok {
				h.clients[req.client] = req.player
			}

		case ev := <-h.events:
			msg := EventMsg{Type: TypeEvent, Event: ev}
			for c, player := range h.clients {
				if player == ev.Player {
					wsutil.SendJSON(c.Send, msg)
				}
			}
		}
	}
}

// Wait blocks until Run has returned and every client's ReadPump has exited.
// After Wait no client action can reach the engine.
func (h *Hub) Wait() {
	<-h.done
	h.readers.Wait()
}

// Publish queues ev for delivery to the player's connections. It never blocks; if the
// hub is backed up the event is dropped, since clients also receive game_state replies.
func (h *Hub) Publish(ev balloon.Event) {
	select {
	case h.events <- ev:
	default:
		slog.Warn("event channel full, dropping event", "tag", "ws", "kind", ev.Kind, "player", ev.Player)
	}
}

// Identify binds c to player for event delivery.
func (h *Hub) Identify(c *Client, player string) {
	select {
	case h.identify <- identifyReq{client: c, player: player}:
	case <-h.done:
	}
}

func (h *Hub) register(c *Client) bool {
	select {
	case h.Register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) unregister(c *Client) {
	select {
	case h.Unregister <- c:
	case <-h.done:
	}
}

func (h *Hub) newLimiter() *rate.Limiter {
	if h.Config == nil || h.Config.ClientActionsPerSec <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	burst := h.Config.ClientActionBurst
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(h.Config.ClientActionsPerSec), burst)
}

// ServeWS handles WebSocket upgrade requests and creates a new Client.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("WebSocket upgrade error", "tag", "ws", "err", err)
		return
	}

	client := newClient(h, conn)
	if !h.register(client) {
		conn.Close()
		return
	}

	go client.WritePump()
	go client.ReadPump()
}
