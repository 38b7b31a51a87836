package ws

import (
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"balloon-game-server/config"
	"balloon-game-server/gameerrors"
	"balloon-game-server/wsutil"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 4096
)

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	Hub  *Hub
	Conn *websocket.Conn
	Send chan []byte

	// Player is the identity bound by auth or hello; only touched by the read goroutine.
	Player string

	limiter *rate.Limiter
}

func newClient(h *Hub, conn *websocket.Conn) *Client {
	return &Client{
		Hub:     h,
		Conn:    conn,
		Send:    make(chan []byte, 256),
		limiter: h.newLimiter(),
	}
}

// ReadPump pumps messages from the websocket connection to the engine.
// It runs in its own goroutine per connection.
func (c *Client) ReadPump() {
	defer func() {
		c.Hub.unregister(c)
		c.Conn.Close()
		c.Hub.readers.Done()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("WebSocket read error", "tag", "ws", "player", c.Player, "err", err)
			}
			break
		}

		c.handleMessage(message)
	}
}

// WritePump pumps messages from the send channel to the websocket connection.
// It runs in its own goroutine per connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) handleMessage(data []byte) {
	var envelope InboundEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		c.sendCode(gameerrors.CodeBadRequest, "Invalid message format.")
		return
	}

	switch envelope.Type {
	case TypeAuth:
		c.handleAuth(envelope.Raw)
		return
	case TypeHello:
		c.handleHello(envelope.Raw)
		return
	case TypeStartGame, TypePump, TypeBank, TypeAbandon, TypeGetState:
	default:
		c.sendCode(gameerrors.CodeBadRequest, "Unknown message type: "+envelope.Type)
		return
	}

	if c.Player == "" {
		c.sendError(gameerrors.ErrUnauthenticated)
		return
	}
	if !c.limiter.Allow() {
		c.sendError(gameerrors.ErrRateLimited)
		return
	}

	switch envelope.Type {
	case TypeStartGame:
		c.handleStartGame(envelope.Raw)
	case TypePump:
		_, err := c.Hub.Engine.Pump(c.Player)
		c.reply(err)
	case TypeBank:
		_, err := c.Hub.Engine.Bank(c.Player)
		c.reply(err)
	case TypeAbandon:
		_, err := c.Hub.Engine.Abandon(c.Player)
		c.reply(err)
	case TypeGetState:
		c.sendState()
	}
}

func (c *Client) handleAuth(raw json.RawMessage) {
	if c.Hub.Auth == nil {
		c.sendCode(gameerrors.CodeUnauthenticated, "Server auth not configured.")
		return
	}
	var msg AuthMsg
	if err := json.Unmarshal(raw, &msg); err != nil || msg.Token == "" {
		c.sendCode(gameerrors.CodeBadRequest, "Invalid auth message.")
		return
	}
	player, err := c.Hub.Auth.PlayerID(msg.Token)
	if err != nil {
		slog.Debug("auth rejected", "tag", "auth", "err", err)
		c.sendCode(gameerrors.CodeUnauthenticated, "Invalid or expired token.")
		return
	}
	c.bind(player)
}

func (c *Client) handleHello(raw json.RawMessage) {
	if c.Hub.Auth != nil {
		c.sendCode(gameerrors.CodeUnauthenticated, "Authentication required.")
		return
	}
	var msg HelloMsg
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.sendCode(gameerrors.CodeBadRequest, "Invalid hello message.")
		return
	}
	player, err := NormalizePlayerID(msg.Player, c.Hub.Config.MaxPlayerIDLength)
	if err != nil {
		c.sendError(err)
		return
	}
	c.bind(player)
}

// NormalizePlayerID trims and lower-cases id and checks its length.
func NormalizePlayerID(id string, maxLen int) (string, error) {
	id = strings.ToLower(strings.TrimSpace(id))
	if id == "" || len(id) > maxLen {
		return "", gameerrors.ErrInvalidPlayer
	}
	return id, nil
}

func (c *Client) bind(player string) {
	if c.Player != "" && c.Player != player {
		c.sendCode(gameerrors.CodeBadRequest, "Connection is already bound to another player.")
		return
	}
	c.Player = player
	c.Hub.Identify(c, player)

	r := c.Hub.Engine.Rules()
	ready := ReadyMsg{
		Type:   TypeReady,
		Player: player,
		Rules: RulesView{
			EntryFee:   r.EntryFee,
			BasePoints: r.BasePoints,
			MaxRounds:  r.MaxRounds,
			PumpPolicy: r.PumpPolicy,
		},
	}
	if r.PumpPolicy == config.PolicyCapped {
		ready.Rules.MaxPumpsPerRound = r.MaxPumpsPerRound
	} else {
		ready.Rules.PopThreshold = r.PopThreshold
	}
	c.sendJSON(ready)
	c.sendState()
}

func (c *Client) handleStartGame(raw json.RawMessage) {
	var msg StartGameMsg
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.sendCode(gameerrors.CodeBadRequest, "Invalid start_game message.")
		return
	}
	_, err := c.Hub.Engine.StartGame(c.Player, msg.Fee)
	c.reply(err)
}

// reply reports err to the client, or the fresh game state on success.
func (c *Client) reply(err error) {
	if err != nil {
		c.sendError(err)
		return
	}
	c.sendState()
}

func (c *Client) sendState() {
	c.sendJSON(GameStateMsg{
		Type:      TypeGameState,
		Game:      c.Hub.Engine.GameState(c.Player),
		HighScore: c.Hub.Engine.HighScore(c.Player),
	})
}

func (c *Client) sendError(err error) {
	code := gameerrors.Code(err)
	msg := err.Error()
	if code == gameerrors.CodeInternal {
		slog.Error("action failed", "tag", "ws", "player", c.Player, "err", err)
		msg = "Internal error."
	} else {
		slog.Debug("action rejected", "tag", "ws", "player", c.Player, "code", code)
	}
	c.sendJSON(ErrorMsg{Type: TypeError, Code: code, Message: msg})
}

func (c *Client) sendCode(code, message string) {
	c.sendJSON(ErrorMsg{Type: TypeError, Code: code, Message: message})
}

func (c *Client) sendJSON(v any) {
	if !wsutil.SendJSON(c.Send, v) {
		slog.Debug("dropped outbound message", "tag", "ws", "player", c.Player)
	}
}
