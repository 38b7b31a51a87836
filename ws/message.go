package ws

import (
	"encoding/json"

	"balloon-game-server/balloon"
)

// Inbound message types.
const (
	TypeAuth      = "auth"
	TypeHello     = "hello"
	TypeStartGame = "start_game"
	TypePump      = "pump"
	TypeBank      = "bank"
	TypeAbandon   = "abandon"
	TypeGetState  = "get_state"
)

// Outbound message types.
const (
	TypeReady     = "ready"
	TypeGameState = "game_state"
	TypeEvent     = "event"
	TypeError     = "error"
)

// InboundEnvelope is the generic envelope for all client-to-server messages.
// The Type field is used for routing; Raw holds the full JSON payload.
type InboundEnvelope struct {
	Type string          `json:"type"`
	Raw  json.RawMessage `json:"-"`
}

// UnmarshalJSON implements custom unmarshaling to capture the raw payload.
func (e *InboundEnvelope) UnmarshalJSON(data []byte) error {
	type typeOnly struct {
		Type string `json:"type"`
	}
	var t typeOnly
	if err := json.Unmarshal(data, &t); err != nil {
		return err
	}
	e.Type = t.Type
	e.Raw = append(json.RawMessage(nil), data...)
	return nil
}

// --- Client-to-Server message payloads ---

// AuthMsg is sent by the client as the first message with a Neon Auth JWT.
type AuthMsg struct {
	Type  string `json:"type"`
	Token string `json:"token"`
}

// HelloMsg identifies the player directly. Only accepted when the server runs without auth;
// the identity (a wallet address) is then trusted as given.
type HelloMsg struct {
	Type   string `json:"type"`
	Player string `json:"player"`
}

// StartGameMsg starts a game. Fee must equal the entry fee exactly.
type StartGameMsg struct {
	Type string `json:"type"`
	Fee  uint64 `json:"fee"`
}

// --- Server-to-Client messages ---

// RulesView tells the client which rules are in force.
type RulesView struct {
	EntryFee         uint64 `json:"entryFee"`
	BasePoints       uint64 `json:"basePoints"`
	MaxRounds        int    `json:"maxRounds"`
	PumpPolicy       string `json:"pumpPolicy"`
	MaxPumpsPerRound int    `json:"maxPumpsPerRound,omitempty"`
	PopThreshold     int    `json:"popThreshold,omitempty"`
}

// ReadyMsg confirms the connection is bound to a player.
type ReadyMsg struct {
	Type   string    `json:"type"`
	Player string    `json:"player"`
	Rules  RulesView `json:"rules"`
}

// GameStateMsg is the player's authoritative state, sent after every action.
type GameStateMsg struct {
	Type      string             `json:"type"`
	Game      balloon.PlayerGame `json:"game"`
	HighScore uint64             `json:"highScore"`
}

// EventMsg carries one game event to every connection of the event's player.
type EventMsg struct {
	Type  string        `json:"type"`
	Event balloon.Event `json:"event"`
}

// ErrorMsg is sent when a client action is rejected. Code is a stable machine-readable kind.
type ErrorMsg struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}
