package ws

import (
	"encoding/json"
	"fmt"
	"time"

	"dicee/internal/app"
	"dicee/internal/domain"
)

// Command types accepted from clients.
const (
	CmdGameStart     = "game.start"
	CmdDiceRoll      = "dice.roll"
	CmdDiceKeep      = "dice.keep"
	CmdCategoryScore = "category.score"
	CmdGameRematch   = "game.rematch"
	CmdRoomJoin      = "room.join"
	CmdRoomLeave     = "room.leave"

	CmdChat     = "chat"
	CmdGetRooms = "get_rooms"
)

// Event types pushed to clients.
const (
	EvtGameStarted    = "game.started"
	EvtTurnStarted    = "turn.started"
	EvtDiceRolled     = "dice.rolled"
	EvtDiceKept       = "dice.kept"
	EvtCategoryScored = "category.scored"
	EvtTurnEnded      = "turn.ended"
	EvtTurnSkipped    = "turn.skipped"
	EvtAFKWarning     = "player.afk_warning"
	EvtGameCompleted  = "game.completed"
	EvtStateSync      = "state.sync"
	EvtGameError      = "game.error"

	EvtRoomState        = "room.state"
	EvtPlayerJoined     = "player.joined"
	EvtPlayerLeft       = "player.left"
	EvtPlayerConnection = "player.connection"

	EvtLobbyState     = "lobby.state"
	EvtPresenceJoined = "presence.joined"
	EvtPresenceLeft   = "presence.left"
	EvtChatMessage    = "chat.message"
	EvtRoomDirectory  = "room.directory"
	EvtRoomHighlight  = "room.highlight"
	EvtLobbyError     = "lobby.error"
)

// Transport-tier error codes. Domain rejections carry the validator's codes.
const (
	CodeInvalidJSON    = "INVALID_JSON"
	CodeInvalidPayload = "INVALID_PAYLOAD"
	CodeUnknownCommand = "UNKNOWN_COMMAND"
	CodeNotAPlayer     = "NOT_A_PLAYER"
	CodeRoomFull       = "ROOM_FULL"
	CodeRateLimited    = "RATE_LIMITED"
	CodeMessageTooLong = "MESSAGE_TOO_LONG"
	CodeUnavailable    = "UNAVAILABLE"
)

// Command is the inbound envelope. Data is decoded per command type after
// the envelope itself validates.
type Command struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Event is the outbound envelope. Every event is timestamped.
type Event struct {
	Type string    `json:"type"`
	Ts   time.Time `json:"ts"`
	Data any       `json:"data"`
}

// NewEvent stamps an outbound event.
func NewEvent(typ string, data any) Event {
	return Event{Type: typ, Ts: time.Now().UTC(), Data: data}
}

// ErrorData is the payload of game.error / lobby.error frames.
type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WireError is a shape-level rejection produced before dispatch.
type WireError struct {
	Code    string
	Message string
}

func (e *WireError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func invalidPayload(format string, args ...any) *WireError {
	return &WireError{Code: CodeInvalidPayload, Message: fmt.Sprintf(format, args...)}
}

// DecodeCommand validates the envelope shape.
func DecodeCommand(data []byte) (Command, *WireError) {
	var cmd Command
	if err := json.Unmarshal(data, &cmd); err != nil {
		return Command{}, &WireError{Code: CodeInvalidJSON, Message: "malformed JSON"}
	}
	if cmd.Type == "" {
		return Command{}, invalidPayload("missing command type")
	}
	return cmd, nil
}

// RollPayload carries the keep mask for a reroll.
type RollPayload struct {
	Kept []bool `json:"kept"`
}

// ParseRoll validates dice.roll data: the mask must cover all five dice.
func ParseRoll(data json.RawMessage) ([5]bool, *WireError) {
	var p RollPayload
	if len(data) > 0 {
		if err := json.Unmarshal(data, &p); err != nil {
			return [5]bool{}, invalidPayload("invalid dice.roll payload")
		}
	}
	var kept [5]bool
	if p.Kept == nil {
		return kept, nil
	}
	if len(p.Kept) != 5 {
		return kept, invalidPayload("kept must have exactly 5 entries")
	}
	copy(kept[:], p.Kept)
	return kept, nil
}

// KeepPayload carries the dice indices to hold.
type KeepPayload struct {
	Indices []int `json:"indices"`
}

// ParseKeep validates dice.keep data: indices must be within [0,4].
func ParseKeep(data json.RawMessage) ([]int, *WireError) {
	var p KeepPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, invalidPayload("invalid dice.keep payload")
	}
	if len(p.Indices) > 5 {
		return nil, invalidPayload("at most 5 indices")
	}
	for _, i := range p.Indices {
		if i < 0 || i > 4 {
			return nil, invalidPayload("index %d out of range [0,4]", i)
		}
	}
	return p.Indices, nil
}

// ScorePayload names the target category.
type ScorePayload struct {
	Category string `json:"category"`
}

// ParseScore validates category.score data against the category enum.
func ParseScore(data json.RawMessage) (domain.Category, *WireError) {
	var p ScorePayload
	if err := json.Unmarshal(data, &p); err != nil {
		return "", invalidPayload("invalid category.score payload")
	}
	c, ok := domain.ParseCategory(p.Category)
	if !ok {
		return "", invalidPayload("unknown category %q", p.Category)
	}
	return c, nil
}

// JoinPayload carries the roster entry details.
type JoinPayload struct {
	DisplayName string `json:"displayName"`
	AvatarSeed  string `json:"avatarSeed"`
}

// ParseJoin validates room.join data.
func ParseJoin(data json.RawMessage) (JoinPayload, *WireError) {
	var p JoinPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return JoinPayload{}, invalidPayload("invalid room.join payload")
	}
	if p.DisplayName == "" {
		return JoinPayload{}, invalidPayload("displayName is required")
	}
	if len(p.DisplayName) > 32 {
		return JoinPayload{}, invalidPayload("displayName too long")
	}
	return p, nil
}

// ChatPayload carries a lobby chat line.
type ChatPayload struct {
	Text string `json:"text"`
}

// ParseChat validates chat data shape; length limits are enforced by the
// lobby because they are configured, not structural.
func ParseChat(data json.RawMessage) (string, *WireError) {
	var p ChatPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return "", invalidPayload("invalid chat payload")
	}
	if p.Text == "" {
		return "", invalidPayload("text is required")
	}
	return p.Text, nil
}

// gameEventTypes maps app event kinds to wire event types.
var gameEventTypes = map[app.EventKind]string{
	app.EventGameStarted:    EvtGameStarted,
	app.EventTurnStarted:    EvtTurnStarted,
	app.EventDiceRolled:     EvtDiceRolled,
	app.EventDiceKept:       EvtDiceKept,
	app.EventCategoryScored: EvtCategoryScored,
	app.EventTurnEnded:      EvtTurnEnded,
	app.EventTurnSkipped:    EvtTurnSkipped,
	app.EventGameCompleted:  EvtGameCompleted,
}

// GameEvent converts an app event into its wire envelope.
func GameEvent(ev app.Event) (Event, bool) {
	typ, ok := gameEventTypes[ev.Kind]
	if !ok {
		return Event{}, false
	}
	return NewEvent(typ, ev.Payload), true
}

// AFKWarningData is pushed when the active player is running out of time.
type AFKWarningData struct {
	UserID           string `json:"userId"`
	SecondsRemaining int    `json:"secondsRemaining"`
}

// StateSyncData carries the entire game state for reconnection convergence.
type StateSyncData struct {
	State *domain.GameState `json:"state"`
}

// RoomStateData is the roster snapshot broadcast on roster changes.
type RoomStateData struct {
	Room *domain.RoomState `json:"room"`
}

// PlayerLeftData explains a roster removal.
type PlayerLeftData struct {
	UserID    string `json:"userId"`
	Reason    string `json:"reason"`
	NewHostID string `json:"newHostId,omitempty"`
}

// PlayerConnectionData reports a connection status flip.
type PlayerConnectionData struct {
	UserID      string `json:"userId"`
	IsConnected bool   `json:"isConnected"`
}
