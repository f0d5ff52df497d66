package domain

import (
	"fmt"
	"time"
)

// Phase represents the lifecycle stage of a game.
type Phase string

const (
	// PhaseWaiting is the pre-game state where players can join.
	PhaseWaiting Phase = "waiting"
	// PhaseStarting is the short countdown between the start command and the first turn.
	PhaseStarting Phase = "starting"
	// PhaseTurnRoll means the current player has not rolled yet this turn.
	PhaseTurnRoll Phase = "turn_roll"
	// PhaseTurnDecide means the current player has dice on the table and may reroll or score.
	PhaseTurnDecide Phase = "turn_decide"
	// PhaseTurnScore is the transient state while a scoring action is applied.
	PhaseTurnScore Phase = "turn_score"
	// PhaseGameOver is terminal except for the explicit rematch transition.
	PhaseGameOver Phase = "game_over"
)

// Active reports whether the phase is an active-play phase, i.e. a phase in
// which CurrentPlayerIndex must be a valid index into PlayerOrder.
func (p Phase) Active() bool {
	return p == PhaseTurnRoll || p == PhaseTurnDecide || p == PhaseTurnScore
}

var validTransitions = map[Phase][]Phase{
	PhaseWaiting:    {PhaseStarting},
	PhaseStarting:   {PhaseTurnRoll, PhaseWaiting},
	PhaseTurnRoll:   {PhaseTurnDecide},
	PhaseTurnDecide: {PhaseTurnScore},
	PhaseTurnScore:  {PhaseTurnRoll, PhaseGameOver},
	PhaseGameOver:   {PhaseWaiting}, // rematch
}

// IsValidTransition reports whether the phase pair is a legal state-machine edge.
func IsValidTransition(from, to Phase) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ConnStatus is a player's connection status within a game.
type ConnStatus string

const (
	ConnOnline       ConnStatus = "online"
	ConnAway         ConnStatus = "away"
	ConnDisconnected ConnStatus = "disconnected"
)

// TurnsPerPlayer is the number of scoring actions each player takes in a
// full game, one per category.
const TurnsPerPlayer = 13

// MaxRollsPerTurn counts the initial roll plus two rerolls.
const MaxRollsPerTurn = 3

// RoomConfig carries the per-room settings fixed at creation time.
type RoomConfig struct {
	MaxPlayers         int  `json:"maxPlayers"`
	TurnTimeoutSeconds int  `json:"turnTimeoutSeconds"`
	Public             bool `json:"public"`
	AllowSpectators    bool `json:"allowSpectators"`
}

// PlayerGameState holds one player's in-game state.
type PlayerGameState struct {
	UserID      string     `json:"userId"`
	DisplayName string     `json:"displayName"`
	AvatarSeed  string     `json:"avatarSeed"`
	Connection  ConnStatus `json:"connection"`
	IsHost      bool       `json:"isHost"`

	Scorecard Scorecard `json:"scorecard"`
	Total     int       `json:"total"`

	// Dice is nil before the first roll of a turn, otherwise five values 1-6.
	Dice      []int   `json:"dice"`
	Kept      [5]bool `json:"kept"`
	RollsLeft int     `json:"rollsLeft"`
}

// Ranking is one entry of the final standings.
type Ranking struct {
	Rank       int    `json:"rank"`
	UserID     string `json:"userId"`
	Total      int    `json:"total"`
	DiceeBonus int    `json:"diceeBonus"`
}

// GameState is the authoritative state for one room's game. It is owned and
// mutated exclusively by that room's actor.
type GameState struct {
	RoomCode string `json:"roomCode"`
	Phase    Phase  `json:"phase"`

	// PlayerOrder is fixed once the game starts. TurnNumber and RoundNumber
	// only ever increase.
	PlayerOrder        []string `json:"playerOrder"`
	CurrentPlayerIndex int      `json:"currentPlayerIndex"`
	TurnNumber         int      `json:"turnNumber"`
	RoundNumber        int      `json:"roundNumber"`

	Players map[string]*PlayerGameState `json:"players"`

	TurnStartedAt   time.Time `json:"turnStartedAt"`
	GameStartedAt   time.Time `json:"gameStartedAt"`
	GameCompletedAt time.Time `json:"gameCompletedAt"`

	// Rankings is nil until the game completes.
	Rankings []Ranking `json:"rankings"`

	Config RoomConfig `json:"config"`
}

// NewGameState returns a fresh waiting-phase game for a room.
func NewGameState(roomCode string, cfg RoomConfig) *GameState {
	return &GameState{
		RoomCode: roomCode,
		Phase:    PhaseWaiting,
		Players:  make(map[string]*PlayerGameState),
		Config:   cfg,
	}
}

// SetPhase applies a phase edge. Commands are validated before any state is
// mutated, so an illegal edge here is a programming error.
func (g *GameState) SetPhase(to Phase) {
	if !IsValidTransition(g.Phase, to) {
		panic(fmt.Sprintf("illegal phase transition %s -> %s", g.Phase, to))
	}
	g.Phase = to
}

// CurrentPlayerID returns the user id whose turn it is, or "" outside active play.
func (g *GameState) CurrentPlayerID() string {
	if !g.Phase.Active() {
		return ""
	}
	if g.CurrentPlayerIndex < 0 || g.CurrentPlayerIndex >= len(g.PlayerOrder) {
		return ""
	}
	return g.PlayerOrder[g.CurrentPlayerIndex]
}

// HostID returns the user id of the host, or "" if none is marked.
func (g *GameState) HostID() string {
	for id, p := range g.Players {
		if p.IsHost {
			return id
		}
	}
	return ""
}

// Complete reports whether every player has filled all categories.
func (g *GameState) Complete() bool {
	if len(g.Players) == 0 {
		return false
	}
	for _, p := range g.Players {
		if !p.Scorecard.Complete() {
			return false
		}
	}
	return true
}
