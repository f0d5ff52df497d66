package app

import "dicee/internal/domain"

// EventKind identifies emitted game events for wire dispatch.
type EventKind string

const (
	EventGameStarted    EventKind = "game_started"
	EventTurnStarted    EventKind = "turn_started"
	EventDiceRolled     EventKind = "dice_rolled"
	EventDiceKept       EventKind = "dice_kept"
	EventCategoryScored EventKind = "category_scored"
	EventTurnEnded      EventKind = "turn_ended"
	EventTurnSkipped    EventKind = "turn_skipped"
	EventGameCompleted  EventKind = "game_completed"
)

// Event is a game event with optional targeted recipients.
type Event struct {
	Kind       EventKind
	Payload    any
	Recipients []string // user IDs; empty means broadcast
}

type GameStartedPayload struct {
	CountdownSeconds int      `json:"countdownSeconds"`
	PlayerIDs        []string `json:"playerIds"`
}

type TurnStartedPayload struct {
	UserID      string `json:"userId"`
	TurnNumber  int    `json:"turnNumber"`
	RoundNumber int    `json:"roundNumber"`
	RollsLeft   int    `json:"rollsLeft"`
}

type DiceRolledPayload struct {
	UserID    string `json:"userId"`
	Dice      [5]int `json:"dice"`
	RollsLeft int    `json:"rollsLeft"`

	// Preview scores every category against the rolled dice. Dice are public,
	// so the preview broadcasts with them.
	Preview map[domain.Category]int `json:"preview"`
}

type DiceKeptPayload struct {
	UserID string  `json:"userId"`
	Kept   [5]bool `json:"kept"`
}

type CategoryScoredPayload struct {
	UserID          string          `json:"userId"`
	Category        domain.Category `json:"category"`
	Score           int             `json:"score"`
	Total           int             `json:"total"`
	UpperBonus      int             `json:"upperBonus"`
	DiceeBonusCount int             `json:"diceeBonusCount"`
}

type TurnEndedPayload struct {
	UserID     string `json:"userId"`
	TurnNumber int    `json:"turnNumber"`
}

// SkipReason explains why a turn was skipped on the player's behalf.
type SkipReason string

const (
	SkipTimeout    SkipReason = "timeout"
	SkipDisconnect SkipReason = "disconnect"
)

type TurnSkippedPayload struct {
	UserID   string          `json:"userId"`
	Reason   SkipReason      `json:"reason"`
	Category domain.Category `json:"category"`
	Score    int             `json:"score"`
}

type GameCompletedPayload struct {
	Rankings        []domain.Ranking `json:"rankings"`
	DurationSeconds int              `json:"durationSeconds"`
}
