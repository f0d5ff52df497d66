package domain

import "fmt"

// Error codes returned by the validator. The room actor turns these directly
// into reply-only error events; state is never mutated on rejection.
const (
	CodeNotYourTurn           = "NOT_YOUR_TURN"
	CodeInvalidPhase          = "INVALID_PHASE"
	CodeInvalidCategory       = "INVALID_CATEGORY"
	CodeCategoryAlreadyScored = "CATEGORY_ALREADY_SCORED"
	CodeNoRollsRemaining      = "NO_ROLLS_REMAINING"
	CodeNotHost               = "NOT_HOST"
	CodeNotEnoughPlayers      = "NOT_ENOUGH_PLAYERS"
	CodeGameInProgress        = "GAME_IN_PROGRESS"
	CodeGameNotStarted        = "GAME_NOT_STARTED"
)

// TransitionError is a typed rejection from the validator.
type TransitionError struct {
	Code    string
	Message string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func reject(code, format string, args ...any) *TransitionError {
	return &TransitionError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// MinPlayersToStart defines the minimum roster size required to start a game.
const MinPlayersToStart = 2

// CanStart checks the start command: waiting phase, caller is host, enough
// players, not over capacity. The host and player count come from the room
// roster, which exists before any game state does.
func CanStart(g *GameState, userID, hostID string, playerCount int) *TransitionError {
	if g.Phase != PhaseWaiting {
		if g.Phase.Active() || g.Phase == PhaseStarting {
			return reject(CodeGameInProgress, "game already in progress")
		}
		return reject(CodeInvalidPhase, "cannot start from phase %s", g.Phase)
	}
	if hostID != userID {
		return reject(CodeNotHost, "only the host can start the game")
	}
	if playerCount < MinPlayersToStart {
		return reject(CodeNotEnoughPlayers, "need at least %d players, have %d", MinPlayersToStart, playerCount)
	}
	if playerCount > g.Config.MaxPlayers {
		return reject(CodeNotEnoughPlayers, "room capacity is %d players", g.Config.MaxPlayers)
	}
	return nil
}

// CanRoll checks the roll command: active rolling phase, caller is the
// current player, rolls remaining.
func CanRoll(g *GameState, userID string) *TransitionError {
	if g.Phase != PhaseTurnRoll && g.Phase != PhaseTurnDecide {
		if g.Phase == PhaseWaiting || g.Phase == PhaseStarting {
			return reject(CodeGameNotStarted, "game has not started")
		}
		return reject(CodeInvalidPhase, "cannot roll in phase %s", g.Phase)
	}
	if g.CurrentPlayerID() != userID {
		return reject(CodeNotYourTurn, "it is not your turn")
	}
	if p := g.Players[userID]; p == nil || p.RollsLeft <= 0 {
		return reject(CodeNoRollsRemaining, "no rolls remaining this turn")
	}
	return nil
}

// CanKeep checks the keep command: decide phase, caller is the current player.
// Index range validation happens at the wire layer before dispatch.
func CanKeep(g *GameState, userID string) *TransitionError {
	if g.Phase != PhaseTurnDecide {
		if g.Phase == PhaseWaiting || g.Phase == PhaseStarting {
			return reject(CodeGameNotStarted, "game has not started")
		}
		return reject(CodeInvalidPhase, "cannot keep dice in phase %s", g.Phase)
	}
	if g.CurrentPlayerID() != userID {
		return reject(CodeNotYourTurn, "it is not your turn")
	}
	return nil
}

// CanScore checks the score command: decide phase, caller is the current
// player, category known and unscored.
func CanScore(g *GameState, userID string, category Category) *TransitionError {
	if g.Phase != PhaseTurnDecide {
		if g.Phase == PhaseWaiting || g.Phase == PhaseStarting {
			return reject(CodeGameNotStarted, "game has not started")
		}
		return reject(CodeInvalidPhase, "cannot score in phase %s", g.Phase)
	}
	if g.CurrentPlayerID() != userID {
		return reject(CodeNotYourTurn, "it is not your turn")
	}
	if _, ok := ParseCategory(string(category)); !ok {
		return reject(CodeInvalidCategory, "unknown category %q", category)
	}
	p := g.Players[userID]
	if p == nil {
		return reject(CodeNotYourTurn, "player is not in the game")
	}
	if p.Scorecard.Scored(category) {
		return reject(CodeCategoryAlreadyScored, "category %s is already scored", category)
	}
	return nil
}

// CanRematch checks the rematch command: terminal phase, caller is host.
func CanRematch(g *GameState, userID string) *TransitionError {
	if g.Phase != PhaseGameOver {
		return reject(CodeInvalidPhase, "rematch is only possible after the game ends")
	}
	if g.HostID() != userID {
		return reject(CodeNotHost, "only the host can start a rematch")
	}
	return nil
}
