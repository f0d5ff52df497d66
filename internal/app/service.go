package app

import (
	"errors"
	"math/rand"
	"sort"
	"time"

	"dicee/internal/domain"
)

var (
	ErrUnknownPlayer = errors.New("player not found in game")
	ErrNoDice        = errors.New("no dice rolled this turn")
)

// SkipPolicy selects the category scored on a player's behalf when a turn is
// skipped. The selection rule is deliberately pluggable; the deployed default
// is the lowest-value legal category.
type SkipPolicy interface {
	Choose(p *domain.PlayerGameState, dice [5]int) domain.Category
}

// LowestScorePolicy picks the unscored category with the lowest score for the
// current dice, breaking ties by canonical category order.
type LowestScorePolicy struct{}

func (LowestScorePolicy) Choose(p *domain.PlayerGameState, dice [5]int) domain.Category {
	var best domain.Category
	bestScore := -1
	for _, c := range domain.Categories {
		if p.Scorecard.Scored(c) {
			continue
		}
		score := domain.Score(c, dice)
		if bestScore < 0 || score < bestScore {
			best, bestScore = c, score
		}
	}
	return best
}

// Service contains the game use-cases operating on domain state. All methods
// mutate the passed GameState and return the events to dispatch; on a
// validation error the state is untouched and no events are returned.
type Service struct {
	rng    *rand.Rand
	policy SkipPolicy
	now    func() time.Time
}

// NewService constructs a Service with the provided rng or a time-seeded
// default, and the default skip policy.
func NewService(rng *rand.Rand) *Service {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Service{rng: rng, policy: LowestScorePolicy{}, now: time.Now}
}

// WithPolicy overrides the skip-turn policy.
func (s *Service) WithPolicy(p SkipPolicy) *Service {
	s.policy = p
	return s
}

// WithClock overrides the time source, for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Start snapshots the room roster into the game and enters the countdown
// phase. The first turn begins when the countdown alarm fires (BeginTurns).
func (s *Service) Start(g *domain.GameState, userID, hostID string, roster []*domain.RoomPlayer, countdownSeconds int) ([]Event, error) {
	if terr := domain.CanStart(g, userID, hostID, len(roster)); terr != nil {
		return nil, terr
	}

	g.Players = make(map[string]*domain.PlayerGameState, len(roster))
	playerIDs := make([]string, 0, len(roster))
	for _, rp := range roster {
		status := domain.ConnOnline
		if !rp.Connected {
			status = domain.ConnDisconnected
		}
		g.Players[rp.UserID] = &domain.PlayerGameState{
			UserID:      rp.UserID,
			DisplayName: rp.DisplayName,
			AvatarSeed:  rp.AvatarSeed,
			Connection:  status,
			IsHost:      rp.UserID == hostID,
			Scorecard:   domain.NewScorecard(),
		}
		playerIDs = append(playerIDs, rp.UserID)
	}
	g.SetPhase(domain.PhaseStarting)

	return []Event{{
		Kind:    EventGameStarted,
		Payload: GameStartedPayload{CountdownSeconds: countdownSeconds, PlayerIDs: playerIDs},
	}}, nil
}

// BeginTurns assigns a randomized turn order and starts the first turn. It is
// invoked by the game-start alarm; if the game is no longer in the countdown
// phase the call is a no-op.
func (s *Service) BeginTurns(g *domain.GameState) ([]Event, error) {
	if g.Phase != domain.PhaseStarting {
		return nil, nil
	}

	order := make([]string, 0, len(g.Players))
	for id := range g.Players {
		order = append(order, id)
	}
	sort.Strings(order)
	s.rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })

	g.PlayerOrder = order
	g.CurrentPlayerIndex = 0
	g.TurnNumber = 1
	g.RoundNumber = 1
	g.SetPhase(domain.PhaseTurnRoll)
	g.GameStartedAt = s.now()
	s.startTurn(g)

	return []Event{s.turnStartedEvent(g)}, nil
}

// Roll rerolls the non-kept dice for the current player. The first roll of a
// turn ignores the keep mask and draws five fresh dice.
func (s *Service) Roll(g *domain.GameState, userID string, kept [5]bool) ([]Event, error) {
	if terr := domain.CanRoll(g, userID); terr != nil {
		return nil, terr
	}
	p := g.Players[userID]

	var dice [5]int
	if p.Dice == nil {
		dice = domain.RollDice(s.rng)
	} else {
		dice = domain.Reroll(s.rng, diceArray(p.Dice), kept)
	}

	p.Dice = dice[:]
	p.Kept = [5]bool{}
	p.RollsLeft--
	if g.Phase == domain.PhaseTurnRoll {
		g.SetPhase(domain.PhaseTurnDecide)
	}

	return []Event{{
		Kind: EventDiceRolled,
		Payload: DiceRolledPayload{
			UserID:    userID,
			Dice:      dice,
			RollsLeft: p.RollsLeft,
			Preview:   domain.ScoreAll(dice),
		},
	}}, nil
}

// Keep updates the current player's keep mask without rolling.
func (s *Service) Keep(g *domain.GameState, userID string, indices []int) ([]Event, error) {
	if terr := domain.CanKeep(g, userID); terr != nil {
		return nil, terr
	}
	p := g.Players[userID]
	if p.Dice == nil {
		return nil, ErrNoDice
	}

	var kept [5]bool
	for _, i := range indices {
		kept[i] = true
	}
	p.Kept = kept

	return []Event{{
		Kind:    EventDiceKept,
		Payload: DiceKeptPayload{UserID: userID, Kept: kept},
	}}, nil
}

// Score applies the chosen category for the current player and advances the
// turn, completing the game when every scorecard is full.
func (s *Service) Score(g *domain.GameState, userID string, category domain.Category) ([]Event, error) {
	if terr := domain.CanScore(g, userID, category); terr != nil {
		return nil, terr
	}
	p := g.Players[userID]
	if p.Dice == nil {
		return nil, ErrNoDice
	}

	score := domain.ApplyScore(p, category, diceArray(p.Dice))
	g.SetPhase(domain.PhaseTurnScore)

	events := []Event{{
		Kind: EventCategoryScored,
		Payload: CategoryScoredPayload{
			UserID:          userID,
			Category:        category,
			Score:           score,
			Total:           p.Total,
			UpperBonus:      p.Scorecard.UpperBonus,
			DiceeBonusCount: p.Scorecard.DiceeBonusCount,
		},
	}}
	return s.advanceTurn(g, p, events), nil
}

// SkipTurn scores a category on the current player's behalf using the skip
// policy, then advances exactly as Score does. If it is no longer the
// player's turn, or the phase is not an active rolling phase, the call is a
// no-op: the alarm fired after the precondition expired.
func (s *Service) SkipTurn(g *domain.GameState, userID string, reason SkipReason) ([]Event, error) {
	if g.CurrentPlayerID() != userID {
		return nil, nil
	}
	if g.Phase != domain.PhaseTurnRoll && g.Phase != domain.PhaseTurnDecide {
		return nil, nil
	}
	p := g.Players[userID]
	if p == nil {
		return nil, ErrUnknownPlayer
	}

	var events []Event

	// A player who never rolled still needs dice to score against.
	if p.Dice == nil {
		dice := domain.RollDice(s.rng)
		p.Dice = dice[:]
		p.RollsLeft--
		g.SetPhase(domain.PhaseTurnDecide)
		events = append(events, Event{
			Kind: EventDiceRolled,
			Payload: DiceRolledPayload{
				UserID:    userID,
				Dice:      dice,
				RollsLeft: p.RollsLeft,
				Preview:   domain.ScoreAll(dice),
			},
		})
	}

	dice := diceArray(p.Dice)
	category := s.policy.Choose(p, dice)
	score := domain.ApplyScore(p, category, dice)
	g.SetPhase(domain.PhaseTurnScore)

	events = append(events, Event{
		Kind: EventTurnSkipped,
		Payload: TurnSkippedPayload{
			UserID:   userID,
			Reason:   reason,
			Category: category,
			Score:    score,
		},
	})
	return s.advanceTurn(g, p, events), nil
}

// Rematch rebuilds a fresh waiting-phase game from the current roster. The
// completed game's standings were already snapshotted into Rankings when the
// game ended.
func (s *Service) Rematch(g *domain.GameState, userID string) (*domain.GameState, error) {
	if terr := domain.CanRematch(g, userID); terr != nil {
		return nil, terr
	}

	fresh := domain.NewGameState(g.RoomCode, g.Config)
	return fresh, nil
}

// SetConnection marks a player connected or disconnected without altering
// turn state.
func (s *Service) SetConnection(g *domain.GameState, userID string, status domain.ConnStatus) {
	if p, ok := g.Players[userID]; ok {
		p.Connection = status
	}
}

// advanceTurn ends the current turn and either starts the next one or
// completes the game.
func (s *Service) advanceTurn(g *domain.GameState, p *domain.PlayerGameState, events []Event) []Event {
	p.Dice = nil
	p.Kept = [5]bool{}
	p.RollsLeft = 0

	events = append(events, Event{
		Kind:    EventTurnEnded,
		Payload: TurnEndedPayload{UserID: p.UserID, TurnNumber: g.TurnNumber},
	})

	if g.Complete() {
		g.SetPhase(domain.PhaseGameOver)
		g.GameCompletedAt = s.now()
		g.Rankings = domain.ComputeRankings(g)
		duration := int(g.GameCompletedAt.Sub(g.GameStartedAt) / time.Second)
		return append(events, Event{
			Kind:    EventGameCompleted,
			Payload: GameCompletedPayload{Rankings: g.Rankings, DurationSeconds: duration},
		})
	}

	g.CurrentPlayerIndex = (g.CurrentPlayerIndex + 1) % len(g.PlayerOrder)
	if g.CurrentPlayerIndex == 0 {
		g.TurnNumber++
		g.RoundNumber++
	}
	g.SetPhase(domain.PhaseTurnRoll)
	s.startTurn(g)

	return append(events, s.turnStartedEvent(g))
}

// startTurn resets the incoming player's per-turn state.
func (s *Service) startTurn(g *domain.GameState) {
	g.TurnStartedAt = s.now()
	p := g.Players[g.CurrentPlayerID()]
	p.Dice = nil
	p.Kept = [5]bool{}
	p.RollsLeft = domain.MaxRollsPerTurn
}

func (s *Service) turnStartedEvent(g *domain.GameState) Event {
	return Event{
		Kind: EventTurnStarted,
		Payload: TurnStartedPayload{
			UserID:      g.CurrentPlayerID(),
			TurnNumber:  g.TurnNumber,
			RoundNumber: g.RoundNumber,
			RollsLeft:   domain.MaxRollsPerTurn,
		},
	}
}

func diceArray(dice []int) [5]int {
	var out [5]int
	copy(out[:], dice)
	return out
}
