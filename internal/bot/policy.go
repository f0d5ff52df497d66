// Package bot holds computer-player heuristics. The one deployed today is
// the greedy scoring policy, selectable as the skip-turn policy so an AFK
// player's forced score hurts less on friendly servers.
package bot

import (
	"dicee/internal/domain"
)

// GreedyPolicy picks the unscored category with the highest score for the
// current dice. Ties prefer the category with the lower ceiling, so cheap
// slots burn before valuable ones; remaining ties follow canonical order.
type GreedyPolicy struct{}

func (GreedyPolicy) Choose(p *domain.PlayerGameState, dice [5]int) domain.Category {
	var best domain.Category
	bestScore := -1
	for _, c := range domain.Categories {
		if p.Scorecard.Scored(c) {
			continue
		}
		score := domain.Score(c, dice)
		if score > bestScore || (score == bestScore && ceiling(c) < ceiling(best)) {
			best, bestScore = c, score
		}
	}
	return best
}

// ceiling is the maximum attainable score for a category, used as the
// tiebreak: a zero in ones wastes less than a zero in dicee.
func ceiling(c domain.Category) int {
	if face := c.UpperFace(); face != 0 {
		return face * 5
	}
	switch c {
	case domain.CategoryFullHouse:
		return domain.FullHouseScore
	case domain.CategorySmallStraight:
		return domain.SmallStraightScore
	case domain.CategoryLargeStraight:
		return domain.LargeStraightScore
	case domain.CategoryDicee:
		return domain.DiceeScore
	default:
		// Sum-based categories max out at five sixes.
		return 30
	}
}
