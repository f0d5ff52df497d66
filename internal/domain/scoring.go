package domain

import "sort"

// Score computes the score for a category against the given dice. Upper
// categories sum the matching faces; three/four of a kind score the sum of
// all dice when the count condition holds; pattern categories score a fixed
// value when the pattern matches; everything else scores zero.
func Score(c Category, dice [5]int) int {
	counts := faceCounts(dice)

	if face := c.UpperFace(); face != 0 {
		return counts[face] * face
	}

	switch c {
	case CategoryThreeOfAKind:
		if maxCount(counts) >= 3 {
			return diceSum(dice)
		}
	case CategoryFourOfAKind:
		if maxCount(counts) >= 4 {
			return diceSum(dice)
		}
	case CategoryFullHouse:
		if isFullHouse(counts) {
			return FullHouseScore
		}
	case CategorySmallStraight:
		if longestRun(counts) >= 4 {
			return SmallStraightScore
		}
	case CategoryLargeStraight:
		if longestRun(counts) >= 5 {
			return LargeStraightScore
		}
	case CategoryDicee:
		if maxCount(counts) == 5 {
			return DiceeScore
		}
	case CategoryChance:
		return diceSum(dice)
	}
	return 0
}

// ScoreAll evaluates every category against the dice.
func ScoreAll(dice [5]int) map[Category]int {
	out := make(map[Category]int, len(Categories))
	for _, c := range Categories {
		out[c] = Score(c, dice)
	}
	return out
}

// ApplyScore fills the category on the player's scorecard, awards bonuses,
// and refreshes the running total. The caller must have validated that the
// category is unscored.
func ApplyScore(p *PlayerGameState, c Category, dice [5]int) int {
	score := Score(c, dice)

	// Repeat five-of-a-kind bonus: only after the dicee category already
	// holds its base value. The first scoring earns the base value alone.
	if IsFiveOfAKind(dice) && p.Scorecard.Scores[CategoryDicee] == DiceeScore {
		p.Scorecard.DiceeBonusCount++
	}

	p.Scorecard.Scores[c] = score

	if p.Scorecard.UpperBonus == 0 && p.Scorecard.UpperComplete() &&
		p.Scorecard.UpperTotal() >= UpperBonusThreshold {
		p.Scorecard.UpperBonus = UpperBonusValue
	}

	p.Total = p.Scorecard.Total()
	return score
}

// ComputeRankings produces final standings sorted by total descending, ties
// broken by five-of-a-kind bonus count, then by player order.
func ComputeRankings(g *GameState) []Ranking {
	order := make(map[string]int, len(g.PlayerOrder))
	for i, id := range g.PlayerOrder {
		order[id] = i
	}

	rankings := make([]Ranking, 0, len(g.PlayerOrder))
	for _, id := range g.PlayerOrder {
		p := g.Players[id]
		rankings = append(rankings, Ranking{
			UserID:     id,
			Total:      p.Scorecard.Total(),
			DiceeBonus: p.Scorecard.DiceeBonusCount,
		})
	}

	sort.SliceStable(rankings, func(i, j int) bool {
		if rankings[i].Total != rankings[j].Total {
			return rankings[i].Total > rankings[j].Total
		}
		if rankings[i].DiceeBonus != rankings[j].DiceeBonus {
			return rankings[i].DiceeBonus > rankings[j].DiceeBonus
		}
		return order[rankings[i].UserID] < order[rankings[j].UserID]
	})

	for i := range rankings {
		rankings[i].Rank = i + 1
	}
	return rankings
}

func maxCount(counts [7]int) int {
	max := 0
	for _, n := range counts {
		if n > max {
			max = n
		}
	}
	return max
}

func isFullHouse(counts [7]int) bool {
	hasThree, hasTwo := false, false
	for _, n := range counts {
		switch n {
		case 3:
			hasThree = true
		case 2:
			hasTwo = true
		}
	}
	return hasThree && hasTwo
}

func longestRun(counts [7]int) int {
	best, run := 0, 0
	for face := 1; face <= 6; face++ {
		if counts[face] > 0 {
			run++
			if run > best {
				best = run
			}
		} else {
			run = 0
		}
	}
	return best
}
