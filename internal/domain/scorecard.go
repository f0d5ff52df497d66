package domain

// Scoring constants. Fixed-value categories score the constant only when the
// dice match the pattern; the bonuses are the two counters carried on the
// scorecard.
const (
	FullHouseScore     = 25
	SmallStraightScore = 30
	LargeStraightScore = 40
	DiceeScore         = 50

	UpperBonusThreshold = 63
	UpperBonusValue     = 35
	DiceeBonusValue     = 100
)

// Scorecard holds the thirteen category slots and the two bonus counters.
// A category absent from Scores is unscored; a scored category is never
// rewritten.
type Scorecard struct {
	Scores map[Category]int `json:"scores"`

	// UpperBonus is 0 or UpperBonusValue, awarded once the six upper
	// categories are filled with a combined total of at least
	// UpperBonusThreshold.
	UpperBonus int `json:"upperBonus"`

	// DiceeBonusCount increments each time a five-of-a-kind roll is scored
	// after the dicee category already holds its base value.
	DiceeBonusCount int `json:"diceeBonusCount"`
}

// NewScorecard returns an empty scorecard.
func NewScorecard() Scorecard {
	return Scorecard{Scores: make(map[Category]int)}
}

// Scored reports whether the category has been filled.
func (sc *Scorecard) Scored(c Category) bool {
	_, ok := sc.Scores[c]
	return ok
}

// Complete reports whether all thirteen categories are filled.
func (sc *Scorecard) Complete() bool {
	return len(sc.Scores) == len(Categories)
}

// UpperTotal sums the filled upper-section categories.
func (sc *Scorecard) UpperTotal() int {
	total := 0
	for _, c := range UpperCategories {
		total += sc.Scores[c]
	}
	return total
}

// UpperComplete reports whether all six upper categories are filled.
func (sc *Scorecard) UpperComplete() bool {
	for _, c := range UpperCategories {
		if !sc.Scored(c) {
			return false
		}
	}
	return true
}

// Total computes the grand total including both bonuses.
func (sc *Scorecard) Total() int {
	total := 0
	for _, v := range sc.Scores {
		total += v
	}
	return total + sc.UpperBonus + sc.DiceeBonusCount*DiceeBonusValue
}
