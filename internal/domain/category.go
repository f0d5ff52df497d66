package domain

// Category is one of the thirteen scoring categories.
type Category string

const (
	CategoryOnes   Category = "ones"
	CategoryTwos   Category = "twos"
	CategoryThrees Category = "threes"
	CategoryFours  Category = "fours"
	CategoryFives  Category = "fives"
	CategorySixes  Category = "sixes"

	CategoryThreeOfAKind  Category = "three_of_a_kind"
	CategoryFourOfAKind   Category = "four_of_a_kind"
	CategoryFullHouse     Category = "full_house"
	CategorySmallStraight Category = "small_straight"
	CategoryLargeStraight Category = "large_straight"
	CategoryDicee         Category = "dicee"
	CategoryChance        Category = "chance"
)

// Categories lists all categories in canonical order. The order doubles as
// the deterministic tiebreak for the skip-turn policy.
var Categories = [13]Category{
	CategoryOnes, CategoryTwos, CategoryThrees, CategoryFours, CategoryFives, CategorySixes,
	CategoryThreeOfAKind, CategoryFourOfAKind, CategoryFullHouse,
	CategorySmallStraight, CategoryLargeStraight, CategoryDicee, CategoryChance,
}

// UpperCategories are the six face-count categories that feed the upper bonus.
var UpperCategories = [6]Category{
	CategoryOnes, CategoryTwos, CategoryThrees, CategoryFours, CategoryFives, CategorySixes,
}

// ParseCategory validates a wire value against the known categories.
func ParseCategory(s string) (Category, bool) {
	for _, c := range Categories {
		if string(c) == s {
			return c, true
		}
	}
	return "", false
}

// UpperFace returns the die face an upper category counts, or 0 for lower
// categories.
func (c Category) UpperFace() int {
	switch c {
	case CategoryOnes:
		return 1
	case CategoryTwos:
		return 2
	case CategoryThrees:
		return 3
	case CategoryFours:
		return 4
	case CategoryFives:
		return 5
	case CategorySixes:
		return 6
	}
	return 0
}
