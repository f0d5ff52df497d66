package domain

import "math/rand"

// RollDice returns five fresh dice values in [1,6].
func RollDice(rng *rand.Rand) [5]int {
	var dice [5]int
	for i := range dice {
		dice[i] = rng.Intn(6) + 1
	}
	return dice
}

// Reroll redraws the dice not marked in the keep mask and preserves the rest.
func Reroll(rng *rand.Rand, dice [5]int, kept [5]bool) [5]int {
	out := dice
	for i := range out {
		if !kept[i] {
			out[i] = rng.Intn(6) + 1
		}
	}
	return out
}

// faceCounts tallies dice by face value; index 1..6 is used.
func faceCounts(dice [5]int) [7]int {
	var counts [7]int
	for _, d := range dice {
		if d >= 1 && d <= 6 {
			counts[d]++
		}
	}
	return counts
}

func diceSum(dice [5]int) int {
	sum := 0
	for _, d := range dice {
		sum += d
	}
	return sum
}

// IsFiveOfAKind reports whether all five dice show the same face.
func IsFiveOfAKind(dice [5]int) bool {
	for _, n := range faceCounts(dice) {
		if n == 5 {
			return true
		}
	}
	return false
}
