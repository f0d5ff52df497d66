package domain

import (
	"math/rand"
	"testing"
)

func TestRollDiceBounds(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 100; i++ {
		dice := RollDice(rng)
		for _, d := range dice {
			if d < 1 || d > 6 {
				t.Fatalf("die out of range: %d", d)
			}
		}
	}
}

func TestRerollPreservesKeptDice(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	dice := [5]int{1, 2, 3, 4, 5}
	kept := [5]bool{true, false, true, false, true}

	for i := 0; i < 50; i++ {
		out := Reroll(rng, dice, kept)
		if out[0] != 1 || out[2] != 3 || out[4] != 5 {
			t.Fatalf("kept dice changed: %v", out)
		}
		for _, d := range out {
			if d < 1 || d > 6 {
				t.Fatalf("die out of range: %d", d)
			}
		}
	}
}

func TestIsFiveOfAKind(t *testing.T) {
	if !IsFiveOfAKind([5]int{4, 4, 4, 4, 4}) {
		t.Error("five fours should match")
	}
	if IsFiveOfAKind([5]int{4, 4, 4, 4, 5}) {
		t.Error("four of a kind should not match")
	}
}
