package domain

import "testing"

func TestScore(t *testing.T) {
	tests := []struct {
		name     string
		category Category
		dice     [5]int
		want     int
	}{
		{name: "ones counts only ones", category: CategoryOnes, dice: [5]int{1, 1, 3, 4, 1}, want: 3},
		{name: "ones with no ones", category: CategoryOnes, dice: [5]int{2, 3, 4, 5, 6}, want: 0},
		{name: "sixes", category: CategorySixes, dice: [5]int{6, 6, 2, 6, 1}, want: 18},
		{name: "three of a kind sums all dice", category: CategoryThreeOfAKind, dice: [5]int{4, 4, 4, 2, 5}, want: 19},
		{name: "three of a kind from four matching", category: CategoryThreeOfAKind, dice: [5]int{4, 4, 4, 4, 5}, want: 21},
		{name: "three of a kind unmet", category: CategoryThreeOfAKind, dice: [5]int{4, 4, 3, 2, 5}, want: 0},
		{name: "four of a kind sums all dice", category: CategoryFourOfAKind, dice: [5]int{2, 2, 2, 2, 6}, want: 14},
		{name: "four of a kind unmet", category: CategoryFourOfAKind, dice: [5]int{2, 2, 2, 6, 6}, want: 0},
		{name: "full house", category: CategoryFullHouse, dice: [5]int{3, 3, 3, 5, 5}, want: 25},
		{name: "full house needs exactly 3+2", category: CategoryFullHouse, dice: [5]int{3, 3, 3, 3, 5}, want: 0},
		{name: "five of a kind is not a full house", category: CategoryFullHouse, dice: [5]int{3, 3, 3, 3, 3}, want: 0},
		{name: "small straight run of four", category: CategorySmallStraight, dice: [5]int{1, 2, 3, 4, 6}, want: 30},
		{name: "small straight with duplicate", category: CategorySmallStraight, dice: [5]int{2, 3, 4, 5, 3}, want: 30},
		{name: "small straight satisfied by run of five", category: CategorySmallStraight, dice: [5]int{2, 3, 4, 5, 6}, want: 30},
		{name: "small straight unmet", category: CategorySmallStraight, dice: [5]int{1, 2, 3, 5, 6}, want: 0},
		{name: "large straight low", category: CategoryLargeStraight, dice: [5]int{1, 2, 3, 4, 5}, want: 40},
		{name: "large straight high", category: CategoryLargeStraight, dice: [5]int{2, 3, 4, 5, 6}, want: 40},
		{name: "large straight unmet", category: CategoryLargeStraight, dice: [5]int{1, 2, 3, 4, 6}, want: 0},
		{name: "dicee", category: CategoryDicee, dice: [5]int{5, 5, 5, 5, 5}, want: 50},
		{name: "dicee unmet", category: CategoryDicee, dice: [5]int{5, 5, 5, 5, 4}, want: 0},
		{name: "chance sums everything", category: CategoryChance, dice: [5]int{1, 3, 2, 6, 4}, want: 16},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Score(tt.category, tt.dice)
			if got != tt.want {
				t.Errorf("Score(%s, %v) = %d, want %d", tt.category, tt.dice, got, tt.want)
			}
		})
	}
}

func TestScoreAllCoversEveryCategory(t *testing.T) {
	preview := ScoreAll([5]int{1, 2, 3, 4, 5})
	if len(preview) != len(Categories) {
		t.Fatalf("preview has %d entries, want %d", len(preview), len(Categories))
	}
	if preview[CategoryLargeStraight] != LargeStraightScore {
		t.Errorf("large straight preview = %d, want %d", preview[CategoryLargeStraight], LargeStraightScore)
	}
	if preview[CategoryChance] != 15 {
		t.Errorf("chance preview = %d, want 15", preview[CategoryChance])
	}
}

func newTestPlayer(id string) *PlayerGameState {
	return &PlayerGameState{UserID: id, Scorecard: NewScorecard()}
}

func TestApplyScoreUpperBonus(t *testing.T) {
	p := newTestPlayer("u1")

	// Three of each upper face sums to 63 exactly.
	for face := 1; face <= 6; face++ {
		dice := [5]int{face, face, face, 1, 2}
		if face <= 2 {
			dice = [5]int{face, face, face, 3, 4}
		}
		ApplyScore(p, Categories[face-1], dice)
	}

	if got := p.Scorecard.UpperTotal(); got != 63 {
		t.Fatalf("upper total = %d, want 63", got)
	}
	if p.Scorecard.UpperBonus != UpperBonusValue {
		t.Errorf("upper bonus = %d, want %d", p.Scorecard.UpperBonus, UpperBonusValue)
	}
	if p.Total != 63+UpperBonusValue {
		t.Errorf("total = %d, want %d", p.Total, 63+UpperBonusValue)
	}
}

func TestApplyScoreNoUpperBonusBelowThreshold(t *testing.T) {
	p := newTestPlayer("u1")

	// One of each face: 1+2+3+4+5+6 = 21, far below the threshold.
	for face := 1; face <= 6; face++ {
		ApplyScore(p, Categories[face-1], [5]int{face, 7 - face, 7 - face, 7 - face, 7 - face})
	}

	if !p.Scorecard.UpperComplete() {
		t.Fatal("upper section should be complete")
	}
	if p.Scorecard.UpperBonus != 0 {
		t.Errorf("upper bonus = %d, want 0", p.Scorecard.UpperBonus)
	}
}

func TestApplyScoreDiceeRepeatBonus(t *testing.T) {
	p := newTestPlayer("u1")
	fives := [5]int{5, 5, 5, 5, 5}
	threes := [5]int{3, 3, 3, 3, 3}

	if got := ApplyScore(p, CategoryDicee, fives); got != DiceeScore {
		t.Fatalf("first dicee = %d, want %d", got, DiceeScore)
	}
	if p.Scorecard.DiceeBonusCount != 0 {
		t.Fatalf("bonus count after first dicee = %d, want 0", p.Scorecard.DiceeBonusCount)
	}

	// A second five-of-a-kind scored anywhere earns the repeat bonus.
	ApplyScore(p, CategoryThrees, threes)
	if p.Scorecard.DiceeBonusCount != 1 {
		t.Fatalf("bonus count = %d, want 1", p.Scorecard.DiceeBonusCount)
	}
	if p.Total != DiceeScore+15+DiceeBonusValue {
		t.Errorf("total = %d, want %d", p.Total, DiceeScore+15+DiceeBonusValue)
	}
}

func TestApplyScoreNoRepeatBonusAfterZeroedDicee(t *testing.T) {
	p := newTestPlayer("u1")

	// Dicee scored as zero against non-matching dice.
	ApplyScore(p, CategoryDicee, [5]int{1, 2, 3, 4, 5})

	ApplyScore(p, CategoryFives, [5]int{5, 5, 5, 5, 5})
	if p.Scorecard.DiceeBonusCount != 0 {
		t.Errorf("bonus count = %d, want 0 after zeroed dicee", p.Scorecard.DiceeBonusCount)
	}
}

func TestComputeRankings(t *testing.T) {
	g := NewGameState("ROOM01", RoomConfig{MaxPlayers: 4})
	g.PlayerOrder = []string{"a", "b", "c"}
	g.Players = map[string]*PlayerGameState{
		"a": newTestPlayer("a"),
		"b": newTestPlayer("b"),
		"c": newTestPlayer("c"),
	}
	g.Players["a"].Scorecard.Scores[CategoryChance] = 20
	g.Players["b"].Scorecard.Scores[CategoryChance] = 30
	// c ties with b on total; the five-of-a-kind bonus breaks the tie.
	g.Players["c"].Scorecard.Scores[CategoryChance] = 30
	g.Players["c"].Scorecard.DiceeBonusCount = 1
	g.Players["b"].Scorecard.Scores[CategoryOnes] = DiceeBonusValue

	rankings := ComputeRankings(g)

	wantOrder := []string{"c", "b", "a"}
	for i, want := range wantOrder {
		if rankings[i].UserID != want {
			t.Fatalf("rank %d = %s, want %s", i+1, rankings[i].UserID, want)
		}
		if rankings[i].Rank != i+1 {
			t.Errorf("rank field = %d, want %d", rankings[i].Rank, i+1)
		}
	}
}

func TestComputeRankingsTieFallsBackToPlayerOrder(t *testing.T) {
	g := NewGameState("ROOM01", RoomConfig{MaxPlayers: 4})
	g.PlayerOrder = []string{"b", "a"}
	g.Players = map[string]*PlayerGameState{
		"a": newTestPlayer("a"),
		"b": newTestPlayer("b"),
	}
	g.Players["a"].Scorecard.Scores[CategoryChance] = 10
	g.Players["b"].Scorecard.Scores[CategoryChance] = 10

	rankings := ComputeRankings(g)
	if rankings[0].UserID != "b" {
		t.Errorf("full tie should keep player order, got %s first", rankings[0].UserID)
	}
}
