package bot

import (
	"testing"

	"dicee/internal/domain"
)

func TestGreedyPolicyPicksHighestScore(t *testing.T) {
	tests := []struct {
		name   string
		dice   [5]int
		scored []domain.Category
		want   domain.Category
	}{
		{name: "five of a kind takes dicee", dice: [5]int{6, 6, 6, 6, 6}, want: domain.CategoryDicee},
		{name: "large straight beats chance", dice: [5]int{2, 3, 4, 5, 6}, want: domain.CategoryLargeStraight},
		{name: "full house beats sum categories", dice: [5]int{2, 2, 2, 5, 5}, want: domain.CategoryFullHouse},
		{
			name:   "falls back when best is taken",
			dice:   [5]int{6, 6, 6, 6, 6},
			scored: []domain.Category{domain.CategoryDicee},
			want:   domain.CategorySixes,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &domain.PlayerGameState{UserID: "u1", Scorecard: domain.NewScorecard()}
			for _, c := range tt.scored {
				p.Scorecard.Scores[c] = 0
			}
			got := GreedyPolicy{}.Choose(p, tt.dice)
			if got != tt.want {
				t.Errorf("Choose(%v) = %s, want %s", tt.dice, got, tt.want)
			}
		})
	}
}

func TestGreedyPolicyBurnsCheapSlotOnZero(t *testing.T) {
	p := &domain.PlayerGameState{UserID: "u1", Scorecard: domain.NewScorecard()}

	// Dice that score zero in every remaining category except chance.
	for _, c := range domain.Categories {
		if c != domain.CategoryOnes && c != domain.CategoryTwos {
			p.Scorecard.Scores[c] = 0
		}
	}
	got := GreedyPolicy{}.Choose(p, [5]int{3, 4, 5, 5, 6})
	if got != domain.CategoryOnes {
		t.Errorf("zero everywhere should burn ones first, got %s", got)
	}
}
