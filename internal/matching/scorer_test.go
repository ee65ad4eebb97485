package matching

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erazemk/lostfound/internal/model"
)

func date(s string) *time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return &t
}

func wallets() (*model.FoundItem, *model.LostItem) {
	found := &model.FoundItem{
		ID: 1, Title: "Wallet", Category: "Personal", Subcategory: "Wallet",
		Keywords:  model.NewKeywordSet("blue", "wallet", "leather"),
		DateFound: date("2024-03-03"),
	}
	lost := &model.LostItem{
		ID: 2, Title: "Brown wallet", Category: "Personal", Subcategory: "Wallet",
		Status:   model.LostStatusOpen,
		Keywords: model.NewKeywordSet("wallet", "leather", "brown"),
		DateLost: date("2024-03-01"),
	}
	return found, lost
}

func TestKeywordScoreWalletScenario(t *testing.T) {
	found, lost := wallets()

	res := KeywordScore(found, lost)
	assert.Equal(t, 77, res.Confidence)
	assert.Equal(t, "2 matching keywords: leather, wallet | Same category: Personal | Same subcategory: Wallet", res.Reason)
}

func TestKeywordScoreDisjointIsZero(t *testing.T) {
	found, lost := wallets()
	lost.Keywords = model.NewKeywordSet("umbrella", "black")
	assert.Zero(t, KeywordScore(found, lost).Confidence)

	lost.Keywords = model.KeywordSet{}
	assert.Zero(t, KeywordScore(found, lost).Confidence)
}

func TestKeywordScoreComponents(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(f *model.FoundItem, l *model.LostItem)
		want   int
	}{
		{"identical keywords same day", func(f *model.FoundItem, l *model.LostItem) {
			l.Keywords = model.NewKeywordSet("blue", "wallet", "leather")
			l.DateLost = f.DateFound
		}, 100},
		{"no dates", func(f *model.FoundItem, l *model.LostItem) {
			f.DateFound = nil
		}, 70},
		{"different subcategory", func(f *model.FoundItem, l *model.LostItem) {
			l.Subcategory = "Purse"
		}, 67},
		{"case-insensitive filing", func(f *model.FoundItem, l *model.LostItem) {
			l.Category, l.Subcategory = "PERSONAL", "wallet"
		}, 77},
		{"blank category never matches", func(f *model.FoundItem, l *model.LostItem) {
			f.Category, l.Category = "", ""
		}, 57},
		{"a week apart", func(f *model.FoundItem, l *model.LostItem) {
			l.DateLost = date("2024-02-25")
		}, 75},
		{"two weeks apart", func(f *model.FoundItem, l *model.LostItem) {
			l.DateLost = date("2024-02-18")
		}, 73},
		{"a month apart", func(f *model.FoundItem, l *model.LostItem) {
			l.DateLost = date("2024-02-01")
		}, 70},
		{"one shared keyword of five", func(f *model.FoundItem, l *model.LostItem) {
			f.Keywords = model.NewKeywordSet("wallet", "red", "zip", "card", "coins")
		}, 12 + 20 + 10 + 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			found, lost := wallets()
			tt.mutate(found, lost)
			assert.Equal(t, tt.want, KeywordScore(found, lost).Confidence)
		})
	}
}

func TestDayDistanceUsesCalendarDays(t *testing.T) {
	late := time.Date(2024, 3, 1, 23, 59, 0, 0, time.UTC)
	early := time.Date(2024, 3, 2, 0, 1, 0, 0, time.UTC)
	days, ok := DayDistance(&late, &early)
	require.True(t, ok)
	assert.Equal(t, 1, days)

	_, ok = DayDistance(nil, &early)
	assert.False(t, ok)
}

func TestDateBonus(t *testing.T) {
	for days, want := range map[int]int{0: 10, 1: 7, 3: 7, 4: 5, 7: 5, 8: 3, 14: 3, 15: 0, 365: 0} {
		assert.Equal(t, want, DateBonus(days), "days=%d", days)
	}
}

func TestCompatible(t *testing.T) {
	found, lost := wallets()
	assert.True(t, Compatible(found, lost))

	lost.Status = model.LostStatusMatched
	assert.False(t, Compatible(found, lost))
	lost.Status = model.LostStatusReturned
	assert.False(t, Compatible(found, lost))

	lost.Status = model.LostStatusOpen
	lost.Subcategory = "Keys"
	assert.False(t, Compatible(found, lost))
}

func TestGeminiScorer(t *testing.T) {
	found, lost := wallets()

	t.Run("uses model verdict", func(t *testing.T) {
		g := newGeminiScorer(func(ctx context.Context, prompt string) (string, error) {
			assert.Contains(t, prompt, "FOUND ITEM")
			assert.Contains(t, prompt, "- Keywords: blue, leather, wallet")
			return "```json\n{\"confidenceScore\": 140, \"reasoning\": \"Same wallet.\"}\n```", nil
		}, time.Second, nil)

		res := g.Score(context.Background(), found, lost)
		assert.Equal(t, 100, res.Confidence)
		assert.Contains(t, res.Reason, "AI: Same wallet.")
	})

	t.Run("falls back on error", func(t *testing.T) {
		g := newGeminiScorer(func(context.Context, string) (string, error) {
			return "", errors.New("quota exceeded")
		}, time.Second, nil)
		assert.Equal(t, KeywordScore(found, lost), g.Score(context.Background(), found, lost))
	})

	t.Run("falls back on garbage", func(t *testing.T) {
		g := newGeminiScorer(func(context.Context, string) (string, error) {
			return "I think they match!", nil
		}, time.Second, nil)
		assert.Equal(t, 77, g.Score(context.Background(), found, lost).Confidence)
	})

	t.Run("disjoint pairs skip the model", func(t *testing.T) {
		called := false
		g := newGeminiScorer(func(context.Context, string) (string, error) {
			called = true
			return `{"confidenceScore": 90}`, nil
		}, time.Second, nil)

		other := *lost
		other.Keywords = model.NewKeywordSet("umbrella")
		assert.Zero(t, g.Score(context.Background(), found, &other).Confidence)
		assert.False(t, called)
	})
}
