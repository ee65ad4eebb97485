// Package matching scores lost/found pairs and owns the lifecycle of match
// records, from system-proposed tentative pairings to staff-confirmed ones.
package matching

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/erazemk/lostfound/internal/model"
)

// Score weights.
const (
	KeywordWeight     = 60
	CategoryWeight    = 20
	SubcategoryWeight = 10
	MaxConfidence     = 100
)

// Result is a confidence score with a human-readable rationale.
type Result struct {
	Confidence int    `json:"confidence_score"`
	Reason     string `json:"reason"`
}

// Scorer rates how likely a found item is the lost one.
type Scorer interface {
	Score(ctx context.Context, found, lost model.Scorable) Result
}

// KeywordScorer is the built-in scorer: keyword overlap, filing and date proximity.
type KeywordScorer struct{}

func (KeywordScorer) Score(_ context.Context, found, lost model.Scorable) Result {
	return KeywordScore(found, lost)
}

// KeywordScore computes the built-in score. Pairs without shared keywords
// score zero whatever their filing or dates.
func KeywordScore(found, lost model.Scorable) Result {
	fk, lk := found.ItemKeywords(), lost.ItemKeywords()
	shared := fk.Intersect(lk)
	if fk.Len() == 0 || lk.Len() == 0 || shared.Len() == 0 {
		return Result{Reason: "No matching keywords"}
	}

	score := KeywordWeight * shared.Len() / max(fk.Len(), lk.Len())
	reasons := []string{fmt.Sprintf("%d matching keywords: %s", shared.Len(), strings.Join(shared.Sorted(), ", "))}

	if model.SameField(found.ItemCategory(), lost.ItemCategory()) {
		score += CategoryWeight
		reasons = append(reasons, "Same category: "+found.ItemCategory())
	}
	if model.SameField(found.ItemSubcategory(), lost.ItemSubcategory()) {
		score += SubcategoryWeight
		reasons = append(reasons, "Same subcategory: "+found.ItemSubcategory())
	}
	if days, ok := DayDistance(found.EventDate(), lost.EventDate()); ok {
		score += DateBonus(days)
	}

	return Result{Confidence: clamp(score), Reason: strings.Join(reasons, " | ")}
}

// DayDistance returns the absolute number of calendar days between two
// optional dates, compared in UTC.
func DayDistance(a, b *time.Time) (int, bool) {
	if a == nil || b == nil {
		return 0, false
	}
	days := int(civilDay(*a).Sub(civilDay(*b)).Hours() / 24)
	if days < 0 {
		days = -days
	}
	return days, true
}

func civilDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// DateBonus maps a day distance to its score contribution.
func DateBonus(days int) int {
	switch {
	case days == 0:
		return 10
	case days <= 3:
		return 7
	case days <= 7:
		return 5
	case days <= 14:
		return 3
	}
	return 0
}

// Compatible reports whether a pair may be scored at all: both items are filed
// under the same category and subcategory, and the lost item is still open.
func Compatible(found *model.FoundItem, lost *model.LostItem) bool {
	if lost.Status == model.LostStatusReturned || lost.Status == model.LostStatusMatched {
		return false
	}
	return model.SameFiling(found, lost)
}

func clamp(score int) int {
	return min(max(score, 0), MaxConfidence)
}
