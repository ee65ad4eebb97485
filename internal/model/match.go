package model

import "time"

// Match statuses.
const (
	MatchStatusTentative = "TENTATIVE"
	MatchStatusConfirmed = "CONFIRMED"
)

// SystemActor is recorded as matchedBy for automatically proposed matches.
const SystemActor = "system"

// ItemMatch pairs a lost item with a found item.
type ItemMatch struct {
	ID          int64     `json:"id"`
	LostItemID  int64     `json:"lost_item_id"`
	FoundItemID int64     `json:"found_item_id"`
	Status      string    `json:"status"`
	MatchedBy   string    `json:"matched_by"`
	MatchedAt   time.Time `json:"matched_at"`
}

// Confirmed reports whether the match has been approved by staff.
func (m *ItemMatch) Confirmed() bool {
	return m != nil && m.Status == MatchStatusConfirmed
}
