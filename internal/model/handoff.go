package model

import "time"

// Handoff statuses.
const (
	HandoffPending   = "PENDING"
	HandoffScheduled = "SCHEDULED"
	HandoffCompleted = "COMPLETED"
	HandoffCancelled = "CANCELLED"
)

// ValidHandoffStatus reports whether s is a known handoff status.
func ValidHandoffStatus(s string) bool {
	switch s {
	case HandoffPending, HandoffScheduled, HandoffCompleted, HandoffCancelled:
		return true
	}
	return false
}

// Handoff is a staff-mediated return of a confirmed match.
type Handoff struct {
	ID                 int64      `json:"id"`
	MatchID            int64      `json:"match_id"`
	Status             string     `json:"status"`
	InitiatedBy        string     `json:"initiated_by"`
	InitiatedAt        time.Time  `json:"initiated_at"`
	AssignedTo         string     `json:"assigned_to,omitempty"`
	ScheduledTime      *time.Time `json:"scheduled_time,omitempty"`
	Location           string     `json:"location,omitempty"`
	Notes              string     `json:"notes,omitempty"`
	CompletedBy        string     `json:"completed_by,omitempty"`
	CompletedAt        *time.Time `json:"completed_at,omitempty"`
	CancellationReason string     `json:"cancellation_reason,omitempty"`
	UpdatedAt          time.Time  `json:"updated_at"`

	// Joined fields (not always populated).
	LostItemID  int64  `json:"lost_item_id,omitempty"`
	FoundItemID int64  `json:"found_item_id,omitempty"`
	ItemTitle   string `json:"item_title,omitempty"`
}
