package notify

import (
	"time"

	"github.com/google/uuid"

	"github.com/erazemk/lostfound/internal/model"
)

// Kind identifies the template an event was rendered from.
type Kind string

// Event kinds.
const (
	KindMatchConfirmed   Kind = "match-confirmed"
	KindHandoffPending   Kind = "handoff-pending"
	KindHandoffScheduled Kind = "handoff-scheduled"
	KindHandoffCompleted Kind = "handoff-completed"
	KindHandoffCancelled Kind = "handoff-cancelled"
	KindHandoffUpdated   Kind = "handoff-updated"
)

// KindForStatus returns the event kind announcing a handoff entering status.
func KindForStatus(status string) Kind {
	switch status {
	case model.HandoffPending:
		return KindHandoffPending
	case model.HandoffScheduled:
		return KindHandoffScheduled
	case model.HandoffCompleted:
		return KindHandoffCompleted
	case model.HandoffCancelled:
		return KindHandoffCancelled
	}
	return KindHandoffUpdated
}

// Role is the part a recipient plays in a match.
type Role string

const (
	RoleOwner    Role = "owner"
	RoleReporter Role = "reporter"
)

// Event is one rendered notification for one recipient.
type Event struct {
	ID            string    `json:"id"`
	Kind          Kind      `json:"kind"`
	Recipient     string    `json:"recipient"`
	RecipientRole Role      `json:"recipient_role"`
	Subject       string    `json:"subject"`
	Body          string    `json:"body"`
	MatchID       int64     `json:"match_id,omitempty"`
	HandoffID     int64     `json:"handoff_id,omitempty"`
	LostItemID    int64     `json:"lost_item_id,omitempty"`
	FoundItemID   int64     `json:"found_item_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

func newEvent(kind Kind) Event {
	return Event{ID: uuid.NewString(), Kind: kind, CreatedAt: time.Now().UTC()}
}
