// Package handoff drives the return of a matched item from PENDING through
// scheduling to completion or cancellation.
package handoff

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/erazemk/lostfound/internal/model"
	"github.com/erazemk/lostfound/internal/notify"
	"github.com/erazemk/lostfound/internal/store"
)

// allowed lists the status changes a handoff may make. Staying in the same
// status is always allowed and only updates fields.
var allowed = map[string][]string{
	model.HandoffPending:   {model.HandoffScheduled, model.HandoffCompleted, model.HandoffCancelled},
	model.HandoffScheduled: {model.HandoffCompleted, model.HandoffCancelled},
	model.HandoffCancelled: {model.HandoffScheduled, model.HandoffPending},
}

// Fields are the editable handoff attributes. Blank values keep what is
// already stored.
type Fields struct {
	AssignedTo         string     `json:"assigned_to"`
	ScheduledTime      *time.Time `json:"scheduled_time"`
	Location           string     `json:"location"`
	Notes              string     `json:"notes"`
	CancellationReason string     `json:"cancellation_reason"`
}

// Workflow applies handoff state changes and notifies both parties.
type Workflow struct {
	db     *sql.DB
	queue  notify.Queue
	logger *slog.Logger
	now    func() time.Time
}

// NewWorkflow creates a workflow over db. A nil queue discards
// notifications and a nil logger uses slog.Default().
func NewWorkflow(db *sql.DB, queue notify.Queue, logger *slog.Logger) *Workflow {
	if queue == nil {
		queue = notify.Discard
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Workflow{
		db:     db,
		queue:  queue,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Get returns a handoff by ID.
func (w *Workflow) Get(ctx context.Context, id int64) (*model.Handoff, error) {
	h, err := store.GetHandoff(ctx, w.db, id)
	if err != nil {
		return nil, err
	}
	if h == nil {
		return nil, model.Errorf(model.ErrNotFound, "handoff %d", id)
	}
	return h, nil
}

// List returns handoffs, newest first.
func (w *Workflow) List(ctx context.Context, filter store.HandoffFilter) ([]model.Handoff, error) {
	return store.ListHandoffs(ctx, w.db, filter)
}

// Create opens a PENDING handoff for a confirmed match that has none.
func (w *Workflow) Create(ctx context.Context, matchID int64, actor string, f Fields) (*model.Handoff, error) {
	if matchID <= 0 {
		return nil, model.Errorf(model.ErrValidation, "match id is required")
	}

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	m, err := store.GetMatch(ctx, tx, matchID)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, model.Errorf(model.ErrNotFound, "match %d", matchID)
	}
	if !m.Confirmed() {
		return nil, model.Errorf(model.ErrConflict, "match %d is not confirmed", matchID)
	}
	existing, err := store.GetHandoffByMatch(ctx, tx, matchID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, model.Errorf(model.ErrConflict, "match %d already has handoff %d", matchID, existing.ID)
	}

	h, err := store.CreateHandoff(ctx, tx, &model.Handoff{
		MatchID:       matchID,
		Status:        model.HandoffPending,
		InitiatedBy:   actor,
		InitiatedAt:   w.now(),
		AssignedTo:    strings.TrimSpace(f.AssignedTo),
		ScheduledTime: utc(f.ScheduledTime),
		Location:      strings.TrimSpace(f.Location),
		Notes:         strings.TrimSpace(f.Notes),
	})
	if err != nil {
		if store.IsConstraintViolation(err) {
			return nil, model.Errorf(model.ErrConflict, "match %d already has a handoff", matchID)
		}
		return nil, err
	}
	c, err := w.context(ctx, tx, h)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing handoff: %w", err)
	}

	w.logger.Info("handoff created", "handoff_id", h.ID, "match_id", matchID, "actor", actor)
	w.publish(notify.KindHandoffPending, c)
	return h, nil
}

// Transition moves a handoff to status, merging f into its fields. An empty
// status keeps the current one. Completing a handoff marks both items
// RETURNED; COMPLETED handoffs never change status again.
func (w *Workflow) Transition(ctx context.Context, id int64, status, actor string, f Fields) (*model.Handoff, error) {
	status = strings.ToUpper(strings.TrimSpace(status))
	if status != "" && !model.ValidHandoffStatus(status) {
		return nil, model.Errorf(model.ErrValidation, "unknown handoff status %q", status)
	}

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	cur, err := store.GetHandoff(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if cur == nil {
		return nil, model.Errorf(model.ErrNotFound, "handoff %d", id)
	}
	if status == "" {
		status = cur.Status
	}
	if status != cur.Status && !canMove(cur.Status, status) {
		return nil, model.Errorf(model.ErrInvalidTransition, "handoff %d cannot move from %s to %s", id, cur.Status, status)
	}

	next := *cur
	next.Status = status
	merge(&next, f)

	switch status {
	case model.HandoffScheduled:
		if next.AssignedTo == "" || next.ScheduledTime == nil || next.Location == "" {
			return nil, model.Errorf(model.ErrValidation, "scheduling needs assigned staff, a time and a location")
		}
		next.CancellationReason = ""
	case model.HandoffCancelled:
		if next.CancellationReason == "" {
			return nil, model.Errorf(model.ErrValidation, "cancellation reason is required")
		}
	case model.HandoffPending:
		next.CancellationReason = ""
	case model.HandoffCompleted:
		if cur.Status != model.HandoffCompleted {
			if strings.TrimSpace(actor) == "" {
				return nil, model.Errorf(model.ErrValidation, "actor is required to complete a handoff")
			}
			now := w.now()
			next.CompletedBy = actor
			next.CompletedAt = &now
		}
	}

	changed := status != cur.Status || fieldsDiffer(cur, &next)
	if !changed {
		return cur, nil
	}

	if err := store.UpdateHandoff(ctx, tx, &next); err != nil {
		return nil, err
	}
	if status == model.HandoffCompleted && cur.Status != model.HandoffCompleted {
		if err := store.SetLostItemStatus(ctx, tx, cur.LostItemID, model.LostStatusReturned); err != nil {
			return nil, err
		}
		if err := store.SetFoundItemStatus(ctx, tx, cur.FoundItemID, model.FoundStatusReturned); err != nil {
			return nil, err
		}
	}
	updated, err := store.GetHandoff(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	c, err := w.context(ctx, tx, updated)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing handoff update: %w", err)
	}

	kind := notify.KindHandoffUpdated
	if status != cur.Status {
		kind = notify.KindForStatus(status)
		w.logger.Info("handoff transitioned", "handoff_id", id, "from", cur.Status, "to", status, "actor", actor)
	} else {
		w.logger.Info("handoff updated", "handoff_id", id, "status", status, "actor", actor)
	}
	w.publish(kind, c)
	return updated, nil
}

// Delete removes a handoff together with its match and returns both items
// to the pool. Completed handoffs are kept.
func (w *Workflow) Delete(ctx context.Context, id int64) error {
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	h, err := store.GetHandoff(ctx, tx, id)
	if err != nil {
		return err
	}
	if h == nil {
		return model.Errorf(model.ErrNotFound, "handoff %d", id)
	}
	if h.Status == model.HandoffCompleted {
		return model.Errorf(model.ErrInvalidTransition, "handoff %d is completed", id)
	}
	if _, err := store.ReleaseMatch(ctx, tx, h.MatchID); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing handoff deletion: %w", err)
	}

	w.logger.Info("handoff deleted", "handoff_id", id, "match_id", h.MatchID,
		"lost_item_id", h.LostItemID, "found_item_id", h.FoundItemID)
	return nil
}

func (w *Workflow) context(ctx context.Context, q store.Querier, h *model.Handoff) (notify.Context, error) {
	lost, err := store.GetLostItem(ctx, q, h.LostItemID)
	if err != nil {
		return notify.Context{}, err
	}
	found, err := store.GetFoundItem(ctx, q, h.FoundItemID)
	if err != nil {
		return notify.Context{}, err
	}
	if lost == nil || found == nil {
		return notify.Context{}, fmt.Errorf("handoff %d references missing items", h.ID)
	}
	return notify.Context{Lost: lost, Found: found, MatchID: h.MatchID, Handoff: h}, nil
}

func (w *Workflow) publish(kind notify.Kind, c notify.Context) {
	events, err := notify.Participants(kind, c)
	if err != nil {
		w.logger.Error("rendering notification failed", "kind", kind, "error", err)
		return
	}
	w.queue.Enqueue(events...)
}

func canMove(from, to string) bool {
	for _, s := range allowed[from] {
		if s == to {
			return true
		}
	}
	return false
}

func merge(h *model.Handoff, f Fields) {
	if v := strings.TrimSpace(f.AssignedTo); v != "" {
		h.AssignedTo = v
	}
	if f.ScheduledTime != nil {
		h.ScheduledTime = utc(f.ScheduledTime)
	}
	if v := strings.TrimSpace(f.Location); v != "" {
		h.Location = v
	}
	if v := strings.TrimSpace(f.Notes); v != "" {
		h.Notes = v
	}
	if v := strings.TrimSpace(f.CancellationReason); v != "" {
		h.CancellationReason = v
	}
}

func fieldsDiffer(a, b *model.Handoff) bool {
	return a.AssignedTo != b.AssignedTo ||
		!sameTime(a.ScheduledTime, b.ScheduledTime) ||
		a.Location != b.Location ||
		a.Notes != b.Notes ||
		a.CancellationReason != b.CancellationReason
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
