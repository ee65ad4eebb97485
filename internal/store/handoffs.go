package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/erazemk/lostfound/internal/model"
)

const handoffSelect = `SELECT h.id, h.match_id, h.status, h.initiated_by, h.initiated_at, h.assigned_to,
	       h.scheduled_time, h.location, h.notes, h.completed_by, h.completed_at,
	       h.cancellation_reason, h.updated_at,
	       m.lost_item_id, m.found_item_id, l.title
	FROM handoffs h
	JOIN item_matches m ON m.id = h.match_id
	JOIN lost_items l ON l.id = m.lost_item_id`

// HandoffFilter narrows handoff listings. Zero values match everything.
type HandoffFilter struct {
	Status     string
	AssignedTo string
}

// CreateHandoff inserts a handoff row for a match and returns it.
func CreateHandoff(ctx context.Context, q Querier, h *model.Handoff) (*model.Handoff, error) {
	if h.MatchID <= 0 {
		return nil, model.Errorf(model.ErrValidation, "match id is required to create a handoff")
	}
	status := h.Status
	if status == "" {
		status = model.HandoffPending
	}
	initiatedAt := h.InitiatedAt
	if initiatedAt.IsZero() {
		initiatedAt = time.Now().UTC()
	}

	result, err := q.ExecContext(ctx,
		`INSERT INTO handoffs (match_id, status, initiated_by, initiated_at, assigned_to,
		                       scheduled_time, location, notes, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		h.MatchID, status, h.InitiatedBy, initiatedAt, nullString(h.AssignedTo),
		h.ScheduledTime, nullString(h.Location), nullString(h.Notes), initiatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("creating handoff: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting handoff id: %w", err)
	}
	return GetHandoff(ctx, q, id)
}

// GetHandoff returns a handoff by ID, or nil if it does not exist.
func GetHandoff(ctx context.Context, q Querier, id int64) (*model.Handoff, error) {
	h, err := scanHandoff(q.QueryRowContext(ctx, handoffSelect+` WHERE h.id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting handoff: %w", err)
	}
	return h, nil
}

// GetHandoffByMatch returns the handoff owned by a match, or nil.
func GetHandoffByMatch(ctx context.Context, q Querier, matchID int64) (*model.Handoff, error) {
	h, err := scanHandoff(q.QueryRowContext(ctx, handoffSelect+` WHERE h.match_id = ?`, matchID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting handoff by match: %w", err)
	}
	return h, nil
}

// ListHandoffs returns handoffs, newest first.
func ListHandoffs(ctx context.Context, q Querier, filter HandoffFilter) ([]model.Handoff, error) {
	query := handoffSelect + ` WHERE 1=1`
	var args []any
	if filter.Status != "" {
		query += ` AND h.status = ?`
		args = append(args, filter.Status)
	}
	if filter.AssignedTo != "" {
		query += ` AND h.assigned_to = ?`
		args = append(args, filter.AssignedTo)
	}
	query += ` ORDER BY h.initiated_at DESC, h.id DESC`

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing handoffs: %w", err)
	}
	defer rows.Close()

	var handoffs []model.Handoff
	for rows.Next() {
		h, err := scanHandoff(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning handoff: %w", err)
		}
		handoffs = append(handoffs, *h)
	}
	return handoffs, rows.Err()
}

// UpdateHandoff writes every mutable handoff field.
func UpdateHandoff(ctx context.Context, q Querier, h *model.Handoff) error {
	result, err := q.ExecContext(ctx,
		`UPDATE handoffs SET status = ?, assigned_to = ?, scheduled_time = ?, location = ?, notes = ?,
		                     completed_by = ?, completed_at = ?, cancellation_reason = ?,
		                     updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`,
		h.Status, nullString(h.AssignedTo), h.ScheduledTime, nullString(h.Location), nullString(h.Notes),
		nullString(h.CompletedBy), h.CompletedAt, nullString(h.CancellationReason), h.ID,
	)
	if err != nil {
		return fmt.Errorf("updating handoff: %w", err)
	}
	return affectedOne(result, "handoff", h.ID)
}

// DeleteHandoff removes a handoff row.
func DeleteHandoff(ctx context.Context, q Querier, id int64) error {
	result, err := q.ExecContext(ctx, `DELETE FROM handoffs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting handoff: %w", err)
	}
	return affectedOne(result, "handoff", id)
}

// DeleteHandoffByMatch removes the handoff owned by a match, if any.
func DeleteHandoffByMatch(ctx context.Context, q Querier, matchID int64) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM handoffs WHERE match_id = ?`, matchID); err != nil {
		return fmt.Errorf("deleting handoff by match: %w", err)
	}
	return nil
}

func scanHandoff(s rowScanner) (*model.Handoff, error) {
	h := &model.Handoff{}
	var assignedTo, location, notes, completedBy, reason sql.NullString
	err := s.Scan(&h.ID, &h.MatchID, &h.Status, &h.InitiatedBy, &h.InitiatedAt, &assignedTo,
		&h.ScheduledTime, &location, &notes, &completedBy, &h.CompletedAt,
		&reason, &h.UpdatedAt,
		&h.LostItemID, &h.FoundItemID, &h.ItemTitle)
	if err != nil {
		return nil, err
	}
	h.AssignedTo = assignedTo.String
	h.Location = location.String
	h.Notes = notes.String
	h.CompletedBy = completedBy.String
	h.CancellationReason = reason.String
	return h, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
