package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/erazemk/lostfound/internal/model"
)

const matchColumns = `id, lost_item_id, found_item_id, status, matched_by, matched_at`

// MatchFilter narrows match listings. Zero values match everything.
type MatchFilter struct {
	LostItemID  int64
	FoundItemID int64
	Status      string
}

// GetMatch returns a match by ID, or nil if it does not exist.
func GetMatch(ctx context.Context, q Querier, id int64) (*model.ItemMatch, error) {
	return getMatchWhere(ctx, q, `id = ?`, id)
}

// GetMatchByPair returns the match row for a lost/found pair, or nil.
func GetMatchByPair(ctx context.Context, q Querier, lostID, foundID int64) (*model.ItemMatch, error) {
	return getMatchWhere(ctx, q, `lost_item_id = ? AND found_item_id = ?`, lostID, foundID)
}

// GetConfirmedMatchForFound returns the confirmed match holding a found item, or nil.
func GetConfirmedMatchForFound(ctx context.Context, q Querier, foundID int64) (*model.ItemMatch, error) {
	return getMatchWhere(ctx, q, `found_item_id = ? AND status = ?`, foundID, model.MatchStatusConfirmed)
}

// GetConfirmedMatchForLost returns the confirmed match holding a lost item, or nil.
func GetConfirmedMatchForLost(ctx context.Context, q Querier, lostID int64) (*model.ItemMatch, error) {
	return getMatchWhere(ctx, q, `lost_item_id = ? AND status = ?`, lostID, model.MatchStatusConfirmed)
}

func getMatchWhere(ctx context.Context, q Querier, where string, args ...any) (*model.ItemMatch, error) {
	m := &model.ItemMatch{}
	err := q.QueryRowContext(ctx, `SELECT `+matchColumns+` FROM item_matches WHERE `+where, args...).
		Scan(&m.ID, &m.LostItemID, &m.FoundItemID, &m.Status, &m.MatchedBy, &m.MatchedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting match: %w", err)
	}
	return m, nil
}

// ListMatches returns matches ordered by ID.
func ListMatches(ctx context.Context, q Querier, filter MatchFilter) ([]model.ItemMatch, error) {
	query := `SELECT ` + matchColumns + ` FROM item_matches WHERE 1=1`
	var args []any
	if filter.LostItemID > 0 {
		query += ` AND lost_item_id = ?`
		args = append(args, filter.LostItemID)
	}
	if filter.FoundItemID > 0 {
		query += ` AND found_item_id = ?`
		args = append(args, filter.FoundItemID)
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, filter.Status)
	}
	query += ` ORDER BY id`

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing matches: %w", err)
	}
	defer rows.Close()

	var matches []model.ItemMatch
	for rows.Next() {
		var m model.ItemMatch
		if err := rows.Scan(&m.ID, &m.LostItemID, &m.FoundItemID, &m.Status, &m.MatchedBy, &m.MatchedAt); err != nil {
			return nil, fmt.Errorf("scanning match: %w", err)
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

// InsertTentativeMatch records a tentative pairing unless a row already exists
// for the pair, either item has left the pool (lost not OPEN, found not
// UNCLAIMED), or either item holds a confirmed match. The checks run in the
// insert statement itself so they see any confirmation committed before it.
// It reports whether a row was inserted.
func InsertTentativeMatch(ctx context.Context, q Querier, lostID, foundID int64, matchedBy string, at time.Time) (bool, error) {
	result, err := q.ExecContext(ctx,
		`INSERT INTO item_matches (lost_item_id, found_item_id, status, matched_by, matched_at)
		 SELECT ?, ?, ?, ?, ?
		 WHERE EXISTS (SELECT 1 FROM lost_items WHERE id = ? AND status = ?)
		   AND EXISTS (SELECT 1 FROM found_items WHERE id = ? AND status = ?)
		   AND NOT EXISTS (SELECT 1 FROM item_matches
		                   WHERE status = ? AND (lost_item_id = ? OR found_item_id = ?))
		 ON CONFLICT (lost_item_id, found_item_id) DO NOTHING`,
		lostID, foundID, model.MatchStatusTentative, matchedBy, at,
		lostID, model.LostStatusOpen,
		foundID, model.FoundStatusUnclaimed,
		model.MatchStatusConfirmed, lostID, foundID,
	)
	if err != nil {
		return false, fmt.Errorf("inserting tentative match: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("inserting tentative match: %w", err)
	}
	return n > 0, nil
}

// UpsertConfirmedMatch creates or promotes the row for a pair to CONFIRMED and
// returns its ID.
func UpsertConfirmedMatch(ctx context.Context, q Querier, lostID, foundID int64, matchedBy string, at time.Time) (int64, error) {
	_, err := q.ExecContext(ctx,
		`INSERT INTO item_matches (lost_item_id, found_item_id, status, matched_by, matched_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (lost_item_id, found_item_id)
		 DO UPDATE SET status = excluded.status, matched_by = excluded.matched_by, matched_at = excluded.matched_at`,
		lostID, foundID, model.MatchStatusConfirmed, matchedBy, at,
	)
	if err != nil {
		return 0, fmt.Errorf("confirming match: %w", err)
	}

	var id int64
	err = q.QueryRowContext(ctx,
		`SELECT id FROM item_matches WHERE lost_item_id = ? AND found_item_id = ?`,
		lostID, foundID,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("reading confirmed match id: %w", err)
	}
	return id, nil
}

// DeleteOtherMatches removes every match row touching lostID or foundID except
// the row for that exact pair. Handoffs owned by removed rows are removed first.
// It returns the number of match rows deleted.
func DeleteOtherMatches(ctx context.Context, q Querier, lostID, foundID int64) (int64, error) {
	const others = `(lost_item_id = ? OR found_item_id = ?) AND NOT (lost_item_id = ? AND found_item_id = ?)`
	args := []any{lostID, foundID, lostID, foundID}

	if _, err := q.ExecContext(ctx,
		`DELETE FROM handoffs WHERE match_id IN (SELECT id FROM item_matches WHERE `+others+`)`, args...,
	); err != nil {
		return 0, fmt.Errorf("deleting superseded handoffs: %w", err)
	}

	result, err := q.ExecContext(ctx, `DELETE FROM item_matches WHERE `+others, args...)
	if err != nil {
		return 0, fmt.Errorf("deleting superseded matches: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("deleting superseded matches: %w", err)
	}
	return n, nil
}

// DeleteMatch removes a match row.
func DeleteMatch(ctx context.Context, q Querier, id int64) error {
	result, err := q.ExecContext(ctx, `DELETE FROM item_matches WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting match: %w", err)
	}
	return affectedOne(result, "match", id)
}

// ReleaseMatch removes a match row and its handoff. Releasing a confirmed
// match frees both items back into the matching pool: the lost item returns
// to OPEN and the found item to UNCLAIMED. A tentative row is just deleted.
// Run it inside a transaction.
func ReleaseMatch(ctx context.Context, q Querier, id int64) (*model.ItemMatch, error) {
	m, err := GetMatch(ctx, q, id)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, notFound("match", id)
	}

	if err := DeleteHandoffByMatch(ctx, q, id); err != nil {
		return nil, err
	}
	// Only a confirmed match holds its items.
	if m.Confirmed() {
		if err := SetLostItemStatus(ctx, q, m.LostItemID, model.LostStatusOpen); err != nil {
			return nil, err
		}
		if err := SetFoundItemStatus(ctx, q, m.FoundItemID, model.FoundStatusUnclaimed); err != nil {
			return nil, err
		}
	}
	if err := DeleteMatch(ctx, q, id); err != nil {
		return nil, err
	}
	return m, nil
}
