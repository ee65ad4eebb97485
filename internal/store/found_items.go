package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/erazemk/lostfound/internal/model"
)

const foundColumns = `id, title, description, location, date_found, reporter_name, reporter_email,
	status, category, subcategory, keywords, photo_mime, reported_by, created_at, updated_at`

// CreateFoundItem stores a new found report with status UNCLAIMED.
func CreateFoundItem(ctx context.Context, q Querier, item *model.FoundItem) (*model.FoundItem, error) {
	if err := item.Validate(); err != nil {
		return nil, err
	}
	keywords := item.Keywords
	if keywords == nil {
		keywords = model.KeywordSet{}
	}
	result, err := q.ExecContext(ctx,
		`INSERT INTO found_items (title, description, location, date_found, reporter_name, reporter_email,
		                         status, category, subcategory, keywords, reported_by)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.Title, item.Description, item.Location, dateValue(item.DateFound), item.ReporterName, item.ReporterEmail,
		model.FoundStatusUnclaimed, item.Category, item.Subcategory, keywords.String(), item.ReportedBy,
	)
	if err != nil {
		return nil, fmt.Errorf("creating found item: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting found item id: %w", err)
	}

	return GetFoundItem(ctx, q, id)
}

// GetFoundItem returns a found item by ID, or nil if it does not exist.
func GetFoundItem(ctx context.Context, q Querier, id int64) (*model.FoundItem, error) {
	item, err := scanFoundItem(q.QueryRowContext(ctx,
		`SELECT `+foundColumns+` FROM found_items WHERE id = ?`, id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting found item: %w", err)
	}
	return item, nil
}

// ListFoundItems returns found items ordered by ID.
func ListFoundItems(ctx context.Context, q Querier, filter ItemFilter) ([]model.FoundItem, error) {
	where, args := filter.where()
	rows, err := q.QueryContext(ctx, `SELECT `+foundColumns+` FROM found_items`+where+` ORDER BY id`, args...)
	if err != nil {
		return nil, fmt.Errorf("listing found items: %w", err)
	}
	defer rows.Close()

	var items []model.FoundItem
	for rows.Next() {
		item, err := scanFoundItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning found item: %w", err)
		}
		if filter.keeps(item) {
			items = append(items, *item)
		}
	}
	return items, rows.Err()
}

// SetFoundItemStatus updates a found item's status.
func SetFoundItemStatus(ctx context.Context, q Querier, id int64, status string) error {
	result, err := q.ExecContext(ctx,
		`UPDATE found_items SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		status, id,
	)
	if err != nil {
		return fmt.Errorf("setting found item status: %w", err)
	}
	return affectedOne(result, "found item", id)
}

// SetFoundItemKeywords replaces a found item's stored keyword set.
func SetFoundItemKeywords(ctx context.Context, q Querier, id int64, keywords model.KeywordSet) error {
	result, err := q.ExecContext(ctx,
		`UPDATE found_items SET keywords = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		keywords.String(), id,
	)
	if err != nil {
		return fmt.Errorf("setting found item keywords: %w", err)
	}
	return affectedOne(result, "found item", id)
}

// SetFoundItemPhoto stores a processed photo for a found item.
func SetFoundItemPhoto(ctx context.Context, q Querier, id int64, photo []byte, mime string) error {
	result, err := q.ExecContext(ctx,
		`UPDATE found_items SET photo = ?, photo_mime = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		photo, mime, id,
	)
	if err != nil {
		return fmt.Errorf("setting found item photo: %w", err)
	}
	return affectedOne(result, "found item", id)
}

// GetFoundItemPhoto returns a found item's photo and MIME type. Data is nil when
// the item has no photo.
func GetFoundItemPhoto(ctx context.Context, q Querier, id int64) ([]byte, string, error) {
	return getPhoto(ctx, q, `SELECT photo, photo_mime FROM found_items WHERE id = ?`, id)
}

// DeleteFoundItem removes a found report. Reports referenced by a match cannot be deleted.
func DeleteFoundItem(ctx context.Context, q Querier, id int64) error {
	var refs int
	if err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM item_matches WHERE found_item_id = ? AND status = ?`,
		id, model.MatchStatusConfirmed,
	).Scan(&refs); err != nil {
		return fmt.Errorf("checking found item matches: %w", err)
	}
	if refs > 0 {
		return model.Errorf(model.ErrConflict, "found item %d has a confirmed match", id)
	}
	if _, err := q.ExecContext(ctx, `DELETE FROM item_matches WHERE found_item_id = ?`, id); err != nil {
		return fmt.Errorf("deleting found item matches: %w", err)
	}
	result, err := q.ExecContext(ctx, `DELETE FROM found_items WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting found item: %w", err)
	}
	return affectedOne(result, "found item", id)
}

func scanFoundItem(s rowScanner) (*model.FoundItem, error) {
	item := &model.FoundItem{}
	var description, location, dateFound, reporterName, reporterEmail, photoMime sql.NullString
	var keywords string
	err := s.Scan(&item.ID, &item.Title, &description, &location, &dateFound, &reporterName, &reporterEmail,
		&item.Status, &item.Category, &item.Subcategory, &keywords, &photoMime, &item.ReportedBy,
		&item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return nil, err
	}
	item.Description = description.String
	item.Location = location.String
	item.DateFound = scanDate(dateFound)
	item.ReporterName = reporterName.String
	item.ReporterEmail = reporterEmail.String
	item.PhotoMime = photoMime.String
	item.Keywords = model.ParseKeywordSet(keywords)
	return item, nil
}
