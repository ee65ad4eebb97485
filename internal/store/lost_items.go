package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/erazemk/lostfound/internal/model"
)

const lostColumns = `id, title, description, location, date_lost, owner_name, owner_email,
	status, category, subcategory, keywords, photo_mime, reported_by, created_at, updated_at`

// ItemFilter narrows item listings. Zero values match everything.
type ItemFilter struct {
	Status      string
	Category    string
	Subcategory string
}

func (f ItemFilter) where() (string, []any) {
	if f.Status == "" {
		return ``, nil
	}
	return ` WHERE status = ?`, []any{f.Status}
}

// keeps applies the category filters. They are compared in Go so case folding
// matches model.SameField for non-ASCII names.
func (f ItemFilter) keeps(item model.Categorized) bool {
	if f.Category != "" && !model.SameField(f.Category, item.ItemCategory()) {
		return false
	}
	if f.Subcategory != "" && !model.SameField(f.Subcategory, item.ItemSubcategory()) {
		return false
	}
	return true
}

// CreateLostItem stores a new lost report with status OPEN.
func CreateLostItem(ctx context.Context, q Querier, item *model.LostItem) (*model.LostItem, error) {
	if err := item.Validate(); err != nil {
		return nil, err
	}
	keywords := item.Keywords
	if keywords == nil {
		keywords = model.KeywordSet{}
	}
	result, err := q.ExecContext(ctx,
		`INSERT INTO lost_items (title, description, location, date_lost, owner_name, owner_email,
		                         status, category, subcategory, keywords, reported_by)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.Title, item.Description, item.Location, dateValue(item.DateLost), item.OwnerName, item.OwnerEmail,
		model.LostStatusOpen, item.Category, item.Subcategory, keywords.String(), item.ReportedBy,
	)
	if err != nil {
		return nil, fmt.Errorf("creating lost item: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting lost item id: %w", err)
	}

	return GetLostItem(ctx, q, id)
}

// GetLostItem returns a lost item by ID, or nil if it does not exist.
func GetLostItem(ctx context.Context, q Querier, id int64) (*model.LostItem, error) {
	item, err := scanLostItem(q.QueryRowContext(ctx,
		`SELECT `+lostColumns+` FROM lost_items WHERE id = ?`, id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting lost item: %w", err)
	}
	return item, nil
}

// ListLostItems returns lost items ordered by ID.
func ListLostItems(ctx context.Context, q Querier, filter ItemFilter) ([]model.LostItem, error) {
	where, args := filter.where()
	rows, err := q.QueryContext(ctx, `SELECT `+lostColumns+` FROM lost_items`+where+` ORDER BY id`, args...)
	if err != nil {
		return nil, fmt.Errorf("listing lost items: %w", err)
	}
	defer rows.Close()

	var items []model.LostItem
	for rows.Next() {
		item, err := scanLostItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning lost item: %w", err)
		}
		if filter.keeps(item) {
			items = append(items, *item)
		}
	}
	return items, rows.Err()
}

// SetLostItemStatus updates a lost item's status.
func SetLostItemStatus(ctx context.Context, q Querier, id int64, status string) error {
	result, err := q.ExecContext(ctx,
		`UPDATE lost_items SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		status, id,
	)
	if err != nil {
		return fmt.Errorf("setting lost item status: %w", err)
	}
	return affectedOne(result, "lost item", id)
}

// SetLostItemKeywords replaces a lost item's stored keyword set.
func SetLostItemKeywords(ctx context.Context, q Querier, id int64, keywords model.KeywordSet) error {
	result, err := q.ExecContext(ctx,
		`UPDATE lost_items SET keywords = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		keywords.String(), id,
	)
	if err != nil {
		return fmt.Errorf("setting lost item keywords: %w", err)
	}
	return affectedOne(result, "lost item", id)
}

// SetLostItemPhoto stores a processed photo for a lost item.
func SetLostItemPhoto(ctx context.Context, q Querier, id int64, photo []byte, mime string) error {
	result, err := q.ExecContext(ctx,
		`UPDATE lost_items SET photo = ?, photo_mime = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		photo, mime, id,
	)
	if err != nil {
		return fmt.Errorf("setting lost item photo: %w", err)
	}
	return affectedOne(result, "lost item", id)
}

// GetLostItemPhoto returns a lost item's photo and MIME type. Data is nil when
// the item has no photo.
func GetLostItemPhoto(ctx context.Context, q Querier, id int64) ([]byte, string, error) {
	return getPhoto(ctx, q, `SELECT photo, photo_mime FROM lost_items WHERE id = ?`, id)
}

// DeleteLostItem removes a lost report. Reports referenced by a match cannot be deleted.
func DeleteLostItem(ctx context.Context, q Querier, id int64) error {
	var refs int
	if err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM item_matches WHERE lost_item_id = ? AND status = ?`,
		id, model.MatchStatusConfirmed,
	).Scan(&refs); err != nil {
		return fmt.Errorf("checking lost item matches: %w", err)
	}
	if refs > 0 {
		return model.Errorf(model.ErrConflict, "lost item %d has a confirmed match", id)
	}
	if _, err := q.ExecContext(ctx, `DELETE FROM item_matches WHERE lost_item_id = ?`, id); err != nil {
		return fmt.Errorf("deleting lost item matches: %w", err)
	}
	result, err := q.ExecContext(ctx, `DELETE FROM lost_items WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting lost item: %w", err)
	}
	return affectedOne(result, "lost item", id)
}

func scanLostItem(s rowScanner) (*model.LostItem, error) {
	item := &model.LostItem{}
	var description, location, dateLost, ownerName, ownerEmail, photoMime sql.NullString
	var keywords string
	err := s.Scan(&item.ID, &item.Title, &description, &location, &dateLost, &ownerName, &ownerEmail,
		&item.Status, &item.Category, &item.Subcategory, &keywords, &photoMime, &item.ReportedBy,
		&item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return nil, err
	}
	item.Description = description.String
	item.Location = location.String
	item.DateLost = scanDate(dateLost)
	item.OwnerName = ownerName.String
	item.OwnerEmail = ownerEmail.String
	item.PhotoMime = photoMime.String
	item.Keywords = model.ParseKeywordSet(keywords)
	return item, nil
}

func getPhoto(ctx context.Context, q Querier, query string, id int64) ([]byte, string, error) {
	var photo []byte
	var mime sql.NullString
	err := q.QueryRowContext(ctx, query, id).Scan(&photo, &mime)
	if err == sql.ErrNoRows {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("getting photo: %w", err)
	}
	return photo, mime.String, nil
}
