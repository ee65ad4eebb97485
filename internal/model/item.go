package model

import (
	"slices"
	"strings"
	"time"
)

// Lost item statuses.
const (
	LostStatusOpen     = "OPEN"
	LostStatusMatched  = "MATCHED"
	LostStatusReturned = "RETURNED"
)

// Found item statuses.
const (
	FoundStatusUnclaimed = "UNCLAIMED"
	FoundStatusMatched   = "MATCHED"
	FoundStatusReturned  = "RETURNED"
)

// Categorized is implemented by anything filed under a category and subcategory.
type Categorized interface {
	ItemCategory() string
	ItemSubcategory() string
}

// Dated is implemented by items that carry an optional event date.
type Dated interface {
	EventDate() *time.Time
}

// Described exposes the free text of a report.
type Described interface {
	ItemTitle() string
	ItemDescription() string
	ItemLocation() string
}

// Scorable is what the match scorer needs from either side of a pair.
type Scorable interface {
	Categorized
	Dated
	ItemKeywords() KeywordSet
}

// LostItem is a report of an item someone lost.
type LostItem struct {
	ID          int64      `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Location    string     `json:"location,omitempty"`
	DateLost    *time.Time `json:"date_lost,omitempty"`
	OwnerName   string     `json:"owner_name,omitempty"`
	OwnerEmail  string     `json:"owner_email,omitempty"`
	Status      string     `json:"status"`
	Category    string     `json:"category"`
	Subcategory string     `json:"subcategory"`
	Keywords    KeywordSet `json:"keywords"`
	PhotoMime   string     `json:"photo_mime,omitempty"`
	ReportedBy  *int64     `json:"reported_by,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (l *LostItem) ItemCategory() string     { return l.Category }
func (l *LostItem) ItemSubcategory() string  { return l.Subcategory }
func (l *LostItem) EventDate() *time.Time    { return l.DateLost }
func (l *LostItem) ItemKeywords() KeywordSet { return l.Keywords }
func (l *LostItem) ItemTitle() string        { return l.Title }
func (l *LostItem) ItemDescription() string  { return l.Description }
func (l *LostItem) ItemLocation() string     { return l.Location }

// FoundItem is a report of an item someone handed in.
type FoundItem struct {
	ID            int64      `json:"id"`
	Title         string     `json:"title"`
	Description   string     `json:"description,omitempty"`
	Location      string     `json:"location,omitempty"`
	DateFound     *time.Time `json:"date_found,omitempty"`
	ReporterName  string     `json:"reporter_name,omitempty"`
	ReporterEmail string     `json:"reporter_email,omitempty"`
	Status        string     `json:"status"`
	Category      string     `json:"category"`
	Subcategory   string     `json:"subcategory"`
	Keywords      KeywordSet `json:"keywords"`
	PhotoMime     string     `json:"photo_mime,omitempty"`
	ReportedBy    *int64     `json:"reported_by,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

func (f *FoundItem) ItemCategory() string     { return f.Category }
func (f *FoundItem) ItemSubcategory() string  { return f.Subcategory }
func (f *FoundItem) EventDate() *time.Time    { return f.DateFound }
func (f *FoundItem) ItemKeywords() KeywordSet { return f.Keywords }
func (f *FoundItem) ItemTitle() string        { return f.Title }
func (f *FoundItem) ItemDescription() string  { return f.Description }
func (f *FoundItem) ItemLocation() string     { return f.Location }

// SameField compares two category-like values case-insensitively. Blank
// values never match.
func SameField(a, b string) bool {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	return a != "" && b != "" && strings.EqualFold(a, b)
}

// SameFiling reports whether both category and subcategory match.
func SameFiling(a, b Categorized) bool {
	return SameField(a.ItemCategory(), b.ItemCategory()) &&
		SameField(a.ItemSubcategory(), b.ItemSubcategory())
}

// Validate checks the fields a lost report cannot be stored without.
func (l *LostItem) Validate() error {
	return requireFields(map[string]string{
		"title":       l.Title,
		"category":    l.Category,
		"subcategory": l.Subcategory,
		"owner_email": l.OwnerEmail,
	})
}

// Validate checks the fields a found report cannot be stored without.
func (f *FoundItem) Validate() error {
	return requireFields(map[string]string{
		"title":          f.Title,
		"category":       f.Category,
		"subcategory":    f.Subcategory,
		"reporter_email": f.ReporterEmail,
	})
}

func requireFields(fields map[string]string) error {
	var missing []string
	for name, value := range fields {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	slices.Sort(missing)
	return Errorf(ErrValidation, "missing required fields: %s", strings.Join(missing, ", "))
}
