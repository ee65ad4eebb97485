package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/erazemk/lostfound/internal/model"
)

// DateLayout is the storage and wire format of item event dates.
const DateLayout = "2006-01-02"

// ParseDate parses an optional calendar date. Blank input yields nil. Malformed
// input yields nil and an error so callers can decide whether to tolerate it.
func ParseDate(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	// Accept full timestamps too; only the calendar day is kept.
	for _, layout := range []string{DateLayout, time.RFC3339, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
			return &day, nil
		}
	}
	return nil, fmt.Errorf("%w: malformed date %q", model.ErrValidation, s)
}

func dateValue(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(DateLayout)
}

// scanDate converts a stored date column; unparsable values are treated as absent.
func scanDate(v sql.NullString) *time.Time {
	if !v.Valid {
		return nil
	}
	t, err := ParseDate(v.String)
	if err != nil {
		return nil
	}
	return t
}

func notFound(what string, id int64) error {
	return fmt.Errorf("%s %d: %w", what, id, model.ErrNotFound)
}
