package handler

import (
	"net/http"
	"time"

	"pmsf-backend/internal/apperr"
)

const dateLayout = "2006-01-02"

// dateRange reads optional from/to YYYY-MM-DD query parameters. Both are
// UTC midnight; to is moved to the next day so the whole day is included.
func dateRange(r *http.Request) (from, to *time.Time, err error) {
	q := r.URL.Query()
	if v := q.Get("from"); v != "" {
		t, err := time.Parse(dateLayout, v)
		if err != nil {
			return nil, nil, apperr.Validation("invalid from date (use YYYY-MM-DD)", nil)
		}
		from = &t
	}
	if v := q.Get("to"); v != "" {
		t, err := time.Parse(dateLayout, v)
		if err != nil {
			return nil, nil, apperr.Validation("invalid to date (use YYYY-MM-DD)", nil)
		}
		end := t.AddDate(0, 0, 1)
		to = &end
	}
	return from, to, nil
}
