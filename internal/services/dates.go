package services

import (
	"strings"
	"time"

	"curanova-server/internal/apperrors"
)

const dateLayout = "2006-01-02"

// parseDate accepts YYYY-MM-DD (midnight UTC) or an RFC 3339 timestamp.
func parseDate(field, value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if t, err := time.Parse(dateLayout, value); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.UTC(), nil
	}
	return time.Time{}, apperrors.Validation("%s must be a date (YYYY-MM-DD) or an RFC 3339 timestamp", field)
}
