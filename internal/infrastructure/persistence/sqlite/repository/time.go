package repository

import (
	"fmt"
	"strings"
	"time"
)

// Text layouts the sqlite driver may have used for a stored datetime column.
// min()/max() aggregates come back as raw text, so parsing happens here
// instead of in the driver.
var storedTimeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

func parseStoredTime(value string) (time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return time.Time{}, fmt.Errorf("empty stored time")
	}

	for _, layout := range storedTimeLayouts {
		if parsed, err := time.Parse(layout, trimmed); err == nil {
			return parsed, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized stored time %q", trimmed)
}
