package ingest

import (
	"regexp"
	"strings"
	"time"

	"github.com/pkg/errors"
)

const (
	// DataDateFormat is the timestamp embedded in every produced filename.
	DataDateFormat = "2006-01-02T15:04:05.000Z"
	// StateDateFormat is the format of dates persisted in the dataset state.
	StateDateFormat = "2006-01-02T15:04:05"
)

var dataDatePattern = regexp.MustCompile(`\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}\.\d{3}Z`)

// DataDateString formats t in UTC for use in a filename.
func DataDateString(t time.Time) string {
	return t.UTC().Format(DataDateFormat)
}

// StateDateString formats t in UTC for the dataset state.
func StateDateString(t time.Time) string {
	return t.UTC().Format(StateDateFormat)
}

// ParseStateDate parses a state date. Dates with a zone offset or fractional seconds are accepted too.
func ParseStateDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	for _, layout := range []string{StateDateFormat, time.RFC3339Nano, DataDateFormat, "2006-01-02"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, errors.Errorf("invalid date %q", value)
}

// NextMonth returns the first day of the month following t.
func NextMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
}

// FindDataDate returns the data date embedded in a path.
func FindDataDate(path string) (time.Time, bool) {
	match := dataDatePattern.FindString(path)
	if match == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(DataDateFormat, match)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
