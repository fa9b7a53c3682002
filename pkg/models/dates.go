package models

import (
	"fmt"
	"strings"
	"time"
)

// dateLayouts are the date shapes accepted from CSV metadata and upstream
// payloads, most specific first.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"02-Jan-2006",
	"02-Jan-06",
	"02/01/2006",
	"02/01/06",
	"02-01-2006",
	"02-01-06",
}

// ParseDate parses a date string in any of the accepted layouts.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable date %q", s)
}
