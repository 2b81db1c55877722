// Package params parses query parameters, tolerating the legacy alias
// names older clients still send.
package params

import (
	"errors"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// First returns the first non-empty value among the given parameter
// names, in order.
func First(q url.Values, names ...string) string {
	for _, name := range names {
		if value := q.Get(name); value != "" {
			return value
		}
	}
	return ""
}

// Bool reports whether the value spells a truthy flag. Accepted
// spellings are "true", "1" and "yes", case-insensitive; anything else
// is false.
func Bool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "true", "1", "yes":
		return true
	default:
		return false
	}
}

// ID parses a positive integer identifier.
func ID(value string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("must be a positive integer")
	}
	return id, nil
}

// Float parses a decimal number.
func Float(value string) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return 0, errors.New("must be a number")
	}
	return f, nil
}

// Time parses an instant. It accepts RFC3339 timestamps (with or
// without sub-second precision) and bare dates.
func Time(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"} {
		if parsed, err := time.Parse(layout, value); err == nil {
			return parsed.UTC(), nil
		}
	}
	return time.Time{}, errors.New("must be an ISO-8601 date or datetime")
}

// CSV splits a comma-separated list, trimming blanks.
func CSV(value string) []string {
	if value == "" {
		return nil
	}
	var result []string
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			result = append(result, part)
		}
	}
	return result
}
