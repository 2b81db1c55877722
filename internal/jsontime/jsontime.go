// Package jsontime carries timestamps that serialize as ISO-8601 with fixed
// millisecond precision, matching the wire format consumers of this API expect.
package jsontime

import (
	"bytes"
	"fmt"
	"strconv"
	"time"
)

// Layout is the canonical serialized form, e.g. 2026-01-26T08:00:00.000Z.
const Layout = "2006-01-02T15:04:05.000Z07:00"

// Time wraps time.Time with millisecond-ISO JSON encoding.
type Time struct {
	time.Time
}

// At wraps a time.Time.
func At(t time.Time) Time {
	return Time{Time: t}
}

// Now returns the current instant in UTC.
func Now() Time {
	return Time{Time: time.Now().UTC()}
}

// MarshalJSON encodes the timestamp in UTC with millisecond precision.
func (t Time) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return []byte(`"` + t.UTC().Format(Layout) + `"`), nil
}

// UnmarshalJSON accepts an ISO-8601 string, a date-only string, an epoch
// value in milliseconds, or null.
func (t *Time) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		t.Time = time.Time{}
		return nil
	}
	if data[0] == '"' {
		raw, err := strconv.Unquote(string(data))
		if err != nil {
			return fmt.Errorf("jsontime: %w", err)
		}
		parsed, err := Parse(raw)
		if err != nil {
			return err
		}
		t.Time = parsed
		return nil
	}
	millis, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("jsontime: invalid epoch value %q", data)
	}
	t.Time = time.UnixMilli(millis).UTC()
	return nil
}

// Parse accepts the layouts the API has historically tolerated.
func Parse(value string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339Nano, Layout, "2006-01-02T15:04:05", "2006-01-02"} {
		if parsed, err := time.Parse(layout, value); err == nil {
			return parsed, nil
		}
	}
	return time.Time{}, fmt.Errorf("jsontime: invalid timestamp %q", value)
}
