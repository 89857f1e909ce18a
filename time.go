package business

import (
	"bytes"
	"encoding/json"
	"time"
)

var dateTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999-0700",
	"2006-01-02T15:04:05.999999999", // no zone; treated as UTC
	"2006-01-02 15:04:05.999999999",
	time.DateOnly,
}

// DateTime is an API timestamp such as createdDateTime.
//
// Decoding never fails: a value in none of the known layouts keeps its
// original text in Raw with a zero Time. JSON null and the empty string
// decode to the zero value.
type DateTime struct {
	t   time.Time
	raw string
}

// NewDateTime returns a parsed DateTime holding t.
func NewDateTime(t time.Time) DateTime {
	return DateTime{t: t}
}

// MarshalJSON writes parsed values as RFC 3339 in UTC, unparsed values as
// their original text and the zero value as null.
func (t DateTime) MarshalJSON() ([]byte, error) {
	switch {
	case !t.t.IsZero():
		return json.Marshal(t.t.UTC().Format(time.RFC3339Nano))
	case t.raw != "":
		return json.Marshal(t.raw)
	}
	return []byte("null"), nil
}

// UnmarshalJSON implements the json.Unmarshaler interface for DateTime.
func (t *DateTime) UnmarshalJSON(data []byte) error {
	*t = DateTime{}
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		t.raw = string(data)
		return nil
	}
	if s == "" {
		return nil
	}
	for _, layout := range dateTimeLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.t = parsed.UTC()
			return nil
		}
	}
	t.raw = s
	return nil
}

// Time returns the parsed time, or the zero time when the value was absent
// or unrecognised.
func (t DateTime) Time() time.Time {
	return t.t
}

// Raw returns the original text of a value that could not be parsed.
func (t DateTime) Raw() string {
	return t.raw
}

// Parsed reports whether the value was recognised as a timestamp.
func (t DateTime) Parsed() bool {
	return !t.t.IsZero()
}

// IsZero reports whether the timestamp was absent.
func (t DateTime) IsZero() bool {
	return t.t.IsZero() && t.raw == ""
}

// String returns the DateTime formatted as RFC 3339, the original text when
// it was unrecognised, or "" when absent.
func (t DateTime) String() string {
	if t.t.IsZero() {
		return t.raw
	}
	return t.t.Format(time.RFC3339)
}
