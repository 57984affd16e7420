package engine

import (
	"strings"
	"time"
)

// Cursor marks a position in the feed order (CreatedAt desc, ID desc).
// Its wire form is "<RFC3339Nano created_at>|<id>".
type Cursor struct {
	CreatedAt time.Time
	ID        string
}

func (c Cursor) Encode() string {
	return EncodeCursor(c.CreatedAt, c.ID)
}

func EncodeCursor(createdAt time.Time, id string) string {
	return createdAt.UTC().Format(time.RFC3339Nano) + "|" + id
}

// Admits reports whether an item at (createdAt, id) comes strictly after
// the cursor in feed order.
func (c Cursor) Admits(createdAt time.Time, id string) bool {
	if createdAt.Before(c.CreatedAt) {
		return true
	}
	return createdAt.Equal(c.CreatedAt) && id < c.ID
}

// CursorOf returns the cursor pointing at r.
func CursorOf(r Recognition) Cursor {
	return Cursor{CreatedAt: r.CreatedAt, ID: r.ID}
}

// naive timestamps carry no zone and are read as UTC
const naiveLayout = "2006-01-02T15:04:05.999999999"

// DecodeCursor parses the wire form. The id may not contain '|', so the
// split happens at the last separator.
func DecodeCursor(s string) (Cursor, error) {
	i := strings.LastIndex(s, "|")
	if i <= 0 || i == len(s)-1 {
		return Cursor{}, &Error{Kind: KindValidation, Code: "invalid_cursor", Message: "invalid cursor", Err: ErrMalformedCursor}
	}
	raw, id := s[:i], s[i+1:]
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		t, err = time.ParseInLocation(naiveLayout, raw, time.UTC)
	}
	if err != nil {
		return Cursor{}, &Error{Kind: KindValidation, Code: "invalid_cursor", Message: "invalid cursor", Err: ErrMalformedCursor}
	}
	return Cursor{CreatedAt: t.UTC(), ID: id}, nil
}
