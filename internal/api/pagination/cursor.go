package pagination

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultLimit = 50
	MaxLimit     = 200
)

var (
	ErrInvalidCursor = errors.New("invalid cursor")
	ErrInvalidLimit  = errors.New("limit must be between 1 and 200")
)

// Cursor encodes a timestamp + entity ID for stable keyset ordering.
type Cursor struct {
	Timestamp time.Time
	ID        string
}

// Page is a validated limit and opaque cursor taken from a query string. An
// empty After means the first page.
type Page struct {
	Limit int
	After string
}

// Encode encodes the cursor as base64(ts_unix_nano:ID).
func Encode(timestamp time.Time, id string) string {
	value := fmt.Sprintf("%d:%s", timestamp.UTC().UnixNano(), strings.ToUpper(strings.TrimSpace(id)))
	return base64.RawURLEncoding.EncodeToString([]byte(value))
}

// Decode decodes base64(ts_unix_nano:ID) into a Cursor.
func Decode(cursor string) (Cursor, error) {
	cursor = strings.TrimSpace(cursor)
	if cursor == "" {
		return Cursor{}, ErrInvalidCursor
	}
	decoded, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return Cursor{}, ErrInvalidCursor
	}
	parts := strings.SplitN(string(decoded), ":", 2)
	if len(parts) != 2 {
		return Cursor{}, ErrInvalidCursor
	}
	unixNano, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return Cursor{}, ErrInvalidCursor
	}
	if strings.TrimSpace(parts[1]) == "" {
		return Cursor{}, ErrInvalidCursor
	}
	return Cursor{Timestamp: time.Unix(0, unixNano).UTC(), ID: strings.ToUpper(strings.TrimSpace(parts[1]))}, nil
}

// ParsePage reads ?limit= and ?after= from a query string.
func ParsePage(values url.Values) (Page, error) {
	page := Page{Limit: DefaultLimit}

	if raw := strings.TrimSpace(values.Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > MaxLimit {
			return page, ErrInvalidLimit
		}
		page.Limit = parsed
	}

	if raw := strings.TrimSpace(values.Get("after")); raw != "" {
		if _, err := Decode(raw); err != nil {
			return page, err
		}
		page.After = raw
	}
	return page, nil
}

// Keyset decodes an optional cursor into query parameters. Both results are nil for the first page.
func Keyset(after string) (*time.Time, *string, error) {
	if strings.TrimSpace(after) == "" {
		return nil, nil, nil
	}
	cursor, err := Decode(after)
	if err != nil {
		return nil, nil, err
	}
	return &cursor.Timestamp, &cursor.ID, nil
}

// Trim cuts a limit+1 result down to limit and reports the cursor for the next page.
func Trim[T any](items []T, limit int, key func(T) (time.Time, string)) ([]T, string) {
	if limit <= 0 || len(items) <= limit {
		return items, ""
	}
	items = items[:limit]
	ts, id := key(items[len(items)-1])
	return items, Encode(ts, id)
}
