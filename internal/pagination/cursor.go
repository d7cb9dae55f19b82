// Package pagination pages ordered, append-only sequences such as chat history.
package pagination

import (
	"encoding/base64"
	"errors"
	"strconv"
	"strings"
	"time"
)

// Cursor points just past the last item of a page
type Cursor struct {
	Seq       int64
	Timestamp time.Time
}

// PageResult represents a paginated result set
type PageResult[T any] struct {
	Items   []T    `json:"items"`
	Cursor  string `json:"cursor,omitempty"`
	HasMore bool   `json:"has_more"`
}

var (
	ErrInvalidCursor = errors.New("invalid cursor format")
)

// EncodeCursor creates a URL-safe cursor from a sequence number and timestamp
func EncodeCursor(seq int64, timestamp time.Time) string {
	raw := strconv.FormatInt(seq, 10) + "|" + timestamp.UTC().Format(time.RFC3339Nano)
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// DecodeCursor decodes a cursor. An empty cursor decodes to nil.
func DecodeCursor(cursor string) (*Cursor, error) {
	if cursor == "" {
		return nil, nil
	}

	decoded, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return nil, ErrInvalidCursor
	}

	parts := strings.SplitN(string(decoded), "|", 2)
	if len(parts) != 2 {
		return nil, ErrInvalidCursor
	}

	seq, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || seq < 0 {
		return nil, ErrInvalidCursor
	}

	timestamp, err := time.Parse(time.RFC3339Nano, parts[1])
	if err != nil {
		return nil, ErrInvalidCursor
	}

	return &Cursor{Seq: seq, Timestamp: timestamp}, nil
}

// Paginate returns up to limit items whose sequence number is greater than
// the cursor's. items must be sorted by ascending sequence number.
func Paginate[T any](items []T, cursor *Cursor, limit int, seqOf func(T) int64, timeOf func(T) time.Time) *PageResult[T] {
	after := int64(-1)
	if cursor != nil {
		after = cursor.Seq
	}

	page := make([]T, 0, limit)
	hasMore := false
	for _, item := range items {
		if seqOf(item) <= after {
			continue
		}
		if len(page) == limit {
			hasMore = true
			break
		}
		page = append(page, item)
	}

	result := &PageResult[T]{Items: page, HasMore: hasMore}
	if hasMore && len(page) > 0 {
		last := page[len(page)-1]
		result.Cursor = EncodeCursor(seqOf(last), timeOf(last))
	}
	return result
}
