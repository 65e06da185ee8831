package pagination

import (
	"encoding/base64"
	"encoding/json"
	"strings"
)

// Pagination carries the caller-facing cursor inputs for a list query.
type Pagination struct {
	PageToken string
	PageSize  int
}

// Cursor identifies the last row of a page.
type Cursor struct {
	ID        string `json:"id"`
	CreatedAt string `json:"created_at"`
}

// PageInfo is returned alongside list results.
type PageInfo struct {
	NextPageToken string `json:"next_page_token,omitempty"`
	HasMore       bool   `json:"has_more"`
}

// EncodeCursor serializes a cursor into an opaque page token.
func EncodeCursor(cursor Cursor) (string, error) {
	raw, err := json.Marshal(cursor)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// DecodeCursor parses an opaque page token back into a cursor.
func DecodeCursor(token string) (Cursor, error) {
	var cursor Cursor
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimSpace(token))
	if err != nil {
		return cursor, err
	}
	if err := json.Unmarshal(raw, &cursor); err != nil {
		return cursor, err
	}
	return cursor, nil
}

// BuildCursorPageInfo computes page info for a result slice fetched with
// pageSize+1 rows. tokenFn renders the token for the last visible row.
func BuildCursorPageInfo[T any](items []T, pageSize int32, tokenFn func(T) string) *PageInfo {
	if pageSize <= 0 || len(items) == 0 {
		return &PageInfo{}
	}
	if len(items) <= int(pageSize) {
		return &PageInfo{}
	}
	last := items[pageSize-1]
	return &PageInfo{
		NextPageToken: tokenFn(last),
		HasMore:       true,
	}
}
