// Package pagination implements opaque keyset cursors over a
// (timestamp desc, id desc) ordering. A cursor is bound to the scope it was
// issued for (a listing filter) and is rejected if replayed elsewhere.
package pagination

import (
	"encoding/base64"
	"encoding/json"
	"time"

	dErrors "prodir/pkg/domain-errors"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Cursor is the last position a page ended on.
type Cursor struct {
	At    time.Time `json:"at"`
	ID    string    `json:"id"`
	Scope string    `json:"scope"`
}

// Page is one slice of a keyset listing. NextCursor is empty on the last page.
type Page[T any] struct {
	Items      []T    `json:"items"`
	NextCursor string `json:"next_cursor,omitempty"`
}

// Encode renders the cursor as a URL-safe opaque token.
func Encode(c Cursor) string {
	b, _ := json.Marshal(c)
	return base64.RawURLEncoding.EncodeToString(b)
}

// Decode parses a token issued for scope. An empty token means "first page"
// and yields nil.
func Decode(token, scope string) (*Cursor, error) {
	if token == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeInvalidArgument, "malformed cursor")
	}
	var c Cursor
	if err := json.Unmarshal(raw, &c); err != nil || c.ID == "" || c.At.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvalidArgument, "malformed cursor")
	}
	if c.Scope != scope {
		return nil, dErrors.New(dErrors.CodeInvalidArgument, "cursor does not match the requested filter")
	}
	return &c, nil
}

// NormalizeLimit applies the default for 0 and rejects anything outside
// [1, MaxLimit].
func NormalizeLimit(limit int) (int, error) {
	if limit == 0 {
		return DefaultLimit, nil
	}
	if limit < 0 || limit > MaxLimit {
		return 0, dErrors.New(dErrors.CodeInvalidArgument, "limit must be between 1 and 100")
	}
	return limit, nil
}

// Before reports whether (at, id) sorts strictly after the cursor position
// in (timestamp desc, id desc) order, i.e. belongs to a later page.
// IDs are canonical lowercase UUID strings, so string order is byte order.
func (c *Cursor) Before(at time.Time, id string) bool {
	if c == nil {
		return true
	}
	if at.Equal(c.At) {
		return id < c.ID
	}
	return at.Before(c.At)
}

// Less orders two positions in (timestamp desc, id desc).
func Less(atA time.Time, idA string, atB time.Time, idB string) bool {
	if atA.Equal(atB) {
		return idA > idB
	}
	return atA.After(atB)
}
