// Package persistence contains helpers shared by store implementations and
// paginated views.
package persistence

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"
)

// Cursor marks a position in the newest-first activity history: the page
// after it starts strictly below (OccurredAt, ID).
type Cursor struct {
	OccurredAt time.Time
	ID         string
}

// EncodeCursor serialises the cursor to an opaque, URL-safe token.
func EncodeCursor(c *Cursor) string {
	if c == nil {
		return ""
	}
	raw := fmt.Sprintf("%s|%s", c.OccurredAt.UTC().Format(time.RFC3339Nano), c.ID)
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// DecodeCursor parses the encoded cursor token.
func DecodeCursor(token string) (*Cursor, error) {
	if strings.TrimSpace(token) == "" {
		return nil, nil
	}
	decoded, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, err
	}
	parts := strings.SplitN(string(decoded), "|", 2)
	if len(parts) != 2 {
		return nil, fmt.Errorf("invalid cursor format")
	}
	ts, err := time.Parse(time.RFC3339Nano, parts[0])
	if err != nil {
		return nil, err
	}
	return &Cursor{OccurredAt: ts, ID: parts[1]}, nil
}
