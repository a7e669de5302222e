package graphql

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/artdig/artdig/internal/core/domain"
)

// CursorVersion is the current cursor schema version.
const CursorVersion = 1

// Cursor is the durable scan position: the pagination cursor of an
// interrupted scan plus the change watermark the next scan filters on.
type Cursor struct {
	// Version is the schema version for future migrations.
	Version int `json:"v"`

	// After is the pageInfo.endCursor of the last committed page. Empty
	// when no scan is in flight.
	After string `json:"after,omitempty"`

	// Since is the updated-since watermark (RFC 3339) for the next scan.
	Since string `json:"since,omitempty"`

	// ScanStart is when the in-flight scan began (RFC 3339). Preserved
	// across resumes so the final watermark covers the whole interrupted
	// window, not just the resume run.
	ScanStart string `json:"start,omitempty"`
}

// Encode serializes the cursor to a base64-encoded JSON string.
func (c *Cursor) Encode() string {
	if c == nil {
		return ""
	}
	c.Version = CursorVersion
	data, err := json.Marshal(c)
	if err != nil {
		return ""
	}
	return base64.StdEncoding.EncodeToString(data)
}

// DecodeCursor deserializes a cursor from a base64-encoded JSON string.
// Returns an empty cursor for empty input.
func DecodeCursor(s string) (*Cursor, error) {
	if s == "" {
		return &Cursor{Version: CursorVersion}, nil
	}

	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidCheckpoint, err)
	}
	var cursor Cursor
	if err := json.Unmarshal(data, &cursor); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidCheckpoint, err)
	}
	return &cursor, nil
}

// checkpoint wraps the cursor in a domain checkpoint.
func (c *Cursor) checkpoint(source string) domain.Checkpoint {
	return domain.Checkpoint{
		Source: source,
		Type:   domain.CheckpointToken,
		Value:  c.Encode(),
	}
}
