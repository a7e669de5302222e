package domain

import "time"

// CheckpointType identifies how a checkpoint value is interpreted.
type CheckpointType string

const (
	// CheckpointPage is a numeric page position in a paged feed.
	CheckpointPage CheckpointType = "page"

	// CheckpointToken is an opaque continuation token.
	CheckpointToken CheckpointType = "token"

	// CheckpointTimestamp is a point in time (RFC 3339).
	CheckpointTimestamp CheckpointType = "timestamp"

	// CheckpointCommit is a content or commit identifier.
	CheckpointCommit CheckpointType = "commit"
)

// Checkpoint is the durable cursor marking how far an incremental sync has
// progressed for one source. Exactly one checkpoint exists per source; it
// advances only together with a successful commit and is never advanced by a
// failed run.
type Checkpoint struct {
	// Source is the owning source id.
	Source string

	// Type says how Value is interpreted.
	Type CheckpointType

	// Value is the serialized cursor. Connector families own the encoding.
	Value string

	// LastSuccessAt is when the checkpoint last advanced.
	LastSuccessAt time.Time

	// Metadata holds free-form auxiliary state (e.g. snapshot file hash).
	Metadata map[string]string
}

// IsZero reports whether the checkpoint carries no cursor state.
func (c Checkpoint) IsZero() bool {
	return c.Value == "" && c.Type == ""
}
