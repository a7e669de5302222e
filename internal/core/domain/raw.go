package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// EntityTypeArtwork is the default entity type for museum object records.
const EntityTypeArtwork = "artwork"

// RawRecord represents one fetched source record exactly as received.
// It is the connector's output before normalisation. Raw records are
// immutable: a changed payload produces a new row with a new version hash,
// never an update to an existing one.
type RawRecord struct {
	// Source is the namespace identifier of the producing source.
	Source string

	// EntityType distinguishes record kinds within a source (e.g. "artwork").
	EntityType string

	// SourceID is the source's native identifier for this record.
	SourceID string

	// VersionHash is the content digest of Payload (sha256, hex).
	VersionHash string

	// FetchedAt is when this version was fetched.
	FetchedAt time.Time

	// EventTime is the source-reported change time, if any.
	EventTime *time.Time

	// Payload is the record body, stored verbatim.
	Payload []byte

	// IsDeleted marks a delete signal received from the source.
	IsDeleted bool
}

// HashPayload computes the version hash for a payload.
func HashPayload(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// ChangeType represents the type of record change.
type ChangeType int

const (
	// ChangeCreated indicates a record not seen before.
	ChangeCreated ChangeType = iota

	// ChangeUpdated indicates a modified record.
	ChangeUpdated

	// ChangeDeleted indicates a delete signal from the source.
	ChangeDeleted

	// ChangeUnchanged indicates a record present in a full snapshot whose
	// content is identical to the last observed version. It carries identity
	// only (no payload) so the reconciler can track snapshot presence.
	ChangeUnchanged
)

// String returns the change type name.
func (t ChangeType) String() string {
	switch t {
	case ChangeCreated:
		return "created"
	case ChangeUpdated:
		return "updated"
	case ChangeDeleted:
		return "deleted"
	case ChangeUnchanged:
		return "unchanged"
	default:
		return "unknown"
	}
}

// RecordChange represents a change event from a connector.
type RecordChange struct {
	// Type is the kind of change.
	Type ChangeType

	// Record is the affected raw record. For ChangeDeleted and
	// ChangeUnchanged only the identity fields are populated.
	Record RawRecord
}
