package domain

import "errors"

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates an entity already exists.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnsupportedFamily indicates an unknown connector family.
	ErrUnsupportedFamily = errors.New("unsupported connector family")

	// ErrIngestInProgress indicates a run for the same source is already
	// in flight. The checkpoint row is mutated by one run at a time.
	ErrIngestInProgress = errors.New("ingest already in progress")

	// ErrInvalidCheckpoint indicates a stored checkpoint cannot be decoded
	// by the connector family that owns it.
	ErrInvalidCheckpoint = errors.New("invalid checkpoint")

	// Normalisation errors. Non-fatal to a run: the record is skipped and
	// counted, never silently dropped.

	// ErrMissingSourceID indicates a payload without the identifier needed
	// to build a record id.
	ErrMissingSourceID = errors.New("payload missing source id")

	// ErrMalformedPayload indicates a payload that cannot be decoded.
	ErrMalformedPayload = errors.New("malformed payload")

	// ErrNoNormaliser indicates no normaliser is registered for a raw
	// record's source and entity type.
	ErrNoNormaliser = errors.New("no normaliser registered")

	// Authentication errors. Never retried blindly; surfaced as a distinct
	// run failure so operators can tell them from transient network errors.

	// ErrAuthRequired indicates the source requires a token but none is
	// configured.
	ErrAuthRequired = errors.New("authentication required")

	// ErrAuthInvalid indicates the configured credentials were rejected.
	ErrAuthInvalid = errors.New("authentication invalid")

	// ErrRateLimited indicates the API rate limit was exceeded after all
	// retries.
	ErrRateLimited = errors.New("rate limited")

	// ErrConnectorValidation indicates connector validation failed before
	// the run started.
	ErrConnectorValidation = errors.New("connector validation failed")
)
