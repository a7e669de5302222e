// Package oaipmh implements the OAI-PMH connector family. The source is
// harvested with ListRecords, following resumption tokens page by page;
// deleted headers become tombstone signals and the datestamp window gives
// incremental harvests.
package oaipmh

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"net/url"
	"time"

	"github.com/artdig/artdig/internal/connectors/httpclient"
	"github.com/artdig/artdig/internal/core/domain"
	"github.com/artdig/artdig/internal/core/ports/driven"
	"github.com/artdig/artdig/internal/logger"
)

// Config keys recognised by this family.
const (
	// ConfigEndpoint is the OAI-PMH base URL.
	ConfigEndpoint = "endpoint"

	// ConfigMetadataPrefix selects the metadata format. Default "oai_dc".
	ConfigMetadataPrefix = "metadata_prefix"

	// ConfigSet restricts the harvest to one set. Optional.
	ConfigSet = "set"
)

// statusDeleted is the OAI header status marking a removed record.
const statusDeleted = "deleted"

// noRecordsMatch is the protocol error for an empty (but valid) window.
const noRecordsMatch = "noRecordsMatch"

type oaiResponse struct {
	XMLName     xml.Name     `xml:"OAI-PMH"`
	Error       *oaiError    `xml:"error"`
	ListRecords *listRecords `xml:"ListRecords"`
}

type oaiError struct {
	Code    string `xml:"code,attr"`
	Message string `xml:",chardata"`
}

type listRecords struct {
	Records         []oaiRecord `xml:"record"`
	ResumptionToken string      `xml:"resumptionToken"`
}

type oaiRecord struct {
	Header   oaiHeader   `xml:"header"`
	Metadata oaiMetadata `xml:"metadata"`
}

type oaiHeader struct {
	Status     string `xml:"status,attr"`
	Identifier string `xml:"identifier"`
	Datestamp  string `xml:"datestamp"`
}

type oaiMetadata struct {
	Inner []byte `xml:",innerxml"`
}

// cursorState is the durable harvest position.
type cursorState struct {
	// Token is the resumption token of the next page. Empty when no
	// harvest is in flight.
	Token string `json:"token,omitempty"`

	// From is the datestamp watermark for the next harvest.
	From string `json:"from,omitempty"`

	// Start is when the in-flight harvest began. Preserved across resumes
	// so the final watermark covers the whole interrupted window, not just
	// the resume run.
	Start string `json:"start,omitempty"`
}

// Connector harvests an OAI-PMH repository.
type Connector struct {
	source         domain.Source
	endpoint       string
	metadataPrefix string
	set            string
	client         *httpclient.Client
}

var _ driven.Connector = (*Connector)(nil)

// New creates an OAI-PMH connector from source configuration.
func New(source domain.Source) (*Connector, error) {
	endpoint := source.Config[ConfigEndpoint]
	if endpoint == "" {
		return nil, fmt.Errorf("%w: %s requires %q", domain.ErrInvalidInput, source.ID, ConfigEndpoint)
	}
	prefix := source.Config[ConfigMetadataPrefix]
	if prefix == "" {
		prefix = "oai_dc"
	}
	return &Connector{
		source:         source,
		endpoint:       endpoint,
		metadataPrefix: prefix,
		set:            source.Config[ConfigSet],
		client: httpclient.New(httpclient.Options{
			Token:     source.APIToken,
			RateLimit: source.RateLimit,
		}),
	}, nil
}

// Type returns the connector family identifier.
func (c *Connector) Type() string { return domain.FamilyOAIPMH }

// Source returns the configured source id.
func (c *Connector) Source() string { return c.source.ID }

// Capabilities returns what this connector supports.
func (c *Connector) Capabilities() driven.ConnectorCapabilities {
	return driven.ConnectorCapabilities{
		SupportsIncremental:     true,
		SupportsPageCheckpoints: true,
		RequiresAuth:            c.source.APIToken != "",
		SupportsValidation:      true,
	}
}

// Validate sends an Identify request.
func (c *Connector) Validate(ctx context.Context) error {
	_, err := c.client.Get(ctx, c.endpoint+"?verb=Identify", nil)
	return classifyAuth(err)
}

// Bootstrap harvests the whole repository.
func (c *Connector) Bootstrap(ctx context.Context) (<-chan domain.RecordChange, <-chan error) {
	return c.stream(ctx, cursorState{})
}

// Incremental resumes an interrupted harvest at its resumption token, or
// starts a new harvest from the datestamp watermark.
func (c *Connector) Incremental(ctx context.Context, cp domain.Checkpoint) (<-chan domain.RecordChange, <-chan error) {
	state, err := decodeCheckpoint(cp)
	if err != nil {
		changes := make(chan domain.RecordChange)
		errs := make(chan error, 1)
		errs <- err
		close(changes)
		close(errs)
		return changes, errs
	}
	return c.stream(ctx, state)
}

// Close releases resources.
func (c *Connector) Close() error { return nil }

func (c *Connector) stream(ctx context.Context, state cursorState) (<-chan domain.RecordChange, <-chan error) {
	changes := make(chan domain.RecordChange)
	errs := make(chan error, 1)

	go func() {
		defer close(changes)
		defer close(errs)

		scanStart := time.Now().UTC().Format("2006-01-02T15:04:05Z")
		switch {
		case state.Start != "":
			// Resuming: the watermark must cover the interrupted
			// harvest's window, not the resume run's.
			scanStart = state.Start
		case state.Token != "":
			// Interrupted harvest with no recorded start; the previous
			// watermark is the safe lower bound.
			scanStart = state.From
		}
		token := state.Token
		from := state.From
		pages := 0

		for {
			resp, err := c.fetchPage(ctx, token, from)
			if err != nil {
				sendErr(ctx, errs, classifyAuth(err))
				return
			}
			if resp.Error != nil {
				if resp.Error.Code == noRecordsMatch {
					break // Empty window is a clean result
				}
				sendErr(ctx, errs, fmt.Errorf("%w: %s: %s",
					domain.ErrMalformedPayload, resp.Error.Code, resp.Error.Message))
				return
			}
			if resp.ListRecords == nil {
				sendErr(ctx, errs, fmt.Errorf("%w: response has no ListRecords", domain.ErrMalformedPayload))
				return
			}
			pages++

			for i := range resp.ListRecords.Records {
				change, err := c.toChange(&resp.ListRecords.Records[i])
				if err != nil {
					if sendErr(ctx, errs, &driven.RecordError{Err: err}) {
						return
					}
					continue
				}
				select {
				case <-ctx.Done():
					return
				case changes <- *change:
				}
			}

			token = resp.ListRecords.ResumptionToken
			if token == "" {
				break
			}
			mid := cursorState{Token: token, From: from, Start: scanStart}
			if sendErr(ctx, errs, &driven.PageComplete{Checkpoint: mid.checkpoint(c.source.ID)}) {
				return
			}
		}

		logger.Debug("Harvested %d pages from %s", pages, c.source.ID)
		final := cursorState{From: scanStart}
		sendErr(ctx, errs, &driven.CheckpointComplete{Checkpoint: final.checkpoint(c.source.ID)})
	}()

	return changes, errs
}

// toChange maps one harvested record to a record change.
func (c *Connector) toChange(rec *oaiRecord) (*domain.RecordChange, error) {
	if rec.Header.Identifier == "" {
		return nil, domain.ErrMissingSourceID
	}

	record := domain.RawRecord{
		Source:     c.source.ID,
		EntityType: domain.EntityTypeArtwork,
		SourceID:   rec.Header.Identifier,
		FetchedAt:  time.Now().UTC(),
	}
	if ts, err := parseDatestamp(rec.Header.Datestamp); err == nil {
		record.EventTime = &ts
	}

	if rec.Header.Status == statusDeleted {
		record.IsDeleted = true
		return &domain.RecordChange{Type: domain.ChangeDeleted, Record: record}, nil
	}

	if len(rec.Metadata.Inner) == 0 {
		return nil, fmt.Errorf("%w: record %s has no metadata", domain.ErrMalformedPayload, rec.Header.Identifier)
	}
	record.Payload = rec.Metadata.Inner
	record.VersionHash = domain.HashPayload(record.Payload)

	// OAI-PMH does not distinguish new from changed records; updated is
	// the safe default and the upsert is idempotent either way.
	return &domain.RecordChange{Type: domain.ChangeUpdated, Record: record}, nil
}

func (c *Connector) fetchPage(ctx context.Context, token, from string) (*oaiResponse, error) {
	params := url.Values{"verb": {"ListRecords"}}
	if token != "" {
		params.Set("resumptionToken", token)
	} else {
		params.Set("metadataPrefix", c.metadataPrefix)
		if c.set != "" {
			params.Set("set", c.set)
		}
		if from != "" {
			params.Set("from", from)
		}
	}

	body, err := c.client.Get(ctx, c.endpoint+"?"+params.Encode(), map[string]string{
		"Accept": "application/xml",
	})
	if err != nil {
		return nil, err
	}

	var resp oaiResponse
	if err := xml.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedPayload, err)
	}
	return &resp, nil
}

// checkpoint wraps the cursor state in a domain checkpoint.
func (s cursorState) checkpoint(source string) domain.Checkpoint {
	data, _ := json.Marshal(s) //nolint:errcheck // struct always marshals
	return domain.Checkpoint{
		Source: source,
		Type:   domain.CheckpointToken,
		Value:  string(data),
	}
}

// decodeCheckpoint turns a stored token checkpoint into cursor state.
func decodeCheckpoint(cp domain.Checkpoint) (cursorState, error) {
	if cp.IsZero() {
		return cursorState{}, nil
	}
	if cp.Type != domain.CheckpointToken {
		return cursorState{}, fmt.Errorf("%w: expected token checkpoint, got %q", domain.ErrInvalidCheckpoint, cp.Type)
	}
	var state cursorState
	if err := json.Unmarshal([]byte(cp.Value), &state); err != nil {
		return cursorState{}, fmt.Errorf("%w: %v", domain.ErrInvalidCheckpoint, err)
	}
	return state, nil
}

// parseDatestamp accepts both date and datetime OAI datestamps.
func parseDatestamp(s string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts, nil
	}
	return time.Parse("2006-01-02", s)
}

// classifyAuth maps HTTP auth failures to the domain auth sentinel.
func classifyAuth(err error) error {
	if err == nil {
		return nil
	}
	if httpclient.IsUnauthorized(err) || httpclient.IsForbidden(err) {
		return fmt.Errorf("%w: %w", domain.ErrAuthInvalid, err)
	}
	return err
}

// sendErr delivers an error unless the context is done; reports cancellation.
func sendErr(ctx context.Context, errs chan<- error, err error) bool {
	select {
	case <-ctx.Done():
		return true
	case errs <- err:
		return false
	}
}
