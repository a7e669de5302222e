// Package graphql implements the cursor-paginated GraphQL connector family.
// The source exposes a relay-style connection: the connector walks
// pageInfo.endCursor pages, optionally filtered by an updated-since
// watermark, and classifies nodes against the stored raw versions.
package graphql

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/artdig/artdig/internal/connectors/httpclient"
	"github.com/artdig/artdig/internal/core/domain"
	"github.com/artdig/artdig/internal/core/ports/driven"
	"github.com/artdig/artdig/internal/logger"
)

// Config keys recognised by this family.
const (
	// ConfigEndpoint is the GraphQL endpoint URL.
	ConfigEndpoint = "endpoint"

	// ConfigQuery is the query document. It must accept $first, $after and
	// $since variables and select pageInfo{endCursor hasNextPage} plus nodes.
	ConfigQuery = "query"

	// ConfigRootField is the connection field under data. Default "artworks".
	ConfigRootField = "root_field"

	// ConfigIDField is the node field holding the source id. Default "id".
	ConfigIDField = "id_field"

	// ConfigSinceFilter disables the updated-since filter when set to
	// "false"; incremental runs then fall back to full scan plus hash diff.
	ConfigSinceFilter = "since_filter"
)

// DefaultPageSize is the page size when the source does not configure one.
const DefaultPageSize = 100

type gqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type gqlResponse struct {
	Data   map[string]json.RawMessage `json:"data"`
	Errors []gqlError                 `json:"errors"`
}

type gqlError struct {
	Message string `json:"message"`
}

type connectionPage struct {
	PageInfo struct {
		EndCursor   string `json:"endCursor"`
		HasNextPage bool   `json:"hasNextPage"`
	} `json:"pageInfo"`
	Nodes []json.RawMessage `json:"nodes"`
}

// Connector walks a relay-style GraphQL connection.
type Connector struct {
	source      domain.Source
	endpoint    string
	query       string
	rootField   string
	idField     string
	sinceFilter bool
	pageSize    int
	client      *httpclient.Client
	raws        driven.RawStore
}

var _ driven.Connector = (*Connector)(nil)

// New creates a GraphQL connector from source configuration.
func New(source domain.Source, raws driven.RawStore) (*Connector, error) {
	endpoint := source.Config[ConfigEndpoint]
	if endpoint == "" {
		return nil, fmt.Errorf("%w: %s requires %q", domain.ErrInvalidInput, source.ID, ConfigEndpoint)
	}
	query := source.Config[ConfigQuery]
	if query == "" {
		return nil, fmt.Errorf("%w: %s requires %q", domain.ErrInvalidInput, source.ID, ConfigQuery)
	}
	rootField := source.Config[ConfigRootField]
	if rootField == "" {
		rootField = "artworks"
	}
	idField := source.Config[ConfigIDField]
	if idField == "" {
		idField = "id"
	}
	pageSize := source.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	return &Connector{
		source:      source,
		endpoint:    endpoint,
		query:       query,
		rootField:   rootField,
		idField:     idField,
		sinceFilter: source.Config[ConfigSinceFilter] != "false",
		pageSize:    pageSize,
		client: httpclient.New(httpclient.Options{
			Token:     source.APIToken,
			RateLimit: source.RateLimit,
		}),
		raws: raws,
	}, nil
}

// Type returns the connector family identifier.
func (c *Connector) Type() string { return domain.FamilyGraphQL }

// Source returns the configured source id.
func (c *Connector) Source() string { return c.source.ID }

// Capabilities returns what this connector supports.
func (c *Connector) Capabilities() driven.ConnectorCapabilities {
	return driven.ConnectorCapabilities{
		SupportsIncremental:     true,
		FullSnapshot:            !c.sinceFilter,
		SupportsPageCheckpoints: true,
		RequiresAuth:            c.source.APIToken != "",
		SupportsValidation:      true,
	}
}

// Validate fetches the first page with a page size of one.
func (c *Connector) Validate(ctx context.Context) error {
	_, err := c.fetchPage(ctx, "", "", 1)
	return classifyAuth(err)
}

// Bootstrap scans the whole connection.
func (c *Connector) Bootstrap(ctx context.Context) (<-chan domain.RecordChange, <-chan error) {
	return c.stream(ctx, &Cursor{})
}

// Incremental resumes an interrupted scan at its pagination cursor, or
// starts a new scan from the since watermark. Sources without a reliable
// updated-since filter are re-scanned in full and diffed by content hash.
func (c *Connector) Incremental(ctx context.Context, cp domain.Checkpoint) (<-chan domain.RecordChange, <-chan error) {
	cursor, err := decodeCheckpoint(cp)
	if err != nil {
		changes := make(chan domain.RecordChange)
		errs := make(chan error, 1)
		errs <- err
		close(changes)
		close(errs)
		return changes, errs
	}
	return c.stream(ctx, cursor)
}

// Close releases resources.
func (c *Connector) Close() error { return nil }

func (c *Connector) stream(ctx context.Context, cursor *Cursor) (<-chan domain.RecordChange, <-chan error) {
	changes := make(chan domain.RecordChange)
	errs := make(chan error, 1)

	go func() {
		defer close(changes)
		defer close(errs)

		known, err := c.raws.LatestVersions(ctx, c.source.ID, domain.EntityTypeArtwork)
		if err != nil {
			errs <- fmt.Errorf("loading stored versions: %w", err)
			return
		}

		since := cursor.Since
		if !c.sinceFilter {
			since = "" // Full re-scan, diffed against stored hashes
		}
		scanStart := time.Now().UTC().Format(time.RFC3339)
		switch {
		case cursor.ScanStart != "":
			// Resuming: the watermark must cover the interrupted
			// scan's window, not the resume run's.
			scanStart = cursor.ScanStart
		case cursor.After != "":
			// Interrupted scan with no recorded start; the previous
			// watermark is the safe lower bound.
			scanStart = cursor.Since
		}
		after := cursor.After
		prevAfter := ""
		pages := 0

		for {
			page, err := c.fetchPage(ctx, after, since, c.pageSize)
			if err != nil {
				sendErr(ctx, errs, classifyAuth(err))
				return
			}
			pages++

			for _, node := range page.Nodes {
				change, err := c.classify(node, known)
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

			if !page.PageInfo.HasNextPage || len(page.Nodes) == 0 ||
				page.PageInfo.EndCursor == prevAfter {
				break
			}
			prevAfter = after
			after = page.PageInfo.EndCursor

			mid := &Cursor{After: after, Since: since, ScanStart: scanStart}
			if sendErr(ctx, errs, &driven.PageComplete{Checkpoint: mid.checkpoint(c.source.ID)}) {
				return
			}
		}

		logger.Debug("Scanned %d pages from %s", pages, c.source.ID)
		final := &Cursor{Since: scanStart}
		sendErr(ctx, errs, &driven.CheckpointComplete{Checkpoint: final.checkpoint(c.source.ID)})
	}()

	return changes, errs
}

// classify builds a record change for one node, comparing its content hash
// against the last stored version.
func (c *Connector) classify(node json.RawMessage, known map[string]string) (*domain.RecordChange, error) {
	var fields map[string]any
	if err := json.Unmarshal(node, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedPayload, err)
	}
	sourceID := stringField(fields, c.idField)
	if sourceID == "" {
		return nil, domain.ErrMissingSourceID
	}

	record := domain.RawRecord{
		Source:      c.source.ID,
		EntityType:  domain.EntityTypeArtwork,
		SourceID:    sourceID,
		VersionHash: domain.HashPayload(node),
		FetchedAt:   time.Now().UTC(),
		Payload:     node,
	}

	if deleted, _ := fields["deleted"].(bool); deleted {
		record.IsDeleted = true
		return &domain.RecordChange{Type: domain.ChangeDeleted, Record: record}, nil
	}

	prev, seen := known[sourceID]
	switch {
	case seen && prev == record.VersionHash:
		return &domain.RecordChange{
			Type: domain.ChangeUnchanged,
			Record: domain.RawRecord{
				Source:     c.source.ID,
				EntityType: domain.EntityTypeArtwork,
				SourceID:   sourceID,
			},
		}, nil
	case seen:
		return &domain.RecordChange{Type: domain.ChangeUpdated, Record: record}, nil
	default:
		return &domain.RecordChange{Type: domain.ChangeCreated, Record: record}, nil
	}
}

func (c *Connector) fetchPage(ctx context.Context, after, since string, first int) (*connectionPage, error) {
	variables := map[string]any{"first": first}
	if after != "" {
		variables["after"] = after
	}
	if since != "" {
		variables["since"] = since
	}

	var resp gqlResponse
	err := c.client.PostJSON(ctx, c.endpoint, nil, gqlRequest{Query: c.query, Variables: variables}, &resp)
	if err != nil {
		return nil, err
	}
	if len(resp.Errors) > 0 {
		return nil, fmt.Errorf("%w: %s", domain.ErrMalformedPayload, resp.Errors[0].Message)
	}

	raw, ok := resp.Data[c.rootField]
	if !ok {
		return nil, fmt.Errorf("%w: response has no field %q", domain.ErrMalformedPayload, c.rootField)
	}
	var page connectionPage
	if err := json.Unmarshal(raw, &page); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedPayload, err)
	}
	return &page, nil
}

// decodeCheckpoint turns a stored token checkpoint into a cursor.
func decodeCheckpoint(cp domain.Checkpoint) (*Cursor, error) {
	if cp.IsZero() {
		return &Cursor{}, nil
	}
	if cp.Type != domain.CheckpointToken {
		return nil, fmt.Errorf("%w: expected token checkpoint, got %q", domain.ErrInvalidCheckpoint, cp.Type)
	}
	return DecodeCursor(cp.Value)
}

// stringField extracts a string or numeric id from a decoded node.
func stringField(fields map[string]any, key string) string {
	switch v := fields[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatInt(int64(v), 10)
	default:
		return ""
	}
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
