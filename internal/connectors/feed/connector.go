// Package feed implements the activity-stream connector family. The source
// publishes an ordered collection of change events split into numbered
// pages; Create and Update events are dereferenced to fetch the full record,
// Delete events pass through as tombstone signals. The page number is the
// durable cursor.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/artdig/artdig/internal/connectors/httpclient"
	"github.com/artdig/artdig/internal/core/domain"
	"github.com/artdig/artdig/internal/core/ports/driven"
	"github.com/artdig/artdig/internal/logger"
)

// ConfigEndpoint is the activity stream root URL.
const ConfigEndpoint = "endpoint"

// Event types in the stream.
const (
	eventCreate = "Create"
	eventUpdate = "Update"
	eventDelete = "Delete"
	eventMove   = "Move"
)

// collection is the stream root document.
type collection struct {
	Last pageRef `json:"last"`
}

type pageRef struct {
	ID string `json:"id"`
}

// streamPage is one page of ordered events.
type streamPage struct {
	OrderedItems []activityItem `json:"orderedItems"`
}

type activityItem struct {
	Type    string  `json:"type"`
	EndTime string  `json:"endTime"`
	Object  pageRef `json:"object"`
}

// Connector walks an activity stream.
type Connector struct {
	source   domain.Source
	endpoint string
	client   *httpclient.Client
}

var _ driven.Connector = (*Connector)(nil)

// New creates a feed connector from source configuration.
func New(source domain.Source) (*Connector, error) {
	endpoint := strings.TrimRight(source.Config[ConfigEndpoint], "/")
	if endpoint == "" {
		return nil, fmt.Errorf("%w: %s requires %q", domain.ErrInvalidInput, source.ID, ConfigEndpoint)
	}
	return &Connector{
		source:   source,
		endpoint: endpoint,
		client: httpclient.New(httpclient.Options{
			Token:     source.APIToken,
			RateLimit: source.RateLimit,
		}),
	}, nil
}

// Type returns the connector family identifier.
func (c *Connector) Type() string { return domain.FamilyFeed }

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

// Validate fetches the stream root.
func (c *Connector) Validate(ctx context.Context) error {
	_, err := c.lastPage(ctx)
	return classifyAuth(err)
}

// Bootstrap walks the stream from page 1.
func (c *Connector) Bootstrap(ctx context.Context) (<-chan domain.RecordChange, <-chan error) {
	return c.stream(ctx, 1)
}

// Incremental resumes at the checkpointed page. The last committed page is
// re-fetched because the source appends new events to it, which keeps the
// window inclusive.
func (c *Connector) Incremental(ctx context.Context, cp domain.Checkpoint) (<-chan domain.RecordChange, <-chan error) {
	start, err := decodeCheckpoint(cp)
	if err != nil {
		changes := make(chan domain.RecordChange)
		errs := make(chan error, 1)
		errs <- err
		close(changes)
		close(errs)
		return changes, errs
	}
	return c.stream(ctx, start)
}

// Close releases resources.
func (c *Connector) Close() error { return nil }

func (c *Connector) stream(ctx context.Context, startPage int) (<-chan domain.RecordChange, <-chan error) {
	changes := make(chan domain.RecordChange)
	errs := make(chan error, 1)

	go func() {
		defer close(changes)
		defer close(errs)

		last, err := c.lastPage(ctx)
		if err != nil {
			errs <- classifyAuth(err)
			return
		}
		if startPage < 1 {
			startPage = 1
		}
		logger.Debug("Walking %s pages %d..%d", c.source.ID, startPage, last)

		// The cursor only advances over a clean prefix: once a page has a
		// failed dereference, later pages still stream records but the
		// checkpoint stays put so a later run replays from the gap.
		cleanPrefix := true
		committed := startPage - 1

		for page := startPage; page <= last; page++ {
			clean, fatal := c.streamOnePage(ctx, page, changes, errs)
			if fatal {
				return
			}
			if !clean {
				cleanPrefix = false
			}
			if cleanPrefix {
				committed = page
				if sendErr(ctx, errs, &driven.PageComplete{Checkpoint: pageCheckpoint(c.source.ID, page)}) {
					return
				}
			}
		}

		sendErr(ctx, errs, &driven.CheckpointComplete{Checkpoint: pageCheckpoint(c.source.ID, committed)})
	}()

	return changes, errs
}

// streamOnePage emits all events of one page. Returns clean=false when any
// record on the page failed, and fatal=true when the whole stream must stop.
func (c *Connector) streamOnePage(ctx context.Context, page int, changes chan<- domain.RecordChange, errs chan<- error) (clean bool, fatal bool) {
	var p streamPage
	url := fmt.Sprintf("%s/page/%d", c.endpoint, page)
	if err := c.client.GetJSON(ctx, url, nil, &p); err != nil {
		sendErr(ctx, errs, classifyAuth(fmt.Errorf("fetching page %d: %w", page, err)))
		return false, true
	}

	clean = true
	for _, item := range p.OrderedItems {
		sourceID := tailSegment(item.Object.ID)
		if sourceID == "" {
			clean = false
			if sendErr(ctx, errs, &driven.RecordError{Err: domain.ErrMissingSourceID}) {
				return clean, true
			}
			continue
		}

		record := domain.RawRecord{
			Source:     c.source.ID,
			EntityType: domain.EntityTypeArtwork,
			SourceID:   sourceID,
			FetchedAt:  time.Now().UTC(),
		}
		if ts, err := time.Parse(time.RFC3339, item.EndTime); err == nil {
			record.EventTime = &ts
		}

		var change domain.RecordChange
		switch item.Type {
		case eventDelete:
			payload, _ := json.Marshal(item) //nolint:errcheck // struct always marshals
			record.Payload = payload
			record.VersionHash = domain.HashPayload(payload)
			record.IsDeleted = true
			change = domain.RecordChange{Type: domain.ChangeDeleted, Record: record}

		case eventCreate, eventUpdate, eventMove:
			payload, err := c.client.Get(ctx, item.Object.ID, nil)
			if err != nil {
				clean = false
				if httpclient.IsUnauthorized(err) || httpclient.IsForbidden(err) {
					sendErr(ctx, errs, classifyAuth(err))
					return clean, true
				}
				if sendErr(ctx, errs, &driven.RecordError{SourceID: sourceID, Err: err}) {
					return clean, true
				}
				continue
			}
			record.Payload = payload
			record.VersionHash = domain.HashPayload(payload)
			changeType := domain.ChangeUpdated
			if item.Type == eventCreate {
				changeType = domain.ChangeCreated
			}
			change = domain.RecordChange{Type: changeType, Record: record}

		default:
			continue // Unknown event types are ignored
		}

		select {
		case <-ctx.Done():
			return clean, true
		case changes <- change:
		}
	}
	return clean, false
}

// lastPage resolves the final page number from the stream root.
func (c *Connector) lastPage(ctx context.Context) (int, error) {
	var root collection
	if err := c.client.GetJSON(ctx, c.endpoint, nil, &root); err != nil {
		return 0, fmt.Errorf("fetching stream root: %w", err)
	}
	n, err := strconv.Atoi(tailSegment(root.Last.ID))
	if err != nil {
		return 0, fmt.Errorf("%w: cannot resolve last page from %q", domain.ErrMalformedPayload, root.Last.ID)
	}
	return n, nil
}

func pageCheckpoint(source string, page int) domain.Checkpoint {
	return domain.Checkpoint{
		Source: source,
		Type:   domain.CheckpointPage,
		Value:  strconv.Itoa(page),
	}
}

// decodeCheckpoint turns a stored page checkpoint into the resume page.
func decodeCheckpoint(cp domain.Checkpoint) (int, error) {
	if cp.IsZero() {
		return 1, nil
	}
	if cp.Type != domain.CheckpointPage {
		return 0, fmt.Errorf("%w: expected page checkpoint, got %q", domain.ErrInvalidCheckpoint, cp.Type)
	}
	page, err := strconv.Atoi(cp.Value)
	if err != nil || page < 0 {
		return 0, fmt.Errorf("%w: bad page number %q", domain.ErrInvalidCheckpoint, cp.Value)
	}
	if page < 1 {
		page = 1 // Page 0 means nothing covered yet
	}
	return page, nil
}

// tailSegment returns the last path segment of a URL.
func tailSegment(url string) string {
	url = strings.TrimRight(url, "/")
	if i := strings.LastIndex(url, "/"); i >= 0 {
		return url[i+1:]
	}
	return url
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
