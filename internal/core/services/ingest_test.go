package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artdig/artdig/internal/adapters/driven/storage/memory"
	"github.com/artdig/artdig/internal/core/domain"
	"github.com/artdig/artdig/internal/core/ports/driven"
	"github.com/artdig/artdig/internal/core/ports/driving"
)

// --- Mock implementations for ingest testing ---

// mockConnector implements driven.Connector with a scripted stream: each
// script entry is either a domain.RecordChange (sent on the change channel)
// or an error (sent on the error channel), emitted in order.
type mockConnector struct {
	sourceID          string
	family            string
	caps              driven.ConnectorCapabilities
	bootstrapScript   []any
	incrementalScript []any
	validateErr       error

	started chan struct{} // closed when a stream begins, if non-nil
	block   chan struct{} // stream waits for close before finishing, if non-nil

	closed   bool
	gotCheck *domain.Checkpoint
}

func (m *mockConnector) Type() string   { return m.family }
func (m *mockConnector) Source() string { return m.sourceID }
func (m *mockConnector) Capabilities() driven.ConnectorCapabilities {
	return m.caps
}

func (m *mockConnector) Validate(_ context.Context) error {
	return m.validateErr
}

func (m *mockConnector) Bootstrap(ctx context.Context) (<-chan domain.RecordChange, <-chan error) {
	return m.stream(ctx, m.bootstrapScript)
}

func (m *mockConnector) Incremental(ctx context.Context, cp domain.Checkpoint) (<-chan domain.RecordChange, <-chan error) {
	m.gotCheck = &cp
	return m.stream(ctx, m.incrementalScript)
}

func (m *mockConnector) stream(ctx context.Context, script []any) (<-chan domain.RecordChange, <-chan error) {
	// Both channels are unbuffered so the consumer observes script entries
	// in exactly the scripted order.
	changes := make(chan domain.RecordChange)
	errs := make(chan error)

	go func() {
		defer close(changes)
		defer close(errs)

		if m.started != nil {
			close(m.started)
		}
		for _, entry := range script {
			switch v := entry.(type) {
			case domain.RecordChange:
				select {
				case <-ctx.Done():
					return
				case changes <- v:
				}
			case error:
				select {
				case <-ctx.Done():
					return
				case errs <- v:
				}
			}
		}
		if m.block != nil {
			select {
			case <-ctx.Done():
			case <-m.block:
			}
		}
	}()

	return changes, errs
}

func (m *mockConnector) Close() error {
	m.closed = true
	return nil
}

// mockFactory implements driven.ConnectorFactory.
type mockFactory struct {
	connectors map[string]*mockConnector
	createErr  error
}

func newMockFactory() *mockFactory {
	return &mockFactory{connectors: make(map[string]*mockConnector)}
}

func (f *mockFactory) Create(_ context.Context, source domain.Source) (driven.Connector, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	if conn, ok := f.connectors[source.ID]; ok {
		return conn, nil
	}
	return nil, errors.New("no connector configured for source")
}

func (f *mockFactory) SupportedFamilies() []string { return nil }

// testNormaliser maps JSON payloads of the form {"id": ..., "title": ...}
// to artworks. A missing "id" falls back to the raw source id; a "fail"
// key makes normalisation error.
type testNormaliser struct {
	source string
}

func (n *testNormaliser) Source() string        { return n.source }
func (n *testNormaliser) EntityTypes() []string { return nil }

func (n *testNormaliser) Normalise(_ context.Context, raw *domain.RawRecord) (*domain.Artwork, error) {
	var fields map[string]string
	if err := json.Unmarshal(raw.Payload, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedPayload, err)
	}
	if _, ok := fields["fail"]; ok {
		return nil, domain.ErrMissingSourceID
	}
	id := fields["id"]
	if id == "" {
		id = raw.SourceID
	}
	return &domain.Artwork{
		RecordID: domain.MakeRecordID(raw.Source, id),
		Source:   raw.Source,
		SourceID: id,
		Title:    fields["title"],
	}, nil
}

// --- Script helpers ---

func changeOf(t domain.ChangeType, source, sourceID, payload string) domain.RecordChange {
	rec := domain.RawRecord{
		Source:     source,
		EntityType: domain.EntityTypeArtwork,
		SourceID:   sourceID,
		FetchedAt:  time.Now().UTC(),
	}
	if payload != "" {
		rec.Payload = []byte(payload)
		rec.VersionHash = domain.HashPayload(rec.Payload)
	}
	return domain.RecordChange{Type: t, Record: rec}
}

func created(source, sourceID, title string) domain.RecordChange {
	return changeOf(domain.ChangeCreated, source, sourceID, `{"title":"`+title+`"}`)
}

func updated(source, sourceID, title string) domain.RecordChange {
	return changeOf(domain.ChangeUpdated, source, sourceID, `{"title":"`+title+`"}`)
}

func deleted(source, sourceID string) domain.RecordChange {
	c := changeOf(domain.ChangeDeleted, source, sourceID, "")
	c.Record.IsDeleted = true
	return c
}

func unchanged(source, sourceID string) domain.RecordChange {
	return changeOf(domain.ChangeUnchanged, source, sourceID, "")
}

func pageDone(source, value string) error {
	return &driven.PageComplete{Checkpoint: domain.Checkpoint{
		Source: source, Type: domain.CheckpointPage, Value: value,
	}}
}

func streamDone(source, value string) error {
	return &driven.CheckpointComplete{Checkpoint: domain.Checkpoint{
		Source: source, Type: domain.CheckpointToken, Value: value,
	}}
}

// --- Test harness ---

type harness struct {
	store    *memory.Store
	factory  *mockFactory
	ingestor *Ingestor
}

func newHarness(sources ...domain.Source) *harness {
	store := memory.NewStore()
	factory := newMockFactory()

	registry := NewNormaliserRegistry()
	for _, s := range sources {
		registry.Register(&testNormaliser{source: s.ID})
	}

	ingestor := NewIngestor(
		memory.NewSourceStore(sources...),
		store.CheckpointStore(),
		store.CatalogueStore(),
		store.RawStore(),
		store.RunStore(),
		store.BatchWriter(),
		factory,
		registry,
	)
	return &harness{store: store, factory: factory, ingestor: ingestor}
}

func feedSource(id string) domain.Source {
	return domain.Source{ID: id, Family: domain.FamilyFeed, Name: id}
}

func snapshotSource(id string) domain.Source {
	return domain.Source{ID: id, Family: domain.FamilyBulkCSV, Name: id}
}

var snapshotCaps = driven.ConnectorCapabilities{
	SupportsIncremental: true,
	FullSnapshot:        true,
}

var feedCaps = driven.ConnectorCapabilities{
	SupportsIncremental:     true,
	SupportsPageCheckpoints: true,
}

// --- Tests ---

func TestRunBootstrapSucceeds(t *testing.T) {
	h := newHarness(feedSource("met"))
	h.factory.connectors["met"] = &mockConnector{
		sourceID: "met",
		family:   domain.FamilyFeed,
		caps:     feedCaps,
		bootstrapScript: []any{
			created("met", "1", "Olive Trees"),
			created("met", "2", "Wheat Field"),
			created("met", "3", "Irises"),
			streamDone("met", "cp-1"),
		},
	}

	run, err := h.ingestor.Run(context.Background(), "met", driving.RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, domain.RunSucceeded, run.Status)
	assert.Equal(t, 3, run.Stats.Created)
	assert.Zero(t, run.Stats.Errors)

	artwork, err := h.store.CatalogueStore().Get(context.Background(), "met:2")
	require.NoError(t, err)
	assert.Equal(t, "Wheat Field", artwork.Title)
	assert.NotEmpty(t, artwork.VersionHash)

	cp, err := h.store.CheckpointStore().Get(context.Background(), "met")
	require.NoError(t, err)
	assert.Equal(t, "cp-1", cp.Value)
	assert.False(t, cp.LastSuccessAt.IsZero())

	assert.True(t, h.factory.connectors["met"].closed)
}

func TestRunIncrementalUsesStoredCheckpoint(t *testing.T) {
	h := newHarness(feedSource("getty"))
	conn := &mockConnector{
		sourceID: "getty",
		family:   domain.FamilyFeed,
		caps:     feedCaps,
		bootstrapScript: []any{
			created("getty", "a", "First"),
			streamDone("getty", "page-1"),
		},
		incrementalScript: []any{
			updated("getty", "a", "First, revised"),
			created("getty", "b", "Second"),
			streamDone("getty", "page-2"),
		},
	}
	h.factory.connectors["getty"] = conn

	_, err := h.ingestor.Run(context.Background(), "getty", driving.RunOptions{})
	require.NoError(t, err)

	run, err := h.ingestor.Run(context.Background(), "getty", driving.RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, domain.RunSucceeded, run.Status)
	assert.Equal(t, 1, run.Stats.Created)
	assert.Equal(t, 1, run.Stats.Updated)

	require.NotNil(t, conn.gotCheck)
	assert.Equal(t, "page-1", conn.gotCheck.Value)

	artwork, err := h.store.CatalogueStore().Get(context.Background(), "getty:a")
	require.NoError(t, err)
	assert.Equal(t, "First, revised", artwork.Title)
}

func TestRunForceBootstrapIgnoresCheckpoint(t *testing.T) {
	h := newHarness(feedSource("getty"))
	conn := &mockConnector{
		sourceID: "getty",
		family:   domain.FamilyFeed,
		caps:     feedCaps,
		bootstrapScript: []any{
			created("getty", "a", "First"),
			streamDone("getty", "page-1"),
		},
	}
	h.factory.connectors["getty"] = conn

	_, err := h.ingestor.Run(context.Background(), "getty", driving.RunOptions{})
	require.NoError(t, err)

	_, err = h.ingestor.Run(context.Background(), "getty", driving.RunOptions{ForceBootstrap: true})
	require.NoError(t, err)
	assert.Nil(t, conn.gotCheck, "Incremental should not have been called")
}

func TestRunPartialKeepsCommittedPages(t *testing.T) {
	h := newHarness(feedSource("getty"))
	h.factory.connectors["getty"] = &mockConnector{
		sourceID: "getty",
		family:   domain.FamilyFeed,
		caps:     feedCaps,
		bootstrapScript: []any{
			created("getty", "a", "Page one record"),
			pageDone("getty", "1"),
			created("getty", "b", "Page two record"),
			errors.New("connection reset"),
		},
	}

	run, err := h.ingestor.Run(context.Background(), "getty", driving.RunOptions{})
	require.Error(t, err)
	assert.Equal(t, domain.RunPartial, run.Status)
	assert.Contains(t, run.ErrorText, "connection reset")

	// Page one committed with its checkpoint; the interrupted page did not
	// advance the cursor.
	cp, err := h.store.CheckpointStore().Get(context.Background(), "getty")
	require.NoError(t, err)
	assert.Equal(t, "1", cp.Value)

	_, err = h.store.CatalogueStore().Get(context.Background(), "getty:a")
	assert.NoError(t, err)
	_, err = h.store.CatalogueStore().Get(context.Background(), "getty:b")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRunStatsCountOnlyCommittedRows(t *testing.T) {
	h := newHarness(feedSource("getty"))
	h.factory.connectors["getty"] = &mockConnector{
		sourceID: "getty",
		family:   domain.FamilyFeed,
		caps:     feedCaps,
		bootstrapScript: []any{
			created("getty", "a", "Committed"),
			updated("getty", "b", "Also committed"),
			pageDone("getty", "1"),
			created("getty", "c", "Discarded with its page"),
			deleted("getty", "d"),
			errors.New("connection reset"),
		},
	}

	run, err := h.ingestor.Run(context.Background(), "getty", driving.RunOptions{})
	require.Error(t, err)
	assert.Equal(t, domain.RunPartial, run.Status)

	// The interrupted page's buffered rows were discarded, so the ledger
	// counts only what page one made durable.
	assert.Equal(t, 1, run.Stats.Created)
	assert.Equal(t, 1, run.Stats.Updated)
	assert.Zero(t, run.Stats.Deleted)
}

func TestRunFailedAdvancesNothing(t *testing.T) {
	h := newHarness(feedSource("getty"))
	h.factory.connectors["getty"] = &mockConnector{
		sourceID: "getty",
		family:   domain.FamilyFeed,
		caps:     feedCaps,
		bootstrapScript: []any{
			created("getty", "a", "Never committed"),
			errors.New("boom"),
		},
	}

	run, err := h.ingestor.Run(context.Background(), "getty", driving.RunOptions{})
	require.Error(t, err)
	assert.Equal(t, domain.RunFailed, run.Status)

	_, err = h.store.CheckpointStore().Get(context.Background(), "getty")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = h.store.CatalogueStore().Get(context.Background(), "getty:a")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRunRecordErrorsDoNotFailRun(t *testing.T) {
	h := newHarness(feedSource("met"))
	h.factory.connectors["met"] = &mockConnector{
		sourceID: "met",
		family:   domain.FamilyFeed,
		caps:     feedCaps,
		bootstrapScript: []any{
			created("met", "1", "Good"),
			&driven.RecordError{SourceID: "2", Err: errors.New("bad row")},
			changeOf(domain.ChangeCreated, "met", "3", `{"fail":"yes"}`),
			created("met", "4", "Also good"),
			streamDone("met", "cp"),
		},
	}

	run, err := h.ingestor.Run(context.Background(), "met", driving.RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, domain.RunSucceeded, run.Status)
	assert.Equal(t, 2, run.Stats.Created)
	assert.Equal(t, 2, run.Stats.Errors)

	cp, err := h.store.CheckpointStore().Get(context.Background(), "met")
	require.NoError(t, err)
	assert.Equal(t, "cp", cp.Value)
}

func TestRunCollisionKeepsFirstRecord(t *testing.T) {
	h := newHarness(feedSource("met"))
	h.factory.connectors["met"] = &mockConnector{
		sourceID: "met",
		family:   domain.FamilyFeed,
		caps:     feedCaps,
		bootstrapScript: []any{
			changeOf(domain.ChangeCreated, "met", "raw-1", `{"id":"77","title":"First claim"}`),
			changeOf(domain.ChangeCreated, "met", "raw-2", `{"id":"77","title":"Second claim"}`),
			streamDone("met", "cp"),
		},
	}

	run, err := h.ingestor.Run(context.Background(), "met", driving.RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, domain.RunSucceeded, run.Status)
	assert.Equal(t, 1, run.Stats.Created)
	assert.Equal(t, 1, run.Stats.Collisions)

	artwork, err := h.store.CatalogueStore().Get(context.Background(), "met:77")
	require.NoError(t, err)
	assert.Equal(t, "First claim", artwork.Title)
}

func TestRunDeleteTombstones(t *testing.T) {
	h := newHarness(feedSource("getty"))
	conn := &mockConnector{
		sourceID: "getty",
		family:   domain.FamilyFeed,
		caps:     feedCaps,
		bootstrapScript: []any{
			created("getty", "a", "To be removed"),
			streamDone("getty", "cp-1"),
		},
		incrementalScript: []any{
			deleted("getty", "a"),
			streamDone("getty", "cp-2"),
		},
	}
	h.factory.connectors["getty"] = conn

	_, err := h.ingestor.Run(context.Background(), "getty", driving.RunOptions{})
	require.NoError(t, err)

	run, err := h.ingestor.Run(context.Background(), "getty", driving.RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, run.Stats.Deleted)

	artwork, err := h.store.CatalogueStore().Get(context.Background(), "getty:a")
	require.NoError(t, err)
	assert.True(t, artwork.IsDeleted)
	require.NotNil(t, artwork.DeletedAt)
}

func TestRunSnapshotGraceTombstoning(t *testing.T) {
	h := newHarness(snapshotSource("met"))
	conn := &mockConnector{
		sourceID: "met",
		family:   domain.FamilyBulkCSV,
		caps:     snapshotCaps,
		bootstrapScript: []any{
			created("met", "1", "Kept"),
			created("met", "2", "Dropped from dump"),
			streamDone("met", "v1"),
		},
		incrementalScript: []any{
			unchanged("met", "1"),
			streamDone("met", "v2"),
		},
	}
	h.factory.connectors["met"] = conn

	_, err := h.ingestor.Run(context.Background(), "met", driving.RunOptions{})
	require.NoError(t, err)

	// First absent run: within grace, still active.
	run, err := h.ingestor.Run(context.Background(), "met", driving.RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, domain.RunSucceeded, run.Status)
	assert.Equal(t, 1, run.Stats.Unchanged)

	artwork, err := h.store.CatalogueStore().Get(context.Background(), "met:2")
	require.NoError(t, err)
	assert.False(t, artwork.IsDeleted)
	assert.Equal(t, 1, artwork.MissingRuns)

	// Second absent run: grace exhausted, tombstoned.
	_, err = h.ingestor.Run(context.Background(), "met", driving.RunOptions{})
	require.NoError(t, err)

	artwork, err = h.store.CatalogueStore().Get(context.Background(), "met:2")
	require.NoError(t, err)
	assert.True(t, artwork.IsDeleted)

	// The record that stayed present never accumulated absences.
	artwork, err = h.store.CatalogueStore().Get(context.Background(), "met:1")
	require.NoError(t, err)
	assert.False(t, artwork.IsDeleted)
	assert.Zero(t, artwork.MissingRuns)
}

func TestRunSnapshotReappearanceResetsGrace(t *testing.T) {
	h := newHarness(snapshotSource("met"))
	conn := &mockConnector{
		sourceID: "met",
		family:   domain.FamilyBulkCSV,
		caps:     snapshotCaps,
		bootstrapScript: []any{
			created("met", "1", "Flickering"),
			streamDone("met", "v1"),
		},
		incrementalScript: []any{
			streamDone("met", "v2"),
		},
	}
	h.factory.connectors["met"] = conn

	_, err := h.ingestor.Run(context.Background(), "met", driving.RunOptions{})
	require.NoError(t, err)

	// Absent once.
	_, err = h.ingestor.Run(context.Background(), "met", driving.RunOptions{})
	require.NoError(t, err)

	artwork, err := h.store.CatalogueStore().Get(context.Background(), "met:1")
	require.NoError(t, err)
	assert.Equal(t, 1, artwork.MissingRuns)

	// Reappears: counter resets, no tombstone on the next absence either.
	conn.incrementalScript = []any{
		unchanged("met", "1"),
		streamDone("met", "v3"),
	}
	_, err = h.ingestor.Run(context.Background(), "met", driving.RunOptions{})
	require.NoError(t, err)

	artwork, err = h.store.CatalogueStore().Get(context.Background(), "met:1")
	require.NoError(t, err)
	assert.Zero(t, artwork.MissingRuns)
	assert.False(t, artwork.IsDeleted)
}

func TestRunPageLimitEndsPartial(t *testing.T) {
	h := newHarness(feedSource("getty"))
	h.factory.connectors["getty"] = &mockConnector{
		sourceID: "getty",
		family:   domain.FamilyFeed,
		caps:     feedCaps,
		bootstrapScript: []any{
			created("getty", "a", "One"),
			pageDone("getty", "1"),
			created("getty", "b", "Two"),
			pageDone("getty", "2"),
			created("getty", "c", "Three"),
			streamDone("getty", "3"),
		},
	}

	run, err := h.ingestor.Run(context.Background(), "getty", driving.RunOptions{PageLimit: 1})
	require.NoError(t, err)
	assert.Equal(t, domain.RunPartial, run.Status)

	cp, err := h.store.CheckpointStore().Get(context.Background(), "getty")
	require.NoError(t, err)
	assert.Equal(t, "1", cp.Value)
}

func TestRunSingleFlightPerSource(t *testing.T) {
	h := newHarness(feedSource("met"))
	conn := &mockConnector{
		sourceID: "met",
		family:   domain.FamilyFeed,
		caps:     feedCaps,
		started:  make(chan struct{}),
		block:    make(chan struct{}),
		bootstrapScript: []any{
			created("met", "1", "Held open"),
			streamDone("met", "cp"),
		},
	}
	h.factory.connectors["met"] = conn

	type result struct {
		run *domain.IngestRun
		err error
	}
	first := make(chan result, 1)
	go func() {
		run, err := h.ingestor.Run(context.Background(), "met", driving.RunOptions{})
		first <- result{run, err}
	}()

	<-conn.started
	_, err := h.ingestor.Run(context.Background(), "met", driving.RunOptions{})
	assert.ErrorIs(t, err, domain.ErrIngestInProgress)

	close(conn.block)
	res := <-first
	require.NoError(t, res.err)
	assert.Equal(t, domain.RunSucceeded, res.run.Status)
}

func TestRunValidationFailureFailsRun(t *testing.T) {
	h := newHarness(feedSource("met"))
	h.factory.connectors["met"] = &mockConnector{
		sourceID:    "met",
		family:      domain.FamilyFeed,
		caps:        driven.ConnectorCapabilities{SupportsValidation: true},
		validateErr: domain.ErrAuthInvalid,
	}

	run, err := h.ingestor.Run(context.Background(), "met", driving.RunOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrConnectorValidation)
	assert.ErrorIs(t, err, domain.ErrAuthInvalid)
	assert.Equal(t, domain.RunFailed, run.Status)
}

func TestRunUnknownSource(t *testing.T) {
	h := newHarness(feedSource("met"))

	_, err := h.ingestor.Run(context.Background(), "nope", driving.RunOptions{})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRunAllIsolatesFailures(t *testing.T) {
	h := newHarness(feedSource("met"), feedSource("getty"))
	h.factory.connectors["met"] = &mockConnector{
		sourceID: "met",
		family:   domain.FamilyFeed,
		caps:     feedCaps,
		bootstrapScript: []any{
			errors.New("met is down"),
		},
	}
	h.factory.connectors["getty"] = &mockConnector{
		sourceID: "getty",
		family:   domain.FamilyFeed,
		caps:     feedCaps,
		bootstrapScript: []any{
			created("getty", "a", "Fine"),
			streamDone("getty", "cp"),
		},
	}

	runs, err := h.ingestor.RunAll(context.Background(), driving.RunOptions{})
	require.Error(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, domain.RunFailed, runs[0].Status)
	assert.Equal(t, domain.RunSucceeded, runs[1].Status)

	_, gettyErr := h.store.CatalogueStore().Get(context.Background(), "getty:a")
	assert.NoError(t, gettyErr)
}

func TestRunLedgerEntryAlwaysWritten(t *testing.T) {
	h := newHarness(feedSource("met"))
	h.factory.connectors["met"] = &mockConnector{
		sourceID: "met",
		family:   domain.FamilyFeed,
		caps:     feedCaps,
		bootstrapScript: []any{
			errors.New("immediate failure"),
		},
	}

	run, err := h.ingestor.Run(context.Background(), "met", driving.RunOptions{})
	require.Error(t, err)

	stored, err := h.store.RunStore().Get(context.Background(), run.RunID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunFailed, stored.Status)
	assert.NotEmpty(t, stored.ErrorText)
	assert.False(t, stored.EndedAt.IsZero())
}

func TestRunRevivesTombstonedRecord(t *testing.T) {
	h := newHarness(feedSource("getty"))
	conn := &mockConnector{
		sourceID: "getty",
		family:   domain.FamilyFeed,
		caps:     feedCaps,
		bootstrapScript: []any{
			created("getty", "a", "Original"),
			streamDone("getty", "cp-1"),
		},
		incrementalScript: []any{
			deleted("getty", "a"),
			streamDone("getty", "cp-2"),
		},
	}
	h.factory.connectors["getty"] = conn

	_, err := h.ingestor.Run(context.Background(), "getty", driving.RunOptions{})
	require.NoError(t, err)
	_, err = h.ingestor.Run(context.Background(), "getty", driving.RunOptions{})
	require.NoError(t, err)

	conn.incrementalScript = []any{
		updated("getty", "a", "Back again"),
		streamDone("getty", "cp-3"),
	}
	_, err = h.ingestor.Run(context.Background(), "getty", driving.RunOptions{})
	require.NoError(t, err)

	artwork, err := h.store.CatalogueStore().Get(context.Background(), "getty:a")
	require.NoError(t, err)
	assert.False(t, artwork.IsDeleted)
	assert.Nil(t, artwork.DeletedAt)
	assert.Equal(t, "Back again", artwork.Title)
}

func TestProgressReflectsActiveRun(t *testing.T) {
	h := newHarness(feedSource("met"))
	conn := &mockConnector{
		sourceID: "met",
		family:   domain.FamilyFeed,
		caps:     feedCaps,
		started:  make(chan struct{}),
		block:    make(chan struct{}),
		bootstrapScript: []any{
			created("met", "1", "In flight"),
			streamDone("met", "cp"),
		},
	}
	h.factory.connectors["met"] = conn

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = h.ingestor.Run(context.Background(), "met", driving.RunOptions{})
	}()

	<-conn.started
	progress, err := h.ingestor.Progress(context.Background(), "met")
	require.NoError(t, err)
	assert.True(t, progress.Running)
	assert.NotEmpty(t, progress.RunID)

	close(conn.block)
	<-done

	progress, err = h.ingestor.Progress(context.Background(), "met")
	require.NoError(t, err)
	assert.False(t, progress.Running)
}
