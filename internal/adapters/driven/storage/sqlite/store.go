// Package sqlite is the durable storage backend. One database file holds
// raw record versions, the canonical artwork catalogue, per-source
// checkpoints and the run ledger, so a batch and its checkpoint commit in
// a single transaction.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/artdig/artdig/internal/adapters/driven/storage/sqlite/migrations"
	"github.com/artdig/artdig/internal/core/domain"
	"github.com/artdig/artdig/internal/core/ports/driven"
)

// Store is a unified SQLite-based storage that provides access to all
// catalogue store interfaces through wrapper types.
type Store struct {
	db   *sql.DB
	path string
}

// NewStore creates a new SQLite store at the specified data directory.
// If dataDir is empty, defaults to ~/.artdig/data/catalogue.db.
func NewStore(dataDir string) (*Store, error) {
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".artdig", "data")
	}

	// Ensure directory exists
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "catalogue.db")

	// Open database with WAL mode for better concurrency
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{
		db:   db,
		path: dbPath,
	}

	// Run migrations
	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// RawStore returns a RawStore interface backed by this store.
func (s *Store) RawStore() driven.RawStore {
	return &rawStore{store: s}
}

// CatalogueStore returns a CatalogueStore interface backed by this store.
func (s *Store) CatalogueStore() driven.CatalogueStore {
	return &catalogueStore{store: s}
}

// CheckpointStore returns a CheckpointStore interface backed by this store.
func (s *Store) CheckpointStore() driven.CheckpointStore {
	return &checkpointStore{store: s}
}

// RunStore returns a RunStore interface backed by this store.
func (s *Store) RunStore() driven.RunStore {
	return &runStore{store: s}
}

// BatchWriter returns a BatchWriter interface backed by this store.
func (s *Store) BatchWriter() driven.BatchWriter {
	return &batchWriter{store: s}
}

// migrate runs all pending migrations.
func (s *Store) migrate(fsys embed.FS) error {
	// Ensure schema_migrations table exists
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	// Get current version
	var currentVersion int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	// Find all up migrations
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	// Sort and run migrations
	var upFiles []string
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasSuffix(name, ".up.sql") {
			upFiles = append(upFiles, name)
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		// Extract version number (e.g., "001_initial.up.sql" -> 1)
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue // Skip files that don't match pattern
		}

		if version <= currentVersion {
			continue // Already applied
		}

		// Read and execute migration
		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}

		if _, err := s.db.Exec(string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
	}

	return nil
}

// ==================== Raw Store ====================

// rawStore implements driven.RawStore.
type rawStore struct {
	store *Store
}

var _ driven.RawStore = (*rawStore)(nil)

// Get retrieves one raw record version.
func (s *rawStore) Get(ctx context.Context, source, entityType, sourceID, versionHash string) (*domain.RawRecord, error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT source, entity_type, source_id, version_hash, fetched_at, event_time, payload, is_deleted
		FROM raw_records
		WHERE source = ? AND entity_type = ? AND source_id = ? AND version_hash = ?
	`, source, entityType, sourceID, versionHash)

	raw, err := scanRawRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning raw record: %w", err)
	}
	return raw, nil
}

// LatestVersions returns the most recently fetched version hash per source id.
func (s *rawStore) LatestVersions(ctx context.Context, source, entityType string) (map[string]string, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT source_id, version_hash
		FROM raw_records r
		WHERE source = ? AND entity_type = ?
		AND fetched_at = (
			SELECT MAX(fetched_at) FROM raw_records
			WHERE source = r.source AND entity_type = r.entity_type AND source_id = r.source_id
		)
	`, source, entityType)
	if err != nil {
		return nil, fmt.Errorf("querying latest versions: %w", err)
	}
	defer rows.Close()

	latest := make(map[string]string)
	for rows.Next() {
		var sourceID, versionHash string
		if err := rows.Scan(&sourceID, &versionHash); err != nil {
			return nil, fmt.Errorf("scanning version: %w", err)
		}
		latest[sourceID] = versionHash
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating versions: %w", err)
	}
	return latest, nil
}

// ListVersions returns all stored versions for one source record, newest first.
func (s *rawStore) ListVersions(ctx context.Context, source, entityType, sourceID string) ([]domain.RawRecord, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT source, entity_type, source_id, version_hash, fetched_at, event_time, payload, is_deleted
		FROM raw_records
		WHERE source = ? AND entity_type = ? AND source_id = ?
		ORDER BY fetched_at DESC
	`, source, entityType, sourceID)
	if err != nil {
		return nil, fmt.Errorf("querying versions: %w", err)
	}
	defer rows.Close()

	var records []domain.RawRecord //nolint:prealloc // size unknown from query
	for rows.Next() {
		raw, err := scanRawRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning raw record: %w", err)
		}
		records = append(records, *raw)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating raw records: %w", err)
	}
	return records, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRawRecord(row rowScanner) (*domain.RawRecord, error) {
	var raw domain.RawRecord
	var eventTime sql.NullTime
	var isDeleted int
	if err := row.Scan(&raw.Source, &raw.EntityType, &raw.SourceID, &raw.VersionHash,
		&raw.FetchedAt, &eventTime, &raw.Payload, &isDeleted); err != nil {
		return nil, err
	}
	if eventTime.Valid {
		t := eventTime.Time
		raw.EventTime = &t
	}
	raw.IsDeleted = isDeleted != 0
	return &raw, nil
}

// ==================== Catalogue Store ====================

// catalogueStore implements driven.CatalogueStore.
type catalogueStore struct {
	store *Store
}

var _ driven.CatalogueStore = (*catalogueStore)(nil)

const artworkColumns = `record_id, source, source_id, title, artist_name, artist_nationality,
	artist_birth_year, artist_death_year, date_display, date_start, date_end,
	medium, dimensions, classification, culture, period, department, credit_line,
	is_public_domain, license, rights_statement, image_url, thumbnail_url, source_url,
	wikidata_id, accession_number, extras, version_hash, fetched_at,
	is_deleted, deleted_at, missing_runs`

// Get retrieves one artwork by record id.
func (s *catalogueStore) Get(ctx context.Context, recordID string) (*domain.Artwork, error) {
	row := s.store.db.QueryRowContext(ctx,
		`SELECT `+artworkColumns+` FROM artworks WHERE record_id = ?`, recordID)

	artwork, err := scanArtwork(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning artwork: %w", err)
	}
	return artwork, nil
}

// ListBySource returns all artworks for a source, including tombstones.
func (s *catalogueStore) ListBySource(ctx context.Context, source string) ([]domain.Artwork, error) {
	rows, err := s.store.db.QueryContext(ctx,
		`SELECT `+artworkColumns+` FROM artworks WHERE source = ? ORDER BY record_id`, source)
	if err != nil {
		return nil, fmt.Errorf("querying artworks: %w", err)
	}
	defer rows.Close()

	var artworks []domain.Artwork //nolint:prealloc // size unknown from query
	for rows.Next() {
		artwork, err := scanArtwork(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning artwork: %w", err)
		}
		artworks = append(artworks, *artwork)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating artworks: %w", err)
	}
	return artworks, nil
}

// ActiveIDs returns the record ids of non-deleted artworks for a source.
func (s *catalogueStore) ActiveIDs(ctx context.Context, source string) ([]string, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT record_id FROM artworks WHERE source = ? AND is_deleted = 0 ORDER BY record_id
	`, source)
	if err != nil {
		return nil, fmt.Errorf("querying active ids: %w", err)
	}
	defer rows.Close()

	var ids []string //nolint:prealloc // size unknown from query
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning record id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating record ids: %w", err)
	}
	return ids, nil
}

// Summary computes aggregate statistics over active records.
func (s *catalogueStore) Summary(ctx context.Context) (*domain.CatalogueSummary, error) {
	summary := &domain.CatalogueSummary{
		CountsBySource: make(map[string]int),
	}

	rows, err := s.store.db.QueryContext(ctx, `
		SELECT source, COUNT(*) FROM artworks WHERE is_deleted = 0 GROUP BY source
	`)
	if err != nil {
		return nil, fmt.Errorf("querying source counts: %w", err)
	}
	for rows.Next() {
		var source string
		var count int
		if err := rows.Scan(&source, &count); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning source count: %w", err)
		}
		summary.CountsBySource[source] = count
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterating source counts: %w", err)
	}
	rows.Close()

	summary.TopClassifications, err = s.topField(ctx, "classification")
	if err != nil {
		return nil, err
	}
	summary.TopNationalities, err = s.topField(ctx, "artist_nationality")
	if err != nil {
		return nil, err
	}

	var earliest, latest sql.NullInt64
	row := s.store.db.QueryRowContext(ctx, `
		SELECT MIN(date_start), MAX(date_end) FROM artworks WHERE is_deleted = 0
	`)
	if err := row.Scan(&earliest, &latest); err != nil {
		return nil, fmt.Errorf("scanning date range: %w", err)
	}
	summary.EarliestYear = int(earliest.Int64)
	summary.LatestYear = int(latest.Int64)

	return summary, nil
}

// topField returns the ten most frequent non-empty values of a column.
// The column name is always a compile-time constant, never user input.
func (s *catalogueStore) topField(ctx context.Context, column string) ([]domain.FieldCount, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT `+column+`, COUNT(*) AS n FROM artworks
		WHERE is_deleted = 0 AND `+column+` != ''
		GROUP BY `+column+` ORDER BY n DESC, `+column+` ASC LIMIT 10
	`)
	if err != nil {
		return nil, fmt.Errorf("querying top %s: %w", column, err)
	}
	defer rows.Close()

	var counts []domain.FieldCount //nolint:prealloc // size unknown from query
	for rows.Next() {
		var fc domain.FieldCount
		if err := rows.Scan(&fc.Value, &fc.Count); err != nil {
			return nil, fmt.Errorf("scanning top %s: %w", column, err)
		}
		counts = append(counts, fc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating top %s: %w", column, err)
	}
	return counts, nil
}

func scanArtwork(row rowScanner) (*domain.Artwork, error) {
	var a domain.Artwork
	var birthYear, deathYear, dateStart, dateEnd sql.NullInt64
	var extrasJSON string
	var isPublicDomain, isDeleted int
	var deletedAt sql.NullTime
	if err := row.Scan(&a.RecordID, &a.Source, &a.SourceID, &a.Title, &a.ArtistName,
		&a.ArtistNationality, &birthYear, &deathYear, &a.DateDisplay, &dateStart, &dateEnd,
		&a.Medium, &a.Dimensions, &a.Classification, &a.Culture, &a.Period, &a.Department,
		&a.CreditLine, &isPublicDomain, &a.License, &a.RightsStatement,
		&a.ImageURL, &a.ThumbnailURL, &a.SourceURL, &a.WikidataID, &a.AccessionNumber,
		&extrasJSON, &a.VersionHash, &a.FetchedAt, &isDeleted, &deletedAt, &a.MissingRuns); err != nil {
		return nil, err
	}

	a.ArtistBirthYear = intPtr(birthYear)
	a.ArtistDeathYear = intPtr(deathYear)
	a.DateStart = intPtr(dateStart)
	a.DateEnd = intPtr(dateEnd)
	a.IsPublicDomain = isPublicDomain != 0
	a.IsDeleted = isDeleted != 0
	if deletedAt.Valid {
		t := deletedAt.Time
		a.DeletedAt = &t
	}
	if extrasJSON != "" && extrasJSON != "{}" {
		if err := json.Unmarshal([]byte(extrasJSON), &a.Extras); err != nil {
			return nil, fmt.Errorf("unmarshaling extras: %w", err)
		}
	}
	return &a, nil
}

// ==================== Checkpoint Store ====================

// checkpointStore implements driven.CheckpointStore.
type checkpointStore struct {
	store *Store
}

var _ driven.CheckpointStore = (*checkpointStore)(nil)

// Get retrieves the checkpoint for a source.
func (s *checkpointStore) Get(ctx context.Context, source string) (*domain.Checkpoint, error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT source, type, value, last_success_at, metadata FROM checkpoints WHERE source = ?
	`, source)

	var cp domain.Checkpoint
	var cpType, metadataJSON string
	if err := row.Scan(&cp.Source, &cpType, &cp.Value, &cp.LastSuccessAt, &metadataJSON); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning checkpoint: %w", err)
	}
	cp.Type = domain.CheckpointType(cpType)
	if metadataJSON != "" && metadataJSON != "{}" {
		if err := json.Unmarshal([]byte(metadataJSON), &cp.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshaling checkpoint metadata: %w", err)
		}
	}
	return &cp, nil
}

// ==================== Run Store ====================

// runStore implements driven.RunStore.
type runStore struct {
	store *Store
}

var _ driven.RunStore = (*runStore)(nil)

// Create opens a run ledger entry.
func (s *runStore) Create(ctx context.Context, run *domain.IngestRun) error {
	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO ingest_runs (run_id, source, started_at, status)
		VALUES (?, ?, ?, ?)
	`, run.RunID, run.Source, run.StartedAt, string(run.Status))
	if err != nil {
		return fmt.Errorf("creating run: %w", err)
	}
	return nil
}

// Update persists status transitions and running stats.
func (s *runStore) Update(ctx context.Context, run *domain.IngestRun) error {
	res, err := s.store.db.ExecContext(ctx, `
		UPDATE ingest_runs SET
			status = ?, created = ?, updated = ?, deleted = ?, unchanged = ?,
			errors = ?, collisions = ?, error_text = ?
		WHERE run_id = ?
	`, string(run.Status), run.Stats.Created, run.Stats.Updated, run.Stats.Deleted,
		run.Stats.Unchanged, run.Stats.Errors, run.Stats.Collisions, run.ErrorText, run.RunID)
	if err != nil {
		return fmt.Errorf("updating run: %w", err)
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Close finalises a run ledger entry.
func (s *runStore) Close(ctx context.Context, run *domain.IngestRun) error {
	_, err := s.store.db.ExecContext(ctx, `
		UPDATE ingest_runs SET
			ended_at = ?, status = ?, created = ?, updated = ?, deleted = ?,
			unchanged = ?, errors = ?, collisions = ?, error_text = ?
		WHERE run_id = ?
	`, run.EndedAt, string(run.Status), run.Stats.Created, run.Stats.Updated,
		run.Stats.Deleted, run.Stats.Unchanged, run.Stats.Errors, run.Stats.Collisions,
		run.ErrorText, run.RunID)
	if err != nil {
		return fmt.Errorf("closing run: %w", err)
	}
	return nil
}

// Get retrieves one ledger entry by run id.
func (s *runStore) Get(ctx context.Context, runID string) (*domain.IngestRun, error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT run_id, source, started_at, ended_at, status, created, updated,
			deleted, unchanged, errors, collisions, error_text
		FROM ingest_runs WHERE run_id = ?
	`, runID)

	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning run: %w", err)
	}
	return run, nil
}

// List returns recent runs, most recent first.
func (s *runStore) List(ctx context.Context, source string, limit int) ([]domain.IngestRun, error) {
	query := `
		SELECT run_id, source, started_at, ended_at, status, created, updated,
			deleted, unchanged, errors, collisions, error_text
		FROM ingest_runs`
	args := []any{}
	if source != "" {
		query += ` WHERE source = ?`
		args = append(args, source)
	}
	query += ` ORDER BY started_at DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var runs []domain.IngestRun //nolint:prealloc // size unknown from query
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating runs: %w", err)
	}
	return runs, nil
}

func scanRun(row rowScanner) (*domain.IngestRun, error) {
	var run domain.IngestRun
	var status string
	var endedAt sql.NullTime
	if err := row.Scan(&run.RunID, &run.Source, &run.StartedAt, &endedAt, &status,
		&run.Stats.Created, &run.Stats.Updated, &run.Stats.Deleted, &run.Stats.Unchanged,
		&run.Stats.Errors, &run.Stats.Collisions, &run.ErrorText); err != nil {
		return nil, err
	}
	run.Status = domain.RunStatus(status)
	if endedAt.Valid {
		run.EndedAt = endedAt.Time
	}
	return &run, nil
}

// ==================== Batch Writer ====================

// batchWriter implements driven.BatchWriter.
type batchWriter struct {
	store *Store
}

var _ driven.BatchWriter = (*batchWriter)(nil)

// CommitBatch applies a batch in one transaction: raw appends, canonical
// upserts, tombstones, missing-run counters and the checkpoint either all
// land or none do.
func (w *batchWriter) CommitBatch(ctx context.Context, batch *driven.Batch) error {
	tx, err := w.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for i := range batch.Raws {
		if err := insertRaw(ctx, tx, &batch.Raws[i]); err != nil {
			return err
		}
	}
	for i := range batch.Upserts {
		if err := upsertArtwork(ctx, tx, &batch.Upserts[i]); err != nil {
			return err
		}
	}

	for _, recordID := range batch.Tombstones {
		_, err := tx.ExecContext(ctx, `
			UPDATE artworks SET is_deleted = 1, deleted_at = ?
			WHERE record_id = ? AND is_deleted = 0
		`, batch.DeletedAt, recordID)
		if err != nil {
			return fmt.Errorf("tombstoning %s: %w", recordID, err)
		}
	}

	for _, recordID := range batch.SeenIDs {
		_, err := tx.ExecContext(ctx, `
			UPDATE artworks SET missing_runs = 0 WHERE record_id = ? AND missing_runs != 0
		`, recordID)
		if err != nil {
			return fmt.Errorf("resetting missing counter for %s: %w", recordID, err)
		}
	}
	for _, recordID := range batch.MissedIDs {
		_, err := tx.ExecContext(ctx, `
			UPDATE artworks SET missing_runs = missing_runs + 1 WHERE record_id = ?
		`, recordID)
		if err != nil {
			return fmt.Errorf("incrementing missing counter for %s: %w", recordID, err)
		}
	}

	if batch.Checkpoint != nil {
		if err := upsertCheckpoint(ctx, tx, batch.Source, batch.Checkpoint); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing batch: %w", err)
	}
	return nil
}

func insertRaw(ctx context.Context, tx *sql.Tx, raw *domain.RawRecord) error {
	var eventTime any
	if raw.EventTime != nil {
		eventTime = *raw.EventTime
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO raw_records (source, entity_type, source_id, version_hash, fetched_at, event_time, payload, is_deleted)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(source, entity_type, source_id, version_hash) DO NOTHING
	`, raw.Source, raw.EntityType, raw.SourceID, raw.VersionHash,
		raw.FetchedAt, eventTime, raw.Payload, boolToInt(raw.IsDeleted))
	if err != nil {
		return fmt.Errorf("inserting raw record %s/%s: %w", raw.Source, raw.SourceID, err)
	}
	return nil
}

// upsertArtwork applies one canonical row under last-write-wins ordering:
// the guard on excluded.fetched_at keeps a stale late write from clobbering
// a newer row. An applied upsert also revives a tombstoned record.
func upsertArtwork(ctx context.Context, tx *sql.Tx, a *domain.Artwork) error {
	extrasJSON := "{}"
	if len(a.Extras) > 0 {
		data, err := json.Marshal(a.Extras)
		if err != nil {
			return fmt.Errorf("marshalling extras for %s: %w", a.RecordID, err)
		}
		extrasJSON = string(data)
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO artworks (`+artworkColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, NULL, 0)
		ON CONFLICT(record_id) DO UPDATE SET
			title = excluded.title,
			artist_name = excluded.artist_name,
			artist_nationality = excluded.artist_nationality,
			artist_birth_year = excluded.artist_birth_year,
			artist_death_year = excluded.artist_death_year,
			date_display = excluded.date_display,
			date_start = excluded.date_start,
			date_end = excluded.date_end,
			medium = excluded.medium,
			dimensions = excluded.dimensions,
			classification = excluded.classification,
			culture = excluded.culture,
			period = excluded.period,
			department = excluded.department,
			credit_line = excluded.credit_line,
			is_public_domain = excluded.is_public_domain,
			license = excluded.license,
			rights_statement = excluded.rights_statement,
			image_url = excluded.image_url,
			thumbnail_url = excluded.thumbnail_url,
			source_url = excluded.source_url,
			wikidata_id = excluded.wikidata_id,
			accession_number = excluded.accession_number,
			extras = excluded.extras,
			version_hash = excluded.version_hash,
			fetched_at = excluded.fetched_at,
			is_deleted = 0,
			deleted_at = NULL,
			missing_runs = 0
		WHERE excluded.fetched_at >= artworks.fetched_at
	`, a.RecordID, a.Source, a.SourceID, a.Title, a.ArtistName, a.ArtistNationality,
		nullInt(a.ArtistBirthYear), nullInt(a.ArtistDeathYear), a.DateDisplay,
		nullInt(a.DateStart), nullInt(a.DateEnd), a.Medium, a.Dimensions,
		a.Classification, a.Culture, a.Period, a.Department, a.CreditLine,
		boolToInt(a.IsPublicDomain), a.License, a.RightsStatement,
		a.ImageURL, a.ThumbnailURL, a.SourceURL, a.WikidataID, a.AccessionNumber,
		extrasJSON, a.VersionHash, a.FetchedAt)
	if err != nil {
		return fmt.Errorf("upserting artwork %s: %w", a.RecordID, err)
	}
	return nil
}

func upsertCheckpoint(ctx context.Context, tx *sql.Tx, source string, cp *domain.Checkpoint) error {
	metadataJSON := "{}"
	if len(cp.Metadata) > 0 {
		data, err := json.Marshal(cp.Metadata)
		if err != nil {
			return fmt.Errorf("marshalling checkpoint metadata: %w", err)
		}
		metadataJSON = string(data)
	}

	lastSuccess := cp.LastSuccessAt
	if lastSuccess.IsZero() {
		lastSuccess = time.Now().UTC()
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO checkpoints (source, type, value, last_success_at, metadata)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(source) DO UPDATE SET
			type = excluded.type,
			value = excluded.value,
			last_success_at = excluded.last_success_at,
			metadata = excluded.metadata
	`, source, string(cp.Type), cp.Value, lastSuccess, metadataJSON)
	if err != nil {
		return fmt.Errorf("upserting checkpoint for %s: %w", source, err)
	}
	return nil
}

// ==================== Helpers ====================

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func intPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}
