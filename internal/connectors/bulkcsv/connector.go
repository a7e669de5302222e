// Package bulkcsv implements the bulk-snapshot connector family. The source
// publishes its whole collection as a local dump, either one CSV file or a
// set of newline-delimited JSON files; incremental runs re-read the dump and
// diff content hashes against the stored raw versions, so only changed rows
// flow downstream. CSV dumps can merge columns from auxiliary files into
// each row, for sources that split one logical record across several CSVs.
package bulkcsv

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/artdig/artdig/internal/core/domain"
	"github.com/artdig/artdig/internal/core/ports/driven"
	"github.com/artdig/artdig/internal/logger"
)

// Config keys recognised by this family.
const (
	// ConfigPath is the path to the dump. For NDJSON dumps it may be a
	// glob matching several files.
	ConfigPath = "csv_path"

	// ConfigIDColumn is the header of the column (or, for NDJSON dumps,
	// the top-level field) holding the source id.
	ConfigIDColumn = "id_column"

	// ConfigFormat selects the dump format, "csv" or "ndjson".
	// Default "csv".
	ConfigFormat = "format"

	// ConfigJoins is a JSON array of auxiliary CSV join specs. CSV only.
	ConfigJoins = "joins"
)

// Dump formats.
const (
	FormatCSV    = "csv"
	FormatNDJSON = "ndjson"
)

// Connector reads a local snapshot dump.
type Connector struct {
	source   domain.Source
	path     string
	idColumn string
	format   string
	joins    []joinSpec
	raws     driven.RawStore
}

var _ driven.Connector = (*Connector)(nil)

// New creates a bulk dump connector from source configuration.
func New(source domain.Source, raws driven.RawStore) (*Connector, error) {
	path := source.Config[ConfigPath]
	if path == "" {
		return nil, fmt.Errorf("%w: %s requires %q", domain.ErrInvalidInput, source.ID, ConfigPath)
	}
	idColumn := source.Config[ConfigIDColumn]
	if idColumn == "" {
		return nil, fmt.Errorf("%w: %s requires %q", domain.ErrInvalidInput, source.ID, ConfigIDColumn)
	}
	format := source.Config[ConfigFormat]
	if format == "" {
		format = FormatCSV
	}
	if format != FormatCSV && format != FormatNDJSON {
		return nil, fmt.Errorf("%w: %s has unknown dump format %q", domain.ErrInvalidInput, source.ID, format)
	}
	joins, err := parseJoins(source.Config[ConfigJoins])
	if err != nil {
		return nil, fmt.Errorf("%s: %w", source.ID, err)
	}
	if len(joins) > 0 && format != FormatCSV {
		return nil, fmt.Errorf("%w: %s configures joins on a non-CSV dump", domain.ErrInvalidInput, source.ID)
	}
	return &Connector{
		source:   source,
		path:     path,
		idColumn: idColumn,
		format:   format,
		joins:    joins,
		raws:     raws,
	}, nil
}

// Type returns the connector family identifier.
func (c *Connector) Type() string { return domain.FamilyBulkCSV }

// Source returns the configured source id.
func (c *Connector) Source() string { return c.source.ID }

// Capabilities returns what this connector supports.
func (c *Connector) Capabilities() driven.ConnectorCapabilities {
	return driven.ConnectorCapabilities{
		SupportsIncremental: true,
		FullSnapshot:        true,
		SupportsValidation:  true,
	}
}

// Validate checks the dump exists and, for CSV, that its header contains
// the id column.
func (c *Connector) Validate(_ context.Context) error {
	if c.format == FormatNDJSON {
		files, err := filepath.Glob(c.path)
		if err != nil {
			return fmt.Errorf("%w: bad dump glob %q", domain.ErrInvalidInput, c.path)
		}
		if len(files) == 0 {
			return fmt.Errorf("%w: no dump files match %q", domain.ErrInvalidInput, c.path)
		}
		return nil
	}

	f, err := os.Open(c.path)
	if err != nil {
		return fmt.Errorf("opening dump: %w", err)
	}
	defer f.Close()

	header, err := csv.NewReader(f).Read()
	if err != nil {
		return fmt.Errorf("reading dump header: %w", err)
	}
	for _, col := range header {
		if col == c.idColumn {
			return nil
		}
	}
	return fmt.Errorf("%w: dump has no column %q", domain.ErrInvalidInput, c.idColumn)
}

// Bootstrap streams every dump row as Created.
func (c *Connector) Bootstrap(ctx context.Context) (<-chan domain.RecordChange, <-chan error) {
	return c.stream(ctx, nil)
}

// Incremental re-reads the dump and diffs each row's content hash against
// the last stored version: new rows are Created, changed rows Updated and
// identical rows Unchanged. Absent rows are left to the reconciler's grace
// handling.
func (c *Connector) Incremental(ctx context.Context, _ domain.Checkpoint) (<-chan domain.RecordChange, <-chan error) {
	known, err := c.raws.LatestVersions(ctx, c.source.ID, domain.EntityTypeArtwork)
	if err != nil {
		changes := make(chan domain.RecordChange)
		errs := make(chan error, 1)
		errs <- fmt.Errorf("loading stored versions: %w", err)
		close(changes)
		close(errs)
		return changes, errs
	}
	return c.stream(ctx, known)
}

// Close releases resources.
func (c *Connector) Close() error { return nil }

// stream walks the dump. A nil known map means bootstrap (everything is
// Created); otherwise rows are classified against the stored hashes.
func (c *Connector) stream(ctx context.Context, known map[string]string) (<-chan domain.RecordChange, <-chan error) {
	changes := make(chan domain.RecordChange)
	errs := make(chan error, 1)

	go func() {
		defer close(changes)
		defer close(errs)

		fetchedAt := time.Now().UTC()
		var rows int
		var err error
		if c.format == FormatNDJSON {
			rows, err = c.streamNDJSON(ctx, known, fetchedAt, changes, errs)
		} else {
			rows, err = c.streamCSV(ctx, known, fetchedAt, changes, errs)
		}
		if err != nil {
			sendErr(ctx, errs, err)
			return
		}

		logger.Debug("Streamed %d rows from %s", rows, c.path)
		sendErr(ctx, errs, &driven.CheckpointComplete{Checkpoint: domain.Checkpoint{
			Source: c.source.ID,
			Type:   domain.CheckpointTimestamp,
			Value:  fetchedAt.Format(time.RFC3339),
		}})
	}()

	return changes, errs
}

// streamCSV walks the CSV dump, merging configured joins into each row.
func (c *Connector) streamCSV(
	ctx context.Context,
	known map[string]string,
	fetchedAt time.Time,
	changes chan<- domain.RecordChange,
	errs chan<- error,
) (int, error) {
	tables, err := c.loadJoins()
	if err != nil {
		return 0, err
	}

	f, err := os.Open(c.path)
	if err != nil {
		return 0, fmt.Errorf("opening dump: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	header, err := reader.Read()
	if err != nil {
		return 0, fmt.Errorf("reading dump header: %w", err)
	}
	idIndex := -1
	for i, col := range header {
		if col == c.idColumn {
			idIndex = i
			break
		}
	}
	if idIndex < 0 {
		return 0, fmt.Errorf("%w: dump has no column %q", domain.ErrInvalidInput, c.idColumn)
	}

	rows := 0
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			// A malformed row is skipped, not fatal to the dump.
			if sendErr(ctx, errs, &driven.RecordError{Err: err}) {
				return rows, ctx.Err()
			}
			continue
		}
		if idIndex >= len(row) || row[idIndex] == "" {
			if sendErr(ctx, errs, &driven.RecordError{Err: domain.ErrMissingSourceID}) {
				return rows, ctx.Err()
			}
			continue
		}
		sourceID := row[idIndex]

		fields := make(map[string]string, len(header))
		for i, col := range header {
			if i < len(row) {
				fields[col] = row[i]
			}
		}
		for _, table := range tables {
			table.merge(sourceID, fields)
		}
		payload, err := json.Marshal(fields)
		if err != nil {
			if sendErr(ctx, errs, &driven.RecordError{SourceID: sourceID, Err: err}) {
				return rows, ctx.Err()
			}
			continue
		}

		select {
		case <-ctx.Done():
			return rows, ctx.Err()
		case changes <- c.classifyRow(sourceID, payload, known, fetchedAt):
			rows++
		}
	}
	return rows, nil
}

// streamNDJSON walks every file matching the dump glob, one JSON record per
// line. The raw line is the payload; only the id field is decoded here.
func (c *Connector) streamNDJSON(
	ctx context.Context,
	known map[string]string,
	fetchedAt time.Time,
	changes chan<- domain.RecordChange,
	errs chan<- error,
) (int, error) {
	files, err := filepath.Glob(c.path)
	if err != nil {
		return 0, fmt.Errorf("%w: bad dump glob %q", domain.ErrInvalidInput, c.path)
	}
	if len(files) == 0 {
		return 0, fmt.Errorf("%w: no dump files match %q", domain.ErrInvalidInput, c.path)
	}

	rows := 0
	for _, file := range files {
		n, err := c.streamNDJSONFile(ctx, file, known, fetchedAt, changes, errs)
		rows += n
		if err != nil {
			return rows, err
		}
	}
	return rows, nil
}

func (c *Connector) streamNDJSONFile(
	ctx context.Context,
	path string,
	known map[string]string,
	fetchedAt time.Time,
	changes chan<- domain.RecordChange,
	errs chan<- error,
) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("opening dump file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	// Item records carry full capture lists and can run long.
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	rows := 0
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var doc map[string]any
		if err := json.Unmarshal(line, &doc); err != nil {
			if sendErr(ctx, errs, &driven.RecordError{Err: fmt.Errorf("%w: %v", domain.ErrMalformedPayload, err)}) {
				return rows, ctx.Err()
			}
			continue
		}
		sourceID := stringValue(doc[c.idColumn])
		if sourceID == "" {
			if sendErr(ctx, errs, &driven.RecordError{Err: domain.ErrMissingSourceID}) {
				return rows, ctx.Err()
			}
			continue
		}
		payload := make([]byte, len(line))
		copy(payload, line)

		select {
		case <-ctx.Done():
			return rows, ctx.Err()
		case changes <- c.classifyRow(sourceID, payload, known, fetchedAt):
			rows++
		}
	}
	if err := scanner.Err(); err != nil {
		return rows, fmt.Errorf("reading dump file %s: %w", path, err)
	}
	return rows, nil
}

// classifyRow builds the record change for one dump row, diffing its content
// hash against the last stored version when known is non-nil.
func (c *Connector) classifyRow(sourceID string, payload []byte, known map[string]string, fetchedAt time.Time) domain.RecordChange {
	hash := domain.HashPayload(payload)

	change := domain.RecordChange{
		Type: domain.ChangeCreated,
		Record: domain.RawRecord{
			Source:      c.source.ID,
			EntityType:  domain.EntityTypeArtwork,
			SourceID:    sourceID,
			VersionHash: hash,
			FetchedAt:   fetchedAt,
			Payload:     payload,
		},
	}
	if known != nil {
		switch prev, ok := known[sourceID]; {
		case ok && prev == hash:
			change = domain.RecordChange{
				Type: domain.ChangeUnchanged,
				Record: domain.RawRecord{
					Source:     c.source.ID,
					EntityType: domain.EntityTypeArtwork,
					SourceID:   sourceID,
				},
			}
		case ok:
			change.Type = domain.ChangeUpdated
		}
	}
	return change
}

// stringValue renders a decoded JSON id field as a string.
func stringValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatInt(int64(t), 10)
	default:
		return ""
	}
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
