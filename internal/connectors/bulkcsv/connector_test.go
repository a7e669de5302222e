package bulkcsv

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artdig/artdig/internal/adapters/driven/storage/memory"
	"github.com/artdig/artdig/internal/core/domain"
	"github.com/artdig/artdig/internal/core/ports/driven"
)

func writeDump(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "objects.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func metSource(path string) domain.Source {
	return domain.Source{
		ID:     "met",
		Family: domain.FamilyBulkCSV,
		Config: map[string]string{
			ConfigPath:     path,
			ConfigIDColumn: "Object ID",
		},
	}
}

// collect drains a connector stream into changes and the final checkpoint.
func collect(t *testing.T, changes <-chan domain.RecordChange, errs <-chan error) ([]domain.RecordChange, *domain.Checkpoint, []error) {
	t.Helper()
	var out []domain.RecordChange
	var recordErrs []error
	var final *domain.Checkpoint
	for changes != nil || errs != nil {
		select {
		case c, ok := <-changes:
			if !ok {
				changes = nil
				continue
			}
			out = append(out, c)
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if cc, done := driven.IsCheckpointComplete(err); done {
				final = &cc.Checkpoint
				continue
			}
			recordErrs = append(recordErrs, err)
		}
	}
	return out, final, recordErrs
}

func TestBootstrapStreamsAllRows(t *testing.T) {
	path := writeDump(t, "Object ID,Title\n1,Olive Trees\n2,Wheat Field\n")
	conn, err := New(metSource(path), memory.NewStore().RawStore())
	require.NoError(t, err)

	changes, errs := conn.Bootstrap(context.Background())
	out, final, recordErrs := collect(t, changes, errs)

	require.Len(t, out, 2)
	assert.Empty(t, recordErrs)
	assert.Equal(t, domain.ChangeCreated, out[0].Type)
	assert.Equal(t, "1", out[0].Record.SourceID)
	assert.NotEmpty(t, out[0].Record.VersionHash)
	assert.JSONEq(t, `{"Object ID":"1","Title":"Olive Trees"}`, string(out[0].Record.Payload))

	require.NotNil(t, final)
	assert.Equal(t, domain.CheckpointTimestamp, final.Type)
}

func TestIncrementalDiffsAgainstStoredVersions(t *testing.T) {
	path := writeDump(t, "Object ID,Title\n1,Olive Trees\n2,Wheat Field\n")
	store := memory.NewStore()
	conn, err := New(metSource(path), store.RawStore())
	require.NoError(t, err)

	// First pass stores versions.
	changes, errs := conn.Bootstrap(context.Background())
	out, _, _ := collect(t, changes, errs)
	batch := &driven.Batch{Source: "met"}
	for _, c := range out {
		batch.Raws = append(batch.Raws, c.Record)
	}
	require.NoError(t, store.BatchWriter().CommitBatch(context.Background(), batch))

	// Second pass: row 1 unchanged, row 2 edited, row 3 new.
	require.NoError(t, os.WriteFile(path,
		[]byte("Object ID,Title\n1,Olive Trees\n2,Wheat Field with Cypresses\n3,Irises\n"), 0600))

	changes, errs = conn.Incremental(context.Background(), domain.Checkpoint{})
	out, final, recordErrs := collect(t, changes, errs)
	require.Len(t, out, 3)
	assert.Empty(t, recordErrs)

	byID := map[string]domain.ChangeType{}
	for _, c := range out {
		byID[c.Record.SourceID] = c.Type
	}
	assert.Equal(t, domain.ChangeUnchanged, byID["1"])
	assert.Equal(t, domain.ChangeUpdated, byID["2"])
	assert.Equal(t, domain.ChangeCreated, byID["3"])
	require.NotNil(t, final)
}

func TestUnchangedCarriesIdentityOnly(t *testing.T) {
	path := writeDump(t, "Object ID,Title\n1,Olive Trees\n")
	store := memory.NewStore()
	conn, err := New(metSource(path), store.RawStore())
	require.NoError(t, err)

	changes, errs := conn.Bootstrap(context.Background())
	out, _, _ := collect(t, changes, errs)
	require.NoError(t, store.BatchWriter().CommitBatch(context.Background(),
		&driven.Batch{Source: "met", Raws: []domain.RawRecord{out[0].Record}}))

	changes, errs = conn.Incremental(context.Background(), domain.Checkpoint{})
	out, _, _ = collect(t, changes, errs)
	require.Len(t, out, 1)
	assert.Equal(t, domain.ChangeUnchanged, out[0].Type)
	assert.Empty(t, out[0].Record.Payload)
}

func TestRowWithoutIDIsRecordError(t *testing.T) {
	path := writeDump(t, "Object ID,Title\n1,Fine\n,No identifier\n")
	conn, err := New(metSource(path), memory.NewStore().RawStore())
	require.NoError(t, err)

	changes, errs := conn.Bootstrap(context.Background())
	out, final, recordErrs := collect(t, changes, errs)

	require.Len(t, out, 1)
	require.Len(t, recordErrs, 1)
	_, isRecord := driven.IsRecordError(recordErrs[0])
	assert.True(t, isRecord)
	require.NotNil(t, final, "one bad row must not abort the stream")
}

func TestValidate(t *testing.T) {
	path := writeDump(t, "Object ID,Title\n")
	conn, err := New(metSource(path), memory.NewStore().RawStore())
	require.NoError(t, err)
	assert.NoError(t, conn.Validate(context.Background()))

	missing := metSource(filepath.Join(t.TempDir(), "nope.csv"))
	conn, err = New(missing, memory.NewStore().RawStore())
	require.NoError(t, err)
	assert.Error(t, conn.Validate(context.Background()))

	wrongColumn := writeDump(t, "id,Title\n")
	conn, err = New(metSource(wrongColumn), memory.NewStore().RawStore())
	require.NoError(t, err)
	assert.ErrorIs(t, conn.Validate(context.Background()), domain.ErrInvalidInput)
}

func TestNewRequiresConfig(t *testing.T) {
	_, err := New(domain.Source{ID: "met", Config: map[string]string{}}, memory.NewStore().RawStore())
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	src := metSource("objects.csv")
	src.Config[ConfigFormat] = "parquet"
	_, err := New(src, memory.NewStore().RawStore())
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

// writeAux writes an auxiliary CSV next to the primary dump.
func writeAux(t *testing.T, primary, name, content string) {
	t.Helper()
	path := filepath.Join(filepath.Dir(primary), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
}

func ngaSource(path string) domain.Source {
	return domain.Source{
		ID:     "nga",
		Family: domain.FamilyBulkCSV,
		Config: map[string]string{
			ConfigPath:     path,
			ConfigIDColumn: "objectid",
			ConfigJoins: `[
				{"name": "artist", "path": "constituents.csv", "key": "constituentid",
				 "via": {"path": "objects_constituents.csv", "from": "objectid", "to": "constituentid",
				         "where": {"roletype": "artist"}, "order": "displayorder"}},
				{"name": "image", "path": "published_images.csv", "key": "depictstmsobjectid",
				 "where": {"viewtype": "primary"}, "order": "sequence"}
			]`,
		},
	}
}

func TestJoinsMergeAuxiliaryColumns(t *testing.T) {
	path := writeDump(t, "objectid,title\n10,Girl with a Watering Can\n11,Unattributed\n")
	writeAux(t, path, "constituents.csv",
		"constituentid,preferreddisplayname,nationality\n7,Auguste Renoir,French\n8,Unknown Donor,\n")
	writeAux(t, path, "objects_constituents.csv",
		"objectid,constituentid,roletype,displayorder\n"+
			"10,8,donor,1\n"+ // Wrong role, filtered out
			"10,7,artist,1\n")
	writeAux(t, path, "published_images.csv",
		"depictstmsobjectid,iiifurl,viewtype,sequence\n"+
			"10,https://api.example/iiif/alt,alternate,1\n"+ // Not the primary view
			"10,https://api.example/iiif/xyz,primary,2\n")

	conn, err := New(ngaSource(path), memory.NewStore().RawStore())
	require.NoError(t, err)

	changes, errs := conn.Bootstrap(context.Background())
	out, final, recordErrs := collect(t, changes, errs)
	require.Len(t, out, 2)
	assert.Empty(t, recordErrs)
	require.NotNil(t, final)

	var row map[string]string
	require.NoError(t, json.Unmarshal(out[0].Record.Payload, &row))
	assert.Equal(t, "Girl with a Watering Can", row["title"])
	assert.Equal(t, "Auguste Renoir", row["artist.preferreddisplayname"])
	assert.Equal(t, "French", row["artist.nationality"])
	assert.Equal(t, "https://api.example/iiif/xyz", row["image.iiifurl"])

	// The second object has no joined rows and keeps only its own columns.
	row = nil // Unmarshal merges into a non-nil map; reset to avoid carrying over out[0]'s keys.
	require.NoError(t, json.Unmarshal(out[1].Record.Payload, &row))
	assert.Equal(t, "Unattributed", row["title"])
	assert.NotContains(t, row, "artist.preferreddisplayname")
	assert.NotContains(t, row, "image.iiifurl")
}

func TestJoinsPickFirstByOrder(t *testing.T) {
	path := writeDump(t, "objectid,title\n10,Two Artists\n")
	writeAux(t, path, "constituents.csv",
		"constituentid,preferreddisplayname\n7,Listed Second\n8,Listed First\n")
	writeAux(t, path, "objects_constituents.csv",
		"objectid,constituentid,roletype,displayorder\n"+
			"10,7,artist,2\n"+
			"10,8,artist,1\n")
	writeAux(t, path, "published_images.csv", "depictstmsobjectid,iiifurl,viewtype,sequence\n")

	conn, err := New(ngaSource(path), memory.NewStore().RawStore())
	require.NoError(t, err)

	changes, errs := conn.Bootstrap(context.Background())
	out, _, _ := collect(t, changes, errs)
	require.Len(t, out, 1)

	var row map[string]string
	require.NoError(t, json.Unmarshal(out[0].Record.Payload, &row))
	assert.Equal(t, "Listed First", row["artist.preferreddisplayname"])
}

func TestNewRejectsBadJoinConfig(t *testing.T) {
	src := metSource("objects.csv")
	src.Config[ConfigJoins] = `[{"path": "x.csv"}]`
	_, err := New(src, memory.NewStore().RawStore())
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	src = metSource("items.ndjson")
	src.Config[ConfigFormat] = FormatNDJSON
	src.Config[ConfigJoins] = `[{"name": "a", "path": "x.csv", "key": "id"}]`
	_, err = New(src, memory.NewStore().RawStore())
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func nyplSource(path string) domain.Source {
	return domain.Source{
		ID:     "nypl",
		Family: domain.FamilyBulkCSV,
		Config: map[string]string{
			ConfigPath:     path,
			ConfigIDColumn: "UUID",
			ConfigFormat:   FormatNDJSON,
		},
	}
}

func TestNDJSONStreamsAllFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "part1.ndjson"),
		[]byte(`{"UUID":"a1","title":"First"}`+"\n"+`{"UUID":"a2","title":"Second"}`+"\n"), 0600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "part2.ndjson"),
		[]byte(`{"UUID":"a3","title":"Third"}`+"\n"), 0600))

	conn, err := New(nyplSource(filepath.Join(dir, "*.ndjson")), memory.NewStore().RawStore())
	require.NoError(t, err)

	changes, errs := conn.Bootstrap(context.Background())
	out, final, recordErrs := collect(t, changes, errs)
	require.Len(t, out, 3)
	assert.Empty(t, recordErrs)
	require.NotNil(t, final)

	assert.Equal(t, "a1", out[0].Record.SourceID)
	assert.JSONEq(t, `{"UUID":"a1","title":"First"}`, string(out[0].Record.Payload))
	assert.Equal(t, "a3", out[2].Record.SourceID)
}

func TestNDJSONDiffsAgainstStoredVersions(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "items.ndjson")
	require.NoError(t, os.WriteFile(path,
		[]byte(`{"UUID":"a1","title":"Same"}`+"\n"+`{"UUID":"a2","title":"Old"}`+"\n"), 0600))

	store := memory.NewStore()
	conn, err := New(nyplSource(path), store.RawStore())
	require.NoError(t, err)

	changes, errs := conn.Bootstrap(context.Background())
	out, _, _ := collect(t, changes, errs)
	batch := &driven.Batch{Source: "nypl"}
	for _, c := range out {
		batch.Raws = append(batch.Raws, c.Record)
	}
	require.NoError(t, store.BatchWriter().CommitBatch(context.Background(), batch))

	require.NoError(t, os.WriteFile(path,
		[]byte(`{"UUID":"a1","title":"Same"}`+"\n"+`{"UUID":"a2","title":"Edited"}`+"\n"), 0600))

	changes, errs = conn.Incremental(context.Background(), domain.Checkpoint{})
	out, _, _ = collect(t, changes, errs)
	require.Len(t, out, 2)

	byID := map[string]domain.ChangeType{}
	for _, c := range out {
		byID[c.Record.SourceID] = c.Type
	}
	assert.Equal(t, domain.ChangeUnchanged, byID["a1"])
	assert.Equal(t, domain.ChangeUpdated, byID["a2"])
}

func TestNDJSONBadLineIsRecordError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "items.ndjson")
	require.NoError(t, os.WriteFile(path,
		[]byte(`{"UUID":"a1","title":"Fine"}`+"\nnot json\n"+`{"title":"No id"}`+"\n"), 0600))

	conn, err := New(nyplSource(path), memory.NewStore().RawStore())
	require.NoError(t, err)

	changes, errs := conn.Bootstrap(context.Background())
	out, final, recordErrs := collect(t, changes, errs)
	require.Len(t, out, 1)
	require.Len(t, recordErrs, 2)
	require.NotNil(t, final, "bad lines must not abort the stream")
}

func TestNDJSONValidateChecksGlob(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "items.ndjson"), []byte("{}\n"), 0600))

	conn, err := New(nyplSource(filepath.Join(dir, "*.ndjson")), memory.NewStore().RawStore())
	require.NoError(t, err)
	assert.NoError(t, conn.Validate(context.Background()))

	conn, err = New(nyplSource(filepath.Join(dir, "missing", "*.ndjson")), memory.NewStore().RawStore())
	require.NoError(t, err)
	assert.ErrorIs(t, conn.Validate(context.Background()), domain.ErrInvalidInput)
}
