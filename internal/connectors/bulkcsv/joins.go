package bulkcsv

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/artdig/artdig/internal/core/domain"
)

// joinSpec describes one auxiliary CSV merged into each primary row. Rows of
// the auxiliary file are filtered by Where, ordered by Order, and the first
// row per Key value contributes its columns to the payload under
// "{name}.{column}" keys. A Via hop routes the match through a link file for
// dumps that split the relation across three files.
type joinSpec struct {
	// Name prefixes the merged columns in the payload.
	Name string `json:"name"`

	// Path is the auxiliary CSV, relative to the primary dump's directory
	// unless absolute.
	Path string `json:"path"`

	// Key is the auxiliary column matched against the primary row's id,
	// or against the link row's To value when Via is set.
	Key string `json:"key"`

	// Where keeps only auxiliary rows whose columns equal these values.
	Where map[string]string `json:"where,omitempty"`

	// Order picks the first matching row by this column, ascending.
	Order string `json:"order,omitempty"`

	Via *linkSpec `json:"via,omitempty"`
}

// linkSpec is the middle file of a two-hop join: rows map the primary id
// (From column) to the auxiliary key (To column).
type linkSpec struct {
	Path  string            `json:"path"`
	From  string            `json:"from"`
	To    string            `json:"to"`
	Where map[string]string `json:"where,omitempty"`
	Order string            `json:"order,omitempty"`
}

// joinTable is a loaded join, ready for per-row lookups.
type joinTable struct {
	name  string
	byKey map[string]map[string]string
	link  map[string]string // nil for direct joins
}

// merge copies the joined row's non-empty columns into fields under
// prefixed keys. Rows without a match are left untouched.
func (j *joinTable) merge(id string, fields map[string]string) {
	key := id
	if j.link != nil {
		key = j.link[id]
	}
	for col, val := range j.byKey[key] {
		if val != "" {
			fields[j.name+"."+col] = val
		}
	}
}

// parseJoins decodes the joins config value. Empty input means no joins.
func parseJoins(raw string) ([]joinSpec, error) {
	if raw == "" {
		return nil, nil
	}
	var specs []joinSpec
	if err := json.Unmarshal([]byte(raw), &specs); err != nil {
		return nil, fmt.Errorf("%w: bad joins config: %v", domain.ErrInvalidInput, err)
	}
	for _, spec := range specs {
		if spec.Name == "" || spec.Path == "" || spec.Key == "" {
			return nil, fmt.Errorf("%w: join needs name, path and key", domain.ErrInvalidInput)
		}
		if spec.Via != nil && (spec.Via.Path == "" || spec.Via.From == "" || spec.Via.To == "") {
			return nil, fmt.Errorf("%w: join %q link needs path, from and to", domain.ErrInvalidInput, spec.Name)
		}
	}
	return specs, nil
}

// loadJoins materialises every configured join for one dump pass.
func (c *Connector) loadJoins() ([]joinTable, error) {
	tables := make([]joinTable, 0, len(c.joins))
	for _, spec := range c.joins {
		table, err := c.loadJoin(spec)
		if err != nil {
			return nil, fmt.Errorf("loading join %q: %w", spec.Name, err)
		}
		tables = append(tables, table)
	}
	return tables, nil
}

func (c *Connector) loadJoin(spec joinSpec) (joinTable, error) {
	rows, err := readCSVRows(c.resolvePath(spec.Path))
	if err != nil {
		return joinTable{}, err
	}
	table := joinTable{
		name:  spec.Name,
		byKey: firstPerKey(rows, spec.Key, spec.Where, spec.Order),
	}

	if spec.Via != nil {
		linkRows, err := readCSVRows(c.resolvePath(spec.Via.Path))
		if err != nil {
			return joinTable{}, err
		}
		table.link = make(map[string]string)
		for from, row := range firstPerKey(linkRows, spec.Via.From, spec.Via.Where, spec.Via.Order) {
			table.link[from] = row[spec.Via.To]
		}
	}
	return table, nil
}

// resolvePath anchors relative auxiliary paths at the primary dump's
// directory.
func (c *Connector) resolvePath(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(filepath.Dir(c.path), path)
}

// readCSVRows reads a whole CSV file into header-keyed row maps.
func readCSVRows(path string) ([]map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("reading header of %s: %w", path, err)
	}

	var rows []map[string]string
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue // Malformed auxiliary rows are skipped
		}
		fields := make(map[string]string, len(header))
		for i, col := range header {
			if i < len(row) {
				fields[col] = row[i]
			}
		}
		rows = append(rows, fields)
	}
	return rows, nil
}

// firstPerKey filters, orders and groups rows, keeping the first row for
// each key value.
func firstPerKey(rows []map[string]string, key string, where map[string]string, order string) map[string]map[string]string {
	filtered := rows[:0:0]
	for _, row := range rows {
		if matches(row, where) && row[key] != "" {
			filtered = append(filtered, row)
		}
	}
	if order != "" {
		sort.SliceStable(filtered, func(i, j int) bool {
			return filtered[i][order] < filtered[j][order]
		})
	}

	byKey := make(map[string]map[string]string)
	for _, row := range filtered {
		if _, ok := byKey[row[key]]; !ok {
			byKey[row[key]] = row
		}
	}
	return byKey
}

func matches(row, where map[string]string) bool {
	for col, want := range where {
		if row[col] != want {
			return false
		}
	}
	return true
}
