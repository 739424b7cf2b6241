// Package datatable holds the materialized form of a registry resource: a
// named table of rows keyed by row name, plus the materializer that reads
// tables from files or SQLite databases.
package datatable

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/cespare/xxhash/v2"

	"github.com/zeusync/harmonia/internal/core/resource/registry"
)

// Row is one decoded table row.
type Row map[string]any

// Table is immutable once built; the loader hands the same *Table to every caller.
type Table struct {
	Key       registry.Key
	RowStruct string
	// Digest is an xxhash64 over the canonical JSON form of the rows.
	Digest uint64

	rows  map[string]Row
	names []string
}

// NewTable builds a table and computes its digest.
func NewTable(key registry.Key, rowStruct string, rows map[string]Row) (*Table, error) {
	if rows == nil {
		rows = map[string]Row{}
	}
	canonical, err := json.Marshal(struct {
		RowStruct string         `json:"row_struct"`
		Rows      map[string]Row `json:"rows"`
	}{rowStruct, rows})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}

	names := make([]string, 0, len(rows))
	for name := range rows {
		names = append(names, name)
	}
	sort.Strings(names)

	return &Table{
		Key:       key,
		RowStruct: rowStruct,
		Digest:    xxhash.Sum64(canonical),
		rows:      rows,
		names:     names,
	}, nil
}

func (t *Table) FindRow(name string) (Row, bool) {
	row, ok := t.rows[name]
	return row, ok
}

// RowNames returns row names in sorted order.
func (t *Table) RowNames() []string {
	out := make([]string, len(t.names))
	copy(out, t.names)
	return out
}

func (t *Table) Len() int {
	return len(t.rows)
}

// Each visits rows in RowNames order until fn returns false.
func (t *Table) Each(fn func(name string, row Row) bool) {
	for _, name := range t.names {
		if !fn(name, t.rows[name]) {
			return
		}
	}
}
