package datatable

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
	_ "modernc.org/sqlite"

	"github.com/zeusync/harmonia/internal/core/observability/log"
	"github.com/zeusync/harmonia/internal/core/resource/registry"
)

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// document is the on-disk shape of a file table.
type document struct {
	RowStruct string         `json:"row_struct" yaml:"row_struct"`
	Rows      map[string]Row `json:"rows" yaml:"rows"`
}

// Materializer turns registry locators into tables. Relative paths resolve
// against root. Safe for concurrent use.
type Materializer struct {
	root   string
	logger log.Log

	mu      sync.Mutex
	schemas map[string]*jsonschema.Schema
}

func NewMaterializer(root string, logger log.Log) *Materializer {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Materializer{
		root:    root,
		logger:  logger.With(log.String("component", "datatable")),
		schemas: make(map[string]*jsonschema.Schema),
	}
}

// Materialize reads the table behind loc. The key is recorded on the table.
func (m *Materializer) Materialize(ctx context.Context, key registry.Key, loc registry.Locator) (*Table, error) {
	src, err := parseLocator(loc)
	if err != nil {
		return nil, err
	}
	if err = ctx.Err(); err != nil {
		return nil, err
	}

	var doc document
	switch src.scheme {
	case SchemeFile:
		doc, err = m.readFile(m.resolve(src.path))
	case SchemeSQLite:
		doc, err = m.readSQLite(ctx, m.resolve(src.path), src.params)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, src.scheme)
	}
	if err != nil {
		return nil, err
	}

	if schemaPath := src.params.Get("schema"); schemaPath != "" {
		if err = m.validate(m.resolve(schemaPath), doc.Rows); err != nil {
			return nil, err
		}
	}

	table, err := NewTable(key, doc.RowStruct, doc.Rows)
	if err != nil {
		return nil, err
	}
	m.logger.Debug("Table materialized",
		log.String("key", string(key)),
		log.String("scheme", src.scheme),
		log.Int("rows", table.Len()))
	return table, nil
}

func (m *Materializer) resolve(p string) string {
	if filepath.IsAbs(p) || m.root == "" {
		return p
	}
	return filepath.Join(m.root, p)
}

func (m *Materializer) readFile(path string) (document, error) {
	var doc document
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return doc, fmt.Errorf("%w: %s", ErrSourceNotFound, path)
		}
		return doc, err
	}

	name := path
	if strings.HasSuffix(name, ".zst") {
		raw, err = decompress(raw)
		if err != nil {
			return doc, fmt.Errorf("%w: zstd %s: %w", ErrDecode, path, err)
		}
		name = strings.TrimSuffix(name, ".zst")
	}

	switch strings.ToLower(filepath.Ext(name)) {
	case ".json":
		err = json.Unmarshal(raw, &doc)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(raw, &doc)
	default:
		return doc, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
	if err != nil {
		return doc, fmt.Errorf("%w: %s: %w", ErrDecode, path, err)
	}
	return doc, nil
}

func decompress(raw []byte) ([]byte, error) {
	dec, err := zstd.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	return io.ReadAll(dec)
}

func (m *Materializer) readSQLite(ctx context.Context, path string, params map[string][]string) (document, error) {
	doc := document{Rows: map[string]Row{}}
	table := first(params["table"])
	if !identifier.MatchString(table) {
		return doc, fmt.Errorf("%w: sqlite table %q", ErrInvalidLocator, table)
	}
	doc.RowStruct = first(params["struct"])

	// sql.Open would happily create a missing database file.
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return doc, fmt.Errorf("%w: %s", ErrSourceNotFound, path)
		}
		return doc, err
	}

	db, err := openReadOnly(path)
	if err != nil {
		return doc, err
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, "SELECT name, data FROM "+table)
	if err != nil {
		return doc, fmt.Errorf("query %s: %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			name string
			data string
		)
		if err = rows.Scan(&name, &data); err != nil {
			return doc, err
		}
		var row Row
		if err = json.Unmarshal([]byte(data), &row); err != nil {
			return doc, fmt.Errorf("%w: row %q: %w", ErrDecode, name, err)
		}
		doc.Rows[name] = row
	}
	return doc, rows.Err()
}

func (m *Materializer) validate(schemaPath string, rows map[string]Row) error {
	schema, err := m.schema(schemaPath)
	if err != nil {
		return err
	}
	for name, row := range rows {
		// Round-trip through JSON so YAML ints and nested maps look like
		// what the validator expects.
		raw, err := json.Marshal(row)
		if err != nil {
			return fmt.Errorf("%w: row %q: %w", ErrDecode, name, err)
		}
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		var v any
		if err = dec.Decode(&v); err != nil {
			return fmt.Errorf("%w: row %q: %w", ErrDecode, name, err)
		}
		if err = schema.Validate(v); err != nil {
			return fmt.Errorf("%w: row %q: %w", ErrSchemaViolation, name, err)
		}
	}
	return nil
}

func (m *Materializer) schema(path string) (*jsonschema.Schema, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.schemas[path]; ok {
		return s, nil
	}
	s, err := jsonschema.Compile(path)
	if err != nil {
		return nil, fmt.Errorf("compile schema %s: %w", path, err)
	}
	m.schemas[path] = s
	return s, nil
}

func first(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

// openReadOnly opens a data table database with mode=ro so a materializer
// can never modify its source.
func openReadOnly(path string) (*sql.DB, error) {
	return sql.Open("sqlite", "file:"+filepath.ToSlash(path)+"?mode=ro")
}
