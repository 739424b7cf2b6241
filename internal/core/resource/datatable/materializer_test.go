package datatable

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/harmonia/internal/core/resource/registry"
)

const itemsJSON = `{
  "row_struct": "FHarmoniaItemData",
  "rows": {
    "Item_Sword_01": {"name": "Iron Sword", "damage": 12},
    "Item_Shield_01": {"name": "Wooden Shield", "damage": 0}
  }
}`

const itemsYAML = `row_struct: FHarmoniaItemData
rows:
  Item_Sword_01:
    name: Iron Sword
    damage: 12
  Item_Shield_01:
    name: Wooden Shield
    damage: 0
`

const itemSchema = `{
  "type": "object",
  "required": ["name", "damage"],
  "properties": {
    "name": {"type": "string"},
    "damage": {"type": "integer", "minimum": 0}
  }
}`

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(filepath.Join(dir, name)), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestMaterializeJSONAndYAMLAgree(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "tables/items.json", itemsJSON)
	writeFile(t, dir, "tables/items.yaml", itemsYAML)
	m := NewMaterializer(dir, nil)
	ctx := context.Background()

	fromJSON, err := m.Materialize(ctx, "Items", "tables/items.json")
	require.NoError(t, err)
	fromYAML, err := m.Materialize(ctx, "Items", "file://tables/items.yaml")
	require.NoError(t, err)

	assert.Equal(t, registry.Key("Items"), fromJSON.Key)
	assert.Equal(t, "FHarmoniaItemData", fromJSON.RowStruct)
	assert.Equal(t, []string{"Item_Shield_01", "Item_Sword_01"}, fromJSON.RowNames())
	assert.Equal(t, 2, fromYAML.Len())

	row, ok := fromYAML.FindRow("Item_Sword_01")
	require.True(t, ok)
	assert.Equal(t, "Iron Sword", row["name"])

	_, ok = fromJSON.FindRow("Item_Axe_01")
	assert.False(t, ok)
}

func TestMaterializeZstdCompressedTable(t *testing.T) {
	dir := t.TempDir()
	enc, err := zstd.NewWriter(nil)
	require.NoError(t, err)
	compressed := enc.EncodeAll([]byte(itemsJSON), nil)
	require.NoError(t, enc.Close())
	require.NoError(t, os.WriteFile(filepath.Join(dir, "items.json.zst"), compressed, 0o644))

	table, err := NewMaterializer(dir, nil).Materialize(context.Background(), "Items", "items.json.zst")
	require.NoError(t, err)
	assert.Equal(t, 2, table.Len())
}

func TestMaterializeValidatesRowsAgainstSchema(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "items.yaml", itemsYAML)
	writeFile(t, dir, "schemas/item.json", itemSchema)
	writeFile(t, dir, "bad.json", `{"rows": {"Broken": {"name": 5}}}`)
	m := NewMaterializer(dir, nil)

	_, err := m.Materialize(context.Background(), "Items", "items.yaml?schema=schemas/item.json")
	require.NoError(t, err)

	_, err = m.Materialize(context.Background(), "Bad", "bad.json?schema=schemas/item.json")
	assert.ErrorIs(t, err, ErrSchemaViolation)
}

func TestMaterializeSQLiteTable(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "world.db")
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE building_parts (name TEXT PRIMARY KEY, data TEXT NOT NULL)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO building_parts (name, data) VALUES (?, ?), (?, ?)`,
		"Wall_Wood", `{"part_type": "Wall", "health": 100}`,
		"Door_Wood", `{"part_type": "Door", "health": 60}`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	table, err := NewMaterializer(dir, nil).Materialize(context.Background(), "BuildingParts",
		"sqlite://world.db?table=building_parts&struct=FHarmoniaBuildingPartData")
	require.NoError(t, err)
	assert.Equal(t, "FHarmoniaBuildingPartData", table.RowStruct)
	assert.Equal(t, []string{"Door_Wood", "Wall_Wood"}, table.RowNames())

	row, ok := table.FindRow("Wall_Wood")
	require.True(t, ok)
	assert.Equal(t, "Wall", row["part_type"])

	ro, err := openReadOnly(path)
	require.NoError(t, err)
	defer ro.Close()
	_, err = ro.Exec(`DELETE FROM building_parts`)
	assert.Error(t, err, "data table connections must be read-only")
	var n int
	require.NoError(t, ro.QueryRow(`SELECT count(*) FROM building_parts`).Scan(&n))
	assert.Equal(t, 2, n)
}

func TestMaterializeErrors(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "items.txt", "nope")
	writeFile(t, dir, "broken.json", "{")
	m := NewMaterializer(dir, nil)
	ctx := context.Background()

	tests := []struct {
		name    string
		locator registry.Locator
		want    error
	}{
		{"missing file", "missing.json", ErrSourceNotFound},
		{"unknown scheme", "s3://bucket/items.json", ErrUnsupportedScheme},
		{"unknown format", "items.txt", ErrUnsupportedFormat},
		{"decode failure", "broken.json", ErrDecode},
		{"empty path", "file://", ErrInvalidLocator},
		{"bad sqlite table", "sqlite://world.db?table=drop;table", ErrInvalidLocator},
		{"missing sqlite db", "sqlite://none.db?table=items", ErrSourceNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.Materialize(ctx, "K", tt.locator)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestDigestTracksContent(t *testing.T) {
	a, err := NewTable("a", "S", map[string]Row{"r": {"v": 1}})
	require.NoError(t, err)
	b, err := NewTable("b", "S", map[string]Row{"r": {"v": 1}})
	require.NoError(t, err)
	c, err := NewTable("a", "S", map[string]Row{"r": {"v": 2}})
	require.NoError(t, err)

	assert.Equal(t, a.Digest, b.Digest)
	assert.NotEqual(t, a.Digest, c.Digest)

	visited := 0
	a.Each(func(string, Row) bool { visited++; return false })
	assert.Equal(t, 1, visited)
}
