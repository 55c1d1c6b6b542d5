package results

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/scylladb/argus-sub001/internal/model"
)

func TestExportXLSX(t *testing.T) {
	value := 1000.5
	text := "ok"
	tables := []TableRunResults{{
		Meta: model.TableMetadata{
			Name: "Throughput Results",
			ColumnsMeta: []model.ColumnMeta{
				{Name: "ops", Unit: "ops/s", Type: model.TypeFloat},
				{Name: "notes", Type: model.TypeText},
			},
			RowsMeta: []string{"mixed", "write"},
		},
		Cells: map[string]map[string]model.DataPoint{
			"mixed": {
				"ops":   {Value: &value, Status: model.StatusPass},
				"notes": {ValueText: &text, Status: model.StatusUnset},
			},
		},
	}}

	var buf bytes.Buffer
	require.NoError(t, ExportXLSX(&buf, tables))

	file, err := xlsx.OpenBinary(buf.Bytes())
	require.NoError(t, err)
	require.Len(t, file.Sheets, 1)

	sheet := file.Sheets[0]
	assert.Equal(t, "Throughput Results", sheet.Name)

	header := sheet.Rows[0]
	assert.Equal(t, "Row", header.Cells[0].String())
	assert.Equal(t, "ops [ops/s]", header.Cells[1].String())

	// Only the row with cells is written.
	require.Len(t, sheet.Rows, 2)
	row := sheet.Rows[1]
	assert.Equal(t, "mixed", row.Cells[0].String())
	got, err := row.Cells[1].Float()
	require.NoError(t, err)
	assert.Equal(t, 1000.5, got)
	assert.Equal(t, "PASS", row.Cells[2].String())
	assert.Equal(t, "ok", row.Cells[3].String())
}

func TestExportXLSXLongTableName(t *testing.T) {
	tables := []TableRunResults{{
		Meta: model.TableMetadata{
			Name:     "a table name that is far longer than the sheet name limit",
			RowsMeta: []string{"r"},
		},
	}}

	var buf bytes.Buffer
	require.NoError(t, ExportXLSX(&buf, tables))

	file, err := xlsx.OpenBinary(buf.Bytes())
	require.NoError(t, err)
	require.Len(t, file.Sheets, 1)
	assert.Len(t, file.Sheets[0].Name, maxSheetName)
}
