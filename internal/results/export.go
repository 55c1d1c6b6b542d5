package results

import (
	"io"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// maxSheetName is the xlsx sheet-name limit.
const maxSheetName = 31

// ExportXLSX writes one worksheet per result table: a header row with the
// column names (units appended), then one row per row label with each
// cell's value and status.
func ExportXLSX(w io.Writer, tables []TableRunResults) error {
	file := xlsx.NewFile()

	for _, table := range tables {
		sheet, err := file.AddSheet(sheetName(table.Meta.Name))
		if err != nil {
			return eris.Wrapf(err, "xlsx: add sheet %q", table.Meta.Name)
		}

		header := sheet.AddRow()
		header.AddCell().SetString("Row")
		for _, column := range table.Meta.ColumnsMeta {
			title := column.Name
			if column.Unit != "" {
				title += " [" + column.Unit + "]"
			}
			header.AddCell().SetString(title)
			header.AddCell().SetString("Status")
		}

		for _, rowLabel := range table.Meta.RowsMeta {
			cells := table.Cells[rowLabel]
			if cells == nil {
				continue
			}
			row := sheet.AddRow()
			row.AddCell().SetString(rowLabel)
			for _, column := range table.Meta.ColumnsMeta {
				point, ok := cells[column.Name]
				if !ok {
					row.AddCell()
					row.AddCell()
					continue
				}
				switch {
				case point.Value != nil:
					row.AddCell().SetFloat(*point.Value)
				case point.ValueText != nil:
					row.AddCell().SetString(*point.ValueText)
				default:
					row.AddCell()
				}
				row.AddCell().SetString(string(point.Status))
			}
		}
	}

	return eris.Wrap(file.Write(w), "xlsx: write workbook")
}

func sheetName(name string) string {
	if len(name) > maxSheetName {
		return name[:maxSheetName]
	}
	return name
}
