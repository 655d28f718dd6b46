package tableexport

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/sheetchat/sheetchat/internal/catalog"
)

const maxSheetNameLen = 31

// WriteXLSX writes table to a single-sheet workbook named after its title.
// Numeric cells stay numeric.
func WriteXLSX(w io.Writer, table catalog.Table) (err error) {
	f := excelize.NewFile()
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("close workbook: %w", closeErr)
		}
	}()

	sheet := SheetName(table.Title)
	if sheet != "Sheet1" {
		if err := f.SetSheetName("Sheet1", sheet); err != nil {
			return fmt.Errorf("rename sheet: %w", err)
		}
	}

	header := make([]any, len(table.Headers))
	for i, h := range table.Headers {
		header[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("write header row: %w", err)
	}

	for r, row := range table.Rows {
		values := make([]any, len(table.Headers))
		for c, h := range table.Headers {
			values[c] = xlsxValue(row[h])
		}
		cell, err := excelize.CoordinatesToCellName(1, r+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return fmt.Errorf("write row %d: %w", r+1, err)
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func xlsxValue(value any) any {
	switch v := value.(type) {
	case nil:
		return nil
	case string, float64, float32, int, int64, bool:
		return v
	default:
		return FormatCell(v)
	}
}

// SheetName strips characters Excel rejects in sheet names and bounds the
// length.
func SheetName(title string) string {
	replacer := strings.NewReplacer(":", " ", "\\", " ", "/", " ", "?", " ", "*", " ", "[", "(", "]", ")")
	name := strings.TrimSpace(strings.Trim(replacer.Replace(title), "'"))
	if name == "" {
		return "Sheet1"
	}
	runes := []rune(name)
	if len(runes) > maxSheetNameLen {
		name = strings.TrimSpace(string(runes[:maxSheetNameLen]))
	}
	return name
}
