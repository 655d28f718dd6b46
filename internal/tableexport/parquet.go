package tableexport

import (
	"fmt"
	"io"

	"github.com/parquet-go/parquet-go"

	"github.com/sheetchat/sheetchat/internal/catalog"
)

// ParquetSchema maps every header to an optional column: DOUBLE when every
// non-empty cell is numeric, otherwise string. Parquet orders group fields
// by name.
func ParquetSchema(table catalog.Table) (*parquet.Schema, map[string]bool) {
	group := parquet.Group{}
	numeric := make(map[string]bool, len(table.Headers))
	for _, header := range table.Headers {
		if _, dup := group[header]; dup {
			continue
		}
		numeric[header] = numericColumn(header, table.Rows)
		if numeric[header] {
			group[header] = parquet.Optional(parquet.Leaf(parquet.DoubleType))
		} else {
			group[header] = parquet.Optional(parquet.String())
		}
	}
	return parquet.NewSchema("table", group), numeric
}

func WriteParquet(w io.Writer, table catalog.Table) error {
	if len(table.Headers) == 0 {
		return fmt.Errorf("table has no headers")
	}
	schema, numeric := ParquetSchema(table)

	fields := schema.Fields()
	rows := make([]parquet.Row, 0, len(table.Rows))
	for _, src := range table.Rows {
		row := make(parquet.Row, len(fields))
		for col, field := range fields {
			row[col] = parquetValue(src[field.Name()], numeric[field.Name()], col)
		}
		rows = append(rows, row)
	}

	writer := parquet.NewWriter(w, schema)
	if len(rows) > 0 {
		if _, err := writer.WriteRows(rows); err != nil {
			return fmt.Errorf("write parquet rows: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close parquet writer: %w", err)
	}
	return nil
}

func numericColumn(header string, rows []map[string]any) bool {
	seen := false
	for _, row := range rows {
		value := row[header]
		if catalog.IsEmptyCell(value) {
			continue
		}
		if _, ok := catalog.NumericValue(value); !ok {
			return false
		}
		seen = true
	}
	return seen
}

// parquetValue places a cell in column col. Nulls sit at definition level 0.
func parquetValue(value any, numeric bool, col int) parquet.Value {
	if catalog.IsEmptyCell(value) {
		return parquet.NullValue().Level(0, 0, col)
	}
	if numeric {
		f, _ := catalog.NumericValue(value)
		return parquet.DoubleValue(f).Level(0, 1, col)
	}
	return parquet.ByteArrayValue([]byte(FormatCell(value))).Level(0, 1, col)
}
