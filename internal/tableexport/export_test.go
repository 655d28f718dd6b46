package tableexport

import (
	"bytes"
	"testing"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/sheetchat/sheetchat/internal/catalog"
)

func ridership() catalog.Table {
	return catalog.TransitWorkbook(time.Now()).Tables["monthlyRidership"]
}

func TestParseFormat(t *testing.T) {
	format, err := ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatCSV, format)

	format, err = ParseFormat(" XLSX ")
	require.NoError(t, err)
	assert.Equal(t, FormatXLSX, format)

	_, err = ParseFormat("pdf")
	require.Error(t, err)
}

func TestWriteCSVFollowsHeaderOrder(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatCSV, ridership()))

	want := "Month,Passengers,Revenue,Growth\n" +
		"Jan 2024,2450000,\"$4,900,000\",5.2%\n" +
		"Feb 2024,2380000,\"$4,760,000\",3.8%\n" +
		"Mar 2024,2620000,\"$5,240,000\",7.1%\n"
	assert.Equal(t, want, buf.String())
}

func TestWriteCSVBlankForMissingCells(t *testing.T) {
	table := catalog.Table{
		Title:   "t",
		Headers: []string{"a", "b"},
		Rows:    []map[string]any{{"a": 1.5, "extra": "x"}, {"b": true}},
	}
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, table))
	assert.Equal(t, "a,b\n1.5,\n,true\n", buf.String())
}

func TestWriteXLSXRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatXLSX, ridership()))

	f, err := excelize.OpenReader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	require.Equal(t, []string{"Monthly Ridership Data"}, sheets)
	rows, err := f.GetRows(sheets[0])
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, []string{"Month", "Passengers", "Revenue", "Growth"}, rows[0])
	assert.Equal(t, "Feb 2024", rows[2][0])
	assert.Equal(t, "2380000", rows[2][1])

	cellType, err := f.GetCellType(sheets[0], "B2")
	require.NoError(t, err)
	assert.NotEqual(t, excelize.CellTypeSharedString, cellType)
}

func TestSheetName(t *testing.T) {
	assert.Equal(t, "Sheet1", SheetName("  "))
	assert.Equal(t, "Q1 (draft) a b", SheetName("Q1 [draft] a/b"))
	assert.Len(t, []rune(SheetName("A very long table title that exceeds the limit")), maxSheetNameLen)
}

func TestWriteParquetSchemaAndRows(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatParquet, ridership()))

	file, err := parquet.OpenFile(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)
	assert.Equal(t, int64(3), file.NumRows())

	kinds := map[string]parquet.Kind{}
	for _, field := range file.Schema().Fields() {
		assert.True(t, field.Optional(), "field %s should be optional", field.Name())
		kinds[field.Name()] = field.Type().Kind()
	}
	assert.Equal(t, parquet.Double, kinds["Passengers"])
	assert.Equal(t, parquet.ByteArray, kinds["Revenue"])
	assert.Equal(t, parquet.ByteArray, kinds["Month"])
}

func TestParquetSchemaTreatsEmptyColumnAsString(t *testing.T) {
	table := catalog.Table{
		Title:   "t",
		Headers: []string{"empty", "nums"},
		Rows:    []map[string]any{{"nums": "12"}, {"nums": nil, "empty": ""}},
	}
	_, numeric := ParquetSchema(table)
	assert.False(t, numeric["empty"])
	assert.True(t, numeric["nums"])

	var buf bytes.Buffer
	require.NoError(t, WriteParquet(&buf, table))
}
