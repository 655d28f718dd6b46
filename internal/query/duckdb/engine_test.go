package duckdb

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sheetchat/sheetchat/internal/catalog"
	"github.com/sheetchat/sheetchat/internal/query"
)

func transitTables() catalog.TablesData {
	return catalog.TransitWorkbook(time.Now()).Tables
}

func TestExecuteAggregatesOverTableKeys(t *testing.T) {
	engine := NewEngine()
	tables := transitTables().Select([]string{"stationCapacityAnalysis"})

	result, err := engine.Execute(context.Background(), query.Request{
		SQL:    `SELECT COUNT(*) AS c, SUM("Capacity") AS total FROM stationCapacityAnalysis`,
		Tables: tables,
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if len(result.Rows) != 1 {
		t.Fatalf("rows = %d", len(result.Rows))
	}
	if result.Rows[0][0] != int64(3) {
		t.Fatalf("count = %#v", result.Rows[0][0])
	}
	if result.Rows[0][1] != float64(125000) {
		t.Fatalf("total = %#v", result.Rows[0][1])
	}
	if result.ScannedTables != 1 || result.ScannedRows != 3 {
		t.Fatalf("scanned = %d tables / %d rows", result.ScannedTables, result.ScannedRows)
	}
}

func TestExecuteSupportsTrailingSemicolonWithRowLimit(t *testing.T) {
	engine := NewEngine()

	result, err := engine.Execute(context.Background(), query.Request{
		SQL:      `SELECT "Month" FROM monthlyRidership ORDER BY "Month";`,
		RowLimit: 2,
		Tables:   transitTables(),
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if len(result.Rows) != 2 {
		t.Fatalf("rows = %d", len(result.Rows))
	}
	if result.Columns[0] != "Month" {
		t.Fatalf("columns = %v", result.Columns)
	}
	if result.Rows[0][0] != "Feb 2024" {
		t.Fatalf("first month = %#v", result.Rows[0][0])
	}
}

func TestExecuteJoinsTables(t *testing.T) {
	engine := NewEngine()

	result, err := engine.Execute(context.Background(), query.Request{
		SQL:    `SELECT r."Metric" FROM redLinePerformanceSummary r JOIN greenLinePerformanceSummary g USING ("Metric") ORDER BY 1`,
		Tables: transitTables(),
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if len(result.Rows) != 4 {
		t.Fatalf("rows = %d", len(result.Rows))
	}
}

func TestExecuteRejectsWritesAndExternalAccess(t *testing.T) {
	engine := NewEngine()
	tables := transitTables()

	_, err := engine.Execute(context.Background(), query.Request{SQL: "DROP TABLE monthlyRidership", Tables: tables})
	if !errors.Is(err, query.ErrReadOnly) {
		t.Fatalf("err = %v, want ErrReadOnly", err)
	}

	_, err = engine.Execute(context.Background(), query.Request{SQL: "SELECT * FROM read_csv('/etc/hosts')", Tables: tables})
	if err == nil {
		t.Fatal("expected external file access to fail")
	}
}

func TestExecuteRequiresTables(t *testing.T) {
	_, err := NewEngine().Execute(context.Background(), query.Request{SQL: "SELECT 1"})
	if err == nil {
		t.Fatal("expected error without tables")
	}
}

func TestSanitizeFileComponent(t *testing.T) {
	if got := sanitizeFileComponent("../etc/x y"); got != "___etc_x_y" {
		t.Fatalf("sanitizeFileComponent() = %q", got)
	}
	if got := sanitizeFileComponent(""); got != "table" {
		t.Fatalf("sanitizeFileComponent(\"\") = %q", got)
	}
}
