package catalog

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

const (
	TransitFileID   = "mock-file-1"
	TransitFilename = "transit_data.xlsx"
)

var allowedUploadExtensions = map[string]struct{}{
	".xlsx": {},
	".xls":  {},
}

// AllowedUpload reports whether name carries a spreadsheet extension.
func AllowedUpload(name string) bool {
	_, ok := allowedUploadExtensions[strings.ToLower(filepath.Ext(name))]
	return ok
}

// MockParse stands in for workbook parsing. It ignores the payload and returns
// a single sample table titled after the uploaded name.
func MockParse(originalName string, now time.Time) CreateFileInput {
	return CreateFileInput{
		Filename:     fmt.Sprintf("uploaded_%d.xlsx", now.UnixMilli()),
		OriginalName: originalName,
		Tables: TablesData{
			"uploadedTable1": {
				Title:   "Data from " + originalName,
				Headers: []string{"Column1", "Column2", "Column3"},
				Rows: []map[string]any{
					{"Column1": "Sample", "Column2": "Data", "Column3": "123"},
					{"Column1": "More", "Column2": "Information", "Column3": "456"},
				},
			},
		},
	}
}

// TransitWorkbook is the demo file available at startup.
func TransitWorkbook(uploadedAt time.Time) ExcelFile {
	return ExcelFile{
		ID:           TransitFileID,
		Filename:     TransitFilename,
		OriginalName: TransitFilename,
		UploadedAt:   uploadedAt,
		Tables: TablesData{
			"redLinePerformanceSummary": {
				Title:   "Red Line Performance Summary",
				Headers: []string{"Metric", "Value"},
				Rows: []map[string]any{
					{"Metric": "TSA", "Value": "✔️ 100.000%"},
					{"Metric": "TSP", "Value": "✔️ 100.000%"},
					{"Metric": "Trips not punctual", "Value": 0},
					{"Metric": "Cancelled", "Value": 0},
				},
			},
			"greenLinePerformanceSummary": {
				Title:   "Green Line Performance Summary",
				Headers: []string{"Metric", "Value"},
				Rows: []map[string]any{
					{"Metric": "TSA", "Value": "✔️ 100.000%"},
					{"Metric": "TSP", "Value": "✔️ 99.478%"},
					{"Metric": "Trips not punctual", "Value": 2},
					{"Metric": "Cancelled", "Value": 0},
				},
			},
			"blueLineIncidents": {
				Title:   "Blue Line Incidents",
				Headers: []string{"Time", "Type", "Duration", "Impact"},
				Rows: []map[string]any{
					{"Time": "08:15", "Type": "Signal Issue", "Duration": "15 min", "Impact": "Minor delay"},
					{"Time": "14:30", "Type": "Maintenance", "Duration": "45 min", "Impact": "Service suspension"},
					{"Time": "18:45", "Type": "Equipment failure", "Duration": "20 min", "Impact": "Reduced capacity"},
				},
			},
			"monthlyRidership": {
				Title:   "Monthly Ridership Data",
				Headers: []string{"Month", "Passengers", "Revenue", "Growth"},
				Rows: []map[string]any{
					{"Month": "Jan 2024", "Passengers": 2450000, "Revenue": "$4,900,000", "Growth": "5.2%"},
					{"Month": "Feb 2024", "Passengers": 2380000, "Revenue": "$4,760,000", "Growth": "3.8%"},
					{"Month": "Mar 2024", "Passengers": 2620000, "Revenue": "$5,240,000", "Growth": "7.1%"},
				},
			},
			"stationCapacityAnalysis": {
				Title:   "Station Capacity Analysis",
				Headers: []string{"Station", "Capacity", "Current Usage", "Utilization"},
				Rows: []map[string]any{
					{"Station": "Central Station", "Capacity": 50000, "Current Usage": 42000, "Utilization": "84%"},
					{"Station": "North Terminal", "Capacity": 35000, "Current Usage": 28000, "Utilization": "80%"},
					{"Station": "South Hub", "Capacity": 40000, "Current Usage": 35000, "Utilization": "87.5%"},
				},
			},
		},
	}
}
