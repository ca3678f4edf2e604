// Package report renders the pending alarm set as downloadable XLSX and
// PDF documents.
package report

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	"tag-monitor/internal/alarmstore"
)

func formatTS(millis int64) string {
	return time.UnixMilli(millis).UTC().Format(time.RFC3339)
}

// BuildAlarmsPDF renders a minimal PDF listing the pending alarms.
func BuildAlarmsPDF(records []alarmstore.Record, generatedAt time.Time) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Pending Alarms")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Generated: %s", generatedAt.UTC().Format(time.RFC3339)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Count: %d", len(records)))
	pdf.Ln(8)

	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(25, 6, "Kind", "1", 0, "C", false, 0, "")
	pdf.CellFormat(55, 6, "Identifier", "1", 0, "C", false, 0, "")
	pdf.CellFormat(30, 6, "Status", "1", 0, "C", false, 0, "")
	pdf.CellFormat(45, 6, "Timestamp", "1", 0, "C", false, 0, "")
	pdf.CellFormat(30, 6, "Send Type", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	for _, record := range records {
		pdf.CellFormat(25, 6, record.Kind, "1", 0, "C", false, 0, "")
		pdf.CellFormat(55, 6, record.ID, "1", 0, "L", false, 0, "")
		pdf.CellFormat(30, 6, statusLabel(record.Status), "1", 0, "C", false, 0, "")
		pdf.CellFormat(45, 6, formatTS(record.TS), "1", 0, "C", false, 0, "")
		pdf.CellFormat(30, 6, record.SendType, "1", 0, "C", false, 0, "")
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildAlarmsXLSX renders a minimal XLSX listing the pending alarms.
func BuildAlarmsXLSX(records []alarmstore.Record, generatedAt time.Time) ([]byte, error) {
	f := excelize.NewFile()
	summarySheet := "summary"
	alarmsSheet := "alarms"
	f.SetSheetName("Sheet1", summarySheet)
	f.NewSheet(alarmsSheet)

	_ = f.SetCellValue(summarySheet, "A1", "Pending Alarms")
	_ = f.SetCellValue(summarySheet, "A3", "Generated")
	_ = f.SetCellValue(summarySheet, "B3", generatedAt.UTC().Format(time.RFC3339))
	_ = f.SetCellValue(summarySheet, "A4", "Count")
	_ = f.SetCellValue(summarySheet, "B4", len(records))

	_ = f.SetCellValue(alarmsSheet, "A1", "Key")
	_ = f.SetCellValue(alarmsSheet, "B1", "Kind")
	_ = f.SetCellValue(alarmsSheet, "C1", "Identifier")
	_ = f.SetCellValue(alarmsSheet, "D1", "Status")
	_ = f.SetCellValue(alarmsSheet, "E1", "Timestamp")
	_ = f.SetCellValue(alarmsSheet, "F1", "Send Type")
	for i, record := range records {
		row := i + 2
		_ = f.SetCellValue(alarmsSheet, fmt.Sprintf("A%d", row), record.Key)
		_ = f.SetCellValue(alarmsSheet, fmt.Sprintf("B%d", row), record.Kind)
		_ = f.SetCellValue(alarmsSheet, fmt.Sprintf("C%d", row), record.ID)
		_ = f.SetCellValue(alarmsSheet, fmt.Sprintf("D%d", row), record.Status)
		_ = f.SetCellValue(alarmsSheet, fmt.Sprintf("E%d", row), formatTS(record.TS))
		_ = f.SetCellValue(alarmsSheet, fmt.Sprintf("F%d", row), record.SendType)
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// statusLabel maps the Korean status labels to ASCII for the PDF font,
// which cannot render Hangul.
func statusLabel(status string) string {
	switch status {
	case alarmstore.StatusError:
		return "ERROR"
	case alarmstore.StatusWarn:
		return "WARN"
	default:
		return status
	}
}
