// Package exports renders measurement history and daily snapshots as
// downloadable documents.
package exports

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"sort"
	"strconv"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	"gasmonitor-cloud/internal/jsontime"
	measurements "gasmonitor-cloud/internal/measurements/domain"
	snapshots "gasmonitor-cloud/internal/snapshots/domain"
)

// BuildMeasurementsCSV renders a CSV export of measurements.
func BuildMeasurementsCSV(list []measurements.Measurement) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	if err := writer.Write([]string{"id", "gas_type_id", "gas", "value", "threshold", "measured_at"}); err != nil {
		return nil, err
	}
	for _, m := range list {
		gas := ""
		if m.GasType != nil {
			gas = m.GasType.Name
		}
		record := []string{
			strconv.FormatInt(m.ID, 10),
			strconv.FormatInt(m.GasTypeID, 10),
			gas,
			strconv.FormatFloat(m.Value, 'f', -1, 64),
			strconv.FormatFloat(m.Threshold, 'f', -1, 64),
			m.MeasuredAt.UTC().Format(jsontime.Layout),
		}
		if err := writer.Write(record); err != nil {
			return nil, err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildMeasurementsXLSX renders an XLSX export of measurements.
func BuildMeasurementsXLSX(list []measurements.Measurement) ([]byte, error) {
	f := excelize.NewFile()
	sheet := "measurements"
	f.SetSheetName("Sheet1", sheet)

	_ = f.SetCellValue(sheet, "A1", "ID")
	_ = f.SetCellValue(sheet, "B1", "Gas Type ID")
	_ = f.SetCellValue(sheet, "C1", "Gas")
	_ = f.SetCellValue(sheet, "D1", "Value")
	_ = f.SetCellValue(sheet, "E1", "Threshold")
	_ = f.SetCellValue(sheet, "F1", "Measured At")
	for i, m := range list {
		row := i + 2
		gas := ""
		if m.GasType != nil {
			gas = m.GasType.Name
		}
		_ = f.SetCellValue(sheet, fmt.Sprintf("A%d", row), m.ID)
		_ = f.SetCellValue(sheet, fmt.Sprintf("B%d", row), m.GasTypeID)
		_ = f.SetCellValue(sheet, fmt.Sprintf("C%d", row), gas)
		_ = f.SetCellValue(sheet, fmt.Sprintf("D%d", row), m.Value)
		_ = f.SetCellValue(sheet, fmt.Sprintf("E%d", row), m.Threshold)
		_ = f.SetCellValue(sheet, fmt.Sprintf("F%d", row), m.MeasuredAt.UTC().Format(jsontime.Layout))
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildSnapshotPDF renders a minimal PDF for a daily snapshot.
func BuildSnapshotPDF(snap *snapshots.DailySnapshot) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Daily Alarm Snapshot")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Reference Date: %s", snap.ReferenceDate.Format("2006-01-02")))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Generated: %s", snap.GeneratedAt.UTC().Format(jsontime.Layout)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Total Activations: %d", snap.TotalActivations))
	pdf.Ln(8)

	// Per-gas table
	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(40, 6, "Gas Type ID", "1", 0, "C", false, 0, "")
	pdf.CellFormat(70, 6, "Gas", "1", 0, "C", false, 0, "")
	pdf.CellFormat(40, 6, "Alarms", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)

	keys := make([]string, 0, len(snap.CountsByGas))
	for key := range snap.CountsByGas {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		bucket := snap.CountsByGas[key]
		name := ""
		if bucket.Name != nil {
			name = *bucket.Name
		}
		pdf.CellFormat(40, 6, key, "1", 0, "C", false, 0, "")
		pdf.CellFormat(70, 6, name, "1", 0, "L", false, 0, "")
		pdf.CellFormat(40, 6, strconv.Itoa(bucket.Count), "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}

	if len(snap.AlarmList) > 0 {
		pdf.Ln(4)
		pdf.SetFont("Arial", "B", 10)
		pdf.CellFormat(25, 6, "Alarm", "1", 0, "C", false, 0, "")
		pdf.CellFormat(30, 6, "Gas Type", "1", 0, "C", false, 0, "")
		pdf.CellFormat(25, 6, "State", "1", 0, "C", false, 0, "")
		pdf.CellFormat(25, 6, "Readings", "1", 0, "C", false, 0, "")
		pdf.CellFormat(45, 6, "Opened", "1", 0, "C", false, 0, "")
		pdf.Ln(-1)
		pdf.SetFont("Arial", "", 10)
		for _, alarm := range snap.AlarmList {
			pdf.CellFormat(25, 6, strconv.FormatInt(alarm.ID, 10), "1", 0, "C", false, 0, "")
			pdf.CellFormat(30, 6, strconv.FormatInt(alarm.GasTypeID, 10), "1", 0, "C", false, 0, "")
			pdf.CellFormat(25, 6, alarm.Status, "1", 0, "C", false, 0, "")
			pdf.CellFormat(25, 6, strconv.Itoa(alarm.Count), "1", 0, "R", false, 0, "")
			pdf.CellFormat(45, 6, alarm.CreatedAt.UTC().Format(jsontime.Layout), "1", 0, "C", false, 0, "")
			pdf.Ln(-1)
		}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
