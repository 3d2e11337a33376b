// Package report renders per-result measurement tables as spreadsheets.
package report

import (
	"time"

	"github.com/BearBump/CalibBox/internal/models"
	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"
)

const sheetName = "Measurements"

var measurementHeader = []string{"#", "Nominal", "Measured", "Error", "Uncertainty"}

type MeasurementTable struct {
	Equipment *models.Equipment
	Reference *models.Equipment
	Result    *models.CalibrationResult
	Points    []*models.MeasurementResult
}

// MeasurementWorkbook writes a header block describing the calibration followed by one
// row per point in insertion order.
func MeasurementWorkbook(t MeasurementTable) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	index, err := f.NewSheet(sheetName)
	if err != nil {
		return nil, errors.Wrap(err, "create sheet")
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, errors.Wrap(err, "delete default sheet")
	}
	f.SetActiveSheet(index)

	bold, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "create header style")
	}

	meta := [][2]any{
		{"Equipment", equipmentLabel(t.Equipment)},
		{"Reference standard", equipmentLabel(t.Reference)},
	}
	if t.Result != nil {
		verdict := "FAIL"
		if t.Result.Pass {
			verdict = "PASS"
		}
		meta = append(meta,
			[2]any{"Calibration date", t.Result.CalibrationDate.UTC().Format(time.DateOnly)},
			[2]any{"Temperature", t.Result.Environment.Temperature},
			[2]any{"Humidity", t.Result.Environment.Humidity},
			[2]any{"Verdict", verdict},
		)
	}
	for i, kv := range meta {
		row := i + 1
		if err := setRow(f, row, kv[0], kv[1]); err != nil {
			return nil, err
		}
		cell, _ := excelize.CoordinatesToCellName(1, row)
		if err := f.SetCellStyle(sheetName, cell, cell, bold); err != nil {
			return nil, errors.Wrap(err, "style meta")
		}
	}

	headerRow := len(meta) + 2
	header := make([]any, len(measurementHeader))
	for i, h := range measurementHeader {
		header[i] = h
	}
	if err := setRow(f, headerRow, header...); err != nil {
		return nil, err
	}
	first, _ := excelize.CoordinatesToCellName(1, headerRow)
	last, _ := excelize.CoordinatesToCellName(len(measurementHeader), headerRow)
	if err := f.SetCellStyle(sheetName, first, last, bold); err != nil {
		return nil, errors.Wrap(err, "style header")
	}
	if err := f.SetColWidth(sheetName, "A", "A", 20); err != nil {
		return nil, errors.Wrap(err, "set column width")
	}
	if err := f.SetColWidth(sheetName, "B", "E", 14); err != nil {
		return nil, errors.Wrap(err, "set column width")
	}

	for i, p := range t.Points {
		var uncertainty any
		if p.Uncertainty != nil {
			uncertainty = *p.Uncertainty
		}
		if err := setRow(f, headerRow+1+i, i+1, p.Nominal, p.Measured, p.Error, uncertainty); err != nil {
			return nil, err
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, errors.Wrap(err, "write workbook")
	}
	return buf.Bytes(), nil
}

func setRow(f *excelize.File, row int, values ...any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return errors.Wrap(err, "cell name")
	}
	vals := values
	if err := f.SetSheetRow(sheetName, cell, &vals); err != nil {
		return errors.Wrapf(err, "write row %d", row)
	}
	return nil
}

func equipmentLabel(e *models.Equipment) string {
	if e == nil {
		return ""
	}
	return e.Name + " (" + e.SerialNumber + ")"
}
