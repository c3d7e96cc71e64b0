// Package xlsx renders a month of work entries as an Excel workbook.
package xlsx

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"worklog/internal/core"
)

var header = []string{"Date", "Hours", "Hourly rate", "Estimated pay", "Description"}

// FileName returns the download name for a month export,
// e.g. work_log_general_2024_1.xlsx.
func FileName(job string, year, month int) string {
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, job)
	return fmt.Sprintf("work_log_%s_%d_%d.xlsx", safe, year, month)
}

// Write renders rows as a single-sheet workbook and writes it to w.
func Write(w io.Writer, job string, year, month int, rows []core.ExportRow) error {
	f := excelize.NewFile()
	defer f.Close()

	sheet := fmt.Sprintf("%s %d-%02d", job, year, month)
	if len(sheet) > 31 { // Excel sheet name limit
		sheet = sheet[:31]
	}
	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	for col, title := range header {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return fmt.Errorf("header cell: %w", err)
		}
		if err := f.SetCellValue(sheet, cell, title); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
	}

	for i, row := range rows {
		values := []any{row.Date, row.Hours, row.HourlyRate, row.EstimatedPay, row.Description}
		for col, v := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, i+2)
			if err != nil {
				return fmt.Errorf("row cell: %w", err)
			}
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return fmt.Errorf("write row %d: %w", i+1, err)
			}
		}
	}

	if err := f.SetColWidth(sheet, "A", "A", 12); err != nil {
		return fmt.Errorf("set column width: %w", err)
	}
	if err := f.SetColWidth(sheet, "B", "D", 14); err != nil {
		return fmt.Errorf("set column width: %w", err)
	}
	if err := f.SetColWidth(sheet, "E", "E", 40); err != nil {
		return fmt.Errorf("set column width: %w", err)
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}
