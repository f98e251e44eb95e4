package reports

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

func writeSheet(w io.Writer, headings []string, rows [][]interface{}) error {
	f := excelize.NewFile()
	sheetName := "Sheet1"
	if _, err := f.NewSheet(sheetName); err != nil {
		return err
	}

	col := 'A'
	for _, h := range headings {
		f.SetCellValue(sheetName, string(col)+"1", h)
		col++
	}

	for i, row := range rows {
		col := 'A'
		for _, value := range row {
			f.SetCellValue(sheetName, string(col)+fmt.Sprint(i+2), value)
			col++
		}
	}

	return f.Write(w)
}

// ExportUtilizationExcel streams the utilization report as an xlsx workbook.
func ExportUtilizationExcel(w io.Writer, data []*StaffUtilization) error {
	rows := make([][]interface{}, 0, len(data))
	for _, d := range data {
		rows = append(rows, []interface{}{
			d.StaffName,
			d.AvailableHours.InexactFloat64(),
			d.AllocatedHours.InexactFloat64(),
			d.UtilizedHours.InexactFloat64(),
			d.RemainingHours.InexactFloat64(),
			d.UtilizationPercentage.Round(2).InexactFloat64(),
			d.AllocationPercentage.Round(2).InexactFloat64(),
			d.WorkingDays,
			d.OverallocatedDays,
		})
	}
	return writeSheet(w, []string{
		"StaffName", "AvailableHours", "AllocatedHours", "UtilizedHours",
		"RemainingHours", "Utilization%", "Allocation%", "WorkingDays", "OverallocatedDays",
	}, rows)
}

// ExportProjectTimeExcel streams the project time report as an xlsx workbook.
func ExportProjectTimeExcel(w io.Writer, data []*ProjectTime) error {
	rows := make([][]interface{}, 0, len(data))
	for _, d := range data {
		rows = append(rows, []interface{}{
			d.ProjectName,
			d.EntryCount,
			d.TotalHours.InexactFloat64(),
			d.BillableHours.InexactFloat64(),
			d.CostAmount.InexactFloat64(),
			d.BillableAmount.InexactFloat64(),
		})
	}
	return writeSheet(w, []string{
		"ProjectName", "EntryCount", "TotalHours", "BillableHours", "CostAmount", "BillableAmount",
	}, rows)
}
