package invoice

import (
	"fmt"

	"github.com/xuri/excelize/v2"
)

const exportSheet = "Invoices"

// exportHeaders is the fixed column set of the exported workbook, in order
var exportHeaders = []string{"Date", "Vendor", "Amount", "Currency", "Category"}

// ExportXLSX serializes records to an XLSX workbook: one row per record in
// ledger order, one column per field. An empty ledger produces a workbook
// with only the header row. Tabular content is deterministic, so exporting an
// unmodified ledger twice yields identical rows.
func ExportXLSX(records []*Record) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(exportSheet)
	if err != nil {
		return nil, fmt.Errorf("creating sheet: %w", err)
	}
	f.SetActiveSheet(index)
	// Drop the default sheet so the workbook opens on Invoices
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("removing default sheet: %w", err)
	}

	for i, h := range exportHeaders {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return nil, fmt.Errorf("resolving header cell: %w", err)
		}
		if err := f.SetCellValue(exportSheet, cell, h); err != nil {
			return nil, fmt.Errorf("writing header: %w", err)
		}
	}

	for row, r := range records {
		amount := ""
		if r.Amount != nil {
			amount = fmt.Sprintf("%.2f", *r.Amount)
		}
		values := []string{r.Date, r.Vendor, amount, r.Currency, r.Category}
		for col, v := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, row+2)
			if err != nil {
				return nil, fmt.Errorf("resolving cell: %w", err)
			}
			if err := f.SetCellValue(exportSheet, cell, v); err != nil {
				return nil, fmt.Errorf("writing row %d: %w", row+1, err)
			}
		}
	}

	// Widen columns for readability
	_ = f.SetColWidth(exportSheet, "A", "A", 14)
	_ = f.SetColWidth(exportSheet, "B", "B", 28)
	_ = f.SetColWidth(exportSheet, "C", "C", 14)
	_ = f.SetColWidth(exportSheet, "D", "D", 10)
	_ = f.SetColWidth(exportSheet, "E", "E", 18)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}
