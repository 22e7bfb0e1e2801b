// Package export encodes tables for download: CSV text and single-sheet
// workbooks, both with a header row and no index column.
package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"

	"github.com/KaramelBytes/funnelboard/internal/table"
	"github.com/xuri/excelize/v2"
)

// DefaultSheet is the sheet name used when none is given.
const DefaultSheet = "Sheet1"

// WriteCSV writes t as comma-separated UTF-8 with a header row. A row made
// of a single empty cell is written as "" so it survives a reload.
func WriteCSV(w io.Writer, t *table.Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Names()); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i := 0; i < t.Len(); i++ {
		rec := t.Record(i)
		if len(rec) == 1 && rec[0] == "" {
			// a lone empty field is a blank line, which readers skip
			cw.Flush()
			if err := cw.Error(); err != nil {
				return err
			}
			if _, err := io.WriteString(w, "\"\"\n"); err != nil {
				return fmt.Errorf("write row %d: %w", i+1, err)
			}
			continue
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// CSV returns the CSV encoding of t.
func CSV(t *table.Table) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, t); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteXLSX writes t as a workbook with a single sheet. Numeric cells are
// stored as numbers, missing ones as empty cells.
func WriteXLSX(w io.Writer, t *table.Table, sheet string) error {
	if sheet == "" {
		sheet = DefaultSheet
	}
	f := excelize.NewFile()
	defer f.Close()
	if sheet != DefaultSheet {
		if err := f.SetSheetName(DefaultSheet, sheet); err != nil {
			return fmt.Errorf("name sheet: %w", err)
		}
	}

	header := make([]any, t.Width())
	for j, n := range t.Names() {
		header[j] = n
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	cols := t.Columns()
	row := make([]any, len(cols))
	for i := 0; i < t.Len(); i++ {
		for j := range cols {
			row[j] = cols[j].Value(i)
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// XLSX returns the workbook encoding of t.
func XLSX(t *table.Table, sheet string) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteXLSX(&buf, t, sheet); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
