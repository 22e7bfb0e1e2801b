package parser

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/KaramelBytes/funnelboard/internal/table"
	"github.com/xuri/excelize/v2"
)

type xlsxDecoder struct{}

func (xlsxDecoder) Name() string { return "xlsx" }

func (xlsxDecoder) CanParse(filename string) bool {
	name := strings.ToLower(filename)
	return strings.HasSuffix(name, ".xlsx") || strings.HasSuffix(name, ".xlsm")
}

func (xlsxDecoder) Sniff(data []byte) bool {
	return bytes.HasPrefix(data, []byte("PK\x03\x04"))
}

// Decode reads the selected sheet (the first one by default). The first row
// is the header.
func (xlsxDecoder) Decode(data []byte, opt Options) (*table.Table, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, &FormatError{Format: "xlsx", Err: err}
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, &FormatError{Format: "xlsx", Reason: "workbook has no sheets"}
	}
	sheet := sheets[0]
	if opt.Sheet != "" {
		sheet = ""
		for _, s := range sheets {
			if strings.EqualFold(s, opt.Sheet) {
				sheet = s
				break
			}
		}
		if sheet == "" {
			return nil, &FormatError{Format: "xlsx", Reason: fmt.Sprintf("sheet %q not found (available: %s)", opt.Sheet, strings.Join(sheets, ", "))}
		}
	}
	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, &FormatError{Format: "xlsx", Err: err}
	}
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, &FormatError{Format: "xlsx", Reason: "no header row"}
	}
	t, err := table.FromRecords(rows[0], rows[1:], opt.Table)
	if err != nil {
		return nil, &FormatError{Format: "xlsx", Err: err}
	}
	return t, nil
}
