package table

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Options controls how text cells are turned into typed columns.
type Options struct {
	// DecimalSeparator for numbers. If 0, auto-detect per value.
	DecimalSeparator rune
	// ThousandsSeparator is optional; if 0, common separators other than the decimal one are dropped.
	ThousandsSeparator rune
	// MaxRows limits rows kept; 0 means unlimited.
	MaxRows int
}

// FromRecords builds a Table from a header and text rows, inferring each
// column's kind. A column is numeric when it has at least one non-blank cell
// and every non-blank cell parses as a number. Categorical cells keep their
// text exactly. Short rows are padded with empty cells; a row carrying
// non-empty cells past the header fails with ErrExtraFields.
func FromRecords(header []string, rows [][]string, opt Options) (*Table, error) {
	if opt.MaxRows > 0 && len(rows) > opt.MaxRows {
		rows = rows[:opt.MaxRows]
	}
	names := headerNames(header)
	for i, rec := range rows {
		for j := len(names); j < len(rec); j++ {
			if strings.TrimSpace(rec[j]) != "" {
				return nil, fmt.Errorf("%w: row %d has %d fields, header has %d", ErrExtraFields, i+1, len(rec), len(names))
			}
		}
	}
	cols := make([]Column, len(names))
	for j, name := range names {
		cells := make([]string, len(rows))
		for i, rec := range rows {
			if j < len(rec) {
				cells[i] = rec[j]
			}
		}
		cols[j] = inferColumn(name, cells, opt)
	}
	t, err := New(cols...)
	if err != nil {
		return nil, fmt.Errorf("build table: %w", err)
	}
	return t, nil
}

func inferColumn(name string, cells []string, opt Options) Column {
	if opt.DecimalSeparator == 0 {
		opt.DecimalSeparator = columnDecimal(cells)
	}
	nums := make([]float64, len(cells))
	seen := 0
	for i, v := range cells {
		if strings.TrimSpace(v) == "" {
			nums[i] = math.NaN()
			continue
		}
		x, ok := ParseNumber(v, opt)
		if !ok {
			return Column{Name: name, Kind: Categorical, Strings: cells}
		}
		nums[i] = x
		seen++
	}
	if seen == 0 {
		return Column{Name: name, Kind: Categorical, Strings: cells}
	}
	return Column{Name: name, Kind: Numeric, Numbers: nums}
}

// columnDecimal picks one decimal separator for a whole column so that
// "1,500" and "2.5" in the same column are read consistently:
//   - a cell holding both separators decides (the last one is decimal)
//   - a separator repeated inside one cell is a thousands separator
//   - commas followed by exactly three digits everywhere are thousands
//   - otherwise a lone comma is decimal, and '.' is the default
func columnDecimal(cells []string) rune {
	var dotCells, commaCells int
	commaGroups := true
	for _, v := range cells {
		v = strings.TrimSpace(v)
		c, d := strings.Count(v, ","), strings.Count(v, ".")
		switch {
		case c > 0 && d > 0:
			if strings.LastIndex(v, ",") > strings.LastIndex(v, ".") {
				return ','
			}
			return '.'
		case c > 1:
			return '.'
		case d > 1:
			return ','
		case c == 1:
			commaCells++
			i := strings.Index(v, ",")
			if len(v)-i-1 != 3 || !isDigits(v[i+1:]) {
				commaGroups = false
			}
		case d == 1:
			dotCells++
		}
	}
	if commaCells > 0 && (dotCells > 0 || commaGroups) {
		return '.'
	}
	if commaCells > 0 {
		return ','
	}
	return '.'
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

// headerNames trims names and makes them unique the way dataframe readers do:
// blanks become "Unnamed: i" and repeats get a ".n" suffix.
func headerNames(header []string) []string {
	out := make([]string, len(header))
	used := make(map[string]bool, len(header))
	for i, h := range header {
		name := strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if name == "" {
			name = fmt.Sprintf("Unnamed: %d", i)
		}
		cand := name
		for n := 1; used[cand]; n++ {
			cand = fmt.Sprintf("%s.%d", name, n)
		}
		used[cand] = true
		out[i] = cand
	}
	return out
}

// ParseNumber parses a numeric cell, honoring locale separators. With no
// DecimalSeparator set the separator is guessed from the value alone.
func ParseNumber(s string, opt Options) (float64, bool) {
	raw := strings.ReplaceAll(strings.TrimSpace(s), "\u00a0", " ")
	raw = strings.TrimSpace(raw)
	if !strings.ContainsAny(raw, "0123456789") {
		// rejects "NaN", "Inf" and friends that ParseFloat would accept
		return 0, false
	}
	dec := opt.DecimalSeparator
	thou := opt.ThousandsSeparator
	if dec == 0 {
		cpos := strings.LastIndex(raw, ",")
		dpos := strings.LastIndex(raw, ".")
		switch {
		case cpos >= 0 && dpos >= 0:
			if cpos > dpos {
				dec, thou = ',', '.'
			} else {
				dec, thou = '.', ','
			}
		case cpos >= 0:
			dec = ','
		default:
			dec = '.'
		}
	}
	if thou == 0 {
		for _, sep := range []rune{',', '.', ' '} {
			if sep != dec {
				raw = strings.ReplaceAll(raw, string(sep), "")
			}
		}
	} else if thou != dec {
		raw = strings.ReplaceAll(raw, string(thou), "")
	}
	if dec != '.' {
		raw = strings.ReplaceAll(raw, string(dec), ".")
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, false
	}
	return f, true
}
