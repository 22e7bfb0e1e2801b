package cmd

import (
	"fmt"
	"strings"

	"github.com/KaramelBytes/funnelboard/internal/parser"
	"github.com/KaramelBytes/funnelboard/internal/table"
)

// loadFlags are the input options shared by every command that reads a dataset.
type loadFlags struct {
	delimiter string
	decimal   string
	thousands string
	sheet     string
	maxRows   int
}

func (f loadFlags) options() (parser.Options, error) {
	var opt parser.Options
	switch f.delimiter {
	case "":
	case ",":
		opt.Delimiter = ','
	case "\t", "tab":
		opt.Delimiter = '\t'
	case ";":
		opt.Delimiter = ';'
	default:
		return opt, fmt.Errorf("unsupported --delimiter: %s", f.delimiter)
	}
	// Locale separators; config decimal_separator applies when the flag is absent
	dec := strings.ToLower(strings.TrimSpace(f.decimal))
	if dec == "" {
		if c, err := currentConfig(); err == nil {
			r, err := c.Decimal()
			if err != nil {
				return opt, err
			}
			opt.Table.DecimalSeparator = r
		}
	}
	switch dec {
	case "", "auto":
	case ",", "comma":
		opt.Table.DecimalSeparator = ','
	case ".", "dot":
		opt.Table.DecimalSeparator = '.'
	default:
		return opt, fmt.Errorf("unsupported --decimal: %s (use '.'|'comma')", f.decimal)
	}
	switch strings.ToLower(strings.TrimSpace(f.thousands)) {
	case ",":
		opt.Table.ThousandsSeparator = ','
	case ".":
		opt.Table.ThousandsSeparator = '.'
	case "space", " ":
		opt.Table.ThousandsSeparator = ' '
	case "":
	default:
		return opt, fmt.Errorf("unsupported --thousands: %s (use ','|'.'|'space')", f.thousands)
	}
	opt.Sheet = f.sheet
	if f.maxRows > 0 {
		opt.Table.MaxRows = f.maxRows
	}
	return opt, nil
}

func (f loadFlags) load(path string) (*table.Table, error) {
	opt, err := f.options()
	if err != nil {
		return nil, err
	}
	t, err := parser.LoadFile(path, opt)
	if err != nil {
		return nil, err
	}
	appLogger().WithField("rows", t.Len()).WithField("file", path).Debug("dataset loaded")
	return t, nil
}
