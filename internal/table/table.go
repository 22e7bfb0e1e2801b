package table

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Kind is the inferred type of a column.
type Kind int

const (
	Categorical Kind = iota
	Numeric
)

func (k Kind) String() string {
	switch k {
	case Numeric:
		return "numeric"
	case Categorical:
		return "categorical"
	default:
		return "unknown"
	}
}

// Column holds the values of one named column. Exactly one of Numbers or
// Strings is populated, depending on Kind. Missing numeric cells are NaN.
type Column struct {
	Name    string
	Kind    Kind
	Numbers []float64
	Strings []string
}

// Len returns the number of cells in the column.
func (c *Column) Len() int {
	if c.Kind == Numeric {
		return len(c.Numbers)
	}
	return len(c.Strings)
}

// Text renders cell i the way exports write it.
func (c *Column) Text(i int) string {
	if c.Kind == Numeric {
		return FormatNumber(c.Numbers[i])
	}
	return c.Strings[i]
}

// Value returns cell i as float64 or string; missing numbers come back as nil.
func (c *Column) Value(i int) any {
	if c.Kind == Numeric {
		if math.IsNaN(c.Numbers[i]) {
			return nil
		}
		return c.Numbers[i]
	}
	return c.Strings[i]
}

// FormatNumber renders x with the shortest representation that parses back
// to the same float. NaN renders as an empty cell.
func FormatNumber(x float64) string {
	if math.IsNaN(x) {
		return ""
	}
	return strconv.FormatFloat(x, 'f', -1, 64)
}

var (
	ErrLengthMismatch = errors.New("columns have different lengths")
	ErrDuplicateName  = errors.New("duplicate column name")
	ErrUnknownColumn  = errors.New("unknown column")
	ErrExtraFields    = errors.New("row has more fields than the header")
)

// Table is an immutable ordered set of equally long columns. Operations that
// change shape or rows return a new Table.
type Table struct {
	cols  []Column
	index map[string]int
	rows  int
}

// New validates and assembles columns into a Table.
func New(cols ...Column) (*Table, error) {
	t := &Table{cols: cols, index: make(map[string]int, len(cols))}
	for i := range cols {
		name := cols[i].Name
		if strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("column %d: empty name", i+1)
		}
		if _, dup := t.index[name]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateName, name)
		}
		t.index[name] = i
		if i == 0 {
			t.rows = cols[i].Len()
		} else if cols[i].Len() != t.rows {
			return nil, fmt.Errorf("%w: %q has %d rows, want %d", ErrLengthMismatch, name, cols[i].Len(), t.rows)
		}
	}
	return t, nil
}

// MustNew is New for fixtures; it panics on invalid input.
func MustNew(cols ...Column) *Table {
	t, err := New(cols...)
	if err != nil {
		panic(err)
	}
	return t
}

// NumericColumn and CategoricalColumn are shorthand constructors.
func NumericColumn(name string, vals ...float64) Column {
	return Column{Name: name, Kind: Numeric, Numbers: vals}
}

func CategoricalColumn(name string, vals ...string) Column {
	return Column{Name: name, Kind: Categorical, Strings: vals}
}

func (t *Table) Len() int   { return t.rows }
func (t *Table) Width() int { return len(t.cols) }

// Names returns the column names in order.
func (t *Table) Names() []string {
	out := make([]string, len(t.cols))
	for i := range t.cols {
		out[i] = t.cols[i].Name
	}
	return out
}

// Column looks up a column by name. The returned column must not be modified.
func (t *Table) Column(name string) (*Column, bool) {
	i, ok := t.index[name]
	if !ok {
		return nil, false
	}
	return &t.cols[i], true
}

// Columns returns the columns in order. The slice must not be modified.
func (t *Table) Columns() []Column { return t.cols }

// Record returns row i as text cells.
func (t *Table) Record(i int) []string {
	rec := make([]string, len(t.cols))
	for j := range t.cols {
		rec[j] = t.cols[j].Text(i)
	}
	return rec
}

// Take returns a new table holding the given rows, in the given order.
func (t *Table) Take(rows []int) *Table {
	cols := make([]Column, len(t.cols))
	for j, c := range t.cols {
		nc := Column{Name: c.Name, Kind: c.Kind}
		if c.Kind == Numeric {
			nc.Numbers = make([]float64, len(rows))
			for k, r := range rows {
				nc.Numbers[k] = c.Numbers[r]
			}
		} else {
			nc.Strings = make([]string, len(rows))
			for k, r := range rows {
				nc.Strings[k] = c.Strings[r]
			}
		}
		cols[j] = nc
	}
	return &Table{cols: cols, index: t.index, rows: len(rows)}
}

// Head returns at most the first n rows.
func (t *Table) Head(n int) *Table {
	if n > t.rows {
		n = t.rows
	}
	if n < 0 {
		n = 0
	}
	rows := make([]int, n)
	for i := range rows {
		rows[i] = i
	}
	return t.Take(rows)
}

// Project returns a table with only the named columns, in the given order.
func (t *Table) Project(names ...string) (*Table, error) {
	cols := make([]Column, 0, len(names))
	for _, n := range names {
		c, ok := t.Column(n)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownColumn, n)
		}
		cols = append(cols, *c)
	}
	return New(cols...)
}

// Equal reports whether both tables have the same columns and cells.
func (t *Table) Equal(o *Table) bool {
	if t == nil || o == nil {
		return t == o
	}
	if t.rows != o.rows || len(t.cols) != len(o.cols) {
		return false
	}
	for j := range t.cols {
		a, b := &t.cols[j], &o.cols[j]
		if a.Name != b.Name || a.Kind != b.Kind {
			return false
		}
		if a.Kind == Numeric {
			for i := range a.Numbers {
				x, y := a.Numbers[i], b.Numbers[i]
				if x != y && !(math.IsNaN(x) && math.IsNaN(y)) {
					return false
				}
			}
			continue
		}
		for i := range a.Strings {
			if a.Strings[i] != b.Strings[i] {
				return false
			}
		}
	}
	return true
}

// Hash fingerprints names, kinds and cells. Equal tables hash equally.
func (t *Table) Hash() string {
	h := sha256.New()
	for _, c := range t.cols {
		fmt.Fprintf(h, "%q:%d;", c.Name, c.Kind)
	}
	h.Write([]byte{'\n'})
	for i := 0; i < t.rows; i++ {
		for j := range t.cols {
			fmt.Fprintf(h, "%q,", t.cols[j].Text(i))
		}
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}
