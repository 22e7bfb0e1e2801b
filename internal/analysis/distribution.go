package analysis

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/KaramelBytes/funnelboard/internal/table"
)

// EmptyTableError is returned when a distribution is requested over zero
// rows. Callers report it and skip the chart; it is not fatal.
type EmptyTableError struct {
	Column string
}

func (e *EmptyTableError) Error() string {
	return fmt.Sprintf("no rows to summarize for column %q", e.Column)
}

// Share is one category's slice of a distribution.
type Share struct {
	Category string  `json:"category"`
	Count    int     `json:"count"`
	Percent  float64 `json:"percent"`
}

// Distribution is the percentage breakdown of a column's values, sorted by
// category ascending.
type Distribution struct {
	Column string  `json:"column"`
	Total  int     `json:"total"`
	Shares []Share `json:"shares"`
}

// Summarize groups t's rows by the distinct values of column and returns
// each group's share of the total in percent.
func Summarize(t *table.Table, column string) (Distribution, error) {
	c, ok := t.Column(column)
	if !ok {
		return Distribution{}, fmt.Errorf("summarize %q: %w", column, table.ErrUnknownColumn)
	}
	if t.Len() == 0 {
		return Distribution{}, &EmptyTableError{Column: column}
	}
	counts := make(map[string]int)
	for i := 0; i < c.Len(); i++ {
		counts[c.Text(i)]++
	}
	d := Distribution{Column: column, Total: t.Len(), Shares: make([]Share, 0, len(counts))}
	for k, n := range counts {
		d.Shares = append(d.Shares, Share{Category: k, Count: n, Percent: float64(n) / float64(d.Total) * 100})
	}
	sortCategories(d.Shares, c.Kind, func(s Share) string { return s.Category })
	return d, nil
}

// Percent returns the share of cat, 0 when absent.
func (d Distribution) Percent(cat string) float64 {
	for _, s := range d.Shares {
		if s.Category == cat {
			return s.Percent
		}
	}
	return 0
}

// Map returns category → percent.
func (d Distribution) Map() map[string]float64 {
	m := make(map[string]float64, len(d.Shares))
	for _, s := range d.Shares {
		m[s.Category] = s.Percent
	}
	return m
}

// Comparison aligns a raw and a filtered distribution on the union of their
// categories. Filtered is nil when the filter produced no rows.
type Comparison struct {
	Column     string        `json:"column"`
	Categories []string      `json:"categories"`
	Raw        Distribution  `json:"raw"`
	Filtered   *Distribution `json:"filtered,omitempty"`
}

// Compare builds a Comparison; filtered may be nil.
func Compare(raw Distribution, filtered *Distribution) Comparison {
	seen := map[string]bool{}
	var cats []string
	add := func(d Distribution) {
		for _, s := range d.Shares {
			if !seen[s.Category] {
				seen[s.Category] = true
				cats = append(cats, s.Category)
			}
		}
	}
	add(raw)
	if filtered != nil {
		add(*filtered)
	}
	kind := table.Categorical
	if allNumeric(cats) {
		kind = table.Numeric
	}
	sortCategories(cats, kind, func(s string) string { return s })
	return Comparison{Column: raw.Column, Categories: cats, Raw: raw, Filtered: filtered}
}

// Series returns raw and filtered percentages aligned with Categories.
func (c Comparison) Series() (raw, filtered []float64) {
	raw = make([]float64, len(c.Categories))
	for i, cat := range c.Categories {
		raw[i] = c.Raw.Percent(cat)
	}
	if c.Filtered == nil {
		return raw, nil
	}
	filtered = make([]float64, len(c.Categories))
	for i, cat := range c.Categories {
		filtered[i] = c.Filtered.Percent(cat)
	}
	return raw, filtered
}

// sortCategories orders numeric categories by value (missing first) and
// everything else lexically.
func sortCategories[T any](xs []T, kind table.Kind, key func(T) string) {
	sort.SliceStable(xs, func(i, j int) bool {
		a, b := key(xs[i]), key(xs[j])
		if kind == table.Numeric {
			fa, ea := strconv.ParseFloat(a, 64)
			fb, eb := strconv.ParseFloat(b, 64)
			switch {
			case ea != nil && eb != nil:
				return a < b
			case ea != nil:
				return true
			case eb != nil:
				return false
			default:
				return fa < fb
			}
		}
		return a < b
	})
}

func allNumeric(cats []string) bool {
	if len(cats) == 0 {
		return false
	}
	for _, c := range cats {
		if c == "" {
			continue
		}
		if _, err := strconv.ParseFloat(c, 64); err != nil {
			return false
		}
	}
	return true
}
