package funnel

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/KaramelBytes/funnelboard/internal/table"
)

// ErrKindMismatch is returned for a range on a categorical column.
var ErrKindMismatch = errors.New("predicate does not match column kind")

// Range is a closed numeric interval. NaN never falls inside, but a range
// covering a column's whole span does not restrict it at all, so missing
// cells survive the maximal range.
type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

func (r Range) Contains(x float64) bool { return r.Min <= x && x <= r.Max }

// Covers reports whether r spans all of span. An empty span (a column with
// no values) is never covered.
func (r Range) Covers(span Range) bool {
	if span.Min > span.Max {
		return false
	}
	return r.Min <= span.Min && span.Max <= r.Max
}

// FullRange spans every non-missing value of a numeric column.
func FullRange(c *table.Column) Range {
	r := Range{Min: math.Inf(1), Max: math.Inf(-1)}
	for _, x := range c.Numbers {
		if math.IsNaN(x) {
			continue
		}
		r.Min = math.Min(r.Min, x)
		r.Max = math.Max(r.Max, x)
	}
	return r
}

// Spec is one run's set of constraints: numeric ranges and categorical
// selections keyed by column name. Columns not mentioned are unrestricted.
type Spec struct {
	Ranges     map[string]Range     `json:"ranges,omitempty"`
	Selections map[string]Selection `json:"selections,omitempty"`
}

// Default builds the maximal spec for t: the full range on rangeColumn and
// the wildcard on each selection column. Missing columns are skipped.
func Default(t *table.Table, rangeColumn string, selectionColumns []string) Spec {
	s := Spec{Ranges: map[string]Range{}, Selections: map[string]Selection{}}
	if c, ok := t.Column(rangeColumn); ok && c.Kind == table.Numeric {
		if r := FullRange(c); !math.IsInf(r.Min, 0) {
			s.Ranges[rangeColumn] = r
		}
	}
	for _, name := range selectionColumns {
		if _, ok := t.Column(name); ok {
			s.Selections[name] = All()
		}
	}
	return s
}

// Key renders the spec canonically, for use as a cache key.
func (s Spec) Key() string {
	var parts []string
	for name, r := range s.Ranges {
		parts = append(parts, fmt.Sprintf("r:%q=[%s,%s]", name,
			strconv.FormatFloat(r.Min, 'g', -1, 64), strconv.FormatFloat(r.Max, 'g', -1, 64)))
	}
	for name, sel := range s.Selections {
		vals := sel.Values()
		quoted := make([]string, len(vals))
		for i, v := range vals {
			quoted[i] = strconv.Quote(v)
		}
		if sel.IsAll() {
			quoted = []string{"*"}
		}
		parts = append(parts, fmt.Sprintf("s:%q={%s}", name, strings.Join(quoted, ",")))
	}
	sort.Strings(parts)
	return strings.Join(parts, ";")
}

type predicate struct {
	column      string
	selectivity float64
	match       func(row int) bool
}

// Apply returns the rows of t satisfying every predicate of s, in their
// original order, as a new table. t is never modified. An empty subset
// selection yields an empty table.
func Apply(t *table.Table, s Spec) (*table.Table, error) {
	preds, err := compile(t, s)
	if err != nil {
		return nil, err
	}
	rows := make([]int, t.Len())
	for i := range rows {
		rows[i] = i
	}
	for _, p := range preds {
		kept := rows[:0]
		for _, r := range rows {
			if p.match(r) {
				kept = append(kept, r)
			}
		}
		rows = kept
		if len(rows) == 0 {
			break
		}
	}
	return t.Take(rows), nil
}

// compile resolves predicates against t, drops wildcards and full-span
// ranges, and orders the rest narrowest-first by estimated selectivity.
func compile(t *table.Table, s Spec) ([]predicate, error) {
	var preds []predicate
	for name, r := range s.Ranges {
		c, ok := t.Column(name)
		if !ok {
			return nil, fmt.Errorf("range %q: %w", name, table.ErrUnknownColumn)
		}
		if c.Kind != table.Numeric {
			return nil, fmt.Errorf("range %q: %w", name, ErrKindMismatch)
		}
		span := FullRange(c)
		if r.Covers(span) {
			// keeps every value, including missing ones
			continue
		}
		r, nums := r, c.Numbers
		preds = append(preds, predicate{
			column:      name,
			selectivity: rangeSelectivity(span, r),
			match:       func(row int) bool { return r.Contains(nums[row]) },
		})
	}
	for name, sel := range s.Selections {
		c, ok := t.Column(name)
		if !ok {
			return nil, fmt.Errorf("selection %q: %w", name, table.ErrUnknownColumn)
		}
		if sel.IsAll() {
			continue
		}
		sel, col := sel, c
		preds = append(preds, predicate{
			column:      name,
			selectivity: subsetSelectivity(col, sel),
			match:       func(row int) bool { return sel.Contains(col.Text(row)) },
		})
	}
	sort.SliceStable(preds, func(i, j int) bool {
		if preds[i].selectivity == preds[j].selectivity {
			return preds[i].column < preds[j].column
		}
		return preds[i].selectivity < preds[j].selectivity
	})
	return preds, nil
}

// rangeSelectivity is the share of the column span covered by r.
func rangeSelectivity(span, r Range) float64 {
	if math.IsInf(span.Min, 0) || r.Max < r.Min {
		return 0
	}
	lo, hi := math.Max(span.Min, r.Min), math.Min(span.Max, r.Max)
	if hi < lo {
		return 0
	}
	width := span.Max - span.Min
	if width == 0 {
		return 1
	}
	return (hi - lo) / width
}

// subsetSelectivity is the share of distinct column values that sel keeps.
func subsetSelectivity(c *table.Column, sel Selection) float64 {
	if sel.Len() == 0 {
		return 0
	}
	distinct := make(map[string]struct{})
	for i := 0; i < c.Len(); i++ {
		distinct[c.Text(i)] = struct{}{}
	}
	if len(distinct) == 0 {
		return 0
	}
	hit := 0
	for v := range distinct {
		if sel.Contains(v) {
			hit++
		}
	}
	return float64(hit) / float64(len(distinct))
}
