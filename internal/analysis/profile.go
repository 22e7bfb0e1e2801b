package analysis

import (
	"fmt"
	"math"
	"sort"

	"github.com/KaramelBytes/funnelboard/internal/table"
	"github.com/montanaflynn/stats"
)

// Options controls column profiling.
type Options struct {
	// SampleRows determines how many example rows to include in the report.
	SampleRows int
	// MaxCategories caps the value list kept per categorical column; 0 means unlimited.
	MaxCategories int
	// Outlier detection via robust Z-score (MAD). Values with |z| above the threshold are counted.
	Outliers         bool
	OutlierThreshold float64
}

// DefaultOptions returns reasonable defaults for dataset profiling.
func DefaultOptions() Options {
	return Options{
		SampleRows:       5,
		MaxCategories:    100,
		Outliers:         true,
		OutlierThreshold: 3.5,
	}
}

// Report is a markdown-friendly profile of a table. Dashboards use it to
// populate column pickers, slider bounds and option lists.
type Report struct {
	Name     string          `json:"name"`
	Rows     int             `json:"rows"`
	Cols     []ColumnSummary `json:"columns"`
	Samples  [][]string      `json:"samples,omitempty"`
	Warnings []string        `json:"warnings,omitempty"`
}

// ColumnSummary captures kind and statistics per column.
type ColumnSummary struct {
	Name    string `json:"name"`
	Kind    string `json:"kind"` // numeric|categorical
	NonNull int    `json:"non_null"`
	Missing int    `json:"missing"`
	Unique  int    `json:"unique"`
	// Numeric stats
	Min    float64 `json:"min,omitempty"`
	Max    float64 `json:"max,omitempty"`
	Mean   float64 `json:"mean,omitempty"`
	Std    float64 `json:"std,omitempty"`
	Median float64 `json:"median,omitempty"`
	// Outliers (robust Z via MAD)
	OutliersCount    int     `json:"outliers,omitempty"`
	OutliersMaxAbsZ  float64 `json:"outliers_max_abs_z,omitempty"`
	OutlierThreshold float64 `json:"outlier_threshold,omitempty"`
	// Categorical values sorted by value
	Values    []CategoryCount `json:"values,omitempty"`
	Truncated bool            `json:"truncated,omitempty"`
}

type CategoryCount struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// Profile summarizes every column of t.
func Profile(name string, t *table.Table, opt Options) *Report {
	rep := &Report{Name: name, Rows: t.Len()}
	sampleRows := opt.SampleRows
	if sampleRows < 0 {
		sampleRows = 0
	}
	for i := 0; i < t.Len() && i < sampleRows; i++ {
		rep.Samples = append(rep.Samples, t.Record(i))
	}
	for _, c := range t.Columns() {
		c := c
		var s ColumnSummary
		if c.Kind == table.Numeric {
			s = numericSummary(&c, opt)
		} else {
			s = categoricalSummary(&c, opt)
			if s.Truncated {
				rep.Warnings = append(rep.Warnings, fmt.Sprintf("%s: showing %d of %d distinct values", c.Name, len(s.Values), s.Unique))
			}
		}
		rep.Cols = append(rep.Cols, s)
	}
	return rep
}

func numericSummary(c *table.Column, opt Options) ColumnSummary {
	s := ColumnSummary{Name: c.Name, Kind: c.Kind.String()}
	vals := make([]float64, 0, len(c.Numbers))
	distinct := map[float64]struct{}{}
	for _, x := range c.Numbers {
		if math.IsNaN(x) {
			s.Missing++
			continue
		}
		vals = append(vals, x)
		distinct[x] = struct{}{}
	}
	s.NonNull = len(vals)
	s.Unique = len(distinct)
	if len(vals) == 0 {
		return s
	}
	s.Min, _ = stats.Min(vals)
	s.Max, _ = stats.Max(vals)
	s.Mean, _ = stats.Mean(vals)
	s.Median, _ = stats.Median(vals)
	if len(vals) > 1 {
		s.Std, _ = stats.StandardDeviationSample(vals)
	}
	if opt.Outliers && len(vals) >= 8 {
		thr := opt.OutlierThreshold
		if thr <= 0 {
			thr = 3.5
		}
		s.OutlierThreshold = thr
		mad, err := stats.MedianAbsoluteDeviation(vals)
		if err == nil && mad > 0 {
			for _, v := range vals {
				az := math.Abs(0.6745 * (v - s.Median) / mad)
				if az > thr {
					s.OutliersCount++
				}
				if az > s.OutliersMaxAbsZ {
					s.OutliersMaxAbsZ = az
				}
			}
		}
	}
	return s
}

func categoricalSummary(c *table.Column, opt Options) ColumnSummary {
	s := ColumnSummary{Name: c.Name, Kind: c.Kind.String()}
	counts := map[string]int{}
	for _, v := range c.Strings {
		if v == "" {
			s.Missing++
			continue
		}
		s.NonNull++
		counts[v]++
	}
	s.Unique = len(counts)
	s.Values = make([]CategoryCount, 0, len(counts))
	for k, n := range counts {
		s.Values = append(s.Values, CategoryCount{Value: k, Count: n})
	}
	sort.Slice(s.Values, func(i, j int) bool { return s.Values[i].Value < s.Values[j].Value })
	if opt.MaxCategories > 0 && len(s.Values) > opt.MaxCategories {
		s.Values = s.Values[:opt.MaxCategories]
		s.Truncated = true
	}
	return s
}

// Choices lists the selectable values of a categorical column, the way
// multiselect widgets show them. Numeric columns have none.
func (r *Report) Choices(column string) []string {
	for _, c := range r.Cols {
		if c.Name != column {
			continue
		}
		out := make([]string, len(c.Values))
		for i, v := range c.Values {
			out[i] = v.Value
		}
		return out
	}
	return nil
}
