// Package pipeline runs the filter-and-summarize funnel: filter a source
// table, then break the target column down for the raw and filtered rows.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/KaramelBytes/funnelboard/internal/analysis"
	"github.com/KaramelBytes/funnelboard/internal/funnel"
	"github.com/KaramelBytes/funnelboard/internal/logging"
	"github.com/KaramelBytes/funnelboard/internal/table"
	lru "github.com/hashicorp/golang-lru"
	"github.com/sirupsen/logrus"
)

// NoRowsNotice is reported when the filter leaves nothing to chart.
const NoRowsNotice = "filter produced no rows"

// ErrEmptySource means there is nothing to summarize before filtering.
var ErrEmptySource = errors.New("source table has no rows")

// Request is one pipeline invocation.
type Request struct {
	Source *table.Table
	// SourceHash identifies Source for memoization; computed when empty.
	SourceHash string
	Spec       funnel.Spec
	Target     string
	// Columns optionally projects the filtered table for display and export.
	Columns []string
}

// Result is shared between callers when served from the cache and must be
// treated as read-only.
type Result struct {
	Filtered     *table.Table
	RawRows      int
	Raw          analysis.Distribution
	FilteredDist *analysis.Distribution
	Comparison   analysis.Comparison
	Notice       string
}

// Pipeline is stateless apart from an optional bounded memo of results.
type Pipeline struct {
	cache *lru.Cache
	log   logrus.FieldLogger
}

// New builds a Pipeline. cacheSize <= 0 disables memoization.
func New(cacheSize int, log logrus.FieldLogger) (*Pipeline, error) {
	p := &Pipeline{log: log}
	if p.log == nil {
		p.log = logging.Discard()
	}
	if cacheSize > 0 {
		c, err := lru.New(cacheSize)
		if err != nil {
			return nil, fmt.Errorf("result cache: %w", err)
		}
		p.cache = c
	}
	return p, nil
}

// Run filters req.Source and summarizes req.Target before and after. A
// filter that removes every row is not an error: the result carries
// NoRowsNotice and no filtered distribution. An empty source table fails
// with ErrEmptySource.
func (p *Pipeline) Run(ctx context.Context, req Request) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if req.Source == nil {
		return nil, errors.New("pipeline: no source table")
	}
	if req.Source.Len() == 0 {
		return nil, ErrEmptySource
	}
	if req.SourceHash == "" {
		req.SourceHash = req.Source.Hash()
	}
	key := cacheKey(req)
	if p.cache != nil {
		if v, ok := p.cache.Get(key); ok {
			p.log.WithField("target", req.Target).Debug("pipeline cache hit")
			return v.(*Result), nil
		}
	}

	raw, err := analysis.Summarize(req.Source, req.Target)
	if err != nil {
		return nil, fmt.Errorf("summarize source: %w", err)
	}
	filtered, err := funnel.Apply(req.Source, req.Spec)
	if err != nil {
		return nil, fmt.Errorf("apply filter: %w", err)
	}
	res := &Result{RawRows: req.Source.Len(), Raw: raw, Filtered: filtered}

	fd, err := analysis.Summarize(filtered, req.Target)
	var empty *analysis.EmptyTableError
	switch {
	case errors.As(err, &empty):
		res.Notice = NoRowsNotice
	case err != nil:
		return nil, fmt.Errorf("summarize filtered: %w", err)
	default:
		res.FilteredDist = &fd
	}
	res.Comparison = analysis.Compare(raw, res.FilteredDist)

	if len(req.Columns) > 0 {
		proj, err := filtered.Project(req.Columns...)
		if err != nil {
			return nil, fmt.Errorf("project columns: %w", err)
		}
		res.Filtered = proj
	}

	p.log.WithFields(logrus.Fields{
		"raw_rows":      res.RawRows,
		"filtered_rows": filtered.Len(),
		"target":        req.Target,
	}).Info("funnel evaluated")

	if p.cache != nil {
		p.cache.Add(key, res)
	}
	return res, nil
}

// Len reports how many results are memoized.
func (p *Pipeline) Len() int {
	if p.cache == nil {
		return 0
	}
	return p.cache.Len()
}

func cacheKey(req Request) string {
	cols := make([]string, len(req.Columns))
	for i, c := range req.Columns {
		cols[i] = strconv.Quote(c)
	}
	return strings.Join([]string{req.SourceHash, req.Spec.Key(), strconv.Quote(req.Target), strings.Join(cols, ",")}, "|")
}
