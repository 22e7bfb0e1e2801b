package chart

import (
	"encoding/json"
	"net/url"
	"strings"
	"testing"

	"github.com/KaramelBytes/funnelboard/internal/analysis"
	"github.com/KaramelBytes/funnelboard/internal/table"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func comparison(t *testing.T, withFiltered bool) analysis.Comparison {
	t.Helper()
	raw, err := analysis.Summarize(table.MustNew(table.CategoricalColumn("y", "yes", "no", "no")), "y")
	require.NoError(t, err)
	if !withFiltered {
		return analysis.Compare(raw, nil)
	}
	filtered, err := analysis.Summarize(table.MustNew(table.CategoricalColumn("y", "yes")), "y")
	require.NoError(t, err)
	return analysis.Compare(raw, &filtered)
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("PIE")
	require.NoError(t, err)
	assert.Equal(t, Pie, m)
	m, err = ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, Bar, m)
	_, err = ParseMode("donut")
	assert.Error(t, err)
}

func TestBuildBar(t *testing.T) {
	c, err := Build(comparison(t, true), Bar)
	require.NoError(t, err)
	require.Len(t, c.Panels, 1)
	cfg := c.Panels[0].Config
	assert.Equal(t, "bar", cfg.Type)
	assert.Equal(t, []string{"no", "yes"}, cfg.Data.Labels)
	require.Len(t, cfg.Data.Datasets, 2)
	assert.Equal(t, []float64{66.67, 33.33}, cfg.Data.Datasets[0].Data)
	assert.Equal(t, []float64{0, 100}, cfg.Data.Datasets[1].Data)
	assert.Empty(t, c.Notice)
}

func TestBuildPie(t *testing.T) {
	c, err := Build(comparison(t, true), Pie)
	require.NoError(t, err)
	require.Len(t, c.Panels, 2)
	assert.Equal(t, "raw", c.Panels[0].Title)
	filtered := c.Panels[1].Config
	assert.Equal(t, "pie", filtered.Type)
	assert.Equal(t, []string{"yes"}, filtered.Data.Labels, "zero wedges dropped")
}

func TestBuildWithoutFilteredRows(t *testing.T) {
	c, err := Build(comparison(t, false), Pie)
	require.NoError(t, err)
	assert.Len(t, c.Panels, 1)
	assert.Equal(t, "filter produced no rows", c.Notice)

	c, err = Build(comparison(t, false), Bar)
	require.NoError(t, err)
	assert.Len(t, c.Panels[0].Config.Data.Datasets, 1)
}

func TestURLsEmbedConfig(t *testing.T) {
	c, err := Build(comparison(t, true), Bar)
	require.NoError(t, err)
	urls, err := c.URLs()
	require.NoError(t, err)
	require.Len(t, urls, 1)
	u, err := url.Parse(urls[0])
	require.NoError(t, err)
	assert.True(t, strings.Contains(u.Host, "quickchart"), u.Host)

	found := false
	for _, vals := range u.Query() {
		var cfg Config
		if len(vals) == 1 && json.Unmarshal([]byte(vals[0]), &cfg) == nil && cfg.Type == "bar" {
			found = true
		}
	}
	assert.True(t, found, "chart config not found in %s", urls[0])

	_, err = c.URL(3)
	assert.ErrorIs(t, err, ErrNoPanel)
}
