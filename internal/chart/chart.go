// Package chart turns a raw vs. filtered distribution comparison into
// Chart.js configurations, rendered as images through QuickChart.
package chart

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/KaramelBytes/funnelboard/internal/analysis"
	quickchartgo "github.com/henomis/quickchart-go"
)

// Mode selects the chart layout.
type Mode string

const (
	Bar Mode = "bar"
	Pie Mode = "pie"
)

// ParseMode accepts "bar" or "pie", case-insensitively. Empty means bar.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", Bar:
		return Bar, nil
	case Pie:
		return Pie, nil
	default:
		return "", fmt.Errorf("unsupported chart mode %q (use bar or pie)", s)
	}
}

var palette = []string{"#4e79a7", "#f28e2b", "#e15759", "#76b7b2", "#59a14f", "#edc948", "#b07aa1", "#ff9da7", "#9c755f", "#bab0ac"}

type Config struct {
	Type    string         `json:"type"`
	Data    Data           `json:"data"`
	Options map[string]any `json:"options,omitempty"`
}

type Data struct {
	Labels   []string  `json:"labels"`
	Datasets []Dataset `json:"datasets"`
}

type Dataset struct {
	Label           string    `json:"label"`
	Data            []float64 `json:"data"`
	BackgroundColor any       `json:"backgroundColor,omitempty"`
}

// Panel is one rendered chart: a grouped bar chart, or one pie.
type Panel struct {
	Title  string `json:"title"`
	Config Config `json:"config"`
}

// Chart holds the panels for one comparison.
type Chart struct {
	Mode   Mode    `json:"mode"`
	Panels []Panel `json:"panels"`
	Notice string  `json:"notice,omitempty"`
}

// image size requested from QuickChart
const (
	width  = 640
	height = 400
)

// ErrNoPanel is returned when asking for a panel that does not exist.
var ErrNoPanel = errors.New("chart panel out of range")

// Build lays out cmp. Bar mode yields one grouped bar chart (raw and
// filtered side by side per category); pie mode yields one pie per table.
// A comparison without filtered rows only charts the raw distribution.
func Build(cmp analysis.Comparison, mode Mode) (*Chart, error) {
	if _, err := ParseMode(string(mode)); err != nil {
		return nil, err
	}
	if mode == "" {
		mode = Bar
	}
	raw, filtered := cmp.Series()
	c := &Chart{Mode: mode}
	if filtered == nil {
		c.Notice = "filter produced no rows"
	}
	switch mode {
	case Bar:
		cfg := Config{
			Type: "bar",
			Data: Data{Labels: cmp.Categories},
			Options: map[string]any{
				"title":   map[string]any{"display": true, "text": fmt.Sprintf("%s (%%)", cmp.Column)},
				"scales":  map[string]any{"yAxes": []any{map[string]any{"ticks": map[string]any{"beginAtZero": true, "max": 100}}}},
				"plugins": map[string]any{"datalabels": map[string]any{"display": true, "anchor": "end", "align": "top"}},
			},
		}
		cfg.Data.Datasets = append(cfg.Data.Datasets, Dataset{Label: "raw", Data: round2(raw), BackgroundColor: palette[0]})
		if filtered != nil {
			cfg.Data.Datasets = append(cfg.Data.Datasets, Dataset{Label: "filtered", Data: round2(filtered), BackgroundColor: palette[1]})
		}
		c.Panels = []Panel{{Title: cmp.Column, Config: cfg}}
	case Pie:
		c.Panels = append(c.Panels, piePanel("raw", cmp.Column, cmp.Categories, raw))
		if filtered != nil {
			c.Panels = append(c.Panels, piePanel("filtered", cmp.Column, cmp.Categories, filtered))
		}
	}
	return c, nil
}

func piePanel(label, column string, cats []string, vals []float64) Panel {
	// zero-share categories would draw empty wedges with overlapping labels
	var keptCats []string
	var keptVals []float64
	for i, v := range vals {
		if v > 0 {
			keptCats = append(keptCats, cats[i])
			keptVals = append(keptVals, v)
		}
	}
	colors := make([]string, len(keptCats))
	for i := range colors {
		colors[i] = palette[i%len(palette)]
	}
	return Panel{
		Title: label,
		Config: Config{
			Type: "pie",
			Data: Data{
				Labels:   keptCats,
				Datasets: []Dataset{{Label: label, Data: round2(keptVals), BackgroundColor: colors}},
			},
			Options: map[string]any{
				"title":   map[string]any{"display": true, "text": fmt.Sprintf("%s: %s (%%)", label, column)},
				"plugins": map[string]any{"datalabels": map[string]any{"display": true}},
			},
		},
	}
}

func round2(xs []float64) []float64 {
	out := make([]float64, len(xs))
	for i, x := range xs {
		out[i] = math.Round(x*100) / 100
	}
	return out
}

func (c *Chart) client(i int) (*quickchartgo.Chart, error) {
	if i < 0 || i >= len(c.Panels) {
		return nil, fmt.Errorf("%w: %d", ErrNoPanel, i)
	}
	b, err := json.Marshal(c.Panels[i].Config)
	if err != nil {
		return nil, fmt.Errorf("marshal chart config: %w", err)
	}
	qc := quickchartgo.New()
	qc.Config = string(b)
	qc.Width = width
	qc.Height = height
	return qc, nil
}

// URL returns a QuickChart image URL for panel i. No request is made.
func (c *Chart) URL(i int) (string, error) {
	qc, err := c.client(i)
	if err != nil {
		return "", err
	}
	u, err := qc.GetUrl()
	if err != nil {
		return "", fmt.Errorf("chart url: %w", err)
	}
	return u, nil
}

// URLs returns one image URL per panel.
func (c *Chart) URLs() ([]string, error) {
	out := make([]string, len(c.Panels))
	for i := range c.Panels {
		u, err := c.URL(i)
		if err != nil {
			return nil, err
		}
		out[i] = u
	}
	return out, nil
}

// Render downloads the PNG of panel i from QuickChart into w.
func (c *Chart) Render(w io.Writer, i int) error {
	qc, err := c.client(i)
	if err != nil {
		return err
	}
	if err := qc.Write(w); err != nil {
		return fmt.Errorf("render chart: %w", err)
	}
	return nil
}
