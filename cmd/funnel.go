package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/KaramelBytes/funnelboard/internal/chart"
	"github.com/KaramelBytes/funnelboard/internal/export"
	"github.com/KaramelBytes/funnelboard/internal/funnel"
	"github.com/KaramelBytes/funnelboard/internal/pipeline"
	"github.com/KaramelBytes/funnelboard/internal/utils"
	"github.com/spf13/cobra"
)

var (
	fnLoad     loadFlags
	fnRanges   []string
	fnSelects  []string
	fnTarget   string
	fnColumns  []string
	fnChart    string
	fnChartOut string
	fnCSV      string
	fnXLSX     string
)

var funnelCmd = &cobra.Command{
	Use:   "funnel <file>",
	Short: "Filter a dataset and compare the target distribution before and after",
	Long: `Apply numeric ranges (--range col=min:max) and categorical selections
(--select col=a,b) to a dataset, then print the target column's share per category
for the raw and filtered rows. A selection containing "all" keeps every value;
an empty selection (--select loan=) keeps nothing. Unspecified columns are unrestricted.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		c, err := currentConfig()
		if err != nil {
			return err
		}
		spec, err := buildSpec(fnRanges, fnSelects)
		if err != nil {
			return err
		}
		target := fnTarget
		if target == "" {
			target = c.TargetColumn
		}
		t, err := fnLoad.load(path)
		if err != nil {
			return err
		}

		pipe, err := pipeline.New(0, appLogger())
		if err != nil {
			return err
		}
		res, err := pipe.Run(context.Background(), pipeline.Request{
			Source:  t,
			Spec:    spec,
			Target:  target,
			Columns: fnColumns,
		})
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Rows: %d of %d\n\n", res.Filtered.Len(), res.RawRows)
		fmt.Fprint(out, res.Comparison.Markdown())
		if res.Notice != "" {
			fmt.Fprintf(cmd.ErrOrStderr(), "⚠ Warning: %s\n", res.Notice)
		}

		if fnCSV != "" {
			b, err := export.CSV(res.Filtered)
			if err != nil {
				return err
			}
			if err := utils.SafeWriteFile(fnCSV, b); err != nil {
				return fmt.Errorf("write csv: %w", err)
			}
			fmt.Fprintf(out, "✓ Wrote %d rows to %s\n", res.Filtered.Len(), fnCSV)
		}
		if fnXLSX != "" {
			b, err := export.XLSX(res.Filtered, c.SheetName)
			if err != nil {
				return err
			}
			if err := utils.SafeWriteFile(fnXLSX, b); err != nil {
				return fmt.Errorf("write xlsx: %w", err)
			}
			fmt.Fprintf(out, "✓ Wrote %d rows to %s\n", res.Filtered.Len(), fnXLSX)
		}

		if fnChart == "" && fnChartOut == "" {
			return nil
		}
		modeName := fnChart
		if modeName == "" {
			modeName = c.ChartMode
		}
		mode, err := chart.ParseMode(modeName)
		if err != nil {
			return err
		}
		ch, err := chart.Build(res.Comparison, mode)
		if err != nil {
			return err
		}
		if fnChartOut == "" {
			urls, err := ch.URLs()
			if err != nil {
				return err
			}
			for i, u := range urls {
				fmt.Fprintf(out, "%s: %s\n", ch.Panels[i].Title, u)
			}
			return nil
		}
		for i := range ch.Panels {
			dest := chartPath(fnChartOut, i, len(ch.Panels))
			if err := renderPanel(ch, i, dest); err != nil {
				return err
			}
			fmt.Fprintf(out, "✓ Wrote chart to %s\n", dest)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(funnelCmd)
	addLoadFlags(funnelCmd, &fnLoad)
	funnelCmd.Flags().StringArrayVar(&fnRanges, "range", nil, "numeric range col=min:max, inclusive (repeatable)")
	funnelCmd.Flags().StringArrayVar(&fnSelects, "select", nil, "categorical selection col=a,b; 'all' keeps every value (repeatable)")
	funnelCmd.Flags().StringVar(&fnTarget, "target", "", "target column to summarize (default from config)")
	funnelCmd.Flags().StringSliceVar(&fnColumns, "columns", nil, "columns to keep in exports (default all)")
	funnelCmd.Flags().StringVar(&fnChart, "chart", "", "chart mode: bar | pie (prints image URLs)")
	funnelCmd.Flags().StringVar(&fnChartOut, "chart-out", "", "render the chart as PNG to this path")
	funnelCmd.Flags().StringVar(&fnCSV, "csv", "", "write the filtered rows as CSV")
	funnelCmd.Flags().StringVar(&fnXLSX, "xlsx", "", "write the filtered rows as XLSX")
}

// buildSpec parses --range and --select values.
func buildSpec(ranges, selects []string) (funnel.Spec, error) {
	spec := funnel.Spec{Ranges: map[string]funnel.Range{}, Selections: map[string]funnel.Selection{}}
	for _, r := range ranges {
		name, bounds, ok := strings.Cut(r, "=")
		lo, hi, ok2 := strings.Cut(bounds, ":")
		if !ok || !ok2 || strings.TrimSpace(name) == "" {
			return spec, fmt.Errorf("invalid --range %q (want col=min:max)", r)
		}
		from, err := strconv.ParseFloat(strings.TrimSpace(lo), 64)
		if err != nil {
			return spec, fmt.Errorf("invalid --range %q: %w", r, err)
		}
		to, err := strconv.ParseFloat(strings.TrimSpace(hi), 64)
		if err != nil {
			return spec, fmt.Errorf("invalid --range %q: %w", r, err)
		}
		if from > to {
			return spec, fmt.Errorf("invalid --range %q: min greater than max", r)
		}
		spec.Ranges[strings.TrimSpace(name)] = funnel.Range{Min: from, Max: to}
	}
	for _, s := range selects {
		name, vals, ok := strings.Cut(s, "=")
		if !ok || strings.TrimSpace(name) == "" {
			return spec, fmt.Errorf("invalid --select %q (want col=a,b)", s)
		}
		spec.Selections[strings.TrimSpace(name)] = funnel.ParseSelection(splitList(vals))
	}
	return spec, nil
}

// chartPath suffixes the panel index when a chart has several panels.
func chartPath(base string, i, n int) string {
	if n <= 1 {
		return base
	}
	ext := filepath.Ext(base)
	return fmt.Sprintf("%s_%d%s", strings.TrimSuffix(base, ext), i+1, ext)
}

func renderPanel(ch *chart.Chart, i int, dest string) error {
	if dir := filepath.Dir(dest); dir != "." {
		if err := utils.EnsureDir(dir); err != nil {
			return err
		}
	}
	f, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("create chart file: %w", err)
	}
	if err := ch.Render(f, i); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
