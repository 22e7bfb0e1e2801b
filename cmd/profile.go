package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/KaramelBytes/funnelboard/internal/analysis"
	"github.com/KaramelBytes/funnelboard/internal/utils"
	"github.com/spf13/cobra"
)

var (
	profLoad       loadFlags
	profOutputPath string
	profSampleRows int
	profMaxValues  int
	profOutliers   bool
	profOutlierThr float64
	profJSON       bool
)

var profileCmd = &cobra.Command{
	Use:   "profile <file>",
	Short: "Profile a CSV/XLSX dataset: column kinds, statistics and category values",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		t, err := profLoad.load(path)
		if err != nil {
			return err
		}
		opt := analysis.DefaultOptions()
		if profSampleRows >= 0 {
			opt.SampleRows = profSampleRows
		}
		if profMaxValues > 0 {
			opt.MaxCategories = profMaxValues
		}
		opt.Outliers = profOutliers
		if profOutlierThr > 0 {
			opt.OutlierThreshold = profOutlierThr
		}
		rep := analysis.Profile(filepath.Base(path), t, opt)

		var out []byte
		if profJSON {
			if out, err = utils.PrettyJSON(rep); err != nil {
				return err
			}
		} else {
			out = []byte(rep.Markdown())
		}
		if profOutputPath != "" {
			if err := utils.SafeWriteFile(profOutputPath, out); err != nil {
				return fmt.Errorf("write output: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Wrote profile to %s\n", profOutputPath)
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(profileCmd)
	addLoadFlags(profileCmd, &profLoad)
	profileCmd.Flags().StringVarP(&profOutputPath, "output", "o", "", "optional path to write the profile")
	profileCmd.Flags().IntVar(&profSampleRows, "sample-rows", 5, "number of sample rows to include")
	profileCmd.Flags().IntVar(&profMaxValues, "max-values", 100, "maximum category values listed per column")
	profileCmd.Flags().BoolVar(&profOutliers, "outliers", true, "compute robust outlier counts (MAD)")
	profileCmd.Flags().Float64Var(&profOutlierThr, "outlier-threshold", 3.5, "robust |z| threshold for outliers (MAD-based)")
	profileCmd.Flags().BoolVar(&profJSON, "json", false, "emit JSON instead of Markdown")
}

func addLoadFlags(c *cobra.Command, f *loadFlags) {
	c.Flags().StringVar(&f.delimiter, "delimiter", "", "CSV delimiter: ',' | ';' | 'tab' (sniffed if omitted)")
	c.Flags().StringVar(&f.decimal, "decimal", "", "decimal separator for numbers: '.'|'comma' (auto-detect if omitted)")
	c.Flags().StringVar(&f.thousands, "thousands", "", "thousands separator for numbers: ','|'.'|'space' (auto-detect if omitted)")
	c.Flags().StringVar(&f.sheet, "sheet", "", "XLSX: sheet name to read (first sheet if omitted)")
	c.Flags().IntVar(&f.maxRows, "max-rows", 0, "maximum rows to load (0 = unlimited)")
}
