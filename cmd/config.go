package cmd

import (
	"fmt"
	"strconv"
	"strings"

	cfgpkg "github.com/KaramelBytes/funnelboard/internal/config"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or set Funnelboard configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := currentConfig()
		if err != nil {
			fmt.Fprintln(cmd.OutOrStdout(), "No config loaded")
			return nil
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "listen_addr: %s\n", c.ListenAddr)
		fmt.Fprintf(out, "max_upload_mb: %d\n", c.MaxUploadMB)
		fmt.Fprintf(out, "cache_size: %d\n", c.CacheSize)
		fmt.Fprintf(out, "session_ttl_min: %d\n", c.SessionTTLMin)
		fmt.Fprintf(out, "log_level: %s\n", c.LogLevel)
		fmt.Fprintf(out, "log_format: %s\n", c.LogFormat)
		fmt.Fprintf(out, "target_column: %s\n", c.TargetColumn)
		fmt.Fprintf(out, "range_column: %s\n", c.RangeColumn)
		fmt.Fprintf(out, "funnel_columns: %s\n", strings.Join(c.FunnelColumns, ","))
		fmt.Fprintf(out, "chart_mode: %s\n", c.ChartMode)
		fmt.Fprintf(out, "sheet_name: %s\n", c.SheetName)
		fmt.Fprintf(out, "decimal_separator: %s\n", c.DecimalSeparator)
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a config value and save to disk",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, val := args[0], args[1]
		c, err := currentConfig()
		if err != nil {
			return err
		}
		next := *c
		switch key {
		case "listen_addr":
			next.ListenAddr = val
		case "max_upload_mb", "cache_size", "session_ttl_min":
			i, err := strconv.Atoi(val)
			if err != nil {
				return fmt.Errorf("invalid int for %s: %v", key, val)
			}
			switch key {
			case "max_upload_mb":
				next.MaxUploadMB = i
			case "cache_size":
				next.CacheSize = i
			default:
				next.SessionTTLMin = i
			}
		case "log_level":
			next.LogLevel = val
		case "log_format":
			switch strings.ToLower(val) {
			case "text", "json":
				next.LogFormat = strings.ToLower(val)
			default:
				return fmt.Errorf("invalid log_format: %s (use text or json)", val)
			}
		case "target_column":
			next.TargetColumn = val
		case "range_column":
			next.RangeColumn = val
		case "funnel_columns":
			next.FunnelColumns = splitList(val)
		case "chart_mode":
			next.ChartMode = strings.ToLower(val)
		case "sheet_name":
			next.SheetName = val
		case "decimal_separator":
			next.DecimalSeparator = val
		default:
			return fmt.Errorf("unknown key: %s", key)
		}
		if err := next.Validate(); err != nil {
			return err
		}
		if err := cfgpkg.Save(&next, cfgFile); err != nil {
			return err
		}
		*c = next
		fmt.Fprintln(cmd.OutOrStdout(), "Saved config")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}

// splitList splits a comma list, dropping blanks.
func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
