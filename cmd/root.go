package cmd

import (
	"fmt"
	"os"

	cfgpkg "github.com/KaramelBytes/funnelboard/internal/config"
	"github.com/KaramelBytes/funnelboard/internal/logging"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile      string
	debug        bool
	flagLogLevel string

	// Loaded configuration and the logger built from it
	cfg    *cfgpkg.Global
	logger *logrus.Logger
)

var rootCmd = &cobra.Command{
	Use:   "funnelboard",
	Short: "Funnelboard: filter a tabular dataset and compare outcome distributions",
	Long: `Funnelboard loads a CSV or Excel dataset, narrows it with a funnel of numeric ranges and
categorical selections, and compares the target column's distribution before and after filtering.
Run it as a one-shot CLI or serve the same pipeline over HTTP.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute is the entry point called by main.main()
func Execute() {
	// Initialize configuration before executing commands
	cobra.OnInitialize(loadConfig)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "✗ Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ~/.funnelboard/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "log level (overrides config)")
}

func loadConfig() {
	c, err := cfgpkg.Load(cfgFile)
	if err != nil {
		// Non-fatal: allow running commands that don't need config
		fmt.Fprintf(os.Stderr, "⚠ Warning: failed to load config: %v\n", err)
	} else {
		cfg = c
	}

	level, format := "info", "text"
	if cfg != nil {
		level, format = cfg.LogLevel, cfg.LogFormat
	}
	if flagLogLevel != "" {
		level = flagLogLevel
	}
	if debug {
		level = "debug"
	}
	l, err := logging.New(level, format, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "⚠ Warning: %v; using defaults\n", err)
		l, _ = logging.New("info", "text", os.Stderr)
	}
	logger = l
}

// currentConfig returns the loaded configuration, loading it on demand for code
// paths that run without OnInitialize (tests).
func currentConfig() (*cfgpkg.Global, error) {
	if cfg != nil {
		return cfg, nil
	}
	c, err := cfgpkg.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	cfg = c
	return cfg, nil
}

func appLogger() logrus.FieldLogger {
	if logger == nil {
		return logging.Discard()
	}
	return logger
}
