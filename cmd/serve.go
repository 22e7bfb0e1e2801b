package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/KaramelBytes/funnelboard/internal/chart"
	"github.com/KaramelBytes/funnelboard/internal/parser"
	"github.com/KaramelBytes/funnelboard/internal/pipeline"
	"github.com/KaramelBytes/funnelboard/internal/server"
	"github.com/KaramelBytes/funnelboard/internal/session"
	"github.com/KaramelBytes/funnelboard/internal/table"
	"github.com/spf13/cobra"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the funnel dashboard API over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := currentConfig()
		if err != nil {
			return err
		}
		if err := c.Validate(); err != nil {
			return err
		}
		dec, _ := c.Decimal()
		mode, err := chart.ParseMode(c.ChartMode)
		if err != nil {
			return err
		}
		addr := c.ListenAddr
		if serveAddr != "" {
			addr = serveAddr
		}

		log := appLogger()
		pipe, err := pipeline.New(c.CacheSize, log)
		if err != nil {
			return err
		}
		srv := server.New(server.Options{
			Addr:           addr,
			MaxUploadBytes: c.MaxUploadBytes(),
			PruneEvery:     time.Minute,
			TargetColumn:   c.TargetColumn,
			RangeColumn:    c.RangeColumn,
			FunnelColumns:  c.FunnelColumns,
			ChartMode:      mode,
			SheetName:      c.SheetName,
			Parse:          parser.Options{Table: table.Options{DecimalSeparator: dec}},
		}, session.NewStore(c.SessionTTL()), pipe, log)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return srv.Run(ctx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides listen_addr)")
}
