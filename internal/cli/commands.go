package cli

import (
	"context"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"go-peak-window/internal/analyze"
	"go-peak-window/internal/export"
	"go-peak-window/internal/heatmap"
	"go-peak-window/internal/server"
)

func newServeCommand(root *rootOptions) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			cfg := root.cfg
			if addr != "" {
				cfg.Server.Addr = addr
			}
			app, err := Build(ctx, cfg)
			if err != nil {
				return err
			}
			defer app.Close()
			go app.Sweep(ctx, time.Hour)

			srv := server.New(app.Service, server.Options{
				Addr:       cfg.Server.Addr,
				RateLimit:  cfg.Server.RateLimit,
				RateWindow: cfg.Server.RateWindow,
				Metrics:    app.Metrics,
			})
			return srv.Run(ctx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides SERVER.addr)")
	return cmd
}

func newAnalyzeCommand(root *rootOptions) *cobra.Command {
	out := &outputOptions{}
	cmd := &cobra.Command{
		Use:   "analyze <subject>",
		Short: "Analyze one subject",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := out.validate(); err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), root.cfg.Batch.JobTimeout+root.cfg.Insight.Timeout)
			defer cancel()
			app, err := Build(ctx, root.cfg)
			if err != nil {
				return err
			}
			defer app.Close()

			res, err := app.Service.AnalyzeOne(ctx, args[0], out.days)
			if err != nil {
				return err
			}
			res = heatmap.Localize(res, heatmap.LoadLocation(out.tz))
			subject := args[0]
			return out.write(cmd, func(w io.Writer) error {
				switch out.format {
				case "json":
					return export.JSON(w, res)
				case "csv":
					return export.ResultCSV(w, subject, res)
				}
				export.ResultTable(w, subject, res)
				return nil
			})
		},
	}
	out.bind(cmd)
	return cmd
}

func newBulkCommand(root *rootOptions) *cobra.Command {
	out := &outputOptions{}
	cmd := &cobra.Command{
		Use:   "bulk <subject>...",
		Short: "Analyze several subjects with bounded concurrency",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := out.validate(); err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			app, err := Build(ctx, root.cfg)
			if err != nil {
				return err
			}
			defer app.Close()

			res, err := app.Service.AnalyzeBatch(ctx, args, out.days)
			if err != nil {
				return err
			}
			res = analyze.BatchInZone(res, heatmap.LoadLocation(out.tz))
			return out.write(cmd, func(w io.Writer) error {
				switch out.format {
				case "json":
					return export.JSON(w, res)
				case "csv":
					return export.BatchCSV(w, res)
				}
				export.BatchTable(w, res)
				return nil
			})
		},
	}
	out.bind(cmd)
	return cmd
}
