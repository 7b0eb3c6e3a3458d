package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/hazyhaar/textract/api"
	"github.com/hazyhaar/textract/docpipe"
)

func newServeCmd() *cobra.Command {
	var cfgPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the extraction HTTP and MCP server",
		Long:  "Run the HTTP API and the /mcp endpoint; blocks until SIGINT/SIGTERM.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := api.LoadConfig(cfgPath)
			if err != nil {
				return err
			}
			cfg.Version = version

			logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
			slog.SetDefault(logger)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, logger)
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", os.Getenv("TEXTRACT_CONFIG"), "path to YAML config file")
	return cmd
}

func serve(ctx context.Context, cfg *api.Config, logger *slog.Logger) error {
	pipe := docpipe.New(docpipe.Config{
		MaxInputBytes: cfg.MaxUploadBytes,
		Layout:        cfg.Layout,
		Logger:        logger,
	})

	var obs *api.Observability
	if cfg.ObsDB != "" {
		var err error
		if obs, err = api.OpenObservability(cfg.ObsDB); err != nil {
			return err
		}
		defer obs.Close()
	}

	g, ctx := errgroup.WithContext(ctx)
	handler := api.New(cfg, pipe, obs, logger).Handler(ctx)
	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g.Go(func() error {
		logger.Info("textract starting", "addr", cfg.Listen, "version", cfg.Version, "observability", obs != nil)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		logger.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	if obs != nil {
		g.Go(func() error { return obs.RunHeartbeat(ctx) })
		g.Go(func() error { return obs.RunRetention(ctx, cfg.Retention) })
	}

	err := g.Wait()
	logger.Info("server stopped")
	return err
}
