package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/fee-cli/internal/api"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if servePort != 0 {
			cfg.Server.Port = servePort
		}
		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		env, err := initEnv(ctx, true)
		if err != nil {
			return err
		}
		defer env.Close()

		// Warm the cache; a missing workbook is reported per request.
		if cfg.Workbook.Path != "" {
			ds, err := env.Datasets.Get(ctx, cfg.Workbook.Path)
			env.Letters.LogRefresh(ctx, cfg.Workbook.Path, err)
			if err != nil {
				zap.L().Warn("reference workbook not loaded", zap.String("path", cfg.Workbook.Path), zap.Error(err))
			} else {
				inv, co, fr := ds.Counts()
				zap.L().Info("reference workbook loaded",
					zap.String("path", ds.Source),
					zap.Int("investors", inv),
					zap.Int("companies", co),
					zap.Int("fee_rows", fr),
				)
			}
		}

		srv := api.NewServer(api.Config{
			WorkbookPath:   cfg.Workbook.Path,
			RateLimitRPS:   cfg.Server.RateLimitRPS,
			RateLimitBurst: cfg.Server.RateLimitBurst,
			CORSOrigins:    cfg.Server.CORSOrigins,
		}, env.Letters, env.Datasets, api.WithMetrics(env.Metrics, env.Registry))

		httpSrv := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:           srv.Router(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = httpSrv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", cfg.Server.Port))
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
