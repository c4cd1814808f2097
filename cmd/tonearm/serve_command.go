package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/mantonx/tonearm/internal/config"
	"github.com/mantonx/tonearm/internal/database"
	"github.com/mantonx/tonearm/internal/logger"
	"github.com/mantonx/tonearm/internal/server"
)

const shutdownTimeout = 10 * time.Second

func newServeCommand(ctx *commandContext) *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			if err := database.Initialize(cfg.Database); err != nil {
				return err
			}

			gin.SetMode(gin.ReleaseMode)
			if cfg.Logging.Level == "debug" {
				gin.SetMode(gin.DebugMode)
			}

			r, err := server.SetupRouter(cfg)
			if err != nil {
				return err
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if watch && ctx.loadedPath != "" {
				go func() {
					if err := config.GetConfigManager().Watch(runCtx); err != nil {
						logger.Warn("Config watcher stopped: %v", err)
					}
				}()
			}

			srv := &http.Server{
				Addr:           fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
				Handler:        r,
				ReadTimeout:    cfg.Server.ReadTimeout,
				WriteTimeout:   cfg.Server.WriteTimeout,
				MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
			}

			errCh := make(chan error, 1)
			go func() {
				logger.Info("Starting tonearm on %s", srv.Addr)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				if err != nil {
					return fmt.Errorf("http server: %w", err)
				}
			case <-runCtx.Done():
			}

			logger.Info("Shutting down gracefully")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()

			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error("HTTP server shutdown error: %v", err)
			}
			if err := server.Shutdown(shutdownCtx); err != nil {
				logger.Error("Module shutdown error: %v", err)
			}
			logger.Info("Server shutdown complete")
			return nil
		},
	}

	cmd.Flags().BoolVar(&watch, "watch-config", true, "Reload cover limits when the config file changes")
	return cmd
}
