package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/forest-guardian/flood-mapper/internal/api"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newServeCommand(root *rootFlags) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve POST /check_flood, /healthz and /metrics",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(root, false)
			if err != nil {
				return err
			}
			defer a.Close()
			if addr == "" {
				addr = a.cfg.HTTP.Addr
			}

			staticDir := filepath.Join(a.cfg.Output.Dir, "static")
			if err := os.MkdirAll(staticDir, 0o755); err != nil {
				return err
			}
			srv := api.NewServer(addr, a.mapper, staticDir, a.clock, a.logger.Named("api"))

			ctx := cmd.Context()
			errCh := make(chan error, 1)
			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}
			a.logger.Info("shutting down")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				a.logger.Error("http server shutdown error", zap.Error(err))
			}
			a.logger.Info("shutdown complete")
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default http.addr)")
	return cmd
}
