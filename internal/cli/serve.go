package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func newServeCmd(flags *globalFlags) *cobra.Command {
	var bindAddr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), flags, bindAddr)
		},
	}
	cmd.Flags().StringVar(&bindAddr, "addr", "", "listen address (default: $AGENTFORGE_BIND_ADDR)")
	return cmd
}

func runServe(ctx context.Context, flags *globalFlags, bindAddr string) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	built, err := flags.buildApp(ctx)
	if err != nil {
		return err
	}
	cfg := built.Config
	logger := built.Logger
	if bindAddr == "" {
		bindAddr = cfg.BindAddr
	}

	httpServer := &http.Server{
		Addr:    bindAddr,
		Handler: built.API.Router(),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("server listening", zap.String("addr", bindAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.ShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("graceful shutdown failed", zap.Error(err))
			_ = httpServer.Close()
		}
		return nil
	})

	runErr := g.Wait()
	flushCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := built.Memory.Flush(flushCtx); err != nil {
		logger.Warn("pending index writes not flushed", zap.Error(err))
	}
	logger.Info("shutdown complete")
	if err := built.Cleanup(); err != nil {
		return errors.Join(runErr, fmt.Errorf("cleanup: %w", err))
	}
	return runErr
}
