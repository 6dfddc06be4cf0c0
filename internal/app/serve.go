package app

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"gasledger/internal/api"
)

// Serve runs the read API until SIGINT or SIGTERM.
func (a *App) Serve(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	server := api.NewServer(a.Config.Server, store, a.Metrics, a.Logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	timeout := a.Config.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
	defer shutdownCancel()

	a.Logger.Info().Msg("shutting down read api")
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown read api: %w", err)
	}
	return <-errCh
}
