package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kuitang/machreg-e2e/internal/errs"
	"github.com/kuitang/machreg-e2e/internal/fakedash"
	"github.com/kuitang/machreg-e2e/internal/obs"
)

func newFakeDashboardCmd(root *rootFlags) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "fake-dashboard",
		Short: "Serve the fake Elemental dashboard",
		Long: `Serve a local stand-in for the dashboard's Elemental pages. It accepts
DASHBOARD_USERNAME and DASHBOARD_PASSWORD, so a second shell can point
"machreg-smoke run --url http://localhost:8080" at it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig(cmd, root)
			if cfg.Username == "" || cfg.Password == "" {
				return errs.New(errs.InvalidArgument, "DASHBOARD_USERNAME and DASHBOARD_PASSWORD are required")
			}
			srv, err := fakedash.New(fakedash.Options{Username: cfg.Username, Password: cfg.Password})
			if err != nil {
				return err
			}
			defer srv.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cmd, addr, srv)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8080", "Listen address")
	return cmd
}

func serve(ctx context.Context, cmd *cobra.Command, addr string, handler http.Handler) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()

	logger := obs.Pkg("cli")
	logger.Info("fake_dashboard_listening", "addr", addr)
	fmt.Fprintf(cmd.OutOrStdout(), "Fake dashboard listening on %s\n", addr)

	select {
	case err := <-errCh:
		return errs.Wrap(errs.Unavailable, "fake dashboard", err)
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	logger.Info("fake_dashboard_stopped")
	return nil
}
