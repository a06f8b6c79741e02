package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/MJE43/reflex-iq/internal/api"
	"github.com/MJE43/reflex-iq/internal/config"
)

func newServeCmd(f *rootFlags) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP scoring service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := f.load()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Addr = addr
			}
			return runServe(cmd.Context(), cfg, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides config)")
	return cmd
}

// runServe blocks until ctx is cancelled or the listener fails, then shuts
// the server down and closes the store.
func runServe(ctx context.Context, cfg config.Config, out io.Writer) error {
	db, err := openStore(cfg)
	if err != nil {
		return exitError(3, "open store: %v", err)
	}
	prover, err := openProver(cfg)
	if err != nil {
		return multierr.Append(exitError(3, "open prover: %v", err), db.Close())
	}
	classifier, err := openClassifier(cfg)
	if err != nil {
		return multierr.Append(exitError(3, "load perfects rule: %v", err), db.Close())
	}

	srv := api.NewServer(db, prover, classifier)
	httpSrv := &http.Server{
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      90 * time.Second,
	}

	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return multierr.Append(fmt.Errorf("listen %s: %w", cfg.Addr, err), db.Close())
	}
	fmt.Fprintf(out, "reflexiq %s listening on %s (image %s)\n", api.EngineVersion, ln.Addr(), prover.ImageID())

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- httpSrv.Serve(ln)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		log.Printf("shutdown_requested reason=%v", context.Cause(ctx))
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			runErr = fmt.Errorf("serve: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return multierr.Combine(
		runErr,
		httpSrv.Shutdown(shutdownCtx),
		db.Close(),
	)
}
