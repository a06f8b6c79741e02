package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/MJE43/reflex-iq/internal/api"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		var ee *exitErr
		if errors.As(err, &ee) {
			fmt.Fprintln(os.Stderr, ee.msg)
			stop()
			os.Exit(ee.code)
		}
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	f := &rootFlags{}

	root := &cobra.Command{
		Use:           "reflexiq",
		Short:         "Score reaction-time sessions and issue verifiable receipts",
		Version:       fmt.Sprintf("%s (commit %s, built %s)", api.EngineVersion, api.GitCommit, api.BuildTime),
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.PersistentFlags().StringVar(&f.configPath, "config", os.Getenv("REFLEXIQ_CONFIG"), "Path to YAML config file")

	root.AddCommand(
		newServeCmd(f),
		newProveCmd(f),
		newVerifyCmd(f),
		newAuditCmd(f),
		newSessionsCmd(f),
	)
	return root
}

type exitErr struct {
	code int
	msg  string
}

func (e *exitErr) Error() string { return e.msg }

func exitError(code int, format string, args ...any) error {
	return &exitErr{code: code, msg: fmt.Sprintf(format, args...)}
}
