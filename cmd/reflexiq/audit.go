package main

import (
	"github.com/spf13/cobra"

	"github.com/MJE43/reflex-iq/internal/audit"
)

func newAuditCmd(f *rootFlags) *cobra.Command {
	var workers int

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Re-verify every stored receipt",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := f.load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("workers") {
				cfg.AuditWorkers = workers
			}
			db, err := openStore(cfg)
			if err != nil {
				return exitError(3, "open store: %v", err)
			}
			defer db.Close()
			prover, err := openProver(cfg)
			if err != nil {
				return exitError(3, "open prover: %v", err)
			}

			report, err := audit.New(prover.Verifier(), cfg.AuditWorkers).Run(cmd.Context(), db)
			if err != nil {
				return exitError(1, "%v", err)
			}
			if err := writeJSON(cmd.OutOrStdout(), report); err != nil {
				return err
			}
			if report.Failed > 0 {
				return exitError(2, "audit: %d of %d sessions failed", report.Failed, report.Checked)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&workers, "workers", 0, "Concurrent verifications (default GOMAXPROCS)")
	return cmd
}
