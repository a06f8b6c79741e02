package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/MJE43/reflex-iq/internal/api"
	"github.com/MJE43/reflex-iq/internal/engine"
	"github.com/MJE43/reflex-iq/internal/store"
	"github.com/MJE43/reflex-iq/internal/zkvm"
)

type proveFlags struct {
	player  string
	save    bool
	explain bool
}

// proveOutput is what `prove` prints.
type proveOutput struct {
	SessionID string            `json:"session_id,omitempty"`
	Proof     *zkvm.Receipt     `json:"proof"`
	Result    engine.GameResult `json:"result"`
	Breakdown *engine.Breakdown `json:"breakdown,omitempty"`
}

func newProveCmd(f *rootFlags) *cobra.Command {
	pf := &proveFlags{}

	cmd := &cobra.Command{
		Use:   "prove [inputs.json]",
		Short: "Score a session from a JSON witness and print its receipt",
		Long: `Reads GameInputs as JSON ({"reaction_times": [...], "total_perfects": n,
"clicks": [...], "random_seed": n}) from the file argument or stdin.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := readJSONArg[engine.GameInputs](cmd.InOrStdin(), args)
			if err != nil {
				return exitError(2, "read inputs: %v", err)
			}
			return runProve(cmd, f, pf, in)
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&pf.player, "player", "", "Player name to record with --save")
	flags.BoolVar(&pf.save, "save", false, "Store the session in the database")
	flags.BoolVar(&pf.explain, "explain", false, "Include the score breakdown")
	return cmd
}

func runProve(cmd *cobra.Command, f *rootFlags, pf *proveFlags, in engine.GameInputs) error {
	if !engine.FiniteMean(in.ReactionTimes) {
		return exitError(2, "reaction_times: float32 sum of the rounds is not finite")
	}

	cfg, err := f.load()
	if err != nil {
		return err
	}
	prover, err := openProver(cfg)
	if err != nil {
		return exitError(3, "open prover: %v", err)
	}

	receipt, err := prover.Prove(cmd.Context(), in)
	if err != nil {
		return exitError(1, "prove: %v", err)
	}
	res, err := prover.Verifier().Verify(receipt)
	if err != nil {
		return exitError(1, "fresh receipt failed verification: %v", err)
	}

	out := proveOutput{Proof: receipt, Result: res}
	if pf.explain {
		if b, ok := engine.Explain(in); ok {
			out.Breakdown = &b
		}
	}

	if pf.save {
		db, err := openStore(cfg)
		if err != nil {
			return exitError(3, "open store: %v", err)
		}
		defer db.Close()
		sess := store.NewSession(pf.player, in.RandomSeed, res, receipt, api.EngineVersion)
		if err := db.SaveSession(cmd.Context(), sess); err != nil {
			return exitError(1, "save session: %v", err)
		}
		out.SessionID = sess.ID
	}

	return writeJSON(cmd.OutOrStdout(), out)
}

// receiptEnvelope accepts a bare receipt or the output of `prove`.
type receiptEnvelope struct {
	zkvm.Receipt
	Proof *zkvm.Receipt `json:"proof"`
}

func newVerifyCmd(f *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "verify [receipt.json]",
		Short: "Verify a receipt and print the result it attests",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := readJSONArg[receiptEnvelope](cmd.InOrStdin(), args)
			if err != nil {
				return exitError(2, "read receipt: %v", err)
			}
			receipt := env.Receipt
			if env.Proof != nil {
				receipt = *env.Proof
			}

			cfg, err := f.load()
			if err != nil {
				return err
			}
			prover, err := openProver(cfg)
			if err != nil {
				return exitError(3, "open prover: %v", err)
			}
			res, err := prover.Verifier().Verify(&receipt)
			if err != nil {
				return exitError(4, "verification failed: %v", err)
			}
			return writeJSON(cmd.OutOrStdout(), res)
		},
	}
}

// readJSONArg decodes args[0], or stdin when no argument is given.
func readJSONArg[T any](stdin io.Reader, args []string) (T, error) {
	var v T
	var data []byte
	var err error
	if len(args) == 0 || args[0] == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(args[0])
	}
	if err != nil {
		return v, err
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return v, fmt.Errorf("decode JSON: %w", err)
	}
	return v, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
