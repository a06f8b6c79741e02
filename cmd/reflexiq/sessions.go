package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/MJE43/reflex-iq/internal/store"
)

func newSessionsCmd(f *rootFlags) *cobra.Command {
	var q store.SessionsQuery
	var leaderboard int

	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List stored sessions or the leaderboard",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := f.load()
			if err != nil {
				return err
			}
			db, err := openStore(cfg)
			if err != nil {
				return exitError(3, "open store: %v", err)
			}
			defer db.Close()

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			defer tw.Flush()

			if leaderboard > 0 {
				entries, err := db.Leaderboard(cmd.Context(), leaderboard)
				if err != nil {
					return exitError(1, "leaderboard: %v", err)
				}
				fmt.Fprintln(tw, "RANK\tPLAYER\tIQ\tAVG MS\tCONSISTENCY\tROUNDS\tWHEN")
				for _, e := range entries {
					fmt.Fprintf(tw, "%d\t%s\t%d\t%.2f\t%d\t%d\t%s\n",
						e.Rank, e.Player, e.IQScore, e.AvgReaction, e.Consistency, e.Rounds, humanize.Time(e.CreatedAt))
				}
				return nil
			}

			list, err := db.ListSessions(cmd.Context(), q)
			if err != nil {
				return exitError(1, "list sessions: %v", err)
			}
			fmt.Fprintln(tw, "ID\tPLAYER\tIQ\tAVG MS\tCONSISTENCY\tROUNDS\tWHEN")
			for _, s := range list.Sessions {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%.2f\t%d\t%d\t%s\n",
					s.ID, s.Player, s.IQScore, s.AvgReaction, s.Consistency, s.Rounds, humanize.Time(s.CreatedAt))
			}
			fmt.Fprintf(tw, "page %d of %d (%s sessions)\n", list.Page, list.TotalPages, humanize.Comma(int64(list.TotalCount)))
			return nil
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&q.Player, "player", "", "Only this player's sessions")
	flags.IntVar(&q.Page, "page", 1, "Page number")
	flags.IntVar(&q.PerPage, "per-page", 20, "Sessions per page")
	flags.IntVar(&leaderboard, "leaderboard", 0, "Show the top N players instead")
	return cmd
}
