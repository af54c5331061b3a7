package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/lead-scoring/internal/model"
	"github.com/sells-group/lead-scoring/internal/store"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect the score ledger and ingestion runs",
}

// -- history scores --

var historyScoresCmd = &cobra.Command{
	Use:   "scores",
	Short: "List recorded lead scores, newest first",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("history"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		org, _ := cmd.Flags().GetString("org")
		lead, _ := cmd.Flags().GetString("lead")
		limit, _ := cmd.Flags().GetInt("limit")
		asJSON, _ := cmd.Flags().GetBool("json")

		scores, err := st.ListScores(ctx, store.ScoreFilter{OrgID: org, LeadID: lead, Limit: limit})
		if err != nil {
			return eris.Wrap(err, "history scores")
		}
		if asJSON {
			return printJSON(cmd.OutOrStdout(), scores)
		}
		if len(scores) == 0 {
			fmt.Fprintln(os.Stderr, "No scores found.")
			return nil
		}
		formatScoresList(cmd.OutOrStdout(), scores)
		return nil
	},
}

// -- history runs --

var historyRunsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List contact ingestion runs, newest first",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("history"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		limit, _ := cmd.Flags().GetInt("limit")
		asJSON, _ := cmd.Flags().GetBool("json")

		runs, err := st.ListIngestRuns(ctx, limit)
		if err != nil {
			return eris.Wrap(err, "history runs")
		}
		if asJSON {
			return printJSON(cmd.OutOrStdout(), runs)
		}
		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No ingestion runs found.")
			return nil
		}
		formatIngestRuns(cmd.OutOrStdout(), runs)
		return nil
	},
}

func formatScoresList(out io.Writer, scores []model.ScoreRecord) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "CREATED\tORG\tLEAD\tSCORE\tNEIGHBORS\tFALLBACK\tCOST\tREASON")
	_, _ = fmt.Fprintln(w, "-------\t---\t----\t-----\t---------\t--------\t----\t------")

	for _, s := range scores {
		fallback := ""
		if s.Fallback {
			fallback = "yes"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\t$%.4f\t%s\n",
			s.CreatedAt.Format("2006-01-02 15:04"),
			s.OrgID,
			s.LeadID,
			s.Score,
			s.Neighbors,
			fallback,
			s.CostUSD,
			truncate(s.Reason, 60),
		)
	}
	_ = w.Flush()
}

func formatIngestRuns(out io.Writer, runs []model.IngestRun) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tORG\tINDEX\tSTATUS\tCOUNT\tSTARTED\tDURATION\tERROR")
	_, _ = fmt.Fprintln(w, "--\t---\t-----\t------\t-----\t-------\t--------\t-----")

	for _, r := range runs {
		dur := "-"
		if r.FinishedAt != nil {
			dur = r.FinishedAt.Sub(r.StartedAt).Round(time.Second).String()
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\t%s\t%s\n",
			truncateID(r.ID),
			r.OrgID,
			r.IndexName,
			r.Status,
			r.Count,
			r.StartedAt.Format("2006-01-02 15:04"),
			dur,
			truncate(r.Error, 40),
		)
	}
	_ = w.Flush()
}

func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

func init() {
	historyScoresCmd.Flags().String("org", "", "filter by organization id")
	historyScoresCmd.Flags().String("lead", "", "filter by lead id")
	historyScoresCmd.Flags().Int("limit", store.DefaultListLimit, "maximum rows")
	historyScoresCmd.Flags().Bool("json", false, "print JSON instead of a table")

	historyRunsCmd.Flags().Int("limit", store.DefaultListLimit, "maximum rows")
	historyRunsCmd.Flags().Bool("json", false, "print JSON instead of a table")

	historyCmd.AddCommand(historyScoresCmd, historyRunsCmd)
	rootCmd.AddCommand(historyCmd)
}
