package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/dyike/CortexTrade/internal/display"
	"github.com/dyike/CortexTrade/internal/storage"
	"github.com/dyike/CortexTrade/internal/storage/sqlite"
	"github.com/spf13/cobra"
)

func newHistoryCmd(st *state) *cobra.Command {
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Browse recorded pipeline runs",
	}

	var (
		symbol string
		limit  int
		cursor int64
		asJSON bool
	)
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List recent runs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := storage.OpenStore(st.cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			runs, err := store.ListRuns(cmd.Context(), symbol, cursor, limit)
			if err != nil {
				return err
			}
			if asJSON {
				return encodeJSON(cmd.OutOrStdout(), runs)
			}
			printRunTable(cmd.OutOrStdout(), runs)
			return nil
		},
	}
	listCmd.Flags().StringVar(&symbol, "symbol", "", "Only runs for this symbol")
	listCmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of runs")
	listCmd.Flags().Int64Var(&cursor, "cursor", 0, "Row cursor from a previous page")
	listCmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")

	var showJSON bool
	showCmd := &cobra.Command{
		Use:   "show RUN_ID",
		Short: "Show one stored run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := storage.OpenStore(st.cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			rec, err := store.GetRun(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if rec == nil {
				return fmt.Errorf("run %s not found", args[0])
			}
			if showJSON {
				return encodeJSON(cmd.OutOrStdout(), rec)
			}
			display.NewResultsDisplay(cmd.OutOrStdout()).DisplayRun(rec.Context)
			return nil
		},
	}
	showCmd.Flags().BoolVar(&showJSON, "json", false, "Print JSON")

	historyCmd.AddCommand(listCmd, showCmd)
	return historyCmd
}

func printRunTable(w io.Writer, runs []sqlite.RunSummary) {
	if len(runs) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("No runs recorded yet."))
		return
	}
	fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("%-6s %-36s %-10s %-4s %-6s %-6s %-9s %s",
		"ROW", "RUN ID", "SYMBOL", "INT", "ACTION", "SCORE", "STATUS", "STARTED")))
	for _, r := range runs {
		score := "-"
		if r.Score != nil {
			score = fmt.Sprintf("%.2f", *r.Score)
		}
		status := completedStyle.Render(fmt.Sprintf("%-9s", r.Status))
		if r.Status == sqlite.StatusDegraded {
			status = errorStyle.Render(fmt.Sprintf("%-9s", r.Status))
		}
		fmt.Fprintf(w, "%-6d %-36s %-10s %-4s %-6s %-6s %s %s\n",
			r.RowID, r.ID, r.Symbol, r.Interval, valueOr(r.Action, "-"), score, status, r.StartedAt)
	}
	if last := runs[len(runs)-1]; last.RowID > 1 {
		fmt.Fprintln(w, mutedStyle.Render(fmt.Sprintf("next page: --cursor %d", last.RowID)))
	}
}

func encodeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
