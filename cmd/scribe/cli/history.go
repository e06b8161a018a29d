package cli

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/scribe/internal/memory"
	"github.com/felixgeelhaar/scribe/internal/store"
)

var (
	historyLimit  int
	historySearch string
)

var historyCmd = &cobra.Command{
	Use:   "history [session-id]",
	Short: "List past sessions, or show the latest run of one session",
	Long: `List past sessions, or show the latest run of one session.

With --search, list past runs whose query and summary are closest to the
given text instead.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return fmt.Errorf("failed to init store: %w", err)
		}
		defer s.Close()

		if historySearch != "" {
			return searchRuns(cmd, s.Recall(), historySearch)
		}
		if len(args) == 0 {
			return listSessions(cmd, s)
		}

		cfg, err := loadConfig(configPath)
		if err != nil {
			return err
		}
		applyFlags(cfg)
		mem, err := memory.Open(cfg.Memory.Path)
		if err != nil {
			return err
		}
		return showSession(cmd, s, mem, args[0])
	},
}

func listSessions(cmd *cobra.Command, s store.Storage) error {
	sessions, err := s.ListSessions(historyLimit)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(sessions) == 0 {
		fmt.Fprintln(out, "No sessions yet.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SESSION\tSTATUS\tCREATED\tUPDATED")
	for _, sess := range sessions {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", sess.ID, sess.Status,
			sess.CreatedAt.Local().Format(time.DateTime), sess.UpdatedAt.Local().Format(time.DateTime))
	}
	return w.Flush()
}

func searchRuns(cmd *cobra.Command, idx memory.Recall, text string) error {
	items, err := idx.Retrieve(cmd.Context(), text, historyLimit)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(items) == 0 {
		fmt.Fprintln(out, "No similar runs.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SESSION\tRUN\tSCORE\tQUERY")
	for _, it := range items {
		fmt.Fprintf(w, "%s\t%s\t%.2f\t%s\n", it.SessionID, it.RunID, it.Similarity, it.Query())
	}
	return w.Flush()
}

func showSession(cmd *cobra.Command, s store.Storage, mem *memory.Store, id string) error {
	out := cmd.OutOrStdout()

	sess, err := s.GetSession(id)
	switch {
	case err == nil:
		fmt.Fprintf(out, "Session %s (%s), %d turns\n", sess.ID, sess.Status, len(sess.Turns))
	case errors.Is(err, store.ErrNotFound):
		fmt.Fprintf(out, "Session %s is not in the session store\n", id)
	default:
		return err
	}

	if arts, err := s.ListArtifacts(id); err == nil {
		for _, a := range arts {
			fmt.Fprintf(out, "  %s %s\n", a.Type, a.Path)
		}
	}

	rec, ok := mem.FindLastBySession(id)
	if !ok {
		fmt.Fprintln(out, "No runs recorded in memory for this session.")
		return nil
	}
	fmt.Fprintf(out, "\nLatest run %s\nQuery: %s\n", rec.String(memory.KeyRunID), rec.String(memory.KeyQuery))
	fmt.Fprintf(out, "\n== Final draft ==\n%s\n", rec.String(memory.KeyDraft))
	return nil
}

func init() {
	RootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Maximum sessions or runs to list (0 for all)")
	historyCmd.Flags().StringVarP(&historySearch, "search", "s", "", "List past runs similar to this text")
	historyCmd.Flags().StringVar(&memoryPath, "memory", "", "Memory store path")
}
