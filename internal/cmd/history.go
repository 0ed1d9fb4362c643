package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"leave/internal/config"
	"leave/internal/database"
)

type historyFlags struct {
	dbPath     string
	configPath string
	recent     int
	runs       int
	runID      string
	action     string
	pathLike   string
	stats      bool
	days       int
	pruneDays  int
	jsonOutput bool
}

// NewHistoryCommand creates the leave-history command
func NewHistoryCommand() *cobra.Command {
	f := &historyFlags{}

	cmd := &cobra.Command{
		Use:   "leave-history",
		Short: "Query the history recorded by leave --history",
		Long: `leave-history reads the sqlite database written by leave when --history
(or history.path in the config file) is set.`,
		Example: `  leave-history --recent 10             # 10 most recent entries
  leave-history --runs 5                # 5 most recent runs
  leave-history --run <run-id>          # every entry of one run
  leave-history --action ERROR          # only failures
  leave-history --path '/srv/build/%'   # entries below /srv/build
  leave-history --stats --days 7        # totals for the last week
  leave-history --prune-days 90         # forget records older than 90 days`,
		Version:      Version,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(cmd, f)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&f.dbPath, "db", "", "history database (default history.path from the config file)")
	flags.StringVar(&f.configPath, "config", "", "config file")
	flags.IntVar(&f.recent, "recent", 0, "show the `N` most recent entries")
	flags.IntVar(&f.runs, "runs", 0, "show the `N` most recent runs")
	flags.StringVar(&f.runID, "run", "", "show the entries of one run")
	flags.StringVar(&f.action, "action", "", "filter by action (DELETE, DRY_RUN, SKIP, ERROR)")
	flags.StringVar(&f.pathLike, "path", "", "filter by path pattern (SQL LIKE syntax)")
	flags.BoolVar(&f.stats, "stats", false, "show statistics")
	flags.IntVar(&f.days, "days", 30, "number of days for --stats")
	flags.IntVar(&f.pruneDays, "prune-days", 0, "delete records older than `N` days")
	flags.BoolVar(&f.jsonOutput, "json", false, "output in JSON format")

	return cmd
}

func runHistory(cmd *cobra.Command, f *historyFlags) error {
	out := cmd.OutOrStdout()

	dbPath := f.dbPath
	if dbPath == "" {
		cfg, _, err := config.LoadDefault(f.configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		dbPath = cfg.History.Path
	}
	if dbPath == "" {
		return errors.New("no history database: pass --db or set history.path in the config file")
	}

	db, err := database.NewDeletionDB(dbPath)
	if err != nil {
		return fmt.Errorf("open history %s: %w", dbPath, err)
	}
	defer db.Close()

	switch {
	case f.pruneDays > 0:
		n, err := db.DeleteOldRecords(f.pruneDays)
		if err != nil {
			return fmt.Errorf("prune history: %w", err)
		}
		if err := db.Vacuum(); err != nil {
			return fmt.Errorf("vacuum history: %w", err)
		}
		fmt.Fprintf(out, "Removed %d records older than %d days\n", n, f.pruneDays)
		return nil
	case f.stats:
		stats, err := db.GetDeletionStats(f.days)
		if err != nil {
			return fmt.Errorf("get statistics: %w", err)
		}
		if f.jsonOutput {
			return writeJSON(out, stats)
		}
		printStats(out, stats, f.days)
		return nil
	case f.runs > 0:
		runs, err := db.GetRecentRuns(f.runs)
		if err != nil {
			return fmt.Errorf("get recent runs: %w", err)
		}
		if f.jsonOutput {
			return writeJSON(out, runs)
		}
		printRuns(out, runs)
		return nil
	}

	var records []database.DeletionRecord
	switch {
	case f.runID != "":
		records, err = db.GetDeletionsByRun(f.runID)
	case f.action != "":
		records, err = db.GetDeletionsByAction(strings.ToUpper(f.action))
	case f.pathLike != "":
		records, err = db.GetDeletionsByPath(f.pathLike)
	case f.recent > 0:
		records, err = db.GetRecentDeletions(f.recent)
	default:
		return cmd.Help()
	}
	if err != nil {
		return fmt.Errorf("query history: %w", err)
	}

	if f.jsonOutput {
		return writeJSON(out, records)
	}
	printRecords(out, records)
	return nil
}

func writeJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func printStats(w io.Writer, stats *database.DeletionStats, days int) {
	bold := color.New(color.Bold)

	bold.Fprintf(w, "Statistics (last %d days)\n", days)
	fmt.Fprintf(w, "Period: %s to %s\n\n", stats.StartDate.Format("2006-01-02"), stats.EndDate.Format("2006-01-02"))
	fmt.Fprintf(w, "Runs:         %d\n", stats.TotalRuns)
	fmt.Fprintf(w, "Deleted:      %d\n", stats.TotalDeletions)
	fmt.Fprintf(w, "Skipped:      %d\n", stats.TotalSkipped)
	fmt.Fprintf(w, "Errors:       %d\n", stats.TotalErrors)
	fmt.Fprintf(w, "Space freed:  %s\n", formatBytes(stats.TotalSpaceFreed))

	if len(stats.ByAction) > 0 {
		fmt.Fprintln(w)
		bold.Fprintln(w, "By action:")
		actions := make([]string, 0, len(stats.ByAction))
		for a := range stats.ByAction {
			actions = append(actions, a)
		}
		sort.Strings(actions)
		for _, a := range actions {
			fmt.Fprintf(w, "  %-10s %d\n", a, stats.ByAction[a])
		}
	}
}

func printRuns(w io.Writer, runs []database.RunRecord) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs found")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "Run\tStarted\tOutcome\tDeleted\tSkipped\tFailed\tDirectory")
	_, _ = fmt.Fprintln(tw, "---\t-------\t-------\t-------\t-------\t------\t---------")
	for _, r := range runs {
		outcome := r.Outcome
		if r.DryRun {
			outcome += " (dry run)"
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
			r.RunID, r.StartedAt.Format("2006-01-02 15:04:05"), outcome,
			r.Deleted, r.Skipped, r.Failed, r.WorkDir)
	}
	_ = tw.Flush()
}

func printRecords(w io.Writer, records []database.DeletionRecord) {
	if len(records) == 0 {
		fmt.Fprintln(w, "No records found")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tTimestamp\tAction\tKind\tSize\tPath\tDetail")
	_, _ = fmt.Fprintln(tw, "--\t---------\t------\t----\t----\t----\t------")
	for _, r := range records {
		detail := r.Reason
		if r.ErrorMessage != "" {
			detail = r.ErrorMessage
		}
		_, _ = fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID, r.Timestamp.Format("2006-01-02 15:04:05"), r.Action, r.ObjectType,
			formatBytes(r.Size), r.Path, detail)
	}
	_ = tw.Flush()
}

func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
