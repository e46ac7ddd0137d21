package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"emptysweep/internal/database"
	"emptysweep/internal/exitcodes"
)

var errNoQuery = errors.New("no query selected")

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

type options struct {
	dbPath      string
	recent      int
	stats       bool
	days        int
	action      string
	pathPattern string
	runID       string
	prune       int
	info        bool
	jsonOutput  bool
}

func parseArgs(args []string, stderr io.Writer) (*options, error) {
	opts := &options{}

	fs := flag.NewFlagSet("emptysweep-history", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.dbPath, "db", "/var/lib/emptysweep/history.db", "Path to deletion history database")
	fs.IntVar(&opts.recent, "recent", 0, "Show N most recent removal attempts")
	fs.BoolVar(&opts.stats, "stats", false, "Show removal statistics")
	fs.IntVar(&opts.days, "days", 30, "Number of days for statistics")
	fs.StringVar(&opts.action, "action", "", "Filter by action (DELETE, DRY_RUN, SKIP, ERROR)")
	fs.StringVar(&opts.pathPattern, "path", "", "Filter by path pattern (SQL LIKE syntax)")
	fs.StringVar(&opts.runID, "run", "", "Show every attempt of one sweep, in order")
	fs.IntVar(&opts.prune, "prune", 0, "Delete records older than N days, then vacuum")
	fs.BoolVar(&opts.info, "info", false, "Show database size and record range")
	fs.BoolVar(&opts.jsonOutput, "json", false, "Output in JSON format")
	fs.Usage = func() {
		out := fs.Output()
		fmt.Fprintf(out, "Usage: emptysweep-history [flags]\n\n")
		fs.PrintDefaults()
		fmt.Fprintln(out, "\nExamples:")
		fmt.Fprintln(out, "  emptysweep-history -recent 10            # Show 10 most recent attempts")
		fmt.Fprintln(out, "  emptysweep-history -stats -days 7        # Show last week's statistics")
		fmt.Fprintln(out, "  emptysweep-history -action SKIP          # Show safety skips")
		fmt.Fprintln(out, "  emptysweep-history -path '/srv/app/%'    # Show removals under /srv/app")
		fmt.Fprintln(out, "  emptysweep-history -run 20261015T...Z    # Show one sweep")
		fmt.Fprintln(out, "  emptysweep-history -prune 90             # Drop records older than 90 days")
		fmt.Fprintln(out, "  emptysweep-history -info                 # Show database size")
	}

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		fs.Usage()
		return nil, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	if opts.days <= 0 || opts.recent < 0 || opts.prune < 0 {
		return nil, errors.New("-days must be positive; -recent and -prune cannot be negative")
	}
	if !opts.stats && opts.recent == 0 && opts.action == "" && opts.pathPattern == "" && opts.runID == "" && opts.prune == 0 && !opts.info {
		fs.Usage()
		return nil, errNoQuery
	}

	return opts, nil
}

func run(args []string, stdout, stderr io.Writer) int {
	opts, err := parseArgs(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitcodes.Success
		}
		fmt.Fprintf(stderr, "ERROR: %v\n", err)
		return exitcodes.InvalidUsage
	}

	// Don't create an empty database just to report it has no history
	if _, err := os.Stat(opts.dbPath); err != nil {
		fmt.Fprintf(stderr, "ERROR: Failed to open database %s: %v\n", opts.dbPath, err)
		return exitcodes.RuntimeError
	}

	db, err := database.NewDeletionDB(opts.dbPath)
	if err != nil {
		fmt.Fprintf(stderr, "ERROR: Failed to open database %s: %v\n", opts.dbPath, err)
		return exitcodes.RuntimeError
	}
	defer func() {
		if err := db.Close(); err != nil {
			fmt.Fprintf(stderr, "ERROR: Failed to close database: %v\n", err)
		}
	}()

	q := &querier{db: db, out: stdout, json: opts.jsonOutput}

	// Handle different query modes
	switch {
	case opts.prune > 0:
		err = q.prune(opts.prune)
	case opts.info:
		err = q.showInfo()
	case opts.stats:
		err = q.showStats(opts.days)
	case opts.recent > 0:
		err = q.showRecent(opts.recent)
	case opts.runID != "":
		err = q.showRun(opts.runID)
	case opts.action != "":
		err = q.showByAction(opts.action)
	case opts.pathPattern != "":
		err = q.showByPath(opts.pathPattern)
	}
	if err != nil {
		fmt.Fprintf(stderr, "ERROR: %v\n", err)
		return exitcodes.RuntimeError
	}

	return exitcodes.Success
}

type querier struct {
	db   *database.DeletionDB
	out  io.Writer
	json bool
}

func (q *querier) writeJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(q.out, string(data))
	return err
}

func (q *querier) prune(days int) error {
	deleted, err := q.db.DeleteOldRecords(days)
	if err != nil {
		return fmt.Errorf("failed to prune records: %w", err)
	}
	if err := q.db.Vacuum(); err != nil {
		return fmt.Errorf("failed to vacuum database: %w", err)
	}

	if q.json {
		return q.writeJSON(map[string]int64{"pruned": deleted})
	}
	fmt.Fprintf(q.out, "Pruned %d records older than %d days\n", deleted, days)
	return nil
}

func (q *querier) showInfo() error {
	stats, err := q.db.GetDatabaseStats()
	if err != nil {
		return fmt.Errorf("failed to get database stats: %w", err)
	}

	if q.json {
		return q.writeJSON(stats)
	}

	fmt.Fprintf(q.out, "Records:   %d\n", stats["total_records"])
	fmt.Fprintf(q.out, "Sweeps:    %d\n", stats["total_runs"])
	fmt.Fprintf(q.out, "Size:      %s\n", formatBytes(stats["database_size_bytes"].(int64)))
	if t, ok := stats["oldest_record"].(time.Time); ok {
		fmt.Fprintf(q.out, "Oldest:    %s\n", t.Format("2006-01-02 15:04:05"))
	}
	if t, ok := stats["newest_record"].(time.Time); ok {
		fmt.Fprintf(q.out, "Newest:    %s\n", t.Format("2006-01-02 15:04:05"))
	}
	return nil
}

func (q *querier) showStats(days int) error {
	stats, err := q.db.GetDeletionStats(days)
	if err != nil {
		return fmt.Errorf("failed to get statistics: %w", err)
	}

	if q.json {
		return q.writeJSON(stats)
	}

	fmt.Fprintf(q.out, "Removal Statistics (Last %d days)\n", days)
	fmt.Fprintf(q.out, "Period: %s to %s\n\n", stats.StartDate.Format("2006-01-02"), stats.EndDate.Format("2006-01-02"))
	fmt.Fprintf(q.out, "Sweeps:              %d\n", stats.Runs)
	fmt.Fprintf(q.out, "Total Removed:       %d\n", stats.TotalDeleted)
	fmt.Fprintf(q.out, "  Files:             %d\n", stats.FilesDeleted)
	fmt.Fprintf(q.out, "  Directories:       %d\n", stats.DirectoriesDeleted)
	fmt.Fprintf(q.out, "Dry-Run Candidates:  %d\n", stats.TotalDryRun)
	fmt.Fprintf(q.out, "Total Skipped:       %d\n", stats.TotalSkipped)
	fmt.Fprintf(q.out, "Total Errors:        %d\n", stats.TotalErrors)

	printCounts(q.out, "By Action (all time):", stats.ByAction)
	printCounts(q.out, "Removed By Object Type (all time):", stats.ByObjectType)
	return nil
}

func (q *querier) showRecent(limit int) error {
	records, err := q.db.GetRecentDeletions(limit)
	if err != nil {
		return fmt.Errorf("failed to get recent removals: %w", err)
	}
	return q.showRecords("", records)
}

func (q *querier) showRun(runID string) error {
	records, err := q.db.GetDeletionsByRun(runID)
	if err != nil {
		return fmt.Errorf("failed to query run: %w", err)
	}
	return q.showRecords(fmt.Sprintf("Sweep %s", runID), records)
}

func (q *querier) showByAction(action string) error {
	records, err := q.db.GetDeletionsByAction(action)
	if err != nil {
		return fmt.Errorf("failed to query by action: %w", err)
	}
	return q.showRecords(fmt.Sprintf("Records with action: %s", action), records)
}

func (q *querier) showByPath(pathPattern string) error {
	records, err := q.db.GetDeletionsByPath(pathPattern)
	if err != nil {
		return fmt.Errorf("failed to query by path: %w", err)
	}
	return q.showRecords(fmt.Sprintf("Records matching path pattern: %s", pathPattern), records)
}

func (q *querier) showRecords(title string, records []database.DeletionRecord) error {
	if q.json {
		if records == nil {
			records = []database.DeletionRecord{}
		}
		return q.writeJSON(records)
	}
	if title != "" {
		fmt.Fprintf(q.out, "%s\n\n", title)
	}
	printRecords(q.out, records)
	return nil
}

func printCounts(out io.Writer, title string, counts map[string]int) {
	if len(counts) == 0 {
		return
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fmt.Fprintf(out, "\n%s\n", title)
	for _, k := range keys {
		fmt.Fprintf(out, "  %-16s %d\n", k, counts[k])
	}
}

func printRecords(out io.Writer, records []database.DeletionRecord) {
	if len(records) == 0 {
		fmt.Fprintln(out, "No records found")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tTimestamp\tAction\tObject\tPath\tError")
	_, _ = fmt.Fprintln(w, "--\t---------\t------\t------\t----\t-----")

	for _, r := range records {
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
			r.ID, r.Timestamp.Format("2006-01-02 15:04:05"), r.Action, r.ObjectType, r.Path, r.ErrorMessage)
	}
	_ = w.Flush()
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
