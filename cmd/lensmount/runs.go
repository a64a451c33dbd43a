package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"text/tabwriter"
	"time"

	"github.com/cwbudde/lensmount/internal/store"
	"github.com/spf13/cobra"
)

var (
	runsDataDir   string
	keepLast      int
	olderThanDays int
	forceClean    bool
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Manage stored runs",
	Long: `Manage stored run records including listing and cleaning old runs.
A stored run can be re-applied to the model with "lensmount apply".`,
}

var listRunsCmd = &cobra.Command{
	Use:   "list",
	Short: "List all stored runs",
	RunE:  runListRuns,
}

var cleanRunsCmd = &cobra.Command{
	Use:   "clean",
	Short: "Delete old runs",
	Long: `Delete old runs based on retention policy.
You can keep only the newest N runs or delete runs older than N days.`,
	RunE: runCleanRuns,
}

func init() {
	rootCmd.AddCommand(runsCmd)
	runsCmd.AddCommand(listRunsCmd)
	runsCmd.AddCommand(cleanRunsCmd)

	runsCmd.PersistentFlags().StringVar(&runsDataDir, "data-dir", "", "Run store directory (default from settings)")

	cleanRunsCmd.Flags().IntVar(&keepLast, "keep-last", 0, "Keep only the newest N runs (0 = keep all)")
	cleanRunsCmd.Flags().IntVar(&olderThanDays, "older-than", 0, "Delete runs older than N days (0 = no age limit)")
	cleanRunsCmd.Flags().BoolVarP(&forceClean, "force", "f", false, "Skip confirmation prompt")
}

func runListRuns(cmd *cobra.Command, args []string) error {
	st, err := store.NewFSStore(dataDir(runsDataDir))
	if err != nil {
		return fmt.Errorf("failed to create run store: %w", err)
	}

	infos, err := st.ListRecords()
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	if len(infos) == 0 {
		fmt.Println("No runs found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RUN ID\tTIMESTAMP\tAXIS\tMERIT\tCOMBINATIONS\tBEST\tSCORE\tSIZE")
	fmt.Fprintln(w, "------\t---------\t----\t-----\t------------\t----\t-----\t----")

	for _, info := range infos {
		size, err := getDirSize(filepath.Join(st.BaseDir(), "runs", info.RunID))
		sizeStr := "unknown"
		if err == nil {
			sizeStr = formatBytes(size)
		}

		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\t%.6g\t%s\n",
			shortID(info.RunID),
			info.Timestamp.Format("2006-01-02 15:04:05"),
			info.AxisType,
			info.Merit,
			info.Total,
			info.Best,
			info.BestScore,
			sizeStr,
		)
	}

	w.Flush()

	fmt.Printf("\nTotal runs: %d\n", len(infos))
	return nil
}

func runCleanRuns(cmd *cobra.Command, args []string) error {
	if keepLast == 0 && olderThanDays == 0 {
		return fmt.Errorf("must specify either --keep-last or --older-than")
	}

	st, err := store.NewFSStore(dataDir(runsDataDir))
	if err != nil {
		return fmt.Errorf("failed to create run store: %w", err)
	}

	infos, err := st.ListRecords()
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	toDelete := selectRunsForDeletion(infos, keepLast, olderThanDays, time.Now())
	if len(toDelete) == 0 {
		fmt.Println("No runs match deletion criteria.")
		return nil
	}

	fmt.Printf("Found %d run(s) to delete:\n", len(toDelete))
	for _, info := range toDelete {
		fmt.Printf("  - %s (%s, score %.6g)\n",
			shortID(info.RunID),
			info.Timestamp.Format("2006-01-02 15:04:05"),
			info.BestScore,
		)
	}

	if !forceClean {
		fmt.Print("\nProceed with deletion? [y/N]: ")
		var response string
		fmt.Scanln(&response)
		if response != "y" && response != "Y" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	deleted, failed := 0, 0
	for _, info := range toDelete {
		if err := st.DeleteRecord(info.RunID); err != nil {
			slog.Error("Failed to delete run", "run_id", info.RunID, "error", err)
			failed++
			continue
		}
		slog.Info("Deleted run", "run_id", info.RunID)
		deleted++
	}

	fmt.Printf("\nDeleted %d run(s), %d failed.\n", deleted, failed)
	return nil
}

// selectRunsForDeletion returns the runs older than olderThanDays plus the
// runs beyond the newest keepLast, oldest first. Zero disables a criterion.
func selectRunsForDeletion(infos []store.RunInfo, keepLast, olderThanDays int, now time.Time) []store.RunInfo {
	sorted := slices.Clone(infos)
	slices.SortStableFunc(sorted, func(a, b store.RunInfo) int {
		return a.Timestamp.Compare(b.Timestamp)
	})

	cutoff := now.AddDate(0, 0, -olderThanDays)
	excess := 0
	if keepLast > 0 && len(sorted) > keepLast {
		excess = len(sorted) - keepLast
	}

	var toDelete []store.RunInfo
	for i, info := range sorted {
		if i < excess || (olderThanDays > 0 && info.Timestamp.Before(cutoff)) {
			toDelete = append(toDelete, info)
		}
	}
	return toDelete
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12] + "..."
	}
	return id
}

// getDirSize calculates the total size of a directory
func getDirSize(path string) (int64, error) {
	var size int64
	err := filepath.Walk(path, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			size += info.Size()
		}
		return nil
	})
	return size, err
}

// formatBytes formats bytes as human-readable string
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
