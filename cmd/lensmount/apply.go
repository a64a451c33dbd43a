package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/cwbudde/lensmount/internal/harness"
	"github.com/cwbudde/lensmount/internal/lens"
	"github.com/cwbudde/lensmount/internal/model"
	"github.com/cwbudde/lensmount/internal/store"
	"github.com/spf13/cobra"
)

var (
	applyConfigPath string
	applyCycles     int
	applyDataDir    string
)

var applyCmd = &cobra.Command{
	Use:   "apply <run-id>",
	Short: "Re-apply the best combination of a stored run",
	Long: `Loads a stored run record, prepares the optical model again and applies
the winning mount positions. The lens configuration must contain exactly the
lenses of the stored run.`,
	Args: cobra.ExactArgs(1),
	RunE: runApply,
}

func init() {
	applyCmd.Flags().StringVarP(&applyConfigPath, "config", "c", "", "Lens configuration file (default: the one used by the run)")
	applyCmd.Flags().IntVarP(&applyCycles, "cycles", "n", model.CyclesAuto, "Optimisation cycles after applying (-1 none, 0 auto)")
	applyCmd.Flags().StringVar(&applyDataDir, "data-dir", "", "Run store directory (default from settings)")

	rootCmd.AddCommand(applyCmd)
}

func runApply(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runID := args[0]
	st, err := store.NewFSStore(dataDir(applyDataDir))
	if err != nil {
		return fmt.Errorf("failed to create run store: %w", err)
	}
	record, err := st.LoadRecord(runID)
	if err != nil {
		return err
	}

	path := applyConfigPath
	if path == "" {
		path = record.Config.ConfigPath
	}
	cfg, err := lens.Load(path)
	if err != nil {
		return err
	}
	if err := record.IsCompatible(cfg.Labels()); err != nil {
		return err
	}

	kind, err := model.ParseMeritKind(record.Config.Merit)
	if err != nil {
		return err
	}
	opts := harness.Options{
		AxisType:        record.Config.AxisType,
		Cycles:          applyCycles,
		Merit:           kind,
		VariableAirGaps: record.Config.VariableAirGaps,
		MaxTuples:       settings.MaxTuples,
		BaseDir:         filepath.Dir(path),
	}

	m, err := openModel(ctx, record.Config.Backend)
	if err != nil {
		return fmt.Errorf("failed to open model: %w", err)
	}
	defer func() {
		if err := m.Close(); err != nil {
			slog.Warn("Failed to close model", "error", err)
		}
	}()

	applied, err := harness.Apply(ctx, m, cfg, opts, record.Tags())
	if err != nil {
		return err
	}

	slog.Info("Applied stored combination", "run_id", runID, "score", applied.Score, "stored_score", record.BestScore)
	fmt.Printf("Applied %s from run %s\n", record.ToInfo().Best, runID)
	for _, sel := range record.Best {
		p := applied.Params[sel.Label]
		fmt.Printf("  %s@%d: decentre (%.4g, %.4g) tilt (%.4g, %.4g) at surface %d\n",
			sel.Label, sel.Position, p.XDecentre, p.YDecentre, p.XTilt, p.YTilt, applied.Layout.CoordBreaks[sel.Label])
	}
	fmt.Printf("Merit value: %.6g (stored: %.6g)\n", applied.Score, record.BestScore)
	return nil
}
