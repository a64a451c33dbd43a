package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/cwbudde/lensmount/internal/harness"
	"github.com/cwbudde/lensmount/internal/lens"
	"github.com/cwbudde/lensmount/internal/model"
	"github.com/cwbudde/lensmount/internal/mount"
	"github.com/cwbudde/lensmount/internal/store"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	configPath      string
	cycles          int
	plot            bool
	merit           string
	variableAirGaps bool
	axisType        string
	backend         string
	reportPath      string
	runDataDir      string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Score every mount combination and report the best",
	Long: `Loads the lens configuration, prepares the optical model with a
coordinate break pair around every lens, scores each combination of mount
positions and re-applies the combination with the lowest merit value.`,
	RunE: runSelection,
}

func init() {
	runCmd.Flags().StringVarP(&configPath, "config", "c", "config.json", "Lens configuration file")
	runCmd.Flags().IntVarP(&cycles, "cycles", "n", model.CyclesNone, "Optimisation cycles per combination (-1 none, 0 auto)")
	runCmd.Flags().BoolVarP(&plot, "plot", "p", false, "Plot the merit value of every combination")
	runCmd.Flags().StringVarP(&merit, "merit", "m", string(model.MeritSpot), "Merit function kind: SPOT or WAVE")
	runCmd.Flags().BoolVar(&variableAirGaps, "variable-air-gaps", false, "Let the optimiser vary the air gap after every lens")
	runCmd.Flags().StringVar(&axisType, "axis", "", "Axis type of the applied mount data (default from settings)")
	runCmd.Flags().StringVar(&backend, "backend", "", "Model backend: sim or bridge (default from settings)")
	runCmd.Flags().StringVar(&reportPath, "report", "", "Write a run report (.json, .yaml or .yml)")
	runCmd.Flags().StringVar(&runDataDir, "data-dir", "", "Run store directory (default from settings)")

	rootCmd.AddCommand(runCmd)
}

func runSelection(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := lens.Load(configPath)
	if err != nil {
		return err
	}
	kind, err := model.ParseMeritKind(merit)
	if err != nil {
		return err
	}
	if axisType == "" {
		axisType = settings.AxisType
	}
	if backend == "" {
		backend = settings.Backend
	}

	opts := harness.Options{
		AxisType:        axisType,
		Cycles:          cycles,
		Merit:           kind,
		VariableAirGaps: variableAirGaps,
		MaxTuples:       settings.MaxTuples,
		BaseDir:         filepath.Dir(configPath),
	}

	st, err := store.NewFSStore(dataDir(runDataDir))
	if err != nil {
		return fmt.Errorf("failed to create run store: %w", err)
	}

	runID := uuid.New().String()
	slog.Info("Starting run",
		"run_id", runID,
		"config", configPath,
		"axis", axisType,
		"merit", kind,
		"cycles", cycles,
		"backend", backend,
	)

	m, err := openModel(ctx, backend)
	if err != nil {
		return fmt.Errorf("failed to open model: %w", err)
	}
	defer func() {
		if err := m.Close(); err != nil {
			slog.Warn("Failed to close model", "error", err)
		}
	}()

	trace, err := store.NewTraceWriter(st.BaseDir(), runID, false)
	if err != nil {
		return err
	}
	defer trace.Close()

	start := time.Now()
	res, err := harness.Run(ctx, m, cfg, opts, printScore(trace))
	if err != nil {
		return err
	}
	elapsed := time.Since(start)

	runConfig := store.RunConfig{
		ConfigPath:      absPath(configPath),
		AxisType:        axisType,
		Merit:           string(kind),
		Cycles:          cycles,
		VariableAirGaps: variableAirGaps,
		Backend:         backend,
	}
	record := store.NewRunRecord(runID, runConfig, res.Best, res.BestIndex, res.BestScore, res.FinalScore, len(res.Scores), len(res.Combinations))
	if err := st.SaveRecord(runID, record); err != nil {
		return err
	}
	if reportPath != "" {
		if err := store.WriteReport(reportPath, record, res.Scores); err != nil {
			return err
		}
	}

	slog.Info("Run complete",
		"run_id", runID,
		"elapsed", elapsed,
		"combinations", len(res.Combinations),
		"best_index", res.BestIndex,
		"best_score", res.BestScore,
		"final_score", res.FinalScore,
	)

	fmt.Printf("\nBest combination (#%d): %s\n", res.BestIndex, res.Best)
	fmt.Printf("Merit value: %.6g (after final optimisation: %.6g)\n", res.BestScore, res.FinalScore)
	fmt.Printf("Run ID: %s\n", runID)

	if plot {
		fmt.Println()
		plotScores(os.Stdout, res.Scores, res.BestIndex, plotWidth)
	}
	return nil
}

// printScore prints each scored combination and appends it to the trace.
func printScore(trace *store.TraceWriter) harness.Observer {
	return harness.ObserverFunc(func(i, total int, c mount.Combination, score float64) {
		fmt.Printf("[%d/%d] %s: %.6g\n", i+1, total, c, score)
		entry := store.TraceEntry{Index: i, Tags: c.Tags(), Score: score, Timestamp: time.Now()}
		if err := trace.Write(entry); err != nil {
			slog.Warn("Failed to write trace entry", "index", i, "error", err)
		}
	})
}

func absPath(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}

