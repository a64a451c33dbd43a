package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/cwbudde/lensmount/internal/lens"
	"github.com/spf13/cobra"
)

var (
	installConfigPath string
	installOutPath    string
)

var installDataCmd = &cobra.Command{
	Use:   "install-data <measured-file>",
	Short: "Merge measured mount data into a lens configuration",
	Long: `Reads measured mount data, one "<label>:<json array of mounts>" line per
lens, and replaces the mount data of the matching lenses. Use "-" to read
from standard input. Lenses missing from the configuration are skipped.
The merged configuration goes next to the input, with ".new" before the
extension, and keeps the input's format unless --out names another file.`,
	Args: cobra.ExactArgs(1),
	RunE: runInstallData,
}

func init() {
	installDataCmd.Flags().StringVarP(&installConfigPath, "config", "c", "config.json", "Lens configuration file")
	installDataCmd.Flags().StringVarP(&installOutPath, "out", "o", "", "Output file (default: <config>.new.<ext>)")

	rootCmd.AddCommand(installDataCmd)
}

func runInstallData(cmd *cobra.Command, args []string) error {
	cfg, err := lens.Load(installConfigPath)
	if err != nil {
		return err
	}

	var r io.Reader = os.Stdin
	if args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("failed to open measured data: %w", err)
		}
		defer f.Close()
		r = f
	}

	updated, err := cfg.MergeMeasured(r)
	if err != nil {
		return fmt.Errorf("failed to merge measured data: %w", err)
	}

	out := installOutPath
	if out == "" {
		out = lens.MergedPath(installConfigPath)
	}
	if err := cfg.Save(out); err != nil {
		return err
	}

	slog.Info("Installed measured data", "labels", updated, "path", out)
	fmt.Printf("Updated %d lens(es) in %s\n", len(updated), out)
	return nil
}
