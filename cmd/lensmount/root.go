package main

import (
	"log/slog"
	"os"

	"github.com/cwbudde/lensmount/internal/config"
	"github.com/spf13/cobra"
)

var (
	logLevel     string
	settingsPath string
	logger       *slog.Logger
	settings     = config.Default()
)

var rootCmd = &cobra.Command{
	Use:   "lensmount",
	Short: "Select the best mount position for every lens of an assembly",
	Long: `lensmount scores every combination of lens mount positions against an
optical model and reports the combination with the lowest merit value.
The model is either the built-in simulation or an external automation bridge.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		s, err := config.Load(settingsPath)
		if err != nil {
			return err
		}
		settings = s
		if cmd.Flags().Changed("log-level") {
			settings.LogLevel = logLevel
		}

		var level slog.Level
		switch settings.LogLevel {
		case "debug":
			level = slog.LevelDebug
		case "info":
			level = slog.LevelInfo
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		default:
			level = slog.LevelInfo
		}

		opts := &slog.HandlerOptions{Level: level}
		handler := slog.NewJSONHandler(os.Stdout, opts)
		logger = slog.New(handler)
		slog.SetDefault(logger)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&settingsPath, "settings", "", "Settings file (default $"+config.FileEnv+")")
}
