package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/shubham/filerecovery/internal/config"
	"github.com/shubham/filerecovery/internal/logging"
)

var (
	verboseFlag bool
	logFileFlag string
)

var rootCmd = &cobra.Command{
	Use:           "filerecover",
	Short:         "Recover deleted files from a damaged or raw block device image",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		setupLogging()
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "verbose (debug-level) logging")
	rootCmd.PersistentFlags().StringVar(&logFileFlag, "log", "", "also write structured JSON logs to FILE")

	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(recoverCmd)
	rootCmd.AddCommand(devicesCmd)
}

func setupLogging() {
	level := slog.LevelInfo
	if verboseFlag {
		level = slog.LevelDebug
	}
	textHandler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})

	var handler slog.Handler = textHandler
	if logFileFlag != "" {
		f, err := os.Create(logFileFlag)
		if err == nil {
			jsonHandler := slog.NewJSONHandler(f, &slog.HandlerOptions{Level: slog.LevelDebug})
			handler = logging.NewMultiHandler(textHandler, jsonHandler)
		} else {
			slog.Warn("could not open log file", "path", logFileFlag, "error", err)
		}
	}
	slog.SetDefault(slog.New(handler))
}

func loadConfigOrWarn() config.Config {
	cfg, err := config.Load()
	if err != nil {
		slog.Warn("failed to load config file", "error", err)
	}
	return cfg
}

func fail(format string, args ...any) error {
	return fmt.Errorf(format, args...)
}
