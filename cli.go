package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// Build-time variables set via -ldflags.
var (
	version = "dev"
	commit  = "none"
)

var (
	configPath string
	logLevel   string
	logFormat  string
)

var rootCmd = &cobra.Command{
	Use:   "ftpdrain",
	Short: "Move a remote FTP/SFTP directory tree to local storage",
	Long: `ftpdrain walks a remote directory tree, downloads every file into a local
directory, deletes each remote file once its local copy has the same size,
and removes remote directories that end up empty. Files that fail
verification stay on the server for the next run.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	Args:          cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(configPath)
		if err != nil {
			return err
		}
		if logLevel != "" {
			cfg.LogLevel = logLevel
		}
		if logFormat != "" {
			cfg.LogFormat = logFormat
		}

		log, err := newLogger(cfg.LogLevel, cfg.LogFormat, "")
		if err != nil {
			return err
		}
		defer log.Sync()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return runMirror(ctx, cfg, log)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("ftpdrain %s (%s)\n", version, commit)
	},
}

func init() {
	rootCmd.Flags().StringVar(&configPath, "config", defaultConfigFile, "path to config file (.ini or .yaml)")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "", "override log_level (debug, info, warn, error)")
	rootCmd.Flags().StringVar(&logFormat, "log-format", "", "override log_format (json, console)")

	rootCmd.AddCommand(versionCmd)
}

// Execute runs the root command.
func Execute() error {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "ftpdrain: %v\n", err)
		return err
	}
	return nil
}
