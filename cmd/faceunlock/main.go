// Command faceunlock runs and manages the face unlock agent and host.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// Version is the application version.
const Version = "0.1.0"

var (
	cfg     config
	logger  *slog.Logger
	logFile io.Closer
)

var rootCmd = &cobra.Command{
	Use:           "faceunlock",
	Short:         "Unlock the desktop with your face",
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.finish(cmd.Flags()); err != nil {
			return err
		}
		var err error
		logger, logFile, err = newLogger(cfg.LogLevel, cfg.LogFile)
		if err != nil {
			return err
		}
		slog.SetDefault(logger)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logFile != nil {
			logFile.Close()
		}
	},
}

func init() {
	// Subcommand hooks run after the root hooks instead of replacing them.
	cobra.EnableTraverseRunHooks = true

	f := rootCmd.PersistentFlags()
	f.StringVar(&cfg.DataDir, "data", "", "agent data directory (env FACEUNLOCK_DATA_DIR)")
	f.StringVar(&cfg.SocketDir, "sockets", "", "channel socket directory (env FACEUNLOCK_SOCKET_DIR)")
	f.StringVar(&cfg.LogLevel, "log-level", "", "debug, info, warn or error (env FACEUNLOCK_LOG_LEVEL)")
	f.StringVar(&cfg.LogFile, "log-file", "", "log to this file instead of stderr (env FACEUNLOCK_LOG_FILE)")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "faceunlock:", err)
		os.Exit(1)
	}
}
