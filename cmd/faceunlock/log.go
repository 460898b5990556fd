package main

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/kardianos/faceunlock/audit"
	"github.com/spf13/cobra"
)

var logLimit int

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "Inspect the unlock audit log",
}

var logListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent unlock attempts, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		l, err := audit.Open(filepath.Join(cfg.DataDir, audit.DBName))
		if err != nil {
			return err
		}
		defer l.Close()
		entries, err := l.List(cmd.Context(), logLimit)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Println("No unlock attempts recorded.")
			return nil
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "TIME\tATTEMPT\tFACE\tRESULT\tLIVENESS\tREASON")
		for _, e := range entries {
			face := "-"
			if e.ProfileID != audit.NoProfile {
				face = fmt.Sprint(e.ProfileID)
			}
			result := "failed"
			if e.Success {
				result = "unlocked"
			}
			liveness := "-"
			if e.Confidence != nil {
				liveness = fmt.Sprintf("%.2f", *e.Confidence)
			}
			reason := e.FailReason
			if reason == "" {
				reason = "-"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
				e.Time.Local().Format("2006-01-02 15:04:05"), e.AttemptID, face, result, liveness, reason)
		}
		return w.Flush()
	},
}

func init() {
	logListCmd.Flags().IntVar(&logLimit, "limit", 20, "rows to show")
	logCmd.AddCommand(logListCmd)
	rootCmd.AddCommand(logCmd)
}
