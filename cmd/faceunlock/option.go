package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/kardianos/faceunlock/fustore"
	"github.com/spf13/cobra"
)

var optionCmd = &cobra.Command{
	Use:               "option",
	Short:             "Read and change agent options",
	PersistentPreRunE: openStore,
	PersistentPostRun: closeStore,
}

var optionGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print one option",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		val, ok, err := Store.Option(args[0])
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("option %s: %w", args[0], fustore.ErrNotFound)
		}
		fmt.Println(val)
		return nil
	},
}

var optionSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Change one option",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return Store.SetOption(args[0], args[1])
	},
}

var optionListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print every option with its effective value",
	RunE: func(cmd *cobra.Command, args []string) error {
		stored, err := Store.Options()
		if err != nil {
			return err
		}
		s, err := fustore.ParseSettings(stored)
		if err != nil {
			logger.Warn("invalid options replaced by defaults", "error", err)
		}
		effective := map[string]string{
			fustore.OptInitialized:       fmt.Sprint(s.Initialized),
			fustore.OptMode:              string(s.Mode),
			fustore.OptCamera:            fmt.Sprint(s.CameraIndex),
			fustore.OptRetryDelay:        fmt.Sprintf("%.1f", s.RetryDelay.Seconds()),
			fustore.OptRecogDelay:        fmt.Sprintf("%.1f", s.RecogDelay.Seconds()),
			fustore.OptLivenessEnabled:   fmt.Sprint(s.LivenessEnabled),
			fustore.OptLivenessThreshold: fmt.Sprintf("%.2f", s.LivenessThreshold),
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "KEY\tVALUE\tSTORED")
		for _, key := range fustore.OptionKeys {
			raw, ok := stored[key]
			if !ok {
				raw = "-"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\n", key, effective[key], raw)
		}
		return w.Flush()
	},
}

func init() {
	optionCmd.AddCommand(optionGetCmd, optionSetCmd, optionListCmd)
	rootCmd.AddCommand(optionCmd)
}
