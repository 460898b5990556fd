package main

import (
	"github.com/kardianos/faceunlock/pipe"
	"github.com/spf13/cobra"
)

var triggerCmd = &cobra.Command{
	Use:   "trigger",
	Short: "Ask an armed agent to scan now",
	RunE: func(cmd *cobra.Command, args []string) error {
		return pipe.Send(cmd.Context(), cfg.triggerAddr(), pipe.Trigger())
	},
}

func init() {
	rootCmd.AddCommand(triggerCmd)
}
