package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/kardianos/faceunlock"
	"github.com/kardianos/faceunlock/engine"
	"github.com/kardianos/faceunlock/session"
	"github.com/spf13/cobra"
)

var agentEvents string

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Run the user-session agent",
	Long: `Run the agent: follow the desktop lock cycle, scan for a face when
triggered and hand the matched credential to the host.

Lock and unlock notifications come from the OS session (--events session),
or from "lock" / "unlock" lines on standard input (--events stdin).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		w, err := startWorker()
		if err != nil {
			return err
		}
		defer w.Close()

		agent, err := faceunlock.NewAgent(faceunlock.AgentOpt{
			DataDir:        cfg.DataDir,
			Camera:         w.Camera(),
			Recognizer:     w.Recognizer(),
			Liveness:       w.Liveness(),
			TriggerAddr:    cfg.triggerAddr(),
			CredentialAddr: cfg.credentialAddr(),
			Logger:         logger,
		})
		if err != nil {
			return err
		}
		defer agent.Close()
		logger.Info("agent started", "data_dir", cfg.DataDir, "trigger", cfg.triggerAddr(), "credential", cfg.credentialAddr())

		switch agentEvents {
		case "session":
			err = session.WatchSession(ctx, agent, logger)
		case "stdin":
			err = session.WatchLines(ctx, os.Stdin, agent, logger)
		default:
			return fmt.Errorf("unknown --events %q", agentEvents)
		}
		if errors.Is(err, ctx.Err()) {
			return nil
		}
		return err
	},
}

func startWorker() (*engine.Worker, error) {
	if cfg.Worker == "" {
		return nil, errors.New("no model worker: set --worker or FACEUNLOCK_WORKER")
	}
	w, err := engine.StartWorker(cfg.Worker)
	if err != nil {
		return nil, fmt.Errorf("start model worker: %w", err)
	}
	return w, nil
}

func init() {
	agentCmd.Flags().StringVar(&agentEvents, "events", "session", "lock notification source: session or stdin")
	agentCmd.Flags().StringVar(&cfg.Worker, "worker", "", "model worker executable (env FACEUNLOCK_WORKER)")
	rootCmd.AddCommand(agentCmd)
}
