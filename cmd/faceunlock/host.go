package main

import (
	"fmt"

	"github.com/kardianos/faceunlock"
	"github.com/kardianos/faceunlock/bridge"
	"github.com/kardianos/faceunlock/fustore"
	"github.com/kardianos/faceunlock/provider"
	"github.com/spf13/cobra"
)

var hostCmd = &cobra.Command{
	Use:   "host",
	Short: "Run the logon-side host",
	Long: `Run the host next to the logon UI: receive credentials from the agent
and, when CONNECT_TO_PIPE is set, forward input activity as triggers.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := fustore.OpenHostStore(cfg.HostStore)
		if err != nil {
			return fmt.Errorf("open host store: %w", err)
		}
		host := faceunlock.NewHost(faceunlock.HostOpt{
			Store:          store,
			CredentialAddr: cfg.credentialAddr(),
			TriggerAddr:    cfg.triggerAddr(),
			Logon: func(c bridge.Credential) {
				fmt.Printf("logon %s\n", c.Username)
			},
			Rejected: func() {
				fmt.Println("logon rejected: no matching face")
			},
			Logger: logger,
		})
		return host.Run(cmd.Context())
	},
}

var hostSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Change the host switches",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := fustore.OpenHostStore(cfg.HostStore)
		if err != nil {
			return fmt.Errorf("open host store: %w", err)
		}
		s, err := provider.LoadSettings(store)
		if err != nil {
			logger.Warn("host settings unreadable, starting from defaults", "error", err)
		}
		f := cmd.Flags()
		if f.Changed("show-tile") {
			s.ShowTile, _ = f.GetBool("show-tile")
		}
		if f.Changed("connect-to-pipe") {
			s.ConnectToPipe, _ = f.GetBool("connect-to-pipe")
		}
		if err := s.Store(store); err != nil {
			return err
		}
		fmt.Printf("%s: show_tile=%t connect_to_pipe=%t\n", store.Path(), s.ShowTile, s.ConnectToPipe)
		return nil
	},
}

func init() {
	hostCmd.PersistentFlags().StringVar(&cfg.HostStore, "host-store", "", "host switch store (env FACEUNLOCK_HOST_STORE)")
	hostSetCmd.Flags().Bool("show-tile", true, "list the tile when no unlock is pending")
	hostSetCmd.Flags().Bool("connect-to-pipe", false, "forward input activity to the agent")
	hostCmd.AddCommand(hostSetCmd)
	rootCmd.AddCommand(hostCmd)
}
