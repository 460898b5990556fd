package main

import (
	"bufio"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/kardianos/faceunlock"
	"github.com/kardianos/faceunlock/fustore"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// Store is the profile store opened for the face and option commands.
var Store *fustore.ProfileStore

func openStore(cmd *cobra.Command, args []string) error {
	var err error
	Store, err = fustore.OpenProfileStore(cfg.DataDir, slog.Default())
	if err != nil {
		return fmt.Errorf("open profile store: %w", err)
	}
	return nil
}

func closeStore(cmd *cobra.Command, args []string) {
	if Store != nil {
		Store.Close()
	}
}

var faceCmd = &cobra.Command{
	Use:   "face",
	Short: "Manage enrolled faces",
}

var enrollOpts struct {
	alias           string
	username        string
	account         string
	frames          int
	camera          int
	matchThreshold  float64
	detectThreshold float64
}

var faceEnrollCmd = &cobra.Command{
	Use:   "enroll",
	Short: "Capture a face and bind it to an account",
	RunE: func(cmd *cobra.Command, args []string) error {
		if enrollOpts.username == "" {
			return errors.New("--user is required")
		}
		account, err := fustore.ParseAccountType(enrollOpts.account)
		if err != nil {
			return err
		}
		password, err := readPassword()
		if err != nil {
			return err
		}

		camera := enrollOpts.camera
		if camera < 0 {
			s, err := Store.Settings()
			if err != nil {
				logger.Warn("settings unreadable, using defaults", "error", err)
			}
			camera = s.CameraIndex
		}

		w, err := startWorker()
		if err != nil {
			return err
		}
		defer w.Close()

		bar := progressbar.NewOptions(enrollOpts.frames,
			progressbar.OptionSetDescription("Capturing"),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionShowCount(),
		)
		feature, err := faceunlock.Capture(cmd.Context(), faceunlock.EnrollOpt{
			Camera:          w.Camera(),
			Recognizer:      w.Recognizer(),
			CameraIndex:     camera,
			Frames:          enrollOpts.frames,
			DetectThreshold: enrollOpts.detectThreshold,
			Progress:        func() { bar.Add(1) },
		})
		bar.Finish()
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return err
		}

		alias := enrollOpts.alias
		if alias == "" {
			alias = enrollOpts.username
		}
		id, err := Store.Add(fustore.Profile{
			Alias:           alias,
			Username:        enrollOpts.username,
			Password:        password,
			Account:         account,
			Feature:         feature,
			MatchThreshold:  enrollOpts.matchThreshold,
			DetectThreshold: enrollOpts.detectThreshold,
		})
		if err != nil {
			return err
		}
		fmt.Printf("Enrolled %q as profile %d.\n", alias, id)
		return nil
	},
}

// readPassword prompts on a terminal, or reads one line from piped stdin.
func readPassword() (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		fmt.Fprint(os.Stderr, "Password: ")
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return string(b), nil
	}
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

var faceListCmd = &cobra.Command{
	Use:   "list",
	Short: "List enrolled faces",
	RunE: func(cmd *cobra.Command, args []string) error {
		profiles, err := Store.List()
		if err != nil {
			return err
		}
		if len(profiles) == 0 {
			fmt.Println("No faces enrolled.")
			return nil
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "ID\tALIAS\tUSER\tACCOUNT\tTHRESHOLD\tLOCKED\tCREATED")
		for _, p := range profiles {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%.0f%%\t%t\t%s\n",
				p.ID, p.Alias, p.LogonName(), p.Account, p.MatchThreshold, p.Locked,
				p.CreatedAt.Local().Format("2006-01-02 15:04"))
		}
		return w.Flush()
	},
}

func profileIDArg(args []string) (uint64, error) {
	id, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("profile id %q: %w", args[0], err)
	}
	return id, nil
}

func setLockedCmd(use, short string, locked bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := profileIDArg(args)
			if err != nil {
				return err
			}
			return Store.SetLocked(id, locked)
		},
	}
}

var faceRemoveCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "Delete an enrolled face",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := profileIDArg(args)
		if err != nil {
			return err
		}
		return Store.Remove(id)
	},
}

func init() {
	faceCmd.PersistentPreRunE = openStore
	faceCmd.PersistentPostRun = closeStore

	f := faceEnrollCmd.Flags()
	f.StringVar(&enrollOpts.alias, "alias", "", "display name (default the user name)")
	f.StringVar(&enrollOpts.username, "user", "", "account user name")
	f.StringVar(&enrollOpts.account, "account", "local", "account type: local or online")
	f.IntVar(&enrollOpts.frames, "frames", faceunlock.DefaultEnrollFrames, "face samples to average")
	f.IntVar(&enrollOpts.camera, "camera", -1, "camera index (default the camera option)")
	f.Float64Var(&enrollOpts.matchThreshold, "match-threshold", fustore.DefaultMatchThreshold, "match threshold in percent")
	f.Float64Var(&enrollOpts.detectThreshold, "detect-threshold", fustore.DefaultDetectThreshold, "face detection threshold")
	f.StringVar(&cfg.Worker, "worker", "", "model worker executable (env FACEUNLOCK_WORKER)")

	faceCmd.AddCommand(
		faceEnrollCmd,
		faceListCmd,
		setLockedCmd("lock", "Exclude a face from matching", true),
		setLockedCmd("unlock", "Include a face in matching again", false),
		faceRemoveCmd,
	)
	rootCmd.AddCommand(faceCmd)
}

