package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/kardianos/faceunlock/fustore"
	"github.com/kardianos/faceunlock/pipe"
	"github.com/spf13/pflag"
)

const appName = "faceunlock"

// config is the process configuration. Flags override the environment.
type config struct {
	DataDir   string `env:"FACEUNLOCK_DATA_DIR"`
	LogLevel  string `env:"FACEUNLOCK_LOG_LEVEL" envDefault:"info"`
	LogFile   string `env:"FACEUNLOCK_LOG_FILE"`
	Worker    string `env:"FACEUNLOCK_WORKER"`
	SocketDir string `env:"FACEUNLOCK_SOCKET_DIR"`
	HostStore string `env:"FACEUNLOCK_HOST_STORE"`
}

// finish fills every field not set by a flag from the environment, then
// from the per-OS defaults.
func (c *config) finish(flags *pflag.FlagSet) error {
	var fromEnv config
	if err := env.Parse(&fromEnv); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	pick := func(dst *string, flag, envVal, def string) {
		if f := flags.Lookup(flag); f != nil && f.Changed {
			return
		}
		*dst = envVal
		if *dst == "" {
			*dst = def
		}
	}
	pick(&c.DataDir, "data", fromEnv.DataDir, fustore.DefaultDataDir(appName))
	pick(&c.SocketDir, "sockets", fromEnv.SocketDir, pipe.DefaultDir)
	pick(&c.LogLevel, "log-level", fromEnv.LogLevel, "info")
	pick(&c.LogFile, "log-file", fromEnv.LogFile, "")
	pick(&c.Worker, "worker", fromEnv.Worker, "")
	pick(&c.HostStore, "host-store", fromEnv.HostStore, fustore.DefaultHostStore)
	return nil
}

func (c *config) triggerAddr() string { return pipe.Address(c.SocketDir, pipe.TriggerChannel) }

func (c *config) credentialAddr() string { return pipe.Address(c.SocketDir, pipe.CredentialChannel) }

func parseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return 0, fmt.Errorf("log level %q: %w", s, err)
	}
	return l, nil
}

// newLogger returns a text logger on stderr, or on path when set. The
// returned closer is nil for stderr.
func newLogger(level, path string) (*slog.Logger, io.Closer, error) {
	l, err := parseLevel(level)
	if err != nil {
		return nil, nil, err
	}
	var (
		w      io.Writer = os.Stderr
		closer io.Closer
	)
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return nil, nil, fmt.Errorf("create log directory: %w", err)
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		w, closer = f, f
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: l})), closer, nil
}
