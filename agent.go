package faceunlock

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/kardianos/faceunlock/audit"
	"github.com/kardianos/faceunlock/engine"
	"github.com/kardianos/faceunlock/fuclock"
	"github.com/kardianos/faceunlock/fustore"
	"github.com/kardianos/faceunlock/match"
	"github.com/kardianos/faceunlock/pipe"
	"github.com/kardianos/faceunlock/session"
)

// AgentOpt configures an Agent.
type AgentOpt struct {
	// DataDir holds the profile and audit databases.
	DataDir string

	Camera     engine.Camera
	Recognizer engine.Recognizer
	Liveness   engine.Liveness

	// TriggerAddr is listened on while armed in operation mode.
	TriggerAddr string
	// CredentialAddr receives matched credentials.
	CredentialAddr string

	Clock  fuclock.Clock
	Logger *slog.Logger
}

// Agent is the user-session half.
type Agent struct {
	store  *fustore.ProfileStore
	audit  *audit.Log
	camera engine.Camera
	life   *session.Lifecycle
	logger *slog.Logger
}

var _ session.Events = (*Agent)(nil)

// NewAgent opens the databases and starts the lock-cycle loop. The agent
// stays unlocked until the first Lock.
func NewAgent(opt AgentOpt) (*Agent, error) {
	if opt.Camera == nil || opt.Recognizer == nil {
		return nil, errors.New("agent: camera and recognizer are required")
	}
	if opt.TriggerAddr == "" || opt.CredentialAddr == "" {
		return nil, errors.New("agent: trigger and credential addresses are required")
	}
	logger := opt.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	clock := opt.Clock
	if clock == nil {
		clock = fuclock.Real()
	}

	store, err := fustore.OpenProfileStore(opt.DataDir, logger.With("component", "store"))
	if err != nil {
		return nil, err
	}
	log, err := audit.Open(filepath.Join(opt.DataDir, audit.DBName))
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("open audit log: %w", err)
	}

	policy := session.NewRetryPolicy(0)
	scanner := &match.Session{
		Camera:     opt.Camera,
		Recognizer: opt.Recognizer,
		Liveness:   opt.Liveness,
		Profiles:   store,
		Audit:      log,
		Sender:     pipe.Client{Addr: opt.CredentialAddr},
		Counter:    policy,
		Devices:    &engine.Devices{},
		Clock:      clock,
		Logger:     logger.With("component", "match"),
	}
	a := &Agent{store: store, audit: log, camera: opt.Camera, logger: logger}
	a.life = session.New(session.Config{
		Settings: store,
		Profiles: store,
		Scanner:  scanner,
		Triggers: session.PipeTriggers{Addr: opt.TriggerAddr, Logger: logger.With("component", "trigger")},
		Policy:   policy,
		OnLock:   a.closeCamera,
		Clock:    clock,
		Logger:   logger.With("component", "session"),
	})
	return a, nil
}

func (a *Agent) closeCamera() {
	if err := a.camera.Close(); err != nil {
		a.logger.Warn("close camera", "error", err)
	}
}

// Lock starts a lock cycle.
func (a *Agent) Lock() error { return a.life.Lock() }

// Unlock ends the lock cycle.
func (a *Agent) Unlock() error { return a.life.Unlock() }

// Trigger asks for a scan as if one arrived on the trigger channel.
func (a *Agent) Trigger() error { return a.life.Trigger() }

// State returns the lock-cycle state.
func (a *Agent) State() session.State { return a.life.State() }

// Profiles returns the profile store.
func (a *Agent) Profiles() *fustore.ProfileStore { return a.store }

// Audit returns the audit log.
func (a *Agent) Audit() *audit.Log { return a.audit }

// Close stops the lock cycle and closes the databases.
func (a *Agent) Close() error {
	var errs []error
	if err := a.life.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := a.audit.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close audit log: %w", err))
	}
	if err := a.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close profile store: %w", err))
	}
	return errors.Join(errs...)
}
