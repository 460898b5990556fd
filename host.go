package faceunlock

import (
	"context"
	"log/slog"
	"time"

	"github.com/kardianos/faceunlock/activity"
	"github.com/kardianos/faceunlock/bridge"
	"github.com/kardianos/faceunlock/fuclock"
	"github.com/kardianos/faceunlock/fustore"
	"github.com/kardianos/faceunlock/provider"
)

// HostOpt configures a Host.
type HostOpt struct {
	// Store holds the host switches.
	Store fustore.DataStore

	CredentialAddr string
	TriggerAddr    string

	// Logon receives each credential the logon UI would auto-logon with.
	Logon    func(bridge.Credential)
	// Rejected is called when the agent reported no matching face and
	// the logon UI would show a failed attempt.
	Rejected func()

	Hooker       activity.Hooker
	Clock        fuclock.Clock
	PollInterval time.Duration
	Logger       *slog.Logger
}

// Host drives a Provider the way the logon UI does: it advises, and on
// every CredentialsChanged re-enumerates the tiles and collects the
// credential when auto-logon is offered.
type Host struct {
	opt      HostOpt
	provider *provider.Provider
	logger   *slog.Logger
	changed  chan struct{}
}

// NewHost returns a Host. Nothing listens until Run.
func NewHost(opt HostOpt) *Host {
	logger := opt.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Host{
		opt:     opt,
		logger:  logger,
		changed: make(chan struct{}, 1),
		provider: provider.New(provider.Options{
			Store:          opt.Store,
			CredentialAddr: opt.CredentialAddr,
			TriggerAddr:    opt.TriggerAddr,
			Hooker:         opt.Hooker,
			Clock:          opt.Clock,
			PollInterval:   opt.PollInterval,
			Logger:         logger.With("component", "provider"),
		}),
	}
}

// Provider returns the underlying provider.
func (h *Host) Provider() *provider.Provider { return h.provider }

// Run serves until ctx is done.
func (h *Host) Run(ctx context.Context) error {
	defer h.provider.Close()

	h.provider.SetUsageScenario(provider.ScenarioUnlock)
	if err := h.provider.Advise(h); err != nil {
		return err
	}
	defer h.provider.UnAdvise()

	tiles := h.provider.CredentialCount()
	h.logger.Info("host ready", "tiles", tiles.Count)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-h.changed:
			h.enumerate()
		}
	}
}

// CredentialsChanged implements provider.Events. The tiles are enumerated
// again from Run.
func (h *Host) CredentialsChanged() {
	select {
	case h.changed <- struct{}{}:
	default:
	}
}

func (h *Host) enumerate() {
	tiles := h.provider.CredentialCount()
	if !tiles.AutoLogon {
		h.logger.Debug("credentials changed without auto-logon", "tiles", tiles.Count)
		return
	}
	cred := h.provider.Credential()
	if cred.Empty() {
		h.logger.Warn("auto-logon offered without a credential")
		return
	}
	if cred.IsSentinel() {
		h.logger.Info("auto-logon rejected, no matching face")
		if h.opt.Rejected != nil {
			h.opt.Rejected()
		}
		return
	}
	h.logger.Info("auto-logon", "username", cred.Username, "domain", cred.Domain)
	if h.opt.Logon != nil {
		h.opt.Logon(cred)
	}
}
