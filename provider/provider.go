// Package provider is the trusted half of faceunlock. It answers the logon
// UI's tile queries, receives credentials from the agent over the
// credential channel, and optionally forwards input activity to the agent
// as triggers.
package provider

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kardianos/faceunlock/activity"
	"github.com/kardianos/faceunlock/bridge"
	"github.com/kardianos/faceunlock/fuclock"
	"github.com/kardianos/faceunlock/fustore"
	"github.com/kardianos/faceunlock/pipe"
)

// Scenario is the logon UI usage scenario.
type Scenario int

const (
	ScenarioUnknown Scenario = iota
	ScenarioLogon
	ScenarioUnlock
	ScenarioChangePassword
	ScenarioCredUI
)

func (s Scenario) String() string {
	switch s {
	case ScenarioLogon:
		return "logon"
	case ScenarioUnlock:
		return "unlock"
	case ScenarioChangePassword:
		return "change-password"
	case ScenarioCredUI:
		return "credui"
	default:
		return fmt.Sprintf("Scenario(%d)", int(s))
	}
}

// Events is the logon UI callback raised when a credential arrives.
type Events interface {
	CredentialsChanged()
}

// Tiles answers a tile enumeration.
type Tiles struct {
	Count     int
	Default   int
	AutoLogon bool
}

// Options configure a Provider.
type Options struct {
	// Store holds the host switches. Nil uses DefaultSettings.
	Store fustore.DataStore
	// CredentialAddr is where credentials are received.
	CredentialAddr string
	// TriggerAddr is where activity triggers are sent.
	TriggerAddr string
	// Hooker installs input hooks. Nil selects the platform hooker.
	Hooker       activity.Hooker
	Clock        fuclock.Clock
	PollInterval time.Duration
	Logger       *slog.Logger
}

// Provider implements the credential provider contract. One goroutine
// owns its state and runs every call in turn. Every method keeps answering
// after Close.
type Provider struct {
	opts    Options
	logger  *slog.Logger
	mailbox bridge.Mailbox

	ctx     context.Context
	cancel  context.CancelFunc
	calls   chan func()
	changed chan struct{}
	quit    chan struct{}
	done    chan struct{}
	once    sync.Once

	// Owned by the loop goroutine.
	scenario Scenario
	events   Events
	server   *pipe.Server
	monitor  *activity.Monitor
}

// New starts a Provider. Nothing listens until Advise.
func New(opts Options) *Provider {
	p := &Provider{
		opts:    opts,
		logger:  opts.Logger,
		calls:   make(chan func()),
		changed: make(chan struct{}, 1),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	if p.logger == nil {
		p.logger = slog.New(slog.DiscardHandler)
	}
	p.ctx, p.cancel = context.WithCancel(context.Background())
	go p.loop()
	return p
}

func (p *Provider) loop() {
	defer close(p.done)
	for {
		select {
		case f := <-p.calls:
			f()
		case <-p.changed:
			if p.events != nil {
				p.events.CredentialsChanged()
			}
		case <-p.quit:
			p.events = nil
			p.stopListeners()
			return
		}
	}
}

// do runs f on the loop goroutine and waits for it. It reports false when
// the provider is closed.
func (p *Provider) do(f func()) bool {
	ran := make(chan struct{})
	select {
	case p.calls <- func() { defer close(ran); f() }:
		<-ran
		return true
	case <-p.done:
		return false
	}
}

// SetUsageScenario records the scenario the logon UI runs the provider in.
func (p *Provider) SetUsageScenario(s Scenario) {
	p.do(func() {
		p.scenario = s
		p.logger.Info("usage scenario set", "scenario", s)
	})
}

// Scenario returns the last scenario set.
func (p *Provider) Scenario() Scenario {
	var s Scenario
	p.do(func() { s = p.scenario })
	return s
}

// Settings returns the current host switches, falling back to defaults
// when the store cannot be read.
func (p *Provider) Settings() Settings {
	s, err := LoadSettings(p.opts.Store)
	if err != nil {
		p.logger.Warn("host settings unreadable, using defaults", "error", err)
	}
	return s
}

// Advise registers ev and starts listening for credentials. When
// ConnectToPipe is set the activity monitor is started too. Calling Advise
// again replaces ev and keeps the running listeners.
//
// ev is called from the provider's goroutine and must not call back into
// the Provider before returning.
func (p *Provider) Advise(ev Events) error {
	var err error
	p.do(func() { err = p.advise(ev) })
	return err
}

func (p *Provider) advise(ev Events) error {
	p.events = ev
	if p.server == nil {
		srv, err := pipe.Start(p.ctx, p.opts.CredentialAddr, p.receive, pipe.Options{Logger: p.logger})
		if err != nil {
			return fmt.Errorf("start credential listener: %w", err)
		}
		p.server = srv
		p.logger.Info("credential listener started", "addr", srv.Addr())
	}
	if p.monitor == nil && p.Settings().ConnectToPipe {
		m, err := activity.Start(p.ctx, activity.Options{
			Sender:   pipe.Client{Addr: p.opts.TriggerAddr},
			Hooker:   p.opts.Hooker,
			Clock:    p.opts.Clock,
			Interval: p.opts.PollInterval,
			Logger:   p.logger,
		})
		if err != nil {
			p.logger.Error("activity monitor not started", "error", err)
		} else {
			p.monitor = m
		}
	}
	return nil
}

// UnAdvise drops the registered events and stops the listeners. A
// credential already received stays available.
func (p *Provider) UnAdvise() {
	p.do(func() {
		p.events = nil
		p.stopListeners()
	})
}

func (p *Provider) stopListeners() {
	if p.monitor != nil {
		if err := p.monitor.Stop(); err != nil {
			p.logger.Warn("activity monitor stop", "error", err)
		}
		p.monitor = nil
	}
	if p.server != nil {
		p.server.Stop()
		p.server = nil
	}
}

// receive runs on the credential server goroutine. It must not block on the
// loop, which waits for it while stopping the server.
func (p *Provider) receive(_ context.Context, msg pipe.Message) {
	if msg.Kind != pipe.KindCredential {
		p.logger.Debug("ignoring message on credential channel", "message", msg)
		return
	}
	cred := bridge.Credential{Username: msg.Username, Password: msg.Password}
	// The sentinel is delivered like any credential so the logon UI
	// attempts it and shows its usual failure state.
	p.mailbox.Publish(cred)
	p.mailbox.RequestUnlock()
	if cred.IsSentinel() {
		p.logger.Info("agent reported no matching face")
	} else {
		p.logger.Info("credential received", "username", cred.Username)
	}

	select {
	case p.changed <- struct{}{}:
	default:
	}
}

// CredentialCount answers a tile enumeration. A pending unlock request is
// consumed and answered with a single auto-logon tile.
func (p *Provider) CredentialCount() Tiles {
	var t Tiles
	p.do(func() {
		switch {
		case p.mailbox.ConsumeUnlockRequest():
			t = Tiles{Count: 1, Default: 0, AutoLogon: true}
		case p.Settings().ShowTile:
			t = Tiles{Count: 1}
		}
	})
	return t
}

// Credential hands the received credential to the logon UI and clears it.
// It returns an empty credential when none is pending.
func (p *Provider) Credential() bridge.Credential {
	cred := bridge.Credential{Domain: bridge.DefaultDomain}
	p.do(func() {
		if c, ok := p.mailbox.Take(); ok {
			cred = c
		}
	})
	return cred
}

// Close stops all listeners and the loop. It is safe to call more than once.
func (p *Provider) Close() error {
	p.once.Do(func() { close(p.quit) })
	<-p.done
	p.cancel()
	return nil
}
