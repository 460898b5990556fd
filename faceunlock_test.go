package faceunlock_test

import (
	"context"
	"testing"
	"time"

	"github.com/kardianos/faceunlock"
	"github.com/kardianos/faceunlock/activity"
	"github.com/kardianos/faceunlock/audit"
	"github.com/kardianos/faceunlock/bridge"
	"github.com/kardianos/faceunlock/fuclock"
	"github.com/kardianos/faceunlock/fumock"
	"github.com/kardianos/faceunlock/fustore"
	"github.com/kardianos/faceunlock/pipe"
	"github.com/kardianos/faceunlock/provider"
	"github.com/kardianos/faceunlock/session"
)

type pair struct {
	agent    *faceunlock.Agent
	hooker   *fumock.Hooker
	clock    *fuclock.FakeClock
	logons   chan bridge.Credential
	rejected chan struct{}
}

// startPair runs an agent and a host that share nothing but the two
// channel addresses.
func startPair(t *testing.T, rec *fumock.Recognizer) *pair {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	sockDir := t.TempDir()
	trigAddr := pipe.Address(sockDir, pipe.TriggerChannel)
	credAddr := pipe.Address(sockDir, pipe.CredentialChannel)

	agentLog, _ := fumock.NewLogger(t)
	agent, err := faceunlock.NewAgent(faceunlock.AgentOpt{
		DataDir:        t.TempDir(),
		Camera:         &fumock.Camera{},
		Recognizer:     rec,
		Liveness:       &fumock.Liveness{Live: true, Confidence: 0.9},
		TriggerAddr:    trigAddr,
		CredentialAddr: credAddr,
		Logger:         agentLog,
	})
	if err != nil {
		t.Fatal(err)
	}
	store := agent.Profiles()
	if _, err := store.Add(fumock.Profile(0, "ana")); err != nil {
		t.Fatal(err)
	}
	if err := store.SetOption(fustore.OptInitialized, "true"); err != nil {
		t.Fatal(err)
	}

	hostStore := &fumock.DataStore{}
	if err := (provider.Settings{ShowTile: true, ConnectToPipe: true}).Store(hostStore); err != nil {
		t.Fatal(err)
	}
	p := &pair{
		agent:    agent,
		hooker:   &fumock.Hooker{},
		clock:    fuclock.Fake(time.Unix(0, 0)),
		logons:   make(chan bridge.Credential, 1),
		rejected: make(chan struct{}, 1),
	}
	hostLog, _ := fumock.NewLogger(t)
	host := faceunlock.NewHost(faceunlock.HostOpt{
		Store:          hostStore,
		CredentialAddr: credAddr,
		TriggerAddr:    trigAddr,
		Logon:          func(c bridge.Credential) { p.logons <- c },
		Rejected:       func() { p.rejected <- struct{}{} },
		Hooker:         p.hooker,
		Clock:          p.clock,
		Logger:         hostLog,
	})
	hostDone := make(chan error, 1)
	go func() { hostDone <- host.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		if err := <-hostDone; err != nil {
			t.Errorf("host: %v", err)
		}
		if err := agent.Close(); err != nil {
			t.Errorf("agent close: %v", err)
		}
	})

	deadline := time.Now().Add(5 * time.Second)
	for p.hooker.Active() != 2 {
		if time.Now().After(deadline) {
			t.Fatal("host hooks not installed")
		}
		time.Sleep(time.Millisecond)
	}
	return p
}

// touch simulates input on the secure desktop and lets one poll elapse.
func (p *pair) touch() {
	p.hooker.Input(activity.Mouse)
	p.clock.WaitForTimers(1)
	p.clock.Advance(activity.DefaultInterval)
}

func waitAudit(t *testing.T, log *audit.Log, n int) []audit.Entry {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for {
		entries, err := log.List(context.Background(), 10)
		if err != nil {
			t.Fatal(err)
		}
		if len(entries) >= n {
			return entries
		}
		if time.Now().After(deadline) {
			t.Fatalf("audit rows = %d, want %d", len(entries), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestActivityUnlocksDesktop(t *testing.T) {
	p := startPair(t, &fumock.Recognizer{Default: fumock.Match})

	if err := p.agent.Lock(); err != nil {
		t.Fatal(err)
	}
	if got := p.agent.State(); got != session.Armed {
		t.Fatalf("agent state = %v", got)
	}
	p.touch()

	select {
	case cred := <-p.logons:
		want := bridge.Credential{Username: `.\ana`, Password: "ana-pass", Domain: "."}
		if cred != want {
			t.Fatalf("logon with %+v, want %+v", cred, want)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("host never offered auto-logon")
	}

	entries := waitAudit(t, p.agent.Audit(), 1)
	if e := entries[0]; !e.Success || e.ProfileID != 1 || e.Confidence == nil || *e.Confidence != 0.9 {
		t.Fatalf("audit = %+v", e)
	}

	deadline := time.Now().Add(5 * time.Second)
	for p.agent.State() != session.AwaitingUnlock {
		if time.Now().After(deadline) {
			t.Fatalf("agent state = %v after delivery", p.agent.State())
		}
		time.Sleep(time.Millisecond)
	}
	if err := p.agent.Unlock(); err != nil {
		t.Fatal(err)
	}
	if got := p.agent.State(); got != session.Unlocked {
		t.Fatalf("agent state = %v after unlock", got)
	}
}

func TestMismatchKeepsDesktopLocked(t *testing.T) {
	p := startPair(t, &fumock.Recognizer{Default: fumock.Miss})

	if err := p.agent.Lock(); err != nil {
		t.Fatal(err)
	}
	p.touch()

	entries := waitAudit(t, p.agent.Audit(), 1)
	if e := entries[0]; e.Success || e.ProfileID != audit.NoProfile || e.FailReason != audit.ReasonMismatch {
		t.Fatalf("audit = %+v", e)
	}
	select {
	case <-p.rejected:
	case cred := <-p.logons:
		t.Fatalf("auto-logon after mismatch: %+v", cred)
	case <-time.After(5 * time.Second):
		t.Fatal("host never saw the failed attempt")
	}

	deadline := time.Now().Add(5 * time.Second)
	for p.agent.State() != session.Armed {
		if time.Now().After(deadline) {
			t.Fatalf("agent state = %v after mismatch", p.agent.State())
		}
		time.Sleep(time.Millisecond)
	}
	if err := p.agent.Unlock(); err != nil {
		t.Fatal(err)
	}
	if got := p.agent.State(); got != session.Unlocked {
		t.Fatalf("agent state = %v after unlock", got)
	}
}
