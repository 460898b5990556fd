package activity_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kardianos/faceunlock/activity"
	"github.com/kardianos/faceunlock/fuclock"
	"github.com/kardianos/faceunlock/fumock"
	"github.com/kardianos/faceunlock/pipe"
)

func startMonitor(t *testing.T, hooker activity.Hooker, sender *fumock.Sender) (*activity.Monitor, *fuclock.FakeClock) {
	t.Helper()
	clock := fuclock.Fake(time.Unix(1000, 0))
	logger, _ := fumock.NewLogger(t)
	m, err := activity.Start(context.Background(), activity.Options{
		Sender: sender,
		Hooker: hooker,
		Clock:  clock,
		Logger: logger,
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { m.Stop() })
	clock.WaitForTimers(1)
	return m, clock
}

func expectSend(t *testing.T, s *fumock.Sender) pipe.Message {
	t.Helper()
	select {
	case msg := <-s.Sent:
		return msg
	case <-time.After(5 * time.Second):
		t.Fatal("no trigger sent")
		return pipe.Message{}
	}
}

func expectNoSend(t *testing.T, s *fumock.Sender) {
	t.Helper()
	select {
	case msg := <-s.Sent:
		t.Fatalf("unexpected send %v", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBurstCollapsesToOneTrigger(t *testing.T) {
	hooker := &fumock.Hooker{}
	sender := fumock.NewSender()
	_, clock := startMonitor(t, hooker, sender)

	for range 20 {
		hooker.Input(activity.Mouse)
		hooker.Input(activity.Keyboard)
	}
	clock.Advance(activity.DefaultInterval)
	if msg := expectSend(t, sender); msg != pipe.Trigger() {
		t.Fatalf("sent %v, want trigger", msg)
	}

	clock.Advance(activity.DefaultInterval)
	expectNoSend(t, sender)
}

func TestSendFailureKeepsPolling(t *testing.T) {
	hooker := &fumock.Hooker{}
	sender := fumock.NewSender()
	sender.FailNext = 1
	m, clock := startMonitor(t, hooker, sender)

	m.Signal()
	clock.Advance(activity.DefaultInterval)
	// The failed send clears the flag; a new input is needed.
	deadline := time.Now().Add(5 * time.Second)
	for {
		m.Signal()
		clock.Advance(activity.DefaultInterval)
		select {
		case <-sender.Sent:
			return
		case <-time.After(10 * time.Millisecond):
		}
		if time.Now().After(deadline) {
			t.Fatal("monitor stopped sending after a failure")
		}
	}
}

func TestPartialInstallFailure(t *testing.T) {
	hooker := &fumock.Hooker{Fail: map[activity.HookKind]error{
		activity.Keyboard: errors.New("access denied"),
	}}
	m, _ := startMonitor(t, hooker, fumock.NewSender())

	if got := m.Installed(); got != 1 {
		t.Fatalf("Installed = %d, want 1", got)
	}
	if err := m.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := m.Stop(); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
	if hooker.Active() != 0 {
		t.Fatalf("%d hooks still active", hooker.Active())
	}
	if in, out := hooker.Counts(activity.Mouse); in != 1 || out != 1 {
		t.Fatalf("mouse installs=%d uninstalls=%d, want 1/1", in, out)
	}
}

func TestAllHooksFail(t *testing.T) {
	hooker := &fumock.Hooker{Fail: map[activity.HookKind]error{
		activity.Mouse:    errors.New("no"),
		activity.Keyboard: errors.New("no"),
	}}
	_, err := activity.Start(context.Background(), activity.Options{
		Sender: fumock.NewSender(),
		Hooker: hooker,
	})
	if err == nil {
		t.Fatal("Start succeeded with no hooks")
	}
}

func TestUnsupportedStillPolls(t *testing.T) {
	hooker := &fumock.Hooker{Fail: map[activity.HookKind]error{
		activity.Mouse:    activity.ErrUnsupported,
		activity.Keyboard: activity.ErrUnsupported,
	}}
	sender := fumock.NewSender()
	m, clock := startMonitor(t, hooker, sender)

	m.Signal()
	clock.Advance(activity.DefaultInterval)
	expectSend(t, sender)
}

func TestStopRemovesHooks(t *testing.T) {
	hooker := &fumock.Hooker{}
	m, _ := startMonitor(t, hooker, fumock.NewSender())
	if hooker.Active() != 2 {
		t.Fatalf("Active = %d, want 2", hooker.Active())
	}
	m.Stop()
	m.Stop()
	if hooker.Active() != 0 {
		t.Fatalf("Active after Stop = %d", hooker.Active())
	}
	for _, k := range []activity.HookKind{activity.Mouse, activity.Keyboard} {
		if _, out := hooker.Counts(k); out != 1 {
			t.Fatalf("%s uninstalled %d times, want 1", k, out)
		}
	}
}
