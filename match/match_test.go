package match_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kardianos/faceunlock/audit"
	"github.com/kardianos/faceunlock/engine"
	"github.com/kardianos/faceunlock/fumock"
	"github.com/kardianos/faceunlock/fustore"
	"github.com/kardianos/faceunlock/match"
	"github.com/kardianos/faceunlock/pipe"
)

type rig struct {
	session  *match.Session
	camera   *fumock.Camera
	rec      *fumock.Recognizer
	live     *fumock.Liveness
	audit    *fumock.Audit
	sender   *fumock.Sender
	counter  *fumock.Counter
	devices  *engine.Devices
	profiles *fumock.Profiles
}

func newRig(t *testing.T, profiles []fustore.Profile, script []fumock.Step) *rig {
	t.Helper()
	logger, _ := fumock.NewLogger(t)
	r := &rig{
		camera:   &fumock.Camera{},
		rec:      &fumock.Recognizer{Script: script},
		live:     &fumock.Liveness{Live: true, Confidence: 0.9},
		audit:    &fumock.Audit{},
		sender:   fumock.NewSender(),
		counter:  &fumock.Counter{},
		devices:  &engine.Devices{},
		profiles: &fumock.Profiles{List: profiles},
	}
	r.session = &match.Session{
		Camera:        r.camera,
		Recognizer:    r.rec,
		Liveness:      r.live,
		Profiles:      r.profiles,
		Audit:         r.audit,
		Sender:        r.sender,
		Counter:       r.counter,
		Devices:       r.devices,
		Logger:        logger,
		FrameInterval: -1,
		NoFaceBackoff: -1,
	}
	return r
}

func (r *rig) sent(t *testing.T) []pipe.Message {
	t.Helper()
	var out []pipe.Message
	for {
		select {
		case m := <-r.sender.Sent:
			out = append(out, m)
		default:
			return out
		}
	}
}

func (r *rig) checkReleased(t *testing.T) {
	t.Helper()
	if st := r.camera.Stats(); st.Open {
		t.Fatal("camera left open")
	}
	release, err := r.devices.Acquire()
	if err != nil {
		t.Fatalf("devices still held: %v", err)
	}
	release()
}

func concat(parts ...[]fumock.Step) []fumock.Step {
	var out []fumock.Step
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

var noLiveness = match.Request{AttemptID: "a1"}

func TestMismatchAdvancesProfile(t *testing.T) {
	r := newRig(t,
		[]fustore.Profile{fumock.Profile(1, "alice"), fumock.Profile(2, "bob")},
		concat(fumock.Steps(3, fumock.Miss), fumock.Steps(3, fumock.Match)),
	)

	got, err := r.session.Run(context.Background(), noLiveness)
	if err != nil || got != match.Delivered {
		t.Fatalf("Run = %v, %v; want delivered", got, err)
	}
	if r.counter.Failures() != 0 {
		t.Fatalf("abandoning a profile counted %d failures", r.counter.Failures())
	}
	sent := r.sent(t)
	if len(sent) != 1 || sent[0] != pipe.Credential(`.\bob`, "bob-pass") {
		t.Fatalf("sent = %v", sent)
	}
	entries := r.audit.Entries()
	if len(entries) != 1 || !entries[0].Success || entries[0].ProfileID != 2 {
		t.Fatalf("audit = %+v", entries)
	}
	if c := entries[0].Confidence; c == nil || *c != 1.0 {
		t.Fatalf("confidence with liveness disabled = %v", c)
	}
	if r.live.Calls() != 0 {
		t.Fatal("liveness ran while disabled")
	}
	r.checkReleased(t)
}

func TestSuccessResetsOnMiss(t *testing.T) {
	// Two matches, a miss, then three matches: accepted on frame six.
	r := newRig(t,
		[]fustore.Profile{fumock.Profile(1, "alice")},
		concat(fumock.Steps(2, fumock.Match), fumock.Steps(1, fumock.Miss), fumock.Steps(3, fumock.Match)),
	)
	got, err := r.session.Run(context.Background(), noLiveness)
	if err != nil || got != match.Delivered {
		t.Fatalf("Run = %v, %v", got, err)
	}
	if r.rec.Calls() != 6 {
		t.Fatalf("frames used = %d, want 6", r.rec.Calls())
	}
}

func TestMatchThresholdBoundary(t *testing.T) {
	p := fumock.Profile(1, "alice")
	p.MatchThreshold = 60
	r := newRig(t, []fustore.Profile{p}, fumock.Steps(3, fumock.Step{Score: 0.6}))
	if got, _ := r.session.Run(context.Background(), noLiveness); got != match.Delivered {
		t.Fatalf("score equal to threshold = %v, want delivered", got)
	}
}

func TestLivenessBlocksDelivery(t *testing.T) {
	tests := []struct {
		name       string
		live       bool
		confidence float64
		want       match.Outcome
	}{
		{name: "below threshold", live: true, confidence: 0.3, want: match.Spoof},
		{name: "equal threshold", live: true, confidence: 0.5, want: match.Spoof},
		{name: "not live", live: false, confidence: 0.99, want: match.Spoof},
		{name: "passes", live: true, confidence: 0.51, want: match.Delivered},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRig(t,
				[]fustore.Profile{fumock.Profile(1, "alice"), fumock.Profile(2, "bob")},
				fumock.Steps(3, fumock.Match),
			)
			r.rec.Default = fumock.Match
			r.live.Live, r.live.Confidence = tt.live, tt.confidence

			got, err := r.session.Run(context.Background(), match.Request{
				AttemptID:         "a1",
				LivenessEnabled:   true,
				LivenessThreshold: 0.5,
			})
			if err != nil || got != tt.want {
				t.Fatalf("Run = %v, %v; want %v", got, err, tt.want)
			}
			entries := r.audit.Entries()
			if len(entries) != 1 {
				t.Fatalf("audit rows = %d, want 1", len(entries))
			}
			if r.rec.Calls() != 3 {
				t.Fatalf("recognizer calls = %d; remaining profiles were tried", r.rec.Calls())
			}
			if tt.want == match.Spoof {
				if entries[0].FailReason != audit.ReasonSpoof || entries[0].Success {
					t.Fatalf("audit = %+v", entries[0])
				}
				if c := entries[0].Confidence; c == nil || *c != tt.confidence {
					t.Fatalf("confidence = %v", c)
				}
				if r.counter.Failures() != 1 {
					t.Fatalf("failures = %d, want 1", r.counter.Failures())
				}
				if len(r.sent(t)) != 0 {
					t.Fatal("credential sent after liveness failure")
				}
				return
			}
			if r.counter.Failures() != 0 || len(r.sent(t)) != 1 {
				t.Fatal("passing liveness did not deliver")
			}
		})
	}
}

func TestExhaustedSendsSentinel(t *testing.T) {
	r := newRig(t, []fustore.Profile{fumock.Profile(1, "alice"), fumock.Profile(2, "bob")}, nil)
	r.rec.Default = fumock.Miss

	got, err := r.session.Run(context.Background(), noLiveness)
	if err != nil || got != match.Mismatch {
		t.Fatalf("Run = %v, %v", got, err)
	}
	if r.rec.Calls() != 6 {
		t.Fatalf("frames = %d, want 6", r.rec.Calls())
	}
	sent := r.sent(t)
	if len(sent) != 1 || sent[0] != pipe.Credential(match.SentinelUser, match.SentinelPassword) {
		t.Fatalf("sent = %v", sent)
	}
	entries := r.audit.Entries()
	if len(entries) != 1 || entries[0].ProfileID != audit.NoProfile || entries[0].FailReason != audit.ReasonMismatch {
		t.Fatalf("audit = %+v", entries)
	}
	if r.counter.Failures() != 1 {
		t.Fatalf("failures = %d, want 1", r.counter.Failures())
	}
	r.checkReleased(t)
}

func TestLockedProfileSkipped(t *testing.T) {
	locked := fumock.Profile(1, "alice")
	locked.Locked = true
	r := newRig(t, []fustore.Profile{locked, fumock.Profile(2, "bob")}, fumock.Steps(3, fumock.Match))

	if got, _ := r.session.Run(context.Background(), noLiveness); got != match.Delivered {
		t.Fatalf("outcome = %v", got)
	}
	if sent := r.sent(t); len(sent) != 1 || sent[0].Username != `.\bob` {
		t.Fatalf("sent = %v", sent)
	}
}

func TestNoFaceRetriesCapture(t *testing.T) {
	r := newRig(t,
		[]fustore.Profile{fumock.Profile(1, "alice")},
		concat(fumock.Steps(5, fumock.Step{NoFace: true}), fumock.Steps(3, fumock.Match)),
	)
	if got, err := r.session.Run(context.Background(), noLiveness); err != nil || got != match.Delivered {
		t.Fatalf("Run = %v, %v", got, err)
	}
	if st := r.camera.Stats(); st.Reads != 8 {
		t.Fatalf("reads = %d, want 8", st.Reads)
	}
}

func TestCollaboratorErrorsAbort(t *testing.T) {
	boom := errors.New("model crashed")
	tests := []struct {
		name  string
		setup func(*rig)
	}{
		{name: "camera read", setup: func(r *rig) { r.camera.ReadFailAt = 2 }},
		{name: "extract", setup: func(r *rig) { r.rec.Script = []fumock.Step{{Err: boom}} }},
		{name: "liveness", setup: func(r *rig) { r.live.Err = boom }},
		{name: "profiles", setup: func(r *rig) { r.profiles.Err = boom }},
		{name: "delivery", setup: func(r *rig) { r.sender.FailNext = 1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRig(t, []fustore.Profile{fumock.Profile(1, "alice"), fumock.Profile(2, "bob")}, nil)
			r.rec.Default = fumock.Match
			tt.setup(r)

			got, err := r.session.Run(context.Background(), match.Request{
				AttemptID:         "a1",
				LivenessEnabled:   true,
				LivenessThreshold: 0.5,
			})
			if err == nil || got != match.Failed {
				t.Fatalf("Run = %v, %v; want failed with error", got, err)
			}
			if n := len(r.audit.Entries()); n != 0 {
				t.Fatalf("audit rows = %d, want 0", n)
			}
			r.checkReleased(t)
		})
	}
}

func TestOpenFailure(t *testing.T) {
	r := newRig(t, []fustore.Profile{fumock.Profile(1, "alice")}, nil)
	r.camera.OpenErr = fumock.ErrCamera
	if _, err := r.session.Run(context.Background(), noLiveness); !errors.Is(err, fumock.ErrCamera) {
		t.Fatalf("error = %v", err)
	}
	r.checkReleased(t)
}

func TestDevicesBusy(t *testing.T) {
	r := newRig(t, []fustore.Profile{fumock.Profile(1, "alice")}, fumock.Steps(3, fumock.Match))
	release, _ := r.devices.Acquire()
	defer release()

	if _, err := r.session.Run(context.Background(), noLiveness); !errors.Is(err, engine.ErrBusy) {
		t.Fatalf("error = %v, want ErrBusy", err)
	}
	if r.camera.Stats().Opens != 0 {
		t.Fatal("camera opened while busy")
	}
}

func TestCancelDuringScan(t *testing.T) {
	r := newRig(t, []fustore.Profile{fumock.Profile(1, "alice")}, nil)
	r.rec.Default = fumock.Step{NoFace: true}
	r.session.NoFaceBackoff = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := r.session.Run(ctx, noLiveness)
		done <- err
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("error = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not observe cancellation")
	}
	r.checkReleased(t)
}
