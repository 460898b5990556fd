package faceunlock_test

import (
	"context"
	"errors"
	"testing"

	"github.com/kardianos/faceunlock"
	"github.com/kardianos/faceunlock/engine"
	"github.com/kardianos/faceunlock/fumock"
)

func TestCapture(t *testing.T) {
	noFace := fumock.Step{NoFace: true}
	tests := []struct {
		name      string
		script    []fumock.Step
		def       fumock.Step
		readFail  int
		want      float32
		wantErr   error
		wantCalls int
	}{
		{name: "averages samples", script: []fumock.Step{{Score: 0.2}, noFace, {Score: 0.4}, {Score: 0.6}}, want: 0.4, wantCalls: 4},
		{name: "too few faces", def: noFace, wantErr: faceunlock.ErrNoFaceCaptured, wantCalls: 30},
		{name: "camera failure", readFail: 2, def: fumock.Match, wantErr: fumock.ErrCamera, wantCalls: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &fumock.Recognizer{Script: tt.script, Default: tt.def}
			cam := &fumock.Camera{ReadFailAt: tt.readFail}
			progress := 0
			got, err := faceunlock.Capture(context.Background(), faceunlock.EnrollOpt{
				Camera:     cam,
				Recognizer: rec,
				Devices:    &engine.Devices{},
				Frames:     3,
				Progress:   func() { progress++ },
			})
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if rec.Calls() != tt.wantCalls {
				t.Fatalf("extract calls = %d, want %d", rec.Calls(), tt.wantCalls)
			}
			if st := cam.Stats(); st.Open {
				t.Fatal("camera left open")
			}
			if tt.wantErr != nil {
				return
			}
			if progress != 3 {
				t.Fatalf("progress = %d, want 3", progress)
			}
			if len(got) != 1 || got[0] < tt.want-1e-6 || got[0] > tt.want+1e-6 {
				t.Fatalf("feature = %v, want [%v]", got, tt.want)
			}
		})
	}
}
