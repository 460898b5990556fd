package fustore

import (
	"testing"
	"time"
)

func TestParseSettings(t *testing.T) {
	tests := []struct {
		name    string
		opts    map[string]string
		want    func(*Settings)
		wantErr bool
	}{
		{name: "empty", opts: nil, want: func(*Settings) {}},
		{
			name: "all set",
			opts: map[string]string{
				OptInitialized:       "true",
				OptMode:              "delay",
				OptCamera:            "2",
				OptRetryDelay:        "3",
				OptRecogDelay:        "0.5",
				OptLivenessEnabled:   "false",
				OptLivenessThreshold: "0.8",
			},
			want: func(s *Settings) {
				s.Initialized = true
				s.Mode = ModeDelay
				s.CameraIndex = 2
				s.RetryDelay = 3 * time.Second
				s.RecogDelay = 500 * time.Millisecond
				s.LivenessEnabled = false
				s.LivenessThreshold = 0.8
			},
		},
		{
			name:    "bad values fall back",
			opts:    map[string]string{OptRetryDelay: "soon", OptCamera: "-1", OptLivenessThreshold: "2", OptInitialized: "true"},
			want:    func(s *Settings) { s.Initialized = true },
			wantErr: true,
		},
		{name: "unknown keys ignored", opts: map[string]string{"theme": "dark"}, want: func(*Settings) {}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSettings(tt.opts)
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %v", err, tt.wantErr)
			}
			want := DefaultSettings()
			tt.want(&want)
			if got != want {
				t.Fatalf("settings = %+v, want %+v", got, want)
			}
		})
	}
}
