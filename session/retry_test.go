package session

import (
	"testing"
	"time"
)

func TestRetryPolicyPacing(t *testing.T) {
	const d = 10 * time.Second
	start := time.Unix(5000, 0)
	tests := []struct {
		name    string
		offsets []time.Duration
		want    []bool
	}{
		{name: "burst yields one", offsets: []time.Duration{0, time.Second, 9 * time.Second}, want: []bool{true, false, false}},
		{name: "spaced yields two", offsets: []time.Duration{0, d}, want: []bool{true, true}},
		{name: "capped at max", offsets: []time.Duration{0, d, 2 * d, 3 * d, 4 * d}, want: []bool{true, true, true, false, false}},
		{name: "denied trigger does not move the window", offsets: []time.Duration{0, 5 * time.Second, d}, want: []bool{true, false, true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewRetryPolicy(0)
			p.Reset(d)
			for i, off := range tt.offsets {
				if got := p.Allow(start.Add(off)); got != tt.want[i] {
					t.Fatalf("Allow at +%v = %v, want %v", off, got, tt.want[i])
				}
			}
			if p.Attempts() > DefaultMaxRetries {
				t.Fatalf("attempts = %d exceeds max", p.Attempts())
			}
		})
	}
}

func TestRetryPolicyReset(t *testing.T) {
	p := NewRetryPolicy(1)
	p.Reset(time.Hour)
	now := time.Unix(0, 0)
	p.Allow(now)
	p.RecordFailure()
	if !p.Exhausted() || p.Failures() != 1 {
		t.Fatalf("attempts=%d failures=%d", p.Attempts(), p.Failures())
	}
	p.Reset(time.Hour)
	if p.Exhausted() || p.Attempts() != 0 || p.Failures() != 0 {
		t.Fatal("Reset did not clear the cycle")
	}
	if !p.Allow(now) {
		t.Fatal("first attempt after Reset denied")
	}
}
