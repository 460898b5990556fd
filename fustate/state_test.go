package fustate

import (
	"errors"
	"testing"
)

type door int

const (
	closed door = iota
	open
	locked
)

func (d door) String() string {
	switch d {
	case closed:
		return "closed"
	case open:
		return "open"
	case locked:
		return "locked"
	default:
		return "unknown"
	}
}

type action string

func (a action) String() string { return string(a) }

var doorTransitions = []Transition[door, action]{
	{From: closed, Event: "open", To: open},
	{From: open, Event: "close", To: closed},
	{From: closed, Event: "lock", To: locked},
	{From: locked, Event: "unlock", To: closed},
	{From: closed, Event: "close", To: closed},
}

func TestFire(t *testing.T) {
	tests := []struct {
		name    string
		initial door
		event   action
		want    door
		wantErr bool
	}{
		{name: "closed opens", initial: closed, event: "open", want: open},
		{name: "open closes", initial: open, event: "close", want: closed},
		{name: "self transition", initial: closed, event: "close", want: closed},
		{name: "locked cannot open", initial: locked, event: "open", want: locked, wantErr: true},
		{name: "open cannot lock", initial: open, event: "lock", want: open, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New(tt.initial, doorTransitions, nil)
			if got := m.Can(tt.event); got == tt.wantErr {
				t.Fatalf("Can(%s) = %v", tt.event, got)
			}
			got, err := m.Fire(tt.event)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Fire error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want || m.Current() != tt.want {
				t.Fatalf("state = %s (current %s), want %s", got, m.Current(), tt.want)
			}
		})
	}
}

func TestInvalidTransitionError(t *testing.T) {
	m := New(locked, doorTransitions, nil)
	_, err := m.Fire("open")

	var ite InvalidTransitionError[door, action]
	if !errors.As(err, &ite) {
		t.Fatalf("error type = %T, want InvalidTransitionError", err)
	}
	if ite.State != locked || ite.Event != "open" {
		t.Fatalf("error = %+v", ite)
	}
}

func TestOnChange(t *testing.T) {
	type change struct {
		from, to door
		event    action
	}
	var got []change
	m := New(closed, doorTransitions, func(from, to door, event action) {
		got = append(got, change{from, to, event})
	})

	m.Fire("lock")
	m.Fire("open") // rejected, no callback
	m.Fire("unlock")

	want := []change{{closed, locked, "lock"}, {locked, closed, "unlock"}}
	if len(got) != len(want) {
		t.Fatalf("changes = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("change %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestDuplicateTransitionPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
	}()
	New(closed, []Transition[door, action]{
		{From: closed, Event: "open", To: open},
		{From: closed, Event: "open", To: locked},
	}, nil)
}
