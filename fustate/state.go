// Package fustate provides an event-driven state machine for the agent's
// lock cycle. Transitions are declared up front as (state, event) pairs;
// anything not declared is rejected.
package fustate

import (
	"fmt"
	"sync"
)

// Symbol is satisfied by both state and event enums.
type Symbol interface {
	comparable
	fmt.Stringer
}

// Transition declares that Event moves the machine From one state To
// another.
type Transition[S, E Symbol] struct {
	From  S
	Event E
	To    S
}

type edge[S, E Symbol] struct {
	from  S
	event E
}

// InvalidTransitionError is returned by Fire when the current state has
// no transition for the event.
type InvalidTransitionError[S, E Symbol] struct {
	State S
	Event E
}

func (e InvalidTransitionError[S, E]) Error() string {
	return fmt.Sprintf("fustate: no transition from %s on %s", e.State, e.Event)
}

// Machine holds the current state. It is safe for concurrent use; the
// onChange hook runs with the machine locked and must not call back into
// it.
type Machine[S, E Symbol] struct {
	mu      sync.RWMutex
	current S
	edges   map[edge[S, E]]S

	onChange func(from, to S, event E)
}

// New returns a machine in initial accepting the given transitions.
// Declaring the same (From, Event) pair twice panics.
func New[S, E Symbol](initial S, transitions []Transition[S, E], onChange func(from, to S, event E)) *Machine[S, E] {
	m := &Machine[S, E]{
		current:  initial,
		edges:    make(map[edge[S, E]]S, len(transitions)),
		onChange: onChange,
	}
	for _, t := range transitions {
		k := edge[S, E]{from: t.From, event: t.Event}
		if _, dup := m.edges[k]; dup {
			panic(fmt.Sprintf("fustate: duplicate transition %s on %s", t.From, t.Event))
		}
		m.edges[k] = t.To
	}
	return m
}

// Can reports whether event is accepted in the current state.
func (m *Machine[S, E]) Can(event E) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.edges[edge[S, E]{from: m.current, event: event}]
	return ok
}

// Fire applies event and returns the new state.
func (m *Machine[S, E]) Fire(event E) (S, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	from := m.current
	to, ok := m.edges[edge[S, E]{from: from, event: event}]
	if !ok {
		return from, InvalidTransitionError[S, E]{State: from, Event: event}
	}
	m.current = to
	if m.onChange != nil {
		m.onChange(from, to, event)
	}
	return to, nil
}

// Current returns the current state.
func (m *Machine[S, E]) Current() S {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}
