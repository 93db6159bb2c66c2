package pipeline

import (
	"slices"
	"testing"
)

func TestMachineAdvance(t *testing.T) {
	m := newMachine()
	order := []State{StateManifestResolved, StateEnvironmentReady, StateArtifactsExtracted, StateAssembled, StateDone}
	for _, next := range order {
		if err := m.advance(next); err != nil {
			t.Fatalf("advance(%s): %v", next, err)
		}
	}
	if m.state != StateDone {
		t.Fatalf("state = %s, want %s", m.state, StateDone)
	}
	if !slices.Equal(m.history, append([]State{StatePending}, order...)) {
		t.Fatalf("history = %v", m.history)
	}
}

func TestMachineRejectsSkips(t *testing.T) {
	tests := []struct {
		name string
		from State
		to   State
	}{
		{"skip ahead", StatePending, StateEnvironmentReady},
		{"backwards", StateEnvironmentReady, StateManifestResolved},
		{"repeat", StateManifestResolved, StateManifestResolved},
		{"out of terminal", StateDone, StateManifestResolved},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			m := &machine{state: tc.from, history: []State{tc.from}}
			if err := m.advance(tc.to); err == nil {
				t.Fatalf("advance(%s -> %s) succeeded", tc.from, tc.to)
			}
		})
	}
}

func TestMachineFail(t *testing.T) {
	for from := range transitions {
		m := &machine{state: from, history: []State{from}}
		m.fail()
		if m.state != StateFailed {
			t.Fatalf("fail from %s: state = %s", from, m.state)
		}
	}

	// Terminal states stay put.
	m := &machine{state: StateDone, history: []State{StateDone}}
	m.fail()
	if m.state != StateDone {
		t.Fatalf("fail from done moved to %s", m.state)
	}
}
