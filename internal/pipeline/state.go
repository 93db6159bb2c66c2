package pipeline

import "fmt"

// A pipeline lifecycle state.
type State string

const (
	StatePending             State = "pending"
	StateManifestResolved    State = "manifest-resolved"
	StateEnvironmentReady    State = "environment-ready"
	StateArtifactsExtracted  State = "artifacts-extracted"
	StateAssembled           State = "assembled"
	StateDone                State = "done"
	StateFailed              State = "failed"
)

// Legal forward transitions. Failed is additionally reachable from every
// non-terminal state.
var transitions = map[State]State{
	StatePending:            StateManifestResolved,
	StateManifestResolved:   StateEnvironmentReady,
	StateEnvironmentReady:   StateArtifactsExtracted,
	StateArtifactsExtracted: StateAssembled,
	StateAssembled:          StateDone,
}

// Reports whether the state is terminal.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// Tracks a run's progress through the pipeline states.
type machine struct {
	state   State
	history []State
}

func newMachine() *machine {
	return &machine{state: StatePending, history: []State{StatePending}}
}

// Advances to the next state. Skipping or reordering states is a
// programming error.
func (m *machine) advance(next State) error {
	if transitions[m.state] != next {
		return fmt.Errorf("illegal transition %s -> %s", m.state, next)
	}
	m.state = next
	m.history = append(m.history, next)
	return nil
}

// Moves to the Failed state from any non-terminal state.
func (m *machine) fail() {
	if m.state.Terminal() {
		return
	}
	m.state = StateFailed
	m.history = append(m.history, StateFailed)
}
