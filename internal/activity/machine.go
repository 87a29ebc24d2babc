// Package activity implements the client-side state machine of an assistant
// turn.
package activity

import (
	"github.com/ashureev/shsh-chat/internal/protocol"
)

// State is the client-visible phase of an in-flight turn.
type State string

const (
	Idle        State = "idle"
	Planning    State = "planning"
	Executing   State = "executing"
	Redirecting State = "redirecting"
)

type transition struct {
	from    State
	trigger protocol.EventType
}

// transitions lists the lifecycle moves that depend on the current state.
// planning_started and message are handled separately.
var transitions = map[transition]State{
	{from: Planning, trigger: protocol.EventExecutionStarted}: Executing,
	{from: Executing, trigger: protocol.EventRedirecting}:     Redirecting,
}

// Machine holds the activity state and the busy flag that gates new sends.
// It is not safe for concurrent use; the session dispatcher owns it.
type Machine struct {
	state State
	busy  bool
}

// New returns a machine in the Idle state.
func New() *Machine {
	return &Machine{state: Idle}
}

// State returns the current state.
func (m *Machine) State() State { return m.state }

// Busy reports whether a turn is in flight.
func (m *Machine) Busy() bool { return m.busy }

// MarkBusy sets the busy flag after a message was sent.
func (m *Machine) MarkBusy() { m.busy = true }

// Reset returns to Idle and clears the busy flag.
func (m *Machine) Reset() {
	m.state = Idle
	m.busy = false
}

// Apply feeds an inbound event type to the machine and reports whether the
// state or busy flag changed. Events that do not match the current state
// are no-ops.
func (m *Machine) Apply(trigger protocol.EventType) bool {
	prevState, prevBusy := m.state, m.busy

	switch trigger {
	case protocol.EventPlanningStarted:
		m.state = Planning
		m.busy = true
	case protocol.EventMessage:
		// Content during planning is intermediate; only content outside the
		// planning phase ends the turn.
		if m.busy && m.state != Planning {
			m.Reset()
		}
	default:
		if next, ok := transitions[transition{from: m.state, trigger: trigger}]; ok {
			m.state = next
		}
	}

	return m.state != prevState || m.busy != prevBusy
}
