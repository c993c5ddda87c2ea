// Package handoff drives a client conversation from the assistant to a
// human employee.
package handoff

import (
	"errors"
	"fmt"
)

// ErrInvalidTransition is returned for an event the current state does not
// accept.
var ErrInvalidTransition = errors.New("invalid handoff transition")

// State is the handoff state of one client conversation.
type State int

const (
	AIActive State = iota
	EscalationRequested
	HumanActive
)

func (s State) String() string {
	switch s {
	case AIActive:
		return "AI_ACTIVE"
	case EscalationRequested:
		return "ESCALATION_REQUESTED"
	case HumanActive:
		return "HUMAN_ACTIVE"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Mode is who serves the conversation.
type Mode string

const (
	ModeAI    Mode = "ai"
	ModeHuman Mode = "human"
)

// Mode returns the delivery mode of s. Only HumanActive has an assignee.
func (s State) Mode() Mode {
	if s == HumanActive {
		return ModeHuman
	}
	return ModeAI
}

// Event is an input to the state machine.
type Event int

const (
	// EventAIReplied is an assistant reply without an escalation signal.
	EventAIReplied Event = iota
	// EventEscalationSignaled is an assistant reply asking for a human.
	EventEscalationSignaled
	// EventAssignmentObtained means an employee is assigned to the client.
	EventAssignmentObtained
	// EventAssignmentFailed means an assignment request did not succeed.
	EventAssignmentFailed
)

func (e Event) String() string {
	switch e {
	case EventAIReplied:
		return "ai_replied"
	case EventEscalationSignaled:
		return "escalation_signaled"
	case EventAssignmentObtained:
		return "assignment_obtained"
	case EventAssignmentFailed:
		return "assignment_failed"
	}
	return fmt.Sprintf("Event(%d)", int(e))
}

// Transition returns the state that follows s on e. It is pure.
//
// AIActive accepts an obtained assignment directly, which is how a client
// with an existing assignment skips the assistant at mount. HumanActive is
// terminal and only acknowledges further assignments.
func Transition(s State, e Event) (State, error) {
	switch s {
	case AIActive:
		switch e {
		case EventAIReplied:
			return AIActive, nil
		case EventEscalationSignaled:
			return EscalationRequested, nil
		case EventAssignmentObtained:
			return HumanActive, nil
		}
	case EscalationRequested:
		switch e {
		case EventAIReplied, EventEscalationSignaled, EventAssignmentFailed:
			return EscalationRequested, nil
		case EventAssignmentObtained:
			return HumanActive, nil
		}
	case HumanActive:
		if e == EventAssignmentObtained {
			return HumanActive, nil
		}
	}
	return s, fmt.Errorf("%w: %s on %s", ErrInvalidTransition, s, e)
}
