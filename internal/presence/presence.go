// Package presence defines the assistant presence states and their transition table.
package presence

import (
	"encoding/json"
	"fmt"
)

// State is the assistant's currently displayed activity phase.
type State string

// Event drives one presence transition.
type Event string

const (
	StateIdle      State = "idle"
	StateListening State = "listening"
	StateThinking  State = "thinking"
	StateSpeaking  State = "speaking"
)

const (
	EventStart    Event = "start"
	EventStop     Event = "stop"
	EventCancel   Event = "cancel"
	EventReply    Event = "reply"
	EventFail     Event = "fail"
	EventFinished Event = "finished"
)

// Label returns the short status line presentation surfaces show for a state.
func (s State) Label() string {
	switch s {
	case StateIdle:
		return "Ready"
	case StateListening:
		return "Listening..."
	case StateThinking:
		return "Processing..."
	case StateSpeaking:
		return "Speaking..."
	default:
		return string(s)
	}
}

// Valid reports whether s is one of the four presence states.
func (s State) Valid() bool {
	switch s {
	case StateIdle, StateListening, StateThinking, StateSpeaking:
		return true
	default:
		return false
	}
}

// UnmarshalJSON rejects unknown state names.
func (s *State) UnmarshalJSON(b []byte) error {
	var name string
	if err := json.Unmarshal(b, &name); err != nil {
		return err
	}
	state := State(name)
	if !state.Valid() {
		return fmt.Errorf("unknown presence state %q", name)
	}
	*s = state
	return nil
}

// Transition returns the next state for event, or an error when event is not
// accepted in current. The returned state equals current on error.
func Transition(current State, event Event) (State, error) {
	switch current {
	case StateIdle:
		switch event {
		case EventStart:
			return StateListening, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateListening:
		switch event {
		case EventStop:
			return StateThinking, nil
		case EventCancel, EventFail:
			return StateIdle, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateThinking:
		switch event {
		case EventReply:
			return StateSpeaking, nil
		case EventFail:
			return StateIdle, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateSpeaking:
		switch event {
		case EventFinished:
			return StateIdle, nil
		default:
			return current, invalidTransition(current, event)
		}
	default:
		return current, fmt.Errorf("unknown state %q", current)
	}
}

func invalidTransition(state State, event Event) error {
	return fmt.Errorf("invalid transition: %s --(%s)--> ?", state, event)
}
