package engine

import "scribe/logger"

type state int

const (
	stateIdle state = iota
	statePending
	stateActive
)

// String returns a human-readable name for the state
func (s state) String() string {
	switch s {
	case stateIdle:
		return "Idle"
	case statePending:
		return "Pending"
	case stateActive:
		return "Active"
	default:
		return "Unknown"
	}
}

// Transition represents a valid state transition in the engine's state machine
type Transition struct {
	From   state
	Event  EventType
	Action func(*Engine, Event)
}

// transitions defines all valid state transitions in the engine.
//
// State Machine Overview:
//
//	stateIdle
//	├─[TextChanged]──► restarts the debounce window, stays idle
//	│
//	└─[DebounceTimeout]──► statePending
//	                         │
//	                         ├─[TextChanged/Esc/AltRight]──► request cancelled ──► stateIdle
//	                         │
//	                         └─[SuggestionReady]──► stateActive(0)  (stateIdle when nothing rendered)
//	                                                  │
//	                                                  ├─[Tab]──► accept i ──► stateActive(i) or stateIdle
//	                                                  │
//	                                                  ├─[Esc/AltRight]──► reject i ──► stateActive(i|0) or stateIdle
//	                                                  │
//	                                                  └─[TextChanged]──► overlays cleared ──► stateIdle
//
// Results that arrive in any other state belong to a superseded request and
// are dropped.
var transitions = []Transition{
	// From stateIdle
	{stateIdle, EventTextChanged, (*Engine).doEdit},
	{stateIdle, EventDebounceTimeout, (*Engine).doRequestSuggestion},

	// From statePending
	{statePending, EventTextChanged, (*Engine).doEdit},
	{statePending, EventSuggestionReady, (*Engine).doApplySuggestion},
	{statePending, EventSuggestionError, (*Engine).doSuggestionError},
	{statePending, EventEsc, (*Engine).doCancelRequest},
	{statePending, EventAltRight, (*Engine).doCancelRequest},

	// From stateActive
	{stateActive, EventTab, (*Engine).doAccept},
	{stateActive, EventEsc, (*Engine).doReject},
	{stateActive, EventAltRight, (*Engine).doReject},
	{stateActive, EventTextChanged, (*Engine).doEdit},
}

// transitionMap provides O(1) lookup for transitions by (state, event) pair
var transitionMap map[transitionKey]*Transition

type transitionKey struct {
	from  state
	event EventType
}

func init() {
	transitionMap = make(map[transitionKey]*Transition)
	for i := range transitions {
		t := &transitions[i]
		key := transitionKey{from: t.From, event: t.Event}
		transitionMap[key] = t
	}
}

// findTransition looks up a valid transition for the given state and event.
// Returns nil if no valid transition exists.
func findTransition(from state, event EventType) *Transition {
	return transitionMap[transitionKey{from: from, event: event}]
}

// dispatch finds and executes the transition for an event. The action sets
// the next state itself, since several transitions branch on runtime state.
func (e *Engine) dispatch(event Event) bool {
	t := findTransition(e.state, event.Type)
	if t == nil {
		logger.Debug("no handler: state=%s event=%s", e.state, event.Type)
		return false
	}
	if t.Action != nil {
		t.Action(e, event)
	}
	return true
}
