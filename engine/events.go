package engine

type EventType string

// Event type constants
const (
	EventTextChanged     EventType = "text_changed"
	EventDebounceTimeout EventType = "debounce_timeout"
	EventSuggestionReady EventType = "suggestion_ready"
	EventSuggestionError EventType = "suggestion_error"
	EventTab             EventType = "tab"
	EventEsc             EventType = "esc"
	EventAltRight        EventType = "alt_right"
	EventSpace           EventType = "space"
	EventEnter           EventType = "enter"
	EventCorrectionReady EventType = "correction_ready"
	EventCorrectionError EventType = "correction_error"
)

var eventTypeMap map[string]EventType

func init() {
	eventTypeMap = buildEventTypeMap()
}

func buildEventTypeMap() map[string]EventType {
	eventMap := make(map[string]EventType)

	allEventTypes := []EventType{
		EventTextChanged,
		EventDebounceTimeout,
		EventSuggestionReady,
		EventSuggestionError,
		EventTab,
		EventEsc,
		EventAltRight,
		EventSpace,
		EventEnter,
		EventCorrectionReady,
		EventCorrectionError,
	}

	for _, eventType := range allEventTypes {
		eventMap[string(eventType)] = eventType
	}

	return eventMap
}

// EventTypeFromString maps an editor event name to its EventType, or "" when
// the name is unknown.
func EventTypeFromString(s string) EventType {
	if eventType, exists := eventTypeMap[s]; exists {
		return eventType
	}
	return ""
}

// IsKey reports whether the event is a keystroke the engine may consume
func (t EventType) IsKey() bool {
	switch t {
	case EventTab, EventEsc, EventAltRight, EventSpace, EventEnter:
		return true
	}
	return false
}

type Event struct {
	Type EventType
	Data any
}
