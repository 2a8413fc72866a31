package schema

// EventType defines the category of an engine event written to the journal.
type EventType uint16

const (
	EventUnknown EventType = iota
	EventSignal
	EventPositionOpen
	EventPartialExit
	EventStopMove
	EventPositionClose
	EventBreakerHalt
	EventBreakerClear
)

func (t EventType) String() string {
	switch t {
	case EventSignal:
		return "signal"
	case EventPositionOpen:
		return "position_open"
	case EventPartialExit:
		return "partial_exit"
	case EventStopMove:
		return "stop_move"
	case EventPositionClose:
		return "position_close"
	case EventBreakerHalt:
		return "breaker_halt"
	case EventBreakerClear:
		return "breaker_clear"
	default:
		return "unknown"
	}
}
