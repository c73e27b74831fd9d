package realtime

// ConnectionState is the state of a Transport's connection.
type ConnectionState int32

const (
	StateUninitialized ConnectionState = iota
	StateConnecting
	StateConnected
	StateError
	StateClosing
	StateClosed
	StateFailed
)

func (state ConnectionState) String() string {
	switch state {
	case StateUninitialized:
		return "uninitialized"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateError:
		return "error"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// Terminal reports whether no further transition can leave the state.
func (state ConnectionState) Terminal() bool {
	return state == StateClosed || state == StateFailed
}

// EventName names a public connection event.
type EventName string

const (
	EventConnecting EventName = "connecting"
	EventConnected  EventName = "connected"
	EventClosing    EventName = "closing"
	EventClosed     EventName = "closed"
	EventFailed     EventName = "failed"
	EventError      EventName = "error"
)

// ConnectionEvent is delivered to connection event listeners.
type ConnectionEvent struct {
	Name     EventName
	State    ConnectionState
	Previous ConnectionState
	Err      *ErrorInfo
}

func eventForState(state ConnectionState) (EventName, bool) {
	switch state {
	case StateConnecting:
		return EventConnecting, true
	case StateConnected:
		return EventConnected, true
	case StateError:
		return EventError, true
	case StateClosing:
		return EventClosing, true
	case StateClosed:
		return EventClosed, true
	case StateFailed:
		return EventFailed, true
	}
	return "", false
}
