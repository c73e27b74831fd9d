package protocol

// EventType names the kind of event carried by an envelope.
type EventType string

// Event types understood by the client.
const (
	EventAck         EventType = "ack"
	EventConnected   EventType = "connected"
	EventHeartbeat   EventType = "heartbeat"
	EventSubscribed  EventType = "subscribed"
	EventMessage     EventType = "message"
	EventError       EventType = "error"
	EventAttach      EventType = "attach"
	EventDetach      EventType = "detach"
	EventSubscribe   EventType = "subscribe"
	EventUnsubscribe EventType = "unsubscribe"
	EventDisconnect  EventType = "disconnect"
)

// Valid reports whether the event type belongs to the protocol vocabulary.
func (eventType EventType) Valid() bool {
	switch eventType {
	case EventAck, EventConnected, EventHeartbeat, EventSubscribed, EventMessage,
		EventError, EventAttach, EventDetach, EventSubscribe, EventUnsubscribe,
		EventDisconnect:
		return true
	}
	return false
}

func (eventType EventType) String() string { return string(eventType) }

// Connected is sent by the backend once a connection is usable.
type Connected struct {
	SessionID string `json:"session_id" msgpack:"session_id"`
	SocketID  string `json:"socket_id" msgpack:"socket_id"`
}

// Ack acknowledges a client frame.
type Ack struct {
	ID string `json:"id,omitempty" msgpack:"id,omitempty"`
}

// Subscribed confirms a subscribe request.
type Subscribed struct {
	Channel string `json:"channel" msgpack:"channel"`
	Name    string `json:"name,omitempty" msgpack:"name,omitempty"`
}

// ChannelRef addresses a channel for attach, detach and unsubscribe.
type ChannelRef struct {
	Channel string `json:"channel" msgpack:"channel"`
	Name    string `json:"name,omitempty" msgpack:"name,omitempty"`
}

// Subscription asks the backend to deliver messages named Name on Channel,
// resuming after Position when it is set.
type Subscription struct {
	Channel  string `json:"channel" msgpack:"channel"`
	Name     string `json:"name" msgpack:"name"`
	Position string `json:"position,omitempty" msgpack:"position,omitempty"`
}

// Message is a channel message. ID is assigned by the backend and is the
// cursor a subscriber resumes from.
type Message struct {
	ID        string `json:"id,omitempty" msgpack:"id,omitempty"`
	Channel   string `json:"channel" msgpack:"channel"`
	Name      string `json:"name" msgpack:"name"`
	Data      any    `json:"data,omitempty" msgpack:"data,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty" msgpack:"timestamp,omitempty"`
}

// ErrorEvent is an error reported by the backend.
type ErrorEvent struct {
	Code    int    `json:"code" msgpack:"code"`
	Message string `json:"message" msgpack:"message"`
}

type empty struct{}
