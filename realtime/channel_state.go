package realtime

import "github.com/Thejuampi/realtime-client-go/realtime/protocol"

// Message is a channel message delivered to listeners.
type Message = protocol.Message

// MessageListener receives channel messages on the transport goroutine.
type MessageListener func(message *Message)

type channelListener struct {
	token    ListenerToken
	name     string
	listener MessageListener
}

func (entry channelListener) matches(message *Message) bool {
	return entry.name == "" || entry.name == message.Name
}

// channelState is the client-side record of one channel. It is owned by the
// transport loop.
type channelState struct {
	listeners []channelListener
	position  string
	attached  bool
	names     []string
}

func (state *channelState) addListener(entry channelListener) {
	state.listeners = append(state.listeners, entry)
}

func (state *channelState) removeListener(token ListenerToken) (channelListener, bool) {
	for index, entry := range state.listeners {
		if entry.token == token {
			state.listeners = append(state.listeners[:index:index], state.listeners[index+1:]...)
			return entry, true
		}
	}
	return channelListener{}, false
}

// removeNamed drops every listener registered for name and returns how many
// were removed.
func (state *channelState) removeNamed(name string) int {
	kept := state.listeners[:0:0]
	for _, entry := range state.listeners {
		if entry.name != name {
			kept = append(kept, entry)
		}
	}
	removed := len(state.listeners) - len(kept)
	state.listeners = kept
	return removed
}

func (state *channelState) hasListenerFor(name string) bool {
	for _, entry := range state.listeners {
		if entry.name == name {
			return true
		}
	}
	return false
}

func (state *channelState) subscribed(name string) bool {
	for _, existing := range state.names {
		if existing == name {
			return true
		}
	}
	return false
}

func (state *channelState) addName(name string) bool {
	if state.subscribed(name) {
		return false
	}
	state.names = append(state.names, name)
	return true
}

func (state *channelState) removeName(name string) bool {
	for index, existing := range state.names {
		if existing == name {
			state.names = append(state.names[:index:index], state.names[index+1:]...)
			return true
		}
	}
	return false
}

// deliver advances the position and invokes matching listeners in
// registration order.
func (state *channelState) deliver(message *Message) int {
	if message.ID != "" {
		state.position = message.ID
	}
	snapshot := make([]channelListener, len(state.listeners))
	copy(snapshot, state.listeners)

	delivered := 0
	for _, entry := range snapshot {
		if entry.matches(message) {
			entry.listener(message)
			delivered++
		}
	}
	return delivered
}

// channelRegistry maps channel names to their state, preserving insertion
// order. Entries are never removed.
type channelRegistry struct {
	order  []string
	states map[string]*channelState
}

func newChannelRegistry() *channelRegistry {
	return &channelRegistry{states: make(map[string]*channelState)}
}

func (registry *channelRegistry) get(name string) (*channelState, bool) {
	state, ok := registry.states[name]
	return state, ok
}

func (registry *channelRegistry) ensure(name string) *channelState {
	if state, ok := registry.states[name]; ok {
		return state
	}
	state := &channelState{}
	registry.states[name] = state
	registry.order = append(registry.order, name)
	return state
}

func (registry *channelRegistry) each(fn func(name string, state *channelState)) {
	for _, name := range registry.order {
		fn(name, registry.states[name])
	}
}

func (registry *channelRegistry) len() int {
	return len(registry.order)
}
