package realtime

import (
	"sync"
	"sync/atomic"
)

// ListenerToken identifies a registered listener so it can be removed.
type ListenerToken uint64

var listenerTokens atomic.Uint64

func nextListenerToken() ListenerToken {
	return ListenerToken(listenerTokens.Add(1))
}

type emitterEntry struct {
	token    ListenerToken
	listener func(ConnectionEvent)
	once     bool
}

// emitter keeps independent listener sets per event name. Listeners run on
// the emitting goroutine, outside the emitter lock, so they may register or
// remove listeners themselves.
type emitter struct {
	lock      sync.Mutex
	listeners map[EventName][]emitterEntry
}

func newEmitter() *emitter {
	return &emitter{listeners: make(map[EventName][]emitterEntry)}
}

func (events *emitter) on(name EventName, listener func(ConnectionEvent), once bool) ListenerToken {
	token := nextListenerToken()
	events.lock.Lock()
	events.listeners[name] = append(events.listeners[name], emitterEntry{token: token, listener: listener, once: once})
	events.lock.Unlock()
	return token
}

// off removes the listener registered under token. An empty name searches
// every event.
func (events *emitter) off(name EventName, token ListenerToken) bool {
	events.lock.Lock()
	defer events.lock.Unlock()

	removed := false
	for eventName, entries := range events.listeners {
		if name != "" && eventName != name {
			continue
		}
		for index, entry := range entries {
			if entry.token == token {
				events.listeners[eventName] = append(entries[:index:index], entries[index+1:]...)
				removed = true
				break
			}
		}
	}
	return removed
}

func (events *emitter) offAll(name EventName) {
	events.lock.Lock()
	if name == "" {
		events.listeners = make(map[EventName][]emitterEntry)
	} else {
		delete(events.listeners, name)
	}
	events.lock.Unlock()
}

func (events *emitter) emit(event ConnectionEvent) {
	events.lock.Lock()
	entries := events.listeners[event.Name]
	snapshot := make([]emitterEntry, len(entries))
	copy(snapshot, entries)
	if len(entries) > 0 {
		kept := entries[:0:0]
		for _, entry := range entries {
			if !entry.once {
				kept = append(kept, entry)
			}
		}
		events.listeners[event.Name] = kept
	}
	events.lock.Unlock()

	for _, entry := range snapshot {
		entry.listener(event)
	}
}
