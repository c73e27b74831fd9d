package realtime

import (
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/Thejuampi/realtime-client-go/realtime/protocol"
	"github.com/rs/zerolog"
)

const testURL = "wss://realtime.test/socket"

type fakeTimer struct {
	clock   *fakeClock
	due     time.Duration
	delay   time.Duration
	fn      func()
	stopped bool
	fired   bool
}

func (timer *fakeTimer) Stop() bool {
	timer.clock.lock.Lock()
	defer timer.clock.lock.Unlock()
	if timer.stopped || timer.fired {
		return false
	}
	timer.stopped = true
	return true
}

// fakeClock fires timers only when advanced.
type fakeClock struct {
	lock   sync.Mutex
	now    time.Duration
	timers []*fakeTimer
}

func (clock *fakeClock) AfterFunc(delay time.Duration, fn func()) timer {
	clock.lock.Lock()
	defer clock.lock.Unlock()
	entry := &fakeTimer{clock: clock, due: clock.now + delay, delay: delay, fn: fn}
	clock.timers = append(clock.timers, entry)
	return entry
}

func (clock *fakeClock) Advance(delta time.Duration) {
	clock.lock.Lock()
	target := clock.now + delta
	for {
		var next *fakeTimer
		for _, entry := range clock.timers {
			if entry.stopped || entry.fired || entry.due > target {
				continue
			}
			if next == nil || entry.due < next.due {
				next = entry
			}
		}
		if next == nil {
			break
		}
		next.fired = true
		clock.now = next.due
		clock.lock.Unlock()
		next.fn()
		clock.lock.Lock()
	}
	clock.now = target
	clock.lock.Unlock()
}

// pending returns the delays of timers that have neither fired nor been
// stopped.
func (clock *fakeClock) pending() []time.Duration {
	clock.lock.Lock()
	defer clock.lock.Unlock()
	var delays []time.Duration
	for _, entry := range clock.timers {
		if !entry.stopped && !entry.fired {
			delays = append(delays, entry.delay)
		}
	}
	sort.Slice(delays, func(i, j int) bool { return delays[i] < delays[j] })
	return delays
}

type fakeSocket struct {
	url     string
	handler SocketHandler

	lock      sync.Mutex
	open      bool
	closed    bool
	sendError error
	sent      [][]byte
}

func (socket *fakeSocket) Send(frame []byte) error {
	socket.lock.Lock()
	defer socket.lock.Unlock()
	if !socket.open || socket.closed {
		return ErrSocketNotOpen
	}
	if socket.sendError != nil {
		return socket.sendError
	}
	socket.sent = append(socket.sent, append([]byte(nil), frame...))
	return nil
}

func (socket *fakeSocket) Close() error {
	socket.lock.Lock()
	if socket.closed {
		socket.lock.Unlock()
		return nil
	}
	socket.closed = true
	socket.lock.Unlock()
	socket.handler.OnClose()
	return nil
}

func (socket *fakeSocket) accept() {
	socket.lock.Lock()
	socket.open = true
	socket.lock.Unlock()
	socket.handler.OnOpen()
}

// drop closes the socket from the remote side.
func (socket *fakeSocket) drop() {
	socket.lock.Lock()
	socket.closed = true
	socket.lock.Unlock()
	socket.handler.OnClose()
}

func (socket *fakeSocket) failSends(err error) {
	socket.lock.Lock()
	socket.sendError = err
	socket.lock.Unlock()
}

func (socket *fakeSocket) serve(t *testing.T, codec *protocol.Codec, eventType protocol.EventType, event any) {
	t.Helper()
	frame, err := codec.Encode(eventType, event)
	if err != nil {
		t.Fatalf("encode %s: %v", eventType, err)
	}
	socket.handler.OnMessage(frame)
}

func (socket *fakeSocket) frames(t *testing.T, codec *protocol.Codec) []*protocol.Envelope {
	t.Helper()
	socket.lock.Lock()
	sent := append([][]byte(nil), socket.sent...)
	socket.lock.Unlock()

	envelopes := make([]*protocol.Envelope, 0, len(sent))
	for _, frame := range sent {
		envelope, err := codec.Decode(frame)
		if err != nil {
			t.Fatalf("decode sent frame: %v", err)
		}
		envelopes = append(envelopes, envelope)
	}
	return envelopes
}

func (socket *fakeSocket) eventTypes(t *testing.T, codec *protocol.Codec) []protocol.EventType {
	t.Helper()
	var types []protocol.EventType
	for _, envelope := range socket.frames(t, codec) {
		types = append(types, envelope.EventType)
	}
	return types
}

func (socket *fakeSocket) count(t *testing.T, codec *protocol.Codec, eventType protocol.EventType) int {
	t.Helper()
	count := 0
	for _, current := range socket.eventTypes(t, codec) {
		if current == eventType {
			count++
		}
	}
	return count
}

type fakeDialer struct {
	lock    sync.Mutex
	sockets []*fakeSocket
	opened  chan *fakeSocket
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{opened: make(chan *fakeSocket, 64)}
}

func (dialer *fakeDialer) Open(rawURL string, handler SocketHandler) Socket {
	socket := &fakeSocket{url: rawURL, handler: handler}
	dialer.lock.Lock()
	dialer.sockets = append(dialer.sockets, socket)
	dialer.lock.Unlock()
	dialer.opened <- socket
	return socket
}

func (dialer *fakeDialer) next(t *testing.T) *fakeSocket {
	t.Helper()
	select {
	case socket := <-dialer.opened:
		return socket
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for a socket to be opened")
		return nil
	}
}

func (dialer *fakeDialer) count() int {
	dialer.lock.Lock()
	defer dialer.lock.Unlock()
	return len(dialer.sockets)
}

type transportHarness struct {
	transport *Transport
	dialer    *fakeDialer
	clock     *fakeClock
	codec     *protocol.Codec
}

func newTransportHarness(t *testing.T, mutate func(options *Options)) *transportHarness {
	t.Helper()
	dialer := newFakeDialer()
	clock := &fakeClock{}
	logger := zerolog.New(zerolog.NewTestWriter(t)).Level(zerolog.DebugLevel)

	options := DefaultOptions()
	options.URL = testURL
	options.Encoding = "json"
	options.DisableAutoconnect = true
	options.Dialer = dialer
	options.Logger = &logger
	options.clock = clock
	if mutate != nil {
		mutate(&options)
	}

	transport, err := NewTransport(options)
	if err != nil {
		t.Fatalf("NewTransport: %v", err)
	}
	t.Cleanup(func() {
		transport.Close()
		select {
		case <-transport.Done():
		case <-time.After(2 * time.Second):
			t.Errorf("transport did not shut down, state %s", transport.State())
		}
	})
	return &transportHarness{transport: transport, dialer: dialer, clock: clock, codec: transport.codec}
}

func (harness *transportHarness) sync() {
	harness.transport.loop.sync()
}

// connect drives a fresh connection attempt to the connected state.
func (harness *transportHarness) connect(t *testing.T, sessionID string) *fakeSocket {
	t.Helper()
	if err := harness.transport.Connect(); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	return harness.accept(t, sessionID)
}

// accept completes the next socket attempt with a connected event.
func (harness *transportHarness) accept(t *testing.T, sessionID string) *fakeSocket {
	t.Helper()
	socket := harness.dialer.next(t)
	socket.accept()
	socket.serve(t, harness.codec, protocol.EventConnected, protocol.Connected{SessionID: sessionID, SocketID: "socket-" + sessionID})
	harness.sync()
	if state := harness.transport.State(); state != StateConnected {
		t.Fatalf("expected connected state, got %s", state)
	}
	return socket
}

// eventRecorder collects connection events emitted on the transport loop.
type eventRecorder struct {
	lock   sync.Mutex
	events []ConnectionEvent
}

func recordEvents(transport *Transport, names ...EventName) *eventRecorder {
	recorder := &eventRecorder{}
	for _, name := range names {
		transport.On(name, func(event ConnectionEvent) {
			recorder.lock.Lock()
			recorder.events = append(recorder.events, event)
			recorder.lock.Unlock()
		})
	}
	return recorder
}

func (recorder *eventRecorder) snapshot() []ConnectionEvent {
	recorder.lock.Lock()
	defer recorder.lock.Unlock()
	return append([]ConnectionEvent(nil), recorder.events...)
}

func (recorder *eventRecorder) names() []EventName {
	var names []EventName
	for _, event := range recorder.snapshot() {
		names = append(names, event.Name)
	}
	return names
}

func (socket *fakeSocket) handlerIsTransport(transport *Transport) bool {
	callbacks, ok := socket.handler.(*socketCallbacks)
	return ok && callbacks.transport == transport
}
