package realtime

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/Thejuampi/realtime-client-go/internal/logging"
	"github.com/Thejuampi/realtime-client-go/realtime/protocol"
	"github.com/rs/zerolog"
)

const protocolVersion = "1"

// Transport owns the connection to the realtime backend: its state machine,
// heartbeat and reconnect timers, the channel registry and the outbound
// queue. Every mutation runs on a single event-loop goroutine; the exported
// methods post work to it and never block on the network.
type Transport struct {
	url        string
	userAgent  string
	heartbeat  time.Duration
	maxRetries int

	codec    *protocol.Codec
	dialer   Dialer
	clock    clock
	strategy ReconnectDelayStrategy
	logger   zerolog.Logger
	metrics  *Metrics
	events   *emitter
	loop     *eventLoop

	state   atomic.Int32
	session atomic.Pointer[Session]

	// Owned by the loop goroutine.
	socket         Socket
	socketGen      uint64
	retries        int
	channels       *channelRegistry
	queue          outboundQueue
	heartbeatTimer timer
	heartbeatSeq   uint64
	reconnectTimer timer
	reconnectSeq   uint64
}

// NewTransport validates options and starts the transport loop. Zero fields
// take their DefaultOptions value. Unless DisableAutoconnect is set the first
// connection attempt starts immediately.
func NewTransport(options Options) (*Transport, error) {
	if strings.TrimSpace(options.URL) == "" {
		return nil, NewError(ErrorCodeInvalidOperation, "url must not be empty")
	}
	if _, err := url.Parse(options.URL); err != nil {
		return nil, fmt.Errorf("realtime: invalid url: %w", err)
	}
	encoding, err := protocol.ParseEncoding(options.Encoding)
	if err != nil {
		return nil, err
	}

	transport := &Transport{
		url:        options.URL,
		userAgent:  options.UserAgent,
		heartbeat:  options.HeartbeatTimeout,
		maxRetries: options.MaxRetries,
		codec:      protocol.NewCodec(encoding),
		dialer:     options.Dialer,
		clock:      options.clock,
		strategy:   options.ReconnectStrategy,
		metrics:    options.Metrics,
		events:     newEmitter(),
		channels:   newChannelRegistry(),
	}
	switch {
	case transport.heartbeat == 0:
		transport.heartbeat = DefaultHeartbeatTimeout
	case transport.heartbeat < 0:
		transport.heartbeat = 0
	}
	switch {
	case transport.maxRetries == 0:
		transport.maxRetries = DefaultMaxRetries
	case transport.maxRetries < 0:
		transport.maxRetries = 0
	}
	if transport.userAgent == "" {
		transport.userAgent = DefaultUserAgent
	}
	if transport.dialer == nil {
		transport.dialer = NewWebSocketDialer()
	}
	if transport.clock == nil {
		transport.clock = systemClock{}
	}
	if transport.strategy == nil {
		transport.strategy = DefaultReconnectStrategy()
	}
	if options.Logger != nil {
		transport.logger = options.Logger.With().Str("component", "transport").Logger()
	} else {
		transport.logger = logging.New("transport")
	}
	if options.ClientID != "" {
		transport.logger = transport.logger.With().Str("client_id", options.ClientID).Logger()
	}

	transport.loop = newEventLoop()
	if !options.DisableAutoconnect {
		transport.loop.post(transport.connect)
	}
	return transport, nil
}

// State returns the current connection state.
func (transport *Transport) State() ConnectionState {
	return ConnectionState(transport.state.Load())
}

// Session returns the session established by the last connected event.
func (transport *Transport) Session() (Session, bool) {
	session := transport.session.Load()
	if session == nil {
		return Session{}, false
	}
	return *session, true
}

// SocketID returns the backend-assigned socket id of the current session.
func (transport *Transport) SocketID() (string, bool) {
	session := transport.session.Load()
	if session == nil {
		return "", false
	}
	return session.SocketID, true
}

// Encoding returns the wire encoding in use.
func (transport *Transport) Encoding() protocol.Encoding {
	return transport.codec.Encoding()
}

// Done is closed once the transport reached closed or failed and its loop
// exited.
func (transport *Transport) Done() <-chan struct{} {
	return transport.loop.done
}

// On registers listener for the named connection event.
func (transport *Transport) On(name EventName, listener func(ConnectionEvent)) ListenerToken {
	return transport.events.on(name, listener, false)
}

// Once registers listener for the next occurrence of the named event.
func (transport *Transport) Once(name EventName, listener func(ConnectionEvent)) ListenerToken {
	return transport.events.on(name, listener, true)
}

// Off removes a connection event listener. An empty name matches any event.
func (transport *Transport) Off(name EventName, token ListenerToken) bool {
	return transport.events.off(name, token)
}

// OffAll removes every listener of the named event, or of all events when
// name is empty.
func (transport *Transport) OffAll(name EventName) {
	transport.events.offAll(name)
}

// Connect starts connecting. It is a no-op while connecting or connected and
// skips a pending reconnect delay.
func (transport *Transport) Connect() error {
	if transport.State().Terminal() {
		return ErrTransportClosed
	}
	return transport.submit(transport.connect)
}

// Close sends a disconnect when possible and closes the socket. The
// transport ends in the closed state.
func (transport *Transport) Close() {
	transport.loop.post(transport.close)
}

// Attach marks channel as attached and sends an attach frame when connected.
func (transport *Transport) Attach(channel string) error {
	if channel == "" {
		return ErrInvalidChannel
	}
	return transport.submit(func() { transport.attach(channel) })
}

// Detach clears the channel's attachment and subscriptions. Its listeners
// stay registered.
func (transport *Transport) Detach(channel string) error {
	if channel == "" {
		return ErrInvalidChannel
	}
	return transport.submit(func() { transport.detach(channel) })
}

// Subscribe subscribes to messages called name on channel, attaching the
// channel first when needed. An empty name subscribes to every message.
func (transport *Transport) Subscribe(channel string, name string) error {
	if channel == "" {
		return ErrInvalidChannel
	}
	return transport.submit(func() { transport.subscribe(channel, name) })
}

// Unsubscribe drops the subscription to name on channel.
func (transport *Transport) Unsubscribe(channel string, name string) error {
	if channel == "" {
		return ErrInvalidChannel
	}
	return transport.submit(func() { transport.unsubscribe(channel, name) })
}

// Listen registers listener for messages called name on channel. An empty
// name receives every message of the channel. Listen does not subscribe.
func (transport *Transport) Listen(channel string, name string, listener MessageListener) (ListenerToken, error) {
	if channel == "" {
		return 0, ErrInvalidChannel
	}
	if listener == nil {
		return 0, ErrNilListener
	}
	token := nextListenerToken()
	entry := channelListener{token: token, name: name, listener: listener}
	if err := transport.submit(func() { transport.channels.ensure(channel).addListener(entry) }); err != nil {
		return 0, err
	}
	return token, nil
}

// Unlisten removes the listener registered under token. When it was the last
// listener for a subscribed name, the subscription is dropped.
func (transport *Transport) Unlisten(channel string, token ListenerToken) error {
	if channel == "" {
		return ErrInvalidChannel
	}
	return transport.submit(func() { transport.unlisten(channel, token) })
}

// UnlistenAll removes every listener for name on channel and drops the
// subscription. The channel stays attached.
func (transport *Transport) UnlistenAll(channel string, name string) error {
	if channel == "" {
		return ErrInvalidChannel
	}
	return transport.submit(func() { transport.unlistenAll(channel, name) })
}

// Publish sends a message on channel. While not connected the message is
// queued and flushed after the next connected event.
func (transport *Transport) Publish(channel string, name string, data any) error {
	if channel == "" {
		return ErrInvalidChannel
	}
	frame, err := transport.codec.Message(channel, name, data)
	if err != nil {
		return err
	}
	return transport.submit(func() { transport.send(protocol.EventMessage, frame, true) })
}

func (transport *Transport) submit(task func()) error {
	if !transport.loop.post(task) {
		return ErrTransportClosed
	}
	return nil
}

// The methods below run on the loop goroutine.

func (transport *Transport) setState(next ConnectionState, info *ErrorInfo) {
	previous := ConnectionState(transport.state.Swap(int32(next)))
	transport.metrics.stateChanged(next)

	logEvent := transport.logger.Debug()
	if info != nil {
		logEvent = transport.logger.Warn().Int("code", info.Code).Str("reason", info.Message)
	}
	logEvent.Str("from", previous.String()).Str("to", next.String()).Msg("connection state changed")

	if name, ok := eventForState(next); ok {
		transport.events.emit(ConnectionEvent{Name: name, State: next, Previous: previous, Err: info})
	}
}

func (transport *Transport) emitError(info *ErrorInfo) {
	state := transport.State()
	transport.events.emit(ConnectionEvent{Name: EventError, State: state, Previous: state, Err: info})
}

func (transport *Transport) connect() {
	switch transport.State() {
	case StateUninitialized:
		transport.setState(StateConnecting, nil)
		transport.establishConnection()
	case StateConnecting:
		if transport.reconnectTimer != nil {
			transport.cancelReconnect()
			transport.establishConnection()
		}
	default:
		transport.logger.Debug().Str("state", transport.State().String()).Msg("connect ignored")
	}
}

func (transport *Transport) connectionURL() string {
	var builder strings.Builder
	builder.WriteString(transport.url)
	if strings.Contains(transport.url, "?") {
		builder.WriteByte('&')
	} else {
		builder.WriteByte('?')
	}
	builder.WriteString("user-agent=")
	builder.WriteString(url.QueryEscape(transport.userAgent))
	builder.WriteString("&protocol=")
	builder.WriteString(protocolVersion)
	builder.WriteString("&encoding=")
	builder.WriteString(transport.codec.Encoding().String())
	if session := transport.session.Load(); session != nil && session.SessionID != "" {
		builder.WriteString("&sessionId=")
		builder.WriteString(url.QueryEscape(session.SessionID))
	}
	return builder.String()
}

func (transport *Transport) establishConnection() {
	if transport.socket != nil {
		transport.logger.Debug().Msg("connection attempt already in flight")
		return
	}
	transport.socketGen++
	rawURL := transport.connectionURL()
	transport.logger.Debug().Str("url", rawURL).Int("attempt", transport.retries).Msg("opening socket")
	transport.socket = transport.dialer.Open(rawURL, &socketCallbacks{transport: transport, generation: transport.socketGen})
}

func (transport *Transport) onSocketOpen(generation uint64) {
	if generation != transport.socketGen {
		return
	}
	transport.logger.Debug().Msg("socket open, awaiting connected")
}

func (transport *Transport) onSocketMessage(generation uint64, frame []byte) {
	if generation != transport.socketGen {
		return
	}
	if err := transport.onMessage(frame); err != nil {
		transport.metrics.decodeError()
		transport.logger.Warn().Err(err).Msg("failed to handle inbound frame")
	}
}

func (transport *Transport) onSocketError(generation uint64, err error) {
	if generation != transport.socketGen {
		return
	}
	switch transport.State() {
	case StateConnecting, StateConnected:
		transport.setState(StateError, NewError(ErrorCodeConnectionFailed, err.Error()))
	default:
		transport.logger.Debug().Err(err).Str("state", transport.State().String()).Msg("socket error")
	}
}

func (transport *Transport) onSocketClose(generation uint64) {
	if generation != transport.socketGen {
		return
	}
	transport.socket = nil
	transport.stopHeartbeat()

	switch state := transport.State(); state {
	case StateClosing:
		transport.setState(StateClosed, nil)
		transport.shutdown()
	case StateClosed, StateFailed:
	default:
		transport.logger.Info().Str("state", state.String()).Msg("socket closed unexpectedly")
		transport.scheduleReconnect()
	}
}

func (transport *Transport) scheduleReconnect() {
	transport.retries++
	if transport.retries > transport.maxRetries {
		transport.setState(StateFailed, NewError(ErrorCodeRetriesExhausted,
			fmt.Sprintf("gave up after %d reconnection attempts", transport.maxRetries)))
		transport.shutdown()
		return
	}

	delay := transport.strategy.ReconnectDelay(transport.retries)
	transport.metrics.reconnectScheduled()
	transport.setState(StateConnecting, nil)
	transport.logger.Info().Int("attempt", transport.retries).Dur("delay", delay).Msg("reconnect scheduled")

	transport.cancelReconnect()
	transport.reconnectSeq++
	sequence := transport.reconnectSeq
	transport.reconnectTimer = transport.clock.AfterFunc(delay, func() {
		transport.loop.post(func() { transport.onReconnectTimer(sequence) })
	})
}

func (transport *Transport) onReconnectTimer(sequence uint64) {
	if sequence != transport.reconnectSeq || transport.reconnectTimer == nil {
		return
	}
	transport.reconnectTimer = nil
	if transport.State() != StateConnecting {
		return
	}
	transport.establishConnection()
}

func (transport *Transport) cancelReconnect() {
	if transport.reconnectTimer != nil {
		transport.reconnectTimer.Stop()
		transport.reconnectTimer = nil
	}
	transport.reconnectSeq++
}

func (transport *Transport) restartHeartbeat() {
	transport.stopHeartbeat()
	if transport.heartbeat <= 0 || transport.State() != StateConnected {
		return
	}
	sequence := transport.heartbeatSeq
	transport.heartbeatTimer = transport.clock.AfterFunc(transport.heartbeat, func() {
		transport.loop.post(func() { transport.onHeartbeatTimer(sequence) })
	})
}

func (transport *Transport) stopHeartbeat() {
	if transport.heartbeatTimer != nil {
		transport.heartbeatTimer.Stop()
		transport.heartbeatTimer = nil
	}
	transport.heartbeatSeq++
}

func (transport *Transport) onHeartbeatTimer(sequence uint64) {
	if sequence != transport.heartbeatSeq || transport.heartbeatTimer == nil {
		return
	}
	transport.heartbeatTimer = nil
	if transport.State() != StateConnected {
		return
	}
	frame, err := transport.codec.Heartbeat()
	if err != nil {
		transport.logger.Error().Err(err).Msg("failed to encode heartbeat")
		return
	}
	transport.send(protocol.EventHeartbeat, frame, false)
	if transport.heartbeatTimer == nil {
		transport.restartHeartbeat()
	}
}

func (transport *Transport) close() {
	switch state := transport.State(); state {
	case StateClosing, StateClosed, StateFailed:
		return
	}

	transport.cancelReconnect()
	transport.stopHeartbeat()
	transport.setState(StateClosing, nil)

	if transport.socket == nil {
		transport.setState(StateClosed, nil)
		transport.shutdown()
		return
	}
	if frame, err := transport.codec.Disconnect(); err == nil {
		transport.send(protocol.EventDisconnect, frame, false)
	}
	if err := transport.socket.Close(); err != nil {
		transport.logger.Debug().Err(err).Msg("socket close failed")
	}
}

// shutdown releases the timers and stops the loop once the transport is
// terminal.
func (transport *Transport) shutdown() {
	transport.cancelReconnect()
	transport.stopHeartbeat()
	if depth := transport.queue.len(); depth > 0 {
		transport.logger.Info().Int("frames", depth).Msg("discarding queued frames")
		transport.queue.drain()
		transport.metrics.setQueueDepth(0)
	}
	transport.loop.stop()
}

// send writes frame when connected. With saveOffline the frame is queued
// while disconnected or when the socket is not open yet; otherwise a failed
// send is logged and dropped.
func (transport *Transport) send(eventType protocol.EventType, frame []byte, saveOffline bool) {
	if saveOffline && transport.State() != StateConnected {
		transport.enqueue(eventType, frame)
		return
	}

	err := ErrSocketNotOpen
	if transport.socket != nil {
		err = transport.socket.Send(frame)
	}
	if err != nil {
		if saveOffline && errors.Is(err, ErrSocketNotOpen) {
			transport.enqueue(eventType, frame)
			return
		}
		transport.metrics.frameDropped(eventType)
		transport.logger.Warn().Err(err).Str("event_type", string(eventType)).Msg("dropping frame")
		return
	}

	transport.metrics.frameSent(eventType)
	transport.restartHeartbeat()
}

func (transport *Transport) enqueue(eventType protocol.EventType, frame []byte) {
	transport.queue.push(outboundFrame{eventType: eventType, data: frame})
	transport.metrics.setQueueDepth(transport.queue.len())
	transport.logger.Debug().Str("event_type", string(eventType)).Int("depth", transport.queue.len()).Msg("frame queued")
}

func (transport *Transport) flushQueue() {
	frames := transport.queue.drain()
	transport.metrics.setQueueDepth(0)
	for _, frame := range frames {
		transport.send(frame.eventType, frame.data, true)
	}
}

// onMessage decodes one inbound frame and dispatches it.
func (transport *Transport) onMessage(frame []byte) error {
	envelope, err := transport.codec.Decode(frame)
	if err != nil {
		return err
	}
	transport.metrics.frameReceived(envelope.EventType)

	switch envelope.EventType {
	case protocol.EventConnected:
		connected, err := protocol.ParseConnected(envelope)
		if err != nil {
			return err
		}
		transport.onConnected(connected)
	case protocol.EventMessage:
		message, err := protocol.ParseMessage(envelope)
		if err != nil {
			return err
		}
		transport.handleChannelMessage(&message)
	case protocol.EventError:
		event, err := protocol.ParseError(envelope)
		if err != nil {
			return err
		}
		transport.logger.Warn().Int("code", event.Code).Str("reason", event.Message).Msg("backend error")
		transport.emitError(NewError(event.Code, event.Message))
	case protocol.EventHeartbeat, protocol.EventAck, protocol.EventSubscribed:
		transport.logger.Debug().Str("event_type", string(envelope.EventType)).Msg("received")
	case protocol.EventDisconnect:
		transport.logger.Info().Msg("backend requested disconnect")
		transport.emitError(NewError(ErrorCodeDisconnected, "backend requested disconnect"))
	default:
		transport.logger.Debug().Str("event_type", string(envelope.EventType)).Msg("ignoring client-bound event")
	}
	return nil
}

func (transport *Transport) onConnected(connected protocol.Connected) {
	switch state := transport.State(); state {
	case StateClosing, StateClosed, StateFailed:
		transport.logger.Debug().Str("state", state.String()).Msg("connected ignored")
		return
	}

	transport.session.Store(newSession(connected))
	transport.retries = 0
	transport.cancelReconnect()
	transport.setState(StateConnected, nil)
	transport.restartHeartbeat()
	transport.logger.Info().Str("session_id", connected.SessionID).Str("socket_id", connected.SocketID).Msg("connected")

	transport.reconnectChannels()
	transport.flushQueue()
}

// reconnectChannels replays attach and subscribe frames for every attached
// channel in registration order.
func (transport *Transport) reconnectChannels() {
	transport.channels.each(func(channel string, state *channelState) {
		if !state.attached {
			return
		}
		transport.sendControl(protocol.EventAttach, func() ([]byte, error) { return transport.codec.Attach(channel) })
		for _, name := range state.names {
			transport.sendControl(protocol.EventSubscribe, func() ([]byte, error) {
				return transport.codec.Subscribe(channel, name, state.position)
			})
		}
	})
}

// sendControl sends a channel control frame while connected. Control frames
// are never queued; reconnectChannels replays them.
func (transport *Transport) sendControl(eventType protocol.EventType, encode func() ([]byte, error)) {
	if transport.State() != StateConnected {
		return
	}
	frame, err := encode()
	if err != nil {
		transport.logger.Error().Err(err).Str("event_type", string(eventType)).Msg("failed to encode frame")
		return
	}
	transport.send(eventType, frame, false)
}

func (transport *Transport) attach(channel string) {
	state := transport.channels.ensure(channel)
	if state.attached {
		return
	}
	state.attached = true
	transport.sendControl(protocol.EventAttach, func() ([]byte, error) { return transport.codec.Attach(channel) })
}

func (transport *Transport) detach(channel string) {
	state, ok := transport.channels.get(channel)
	if !ok || !state.attached {
		return
	}
	state.attached = false
	state.names = nil
	transport.sendControl(protocol.EventDetach, func() ([]byte, error) { return transport.codec.Detach(channel) })
}

func (transport *Transport) subscribe(channel string, name string) {
	transport.attach(channel)
	state := transport.channels.ensure(channel)
	if !state.addName(name) {
		return
	}
	transport.sendControl(protocol.EventSubscribe, func() ([]byte, error) {
		return transport.codec.Subscribe(channel, name, state.position)
	})
}

func (transport *Transport) unsubscribe(channel string, name string) {
	state, ok := transport.channels.get(channel)
	if !ok || !state.removeName(name) {
		return
	}
	transport.sendControl(protocol.EventUnsubscribe, func() ([]byte, error) { return transport.codec.Unsubscribe(channel, name) })
}

func (transport *Transport) unlisten(channel string, token ListenerToken) {
	state, ok := transport.channels.get(channel)
	if !ok {
		return
	}
	removed, ok := state.removeListener(token)
	if !ok {
		return
	}
	if !state.hasListenerFor(removed.name) {
		transport.unsubscribe(channel, removed.name)
	}
}

func (transport *Transport) unlistenAll(channel string, name string) {
	state, ok := transport.channels.get(channel)
	if !ok {
		return
	}
	state.removeNamed(name)
	transport.unsubscribe(channel, name)
}

func (transport *Transport) handleChannelMessage(message *Message) {
	state, ok := transport.channels.get(message.Channel)
	if !ok {
		info := NewError(ErrorCodeUnroutable, fmt.Sprintf("received msg for channel %s that doesn't exist", message.Channel))
		transport.logger.Warn().Str("channel", message.Channel).Msg("message for unknown channel")
		transport.emitError(info)
		return
	}
	delivered := state.deliver(message)
	transport.logger.Trace().Str("channel", message.Channel).Str("name", message.Name).Int("listeners", delivered).Msg("message delivered")
}

// socketCallbacks binds socket events to one connection attempt.
type socketCallbacks struct {
	transport  *Transport
	generation uint64
}

func (callbacks *socketCallbacks) OnOpen() {
	callbacks.post(func() { callbacks.transport.onSocketOpen(callbacks.generation) })
}

func (callbacks *socketCallbacks) OnMessage(frame []byte) {
	callbacks.post(func() { callbacks.transport.onSocketMessage(callbacks.generation, frame) })
}

func (callbacks *socketCallbacks) OnError(err error) {
	callbacks.post(func() { callbacks.transport.onSocketError(callbacks.generation, err) })
}

func (callbacks *socketCallbacks) OnClose() {
	callbacks.post(func() { callbacks.transport.onSocketClose(callbacks.generation) })
}

func (callbacks *socketCallbacks) post(task func()) {
	if !callbacks.transport.loop.post(task) {
		callbacks.transport.logger.Trace().Msg("socket callback after shutdown")
	}
}
