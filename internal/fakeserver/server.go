// Package fakeserver is an in-process realtime backend used by integration
// tests and the fakerealtime tool. It keeps a per-channel journal, fans
// messages out by channel and message name, and replays the journal after a
// subscribe position.
package fakeserver

import (
	"net/http"
	"sync"
	"time"

	"github.com/Thejuampi/realtime-client-go/realtime/protocol"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Error codes sent in error events.
const (
	ErrorCodeBadRequest     = 40000
	ErrorCodeUnknownChannel = 40400
)

// Config configures a Server.
type Config struct {
	// JournalMax bounds the stored messages per channel.
	JournalMax int
	// Echo delivers a publisher's own messages back to it when it is
	// subscribed.
	Echo   bool
	Logger zerolog.Logger
}

// DefaultConfig returns the configuration used by New(DefaultConfig()).
func DefaultConfig() Config {
	return Config{JournalMax: 100_000, Echo: true, Logger: zerolog.Nop()}
}

// Server is an http.Handler that upgrades requests to the realtime protocol.
type Server struct {
	upgrader websocket.Upgrader
	logger   zerolog.Logger
	echo     bool
	journal  *journal

	lock     sync.Mutex
	conns    map[*conn]struct{}
	sessions map[string]bool
	closed   bool
	wg       sync.WaitGroup
}

// New returns a Server.
func New(cfg Config) *Server {
	return &Server{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger:   cfg.Logger.With().Str("component", "fakeserver").Logger(),
		echo:     cfg.Echo,
		journal:  newJournal(cfg.JournalMax),
		conns:    make(map[*conn]struct{}),
		sessions: make(map[string]bool),
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	if version := query.Get("protocol"); version != "" && version != "1" {
		http.Error(w, "unsupported protocol version", http.StatusBadRequest)
		return
	}
	encoding, err := protocol.ParseEncoding(query.Get("encoding"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.lock.Lock()
	if s.closed {
		s.lock.Unlock()
		http.Error(w, "server closed", http.StatusServiceUnavailable)
		return
	}
	s.wg.Add(1)
	s.lock.Unlock()
	defer s.wg.Done()

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("upgrade failed")
		return
	}

	c := &conn{
		server:      s,
		ws:          ws,
		codec:       protocol.NewCodec(encoding),
		messageType: websocket.BinaryMessage,
		subs:        make(map[string]map[string]bool),
		socketID:    uuid.NewString(),
		userAgent:   query.Get("user-agent"),
	}
	if !encoding.Binary() {
		c.messageType = websocket.TextMessage
	}

	s.lock.Lock()
	if s.closed {
		s.lock.Unlock()
		_ = ws.Close()
		return
	}
	requested := query.Get("sessionId")
	if requested != "" && s.sessions[requested] {
		c.sessionID = requested
		c.resumed = true
	} else {
		c.sessionID = uuid.NewString()
		s.sessions[c.sessionID] = true
	}
	s.conns[c] = struct{}{}
	s.lock.Unlock()

	s.logger.Debug().
		Str("session_id", c.sessionID).
		Bool("resumed", c.resumed).
		Str("encoding", encoding.String()).
		Str("user_agent", c.userAgent).
		Msg("client connected")

	c.send(protocol.EventConnected, protocol.Connected{SessionID: c.sessionID, SocketID: c.socketID})
	c.readLoop()

	s.lock.Lock()
	delete(s.conns, c)
	s.lock.Unlock()
	_ = ws.Close()
	s.logger.Debug().Str("session_id", c.sessionID).Msg("client disconnected")
}

// DropConnections closes every connection without a close handshake and
// returns how many were dropped.
func (s *Server) DropConnections() int {
	s.lock.Lock()
	conns := make([]*conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.lock.Unlock()

	for _, c := range conns {
		_ = c.ws.Close()
	}
	return len(conns)
}

// Connections returns the number of open connections.
func (s *Server) Connections() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return len(s.conns)
}

// Published returns the journal of channel.
func (s *Server) Published(channel string) []protocol.Message {
	return s.journal.snapshot(channel)
}

// Publish injects a message as if a client had published it.
func (s *Server) Publish(channel string, name string, data any) protocol.Message {
	message := s.journal.append(protocol.Message{Channel: channel, Name: name, Data: data})
	s.fanOut(nil, message)
	return message
}

// Close drops every connection and waits for their handlers to return.
func (s *Server) Close() {
	s.lock.Lock()
	s.closed = true
	s.lock.Unlock()
	s.DropConnections()
	s.wg.Wait()
}

func (s *Server) fanOut(publisher *conn, message protocol.Message) int {
	s.lock.Lock()
	targets := make([]*conn, 0, len(s.conns))
	for c := range s.conns {
		if c == publisher && !s.echo {
			continue
		}
		if c.subscribed(message.Channel, message.Name) {
			targets = append(targets, c)
		}
	}
	s.lock.Unlock()

	for _, c := range targets {
		c.send(protocol.EventMessage, message)
	}
	return len(targets)
}

type conn struct {
	server      *Server
	ws          *websocket.Conn
	codec       *protocol.Codec
	messageType int
	sessionID   string
	socketID    string
	userAgent   string
	resumed     bool

	writeLock sync.Mutex

	lock sync.Mutex
	subs map[string]map[string]bool
}

func (c *conn) send(eventType protocol.EventType, event any) {
	frame, err := c.codec.Encode(eventType, event)
	if err != nil {
		c.server.logger.Error().Err(err).Str("event_type", string(eventType)).Msg("encode failed")
		return
	}
	c.writeLock.Lock()
	defer c.writeLock.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := c.ws.WriteMessage(c.messageType, frame); err != nil {
		c.server.logger.Debug().Err(err).Msg("write failed")
	}
}

func (c *conn) sendError(code int, message string) {
	c.send(protocol.EventError, protocol.ErrorEvent{Code: code, Message: message})
}

func (c *conn) subscribed(channel string, name string) bool {
	c.lock.Lock()
	defer c.lock.Unlock()
	names := c.subs[channel]
	return names[""] || names[name]
}

func (c *conn) readLoop() {
	for {
		_, frame, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		envelope, err := c.codec.Decode(frame)
		if err != nil {
			c.sendError(ErrorCodeBadRequest, err.Error())
			continue
		}
		if !c.handle(envelope) {
			return
		}
	}
}

// handle processes one client frame and reports whether the connection
// stays open.
func (c *conn) handle(envelope *protocol.Envelope) bool {
	switch envelope.EventType {
	case protocol.EventHeartbeat:
	case protocol.EventAttach, protocol.EventDetach:
		var ref protocol.ChannelRef
		if err := envelope.Decode(&ref); err != nil || ref.Channel == "" {
			c.sendError(ErrorCodeBadRequest, "attach and detach need a channel")
			return true
		}
		c.lock.Lock()
		if envelope.EventType == protocol.EventAttach {
			if c.subs[ref.Channel] == nil {
				c.subs[ref.Channel] = make(map[string]bool)
			}
		} else {
			delete(c.subs, ref.Channel)
		}
		c.lock.Unlock()
	case protocol.EventSubscribe:
		var subscription protocol.Subscription
		if err := envelope.Decode(&subscription); err != nil || subscription.Channel == "" {
			c.sendError(ErrorCodeBadRequest, "subscribe needs a channel")
			return true
		}
		c.subscribe(subscription)
	case protocol.EventUnsubscribe:
		var ref protocol.ChannelRef
		if err := envelope.Decode(&ref); err != nil || ref.Channel == "" {
			c.sendError(ErrorCodeBadRequest, "unsubscribe needs a channel")
			return true
		}
		c.lock.Lock()
		delete(c.subs[ref.Channel], ref.Name)
		c.lock.Unlock()
	case protocol.EventMessage:
		message, err := protocol.ParseMessage(envelope)
		if err != nil {
			c.sendError(ErrorCodeBadRequest, err.Error())
			return true
		}
		stored := c.server.journal.append(protocol.Message{Channel: message.Channel, Name: message.Name, Data: message.Data})
		c.send(protocol.EventAck, protocol.Ack{ID: stored.ID})
		c.server.fanOut(c, stored)
	case protocol.EventDisconnect:
		c.writeLock.Lock()
		_ = c.ws.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "disconnect"),
			time.Now().Add(time.Second),
		)
		c.writeLock.Unlock()
		return false
	default:
		c.sendError(ErrorCodeBadRequest, "unexpected event "+string(envelope.EventType))
	}
	return true
}

func (c *conn) subscribe(subscription protocol.Subscription) {
	c.lock.Lock()
	names := c.subs[subscription.Channel]
	if names == nil {
		c.lock.Unlock()
		c.sendError(ErrorCodeUnknownChannel, "channel "+subscription.Channel+" is not attached")
		return
	}
	names[subscription.Name] = true
	c.lock.Unlock()

	c.send(protocol.EventSubscribed, protocol.Subscribed{Channel: subscription.Channel, Name: subscription.Name})
	if subscription.Position == "" {
		return
	}
	for _, message := range c.server.journal.after(subscription.Channel, subscription.Name, subscription.Position) {
		c.send(protocol.EventMessage, message)
	}
}
