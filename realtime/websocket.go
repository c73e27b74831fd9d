package realtime

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const defaultWriteTimeout = 10 * time.Second

// WebSocketDialer opens gorilla/websocket connections. Frames travel as text
// messages when the URL selects the json encoding and as binary otherwise.
type WebSocketDialer struct {
	Dialer       *websocket.Dialer
	Header       http.Header
	WriteTimeout time.Duration
}

// NewWebSocketDialer returns a dialer backed by websocket.DefaultDialer.
func NewWebSocketDialer() *WebSocketDialer {
	return &WebSocketDialer{Dialer: websocket.DefaultDialer, WriteTimeout: defaultWriteTimeout}
}

// Open starts dialing rawURL in the background and returns immediately.
func (dialer *WebSocketDialer) Open(rawURL string, handler SocketHandler) Socket {
	ctx, cancel := context.WithCancel(context.Background())
	socket := &webSocket{
		handler:      handler,
		messageType:  messageTypeFor(rawURL),
		writeTimeout: dialer.WriteTimeout,
		cancel:       cancel,
	}
	if socket.writeTimeout <= 0 {
		socket.writeTimeout = defaultWriteTimeout
	}

	wsDialer := dialer.Dialer
	if wsDialer == nil {
		wsDialer = websocket.DefaultDialer
	}
	go socket.run(ctx, wsDialer, rawURL, dialer.Header)
	return socket
}

func messageTypeFor(rawURL string) int {
	parsed, err := url.Parse(rawURL)
	if err == nil && parsed.Query().Get("encoding") == "json" {
		return websocket.TextMessage
	}
	return websocket.BinaryMessage
}

type webSocket struct {
	handler      SocketHandler
	messageType  int
	writeTimeout time.Duration
	cancel       context.CancelFunc

	lock   sync.Mutex
	conn   *websocket.Conn
	closed bool

	writeLock sync.Mutex
}

func (socket *webSocket) run(ctx context.Context, dialer *websocket.Dialer, rawURL string, header http.Header) {
	defer socket.handler.OnClose()
	defer socket.cancel()

	conn, _, err := dialer.DialContext(ctx, rawURL, header)
	if err != nil {
		if !socket.isClosed() {
			socket.handler.OnError(err)
		}
		return
	}

	socket.lock.Lock()
	if socket.closed {
		socket.lock.Unlock()
		_ = conn.Close()
		return
	}
	socket.conn = conn
	socket.lock.Unlock()

	socket.handler.OnOpen()
	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			if !socket.isClosed() && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				socket.handler.OnError(err)
			}
			break
		}
		socket.handler.OnMessage(frame)
	}

	socket.lock.Lock()
	socket.closed = true
	socket.lock.Unlock()
	_ = conn.Close()
}

func (socket *webSocket) isClosed() bool {
	socket.lock.Lock()
	defer socket.lock.Unlock()
	return socket.closed
}

func (socket *webSocket) Send(frame []byte) error {
	socket.lock.Lock()
	conn := socket.conn
	closed := socket.closed
	socket.lock.Unlock()
	if conn == nil || closed {
		return ErrSocketNotOpen
	}

	socket.writeLock.Lock()
	defer socket.writeLock.Unlock()
	if err := conn.SetWriteDeadline(time.Now().Add(socket.writeTimeout)); err != nil {
		return err
	}
	return conn.WriteMessage(socket.messageType, frame)
}

func (socket *webSocket) Close() error {
	socket.lock.Lock()
	if socket.closed {
		socket.lock.Unlock()
		return nil
	}
	socket.closed = true
	conn := socket.conn
	socket.lock.Unlock()

	socket.cancel()
	if conn == nil {
		return nil
	}

	socket.writeLock.Lock()
	_ = conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	socket.writeLock.Unlock()
	return conn.Close()
}
