package realtime

// SocketHandler receives socket lifecycle callbacks. Callbacks may arrive on
// any goroutine. OnClose is delivered exactly once per socket, after OnOpen
// and OnMessage, including when the socket never opened.
type SocketHandler interface {
	OnOpen()
	OnMessage(frame []byte)
	OnError(err error)
	OnClose()
}

// Socket is one bidirectional connection attempt.
type Socket interface {
	// Send writes one frame. It fails with ErrSocketNotOpen before the socket
	// opened or after it closed.
	Send(frame []byte) error
	Close() error
}

// Dialer opens sockets. Open must not block; the outcome is reported through
// handler.
type Dialer interface {
	Open(rawURL string, handler SocketHandler) Socket
}
