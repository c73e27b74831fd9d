package realtime

import "github.com/Thejuampi/realtime-client-go/realtime/protocol"

// Session identifies one server-side connection. A fresh Session replaces the
// previous one on every successful connection; its SessionID is offered to
// the backend on the next connection so it can resume.
type Session struct {
	SessionID string
	SocketID  string
}

func newSession(connected protocol.Connected) *Session {
	return &Session{SessionID: connected.SessionID, SocketID: connected.SocketID}
}
